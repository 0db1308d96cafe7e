package ids

import (
	"btmigrate/internal/bluetooth"
)

// Resolver maps the OUI of a public device address to a vendor name.
type Resolver struct {
	vendors map[string]string
}

// Vendor returns "" for unknown OUIs and for locally administered or
// random addresses, which carry no OUI.
func (r *Resolver) Vendor(addr bluetooth.Address) string {
	if r == nil || len(r.vendors) == 0 || addr.IsZero() {
		return ""
	}
	if addr[0]&0x02 != 0 {
		return ""
	}
	return r.vendors[addr.String()[:6]]
}

// Annotate appends the vendor to name when one is known.
func (r *Resolver) Annotate(name string, addr bluetooth.Address) string {
	v := r.Vendor(addr)
	if v == "" {
		return name
	}
	return name + " [" + v + "]"
}
