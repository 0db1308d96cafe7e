package bluetooth

import "fmt"

// UnmatchedAdapterName names the placeholder adapter that collects devices
// whose adapter address matches no known adapter.
const UnmatchedAdapterName = "Devices that can't be matched to any adapter:"

// Adapter is a local Bluetooth controller and the paired devices exported
// for it. Field order is the JSON field order.
type Adapter struct {
	Name    string
	Address Address
	Devices []*Device
}

func NewAdapter(name string, addr Address) *Adapter {
	return &Adapter{Name: name, Address: addr, Devices: []*Device{}}
}

// UnknownAdapterName is the name given to adapters only known from the key store.
func UnknownAdapterName(addr Address) string {
	return fmt.Sprintf("Unknown adapter(%s)", addr)
}

// UnknownDeviceName is the name given to devices only known from the key store.
func UnknownDeviceName(addr Address) string {
	return fmt.Sprintf("Unknown device(%s)", addr)
}

func (a *Adapter) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.Address)
}

// Device is a remote device paired with an adapter. LinkKey is set for
// classic pairings, IRK/LTK/EDIV/Rand for LE pairings.
type Device struct {
	Name           string
	Address        Address
	AdapterAddress Address
	LinkKey        string
	IRK            string
	LTK            string
	Rand           *uint64
	EDIV           string
}

func NewDevice(name string, addr, adapterAddr Address) *Device {
	return &Device{Name: name, Address: addr, AdapterAddress: adapterAddr}
}

// HasClassicKeys reports whether a link key was found.
func (d *Device) HasClassicKeys() bool {
	return d.LinkKey != ""
}

// HasLEKeys reports whether any LE key material was found.
func (d *Device) HasLEKeys() bool {
	return d.IRK != "" || d.LTK != "" || d.EDIV != "" || d.Rand != nil
}

func (d *Device) String() string {
	return fmt.Sprintf("Address: %s - Adapter address: %s - Name %s", d.Address, d.AdapterAddress, d.Name)
}
