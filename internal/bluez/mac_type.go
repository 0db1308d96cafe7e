package bluez

import (
	"strings"

	"btmigrate/internal/bluetooth"
)

// Random address subtypes.
const (
	SubtypeNonResolvable     = "non_resolvable_private"
	SubtypeResolvablePrivate = "resolvable_private"
	SubtypeReserved          = "reserved"
	SubtypeStaticRandom      = "static_random"
)

// ClassifyAddress returns the address type and, for random addresses, the
// subtype taken from the two most significant bits of the address.
//
// Type is "public_or_unknown" unless BlueZ reports AddressType "random".
func ClassifyAddress(addr string, addressType string) (typ string, sub string) {
	if !strings.EqualFold(strings.TrimSpace(addressType), "random") {
		return "public_or_unknown", ""
	}
	a, err := bluetooth.ParseAddress(addr)
	if err != nil {
		return "random", ""
	}
	switch a[0] >> 6 {
	case 0:
		return "random", SubtypeNonResolvable
	case 1:
		return "random", SubtypeResolvablePrivate
	case 2:
		return "random", SubtypeReserved
	default:
		return "random", SubtypeStaticRandom
	}
}
