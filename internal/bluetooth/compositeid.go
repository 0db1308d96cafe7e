package bluetooth

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrUnrecognizedDeviceID is returned for enumeration ids that do not carry
// an adapter and a device address.
var ErrUnrecognizedDeviceID = errors.New("unrecognized bluetooth device id")

// Transport tags used by enumeration ids.
const (
	TagClassic = "Bluetooth"
	TagLE      = "BluetoothLE"
)

// Ids look like "BluetoothLE#BluetoothLEaa:bb:cc:dd:ee:ff-11:22:33:44:55:66".
var compositeIDRe = regexp.MustCompile(`Bluetooth(?:LE)?#Bluetooth(?:LE)?([0-9A-Fa-f:]+)-([0-9A-Fa-f:]+)`)

// ParseCompositeID extracts the adapter and device address from an
// enumeration id.
func ParseCompositeID(id string) (adapter Address, device Address, err error) {
	m := compositeIDRe.FindStringSubmatch(id)
	if m == nil {
		return Address{}, Address{}, fmt.Errorf("%w: %q", ErrUnrecognizedDeviceID, id)
	}
	adapter, err = ParseAddress(m[1])
	if err != nil {
		return Address{}, Address{}, fmt.Errorf("adapter part of %q: %w", id, err)
	}
	device, err = ParseAddress(m[2])
	if err != nil {
		return Address{}, Address{}, fmt.Errorf("device part of %q: %w", id, err)
	}
	return adapter, device, nil
}

// CompositeID builds the id shape ParseCompositeID understands. Sources that
// do not get such ids from the OS synthesize them with it.
func CompositeID(tag string, adapter, device Address) string {
	return tag + "#" + tag + adapter.Colon() + "-" + device.Colon()
}
