// Package winreg reads paired devices and pairing keys from the Windows
// Bluetooth stack's registry hive:
//
//	HKLM\SYSTEM\CurrentControlSet\Services\BTHPORT\Parameters\Keys\<adapter>
//	    <device>            REG_BINARY  classic link key
//	    <device>\IRK        REG_BINARY
//	    <device>\LTK        REG_BINARY
//	    <device>\EDIV       REG_DWORD
//	    <device>\ERand      REG_QWORD
//
// Addresses are 12 lowercase hex digits without separators. The Keys subtree
// is only readable by SYSTEM.
package winreg

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"btmigrate/internal/bluetooth"
)

var ErrUnsupported = errors.New("windows registry is not available on this platform")

const (
	parametersPath = `SYSTEM\CurrentControlSet\Services\BTHPORT\Parameters`
	keysPath       = parametersPath + `\Keys`
	devicesPath    = parametersPath + `\Devices`
	bthleEnumPath  = `SYSTEM\CurrentControlSet\Enum\BTHLE`
)

// regName is the registry spelling of an address.
func regName(a bluetooth.Address) string {
	return strings.ToLower(a.String())
}

// isAddressName reports whether a value or subkey name is a bare address.
// Keys\<adapter> also carries values such as CentralIRK.
func isAddressName(s string) bool {
	if len(s) != 12 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// decodeName decodes the REG_BINARY Name value of a Devices entry. Windows
// writes it as NUL terminated UTF-8; older stacks wrote UTF-16LE.
func decodeName(b []byte) string {
	if len(b) >= 4 && len(b)%2 == 0 && b[1] == 0 && b[3] == 0 {
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			c := uint16(b[i]) | uint16(b[i+1])<<8
			if c == 0 {
				break
			}
			u = append(u, c)
		}
		return strings.TrimSpace(string(utf16.Decode(u)))
	}
	if i := indexNUL(b); i >= 0 {
		b = b[:i]
	}
	if !utf8.Valid(b) {
		return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
	}
	return strings.TrimSpace(string(b))
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// bthleDevicePrefix is the Enum\BTHLE subkey prefix for an LE device.
func bthleDevicePrefix(device bluetooth.Address) string {
	return "Dev_" + regName(device)
}

// Registry value types (winnt.h).
const (
	regBinary = 3
	regDWORD  = 4
	regQWORD  = 11
)

// valueReader is the part of registry.Key readValue needs.
type valueReader interface {
	GetValue(name string, buf []byte) (n int, valtype uint32, err error)
	GetBinaryValue(name string) (val []byte, valtype uint32, err error)
	GetIntegerValue(name string) (val uint64, valtype uint32, err error)
}

// readValue maps one registry value to the key store's tagged variant.
// Values that exist but cannot be read come back Malformed.
func readValue(k valueReader, name string, notExist func(error) bool) bluetooth.Value {
	_, typ, err := k.GetValue(name, nil)
	if err != nil {
		if notExist(err) {
			return bluetooth.Absent
		}
		return bluetooth.Malformed(fmt.Sprintf("read %s: %v", name, err))
	}
	switch typ {
	case regBinary:
		b, _, err := k.GetBinaryValue(name)
		if err != nil {
			return bluetooth.Malformed(fmt.Sprintf("read %s: %v", name, err))
		}
		return bluetooth.Bytes(b)
	case regDWORD, regQWORD:
		n, _, err := k.GetIntegerValue(name)
		if err != nil {
			return bluetooth.Malformed(fmt.Sprintf("read %s: %v", name, err))
		}
		return bluetooth.Integer(n)
	default:
		return bluetooth.Malformed(fmt.Sprintf("read %s: unsupported registry type %d", name, typ))
	}
}
