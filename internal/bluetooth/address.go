package bluetooth

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedAddress is returned when an address string is not valid hex
// or does not fit in 48 bits.
var ErrMalformedAddress = errors.New("malformed bluetooth address")

// Address is a 48-bit Bluetooth device or adapter address, most significant
// byte first.
type Address [6]byte

// AddressFromUint64 converts the numeric form used by enumeration APIs.
// Only the low 48 bits are significant.
func AddressFromUint64(v uint64) Address {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], v)
	trimmed := be[:]
	for len(trimmed) > 0 && trimmed[0] == 0 {
		trimmed = trimmed[1:]
	}
	if len(trimmed) > 6 {
		trimmed = trimmed[len(trimmed)-6:]
	}
	var a Address
	copy(a[6-len(trimmed):], trimmed)
	return a
}

// ParseAddress accepts "1A:2B:3C:4D:5E:6F", "1a2b3c4d5e6f" and shorter
// unpadded forms such as registry key names with leading zeros dropped.
func ParseAddress(s string) (Address, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	if raw == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrMalformedAddress)
	}
	v, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	if v > 0xFFFFFFFFFFFF {
		return Address{}, fmt.Errorf("%w: %q exceeds 6 bytes", ErrMalformedAddress, s)
	}
	return AddressFromUint64(v), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) Uint64() uint64 {
	var be [8]byte
	copy(be[2:], a[:])
	return binary.BigEndian.Uint64(be[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the canonical 12 character upper-case form.
func (a Address) String() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}

// Colon returns the colon separated form, e.g. "1A:2B:3C:4D:5E:6F".
func (a Address) Colon() string {
	parts := make([]string, len(a))
	for i, b := range a {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ReverseBytes swaps the byte order of a 64-bit value. The key store keeps
// ERand in the opposite order from the one the exported tree uses.
func ReverseBytes(v uint64) uint64 {
	return v&0x00000000000000FF<<56 | v&0x000000000000FF00<<40 |
		v&0x0000000000FF0000<<24 | v&0x00000000FF000000<<8 |
		v&0x000000FF00000000>>8 | v&0x0000FF0000000000>>24 |
		v&0x00FF000000000000>>40 | v&0xFF00000000000000>>56
}
