package winreg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"btmigrate/internal/bluetooth"
)

func TestIsAddressName(t *testing.T) {
	assert.True(t, isAddressName("001a7dda7113"))
	assert.True(t, isAddressName("A45E60D53E7F"))
	assert.False(t, isAddressName("CentralIRK"))
	assert.False(t, isAddressName("00:1a:7d:da:71:13"))
	assert.False(t, isAddressName("001a7dda711"))
	assert.False(t, isAddressName("001a7dda711g"))
}

func TestRegName(t *testing.T) {
	a := bluetooth.MustParseAddress("00:1A:7D:DA:71:13")
	assert.Equal(t, "001a7dda7113", regName(a))
	assert.Equal(t, "Dev_001a7dda7113", bthleDevicePrefix(a))
}

func TestDecodeName(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{name: "utf8 with terminator", in: []byte("WH-1000XM4\x00"), want: "WH-1000XM4"},
		{name: "utf8 without terminator", in: []byte("Keyboard K380"), want: "Keyboard K380"},
		{name: "garbage after terminator", in: []byte("Mouse\x00\xff\xfe"), want: "Mouse"},
		{name: "utf16le", in: []byte{'P', 0, 'a', 0, 'd', 0, 0, 0}, want: "Pad"},
		{name: "multibyte utf8", in: []byte("Café\x00"), want: "Café"},
		{name: "empty", in: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeName(tt.in))
		})
	}
}

var errNotExist = errors.New("not exist")

type fakeValue struct {
	typ uint32
	bin []byte
	num uint64
	err error
}

type fakeKey map[string]fakeValue

func (k fakeKey) GetValue(name string, _ []byte) (int, uint32, error) {
	v, ok := k[name]
	if !ok {
		return 0, 0, errNotExist
	}
	return 0, v.typ, nil
}

func (k fakeKey) GetBinaryValue(name string) ([]byte, uint32, error) {
	v := k[name]
	return v.bin, v.typ, v.err
}

func (k fakeKey) GetIntegerValue(name string) (uint64, uint32, error) {
	v := k[name]
	return v.num, v.typ, v.err
}

func TestReadValue(t *testing.T) {
	notExist := func(err error) bool { return errors.Is(err, errNotExist) }
	k := fakeKey{
		"LTK":   {typ: regBinary, bin: []byte{0x01, 0x02}},
		"EDIV":  {typ: regDWORD, num: 0x3a4b},
		"ERand": {typ: regQWORD, num: 42},
		"IRK":   {typ: 1},
		"Bad":   {typ: regBinary, err: errors.New("access denied")},
	}

	assert.Equal(t, bluetooth.Bytes([]byte{0x01, 0x02}), readValue(k, "LTK", notExist))
	assert.Equal(t, bluetooth.Integer(0x3a4b), readValue(k, "EDIV", notExist))
	assert.Equal(t, bluetooth.Integer(42), readValue(k, "ERand", notExist))
	assert.True(t, readValue(k, "Missing", notExist).IsAbsent())

	irk := readValue(k, "IRK", notExist)
	assert.Equal(t, bluetooth.KindMalformed, irk.Kind())
	assert.Contains(t, irk.Reason(), "unsupported registry type 1")

	bad := readValue(k, "Bad", notExist)
	assert.Equal(t, bluetooth.KindMalformed, bad.Kind())
	assert.Contains(t, bad.Reason(), "access denied")
}
