package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func props(kv ...any) map[string]dbus.Variant {
	out := map[string]dbus.Variant{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = dbus.MakeVariant(kv[i+1])
	}
	return out
}

func sampleObjects() managedObjects {
	return managedObjects{
		"/org/bluez/hci0": {
			adapterIface: props("Address", "aa:aa:aa:aa:aa:aa", "Alias", "laptop", "Name", "BlueZ 5.66"),
		},
		"/org/bluez/hci1": {
			adapterIface: props("Address", "BB:BB:BB:BB:BB:BB", "Name", "dongle"),
		},
		"/org/bluez/hci0/dev_11_11_11_11_11_11": {
			deviceIface: props(
				"Address", "11:11:11:11:11:11",
				"AddressType", "public",
				"Name", "Headset",
				"Class", uint32(0x240404),
				"Paired", true,
				"Adapter", dbus.ObjectPath("/org/bluez/hci0"),
			),
		},
		"/org/bluez/hci0/dev_D2_22_22_22_22_22": {
			deviceIface: props(
				"Address", "d2:22:22:22:22:22",
				"AddressType", "random",
				"Alias", "Mouse",
				"Bonded", true,
			),
		},
		"/org/bluez/hci0/dev_33_33_33_33_33_33": {
			deviceIface: props("Address", "33:33:33:33:33:33", "Name", "Stranger"),
		},
		"/org/bluez": {
			"org.bluez.AgentManager1": props(),
		},
	}
}

func TestAdaptersFromObjects(t *testing.T) {
	got := adaptersFromObjects(sampleObjects())
	require.Len(t, got, 2)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0"), got[0].Path)
	assert.Equal(t, "laptop", got[0].Name)
	assert.Equal(t, "AA:AA:AA:AA:AA:AA", got[0].Address)
	assert.Equal(t, "dongle", got[1].Name)
}

func TestDevicesFromObjects(t *testing.T) {
	got := devicesFromObjects(sampleObjects())
	require.Len(t, got, 3)

	byAddr := map[string]deviceInfo{}
	for _, d := range got {
		byAddr[d.Address] = d
	}

	headset := byAddr["11:11:11:11:11:11"]
	assert.Equal(t, "Headset", headset.Name)
	assert.True(t, headset.Paired)
	assert.True(t, headset.isClassicLikely())
	assert.False(t, headset.isLELikely())

	mouse := byAddr["D2:22:22:22:22:22"]
	assert.Equal(t, "Mouse", mouse.Name)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0"), mouse.Adapter)
	assert.True(t, mouse.Bonded)
	assert.False(t, mouse.isClassicLikely())
	assert.True(t, mouse.isLELikely())

	stranger := byAddr["33:33:33:33:33:33"]
	assert.False(t, stranger.Paired || stranger.Bonded)
}

func TestCompositeIDFromBlueZ(t *testing.T) {
	assert.Equal(t,
		"BluetoothLE#BluetoothLEaa:aa:aa:aa:aa:aa-d2:22:22:22:22:22",
		compositeID("BluetoothLE", "AA:AA:AA:AA:AA:AA", "D2:22:22:22:22:22"))
	// Unparsable addresses survive so the collector can report them.
	assert.Equal(t, "Bluetooth#Bluetooth-zz", compositeID("Bluetooth", "", "ZZ"))
}

func TestIsVanished(t *testing.T) {
	assert.True(t, isVanished(dbus.Error{Name: "org.freedesktop.DBus.Error.UnknownObject"}))
	assert.True(t, isVanished(&dbus.Error{Name: "org.bluez.Error.DoesNotExist"}))
	assert.False(t, isVanished(dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}))
	assert.False(t, isVanished(assert.AnError))
}
