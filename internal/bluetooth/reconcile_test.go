package bluetooth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btmigrate/internal/bluetooth"
)

const (
	adapterA = "AA:AA:AA:AA:AA:AA"
	adapterB = "BB:BB:BB:BB:BB:BB"
	devMouse = "11:11:11:11:11:11"
	devKbd   = "22:22:22:22:22:22"
	devPhone = "33:33:33:33:33:33"
)

func names(devices []*bluetooth.Device) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Name)
	}
	return out
}

func TestCollect_DuplicateDeviceCollapsed(t *testing.T) {
	src := &fakeSource{
		adapters:  []bluetooth.Entry{{Name: "Laptop BT", ID: "adapter0"}},
		adapterID: map[string]uint64{"adapter0": addr(adapterA).Uint64()},
		classic:   []bluetooth.Entry{{Name: "Mouse", ID: classicID(adapterA, devMouse)}},
		le:        []bluetooth.Entry{{Name: "Mouse", ID: leID(adapterA, devMouse)}},
	}

	got, err := bluetooth.NewCollector(src, newFakeStore(), bluetooth.Options{}, nil).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Laptop BT", got[0].Name)
	assert.Equal(t, "AAAAAAAAAAAA", got[0].Address.String())
	require.Len(t, got[0].Devices, 1)

	d := got[0].Devices[0]
	assert.Equal(t, "Mouse", d.Name)
	assert.Equal(t, "111111111111", d.Address.String())
	assert.Empty(t, d.LinkKey)
	assert.Empty(t, d.IRK)
	assert.Empty(t, d.LTK)
	assert.Empty(t, d.EDIV)
	assert.Nil(t, d.Rand)
}

func TestCollect_RandDecodedFromStore(t *testing.T) {
	store := newFakeStore()
	store.le[storeKey{addr(adapterA), addr(devMouse)}] = bluetooth.LEKeys{ERand: bluetooth.Integer(0x0807060504030201)}
	src := &fakeSource{
		adapters:  []bluetooth.Entry{{Name: "Laptop BT", ID: "adapter0"}},
		adapterID: map[string]uint64{"adapter0": addr(adapterA).Uint64()},
		le:        []bluetooth.Entry{{Name: "Mouse", ID: leID(adapterA, devMouse)}},
	}

	got, err := bluetooth.NewCollector(src, store, bluetooth.Options{}, nil).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Devices, 1)
	require.NotNil(t, got[0].Devices[0].Rand)
	assert.Equal(t, uint64(0x0102030405060708), *got[0].Devices[0].Rand)
}

func TestCollect_UnmatchedDevice(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{
		adapters:  []bluetooth.Entry{{Name: "Laptop BT", ID: "adapter0"}},
		adapterID: map[string]uint64{"adapter0": addr(adapterA).Uint64()},
		classic: []bluetooth.Entry{
			{Name: "Mouse", ID: classicID(adapterA, devMouse)},
			{Name: "Speaker", ID: classicID(adapterB, devPhone)},
		},
	}

	got, err := bluetooth.NewCollector(src, store, bluetooth.Options{}, nil).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	last := got[1]
	assert.Equal(t, bluetooth.UnmatchedAdapterName, last.Name)
	assert.Equal(t, "000000000000", last.Address.String())
	require.Len(t, last.Devices, 1)
	assert.Equal(t, "Speaker", last.Devices[0].Name)
	assert.Equal(t, "BBBBBBBBBBBB", last.Devices[0].AdapterAddress.String())
	// One device on adapter A was looked up twice (classic + LE); the
	// unmatched device was not looked up at all.
	assert.Equal(t, 2, store.calls)
}

func TestCollect_StoreOnlyAdapterUnion(t *testing.T) {
	store := newFakeStore()
	store.adapters = []string{"aaaaaaaaaaaa", "bbbbbbbbbbbb", "not-an-address"}
	store.links[storeKey{addr(adapterB), addr(devKbd)}] = bluetooth.Bytes(key16)
	src := &fakeSource{
		adapters:  []bluetooth.Entry{{Name: "Laptop BT", ID: "adapter0"}},
		adapterID: map[string]uint64{"adapter0": addr(adapterA).Uint64()},
		classic: []bluetooth.Entry{
			{Name: "Mouse", ID: classicID(adapterA, devMouse)},
			{Name: "Keyboard", ID: classicID(adapterB, devKbd)},
		},
	}

	got, err := bluetooth.NewCollector(src, store, bluetooth.Options{}, nil).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Laptop BT", got[0].Name)
	assert.Equal(t, "Unknown adapter(BBBBBBBBBBBB)", got[1].Name)
	require.Len(t, got[1].Devices, 1)
	assert.Equal(t, "00112233445566778899AABBCCDDEEFF", got[1].Devices[0].LinkKey)
}

func TestCollect_SkipsUnparsableAndVanished(t *testing.T) {
	vanishedID := leID(adapterA, devPhone)
	failingID := leID(adapterA, devKbd)
	src := &fakeSource{
		adapters:  []bluetooth.Entry{{Name: "Laptop BT", ID: "adapter0"}, {Name: "Gone", ID: "adapter-missing"}},
		adapterID: map[string]uint64{"adapter0": addr(adapterA).Uint64()},
		classic: []bluetooth.Entry{
			{Name: "Mouse", ID: classicID(adapterA, devMouse)},
			{Name: "Printer", ID: "SWD#PRINTENUM#{0001}"},
		},
		le: []bluetooth.Entry{
			{Name: "Phone", ID: vanishedID},
			{Name: "Keyboard", ID: failingID},
		},
		vanished: map[string]bool{vanishedID: true},
		failing:  map[string]bool{failingID: true},
	}

	got, err := bluetooth.NewCollector(src, newFakeStore(), bluetooth.Options{}, nil).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Mouse"}, names(got[0].Devices))
}

func TestCollect_StoreOnlyDevices(t *testing.T) {
	fs := newFakeStore()
	fs.adapters = []string{"aaaaaaaaaaaa"}
	fs.devices[addr(adapterA)] = []string{"111111111111", "222222222222", "bogus"}
	store := listingStore{fs}
	src := &fakeSource{
		adapters:  []bluetooth.Entry{{Name: "Laptop BT", ID: "adapter0"}},
		adapterID: map[string]uint64{"adapter0": addr(adapterA).Uint64()},
		classic:   []bluetooth.Entry{{Name: "mouse", ID: classicID(adapterA, devMouse)}},
	}

	without, err := bluetooth.NewCollector(src, store, bluetooth.Options{}, nil).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, without, 1)
	assert.Equal(t, []string{"mouse"}, names(without[0].Devices))

	with, err := bluetooth.NewCollector(src, store, bluetooth.Options{IncludeStoreOnlyDevices: true}, nil).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, with, 1)
	assert.Equal(t, []string{"Unknown device(222222222222)", "mouse"}, names(with[0].Devices))
}

func TestCollect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{
		adapters:  []bluetooth.Entry{{Name: "Laptop BT", ID: "adapter0"}},
		adapterID: map[string]uint64{"adapter0": addr(adapterA).Uint64()},
		classic:   []bluetooth.Entry{{Name: "Mouse", ID: classicID(adapterA, devMouse)}},
	}
	_, err := bluetooth.NewCollector(src, newFakeStore(), bluetooth.Options{}, nil).Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconcile_SortAndFirstWins(t *testing.T) {
	a := addr(adapterA)
	devices := []*bluetooth.Device{
		bluetooth.NewDevice("Zed", addr(devKbd), a),
		bluetooth.NewDevice("Beta", addr(devMouse), a),
		bluetooth.NewDevice("Alpha", addr(devMouse), a),
		bluetooth.NewDevice("Mid", addr(devPhone), a),
	}
	got, err := bluetooth.NewReconciler(newFakeStore(), nil).Reconcile(context.Background(),
		[]*bluetooth.Adapter{bluetooth.NewAdapter("Laptop BT", a)}, nil, devices)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Alpha", "Mid", "Zed"}, names(got[0].Devices))
}

func TestReconcile_Invariants(t *testing.T) {
	a, b := addr(adapterA), addr(adapterB)
	orphan := addr("CC:CC:CC:CC:CC:CC")
	devices := []*bluetooth.Device{
		bluetooth.NewDevice("Mouse", addr(devMouse), a),
		bluetooth.NewDevice("Mouse", addr(devMouse), a),
		bluetooth.NewDevice("Mouse 2", addr(devMouse), a),
		bluetooth.NewDevice("Keyboard", addr(devKbd), b),
		bluetooth.NewDevice("Keyboard", addr(devKbd), orphan),
		bluetooth.NewDevice("Phone", addr(devPhone), orphan),
		bluetooth.NewDevice("Phone", addr(devPhone), orphan),
	}
	enumerated := []*bluetooth.Adapter{
		bluetooth.NewAdapter("Laptop BT", a),
		bluetooth.NewAdapter("Laptop BT duplicate", a),
		bluetooth.NewAdapter("Idle dongle", addr("DD:DD:DD:DD:DD:DD")),
	}
	storeOnly := []*bluetooth.Adapter{
		bluetooth.NewAdapter(bluetooth.UnknownAdapterName(a), a),
		bluetooth.NewAdapter(bluetooth.UnknownAdapterName(b), b),
	}

	got, err := bluetooth.NewReconciler(newFakeStore(), nil).Reconcile(context.Background(), enumerated, storeOnly, devices)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Laptop BT", got[0].Name)
	assert.Equal(t, "Unknown adapter(BBBBBBBBBBBB)", got[1].Name)
	assert.Equal(t, bluetooth.UnmatchedAdapterName, got[2].Name)

	type key struct{ adapter, device bluetooth.Address }
	seen := map[key]bool{}
	for _, ad := range got {
		assert.NotEmpty(t, ad.Devices, "adapter %s", ad)
		perAdapter := map[bluetooth.Address]bool{}
		for _, d := range ad.Devices {
			assert.False(t, perAdapter[d.Address], "duplicate %s in %s", d.Address, ad)
			perAdapter[d.Address] = true
			k := key{d.AdapterAddress, d.Address}
			assert.False(t, seen[k], "device %s assigned twice", d)
			seen[k] = true
		}
	}
	// Every distinct (adapter, device) pair from the input is present.
	for _, d := range devices {
		assert.True(t, seen[key{d.AdapterAddress, d.Address}], "device %s lost", d)
	}
}
