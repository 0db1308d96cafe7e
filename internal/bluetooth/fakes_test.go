package bluetooth_test

import (
	"context"
	"errors"
	"strings"

	"btmigrate/internal/bluetooth"
)

type fakeSource struct {
	adapters  []bluetooth.Entry
	classic   []bluetooth.Entry
	le        []bluetooth.Entry
	adapterID map[string]uint64
	// vanished ids resolve to ok=false.
	vanished map[string]bool
	failing  map[string]bool
}

func (f *fakeSource) FindAdapters(ctx context.Context) ([]bluetooth.Entry, error) {
	return f.adapters, nil
}

func (f *fakeSource) FindClassicDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return f.classic, nil
}

func (f *fakeSource) FindLEDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return f.le, nil
}

func (f *fakeSource) ResolveAdapterAddress(ctx context.Context, id string) (uint64, error) {
	v, ok := f.adapterID[id]
	if !ok {
		return 0, errors.New("no such adapter")
	}
	return v, nil
}

func (f *fakeSource) ResolveDeviceAddress(ctx context.Context, id string) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if f.failing[id] {
		return 0, false, errors.New("resolve failed")
	}
	if f.vanished[id] {
		return 0, false, nil
	}
	_, dev, err := bluetooth.ParseCompositeID(id)
	if err != nil {
		return 0, false, err
	}
	return dev.Uint64(), true, nil
}

type storeKey struct {
	adapter, device bluetooth.Address
}

type fakeStore struct {
	adapters []string
	links    map[storeKey]bluetooth.Value
	le       map[storeKey]bluetooth.LEKeys
	devices  map[bluetooth.Address][]string
	calls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		links:   map[storeKey]bluetooth.Value{},
		le:      map[storeKey]bluetooth.LEKeys{},
		devices: map[bluetooth.Address][]string{},
	}
}

func (f *fakeStore) ListAdapterAddresses(ctx context.Context) ([]string, error) {
	return f.adapters, nil
}

func (f *fakeStore) ClassicLinkKey(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.Value, error) {
	f.calls++
	return f.links[storeKey{adapter, device}], nil
}

func (f *fakeStore) LEKeys(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.LEKeys, error) {
	f.calls++
	return f.le[storeKey{adapter, device}], nil
}

// listingStore adds DeviceLister to fakeStore.
type listingStore struct {
	*fakeStore
}

func (l listingStore) ListDeviceAddresses(ctx context.Context, adapter bluetooth.Address) ([]string, error) {
	return l.devices[adapter], nil
}

func addr(s string) bluetooth.Address {
	return bluetooth.MustParseAddress(s)
}

func classicID(adapter, device string) string {
	return "Bluetooth#Bluetooth" + strings.ToLower(adapter) + "-" + strings.ToLower(device)
}

func leID(adapter, device string) string {
	return "BluetoothLE#BluetoothLE" + strings.ToLower(adapter) + "-" + strings.ToLower(device)
}
