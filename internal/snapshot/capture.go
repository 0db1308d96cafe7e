package snapshot

import (
	"context"
	"os"
	"sort"
	"strings"

	"btmigrate/internal/bluetooth"
)

// Capture records what source and store report into a File that replays
// the same reconciliation later. Entries that fail to resolve keep the
// error message so replay fails them the same way. Vanished devices are
// marked as such.
func Capture(ctx context.Context, source bluetooth.DeviceSource, store bluetooth.KeyStore) (File, error) {
	var f File

	adapters, err := source.FindAdapters(ctx)
	if err != nil {
		return f, err
	}
	for _, e := range adapters {
		entry := AdapterEntry{Name: e.Name, ID: e.ID}
		v, err := source.ResolveAdapterAddress(ctx, e.ID)
		switch {
		case err == nil:
			entry.Address = bluetooth.AddressFromUint64(v).Colon()
		case ctx.Err() != nil:
			return f, ctx.Err()
		default:
			entry.ResolveError = err.Error()
		}
		f.Adapters = append(f.Adapters, entry)
	}

	known := map[bluetooth.Address]map[bluetooth.Address]bool{}
	if f.ClassicDevices, err = captureDevices(ctx, source, source.FindClassicDevices, known); err != nil {
		return f, err
	}
	if f.LEDevices, err = captureDevices(ctx, source, source.FindLEDevices, known); err != nil {
		return f, err
	}

	names, err := store.ListAdapterAddresses(ctx)
	if err != nil {
		return f, err
	}
	lister, _ := store.(bluetooth.DeviceLister)
	f.Keys = make(map[string]AdapterKeys, len(names))
	for _, n := range names {
		adapter, err := bluetooth.ParseAddress(n)
		if err != nil {
			continue
		}
		devices := known[adapter]
		if devices == nil {
			devices = map[bluetooth.Address]bool{}
		}
		if lister != nil {
			listed, err := lister.ListDeviceAddresses(ctx, adapter)
			if err != nil {
				return f, err
			}
			for _, dn := range listed {
				if d, err := bluetooth.ParseAddress(dn); err == nil {
					devices[d] = true
				}
			}
		}
		keys, err := captureKeys(ctx, store, adapter, devices)
		if err != nil {
			return f, err
		}
		f.Keys[keyName(adapter)] = keys
	}
	return f, nil
}

func captureDevices(ctx context.Context, source bluetooth.DeviceSource, find func(context.Context) ([]bluetooth.Entry, error), known map[bluetooth.Address]map[bluetooth.Address]bool) ([]DeviceEntry, error) {
	entries, err := find(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceEntry, 0, len(entries))
	for _, e := range entries {
		d := DeviceEntry{Name: e.Name, ID: e.ID}
		v, ok, err := source.ResolveDeviceAddress(ctx, e.ID)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			d.ResolveError = err.Error()
		case !ok:
			d.Vanished = true
		default:
			addr := bluetooth.AddressFromUint64(v)
			d.Address = addr.Colon()
			if adapter, _, err := bluetooth.ParseCompositeID(e.ID); err == nil {
				if known[adapter] == nil {
					known[adapter] = map[bluetooth.Address]bool{}
				}
				known[adapter][addr] = true
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func captureKeys(ctx context.Context, store bluetooth.KeyStore, adapter bluetooth.Address, devices map[bluetooth.Address]bool) (AdapterKeys, error) {
	keys := AdapterKeys{LinkKeys: map[string]Value{}, Devices: map[string]DeviceKeys{}}
	ordered := make([]bluetooth.Address, 0, len(devices))
	for d := range devices {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Uint64() < ordered[j].Uint64() })

	for _, d := range ordered {
		link, err := store.ClassicLinkKey(ctx, adapter, d)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return keys, ctxErr
			}
		} else if !link.IsAbsent() {
			keys.LinkKeys[keyName(d)] = Value{link}
		}

		le, err := store.LEKeys(ctx, adapter, d)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return keys, ctxErr
			}
			continue
		}
		if le.IRK.IsAbsent() && le.LTK.IsAbsent() && le.EDIV.IsAbsent() && le.ERand.IsAbsent() {
			continue
		}
		keys.Devices[keyName(d)] = DeviceKeys{
			IRK:   Value{le.IRK},
			LTK:   Value{le.LTK},
			EDIV:  Value{le.EDIV},
			ERand: Value{le.ERand},
		}
	}
	return keys, nil
}

func keyName(a bluetooth.Address) string {
	return strings.ToLower(a.String())
}

// WriteFile writes f to path, readable by the owner only.
func WriteFile(path string, f File) error {
	b, err := Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
