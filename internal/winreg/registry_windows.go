//go:build windows

package winreg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sys/windows/registry"

	"btmigrate/internal/bluetooth"
)

const access = registry.READ | registry.WOW64_64KEY

// Registry implements bluetooth.DeviceSource, bluetooth.KeyStore and
// bluetooth.DeviceLister over the BTHPORT registry hive.
//
// The registry has no adapter display names, so FindAdapters reports
// nothing and adapters are named from the key store. Devices are listed
// from the same Keys subtree the keys are read from, so on Windows the
// enumerated and key store views always agree.
type Registry struct {
	log *slog.Logger
}

// Open checks that the Keys subtree is readable.
func Open(log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, keysPath, access)
	if err != nil {
		return nil, fmt.Errorf(`open HKLM\%s: %w`, keysPath, err)
	}
	k.Close()
	return &Registry{log: log}, nil
}

func (r *Registry) FindAdapters(ctx context.Context) ([]bluetooth.Entry, error) {
	return nil, ctx.Err()
}

func (r *Registry) ResolveAdapterAddress(ctx context.Context, id string) (uint64, error) {
	a, err := bluetooth.ParseAddress(id)
	if err != nil {
		return 0, err
	}
	return a.Uint64(), nil
}

func (r *Registry) FindClassicDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return r.findDevices(ctx, bluetooth.TagClassic, func(k registry.Key) ([]string, error) {
		return k.ReadValueNames(-1)
	})
}

func (r *Registry) FindLEDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return r.findDevices(ctx, bluetooth.TagLE, func(k registry.Key) ([]string, error) {
		return k.ReadSubKeyNames(-1)
	})
}

func (r *Registry) findDevices(ctx context.Context, tag string, list func(registry.Key) ([]string, error)) ([]bluetooth.Entry, error) {
	adapters, err := r.ListAdapterAddresses(ctx)
	if err != nil {
		return nil, err
	}
	var out []bluetooth.Entry
	for _, an := range adapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		adapter, err := bluetooth.ParseAddress(an)
		if err != nil {
			continue
		}
		names, err := r.readNames(keysPath+`\`+an, list)
		if err != nil {
			r.log.Warn("read adapter key failed", "adapter", an, "error", err)
			continue
		}
		for _, n := range names {
			device, err := bluetooth.ParseAddress(n)
			if err != nil {
				continue
			}
			name := r.deviceName(device, tag == bluetooth.TagLE)
			out = append(out, bluetooth.Entry{Name: name, ID: bluetooth.CompositeID(tag, adapter, device)})
		}
	}
	return out, nil
}

// ResolveDeviceAddress reports ok=false once the pairing is gone from the
// Keys subtree.
func (r *Registry) ResolveDeviceAddress(ctx context.Context, id string) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	adapter, device, err := bluetooth.ParseCompositeID(id)
	if err != nil {
		return 0, false, err
	}
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, keysPath+`\`+regName(adapter), access)
	if errors.Is(err, registry.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer k.Close()

	if _, _, err := k.GetValue(regName(device), nil); err == nil {
		return device.Uint64(), true, nil
	}
	sub, err := registry.OpenKey(k, regName(device), access)
	if errors.Is(err, registry.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	sub.Close()
	return device.Uint64(), true, nil
}

func (r *Registry) ListAdapterAddresses(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.readNames(keysPath, func(k registry.Key) ([]string, error) {
		return k.ReadSubKeyNames(-1)
	})
}

func (r *Registry) ListDeviceAddresses(ctx context.Context, adapter bluetooth.Address) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := keysPath + `\` + regName(adapter)
	values, err := r.readNames(path, func(k registry.Key) ([]string, error) { return k.ReadValueNames(-1) })
	if err != nil {
		return nil, err
	}
	subkeys, err := r.readNames(path, func(k registry.Key) ([]string, error) { return k.ReadSubKeyNames(-1) })
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, n := range append(values, subkeys...) {
		n = strings.ToLower(n)
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Registry) ClassicLinkKey(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.Value, error) {
	if err := ctx.Err(); err != nil {
		return bluetooth.Absent, err
	}
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, keysPath+`\`+regName(adapter), access)
	if errors.Is(err, registry.ErrNotExist) {
		return bluetooth.Absent, nil
	}
	if err != nil {
		return bluetooth.Absent, err
	}
	defer k.Close()
	return readValue(k, regName(device), isNotExist), nil
}

func (r *Registry) LEKeys(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.LEKeys, error) {
	var out bluetooth.LEKeys
	if err := ctx.Err(); err != nil {
		return out, err
	}
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, keysPath+`\`+regName(adapter)+`\`+regName(device), access)
	if errors.Is(err, registry.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	defer k.Close()

	out.IRK = readValue(k, "IRK", isNotExist)
	out.LTK = readValue(k, "LTK", isNotExist)
	out.EDIV = readValue(k, "EDIV", isNotExist)
	out.ERand = readValue(k, "ERand", isNotExist)
	return out, nil
}

// readNames returns the address-shaped names listed under path, or none
// when path does not exist.
func (r *Registry) readNames(path string, list func(registry.Key) ([]string, error)) ([]string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, path, access)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf(`open HKLM\%s: %w`, path, err)
	}
	defer k.Close()
	names, err := list(k)
	if err != nil {
		return nil, fmt.Errorf(`list HKLM\%s: %w`, path, err)
	}
	out := names[:0]
	for _, n := range names {
		if isAddressName(n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

// deviceName looks the device up under Devices, then for LE devices under
// Enum\BTHLE. An empty result makes the collector fall back to the address.
func (r *Registry) deviceName(device bluetooth.Address, le bool) string {
	if k, err := registry.OpenKey(registry.LOCAL_MACHINE, devicesPath+`\`+regName(device), access); err == nil {
		b, _, err := k.GetBinaryValue("Name")
		k.Close()
		if err == nil {
			if name := decodeName(b); name != "" {
				return name
			}
		}
	}
	if le {
		if name := r.bthleFriendlyName(device); name != "" {
			return name
		}
	}
	return bluetooth.UnknownDeviceName(device)
}

func (r *Registry) bthleFriendlyName(device bluetooth.Address) string {
	enum, err := registry.OpenKey(registry.LOCAL_MACHINE, bthleEnumPath, registry.ENUMERATE_SUB_KEYS|registry.WOW64_64KEY)
	if err != nil {
		return ""
	}
	defer enum.Close()
	subs, err := enum.ReadSubKeyNames(-1)
	if err != nil {
		return ""
	}
	prefix := strings.ToLower(bthleDevicePrefix(device))
	for _, s := range subs {
		if !strings.HasPrefix(strings.ToLower(s), prefix) {
			continue
		}
		dev, err := registry.OpenKey(enum, s, access)
		if err != nil {
			continue
		}
		instances, _ := dev.ReadSubKeyNames(-1)
		for _, inst := range instances {
			ik, err := registry.OpenKey(dev, inst, registry.QUERY_VALUE|registry.WOW64_64KEY)
			if err != nil {
				continue
			}
			name, _, err := ik.GetStringValue("FriendlyName")
			ik.Close()
			if err == nil && strings.TrimSpace(name) != "" {
				dev.Close()
				return strings.TrimSpace(name)
			}
		}
		dev.Close()
	}
	return ""
}

func isNotExist(err error) bool {
	return errors.Is(err, registry.ErrNotExist)
}
