package bluez

import (
	"context"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezDest     = "org.bluez"
	adapterIface  = "org.bluez.Adapter1"
	deviceIface   = "org.bluez.Device1"
	objectManager = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	propertiesGet = "org.freedesktop.DBus.Properties.Get"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func getManagedObjects(ctx context.Context, conn *dbus.Conn) (managedObjects, error) {
	root := conn.Object(bluezDest, dbus.ObjectPath("/"))
	call := root.CallWithContext(ctx, objectManager, 0)
	if call.Err != nil {
		return nil, call.Err
	}
	var managed managedObjects
	if err := call.Store(&managed); err != nil {
		return nil, err
	}
	return managed, nil
}

type adapterInfo struct {
	Path    dbus.ObjectPath
	Name    string
	Address string
}

type deviceInfo struct {
	Path          dbus.ObjectPath
	Adapter       dbus.ObjectPath
	Name          string
	Address       string
	AddressType   string
	Class         uint32
	LegacyPairing bool
	Paired        bool
	Bonded        bool
	UUIDs         []string
}

// adaptersFromObjects lists Adapter1 objects ordered by path.
func adaptersFromObjects(managed managedObjects) []adapterInfo {
	var out []adapterInfo
	for path, ifaces := range managed {
		ad, ok := ifaces[adapterIface]
		if !ok {
			continue
		}
		name, _ := getString(ad, "Alias")
		if name == "" {
			name, _ = getString(ad, "Name")
		}
		addr, _ := getString(ad, "Address")
		out = append(out, adapterInfo{Path: path, Name: name, Address: strings.ToUpper(strings.TrimSpace(addr))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// devicesFromObjects lists Device1 objects ordered by path.
func devicesFromObjects(managed managedObjects) []deviceInfo {
	var out []deviceInfo
	for path, ifaces := range managed {
		dev1, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		d := deviceInfo{Path: path}
		d.Address, _ = getString(dev1, "Address")
		d.Address = strings.ToUpper(strings.TrimSpace(d.Address))
		d.Name, _ = getString(dev1, "Name")
		if d.Name == "" {
			d.Name, _ = getString(dev1, "Alias")
		}
		d.AddressType, _ = getString(dev1, "AddressType")
		if v, ok := dev1["Adapter"]; ok {
			if p, ok := v.Value().(dbus.ObjectPath); ok {
				d.Adapter = p
			}
		}
		if d.Adapter == "" {
			d.Adapter = parentPath(path)
		}
		if v, ok := dev1["Class"]; ok {
			if c, ok := v.Value().(uint32); ok {
				d.Class = c
			}
		}
		d.LegacyPairing = getBool(dev1, "LegacyPairing")
		d.Paired = getBool(dev1, "Paired")
		d.Bonded = getBool(dev1, "Bonded")
		if v, ok := dev1["UUIDs"]; ok {
			d.UUIDs, _ = v.Value().([]string)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// isClassicLikely guesses BR/EDR from the class of device and pairing mode.
func (d deviceInfo) isClassicLikely() bool {
	if strings.EqualFold(d.AddressType, "random") {
		return false
	}
	if d.Class != 0 {
		return true
	}
	if d.LegacyPairing {
		return true
	}
	return false
}

// isLELikely: random addresses are LE only; public addresses without a
// class of device are most likely LE as well.
func (d deviceInfo) isLELikely() bool {
	if strings.EqualFold(d.AddressType, "random") {
		return true
	}
	return !d.isClassicLikely()
}

func parentPath(p dbus.ObjectPath) dbus.ObjectPath {
	s := string(p)
	i := strings.LastIndex(s, "/")
	if i <= 0 {
		return ""
	}
	return dbus.ObjectPath(s[:i])
}

func getString(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", false
	}
	return s, true
}

func getBool(props map[string]dbus.Variant, key string) bool {
	v, ok := props[key]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)
	return b
}
