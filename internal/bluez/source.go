// Package bluez reads adapters, paired devices and pairing keys from a
// Linux BlueZ installation: enumeration over the system D-Bus, keys from
// the BlueZ storage directory.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"btmigrate/internal/bluetooth"
)

// Source implements bluetooth.DeviceSource on top of BlueZ. Device ids are
// synthesized in the composite form ("Bluetooth#Bluetooth<adapter>-<device>")
// and mapped back to their D-Bus object paths for resolution.
type Source struct {
	conn *dbus.Conn
	log  *slog.Logger

	mu    sync.Mutex
	paths map[string]dbus.ObjectPath
}

// Connect opens the system bus.
func Connect(log *slog.Logger) (*Source, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("dbus SystemBus: %w", err)
	}
	return NewSource(conn, log), nil
}

func NewSource(conn *dbus.Conn, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{conn: conn, log: log, paths: map[string]dbus.ObjectPath{}}
}

func (s *Source) Conn() *dbus.Conn {
	return s.conn
}

func (s *Source) FindAdapters(ctx context.Context) ([]bluetooth.Entry, error) {
	managed, err := getManagedObjects(ctx, s.conn)
	if err != nil {
		return nil, err
	}
	var out []bluetooth.Entry
	for _, a := range adaptersFromObjects(managed) {
		s.log.Debug("adapter found", "path", string(a.Path), "name", a.Name, "address", a.Address)
		out = append(out, bluetooth.Entry{Name: a.Name, ID: string(a.Path)})
	}
	return out, nil
}

func (s *Source) FindClassicDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return s.findDevices(ctx, bluetooth.TagClassic, deviceInfo.isClassicLikely)
}

func (s *Source) FindLEDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return s.findDevices(ctx, bluetooth.TagLE, deviceInfo.isLELikely)
}

func (s *Source) findDevices(ctx context.Context, tag string, match func(deviceInfo) bool) ([]bluetooth.Entry, error) {
	managed, err := getManagedObjects(ctx, s.conn)
	if err != nil {
		return nil, err
	}
	adapterAddr := map[dbus.ObjectPath]string{}
	for _, a := range adaptersFromObjects(managed) {
		adapterAddr[a.Path] = a.Address
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bluetooth.Entry
	for _, d := range devicesFromObjects(managed) {
		if !d.Paired && !d.Bonded {
			continue
		}
		if !match(d) {
			continue
		}
		id := compositeID(tag, adapterAddr[d.Adapter], d.Address)
		if kind, sub := ClassifyAddress(d.Address, d.AddressType); sub == SubtypeResolvablePrivate {
			s.log.Warn("device uses a resolvable private address", "device", d.Address, "type", kind)
		}
		s.paths[id] = d.Path
		out = append(out, bluetooth.Entry{Name: d.Name, ID: id})
	}
	return out, nil
}

// compositeID keeps unparsable addresses verbatim so the collector can
// report them instead of silently dropping the device here.
func compositeID(tag, adapter, device string) string {
	a, aerr := bluetooth.ParseAddress(adapter)
	d, derr := bluetooth.ParseAddress(device)
	if aerr != nil || derr != nil {
		return tag + "#" + tag + strings.ToLower(adapter) + "-" + strings.ToLower(device)
	}
	return bluetooth.CompositeID(tag, a, d)
}

func (s *Source) ResolveAdapterAddress(ctx context.Context, id string) (uint64, error) {
	v, err := s.getProperty(ctx, dbus.ObjectPath(id), adapterIface, "Address")
	if err != nil {
		return 0, err
	}
	addr, err := bluetooth.ParseAddress(v)
	if err != nil {
		return 0, err
	}
	return addr.Uint64(), nil
}

func (s *Source) ResolveDeviceAddress(ctx context.Context, id string) (uint64, bool, error) {
	s.mu.Lock()
	path, ok := s.paths[id]
	s.mu.Unlock()
	if !ok {
		return 0, false, nil
	}
	v, err := s.getProperty(ctx, path, deviceIface, "Address")
	if err != nil {
		if isVanished(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	addr, err := bluetooth.ParseAddress(v)
	if err != nil {
		return 0, false, err
	}
	return addr.Uint64(), true, nil
}

func (s *Source) getProperty(ctx context.Context, path dbus.ObjectPath, iface, name string) (string, error) {
	obj := s.conn.Object(bluezDest, path)
	var v dbus.Variant
	if err := obj.CallWithContext(ctx, propertiesGet, 0, iface, name).Store(&v); err != nil {
		return "", err
	}
	str, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("%s.%s on %s: unexpected type %s", iface, name, path, v.Signature())
	}
	return str, nil
}

// isVanished matches the errors BlueZ returns for removed objects.
func isVanished(err error) bool {
	var name string
	var derr dbus.Error
	var pderr *dbus.Error
	switch {
	case errors.As(err, &derr):
		name = derr.Name
	case errors.As(err, &pderr):
		name = pderr.Name
	default:
		return false
	}
	switch name {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.UnknownInterface",
		"org.bluez.Error.DoesNotExist":
		return true
	}
	return false
}
