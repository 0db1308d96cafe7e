package bluez

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"btmigrate/internal/bluetooth"
	"btmigrate/internal/util"
)

// DefaultStorageDir is where bluetoothd keeps pairing data.
const DefaultStorageDir = "/var/lib/bluetooth"

// KeyStore implements bluetooth.KeyStore over the BlueZ storage directory:
//
//	<dir>/<ADAPTER>/<DEVICE>/info
//
// where info is an INI file with [LinkKey], [LongTermKey] and
// [IdentityResolvingKey] sections.
//
// BlueZ keeps Rand in the byte order the export uses; it is returned
// reversed so that values look the same as in the Windows key store, where
// ERand is stored the other way round.
type KeyStore struct {
	dir string
}

func NewKeyStore(dir string) *KeyStore {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultStorageDir
	}
	return &KeyStore{dir: dir}
}

func (k *KeyStore) ListAdapterAddresses(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := macDirs(k.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return names, err
}

func (k *KeyStore) ListDeviceAddresses(ctx context.Context, adapter bluetooth.Address) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(k.dir, adapter.Colon())
	names, err := macDirs(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if _, err := os.Stat(filepath.Join(dir, n, "info")); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (k *KeyStore) ClassicLinkKey(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.Value, error) {
	info, err := k.load(ctx, adapter, device)
	if err != nil || info == nil {
		return bluetooth.Absent, err
	}
	return hexKey(info, "LinkKey"), nil
}

func (k *KeyStore) LEKeys(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.LEKeys, error) {
	var out bluetooth.LEKeys
	info, err := k.load(ctx, adapter, device)
	if err != nil || info == nil {
		return out, err
	}
	out.IRK = hexKey(info, "IdentityResolvingKey")

	ltkSection := ""
	for _, name := range []string{"LongTermKey", "PeripheralLongTermKey", "SlaveLongTermKey"} {
		if sec, err := info.GetSection(name); err == nil && sec.HasKey("Key") {
			ltkSection = name
			break
		}
	}
	if ltkSection == "" {
		return out, nil
	}
	out.LTK = hexKey(info, ltkSection)
	sec := info.Section(ltkSection)
	out.EDIV = intKey(sec, "EDiv", false)
	out.ERand = intKey(sec, "Rand", true)
	return out, nil
}

// load returns nil without error when the device has no info file.
func (k *KeyStore) load(ctx context.Context, adapter, device bluetooth.Address) (*ini.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(k.dir, adapter.Colon(), device.Colon(), "info")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// hexKey reads Key from section. A value that is not hex comes back
// Malformed.
func hexKey(f *ini.File, section string) bluetooth.Value {
	sec, err := f.GetSection(section)
	if err != nil || !sec.HasKey("Key") {
		return bluetooth.Absent
	}
	raw := strings.TrimSpace(sec.Key("Key").String())
	b, err := hex.DecodeString(raw)
	if err != nil {
		return bluetooth.Malformed(fmt.Sprintf("[%s] Key: %v", section, err))
	}
	return bluetooth.Bytes(b)
}

// intKey reads a decimal value; reversed swaps its byte order.
func intKey(sec *ini.Section, name string, reversed bool) bluetooth.Value {
	if !sec.HasKey(name) {
		return bluetooth.Absent
	}
	v, err := sec.Key(name).Uint64()
	if err != nil {
		return bluetooth.Malformed(fmt.Sprintf("[%s] %s: %v", sec.Name(), name, err))
	}
	if reversed {
		v = bluetooth.ReverseBytes(v)
	}
	return bluetooth.Integer(v)
}

// macDirs lists subdirectories named like a colon separated address.
func macDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || !util.IsMACAddress(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}
