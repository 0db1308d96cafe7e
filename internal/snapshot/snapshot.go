// Package snapshot replays a captured host state from a YAML file. It
// implements both bluetooth.DeviceSource and bluetooth.KeyStore so exports
// can be produced (and reconciliation reproduced) away from the machine the
// data came from.
//
// Layout:
//
//	adapters:
//	  - name: Laptop BT
//	    id: adapter0
//	    address: "AA:AA:AA:AA:AA:AA"
//	classic_devices:
//	  - name: Headset
//	    id: "Bluetooth#Bluetoothaa:aa:aa:aa:aa:aa-22:22:22:22:22:22"
//	le_devices:
//	  - name: Mouse
//	    id: "BluetoothLE#BluetoothLEaa:aa:aa:aa:aa:aa-11:11:11:11:11:11"
//	    vanished: true
//	  - name: Keyboard
//	    id: "BluetoothLE#BluetoothLEaa:aa:aa:aa:aa:aa-33:33:33:33:33:33"
//	    resolve_error: "lookup failed"
//	keys:
//	  aaaaaaaaaaaa:
//	    link_keys:
//	      "222222222222": "0f0e0d0c0b0a09080706050403020100"
//	    devices:
//	      "111111111111":
//	        IRK: "00112233445566778899aabbccddeeff"
//	        EDIV: 0x3a4b
//	        ERand: 578437695752307201
//	        LTK: !malformed "[LongTermKey] Key: not hex"
//
// Quoted strings are hex byte arrays, plain numbers are integers. A
// !malformed value replays a stored entry that could not be read. An
// entry carrying resolve_error fails to resolve with that message.
package snapshot

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"btmigrate/internal/bluetooth"
)

type File struct {
	Adapters       []AdapterEntry         `yaml:"adapters"`
	ClassicDevices []DeviceEntry          `yaml:"classic_devices"`
	LEDevices      []DeviceEntry          `yaml:"le_devices"`
	Keys           map[string]AdapterKeys `yaml:"keys"`
}

type AdapterEntry struct {
	Name         string `yaml:"name"`
	ID           string `yaml:"id"`
	Address      string `yaml:"address"`
	ResolveError string `yaml:"resolve_error,omitempty"`
}

type DeviceEntry struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
	// Address overrides the device part of ID when resolving.
	Address      string `yaml:"address,omitempty"`
	Vanished     bool   `yaml:"vanished,omitempty"`
	ResolveError string `yaml:"resolve_error,omitempty"`
}

type AdapterKeys struct {
	LinkKeys map[string]Value      `yaml:"link_keys"`
	Devices  map[string]DeviceKeys `yaml:"devices"`
}

type DeviceKeys struct {
	IRK   Value `yaml:"IRK"`
	LTK   Value `yaml:"LTK"`
	EDIV  Value `yaml:"EDIV"`
	ERand Value `yaml:"ERand"`
}

const malformedTag = "!malformed"

// Value wraps bluetooth.Value for YAML decoding.
type Value struct {
	bluetooth.Value
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: key value must be a scalar", node.Line)
	}
	switch node.Tag {
	case malformedTag:
		v.Value = bluetooth.Malformed(node.Value)
	case "!!null":
		v.Value = bluetooth.Absent
	case "!!int":
		n, err := strconv.ParseUint(strings.ReplaceAll(node.Value, "_", ""), 0, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		v.Value = bluetooth.Integer(n)
	case "!!str":
		raw := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(node.Value)
		b, err := hex.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("line %d: hex value: %w", node.Line, err)
		}
		v.Value = bluetooth.Bytes(b)
	default:
		return fmt.Errorf("line %d: unsupported value type %s", node.Line, node.Tag)
	}
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	if n, ok := v.AsInteger(); ok {
		return n, nil
	}
	if b, ok := v.AsBytes(); ok {
		return hex.EncodeToString(b), nil
	}
	if v.Kind() == bluetooth.KindMalformed {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: malformedTag, Value: v.Reason(), Style: yaml.DoubleQuotedStyle}, nil
	}
	return nil, nil
}

// Snapshot serves a decoded File. Key store lookups normalize address
// spelling, so "AA:AA:.." and "aaaa.." keys are equivalent.
type Snapshot struct {
	file     File
	adapters map[string]AdapterEntry
	devices  map[string]DeviceEntry
	keys     map[bluetooth.Address]AdapterKeys
	rawKeys  []string
}

// Load reads and decodes a snapshot file.
func Load(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes snapshot YAML.
func Parse(b []byte) (*Snapshot, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return New(f), nil
}

// New indexes f for lookups.
func New(f File) *Snapshot {
	s := &Snapshot{
		file:     f,
		adapters: make(map[string]AdapterEntry, len(f.Adapters)),
		devices:  make(map[string]DeviceEntry, len(f.ClassicDevices)+len(f.LEDevices)),
		keys:     make(map[bluetooth.Address]AdapterKeys, len(f.Keys)),
	}
	for _, a := range f.Adapters {
		s.adapters[a.ID] = a
	}
	for _, d := range f.ClassicDevices {
		s.devices[d.ID] = d
	}
	for _, d := range f.LEDevices {
		s.devices[d.ID] = d
	}
	for name, k := range f.Keys {
		s.rawKeys = append(s.rawKeys, name)
		addr, err := bluetooth.ParseAddress(name)
		if err != nil {
			// Kept in rawKeys so the collector reports it.
			continue
		}
		s.keys[addr] = k
	}
	sort.Strings(s.rawKeys)
	return s
}

// Marshal encodes f back to YAML.
func Marshal(f File) ([]byte, error) {
	return yaml.Marshal(f)
}

func (s *Snapshot) FindAdapters(ctx context.Context) ([]bluetooth.Entry, error) {
	out := make([]bluetooth.Entry, 0, len(s.file.Adapters))
	for _, a := range s.file.Adapters {
		out = append(out, bluetooth.Entry{Name: a.Name, ID: a.ID})
	}
	return out, ctx.Err()
}

func (s *Snapshot) FindClassicDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return deviceEntries(s.file.ClassicDevices), ctx.Err()
}

func (s *Snapshot) FindLEDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return deviceEntries(s.file.LEDevices), ctx.Err()
}

func deviceEntries(in []DeviceEntry) []bluetooth.Entry {
	out := make([]bluetooth.Entry, 0, len(in))
	for _, d := range in {
		out = append(out, bluetooth.Entry{Name: d.Name, ID: d.ID})
	}
	return out
}

func (s *Snapshot) ResolveAdapterAddress(ctx context.Context, id string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a, ok := s.adapters[id]
	if !ok {
		return 0, fmt.Errorf("unknown adapter id %q", id)
	}
	if a.ResolveError != "" {
		return 0, errors.New(a.ResolveError)
	}
	addr, err := bluetooth.ParseAddress(a.Address)
	if err != nil {
		return 0, err
	}
	return addr.Uint64(), nil
}

func (s *Snapshot) ResolveDeviceAddress(ctx context.Context, id string) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	d, ok := s.devices[id]
	if !ok || d.Vanished {
		return 0, false, nil
	}
	if d.ResolveError != "" {
		return 0, false, errors.New(d.ResolveError)
	}
	if d.Address != "" {
		addr, err := bluetooth.ParseAddress(d.Address)
		if err != nil {
			return 0, false, err
		}
		return addr.Uint64(), true, nil
	}
	_, dev, err := bluetooth.ParseCompositeID(id)
	if err != nil {
		return 0, false, err
	}
	return dev.Uint64(), true, nil
}

func (s *Snapshot) ListAdapterAddresses(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.rawKeys))
	copy(out, s.rawKeys)
	return out, ctx.Err()
}

func (s *Snapshot) ListDeviceAddresses(ctx context.Context, adapter bluetooth.Address) ([]string, error) {
	k, ok := s.keys[adapter]
	if !ok {
		return nil, ctx.Err()
	}
	seen := map[string]bool{}
	var out []string
	for name := range k.Devices {
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	for name := range k.LinkKeys {
		if seen[strings.ToLower(name)] {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, ctx.Err()
}

func (s *Snapshot) ClassicLinkKey(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.Value, error) {
	if err := ctx.Err(); err != nil {
		return bluetooth.Absent, err
	}
	k, ok := s.keys[adapter]
	if !ok {
		return bluetooth.Absent, nil
	}
	for name, v := range k.LinkKeys {
		if sameAddress(name, device) {
			return v.Value, nil
		}
	}
	return bluetooth.Absent, nil
}

func (s *Snapshot) LEKeys(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.LEKeys, error) {
	if err := ctx.Err(); err != nil {
		return bluetooth.LEKeys{}, err
	}
	k, ok := s.keys[adapter]
	if !ok {
		return bluetooth.LEKeys{}, nil
	}
	for name, dk := range k.Devices {
		if sameAddress(name, device) {
			return bluetooth.LEKeys{IRK: dk.IRK.Value, LTK: dk.LTK.Value, EDIV: dk.EDIV.Value, ERand: dk.ERand.Value}, nil
		}
	}
	return bluetooth.LEKeys{}, nil
}

func sameAddress(name string, addr bluetooth.Address) bool {
	a, err := bluetooth.ParseAddress(name)
	return err == nil && a == addr
}
