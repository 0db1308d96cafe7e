package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// Entry is one enumeration result: a display name and the opaque id the
// source uses for it.
type Entry struct {
	Name string
	ID   string
}

// DeviceSource enumerates adapters and paired devices through the OS.
type DeviceSource interface {
	FindAdapters(ctx context.Context) ([]Entry, error)
	FindClassicDevices(ctx context.Context) ([]Entry, error)
	FindLEDevices(ctx context.Context) ([]Entry, error)
	ResolveAdapterAddress(ctx context.Context, id string) (uint64, error)
	// ResolveDeviceAddress returns ok=false when the device disappeared
	// between enumeration and resolution.
	ResolveDeviceAddress(ctx context.Context, id string) (addr uint64, ok bool, err error)
}

// Skip reasons logged for devices left out of the candidate pool.
const (
	SkipUnrecognizedID  = "unrecognized_id"
	SkipMalformedAddr   = "malformed_address"
	SkipDeviceVanished  = "device_vanished"
	SkipResolveFailed   = "resolve_failed"
	SkipAdapterResolve  = "adapter_resolve_failed"
	SkipStoreAddrFormat = "store_address_malformed"
)

func orDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return log
}

// Reconciler merges the enumerated and key store views into one adapter
// tree and enriches each assigned device with its key material.
type Reconciler struct {
	keys *KeyExtractor
	log  *slog.Logger
}

func NewReconciler(store KeyStore, log *slog.Logger) *Reconciler {
	log = orDiscard(log)
	return &Reconciler{keys: NewKeyExtractor(store, log), log: log}
}

// Reconcile builds the export tree. enumerated adapters keep their names;
// storeOnly adapters are added when no enumerated adapter has the same
// address. Devices not matching any adapter end up in a trailing
// placeholder adapter with a zero address. The error is non-nil only when
// ctx is done.
func (r *Reconciler) Reconcile(ctx context.Context, enumerated, storeOnly []*Adapter, devices []*Device) ([]*Adapter, error) {
	adapters := unionAdapters(enumerated, storeOnly)

	pool := make([]*Device, len(devices))
	copy(pool, devices)
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Name < pool[j].Name })

	for _, a := range adapters {
		var selected, rest []*Device
		for _, d := range pool {
			if d.AdapterAddress == a.Address {
				selected = append(selected, d)
			} else {
				rest = append(rest, d)
			}
		}
		a.Devices = dedupByAddress(selected)
		if dropped := len(selected) - len(a.Devices); dropped > 0 {
			r.log.Debug("duplicate devices dropped", "adapter", a.Address.String(), "count", dropped)
		}
		for _, d := range a.Devices {
			if err := r.keys.Extract(ctx, d); err != nil {
				return nil, err
			}
		}
		pool = rest
	}

	out := adapters[:0]
	for _, a := range adapters {
		if len(a.Devices) == 0 {
			r.log.Debug("adapter without devices dropped", "adapter", a.String())
			continue
		}
		out = append(out, a)
	}

	if len(pool) > 0 {
		unmatched := NewAdapter(UnmatchedAdapterName, Address{})
		unmatched.Devices = dedupByAddress(pool)
		r.log.Info("devices without adapter", "count", len(unmatched.Devices))
		out = append(out, unmatched)
	}
	return out, nil
}

func unionAdapters(lists ...[]*Adapter) []*Adapter {
	seen := make(map[Address]bool)
	var out []*Adapter
	for _, list := range lists {
		for _, a := range list {
			if seen[a.Address] {
				continue
			}
			seen[a.Address] = true
			if a.Devices == nil {
				a.Devices = []*Device{}
			}
			out = append(out, a)
		}
	}
	return out
}

// dedupByAddress keeps the first device for each address.
func dedupByAddress(in []*Device) []*Device {
	seen := make(map[Address]bool, len(in))
	out := make([]*Device, 0, len(in))
	for _, d := range in {
		if seen[d.Address] {
			continue
		}
		seen[d.Address] = true
		out = append(out, d)
	}
	return out
}

// Options tune a Collector.
type Options struct {
	// IncludeStoreOnlyDevices adds devices that only appear in the key store
	// (named "Unknown device(ADDR)") when the store implements DeviceLister.
	IncludeStoreOnlyDevices bool
}

// Collector drives both collaborators and the Reconciler for one run.
type Collector struct {
	source DeviceSource
	store  KeyStore
	opts   Options
	rec    *Reconciler
	log    *slog.Logger
}

func NewCollector(source DeviceSource, store KeyStore, opts Options, log *slog.Logger) *Collector {
	log = orDiscard(log)
	return &Collector{
		source: source,
		store:  store,
		opts:   opts,
		rec:    NewReconciler(store, log),
		log:    log,
	}
}

// Collect enumerates adapters and devices, then reconciles them into the
// export tree.
func (c *Collector) Collect(ctx context.Context) ([]*Adapter, error) {
	enumerated, err := c.enumeratedAdapters(ctx)
	if err != nil {
		return nil, err
	}
	storeOnly, err := c.storeAdapters(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := c.enumeratedDevices(ctx)
	if err != nil {
		return nil, err
	}
	if c.opts.IncludeStoreOnlyDevices {
		extra, err := c.storeDevices(ctx, append(append([]*Adapter{}, enumerated...), storeOnly...), devices)
		if err != nil {
			return nil, err
		}
		devices = append(devices, extra...)
	}
	c.log.Info("enumeration done", "adapters", len(enumerated), "store_adapters", len(storeOnly), "devices", len(devices))
	return c.rec.Reconcile(ctx, enumerated, storeOnly, devices)
}

func (c *Collector) enumeratedAdapters(ctx context.Context) ([]*Adapter, error) {
	entries, err := c.source.FindAdapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("find adapters: %w", err)
	}
	out := make([]*Adapter, 0, len(entries))
	for _, e := range entries {
		v, err := c.source.ResolveAdapterAddress(ctx, e.ID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.log.Debug("adapter skipped", "reason", SkipAdapterResolve, "id", e.ID, "error", err)
			continue
		}
		out = append(out, NewAdapter(e.Name, AddressFromUint64(v)))
	}
	return out, nil
}

func (c *Collector) storeAdapters(ctx context.Context) ([]*Adapter, error) {
	names, err := c.store.ListAdapterAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list key store adapters: %w", err)
	}
	out := make([]*Adapter, 0, len(names))
	for _, n := range names {
		addr, err := ParseAddress(n)
		if err != nil {
			c.log.Debug("key store adapter skipped", "reason", SkipStoreAddrFormat, "name", n, "error", err)
			continue
		}
		out = append(out, NewAdapter(UnknownAdapterName(addr), addr))
	}
	return out, nil
}

func (c *Collector) enumeratedDevices(ctx context.Context) ([]*Device, error) {
	classic, err := c.source.FindClassicDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("find classic devices: %w", err)
	}
	le, err := c.source.FindLEDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("find LE devices: %w", err)
	}

	var out []*Device
	for _, e := range append(classic, le...) {
		adapter, _, err := ParseCompositeID(e.ID)
		if err != nil {
			reason := SkipMalformedAddr
			if errors.Is(err, ErrUnrecognizedDeviceID) {
				reason = SkipUnrecognizedID
			}
			c.log.Debug("device skipped", "reason", reason, "name", e.Name, "id", e.ID, "error", err)
			continue
		}
		v, ok, err := c.source.ResolveDeviceAddress(ctx, e.ID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.log.Debug("device skipped", "reason", SkipResolveFailed, "name", e.Name, "id", e.ID, "error", err)
			continue
		}
		if !ok {
			c.log.Debug("device skipped", "reason", SkipDeviceVanished, "name", e.Name, "id", e.ID)
			continue
		}
		out = append(out, NewDevice(e.Name, AddressFromUint64(v), adapter))
	}
	return out, nil
}

// storeDevices lists key store entries that enumeration did not report.
func (c *Collector) storeDevices(ctx context.Context, adapters []*Adapter, known []*Device) ([]*Device, error) {
	lister, ok := c.store.(DeviceLister)
	if !ok {
		c.log.Debug("key store cannot list devices")
		return nil, nil
	}
	type pair struct{ adapter, device Address }
	enumerated := make(map[pair]bool, len(known))
	for _, d := range known {
		enumerated[pair{d.AdapterAddress, d.Address}] = true
	}
	var out []*Device
	seen := make(map[Address]bool)
	for _, a := range adapters {
		if seen[a.Address] {
			continue
		}
		seen[a.Address] = true
		names, err := lister.ListDeviceAddresses(ctx, a.Address)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.log.Warn("list key store devices failed", "adapter", a.Address.String(), "error", err)
			continue
		}
		for _, n := range names {
			addr, err := ParseAddress(n)
			if err != nil {
				c.log.Debug("key store device skipped", "reason", SkipStoreAddrFormat, "name", n, "error", err)
				continue
			}
			if enumerated[pair{a.Address, addr}] {
				continue
			}
			enumerated[pair{a.Address, addr}] = true
			c.log.Debug("adding device from key store", "adapter", a.Address.String(), "device", addr.String())
			out = append(out, NewDevice(UnknownDeviceName(addr), addr, a.Address))
		}
	}
	return out, nil
}
