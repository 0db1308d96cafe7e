//go:build !windows

package winreg

import (
	"context"
	"log/slog"

	"btmigrate/internal/bluetooth"
)

// Registry is only functional on Windows.
type Registry struct{}

func Open(log *slog.Logger) (*Registry, error) {
	return nil, ErrUnsupported
}

func (r *Registry) FindAdapters(ctx context.Context) ([]bluetooth.Entry, error) {
	return nil, ErrUnsupported
}

func (r *Registry) FindClassicDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return nil, ErrUnsupported
}

func (r *Registry) FindLEDevices(ctx context.Context) ([]bluetooth.Entry, error) {
	return nil, ErrUnsupported
}

func (r *Registry) ResolveAdapterAddress(ctx context.Context, id string) (uint64, error) {
	return 0, ErrUnsupported
}

func (r *Registry) ResolveDeviceAddress(ctx context.Context, id string) (uint64, bool, error) {
	return 0, false, ErrUnsupported
}

func (r *Registry) ListAdapterAddresses(ctx context.Context) ([]string, error) {
	return nil, ErrUnsupported
}

func (r *Registry) ListDeviceAddresses(ctx context.Context, adapter bluetooth.Address) ([]string, error) {
	return nil, ErrUnsupported
}

func (r *Registry) ClassicLinkKey(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.Value, error) {
	return bluetooth.Absent, ErrUnsupported
}

func (r *Registry) LEKeys(ctx context.Context, adapter, device bluetooth.Address) (bluetooth.LEKeys, error) {
	return bluetooth.LEKeys{}, ErrUnsupported
}
