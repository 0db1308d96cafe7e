package bluez

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"

	"btmigrate/internal/util"
)

type PreflightOptions struct {
	// RestartBluetoothService restarts an inactive bluetooth unit when
	// running as root.
	RestartBluetoothService bool
	// Settle is how long to wait after a restart before re-checking.
	Settle time.Duration
}

// Preflight reports whether BlueZ exposes at least one adapter. Problems
// are printed to the console; the export still runs from the key store.
func Preflight(ctx context.Context, conn *dbus.Conn, opt PreflightOptions) bool {
	if countAdapters(ctx, conn) > 0 {
		return true
	}
	util.Line("[PREFLIGHT]", util.ColorYellow, "no adapters on org.bluez")
	if !opt.RestartBluetoothService || !util.IsRoot() {
		return false
	}
	if util.ServiceIsActive(ctx, "bluetooth") {
		return false
	}
	util.Line("[PREFLIGHT]", util.ColorGray, "bluetooth service inactive -> restarting")
	if err := util.RestartService(ctx, "bluetooth"); err != nil {
		util.Linef("[PREFLIGHT]", util.ColorYellow, "restart bluetooth: %v", err)
		return false
	}

	settle := opt.Settle
	if settle <= 0 {
		settle = 1500 * time.Millisecond
	}
	t := time.NewTimer(settle)
	select {
	case <-ctx.Done():
		t.Stop()
		return false
	case <-t.C:
	}
	if n := countAdapters(ctx, conn); n > 0 {
		util.Linef("[PREFLIGHT]", util.ColorGray, "%d adapter(s) after restart", n)
		return true
	}
	util.Line("[PREFLIGHT]", util.ColorYellow, "still no adapters")
	return false
}

func countAdapters(ctx context.Context, conn *dbus.Conn) int {
	if conn == nil {
		return 0
	}
	managed, err := getManagedObjects(ctx, conn)
	if err != nil {
		util.Linef("[PREFLIGHT]", util.ColorYellow, "GetManagedObjects: %v", err)
		return 0
	}
	return len(adaptersFromObjects(managed))
}
