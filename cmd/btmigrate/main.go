package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"btmigrate/internal/bluetooth"
	"btmigrate/internal/bluez"
	"btmigrate/internal/db"
	"btmigrate/internal/export"
	"btmigrate/internal/ids"
	"btmigrate/internal/logging"
	"btmigrate/internal/privilege"
	"btmigrate/internal/snapshot"
	"btmigrate/internal/util"
	"btmigrate/internal/winreg"
)

var version = "dev"

const (
	sourceAuto     = "auto"
	sourceBlueZ    = "bluez"
	sourceRegistry = "registry"
	sourceSnapshot = "snapshot"
)

type config struct {
	Export             string
	Source             string
	Snapshot           string
	Capture            string
	BlueZStorage       string
	RestartBluetooth   bool
	IncludeStoreOnly   bool
	History            string
	DataDir            string
	CustomDataDir      string
	LogLevel           string
	LogFormat          string
	LogFile            string
	SkipPrivilegeCheck bool
}

func parseFlags(fs *flag.FlagSet, args []string) (config, error) {
	var cfg config
	fs.StringVar(&cfg.Export, "export", "bt.json", "Path of the JSON export file")
	fs.StringVar(&cfg.Export, "e", "bt.json", "Shorthand for -export")
	fs.StringVar(&cfg.Source, "source", sourceAuto, "Pairing data source: auto|bluez|registry|snapshot")
	fs.StringVar(&cfg.Snapshot, "snapshot", "", "YAML snapshot to read with -source snapshot")
	fs.StringVar(&cfg.Capture, "capture", "", "Also write the raw source view to this YAML snapshot")
	fs.StringVar(&cfg.BlueZStorage, "bluez-storage", bluez.DefaultStorageDir, "BlueZ storage directory")
	fs.BoolVar(&cfg.RestartBluetooth, "restart-bluetooth", false, "Preflight: restart bluetooth service if no adapter is visible (requires root + systemctl)")
	fs.BoolVar(&cfg.IncludeStoreOnly, "include-store-only", false, "Also export devices only present in the key store")
	fs.StringVar(&cfg.History, "history", "", "SQLite export history file (empty disables)")
	fs.StringVar(&cfg.DataDir, "data-dir", "", "Data directory with default/ and custom/ oui.csv (empty disables vendor names)")
	fs.StringVar(&cfg.CustomDataDir, "custom-data-dir", "", "Directory with a custom oui.csv overriding <data-dir>/custom")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&cfg.LogFile, "log-file", "app.log", "Log destination: file path, stdout or stderr")
	fs.BoolVar(&cfg.SkipPrivilegeCheck, "skip-privilege-check", false, "Skip the elevation check (only with -source snapshot)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c *config) validate() error {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	switch c.Source {
	case "", sourceAuto:
		c.Source = sourceBlueZ
		if runtime.GOOS == "windows" {
			c.Source = sourceRegistry
		}
	case sourceBlueZ, sourceRegistry, sourceSnapshot:
	default:
		return fmt.Errorf("unknown -source %q", c.Source)
	}
	if c.Source == sourceSnapshot && strings.TrimSpace(c.Snapshot) == "" {
		return errors.New("-source snapshot needs -snapshot <file>")
	}
	if c.Source != sourceSnapshot && c.SkipPrivilegeCheck {
		return errors.New("-skip-privilege-check only applies to -source snapshot")
	}
	if strings.TrimSpace(c.Export) == "" {
		return errors.New("-export is empty")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown -log-format %q", c.LogFormat)
	}
	return nil
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		util.Linef("[ERROR]", util.ColorYellow, "%v", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogFile}, version)
	if err != nil {
		util.Linef("[ERROR]", util.ColorYellow, "failed to open log: %v", err)
		os.Exit(1)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	printLogo()

	if cfg.SkipPrivilegeCheck {
		util.Line("[PRIVILEGE]", util.ColorGray, "check skipped for snapshot replay")
	} else if err := privilege.Check(); err != nil {
		logger.Error("privilege check failed", "error", err)
		util.Linef("[ERROR]", util.ColorYellow, "%v", err)
		logger.Close()
		os.Exit(1)
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger.Logger, os.Stdout); err != nil {
		if ctx.Err() != nil {
			util.Line("[EXIT]", util.ColorGray, "stopping")
		} else {
			util.Linef("[ERROR]", util.ColorYellow, "%v", err)
		}
		logger.Error("export failed", "error", err)
		cancel()
		logger.Close()
		os.Exit(1)
	}
}

// collaborators are the DeviceSource and KeyStore of one run.
type collaborators struct {
	source bluetooth.DeviceSource
	store  bluetooth.KeyStore
	close  func()
}

func openCollaborators(ctx context.Context, cfg config, log *slog.Logger) (collaborators, error) {
	none := func() {}
	switch cfg.Source {
	case sourceSnapshot:
		s, err := snapshot.Load(cfg.Snapshot)
		if err != nil {
			return collaborators{}, fmt.Errorf("load snapshot: %w", err)
		}
		return collaborators{source: s, store: s, close: none}, nil
	case sourceRegistry:
		r, err := winreg.Open(log.With("component", "winreg"))
		if err != nil {
			return collaborators{}, err
		}
		return collaborators{source: r, store: r, close: none}, nil
	default:
		src, err := bluez.Connect(log.With("component", "bluez"))
		if err != nil {
			return collaborators{}, err
		}
		bluez.Preflight(ctx, src.Conn(), bluez.PreflightOptions{RestartBluetoothService: cfg.RestartBluetooth})
		return collaborators{
			source: src,
			store:  bluez.NewKeyStore(cfg.BlueZStorage),
			close:  func() { _ = src.Conn().Close() },
		}, nil
	}
}

func run(ctx context.Context, cfg config, log *slog.Logger, out io.Writer) error {
	started := time.Now()
	c, err := openCollaborators(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.close()
	util.Flinef(out, "[SOURCE]", util.ColorGray, "%s", cfg.Source)

	if cfg.Capture != "" {
		f, err := snapshot.Capture(ctx, c.source, c.store)
		if err != nil {
			return fmt.Errorf("capture snapshot: %w", err)
		}
		if err := snapshot.WriteFile(cfg.Capture, f); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		util.Flinef(out, "[CAPTURE]", util.ColorGray, "%s", cfg.Capture)
	}

	collector := bluetooth.NewCollector(c.source, c.store, bluetooth.Options{IncludeStoreOnlyDevices: cfg.IncludeStoreOnly}, log.With("component", "collector"))
	adapters, err := collector.Collect(ctx)
	if err != nil {
		return err
	}

	var resolver *ids.Resolver
	dataDir, customDir := strings.TrimSpace(cfg.DataDir), strings.TrimSpace(cfg.CustomDataDir)
	if dataDir != "" || customDir != "" {
		resolver, err = ids.Load(ids.LoadConfig{DataDir: dataDir, CustomDir: customDir})
		if err != nil {
			util.Flinef(out, "[WARN]", util.ColorYellow, "failed to load data files: %v", err)
		}
	}
	printSummary(out, adapters, resolver)
	logKeys(log, adapters)

	if err := export.WriteFile(cfg.Export, adapters); err != nil {
		return err
	}
	util.Flinef(out, "[EXPORT]", util.ColorGreen, "%d adapter(s) written to %s", len(adapters), cfg.Export)

	if cfg.History != "" {
		recordHistory(ctx, cfg, started, adapters, out)
	}
	return nil
}

// recordHistory is best-effort: the export file is already written.
func recordHistory(ctx context.Context, cfg config, started time.Time, adapters []*bluetooth.Adapter, out io.Writer) {
	store, err := db.Open(cfg.History)
	if err != nil {
		util.Flinef(out, "[WARN]", util.ColorYellow, "failed to open history: %v", err)
		return
	}
	defer store.Close()

	if prev, ok, err := store.LastRun(ctx); err == nil && ok {
		missing, err := store.MissingSince(ctx, prev.ID, adapters)
		if err == nil {
			for _, d := range missing {
				util.Flinef(out, "[HISTORY]", util.ColorYellow, "%s (%s) on %s was exported on %s but is gone now",
					d.Name, d.Address, d.AdapterAddress, prev.FinishedAt)
			}
		}
	}
	id, err := store.RecordExport(ctx, db.RunParams{
		Source:     cfg.Source,
		OutputPath: cfg.Export,
		StartedAt:  started,
		StoreOnly:  cfg.IncludeStoreOnly,
	}, adapters)
	if err != nil {
		util.Flinef(out, "[WARN]", util.ColorYellow, "failed to record history: %v", err)
		return
	}
	util.Flinef(out, "[HISTORY]", util.ColorGray, "run %s", id)
}

func printSummary(out io.Writer, adapters []*bluetooth.Adapter, resolver *ids.Resolver) {
	if len(adapters) == 0 {
		util.Fline(out, "[ADAPTER]", util.ColorYellow, "no paired devices found")
		return
	}
	for _, a := range adapters {
		util.Fline(out, "[ADAPTER]", util.ColorCyan, a.String())
		for _, d := range a.Devices {
			util.Flinef(out, "[DEVICE]", util.ColorGray, "%s [%s]", resolver.Annotate(d.String(), d.Address), keyKinds(d))
		}
	}
}

func keyKinds(d *bluetooth.Device) string {
	var kinds []string
	if d.HasClassicKeys() {
		kinds = append(kinds, "classic")
	}
	if d.HasLEKeys() {
		kinds = append(kinds, "le")
	}
	if len(kinds) == 0 {
		return "no keys"
	}
	return strings.Join(kinds, "+")
}

// logKeys records decoded key material at debug level only.
func logKeys(log *slog.Logger, adapters []*bluetooth.Adapter) {
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, a := range adapters {
		for _, d := range a.Devices {
			attrs := []any{"adapter", a.Address.String(), "device", d.Address.String(), "name", d.Name,
				"link_key", d.LinkKey, "irk", d.IRK, "ltk", d.LTK, "ediv", d.EDIV}
			if d.Rand != nil {
				attrs = append(attrs, "rand", *d.Rand)
			}
			log.Debug("device keys", attrs...)
		}
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		// Drain second signal to avoid goroutine leaks in some shells.
		select {
		case <-ch:
		default:
		}
	}()
	return ctx, cancel
}

func printLogo() {
	logo := `
    _/      _/                     _/                            _/
   _/_/_/  _/_/_/_/  _/_/_/  _/_/          _/_/_/  _/  _/_/    _/_/_/_/
  _/    _/  _/      _/    _/    _/  _/  _/    _/  _/_/      _/    _/
 _/    _/  _/      _/    _/    _/  _/  _/    _/  _/        _/    _/
_/_/_/      _/_/  _/    _/    _/  _/    _/_/_/  _/          _/_/_/_/
                                           _/
                                      _/_/
`
	fmt.Println(logo)
	fmt.Println("btmigrate " + version + " - Bluetooth pairing export for dual boot")
}
