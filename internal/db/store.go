package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"btmigrate/internal/bluetooth"
)

const timeLayout = "2006-01-02 15:04:05"

// Store keeps a history of export runs: when, from which source, to which
// file, and which devices were exported with which kinds of keys. Key
// material itself is never stored.
type Store struct {
	mu sync.Mutex
	db *sql.DB

	now func() time.Time
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Foreign keys are disabled by default in SQLite; enable per-connection.
	_, _ = db.Exec(`PRAGMA foreign_keys = ON;`)
	// SQLite is effectively single-writer; keep one connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now}
	if err := s.Initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS export_runs (
	id TEXT PRIMARY KEY,
	started_at TEXT,
	finished_at TEXT,
	source TEXT,
	output_path TEXT,
	adapters INTEGER,
	devices INTEGER,
	unmatched INTEGER
);
`)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS exported_devices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT REFERENCES export_runs(id) ON DELETE CASCADE,
	adapter_address TEXT COLLATE NOCASE,
	adapter_name TEXT,
	address TEXT COLLATE NOCASE,
	name TEXT,
	has_link_key INTEGER,
	has_le_keys INTEGER
);
`)
	if err != nil {
		return err
	}
	_ = execIgnore(s.db, ctx, `CREATE INDEX IF NOT EXISTS idx_exported_devices_run ON exported_devices(run_id)`)
	_ = execIgnore(s.db, ctx, `CREATE INDEX IF NOT EXISTS idx_exported_devices_address ON exported_devices(address)`)

	// Backward-compatible schema updates for old DBs.
	_ = execIgnore(s.db, ctx, `ALTER TABLE export_runs ADD COLUMN store_only INTEGER DEFAULT 0`)
	return nil
}

func execIgnore(db *sql.DB, ctx context.Context, q string) error {
	_, err := db.ExecContext(ctx, q)
	return err
}

type RunParams struct {
	Source     string
	OutputPath string
	StartedAt  time.Time
	StoreOnly  bool
}

type Run struct {
	ID         string
	StartedAt  string
	FinishedAt string
	Source     string
	OutputPath string
	Adapters   int
	Devices    int
	Unmatched  int
	StoreOnly  bool
}

type ExportedDevice struct {
	AdapterAddress string
	AdapterName    string
	Address        string
	Name           string
	HasLinkKey     bool
	HasLEKeys      bool
}

// RecordExport stores one finished run and its device list in a single
// transaction and returns the run id.
func (s *Store) RecordExport(ctx context.Context, p RunParams, adapters []*bluetooth.Adapter) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	startedAt := p.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}

	var devices, unmatched int
	for _, a := range adapters {
		devices += len(a.Devices)
		if a.Name == bluetooth.UnmatchedAdapterName && a.Address.IsZero() {
			unmatched += len(a.Devices)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO export_runs (id, started_at, finished_at, source, output_path, adapters, devices, unmatched, store_only)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		startedAt.Format(timeLayout),
		s.now().Format(timeLayout),
		strings.TrimSpace(p.Source),
		p.OutputPath,
		len(adapters),
		devices,
		unmatched,
		boolToInt(p.StoreOnly),
	)
	if err != nil {
		return "", fmt.Errorf("insert export run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO exported_devices (run_id, adapter_address, adapter_name, address, name, has_link_key, has_le_keys)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for _, a := range adapters {
		for _, d := range a.Devices {
			_, err := stmt.ExecContext(ctx, id,
				d.AdapterAddress.String(),
				a.Name,
				d.Address.String(),
				d.Name,
				boolToInt(d.HasClassicKeys()),
				boolToInt(d.HasLEKeys()),
			)
			if err != nil {
				return "", fmt.Errorf("insert exported device %s: %w", d.Address, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// LastRun returns the most recent run, or ok=false for an empty history.
func (s *Store) LastRun(ctx context.Context) (Run, bool, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := `SELECT id, started_at, finished_at, source, output_path, adapters, devices, unmatched, COALESCE(store_only, 0)
FROM export_runs ORDER BY finished_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var storeOnly int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.OutputPath, &r.Adapters, &r.Devices, &r.Unmatched, &storeOnly); err != nil {
			return nil, err
		}
		r.StoreOnly = storeOnly != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RunDevices(ctx context.Context, runID string) ([]ExportedDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT adapter_address, adapter_name, address, name, has_link_key, has_le_keys
FROM exported_devices WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportedDevice
	for rows.Next() {
		var d ExportedDevice
		var link, le int
		if err := rows.Scan(&d.AdapterAddress, &d.AdapterName, &d.Address, &d.Name, &link, &le); err != nil {
			return nil, err
		}
		d.HasLinkKey = link != 0
		d.HasLEKeys = le != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// MissingSince lists devices of the previous run that are not part of
// adapters, so the console can point out pairings that disappeared.
func (s *Store) MissingSince(ctx context.Context, previous string, adapters []*bluetooth.Adapter) ([]ExportedDevice, error) {
	if previous == "" {
		return nil, errors.New("missing run id")
	}
	prev, err := s.RunDevices(ctx, previous)
	if err != nil {
		return nil, err
	}
	type pair struct{ adapter, device string }
	now := map[pair]bool{}
	for _, a := range adapters {
		for _, d := range a.Devices {
			now[pair{d.AdapterAddress.String(), d.Address.String()}] = true
		}
	}
	var out []ExportedDevice
	for _, d := range prev {
		if !now[pair{strings.ToUpper(d.AdapterAddress), strings.ToUpper(d.Address)}] {
			out = append(out, d)
		}
	}
	return out, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
