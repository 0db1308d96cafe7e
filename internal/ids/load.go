package ids

import (
	"fmt"
	"os"
	"path/filepath"
)

type LoadConfig struct {
	// DataDir is the root directory that contains default/ and custom/ subfolders.
	// Example:
	//   data/default/oui.csv
	//   data/custom/oui.csv
	DataDir string

	// CustomDir optionally overrides the custom directory path. When empty, it is
	// assumed to be <DataDir>/custom.
	CustomDir string
}

// Load reads the default OUI table and overlays the custom one. It returns a
// nil Resolver without error when neither file exists; a nil Resolver
// resolves nothing.
func Load(cfg LoadConfig) (*Resolver, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	defaultDir := filepath.Join(cfg.DataDir, "default")
	customDir := cfg.CustomDir
	if customDir == "" {
		customDir = filepath.Join(cfg.DataDir, "custom")
	}

	res := &Resolver{vendors: map[string]string{}}

	// Load defaults, then overlay custom (best-effort).
	_ = loadOUIInto(res.vendors, filepath.Join(defaultDir, "oui.csv"))
	_ = loadOUIInto(res.vendors, filepath.Join(customDir, "oui.csv"))

	if len(res.vendors) == 0 {
		return nil, nil
	}

	// Validate directories existence only when user explicitly provided them.
	if cfg.CustomDir != "" {
		if _, err := os.Stat(cfg.CustomDir); err != nil {
			return res, fmt.Errorf("custom-data-dir not accessible: %w", err)
		}
	}

	return res, nil
}

func loadOUIInto(dst map[string]string, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	items, err := LoadOUI(path)
	if err != nil {
		return err
	}
	for k, v := range items {
		dst[k] = v
	}
	return nil
}
