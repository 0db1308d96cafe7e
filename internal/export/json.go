// Package export serializes the reconciled adapter tree.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"btmigrate/internal/bluetooth"
)

// Encode writes adapters as an indented JSON array.
func Encode(w io.Writer, adapters []*bluetooth.Adapter) error {
	if adapters == nil {
		adapters = []*bluetooth.Adapter{}
	}
	b, err := json.MarshalIndent(adapters, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WriteFile replaces path with the JSON export.
func WriteFile(path string, adapters []*bluetooth.Adapter) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}
	if err := Encode(f, adapters); err != nil {
		_ = f.Close()
		return fmt.Errorf("write export file: %w", err)
	}
	return f.Close()
}
