package ids

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
)

// LoadOUI loads vendor names keyed by OUI (6 hex digits, uppercase) from a CSV
// file with IEEE format (Registry, Assignment, Organization Name, ...).
func LoadOUI(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseOUI(f)
}

// ParseOUI reads the IEEE CSV layout. Rows with an assignment that is not
// a 24-bit prefix (MA-M, MA-S blocks) are skipped.
func ParseOUI(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	// Header.
	if _, err := cr.Read(); err != nil {
		return nil, err
	}

	out := make(map[string]string, 1024)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 3 {
			continue
		}
		assignment := strings.NewReplacer("-", "", ":", "").Replace(strings.ToUpper(strings.TrimSpace(rec[1])))
		if len(assignment) != 6 {
			continue
		}
		org := strings.TrimSpace(rec[2])
		if org == "" {
			continue
		}
		out[assignment] = org
	}
	return out, nil
}
