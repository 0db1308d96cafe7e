package ids

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btmigrate/internal/bluetooth"
)

const header = "Registry,Assignment,Organization Name,Organization Address\n"

func writeOUI(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oui.csv"), []byte(header+body), 0o644))
}

func TestLoad_DefaultAndCustomOverlay(t *testing.T) {
	root := t.TempDir()
	writeOUI(t, filepath.Join(root, "default"),
		"MA-L,001A7D,cyber-blue(HK)Ltd,Hong Kong\n"+
			"MA-L,A4-5E-60,Apple Inc.,Cupertino\n"+
			"MA-L,XYZ,broken,\n")
	writeOUI(t, filepath.Join(root, "custom"), "MA-L,A45E60,My Phone Vendor,\n")

	r, err := Load(LoadConfig{DataDir: root})
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, "cyber-blue(HK)Ltd", r.Vendor(bluetooth.MustParseAddress("00:1A:7D:DA:71:13")))
	assert.Equal(t, "My Phone Vendor", r.Vendor(bluetooth.MustParseAddress("A4:5E:60:D5:3E:7F")))
	assert.Empty(t, r.Vendor(bluetooth.MustParseAddress("10:00:00:00:00:01")))
	// Locally administered bit set.
	assert.Empty(t, r.Vendor(bluetooth.MustParseAddress("02:1A:7D:DA:71:13")))
	assert.Equal(t, "Mouse [cyber-blue(HK)Ltd]", r.Annotate("Mouse", bluetooth.MustParseAddress("001A7D000001")))
}

func TestLoad_NothingFound(t *testing.T) {
	r, err := Load(LoadConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Empty(t, r.Vendor(bluetooth.MustParseAddress("001A7DDA7113")))
	assert.Equal(t, "Mouse", r.Annotate("Mouse", bluetooth.MustParseAddress("001A7DDA7113")))
}

func TestLoad_MissingCustomDir(t *testing.T) {
	root := t.TempDir()
	writeOUI(t, filepath.Join(root, "default"), "MA-L,001A7D,cyber-blue(HK)Ltd,\n")
	r, err := Load(LoadConfig{DataDir: root, CustomDir: filepath.Join(root, "nope")})
	assert.Error(t, err)
	assert.NotNil(t, r)
}

func TestParseOUI(t *testing.T) {
	got, err := ParseOUI(strings.NewReader(header +
		"MA-L,00:1A:7D,cyber-blue(HK)Ltd,\n" +
		"MA-M,70B3D5F,too long,\n" +
		"MA-L,A45E60,,\n" +
		"short\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"001A7D": "cyber-blue(HK)Ltd"}, got)

	_, err = ParseOUI(strings.NewReader(""))
	assert.Error(t, err)
}
