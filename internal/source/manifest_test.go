package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "data", "roads.geojson"), `{}`)
	abs := filepath.Join(t.TempDir(), "cities.csv")
	writeFile(t, abs, "name\n")

	writeFile(t, filepath.Join(dir, ManifestFileName), `# staged for the spring import
{"path": "data/roads.geojson", "srs": "EPSG:3857", "layer": "main_roads"}

{"path": "`+abs+`", "style": "capitals"}
{"path": "missing.shp"}
{"srs": "EPSG:4326"}
not json
`)

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ManifestFileName), m.Path)

	require.Len(t, m.Entries, 2)
	assert.Equal(t, Entry{
		Path:  filepath.Join(dir, "data", "roads.geojson"),
		SRS:   "EPSG:3857",
		Layer: "main_roads",
		Line:  2,
	}, m.Entries[0])
	assert.Equal(t, abs, m.Entries[1].Path)
	assert.Equal(t, "capitals", m.Entries[1].Style)
	assert.Equal(t, 4, m.Entries[1].Line)

	require.Len(t, m.Skipped, 3)
	assert.Contains(t, m.Skipped[0], "line 5")
	assert.Contains(t, m.Skipped[1], "line 6: missing path")
	assert.Contains(t, m.Skipped[2], "line 7")
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest file not found")
}

func TestListManifests(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "spring", ManifestFileName), "")
	writeFile(t, filepath.Join(base, "autumn", ManifestFileName), "")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "empty"), 0o755))
	writeFile(t, filepath.Join(base, "loose.jsonl"), "")

	dirs, err := ListManifests(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"autumn", "spring"}, dirs)

	dirs, err = ListManifests(filepath.Join(base, "missing"))
	require.NoError(t, err)
	assert.Empty(t, dirs)
}
