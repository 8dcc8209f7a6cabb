package archive

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/geoimport/internal/reader/readertest"
)

func TestDetect(t *testing.T) {
	testCases := []struct {
		path string
		key  string
		ok   bool
	}{
		{path: "upload.zip", key: "zip", ok: true},
		{path: "DATA.ZIP", key: "zip", ok: true},
		{path: "roads.tar.gz", key: "tar.gz", ok: true},
		{path: "roads.tgz", key: "tgz", ok: true},
		{path: "roads.geojson.gz", key: "gz", ok: true},
		{path: "roads.geojson", ok: false},
		{path: "archsites.shp", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			key, ok := Detect(tc.path)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.ok, IsArchive(tc.path))
		})
	}
}

func TestUnpackZip(t *testing.T) {
	src := t.TempDir()
	readertest.WriteShapefile(t, src, readertest.DefaultShapefile("archsites", readertest.WGS84PRJ))
	zipPath := readertest.ZipDir(t, src, filepath.Join(t.TempDir(), "archsites.zip"))

	dst := t.TempDir()
	require.NoError(t, Unpack(zipPath, dst))

	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		assert.FileExists(t, filepath.Join(dst, "archsites"+ext))
	}
}

func TestUnpackTarGz(t *testing.T) {
	tgz := filepath.Join(t.TempDir(), "bundle.tar.gz")
	f, err := os.Create(tgz)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	body := []byte("name,lat,lon\na,1,2\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: "nested/points.csv", Mode: 0o644, Size: int64(len(body))}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	dst := t.TempDir()
	require.NoError(t, Unpack(tgz, dst))

	got, err := os.ReadFile(filepath.Join(dst, "nested", "points.csv"))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestUnpackSingleFile(t *testing.T) {
	gzPath := filepath.Join(t.TempDir(), "roads.geojson.gz")
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	dst := t.TempDir()
	require.NoError(t, Unpack(gzPath, dst))
	assert.FileExists(t, filepath.Join(dst, "roads.geojson"))
}

func TestUnpackRejectsPlainFile(t *testing.T) {
	err := Unpack("archsites.shp", t.TempDir())
	assert.ErrorContains(t, err, "not an archive")
}
