package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/geoimport/internal/config"
)

type memObject struct {
	data []byte
	opts PutOptions
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string]memObject
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string]memObject)}
}

func (s *memStorage) Put(_ context.Context, key string, r io.Reader, size int64, opts PutOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return io.ErrShortWrite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memObject{data: data, opts: opts}
	return nil
}

func (s *memStorage) URL(key string) string { return "mem://" + key }

func (s *memStorage) EnsureBucket(context.Context) error { return nil }

func (s *memStorage) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectInfo
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(obj.data))})
		}
	}
	return out, nil
}

func (s *memStorage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

func TestMirror(t *testing.T) {
	store := newMemStorage()
	m := NewMirror(store, "/uploads/")
	ctx := context.Background()

	dir := t.TempDir()
	zipPath := filepath.Join(dir, "sites.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("PK\x03\x04"), 0644))
	csvPath := filepath.Join(dir, "cities.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name\n"), 0644))

	url, err := m.MirrorFile(ctx, 3, zipPath)
	require.NoError(t, err)
	assert.Equal(t, "mem://uploads/3/sites.zip", url)
	_, err = m.MirrorFile(ctx, 3, csvPath)
	require.NoError(t, err)
	_, err = m.MirrorFile(ctx, 31, csvPath)
	require.NoError(t, err)

	obj := store.objects["uploads/3/sites.zip"]
	assert.Equal(t, "application/zip", obj.opts.ContentType)
	assert.Equal(t, map[string]string{"import-id": "3", "source": "sites.zip"}, obj.opts.Metadata)
	assert.Equal(t, []byte("PK\x03\x04"), obj.data)

	sources, err := m.Sources(ctx, 3)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "cities.csv", sources[0].Name)
	assert.Equal(t, "mem://uploads/3/cities.csv", sources[0].URL)
	assert.Equal(t, int64(5), sources[0].Size)
	assert.Equal(t, "sites.zip", sources[1].Name)

	n, err := m.RemoveContext(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.objects, 1)
	assert.Contains(t, store.objects, "uploads/31/cities.csv")

	n, err = m.RemoveContext(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = m.MirrorFile(ctx, 3, t.TempDir())
	assert.ErrorContains(t, err, "is a directory")
	_, err = m.MirrorFile(ctx, 3, filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestMirrorKey(t *testing.T) {
	assert.Equal(t, "7/a.csv", NewMirror(newMemStorage(), "").Key(7, "/tmp/x/a.csv"))
	assert.Equal(t, "in/7/a.csv", NewMirror(newMemStorage(), "in").Key(7, "a.csv"))
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.zip":     "application/zip",
		"a.TAR.GZ":  "application/gzip",
		"a.geojson": "application/geo+json",
		"a.csv":     "text/csv",
		"a.shp":     "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equal(t, want, contentType(name), name)
	}
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://acct.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.eu-west-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(&config.StorageConfig{
		Endpoint:  "http://localhost:9000/ignored",
		AccessKey: "k",
		SecretKey: "s",
		Bucket:    "imports",
	})
	require.NoError(t, err)

	s3s, ok := s.(*S3Storage)
	require.True(t, ok)
	assert.Equal(t, StorageTypeS3Compatible, s3s.storeType)
	assert.Equal(t, "http://localhost:9000/imports/k.zip", s3s.URL("k.zip"))

	assert.Equal(t, "auto", regionFor(&S3Config{Type: StorageTypeR2}))
	assert.Equal(t, "eu-west-1", regionFor(&S3Config{Region: "eu-west-1"}))
}
