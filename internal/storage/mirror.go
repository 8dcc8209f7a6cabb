package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/geoimport/internal/logger"
)

// Mirror copies uploaded import sources to object storage so the original
// files outlive the scratch directories they are unpacked in.
type Mirror struct {
	store  ObjectStorage
	prefix string
}

// NewMirror creates a Mirror writing under prefix.
func NewMirror(store ObjectStorage, prefix string) *Mirror {
	return &Mirror{store: store, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key a source of contextID is stored under.
func (m *Mirror) Key(contextID int64, name string) string {
	return m.contextPrefix(contextID) + filepath.Base(name)
}

func (m *Mirror) contextPrefix(contextID int64) string {
	p := strconv.FormatInt(contextID, 10) + "/"
	if m.prefix != "" {
		p = m.prefix + "/" + p
	}
	return p
}

// MirrorFile uploads the file at p and returns its object URL. The object
// carries the import id and source name as metadata.
func (m *Mirror) MirrorFile(ctx context.Context, contextID int64, p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", p)
	}

	key := m.Key(contextID, p)
	err = m.store.Put(ctx, key, f, info.Size(), PutOptions{
		ContentType: contentType(p),
		Metadata: map[string]string{
			"import-id": strconv.FormatInt(contextID, 10),
			"source":    filepath.Base(p),
		},
	})
	if err != nil {
		return "", err
	}
	logger.With(logger.Fields{"key": key}).WithCount(int(info.Size())).Debug(ctx, "Mirrored import source")
	return m.store.URL(key), nil
}

// MirroredSource is an uploaded source kept in object storage.
type MirroredSource struct {
	ObjectInfo
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Sources lists the mirrored sources of contextID in key order.
func (m *Mirror) Sources(ctx context.Context, contextID int64) ([]MirroredSource, error) {
	prefix := m.contextPrefix(contextID)
	objects, err := m.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	sources := make([]MirroredSource, len(objects))
	for i, obj := range objects {
		sources[i] = MirroredSource{
			ObjectInfo: obj,
			Name:       strings.TrimPrefix(obj.Key, prefix),
			URL:        m.store.URL(obj.Key),
		}
	}
	return sources, nil
}

// RemoveContext deletes every mirrored source of contextID and returns how
// many objects were removed.
func (m *Mirror) RemoveContext(ctx context.Context, contextID int64) (int, error) {
	objects, err := m.store.List(ctx, m.contextPrefix(contextID))
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, nil
	}
	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	if err := m.store.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func contentType(p string) string {
	lower := strings.ToLower(p)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return "application/zip"
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(lower, ".geojson"), strings.HasSuffix(lower, ".json"):
		return "application/geo+json"
	case strings.HasSuffix(lower, ".csv"):
		return "text/csv"
	}
	if t := mime.TypeByExtension(filepath.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}
