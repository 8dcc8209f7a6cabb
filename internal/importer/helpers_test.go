package importer

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/timmy/geoimport/internal/reader/readertest"
)

// memCatalog is an in-memory Catalog.
type memCatalog struct {
	mu         sync.Mutex
	workspaces map[string]bool
	stores     map[string]bool
	layers     map[string]*LayerRecord
	adds       int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		workspaces: map[string]bool{"gs": true, "topp": true},
		stores:     map[string]bool{"topp/states": true},
		layers:     make(map[string]*LayerRecord),
	}
}

func (c *memCatalog) DefaultWorkspace(context.Context) (string, error) {
	return "gs", nil
}

func (c *memCatalog) HasWorkspace(_ context.Context, ws string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspaces[ws], nil
}

func (c *memCatalog) HasStore(_ context.Context, ws, store string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stores[ws+"/"+store], nil
}

func (c *memCatalog) HasLayer(_ context.Context, ws, store, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range c.layers {
		if rec.Workspace == ws && rec.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *memCatalog) AddLayer(_ context.Context, rec *LayerRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	storeKey := rec.Workspace + "/" + rec.Store
	if !c.stores[storeKey] {
		if !rec.CreateStore {
			return errors.Newf("store %s does not exist", storeKey)
		}
		c.stores[storeKey] = true
	}
	for _, other := range c.layers {
		if other.Workspace == rec.Workspace && other.Name == rec.Name {
			return errors.Wrapf(ErrCatalogConflict, "layer %s/%s", rec.Workspace, rec.Name)
		}
	}
	key := storeKey + "/" + rec.Name
	c.layers[key] = rec
	c.adds++
	return nil
}

func (c *memCatalog) layer(key string) *LayerRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layers[key]
}

func (c *memCatalog) addCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adds
}

// memRunLog records runs in memory.
type memRunLog struct {
	mu   sync.Mutex
	runs []RunSummary
}

func (l *memRunLog) RecordRun(_ context.Context, run *RunSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, *run)
	return nil
}

// testTransform is a configurable transform that counts its calls.
type testTransform struct {
	name  string
	apply func(ctx context.Context, d *ItemData) error
	stop  bool
	inits atomic.Int32
	calls atomic.Int32
}

func (t *testTransform) Name() string { return t.name }

func (t *testTransform) Init(context.Context) error {
	t.inits.Add(1)
	return nil
}

func (t *testTransform) Apply(ctx context.Context, d *ItemData) error {
	t.calls.Add(1)
	if t.apply == nil {
		return nil
	}
	return t.apply(ctx, d)
}

func (t *testTransform) StopOnError(error) bool { return t.stop }

func newTestManager(t *testing.T, opts ...Option) (*Manager, *memCatalog) {
	t.Helper()
	cat := newMemCatalog()
	m := NewManager(cat, &Config{ScratchDir: filepath.Join(t.TempDir(), "scratch")}, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m, cat
}

// mixedDir writes a directory with a projected shapefile, a shapefile
// without .prj and an unrelated text file.
func mixedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	readertest.WriteShapefile(t, dir, readertest.DefaultShapefile("archsites", readertest.WGS84PRJ))
	readertest.WriteShapefile(t, dir, readertest.DefaultShapefile("bugsites", ""))
	readertest.WriteFile(t, dir, "readme.txt", "not data")
	return dir
}

func mustContext(t *testing.T, m *Manager) int64 {
	t.Helper()
	id, err := m.CreateContext(context.Background(), TargetSpec{})
	require.NoError(t, err)
	return id
}

func mustTask(t *testing.T, m *Manager, contextID int64, path string) TaskSnapshot {
	t.Helper()
	taskID, err := m.AddTask(context.Background(), contextID, Source{Path: path})
	require.NoError(t, err)
	task, err := m.GetTask(contextID, taskID)
	require.NoError(t, err)
	return task
}

func itemStates(task TaskSnapshot) []ItemState {
	out := make([]ItemState, len(task.Items))
	for i, it := range task.Items {
		out[i] = it.State
	}
	return out
}
