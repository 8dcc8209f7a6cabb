package importer

import (
	"context"
	"time"

	"github.com/timmy/geoimport/internal/reader"
)

// LayerRecord is everything the catalog stores for one committed item.
type LayerRecord struct {
	Workspace  string
	Store      string
	Name       string
	Style      string
	Format     string
	SRS        string
	Geometry   *reader.Geometry
	Attributes []reader.Attribute
	Features   []reader.Feature
	SourcePath string
	// CreateStore allows the catalog to create Store on first use. It is set
	// for per-format default stores only.
	CreateStore bool
	ContextID   int64
	CommittedAt time.Time
}

// Catalog is the persistent registry committed layers end up in. It is
// shared by every context and must register a layer atomically, reporting
// a taken name as ErrCatalogConflict.
type Catalog interface {
	DefaultWorkspace(ctx context.Context) (string, error)
	HasWorkspace(ctx context.Context, workspace string) (bool, error)
	HasStore(ctx context.Context, workspace, store string) (bool, error)
	HasLayer(ctx context.Context, workspace, store, name string) (bool, error)
	AddLayer(ctx context.Context, rec *LayerRecord) error
}

// RunLog keeps a history of finished commit passes.
type RunLog interface {
	RecordRun(ctx context.Context, run *RunSummary) error
}

// defaultStore is the per-format store items without an explicit store are
// committed to.
func defaultStore(format string) string {
	if format == "" {
		return "imports"
	}
	return format
}
