package transform

import (
	"context"

	"github.com/timmy/geoimport/internal/importer"
)

// Func adapts a function to a Transform.
type Func struct {
	Label    string
	Fn       func(ctx context.Context, d *importer.ItemData) error
	Continue bool // record failures and keep going instead of stopping
}

func (f *Func) Name() string { return f.Label }

func (f *Func) Init(context.Context) error { return nil }

func (f *Func) Apply(ctx context.Context, d *importer.ItemData) error { return f.Fn(ctx, d) }

func (f *Func) StopOnError(error) bool { return !f.Continue }
