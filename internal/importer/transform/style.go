package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/geoimport/internal/importer"
	"github.com/timmy/geoimport/internal/reader"
)

// ErrNoStyle is returned by a StyleResolver that has nothing for a layer.
var ErrNoStyle = errors.New("no style")

// StyleResolver picks a style for a layer about to be committed.
type StyleResolver interface {
	// Ping checks the resolver is reachable.
	Ping(ctx context.Context) error
	// Resolve returns the style name for the layer, or ErrNoStyle.
	Resolve(ctx context.Context, workspace, layer, geometryType string) (string, error)
}

// StyleLookup sets the item's style from a resolver. A layer the resolver
// knows nothing about keeps its default style; other failures abort the
// item unless Lenient is set.
type StyleLookup struct {
	importer.BaseTransform
	Resolver StyleResolver
	Lenient  bool
}

// NewStyleLookup creates a style lookup backed by r.
func NewStyleLookup(r StyleResolver, lenient bool) *StyleLookup {
	return &StyleLookup{Resolver: r, Lenient: lenient}
}

func (t *StyleLookup) Name() string { return "style-lookup" }

// Init verifies the resolver once per commit pass.
func (t *StyleLookup) Init(ctx context.Context) error {
	if t.Resolver == nil {
		return errors.New("no style resolver configured")
	}
	return t.Resolver.Ping(ctx)
}

func (t *StyleLookup) Apply(ctx context.Context, d *importer.ItemData) error {
	style, err := t.Resolver.Resolve(ctx, d.Target.Workspace, d.Target.Layer, geometryType(d.Resource))
	if errors.Is(err, ErrNoStyle) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve style for %s: %w", d.Target.Layer, err)
	}
	d.Target.Style = style
	return nil
}

func (t *StyleLookup) StopOnError(error) bool { return !t.Lenient }

func geometryType(res *reader.Resource) string {
	if !res.Spatial() {
		return ""
	}
	return res.Geometry.Type
}
