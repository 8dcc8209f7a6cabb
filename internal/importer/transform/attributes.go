// Package transform provides the built-in transforms of the import chain.
package transform

import (
	"context"
	"fmt"

	"github.com/timmy/geoimport/internal/importer"
	"github.com/timmy/geoimport/internal/reader"
)

// AttributeRename renames one attribute in the schema and every feature.
type AttributeRename struct {
	importer.BaseTransform
	From string
	To   string
}

// NewAttributeRename creates a rename of from to to.
func NewAttributeRename(from, to string) *AttributeRename {
	return &AttributeRename{From: from, To: to}
}

func (t *AttributeRename) Name() string {
	return fmt.Sprintf("rename(%s->%s)", t.From, t.To)
}

func (t *AttributeRename) Apply(ctx context.Context, d *importer.ItemData) error {
	idx := indexOf(d.Resource.Attributes, t.From)
	if idx < 0 {
		return fmt.Errorf("attribute %q not found", t.From)
	}
	if t.To == "" || indexOf(d.Resource.Attributes, t.To) >= 0 {
		return fmt.Errorf("cannot rename %q to %q", t.From, t.To)
	}

	d.Resource.Attributes[idx].Name = t.To
	for _, f := range d.Features {
		if v, ok := f.Attributes[t.From]; ok {
			delete(f.Attributes, t.From)
			f.Attributes[t.To] = v
		}
	}
	return nil
}

// AttributeRemove drops attributes from the schema and every feature.
// Missing attributes are ignored, so the transform never stops an item.
type AttributeRemove struct {
	importer.BaseTransform
	Names []string
}

// NewAttributeRemove creates a removal of the named attributes.
func NewAttributeRemove(names ...string) *AttributeRemove {
	return &AttributeRemove{Names: names}
}

func (t *AttributeRemove) Name() string {
	return fmt.Sprintf("remove%v", t.Names)
}

func (t *AttributeRemove) Apply(ctx context.Context, d *importer.ItemData) error {
	drop := make(map[string]bool, len(t.Names))
	for _, n := range t.Names {
		drop[n] = true
	}

	kept := d.Resource.Attributes[:0]
	for _, a := range d.Resource.Attributes {
		if !drop[a.Name] {
			kept = append(kept, a)
		}
	}
	d.Resource.Attributes = kept

	for _, f := range d.Features {
		for n := range drop {
			delete(f.Attributes, n)
		}
	}
	return nil
}

func (t *AttributeRemove) StopOnError(error) bool { return false }

func indexOf(attrs []reader.Attribute, name string) int {
	for i, a := range attrs {
		if a.Name == name {
			return i
		}
	}
	return -1
}
