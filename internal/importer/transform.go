package importer

import (
	"context"
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/timmy/geoimport/internal/reader"
)

// ItemData is the in-flight state of one item during a commit pass. Each
// transform receives a private copy; the copy is kept only when Apply
// succeeds.
type ItemData struct {
	Resource *reader.Resource
	Features []reader.Feature
	Target   Target
}

// Clone copies the resource, the target and every feature's attribute map.
// Geometry values are shared, so transforms replace them rather than mutate.
func (d *ItemData) Clone() *ItemData {
	out := &ItemData{
		Resource: d.Resource.Clone(),
		Target:   d.Target,
		Features: make([]reader.Feature, len(d.Features)),
	}
	for i, f := range d.Features {
		attrs := make(map[string]interface{}, len(f.Attributes))
		for k, v := range f.Attributes {
			attrs[k] = v
		}
		out.Features[i] = reader.Feature{Attributes: attrs, Geometry: f.Geometry}
	}
	return out
}

// Transform is one step of an item's commit chain.
type Transform interface {
	// Name identifies the transform in item errors and snapshots.
	Name() string

	// Init runs once per commit pass, before the transform's first Apply.
	Init(ctx context.Context) error

	// Apply modifies data in place or reports why it cannot.
	Apply(ctx context.Context, data *ItemData) error

	// StopOnError decides whether err aborts the item (ERROR) or is only
	// recorded while the chain continues on the unmodified data.
	StopOnError(err error) bool
}

// BaseTransform supplies a no-op Init and aborts the item on any error.
// Embed it and implement Name and Apply.
type BaseTransform struct{}

func (BaseTransform) Init(context.Context) error { return nil }

func (BaseTransform) StopOnError(error) bool { return true }

// transformNames lists the chain for snapshots.
func transformNames(chain []Transform) []string {
	if len(chain) == 0 {
		return nil
	}
	names := make([]string, len(chain))
	for i, t := range chain {
		names[i] = t.Name()
	}
	return names
}

// initTracker runs each distinct transform's Init at most once per pass.
// Transforms of non-comparable types cannot be tracked and are initialized
// before every use.
type initTracker struct {
	done map[Transform]error
}

func newInitTracker() *initTracker {
	return &initTracker{done: make(map[Transform]error)}
}

func (it *initTracker) init(ctx context.Context, t Transform) error {
	if !reflect.TypeOf(t).Comparable() {
		return guard(func() error { return t.Init(ctx) })
	}
	if err, ok := it.done[t]; ok {
		return err
	}
	err := guard(func() error { return t.Init(ctx) })
	it.done[t] = err
	return err
}

// chainResult is what running a chain over one item produced.
type chainResult struct {
	data    *ItemData
	errs    []RecordedError
	aborted bool
}

// runChain applies chain in order. A failing transform either aborts the
// item or is skipped, leaving data as it was before the transform ran.
func runChain(ctx context.Context, tracker *initTracker, chain []Transform, data *ItemData) chainResult {
	res := chainResult{data: data}
	for _, t := range chain {
		err := tracker.init(ctx, t)
		if err != nil {
			err = errors.Wrapf(err, "init %s", t.Name())
		} else {
			trial := res.data.Clone()
			if err = guard(func() error { return t.Apply(ctx, trial) }); err == nil {
				res.data = trial
				continue
			}
		}

		ie := newItemError(KindTransform, errors.Mark(errors.Wrapf(err, "transform %s", t.Name()), ErrTransform))
		ie.Transform = t.Name()
		res.errs = append(res.errs, ie)
		if t.StopOnError(err) {
			res.aborted = true
			return res
		}
	}
	return res
}

// guard turns a panic in a transform hook into an ordinary failure.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
