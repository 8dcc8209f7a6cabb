package importer

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/timmy/geoimport/internal/logger"
	"github.com/timmy/geoimport/internal/reader"
)

// RunContext executes a commit pass over the context and returns the state
// it settles in. READY items are transformed and committed; blocked items
// are left for the client to fix, which keeps the context INCOMPLETE.
// Items that fail in the catalog or in a stopping transform end in ERROR
// without failing the pass. Cancelling ctx stops the pass between items.
func (m *Manager) RunContext(ctx context.Context, contextID int64) (ContextState, error) {
	c, err := m.acquire(contextID)
	if err != nil {
		return "", err
	}
	defer c.lock.Unlock()

	m.mu.Lock()
	prev := c.state
	if prev == ContextComplete {
		m.mu.Unlock()
		return ContextComplete, nil
	}
	if len(c.taskIDs) == 0 {
		m.mu.Unlock()
		return prev, errors.WithHint(
			errors.Wrapf(ErrContextNotRunnable, "context %d has no tasks", contextID),
			"add a task before running the import")
	}
	c.state = ContextRunning
	keys := m.orderedItems(c)
	m.mu.Unlock()

	ctx = logger.SetContextID(ctx, contextID)
	run := &RunSummary{ContextID: contextID, StartedAt: time.Now()}
	tracker := newInitTracker()

	var interrupted error
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}

		m.mu.RLock()
		it := m.items[k]
		state, res, target, chain := it.state, it.resource.Clone(), it.target, it.chain
		m.mu.RUnlock()
		if state != ItemReady {
			continue
		}

		out := m.commitItem(logger.SetItem(ctx, k.task, k.item), tracker, contextID, res, target, chain)
		if out.untouched {
			interrupted = ctx.Err()
			break
		}

		m.mu.Lock()
		it.state = out.state
		it.errs = append(it.errs, out.errs...)
		if out.state == ItemComplete {
			it.resource, it.target = out.resource, out.target
		}
		m.mu.Unlock()

		switch out.state {
		case ItemComplete:
			run.Committed++
		case ItemError:
			run.Failed++
		}
		for _, e := range out.errs {
			run.Errors = append(run.Errors, e.Message)
		}
	}

	m.mu.Lock()
	final, blocked := m.settle(c)
	c.state = final
	run.State, run.Blocked, run.FinishedAt = final, blocked, time.Now()
	c.lastRun = run
	c.updatedAt = run.FinishedAt
	summary := *run
	m.mu.Unlock()

	logger.With(logger.Fields{
		"committed": run.Committed,
		"failed":    run.Failed,
		"blocked":   run.Blocked,
	}).WithStatus(string(final)).WithDuration(run.FinishedAt.Sub(run.StartedAt)).Info(ctx, "Commit pass finished")

	if m.runs != nil {
		if err := m.runs.RecordRun(context.WithoutCancel(ctx), &summary); err != nil {
			m.log(ctx).WithError(err).Warn("Failed to record import run")
		}
	}

	if interrupted != nil {
		return final, errors.Wrapf(interrupted, "commit pass of context %d interrupted", contextID)
	}
	return final, nil
}

// settle derives the context state after a pass: INCOMPLETE while any item
// can still be committed, ERROR when nothing was importable at all,
// COMPLETE otherwise. mu must be held.
func (m *Manager) settle(c *importContext) (ContextState, int) {
	pending, blocked, complete := 0, 0, 0
	for _, k := range m.orderedItems(c) {
		switch s := m.items[k].state; {
		case s.Blocked():
			blocked++
			pending++
		case s == ItemReady:
			pending++
		case s == ItemComplete:
			complete++
		}
	}
	switch {
	case pending > 0:
		return ContextIncomplete, blocked
	case complete == 0:
		return ContextError, blocked
	default:
		return ContextComplete, blocked
	}
}

// itemOutcome is the result of committing one item. untouched means the
// pass was cancelled before anything was decided and the item stays READY.
type itemOutcome struct {
	state     ItemState
	resource  *reader.Resource
	target    Target
	errs      []RecordedError
	untouched bool
}

func (m *Manager) commitItem(ctx context.Context, tracker *initTracker, contextID int64, res *reader.Resource, target Target, chain []Transform) itemOutcome {
	fail := func(kind ErrorKind, err error, prior []RecordedError) itemOutcome {
		if ctx.Err() != nil {
			return itemOutcome{untouched: true}
		}
		m.log(ctx).WithError(err).Warn("Item failed")
		return itemOutcome{state: ItemError, errs: append(prior, newItemError(kind, err))}
	}

	rd, ok := m.readers.ByFormat(res.Format)
	if !ok {
		return fail(KindReader, errors.Mark(errors.Newf("no reader for format %q", res.Format), ErrReader), nil)
	}
	features, err := rd.Features(ctx, res.Path)
	if err != nil {
		return fail(KindReader, errors.Mark(errors.Wrapf(err, "read %s", res.Name), ErrReader), nil)
	}

	start := time.Now()
	result := runChain(ctx, tracker, chain, &ItemData{
		Resource: res,
		Features: features,
		Target:   resolvedTarget(res, target),
	})
	if result.aborted {
		if ctx.Err() != nil {
			return itemOutcome{untouched: true}
		}
		m.log(ctx).WithField("errors", len(result.errs)).Warn("Transform chain aborted item")
		return itemOutcome{state: ItemError, errs: result.errs}
	}

	d := result.data
	if !ValidLayerName(d.Target.Layer) {
		return fail(KindCatalog, errors.WithHint(
			errors.Newf("layer name %q is not valid", d.Target.Layer),
			"check the transforms that rename the layer"), result.errs)
	}
	if d.Target.Store == "" {
		d.Target.Store = defaultStore(d.Resource.Format)
	}

	rec := &LayerRecord{
		Workspace:   d.Target.Workspace,
		Store:       d.Target.Store,
		Name:        d.Target.Layer,
		Style:       d.Target.Style,
		Format:      d.Resource.Format,
		SRS:         d.Resource.SRS,
		Geometry:    d.Resource.Geometry,
		Attributes:  d.Resource.Attributes,
		Features:    d.Features,
		SourcePath:  res.Path,
		CreateStore: target.Store == "" && d.Target.Store == defaultStore(d.Resource.Format),
		ContextID:   contextID,
		CommittedAt: time.Now(),
	}
	if err := m.catalog.AddLayer(ctx, rec); err != nil {
		return fail(KindCatalog, err, result.errs)
	}

	logger.With(logger.Fields{
		"layer":     rec.Workspace + ":" + rec.Name,
		"store":     rec.Store,
		"recovered": len(result.errs),
	}).WithCount(len(rec.Features)).WithDuration(time.Since(start)).Info(ctx, "Committed layer")

	return itemOutcome{
		state:    ItemComplete,
		resource: d.Resource,
		target:   d.Target,
		errs:     result.errs,
	}
}
