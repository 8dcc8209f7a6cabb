package importer

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/timmy/geoimport/internal/logger"
	"github.com/timmy/geoimport/internal/reader"
)

// Config holds configuration for the import manager.
type Config struct {
	// ScratchDir is where archives are unpacked. Empty uses the OS temp dir.
	ScratchDir string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRunLog records every finished commit pass.
func WithRunLog(runs RunLog) Option {
	return func(m *Manager) { m.runs = runs }
}

// WithReaders replaces the default reader registry.
func WithReaders(readers *reader.Registry) Option {
	return func(m *Manager) { m.readers = readers }
}

// WithLogger sets the logger used when a call's context carries none.
func WithLogger(log *logger.Logger) Option {
	return func(m *Manager) { m.logger = log }
}

// WithDefaultTransforms binds chain to every newly discovered item.
func WithDefaultTransforms(chain ...Transform) Option {
	return func(m *Manager) { m.defaultChain = chain }
}

type taskKey struct {
	context int64
	task    int
}

type itemKey struct {
	context int64
	task    int
	item    int
}

// importContext is the manager's record of one context. lock is held by
// every mutating operation and only ever acquired with TryLock; the other
// fields are guarded by Manager.mu.
type importContext struct {
	lock sync.Mutex

	id        int64
	state     ContextState
	target    TargetSpec
	taskIDs   []int
	lastRun   *RunSummary
	createdAt time.Time
	updatedAt time.Time
}

type task struct {
	id        int
	contextID int64
	name      string
	kind      SourceKind
	itemIDs   []int
	owned     []string // removed when the context is discarded
}

type item struct {
	id        int
	taskID    int
	contextID int64
	state     ItemState
	resource  *reader.Resource
	target    Target
	chain     []Transform
	errs      []RecordedError
}

// Manager is the process-wide registry of import contexts. Contexts, tasks
// and items live in flat tables keyed by id; mu guards the tables and is
// only held for lookups and copies, so status reads never wait on a commit
// pass.
type Manager struct {
	catalog      Catalog
	runs         RunLog
	readers      *reader.Registry
	scratchDir   string
	defaultChain []Transform
	logger       *logger.Logger

	mu       sync.RWMutex
	nextID   int64
	contexts map[int64]*importContext
	tasks    map[taskKey]*task
	items    map[itemKey]*item
}

// NewManager creates an import manager committing into catalog.
func NewManager(catalog Catalog, cfg *Config, opts ...Option) *Manager {
	if cfg == nil {
		cfg = &Config{}
	}
	m := &Manager{
		catalog:    catalog,
		readers:    reader.DefaultRegistry(),
		scratchDir: cfg.ScratchDir,
		contexts:   make(map[int64]*importContext),
		tasks:      make(map[taskKey]*task),
		items:      make(map[itemKey]*item),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, m.logger)
}

// CreateContext registers a new PENDING context. Named targets must exist
// in the catalog; a store without a workspace is looked up in the default
// workspace.
func (m *Manager) CreateContext(ctx context.Context, target TargetSpec) (int64, error) {
	if target.Workspace != "" {
		ok, err := m.catalog.HasWorkspace(ctx, target.Workspace)
		if err != nil {
			return 0, errors.Wrap(err, "look up workspace")
		}
		if !ok {
			return 0, errors.WithHint(
				errors.Wrapf(ErrInvalidTarget, "workspace %q does not exist", target.Workspace),
				"create the workspace first or omit targetWorkspace")
		}
	}
	if target.Store != "" {
		ws, err := m.workspaceOf(ctx, target.Workspace)
		if err != nil {
			return 0, err
		}
		ok, err := m.catalog.HasStore(ctx, ws, target.Store)
		if err != nil {
			return 0, errors.Wrap(err, "look up store")
		}
		if !ok {
			return 0, errors.WithHint(
				errors.Wrapf(ErrInvalidTarget, "store %q does not exist in workspace %q", target.Store, ws),
				"omit targetStore to import into a per-format store")
		}
	}

	now := time.Now()
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.contexts[id] = &importContext{
		id:        id,
		state:     ContextPending,
		target:    target,
		createdAt: now,
		updatedAt: now,
	}
	m.mu.Unlock()

	m.log(ctx).WithField(logger.FieldContextID, id).Info("Created import context")
	return id, nil
}

// workspaceOf resolves an empty workspace name to the catalog default.
func (m *Manager) workspaceOf(ctx context.Context, ws string) (string, error) {
	if ws != "" {
		return ws, nil
	}
	ws, err := m.catalog.DefaultWorkspace(ctx)
	if err != nil {
		return "", errors.Wrap(err, "resolve default workspace")
	}
	return ws, nil
}

// acquire takes the exclusive lock of a context without blocking.
func (m *Manager) acquire(id int64) (*importContext, error) {
	m.mu.RLock()
	c, ok := m.contexts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound("context %d", id)
	}
	if !c.lock.TryLock() {
		return nil, errors.WithHint(
			errors.Wrapf(ErrAlreadyRunning, "context %d", id),
			"poll the import and retry once it is no longer running")
	}

	m.mu.RLock()
	cur, ok := m.contexts[id]
	m.mu.RUnlock()
	if !ok || cur != c {
		c.lock.Unlock()
		return nil, notFound("context %d", id)
	}
	return c, nil
}

// AddTask expands src into a new task of the context and returns its id.
// Discovery is synchronous; the task's items exist when AddTask returns.
func (m *Manager) AddTask(ctx context.Context, contextID int64, src Source) (int, error) {
	c, err := m.acquire(contextID)
	if err != nil {
		return 0, err
	}
	defer c.lock.Unlock()

	m.mu.RLock()
	state, target := c.state, c.target
	taskID := len(c.taskIDs)
	claimed := m.claimedNames(contextID, nil)
	m.mu.RUnlock()

	if state == ContextComplete {
		return 0, errors.WithHint(
			errors.Wrapf(ErrContextNotRunnable, "context %d is complete", contextID),
			"create a new import for more data")
	}

	ws, err := m.workspaceOf(ctx, target.Workspace)
	if err != nil {
		return 0, err
	}

	exp, err := m.discover(ctx, src)
	if err != nil {
		return 0, err
	}

	t := &task{
		id:        taskID,
		contextID: contextID,
		name:      sourceName(src),
		kind:      exp.kind,
	}
	if exp.scratch != "" {
		t.owned = append(t.owned, exp.scratch)
	}
	if src.OwnedDir != "" {
		t.owned = append(t.owned, src.OwnedDir)
	}

	items := make([]*item, len(exp.candidates))
	for i, cand := range exp.candidates {
		it := &item{
			id:        i,
			taskID:    taskID,
			contextID: contextID,
			state:     cand.state,
			resource:  cand.resource,
			target:    Target{Workspace: ws, Store: target.Store, Layer: cand.resource.Name},
			chain:     append([]Transform(nil), m.defaultChain...),
			errs:      cand.errs,
		}
		if it.state == "" {
			if it.state, err = m.evaluate(ctx, it.resource, it.target, claimed); err != nil {
				exp.cleanup()
				return 0, err
			}
			claimed[layerKey(it.target)] = true
		}
		items[i] = it
		t.itemIDs = append(t.itemIDs, i)
	}

	m.mu.Lock()
	for _, it := range items {
		m.items[itemKey{contextID, taskID, it.id}] = it
	}
	m.tasks[taskKey{contextID, taskID}] = t
	c.taskIDs = append(c.taskIDs, taskID)
	c.updatedAt = time.Now()
	m.mu.Unlock()

	logger.With(logger.Fields{
		logger.FieldContextID: contextID,
		logger.FieldTaskID:    taskID,
		"kind":                exp.kind,
	}).WithCount(len(items)).Info(ctx, "Added task %q", t.name)
	return taskID, nil
}

// UpdateItem applies patch to an item and re-evaluates its state. The patch
// is applied entirely or not at all. A NO_CRS item only accepts patches that
// set an SRS.
func (m *Manager) UpdateItem(ctx context.Context, contextID int64, taskID, itemID int, patch ItemPatch) (ItemSnapshot, error) {
	c, err := m.acquire(contextID)
	if err != nil {
		return ItemSnapshot{}, err
	}
	defer c.lock.Unlock()

	key := itemKey{contextID, taskID, itemID}
	m.mu.RLock()
	it, ok := m.items[key]
	var (
		state    ItemState
		resource *reader.Resource
		target   Target
	)
	if ok {
		state, resource, target = it.state, it.resource.Clone(), it.target
	}
	ctxState := c.state
	claimed := m.claimedNames(contextID, &key)
	m.mu.RUnlock()

	if !ok {
		return ItemSnapshot{}, notFound("item %d/%d/%d", contextID, taskID, itemID)
	}
	if ctxState == ContextComplete {
		return ItemSnapshot{}, errors.WithHint(
			errors.Wrapf(ErrContextNotRunnable, "context %d is complete", contextID),
			"committed items cannot be changed")
	}
	if state.Terminal() {
		return ItemSnapshot{}, invalidPatch("only items that have not been committed can be changed",
			"item %d is %s", itemID, state)
	}

	if state == ItemNoCRS && patch.SRS == nil {
		return ItemSnapshot{}, invalidPatch("include an srs such as EPSG:4326 in the patch",
			"item %d has no SRS and the patch does not set one", itemID)
	}

	if err := m.applyPatch(ctx, patch, resource, &target); err != nil {
		return ItemSnapshot{}, err
	}

	next, err := m.evaluate(ctx, resource, target, claimed)
	if err != nil {
		return ItemSnapshot{}, err
	}
	if patch.Layer != nil && next == ItemIncomplete {
		return ItemSnapshot{}, invalidPatch("choose a layer name that is not in use",
			"layer %q already exists in workspace %q", target.Layer, target.Workspace)
	}

	m.mu.Lock()
	it.resource, it.target, it.state = resource, target, next
	c.updatedAt = time.Now()
	snap := m.itemSnapshot(it)
	m.mu.Unlock()

	m.log(ctx).WithFields(logger.Fields{
		logger.FieldContextID: contextID,
		logger.FieldTaskID:    taskID,
		logger.FieldItemID:    itemID,
		"from":                state,
		"to":                  next,
	}).Info("Updated item")
	return snap, nil
}

// SetTransforms replaces the transform chain of an item that has not been
// committed yet.
func (m *Manager) SetTransforms(ctx context.Context, contextID int64, taskID, itemID int, chain []Transform) error {
	for i, t := range chain {
		if t == nil {
			return invalidPatch("remove empty entries from the chain", "transform %d is nil", i)
		}
	}

	c, err := m.acquire(contextID)
	if err != nil {
		return err
	}
	defer c.lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemKey{contextID, taskID, itemID}]
	switch {
	case !ok:
		return notFound("item %d/%d/%d", contextID, taskID, itemID)
	case c.state == ContextComplete:
		return errors.Wrapf(ErrContextNotRunnable, "context %d is complete", contextID)
	case it.state.Terminal():
		return invalidPatch("only items that have not been committed can be changed",
			"item %d is %s", itemID, it.state)
	}
	it.chain = append([]Transform(nil), chain...)
	c.updatedAt = time.Now()
	return nil
}

// DiscardContext forgets a context and deletes the scratch directories of
// its tasks.
func (m *Manager) DiscardContext(ctx context.Context, contextID int64) error {
	c, err := m.acquire(contextID)
	if err != nil {
		return err
	}
	defer c.lock.Unlock()

	owned := m.remove(c)
	for _, dir := range owned {
		if err := os.RemoveAll(dir); err != nil {
			m.log(ctx).WithError(err).WithField("path", dir).Warn("Failed to remove scratch directory")
		}
	}
	m.log(ctx).WithField(logger.FieldContextID, contextID).Info("Discarded import context")
	return nil
}

// remove drops c and everything it owns from the tables and returns the
// paths to delete.
func (m *Manager) remove(c *importContext) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var owned []string
	for _, tid := range c.taskIDs {
		tk := taskKey{c.id, tid}
		t := m.tasks[tk]
		for _, iid := range t.itemIDs {
			delete(m.items, itemKey{c.id, tid, iid})
		}
		owned = append(owned, t.owned...)
		delete(m.tasks, tk)
	}
	delete(m.contexts, c.id)
	return owned
}

// Close waits for running operations and discards every context.
func (m *Manager) Close() error {
	m.mu.RLock()
	all := make([]*importContext, 0, len(m.contexts))
	for _, c := range m.contexts {
		all = append(all, c)
	}
	m.mu.RUnlock()

	var errs error
	for _, c := range all {
		c.lock.Lock()
		for _, dir := range m.remove(c) {
			if err := os.RemoveAll(dir); err != nil {
				errs = errors.CombineErrors(errs, err)
			}
		}
		c.lock.Unlock()
	}
	return errs
}

// GetContext returns a copy of a context with its tasks and items.
func (m *Manager) GetContext(id int64) (ContextSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contexts[id]
	if !ok {
		return ContextSnapshot{}, notFound("context %d", id)
	}
	return m.contextSnapshot(c), nil
}

// ListContexts returns every live context ordered by id.
func (m *Manager) ListContexts() []ContextSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ContextSnapshot, 0, len(m.contexts))
	for _, c := range m.contexts {
		out = append(out, m.contextSnapshot(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetTask returns a copy of a task with its items.
func (m *Manager) GetTask(contextID int64, taskID int) (TaskSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskKey{contextID, taskID}]
	if !ok {
		return TaskSnapshot{}, notFound("task %d/%d", contextID, taskID)
	}
	return m.taskSnapshot(t), nil
}

// GetItem returns a copy of an item.
func (m *Manager) GetItem(contextID int64, taskID, itemID int) (ItemSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[itemKey{contextID, taskID, itemID}]
	if !ok {
		return ItemSnapshot{}, notFound("item %d/%d/%d", contextID, taskID, itemID)
	}
	return m.itemSnapshot(it), nil
}

// The snapshot helpers expect mu to be held.

func (m *Manager) contextSnapshot(c *importContext) ContextSnapshot {
	snap := ContextSnapshot{
		ID:        c.id,
		State:     c.state,
		Target:    c.target,
		Tasks:     make([]TaskSnapshot, 0, len(c.taskIDs)),
		CreatedAt: c.createdAt,
		UpdatedAt: c.updatedAt,
	}
	for _, tid := range c.taskIDs {
		snap.Tasks = append(snap.Tasks, m.taskSnapshot(m.tasks[taskKey{c.id, tid}]))
	}
	if c.lastRun != nil {
		run := *c.lastRun
		run.Errors = append([]string(nil), c.lastRun.Errors...)
		snap.LastRun = &run
	}
	return snap
}

func (m *Manager) taskSnapshot(t *task) TaskSnapshot {
	snap := TaskSnapshot{
		ID:        t.id,
		ContextID: t.contextID,
		Name:      t.name,
		Kind:      t.kind,
		Items:     make([]ItemSnapshot, 0, len(t.itemIDs)),
	}
	states := make([]ItemState, 0, len(t.itemIDs))
	for _, iid := range t.itemIDs {
		it := m.items[itemKey{t.contextID, t.id, iid}]
		snap.Items = append(snap.Items, m.itemSnapshot(it))
		states = append(states, it.state)
	}
	snap.State = deriveTaskState(states)
	return snap
}

func (m *Manager) itemSnapshot(it *item) ItemSnapshot {
	return ItemSnapshot{
		ID:         it.id,
		ContextID:  it.contextID,
		TaskID:     it.taskID,
		State:      it.state,
		Resource:   it.resource.Clone(),
		Target:     resolvedTarget(it.resource, it.target),
		Transforms: transformNames(it.chain),
		Errors:     append([]RecordedError(nil), it.errs...),
	}
}

// orderedItems lists the keys of a context's items in execution order:
// tasks by insertion, items by id. mu must be held.
func (m *Manager) orderedItems(c *importContext) []itemKey {
	var keys []itemKey
	for _, tid := range c.taskIDs {
		for _, iid := range m.tasks[taskKey{c.id, tid}].itemIDs {
			keys = append(keys, itemKey{c.id, tid, iid})
		}
	}
	return keys
}
