package importer

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/geoimport/internal/reader"
)

type baseOnly struct {
	BaseTransform
}

func (baseOnly) Name() string { return "base" }

func (baseOnly) Apply(context.Context, *ItemData) error { return errors.New("always") }

func TestBaseTransformDefaults(t *testing.T) {
	var tr Transform = baseOnly{}
	assert.NoError(t, tr.Init(context.Background()))
	assert.True(t, tr.StopOnError(errors.New("any")))
}

func sampleData() *ItemData {
	return &ItemData{
		Resource: &reader.Resource{Name: "sites", Format: "csv"},
		Features: []reader.Feature{{Attributes: map[string]interface{}{"id": int64(1)}}},
		Target:   Target{Workspace: "gs", Layer: "sites"},
	}
}

func TestRunChain(t *testing.T) {
	testCases := []struct {
		name        string
		chain       []Transform
		wantAborted bool
		wantErrs    int
		wantLayer   string
	}{
		{
			name:      "empty chain",
			wantLayer: "sites",
		},
		{
			name: "rename",
			chain: []Transform{&testTransform{name: "rename", apply: func(_ context.Context, d *ItemData) error {
				d.Target.Layer = "renamed"
				return nil
			}}},
			wantLayer: "renamed",
		},
		{
			name:        "stop on error",
			chain:       []Transform{baseOnly{}, &testTransform{name: "never"}},
			wantAborted: true,
			wantErrs:    1,
			wantLayer:   "sites",
		},
		{
			name: "panic is a failure",
			chain: []Transform{&testTransform{name: "boom", apply: func(context.Context, *ItemData) error {
				panic("boom")
			}}},
			wantErrs:  1,
			wantLayer: "sites",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := runChain(context.Background(), newInitTracker(), tc.chain, sampleData())
			assert.Equal(t, tc.wantAborted, res.aborted)
			require.Len(t, res.errs, tc.wantErrs)
			assert.Equal(t, tc.wantLayer, res.data.Target.Layer)
			for _, e := range res.errs {
				assert.Equal(t, KindTransform, e.Kind)
			}
		})
	}
}

// panicInit panics while initializing.
type panicInit struct {
	BaseTransform
}

func (panicInit) Name() string { return "panic-init" }

func (panicInit) Init(context.Context) error { panic("init boom") }

func (panicInit) Apply(context.Context, *ItemData) error { return nil }

func TestRunChain_InitPanic(t *testing.T) {
	var res chainResult
	require.NotPanics(t, func() {
		res = runChain(context.Background(), newInitTracker(), []Transform{panicInit{}}, sampleData())
	})
	assert.True(t, res.aborted)
	require.Len(t, res.errs, 1)
	assert.Contains(t, res.errs[0].Message, "init boom")
	assert.Equal(t, "panic-init", res.errs[0].Transform)
}

func TestRunContext_InitPanicSettles(t *testing.T) {
	m, _ := newTestManager(t)
	id := mustContext(t, m)
	task := mustTask(t, m, id, mixedDir(t))
	require.Equal(t, ItemReady, task.Items[0].State)
	require.NoError(t, m.SetTransforms(context.Background(), id, task.ID, 0, []Transform{panicInit{}}))

	var (
		state ContextState
		err   error
	)
	require.NotPanics(t, func() {
		state, err = m.RunContext(context.Background(), id)
	})
	require.NoError(t, err)
	assert.Equal(t, ContextIncomplete, state)

	it, err := m.GetItem(id, task.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, ItemError, it.State)

	snap, err := m.GetContext(id)
	require.NoError(t, err)
	assert.NotEqual(t, ContextRunning, snap.State)

	require.NotPanics(t, func() {
		_, err = m.RunContext(context.Background(), id)
	})
	assert.NoError(t, err)
}

func TestItemDataCloneIsDeep(t *testing.T) {
	d := sampleData()
	c := d.Clone()
	c.Features[0].Attributes["id"] = int64(2)
	c.Resource.Name = "other"

	assert.Equal(t, int64(1), d.Features[0].Attributes["id"])
	assert.Equal(t, "sites", d.Resource.Name)
}

func TestDeriveTaskState(t *testing.T) {
	testCases := []struct {
		states []ItemState
		want   TaskState
	}{
		{states: []ItemState{ItemReady, ItemReady}, want: TaskReady},
		{states: []ItemState{ItemReady, ItemComplete}, want: TaskReady},
		{states: []ItemState{ItemComplete, ItemComplete}, want: TaskComplete},
		{states: []ItemState{ItemComplete, ItemNoCRS, ItemError}, want: TaskIncomplete},
		{states: []ItemState{ItemComplete, ItemError}, want: TaskError},
		{states: []ItemState{ItemNoFormat}, want: TaskError},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, deriveTaskState(tc.states), "%v", tc.states)
	}
}
