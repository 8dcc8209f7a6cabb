package importer

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/geoimport/internal/reader/readertest"
)

func strPtr(s string) *string { return &s }

func TestCreateContext_Targets(t *testing.T) {
	testCases := []struct {
		name    string
		target  TargetSpec
		wantErr error
	}{
		{name: "defaults", target: TargetSpec{}},
		{name: "known workspace", target: TargetSpec{Workspace: "topp"}},
		{name: "known store", target: TargetSpec{Workspace: "topp", Store: "states"}},
		{name: "unknown workspace", target: TargetSpec{Workspace: "nope"}, wantErr: ErrInvalidTarget},
		{name: "store in default workspace", target: TargetSpec{Store: "states"}, wantErr: ErrInvalidTarget},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newTestManager(t)
			id, err := m.CreateContext(context.Background(), tc.target)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, m.ListContexts())
				return
			}
			require.NoError(t, err)
			snap, err := m.GetContext(id)
			require.NoError(t, err)
			assert.Equal(t, ContextPending, snap.State)
			assert.Equal(t, tc.target, snap.Target)
		})
	}
}

func TestCreateContext_MonotonicIDs(t *testing.T) {
	m, _ := newTestManager(t)
	a := mustContext(t, m)
	b := mustContext(t, m)
	require.NoError(t, m.DiscardContext(context.Background(), b))
	c := mustContext(t, m)

	assert.Less(t, a, b)
	assert.Less(t, b, c)
	assert.Len(t, m.ListContexts(), 2)
}

func TestUpdateItem_SRS(t *testing.T) {
	m, _ := newTestManager(t)
	id := mustContext(t, m)
	task := mustTask(t, m, id, mixedDir(t))
	require.Equal(t, ItemNoCRS, task.Items[1].State)

	t.Run("unparsable srs", func(t *testing.T) {
		_, err := m.UpdateItem(context.Background(), id, task.ID, 1, ItemPatch{SRS: strPtr("EPSG:banana")})
		require.ErrorIs(t, err, ErrInvalidPatch)
		assert.NotEmpty(t, errors.GetAllHints(err))

		it, err := m.GetItem(id, task.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, ItemNoCRS, it.State)
		assert.Empty(t, it.Resource.SRS)
	})

	t.Run("invalid patch is all or nothing", func(t *testing.T) {
		_, err := m.UpdateItem(context.Background(), id, task.ID, 1, ItemPatch{
			SRS:   strPtr("EPSG:4326"),
			Layer: strPtr("9 not a name"),
		})
		require.ErrorIs(t, err, ErrInvalidPatch)

		it, err := m.GetItem(id, task.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, ItemNoCRS, it.State)
		assert.Equal(t, "bugsites", it.Target.Layer)
	})

	t.Run("patch without srs on NO_CRS item", func(t *testing.T) {
		for _, patch := range []ItemPatch{
			{Style: strPtr("point")},
			{Store: strPtr("states"), Workspace: strPtr("topp")},
			{Layer: strPtr("bugs")},
		} {
			_, err := m.UpdateItem(context.Background(), id, task.ID, 1, patch)
			require.ErrorIs(t, err, ErrInvalidPatch)
		}

		it, err := m.GetItem(id, task.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, ItemNoCRS, it.State)
		assert.Equal(t, Target{Workspace: "gs", Store: "shapefile", Layer: "bugsites", Style: "gs_bugsites"}, it.Target)
	})

	t.Run("valid srs", func(t *testing.T) {
		it, err := m.UpdateItem(context.Background(), id, task.ID, 1, ItemPatch{SRS: strPtr("urn:ogc:def:crs:EPSG::26713")})
		require.NoError(t, err)
		assert.Equal(t, ItemReady, it.State)
		assert.Equal(t, "EPSG:26713", it.Resource.SRS)
	})
}

func TestUpdateItem_LayerName(t *testing.T) {
	m, cat := newTestManager(t)
	cat.layers["gs/csv/people"] = &LayerRecord{Workspace: "gs", Store: "csv", Name: "people"}
	cat.layers["gs/csv/taken"] = &LayerRecord{Workspace: "gs", Store: "csv", Name: "taken"}

	id := mustContext(t, m)
	path := readertest.WriteFile(t, t.TempDir(), "people.csv", "name\nann\n")
	task := mustTask(t, m, id, path)
	require.Equal(t, ItemIncomplete, task.Items[0].State)

	_, err := m.UpdateItem(context.Background(), id, task.ID, 0, ItemPatch{Layer: strPtr("taken")})
	require.ErrorIs(t, err, ErrInvalidPatch)

	it, err := m.UpdateItem(context.Background(), id, task.ID, 0, ItemPatch{Layer: strPtr("people_2024"), Style: strPtr("point")})
	require.NoError(t, err)
	assert.Equal(t, ItemReady, it.State)
	assert.Equal(t, Target{Workspace: "gs", Store: "csv", Layer: "people_2024", Style: "point"}, it.Target)
}

func TestUpdateItem_Store(t *testing.T) {
	m, _ := newTestManager(t)
	id := mustContext(t, m)
	path := readertest.WriteFile(t, t.TempDir(), "people.csv", "name\nann\n")
	task := mustTask(t, m, id, path)

	_, err := m.UpdateItem(context.Background(), id, task.ID, 0, ItemPatch{Store: strPtr("states")})
	require.ErrorIs(t, err, ErrInvalidPatch)

	it, err := m.UpdateItem(context.Background(), id, task.ID, 0, ItemPatch{Workspace: strPtr("topp"), Store: strPtr("states")})
	require.NoError(t, err)
	assert.Equal(t, "topp", it.Target.Workspace)
	assert.Equal(t, "states", it.Target.Store)
	assert.Equal(t, "topp_people", it.Target.Style)
}

func TestUpdateItem_NotFound(t *testing.T) {
	m, _ := newTestManager(t)
	id := mustContext(t, m)

	_, err := m.UpdateItem(context.Background(), id, 0, 0, ItemPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.UpdateItem(context.Background(), id+100, 0, 0, ItemPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateItem_TerminalItem(t *testing.T) {
	m, _ := newTestManager(t)
	id := mustContext(t, m)
	task := mustTask(t, m, id, mixedDir(t))

	state, err := m.RunContext(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ContextIncomplete, state)

	_, err = m.UpdateItem(context.Background(), id, task.ID, 0, ItemPatch{Layer: strPtr("renamed")})
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestSetTransforms(t *testing.T) {
	m, _ := newTestManager(t)
	id := mustContext(t, m)
	task := mustTask(t, m, id, mixedDir(t))

	tr := &testTransform{name: "noop"}
	require.NoError(t, m.SetTransforms(context.Background(), id, task.ID, 0, []Transform{tr}))

	it, err := m.GetItem(id, task.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"noop"}, it.Transforms)

	err = m.SetTransforms(context.Background(), id, task.ID, 0, []Transform{nil})
	assert.ErrorIs(t, err, ErrInvalidPatch)
}
