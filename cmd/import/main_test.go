package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/geoimport/internal/config"
	"github.com/timmy/geoimport/internal/importer"
	"github.com/timmy/geoimport/internal/reader/readertest"
	"github.com/timmy/geoimport/internal/repository"
	"github.com/timmy/geoimport/internal/source"
)

func TestBuildChain(t *testing.T) {
	chain, err := buildChain([]string{"CAT_ID=id"}, []string{"NAME"})
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "rename(CAT_ID->id)", chain[0].Name())

	_, err = buildChain([]string{"CAT_ID"}, nil)
	assert.Error(t, err)

	chain, err = buildChain(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestRunImport(t *testing.T) {
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "catalog.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	catalog := repository.NewCatalogRepository(db)
	ctx := context.Background()
	require.NoError(t, catalog.EnsureDefaults(ctx, "gs"))

	dir := t.TempDir()
	readertest.WriteShapefile(t, dir, readertest.DefaultShapefile("bugsites", ""))

	m := importer.NewManager(catalog, &importer.Config{ScratchDir: t.TempDir()})
	t.Cleanup(func() { _ = m.Close() })

	state, err := runImport(ctx, m, importer.TargetSpec{}, []source.Entry{{Path: dir}}, "")
	require.NoError(t, err)
	assert.Equal(t, importer.ContextIncomplete, state)

	state, err = runImport(ctx, m, importer.TargetSpec{}, []source.Entry{{Path: dir}}, "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, importer.ContextComplete, state)

	layer, err := catalog.GetLayer(ctx, "gs", "bugsites")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", layer.SRS)
}

func TestRunImportOverrides(t *testing.T) {
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "catalog.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	catalog := repository.NewCatalogRepository(db)
	ctx := context.Background()
	require.NoError(t, catalog.EnsureDefaults(ctx, "gs"))

	dir := t.TempDir()
	path := readertest.WriteShapefile(t, dir, readertest.DefaultShapefile("bugsites", ""))

	m := importer.NewManager(catalog, &importer.Config{ScratchDir: t.TempDir()})
	t.Cleanup(func() { _ = m.Close() })

	state, err := runImport(ctx, m, importer.TargetSpec{}, []source.Entry{
		{Path: path, SRS: "EPSG:26713", Layer: "bugs", Style: "point"},
	}, "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, importer.ContextComplete, state)

	layer, err := catalog.GetLayer(ctx, "gs", "bugs")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:26713", layer.SRS)
	assert.Equal(t, "point", layer.Style)
}

func TestEntryPatch(t *testing.T) {
	e := source.Entry{Path: "x.shp", SRS: "EPSG:3857", Layer: "roads"}

	p := entryPatch(e, true)
	require.NotNil(t, p.SRS)
	require.NotNil(t, p.Layer)
	assert.Equal(t, "roads", *p.Layer)
	assert.Nil(t, p.Style)

	p = entryPatch(e, false)
	assert.Nil(t, p.Layer)

	assert.True(t, entryPatch(source.Entry{Path: "x.shp"}, true).Empty())
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, importer.ContextSnapshot{
		ID:    3,
		State: importer.ContextError,
		Tasks: []importer.TaskSnapshot{{
			Name: "roads.geojson",
			Items: []importer.ItemSnapshot{{
				ID:     0,
				State:  importer.ItemError,
				Target: importer.Target{Workspace: "gs", Store: "geojson", Layer: "roads"},
				Errors: []importer.RecordedError{{Kind: importer.KindCatalog, Message: "store offline"}},
			}},
		}},
	})
	out := buf.String()
	assert.Contains(t, out, "gs:roads")
	assert.Contains(t, out, "store offline")
	assert.Contains(t, out, "import 3: ERROR")
}
