package storage

import (
	"testing"

	"github.com/annel0/isoworld/internal/tileset"
	"github.com/annel0/isoworld/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, compress bool) *MapStore {
	t.Helper()
	store, err := NewMapStore(t.TempDir(), compress)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func buildMap(t *testing.T) *world.Map {
	t.Helper()
	m := world.NewMap(6, 8, 3, world.WithLayerHeight(2))
	tileset.Populate(m.Tiles(), tileset.Options{MaxCornerHeight: 2, LayerHeight: 2})

	for row := 0; row < 8; row++ {
		for col := 0; col < 6; col++ {
			require.NoError(t, m.CommandSet(world.CellCoord{Column: col, Row: row}, world.Cell{Tile: 0}))
		}
	}
	require.NoError(t, m.CommandRaiseTerrain(world.CellCoord{Column: 3, Row: 4}))
	require.NoError(t, m.CommandSet(world.CellCoord{Column: 0, Row: 7, Layer: 2}, world.Cell{Tile: 17}))
	m.ApplyCommands()
	return m
}

func cells(m *world.Map) map[world.CellCoord]world.Cell {
	out := make(map[world.CellCoord]world.Cell)
	for c, cell := range m.AllCells().All() {
		out[c] = cell
	}
	return out
}

func TestSaveAndLoadMap(t *testing.T) {
	for _, compress := range []bool{false, true} {
		store := setupTestStore(t, compress)
		original := buildMap(t)

		meta, err := store.Save("test", original)
		require.NoError(t, err)
		assert.NotEmpty(t, meta.ID)
		assert.Equal(t, compress, meta.Compressed)
		assert.Equal(t, original.CellCount(), meta.Cells)
		assert.Equal(t, 81, meta.Tiles)

		loaded, err := store.Load("test")
		require.NoError(t, err)

		assert.Equal(t, original.Width(), loaded.Width())
		assert.Equal(t, original.Height(), loaded.Height())
		assert.Equal(t, original.LayerCount(), loaded.LayerCount())
		assert.Equal(t, 2, loaded.LayerHeight())
		assert.Equal(t, original.Tiles().Len(), loaded.Tiles().Len())
		assert.Equal(t, cells(original), cells(loaded))

		tile, ok := loaded.Tile(world.CellCoord{Column: 0, Row: 7, Layer: 2})
		require.True(t, ok)
		want, _ := original.Tiles().Get(17)
		assert.Equal(t, want, tile, "Геометрия плитки сохраняется")
		require.NoError(t, loaded.Validate())
	}
}

func TestCompressionShrinksSnapshot(t *testing.T) {
	plain := setupTestStore(t, false)
	packed := setupTestStore(t, true)
	m := buildMap(t)

	a, err := plain.Save("m", m)
	require.NoError(t, err)
	b, err := packed.Save("m", m)
	require.NoError(t, err)

	assert.Less(t, b.Size, a.Size)
}

func TestLoadMissingMap(t *testing.T) {
	store := setupTestStore(t, true)

	_, err := store.Load("nope")
	assert.ErrorIs(t, err, ErrMapNotFound)

	_, err = store.Meta("nope")
	assert.ErrorIs(t, err, ErrMapNotFound)

	assert.ErrorIs(t, store.Delete("nope"), ErrMapNotFound)
}

func TestListAndDelete(t *testing.T) {
	store := setupTestStore(t, true)
	m := buildMap(t)

	for _, name := range []string{"beta", "alpha", "gamma"} {
		_, err := store.Save(name, m)
		require.NoError(t, err)
	}

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, "alpha", metas[0].Name)
	assert.Equal(t, "gamma", metas[2].Name)

	require.NoError(t, store.Delete("beta"))
	metas, err = store.List()
	require.NoError(t, err)
	assert.Len(t, metas, 2)

	_, err = store.Load("beta")
	assert.ErrorIs(t, err, ErrMapNotFound)
}

func TestSaveOverwritesAndChangesID(t *testing.T) {
	store := setupTestStore(t, false)
	m := buildMap(t)

	first, err := store.Save("m", m)
	require.NoError(t, err)

	require.NoError(t, m.CommandClear(world.CellCoord{Column: 0, Row: 0}))
	m.ApplyCommands()
	second, err := store.Save("m", m)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Cells-1, second.Cells)

	meta, err := store.Meta("m")
	require.NoError(t, err)
	assert.Equal(t, second.ID, meta.ID)
}

func TestClosedStore(t *testing.T) {
	store, err := NewMapStore(t.TempDir(), false)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "Повторное закрытие безопасно")

	_, err = store.Save("m", buildMap(t))
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.List()
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestSaveRejectsEmptyName(t *testing.T) {
	store := setupTestStore(t, false)
	_, err := store.Save("", buildMap(t))
	assert.Error(t, err)
}
