package generator

import (
	"testing"

	"github.com/annel0/isoworld/internal/tileset"
	"github.com/annel0/isoworld/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMap(t *testing.T) *world.Map {
	t.Helper()
	m := world.NewMap(12, 16, 4)
	tileset.Populate(m.Tiles(), tileset.DefaultOptions())
	return m
}

func cellsOf(m *world.Map) map[world.CellCoord]world.Cell {
	cells := make(map[world.CellCoord]world.Cell)
	r := m.AllCells()
	for r.Next() {
		cells[r.Coord()] = r.Cell()
	}
	return cells
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, b := newMap(t), newMap(t)
	opts := DefaultOptions()

	ra, err := New(opts).Generate(a)
	require.NoError(t, err)
	rb, err := New(opts).Generate(b)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)

	a.ApplyCommands()
	b.ApplyCommands()
	assert.Equal(t, cellsOf(a), cellsOf(b))
	require.NoError(t, a.Validate())
}

func TestGenerateReport(t *testing.T) {
	m := newMap(t)
	g := New(DefaultOptions())

	report, err := g.Generate(m)
	require.NoError(t, err)

	assert.Equal(t, 12*16, report.CellsPlaced)
	assert.Equal(t, 3, report.MaxHeight)

	sum := 0
	for row := 0; row < 16; row++ {
		for col := 0; col < 12; col++ {
			h := g.Height(col, row, report.MaxHeight)
			assert.GreaterOrEqual(t, h, 0)
			assert.LessOrEqual(t, h, report.MaxHeight)
			sum += h
		}
	}
	assert.Equal(t, sum, report.RaisesEnqueued)
	assert.Equal(t, report.CellsPlaced+report.RaisesEnqueued, m.Pending())
}

func TestGenerateClampsHeightToLayers(t *testing.T) {
	m := world.NewMap(4, 4, 2)
	tileset.Populate(m.Tiles(), tileset.DefaultOptions())
	opts := DefaultOptions()
	opts.MaxHeight = 10

	report, err := New(opts).Generate(m)
	require.NoError(t, err)
	assert.Equal(t, 1, report.MaxHeight)
}

func TestGenerateFlatWhenMaxHeightZero(t *testing.T) {
	m := newMap(t)
	opts := DefaultOptions()
	opts.MaxHeight = 0

	report, err := New(opts).Generate(m)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RaisesEnqueued)

	m.ApplyCommands()
	assert.Equal(t, 12*16, m.CellCount())
}

func TestGenerateRequiresFlatTile(t *testing.T) {
	m := world.NewMap(2, 2, 2)
	m.Tiles().Append(world.Tile{Heights: world.Heights{world.CornerN: 1}})

	_, err := New(DefaultOptions()).Generate(m)
	assert.ErrorIs(t, err, ErrNoFlatTile)
	assert.Equal(t, 0, m.Pending())
}
