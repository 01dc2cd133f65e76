package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatHeights() Heights { return Heights{} }

func raise(t *testing.T, m *Map, c CellCoord) {
	t.Helper()
	require.NoError(t, m.CommandRaiseTerrain(c))
	m.ApplyCommands()
}

func TestRaiseTopLayerIsNoop(t *testing.T) {
	m, _ := newTestMap(3, 3, 2)
	addSlopeTiles(m.Tiles(), 1)
	c := CellCoord{Column: 1, Row: 1, Layer: 1}
	require.NoError(t, m.CommandSet(c, Cell{Tile: 0}))
	m.ApplyCommands()
	before := snapshotCells(m)

	raise(t, m, c)

	assert.Equal(t, before, snapshotCells(m))
	assert.Equal(t, uint64(1), m.Stats().RaisesRejected)
	assert.Equal(t, uint64(0), m.Stats().RaisesApplied)
}

func TestRaiseEmptyCellIsNoop(t *testing.T) {
	m, _ := newTestMap(3, 3, 3)
	addSlopeTiles(m.Tiles(), 1)
	require.NoError(t, m.CommandSet(CellCoord{Column: 0, Row: 0}, Cell{Tile: 0}))
	m.ApplyCommands()
	before := snapshotCells(m)

	raise(t, m, CellCoord{Column: 2, Row: 2})

	assert.Equal(t, before, snapshotCells(m))
	assert.Equal(t, uint64(1), m.Stats().RaisesRejected)
}

func TestRaiseWithoutFlatTileAborts(t *testing.T) {
	m, buf := newTestMap(3, 3, 2)
	m.Tiles().Append(Tile{Heights: Heights{CornerN: 1}})
	c := CellCoord{Column: 1, Row: 1}
	require.NoError(t, m.CommandSet(c, Cell{Tile: 0}))
	m.ApplyCommands()
	before := snapshotCells(m)

	raise(t, m, c)

	assert.Equal(t, before, snapshotCells(m))
	assert.Contains(t, buf.String(), "[WARN]")
	assert.Contains(t, buf.String(), "плоской плитки")
}

func TestRaiseSingleCellMovesUp(t *testing.T) {
	m, _ := newTestMap(3, 3, 2)
	addSlopeTiles(m.Tiles(), 1)
	c := CellCoord{Column: 1, Row: 1}
	require.NoError(t, m.CommandSet(c, Cell{Tile: 0}))
	m.ApplyCommands()

	raise(t, m, c)

	_, ok := m.Cell(c)
	assert.False(t, ok, "Исходная ячейка удалена")
	assert.Equal(t, flatHeights(), heightsAt(t, m, c.Above()))
	assert.Equal(t, 1, m.CellCount())
	assert.Equal(t, uint64(1), m.Stats().RaisesApplied)
}

func TestRaiseStitchesBottomNeighbors(t *testing.T) {
	m, buf := newTestMap(5, 8, 3)
	addSlopeTiles(m.Tiles(), 2)
	fillLayer(t, m, 0, 0)
	target := CellCoord{Column: 2, Row: 4}

	raise(t, m, target)

	_, ok := m.Cell(target)
	assert.False(t, ok)
	assert.Equal(t, flatHeights(), heightsAt(t, m, target.Above()))

	want := map[Direction]Heights{
		North:     {CornerS: 1},
		East:      {CornerW: 1},
		South:     {CornerN: 1},
		West:      {CornerE: 1},
		NorthEast: {CornerS: 1, CornerW: 1},
		SouthEast: {CornerN: 1, CornerW: 1},
		SouthWest: {CornerN: 1, CornerE: 1},
		NorthWest: {CornerE: 1, CornerS: 1},
	}
	for d, h := range want {
		assert.Equal(t, h, heightsAt(t, m, target.Neighbor(d)), "%s", d)
	}

	assert.Equal(t, CellCoord{Column: 2, Row: 6}, target.Neighbor(North))
	assert.Equal(t, CellCoord{Column: 2, Row: 5}, target.Neighbor(NorthEast))

	st := m.Stats()
	assert.Equal(t, uint64(8), st.TilesStitched)
	assert.Equal(t, uint64(0), st.ConnectionGaps)
	assert.Equal(t, 40, m.CellCount())
	assert.Empty(t, buf.String())
	require.NoError(t, m.Validate())
}

func TestRaiseLeavesGapsWhenTilesMissing(t *testing.T) {
	m, buf := newTestMap(5, 8, 3)
	addSlopeTiles(m.Tiles(), 0)
	fillLayer(t, m, 0, 0)
	target := CellCoord{Column: 2, Row: 4}

	raise(t, m, target)

	// Подъём выполнен, соседи остались плоскими
	_, ok := m.Cell(target.Above())
	assert.True(t, ok)
	for _, d := range Directions {
		assert.Equal(t, flatHeights(), heightsAt(t, m, target.Neighbor(d)))
	}

	st := m.Stats()
	assert.Equal(t, uint64(8), st.ConnectionGaps)
	assert.Equal(t, uint64(0), st.TilesStitched)
	assert.Contains(t, buf.String(), "разрыв")
}

func TestRaiseBlendsDiagonalWithSingleTopNeighbor(t *testing.T) {
	m, _ := newTestMap(5, 8, 3)
	addSlopeTiles(m.Tiles(), 2)
	fillLayer(t, m, 0, 0)
	north := CellCoord{Column: 2, Row: 6, Layer: 1}
	require.NoError(t, m.CommandSet(north, Cell{Tile: 0}))
	m.ApplyCommands()
	target := CellCoord{Column: 2, Row: 4}

	raise(t, m, target)

	// Верхний сосед соединён напрямую: обращённый угол уже на нуле
	assert.Equal(t, flatHeights(), heightsAt(t, m, north))
	assert.Equal(t, flatHeights(), heightsAt(t, m, north.Below()), "Нижний сосед N не трогается")

	assert.Equal(t, Heights{CornerN: 1, CornerE: 0, CornerS: 1, CornerW: 1},
		heightsAt(t, m, CellCoord{Column: 2, Row: 5}))
	assert.Equal(t, Heights{CornerN: 1, CornerE: 1, CornerS: 1, CornerW: 0},
		heightsAt(t, m, CellCoord{Column: 1, Row: 5}))

	// Остальные направления сшиты по нижнему слою
	assert.Equal(t, Heights{CornerN: 1}, heightsAt(t, m, target.Neighbor(South)))
	assert.Equal(t, Heights{CornerN: 1, CornerW: 1}, heightsAt(t, m, target.Neighbor(SouthEast)))

	st := m.Stats()
	assert.Equal(t, uint64(8), st.TilesStitched)
	assert.Equal(t, uint64(0), st.ConnectionGaps)
}

func TestRaiseTopNeighborGetsSlope(t *testing.T) {
	m, _ := newTestMap(5, 8, 3)
	addSlopeTiles(m.Tiles(), 2)
	fillLayer(t, m, 0, 0)

	// Верхний сосед E со всеми углами на 1
	east := CellCoord{Column: 3, Row: 4, Layer: 1}
	slope, ok := m.Tiles().FindMatching(Heights{1, 1, 1, 1})
	require.True(t, ok)
	require.NoError(t, m.CommandSet(east, Cell{Tile: slope}))
	m.ApplyCommands()

	raise(t, m, CellCoord{Column: 2, Row: 4})

	assert.Equal(t, Heights{CornerN: 1, CornerE: 1, CornerS: 1, CornerW: 0}, heightsAt(t, m, east))
}

func TestRaiseBothCardinalsRaisesBelowDiagonal(t *testing.T) {
	m, _ := newTestMap(5, 8, 4)
	addSlopeTiles(m.Tiles(), 3)
	fillLayer(t, m, 0, 0)
	target := CellCoord{Column: 2, Row: 4, Layer: 1}
	for _, c := range []CellCoord{
		target,
		{Column: 2, Row: 6, Layer: 2},
		{Column: 3, Row: 4, Layer: 2},
	} {
		require.NoError(t, m.CommandSet(c, Cell{Tile: 0}))
	}
	m.ApplyCommands()

	raise(t, m, target)

	_, ok := m.Cell(target)
	assert.False(t, ok)
	assert.Equal(t, flatHeights(), heightsAt(t, m, target.Above()))

	// Под диагональю NE поднята ячейка со слоя 0
	_, ok = m.Cell(CellCoord{Column: 2, Row: 5, Layer: 0})
	assert.False(t, ok)
	_, ok = m.Cell(CellCoord{Column: 2, Row: 5, Layer: 1})
	assert.True(t, ok)

	// Фундамент под направлением W
	_, ok = m.Cell(CellCoord{Column: 1, Row: 4, Layer: 0})
	assert.False(t, ok)
	_, ok = m.Cell(CellCoord{Column: 1, Row: 4, Layer: 1})
	assert.True(t, ok)

	assert.Greater(t, m.Stats().RaisesApplied, uint64(1))
	require.NoError(t, m.Validate())
}

func TestRaiseRepeatedlyTerminates(t *testing.T) {
	m, _ := newTestMap(6, 10, 5)
	addSlopeTiles(m.Tiles(), 2)
	fillLayer(t, m, 0, 0)
	c := CellCoord{Column: 3, Row: 5}

	applied := m.Stats().CommandsApplied

	for layer := 0; layer < 4; layer++ {
		raise(t, m, CellCoord{Column: c.Column, Row: c.Row, Layer: layer})
	}

	assert.Equal(t, flatHeights(), heightsAt(t, m, CellCoord{Column: 3, Row: 5, Layer: 4}))
	st := m.Stats()
	assert.Equal(t, applied+4, st.CommandsApplied)
	assert.GreaterOrEqual(t, st.RaisesApplied, uint64(4))
	require.NoError(t, m.Validate())
}

func TestRaiseRejectsCallerLayerViolation(t *testing.T) {
	m, buf := newTestMap(3, 3, 3)
	addSlopeTiles(m.Tiles(), 1)
	c := CellCoord{Column: 1, Row: 1, Layer: 1}
	require.NoError(t, m.CommandSet(c, Cell{Tile: 0}))
	m.ApplyCommands()

	m.state.raiseTerrain(c, 1)

	_, ok := m.Cell(c)
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "[ERROR]")
}

func TestRaiseNestedNoopsAreNotRejections(t *testing.T) {
	m, _ := newTestMap(5, 8, 3)
	addSlopeTiles(m.Tiles(), 1)
	target := CellCoord{Column: 2, Row: 4, Layer: 1}
	require.NoError(t, m.CommandSet(target, Cell{Tile: 0}))
	m.ApplyCommands()

	// Фундамент пытается поднять пустые слоты слоя 0 под всеми восемью соседями
	raise(t, m, target)

	st := m.Stats()
	assert.Equal(t, uint64(1), st.RaisesApplied)
	assert.Equal(t, uint64(0), st.RaisesRejected)
	assert.Equal(t, flatHeights(), heightsAt(t, m, target.Above()))

	// Отклонение самой команды по-прежнему считается
	raise(t, m, CellCoord{Column: 0, Row: 0, Layer: 1})
	assert.Equal(t, uint64(1), m.Stats().RaisesRejected)
}
