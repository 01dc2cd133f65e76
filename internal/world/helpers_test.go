package world

import (
	"bytes"
	"testing"

	"github.com/annel0/isoworld/internal/logging"
	"github.com/stretchr/testify/require"
)

// addSlopeTiles добавляет плитки для всех сочетаний высот углов 0..max,
// плоская плитка идёт первой (индекс 0).
func addSlopeTiles(ts *TileStorage, max int) {
	for n := 0; n <= max; n++ {
		for e := 0; e <= max; e++ {
			for s := 0; s <= max; s++ {
				for w := 0; w <= max; w++ {
					ts.Append(Tile{Heights: Heights{CornerN: n, CornerE: e, CornerS: s, CornerW: w}})
				}
			}
		}
	}
}

// newTestMap создаёт карту с перехватом предупреждений в буфер
func newTestMap(width, height, layers int) (*Map, *bytes.Buffer) {
	var buf bytes.Buffer
	m := NewMap(width, height, layers,
		WithLogger(logging.NewWriterLogger("world", &buf, logging.WARN)))
	return m, &buf
}

// fillLayer ставит плитку index во все слоты слоя и применяет очередь
func fillLayer(t *testing.T, m *Map, layer int, index TileIndex) {
	t.Helper()
	for row := 0; row < m.Height(); row++ {
		for col := 0; col < m.Width(); col++ {
			require.NoError(t, m.CommandSet(CellCoord{Column: col, Row: row, Layer: layer}, Cell{Tile: index}))
		}
	}
	m.ApplyCommands()
}

// heightsAt возвращает высоты плитки по координатам или проваливает тест
func heightsAt(t *testing.T, m *Map, c CellCoord) Heights {
	t.Helper()
	tile, ok := m.Tile(c)
	require.True(t, ok, "ожидалась ячейка в %s", c)
	return tile.Heights
}

// snapshotCells собирает все ячейки карты по порядку обхода
func snapshotCells(m *Map) map[CellCoord]Cell {
	cells := make(map[CellCoord]Cell)
	for c, cell := range m.AllCells().All() {
		cells[c] = cell
	}
	return cells
}
