package world

import "iter"

// CellRange однопроходный итератор по занятым ячейкам в полуоткрытом окне
// [Min, Max) по колонкам, строкам и слоям. Порядок обхода: слой, затем строка,
// затем колонка, всё по возрастанию. Пустые строки и слои пропускаются.
// Для повторного обхода итератор создаётся заново.
//
// Использование:
//
//	r := m.CellRange(min, max)
//	for r.Next() {
//		draw(r.Coord(), r.Cell())
//	}
//
// Изменять карту во время обхода нельзя.
type CellRange struct {
	state *CellState
	min   CellCoord
	max   CellCoord

	layer   int
	row     int
	entries []cellEntry // записи текущей строки, уже обрезанные по колонкам
	pos     int

	coord   CellCoord
	cell    Cell
	started bool
	done    bool
}

// NewCellRange создаёт итератор. Границы за пределами карты обрезаются.
func NewCellRange(state *CellState, min, max CellCoord) *CellRange {
	clampedMin := CellCoord{
		Column: clamp(min.Column, 0, state.width),
		Row:    clamp(min.Row, 0, state.height),
		Layer:  clamp(min.Layer, 0, len(state.layers)),
	}
	clampedMax := CellCoord{
		Column: clamp(max.Column, 0, state.width),
		Row:    clamp(max.Row, 0, state.height),
		Layer:  clamp(max.Layer, 0, len(state.layers)),
	}

	return &CellRange{
		state: state,
		min:   clampedMin,
		max:   clampedMax,
		layer: clampedMin.Layer,
		row:   clampedMin.Row,
	}
}

// Next переходит к следующей занятой ячейке. false: обход закончен.
func (r *CellRange) Next() bool {
	if r.done {
		return false
	}

	if !r.started {
		r.started = true
		if r.min.Column >= r.max.Column || r.min.Row >= r.max.Row {
			r.done = true
			return false
		}
		r.loadRow()
	} else {
		r.pos++
	}

	for r.pos >= len(r.entries) {
		if !r.advanceRow() {
			r.done = true
			return false
		}
	}

	e := r.entries[r.pos]
	r.coord = CellCoord{Column: e.Column, Row: r.row, Layer: r.layer}
	r.cell = e.Cell
	return true
}

// Coord возвращает координаты текущей ячейки
func (r *CellRange) Coord() CellCoord { return r.coord }

// Cell возвращает текущую ячейку
func (r *CellRange) Cell() Cell { return r.cell }

// All возвращает последовательность для range-over-func. Итератор при этом
// расходуется так же, как при ручных вызовах Next.
func (r *CellRange) All() iter.Seq2[CellCoord, Cell] {
	return func(yield func(CellCoord, Cell) bool) {
		for r.Next() {
			if !yield(r.coord, r.cell) {
				return
			}
		}
	}
}

// Count расходует итератор и возвращает количество ячеек
func (r *CellRange) Count() int {
	n := 0
	for r.Next() {
		n++
	}
	return n
}

// advanceRow переходит на следующую строку (и при необходимости слой).
// Пустые слои пропускаются целиком без обхода строк.
func (r *CellRange) advanceRow() bool {
	r.row++
	for {
		if r.layer >= r.max.Layer {
			return false
		}
		if r.row >= r.max.Row || r.state.layers[r.layer].Len() == 0 {
			r.layer++
			r.row = r.min.Row
			continue
		}
		r.loadRow()
		return true
	}
}

// loadRow загружает записи текущей строки в пределах колонок окна
func (r *CellRange) loadRow() {
	r.pos = 0
	r.entries = nil
	if r.layer >= r.max.Layer {
		return
	}

	layer := r.state.layers[r.layer]
	entries := layer.row(r.row)
	if len(entries) == 0 {
		return
	}

	start := layer.search(entries, r.min.Column)
	end := layer.search(entries, r.max.Column)
	r.entries = entries[start:end]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
