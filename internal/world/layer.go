package world

import (
	"fmt"
	"sort"

	"github.com/boljen/go-bitmap"
)

// Cell занятое состояние слота сетки: только ссылка на плитку.
// Само наличие Cell по координатам означает "здесь есть земля".
type Cell struct {
	Tile TileIndex `json:"tile"`
}

// cellEntry элемент строки: колонка и ячейка
type cellEntry struct {
	Column int
	Cell   Cell
}

// CellLayer один уровень высоты: разреженная сетка width×height.
//
// Наличие ячеек хранится в битовой матрице (O(1) проверка), сами ячейки:
// построчно в срезах, отсортированных по колонке без повторов.
// Строка выделяется только при первой вставке.
//
// Координаты не проверяются: вызывающий код обязан передавать
// column < width и row < height.
type CellLayer struct {
	width    int
	height   int
	presence bitmap.Bitmap
	rows     [][]cellEntry
	count    int
}

// NewCellLayer создаёт пустой слой
func NewCellLayer(width, height int) *CellLayer {
	return &CellLayer{
		width:    width,
		height:   height,
		presence: bitmap.New(width * height),
		rows:     make([][]cellEntry, height),
	}
}

// Width возвращает ширину слоя
func (l *CellLayer) Width() int { return l.width }

// Height возвращает высоту слоя
func (l *CellLayer) Height() int { return l.height }

// Len возвращает количество занятых слотов
func (l *CellLayer) Len() int { return l.count }

func (l *CellLayer) bit(column, row int) int {
	return row*l.width + column
}

// HasCell проверяет наличие ячейки через битовую матрицу
func (l *CellLayer) HasCell(column, row int) bool {
	return l.presence.Get(l.bit(column, row))
}

// Cell возвращает ячейку по координатам
func (l *CellLayer) Cell(column, row int) (Cell, bool) {
	if !l.HasCell(column, row) {
		return Cell{}, false
	}
	entries := l.rows[row]
	i := l.search(entries, column)
	return entries[i].Cell, true
}

// SetCell устанавливает ячейку. Пустой слот вставляется с сохранением порядка
// колонок, занятый перезаписывается на месте.
func (l *CellLayer) SetCell(column, row int, cell Cell) {
	entries := l.rows[row]

	if l.HasCell(column, row) {
		entries[l.search(entries, column)].Cell = cell
		return
	}

	entry := cellEntry{Column: column, Cell: cell}
	if n := len(entries); n == 0 || entries[n-1].Column < column {
		// Быстрый путь: генерация мира обычно идёт слева направо
		l.rows[row] = append(entries, entry)
	} else {
		i := l.search(entries, column)
		entries = append(entries, cellEntry{})
		copy(entries[i+1:], entries[i:])
		entries[i] = entry
		l.rows[row] = entries
	}

	l.presence.Set(l.bit(column, row), true)
	l.count++
}

// DeleteCell удаляет ячейку, сдвигая хвост строки. Отсутствующая ячейка: no-op.
func (l *CellLayer) DeleteCell(column, row int) {
	if !l.HasCell(column, row) {
		return
	}

	entries := l.rows[row]
	i := l.search(entries, column)
	copy(entries[i:], entries[i+1:])
	entries[len(entries)-1] = cellEntry{}
	l.rows[row] = entries[:len(entries)-1]

	l.presence.Set(l.bit(column, row), false)
	l.count--
}

// row возвращает отсортированные записи строки (только для чтения)
func (l *CellLayer) row(row int) []cellEntry {
	return l.rows[row]
}

// search возвращает индекс первой записи с колонкой >= column
func (l *CellLayer) search(entries []cellEntry, column int) int {
	return sort.Search(len(entries), func(i int) bool {
		return entries[i].Column >= column
	})
}

// Validate проверяет структурные инварианты слоя: строки отсортированы
// без повторов, битовая матрица и счётчик согласованы со строками.
func (l *CellLayer) Validate() error {
	total := 0
	for r, entries := range l.rows {
		for i, e := range entries {
			if e.Column < 0 || e.Column >= l.width {
				return fmt.Errorf("строка %d: колонка %d вне слоя шириной %d", r, e.Column, l.width)
			}
			if i > 0 && entries[i-1].Column >= e.Column {
				return fmt.Errorf("строка %d: колонки не упорядочены (%d после %d)", r, e.Column, entries[i-1].Column)
			}
			if !l.HasCell(e.Column, r) {
				return fmt.Errorf("строка %d: колонка %d отсутствует в битовой матрице", r, e.Column)
			}
		}
		total += len(entries)
	}

	if total != l.count {
		return fmt.Errorf("счётчик ячеек %d не совпадает с содержимым строк %d", l.count, total)
	}

	bits := 0
	for i := 0; i < l.width*l.height; i++ {
		if l.presence.Get(i) {
			bits++
		}
	}
	if bits != total {
		return fmt.Errorf("битовая матрица содержит %d ячеек, строки %d", bits, total)
	}
	return nil
}
