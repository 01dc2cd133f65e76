package world

import (
	"errors"
	"fmt"

	"github.com/annel0/isoworld/internal/logging"
)

// DefaultCommandQueueCeiling ёмкость очереди команд, до которой она ужимается после применения
const DefaultCommandQueueCeiling = 4096

var (
	// ErrOutOfBounds координаты команды вне карты
	ErrOutOfBounds = errors.New("координаты вне карты")
	// ErrUnknownTile индекс плитки не существует в TileStorage
	ErrUnknownTile = errors.New("неизвестная плитка")
)

// Map фасад мира: владеет плитками, слоями и очередью отложенных команд.
//
// Контракт вызова: Command* можно вызывать сколько угодно раз за тик,
// ApplyCommands: ровно один раз за тик из одной горутины, между кадрами,
// без параллельных читателей. Map не содержит блокировок.
type Map struct {
	tiles   *TileStorage
	state   *CellState
	pending []MapCommand
	ceiling int
}

// Option настраивает Map при создании
type Option func(m *Map)

// WithLayerHeight задаёт высоту слоя в единицах высоты углов плитки
func WithLayerHeight(h int) Option {
	return func(m *Map) {
		if h > 0 {
			m.state.layerHeight = h
		}
	}
}

// WithQueueCeiling задаёт ёмкость, до которой ужимается очередь команд
func WithQueueCeiling(n int) Option {
	return func(m *Map) {
		if n > 0 {
			m.ceiling = n
		}
	}
}

// WithLogger подменяет логгер компонента world
func WithLogger(l *logging.Logger) Option {
	return func(m *Map) {
		if l != nil {
			m.state.log = l
		}
	}
}

// NewMap создаёт пустую карту фиксированного размера с пустым каталогом плиток
func NewMap(width, height, layerCount int, opts ...Option) *Map {
	tiles := NewTileStorage()
	m := &Map{
		tiles:   tiles,
		state:   NewCellState(width, height, layerCount, tiles),
		ceiling: DefaultCommandQueueCeiling,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tiles возвращает каталог плиток. Плитки добавляются до того,
// как на них сошлётся хоть одна ячейка, и никогда не удаляются.
func (m *Map) Tiles() *TileStorage { return m.tiles }

// Width возвращает количество колонок
func (m *Map) Width() int { return m.state.width }

// Height возвращает количество строк
func (m *Map) Height() int { return m.state.height }

// LayerCount возвращает количество слоёв
func (m *Map) LayerCount() int { return len(m.state.layers) }

// LayerHeight возвращает высоту слоя в единицах высоты углов
func (m *Map) LayerHeight() int { return m.state.layerHeight }

// InBounds проверяет координаты
func (m *Map) InBounds(c CellCoord) bool { return m.state.InBounds(c) }

// Cell возвращает ячейку по координатам
func (m *Map) Cell(c CellCoord) (Cell, bool) { return m.state.Cell(c) }

// Tile возвращает плитку ячейки по координатам
func (m *Map) Tile(c CellCoord) (Tile, bool) { return m.state.Tile(c) }

// CellCount возвращает количество занятых слотов
func (m *Map) CellCount() int { return m.state.Count() }

// Stats возвращает счётчики применённых команд
func (m *Map) Stats() Stats { return m.state.Stats() }

// Validate проверяет структурные инварианты слоёв
func (m *Map) Validate() error { return m.state.Validate() }

// AllCells возвращает итератор по всем занятым ячейкам карты
func (m *Map) AllCells() *CellRange {
	return NewCellRange(m.state, CellCoord{}, CellCoord{
		Column: m.state.width,
		Row:    m.state.height,
		Layer:  len(m.state.layers),
	})
}

// CellRange возвращает итератор по окну [min, max)
func (m *Map) CellRange(min, max CellCoord) *CellRange {
	return NewCellRange(m.state, min, max)
}

// CommandSet ставит в очередь установку ячейки
func (m *Map) CommandSet(c CellCoord, cell Cell) error {
	if !m.state.InBounds(c) {
		return fmt.Errorf("set %s: %w", c, ErrOutOfBounds)
	}
	if !m.tiles.Valid(cell.Tile) {
		return fmt.Errorf("set %s tile=%d: %w", c, cell.Tile, ErrUnknownTile)
	}
	m.pending = append(m.pending, SetCellCommand{Coord: c, Cell: cell})
	return nil
}

// CommandClear ставит в очередь удаление ячейки
func (m *Map) CommandClear(c CellCoord) error {
	if !m.state.InBounds(c) {
		return fmt.Errorf("clear %s: %w", c, ErrOutOfBounds)
	}
	m.pending = append(m.pending, ClearCellCommand{Coord: c})
	return nil
}

// CommandRaiseTerrain ставит в очередь подъём ячейки
func (m *Map) CommandRaiseTerrain(c CellCoord) error {
	if !m.state.InBounds(c) {
		return fmt.Errorf("raise %s: %w", c, ErrOutOfBounds)
	}
	m.pending = append(m.pending, RaiseTerrainCommand{Coord: c})
	return nil
}

// Enqueue ставит в очередь произвольную команду с той же проверкой, что и Command*
func (m *Map) Enqueue(cmd MapCommand) error {
	switch c := cmd.(type) {
	case SetCellCommand:
		return m.CommandSet(c.Coord, c.Cell)
	case ClearCellCommand:
		return m.CommandClear(c.Coord)
	case RaiseTerrainCommand:
		return m.CommandRaiseTerrain(c.Coord)
	default:
		return fmt.Errorf("неизвестный тип команды %T", cmd)
	}
}

// Pending возвращает количество команд в очереди
func (m *Map) Pending() int { return len(m.pending) }

// ApplyCommands применяет очередь в порядке постановки и очищает её.
// Возвращает количество применённых команд.
func (m *Map) ApplyCommands() int {
	n := len(m.pending)
	for i, cmd := range m.pending {
		m.state.Command(cmd)
		m.pending[i] = nil
	}

	if cap(m.pending) > m.ceiling {
		m.pending = make([]MapCommand, 0, m.ceiling)
	} else {
		m.pending = m.pending[:0]
	}
	return n
}

// queueCapacity текущая ёмкость очереди (для тестов)
func (m *Map) queueCapacity() int { return cap(m.pending) }
