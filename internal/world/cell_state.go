package world

import (
	"fmt"

	"github.com/annel0/isoworld/internal/logging"
)

// DefaultLayerHeight высота одного слоя в единицах высоты углов плитки
const DefaultLayerHeight = 1

// Stats счётчики применённых команд. Монотонно растут, кроме OccupiedCells.
type Stats struct {
	CommandsApplied  uint64 `json:"commands_applied"`
	CommandsRejected uint64 `json:"commands_rejected"`
	CellsSet         uint64 `json:"cells_set"`
	CellsCleared     uint64 `json:"cells_cleared"`
	RaisesApplied    uint64 `json:"raises_applied"`
	RaisesRejected   uint64 `json:"raises_rejected"`
	TilesStitched    uint64 `json:"tiles_stitched"`
	ConnectionGaps   uint64 `json:"connection_gaps"`
	OccupiedCells    int    `json:"occupied_cells"`
}

// CellState хранит все слои карты и применяет к ним команды.
// Плитки только читаются: хранилищем владеет Map.
// Не потокобезопасен.
type CellState struct {
	width       int
	height      int
	layers      []*CellLayer
	tiles       *TileStorage
	layerHeight int
	log         *logging.Logger
	stats       Stats
}

// NewCellState создаёт состояние с layerCount пустыми слоями
func NewCellState(width, height, layerCount int, tiles *TileStorage) *CellState {
	layers := make([]*CellLayer, layerCount)
	for i := range layers {
		layers[i] = NewCellLayer(width, height)
	}

	return &CellState{
		width:       width,
		height:      height,
		layers:      layers,
		tiles:       tiles,
		layerHeight: DefaultLayerHeight,
		log:         logging.GetWorldLogger(),
	}
}

// Width возвращает количество колонок
func (s *CellState) Width() int { return s.width }

// Height возвращает количество строк
func (s *CellState) Height() int { return s.height }

// LayerCount возвращает количество слоёв
func (s *CellState) LayerCount() int { return len(s.layers) }

// Layer возвращает слой по индексу или nil вне диапазона
func (s *CellState) Layer(index int) *CellLayer {
	if index < 0 || index >= len(s.layers) {
		return nil
	}
	return s.layers[index]
}

// InBounds проверяет, что координаты лежат внутри карты
func (s *CellState) InBounds(c CellCoord) bool {
	return c.Column >= 0 && c.Column < s.width &&
		c.Row >= 0 && c.Row < s.height &&
		c.Layer >= 0 && c.Layer < len(s.layers)
}

// Cell возвращает ячейку по координатам. false и для координат вне карты,
// и для пустого слота: различить их можно только через InBounds.
func (s *CellState) Cell(c CellCoord) (Cell, bool) {
	if !s.InBounds(c) {
		return Cell{}, false
	}
	return s.layers[c.Layer].Cell(c.Column, c.Row)
}

// Tile возвращает плитку ячейки по координатам
func (s *CellState) Tile(c CellCoord) (Tile, bool) {
	cell, ok := s.Cell(c)
	if !ok {
		return Tile{}, false
	}
	return s.tiles.Get(cell.Tile)
}

// Count возвращает количество занятых слотов на всех слоях
func (s *CellState) Count() int {
	total := 0
	for _, l := range s.layers {
		total += l.Len()
	}
	return total
}

// Stats возвращает копию счётчиков
func (s *CellState) Stats() Stats {
	st := s.stats
	st.OccupiedCells = s.Count()
	return st
}

// Command применяет одну команду
func (s *CellState) Command(cmd MapCommand) {
	s.stats.CommandsApplied++

	switch c := cmd.(type) {
	case SetCellCommand:
		if !s.InBounds(c.Coord) || !s.tiles.Valid(c.Cell.Tile) {
			s.stats.CommandsRejected++
			s.log.Debug("Команда %s отклонена: координаты или плитка вне диапазона", c)
			return
		}
		s.setCell(c.Coord, c.Cell)
		s.stats.CellsSet++
	case ClearCellCommand:
		if !s.InBounds(c.Coord) {
			s.stats.CommandsRejected++
			s.log.Debug("Команда %s отклонена: координаты вне карты", c)
			return
		}
		s.deleteCell(c.Coord)
		s.stats.CellsCleared++
	case RaiseTerrainCommand:
		s.raiseTerrain(c.Coord, len(s.layers))
	default:
		s.stats.CommandsRejected++
		s.log.Error("Неизвестный тип команды: %T", cmd)
	}
}

// setCell пишет ячейку без проверки границ
func (s *CellState) setCell(c CellCoord, cell Cell) {
	s.layers[c.Layer].SetCell(c.Column, c.Row, cell)
}

// deleteCell удаляет ячейку без проверки границ
func (s *CellState) deleteCell(c CellCoord) {
	s.layers[c.Layer].DeleteCell(c.Column, c.Row)
}

// Validate проверяет инварианты всех слоёв
func (s *CellState) Validate() error {
	for i, l := range s.layers {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("слой %d: %w", i, err)
		}
	}
	return nil
}
