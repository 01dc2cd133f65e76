package world

import "fmt"

// MapCommand отложенный запрос на изменение карты.
// Реализации: SetCellCommand, ClearCellCommand, RaiseTerrainCommand.
// Список закрыт: новых вариантов вне пакета быть не может.
type MapCommand interface {
	Target() CellCoord
	fmt.Stringer
	mapCommand()
}

// SetCellCommand ставит ячейку (или перезаписывает существующую)
type SetCellCommand struct {
	Coord CellCoord
	Cell  Cell
}

// ClearCellCommand удаляет ячейку
type ClearCellCommand struct {
	Coord CellCoord
}

// RaiseTerrainCommand поднимает ячейку на слой вверх со сшивкой соседей
type RaiseTerrainCommand struct {
	Coord CellCoord
}

func (c SetCellCommand) Target() CellCoord      { return c.Coord }
func (c ClearCellCommand) Target() CellCoord    { return c.Coord }
func (c RaiseTerrainCommand) Target() CellCoord { return c.Coord }

func (c SetCellCommand) String() string {
	return fmt.Sprintf("set%s tile=%d", c.Coord, c.Cell.Tile)
}

func (c ClearCellCommand) String() string {
	return fmt.Sprintf("clear%s", c.Coord)
}

func (c RaiseTerrainCommand) String() string {
	return fmt.Sprintf("raise%s", c.Coord)
}

func (SetCellCommand) mapCommand()      {}
func (ClearCellCommand) mapCommand()    {}
func (RaiseTerrainCommand) mapCommand() {}
