package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// CellCoord адрес ячейки в развёрнутой (staggered) сетке хранения
type CellCoord struct {
	Column int `json:"column"`
	Row    int `json:"row"`
	Layer  int `json:"layer"`
}

// String возвращает координаты в виде "(c,r,l)"
func (c CellCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.Column, c.Row, c.Layer)
}

// Neighbor возвращает координаты соседа в направлении d на том же слое.
// Строки со смещением чередуются, поэтому горизонтальный сдвиг зависит
// от чётности текущей строки. Проверка границ не выполняется.
func (c CellCoord) Neighbor(d Direction) CellCoord {
	odd := floorMod(c.Row, 2)

	switch d {
	case North:
		return CellCoord{Column: c.Column, Row: c.Row + 2, Layer: c.Layer}
	case South:
		return CellCoord{Column: c.Column, Row: c.Row - 2, Layer: c.Layer}
	case East:
		return CellCoord{Column: c.Column + 1, Row: c.Row, Layer: c.Layer}
	case West:
		return CellCoord{Column: c.Column - 1, Row: c.Row, Layer: c.Layer}
	case NorthEast:
		return CellCoord{Column: c.Column + odd, Row: c.Row + 1, Layer: c.Layer}
	case NorthWest:
		return CellCoord{Column: c.Column + odd - 1, Row: c.Row + 1, Layer: c.Layer}
	case SouthEast:
		return CellCoord{Column: c.Column + odd, Row: c.Row - 1, Layer: c.Layer}
	case SouthWest:
		return CellCoord{Column: c.Column + odd - 1, Row: c.Row - 1, Layer: c.Layer}
	default:
		return c
	}
}

// Above возвращает координаты ячейки на слой выше
func (c CellCoord) Above() CellCoord {
	return CellCoord{Column: c.Column, Row: c.Row, Layer: c.Layer + 1}
}

// Below возвращает координаты ячейки на слой ниже
func (c CellCoord) Below() CellCoord {
	return CellCoord{Column: c.Column, Row: c.Row, Layer: c.Layer - 1}
}

// Diamond разворачивает координаты хранения обратно в ромбическую сетку
func (c CellCoord) Diamond() (x, y int) {
	sum := 2*c.Column + floorMod(c.Row, 2) // x + y
	y = floorDiv(sum+c.Row, 2)
	x = floorDiv(sum-c.Row, 2)
	return x, y
}

// FromDiamond сворачивает ромбическую сетку в сетку хранения
func FromDiamond(x, y, layer int) CellCoord {
	return CellCoord{
		Column: floorDiv(x+y, 2),
		Row:    y - x,
		Layer:  layer,
	}
}

// CoordinateMapper переводит мировые координаты в координаты ячеек и обратно
type CoordinateMapper struct {
	CellSize mgl64.Vec3 // размер ячейки ромбической сетки по каждой оси
}

// NewCoordinateMapper создаёт преобразователь с заданным размером ячейки
func NewCoordinateMapper(cellSize mgl64.Vec3) CoordinateMapper {
	return CoordinateMapper{CellSize: cellSize}
}

// WorldToCell возвращает ячейку, содержащую точку. Используется деление
// с округлением вниз, поэтому отрицательные координаты тоже обратимы.
func (m CoordinateMapper) WorldToCell(pos mgl64.Vec3) CellCoord {
	x := int(math.Floor(pos.X() / m.CellSize.X()))
	y := int(math.Floor(pos.Y() / m.CellSize.Y()))
	layer := int(math.Floor(pos.Z() / m.CellSize.Z()))
	return FromDiamond(x, y, layer)
}

// CellToWorld возвращает центр ячейки в мировых координатах
func (m CoordinateMapper) CellToWorld(c CellCoord) mgl64.Vec3 {
	x, y := c.Diamond()
	return mgl64.Vec3{
		(float64(x) + 0.5) * m.CellSize.X(),
		(float64(y) + 0.5) * m.CellSize.Y(),
		(float64(c.Layer) + 0.5) * m.CellSize.Z(),
	}
}

// CellOrigin возвращает западный угол основания ячейки в мировых координатах
func (m CoordinateMapper) CellOrigin(c CellCoord) mgl64.Vec3 {
	x, y := c.Diamond()
	return mgl64.Vec3{
		float64(x) * m.CellSize.X(),
		float64(y) * m.CellSize.Y(),
		float64(c.Layer) * m.CellSize.Z(),
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
