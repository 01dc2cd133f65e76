package world

// Direction одно из восьми направлений компаса на изометрической сетке.
// Кардинальные направления (N/E/S/W) касаются ячейки одним углом,
// диагональные (NE/SE/SW/NW): общей стороной.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
	NorthEast
	SouthEast
	SouthWest
	NorthWest

	DirectionCount // всегда последний: количество направлений
)

// Directions перечисляет все направления в порядке обхода алгоритмом подъёма
var Directions = [DirectionCount]Direction{
	North, East, South, West, NorthEast, SouthEast, SouthWest, NorthWest,
}

// Diagonals перечисляет только диагональные направления
var Diagonals = [4]Direction{NorthEast, SouthEast, SouthWest, NorthWest}

// String возвращает короткое имя направления
func (d Direction) String() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	case NorthEast:
		return "NE"
	case SouthEast:
		return "SE"
	case SouthWest:
		return "SW"
	case NorthWest:
		return "NW"
	default:
		return "UNKNOWN"
	}
}

// IsDiagonal возвращает true для NE/SE/SW/NW
func (d Direction) IsDiagonal() bool {
	return d >= NorthEast && d < DirectionCount
}

// HasN возвращает true, если направление содержит северную составляющую
func (d Direction) HasN() bool {
	return d == North || d == NorthEast || d == NorthWest
}

// HasE возвращает true, если направление содержит восточную составляющую
func (d Direction) HasE() bool {
	return d == East || d == NorthEast || d == SouthEast
}

// HasS возвращает true, если направление содержит южную составляющую
func (d Direction) HasS() bool {
	return d == South || d == SouthEast || d == SouthWest
}

// HasW возвращает true, если направление содержит западную составляющую
func (d Direction) HasW() bool {
	return d == West || d == SouthWest || d == NorthWest
}

// Parts раскладывает диагональ на две кардинальные составляющие
// (сначала N/S, затем E/W). Для кардинального направления обе части равны ему самому.
func (d Direction) Parts() (Direction, Direction) {
	if !d.IsDiagonal() {
		return d, d
	}

	vertical := South
	if d.HasN() {
		vertical = North
	}
	horizontal := West
	if d.HasE() {
		horizontal = East
	}
	return vertical, horizontal
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case East:
		return West
	case South:
		return North
	case West:
		return East
	case NorthEast:
		return SouthWest
	case SouthEast:
		return NorthWest
	case SouthWest:
		return NorthEast
	case NorthWest:
		return SouthEast
	default:
		return d
	}
}

// diamondOffset смещение в ромбической (неразвёрнутой) сетке
type diamondOffset struct {
	X, Y int
}

func (o diamondOffset) add(other diamondOffset) diamondOffset {
	return diamondOffset{X: o.X + other.X, Y: o.Y + other.Y}
}

func (o diamondOffset) sub(other diamondOffset) diamondOffset {
	return diamondOffset{X: o.X - other.X, Y: o.Y - other.Y}
}

// offset возвращает смещение соседа в ромбической сетке.
// +Y ромба смотрит на NE, +X: на SE.
func (d Direction) offset() diamondOffset {
	switch d {
	case North:
		return diamondOffset{X: -1, Y: 1}
	case East:
		return diamondOffset{X: 1, Y: 1}
	case South:
		return diamondOffset{X: 1, Y: -1}
	case West:
		return diamondOffset{X: -1, Y: -1}
	case NorthEast:
		return diamondOffset{X: 0, Y: 1}
	case SouthEast:
		return diamondOffset{X: 1, Y: 0}
	case SouthWest:
		return diamondOffset{X: 0, Y: -1}
	case NorthWest:
		return diamondOffset{X: -1, Y: 0}
	default:
		return diamondOffset{}
	}
}

// Corner угол ромбической плитки
type Corner uint8

const (
	CornerN Corner = iota
	CornerE
	CornerS
	CornerW

	CornerCount
)

// String возвращает имя угла
func (c Corner) String() string {
	switch c {
	case CornerN:
		return "N"
	case CornerE:
		return "E"
	case CornerS:
		return "S"
	case CornerW:
		return "W"
	default:
		return "?"
	}
}

// vertex положение угла относительно начала ячейки в ромбической сетке
func (c Corner) vertex() diamondOffset {
	switch c {
	case CornerN:
		return diamondOffset{X: 0, Y: 1}
	case CornerE:
		return diamondOffset{X: 1, Y: 1}
	case CornerS:
		return diamondOffset{X: 1, Y: 0}
	default:
		return diamondOffset{X: 0, Y: 0}
	}
}

// cornerPair пара совпадающих вершин двух ячеек
type cornerPair struct {
	Other Corner // угол ячейки, смещённой на rel
	Own   Corner // угол исходной ячейки
}

// sharedCorners возвращает вершины, общие для исходной ячейки и ячейки,
// смещённой на rel. Для кардинального соседа это одна вершина, для диагонального две.
func sharedCorners(rel diamondOffset) []cornerPair {
	var pairs []cornerPair
	for other := CornerN; other < CornerCount; other++ {
		for own := CornerN; own < CornerCount; own++ {
			if rel.add(other.vertex()) == own.vertex() {
				pairs = append(pairs, cornerPair{Other: other, Own: own})
			}
		}
	}
	return pairs
}

// facingCorners возвращает углы соседа в направлении d, обращённые к исходной ячейке
func facingCorners(d Direction) []Corner {
	pairs := sharedCorners(d.offset())
	corners := make([]Corner, 0, len(pairs))
	for _, p := range pairs {
		corners = append(corners, p.Other)
	}
	return corners
}
