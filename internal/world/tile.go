package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Heights высоты четырёх углов плитки, индексируются Corner
type Heights [CornerCount]int

// Flat возвращает true, если все углы на нулевой высоте
func (h Heights) Flat() bool {
	return h == Heights{}
}

// With возвращает копию высот с углами corners, выставленными в value
func (h Heights) With(value int, corners ...Corner) Heights {
	for _, c := range corners {
		h[c] = value
	}
	return h
}

// String возвращает высоты в виде "n0e1s0w1"
func (h Heights) String() string {
	return fmt.Sprintf("n%de%ds%dw%d", h[CornerN], h[CornerE], h[CornerS], h[CornerW])
}

// Geometry графические данные плитки. Ядро их не интерпретирует,
// они нужны только рендеру.
type Geometry struct {
	Lines     []mgl64.Vec3 `json:"lines"`     // пары вершин отрезков
	Triangles []mgl64.Vec3 `json:"triangles"` // тройки вершин треугольников
}

// Tile неизменяемый шаблон формы, общий для множества ячеек
type Tile struct {
	Heights  Heights  `json:"heights"`
	Geometry Geometry `json:"geometry"`
}

// TileIndex непрозрачный дескриптор плитки в TileStorage
type TileIndex uint32

// TileStorage таблица шаблонов плиток. Плитки только добавляются:
// индексы монотонны и никогда не переиспользуются, удаления нет,
// поэтому индекс в живой ячейке не может стать висячим.
type TileStorage struct {
	tiles []Tile
}

// NewTileStorage создаёт пустое хранилище плиток
func NewTileStorage() *TileStorage {
	return &TileStorage{}
}

// Append добавляет плитку и возвращает её индекс
func (ts *TileStorage) Append(tile Tile) TileIndex {
	ts.tiles = append(ts.tiles, tile)
	return TileIndex(len(ts.tiles) - 1)
}

// Get возвращает плитку по индексу. false только для индекса вне диапазона.
func (ts *TileStorage) Get(index TileIndex) (Tile, bool) {
	if !ts.Valid(index) {
		return Tile{}, false
	}
	return ts.tiles[index], true
}

// Valid проверяет, что индекс ссылается на существующую плитку
func (ts *TileStorage) Valid(index TileIndex) bool {
	return int(index) < len(ts.tiles)
}

// Len возвращает количество плиток
func (ts *TileStorage) Len() int {
	return len(ts.tiles)
}

// FindMatching ищет первую плитку с такими же высотами углов.
// Линейный поиск: каталоги плиток маленькие и не меняются во время игры.
func (ts *TileStorage) FindMatching(heights Heights) (TileIndex, bool) {
	for i := range ts.tiles {
		if ts.tiles[i].Heights == heights {
			return TileIndex(i), true
		}
	}
	return 0, false
}

// All вызывает fn для каждой плитки в порядке индексов
func (ts *TileStorage) All(fn func(index TileIndex, tile Tile)) {
	for i, t := range ts.tiles {
		fn(TileIndex(i), t)
	}
}
