// Package tileset строит стандартный каталог плиток-склонов для карты.
package tileset

import (
	"github.com/annel0/isoworld/internal/logging"
	"github.com/annel0/isoworld/internal/world"
	"github.com/go-gl/mathgl/mgl64"
)

// FlatName имя плоской плитки
const FlatName = "flat"

// Options параметры каталога
type Options struct {
	MaxCornerHeight int        // максимальная высота угла (включительно)
	CellSize        mgl64.Vec3 // размер ячейки ромбической сетки
	LayerHeight     int        // сколько единиц высоты угла приходится на слой
}

// DefaultOptions возвращает параметры каталога по умолчанию
func DefaultOptions() Options {
	return Options{
		MaxCornerHeight: 2,
		CellSize:        mgl64.Vec3{32, 32, 16},
		LayerHeight:     world.DefaultLayerHeight,
	}
}

// Populate добавляет в storage плитку для каждого сочетания высот углов
// в [0, MaxCornerHeight]. Плоская плитка идёт первой. Уже существующие
// сочетания пропускаются, так что повторный вызов ничего не добавит.
// Возвращает количество добавленных плиток.
func Populate(storage *world.TileStorage, opts Options) int {
	if opts.MaxCornerHeight < 0 {
		opts.MaxCornerHeight = 0
	}
	if opts.LayerHeight <= 0 {
		opts.LayerHeight = world.DefaultLayerHeight
	}

	added := 0
	for n := 0; n <= opts.MaxCornerHeight; n++ {
		for e := 0; e <= opts.MaxCornerHeight; e++ {
			for s := 0; s <= opts.MaxCornerHeight; s++ {
				for w := 0; w <= opts.MaxCornerHeight; w++ {
					h := world.Heights{world.CornerN: n, world.CornerE: e, world.CornerS: s, world.CornerW: w}
					if _, ok := storage.FindMatching(h); ok {
						continue
					}
					storage.Append(world.Tile{Heights: h, Geometry: BuildGeometry(h, opts)})
					added++
				}
			}
		}
	}

	logging.GetComponentLogger("tileset").Debug("Каталог плиток: добавлено %d, всего %d", added, storage.Len())
	return added
}

// Name возвращает стабильное имя плитки по высотам углов
func Name(h world.Heights) string {
	if h.Flat() {
		return FlatName
	}
	return h.String()
}

// BuildGeometry строит контур и два треугольника плитки.
// Ромб режется по более пологой диагонали, чтобы склон не ломался гребнем.
func BuildGeometry(h world.Heights, opts Options) world.Geometry {
	layerHeight := opts.LayerHeight
	if layerHeight <= 0 {
		layerHeight = world.DefaultLayerHeight
	}
	unitZ := opts.CellSize.Z() / float64(layerHeight)

	vertex := func(c world.Corner, x, y float64) mgl64.Vec3 {
		return mgl64.Vec3{x * opts.CellSize.X(), y * opts.CellSize.Y(), float64(h[c]) * unitZ}
	}

	w := vertex(world.CornerW, 0, 0)
	n := vertex(world.CornerN, 0, 1)
	e := vertex(world.CornerE, 1, 1)
	s := vertex(world.CornerS, 1, 0)

	g := world.Geometry{
		Lines: []mgl64.Vec3{w, n, n, e, e, s, s, w},
	}

	if abs(h[world.CornerW]-h[world.CornerE]) <= abs(h[world.CornerN]-h[world.CornerS]) {
		g.Triangles = []mgl64.Vec3{w, n, e, w, e, s}
	} else {
		g.Triangles = []mgl64.Vec3{n, e, s, n, s, w}
	}
	return g
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
