// Package generator строит рельеф карты по шуму Перлина через очередь команд.
package generator

import (
	"errors"
	"fmt"

	"github.com/annel0/isoworld/internal/logging"
	"github.com/annel0/isoworld/internal/world"
	"github.com/aquilax/go-perlin"
)

// ErrNoFlatTile в каталоге нет плоской плитки для заливки слоя 0
var ErrNoFlatTile = errors.New("в каталоге нет плоской плитки")

// Options параметры генерации
type Options struct {
	Seed       int64   // сид шума
	NoiseScale float64 // масштаб координат шума (меньше = более пологий рельеф)
	Alpha      float64 // сглаживание шума
	Beta       float64 // частота шума
	Octaves    int32   // количество октав
	MaxHeight  int     // максимальная высота в слоях; обрезается по числу слоёв карты
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		Seed:       1337,
		NoiseScale: 0.08,
		Alpha:      2.0,
		Beta:       2.0,
		Octaves:    3,
		MaxHeight:  3,
	}
}

// Report итог генерации
type Report struct {
	CellsPlaced    int `json:"cells_placed"`
	RaisesEnqueued int `json:"raises_enqueued"`
	MaxHeight      int `json:"max_height"`
}

// Generator детерминированный генератор высот
type Generator struct {
	opts  Options
	noise *perlin.Perlin
	log   *logging.Logger
}

// New создаёт генератор
func New(opts Options) *Generator {
	return &Generator{
		opts:  opts,
		noise: perlin.NewPerlin(opts.Alpha, opts.Beta, opts.Octaves, opts.Seed),
		log:   logging.GetComponentLogger("generator"),
	}
}

// Height возвращает высоту столбца (в слоях, от 0 до maxHeight)
func (g *Generator) Height(column, row, maxHeight int) int {
	if maxHeight <= 0 {
		return 0
	}

	// Шум берётся в ромбических координатах, иначе рельеф сплющивается по строкам
	x, y := world.CellCoord{Column: column, Row: row}.Diamond()
	n := g.noise.Noise2D(float64(x)*g.opts.NoiseScale, float64(y)*g.opts.NoiseScale)

	// Значение шума от -1 до 1, приводим к 0..1
	v := (n + 1.0) / 2.0
	h := int(v * float64(maxHeight+1))
	if h < 0 {
		return 0
	}
	if h > maxHeight {
		return maxHeight
	}
	return h
}

// Generate ставит в очередь карты заливку слоя 0 плоской плиткой и подъёмы
// рельефа. Подъёмы идут послойно: сначала все подъёмы со слоя 0, затем со
// слоя 1 и так далее, чтобы каждый следующий уступ опирался на готовый.
// Команды применяются вызывающей стороной через ApplyCommands.
func (g *Generator) Generate(m *world.Map) (Report, error) {
	flat, ok := m.Tiles().FindMatching(world.Heights{})
	if !ok {
		return Report{}, ErrNoFlatTile
	}

	maxHeight := g.opts.MaxHeight
	if maxHeight > m.LayerCount()-1 {
		maxHeight = m.LayerCount() - 1
	}

	report := Report{MaxHeight: maxHeight}
	heights := make([]int, m.Width()*m.Height())

	for row := 0; row < m.Height(); row++ {
		for col := 0; col < m.Width(); col++ {
			if err := m.CommandSet(world.CellCoord{Column: col, Row: row}, world.Cell{Tile: flat}); err != nil {
				return report, fmt.Errorf("заливка слоя 0: %w", err)
			}
			report.CellsPlaced++
			heights[row*m.Width()+col] = g.Height(col, row, maxHeight)
		}
	}

	for layer := 0; layer < maxHeight; layer++ {
		for row := 0; row < m.Height(); row++ {
			for col := 0; col < m.Width(); col++ {
				if heights[row*m.Width()+col] <= layer {
					continue
				}
				if err := m.CommandRaiseTerrain(world.CellCoord{Column: col, Row: row, Layer: layer}); err != nil {
					return report, fmt.Errorf("подъём рельефа: %w", err)
				}
				report.RaisesEnqueued++
			}
		}
	}

	g.log.Info("Генерация рельефа (сид %d): ячеек %d, подъёмов %d, макс. высота %d",
		g.opts.Seed, report.CellsPlaced, report.RaisesEnqueued, maxHeight)
	return report, nil
}
