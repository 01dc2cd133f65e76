package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/annel0/isoworld/internal/generator"
	"github.com/annel0/isoworld/internal/logging"
	"github.com/annel0/isoworld/internal/storage"
	"github.com/annel0/isoworld/internal/tileset"
	"github.com/annel0/isoworld/internal/world"
)

const timeFormat = "2006-01-02T15:04:05Z"

func main() {
	var (
		dataPath = flag.String("data", "data", "Каталог хранилища карт")
		command  = flag.String("cmd", "list", "Command: list, info, cells, heightmap, generate, delete")
		name     = flag.String("map", "default", "Имя карты")
		limit    = flag.Int("limit", 100, "Maximum number of cells")
		layer    = flag.Int("layer", -1, "Фильтр по слою для cells (-1: все)")
		width    = flag.Int("width", 32, "Ширина новой карты (generate)")
		height   = flag.Int("height", 64, "Высота новой карты (generate)")
		layers   = flag.Int("layers", 8, "Количество слоёв новой карты (generate)")
		seed     = flag.Int64("seed", 1337, "Сид шума (generate)")
	)
	flag.Parse()

	// Логи хранилища только при ошибках, вывод CLI идёт в stdout
	logging.SetConsoleLevel(logging.ERROR)

	store, err := storage.NewMapStore(*dataPath, true)
	if err != nil {
		log.Fatalf("❌ Failed to open storage: %v", err)
	}
	defer store.Close()

	switch *command {
	case "list":
		err = listMaps(store)
	case "info":
		err = showInfo(store, *name)
	case "cells":
		err = showCells(store, *name, *layer, *limit)
	case "heightmap":
		err = showHeightmap(store, *name)
	case "generate":
		err = generateMap(store, *name, *width, *height, *layers, *seed)
	case "delete":
		err = store.Delete(*name)
		if err == nil {
			fmt.Printf("🗑️  Map %q deleted\n", *name)
		}
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: list, info, cells, heightmap, generate, delete")
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, storage.ErrMapNotFound) {
			log.Fatalf("❌ Map %q not found", *name)
		}
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// listMaps выводит все сохранённые карты
func listMaps(store *storage.MapStore) error {
	metas, err := store.List()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("📭 No maps saved")
		return nil
	}

	fmt.Printf("📋 Saved maps: %d\n", len(metas))
	for _, meta := range metas {
		fmt.Printf("  %-20s %dx%dx%d cells=%-7d saved=%s\n",
			meta.Name, meta.Width, meta.Height, meta.Layers, meta.Cells,
			meta.SavedAt.UTC().Format(timeFormat))
	}
	return nil
}

// showInfo выводит метаданные и статистику карты
func showInfo(store *storage.MapStore, name string) error {
	meta, err := store.Meta(name)
	if err != nil {
		return err
	}
	m, err := store.Load(name)
	if err != nil {
		return err
	}

	fmt.Printf("🗺️  Map %s (id %s)\n", meta.Name, meta.ID)
	fmt.Printf("Saved: %s (%s ago)\n", meta.SavedAt.UTC().Format(timeFormat), time.Since(meta.SavedAt).Round(time.Second))
	fmt.Printf("Size: %dx%d, layers: %d, layer height: %d\n", meta.Width, meta.Height, meta.Layers, meta.LayerHeight)
	fmt.Printf("Tiles: %d, cells: %d\n", meta.Tiles, meta.Cells)
	fmt.Printf("Snapshot: %d bytes (compressed: %v)\n", meta.Size, meta.Compressed)

	fmt.Println("\nCells by layer:")
	for l, n := range cellsPerLayer(m) {
		fmt.Printf("  layer %d: %d\n", l, n)
	}

	if err := m.Validate(); err != nil {
		fmt.Printf("\n⚠️  Validation failed: %v\n", err)
	} else {
		fmt.Println("\n✅ Layers are consistent")
	}
	return nil
}

// showCells выводит ячейки карты в порядке обхода
func showCells(store *storage.MapStore, name string, layer, limit int) error {
	m, err := store.Load(name)
	if err != nil {
		return err
	}

	min := world.CellCoord{}
	max := world.CellCoord{Column: m.Width(), Row: m.Height(), Layer: m.LayerCount()}
	if layer >= 0 {
		min.Layer, max.Layer = layer, layer+1
	}

	count := 0
	for coord, cell := range m.CellRange(min, max).All() {
		if count >= limit {
			fmt.Println("...")
			break
		}
		tile, _ := m.Tiles().Get(cell.Tile)
		fmt.Printf("%-12s tile=%-4d %s\n", coord, cell.Tile, tileset.Name(tile.Heights))
		count++
	}

	fmt.Printf("\n📊 Total cells shown: %d\n", count)
	return nil
}

// showHeightmap выводит верхний занятый слой каждой колонки сетки
func showHeightmap(store *storage.MapStore, name string) error {
	m, err := store.Load(name)
	if err != nil {
		return err
	}
	fmt.Print(renderHeightmap(m))
	return nil
}

// generateMap создаёт карту генератором и сохраняет её
func generateMap(store *storage.MapStore, name string, width, height, layers int, seed int64) error {
	m := world.NewMap(width, height, layers)
	tileset.Populate(m.Tiles(), tileset.DefaultOptions())

	opts := generator.DefaultOptions()
	opts.Seed = seed
	opts.MaxHeight = layers - 1
	report, err := generator.New(opts).Generate(m)
	if err != nil {
		return err
	}
	m.ApplyCommands()

	meta, err := store.Save(name, m)
	if err != nil {
		return err
	}

	stats := m.Stats()
	fmt.Printf("🌱 Map %q generated: %d cells placed, %d raises, %d stitched, %d gaps\n",
		name, report.CellsPlaced, report.RaisesEnqueued, stats.TilesStitched, stats.ConnectionGaps)
	fmt.Printf("💾 Saved %d cells (%d bytes)\n", meta.Cells, meta.Size)
	return nil
}

// cellsPerLayer считает ячейки каждого слоя
func cellsPerLayer(m *world.Map) []int {
	counts := make([]int, m.LayerCount())
	for coord := range m.AllCells().All() {
		counts[coord.Layer]++
	}
	return counts
}

// renderHeightmap рисует карту верхних слоёв: цифра: слой, точка: пустая колонка.
// Строки идут сверху вниз, нечётные строки сдвинуты на полклетки, как в ромбической сетке.
func renderHeightmap(m *world.Map) string {
	top := make([][]int, m.Height())
	for row := range top {
		top[row] = make([]int, m.Width())
		for col := range top[row] {
			top[row][col] = -1
		}
	}
	for coord := range m.AllCells().All() {
		if coord.Layer > top[coord.Row][coord.Column] {
			top[coord.Row][coord.Column] = coord.Layer
		}
	}

	var sb strings.Builder
	for row := m.Height() - 1; row >= 0; row-- {
		if row%2 == 1 {
			sb.WriteByte(' ')
		}
		for col, l := range top[row] {
			if col > 0 {
				sb.WriteByte(' ')
			}
			switch {
			case l < 0:
				sb.WriteByte('.')
			case l < 10:
				sb.WriteByte(byte('0' + l))
			default:
				sb.WriteByte('+')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
