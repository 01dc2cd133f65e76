// Package engine владеет картой мира и сериализует доступ к ней в одной горутине.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/isoworld/internal/logging"
	"github.com/annel0/isoworld/internal/metrics"
	"github.com/annel0/isoworld/internal/storage"
	"github.com/annel0/isoworld/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotRunning менеджер ещё не запущен или уже остановлен
	ErrNotRunning = errors.New("менеджер мира не запущен")
	// ErrNoStorage сохранение не настроено
	ErrNoStorage = errors.New("хранилище карт не настроено")
)

// Saver сохраняет снимок карты
type Saver interface {
	Save(name string, m *world.Map) (storage.SnapshotMeta, error)
}

// Options параметры менеджера
type Options struct {
	TickRate         int           // тиков в секунду
	AutosaveInterval time.Duration // 0: без автосохранения
	MapName          string        // имя снимка в хранилище
	Saver            Saver         // nil: сохранение отключено
	Metrics          *metrics.Exporter
}

// Status сводка состояния мира
type Status struct {
	Tick        uint64      `json:"tick"`
	Pending     int         `json:"pending"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Layers      int         `json:"layers"`
	LayerHeight int         `json:"layer_height"`
	Tiles       int         `json:"tiles"`
	LastSave    time.Time   `json:"last_save"`
	Stats       world.Stats `json:"stats"`
}

// CellView ячейка вместе с высотами её плитки
type CellView struct {
	Coord   world.CellCoord `json:"coord"`
	Tile    world.TileIndex `json:"tile"`
	Heights world.Heights   `json:"heights"`
}

type request struct {
	fn   func(m *world.Map)
	done chan struct{}
}

// Manager единственный писатель карты. Все обращения извне идут через канал
// запросов и выполняются между тиками; каждый тик применяет очередь команд.
type Manager struct {
	m      *world.Map
	opts   Options
	tracer trace.Tracer
	log    *logging.Logger

	requests    chan request
	currentTick atomic.Uint64
	lastSave    time.Time

	ctx        context.Context
	cancelFunc context.CancelFunc
	done       chan struct{}
	running    atomic.Bool
	stopOnce   sync.Once
}

// NewManager создаёт менеджер для карты m
func NewManager(m *world.Map, opts Options) *Manager {
	if opts.TickRate <= 0 {
		opts.TickRate = 20
	}
	if opts.MapName == "" {
		opts.MapName = "default"
	}

	return &Manager{
		m:        m,
		opts:     opts,
		tracer:   otel.Tracer("github.com/annel0/isoworld/internal/engine"),
		log:      logging.GetEngineLogger(),
		requests: make(chan request, 256),
		done:     make(chan struct{}),
	}
}

// Run запускает цикл тиков в отдельной горутине
func (mgr *Manager) Run(parentCtx context.Context) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	if !mgr.running.CompareAndSwap(false, true) {
		return
	}
	mgr.ctx, mgr.cancelFunc = context.WithCancel(parentCtx)
	mgr.lastSave = time.Now()

	go mgr.loop()
	mgr.log.Info("Менеджер мира запущен: %dx%dx%d, %d тиков/с",
		mgr.m.Width(), mgr.m.Height(), mgr.m.LayerCount(), mgr.opts.TickRate)
}

// Stop останавливает цикл, применяет остаток очереди и делает финальное сохранение
func (mgr *Manager) Stop() {
	mgr.stopOnce.Do(func() {
		if !mgr.running.Load() {
			return
		}
		mgr.cancelFunc()
		<-mgr.done
		mgr.running.Store(false)

		// Цикл остановлен, карта принадлежит текущей горутине
		if n := mgr.m.ApplyCommands(); n > 0 {
			mgr.log.Info("Применено %d команд при остановке", n)
		}
		if mgr.opts.Saver != nil {
			if _, err := mgr.save("shutdown"); err != nil {
				mgr.log.Error("Финальное сохранение не удалось: %v", err)
			}
		}
		mgr.log.Info("Менеджер мира остановлен на тике %d", mgr.currentTick.Load())
	})
}

// Done закрывается, когда цикл завершился
func (mgr *Manager) Done() <-chan struct{} { return mgr.done }

// CurrentTick возвращает номер последнего выполненного тика
func (mgr *Manager) CurrentTick() uint64 { return mgr.currentTick.Load() }

func (mgr *Manager) loop() {
	defer close(mgr.done)

	ticker := time.NewTicker(time.Second / time.Duration(mgr.opts.TickRate))
	defer ticker.Stop()

	var autosave <-chan time.Time
	if mgr.opts.AutosaveInterval > 0 && mgr.opts.Saver != nil {
		t := time.NewTicker(mgr.opts.AutosaveInterval)
		defer t.Stop()
		autosave = t.C
	}

	for {
		select {
		case <-mgr.ctx.Done():
			return
		case req := <-mgr.requests:
			req.fn(mgr.m)
			close(req.done)
		case <-ticker.C:
			mgr.tick()
		case <-autosave:
			if _, err := mgr.save("autosave"); err != nil {
				mgr.log.Error("Автосохранение не удалось: %v", err)
			}
		}
	}
}

// tick применяет очередь команд карты
func (mgr *Manager) tick() int {
	tickID := mgr.currentTick.Add(1)
	pending := mgr.m.Pending()

	_, span := mgr.tracer.Start(mgr.ctx, "world.tick")
	start := time.Now()
	applied := mgr.m.ApplyCommands()
	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int64("world.tick", int64(tickID)),
		attribute.Int("world.commands", applied),
	)
	span.End()

	if mgr.opts.Metrics != nil {
		mgr.opts.Metrics.ObserveTick(pending, duration, mgr.m.Stats())
	}
	if applied > 0 {
		mgr.log.Debug("Тик %d: применено %d команд за %s", tickID, applied, duration)
	}
	return applied
}

func (mgr *Manager) save(reason string) (storage.SnapshotMeta, error) {
	if mgr.opts.Saver == nil {
		return storage.SnapshotMeta{}, ErrNoStorage
	}

	meta, err := mgr.opts.Saver.Save(mgr.opts.MapName, mgr.m)
	if mgr.opts.Metrics != nil {
		mgr.opts.Metrics.ObserveSave(err)
	}
	if err != nil {
		return meta, fmt.Errorf("сохранение (%s): %w", reason, err)
	}
	mgr.lastSave = time.Now()
	mgr.log.Debug("Карта сохранена (%s): %d ячеек", reason, meta.Cells)
	return meta, nil
}

// Do выполняет fn в горутине мира между тиками и ждёт завершения.
// fn не должна удерживать карту после возврата.
//
// ctx учитывается только до постановки запроса в очередь. Поставленный запрос
// будет выполнен, поэтому Do дожидается его, не глядя на ctx: иначе вызывающий
// получил бы ошибку для уже принятых команд.
func (mgr *Manager) Do(ctx context.Context, fn func(m *world.Map)) error {
	if !mgr.running.Load() {
		return ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := request{fn: fn, done: make(chan struct{})}
	select {
	case mgr.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-mgr.done:
		return ErrNotRunning
	}

	select {
	case <-req.done:
		return nil
	case <-mgr.done:
		// Цикл мог выполнить запрос прямо перед остановкой
		select {
		case <-req.done:
			return nil
		default:
			return ErrNotRunning
		}
	}
}

// Submit ставит команды в очередь карты. Возвращает ошибку по каждой команде
// (nil: принята); принятые команды применятся на ближайшем тике.
func (mgr *Manager) Submit(ctx context.Context, cmds ...world.MapCommand) ([]error, error) {
	results := make([]error, len(cmds))
	err := mgr.Do(ctx, func(m *world.Map) {
		for i, cmd := range cmds {
			results[i] = m.Enqueue(cmd)
		}
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Flush применяет очередь немедленно, не дожидаясь тика
func (mgr *Manager) Flush(ctx context.Context) (int, error) {
	var applied int
	err := mgr.Do(ctx, func(*world.Map) {
		applied = mgr.tick()
	})
	return applied, err
}

// Cell возвращает ячейку с высотами её плитки
func (mgr *Manager) Cell(ctx context.Context, c world.CellCoord) (CellView, bool, error) {
	var (
		view  CellView
		found bool
	)
	err := mgr.Do(ctx, func(m *world.Map) {
		cell, ok := m.Cell(c)
		if !ok {
			return
		}
		tile, _ := m.Tiles().Get(cell.Tile)
		view = CellView{Coord: c, Tile: cell.Tile, Heights: tile.Heights}
		found = true
	})
	return view, found, err
}

// Cells возвращает до limit ячеек окна [min, max) в порядке обхода.
// limit <= 0 снимает ограничение. Второе значение сообщает, что окно обрезано.
func (mgr *Manager) Cells(ctx context.Context, min, max world.CellCoord, limit int) ([]CellView, bool, error) {
	var (
		views     []CellView
		truncated bool
	)
	err := mgr.Do(ctx, func(m *world.Map) {
		r := m.CellRange(min, max)
		for r.Next() {
			if limit > 0 && len(views) == limit {
				truncated = true
				return
			}
			cell := r.Cell()
			tile, _ := m.Tiles().Get(cell.Tile)
			views = append(views, CellView{Coord: r.Coord(), Tile: cell.Tile, Heights: tile.Heights})
		}
	})
	return views, truncated, err
}

// Tiles возвращает копию каталога плиток
func (mgr *Manager) Tiles(ctx context.Context) ([]world.Tile, error) {
	var tiles []world.Tile
	err := mgr.Do(ctx, func(m *world.Map) {
		tiles = make([]world.Tile, 0, m.Tiles().Len())
		m.Tiles().All(func(_ world.TileIndex, t world.Tile) {
			tiles = append(tiles, t)
		})
	})
	return tiles, err
}

// Status возвращает сводку состояния
func (mgr *Manager) Status(ctx context.Context) (Status, error) {
	var st Status
	err := mgr.Do(ctx, func(m *world.Map) {
		st = Status{
			Tick:        mgr.currentTick.Load(),
			Pending:     m.Pending(),
			Width:       m.Width(),
			Height:      m.Height(),
			Layers:      m.LayerCount(),
			LayerHeight: m.LayerHeight(),
			Tiles:       m.Tiles().Len(),
			LastSave:    mgr.lastSave,
			Stats:       m.Stats(),
		}
	})
	return st, err
}

// Save сохраняет карту между тиками
func (mgr *Manager) Save(ctx context.Context) (storage.SnapshotMeta, error) {
	var (
		meta    storage.SnapshotMeta
		saveErr error
	)
	err := mgr.Do(ctx, func(*world.Map) {
		meta, saveErr = mgr.save("request")
	})
	if err != nil {
		return meta, err
	}
	return meta, saveErr
}
