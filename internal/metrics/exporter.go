// Package metrics переводит счётчики карты в метрики Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/annel0/isoworld/internal/world"
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter держит метрики мира. Stats карты монотонны, а Counter в Prometheus
// умеет только прибавлять, поэтому хранится прошлый снимок и прибавляется дельта.
type Exporter struct {
	mu   sync.Mutex
	prev world.Stats

	commandsApplied  prometheus.Counter
	commandsRejected prometheus.Counter
	cellsSet         prometheus.Counter
	cellsCleared     prometheus.Counter
	raisesApplied    prometheus.Counter
	raisesRejected   prometheus.Counter
	tilesStitched    prometheus.Counter
	connectionGaps   prometheus.Counter

	occupiedCells prometheus.Gauge
	queueDepth    prometheus.Gauge
	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	saves         *prometheus.CounterVec
}

// NewExporter создаёт метрики с пространством имён namespace и регистрирует их в reg
func NewExporter(reg prometheus.Registerer, namespace string) *Exporter {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: "world", Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "world", Name: name, Help: help})
	}

	e := &Exporter{
		commandsApplied:  counter("commands_applied_total", "Применённые команды карты."),
		commandsRejected: counter("commands_rejected_total", "Команды, отклонённые при применении."),
		cellsSet:         counter("cells_set_total", "Выполненные SetCell."),
		cellsCleared:     counter("cells_cleared_total", "Выполненные ClearCell."),
		raisesApplied:    counter("raises_applied_total", "Выполненные подъёмы рельефа, включая вложенные."),
		raisesRejected:   counter("raises_rejected_total", "Подъёмы, отменённые по предусловиям."),
		tilesStitched:    counter("tiles_stitched_total", "Соседи, сшитые с поднятыми ячейками."),
		connectionGaps:   counter("connection_gaps_total", "Соединения, оставшиеся разрывами из-за отсутствия плитки."),
		occupiedCells:    gauge("occupied_cells", "Количество занятых слотов карты."),
		queueDepth:       gauge("command_queue_depth", "Команд в очереди перед применением."),
		ticks:            counter("ticks_total", "Выполненные тики."),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "tick_duration_seconds",
			Help:      "Длительность применения очереди команд за тик.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "saves_total",
			Help:      "Сохранения карты по результату.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		e.commandsApplied, e.commandsRejected, e.cellsSet, e.cellsCleared,
		e.raisesApplied, e.raisesRejected, e.tilesStitched, e.connectionGaps,
		e.occupiedCells, e.queueDepth, e.ticks, e.tickDuration, e.saves,
	)
	return e
}

// ObserveTick учитывает один тик: глубину очереди до применения,
// длительность и свежий снимок счётчиков карты.
func (e *Exporter) ObserveTick(pending int, duration time.Duration, stats world.Stats) {
	e.queueDepth.Set(float64(pending))
	e.ticks.Inc()
	e.tickDuration.Observe(duration.Seconds())
	e.ObserveStats(stats)
}

// ObserveStats прибавляет к счётчикам приращение относительно прошлого снимка
func (e *Exporter) ObserveStats(stats world.Stats) {
	e.mu.Lock()
	defer e.mu.Unlock()

	addDelta(e.commandsApplied, stats.CommandsApplied, e.prev.CommandsApplied)
	addDelta(e.commandsRejected, stats.CommandsRejected, e.prev.CommandsRejected)
	addDelta(e.cellsSet, stats.CellsSet, e.prev.CellsSet)
	addDelta(e.cellsCleared, stats.CellsCleared, e.prev.CellsCleared)
	addDelta(e.raisesApplied, stats.RaisesApplied, e.prev.RaisesApplied)
	addDelta(e.raisesRejected, stats.RaisesRejected, e.prev.RaisesRejected)
	addDelta(e.tilesStitched, stats.TilesStitched, e.prev.TilesStitched)
	addDelta(e.connectionGaps, stats.ConnectionGaps, e.prev.ConnectionGaps)

	e.occupiedCells.Set(float64(stats.OccupiedCells))
	e.prev = stats
}

// Reset забывает прошлый снимок (карта была заменена новой)
func (e *Exporter) Reset() {
	e.mu.Lock()
	e.prev = world.Stats{}
	e.mu.Unlock()
}

// ObserveSave учитывает попытку сохранения
func (e *Exporter) ObserveSave(err error) {
	if err != nil {
		e.saves.WithLabelValues("error").Inc()
		return
	}
	e.saves.WithLabelValues("ok").Inc()
}

// addDelta прибавляет приращение. Если счётчик уменьшился, значит карта
// пересоздана, и текущее значение целиком считается приращением.
func addDelta(c prometheus.Counter, cur, prev uint64) {
	if cur < prev {
		prev = 0
	}
	if d := cur - prev; d > 0 {
		c.Add(float64(d))
	}
}
