package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/isoworld/internal/api"
	"github.com/annel0/isoworld/internal/config"
	"github.com/annel0/isoworld/internal/engine"
	"github.com/annel0/isoworld/internal/generator"
	"github.com/annel0/isoworld/internal/logging"
	"github.com/annel0/isoworld/internal/metrics"
	"github.com/annel0/isoworld/internal/observability"
	"github.com/annel0/isoworld/internal/storage"
	"github.com/annel0/isoworld/internal/tileset"
	"github.com/annel0/isoworld/internal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или ENV ISOWORLD_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if cfg.Logging.Dir != "" {
		logging.SetLogDir(cfg.Logging.Dir)
	}
	logging.SetConsoleLevel(logging.ParseLevel(cfg.Logging.ConsoleLevel))
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	loggers := logging.GetLoggerManager()
	if err := loggers.ApplyLevels(cfg.Logging.Levels); err != nil {
		log.Fatalf("❌ Ошибка настройки уровней логирования: %v", err)
	}
	defer func() {
		logging.Debug("Закрываем логгеры компонентов: %v", loggers.ListComponents())
		if err := loggers.CloseAll(); err != nil {
			log.Printf("Ошибка закрытия логгеров: %v", err)
		}
	}()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		loggers.CloseAll()
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("🌍 Запуск isoworld: карта %dx%dx%d", cfg.World.Width, cfg.World.Height, cfg.World.Layers)

	// === TELEMETRY ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry, cfg.World)
	if err != nil {
		return fmt.Errorf("инициализация OpenTelemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
		}
	}()

	// === STORAGE ===
	store, err := storage.NewMapStore(cfg.Storage.DataPath, cfg.Storage.Compress)
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := loadOrGenerate(cfg, store)
	if err != nil {
		return err
	}

	// === ENGINE ===
	exporter := metrics.NewExporter(prometheus.DefaultRegisterer, api.PromNamespace(cfg.Telemetry.ServiceName))
	mgr := engine.NewManager(m, engine.Options{
		TickRate:         cfg.Server.TickRate,
		AutosaveInterval: time.Duration(cfg.Storage.AutosaveSeconds) * time.Second,
		MapName:          cfg.Storage.MapName,
		Saver:            store,
		Metrics:          exporter,
	})
	mgr.Run(ctx)

	// === REST API ===
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	server := api.NewRestServer(api.Config{
		Port:        restPort,
		World:       mgr,
		Mapper:      world.NewCoordinateMapper(cellSize(cfg)),
		ServiceName: cfg.Telemetry.ServiceName,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logging.Info("✅ Сервер запущен")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)
	logging.Info("   📈 Метрики: http://localhost%s/metrics", restPort)

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case err := <-serverErr:
		if err != nil {
			logging.Error("REST API остановился с ошибкой: %v", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	// Stop применяет оставшиеся команды и делает финальное сохранение
	mgr.Stop()

	logging.Info("👋 Сервер успешно остановлен")
	return nil
}

func cellSize(cfg *config.Config) mgl64.Vec3 {
	return mgl64.Vec3{cfg.World.CellSize.X, cfg.World.CellSize.Y, cfg.World.CellSize.Z}
}

// loadOrGenerate загружает сохранённую карту; если снимка нет, создаёт новую
// и при включённом генераторе строит рельеф.
func loadOrGenerate(cfg *config.Config, store *storage.MapStore) (*world.Map, error) {
	opts := []world.Option{
		world.WithLayerHeight(cfg.World.LayerHeight),
		world.WithQueueCeiling(cfg.World.CommandQueueCeiling),
	}

	m, err := store.Load(cfg.Storage.MapName, opts...)
	switch {
	case err == nil:
		logging.Info("📂 Карта %q загружена: %d ячеек, %d плиток", cfg.Storage.MapName, m.CellCount(), m.Tiles().Len())
		return m, nil
	case !errors.Is(err, storage.ErrMapNotFound):
		return nil, fmt.Errorf("загрузка карты %q: %w", cfg.Storage.MapName, err)
	}

	m = world.NewMap(cfg.World.Width, cfg.World.Height, cfg.World.Layers, opts...)
	tileset.Populate(m.Tiles(), tileset.Options{
		MaxCornerHeight: cfg.Tiles.MaxCornerHeight,
		CellSize:        cellSize(cfg),
		LayerHeight:     cfg.World.LayerHeight,
	})

	if !cfg.Generator.Enabled {
		logging.Info("🗺️ Создана пустая карта %q", cfg.Storage.MapName)
		return m, nil
	}

	gen := generator.New(generator.Options{
		Seed:       cfg.Generator.Seed,
		NoiseScale: cfg.Generator.NoiseScale,
		Alpha:      cfg.Generator.Alpha,
		Beta:       cfg.Generator.Beta,
		Octaves:    cfg.Generator.Octaves,
		MaxHeight:  cfg.World.Layers - 1,
	})
	report, err := gen.Generate(m)
	if err != nil {
		return nil, fmt.Errorf("генерация рельефа: %w", err)
	}
	applied := m.ApplyCommands()

	logging.Info("🗺️ Карта %q сгенерирована: %d ячеек, %d подъёмов, применено %d команд",
		cfg.Storage.MapName, report.CellsPlaced, report.RaisesEnqueued, applied)
	return m, nil
}
