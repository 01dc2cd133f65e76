package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Tiles     TilesConfig     `yaml:"tiles"`
	Generator GeneratorConfig `yaml:"generator"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WorldConfig задаёт неизменяемые размеры карты и геометрию ячейки
type WorldConfig struct {
	Width               int      `yaml:"width"`
	Height              int      `yaml:"height"`
	Layers              int      `yaml:"layers"`
	CellSize            CellSize `yaml:"cell_size"`
	LayerHeight         int      `yaml:"layer_height"`
	CommandQueueCeiling int      `yaml:"command_queue_ceiling"`
}

// CellSize размер ячейки ромбической сетки в мировых единицах по каждой оси
type CellSize struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type TilesConfig struct {
	MaxCornerHeight int `yaml:"max_corner_height"`
}

type GeneratorConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Seed       int64   `yaml:"seed"`
	NoiseScale float64 `yaml:"noise_scale"`
	Alpha      float64 `yaml:"alpha"`
	Beta       float64 `yaml:"beta"`
	Octaves    int32   `yaml:"octaves"`
}

type StorageConfig struct {
	DataPath        string `yaml:"data_path"`
	MapName         string `yaml:"map_name"`
	Compress        bool   `yaml:"compress"`
	AutosaveSeconds int    `yaml:"autosave_seconds"`
}

type ServerConfig struct {
	TickRate int `yaml:"tick_rate"`
	RESTPort int `yaml:"rest_port"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Dir          string            `yaml:"dir"`
	ConsoleLevel string            `yaml:"console_level"`
	Levels       map[string]string `yaml:"levels"` // уровни по компонентам: engine: debug
}

// Default возвращает конфигурацию, с которой сервер запускается без файла
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Width:               32,
			Height:              64,
			Layers:              8,
			CellSize:            CellSize{X: 32, Y: 32, Z: 16},
			LayerHeight:         1,
			CommandQueueCeiling: 4096,
		},
		Tiles: TilesConfig{MaxCornerHeight: 2},
		Generator: GeneratorConfig{
			Enabled:    true,
			Seed:       1337,
			NoiseScale: 0.08,
			Alpha:      2.0,
			Beta:       2.0,
			Octaves:    3,
		},
		Storage: StorageConfig{
			DataPath:        "data",
			MapName:         "default",
			Compress:        true,
			AutosaveSeconds: 300,
		},
		Server: ServerConfig{
			TickRate: 20,
			RESTPort: 0,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "isoworld",
		},
		Logging: LoggingConfig{
			ConsoleLevel: "info",
		},
	}
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	w := c.World
	if w.Width <= 0 || w.Height <= 0 || w.Layers <= 0 {
		return fmt.Errorf("world: размеры должны быть положительными (width=%d height=%d layers=%d)", w.Width, w.Height, w.Layers)
	}
	if w.CellSize.X <= 0 || w.CellSize.Y <= 0 || w.CellSize.Z <= 0 {
		return fmt.Errorf("world: cell_size должен быть положительным по всем осям: %+v", w.CellSize)
	}
	if w.LayerHeight <= 0 {
		return fmt.Errorf("world: layer_height должен быть положительным, получено %d", w.LayerHeight)
	}
	if w.CommandQueueCeiling <= 0 {
		return fmt.Errorf("world: command_queue_ceiling должен быть положительным, получено %d", w.CommandQueueCeiling)
	}
	if c.Tiles.MaxCornerHeight < w.LayerHeight {
		return fmt.Errorf("tiles: max_corner_height (%d) меньше layer_height (%d)", c.Tiles.MaxCornerHeight, w.LayerHeight)
	}
	if c.Server.TickRate <= 0 {
		return fmt.Errorf("server: tick_rate должен быть положительным, получено %d", c.Server.TickRate)
	}
	if c.Storage.MapName == "" {
		return fmt.Errorf("storage: map_name не задан")
	}
	return nil
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "ISOWORLD_REST_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений Default().
// Если path == "", пытается прочитать из ENV ISOWORLD_CONFIG; если и он пуст,
// возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ISOWORLD_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан: используем дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
