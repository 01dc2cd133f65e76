package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/isoworld/internal/engine"
	"github.com/annel0/isoworld/internal/logging"
	"github.com/annel0/isoworld/internal/middleware"
	"github.com/annel0/isoworld/internal/storage"
	"github.com/annel0/isoworld/internal/tileset"
	"github.com/annel0/isoworld/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	// DefaultMaxCells ограничение ответа GET /api/cells
	DefaultMaxCells = 10000
	// MaxCommandsPerRequest ограничение пакета POST /api/commands
	MaxCommandsPerRequest = 4096

	maxBodyBytes = 4 << 20
	unbounded    = 1 << 30
)

// WorldService доступ к миру, который нужен REST API
type WorldService interface {
	Submit(ctx context.Context, cmds ...world.MapCommand) ([]error, error)
	Flush(ctx context.Context) (int, error)
	Cell(ctx context.Context, c world.CellCoord) (engine.CellView, bool, error)
	Cells(ctx context.Context, min, max world.CellCoord, limit int) ([]engine.CellView, bool, error)
	Tiles(ctx context.Context) ([]world.Tile, error)
	Status(ctx context.Context) (engine.Status, error)
	Save(ctx context.Context) (storage.SnapshotMeta, error)
}

// RestServer представляет REST API сервер
type RestServer struct {
	router   *gin.Engine
	world    WorldService
	mapper   world.CoordinateMapper
	port     string
	maxCells int
	metrics  *ServerMetrics
	server   *http.Server
	log      *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port        string                 // порт для запуска сервера, например ":8088"
	World       WorldService           // мир
	Mapper      world.CoordinateMapper // геометрия ячейки для /api/locate
	Registry    prometheus.Registerer  // куда регистрировать HTTP-метрики
	Gatherer    prometheus.Gatherer    // откуда отдавать /metrics
	MaxCells    int                    // ограничение ответа /api/cells
	ServiceName string                 // имя сервиса для otelgin и метрик
	Logger      *logging.Logger        // nil: логгер компонента api
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.MaxCells <= 0 {
		config.MaxCells = DefaultMaxCells
	}
	if config.ServiceName == "" {
		config.ServiceName = "isoworld"
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware(config.ServiceName))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw := middleware.NewPrometheusMiddleware(PromNamespace(config.ServiceName), config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	server := &RestServer{
		router:   router,
		world:    config.World,
		mapper:   config.Mapper,
		port:     config.Port,
		maxCells: config.MaxCells,
		metrics:  NewServerMetrics(),
		log:      config.Logger,
	}

	server.setupRoutes()
	return server
}

// PromNamespace приводит имя сервиса к допустимому пространству имён Prometheus
func PromNamespace(service string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, service)
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(corsMiddleware())
	rs.router.Use(bodyLimitMiddleware(maxBodyBytes))

	api := rs.router.Group("/api")
	{
		api.GET("/tiles", rs.handleTiles)
		api.GET("/cells", rs.handleCells)
		api.GET("/cells/:col/:row/:layer", rs.handleCell)
		api.GET("/locate", rs.handleLocate)
		api.POST("/commands", rs.handleCommands)
		api.POST("/save", rs.handleSave)
		api.GET("/stats", rs.handleStats)
	}

	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает http.Handler сервера (используется в тестах)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер и блокируется до остановки
func (rs *RestServer) Start() error {
	rs.server = &http.Server{
		Addr:              rs.port,
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rs.log.Info("REST API слушает %s", rs.port)

	err := rs.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop останавливает REST сервер, дожидаясь завершения запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.server == nil {
		return nil
	}
	return rs.server.Shutdown(ctx)
}

// respondError переводит ошибку мира в HTTP-ответ
func (rs *RestServer) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotRunning), errors.Is(err, engine.ErrNoStorage):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		rs.log.Error("Ошибка обработки %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: message})
}

// handleHealth возвращает состояние сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// TileDTO плитка каталога
type TileDTO struct {
	Index    world.TileIndex `json:"index"`
	Name     string          `json:"name"`
	Heights  world.Heights   `json:"heights"`
	Geometry *world.Geometry `json:"geometry,omitempty"`
}

// handleTiles возвращает каталог плиток; ?geometry=true добавляет геометрию
func (rs *RestServer) handleTiles(c *gin.Context) {
	tiles, err := rs.world.Tiles(c.Request.Context())
	if err != nil {
		rs.respondError(c, err)
		return
	}

	withGeometry := c.Query("geometry") == "true"
	out := make([]TileDTO, len(tiles))
	for i := range tiles {
		out[i] = TileDTO{
			Index:   world.TileIndex(i),
			Name:    tileset.Name(tiles[i].Heights),
			Heights: tiles[i].Heights,
		}
		if withGeometry {
			out[i].Geometry = &tiles[i].Geometry
		}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Каталог плиток",
		Data: gin.H{
			"tiles": out,
			"total": len(out),
		},
	})
}

// parseCoord разбирает "c,r,l"
func parseCoord(s string) (world.CellCoord, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return world.CellCoord{}, fmt.Errorf("ожидается \"колонка,строка,слой\", получено %q", s)
	}

	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return world.CellCoord{}, fmt.Errorf("координата %q: %w", p, err)
		}
		v[i] = n
	}
	return world.CellCoord{Column: v[0], Row: v[1], Layer: v[2]}, nil
}

// handleCells возвращает ячейки окна [min, max). По умолчанию вся карта.
func (rs *RestServer) handleCells(c *gin.Context) {
	min := world.CellCoord{}
	max := world.CellCoord{Column: unbounded, Row: unbounded, Layer: unbounded}

	if s := c.Query("min"); s != "" {
		coord, err := parseCoord(s)
		if err != nil {
			badRequest(c, "min: "+err.Error())
			return
		}
		min = coord
	}
	if s := c.Query("max"); s != "" {
		coord, err := parseCoord(s)
		if err != nil {
			badRequest(c, "max: "+err.Error())
			return
		}
		max = coord
	}

	limit := rs.maxCells
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(c, "limit должен быть положительным числом")
			return
		}
		if n < limit {
			limit = n
		}
	}

	cells, truncated, err := rs.world.Cells(c.Request.Context(), min, max, limit)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	if cells == nil {
		cells = []engine.CellView{}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Ячейки получены",
		Data: gin.H{
			"cells":     cells,
			"total":     len(cells),
			"truncated": truncated,
		},
	})
}

// handleCell возвращает одну ячейку
func (rs *RestServer) handleCell(c *gin.Context) {
	var v [3]int
	for i, name := range []string{"col", "row", "layer"} {
		n, err := strconv.Atoi(c.Param(name))
		if err != nil {
			badRequest(c, fmt.Sprintf("%s: ожидается целое число", name))
			return
		}
		v[i] = n
	}
	coord := world.CellCoord{Column: v[0], Row: v[1], Layer: v[2]}

	view, found, err := rs.world.Cell(c.Request.Context(), coord)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("ячейка %s пуста или вне карты", coord),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Ячейка получена", Data: view})
}

// handleLocate переводит мировую позицию в координаты ячейки
func (rs *RestServer) handleLocate(c *gin.Context) {
	var pos mgl64.Vec3
	for i, name := range []string{"x", "y", "z"} {
		s := c.DefaultQuery(name, "0")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			badRequest(c, fmt.Sprintf("%s: ожидается число", name))
			return
		}
		pos[i] = f
	}

	coord := rs.mapper.WorldToCell(pos)
	view, found, err := rs.world.Cell(c.Request.Context(), coord)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	data := gin.H{
		"coord":  coord,
		"center": rs.mapper.CellToWorld(coord),
		"origin": rs.mapper.CellOrigin(coord),
		"found":  found,
	}
	if found {
		data["cell"] = view
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Позиция переведена", Data: data})
}

// CommandDTO одна команда пакета
type CommandDTO struct {
	Op     string          `json:"op" binding:"required,oneof=set clear raise"`
	Column int             `json:"column"`
	Row    int             `json:"row"`
	Layer  int             `json:"layer"`
	Tile   world.TileIndex `json:"tile"`
}

// CommandRequest пакет команд; apply=true применяет очередь сразу, не дожидаясь тика
type CommandRequest struct {
	Commands []CommandDTO `json:"commands" binding:"required,min=1,dive"`
	Apply    bool         `json:"apply"`
}

// CommandResult результат постановки одной команды
type CommandResult struct {
	Index    int    `json:"index"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func (d CommandDTO) command() world.MapCommand {
	coord := world.CellCoord{Column: d.Column, Row: d.Row, Layer: d.Layer}
	switch d.Op {
	case "set":
		return world.SetCellCommand{Coord: coord, Cell: world.Cell{Tile: d.Tile}}
	case "clear":
		return world.ClearCellCommand{Coord: coord}
	default:
		return world.RaiseTerrainCommand{Coord: coord}
	}
}

// handleCommands ставит пакет команд в очередь карты
func (rs *RestServer) handleCommands(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	if len(req.Commands) > MaxCommandsPerRequest {
		badRequest(c, fmt.Sprintf("не более %d команд за запрос", MaxCommandsPerRequest))
		return
	}

	cmds := make([]world.MapCommand, len(req.Commands))
	for i, d := range req.Commands {
		cmds[i] = d.command()
	}

	errs, err := rs.world.Submit(c.Request.Context(), cmds...)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	results := make([]CommandResult, len(errs))
	accepted := 0
	for i, e := range errs {
		results[i] = CommandResult{Index: i, Accepted: e == nil}
		if e != nil {
			results[i].Error = e.Error()
			continue
		}
		accepted++
	}

	applied := 0
	if req.Apply && accepted > 0 {
		applied, err = rs.world.Flush(c.Request.Context())
		if err != nil {
			rs.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: accepted == len(cmds),
		Message: fmt.Sprintf("Принято %d из %d команд", accepted, len(cmds)),
		Data: gin.H{
			"results":  results,
			"accepted": accepted,
			"applied":  applied,
		},
	})
}

// handleSave сохраняет карту
func (rs *RestServer) handleSave(c *gin.Context) {
	meta, err := rs.world.Save(c.Request.Context())
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Карта сохранена", Data: meta})
}

// handleStats возвращает статистику мира и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	status, err := rs.world.Status(c.Request.Context())
	if err != nil {
		rs.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data: gin.H{
			"world":  status,
			"server": rs.metrics.Snapshot(),
		},
	})
}
