// Package api REST API сервиса освещения на gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/voxel-light/internal/app"
	"github.com/annel0/voxel-light/internal/lighting"
	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/middleware"
	"github.com/annel0/voxel-light/internal/storage"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
	"github.com/annel0/voxel-light/internal/world/block"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	server  *http.Server
	world   *app.World
	metrics *ProcessMetrics
	logger  *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port   string     // адрес для запуска сервера, например ":8088"
	World  *app.World // мир с движком освещения
	Logger *logging.Logger

	// Регистр и источник метрик для /metrics; nil — глобальные prometheus
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("voxel-light"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw := middleware.NewPrometheusMiddleware("rest_api", config.Registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	rs := &RestServer{
		router:  router,
		world:   config.World,
		metrics: NewProcessMetrics(),
		logger:  config.Logger,
		server: &http.Server{
			Addr:              config.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	rs.setupRoutes()
	return rs
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/light", rs.handleGetLight)
		api.POST("/blocks", rs.handlePlaceBlock)
		api.DELETE("/blocks", rs.handleRemoveBlock)
		api.POST("/edits", rs.handleSubmitEdits)

		api.GET("/chunks", rs.handleListChunks)
		api.POST("/chunks", rs.handleLoadChunk)
		api.DELETE("/chunks/:x/:z", rs.handleUnloadChunk)
		api.GET("/chunks/:x/:z/snapshot", rs.handleGetSnapshot)

		api.GET("/stats", rs.handleStats)
	}
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ChunkRef координаты чанка в ответах API
type ChunkRef struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func chunkRefs(coords []vec.Vec2) []ChunkRef {
	out := make([]ChunkRef, 0, len(coords))
	for _, c := range coords {
		out = append(out, ChunkRef{X: c.X, Z: c.Y})
	}
	return out
}

// LightResponse освещение вокселя
type LightResponse struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	Sky     uint8  `json:"sky"`
	Block   uint8  `json:"block"`
	BlockID uint16 `json:"block_id"`
}

// PlaceBlockRequest запрос на установку блока
type PlaceBlockRequest struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	BlockID uint16 `json:"block_id" binding:"required"`
}

// EditRequest правка для асинхронной очереди: op "place" или "remove"
type EditRequest struct {
	Op      string `json:"op" binding:"required,oneof=place remove"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	BlockID uint16 `json:"block_id"`
}

// EditsRequest пакет правок
type EditsRequest struct {
	Edits []EditRequest `json:"edits" binding:"required,min=1,dive"`
}

// EditsResponse сколько правок пакета принято в очередь
type EditsResponse struct {
	Accepted int `json:"accepted"`
	Total    int `json:"total"`
}

// RemeshResponse чанки, помеченные для перестроения меша
type RemeshResponse struct {
	Remesh []ChunkRef `json:"remesh"`
}

// SnapshotResponse метаданные сохранённого снимка света
type SnapshotResponse struct {
	X          int       `json:"x"`
	Z          int       `json:"z"`
	Digest     string    `json:"digest"`
	LightBytes int       `json:"light_bytes"`
	SavedAt    time.Time `json:"saved_at"`
}

// StatsResponse состояние мира и процесса
type StatsResponse struct {
	World   app.Stats    `json:"world"`
	Process ProcessStats `json:"process"`
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (rs *RestServer) handleGetLight(c *gin.Context) {
	pos, err := queryVec3(c)
	if err != nil {
		rs.fail(c, err)
		return
	}

	v, err := rs.world.VoxelAt(pos)
	if err != nil {
		rs.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Освещение получено",
		Data:    LightResponse{X: pos.X, Y: pos.Y, Z: pos.Z, Sky: v.Sky, Block: v.Light, BlockID: uint16(v.Block)},
	})
}

func (rs *RestServer) handlePlaceBlock(c *gin.Context) {
	var req PlaceBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	pos := vec.Vec3{X: req.X, Y: req.Y, Z: req.Z}
	remesh, err := rs.world.PlaceBlock(c.Request.Context(), pos, block.BlockID(req.BlockID))
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блок установлен",
		Data:    RemeshResponse{Remesh: chunkRefs(remesh)},
	})
}

func (rs *RestServer) handleRemoveBlock(c *gin.Context) {
	pos, err := queryVec3(c)
	if err != nil {
		rs.fail(c, err)
		return
	}

	remesh, err := rs.world.RemoveBlock(c.Request.Context(), pos)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блок удалён",
		Data:    RemeshResponse{Remesh: chunkRefs(remesh)},
	})
}

// handleSubmitEdits ставит пакет правок в очередь мира. Правки
// применяются циклом World.Run; результат приходит событиями ремеша.
func (rs *RestServer) handleSubmitEdits(c *gin.Context) {
	var req EditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	accepted := 0
	for _, e := range req.Edits {
		edit := app.Edit{Kind: app.EditRemove, Pos: vec.Vec3{X: e.X, Y: e.Y, Z: e.Z}}
		if e.Op == "place" {
			edit.Kind = app.EditPlace
			edit.Block = block.BlockID(e.BlockID)
		}
		if err := rs.world.Submit(edit); err != nil {
			c.JSON(statusFor(err), GenericResponse{
				Success: false,
				Message: err.Error(),
				Data:    EditsResponse{Accepted: accepted, Total: len(req.Edits)},
			})
			return
		}
		accepted++
	}

	c.JSON(http.StatusAccepted, GenericResponse{
		Success: true,
		Message: "Правки поставлены в очередь",
		Data:    EditsResponse{Accepted: accepted, Total: len(req.Edits)},
	})
}

func (rs *RestServer) handleListChunks(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Загруженные чанки",
		Data:    chunkRefs(rs.world.LoadedChunks()),
	})
}

func (rs *RestServer) handleLoadChunk(c *gin.Context) {
	var req ChunkRef
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	remesh, err := rs.world.LoadChunk(c.Request.Context(), vec.Vec2{X: req.X, Y: req.Z})
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Чанк загружен",
		Data:    RemeshResponse{Remesh: chunkRefs(remesh)},
	})
}

func (rs *RestServer) handleUnloadChunk(c *gin.Context) {
	coords, err := pathChunk(c)
	if err != nil {
		rs.fail(c, err)
		return
	}
	remesh, err := rs.world.UnloadChunk(c.Request.Context(), coords)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Чанк выгружен",
		Data:    RemeshResponse{Remesh: chunkRefs(remesh)},
	})
}

func (rs *RestServer) handleGetSnapshot(c *gin.Context) {
	coords, err := pathChunk(c)
	if err != nil {
		rs.fail(c, err)
		return
	}
	snap, err := rs.world.Snapshot(c.Request.Context(), coords)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Снимок света",
		Data: SnapshotResponse{
			X:          snap.Coords.X,
			Z:          snap.Coords.Y,
			Digest:     strconv.FormatUint(snap.Digest, 16),
			LightBytes: len(snap.Light),
			SavedAt:    snap.SavedAt,
		},
	})
}

func (rs *RestServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data: StatsResponse{
			World:   rs.world.Stats(),
			Process: rs.metrics.Snapshot(),
		},
	})
}

// errBadRequest некорректные параметры запроса
var errBadRequest = errors.New("некорректный запрос")

// statusFor сопоставляет ошибку домена HTTP-статусу
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, app.ErrUnknownBlock),
		errors.Is(err, lighting.ErrOutOfBounds):
		return http.StatusBadRequest
	case errors.Is(err, lighting.ErrChunkNotLoaded),
		errors.Is(err, storage.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrOccupied),
		errors.Is(err, app.ErrEmpty),
		errors.Is(err, world.ErrChunkExists):
		return http.StatusConflict
	case errors.Is(err, app.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (rs *RestServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		rs.logger.Error("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

func queryVec3(c *gin.Context) (vec.Vec3, error) {
	var v vec.Vec3
	var err error
	if v.X, err = strconv.Atoi(c.Query("x")); err != nil {
		return v, fmt.Errorf("%w: x", errBadRequest)
	}
	if v.Y, err = strconv.Atoi(c.Query("y")); err != nil {
		return v, fmt.Errorf("%w: y", errBadRequest)
	}
	if v.Z, err = strconv.Atoi(c.Query("z")); err != nil {
		return v, fmt.Errorf("%w: z", errBadRequest)
	}
	return v, nil
}

func pathChunk(c *gin.Context) (vec.Vec2, error) {
	x, errX := strconv.Atoi(c.Param("x"))
	z, errZ := strconv.Atoi(c.Param("z"))
	if errX != nil || errZ != nil {
		return vec.Vec2{}, fmt.Errorf("%w: координаты чанка", errBadRequest)
	}
	return vec.Vec2{X: x, Y: z}, nil
}

// Start запускает REST сервер; возвращает nil после Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает сервер, дожидаясь завершения активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}
