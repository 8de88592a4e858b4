// Package app связывает движок освещения с генератором чанков,
// хранилищем снимков света и шиной событий ремеша.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annel0/voxel-light/internal/eventbus"
	"github.com/annel0/voxel-light/internal/lighting"
	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/storage"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
	"github.com/annel0/voxel-light/internal/world/block"
	"github.com/annel0/voxel-light/internal/worldgen"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EventSource имя сервиса в конвертах событий
const EventSource = "voxel-light"

var tracer = otel.Tracer("github.com/annel0/voxel-light/internal/app")

var (
	// ErrUnknownBlock тип блока не зарегистрирован или это воздух
	ErrUnknownBlock = errors.New("неизвестный тип блока")
	// ErrOccupied в вокселе уже стоит блок
	ErrOccupied = errors.New("воксель занят")
	// ErrEmpty в вокселе нет блока
	ErrEmpty = errors.New("воксель пуст")
	// ErrQueueFull очередь правок переполнена
	ErrQueueFull = errors.New("очередь правок переполнена")
)

// EditKind тип правки
type EditKind int

const (
	EditPlace EditKind = iota
	EditRemove
)

func (k EditKind) String() string {
	if k == EditPlace {
		return "place"
	}
	return "remove"
}

// Edit правка вокселя, поставленная в очередь через Submit
type Edit struct {
	Kind  EditKind
	Pos   vec.Vec3
	Block block.BlockID // только для EditPlace
}

// Stats состояние мира
type Stats struct {
	LoadedChunks    int    `json:"loaded_chunks"`
	EditsApplied    uint64 `json:"edits_applied"`
	RemeshPublished uint64 `json:"remesh_published"`
	ExportFailures  uint64 `json:"export_failures"`
	QueuedEdits     int    `json:"queued_edits"`
}

// Options зависимости World
type Options struct {
	Registry  *block.Registry
	Generator *worldgen.Generator
	Store     storage.LightStore
	Bus       eventbus.EventBus
	Logger    *logging.Logger

	// Metrics регистр для метрик движка; nil отключает метрики
	Metrics           prometheus.Registerer
	ReconcileOnAttach bool
	EditQueue         int
}

// Voxel содержимое вокселя, прочитанное под одной блокировкой
type Voxel struct {
	Block block.BlockID
	Sky   uint8
	Light uint8
}

// World единственный цикл симуляции вокруг движка освещения.
// Все вызовы движка и чтения чанков сериализованы мьютексом mu.
// exportMu захватывается до освобождения mu, поэтому снимки попадают
// в хранилище в том же порядке, в каком применялись правки.
type World struct {
	mu       sync.Mutex
	exportMu sync.Mutex
	registry *block.Registry
	chunks   *world.Manager
	engine   *lighting.Engine
	gen      *worldgen.Generator
	store    storage.LightStore
	bus      eventbus.EventBus
	logger   *logging.Logger

	edits chan Edit

	editsApplied    uint64
	remeshPublished uint64
	exportFailures  uint64
}

// NewWorld создаёт мир без загруженных чанков
func NewWorld(opts Options) *World {
	if opts.Logger == nil {
		opts.Logger = logging.GetWorldLogger()
	}
	if opts.Generator == nil {
		opts.Generator = worldgen.NewGenerator(0, opts.Registry)
	}
	if opts.EditQueue <= 0 {
		opts.EditQueue = 256
	}

	chunks := world.NewManager()
	engineOpts := []lighting.Option{
		lighting.WithLogger(logging.GetLightingLogger()),
		lighting.WithReconcileOnAttach(opts.ReconcileOnAttach),
	}
	if opts.Metrics != nil {
		engineOpts = append(engineOpts, lighting.WithMetrics(opts.Metrics))
	}

	return &World{
		registry: opts.Registry,
		chunks:   chunks,
		engine:   lighting.New(chunks, opts.Registry, engineOpts...),
		gen:      opts.Generator,
		store:    opts.Store,
		bus:      opts.Bus,
		logger:   opts.Logger,
		edits:    make(chan Edit, opts.EditQueue),
	}
}

// LoadChunk генерирует чанк, освещает его и публикует ремеш для него
// и для соседей, чей свет изменился.
func (w *World) LoadChunk(ctx context.Context, coords vec.Vec2) (_ []vec.Vec2, err error) {
	ctx, span := tracer.Start(ctx, "World.LoadChunk", trace.WithAttributes(
		attribute.Int("chunk.x", coords.X), attribute.Int("chunk.z", coords.Y)))
	defer func() { endSpan(span, err) }()

	w.mu.Lock()
	chunk := w.gen.Generate(coords)
	if err = w.chunks.Attach(chunk); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	touched, err := w.engine.Initialize(chunk)
	if err != nil {
		w.chunks.Detach(coords)
		w.mu.Unlock()
		return nil, err
	}
	remesh := append([]vec.Vec2{coords}, touched...)
	snaps := w.snapshotsLocked(remesh)
	w.exportMu.Lock()
	w.mu.Unlock()

	w.logger.Debug("📦 Чанк %v загружен, соседей изменено %d", coords, len(touched))
	w.export(ctx, snaps, eventbus.ReasonInitialize)
	return remesh, nil
}

// Preload загружает квадрат чанков радиуса radius вокруг начала координат
func (w *World) Preload(ctx context.Context, radius int) error {
	for x := -radius; x <= radius; x++ {
		for z := -radius; z <= radius; z++ {
			if _, err := w.LoadChunk(ctx, vec.Vec2{X: x, Y: z}); err != nil && !errors.Is(err, world.ErrChunkExists) {
				return fmt.Errorf("предзагрузка %d,%d: %w", x, z, err)
			}
		}
	}
	return nil
}

// UnloadChunk выгружает чанк. Свет, пришедший из него в соседей,
// гасится и восстанавливается с оставшейся границы; изменённые соседи
// сохраняются и публикуются как обновлённые.
func (w *World) UnloadChunk(ctx context.Context, coords vec.Vec2) (_ []vec.Vec2, err error) {
	ctx, span := tracer.Start(ctx, "World.UnloadChunk", trace.WithAttributes(
		attribute.Int("chunk.x", coords.X), attribute.Int("chunk.z", coords.Y)))
	defer func() { endSpan(span, err) }()

	w.mu.Lock()
	chunk, ok := w.chunks.Detach(coords)
	if !ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("unload %v: %w", coords, lighting.ErrChunkNotLoaded)
	}
	touched, err := w.engine.Detach(chunk)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	snaps := w.snapshotsLocked(touched)
	w.exportMu.Lock()
	w.mu.Unlock()

	if w.store != nil {
		if err := w.store.Delete(ctx, coords); err != nil {
			atomic.AddUint64(&w.exportFailures, 1)
			w.logger.Warn("⚠️ Не удалось удалить снимок света %v: %v", coords, err)
		}
	}
	w.publish(ctx, coords, eventbus.ReasonUnload)
	w.logger.Debug("📤 Чанк %v выгружен, соседей изменено %d", coords, len(touched))
	w.export(ctx, snaps, eventbus.ReasonUpdate)
	return touched, nil
}

// PlaceBlock ставит блок в пустой воксель и обновляет освещение
func (w *World) PlaceBlock(ctx context.Context, pos vec.Vec3, id block.BlockID) (_ []vec.Vec2, err error) {
	ctx, span := tracer.Start(ctx, "World.PlaceBlock", trace.WithAttributes(posAttrs(pos)...))
	span.SetAttributes(attribute.Int("block.id", int(id)))
	defer func() { endSpan(span, err) }()

	if id == block.AirBlockID || !w.registry.IsValidBlockID(id) {
		return nil, fmt.Errorf("place %v: %w: %d", pos, ErrUnknownBlock, id)
	}

	w.mu.Lock()
	chunk, local, err := w.locateLocked(pos)
	if err != nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("place %v: %w", pos, err)
	}
	if !chunk.IsEmpty(local.X, local.Y, local.Z) {
		w.mu.Unlock()
		return nil, fmt.Errorf("place %v: %w", pos, ErrOccupied)
	}

	chunk.SetBlock(local.X, local.Y, local.Z, id)
	touched, err := w.engine.Update(pos, id, false)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	snaps := w.snapshotsLocked(touched)
	w.exportMu.Lock()
	w.mu.Unlock()

	atomic.AddUint64(&w.editsApplied, 1)
	w.logger.Debug("🧱 Блок %d поставлен в %v, ремеш %v", id, pos, touched)
	w.export(ctx, snaps, eventbus.ReasonUpdate)
	return touched, nil
}

// RemoveBlock убирает блок из вокселя и обновляет освещение
func (w *World) RemoveBlock(ctx context.Context, pos vec.Vec3) (_ []vec.Vec2, err error) {
	ctx, span := tracer.Start(ctx, "World.RemoveBlock", trace.WithAttributes(posAttrs(pos)...))
	defer func() { endSpan(span, err) }()

	w.mu.Lock()
	chunk, local, err := w.locateLocked(pos)
	if err != nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("remove %v: %w", pos, err)
	}
	old := chunk.Block(local.X, local.Y, local.Z)
	if old == block.AirBlockID {
		w.mu.Unlock()
		return nil, fmt.Errorf("remove %v: %w", pos, ErrEmpty)
	}

	_, wasSource := w.registry.LightEmission(old)
	chunk.SetBlock(local.X, local.Y, local.Z, block.AirBlockID)
	touched, err := w.engine.Update(pos, block.AirBlockID, wasSource)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	snaps := w.snapshotsLocked(touched)
	w.exportMu.Lock()
	w.mu.Unlock()

	atomic.AddUint64(&w.editsApplied, 1)
	w.logger.Debug("⛏️ Блок %d убран из %v (источник: %v), ремеш %v", old, pos, wasSource, touched)
	w.export(ctx, snaps, eventbus.ReasonUpdate)
	return touched, nil
}

// Submit ставит правку в очередь цикла Run без блокировки
func (w *World) Submit(e Edit) error {
	select {
	case w.edits <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run применяет правки из очереди до отмены ctx. Начатая правка
// доводится до конца вместе с сохранением снимков.
func (w *World) Run(ctx context.Context) {
	applyCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.edits:
			if err := w.Apply(applyCtx, e); err != nil {
				w.logger.Warn("⚠️ Правка %s %v отклонена: %v", e.Kind, e.Pos, err)
			}
		}
	}
}

// Apply применяет одну правку синхронно
func (w *World) Apply(ctx context.Context, e Edit) error {
	var err error
	switch e.Kind {
	case EditPlace:
		_, err = w.PlaceBlock(ctx, e.Pos, e.Block)
	case EditRemove:
		_, err = w.RemoveBlock(ctx, e.Pos)
	default:
		err = fmt.Errorf("неизвестный тип правки %d", e.Kind)
	}
	return err
}

// VoxelAt возвращает блок и оба канала света в мировой позиции
func (w *World) VoxelAt(pos vec.Vec3) (Voxel, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	chunk, local, err := w.locateLocked(pos)
	if err != nil {
		return Voxel{}, err
	}
	return Voxel{
		Block: chunk.Block(local.X, local.Y, local.Z),
		Sky:   chunk.SkyLight(local.X, local.Y, local.Z),
		Light: chunk.BlockLight(local.X, local.Y, local.Z),
	}, nil
}

// Snapshot возвращает сохранённый снимок света чанка
func (w *World) Snapshot(ctx context.Context, coords vec.Vec2) (*storage.LightSnapshot, error) {
	if w.store == nil {
		return nil, storage.ErrSnapshotNotFound
	}
	return w.store.Load(ctx, coords)
}

// LoadedChunks возвращает отсортированные координаты загруженных чанков
func (w *World) LoadedChunks() []vec.Vec2 {
	return w.chunks.Coords()
}

// Stats возвращает счётчики мира
func (w *World) Stats() Stats {
	return Stats{
		LoadedChunks:    w.chunks.Len(),
		EditsApplied:    atomic.LoadUint64(&w.editsApplied),
		RemeshPublished: atomic.LoadUint64(&w.remeshPublished),
		ExportFailures:  atomic.LoadUint64(&w.exportFailures),
		QueuedEdits:     len(w.edits),
	}
}

func posAttrs(pos vec.Vec3) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("pos.x", pos.X),
		attribute.Int("pos.y", pos.Y),
		attribute.Int("pos.z", pos.Z),
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (w *World) locateLocked(pos vec.Vec3) (*world.Chunk, vec.Vec3, error) {
	if pos.Y < 0 || pos.Y >= world.SizeY {
		return nil, vec.Vec3{}, lighting.ErrOutOfBounds
	}
	chunk, local, ok := w.chunks.Locate(pos)
	if !ok {
		return nil, vec.Vec3{}, fmt.Errorf("%w: %v", lighting.ErrChunkNotLoaded, pos.ToChunkCoords())
	}
	return chunk, local, nil
}

// snapshotsLocked снимает карты света чанков, пока mu захвачен.
// Сохранение идёт уже под exportMu.
func (w *World) snapshotsLocked(coords []vec.Vec2) []*storage.LightSnapshot {
	out := make([]*storage.LightSnapshot, 0, len(coords))
	for _, c := range coords {
		if chunk, ok := w.chunks.ChunkAt(c); ok {
			out = append(out, storage.SnapshotFromChunk(chunk))
		}
	}
	return out
}

// export сохраняет снимки и освобождает exportMu, затем публикует
// по одному событию ремеша на чанк. Ошибки не отменяют правку.
func (w *World) export(ctx context.Context, snaps []*storage.LightSnapshot, reason string) {
	for _, snap := range snaps {
		if w.store == nil {
			break
		}
		if err := w.store.Save(ctx, snap); err != nil {
			atomic.AddUint64(&w.exportFailures, 1)
			w.logger.Warn("⚠️ Не удалось сохранить снимок света %v: %v", snap.Coords, err)
		}
	}
	w.exportMu.Unlock()

	for _, snap := range snaps {
		w.publish(ctx, snap.Coords, reason)
	}
}

func (w *World) publish(ctx context.Context, coords vec.Vec2, reason string) {
	if w.bus == nil {
		return
	}
	ev, err := eventbus.NewRemeshEnvelope(EventSource, coords, reason)
	if err != nil {
		w.logger.Warn("⚠️ Не удалось упаковать событие ремеша %v: %v", coords, err)
		return
	}
	if err := w.bus.Publish(ctx, ev); err != nil {
		w.logger.Warn("⚠️ Не удалось опубликовать ремеш %v: %v", coords, err)
		return
	}
	atomic.AddUint64(&w.remeshPublished, 1)
}
