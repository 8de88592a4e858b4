// Package lighting реализует инкрементальное освещение вокселей:
// два 4-битных канала (небо и блоки), BFS-распространение через
// границы чанков и удаление устаревшего света при правках.
package lighting

import (
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
	"github.com/annel0/voxel-light/internal/world/block"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrChunkNotLoaded чанк с позицией не загружен в резолвер
	ErrChunkNotLoaded = errors.New("чанк не загружен")
	// ErrOutOfBounds высота позиции вне мира
	ErrOutOfBounds = errors.New("позиция вне границ мира")
	// ErrChunkAttached чанк всё ещё доступен через резолвер
	ErrChunkAttached = errors.New("чанк всё ещё подключен")
)

var lightChannels = [...]world.Channel{world.ChannelSky, world.ChannelBlock}

// NeighborResolver находит чанки по координатам сетки.
// Отсутствующий чанк означает непрозрачную границу.
type NeighborResolver interface {
	ChunkAt(coords vec.Vec2) (*world.Chunk, bool)
	Neighbor(coords vec.Vec2, d world.Direction) (*world.Chunk, bool)
}

// BlockMetadata световые свойства типов блоков (только чтение)
type BlockMetadata interface {
	IsTransparent(id block.BlockID) bool
	LightEmission(id block.BlockID) (uint8, bool)
	IsTransparentSolid(id block.BlockID) bool
}

// Engine движок распространения света.
//
// Движок не синхронизирован: вызовы должны быть сериализованы
// относительно друг друга и чтения света мешером.
type Engine struct {
	resolver  NeighborResolver
	meta      BlockMetadata
	logger    *logging.Logger
	metrics   *Metrics
	reconcile bool
}

// Option настраивает Engine
type Option func(*Engine)

// WithLogger задаёт логгер движка
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics регистрирует метрики движка в reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.metrics = NewMetrics(reg) }
}

// WithReconcileOnAttach включает дозаливку света с граней уже загруженных
// соседей при Initialize нового чанка. По умолчанию включено.
func WithReconcileOnAttach(enabled bool) Option {
	return func(e *Engine) { e.reconcile = enabled }
}

// New создаёт движок освещения
func New(resolver NeighborResolver, meta BlockMetadata, opts ...Option) *Engine {
	e := &Engine{
		resolver:  resolver,
		meta:      meta,
		reconcile: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewConsoleLogger("lighting", logging.WARN)
	}
	return e
}

// Initialize заполняет свет только что созданного чанка. Чанк уже должен
// быть доступен через резолвер. Сам чанк не помечается (новые чанки
// создаются грязными); возвращаются координаты соседей, чей свет изменился.
func (e *Engine) Initialize(c *world.Chunk) ([]vec.Vec2, error) {
	start := time.Now()
	if got, ok := e.resolver.ChunkAt(c.Coords); !ok || got != c {
		return nil, fmt.Errorf("initialize %v: %w", c.Coords, ErrChunkNotLoaded)
	}

	tracker := newDirtyTracker()

	// Небесный свет: верхний слой каждой колонны
	skyQueue := make([]node, 0, world.SizeX*world.SizeZ)
	top := world.SizeY - 1
	for x := 0; x < world.SizeX; x++ {
		for z := 0; z < world.SizeZ; z++ {
			if !e.meta.IsTransparent(c.Block(x, top, z)) {
				continue
			}
			c.SetLight(world.ChannelSky, x, top, z, block.MaxLight)
			skyQueue = append(skyQueue, node{c: c, x: x, y: top, z: z})
		}
	}

	// Свет блоков: записанные источники
	sources := c.LightSources()
	blockQueue := make([]node, 0, len(sources))
	for _, p := range sources {
		emission, ok := e.meta.LightEmission(c.Block(p.X, p.Y, p.Z))
		if !ok {
			e.logger.Warn("⚠️ Воксель %v в чанке %v записан как источник, но блок не светится", p, c.Coords)
			c.RemoveLightSource(p.X, p.Y, p.Z)
			continue
		}
		c.SetLight(world.ChannelBlock, p.X, p.Y, p.Z, emission)
		blockQueue = append(blockQueue, node{c: c, x: p.X, y: p.Y, z: p.Z})
	}

	nSources := len(blockQueue)
	seams := 0
	if e.reconcile {
		var sky, blk []node
		sky, blk = e.seamSeeds(c)
		seams = len(sky) + len(blk)
		skyQueue = append(skyQueue, sky...)
		blockQueue = append(blockQueue, blk...)
	}

	e.floodFill(world.ChannelSky, skyQueue, tracker)
	e.floodFill(world.ChannelBlock, blockQueue, tracker)

	touched := tracker.flush(c)
	e.metrics.observeCall("initialize", start, len(touched))
	e.logger.Debug("💡 Чанк %v освещён: источников %d, затравок с соседей %d, соседей изменено %d",
		c.Coords, nSources, seams, len(touched))
	return touched, nil
}

// seamSeeds собирает освещённые воксели граней загруженных соседей,
// обращённых к чанку c.
func (e *Engine) seamSeeds(c *world.Chunk) (sky, blk []node) {
	for _, d := range world.Directions {
		if !d.IsHorizontal() {
			continue
		}
		nb, ok := e.resolver.Neighbor(c.Coords, d)
		if !ok {
			continue
		}
		seamPairs(d, func(y, _, _, ox, oz int) {
			n := node{c: nb, x: ox, y: y, z: oz}
			if n.get(world.ChannelSky) > 1 {
				sky = append(sky, n)
			}
			if n.get(world.ChannelBlock) > 1 {
				blk = append(blk, n)
			}
		})
	}
	return sky, blk
}

// seamPairs перебирает пары вокселей шва между чанком и его соседом
// в горизонтальном направлении d: (ix, iz) в чанке, (ox, oz) в соседе.
func seamPairs(d world.Direction, fn func(y, ix, iz, ox, oz int)) {
	dx, _, dz := d.Offset()
	for y := 0; y < world.SizeY; y++ {
		for i := 0; i < world.SizeX; i++ {
			ix, iz, ox, oz := i, i, i, i
			switch {
			case dx > 0:
				ix, ox = world.SizeX-1, 0
			case dx < 0:
				ix, ox = 0, world.SizeX-1
			case dz > 0:
				iz, oz = world.SizeZ-1, 0
			case dz < 0:
				iz, oz = 0, world.SizeZ-1
			}
			fn(y, ix, iz, ox, oz)
		}
	}
}

// Detach убирает из загруженных соседей свет, пришедший из чанка c,
// и восстанавливает их освещение с оставшейся границы. Чанк к этому
// моменту уже должен быть удалён из резолвера: его грань становится
// непрозрачной. Возвращаются координаты изменённых соседей.
func (e *Engine) Detach(c *world.Chunk) ([]vec.Vec2, error) {
	start := time.Now()
	if _, ok := e.resolver.ChunkAt(c.Coords); ok {
		return nil, fmt.Errorf("detach %v: %w", c.Coords, ErrChunkAttached)
	}

	// Воксель соседа устарел, если он темнее парного вокселя c:
	// горизонтальный шаг всегда уменьшает свет на 1.
	var seeds [len(lightChannels)][]removal
	for _, d := range world.Directions {
		if !d.IsHorizontal() {
			continue
		}
		nb, ok := e.resolver.Neighbor(c.Coords, d)
		if !ok {
			continue
		}
		seamPairs(d, func(y, ix, iz, ox, oz int) {
			n := node{c: nb, x: ox, y: y, z: oz}
			if !e.transparent(n) {
				return
			}
			for i, ch := range lightChannels {
				if v := n.get(ch); v > 0 && v < c.Light(ch, ix, y, iz) {
					seeds[i] = append(seeds[i], removal{node: n, old: v})
				}
			}
		})
	}

	tracker := newDirtyTracker()
	for i, ch := range lightChannels {
		if len(seeds[i]) > 0 {
			e.floodRemove(ch, seeds[i], tracker)
		}
	}

	touched := tracker.flush(nil)
	e.metrics.observeCall("detach", start, len(touched))
	e.logger.Debug("💡 Чанк %v отключен: затравок sky %d, block %d, соседей изменено %d",
		c.Coords, len(seeds[0]), len(seeds[1]), len(touched))
	return touched, nil
}

// Update обновляет освещение после правки вокселя pos. Блок newBlock
// уже записан в чанк вызывающей стороной; AirBlockID означает удаление.
// sourceRemoved сообщает, что удалённый блок был источником света.
// Возвращает отсортированные координаты чанков, помеченных для ремеша.
func (e *Engine) Update(pos vec.Vec3, newBlock block.BlockID, sourceRemoved bool) ([]vec.Vec2, error) {
	start := time.Now()
	n, err := e.locate(pos)
	if err != nil {
		return nil, fmt.Errorf("update %v: %w", pos, err)
	}

	tracker := newDirtyTracker()
	tracker.mark(n.c)

	op := "place"
	if newBlock == block.AirBlockID {
		op = "remove"
		e.updateRemoval(n, sourceRemoved, tracker)
	} else {
		e.updatePlacement(n, newBlock, tracker)
	}

	touched := tracker.flush(nil)
	e.metrics.observeCall(op, start, len(touched))
	e.logger.Debug("💡 Update %s %v (блок %d): помечено чанков %d", op, pos, newBlock, len(touched))
	return touched, nil
}

func (e *Engine) updateRemoval(n node, sourceRemoved bool, tracker *dirtyTracker) {
	var boundary []node
	if sourceRemoved {
		boundary = e.removeSource(n, tracker)
	}

	for _, ch := range lightChannels {
		queue := make([]node, 0, 1+len(boundary))
		if best, ok := e.brightestNeighbor(ch, n); ok {
			queue = append(queue, best)
		}
		if ch == world.ChannelBlock {
			queue = append(queue, boundary...)
		}
		if ch == world.ChannelSky && n.y == world.SizeY-1 {
			n.set(ch, block.MaxLight)
			queue = append(queue, n)
		}
		e.floodFill(ch, queue, tracker)
	}
}

func (e *Engine) updatePlacement(n node, newBlock block.BlockID, tracker *dirtyTracker) {
	emission, isSource := e.meta.LightEmission(newBlock)

	if !isSource && e.meta.IsTransparent(newBlock) {
		// Прозрачный блок не меняет проходимость света
		return
	}

	if !isSource {
		e.floodRemove(world.ChannelSky, []removal{{node: n, old: n.get(world.ChannelSky)}}, tracker)
		e.floodRemove(world.ChannelBlock, []removal{{node: n, old: n.get(world.ChannelBlock)}}, tracker)
		return
	}

	// Источник непрозрачен: сначала гасим всё, что через воксель проходило
	for _, ch := range lightChannels {
		old := n.get(ch)
		n.set(ch, 0)
		e.floodRemove(ch, []removal{{node: n, old: old}}, tracker)
	}

	n.set(world.ChannelBlock, emission)
	n.c.AddLightSource(n.x, n.y, n.z)
	e.floodFill(world.ChannelBlock, []node{n}, tracker)
}

// RemoveSource гасит цепочку света удалённого источника в pos без
// повторного распространения. Помеченные чанки возвращаются.
func (e *Engine) RemoveSource(pos vec.Vec3) ([]vec.Vec2, error) {
	start := time.Now()
	n, err := e.locate(pos)
	if err != nil {
		return nil, fmt.Errorf("remove source %v: %w", pos, err)
	}

	tracker := newDirtyTracker()
	tracker.mark(n.c)
	e.removeSource(n, tracker)

	touched := tracker.flush(nil)
	e.metrics.observeCall("remove_source", start, len(touched))
	return touched, nil
}

// brightestNeighbor возвращает первого в порядке обхода соседа
// с максимальным значением канала, если оно больше нуля.
func (e *Engine) brightestNeighbor(ch world.Channel, n node) (node, bool) {
	var (
		best  node
		value uint8
		found bool
	)
	for _, d := range world.Directions {
		m, ok := e.step(n, d)
		if !ok {
			continue
		}
		if v := m.get(ch); v > value {
			best, value, found = m, v, true
		}
	}
	return best, found
}

func (e *Engine) locate(pos vec.Vec3) (node, error) {
	if pos.Y < 0 || pos.Y >= world.SizeY {
		return node{}, ErrOutOfBounds
	}
	c, ok := e.resolver.ChunkAt(pos.ToChunkCoords())
	if !ok {
		return node{}, fmt.Errorf("%w: %v", ErrChunkNotLoaded, pos.ToChunkCoords())
	}
	local := pos.LocalInChunk()
	return node{c: c, x: local.X, y: local.Y, z: local.Z}, nil
}
