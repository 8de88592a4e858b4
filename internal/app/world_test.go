package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-light/internal/eventbus"
	"github.com/annel0/voxel-light/internal/lighting"
	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/storage"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
	"github.com/annel0/voxel-light/internal/world/block"
	"github.com/annel0/voxel-light/internal/world/block/implementations"
	"github.com/annel0/voxel-light/internal/worldgen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Высота над рельефом и кронами деревьев
const airY = 100

type remeshLog struct {
	mu     sync.Mutex
	events []eventbus.ChunkRemesh
}

func (l *remeshLog) handle(_ context.Context, ev *eventbus.Envelope) {
	r, err := eventbus.DecodeRemesh(ev)
	if err != nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, r)
	l.mu.Unlock()
}

func (l *remeshLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *remeshLog) reasons() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int)
	for _, e := range l.events {
		out[e.Reason]++
	}
	return out
}

type fixture struct {
	world  *World
	store  *storage.MemoryLightStore
	bus    eventbus.EventBus
	remesh *remeshLog
}

func newFixture(t *testing.T, queue int) *fixture {
	t.Helper()
	reg := implementations.NewDefaultRegistry()
	store := storage.NewMemoryLightStore()
	bus := eventbus.NewMemoryBus(128)
	t.Cleanup(func() {
		_ = bus.Close()
		_ = store.Close()
	})

	log := &remeshLog{}
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.EventChunkRemesh}}, log.handle)
	require.NoError(t, err)

	w := NewWorld(Options{
		Registry:          reg,
		Generator:         worldgen.NewGenerator(1337, reg),
		Store:             store,
		Bus:               bus,
		Logger:            logging.NewNopLogger(),
		Metrics:           prometheus.NewRegistry(),
		ReconcileOnAttach: true,
		EditQueue:         queue,
	})
	return &fixture{world: w, store: store, bus: bus, remesh: log}
}

func TestLoadChunk(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	origin := vec.Vec2{X: 0, Y: 0}

	remesh, err := f.world.LoadChunk(ctx, origin)
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec2{origin}, remesh)

	snap, err := f.world.Snapshot(ctx, origin)
	require.NoError(t, err)
	chunk, ok := f.world.chunks.ChunkAt(origin)
	require.True(t, ok)
	assert.True(t, snap.Matches(chunk))
	assert.Equal(t, chunk.LightMap(), snap.Light)

	_, err = f.world.LoadChunk(ctx, origin)
	assert.ErrorIs(t, err, world.ErrChunkExists)

	// Сосед загружается вторым: первым в списке всегда он сам
	remesh, err = f.world.LoadChunk(ctx, vec.Vec2{X: 1, Y: 0})
	require.NoError(t, err)
	require.NotEmpty(t, remesh)
	assert.Equal(t, vec.Vec2{X: 1, Y: 0}, remesh[0])

	assert.Eventually(t, func() bool {
		return f.remesh.len() == len(remesh)+1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, len(remesh)+1, f.remesh.reasons()[eventbus.ReasonInitialize])
	assert.Equal(t, 2, f.world.Stats().LoadedChunks)
}

func TestPreload(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.world.Preload(context.Background(), 1))
	assert.Len(t, f.world.LoadedChunks(), 9)
	assert.Equal(t, 9, f.store.Len())

	// Повторная предзагрузка не считается ошибкой
	require.NoError(t, f.world.Preload(context.Background(), 1))
}

func TestPlaceAndRemoveTorch(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	_, err := f.world.LoadChunk(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)

	pos := vec.Vec3{X: 8, Y: airY, Z: 8}
	remesh, err := f.world.PlaceBlock(ctx, pos, block.TorchBlockID)
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec2{{X: 0, Y: 0}}, remesh)

	v, err := f.world.VoxelAt(pos)
	require.NoError(t, err)
	assert.Equal(t, Voxel{Block: block.TorchBlockID, Sky: 0, Light: 14}, v)

	v, err = f.world.VoxelAt(vec.Vec3{X: 10, Y: airY, Z: 8})
	require.NoError(t, err)
	assert.Equal(t, uint8(12), v.Light)

	_, err = f.world.PlaceBlock(ctx, pos, block.StoneBlockID)
	assert.ErrorIs(t, err, ErrOccupied)

	_, err = f.world.RemoveBlock(ctx, pos)
	require.NoError(t, err)
	v, err = f.world.VoxelAt(pos)
	require.NoError(t, err)
	assert.Equal(t, Voxel{Block: block.AirBlockID, Sky: block.MaxLight, Light: 0}, v)

	v, err = f.world.VoxelAt(vec.Vec3{X: 10, Y: airY, Z: 8})
	require.NoError(t, err)
	assert.Equal(t, uint8(0), v.Light)

	assert.Equal(t, uint64(2), f.world.Stats().EditsApplied)
	assert.Eventually(t, func() bool {
		return f.remesh.reasons()[eventbus.ReasonUpdate] == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPlaceStoneShadowsColumn(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	_, err := f.world.LoadChunk(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)

	_, err = f.world.PlaceBlock(ctx, vec.Vec3{X: 8, Y: airY, Z: 8}, block.StoneBlockID)
	require.NoError(t, err)

	v, err := f.world.VoxelAt(vec.Vec3{X: 8, Y: airY - 1, Z: 8})
	require.NoError(t, err)
	assert.Equal(t, uint8(14), v.Sky)

	snap, err := f.world.Snapshot(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)
	chunk, _ := f.world.chunks.ChunkAt(vec.Vec2{X: 0, Y: 0})
	assert.True(t, snap.Matches(chunk), "снимок обновлён после правки")
}

func TestEditErrors(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	_, err := f.world.LoadChunk(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)

	_, err = f.world.PlaceBlock(ctx, vec.Vec3{X: 1, Y: airY, Z: 1}, block.BlockID(9999))
	assert.ErrorIs(t, err, ErrUnknownBlock)

	_, err = f.world.PlaceBlock(ctx, vec.Vec3{X: 1, Y: airY, Z: 1}, block.AirBlockID)
	assert.ErrorIs(t, err, ErrUnknownBlock)

	_, err = f.world.RemoveBlock(ctx, vec.Vec3{X: 1, Y: airY, Z: 1})
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = f.world.PlaceBlock(ctx, vec.Vec3{X: 40, Y: airY, Z: 1}, block.StoneBlockID)
	assert.ErrorIs(t, err, lighting.ErrChunkNotLoaded)

	_, err = f.world.RemoveBlock(ctx, vec.Vec3{X: 1, Y: world.SizeY, Z: 1})
	assert.ErrorIs(t, err, lighting.ErrOutOfBounds)

	_, err = f.world.VoxelAt(vec.Vec3{X: -1, Y: airY, Z: 1})
	assert.ErrorIs(t, err, lighting.ErrChunkNotLoaded)

	assert.Equal(t, uint64(0), f.world.Stats().EditsApplied)
}

func TestUnloadChunk(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	coords := vec.Vec2{X: 0, Y: 0}
	_, err := f.world.LoadChunk(ctx, coords)
	require.NoError(t, err)

	touched, err := f.world.UnloadChunk(ctx, coords)
	require.NoError(t, err)
	assert.Empty(t, touched)
	_, err = f.world.Snapshot(ctx, coords)
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
	_, err = f.world.UnloadChunk(ctx, coords)
	assert.ErrorIs(t, err, lighting.ErrChunkNotLoaded)

	assert.Eventually(t, func() bool {
		return f.remesh.reasons()[eventbus.ReasonUnload] == 1
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, f.world.LoadedChunks())
}

func TestUnloadChunkClearsNeighborLight(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	east := vec.Vec2{X: 1, Y: 0}
	_, err := f.world.LoadChunk(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)
	_, err = f.world.LoadChunk(ctx, east)
	require.NoError(t, err)

	_, err = f.world.PlaceBlock(ctx, vec.Vec3{X: 16, Y: airY, Z: 8}, block.TorchBlockID)
	require.NoError(t, err)
	v, err := f.world.VoxelAt(vec.Vec3{X: 15, Y: airY, Z: 8})
	require.NoError(t, err)
	require.Equal(t, uint8(13), v.Light)

	touched, err := f.world.UnloadChunk(ctx, east)
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec2{{X: 0, Y: 0}}, touched)

	v, err = f.world.VoxelAt(vec.Vec3{X: 15, Y: airY, Z: 8})
	require.NoError(t, err)
	assert.Equal(t, uint8(0), v.Light)

	// После повторной загрузки факела нет: свет не возвращается
	_, err = f.world.LoadChunk(ctx, east)
	require.NoError(t, err)
	v, err = f.world.VoxelAt(vec.Vec3{X: 16, Y: airY, Z: 8})
	require.NoError(t, err)
	assert.Equal(t, Voxel{Block: block.AirBlockID, Sky: block.MaxLight, Light: 0}, v)

	snap, err := f.world.Snapshot(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)
	chunk, _ := f.world.chunks.ChunkAt(vec.Vec2{X: 0, Y: 0})
	assert.Equal(t, chunk.LightMap(), snap.Light)
}

// stallingStore задерживает первое сохранение после arm до release
type stallingStore struct {
	storage.LightStore
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newStallingStore(inner storage.LightStore) *stallingStore {
	return &stallingStore{LightStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stallingStore) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func (s *stallingStore) Save(ctx context.Context, snap *storage.LightSnapshot) error {
	s.mu.Lock()
	stall := s.armed
	s.armed = false
	s.mu.Unlock()
	if stall {
		close(s.entered)
		<-s.release
	}
	return s.LightStore.Save(ctx, snap)
}

func TestConcurrentEditsSaveInOrder(t *testing.T) {
	f := newFixture(t, 0)
	store := newStallingStore(f.store)
	f.world.store = store
	ctx := context.Background()
	origin := vec.Vec2{X: 0, Y: 0}
	_, err := f.world.LoadChunk(ctx, origin)
	require.NoError(t, err)

	store.arm()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.world.PlaceBlock(ctx, vec.Vec3{X: 4, Y: airY, Z: 4}, block.StoneBlockID)
		assert.NoError(t, err)
	}()
	<-store.entered

	go func() {
		defer wg.Done()
		_, err := f.world.PlaceBlock(ctx, vec.Vec3{X: 10, Y: airY, Z: 10}, block.TorchBlockID)
		assert.NoError(t, err)
	}()
	// Вторая правка успевает дойти до сохранения, пока первое стоит
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	wg.Wait()

	snap, err := f.world.Snapshot(ctx, origin)
	require.NoError(t, err)
	chunk, _ := f.world.chunks.ChunkAt(origin)
	assert.True(t, snap.Matches(chunk))
	assert.Equal(t, chunk.LightMap(), snap.Light)
}

func TestVoxelAtIsNotTornByEdits(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	_, err := f.world.LoadChunk(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)

	pos := vec.Vec3{X: 8, Y: airY, Z: 8}
	lit := Voxel{Block: block.TorchBlockID, Sky: 0, Light: 14}
	dark := Voxel{Block: block.AirBlockID, Sky: block.MaxLight, Light: 0}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := f.world.PlaceBlock(ctx, pos, block.TorchBlockID); err != nil {
				return
			}
			if _, err := f.world.RemoveBlock(ctx, pos); err != nil {
				return
			}
		}
	}()

	// Блок и свет читаются одним захватом: смешанных состояний нет
	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
		}
		v, err := f.world.VoxelAt(pos)
		require.NoError(t, err)
		if v != lit && v != dark {
			t.Fatalf("несогласованное чтение: %+v", v)
		}
	}
	assert.Equal(t, uint64(100), f.world.Stats().EditsApplied)
}

func TestExportFailureDoesNotFailEdit(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	_, err := f.world.LoadChunk(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)
	require.NoError(t, f.store.Close())

	_, err = f.world.PlaceBlock(ctx, vec.Vec3{X: 3, Y: airY, Z: 3}, block.GlassBlockID)
	require.NoError(t, err)

	stats := f.world.Stats()
	assert.Equal(t, uint64(1), stats.ExportFailures)
	assert.Equal(t, uint64(1), stats.EditsApplied)
}

func TestRunAppliesQueuedEdits(t *testing.T) {
	f := newFixture(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := f.world.LoadChunk(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.world.Run(ctx)
		close(done)
	}()

	pos := vec.Vec3{X: 5, Y: airY, Z: 5}
	require.NoError(t, f.world.Submit(Edit{Kind: EditPlace, Pos: pos, Block: block.LanternBlockID}))
	// Невалидная правка только логируется
	require.NoError(t, f.world.Submit(Edit{Kind: EditRemove, Pos: vec.Vec3{X: 6, Y: airY, Z: 5}}))

	assert.Eventually(t, func() bool {
		v, err := f.world.VoxelAt(pos)
		return err == nil && v.Block == block.LanternBlockID
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}

func TestSubmitQueueFull(t *testing.T) {
	f := newFixture(t, 1)
	edit := Edit{Kind: EditRemove, Pos: vec.Vec3{X: 0, Y: airY, Z: 0}}
	require.NoError(t, f.world.Submit(edit))
	assert.ErrorIs(t, f.world.Submit(edit), ErrQueueFull)
	assert.Equal(t, 1, f.world.Stats().QueuedEdits)
}

func TestRunFinishesEditInFlight(t *testing.T) {
	f := newFixture(t, 4)
	store := newStallingStore(f.store)
	f.world.store = store
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := f.world.LoadChunk(ctx, vec.Vec2{X: 0, Y: 0})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.world.Run(ctx)
		close(done)
	}()

	store.arm()
	require.NoError(t, f.world.Submit(Edit{Kind: EditPlace, Pos: vec.Vec3{X: 2, Y: airY, Z: 2}, Block: block.GlassBlockID}))
	<-store.entered
	cancel()

	select {
	case <-done:
		t.Fatal("Run вышел до завершения правки")
	case <-time.After(30 * time.Millisecond):
	}
	close(store.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
	assert.Equal(t, uint64(0), f.world.Stats().ExportFailures)
	assert.Equal(t, uint64(1), f.world.Stats().EditsApplied)
}
