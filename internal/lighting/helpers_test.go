package lighting

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
	"github.com/annel0/voxel-light/internal/world/block"
	"github.com/annel0/voxel-light/internal/world/block/implementations"
	"github.com/stretchr/testify/require"
)

var channels = []world.Channel{world.ChannelSky, world.ChannelBlock}

// testWorld минимальный обработчик правок поверх движка
type testWorld struct {
	t   *testing.T
	reg *block.Registry
	mgr *world.Manager
	eng *Engine
}

func newTestWorld(t *testing.T, opts ...Option) *testWorld {
	t.Helper()
	reg := implementations.NewDefaultRegistry()
	mgr := world.NewManager()
	opts = append([]Option{WithLogger(logging.NewNopLogger())}, opts...)
	return &testWorld{t: t, reg: reg, mgr: mgr, eng: New(mgr, reg, opts...)}
}

// put записывает блок до Initialize, учитывая источники
func put(reg *block.Registry, c *world.Chunk, x, y, z int, id block.BlockID) {
	c.SetBlock(x, y, z, id)
	if _, ok := reg.LightEmission(id); ok {
		c.AddLightSource(x, y, z)
	}
}

// load создаёт чанк, заполняет его, подключает и освещает
func (w *testWorld) load(coords vec.Vec2, fill func(c *world.Chunk)) (*world.Chunk, []vec.Vec2) {
	w.t.Helper()
	c := world.NewChunk(coords)
	if fill != nil {
		fill(c)
	}
	require.NoError(w.t, w.mgr.Attach(c))
	touched, err := w.eng.Initialize(c)
	require.NoError(w.t, err)
	return c, touched
}

// unload отключает чанк от менеджера и убирает его свет из соседей
func (w *testWorld) unload(coords vec.Vec2) []vec.Vec2 {
	w.t.Helper()
	c, ok := w.mgr.Detach(coords)
	require.True(w.t, ok, "чанк %v не загружен", coords)
	touched, err := w.eng.Detach(c)
	require.NoError(w.t, err)
	return touched
}

func (w *testWorld) place(pos vec.Vec3, id block.BlockID) []vec.Vec2 {
	w.t.Helper()
	c, local, ok := w.mgr.Locate(pos)
	require.True(w.t, ok, "чанк для %v не загружен", pos)
	require.True(w.t, c.IsEmpty(local.X, local.Y, local.Z), "воксель %v занят", pos)
	c.SetBlock(local.X, local.Y, local.Z, id)
	touched, err := w.eng.Update(pos, id, false)
	require.NoError(w.t, err)
	return touched
}

func (w *testWorld) remove(pos vec.Vec3) []vec.Vec2 {
	w.t.Helper()
	c, local, ok := w.mgr.Locate(pos)
	require.True(w.t, ok, "чанк для %v не загружен", pos)
	old := c.Block(local.X, local.Y, local.Z)
	require.NotEqual(w.t, block.AirBlockID, old, "воксель %v пуст", pos)
	_, wasSource := w.reg.LightEmission(old)
	c.SetBlock(local.X, local.Y, local.Z, block.AirBlockID)
	touched, err := w.eng.Update(pos, block.AirBlockID, wasSource)
	require.NoError(w.t, err)
	return touched
}

func (w *testWorld) light(ch world.Channel, pos vec.Vec3) uint8 {
	w.t.Helper()
	c, local, ok := w.mgr.Locate(pos)
	require.True(w.t, ok)
	return c.Light(ch, local.X, local.Y, local.Z)
}

func (w *testWorld) snapshot() map[vec.Vec2][]byte {
	out := make(map[vec.Vec2][]byte)
	for _, coords := range w.mgr.Coords() {
		c, _ := w.mgr.ChunkAt(coords)
		out[coords] = c.LightMap()
	}
	return out
}

// assertFixpoint проверяет, что каждое значение равно максимуму
// из затравки и вкладов соседей.
func (w *testWorld) assertFixpoint() {
	w.t.Helper()
	for _, coords := range w.mgr.Coords() {
		c, _ := w.mgr.ChunkAt(coords)
		for y := 0; y < world.SizeY; y++ {
			for x := 0; x < world.SizeX; x++ {
				for z := 0; z < world.SizeZ; z++ {
					w.checkVoxel(node{c: c, x: x, y: y, z: z})
				}
			}
		}
	}
}

func (w *testWorld) checkVoxel(n node) {
	id := n.c.Block(n.x, n.y, n.z)
	for _, ch := range channels {
		got := n.get(ch)
		var want uint8

		if !w.reg.IsTransparent(id) {
			if emission, ok := w.reg.LightEmission(id); ok && ch == world.ChannelBlock {
				want = emission
			}
		} else {
			if ch == world.ChannelSky && n.y == world.SizeY-1 {
				want = block.MaxLight
			}
			for _, d := range world.Directions {
				m, ok := w.eng.step(n, d)
				if !ok {
					continue
				}
				if f := propagated(ch, m.get(ch), d.Opposite()); f > want {
					want = f
				}
			}
		}

		if got != want {
			w.t.Fatalf("чанк %v (%d,%d,%d) канал %s: значение %d, ожидалось %d",
				n.c.Coords, n.x, n.y, n.z, ch, got, want)
		}
	}
}

// assertMatchesScratch пересобирает все чанки с нуля и сравнивает карты света
func (w *testWorld) assertMatchesScratch() {
	w.t.Helper()
	fresh := newTestWorld(w.t)
	for _, coords := range w.mgr.Coords() {
		src, _ := w.mgr.ChunkAt(coords)
		fresh.load(coords, func(c *world.Chunk) {
			for y := 0; y < world.SizeY; y++ {
				for x := 0; x < world.SizeX; x++ {
					for z := 0; z < world.SizeZ; z++ {
						if id := src.Block(x, y, z); id != block.AirBlockID {
							put(fresh.reg, c, x, y, z, id)
						}
					}
				}
			}
		})
	}

	want := fresh.snapshot()
	got := w.snapshot()
	for coords, light := range want {
		if string(light) != string(got[coords]) {
			c, _ := w.mgr.ChunkAt(coords)
			fc, _ := fresh.mgr.ChunkAt(coords)
			w.t.Fatalf("чанк %v расходится с пересчётом с нуля: %s", coords, firstDiff(c, fc))
		}
	}
}

func firstDiff(a, b *world.Chunk) string {
	for y := 0; y < world.SizeY; y++ {
		for x := 0; x < world.SizeX; x++ {
			for z := 0; z < world.SizeZ; z++ {
				for _, ch := range channels {
					if av, bv := a.Light(ch, x, y, z), b.Light(ch, x, y, z); av != bv {
						return fmt.Sprintf("(%d,%d,%d) %s: %d вместо %d", x, y, z, ch, av, bv)
					}
				}
			}
		}
	}
	return "нет различий"
}

// terrain заполняет чанк рельефом со столбами, навесами, пещерами и источниками
func terrain(reg *block.Registry, seed int64) func(c *world.Chunk) {
	return func(c *world.Chunk) {
		rnd := rand.New(rand.NewSource(seed + int64(c.Coords.X)*7919 + int64(c.Coords.Y)*104729))
		for x := 0; x < world.SizeX; x++ {
			for z := 0; z < world.SizeZ; z++ {
				h := 60 + rnd.Intn(6)
				for y := 0; y < h; y++ {
					put(reg, c, x, y, z, block.StoneBlockID)
				}
				if rnd.Intn(7) == 0 {
					put(reg, c, x, h+4, z, block.DirtBlockID) // навес
				}
				if rnd.Intn(11) == 0 {
					put(reg, c, x, h, z, block.GlassBlockID)
				}
			}
		}
		// Пещера с источником
		cx, cz := 3+rnd.Intn(10), 3+rnd.Intn(10)
		for y := 50; y < 54; y++ {
			for x := cx - 2; x <= cx+2; x++ {
				for z := cz - 2; z <= cz+2; z++ {
					c.SetBlock(x, y, z, block.AirBlockID)
				}
			}
		}
		put(reg, c, cx, 50, cz, block.GlowstoneBlockID)
		put(reg, c, rnd.Intn(world.SizeX), 70, rnd.Intn(world.SizeZ), block.TorchBlockID)
	}
}
