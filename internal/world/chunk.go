package world

import (
	"encoding/binary"
	"sort"

	"github.com/annel0/voxel-light/internal/invariant"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world/block"
	"github.com/cespare/xxhash/v2"
)

// Размеры чанка в вокселях
const (
	SizeX = 16
	SizeY = 128
	SizeZ = 16

	// Volume общее число вокселей в чанке
	Volume = SizeX * SizeY * SizeZ
)

// Channel канал освещения
type Channel uint8

const (
	ChannelSky   Channel = iota // Небесный свет
	ChannelBlock                // Свет от блоков-источников
)

func (c Channel) String() string {
	if c == ChannelSky {
		return "sky"
	}
	return "block"
}

// Chunk представляет колонну мира размером 16x128x16 вокселей.
//
// Ячейка light хранит два 4-битных канала: старший полубайт — небесный
// свет, младший — свет от блоков. Доступ к чанку не синхронизирован:
// все изменения выполняются из одного цикла симуляции.
type Chunk struct {
	Coords vec.Vec2 // Координаты чанка на сетке (Y хранит ось Z мира)

	// blocks[y][x][z]; AirBlockID означает пустой воксель
	blocks [SizeY][SizeX][SizeZ]block.BlockID

	// light[y][x][z]; упакованные каналы sky<<4 | block
	light [SizeY][SizeX][SizeZ]uint8

	activeVoxels map[vec.Vec3]struct{} // Видимые непустые воксели
	lightSources map[vec.Vec3]struct{} // Воксели с блоками-источниками

	dirty bool // Требуется перестроить меш
}

// NewChunk создаёт пустой чанк. Новый чанк сразу помечен как грязный.
func NewChunk(coords vec.Vec2) *Chunk {
	return &Chunk{
		Coords:       coords,
		activeVoxels: make(map[vec.Vec3]struct{}),
		lightSources: make(map[vec.Vec3]struct{}),
		dirty:        true,
	}
}

// InBounds проверяет, что локальные координаты лежат внутри чанка
func InBounds(x, y, z int) bool {
	return x >= 0 && x < SizeX && y >= 0 && y < SizeY && z >= 0 && z < SizeZ
}

// Block возвращает ID блока по локальным координатам
func (c *Chunk) Block(x, y, z int) block.BlockID {
	return c.blocks[y][x][z]
}

// IsEmpty true, если в вокселе нет блока
func (c *Chunk) IsEmpty(x, y, z int) bool {
	return c.blocks[y][x][z] == block.AirBlockID
}

// SetBlock устанавливает блок и обновляет список видимых вокселей.
// Освещение и список источников здесь не меняются.
func (c *Chunk) SetBlock(x, y, z int, id block.BlockID) {
	if invariant.Enabled && !InBounds(x, y, z) {
		invariant.Fail("SetBlock вне чанка %v: (%d,%d,%d)", c.Coords, x, y, z)
	}

	c.blocks[y][x][z] = id

	c.refreshActive(x, y, z)
	for _, d := range Directions {
		dx, dy, dz := d.Offset()
		nx, ny, nz := x+dx, y+dy, z+dz
		if InBounds(nx, ny, nz) {
			c.refreshActive(nx, ny, nz)
		}
	}
}

// refreshActive пересчитывает видимость одного вокселя.
// Соседние чанки не учитываются: граница чанка считается открытой.
func (c *Chunk) refreshActive(x, y, z int) {
	pos := vec.Vec3{X: x, Y: y, Z: z}
	if c.IsEmpty(x, y, z) {
		delete(c.activeVoxels, pos)
		return
	}

	for _, d := range Directions {
		dx, dy, dz := d.Offset()
		nx, ny, nz := x+dx, y+dy, z+dz
		if !InBounds(nx, ny, nz) || c.IsEmpty(nx, ny, nz) {
			c.activeVoxels[pos] = struct{}{}
			return
		}
	}
	delete(c.activeVoxels, pos)
}

// IsActive сообщает, виден ли воксель
func (c *Chunk) IsActive(x, y, z int) bool {
	_, ok := c.activeVoxels[vec.Vec3{X: x, Y: y, Z: z}]
	return ok
}

// ActiveVoxels возвращает отсортированный список видимых вокселей
func (c *Chunk) ActiveVoxels() []vec.Vec3 {
	return sortedKeys(c.activeVoxels)
}

// Light возвращает значение канала по локальным координатам
func (c *Chunk) Light(ch Channel, x, y, z int) uint8 {
	cell := c.light[y][x][z]
	if ch == ChannelSky {
		return cell >> 4
	}
	return cell & 0x0F
}

// SetLight записывает значение канала
func (c *Chunk) SetLight(ch Channel, x, y, z int, value uint8) {
	if invariant.Enabled && value > block.MaxLight {
		invariant.Fail("значение света %d вне диапазона в %v", value, c.Coords)
	}

	cell := &c.light[y][x][z]
	if ch == ChannelSky {
		*cell = *cell&0x0F | value<<4
	} else {
		*cell = *cell&0xF0 | value
	}
}

// SkyLight возвращает небесный свет
func (c *Chunk) SkyLight(x, y, z int) uint8 {
	return c.Light(ChannelSky, x, y, z)
}

// BlockLight возвращает свет от блоков
func (c *Chunk) BlockLight(x, y, z int) uint8 {
	return c.Light(ChannelBlock, x, y, z)
}

// AddLightSource запоминает воксель как источник света
func (c *Chunk) AddLightSource(x, y, z int) {
	c.lightSources[vec.Vec3{X: x, Y: y, Z: z}] = struct{}{}
}

// RemoveLightSource забывает источник света
func (c *Chunk) RemoveLightSource(x, y, z int) {
	delete(c.lightSources, vec.Vec3{X: x, Y: y, Z: z})
}

// HasLightSource сообщает, записан ли воксель как источник
func (c *Chunk) HasLightSource(x, y, z int) bool {
	_, ok := c.lightSources[vec.Vec3{X: x, Y: y, Z: z}]
	return ok
}

// LightSources возвращает отсортированный список источников
func (c *Chunk) LightSources() []vec.Vec3 {
	return sortedKeys(c.lightSources)
}

// Dirty возвращает true, если меш чанка устарел
func (c *Chunk) Dirty() bool {
	return c.dirty
}

// MarkDirty помечает меш чанка как устаревший
func (c *Chunk) MarkDirty() {
	c.dirty = true
}

// ClearDirty снимает флаг; вызывается построителем мешей
func (c *Chunk) ClearDirty() {
	c.dirty = false
}

// LightMap возвращает копию упакованной карты освещения в порядке y, x, z
func (c *Chunk) LightMap() []byte {
	out := make([]byte, 0, Volume)
	for y := 0; y < SizeY; y++ {
		for x := 0; x < SizeX; x++ {
			out = append(out, c.light[y][x][:]...)
		}
	}
	return out
}

// BlocksDigest возвращает xxhash содержимого блоков чанка
func (c *Chunk) BlocksDigest() uint64 {
	h := xxhash.New()
	var buf [SizeZ * 2]byte
	for y := 0; y < SizeY; y++ {
		for x := 0; x < SizeX; x++ {
			for z := 0; z < SizeZ; z++ {
				binary.LittleEndian.PutUint16(buf[z*2:], uint16(c.blocks[y][x][z]))
			}
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}

func sortedKeys(set map[vec.Vec3]struct{}) []vec.Vec3 {
	out := make([]vec.Vec3, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
