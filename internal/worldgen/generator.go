// Package worldgen генерирует рельеф для сервиса освещения:
// карту высот на шуме Перлина, слои камня и земли, воду,
// деревья и светящиеся блоки.
package worldgen

import (
	"math/rand"

	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
	"github.com/annel0/voxel-light/internal/world/block"
)

// BiomeType представляет тип биома
type BiomeType int

const (
	BiomePlains BiomeType = iota
	BiomeDesert
	BiomeForest
	BiomeMountains
	BiomeWater
)

// Константы высот для генерации
const (
	BaseHeight = 40 // Минимальная высота поверхности
	Amplitude  = 40 // Разброс высот
	SeaLevel   = 52 // Уровень воды
	DirtDepth  = 3  // Толщина слоя земли
)

// Generator генерирует чанки мира
type Generator struct {
	Seed          int64   // Сид для генерации шума
	NoiseScale    float64 // Масштаб основного шума (высота)
	BiomeScale    float64 // Масштаб шума биомов
	ForestDensity float64 // Плотность деревьев в лесу (от 0 до 1)
	GlowDensity   float64 // Доля светокамня в толще камня

	registry *block.Registry
	height   *Noise2D
	biome    *Noise2D
}

// NewGenerator создаёт новый генератор мира
func NewGenerator(seed int64, registry *block.Registry) *Generator {
	return &Generator{
		Seed:          seed,
		NoiseScale:    0.03, // Настройка сглаженности ландшафта
		BiomeScale:    0.01, // Настройка размера биомов
		ForestDensity: 0.04,
		GlowDensity:   0.002,
		registry:      registry,
		height:        NewNoise2D(seed),
		biome:         NewNoise2D(seed + 42),
	}
}

// Generate создаёт чанк по его координатам. Светящиеся блоки сразу
// записываются в список источников чанка; освещение не считается.
func (g *Generator) Generate(coords vec.Vec2) *world.Chunk {
	chunk := world.NewChunk(coords)
	g.Fill(chunk)
	return chunk
}

// Fill заполняет пустой чанк блоками
func (g *Generator) Fill(chunk *world.Chunk) {
	// Уникальный сид чанка на основе глобального сида и координат
	chunkSeed := g.Seed + int64(chunk.Coords.X*31) + int64(chunk.Coords.Y*17)
	rng := rand.New(rand.NewSource(chunkSeed))

	for x := 0; x < world.SizeX; x++ {
		for z := 0; z < world.SizeZ; z++ {
			wp := vec.FromLocal(chunk.Coords, x, 0, z)
			g.fillColumn(chunk, x, z, g.HeightAt(wp.X, wp.Z), g.BiomeAt(wp.X, wp.Z), rng)
		}
	}

	// Деревья вторым проходом, крона целиком внутри чанка
	for x := 2; x < world.SizeX-2; x++ {
		for z := 2; z < world.SizeZ-2; z++ {
			wp := vec.FromLocal(chunk.Coords, x, 0, z)
			if g.BiomeAt(wp.X, wp.Z) != BiomeForest || rng.Float64() >= g.ForestDensity {
				continue
			}
			g.placeTree(chunk, x, g.HeightAt(wp.X, wp.Z), z)
		}
	}
}

// HeightAt возвращает высоту поверхности колонны (первый воксель над землёй)
func (g *Generator) HeightAt(wx, wz int) int {
	n := g.height.At(float64(wx)*g.NoiseScale, float64(wz)*g.NoiseScale)
	return BaseHeight + int(n*Amplitude)
}

// BiomeAt определяет тип биома на основе значений шума
func (g *Generator) BiomeAt(wx, wz int) BiomeType {
	h := g.HeightAt(wx, wz)
	if h <= SeaLevel {
		return BiomeWater
	}
	if h > BaseHeight+Amplitude*3/4 {
		return BiomeMountains
	}

	v := g.biome.At(float64(wx)*g.BiomeScale, float64(wz)*g.BiomeScale)
	switch {
	case v < 0.35:
		return BiomeDesert
	case v > 0.65:
		return BiomeForest
	default:
		return BiomePlains
	}
}

func (g *Generator) fillColumn(chunk *world.Chunk, x, z, h int, biome BiomeType, rng *rand.Rand) {
	surface, filler := surfaceBlocks(biome)

	for y := 0; y < h && y < world.SizeY; y++ {
		id := block.StoneBlockID
		switch {
		case y == h-1:
			id = surface
		case y >= h-1-DirtDepth:
			id = filler
		case y > 0 && rng.Float64() < g.GlowDensity:
			id = block.GlowstoneBlockID
		}
		g.put(chunk, x, y, z, id)
	}

	// Вода до уровня моря
	for y := h; y <= SeaLevel && y < world.SizeY; y++ {
		g.put(chunk, x, y, z, block.WaterBlockID)
	}

	// Изредка цветы и фонари на равнинах
	if h < world.SizeY && biome == BiomePlains {
		switch r := rng.Float64(); {
		case r < 0.03:
			g.put(chunk, x, h, z, block.FlowerBlockID)
		case r < 0.035:
			g.put(chunk, x, h, z, block.LanternBlockID)
		}
	}
}

func surfaceBlocks(biome BiomeType) (surface, filler block.BlockID) {
	switch biome {
	case BiomeDesert:
		return block.SandBlockID, block.SandBlockID
	case BiomeMountains:
		return block.StoneBlockID, block.StoneBlockID
	case BiomeWater:
		return block.SandBlockID, block.DirtBlockID
	default:
		return block.GrassBlockID, block.DirtBlockID
	}
}

// placeTree ставит ствол высотой 4 и крону из листвы 3x3x2
func (g *Generator) placeTree(chunk *world.Chunk, x, base, z int) {
	const trunk = 4
	if base+trunk+1 >= world.SizeY || !chunk.IsEmpty(x, base, z) {
		return
	}
	for y := base; y < base+trunk; y++ {
		g.put(chunk, x, y, z, block.TreeBlockID)
	}
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			for y := base + trunk - 1; y <= base+trunk; y++ {
				if chunk.IsEmpty(x+dx, y, z+dz) {
					g.put(chunk, x+dx, y, z+dz, block.LeavesBlockID)
				}
			}
		}
	}
}

func (g *Generator) put(chunk *world.Chunk, x, y, z int, id block.BlockID) {
	chunk.SetBlock(x, y, z, id)
	if _, ok := g.registry.LightEmission(id); ok {
		chunk.AddLightSource(x, y, z)
	}
}
