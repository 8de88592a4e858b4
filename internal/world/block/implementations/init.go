package implementations

import "github.com/annel0/voxel-light/internal/world/block"

// RegisterDefaults регистрирует встроенные типы блоков в переданном регистре
func RegisterDefaults(r *block.Registry) {
	// Базовые блоки
	r.MustRegister(block.StoneBlockID, block.Properties{Name: "Stone"})
	r.MustRegister(block.GrassBlockID, block.Properties{Name: "Grass"})
	r.MustRegister(block.WaterBlockID, block.Properties{Name: "Water", Transparent: true})
	r.MustRegister(block.SandBlockID, block.Properties{Name: "Sand"})
	r.MustRegister(block.DirtBlockID, block.Properties{Name: "Dirt"})
	r.MustRegister(block.GlassBlockID, block.Properties{Name: "Glass", Transparent: true})
	r.MustRegister(block.LeavesBlockID, block.Properties{Name: "Leaves", Transparent: true})

	// Декоративные
	r.MustRegister(block.FlowerBlockID, block.Properties{Name: "Flower", Transparent: true})
	r.MustRegister(block.TreeBlockID, block.Properties{Name: "Tree"})

	// Источники света непрозрачны, но сохраняют свою яркость
	r.MustRegister(block.TorchBlockID, block.Properties{Name: "Torch", Emission: 14, TransparentSolid: true})
	r.MustRegister(block.GlowstoneBlockID, block.Properties{Name: "Glowstone", Emission: 15, TransparentSolid: true})
	r.MustRegister(block.LanternBlockID, block.Properties{Name: "Lantern", Emission: 13, TransparentSolid: true})

	// Специальные
	r.MustRegister(block.PortalBlockID, block.Properties{Name: "Portal", Emission: 11, TransparentSolid: true})
	r.MustRegister(block.SpawnerBlockID, block.Properties{Name: "Spawner"})
}

// NewDefaultRegistry создаёт регистр со встроенными блоками
func NewDefaultRegistry() *block.Registry {
	r := block.NewRegistry()
	RegisterDefaults(r)
	return r
}
