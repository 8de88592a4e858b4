package block

import (
	"fmt"
	"sort"
)

// MaxLight максимальное значение канала освещения (4 бита)
const MaxLight = 15

// BlockID представляет идентификатор блока
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID    BlockID = iota // 0 - пустота, "блока нет"
	StoneBlockID                 // 1
	GrassBlockID                 // 2
	WaterBlockID                 // 3
	SandBlockID                  // 4
	DirtBlockID                  // 5
	GlassBlockID                 // 6
	LeavesBlockID                // 7

	// Декоративные блоки (начиная с 100)
	FlowerBlockID BlockID = 100 // Цветок
	TreeBlockID   BlockID = 101 // Ствол дерева

	// Светящиеся блоки (начиная с 300)
	TorchBlockID     BlockID = 300 // Факел
	GlowstoneBlockID BlockID = 301 // Светокамень
	LanternBlockID   BlockID = 302 // Фонарь

	// Специальные блоки (начиная с 1000)
	PortalBlockID  BlockID = 1000 // Портал
	SpawnerBlockID BlockID = 1001 // Спаунер
)

// Properties описывает световые свойства типа блока.
//
// Transparent — свет проходит сквозь блок и может в нём храниться.
// Emission > 0 — блок является источником с фиксированной яркостью.
// TransparentSolid — блок непрозрачен, но сохраняет своё значение света
// при удалении освещения (источники света).
type Properties struct {
	Name             string `yaml:"name"`
	Transparent      bool   `yaml:"transparent"`
	Emission         uint8  `yaml:"emission"`
	TransparentSolid bool   `yaml:"transparent_solid"`
}

// IsLightSource возвращает true, если блок излучает свет
func (p Properties) IsLightSource() bool {
	return p.Emission > 0
}

// Registry хранит свойства типов блоков.
// Заполняется при старте и дальше используется только на чтение,
// поэтому не содержит мьютекса.
type Registry struct {
	props map[BlockID]Properties
}

// NewRegistry создаёт регистр, в котором зарегистрирован только воздух
func NewRegistry() *Registry {
	r := &Registry{props: make(map[BlockID]Properties)}
	r.props[AirBlockID] = Properties{Name: "Air", Transparent: true}
	return r
}

// Register добавляет (или заменяет) свойства блока в регистре
func (r *Registry) Register(id BlockID, p Properties) error {
	if id == AirBlockID {
		return fmt.Errorf("блок %d зарезервирован под воздух", id)
	}
	if p.Emission > MaxLight {
		return fmt.Errorf("блок %d (%s): яркость %d больше %d", id, p.Name, p.Emission, MaxLight)
	}
	if p.Emission > 0 && p.Transparent {
		return fmt.Errorf("блок %d (%s): источник света не может быть прозрачным", id, p.Name)
	}
	if p.TransparentSolid && p.Emission == 0 {
		return fmt.Errorf("блок %d (%s): transparent_solid допустим только для источников", id, p.Name)
	}
	r.props[id] = p
	return nil
}

// MustRegister как Register, но паникует при ошибке (для встроенных блоков)
func (r *Registry) MustRegister(id BlockID, p Properties) {
	if err := r.Register(id, p); err != nil {
		panic(err)
	}
}

// Get возвращает свойства для указанного ID
func (r *Registry) Get(id BlockID) (Properties, bool) {
	p, exists := r.props[id]
	return p, exists
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func (r *Registry) IsValidBlockID(id BlockID) bool {
	_, exists := r.props[id]
	return exists
}

// IsTransparent сообщает, пропускает ли блок свет. Неизвестные блоки непрозрачны.
func (r *Registry) IsTransparent(id BlockID) bool {
	return r.props[id].Transparent
}

// LightEmission возвращает яркость источника и признак того, что блок — источник
func (r *Registry) LightEmission(id BlockID) (uint8, bool) {
	p := r.props[id]
	return p.Emission, p.Emission > 0
}

// IsTransparentSolid сообщает, сохраняет ли непрозрачный блок своё освещение
func (r *Registry) IsTransparentSolid(id BlockID) bool {
	return r.props[id].TransparentSolid
}

// IDs возвращает отсортированный список зарегистрированных ID
func (r *Registry) IDs() []BlockID {
	ids := make([]BlockID, 0, len(r.props))
	for id := range r.props {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
