package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/voxel-light/internal/vec"
)

// ErrChunkExists возвращается при повторной регистрации чанка
var ErrChunkExists = errors.New("чанк уже загружен")

// Manager хранит загруженные чанки по координатам сетки.
//
// Чанки не хранят ссылок друг на друга: соседи ищутся через Manager,
// поэтому выгрузка чанка сразу превращает его грань в непрозрачную
// границу для соседей.
type Manager struct {
	chunks map[vec.Vec2]*Chunk
	mu     sync.RWMutex
}

// NewManager создаёт пустой менеджер чанков
func NewManager() *Manager {
	return &Manager{
		chunks: make(map[vec.Vec2]*Chunk),
	}
}

// Attach регистрирует чанк
func (m *Manager) Attach(c *Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chunks[c.Coords]; exists {
		return fmt.Errorf("%w: %v", ErrChunkExists, c.Coords)
	}
	m.chunks[c.Coords] = c
	return nil
}

// Detach удаляет чанк и возвращает его
func (m *Manager) Detach(coords vec.Vec2) (*Chunk, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.chunks[coords]
	if exists {
		delete(m.chunks, coords)
	}
	return c, exists
}

// ChunkAt возвращает чанк по координатам сетки
func (m *Manager) ChunkAt(coords vec.Vec2) (*Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.chunks[coords]
	return c, exists
}

// Neighbor возвращает соседний чанк в горизонтальном направлении.
// Для вертикальных направлений соседей нет: чанк занимает всю высоту мира.
func (m *Manager) Neighbor(coords vec.Vec2, d Direction) (*Chunk, bool) {
	if !d.IsHorizontal() {
		return nil, false
	}
	dx, _, dz := d.Offset()
	return m.ChunkAt(coords.Add(vec.Vec2{X: dx, Y: dz}))
}

// Locate возвращает чанк и локальные координаты для мировой позиции
func (m *Manager) Locate(pos vec.Vec3) (*Chunk, vec.Vec3, bool) {
	c, ok := m.ChunkAt(pos.ToChunkCoords())
	return c, pos.LocalInChunk(), ok
}

// Coords возвращает отсортированные координаты всех загруженных чанков
func (m *Manager) Coords() []vec.Vec2 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]vec.Vec2, 0, len(m.chunks))
	for c := range m.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Len возвращает количество загруженных чанков
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}
