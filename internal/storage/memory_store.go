package storage

import (
	"context"
	"sync"

	"github.com/annel0/voxel-light/internal/vec"
)

// MemoryLightStore реализует LightStore в памяти.
// Используется по умолчанию и в тестах; записи хранятся в том же
// сжатом формате, что и в badger/redis.
// ВНИМАНИЕ: Данные теряются при перезапуске сервиса!
type MemoryLightStore struct {
	mu     sync.RWMutex
	data   map[vec.Vec2][]byte
	closed bool
}

// NewMemoryLightStore создает хранилище снимков в памяти
func NewMemoryLightStore() *MemoryLightStore {
	return &MemoryLightStore{
		data: make(map[vec.Vec2][]byte),
	}
}

// Save сохраняет снимок
func (m *MemoryLightStore) Save(ctx context.Context, snap *LightSnapshot) error {
	// Проверяем контекст на отмену
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded := EncodeSnapshot(snap)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.data[snap.Coords] = encoded
	return nil
}

// Load загружает снимок
func (m *MemoryLightStore) Load(ctx context.Context, coords vec.Vec2) (*LightSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.data[coords]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, ErrStoreClosed
	}
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return DecodeSnapshot(data)
}

// Delete удаляет снимок
func (m *MemoryLightStore) Delete(ctx context.Context, coords vec.Vec2) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data, coords)
	return nil
}

// Coords перечисляет координаты сохранённых снимков
func (m *MemoryLightStore) Coords(ctx context.Context) ([]vec.Vec2, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make([]vec.Vec2, 0, len(m.data))
	for c := range m.data {
		out = append(out, c)
	}
	return sortCoords(out), nil
}

// Len возвращает количество сохранённых снимков
func (m *MemoryLightStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Close закрывает хранилище
func (m *MemoryLightStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = make(map[vec.Vec2][]byte)
	return nil
}
