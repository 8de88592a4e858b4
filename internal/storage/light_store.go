package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/annel0/voxel-light/internal/config"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
)

var (
	// ErrSnapshotNotFound снимка для чанка нет в хранилище
	ErrSnapshotNotFound = errors.New("снимок света не найден")
	// ErrStoreClosed хранилище уже закрыто
	ErrStoreClosed = errors.New("хранилище закрыто")
)

// LightSnapshot карта освещения чанка на момент сохранения.
// Digest — xxhash блоков чанка: по нему потребитель понимает,
// соответствует ли снимок текущему содержимому чанка.
type LightSnapshot struct {
	Coords  vec.Vec2
	Digest  uint64
	Light   []byte // упакованные ячейки sky<<4|block в порядке y, x, z
	SavedAt time.Time
}

// SnapshotFromChunk снимает карту освещения чанка
func SnapshotFromChunk(c *world.Chunk) *LightSnapshot {
	return &LightSnapshot{
		Coords:  c.Coords,
		Digest:  c.BlocksDigest(),
		Light:   c.LightMap(),
		SavedAt: time.Now().UTC(),
	}
}

// Matches сообщает, снят ли снимок с текущего содержимого блоков чанка
func (s *LightSnapshot) Matches(c *world.Chunk) bool {
	return s.Coords == c.Coords && s.Digest == c.BlocksDigest()
}

// LightStore хранилище снимков освещения чанков.
type LightStore interface {
	// Save сохраняет (перезаписывает) снимок чанка
	Save(ctx context.Context, snap *LightSnapshot) error

	// Load возвращает снимок или ErrSnapshotNotFound
	Load(ctx context.Context, coords vec.Vec2) (*LightSnapshot, error)

	// Delete удаляет снимок; отсутствие снимка ошибкой не считается
	Delete(ctx context.Context, coords vec.Vec2) error

	Close() error
}

// SnapshotLister перечисляет координаты сохранённых снимков
// в порядке vec.Vec2.Less. Реализуют все хранилища пакета.
type SnapshotLister interface {
	Coords(ctx context.Context) ([]vec.Vec2, error)
}

// Open создаёт хранилище по конфигурации
func Open(ctx context.Context, cfg config.StorageConfig) (LightStore, error) {
	switch cfg.Backend {
	case config.StorageMemory, "":
		return NewMemoryLightStore(), nil
	case config.StorageBadger:
		return NewBadgerLightStore(cfg.Path)
	case config.StorageRedis:
		return NewRedisLightStore(ctx, cfg.RedisURL, cfg.RedisTTL())
	case config.StorageMaria:
		return NewMariaLightStore(ctx, cfg.MariaDSN)
	case config.StorageMongo:
		return NewMongoLightStore(ctx, MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		})
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища %q", cfg.Backend)
	}
}

func snapshotKey(coords vec.Vec2) string {
	return fmt.Sprintf("light:%d:%d", coords.X, coords.Y)
}

func parseSnapshotKey(key string) (vec.Vec2, error) {
	var c vec.Vec2
	_, err := fmt.Sscanf(key, "light:%d:%d", &c.X, &c.Y)
	return c, err
}

func sortCoords(out []vec.Vec2) []vec.Vec2 {
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
