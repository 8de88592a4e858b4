package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/go-redis/redis/v8"
)

// RedisLightStore хранит снимки освещения в Redis с ограниченным временем жизни.
// Подходит как разделяемый кэш для нескольких потребителей карт света.
type RedisLightStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisLightStore подключается к Redis по URL вида redis://host:port/db
func NewRedisLightStore(ctx context.Context, url string, ttl time.Duration) (*RedisLightStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("некорректный redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetStorageLogger().Info("🔴 Connected to Redis at %s", opts.Addr)
	return NewRedisLightStoreWithClient(client, ttl), nil
}

// NewRedisLightStoreWithClient оборачивает готовый клиент
func NewRedisLightStoreWithClient(client *redis.Client, ttl time.Duration) *RedisLightStore {
	return &RedisLightStore{
		client:    client,
		keyPrefix: "voxel:",
		ttl:       ttl,
	}
}

func (rs *RedisLightStore) key(coords vec.Vec2) string {
	return rs.keyPrefix + snapshotKey(coords)
}

// Save сохраняет снимок
func (rs *RedisLightStore) Save(ctx context.Context, snap *LightSnapshot) error {
	err := rs.client.Set(ctx, rs.key(snap.Coords), EncodeSnapshot(snap), rs.ttl).Err()
	if errors.Is(err, redis.ErrClosed) {
		return ErrStoreClosed
	}
	if err != nil {
		return fmt.Errorf("ошибка сохранения в Redis: %w", err)
	}
	return nil
}

// Load загружает снимок
func (rs *RedisLightStore) Load(ctx context.Context, coords vec.Vec2) (*LightSnapshot, error) {
	data, err := rs.client.Get(ctx, rs.key(coords)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrSnapshotNotFound
	case errors.Is(err, redis.ErrClosed):
		return nil, ErrStoreClosed
	case err != nil:
		return nil, fmt.Errorf("ошибка чтения из Redis: %w", err)
	}
	return DecodeSnapshot(data)
}

// Delete удаляет снимок
func (rs *RedisLightStore) Delete(ctx context.Context, coords vec.Vec2) error {
	err := rs.client.Del(ctx, rs.key(coords)).Err()
	if errors.Is(err, redis.ErrClosed) {
		return ErrStoreClosed
	}
	if err != nil {
		return fmt.Errorf("ошибка удаления из Redis: %w", err)
	}
	return nil
}

// Coords перечисляет сохранённые снимки через SCAN по префиксу ключей
func (rs *RedisLightStore) Coords(ctx context.Context) ([]vec.Vec2, error) {
	var out []vec.Vec2
	iter := rs.client.Scan(ctx, 0, rs.keyPrefix+"light:*", 256).Iterator()
	for iter.Next(ctx) {
		c, err := parseSnapshotKey(strings.TrimPrefix(iter.Val(), rs.keyPrefix))
		if err != nil {
			logging.GetStorageLogger().Warn("Ошибка парсинга ключа '%s': %v", iter.Val(), err)
			continue
		}
		out = append(out, c)
	}
	if err := iter.Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrStoreClosed
		}
		return nil, fmt.Errorf("ошибка перечисления ключей Redis: %w", err)
	}
	return sortCoords(out), nil
}

// Close закрывает соединение
func (rs *RedisLightStore) Close() error {
	err := rs.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
