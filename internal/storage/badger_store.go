package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/dgraph-io/badger/v3"
)

// BadgerLightStore хранит снимки освещения в BadgerDB
type BadgerLightStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerLightStore открывает (или создаёт) базу в dbPath
func NewBadgerLightStore(dbPath string) (*BadgerLightStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	logging.GetStorageLogger().Info("💾 BadgerDB открыт: %s", dbPath)
	return &BadgerLightStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Save сохраняет снимок
func (bs *BadgerLightStore) Save(ctx context.Context, snap *LightSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return ErrStoreClosed
	}

	data := EncodeSnapshot(snap)
	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey(snap.Coords)), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// Load загружает снимок
func (bs *BadgerLightStore) Load(ctx context.Context, coords vec.Vec2) (*LightSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey(coords)))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	return DecodeSnapshot(data)
}

// Delete удаляет снимок
func (bs *BadgerLightStore) Delete(ctx context.Context, coords vec.Vec2) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return ErrStoreClosed
	}

	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(snapshotKey(coords)))
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления из BadgerDB: %w", err)
	}
	return nil
}

// Coords перечисляет координаты всех сохранённых снимков
func (bs *BadgerLightStore) Coords(ctx context.Context) ([]vec.Vec2, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, ErrStoreClosed
	}

	var out []vec.Vec2
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("light:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			c, err := parseSnapshotKey(string(it.Item().Key()))
			if err != nil {
				logging.GetStorageLogger().Warn("Ошибка парсинга ключа '%s': %v", it.Item().Key(), err)
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	return sortCoords(out), err
}

// Close закрывает хранилище данных
func (bs *BadgerLightStore) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if !bs.isReady {
		return nil
	}

	bs.isReady = false
	return bs.db.Close()
}
