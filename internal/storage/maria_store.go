package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/vec"
	_ "github.com/go-sql-driver/mysql"
)

// MariaLightStore реализует LightStore для MariaDB/MySQL.
// Снимки хранятся в таблице light_snapshots в том же сжатом формате,
// что и в badger/redis; ключ — координаты чанка.
type MariaLightStore struct {
	db      *sql.DB
	mutex   sync.RWMutex
	isReady bool
}

// NewMariaLightStore подключается к базе и создаёт таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения (user:pass@tcp(host:port)/dbname)
func NewMariaLightStore(ctx context.Context, dsn string) (*MariaLightStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	store := &MariaLightStore{db: db, isReady: true}
	if err := store.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	logging.GetStorageLogger().Info("🐬 MariaDB подключена")
	return store, nil
}

// createTable создает таблицу light_snapshots, если она не существует.
func (r *MariaLightStore) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS light_snapshots (
			chunk_x    INT         NOT NULL,
			chunk_z    INT         NOT NULL,
			record     MEDIUMBLOB  NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP,
			PRIMARY KEY (chunk_x, chunk_z)
		) ENGINE=InnoDB
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы light_snapshots: %w", err)
	}
	return nil
}

// Save сохраняет снимок, перезаписывая предыдущий для того же чанка
func (r *MariaLightStore) Save(ctx context.Context, snap *LightSnapshot) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if !r.isReady {
		return ErrStoreClosed
	}

	query := `
		INSERT INTO light_snapshots (chunk_x, chunk_z, record)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			record = VALUES(record),
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query, snap.Coords.X, snap.Coords.Y, EncodeSnapshot(snap))
	if err != nil {
		return fmt.Errorf("ошибка сохранения снимка %v: %w", snap.Coords, err)
	}
	return nil
}

// Load загружает снимок
func (r *MariaLightStore) Load(ctx context.Context, coords vec.Vec2) (*LightSnapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if !r.isReady {
		return nil, ErrStoreClosed
	}

	query := `SELECT record FROM light_snapshots WHERE chunk_x = ? AND chunk_z = ?`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, coords.X, coords.Y).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки снимка %v: %w", coords, err)
	}
	return DecodeSnapshot(data)
}

// Delete удаляет снимок; отсутствие строки ошибкой не считается
func (r *MariaLightStore) Delete(ctx context.Context, coords vec.Vec2) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if !r.isReady {
		return ErrStoreClosed
	}

	query := `DELETE FROM light_snapshots WHERE chunk_x = ? AND chunk_z = ?`
	if _, err := r.db.ExecContext(ctx, query, coords.X, coords.Y); err != nil {
		return fmt.Errorf("ошибка удаления снимка %v: %w", coords, err)
	}
	return nil
}

// Coords перечисляет координаты сохранённых снимков
func (r *MariaLightStore) Coords(ctx context.Context) ([]vec.Vec2, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if !r.isReady {
		return nil, ErrStoreClosed
	}

	rows, err := r.db.QueryContext(ctx, `SELECT chunk_x, chunk_z FROM light_snapshots ORDER BY chunk_x, chunk_z`)
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления снимков: %w", err)
	}
	defer rows.Close()

	var out []vec.Vec2
	for rows.Next() {
		var c vec.Vec2
		if err := rows.Scan(&c.X, &c.Y); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close закрывает подключение к базе
func (r *MariaLightStore) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}
	r.isReady = false
	return r.db.Close()
}
