package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/annel0/voxel-light/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса освещения
type Config struct {
	Lighting  LightingConfig  `yaml:"lighting"`
	World     WorldConfig     `yaml:"world"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Blocks    BlocksConfig    `yaml:"blocks"`
}

type LightingConfig struct {
	// ReconcileOnAttach дозаливает свет с граней соседей при загрузке чанка
	ReconcileOnAttach bool `yaml:"reconcile_on_attach"`
}

type WorldConfig struct {
	Seed          int64 `yaml:"seed"`
	PreloadRadius int   `yaml:"preload_radius"`
	EditQueue     int   `yaml:"edit_queue"`
}

// Бэкенды хранилища снимков света
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
	StorageRedis  = "redis"
	StorageMaria  = "maria"
	StorageMongo  = "mongo"
)

type StorageConfig struct {
	Backend         string `yaml:"backend"`
	Path            string `yaml:"path"`
	RedisURL        string `yaml:"redis_url"`
	RedisTTLSeconds int    `yaml:"redis_ttl_seconds"`

	// MariaDSN user:pass@tcp(host:port)/dbname
	MariaDSN        string `yaml:"maria_dsn"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

// RedisTTL возвращает время жизни снимка в Redis
func (s StorageConfig) RedisTTL() time.Duration {
	return time.Duration(s.RedisTTLSeconds) * time.Second
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "LIGHT_REST_PORT", 8088)
}

type LoggingConfig struct {
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
	ToFile       bool   `yaml:"to_file"`
}

// Levels разбирает уровни логирования
func (l LoggingConfig) Levels() (console, file logging.LogLevel, err error) {
	if console, err = logging.ParseLevel(l.ConsoleLevel); err != nil {
		return
	}
	file, err = logging.ParseLevel(l.FileLevel)
	return
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type BlocksConfig struct {
	// Definitions путь к YAML с дополнительными типами блоков
	Definitions string `yaml:"definitions"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Lighting: LightingConfig{ReconcileOnAttach: true},
		World:    WorldConfig{Seed: 1337, PreloadRadius: 1, EditQueue: 256},
		Storage: StorageConfig{
			Backend:         StorageMemory,
			Path:            "data/light",
			RedisURL:        "redis://localhost:6379/0",
			RedisTTLSeconds: 3600,
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "voxel_light",
			MongoCollection: "light_snapshots",
		},
		EventBus: EventBusConfig{
			Stream:    "LIGHT",
			Retention: 24,
			Buffer:    1024,
		},
		Logging:   LoggingConfig{ConsoleLevel: "INFO", FileLevel: "DEBUG"},
		Telemetry: TelemetryConfig{ServiceName: "voxel-light"},
	}
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageMemory, StorageBadger, StorageRedis, StorageMaria, StorageMongo:
	default:
		return fmt.Errorf("неизвестный бэкенд хранилища %q", c.Storage.Backend)
	}
	if c.Storage.Backend == StorageBadger && c.Storage.Path == "" {
		return fmt.Errorf("для badger нужен storage.path")
	}
	if c.Storage.Backend == StorageMaria && c.Storage.MariaDSN == "" {
		return fmt.Errorf("для maria нужен storage.maria_dsn")
	}
	if c.Storage.Backend == StorageMongo && c.Storage.MongoURI == "" {
		return fmt.Errorf("для mongo нужен storage.mongo_uri")
	}
	if c.World.PreloadRadius < 0 {
		return fmt.Errorf("world.preload_radius не может быть отрицательным: %d", c.World.PreloadRadius)
	}
	if c.World.EditQueue <= 0 {
		return fmt.Errorf("world.edit_queue должен быть положительным: %d", c.World.EditQueue)
	}
	if _, _, err := c.Logging.Levels(); err != nil {
		return err
	}
	return nil
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV LIGHT_CONFIG;
// если и он не задан, возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("LIGHT_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
