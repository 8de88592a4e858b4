package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxel-light/internal/api"
	"github.com/annel0/voxel-light/internal/app"
	"github.com/annel0/voxel-light/internal/config"
	"github.com/annel0/voxel-light/internal/eventbus"
	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/observability"
	"github.com/annel0/voxel-light/internal/storage"
	"github.com/annel0/voxel-light/internal/world/block"
	"github.com/annel0/voxel-light/internal/world/block/implementations"
	"github.com/annel0/voxel-light/internal/worldgen"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию LIGHT_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем систему логирования
	consoleLevel, fileLevel, err := cfg.Logging.Levels()
	if err != nil {
		log.Fatalf("❌ Ошибка конфигурации логирования: %v", err)
	}
	logging.GetLoggerManager().Configure(cfg.Logging.ToFile, consoleLevel, fileLevel)
	if cfg.Logging.ToFile {
		if err := logging.InitDefaultLogger("lightd"); err != nil {
			log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
		}
	}
	logging.Default().SetLevels(consoleLevel, fileLevel)
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logging.Info("💡 Запуск сервиса освещения вокселей...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("⚠️ Ошибка остановки телеметрии: %v", err)
		}
	}()

	// === БЛОКИ ===
	registry := implementations.NewDefaultRegistry()
	if cfg.Blocks.Definitions != "" {
		n, err := block.LoadYAML(registry, cfg.Blocks.Definitions)
		if err != nil {
			return fmt.Errorf("описания блоков: %w", err)
		}
		logging.Info("🧱 Загружено типов блоков из %s: %d", cfg.Blocks.Definitions, n)
	}

	// === ХРАНИЛИЩЕ И ШИНА ===
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("хранилище снимков: %w", err)
	}
	defer store.Close()
	logging.Info("💾 Хранилище снимков света: %s", cfg.Storage.Backend)

	bus, err := eventbus.Open(cfg.EventBus.URL, cfg.EventBus.Stream,
		time.Duration(cfg.EventBus.Retention)*time.Hour, cfg.EventBus.Buffer)
	if err != nil {
		return fmt.Errorf("шина событий: %w", err)
	}
	defer bus.Close()

	if _, err := eventbus.StartLoggingListener(bus, logging.GetEventBusLogger()); err != nil {
		return fmt.Errorf("подписка на шину: %w", err)
	}

	busMetrics := eventbus.NewMetricsExporter(bus, prometheus.DefaultRegisterer)
	busMetrics.Start(5 * time.Second)
	defer busMetrics.Stop()

	// === МИР ===
	w := app.NewWorld(app.Options{
		Registry:          registry,
		Generator:         worldgen.NewGenerator(cfg.World.Seed, registry),
		Store:             store,
		Bus:               bus,
		Logger:            logging.GetWorldLogger(),
		Metrics:           prometheus.DefaultRegisterer,
		ReconcileOnAttach: cfg.Lighting.ReconcileOnAttach,
		EditQueue:         cfg.World.EditQueue,
	})

	start := time.Now()
	if err := w.Preload(ctx, cfg.World.PreloadRadius); err != nil {
		return err
	}
	logging.Info("🌍 Предзагружено чанков: %d за %s", w.Stats().LoadedChunks, time.Since(start))

	// Цикл правок останавливается до закрытия хранилища и шины
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	// === REST API ===
	restPort := cfg.Server.GetRESTPort()
	server := api.NewRestServer(api.Config{
		Port:  fmt.Sprintf(":%d", restPort),
		World: w,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logging.Info("✅ Сервис запущен")
	logging.Info("   🌐 REST API: http://localhost:%d", restPort)
	logging.Info("   ❤️  Health check: http://localhost:%d/health", restPort)
	logging.Info("   📊 Метрики: http://localhost:%d/metrics", restPort)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("REST API: %w", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	cancel()

	logging.Info("👋 Сервис остановлен")
	return nil
}
