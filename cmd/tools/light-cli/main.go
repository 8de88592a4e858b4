package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/voxel-light/internal/config"
	"github.com/annel0/voxel-light/internal/eventbus"
	"github.com/annel0/voxel-light/internal/storage"
	"github.com/annel0/voxel-light/internal/vec"
)

const timeFormat = "15:04:05"

func main() {
	var (
		command   = flag.String("cmd", "tail", "Command: tail, snapshot, list")
		natsURL   = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
		stream    = flag.String("stream", "LIGHT", "JetStream stream name")
		chunks    = flag.String("chunks", "", "Chunk filter for tail (e.g. 0:0,1:-2)")
		reasons   = flag.String("reasons", "", "Reason filter for tail (comma-separated)")
		limit     = flag.Int("limit", 0, "Stop after N events (0 = follow)")
		backend   = flag.String("store", config.StorageBadger, "Snapshot store: badger, redis, maria, mongo")
		storePath = flag.String("path", "data/light", "Badger directory")
		redisURL  = flag.String("redis", "redis://localhost:6379/0", "Redis URL")
		mariaDSN  = flag.String("maria", "", "MariaDB DSN")
		mongoURI  = flag.String("mongo", "mongodb://localhost:27017", "MongoDB URI")
		chunk     = flag.String("chunk", "0:0", "Chunk for snapshot command (x:z)")
	)
	flag.Parse()

	cfg := config.StorageConfig{
		Backend:         *backend,
		Path:            *storePath,
		RedisURL:        *redisURL,
		MariaDSN:        *mariaDSN,
		MongoURI:        *mongoURI,
		MongoDatabase:   "voxel_light",
		MongoCollection: "light_snapshots",
	}

	switch *command {
	case "tail":
		filter, err := parseChunkList(*chunks)
		if err != nil {
			log.Fatalf("❌ Bad chunk filter: %v", err)
		}
		if err := tailRemesh(*natsURL, *stream, &TailOptions{
			Chunks:  filter,
			Reasons: parseStringList(*reasons),
			Limit:   *limit,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "snapshot":
		coords, err := parseChunk(*chunk)
		if err != nil {
			log.Fatalf("❌ Bad chunk: %v", err)
		}
		if err := showSnapshot(cfg, coords); err != nil {
			log.Fatalf("❌ Snapshot failed: %v", err)
		}

	case "list":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := storage.Open(ctx, cfg)
		if err != nil {
			log.Fatalf("❌ Open store failed: %v", err)
		}
		defer store.Close()
		if err := listSnapshots(ctx, store, os.Stdout); err != nil {
			log.Fatalf("❌ List failed: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		flag.Usage()
		os.Exit(2)
	}
}

// TailOptions параметры команды tail
type TailOptions struct {
	Chunks  map[vec.Vec2]bool
	Reasons []string
	Limit   int
}

// tailRemesh печатает события ChunkRemesh из JetStream
func tailRemesh(url, stream string, opts *TailOptions) error {
	bus, err := eventbus.NewJetStreamBus(url, stream, 24*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	received := make(chan struct{}, 1)
	count := 0
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: []string{eventbus.EventChunkRemesh}}, func(_ context.Context, ev *eventbus.Envelope) {
		r, err := eventbus.DecodeRemesh(ev)
		if err != nil || !opts.matches(r) {
			return
		}
		printRemesh(ev, r)
		count++
		if opts.Limit > 0 && count >= opts.Limit {
			select {
			case received <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("📡 Listening for remesh events on %s (stream %s)\n", url, stream)
	select {
	case <-ctx.Done():
	case <-received:
	}
	return nil
}

func (o *TailOptions) matches(r eventbus.ChunkRemesh) bool {
	if len(o.Chunks) > 0 && !o.Chunks[r.Coords()] {
		return false
	}
	if len(o.Reasons) == 0 {
		return true
	}
	for _, reason := range o.Reasons {
		if reason == r.Reason {
			return true
		}
	}
	return false
}

// printRemesh выводит событие в читаемом формате
func printRemesh(ev *eventbus.Envelope, r eventbus.ChunkRemesh) {
	fmt.Printf("[%s] %s [%s] chunk=%s reason=%s id=%s\n",
		ev.Timestamp.Format(timeFormat),
		ev.Source,
		ev.EventType,
		r.Coords(),
		r.Reason,
		ev.ID)
}

// showSnapshot печатает метаданные и гистограмму уровней света снимка
func showSnapshot(cfg config.StorageConfig, coords vec.Vec2) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.Load(ctx, coords)
	if err != nil {
		return err
	}

	fmt.Printf("Chunk:    %s\n", snap.Coords)
	fmt.Printf("Digest:   %016x\n", snap.Digest)
	fmt.Printf("Saved at: %s\n", snap.SavedAt.Format(time.RFC3339))
	fmt.Printf("Voxels:   %d\n", len(snap.Light))

	sky, blk := lightHistogram(snap.Light)
	fmt.Println("Level     Sky   Block")
	for level := len(sky) - 1; level >= 0; level-- {
		fmt.Printf("%5d %7d %7d\n", level, sky[level], blk[level])
	}
	return nil
}

// listSnapshots печатает координаты всех сохранённых снимков
func listSnapshots(ctx context.Context, store storage.LightStore, w io.Writer) error {
	lister, ok := store.(storage.SnapshotLister)
	if !ok {
		return fmt.Errorf("хранилище %T не поддерживает перечисление", store)
	}
	coords, err := lister.Coords(ctx)
	if err != nil {
		return err
	}
	for _, c := range coords {
		fmt.Fprintln(w, c)
	}
	fmt.Fprintf(w, "Total: %d\n", len(coords))
	return nil
}

// lightHistogram считает число вокселей на каждом уровне обоих каналов
func lightHistogram(light []byte) (sky, blk [16]int) {
	for _, cell := range light {
		sky[cell>>4]++
		blk[cell&0x0F]++
	}
	return sky, blk
}

// parseChunk разбирает координаты чанка вида "x:z"
func parseChunk(s string) (vec.Vec2, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return vec.Vec2{}, fmt.Errorf("ожидается x:z, получено %q", s)
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return vec.Vec2{}, fmt.Errorf("x: %w", err)
	}
	z, err := strconv.Atoi(parts[1])
	if err != nil {
		return vec.Vec2{}, fmt.Errorf("z: %w", err)
	}
	return vec.Vec2{X: x, Y: z}, nil
}

// parseChunkList разбирает список чанков через запятую
func parseChunkList(s string) (map[vec.Vec2]bool, error) {
	items := parseStringList(s)
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[vec.Vec2]bool, len(items))
	for _, item := range items {
		c, err := parseChunk(item)
		if err != nil {
			return nil, err
		}
		out[c] = true
	}
	return out, nil
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
