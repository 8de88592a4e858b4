package eventbus

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector собирает доставленные события
type collector struct {
	mu  sync.Mutex
	evs []*Envelope
}

func (c *collector) handle(_ context.Context, ev *Envelope) {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.evs)
}

func TestMemoryBus_PublishSubscribeFilter(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	ctx := context.Background()

	var all, remesh collector
	_, err := bus.Subscribe(ctx, Filter{}, all.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, Filter{Types: []string{EventChunkRemesh}}, remesh.handle)
	require.NoError(t, err)

	ev, err := NewRemeshEnvelope("test", vec.Vec2{X: 1, Y: -2}, ReasonUpdate)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, ev))
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "Other", Priority: 9}))

	require.Eventually(t, func() bool { return bus.Metrics().Consumed == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, all.count())
	require.Equal(t, 1, remesh.count())

	r, err := DecodeRemesh(remesh.evs[0])
	require.NoError(t, err)
	assert.Equal(t, vec.Vec2{X: 1, Y: -2}, r.Coords())
	assert.Equal(t, ReasonUpdate, r.Reason)

	assert.Equal(t, uint64(2), bus.Metrics().Published)
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()
	ctx := context.Background()

	var c collector
	sub, err := bus.Subscribe(ctx, Filter{}, c.handle)
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "X", Priority: 9}))
	require.NoError(t, bus.Close())
	assert.Equal(t, 0, c.count())
}

func TestMemoryBus_DropsLowPriorityWhenFull(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()
	ctx := context.Background()

	release := make(chan struct{})
	_, err := bus.Subscribe(ctx, Filter{}, func(context.Context, *Envelope) { <-release })
	require.NoError(t, err)

	// Первое событие занимает обработчик, второе — буфер
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "A", Priority: 1}))
	require.Eventually(t, func() bool { return bus.Metrics().InFlight == 0 }, time.Second, time.Millisecond)
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "B", Priority: 1}))

	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "C", Priority: 1}))
	assert.Equal(t, uint64(1), bus.Metrics().Dropped)

	// Высокий приоритет ждёт места до отмены контекста
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = bus.Publish(short, &Envelope{EventType: "D", Priority: 9})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.True(t, errors.Is(bus.Publish(context.Background(), &Envelope{}), ErrBusClosed))
	_, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.True(t, errors.Is(err, ErrBusClosed))
}

func TestRemeshEnvelope(t *testing.T) {
	ev, err := NewRemeshEnvelope("lightd", vec.Vec2{X: 3, Y: 4}, ReasonInitialize)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, PriorityRemesh, ev.Priority)
	assert.Equal(t, "3:4", ev.Metadata["chunk"])
	assert.JSONEq(t, `{"chunk_x":3,"chunk_z":4,"reason":"initialize"}`, string(ev.Payload))

	_, err = DecodeRemesh(&Envelope{EventType: "Other"})
	assert.Error(t, err)
	_, err = DecodeRemesh(&Envelope{EventType: EventChunkRemesh, Payload: []byte("{")})
	assert.Error(t, err)
}

func TestMetricsExporter_Collect(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "X", Priority: 9}))
	}
	me.collect()
	me.collect()

	assert.Equal(t, 3.0, testutil.ToFloat64(me.published))
	assert.Equal(t, 0.0, testutil.ToFloat64(me.dropped))
}

func TestLoggingListener(t *testing.T) {
	bus := NewMemoryBus(4)
	var buf syncBuffer
	logger := logging.NewWriterLogger("eventbus", &buf, logging.DEBUG)

	_, err := StartLoggingListener(bus, logger)
	require.NoError(t, err)

	ev, err := NewRemeshEnvelope("lightd", vec.Vec2{X: 7, Y: 8}, ReasonUpdate)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Close())

	assert.Contains(t, buf.String(), "remesh 7:8 (update)")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
