package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/voxel-light/internal/vec"
	"github.com/google/uuid"
)

// Типы событий сервиса освещения
const (
	EventChunkRemesh = "ChunkRemesh"
)

// Причины перестроения меша
const (
	ReasonUpdate     = "update"
	ReasonInitialize = "initialize"
	ReasonUnload     = "unload"
)

// PriorityRemesh приоритет сигналов ремеша: выше порога отбрасывания,
// потому что мешер узнаёт о правке только из шины.
const PriorityRemesh = 6

// ChunkRemesh полезная нагрузка события "меш чанка устарел"
type ChunkRemesh struct {
	ChunkX int    `json:"chunk_x"`
	ChunkZ int    `json:"chunk_z"`
	Reason string `json:"reason"`
}

// Coords возвращает координаты чанка
func (r ChunkRemesh) Coords() vec.Vec2 {
	return vec.Vec2{X: r.ChunkX, Y: r.ChunkZ}
}

// NewRemeshEnvelope упаковывает сигнал ремеша в Envelope
func NewRemeshEnvelope(source string, coords vec.Vec2, reason string) (*Envelope, error) {
	payload, err := json.Marshal(ChunkRemesh{ChunkX: coords.X, ChunkZ: coords.Y, Reason: reason})
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: EventChunkRemesh,
		Version:   1,
		Priority:  PriorityRemesh,
		Payload:   payload,
		Metadata:  map[string]string{"chunk": coords.String()},
	}, nil
}

// DecodeRemesh разбирает полезную нагрузку события ChunkRemesh
func DecodeRemesh(ev *Envelope) (ChunkRemesh, error) {
	var r ChunkRemesh
	if ev.EventType != EventChunkRemesh {
		return r, fmt.Errorf("событие %s не является %s", ev.EventType, EventChunkRemesh)
	}
	if err := json.Unmarshal(ev.Payload, &r); err != nil {
		return r, fmt.Errorf("ошибка разбора ChunkRemesh: %w", err)
	}
	return r, nil
}
