package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
	"github.com/klauspost/compress/zstd"
)

// Формат записи: заголовок фиксированной длины + сжатая zstd карта света.
//
//	magic   [4]byte "VLS1"
//	x, z    int32
//	digest  uint64
//	savedAt int64 (unix nano)
//	rawLen  uint32
//	payload zstd
const (
	snapshotMagic     = "VLS1"
	snapshotHeaderLen = 4 + 4 + 4 + 8 + 8 + 4
)

var errCorruptSnapshot = errors.New("повреждённая запись снимка")

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(world.Volume))
)

// EncodeSnapshot сериализует снимок
func EncodeSnapshot(s *LightSnapshot) []byte {
	out := make([]byte, snapshotHeaderLen, snapshotHeaderLen+len(s.Light)/8)
	copy(out, snapshotMagic)
	binary.LittleEndian.PutUint32(out[4:], uint32(int32(s.Coords.X)))
	binary.LittleEndian.PutUint32(out[8:], uint32(int32(s.Coords.Y)))
	binary.LittleEndian.PutUint64(out[12:], s.Digest)
	binary.LittleEndian.PutUint64(out[20:], uint64(s.SavedAt.UnixNano()))
	binary.LittleEndian.PutUint32(out[28:], uint32(len(s.Light)))
	return encoder.EncodeAll(s.Light, out)
}

// DecodeSnapshot разбирает запись, созданную EncodeSnapshot
func DecodeSnapshot(data []byte) (*LightSnapshot, error) {
	if len(data) < snapshotHeaderLen || string(data[:4]) != snapshotMagic {
		return nil, errCorruptSnapshot
	}

	s := &LightSnapshot{
		Coords: vec.Vec2{
			X: int(int32(binary.LittleEndian.Uint32(data[4:]))),
			Y: int(int32(binary.LittleEndian.Uint32(data[8:]))),
		},
		Digest:  binary.LittleEndian.Uint64(data[12:]),
		SavedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(data[20:]))).UTC(),
	}
	rawLen := int(binary.LittleEndian.Uint32(data[28:]))
	if rawLen != world.Volume {
		return nil, fmt.Errorf("%w: длина карты %d, ожидалось %d", errCorruptSnapshot, rawLen, world.Volume)
	}

	light, err := decoder.DecodeAll(data[snapshotHeaderLen:], make([]byte, 0, rawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptSnapshot, err)
	}
	if len(light) != rawLen {
		return nil, fmt.Errorf("%w: длина %d, ожидалось %d", errCorruptSnapshot, len(light), rawLen)
	}
	s.Light = light
	return s, nil
}
