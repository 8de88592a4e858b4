package world

import (
	"testing"

	"github.com/annel0/voxel-light/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AttachDetach(t *testing.T) {
	m := NewManager()
	c := NewChunk(vec.Vec2{X: 0, Y: 0})

	require.NoError(t, m.Attach(c))
	assert.ErrorIs(t, m.Attach(NewChunk(vec.Vec2{X: 0, Y: 0})), ErrChunkExists)
	assert.Equal(t, 1, m.Len())

	got, ok := m.ChunkAt(vec.Vec2{})
	require.True(t, ok)
	assert.Same(t, c, got)

	detached, ok := m.Detach(vec.Vec2{})
	assert.True(t, ok)
	assert.Same(t, c, detached)
	_, ok = m.ChunkAt(vec.Vec2{})
	assert.False(t, ok)
}

func TestManager_Neighbor(t *testing.T) {
	m := NewManager()
	center := NewChunk(vec.Vec2{X: 0, Y: 0})
	east := NewChunk(vec.Vec2{X: 1, Y: 0})
	north := NewChunk(vec.Vec2{X: 0, Y: -1})
	require.NoError(t, m.Attach(center))
	require.NoError(t, m.Attach(east))
	require.NoError(t, m.Attach(north))

	got, ok := m.Neighbor(center.Coords, East)
	require.True(t, ok)
	assert.Same(t, east, got)

	got, ok = m.Neighbor(east.Coords, West)
	require.True(t, ok)
	assert.Same(t, center, got)

	got, ok = m.Neighbor(center.Coords, North)
	require.True(t, ok)
	assert.Same(t, north, got)

	_, ok = m.Neighbor(center.Coords, South)
	assert.False(t, ok, "незагруженный сосед отсутствует")
	_, ok = m.Neighbor(center.Coords, Up)
	assert.False(t, ok, "вертикальных соседей нет")

	assert.Equal(t, []vec.Vec2{{X: 0, Y: -1}, {X: 0, Y: 0}, {X: 1, Y: 0}}, m.Coords())
}

func TestManager_Locate(t *testing.T) {
	m := NewManager()
	c := NewChunk(vec.Vec2{X: -1, Y: 2})
	require.NoError(t, m.Attach(c))

	got, local, ok := m.Locate(vec.Vec3{X: -3, Y: 70, Z: 33})
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, vec.Vec3{X: 13, Y: 70, Z: 1}, local)

	_, _, ok = m.Locate(vec.Vec3{X: 100, Y: 0, Z: 0})
	assert.False(t, ok)
}

func TestDirection_Opposite(t *testing.T) {
	for _, d := range Directions {
		dx, dy, dz := d.Offset()
		ox, oy, oz := d.Opposite().Offset()
		assert.Equal(t, [3]int{-dx, -dy, -dz}, [3]int{ox, oy, oz}, "направление %v", d)
	}
}
