package lighting

import (
	"sort"

	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
)

// dirtyTracker собирает чанки, затронутые одним вызовом движка.
// Живёт ровно один вызов Initialize/Update/RemoveSource.
type dirtyTracker struct {
	chunks map[*world.Chunk]struct{}
}

func newDirtyTracker() *dirtyTracker {
	return &dirtyTracker{chunks: make(map[*world.Chunk]struct{})}
}

func (t *dirtyTracker) mark(c *world.Chunk) {
	t.chunks[c] = struct{}{}
}

// flush выставляет флаг "нужен ремеш" всем чанкам, кроме skip,
// и возвращает их отсортированные координаты. Набор очищается.
func (t *dirtyTracker) flush(skip *world.Chunk) []vec.Vec2 {
	out := make([]vec.Vec2, 0, len(t.chunks))
	for c := range t.chunks {
		if c == skip {
			continue
		}
		c.MarkDirty()
		out = append(out, c.Coords)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	t.chunks = make(map[*world.Chunk]struct{})
	return out
}
