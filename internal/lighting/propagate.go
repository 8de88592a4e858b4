package lighting

import (
	"github.com/annel0/voxel-light/internal/invariant"
	"github.com/annel0/voxel-light/internal/world"
)

// node элемент очереди BFS: воксель в конкретном чанке
type node struct {
	c       *world.Chunk
	x, y, z int
}

// removal элемент очереди удаления: воксель и его значение до обнуления
type removal struct {
	node
	old uint8
}

func (n node) get(ch world.Channel) uint8 {
	return n.c.Light(ch, n.x, n.y, n.z)
}

func (n node) set(ch world.Channel, v uint8) {
	n.c.SetLight(ch, n.x, n.y, n.z, v)
}

func (e *Engine) transparent(n node) bool {
	return e.meta.IsTransparent(n.c.Block(n.x, n.y, n.z))
}

// step возвращает соседа в направлении d. Переход через грань чанка идёт
// через резолвер; незагруженный сосед и края мира по высоте дают false.
func (e *Engine) step(n node, d world.Direction) (node, bool) {
	dx, dy, dz := d.Offset()
	m := node{c: n.c, x: n.x + dx, y: n.y + dy, z: n.z + dz}

	if m.y < 0 || m.y >= world.SizeY {
		return node{}, false
	}
	if m.x >= 0 && m.x < world.SizeX && m.z >= 0 && m.z < world.SizeZ {
		return m, true
	}

	nb, ok := e.resolver.Neighbor(n.c.Coords, d)
	if !ok {
		return node{}, false
	}
	m.c = nb
	m.x = (m.x + world.SizeX) % world.SizeX
	m.z = (m.z + world.SizeZ) % world.SizeZ
	if invariant.Enabled && !world.InBounds(m.x, m.y, m.z) {
		invariant.Fail("переход через грань %v -> %v вне чанка", n.c.Coords, nb.Coords)
	}
	return m, true
}

// propagated значение, которое свет level передаёт соседу в направлении d.
// Небесный свет вниз идёт без затухания; 1 и 0 не распространяются.
func propagated(ch world.Channel, level uint8, d world.Direction) uint8 {
	if level <= 1 {
		return 0
	}
	if ch == world.ChannelSky && d == world.Down {
		return level
	}
	return level - 1
}

// floodFill распространяет свет канала ch из вокселей очереди.
// Значения только растут, каждый изменённый чанк помечается.
func (e *Engine) floodFill(ch world.Channel, queue []node, tracker *dirtyTracker) {
	pops := 0
	for head := 0; head < len(queue); head++ {
		n := queue[head]
		pops++

		light := n.get(ch)
		if light <= 1 {
			continue
		}

		for _, d := range world.Directions {
			m, ok := e.step(n, d)
			if !ok || !e.transparent(m) {
				continue
			}
			candidate := propagated(ch, light, d)
			if m.get(ch) < candidate {
				m.set(ch, candidate)
				tracker.mark(m.c)
				queue = append(queue, m)
			}
		}
	}

	e.metrics.addPops("fill", ch, pops)
	e.logger.Trace("fill %s: обработано %d вокселей", ch, pops)
}

// floodRemove гасит свет, который мог зависеть от вокселей-затравок,
// а затем восстанавливает его с освещённой границы погашенной области.
//
// Гасится с запасом: любой прозрачный сосед со значением меньше старого
// (или равным ему для неба вниз). Всё остальное освещённое вокруг
// погашенной области попадает во фронтир и заливается повторно.
func (e *Engine) floodRemove(ch world.Channel, seeds []removal, tracker *dirtyTracker) {
	queue := make([]removal, 0, len(seeds))
	for _, s := range seeds {
		if !e.meta.IsTransparentSolid(s.c.Block(s.x, s.y, s.z)) {
			s.set(ch, 0)
		}
		queue = append(queue, s)
	}

	var frontier []node
	pops := 0
	for head := 0; head < len(queue); head++ {
		r := queue[head]
		pops++
		tracker.mark(r.c)

		for _, d := range world.Directions {
			m, ok := e.step(r.node, d)
			if !ok {
				continue
			}
			v := m.get(ch)
			if v == 0 {
				continue
			}

			stale := v < r.old || (ch == world.ChannelSky && d == world.Down && v == r.old)
			if stale && e.transparent(m) {
				m.set(ch, 0)
				queue = append(queue, removal{node: m, old: v})
				continue
			}
			frontier = append(frontier, m)
		}
	}

	// Фронтир мог быть погашен позже через другой путь: перечитываем
	refill := frontier[:0]
	for _, m := range frontier {
		if m.get(ch) > 1 {
			refill = append(refill, m)
		}
	}

	e.metrics.addPops("remove", ch, pops)
	e.logger.Trace("remove %s: погашено %d, фронтир %d", ch, pops, len(refill))
	e.floodFill(ch, refill, tracker)
}

// removeSource гасит канал блоков источника n и всю цепочку вокселей,
// чьё значение ровно на 1 меньше значения предшественника. Повторной
// заливки нет: возвращаются освещённые соседи погашенной цепочки.
func (e *Engine) removeSource(n node, tracker *dirtyTracker) []node {
	ch := world.ChannelBlock
	queue := []removal{{node: n, old: n.get(ch)}}
	n.set(ch, 0)
	n.c.RemoveLightSource(n.x, n.y, n.z)

	var boundary []node
	for head := 0; head < len(queue); head++ {
		r := queue[head]
		tracker.mark(r.c)

		for _, d := range world.Directions {
			m, ok := e.step(r.node, d)
			if !ok {
				continue
			}
			v := m.get(ch)
			if v == 0 {
				continue
			}
			if r.old > 0 && v == r.old-1 && e.transparent(m) {
				m.set(ch, 0)
				queue = append(queue, removal{node: m, old: v})
				continue
			}
			boundary = append(boundary, m)
		}
	}

	live := boundary[:0]
	for _, m := range boundary {
		if m.get(ch) > 0 {
			live = append(live, m)
		}
	}

	e.metrics.addPops("remove_source", ch, len(queue))
	e.logger.Trace("remove source %v: погашено %d, граница %d", n.c.Coords, len(queue), len(live))
	return live
}
