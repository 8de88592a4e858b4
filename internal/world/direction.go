package world

// Direction одно из шести ортогональных направлений
type Direction uint8

const (
	Up    Direction = iota // +Y
	Down                   // -Y
	East                   // +X
	West                   // -X
	South                  // +Z
	North                  // -Z
)

// Directions фиксированный порядок обхода соседей: +Y, -Y, +X, -X, +Z, -Z.
// От него зависит выбор соседа при равных значениях света.
var Directions = [6]Direction{Up, Down, East, West, South, North}

var offsets = [6][3]int{
	Up:    {0, 1, 0},
	Down:  {0, -1, 0},
	East:  {1, 0, 0},
	West:  {-1, 0, 0},
	South: {0, 0, 1},
	North: {0, 0, -1},
}

// Offset возвращает смещение (dx, dy, dz) для направления
func (d Direction) Offset() (int, int, int) {
	o := offsets[d]
	return o[0], o[1], o[2]
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	return d ^ 1
}

// IsHorizontal true для направлений, которые могут пересечь границу чанка
func (d Direction) IsHorizontal() bool {
	return d >= East
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "+Y"
	case Down:
		return "-Y"
	case East:
		return "+X"
	case West:
		return "-X"
	case South:
		return "+Z"
	case North:
		return "-Z"
	default:
		return "?"
	}
}
