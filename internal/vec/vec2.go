package vec

import "fmt"

// Vec2 представляет 2D координаты на горизонтальной сетке чанков.
// X соответствует оси X мира, Y хранит ось Z мира.
type Vec2 struct {
	X, Y int
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Less задаёт порядок сортировки: сначала по X, затем по Y
func (v Vec2) Less(other Vec2) bool {
	if v.X != other.X {
		return v.X < other.X
	}
	return v.Y < other.Y
}

// String возвращает строковое представление вида "x:y"
func (v Vec2) String() string {
	return fmt.Sprintf("%d:%d", v.X, v.Y)
}
