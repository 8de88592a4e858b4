package vec

import "fmt"

// Vec3 представляет трехмерный вектор с целочисленными координатами
type Vec3 struct {
	X int
	Y int
	Z int
}

// ToChunkCoords возвращает координаты колонны-чанка, содержащей позицию.
// Сдвиг корректно округляет отрицательные координаты вниз.
func (v Vec3) ToChunkCoords() Vec2 {
	return Vec2{X: v.X >> 4, Y: v.Z >> 4} // Деление на 16
}

// LocalInChunk возвращает локальные координаты внутри чанка (Y не меняется)
func (v Vec3) LocalInChunk() Vec3 {
	return Vec3{X: v.X & 0xF, Y: v.Y, Z: v.Z & 0xF} // Модуль 16
}

// FromLocal собирает мировую позицию из координат чанка и локальной позиции
func FromLocal(chunk Vec2, x, y, z int) Vec3 {
	return Vec3{X: chunk.X<<4 + x, Y: y, Z: chunk.Y<<4 + z}
}

// Less задаёт порядок Y, X, Z — тот же, что у массивов чанка
func (v Vec3) Less(other Vec3) bool {
	if v.Y != other.Y {
		return v.Y < other.Y
	}
	if v.X != other.X {
		return v.X < other.X
	}
	return v.Z < other.Z
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
