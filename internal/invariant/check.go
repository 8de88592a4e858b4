//go:build !lightrelease

// Package invariant содержит проверки внутренних инвариантов.
// В обычной сборке нарушение приводит к panic; сборка с тегом
// lightrelease превращает проверки в пустые вызовы.
//
// Вызов оборачивается в условие вместе с Enabled, чтобы аргументы
// сообщения не собирались на горячем пути:
//
//	if invariant.Enabled && value > max {
//		invariant.Fail("значение %d", value)
//	}
package invariant

import "fmt"

// Enabled сообщает, активны ли проверки в текущей сборке
const Enabled = true

// Fail сообщает о нарушенном инварианте
func Fail(format string, args ...interface{}) {
	panic(fmt.Sprintf("нарушен инвариант: "+format, args...))
}
