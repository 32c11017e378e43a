package gateway

import (
	"go.uber.org/zap"

	"telegram-gateway/internal/infra/logger"
)

// Shape — какая из двух форм вызова внешнего клиента дала результат.
type Shape int

const (
	ShapeNone Shape = iota
	ShapePrimary
	ShapeFallback
)

func (s Shape) String() string {
	switch s {
	case ShapePrimary:
		return "primary"
	case ShapeFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Outcome — результат попытки из двух форм: успех первой, успех второй или
// общий провал (Shape == ShapeNone, Err != nil).
type Outcome[T any] struct {
	Value T
	Shape Shape
	Err   error
}

// FallbackError — обе формы вызова завершились ошибкой. Текст берётся из
// ошибки второй формы, первая доступна через errors.Is/As.
type FallbackError struct {
	Op       string
	Primary  error
	Fallback error
}

func (e *FallbackError) Error() string {
	return e.Fallback.Error()
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Fallback, e.Primary}
}

// tryShapes вызывает primary и только при его ошибке повторяет fallback ровно
// один раз. Ошибка primary пишется в лог и сохраняется в FallbackError.
func tryShapes[T any](op string, primary, fallback func() (T, error)) Outcome[T] {
	value, primaryErr := primary()
	if primaryErr == nil {
		return Outcome[T]{Value: value, Shape: ShapePrimary}
	}
	logger.Warn("primary call shape failed, retrying with fallback",
		zap.String("op", op), zap.Error(primaryErr))

	value, fallbackErr := fallback()
	if fallbackErr == nil {
		return Outcome[T]{Value: value, Shape: ShapeFallback}
	}
	return Outcome[T]{Err: &FallbackError{Op: op, Primary: primaryErr, Fallback: fallbackErr}}
}

// noValue приводит вызов без результата к форме, принимаемой tryShapes.
func noValue(call func() error) func() (struct{}, error) {
	return func() (struct{}, error) {
		return struct{}{}, call()
	}
}
