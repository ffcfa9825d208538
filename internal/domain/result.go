package domain

import (
	"context"
	"iter"
)

// Result — закрытая сумма форм, которые может вернуть обработчик агента.
// Шлюз больше не прощупывает форму значения в рантайме: каждый инвокер
// обязан завернуть свой результат в один из четырех вариантов.
type Result interface {
	isResult()
}

// Immediate — обычное готовое значение.
type Immediate struct {
	Value any
}

// Stream — синхронная ленивая последовательность, вычитывается целиком.
type Stream struct {
	Seq iter.Seq[any]
}

// AsyncStream — асинхронная ленивая последовательность (канал закрывает
// производитель). Бесконечные последовательности — ответственность вызывающего.
type AsyncStream struct {
	Ch <-chan any
}

// Deferred — еще не завершенное асинхронное вычисление.
type Deferred struct {
	Await func(ctx context.Context) (Result, error)
}

func (Immediate) isResult()   {}
func (Stream) isResult()      {}
func (AsyncStream) isResult() {}
func (Deferred) isResult()    {}
