package connectors

import (
	"context"
	"fmt"
	"math/rand/v2" // Используем v2 для Go 1.25
	"strings"
	"time"

	"github.com/harleysmodernlife/VERN/internal/domain"
)

// MockAssistantInvoker имитирует персонального ассистента.
// Форма ответа зависит от инструмента, чтобы прогонять все ветки
// нормализации: обычное значение, потоки и отложенный вызов.
type MockAssistantInvoker struct{}

func (c *MockAssistantInvoker) Invoke(ctx context.Context, req domain.TurnRequest) (domain.Result, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch req.Context.Tool.Name {
	case "unstable.service":
		return nil, fmt.Errorf("service internal error")

	case "stream.notes":
		// Ленивый генератор: значение собирается по кускам
		parts := strings.Fields(req.UserInput)
		return domain.Stream{Seq: func(yield func(any) bool) {
			for _, p := range parts {
				if !yield(p + " ") {
					return
				}
			}
		}}, nil

	case "async.digest":
		ch := make(chan any, 2)
		go func() {
			defer close(ch)
			ch <- "digest: "
			ch <- req.UserInput
		}()
		return domain.AsyncStream{Ch: ch}, nil

	case "deferred.summary":
		return domain.Deferred{Await: func(ctx context.Context) (domain.Result, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			return domain.Immediate{Value: "summary ready"}, nil
		}}, nil

	default:
		return domain.Immediate{Value: fmt.Sprintf("VERN: processed %q", req.UserInput)}, nil
	}
}
