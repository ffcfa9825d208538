package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/harleysmodernlife/VERN/internal/connectors"
	"github.com/harleysmodernlife/VERN/internal/domain"
	"github.com/harleysmodernlife/VERN/internal/infra"

	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type ReliabilityWrapper struct {
	next        connectors.AgentInvoker
	cb          *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	attempts    uint
	callTimeout time.Duration
}

func NewReliabilityWrapper(next connectors.AgentInvoker, cfg infra.EngineConfig) *ReliabilityWrapper {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vern-invoker",
		MaxRequests: uint32(cfg.CBMaxRequests),
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	rps := cfg.DispatchRateLimit
	if rps <= 0 {
		rps = 100
	}
	burst := cfg.DispatchBurst
	if burst <= 0 {
		burst = 20
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	attempts := uint(cfg.DispatchRetries)
	if attempts == 0 {
		attempts = 3
	}
	callTimeout := cfg.DispatchTimeout
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}

	return &ReliabilityWrapper{
		next:        next,
		cb:          cb,
		limiter:     limiter,
		attempts:    attempts,
		callTimeout: callTimeout,
	}
}

func (w *ReliabilityWrapper) Invoke(ctx context.Context, req domain.TurnRequest) (domain.Result, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalRes domain.Result

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если исполнитель вернул ThrottleError (например, считал Retry-After заголовок)
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
			defer cancel()

			var callErr error
			finalRes, callErr = w.next.Invoke(tCtx, req)
			return callErr
		})

		return finalRes, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.(domain.Result), nil
}
