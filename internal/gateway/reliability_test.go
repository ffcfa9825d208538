package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harleysmodernlife/VERN/internal/connectors"
	"github.com/harleysmodernlife/VERN/internal/domain"
	"github.com/harleysmodernlife/VERN/internal/infra"
)

type scriptedInvoker struct {
	mu    sync.Mutex
	calls int
	// errs[i] — ошибка на i-м вызове; за пределами скрипта — успех
	errs []error
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req domain.TurnRequest) (domain.Result, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	s.mu.Unlock()

	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	return domain.Immediate{Value: "ok"}, nil
}

func (s *scriptedInvoker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testEngineConfig() infra.EngineConfig {
	return infra.EngineConfig{
		DispatchRateLimit: 1000,
		DispatchBurst:     100,
		DispatchTimeout:   time.Second,
		DispatchRetries:   3,
		CBMaxRequests:     3,
		CBInterval:        5 * time.Second,
		CBTimeout:         30 * time.Second,
	}
}

func TestReliabilityPassthrough(t *testing.T) {
	next := &scriptedInvoker{}
	w := NewReliabilityWrapper(next, testEngineConfig())

	res, err := w.Invoke(context.Background(), domain.TurnRequest{UserInput: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	imm, ok := res.(domain.Immediate)
	if !ok || imm.Value != "ok" {
		t.Errorf("result mangled by wrapper: %#v", res)
	}
	if next.callCount() != 1 {
		t.Errorf("healthy call must not be retried, calls = %d", next.callCount())
	}
}

func TestReliabilityRetriesTransientFailure(t *testing.T) {
	next := &scriptedInvoker{errs: []error{errors.New("flaky"), errors.New("flaky")}}
	w := NewReliabilityWrapper(next, testEngineConfig())

	res, err := w.Invoke(context.Background(), domain.TurnRequest{UserInput: "hi"})
	if err != nil {
		t.Fatalf("transient failure must be retried away: %v", err)
	}
	if imm, ok := res.(domain.Immediate); !ok || imm.Value != "ok" {
		t.Errorf("result after retries: %#v", res)
	}
	if next.callCount() != 3 {
		t.Errorf("calls = %d, want 3 (two failures + success)", next.callCount())
	}
}

func TestReliabilityThrottleDelayHonored(t *testing.T) {
	throttle := &connectors.ThrottleError{RetryAfter: 30 * time.Millisecond, Cause: errors.New("429")}
	next := &scriptedInvoker{errs: []error{throttle}}
	w := NewReliabilityWrapper(next, testEngineConfig())

	start := time.Now()
	if _, err := w.Invoke(context.Background(), domain.TurnRequest{UserInput: "hi"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Retry-After ignored: elapsed %v", elapsed)
	}
}
