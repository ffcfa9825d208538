package consent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harleysmodernlife/VERN/internal/audit"
	"github.com/harleysmodernlife/VERN/internal/domain"
	"go.uber.org/zap"
)

// journalAuditor складывает записи в память для проверок.
type journalAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (j *journalAuditor) Log(entry audit.Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journalAuditor) byType(actionType string) []audit.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []audit.Entry
	for _, e := range j.entries {
		if e.ActionType == actionType {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(t *testing.T, reuseGrants bool) (*Engine, *time.Time) {
	t.Helper()
	e := New(600*time.Second, reuseGrants, nil, nil, zap.NewNop())

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }
	return e, &clock
}

func TestEvaluateNonSensitive(t *testing.T) {
	e, _ := newTestEngine(t, false)

	v := e.Evaluate("chat", "user-1", nil)
	if v.Required || v.Prompt != nil {
		t.Fatalf("non-sensitive action must not require consent: %+v", v)
	}
	if e.PendingCount() != 0 {
		t.Error("non-sensitive evaluate must not create state")
	}
}

func TestEvaluateSensitiveBuildsPrompt(t *testing.T) {
	e, _ := newTestEngine(t, false)

	v := e.Evaluate(domain.ActionEmailSend, "user-1", map[string]any{"to": "boss@example.com"})
	if !v.Required || v.Prompt == nil {
		t.Fatal("sensitive action must require consent")
	}

	p := v.Prompt
	if !p.PolicyRequired {
		t.Error("policy_required must be true")
	}
	if p.Reason != "Action 'email.send' requires explicit user consent." {
		t.Errorf("unexpected reason: %q", p.Reason)
	}
	if p.RequestID == "" {
		t.Error("request_id must be populated")
	}
	if p.ExpiresAt != nil {
		t.Error("expires_at must be null at prompt stage")
	}
	scope := p.SuggestedScope
	if scope["action"] != "email.send" || scope["duration"] != "session" {
		t.Errorf("unexpected suggested_scope: %v", scope)
	}
	constraints, ok := scope["constraints"].(map[string]any)
	if !ok || constraints["to"] != "boss@example.com" {
		t.Errorf("context not carried into constraints: %v", scope["constraints"])
	}

	// Каждый Evaluate — свежая заявка со своим request_id
	v2 := e.Evaluate(domain.ActionEmailSend, "user-1", nil)
	if v2.Prompt.RequestID == p.RequestID {
		t.Error("request_id must be unique per evaluate")
	}
	if e.PendingCount() != 2 {
		t.Errorf("pending = %d, want 2", e.PendingCount())
	}
}

func TestDecisionLifecycle(t *testing.T) {
	e, clock := newTestEngine(t, false)
	ctx := context.Background()

	v := e.Evaluate(domain.ActionFileWrite, "user-1", nil)
	id := v.Prompt.RequestID

	d, err := e.RecordDecision(ctx, id, true, map[string]any{"path": "/tmp"}, "user approved")
	if err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if !d.Allowed || d.Action != domain.ActionFileWrite || d.UserID != "user-1" {
		t.Errorf("decision fields wrong: %+v", d)
	}
	if d.ExpiresAt == nil || !d.ExpiresAt.Equal(clock.Add(600*time.Second)) {
		t.Errorf("grant expiry must be decided_at + ttl, got %v", d.ExpiresAt)
	}
	if e.PendingCount() != 0 {
		t.Error("pending request must be consumed")
	}

	// Повторное решение по тому же id — not found, решение не фабрикуется
	if _, err := e.RecordDecision(ctx, id, false, nil, ""); !domain.IsNotFound(err) {
		t.Fatalf("double decision: got %v, want not found", err)
	}

	if got := e.GetDecision(id); got == nil || !got.Allowed {
		t.Fatalf("stored decision must be readable: %+v", got)
	}

	// Ленивое истечение: после ttl решение невидимо, но не удалено
	*clock = clock.Add(601 * time.Second)
	if got := e.GetDecision(id); got != nil {
		t.Errorf("expired grant must be invisible, got %+v", got)
	}
	if n := e.ClearExpired(); n != 1 {
		t.Errorf("sweep removed %d, want 1", n)
	}
}

func TestDecisionUnknownRequest(t *testing.T) {
	e, _ := newTestEngine(t, false)

	_, err := e.RecordDecision(context.Background(), "no-such-id", true, nil, "")
	if !domain.IsNotFound(err) {
		t.Fatalf("unknown request: got %v, want not found", err)
	}
}

func TestDenialNeverExpires(t *testing.T) {
	e, clock := newTestEngine(t, false)
	ctx := context.Background()

	v := e.Evaluate(domain.ActionWebFetch, "user-1", nil)
	d, err := e.RecordDecision(ctx, v.Prompt.RequestID, false, nil, "user denied")
	if err != nil {
		t.Fatal(err)
	}
	if d.ExpiresAt != nil {
		t.Errorf("denial must not carry expiry: %v", d.ExpiresAt)
	}

	*clock = clock.Add(24 * time.Hour)
	if got := e.GetDecision(v.Prompt.RequestID); got == nil || got.Allowed {
		t.Errorf("denial must survive as evidence: %+v", got)
	}
	if n := e.ClearExpired(); n != 0 {
		t.Errorf("sweep must retain denials, removed %d", n)
	}
}

func TestConcurrentDecisionSingleWinner(t *testing.T) {
	e, _ := newTestEngine(t, false)
	ctx := context.Background()

	v := e.Evaluate(domain.ActionFileRead, "user-1", nil)
	id := v.Prompt.RequestID

	const goroutines = 16
	var wg sync.WaitGroup
	wins := make(chan domain.PolicyDecision, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(allowed bool) {
			defer wg.Done()
			if d, err := e.RecordDecision(ctx, id, allowed, nil, ""); err == nil {
				wins <- d
			}
		}(i%2 == 0)
	}
	wg.Wait()
	close(wins)

	var winners []domain.PolicyDecision
	for d := range wins {
		winners = append(winners, d)
	}
	if len(winners) != 1 {
		t.Fatalf("exactly one decision must win, got %d", len(winners))
	}

	got := e.GetDecision(id)
	if got == nil || got.Allowed != winners[0].Allowed {
		t.Errorf("stored decision diverges from winner: %+v vs %+v", got, winners[0])
	}
}

func TestReuseGrantsBranch(t *testing.T) {
	ctx := context.Background()

	// Выключено (дефолт): действующее разрешение не переиспользуется
	e, _ := newTestEngine(t, false)
	v := e.Evaluate(domain.ActionFileRead, "user-1", nil)
	if _, err := e.RecordDecision(ctx, v.Prompt.RequestID, true, nil, ""); err != nil {
		t.Fatal(err)
	}
	if v2 := e.Evaluate(domain.ActionFileRead, "user-1", nil); !v2.Required {
		t.Error("with reuse off, every evaluate must prompt again")
	}

	// Включено: живое разрешение той же пары (user, action) гасит prompt
	e2, clock := newTestEngine(t, true)
	v = e2.Evaluate(domain.ActionFileRead, "user-1", nil)
	if _, err := e2.RecordDecision(ctx, v.Prompt.RequestID, true, nil, ""); err != nil {
		t.Fatal(err)
	}
	if v2 := e2.Evaluate(domain.ActionFileRead, "user-1", nil); v2.Required {
		t.Error("live grant must short-circuit the prompt")
	}
	// Другой пользователь или действие — prompt остается
	if v2 := e2.Evaluate(domain.ActionFileRead, "user-2", nil); !v2.Required {
		t.Error("grant must not leak to another user")
	}
	if v2 := e2.Evaluate(domain.ActionFileWrite, "user-1", nil); !v2.Required {
		t.Error("grant must not leak to another action")
	}
	// После истечения разрешения prompt возвращается
	*clock = clock.Add(601 * time.Second)
	if v2 := e2.Evaluate(domain.ActionFileRead, "user-1", nil); !v2.Required {
		t.Error("expired grant must not be reused")
	}
}

func TestDecisionWritesAuditEntry(t *testing.T) {
	journal := &journalAuditor{}
	e := New(600*time.Second, false, nil, journal, zap.NewNop())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }
	ctx := context.Background()

	v := e.Evaluate(domain.ActionEmailSend, "user-1", nil)
	if _, err := e.RecordDecision(ctx, v.Prompt.RequestID, true, map[string]any{"duration": "session"}, "looks fine"); err != nil {
		t.Fatal(err)
	}

	entries := journal.byType(audit.ActionPrivacyDecision)
	if len(entries) != 1 {
		t.Fatalf("privacy_decision audit entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.UserID != "user-1" || entry.Status != "allowed" {
		t.Errorf("unexpected entry attribution: user=%q status=%q", entry.UserID, entry.Status)
	}
	if entry.Payload["request_id"] != v.Prompt.RequestID {
		t.Errorf("payload request_id = %v, want %q", entry.Payload["request_id"], v.Prompt.RequestID)
	}
	if entry.Payload["action"] != "email.send" || entry.Payload["allowed"] != true {
		t.Errorf("payload must carry action and verdict: %v", entry.Payload)
	}
	wantExpiry := float64(clock.Add(600*time.Second).UnixNano()) / 1e9
	if entry.Payload["expires_at"] != wantExpiry {
		t.Errorf("payload expires_at = %v, want %v", entry.Payload["expires_at"], wantExpiry)
	}

	// Отказ — статус denied и без expires_at
	v = e.Evaluate(domain.ActionEmailSend, "user-1", nil)
	if _, err := e.RecordDecision(ctx, v.Prompt.RequestID, false, nil, "user denied"); err != nil {
		t.Fatal(err)
	}
	entries = journal.byType(audit.ActionPrivacyDecision)
	if len(entries) != 2 {
		t.Fatalf("privacy_decision audit entries = %d, want 2", len(entries))
	}
	if entries[1].Status != "denied" {
		t.Errorf("denial status = %q, want denied", entries[1].Status)
	}
	if _, ok := entries[1].Payload["expires_at"]; ok {
		t.Error("denial entry must not carry expires_at")
	}

	// Неизвестный request_id записи не порождает
	if _, err := e.RecordDecision(ctx, "no-such-id", true, nil, ""); !domain.IsNotFound(err) {
		t.Fatalf("unknown request: got %v, want not found", err)
	}
	if got := len(journal.byType(audit.ActionPrivacyDecision)); got != 2 {
		t.Errorf("failed decision must not reach the journal, entries = %d", got)
	}
}

func TestEvaluateDefaultsUser(t *testing.T) {
	e, _ := newTestEngine(t, false)
	ctx := context.Background()

	v := e.Evaluate(domain.ActionFileWrite, "", nil)
	if !v.Required || v.Prompt == nil {
		t.Fatal("sensitive action must require consent")
	}
	if v.Prompt.UserID != "default_user" {
		t.Errorf("prompt user_id = %q, want default_user", v.Prompt.UserID)
	}

	d, err := e.RecordDecision(ctx, v.Prompt.RequestID, true, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.UserID != "default_user" {
		t.Errorf("decision user_id = %q, want default_user", d.UserID)
	}
}
