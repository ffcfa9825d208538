package consent

/*
Пакет consent реализует движок согласий: закрытый набор чувствительных
действий, жизненный цикл Pending -> Decided(Allowed|Denied) и ленивое
истечение разрешений. Обе мапы защищены одним мьютексом; гонка двух
RecordDecision по одному request_id разрешается атомарным find-and-remove —
побеждает ровно один, второй получает not-found.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harleysmodernlife/VERN/internal/audit"
	"github.com/harleysmodernlife/VERN/internal/domain"
	"github.com/harleysmodernlife/VERN/internal/infra"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Verdict — результат Evaluate: либо согласие не требуется, либо
// заполненный prompt для пользователя.
type Verdict struct {
	Required bool
	Prompt   *domain.ConsentPrompt
}

type Engine struct {
	mu        sync.Mutex
	pending   map[string]domain.PendingConsentRequest
	decisions map[string]domain.PolicyDecision

	grantTTL time.Duration
	// reuseGrants включает явную ветку "сначала проверь действующее
	// разрешение для той же пары (user, action)". По умолчанию выключено:
	// переспрашиваем каждый раз.
	reuseGrants bool

	rdb     *redis.Client // nil допустим: без трансляции решений
	auditor audit.Auditor // nil допустим: решения не пишутся в журнал
	logger  *zap.Logger

	now func() time.Time
}

func New(grantTTL time.Duration, reuseGrants bool, rdb *redis.Client, auditor audit.Auditor, logger *zap.Logger) *Engine {
	if grantTTL <= 0 {
		grantTTL = 600 * time.Second
	}
	return &Engine{
		pending:     make(map[string]domain.PendingConsentRequest),
		decisions:   make(map[string]domain.PolicyDecision),
		grantTTL:    grantTTL,
		reuseGrants: reuseGrants,
		rdb:         rdb,
		auditor:     auditor,
		logger:      logger.Named("consent"),
		now:         time.Now,
	}
}

// Evaluate проверяет действие. Нечувствительное действие не создает
// никакого состояния. Чувствительное — регистрирует pending-заявку
// со свежим request_id и возвращает prompt.
func (e *Engine) Evaluate(action domain.ActionKind, userID string, turnCtx map[string]any) Verdict {
	if !action.IsSensitive() {
		return Verdict{Required: false}
	}
	if userID == "" {
		userID = "default_user"
	}

	if e.reuseGrants {
		if d := e.findLiveGrant(userID, action); d != nil {
			e.logger.Debug("existing grant reused",
				zap.String("user_id", userID), zap.String("action", string(action)))
			return Verdict{Required: false}
		}
	}

	if turnCtx == nil {
		turnCtx = map[string]any{}
	}

	requestID := uuid.New().String()
	prompt := &domain.ConsentPrompt{
		PolicyRequired: true,
		Action:         action,
		Reason:         fmt.Sprintf("Action '%s' requires explicit user consent.", action),
		RequestID:      requestID,
		SuggestedScope: map[string]any{
			"action":      string(action),
			"duration":    "session",
			"constraints": turnCtx,
		},
		ExpiresAt: nil,
		UserID:    userID,
	}

	e.mu.Lock()
	e.pending[requestID] = domain.PendingConsentRequest{
		RequestID: requestID,
		UserID:    userID,
		Action:    action,
		Context:   turnCtx,
		CreatedAt: e.now(),
	}
	e.mu.Unlock()

	return Verdict{Required: true, Prompt: prompt}
}

// RecordDecision потребляет pending-заявку ровно один раз и фиксирует
// неизменяемое решение. Неизвестный или уже потребленный request_id —
// not-found; решение с action="unknown" не фабрикуется никогда.
func (e *Engine) RecordDecision(ctx context.Context, requestID string, allowed bool, scope map[string]any, reason string) (domain.PolicyDecision, error) {
	e.mu.Lock()
	info, ok := e.pending[requestID]
	if !ok {
		e.mu.Unlock()
		return domain.PolicyDecision{}, domain.NewNotFoundError("consent request", requestID)
	}
	delete(e.pending, requestID)

	decidedAt := e.now()
	var expiresAt *time.Time
	if allowed {
		t := decidedAt.Add(e.grantTTL)
		expiresAt = &t
	}

	decision := domain.PolicyDecision{
		RequestID: requestID,
		UserID:    info.UserID,
		Action:    info.Action,
		Allowed:   allowed,
		Reason:    reason,
		Scope:     scope,
		DecidedAt: decidedAt,
		ExpiresAt: expiresAt,
	}
	e.decisions[requestID] = decision
	e.mu.Unlock()

	e.publishDecision(ctx, decision)
	e.auditDecision(decision)
	return decision, nil
}

// auditDecision кладет зафиксированное решение в журнал одним
// неизменяемым событием.
func (e *Engine) auditDecision(d domain.PolicyDecision) {
	if e.auditor == nil {
		return
	}
	status := "denied"
	if d.Allowed {
		status = "allowed"
	}
	payload := map[string]any{
		"request_id": d.RequestID,
		"action":     string(d.Action),
		"allowed":    d.Allowed,
		"scope":      d.Scope,
		"reason":     d.Reason,
	}
	if d.ExpiresAt != nil {
		payload["expires_at"] = float64(d.ExpiresAt.UnixNano()) / 1e9
	}
	e.auditor.Log(audit.Entry{
		Actor:      "user",
		UserID:     d.UserID,
		ActionType: audit.ActionPrivacyDecision,
		Payload:    payload,
		Status:     status,
	})
}

// GetDecision возвращает решение, либо nil если оно неизвестно или
// разрешение лениво истекло. Запись при этом не удаляется — этим
// занимается sweeper.
func (e *Engine) GetDecision(requestID string) *domain.PolicyDecision {
	e.mu.Lock()
	d, ok := e.decisions[requestID]
	e.mu.Unlock()

	if !ok {
		return nil
	}
	if d.ExpiresAt != nil && e.now().After(*d.ExpiresAt) {
		return nil
	}
	return &d
}

// ClearExpired выметает решения с истекшим expires_at. Отказы без
// expiry не трогает: они хранятся как свидетельство.
func (e *Engine) ClearExpired() int {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, d := range e.decisions {
		if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
			delete(e.decisions, id)
			removed++
		}
	}
	return removed
}

// PendingCount возвращает число неотвеченных заявок.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// RunSweeper — фоновая уборка истекших решений вместо ручного вызова
// ClearExpired оператором. Останавливается по контексту.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.ClearExpired(); n > 0 {
				e.logger.Debug("expired consent decisions swept", zap.Int("count", n))
			}
		}
	}
}

// findLiveGrant ищет действующее разрешение для пары (user, action).
func (e *Engine) findLiveGrant(userID string, action domain.ActionKind) *domain.PolicyDecision {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range e.decisions {
		if !d.Allowed || d.UserID != userID || d.Action != action {
			continue
		}
		if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
			continue
		}
		return &d
	}
	return nil
}

// publishDecision транслирует решение соседним инстансам и дашборду.
// Best effort: Redis не хранит истину, сбой — только warning.
func (e *Engine) publishDecision(ctx context.Context, d domain.PolicyDecision) {
	if e.rdb == nil {
		return
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := e.rdb.Publish(ctx, infra.RedisChanConsentDecisions, payload).Err(); err != nil {
		e.logger.Warn("decision signal delivery failed",
			zap.String("request_id", d.RequestID), zap.Error(err))
	}
}
