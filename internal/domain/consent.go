package domain

import "time"

// ActionKind — вид действия, извлеченный из контекста запроса.
type ActionKind string

// Закрытый набор чувствительных действий. Все остальное согласия не требует.
const (
	ActionFileRead  ActionKind = "file.read"
	ActionFileWrite ActionKind = "file.write"
	ActionWebFetch  ActionKind = "web.fetch"
	ActionEmailSend ActionKind = "email.send"
)

var sensitiveActions = map[ActionKind]struct{}{
	ActionFileRead:  {},
	ActionFileWrite: {},
	ActionWebFetch:  {},
	ActionEmailSend: {},
}

// IsSensitive сообщает, входит ли действие в закрытый набор.
func (a ActionKind) IsSensitive() bool {
	_, ok := sensitiveActions[a]
	return ok
}

// PendingConsentRequest — заявка, ожидающая решения пользователя.
// Создается только Evaluate для чувствительных действий и потребляется
// ровно один раз в RecordDecision.
type PendingConsentRequest struct {
	RequestID string         `json:"request_id"`
	UserID    string         `json:"user_id"`
	Action    ActionKind     `json:"action"`
	Context   map[string]any `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
}

// PolicyDecision — неизменяемое решение по заявке.
// ExpiresAt заполняется только для разрешений (decided_at + grant_ttl);
// отказ не истекает и хранится как свидетельство до GC.
type PolicyDecision struct {
	RequestID string         `json:"request_id"`
	UserID    string         `json:"user_id,omitempty"`
	Action    ActionKind     `json:"action"`
	Allowed   bool           `json:"allowed"`
	Reason    string         `json:"reason"`
	Scope     map[string]any `json:"scope"`
	DecidedAt time.Time      `json:"decided_at"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

// ConsentPrompt — payload, который шлюз возвращает вместо ответа агента,
// когда действие требует явного согласия.
type ConsentPrompt struct {
	PolicyRequired bool           `json:"policy_required"`
	Action         ActionKind     `json:"action"`
	Reason         string         `json:"reason"`
	RequestID      string         `json:"request_id"`
	SuggestedScope map[string]any `json:"suggested_scope"`
	ExpiresAt      *float64       `json:"expires_at"` // Всегда null на этапе запроса
	UserID         string         `json:"user_id,omitempty"`
}
