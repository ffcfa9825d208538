package audit

import "time"

// Известные типы событий аудита.
const (
	ActionRequestReceived  = "request_received"
	ActionResponseProduced = "response_produced"
	ActionPrivacyPrompt    = "privacy_prompt"
	ActionPrivacyDecision  = "privacy_decision"
)

// Entry — одно неизменяемое событие журнала аудита.
type Entry struct {
	Actor      string         `json:"actor"`       // Кто делал (например, "orchestrator")
	UserID     string         `json:"user_id"`     // От чьего имени
	ActionType string         `json:"action_type"` // Что произошло
	Payload    map[string]any `json:"payload"`     // С какими данными
	Status     string         `json:"status"`      // "success", "failed", "prompted", "allowed", "denied"
	Timestamp  time.Time      `json:"timestamp"`
}
