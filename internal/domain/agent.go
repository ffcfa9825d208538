package domain

import "time"

// AgentStatus — производное состояние агента по возрасту heartbeat.
type AgentStatus string

const (
	StatusOnline  AgentStatus = "online"  // age < online_ttl
	StatusStale   AgentStatus = "stale"   // online_ttl <= age < offline_ttl
	StatusOffline AgentStatus = "offline" // age >= offline_ttl
)

// DefaultCluster используется, когда heartbeat не указал группировку.
const DefaultCluster = "default"

// AgentRecord — запись о присутствии агента в реестре.
// Поле Status никогда не хранится как истина: оно вычисляется на чтении
// из возраста LastSeen. Исключение — ручной StatusOverride (например,
// "draining"), который имеет приоритет до следующего heartbeat.
type AgentRecord struct {
	Name         string    `json:"name"` // Уникальный ключ (например, "research")
	Cluster      string    `json:"cluster"`
	Capabilities any       `json:"capabilities"` // Опаковый структурный payload
	Meta         any       `json:"meta"`
	LastSeen     time.Time `json:"last_seen"`

	Status         AgentStatus `json:"status"`                    // Производное, заполняется на чтении
	StatusOverride string      `json:"status_override,omitempty"` // Ручной приоритет, сбрасывается heartbeat-ом
}

// DeriveStatus применяет трехзонное TTL-правило к снапшоту записи.
// Границы: age == onlineTTL уже "stale", age == offlineTTL уже "offline".
func (r AgentRecord) DeriveStatus(now time.Time, onlineTTL, offlineTTL time.Duration) AgentRecord {
	if r.StatusOverride != "" {
		r.Status = AgentStatus(r.StatusOverride)
		return r
	}
	if r.LastSeen.IsZero() {
		r.Status = StatusOffline
		return r
	}
	age := now.Sub(r.LastSeen)
	switch {
	case age < onlineTTL:
		r.Status = StatusOnline
	case age < offlineTTL:
		r.Status = StatusStale
	default:
		r.Status = StatusOffline
	}
	return r
}
