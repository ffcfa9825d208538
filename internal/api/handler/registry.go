package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/harleysmodernlife/VERN/internal/domain"
)

// RegistryService Описываем, что нам нужно от реестра присутствия
type RegistryService interface {
	Heartbeat(ctx context.Context, name, cluster string, capabilities, meta any) (domain.AgentRecord, error)
	Get(ctx context.Context, name string) (domain.AgentRecord, error)
	List(ctx context.Context, cluster string) []domain.AgentRecord
	SetStatus(ctx context.Context, name, status string) error
	Delete(ctx context.Context, name string) error
	Clear(ctx context.Context) error
	Degraded() bool
}

type RegistryHandler struct {
	service RegistryService
}

func NewRegistryHandler(s RegistryService) *RegistryHandler {
	return &RegistryHandler{service: s}
}

// agentView — представление записи наружу: last_seen в epoch-секундах.
type agentView struct {
	Name           string  `json:"name"`
	Cluster        string  `json:"cluster"`
	Status         string  `json:"status"`
	Capabilities   any     `json:"capabilities"`
	LastSeen       float64 `json:"last_seen"`
	Meta           any     `json:"meta"`
	StatusOverride string  `json:"status_override,omitempty"`
}

func toView(rec domain.AgentRecord) agentView {
	v := agentView{
		Name:           rec.Name,
		Cluster:        rec.Cluster,
		Status:         string(rec.Status),
		Capabilities:   rec.Capabilities,
		Meta:           rec.Meta,
		StatusOverride: rec.StatusOverride,
	}
	if !rec.LastSeen.IsZero() {
		v.LastSeen = float64(rec.LastSeen.UnixNano()) / 1e9
	}
	return v
}

type heartbeatRequest struct {
	Name         string          `json:"name"`
	Cluster      string          `json:"cluster"`
	Capabilities json.RawMessage `json:"capabilities"`
	Meta         json.RawMessage `json:"meta"`
}

// Heartbeat принимает сигнал присутствия.
// POST /v1/agents/heartbeat
func (h *RegistryHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "body", "invalid JSON payload")
		return
	}

	rec, err := h.service.Heartbeat(r.Context(), req.Name, req.Cluster,
		decodeOpaque(req.Capabilities, true), decodeOpaque(req.Meta, false))
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"agent":    toView(rec),
		"degraded": h.service.Degraded(),
	})
}

// decodeOpaque терпимо разбирает capabilities/meta: структурные литералы
// проходят как есть, строка с JSON внутри разворачивается, прочие строки
// для capabilities режутся по запятым, для meta отбрасываются.
func decodeOpaque(raw json.RawMessage, commaSplit bool) any {
	if len(raw) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}

	s, ok := v.(string)
	if !ok {
		return v
	}

	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var nested any
		if err := json.Unmarshal([]byte(trimmed), &nested); err == nil {
			return nested
		}
	}

	if !commaSplit {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// List возвращает снимок реестра с производными статусами.
// GET /v1/agents?cluster=...
func (h *RegistryHandler) List(w http.ResponseWriter, r *http.Request) {
	cluster := r.URL.Query().Get("cluster")

	records := h.service.List(r.Context(), cluster)
	views := make([]agentView, 0, len(records))
	for _, rec := range records {
		views = append(views, toView(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agents":   views,
		"count":    len(views),
		"degraded": h.service.Degraded(),
	})
}

// Get возвращает одну запись или 404.
// GET /v1/agents/{name}
func (h *RegistryHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rec, err := h.service.Get(r.Context(), name)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	// Запись остается плоской, degraded добавляется рядом с ее полями —
	// как на list и heartbeat.
	writeJSON(w, http.StatusOK, struct {
		agentView
		Degraded bool `json:"degraded"`
	}{toView(rec), h.service.Degraded()})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus вручную перекрывает производный статус до следующего heartbeat.
// POST /v1/agents/{name}/status
func (h *RegistryHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "body", "invalid JSON payload")
		return
	}
	if req.Status == "" {
		writeValidation(w, "status", "must not be empty")
		return
	}

	if err := h.service.SetStatus(r.Context(), name, req.Status); err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": name, "status": req.Status})
}

// Delete снимает агента с учета.
// DELETE /v1/agents/{name}
func (h *RegistryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.service.Delete(r.Context(), name); err != nil {
		writeError(w, err, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clear обнуляет реестр (инструмент тестовых стендов).
// POST /v1/agents/clear
func (h *RegistryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context()); err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
