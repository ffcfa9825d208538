package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/harleysmodernlife/VERN/internal/consent"
	"github.com/harleysmodernlife/VERN/internal/domain"
)

// ConsentService Описываем, что нам нужно от движка согласий
type ConsentService interface {
	Evaluate(action domain.ActionKind, userID string, turnCtx map[string]any) consent.Verdict
	RecordDecision(ctx context.Context, requestID string, allowed bool, scope map[string]any, reason string) (domain.PolicyDecision, error)
	GetDecision(requestID string) *domain.PolicyDecision
}

type ConsentHandler struct {
	service ConsentService
}

func NewConsentHandler(s ConsentService) *ConsentHandler {
	return &ConsentHandler{service: s}
}

type evaluateRequest struct {
	Action  string         `json:"action"`
	UserID  string         `json:"user_id"`
	Context map[string]any `json:"context"`
}

// Evaluate проверяет, требует ли действие явного согласия.
// POST /v1/privacy/policy/evaluate
func (h *ConsentHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "body", "invalid JSON payload")
		return
	}
	if req.Action == "" {
		writeValidation(w, "action", "must not be empty")
		return
	}
	if req.UserID == "" {
		req.UserID = "default_user"
	}

	verdict := h.service.Evaluate(domain.ActionKind(req.Action), req.UserID, req.Context)
	if !verdict.Required {
		writeJSON(w, http.StatusOK, map[string]any{"policy_required": false})
		return
	}

	writeJSON(w, http.StatusOK, verdict.Prompt)
}

type decisionRequest struct {
	RequestID string         `json:"request_id"`
	Allowed   bool           `json:"allowed"`
	Scope     map[string]any `json:"scope"`
	Reason    string         `json:"reason"`
}

// Decide фиксирует решение пользователя по заявке.
// POST /v1/privacy/policy/decision
func (h *ConsentHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "body", "invalid JSON payload")
		return
	}
	if req.RequestID == "" {
		writeValidation(w, "request_id", "must not be empty")
		return
	}

	decision, err := h.service.RecordDecision(r.Context(), req.RequestID, req.Allowed, req.Scope, req.Reason)
	if err != nil {
		writeError(w, err, map[string]any{"request_id": req.RequestID})
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// GetDecision возвращает ранее записанное решение (с ленивым истечением).
// GET /v1/privacy/policy/decision/{request_id}
func (h *ConsentHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")

	decision := h.service.GetDecision(requestID)
	if decision == nil {
		writeError(w, domain.NewNotFoundError("decision", requestID), nil)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}
