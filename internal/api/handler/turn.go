package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/harleysmodernlife/VERN/internal/domain"
)

// TurnService Описываем, что нам нужно от шлюза оркестрации
type TurnService interface {
	HandleTurn(ctx context.Context, req domain.TurnRequest) (domain.TurnResult, error)
}

type TurnHandler struct {
	service TurnService
}

func NewTurnHandler(s TurnService) *TurnHandler {
	return &TurnHandler{service: s}
}

// Respond обрабатывает один ход пользователя.
// POST /v1/orchestrator/respond
func (h *TurnHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req domain.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "body", "invalid JSON payload")
		return
	}
	if req.UserID == "" {
		req.UserID = "default_user"
	}

	result, err := h.service.HandleTurn(r.Context(), req)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	// Запрос согласия отдается как есть, обычный ответ — в конверте
	if result.Prompt != nil {
		writeJSON(w, http.StatusOK, result.Prompt)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"response": result.Response})
}
