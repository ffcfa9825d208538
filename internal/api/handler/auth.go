package handler

import (
	"encoding/json"
	"net/http"

	"github.com/harleysmodernlife/VERN/internal/domain"
	"github.com/harleysmodernlife/VERN/internal/infra/auth"
)

type AuthHandler struct {
	service *auth.Service
}

func NewAuthHandler(s *auth.Service) *AuthHandler {
	return &AuthHandler{service: s}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "body", "invalid JSON payload")
		return
	}

	resp, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		// не уточняем, что именно неверно (логин или пароль) для защиты от перебора
		w.Header().Set("x-error-code", codeUnauthorize)
		writeJSON(w, http.StatusUnauthorized, errorEnvelope{
			OK:        false,
			ErrorCode: codeUnauthorize,
			Message:   "invalid credentials",
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
