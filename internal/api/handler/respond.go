package handler

import (
	"encoding/json"
	"net/http"

	"github.com/harleysmodernlife/VERN/internal/domain"
)

// Единый конверт ошибки API. Код дублируется в заголовке x-error-code,
// чтобы клиенты могли ветвиться без разбора тела.
type errorEnvelope struct {
	OK        bool           `json:"ok"`
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

const (
	codeValidation  = "VALIDATION_ERROR"
	codeNotFound    = "NOT_FOUND"
	codeStorage     = "STORAGE_UNAVAILABLE"
	codeInternal    = "INTERNAL_ERROR"
	codeUnauthorize = "UNAUTHORIZED"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError маппит таксономию доменных ошибок на HTTP статусы.
func writeError(w http.ResponseWriter, err error, details map[string]any) {
	code := codeInternal
	status := http.StatusInternalServerError

	switch {
	case domain.IsValidation(err):
		code = codeValidation
		status = http.StatusBadRequest
	case domain.IsNotFound(err):
		code = codeNotFound
		status = http.StatusNotFound
	case domain.IsStorage(err):
		code = codeStorage
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("x-error-code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		OK:        false,
		ErrorCode: code,
		Message:   err.Error(),
		Details:   details,
	})
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeError(w, domain.NewValidationError(field, msg), nil)
}
