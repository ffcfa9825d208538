package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/harleysmodernlife/VERN/internal/audit"
)

// AuditReader Описываем, что нам нужно от хранилища журнала
type AuditReader interface {
	FetchEntries(ctx context.Context, actor, actionType string, limit int) ([]audit.Entry, error)
}

type AuditHandler struct {
	reader AuditReader
}

func NewAuditHandler(r AuditReader) *AuditHandler {
	return &AuditHandler{reader: r}
}

// GetLogs возвращает список событий аудита с поддержкой фильтрации
// GET /v1/audit?actor=...&action_type=...&limit=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	actionType := r.URL.Query().Get("action_type")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.reader.FetchEntries(r.Context(), actor, actionType, limit)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
