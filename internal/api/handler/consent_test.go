package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harleysmodernlife/VERN/internal/consent"
	"go.uber.org/zap"
)

func newConsentAPI(t *testing.T) (*chi.Mux, *consent.Engine) {
	t.Helper()
	engine := consent.New(600*time.Second, false, nil, nil, zap.NewNop())
	h := NewConsentHandler(engine)

	r := chi.NewRouter()
	r.Post("/v1/privacy/policy/evaluate", h.Evaluate)
	r.Post("/v1/privacy/policy/decision", h.Decide)
	r.Get("/v1/privacy/policy/decision/{request_id}", h.GetDecision)
	return r, engine
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestConsentEvaluateFlow(t *testing.T) {
	r, _ := newConsentAPI(t)

	// Нечувствительное действие — короткий ответ
	rr := do(t, r, http.MethodPost, "/v1/privacy/policy/evaluate", `{"action":"chat","user_id":"u1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var short map[string]any
	json.Unmarshal(rr.Body.Bytes(), &short)
	if short["policy_required"] != false {
		t.Errorf("non-sensitive: %v", short)
	}

	// Чувствительное — полный prompt
	rr = do(t, r, http.MethodPost, "/v1/privacy/policy/evaluate",
		`{"action":"email.send","user_id":"u1","context":{"to":"x@y.z"}}`)
	var prompt map[string]any
	json.Unmarshal(rr.Body.Bytes(), &prompt)
	if prompt["policy_required"] != true || prompt["request_id"] == "" {
		t.Fatalf("sensitive prompt: %v", prompt)
	}
	if prompt["expires_at"] != nil {
		t.Errorf("expires_at must be null at prompt stage: %v", prompt["expires_at"])
	}

	requestID := prompt["request_id"].(string)

	// Решение по заявке
	rr = do(t, r, http.MethodPost, "/v1/privacy/policy/decision",
		`{"request_id":"`+requestID+`","allowed":true,"scope":{"duration":"session"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("decision status = %d: %s", rr.Code, rr.Body.String())
	}
	var decision map[string]any
	json.Unmarshal(rr.Body.Bytes(), &decision)
	if decision["allowed"] != true || decision["expires_at"] == nil {
		t.Errorf("decision body: %v", decision)
	}

	// Чтение решения
	rr = do(t, r, http.MethodGet, "/v1/privacy/policy/decision/"+requestID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get decision status = %d", rr.Code)
	}
}

func TestConsentDecisionValidation(t *testing.T) {
	r, _ := newConsentAPI(t)

	// Без request_id — 400, а не выдуманное решение
	rr := do(t, r, http.MethodPost, "/v1/privacy/policy/decision", `{"allowed":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing request_id: status = %d, want 400", rr.Code)
	}

	// Неизвестный request_id — 404
	rr = do(t, r, http.MethodPost, "/v1/privacy/policy/decision", `{"request_id":"nope","allowed":true}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown request_id: status = %d, want 404", rr.Code)
	}

	// Пустое действие — 400
	rr = do(t, r, http.MethodPost, "/v1/privacy/policy/evaluate", `{"user_id":"u1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty action: status = %d, want 400", rr.Code)
	}

	// Неизвестное решение — 404
	rr = do(t, r, http.MethodGet, "/v1/privacy/policy/decision/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing decision: status = %d, want 404", rr.Code)
	}
}

func TestConsentEvaluateDefaultsUser(t *testing.T) {
	r, _ := newConsentAPI(t)

	// Без user_id заявка приписывается default_user
	rr := do(t, r, http.MethodPost, "/v1/privacy/policy/evaluate", `{"action":"file.write"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var prompt map[string]any
	json.Unmarshal(rr.Body.Bytes(), &prompt)
	if prompt["user_id"] != "default_user" {
		t.Errorf("prompt user_id = %v, want default_user", prompt["user_id"])
	}

	requestID, _ := prompt["request_id"].(string)
	rr = do(t, r, http.MethodPost, "/v1/privacy/policy/decision",
		`{"request_id":"`+requestID+`","allowed":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("decision status = %d: %s", rr.Code, rr.Body.String())
	}
	var decision map[string]any
	json.Unmarshal(rr.Body.Bytes(), &decision)
	if decision["user_id"] != "default_user" {
		t.Errorf("decision user_id = %v, want default_user", decision["user_id"])
	}
}
