package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harleysmodernlife/VERN/internal/domain"
)

// fakeRegistry запоминает последний heartbeat, чтобы проверить декодинг.
type fakeRegistry struct {
	lastName         string
	lastCluster      string
	lastCapabilities any
	lastMeta         any

	record   domain.AgentRecord
	getErr   error
	degraded bool
}

func (f *fakeRegistry) Heartbeat(ctx context.Context, name, cluster string, capabilities, meta any) (domain.AgentRecord, error) {
	if name == "" {
		return domain.AgentRecord{}, domain.NewValidationError("name", "is required")
	}
	f.lastName, f.lastCluster = name, cluster
	f.lastCapabilities, f.lastMeta = capabilities, meta
	return domain.AgentRecord{Name: name, Cluster: cluster, LastSeen: time.Now(), Status: domain.StatusOnline}, nil
}

func (f *fakeRegistry) Get(ctx context.Context, name string) (domain.AgentRecord, error) {
	return f.record, f.getErr
}
func (f *fakeRegistry) List(ctx context.Context, cluster string) []domain.AgentRecord { return nil }
func (f *fakeRegistry) SetStatus(ctx context.Context, name, status string) error     { return nil }
func (f *fakeRegistry) Delete(ctx context.Context, name string) error                { return nil }
func (f *fakeRegistry) Clear(ctx context.Context) error                              { return nil }
func (f *fakeRegistry) Degraded() bool                                               { return f.degraded }

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/agents/heartbeat", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestHeartbeatDecoding(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantCaps any
		wantMeta any
	}{
		{
			"structured literals pass through",
			`{"name":"research","capabilities":["web_search","summarize"],"meta":{"v":"1.0"}}`,
			[]any{"web_search", "summarize"},
			map[string]any{"v": "1.0"},
		},
		{
			"json inside string unwraps",
			`{"name":"research","capabilities":"[\"web_search\"]","meta":"{\"v\":\"1.0\"}"}`,
			[]any{"web_search"},
			map[string]any{"v": "1.0"},
		},
		{
			"plain string splits by comma",
			`{"name":"research","capabilities":"web_search, summarize"}`,
			[]any{"web_search", "summarize"},
			nil,
		},
		{
			"garbage meta string drops to nil",
			`{"name":"research","meta":"just words"}`,
			nil,
			nil,
		},
		{
			"absent fields stay nil",
			`{"name":"research"}`,
			nil,
			nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := &fakeRegistry{}
			h := NewRegistryHandler(reg)

			rr := postJSON(t, h.Heartbeat, tc.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
			}
			if !reflect.DeepEqual(reg.lastCapabilities, tc.wantCaps) {
				t.Errorf("capabilities = %#v, want %#v", reg.lastCapabilities, tc.wantCaps)
			}
			if !reflect.DeepEqual(reg.lastMeta, tc.wantMeta) {
				t.Errorf("meta = %#v, want %#v", reg.lastMeta, tc.wantMeta)
			}
		})
	}
}

func TestHeartbeatRejectsBadInput(t *testing.T) {
	h := NewRegistryHandler(&fakeRegistry{})

	rr := postJSON(t, h.Heartbeat, `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rr.Code)
	}
	if got := rr.Header().Get("x-error-code"); got != "VALIDATION_ERROR" {
		t.Errorf("x-error-code = %q", got)
	}

	rr = postJSON(t, h.Heartbeat, `{"cluster":"default"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want 400", rr.Code)
	}

	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if envelope["ok"] != false || envelope["error_code"] != "VALIDATION_ERROR" {
		t.Errorf("bad envelope: %v", envelope)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	h := NewRegistryHandler(&fakeRegistry{getErr: domain.NewNotFoundError("agent", "ghost")})

	r := chi.NewRouter()
	r.Get("/v1/agents/{name}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/v1/agents/ghost", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	if got := rr.Header().Get("x-error-code"); got != "NOT_FOUND" {
		t.Errorf("x-error-code = %q", got)
	}
}

func TestGetAgentCarriesDegraded(t *testing.T) {
	h := NewRegistryHandler(&fakeRegistry{
		record:   domain.AgentRecord{Name: "research", Status: domain.StatusOnline, LastSeen: time.Now()},
		degraded: true,
	})

	r := chi.NewRouter()
	r.Get("/v1/agents/{name}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/v1/agents/research", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	// Поля записи остаются плоскими, флаг деградации — рядом с ними
	if resp["name"] != "research" {
		t.Errorf("record fields must stay top-level: %v", resp)
	}
	if resp["degraded"] != true {
		t.Errorf("degraded flag missing on get: %v", resp)
	}
}

func TestHeartbeatReportsDegraded(t *testing.T) {
	h := NewRegistryHandler(&fakeRegistry{degraded: true})

	rr := postJSON(t, h.Heartbeat, `{"name":"research"}`)
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["degraded"] != true {
		t.Errorf("degraded flag missing: %v", resp)
	}
}
