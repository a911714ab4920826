package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseAPIKeys(t *testing.T) {
	keys := ParseAPIKeys([]string{"h100-field-key", "ops-secret:operations", ""})
	if keys["h100-field-key"] != "h100" {
		t.Errorf("expected node prefix as client, got %q", keys["h100-field-key"])
	}
	if keys["ops-secret"] != "operations" {
		t.Errorf("expected explicit client, got %q", keys["ops-secret"])
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %d", len(keys))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	var seen string
	h := APIKeyAuth(map[string]string{"k1": "h101"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClientID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", "X-API-Key", "nope", http.StatusUnauthorized},
		{"header", "X-API-Key", "k1", http.StatusOK},
		{"bearer", "Authorization", "Bearer k1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
	if seen != "h101" {
		t.Errorf("expected client id in context, got %q", seen)
	}
}

func TestRecoverAndRequestID(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := RequestID(Recover(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", nil)
	req.Header.Set("X-Request-ID", "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") != "req-7" {
		t.Errorf("expected request id echoed, got %q", rec.Header().Get("X-Request-ID"))
	}
	entries := logs.FilterMessage("panic recovered").All()
	if len(entries) != 1 || entries[0].ContextMap()["request_id"] != "req-7" {
		t.Errorf("expected one panic log with request id, got %v", entries)
	}
}
