package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// serveLogged runs one request through RequestID+Logging with a JSON handler
// and decodes the single record it emits.
func serveLogged(t *testing.T, h http.HandlerFunc, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestID(Logging(logger)(h))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("failed to decode log record %q: %v", buf.String(), err)
	}
	return record
}

func TestLogging_SuccessfulDashboardRead(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/analytics/dashboard", nil)
	record := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"student_count":3}`))
	}, req)

	if record["msg"] != "request completed" {
		t.Errorf("unexpected message %v", record["msg"])
	}
	if record["level"] != "INFO" {
		t.Errorf("expected INFO for a 200, got %v", record["level"])
	}
	if record["method"] != "GET" || record["path"] != "/analytics/dashboard" {
		t.Errorf("wrong method/path: %v %v", record["method"], record["path"])
	}
	if record["status"].(float64) != 200 {
		t.Errorf("expected status 200, got %v", record["status"])
	}
	if record["size"].(float64) != 19 {
		t.Errorf("expected response size 19, got %v", record["size"])
	}
	if record["request_id"] == nil || record["request_id"] == "" {
		t.Error("expected a request_id field")
	}
	if _, ok := record["latency_ms"]; !ok {
		t.Error("expected a latency_ms field")
	}
}

func TestLogging_ErrorCodeAndLevel(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		wantLevel string
	}{
		{"gated metric", http.StatusForbidden, "upgrade_required", "WARN"},
		{"backend failure", http.StatusBadGateway, "insight_unavailable", "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/analytics/breakthroughs", nil)
			record := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
				ctx := SetErrorCode(r.Context(), tt.code)
				UpdateResponseContext(w, ctx)
				w.WriteHeader(tt.status)
			}, req)

			if record["level"] != tt.wantLevel {
				t.Errorf("expected level %s, got %v", tt.wantLevel, record["level"])
			}
			if record["error_code"] != tt.code {
				t.Errorf("expected error_code %q, got %v", tt.code, record["error_code"])
			}
		})
	}
}

func TestLogging_CreatorIDFromAuthContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/analytics/commitment", nil)
	record := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
		// Auth derives the context after Logging wrapped the request, so it
		// must be pushed back through the response writer to be visible here.
		ctx := SetCreatorID(r.Context(), "crt_owner")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusOK)
	}, req)

	if record["creator_id"] != "crt_owner" {
		t.Errorf("expected creator_id crt_owner, got %v", record["creator_id"])
	}
}

func TestLogging_NoErrorCodeOnSuccess(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	record := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "leftover"))
		w.WriteHeader(http.StatusOK)
	}, req)

	if _, ok := record["error_code"]; ok {
		t.Error("error_code must be omitted for 2xx responses")
	}
}

func TestGetCreatorID_AbsentReturnsEmpty(t *testing.T) {
	if got := GetCreatorID(context.Background()); got != "" {
		t.Errorf("expected empty creator id, got %q", got)
	}
	if got := GetErrorCode(context.Background()); got != "" {
		t.Errorf("expected empty error code, got %q", got)
	}
}

func TestNewLogger_EnvSelectsLevel(t *testing.T) {
	ctx := context.Background()
	prod := NewLogger("production")
	dev := NewLogger("development")

	if !prod.Enabled(ctx, slog.LevelInfo) {
		t.Error("production logger must log at INFO")
	}
	if prod.Enabled(ctx, slog.LevelDebug) {
		t.Error("production logger must not log at DEBUG")
	}
	if !dev.Enabled(ctx, slog.LevelDebug) {
		t.Error("development logger must log at DEBUG")
	}
}
