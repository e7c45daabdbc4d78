package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"boardingpass_parser/internal/boardingpass"
	"boardingpass_parser/internal/config"
	"boardingpass_parser/internal/datetime"
	"boardingpass_parser/internal/extractor"
	"boardingpass_parser/internal/metrics"
	"boardingpass_parser/internal/storage"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func testPipeline(opts ...extractor.Option) *extractor.Pipeline {
	parser := boardingpass.New(
		datetime.WithClock(func() time.Time { return fixedNow }),
		datetime.WithLocation(time.UTC),
	)
	return extractor.New(parser, opts...)
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router := NewServer(testPipeline(), config.ServerConfig{Port: 8081}).Router()

	rec := do(t, router, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestExtractEndpoint(t *testing.T) {
	router := NewServer(testPipeline(), config.ServerConfig{}).Router()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantFound  bool
		wantFlight string
		wantGate   string
	}{
		{
			name:       "flat text found",
			body:       `{"text":"NH 123 TOKYO 2025/12/25 14:30 Gate 42"}`,
			wantStatus: http.StatusOK,
			wantFound:  true,
			wantFlight: "NH 123",
			wantGate:   "Gate 42",
		},
		{
			name:       "lines found",
			body:       `{"lines":[{"text":"JAL 516"},{"text":"OSAKA"},{"text":"12月25日"},{"text":"9時5分"}]}`,
			wantStatus: http.StatusOK,
			wantFound:  true,
			wantFlight: "JAL 516",
		},
		{
			name:       "envelope not found",
			body:       `{"device":{"id":"kiosk"},"recognition":{"text":"NH 123 TOKYO GATE 5"}}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "date without time",
			body:       `{"text":"2025/12/25"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/v1/extract", tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}

			var resp map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["found"] != tt.wantFound {
				t.Errorf("found = %v, want %v", resp["found"], tt.wantFound)
			}
			if !tt.wantFound {
				if len(resp) != 1 {
					t.Errorf("not found response should only carry found, got %v", resp)
				}
				return
			}
			if resp["flight_number"] != tt.wantFlight {
				t.Errorf("flight_number = %v, want %q", resp["flight_number"], tt.wantFlight)
			}
			gate, _ := resp["gate"].(string)
			if gate != tt.wantGate {
				t.Errorf("gate = %q, want %q", gate, tt.wantGate)
			}
		})
	}
}

func TestExtractValidation(t *testing.T) {
	router := NewServer(testPipeline(), config.ServerConfig{}).Router()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", "not json"},
		{"no text", `{"id":1}`},
		{"empty lines", `{"lines":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/v1/extract", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp["error"] == "" {
				t.Errorf("expected error body, got %q", rec.Body.String())
			}
		})
	}
}

func TestExtractStoresAndGet(t *testing.T) {
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	router := NewServer(testPipeline(extractor.WithSink(db)), config.ServerConfig{}, WithGetter(db)).Router()

	rec := do(t, router, http.MethodPost, "/api/v1/extract", `{"id":9,"text":"ANA1234 成田 2025/12/25 14:30"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("extract status %d: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "/api/v1/extractions/") {
		t.Fatalf("Location = %q", location)
	}

	rec = do(t, router, http.MethodGet, location, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d: %s", rec.Code, rec.Body.String())
	}

	var got storage.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.RecognitionID != 9 || got.FlightNumber != "ANA1234" || got.Destination != "成田" || !got.Found {
		t.Errorf("unexpected record %+v", got)
	}

	rec = do(t, router, http.MethodGet, "/api/v1/extractions/99999", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/api/v1/extractions/abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestGetWithoutStore(t *testing.T) {
	router := NewServer(testPipeline(), config.ServerConfig{}).Router()

	rec := do(t, router, http.MethodGet, "/api/v1/extractions/1", "", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("expected status 501, got %d", rec.Code)
	}
}

type failingGetter struct{}

func (failingGetter) Get(context.Context, int64) (*storage.Record, error) {
	return nil, errors.New("connection reset")
}

func TestGetStoreError(t *testing.T) {
	router := NewServer(testPipeline(), config.ServerConfig{}, WithGetter(failingGetter{})).Router()

	rec := do(t, router, http.MethodGet, "/api/v1/extractions/1", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("internal error details should not leak")
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := NewServer(testPipeline(), config.ServerConfig{
		AuthEnabled: true,
		APIKeys:     []string{"test-key-123", "another-key"},
	}).Router()

	body := `{"text":"NH 123 2025/12/25 14:30"}`
	tests := []struct {
		name       string
		header     map[string]string
		wantStatus int
	}{
		{"no key", nil, http.StatusUnauthorized},
		{"invalid key", map[string]string{"X-API-Key": "wrong-key"}, http.StatusForbidden},
		{"valid key via X-API-Key", map[string]string{"X-API-Key": "test-key-123"}, http.StatusOK},
		{"valid key via Bearer", map[string]string{"Authorization": "Bearer another-key"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/v1/extract", body, tt.header)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}

	// Health stays open.
	rec := do(t, router, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health with auth enabled: status %d", rec.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	router := NewServer(testPipeline(), config.ServerConfig{}).Router()

	rec := do(t, router, http.MethodOptions, "/api/v1/extract", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for OPTIONS, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS Allow-Origin header")
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected CORS Allow-Methods header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New("bp", reg)
	router := NewServer(testPipeline(extractor.WithMetrics(m)), config.ServerConfig{}, WithGatherer(reg)).Router()

	do(t, router, http.MethodPost, "/api/v1/extract", `{"text":"NH 123 2025/12/25 14:30"}`, nil)
	do(t, router, http.MethodPost, "/api/v1/extract", `{"text":"NH 123"}`, nil)

	rec := do(t, router, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	text := rec.Body.String()
	for _, want := range []string{
		`bp_extractions_total{outcome="found"} 1`,
		`bp_extractions_total{outcome="not_found"} 1`,
		`bp_datetime_format_hits_total{format="slash_date"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestReviewMount(t *testing.T) {
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "review.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	withReview := NewServer(testPipeline(extractor.WithSink(db)), config.ServerConfig{}, WithReview(db)).Router()
	do(t, withReview, http.MethodPost, "/api/v1/extract", `{"text":"NH 123 2025/12/25 14:30"}`, nil)

	rec := do(t, withReview, http.MethodGet, "/api/v1/review/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("review stats status %d", rec.Code)
	}
	var stats storage.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("total = %d, want 1", stats.Total)
	}

	without := NewServer(testPipeline(), config.ServerConfig{}).Router()
	rec = do(t, without, http.MethodGet, "/api/v1/review/stats", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("review without store: status %d, want 404", rec.Code)
	}
}
