package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/EcommerceGo/pkg/logger"
)

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return logger.NewWithWriter("forum-service", "debug", buf)
}

// logLines decodes every JSON log line written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	return lines
}

// ─── RequestLogging ─────────────────────────────────────────────────────────

func TestRequestLogging_AccessLine(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(RequestLogging(bufferLogger(&buf)))
	r.Get("/api/v1/forum/search", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, logger.CorrelationIDFromContext(r.Context()))
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/forum/search?q=refund", nil))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "/api/v1/forum/search", line["route"])
	assert.Equal(t, "q=refund", line["query"])
	assert.EqualValues(t, 200, line["status"])
	assert.EqualValues(t, 11, line["bytes"])
	assert.Equal(t, rec.Header().Get(CorrelationIDHeader), line["correlation_id"])
}

func TestRequestLogging_KeepsInboundCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogging(bufferLogger(&buf))(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(CorrelationIDHeader, "corr-from-gateway")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "corr-from-gateway", rec.Header().Get(CorrelationIDHeader))
	assert.Equal(t, "corr-from-gateway", logLines(t, &buf)[0]["correlation_id"])
}

func TestRequestLogging_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{status: http.StatusAccepted, level: "INFO"},
		{status: http.StatusConflict, level: "WARN"},
		{status: http.StatusServiceUnavailable, level: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			h := RequestLogging(bufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/forum/reindex", nil))

			assert.Equal(t, tt.level, logLines(t, &buf)[0]["level"])
		})
	}
}

func TestRequestLogging_QuietProbes(t *testing.T) {
	var buf bytes.Buffer
	status := http.StatusOK
	h := RequestLogging(bufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Zero(t, buf.Len())

	status = http.StatusServiceUnavailable
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Len(t, logLines(t, &buf), 1, "failing health checks are still logged")
}

// ─── RequestLogger ──────────────────────────────────────────────────────────

func TestRequestLogger_EnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := bufferLogger(&buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	h := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("post indexed")
	}))

	ctx := logger.WithCorrelationID(trace.ContextWithSpanContext(t.Context(), sc), "corr-7")
	ctx = withClaims(ctx, &Claims{UserID: "forum-admin", Role: RoleAdmin})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/forum/index", nil).WithContext(ctx))

	line := logLines(t, &buf)[0]
	assert.Equal(t, "corr-7", line["correlation_id"])
	assert.Equal(t, "forum-admin", line["user_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", line["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", line["span_id"])
}

func TestRequestLogger_IgnoresIdentityHeaders(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(bufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("search")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forum/search", nil)
	req.Header.Set("X-User-ID", "spoofed")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, logLines(t, &buf)[0], "user_id")
}

// ─── Recovery ───────────────────────────────────────────────────────────────

func TestRecovery_WritesEnvelope(t *testing.T) {
	var buf bytes.Buffer
	h := Recovery(bufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("facet map is nil")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forum/search", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-9"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, "corr-9", body.Error.RequestID)

	line := logLines(t, &buf)[0]
	assert.Equal(t, "panic recovered", line["msg"])
	assert.Equal(t, "facet map is nil", line["panic"])
	assert.Equal(t, "corr-9", line["correlation_id"])
}

func TestRecovery_RepanicsAbortHandler(t *testing.T) {
	h := Recovery(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRecovery_LoggedAsServerError(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)
	h := RequestLogging(l)(Recovery(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/forum/search", nil))

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "http request", lines[1]["msg"])
	assert.EqualValues(t, 500, lines[1]["status"])
	assert.Equal(t, lines[0]["correlation_id"], lines[1]["correlation_id"])
}
