package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error { return nil }

func down(msg string) Checker {
	return func(context.Context) error { return errors.New(msg) }
}

func callHealth(t *testing.T, handler http.HandlerFunc) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", down("connection refused"))

	code, resp := callHealth(t, h.LivenessHandler())

	assert.Equal(t, http.StatusOK, code, "liveness ignores dependencies")
	assert.Equal(t, StatusUp, resp.Status)
	assert.Empty(t, resp.Checks)
	assert.WithinDuration(t, time.Now(), resp.Timestamp, 5*time.Second)
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name        string
		critical    map[string]Checker
		nonCritical map[string]Checker
		wantCode    int
		wantStatus  Status
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
		{
			name:        "all up",
			critical:    map[string]Checker{"postgres": up},
			nonCritical: map[string]Checker{"search_index": up, "redis": up, "kafka": up},
			wantCode:    http.StatusOK,
			wantStatus:  StatusUp,
		},
		{
			name:        "index down degrades",
			critical:    map[string]Checker{"postgres": up},
			nonCritical: map[string]Checker{"search_index": down("cluster red"), "redis": up},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
		},
		{
			name:        "several non-critical down degrade",
			critical:    map[string]Checker{"postgres": up},
			nonCritical: map[string]Checker{"search_index": down("cluster red"), "kafka": down("no brokers")},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
		},
		{
			name:        "storage down fails",
			critical:    map[string]Checker{"postgres": down("connection refused")},
			nonCritical: map[string]Checker{"search_index": up},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  StatusDown,
		},
		{
			name:        "critical wins over degraded",
			critical:    map[string]Checker{"postgres": down("connection refused")},
			nonCritical: map[string]Checker{"redis": down("redis down")},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for name, c := range tt.critical {
				h.RegisterCritical(name, c)
			}
			for name, c := range tt.nonCritical {
				h.RegisterNonCritical(name, c)
			}

			code, resp := callHealth(t, h.ReadinessHandler())

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.critical)+len(tt.nonCritical))
			for name := range tt.critical {
				assert.True(t, resp.Checks[name].Critical, name)
			}
			for name := range tt.nonCritical {
				assert.False(t, resp.Checks[name].Critical, name)
			}
		})
	}
}

func TestReadinessHandler_ReportsCheckErrors(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", up)
	h.RegisterNonCritical("search_index", down("index forum_posts missing"))

	_, resp := callHealth(t, h.ReadinessHandler())

	assert.Equal(t, CheckResult{Status: StatusUp, Critical: true}, resp.Checks["postgres"])
	assert.Equal(t, CheckResult{Status: StatusDown, Error: "index forum_posts missing"}, resp.Checks["search_index"])
}

func TestRegister_IsCritical(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", down("fail"))

	code, resp := callHealth(t, h.ReadinessHandler())

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, resp.Checks["postgres"].Critical)
}

func TestRegister_ReplacesByName(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("search_index", down("fail"))
	h.RegisterNonCritical("search_index", down("still failing"))

	code, resp := callHealth(t, h.ReadinessHandler())

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 1)
}

func TestReadinessHandler_ChecksRunConcurrently(t *testing.T) {
	h := NewHandler()
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	slow := func(ctx context.Context) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.RegisterCritical("postgres", slow)
	h.RegisterNonCritical("redis", slow)

	go func() {
		<-started
		<-started
		close(release)
	}()

	code, _ := callHealth(t, h.ReadinessHandler())
	assert.Equal(t, http.StatusOK, code)
}

func TestReadinessHandler_CanceledRequest(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil).WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "context canceled")
}
