package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("all dependencies healthy", func(t *testing.T) {
		hc := NewHealthChecker(map[string]Pinger{
			"database": fakePinger{},
			"redis":    nil,
		})

		status := hc.Check(context.Background())
		assert.Equal(t, "healthy", status.Status)
		assert.Equal(t, "healthy", status.Checks["database"])
		assert.Equal(t, "not configured", status.Checks["redis"])
	})

	t.Run("one dependency down", func(t *testing.T) {
		hc := NewHealthChecker(map[string]Pinger{
			"database": fakePinger{err: errors.New("connection refused")},
		})

		status := hc.Check(context.Background())
		assert.Equal(t, "unhealthy", status.Status)
		assert.Contains(t, status.Checks["database"], "connection refused")
	})
}

func TestHealthChecker_Handler(t *testing.T) {
	hc := NewHealthChecker(map[string]Pinger{"database": fakePinger{err: errors.New("down")}})

	rec := httptest.NewRecorder()
	hc.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
}

func TestHTTPMetricsMiddleware_PassesStatusThrough(t *testing.T) {
	h := HTTPMetricsMiddleware("/cron/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cron/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
