package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/health"
)

type stubChecker struct {
	storeErr error
	redisErr error
	sawStore time.Duration
}

func (s *stubChecker) PingStore(_ context.Context, timeout time.Duration) error {
	s.sawStore = timeout
	return s.storeErr
}

func (s *stubChecker) PingRedis(context.Context, time.Duration) error { return s.redisErr }

func ready(t *testing.T, h health.Handler) (int, health.Report) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var report health.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	return rr.Code, report
}

func TestLiveAlwaysOK(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestReadyReportsEachDependency(t *testing.T) {
	checker := &stubChecker{}
	code, report := ready(t, health.Handler{Checker: checker})

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", report.Status)
	require.Equal(t, map[string]string{"store": "ok", "redis": "ok"}, report.Checks)
	require.Equal(t, 500*time.Millisecond, checker.sawStore)
}

func TestReadyDegradedWhenRedisDown(t *testing.T) {
	code, report := ready(t, health.Handler{Checker: &stubChecker{redisErr: errors.New("dial tcp: refused")}})

	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "degraded", report.Status)
	require.Equal(t, "ok", report.Checks["store"])
	require.Equal(t, "dial tcp: refused", report.Checks["redis"])
}

func TestReadyDrainsOnShutdown(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })

	health.SetReady(false)
	code, report := ready(t, health.Handler{Checker: &stubChecker{}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "shutting_down", report.Status)

	health.SetReady(true)
	code, _ = ready(t, health.Handler{Checker: &stubChecker{}})
	require.Equal(t, http.StatusOK, code)
}
