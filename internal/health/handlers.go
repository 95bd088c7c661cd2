// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/backend-merch/internal/common"
)

var draining atomic.Bool

// SetReady flips readiness. The server calls SetReady(false) when shutdown
// starts so load balancers stop routing new orders to it.
func SetReady(v bool) { draining.Store(!v) }

// Checker probes the backing services.
type Checker interface {
	PingStore(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

type Handler struct {
	Checker      Checker
	StoreTimeout time.Duration
	RedisTimeout time.Duration
}

// Report is the readiness body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, Report{Status: "ok"})
}

// Ready probes the store and Redis concurrently and answers 503 if either
// fails or the process is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "shutting_down"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "unconfigured"})
		return
	}

	probes := map[string]func(context.Context) error{
		"store": func(ctx context.Context) error { return h.Checker.PingStore(ctx, orDefault(h.StoreTimeout, 500*time.Millisecond)) },
		"redis": func(ctx context.Context) error { return h.Checker.PingRedis(ctx, orDefault(h.RedisTimeout, 300*time.Millisecond)) },
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = Report{Status: "ok", Checks: make(map[string]string, len(probes))}
	)
	for name, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := "ok"
			if err := probe(r.Context()); err != nil {
				result = err.Error()
			}
			mu.Lock()
			report.Checks[name] = result
			if result != "ok" {
				report.Status = "degraded"
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	code := http.StatusOK
	if report.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, report)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
