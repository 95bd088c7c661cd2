// Package resilience guards outbound calls with retries and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker rejects a call.
var ErrOpenCircuit = errors.New("resilience: circuit open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// defaultWindow is how long the closed breaker accumulates outcomes before
// starting a fresh count.
const defaultWindow = time.Minute

// Breaker trips when the failure ratio inside the current counting window
// reaches the threshold. After openFor it lets a single probe through; the
// probe's outcome decides between closing and reopening.
type Breaker struct {
	minRequests  int
	failureRatio float64
	openFor      time.Duration
	window       time.Duration
	target       string
	logger       zerolog.Logger
	now          func() time.Time

	mu          sync.Mutex
	state       State
	windowStart time.Time
	requests    int
	failures    int
	openedAt    time.Time
	probing     bool
}

// NewBreaker builds a closed breaker. minRequests is the sample size needed
// before the ratio is evaluated.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests < 1 {
		minRequests = 1
	}
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = 1
	}
	if openFor <= 0 {
		openFor = time.Second
	}
	b := &Breaker{
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		window:       defaultWindow,
		target:       "default",
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
	b.windowStart = b.now()
	return b
}

// WithTarget labels metrics and logs with the downstream name.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if target != "" {
		b.target = target
	}
	breakerState().WithLabelValues(b.target).Set(float64(b.state))
	return b
}

// WithLogger attaches a logger for state changes.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
	return b
}

// WithWindow overrides the closed-state counting window.
func (b *Breaker) WithWindow(window time.Duration) *Breaker {
	if window > 0 {
		b.mu.Lock()
		b.window = window
		b.mu.Unlock()
	}
	return b
}

// State reports the current position without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. Every permitted call must be
// followed by exactly one Report.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()

	switch b.state {
	case Open:
		if now.Sub(b.openedAt) < b.openFor {
			return false
		}
		b.moveTo(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		if now.Sub(b.windowStart) >= b.window {
			b.resetWindow(now)
		}
		return true
	}
}

// Report records the outcome of a call admitted by Allow.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probing = false
		if success {
			b.moveTo(ctx, Closed)
		} else {
			b.moveTo(ctx, Open)
		}
	case Closed:
		b.requests++
		if !success {
			b.failures++
		}
		if b.requests < b.minRequests {
			return
		}
		if float64(b.failures)/float64(b.requests) >= b.failureRatio {
			b.moveTo(ctx, Open)
		}
	}
}

func (b *Breaker) resetWindow(now time.Time) {
	b.windowStart = now
	b.requests = 0
	b.failures = 0
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	now := b.now()
	b.state = next
	switch next {
	case Open:
		b.openedAt = now
		breakerOpened().WithLabelValues(b.target).Inc()
	case Closed:
		b.resetWindow(now)
	}
	breakerState().WithLabelValues(b.target).Set(float64(next))
	breakerTransitions().WithLabelValues(b.target, prev.String(), next.String()).Inc()

	event := b.logger.Info()
	if next == Open {
		event = b.logger.Warn()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		event = event.Str("trace_id", sc.TraceID().String())
	}
	event.Str("target", b.target).
		Str("from", prev.String()).
		Str("to", next.String()).
		Int("window_requests", b.requests).
		Int("window_failures", b.failures).
		Msg("breaker state changed")
}

// Backoff returns base*2^(attempt-1) spread by ±jitter (a fraction of the delay).
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if jitter > 0 {
		if jitter > 1 {
			jitter = 1
		}
		delay += delay * jitter * (2*rand.Float64() - 1)
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}
