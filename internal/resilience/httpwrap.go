package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient sends requests through a Breaker, retrying transport errors,
// 5xx and 429 responses with exponential backoff.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout bounds each attempt; zero falls back to Client.Timeout.
	Timeout  time.Duration
	Target   string
	Logger   *zerolog.Logger
	Fallback func(context.Context, *http.Request, error) (*http.Response, error)
}

// StatusError carries the last retryable response status once attempts run out.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "resilience: upstream responded " + e.Status }

// Do sends req, replaying its body on every attempt. The returned response
// body must be closed by the caller. ErrOpenCircuit is returned when the
// breaker rejects the call and no Fallback is set.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	payload, err := drainBody(req)
	if err != nil {
		return nil, fmt.Errorf("resilience: buffer request body: %w", err)
	}

	attempts := max(cl.MaxAttempts, 1)
	base := cl.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	log := zerolog.Nop()
	if cl.Logger != nil {
		log = *cl.Logger
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}

		resp, err := cl.send(ctx, req, payload)
		healthy := err == nil && resp.StatusCode < http.StatusInternalServerError
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, healthy)
		}
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		wait := Backoff(base, attempt, cl.Jitter)
		if err != nil {
			lastErr = err
		} else {
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
			if hinted, ok := retryAfter(resp); ok && hinted > wait {
				wait = hinted
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		log.Warn().Err(lastErr).
			Str("target", cl.Target).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("outbound call failed")

		if attempt == attempts {
			break
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

func (cl HTTPClient) send(ctx context.Context, req *http.Request, payload []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	attemptReq := req.Clone(ctx)
	if payload != nil {
		attemptReq.Body = io.NopCloser(bytes.NewReader(payload))
		attemptReq.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
		attemptReq.ContentLength = int64(len(payload))
	}

	resp, err := cl.Client.Do(attemptReq)
	if err != nil {
		cancel()
		return nil, err
	}
	// the attempt deadline stays armed until the caller finishes reading
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	return io.ReadAll(req.Body)
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		return time.Until(at), true
	}
	return 0, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
