package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-merch/internal/events"
	"github.com/noah-isme/backend-merch/internal/resilience"
)

const (
	defaultUserAgent      = "merch-api-webhooks/1.0"
	defaultWebhookTimeout = 5 * time.Second
	maxResponseBody       = 64 << 10
)

// ErrReplaySuppressed is returned by Deliver when the event was already sent.
var ErrReplaySuppressed = errors.New("notify: delivery replay suppressed")

// WebhookSink posts signed order events to the spreadsheet ingestion endpoint.
type WebhookSink struct {
	URL       string
	Secret    string
	HTTP      *resilience.HTTPClient
	Replay    ReplayProtector
	ReplayTTL time.Duration
	UserAgent string
}

func (w *WebhookSink) Name() string { return "webhook" }

// Send implements Sink. A suppressed replay counts as delivered; any non-2xx
// answer is an error so the dispatcher or queue can retry.
func (w *WebhookSink) Send(ctx context.Context, ev events.Event) error {
	status, body, err := w.Deliver(ctx, ev)
	switch {
	case errors.Is(err, ErrReplaySuppressed):
		return nil
	case err != nil:
		return err
	case status/100 != 2:
		return fmt.Errorf("webhook responded %d: %s", status, truncate(body, 256))
	}
	return nil
}

// Deliver makes one signed POST, with the HTTP client's own retries, and
// returns the final status and body. The replay claim is released on any
// failure so a later attempt can go through.
func (w *WebhookSink) Deliver(ctx context.Context, ev events.Event) (status int, body string, err error) {
	ctx, span := otel.Tracer("notify.webhook").Start(ctx, "webhook.deliver")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", ev.ID), attribute.String("event.topic", ev.Topic))
	defer func() {
		if err != nil && !errors.Is(err, ErrReplaySuppressed) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := validateURL(w.URL); err != nil {
		return 0, "", err
	}
	payload := []byte(ev.Data)
	if len(payload) == 0 {
		return 0, "", errors.New("webhook event has no payload")
	}

	release, err := w.claim(ctx, ev.ID)
	if errors.Is(err, ErrReplaySuppressed) {
		span.AddEvent("replay suppressed")
		return http.StatusOK, "", err
	}
	if err != nil {
		return 0, "", err
	}

	req, err := w.newRequest(ctx, ev, payload)
	if err != nil {
		release()
		return 0, "", err
	}
	resp, err := w.client().Do(ctx, req)
	if err != nil {
		release()
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		release()
		return resp.StatusCode, "", fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		release()
	}
	return resp.StatusCode, string(raw), nil
}

// claim takes the replay guard for eventID. The returned func undoes it.
func (w *WebhookSink) claim(ctx context.Context, eventID string) (func(), error) {
	if w.Replay == nil || w.ReplayTTL <= 0 {
		return func() {}, nil
	}
	key := ReplayKey(w.URL, eventID)
	ok, err := w.Replay.Acquire(ctx, key, w.ReplayTTL)
	if err != nil {
		return nil, fmt.Errorf("replay guard: %w", err)
	}
	if !ok {
		return nil, ErrReplaySuppressed
	}
	return func() { _ = w.Replay.Release(context.WithoutCancel(ctx), key) }, nil
}

// newRequest posts the bare order payload; the envelope fields travel in headers.
func (w *WebhookSink) newRequest(ctx context.Context, ev events.Event, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	agent := w.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", agent)
	req.Header.Set(HeaderEventID, ev.ID)
	req.Header.Set(HeaderIdempotency, ev.ID)
	req.Header.Set(HeaderEventTopic, ev.Topic)
	req.Header.Set(HeaderOccurredAt, ev.OccurredAt.UTC().Format(time.RFC3339Nano))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	if w.Secret != "" {
		req.Header.Set(HeaderSignature, ComputeSignature(w.Secret, ts, ev.ID, payload))
	}
	return req, nil
}

func (w *WebhookSink) client() *resilience.HTTPClient {
	if w.HTTP != nil {
		return w.HTTP
	}
	return &resilience.HTTPClient{
		Client:      NewWebhookHTTPClient(defaultWebhookTimeout),
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		Jitter:      0.2,
		Target:      "sheet-webhook",
	}
}

// NewWebhookHTTPClient returns a traced client; timeout <= 0 uses 5s.
func NewWebhookHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone()),
	}
}

// validateURL allows https anywhere and plain http only for loopback hosts.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Host == "" {
		return errors.New("webhook url must include host")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if h := u.Hostname(); h == "localhost" || h == "127.0.0.1" || h == "::1" {
			return nil
		}
		return errors.New("http webhook only allowed for localhost")
	default:
		return errors.New("webhook url must be http or https")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
