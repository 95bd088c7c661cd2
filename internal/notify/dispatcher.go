package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-merch/internal/events"
	"github.com/noah-isme/backend-merch/internal/obs"
)

// Sink receives order events. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev events.Event) error
}

// Dispatcher fans an order event out to every configured sink.
type Dispatcher struct {
	Sinks  []Sink
	Logger zerolog.Logger
	Now    func() time.Time
}

// Notify builds the order.created envelope and delivers it to all sinks. Every
// sink is attempted; failures are joined into the returned error.
func (d *Dispatcher) Notify(ctx context.Context, payload OrderCreated) error {
	if d == nil || len(d.Sinks) == 0 {
		return nil
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	ev, err := events.New(events.TopicOrderCreated, payload, now())
	if err != nil {
		return err
	}
	return d.Dispatch(ctx, ev)
}

// Dispatch delivers an already built envelope to all sinks.
func (d *Dispatcher) Dispatch(ctx context.Context, ev events.Event) error {
	if d == nil {
		return nil
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.topic", ev.Topic),
		attribute.Int("notify.sinks", len(d.Sinks)),
	)

	logger := obs.LoggerWithTrace(ctx, d.Logger)
	var joined error
	for _, sink := range d.Sinks {
		if sink == nil {
			continue
		}
		start := time.Now()
		sendErr := sink.Send(ctx, ev)
		elapsed := obs.DurationMillis(time.Since(start))
		if sendErr != nil {
			obs.ObserveNotification(sink.Name(), "failed", elapsed)
			span.RecordError(sendErr)
			logger.Error().Err(sendErr).
				Str("sink", sink.Name()).
				Str("event_id", ev.ID).
				Str("order_code", orderCodeOf(ev)).
				Msg("notification_failed")
			joined = errors.Join(joined, &SinkError{Sink: sink.Name(), Err: sendErr})
			continue
		}
		obs.ObserveNotification(sink.Name(), "delivered", elapsed)
	}
	if joined != nil {
		span.SetStatus(codes.Error, "notification failed")
	}
	return joined
}

// SinkError identifies the sink that failed to deliver an event.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func orderCodeOf(ev events.Event) string {
	var probe struct {
		OrderCode string `json:"orderCode"`
	}
	if err := ev.Decode(&probe); err != nil {
		return ""
	}
	return probe.OrderCode
}
