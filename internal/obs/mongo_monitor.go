package obs

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewMongoMonitor returns a command monitor that opens a span per MongoDB command.
func NewMongoMonitor() *event.CommandMonitor {
	tracer := otel.Tracer("db.mongo")
	var spans sync.Map

	finish := func(requestID int64, failure string) {
		v, ok := spans.LoadAndDelete(requestID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		if failure != "" {
			span.SetStatus(codes.Error, failure)
		}
		span.End()
	}

	return &event.CommandMonitor{
		Started: func(ctx context.Context, evt *event.CommandStartedEvent) {
			_, span := tracer.Start(ctx, "mongo."+evt.CommandName)
			span.SetAttributes(
				attribute.String("db.system", "mongodb"),
				attribute.String("db.name", evt.DatabaseName),
				attribute.String("db.operation", evt.CommandName),
			)
			spans.Store(evt.RequestID, span)
		},
		Succeeded: func(_ context.Context, evt *event.CommandSucceededEvent) {
			finish(evt.RequestID, "")
		},
		Failed: func(_ context.Context, evt *event.CommandFailedEvent) {
			finish(evt.RequestID, evt.Failure)
		},
	}
}
