package obs

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds the process logger. format "console" or "text" gives
// human-readable output; anything else writes JSON lines to stdout.
func NewLogger(format, level string) zerolog.Logger {
	return newLogger(os.Stdout, format, level)
}

func newLogger(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// LoggerWithTrace adds trace_id and span_id from ctx when a span is active.
func LoggerWithTrace(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}

// RequestLogger emits one access log line per request. Server errors log at
// error level and client errors at warn.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := newRecorder(w)
		reqLogger := LoggerWithTrace(r.Context(), l.Logger).With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Logger()

		next.ServeHTTP(rec, r.WithContext(reqLogger.WithContext(r.Context())))

		var evt *zerolog.Event
		switch {
		case rec.status >= http.StatusInternalServerError:
			evt = reqLogger.Error()
		case rec.status >= http.StatusBadRequest:
			evt = reqLogger.Warn()
		default:
			evt = reqLogger.Info()
		}
		evt.Str("method", r.Method).
			Str("route", Route(r)).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("bytes", rec.bytes).
			Dur("elapsed", time.Since(started)).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent())
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			evt.Str("idempotency_key", key)
		}
		evt.Msg("request served")
	})
}
