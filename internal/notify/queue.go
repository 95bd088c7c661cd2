package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-merch/internal/events"
)

// TaskOrderNotify is the asynq task type carrying an order event.
const TaskOrderNotify = "order:notify"

// QueueName is the asynq queue used for notification tasks.
const QueueName = "notifications"

// Enqueuer is the subset of asynq.Client used by QueueSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink hands events to the background worker instead of delivering inline.
type QueueSink struct {
	Client    Enqueuer
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// Name implements Sink.
func (q *QueueSink) Name() string { return "queue" }

// Send implements Sink. Re-enqueueing an event that is already queued is a no-op.
func (q *QueueSink) Send(ctx context.Context, ev events.Event) error {
	if q == nil || q.Client == nil {
		return errors.New("task client not configured")
	}
	task, err := NewOrderTask(ev)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID), asynq.Queue(QueueName)}
	if q.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(q.MaxRetry))
	}
	if q.Timeout > 0 {
		opts = append(opts, asynq.Timeout(q.Timeout))
	}
	if q.Retention > 0 {
		opts = append(opts, asynq.Retention(q.Retention))
	}
	_, err = q.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// NewOrderTask encodes the envelope into an asynq task.
func NewOrderTask(ev events.Event) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return asynq.NewTask(TaskOrderNotify, payload), nil
}

// TaskHandler processes queued order events by dispatching them to the
// downstream sinks configured on the worker.
type TaskHandler struct {
	Dispatcher *Dispatcher
}

// ProcessTask implements asynq.Handler.
func (h *TaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var ev events.Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return fmt.Errorf("decode task: %v: %w", err, asynq.SkipRetry)
	}
	if ev.ID == "" || ev.Topic == "" {
		return fmt.Errorf("task missing event identity: %w", asynq.SkipRetry)
	}
	if h == nil || h.Dispatcher == nil {
		return errors.New("task handler has no dispatcher")
	}
	return h.Dispatcher.Dispatch(ctx, ev)
}

// NewServeMux registers the notification handlers.
func NewServeMux(handler *TaskHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TaskOrderNotify, handler)
	return mux
}
