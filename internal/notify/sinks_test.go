package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/events"
	"github.com/noah-isme/backend-merch/internal/notify"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestKafkaSinkKeysByOrderCode(t *testing.T) {
	w := &captureWriter{}
	sink := &notify.KafkaSink{Writer: w}
	ev := newEvent(t, "ABCD2345")

	require.NoError(t, sink.Send(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "ABCD2345", string(w.msgs[0].Key))

	var decoded events.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	require.Equal(t, ev.ID, decoded.ID)
}

func TestKafkaSinkWithoutWriter(t *testing.T) {
	require.Error(t, (&notify.KafkaSink{}).Send(context.Background(), newEvent(t, "X")))
}

type captureEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	if c.err != nil {
		return nil, c.err
	}
	return &asynq.TaskInfo{ID: "task", Type: task.Type()}, nil
}

func TestQueueSinkEnqueuesTask(t *testing.T) {
	client := &captureEnqueuer{}
	sink := &notify.QueueSink{Client: client, MaxRetry: 5}
	ev := newEvent(t, "ABCD2345")

	require.NoError(t, sink.Send(context.Background(), ev))
	require.Len(t, client.tasks, 1)
	require.Equal(t, notify.TaskOrderNotify, client.tasks[0].Type())

	var decoded events.Event
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &decoded))
	require.Equal(t, ev.ID, decoded.ID)
}

func TestQueueSinkTreatsConflictAsQueued(t *testing.T) {
	sink := &notify.QueueSink{Client: &captureEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, sink.Send(context.Background(), newEvent(t, "ABCD2345")))

	boom := errors.New("redis down")
	sink = &notify.QueueSink{Client: &captureEnqueuer{err: boom}}
	require.ErrorIs(t, sink.Send(context.Background(), newEvent(t, "ABCD2345")), boom)
}

func TestTaskHandlerDispatchesToDownstreamSinks(t *testing.T) {
	downstream := &recordingSink{name: "webhook"}
	handler := &notify.TaskHandler{Dispatcher: &notify.Dispatcher{Sinks: []notify.Sink{downstream}, Logger: zerolog.Nop()}}
	ev := newEvent(t, "ABCD2345")
	task, err := notify.NewOrderTask(ev)
	require.NoError(t, err)

	require.NoError(t, handler.ProcessTask(context.Background(), task))
	require.Len(t, downstream.events, 1)
	require.Equal(t, ev.ID, downstream.events[0].ID)
}

func TestTaskHandlerSkipsRetryOnMalformedPayload(t *testing.T) {
	handler := &notify.TaskHandler{Dispatcher: &notify.Dispatcher{Logger: zerolog.Nop()}}
	err := handler.ProcessTask(context.Background(), asynq.NewTask(notify.TaskOrderNotify, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTaskHandlerPropagatesSinkFailure(t *testing.T) {
	boom := errors.New("sheet down")
	handler := &notify.TaskHandler{Dispatcher: &notify.Dispatcher{
		Sinks:  []notify.Sink{&recordingSink{name: "webhook", err: boom}},
		Logger: zerolog.Nop(),
	}}
	task, err := notify.NewOrderTask(newEvent(t, "ABCD2345"))
	require.NoError(t, err)
	require.ErrorIs(t, handler.ProcessTask(context.Background(), task), boom)
}
