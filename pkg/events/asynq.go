package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// TaskPrefix namespaces notification task types, e.g. "notification:waitlist_offer".
const TaskPrefix = "notification:"

// AsynqPublisher enqueues events as durable tasks so the notification worker retries delivery.
type AsynqPublisher struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// NewAsynqPublisher builds a publisher around opt.
func NewAsynqPublisher(opt asynq.RedisConnOpt, queue string) *AsynqPublisher {
	if queue == "" {
		queue = "notifications"
	}
	return &AsynqPublisher{client: asynq.NewClient(opt), queue: queue, maxRetry: 5}
}

// NewTask builds the asynq task for an event. Event ids double as task ids so a
// re-published event is rejected as a duplicate instead of notifying twice.
func NewTask(event models.Event, queue string, maxRetry int) (*asynq.Task, []asynq.Option, error) {
	data, err := Encode(event)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TaskPrefix+string(event.Type), data)
	opts := []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(maxRetry)}
	if event.ID != "" {
		opts = append(opts, asynq.TaskID(event.ID))
	}
	return task, opts, nil
}

// Publish enqueues the event.
func (p *AsynqPublisher) Publish(ctx context.Context, event models.Event) error {
	task, opts, err := NewTask(event, p.queue, p.maxRetry)
	if err != nil {
		return err
	}
	if _, err := p.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", event.Type, err)
	}
	return nil
}

// Close releases the asynq client connection.
func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}
