package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// Publisher hands engine events to the notification collaborator.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
	Close() error
}

// Encode renders an event as the JSON wire payload shared by every transport.
func Encode(event models.Event) ([]byte, error) {
	if event.Type == "" {
		return nil, fmt.Errorf("event type required")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	return data, nil
}

// LogPublisher writes events to the structured log. Used in development and as
// the fallback when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher builds a log-only publisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event models.Event) error {
	p.logger.Info("event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("customer_id", event.CustomerID),
		zap.String("resource_id", event.ResourceID),
		zap.String("subject", event.Subject),
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
