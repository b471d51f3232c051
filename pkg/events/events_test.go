package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

func TestEncodeRequiresType(t *testing.T) {
	_, err := Encode(models.Event{})
	assert.Error(t, err)
}

func TestNewTaskCarriesEvent(t *testing.T) {
	event := models.Event{
		ID:         "evt-1",
		Type:       models.EventWaitlistOffer,
		CustomerID: "c-1",
		Subject:    "slot offered",
		OccurredAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
	}
	task, opts, err := NewTask(event, "notifications", 3)
	require.NoError(t, err)
	assert.Equal(t, "notification:waitlist_offer", task.Type())
	assert.Len(t, opts, 3)

	var decoded models.Event
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, event.CustomerID, decoded.CustomerID)
	assert.Equal(t, event.Type, decoded.Type)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(nil)
	require.NoError(t, p.Publish(context.Background(), models.Event{Type: models.EventBookingConfirmed}))
	require.NoError(t, p.Close())
}
