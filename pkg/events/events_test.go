package events

import (
	"context"
	"testing"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		assert.NoError(t, r.Publish(ctx, Event{RequestID: id, Resource: models.ResourceChat}))
	}

	got := r.Events()
	assert.Len(t, got, 2, "events beyond capacity are dropped")
	assert.Equal(t, "a", got[0].RequestID)
	assert.Empty(t, r.Events())
}

func TestLogAndNopPublishers(t *testing.T) {
	for _, p := range []Publisher{LogPublisher{}, Nop{}} {
		assert.NoError(t, p.Publish(context.Background(), Event{RequestID: "x", Outcome: "success"}))
		assert.NoError(t, p.Close())
	}
}

func TestNewPubSubPublisherRequiresProject(t *testing.T) {
	_, err := NewPubSubPublisher(context.Background(), "", "topic")
	assert.Error(t, err)
	_, err = NewPubSubPublisher(context.Background(), "proj", "")
	assert.Error(t, err)
}
