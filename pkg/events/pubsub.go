package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	log "github.com/sirupsen/logrus"
)

// PubSubPublisher publishes events to a Google Cloud Pub/Sub topic. The
// client honours PUBSUB_EMULATOR_HOST for local development.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher creates a publisher for topicID in projectID.
func NewPubSubPublisher(ctx context.Context, projectID, topicID string) (*PubSubPublisher, error) {
	if projectID == "" {
		return nil, fmt.Errorf("pubsub: project_id is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("pubsub: topic is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{client: client, topic: client.Topic(topicID)}, nil
}

// Publish enqueues e. Delivery errors are logged once the server answers.
func (p *PubSubPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"resource": string(e.Resource),
			"outcome":  e.Outcome,
		},
	})
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			log.WithError(err).WithField("request_id", e.RequestID).Warn("failed to publish usage event")
		}
	}()
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
