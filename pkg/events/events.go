// Package events publishes a usage event for every orchestrated request so
// downstream billing and analytics can consume it.
package events

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// Event is the payload published per terminal outcome.
type Event struct {
	RequestID  string                 `json:"request_id"`
	AccountID  string                 `json:"account_id"`
	Resource   models.ResourceType    `json:"resource"`
	Tier       models.Tier            `json:"tier"`
	Complexity models.ComplexityClass `json:"complexity,omitempty"`
	ModelID    string                 `json:"model_id,omitempty"`
	Outcome    string                 `json:"outcome"`
	Tokens     int64                  `json:"tokens"`
	Recorded   bool                   `json:"recorded"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Publisher delivers events. Publish must not block on delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to the structured log.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	log.WithFields(log.Fields{
		"request_id": e.RequestID,
		"account_id": e.AccountID,
		"resource":   e.Resource,
		"tier":       e.Tier,
		"model":      e.ModelID,
		"outcome":    e.Outcome,
		"tokens":     e.Tokens,
		"recorded":   e.Recorded,
	}).Info("generation event")
	return nil
}

func (LogPublisher) Close() error { return nil }

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps events in memory. Tests use it to assert on emissions.
type Recorder struct {
	ch chan Event
}

// NewRecorder buffers up to size events.
func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	select {
	case r.ch <- e:
	default:
	}
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events drains and returns the buffered events.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}
