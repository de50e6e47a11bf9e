// Package channel is the asynchronous message transport between the planner and the executor.
//
// Two backends are provided: Google Cloud Pub/Sub for deployments and an in-process watermill
// broker paired with a PushForwarder that emulates a managed push subscription locally.
package channel

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned when no backend or topic has been configured.
var ErrNotConfigured = errors.New("channel not configured")

// Message is one delivery unit on a topic.
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time
}

// Publisher submits payloads to a topic and returns the broker-assigned message ID once the
// broker has accepted the message. Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	Close() error
}
