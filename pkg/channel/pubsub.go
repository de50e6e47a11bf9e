package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
)

// PubSubChannel publishes to Google Cloud Pub/Sub. PUBSUB_EMULATOR_HOST is honoured by the client.
type PubSubChannel struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubChannel connects to projectID, or to the project of the default credentials when
// projectID is empty.
func NewPubSubChannel(ctx context.Context, projectID string) (*PubSubChannel, error) {
	if projectID == "" {
		projectID = pubsub.DetectProjectID
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &PubSubChannel{
		client: client,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Project returns the resolved project ID.
func (c *PubSubChannel) Project() string {
	return c.client.Project()
}

// topic caches handles so the client's batching goroutines are shared across requests.
func (c *PubSubChannel) topic(name string) *pubsub.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.topics[name]
	if !ok {
		t = c.client.Topic(name)
		c.topics[name] = t
	}
	return t
}

// Publish blocks until the server acknowledges the message or ctx is done.
func (c *PubSubChannel) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("pubsub topic: %w", ErrNotConfigured)
	}
	res := c.topic(topic).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := res.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return id, nil
}

func (c *PubSubChannel) Close() error {
	c.mu.Lock()
	for _, t := range c.topics {
		t.Stop()
	}
	c.topics = map[string]*pubsub.Topic{}
	c.mu.Unlock()
	if err := c.client.Close(); err != nil {
		return errors.Join(errors.New("failed to close pubsub client"), err)
	}
	return nil
}
