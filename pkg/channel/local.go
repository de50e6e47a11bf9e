package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"
)

const publishTimeMetadataKey = "_publish_time"

// LocalChannel is an in-process broker. Messages published while no subscriber is attached to
// the topic are dropped, so subscriptions must be created before traffic starts. A nacked message
// is redelivered to the same subscriber.
type LocalChannel struct {
	pubSub *gochannel.GoChannel
}

func NewLocalChannel(logger *slog.Logger) *LocalChannel {
	return &LocalChannel{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 256,
			},
			watermill.NewSlogLogger(logger),
		),
	}
}

func (c *LocalChannel) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("local topic: %w", ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg := message.NewMessage(ulid.Make().String(), data)
	for k, v := range attrs {
		msg.Metadata.Set(k, v)
	}
	msg.Metadata.Set(publishTimeMetadataKey, time.Now().UTC().Format(time.RFC3339Nano))
	if err := c.pubSub.Publish(topic, msg); err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return msg.UUID, nil
}

// Subscribe attaches a subscriber to topic. Every received message must be acked or nacked.
func (c *LocalChannel) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := c.pubSub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return ch, nil
}

func (c *LocalChannel) Close() error {
	return c.pubSub.Close()
}

// fromWatermill strips broker-internal metadata from a delivered message.
func fromWatermill(msg *message.Message) Message {
	m := Message{
		ID:   msg.UUID,
		Data: msg.Payload,
	}
	for k, v := range msg.Metadata {
		if k == publishTimeMetadataKey {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				m.PublishTime = t
			}
			continue
		}
		if m.Attributes == nil {
			m.Attributes = make(map[string]string)
		}
		m.Attributes[k] = v
	}
	return m
}
