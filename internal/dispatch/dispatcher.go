package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kazz187/twinagents/internal/plan"
	"github.com/kazz187/twinagents/pkg/channel"
)

var (
	ErrChannelUnavailable = errors.New("channel unavailable")
	ErrPublishTimeout     = errors.New("publish timed out")
)

// PublishFailed is reported in place of the topic name when dispatch fails.
const PublishFailed = "publish-failed"

const DefaultPublishTimeout = 10 * time.Second

// Dispatcher publishes plans to a single topic. A nil publisher or empty topic disables it.
type Dispatcher struct {
	publisher channel.Publisher
	topic     string
	timeout   time.Duration
}

func NewDispatcher(publisher channel.Publisher, topic string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Dispatcher{
		publisher: publisher,
		topic:     topic,
		timeout:   timeout,
	}
}

func (d *Dispatcher) Topic() string {
	if d == nil {
		return ""
	}
	return d.topic
}

func (d *Dispatcher) Enabled() bool {
	return d != nil && d.publisher != nil && d.topic != ""
}

// Dispatch publishes p and waits for the broker's message ID. The wait is bounded by the
// dispatcher's timeout and is not cut short when ctx is cancelled by a client disconnect.
func (d *Dispatcher) Dispatch(ctx context.Context, p *plan.Plan) (string, error) {
	if !d.Enabled() {
		return "", ErrChannelUnavailable
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan %s: %w", p.PlanID, err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	id, err := d.publisher.Publish(ctx, d.topic, data, map[string]string{"plan_id": p.PlanID})
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, context.DeadlineExceeded):
		return "", fmt.Errorf("%w after %s: %w", ErrPublishTimeout, d.timeout, err)
	case errors.Is(err, channel.ErrNotConfigured):
		return "", fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	default:
		return "", err
	}
}
