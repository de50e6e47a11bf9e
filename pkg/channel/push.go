package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// PushEnvelope is the body a push subscription POSTs to its endpoint. The layout follows
// Cloud Pub/Sub push delivery; Data is base64 encoded by encoding/json.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

type PushMessage struct {
	Data        []byte            `json:"data"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	PublishTime time.Time         `json:"publishTime,omitzero"`
}

func NewPushEnvelope(subscription string, msg Message) *PushEnvelope {
	return &PushEnvelope{
		Message: PushMessage{
			Data:        msg.Data,
			Attributes:  msg.Attributes,
			MessageID:   msg.ID,
			PublishTime: msg.PublishTime,
		},
		Subscription: subscription,
	}
}

type PushConfig struct {
	// Subscription is reported in every envelope.
	Subscription string
	Endpoint     string
	// AckDeadline bounds a single delivery attempt.
	AckDeadline time.Duration
	// RetryDelay is waited before a failed message is handed back for redelivery.
	RetryDelay time.Duration
	// MaxAttempts drops a message after this many failed deliveries; 0 retries forever.
	MaxAttempts int
	Client      *http.Client
}

// PushForwarder drains a LocalChannel subscription and POSTs each message to Endpoint as a
// PushEnvelope. A 2xx response acks the message; anything else nacks it for redelivery.
type PushForwarder struct {
	cfg      PushConfig
	client   *http.Client
	attempts map[string]int
}

func NewPushForwarder(cfg PushConfig) *PushForwarder {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	if cfg.AckDeadline <= 0 {
		cfg.AckDeadline = 10 * time.Second
	}
	return &PushForwarder{
		cfg:      cfg,
		client:   client,
		attempts: make(map[string]int),
	}
}

func (f *PushForwarder) Start(ctx context.Context, messages <-chan *message.Message) {
	slog.Info("push forwarder started", "subscription", f.cfg.Subscription, "endpoint", f.cfg.Endpoint)
	for {
		select {
		case <-ctx.Done():
			slog.Info("push forwarder stopped", "subscription", f.cfg.Subscription)
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			f.handle(ctx, msg)
		}
	}
}

func (f *PushForwarder) handle(ctx context.Context, msg *message.Message) {
	err := f.Deliver(ctx, fromWatermill(msg))
	if err == nil {
		delete(f.attempts, msg.UUID)
		msg.Ack()
		return
	}

	f.attempts[msg.UUID]++
	attempt := f.attempts[msg.UUID]
	if f.cfg.MaxAttempts > 0 && attempt >= f.cfg.MaxAttempts {
		slog.Error("push forwarder: dropping message after max attempts",
			"message_id", msg.UUID, "attempts", attempt, "error", err)
		delete(f.attempts, msg.UUID)
		msg.Ack()
		return
	}
	slog.Warn("push forwarder: delivery failed, will redeliver",
		"message_id", msg.UUID, "attempt", attempt, "error", err)

	select {
	case <-ctx.Done():
	case <-time.After(f.cfg.RetryDelay):
	}
	msg.Nack()
}

// Deliver makes one delivery attempt.
func (f *PushForwarder) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(NewPushEnvelope(f.cfg.Subscription, msg))
	if err != nil {
		return fmt.Errorf("failed to marshal push envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.AckDeadline)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("push to %s: %w", f.cfg.Endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push to %s: unexpected status %d", f.cfg.Endpoint, resp.StatusCode)
	}
	return nil
}
