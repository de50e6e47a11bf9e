package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/twinagents/internal/plan"
	"github.com/kazz187/twinagents/pkg/channel"
)

type fakePublisher struct {
	topic string
	data  []byte
	attrs map[string]string
	block bool
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	f.topic, f.data, f.attrs = topic, data, attrs
	return "msg-1", nil
}

func (f *fakePublisher) Close() error { return nil }

func testPlan() *plan.Plan {
	return &plan.Plan{
		PlanID:    "p1",
		Text:      "say hello",
		Tasks:     []plan.Task{{ID: "t1", Type: "say"}},
		Status:    plan.StatusPlanned,
		Timestamp: "2026-01-01T00:00:00Z",
	}
}

func TestDispatch_Success(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, "planner-to-executor", time.Second)

	id, err := d.Dispatch(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, "planner-to-executor", pub.topic)
	assert.Equal(t, map[string]string{"plan_id": "p1"}, pub.attrs)

	var got plan.Plan
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, *testPlan(), got)
}

func TestDispatch_Unavailable(t *testing.T) {
	tests := map[string]*Dispatcher{
		"nil dispatcher": nil,
		"no publisher":   NewDispatcher(nil, "topic", time.Second),
		"no topic":       NewDispatcher(&fakePublisher{}, "", time.Second),
	}
	for name, d := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), testPlan())
			assert.ErrorIs(t, err, ErrChannelUnavailable)
		})
	}
}

func TestDispatch_Timeout(t *testing.T) {
	d := NewDispatcher(&fakePublisher{block: true}, "topic", 20*time.Millisecond)

	start := time.Now()
	_, err := d.Dispatch(context.Background(), testPlan())
	assert.ErrorIs(t, err, ErrPublishTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatch_IgnoresCallerCancellation(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, "topic", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, err := d.Dispatch(ctx, testPlan())
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
}

func TestDispatch_PublishError(t *testing.T) {
	boom := errors.New("boom")
	d := NewDispatcher(&fakePublisher{err: boom}, "topic", time.Second)

	_, err := d.Dispatch(context.Background(), testPlan())
	assert.ErrorIs(t, err, boom)

	d = NewDispatcher(&fakePublisher{err: channel.ErrNotConfigured}, "topic", time.Second)
	_, err = d.Dispatch(context.Background(), testPlan())
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}
