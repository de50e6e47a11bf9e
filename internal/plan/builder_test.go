package plan

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/twinagents/pkg/cerr"
)

func TestResolveText(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{name: "text", body: map[string]any{"text": "say hello"}, want: "say hello"},
		{name: "task", body: map[string]any{"task": "build it"}, want: "build it"},
		{name: "message", body: map[string]any{"message": "ping"}, want: "ping"},
		{name: "text wins over task", body: map[string]any{"text": "a", "task": "b", "message": "c"}, want: "a"},
		{name: "empty text falls through", body: map[string]any{"text": "", "task": "b"}, want: "b"},
		{name: "whitespace text kept", body: map[string]any{"text": "  ", "task": "do it"}, want: "  "},
		{name: "non-string ignored", body: map[string]any{"text": 42, "message": "m"}, want: "m"},
		{name: "none present", body: map[string]any{"other": "x"}, want: ""},
		{name: "nil body", body: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveText(tt.body))
		})
	}
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 30, 15, 123, time.FixedZone("JST", 9*60*60))

	p, err := Build("Say hello, world", now)
	require.NoError(t, err)

	_, err = uuid.Parse(p.PlanID)
	assert.NoError(t, err, "plan_id must be a UUID")
	assert.Equal(t, StatusPlanned, p.Status)
	assert.Equal(t, "Say hello, world", p.Text)
	assert.Equal(t, "say", p.Intent)
	assert.Equal(t, "2026-10-18T00:30:15Z", p.Timestamp)
	assert.Equal(t, []Task{{ID: "t1", Type: "say", Text: "Say hello, world"}}, p.Tasks)
}

func TestBuild_UniqueIDs(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		p, err := Build("x", time.Now())
		require.NoError(t, err)
		_, dup := seen[p.PlanID]
		require.False(t, dup)
		seen[p.PlanID] = struct{}{}
	}
}

func TestBuild_EmptyText(t *testing.T) {
	p, err := Build("", time.Now())
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestBuild_WhitespaceText(t *testing.T) {
	for _, text := range []string{"   ", "\n\t"} {
		p, err := Build(text, time.Now())
		require.NoError(t, err)
		_, err = uuid.Parse(p.PlanID)
		assert.NoError(t, err)
		assert.Equal(t, StatusPlanned, p.Status)
		assert.Equal(t, text, p.Text)
		assert.Equal(t, "general", p.Intent)
	}
}

func TestIntent(t *testing.T) {
	tests := map[string]string{
		"say hello":        "say",
		"  Summarize: doc": "summarize",
		"!!! ???":          "general",
		"":                 "general",
		"日本語 テキスト":         "日本語",
	}
	for in, want := range tests {
		assert.Equal(t, want, Intent(in), in)
	}
}

func TestPlan_Document(t *testing.T) {
	p := &Plan{
		PlanID:    "p1",
		Text:      "hi",
		Tasks:     []Task{{ID: "t1", Type: "hi"}},
		Status:    StatusPlanned,
		Timestamp: "2026-01-01T00:00:00Z",
	}
	doc, err := p.Document()
	require.NoError(t, err)

	assert.Equal(t, Document{
		"plan_id":   "p1",
		"text":      "hi",
		"tasks":     []any{map[string]any{"id": "t1", "type": "hi"}},
		"status":    "planned",
		"timestamp": "2026-01-01T00:00:00Z",
	}, doc)
	assert.Equal(t, "p1", doc.ID())
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"p1", uuid.NewString(), "a.b", "..."} {
		assert.NoError(t, ValidateID(id), id)
	}
	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "/"} {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, id)
	}
}
