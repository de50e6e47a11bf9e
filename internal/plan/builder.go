package plan

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kazz187/twinagents/pkg/cerr"
)

// ErrValidation marks a request that carries no usable text.
var ErrValidation = errors.New("validation error")

const MissingTextMessage = "missing 'text' in request body"

// textKeys are consulted in order by ResolveText.
var textKeys = []string{"text", "task", "message"}

const defaultIntent = "general"

// ResolveText returns the first non-empty string among the text, task and message fields.
func ResolveText(body map[string]any) string {
	for _, key := range textKeys {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Build turns free text into a planned Plan with a single placeholder task.
func Build(text string, now time.Time) (*Plan, error) {
	if text == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, MissingTextMessage, ErrValidation)
	}
	intent := Intent(text)
	return &Plan{
		PlanID: uuid.NewString(),
		Text:   text,
		Intent: intent,
		Tasks: []Task{
			{ID: "t1", Type: intent, Text: text},
		},
		Status:    StatusPlanned,
		Timestamp: FormatTimestamp(now),
	}, nil
}

// Intent labels text by its leading word, lower-cased with surrounding punctuation removed.
func Intent(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return defaultIntent
	}
	word := strings.TrimFunc(fields[0], func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if word == "" {
		return defaultIntent
	}
	return strings.ToLower(word)
}
