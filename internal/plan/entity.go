package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidID = errors.New("invalid plan_id")

type Status string

const StatusPlanned Status = "planned"

// TimestampLayout is ISO-8601 UTC at second precision.
const TimestampLayout = "2006-01-02T15:04:05Z"

type Plan struct {
	PlanID    string `json:"plan_id"`
	Text      string `json:"text"`
	Intent    string `json:"intent,omitempty"`
	Tasks     []Task `json:"tasks"`
	Status    Status `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Task is one unit of work. The executor treats every field but id as opaque.
type Task struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Document is the schemaless form a plan record takes in the store.
type Document map[string]any

// Document converts p through its JSON form so the stored record matches the published one.
func (p *Plan) Document() (Document, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan document: %w", err)
	}
	return doc, nil
}

// ID returns the document's plan_id when it is a non-empty string.
func (d Document) ID() string {
	id, _ := d["plan_id"].(string)
	return id
}

// ValidateID rejects ids that cannot name a single record: empty, dot segments, or containing a
// path separator.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidID, id)
	}
	return nil
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
