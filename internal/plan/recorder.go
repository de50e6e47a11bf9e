package plan

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrStoreUnavailable = errors.New("plan store unavailable")
	ErrWriteFailed      = errors.New("plan write failed")
)

// RecordStatus is reported to callers in the "firestore" response field.
type RecordStatus string

const (
	RecordDisabled RecordStatus = "disabled"
	RecordStored   RecordStatus = "stored"
	RecordFailed   RecordStatus = "failed"
)

// Recorder writes plan records once, without retries. A nil repository disables it.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) Enabled() bool {
	return r != nil && r.repo != nil
}

func (r *Recorder) Record(ctx context.Context, id string, doc Document) (RecordStatus, error) {
	if !r.Enabled() {
		return RecordDisabled, ErrStoreUnavailable
	}
	if err := r.repo.Upsert(ctx, id, doc); err != nil {
		return RecordFailed, fmt.Errorf("%w: %s: %w", ErrWriteFailed, id, err)
	}
	return RecordStored, nil
}

// Repository exposes the underlying store for read paths; nil when disabled.
func (r *Recorder) Repository() Repository {
	if r == nil {
		return nil
	}
	return r.repo
}
