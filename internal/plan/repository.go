package plan

import "context"

// Repository is the durable keyed plan store. Upsert creates or replaces the record for id.
type Repository interface {
	Upsert(ctx context.Context, id string, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, limit int) ([]Document, error)
}
