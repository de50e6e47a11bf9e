package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kazz187/twinagents/internal/plan"
	"github.com/kazz187/twinagents/pkg/cerr"
)

var _ plan.Repository = (*FirestoreRepository)(nil)

// FirestoreRepository stores each plan as a document named by its plan_id.
// FIRESTORE_EMULATOR_HOST is honoured by the client.
type FirestoreRepository struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRepository falls back to the project of the default credentials when projectID is
// empty.
func NewFirestoreRepository(ctx context.Context, projectID, collection string) (*FirestoreRepository, error) {
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreRepository{client: client, collection: collection}, nil
}

func (r *FirestoreRepository) Close() error {
	return r.client.Close()
}

func (r *FirestoreRepository) Upsert(ctx context.Context, id string, doc plan.Document) error {
	if err := plan.ValidateID(id); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid plan_id", err)
	}
	if _, err := r.client.Collection(r.collection).Doc(id).Set(ctx, map[string]any(doc)); err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to write plan %s: %w", id, err))
	}
	return nil
}

func (r *FirestoreRepository) Get(ctx context.Context, id string) (plan.Document, error) {
	if err := plan.ValidateID(id); err != nil {
		return nil, cerr.NewError(cerr.NotFound, "plan not found", err)
	}
	snap, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, cerr.NewError(cerr.NotFound, "plan not found", err)
		}
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read plan %s: %w", id, err))
	}
	return snap.Data(), nil
}

func (r *FirestoreRepository) List(ctx context.Context, limit int) ([]plan.Document, error) {
	q := r.client.Collection(r.collection).OrderBy("timestamp", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var docs []plan.Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list plans: %w", err))
		}
		docs = append(docs, snap.Data())
	}
	return docs, nil
}
