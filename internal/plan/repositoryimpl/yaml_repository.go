package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/twinagents/internal/plan"
	"github.com/kazz187/twinagents/pkg/cerr"
	"github.com/kazz187/twinagents/pkg/storage"
)

const plansPrefix = "plans"

var _ plan.Repository = (*YAMLRepository)(nil)

// YAMLRepository keeps one YAML file per plan on any storage.Storage backend.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", plansPrefix, id)
}

func (r *YAMLRepository) Upsert(ctx context.Context, id string, doc plan.Document) error {
	if err := plan.ValidateID(id); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid plan_id", err)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal plan: %w", err))
	}
	if err := r.storage.Write(ctx, path(id), data); err != nil {
		return cerr.WrapStorageError("write", "plan", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (plan.Document, error) {
	if err := plan.ValidateID(id); err != nil {
		return nil, cerr.NewError(cerr.NotFound, "plan not found", err)
	}
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageError("read", "plan", err)
	}
	var doc plan.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal plan: %w", err))
	}
	return doc, nil
}

// List returns plans newest first by timestamp; unreadable entries are skipped.
func (r *YAMLRepository) List(ctx context.Context, limit int) ([]plan.Document, error) {
	paths, err := r.storage.List(ctx, plansPrefix)
	if err != nil {
		return nil, cerr.WrapStorageError("list", "plans", err)
	}

	docs := make([]plan.Document, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable plan", "path", p, "error", err)
			continue
		}
		var doc plan.Document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			slog.WarnContext(ctx, "skipping malformed plan", "path", p, "error", err)
			continue
		}
		docs = append(docs, doc)
	}

	sortNewestFirst(docs)
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func sortNewestFirst(docs []plan.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		ti, _ := docs[i]["timestamp"].(string)
		tj, _ := docs[j]["timestamp"].(string)
		return ti > tj
	})
}
