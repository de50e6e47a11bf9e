package clog

import (
	"context"
	"maps"
	"sync"
)

const (
	ErrorAttributeKey  = "error.message"
	StackAttributeKey  = "error.stack"
	PlanIDAttributeKey = "plan_id"
)

// attributeBag collects attributes during a request so that the access log line (and every record
// emitted through AttributesHandler) carries them. It is shared by all goroutines of the request.
type attributeBag struct {
	mu    sync.RWMutex
	attrs map[string]any
}

type attributeBagKey struct{}

// ContextWithSlog attaches a fresh attribute bag. Without one the Add* helpers are no-ops.
func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, attributeBagKey{}, &attributeBag{attrs: map[string]any{}})
}

func bagFrom(ctx context.Context) *attributeBag {
	b, _ := ctx.Value(attributeBagKey{}).(*attributeBag)
	return b
}

func AddAttribute(ctx context.Context, key string, value any) {
	AddAttributes(ctx, map[string]any{key: value})
}

// AddAttributes merges attributes into the bag; nested maps are merged key by key.
func AddAttributes(ctx context.Context, attributes map[string]any) {
	b := bagFrom(ctx)
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	merge(b.attrs, attributes)
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if existing, ok := dst[k].(map[string]any); ok {
			merge(existing, sub)
			continue
		}
		dst[k] = maps.Clone(sub)
	}
}

// GetAttributes returns a shallow copy of the bag, or nil when ctx has none.
func GetAttributes(ctx context.Context) map[string]any {
	b := bagFrom(ctx)
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.attrs)
}

// AddPlanID tags the request log line with the plan being handled.
func AddPlanID(ctx context.Context, planID string) {
	AddAttribute(ctx, PlanIDAttributeKey, planID)
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}
