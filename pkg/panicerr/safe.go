package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// SafeContext wraps fn so that a panic inside it is returned as an error instead of unwinding
// the caller's goroutine.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn(ctx)
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// Try runs fn and converts a panic into an error alongside fn's zero result.
func Try[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := SafeContext(func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})(ctx)
	return result, err
}
