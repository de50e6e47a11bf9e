package cerr

import (
	"errors"
	"fmt"

	"github.com/kazz187/twinagents/pkg/storage"
)

// WrapStorageError maps a storage failure while performing action on target to a coded error.
// storage.ErrNotFound becomes NotFound; anything else is an Internal "server error".
func WrapStorageError(action, target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, target+" not found", err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to %s %s: %w", action, target, err))
}
