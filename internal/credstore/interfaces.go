package credstore

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by backends that cannot persist values.
var ErrReadOnly = errors.New("credential storage is read-only")

// Store reads and writes named values to persistent storage.
type Store interface {
	// Get returns the stored values for keys. Keys without a stored value are
	// absent from the result; a missing backing entry is not an error.
	Get(ctx context.Context, keys []string) (map[string]string, error)

	// Set persists all values in one write.
	Set(ctx context.Context, values map[string]string) error

	// Clear removes the given keys.
	Clear(ctx context.Context, keys []string) error
}

// pick copies the requested keys that exist in values.
func pick(values map[string]string, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := values[key]; ok {
			out[key] = v
		}
	}
	return out
}
