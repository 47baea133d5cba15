package credstore

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore provides read-only access to values stored in environment variables.
// Key "auth-token_secret" with prefix "ZOTCON_" is read from ZOTCON_AUTH_TOKEN_SECRET.
// Suitable for preconfigured API keys but not OAuth (requires writable storage).
type EnvStore struct {
	prefix string
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading variables with the given prefix.
func NewEnvStore(prefix string) (*EnvStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("environment prefix cannot be empty")
	}

	return &EnvStore{
		prefix: prefix,
	}, nil
}

// VariableName returns the environment variable holding key.
func (e *EnvStore) VariableName(key string) string {
	name := strings.NewReplacer("-", "_", ".", "_").Replace(key)
	return e.prefix + strings.ToUpper(name)
}

// Get returns the non-empty variables for keys.
func (e *EnvStore) Get(ctx context.Context, keys []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := os.LookupEnv(e.VariableName(key)); ok && v != "" {
			values[key] = v
		}
	}
	return values, nil
}

// Set is not supported for environment variables (they are read-only).
func (e *EnvStore) Set(ctx context.Context, _ map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrReadOnly
}

// Clear is not supported for environment variables (they are read-only).
func (e *EnvStore) Clear(ctx context.Context, _ []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrReadOnly
}
