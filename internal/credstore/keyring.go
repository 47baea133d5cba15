package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage.
// All values live in one keyring entry as a JSON object, so a Set is a single write.
type KeyringStore struct {
	service string
	user    string
	mu      sync.Mutex
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// (macOS Keychain, Windows Credential Manager, etc.) using the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Get returns the requested values from the system keyring.
func (k *KeyringStore) Get(ctx context.Context, keys []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	values, err := k.load()
	if err != nil {
		return nil, err
	}
	return pick(values, keys), nil
}

// Set merges values into the keyring entry, overwriting existing keys.
func (k *KeyringStore) Set(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	current, err := k.load()
	if err != nil {
		return err
	}
	maps.Copy(current, values)
	return k.save(current)
}

// Clear removes keys; the keyring entry is deleted once empty.
func (k *KeyringStore) Clear(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	current, err := k.load()
	if err != nil {
		return err
	}
	for _, key := range keys {
		delete(current, key)
	}

	if len(current) == 0 {
		if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return nil
	}
	return k.save(current)
}

func (k *KeyringStore) load() (map[string]string, error) {
	raw, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("parsing keyring entry for service %s, user %s: %w", k.service, k.user, err)
	}
	return values, nil
}

func (k *KeyringStore) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return keyring.Set(k.service, k.user, string(data))
}
