package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/florianilch/zotcon/internal/common"
	"github.com/florianilch/zotcon/internal/credstore"
)

// Authorizer runs an interactive authorization.
type Authorizer interface {
	Authorize(ctx context.Context) (UserInfo, error)
}

// PreconfiguredAuth is a static API key that bypasses the OAuth handshake.
type PreconfiguredAuth struct {
	Enabled  bool
	APIKey   string
	UserID   string
	Username string
}

// Manager exposes unified access to the persisted credentials.
type Manager struct {
	store      credstore.Store
	authorizer Authorizer
}

// NewManager creates a Manager. authorizer may be nil when only
// preconfigured keys are used; Authorize then fails with common.ErrNotAuthorized.
func NewManager(store credstore.Store, authorizer Authorizer) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}

	return &Manager{
		store:      store,
		authorizer: authorizer,
	}, nil
}

// GetCredentials returns the stored credentials, or nil when none are stored
// or storage cannot be read.
func (m *Manager) GetCredentials(ctx context.Context) *Credentials {
	values, err := m.store.Get(ctx, CredentialKeys)
	if err != nil {
		slog.DebugContext(ctx, "reading credentials failed", "error", err)
		return nil
	}

	creds := &Credentials{
		Token:       values[KeyToken],
		TokenSecret: values[KeyTokenSecret],
		UserID:      values[KeyUserID],
		Username:    values[KeyUsername],
	}
	if creds.TokenSecret == "" || creds.UserID == "" {
		return nil
	}
	return creds
}

// SetCredentials stores an API key directly, without the OAuth handshake.
func (m *Manager) SetCredentials(ctx context.Context, apiKey, userID, username string) (UserInfo, error) {
	if apiKey == "" || userID == "" {
		return UserInfo{}, &common.ValidationError{Reason: "API key and user ID are required"}
	}

	creds := Credentials{TokenSecret: apiKey, UserID: userID, Username: username}
	if err := m.store.Set(ctx, creds.values()); err != nil {
		return UserInfo{}, fmt.Errorf("storing credentials: %w", err)
	}

	if username == "" {
		username = "username not provided"
	}
	slog.DebugContext(ctx, "direct credentials set", "userID", userID, "username", username)
	return UserInfo{Username: creds.Username, UserID: userID}, nil
}

// ClearCredentials removes every stored credential. The key is not revoked server-side.
func (m *Manager) ClearCredentials(ctx context.Context) error {
	// TODO: revoke the key via DELETE keys/current once logout confirms with the user.
	return m.store.Clear(ctx, CredentialKeys)
}

// InitPreconfiguredAuth installs a preconfigured API key when enabled and complete.
// It reports whether credentials were installed; failures are logged, never returned.
func (m *Manager) InitPreconfiguredAuth(ctx context.Context, cfg PreconfiguredAuth) bool {
	if !cfg.Enabled || cfg.APIKey == "" || cfg.UserID == "" {
		return false
	}

	slog.DebugContext(ctx, "initializing pre-configured authentication")
	if _, err := m.SetCredentials(ctx, cfg.APIKey, cfg.UserID, cfg.Username); err != nil {
		slog.ErrorContext(ctx, "failed to initialize pre-configured authentication", "error", err)
		return false
	}
	slog.DebugContext(ctx, "pre-configured authentication initialized")
	return true
}

// Authorize runs the interactive authorization.
func (m *Manager) Authorize(ctx context.Context) (UserInfo, error) {
	if m.authorizer == nil {
		return UserInfo{}, fmt.Errorf("%w: interactive authorization is not configured", common.ErrNotAuthorized)
	}
	return m.authorizer.Authorize(ctx)
}
