package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/zotcon/internal/auth"
	"github.com/florianilch/zotcon/internal/credstore"
	"github.com/florianilch/zotcon/internal/surface"
	"github.com/florianilch/zotcon/internal/transport"
	"github.com/florianilch/zotcon/internal/zotero"
)

// userAgent is sent with every API request.
const userAgent = "zotcon"

// Option configures an App.
type Option func(*options)

type options struct {
	store       credstore.Store
	transport   transport.Transport
	browserOpts []surface.BrowserOption
}

// WithCredentialStore replaces the store configured by Config.Auth.
func WithCredentialStore(store credstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithTransport replaces the resty transport.
func WithTransport(tr transport.Transport) Option {
	return func(o *options) {
		o.transport = tr
	}
}

// WithBrowserOptions configures the authorization surface.
func WithBrowserOptions(opts ...surface.BrowserOption) Option {
	return func(o *options) {
		o.browserOpts = append(o.browserOpts, opts...)
	}
}

// App wires the credential store, authorization flow and API client together.
type App struct {
	cfg     *Config
	browser *surface.Browser
	flow    *auth.Flow
	manager *auth.Manager
	client  *zotero.Client

	// loginErr explains why interactive login is unavailable.
	loginErr error
}

// New creates a new App instance. No I/O is performed.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = cfg.Auth.NewCredentialStore()
		if err != nil {
			return nil, fmt.Errorf("failed to create credential store: %w", err)
		}
	}

	tr := o.transport
	if tr == nil {
		tr = transport.NewRestyTransport(
			transport.WithTimeout(cfg.Transport.Timeout),
			transport.WithUserAgent(userAgent),
		)
	}

	browserOpts := append([]surface.BrowserOption{surface.WithListenAddress(cfg.Callback.Address())}, o.browserOpts...)
	a := &App{
		cfg:     cfg,
		browser: surface.NewBrowser(browserOpts...),
	}

	var authorizer auth.Authorizer
	if a.loginErr = cfg.ValidateLogin(); a.loginErr == nil {
		flow, err := auth.NewFlow(auth.FlowConfig{
			OAuth: auth.OAuthConfig{
				ClientKey:    cfg.OAuth.ClientKey,
				ClientSecret: cfg.OAuth.ClientSecret,
				RequestURL:   cfg.OAuth.RequestURL,
				AuthorizeURL: cfg.OAuth.AuthorizeURL,
				AccessURL:    cfg.OAuth.AccessURL,
				CallbackURL:  cfg.Callback.URL(),
			},
			APIBaseURL:      cfg.API.BaseURL,
			EnvironmentName: cfg.OAuth.EnvironmentName,
		}, tr, a.browser, store)
		if err != nil {
			return nil, fmt.Errorf("failed to create authorization flow: %w", err)
		}
		a.browser.Bind(flow)
		a.flow = flow
		authorizer = flow
	}

	manager, err := auth.NewManager(store, authorizer)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential manager: %w", err)
	}
	a.manager = manager

	client, err := zotero.NewClient(cfg.API.BaseURL, tr, manager)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	a.client = client

	return a, nil
}

// InitPreconfiguredAuth installs the configured static API key, if any.
func (a *App) InitPreconfiguredAuth(ctx context.Context) bool {
	p := a.cfg.Preconfigured
	return a.manager.InitPreconfiguredAuth(ctx, auth.PreconfiguredAuth{
		Enabled:  p.Enabled,
		APIKey:   p.APIKey,
		UserID:   p.UserID,
		Username: p.Username,
	})
}

// Login runs the interactive authorization.
func (a *App) Login(ctx context.Context) (auth.UserInfo, error) {
	if a.flow == nil {
		return auth.UserInfo{}, a.loginErr
	}

	var info auth.UserInfo
	err := a.serve(ctx, func(ctx context.Context) error {
		var err error
		info, err = a.manager.Authorize(ctx)
		return err
	})
	return info, err
}

// Logout removes the stored credentials.
func (a *App) Logout(ctx context.Context) error {
	return a.manager.ClearCredentials(ctx)
}

// Credentials returns the stored credentials, or nil when not logged in.
func (a *App) Credentials(ctx context.Context) *auth.Credentials {
	return a.manager.GetCredentials(ctx)
}

// SetKey stores an API key directly.
func (a *App) SetKey(ctx context.Context, apiKey, userID, username string) (auth.UserInfo, error) {
	return a.manager.SetCredentials(ctx, apiKey, userID, username)
}

// CreateItem creates items from payload. A handshake started on the way opens
// the redirect listener, which stops again when the call returns.
func (a *App) CreateItem(ctx context.Context, payload any, askForAuth bool) (string, error) {
	body, err := a.client.CreateItem(ctx, payload, askForAuth)
	if stopErr := a.stopListener(ctx); stopErr != nil {
		return body, errors.Join(err, stopErr)
	}
	return body, err
}

// UploadAttachment uploads the content of an existing attachment item.
func (a *App) UploadAttachment(ctx context.Context, attachment *zotero.Attachment) (*zotero.Attachment, error) {
	return a.client.UploadAttachment(ctx, attachment)
}

// serve runs fn while the redirect listener accepts callbacks, then stops the
// listener. Uses errgroup for runtime error monitoring.
func (a *App) serve(ctx context.Context, fn func(ctx context.Context) error) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Callback.Address()
	slog.DebugContext(gCtx, "starting redirect listener", "address", address)
	listenerErrCh, err := a.browser.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("redirect listener startup failed: %w", err)
	}

	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return fn(gCtx)
	})

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-listenerErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "redirect listener runtime error", "error", err)
				return fmt.Errorf("redirect listener: %w", err)
			}
			return nil
		case <-done:
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runErr := g.Wait()
	return errors.Join(runErr, a.stopListener(ctx))
}

// stopListener stops the redirect listener if it runs. Stopping it cancels an
// authorization that is still waiting.
func (a *App) stopListener(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Shutdown.Timeout)
	defer cancel()

	if err := a.browser.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "redirect listener shutdown failed", "error", err)
		return err
	}
	return nil
}
