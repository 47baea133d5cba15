package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/zotcon/internal/common"
	"github.com/florianilch/zotcon/internal/credstore"
	"github.com/florianilch/zotcon/internal/formcodec"
	"github.com/florianilch/zotcon/internal/surface"
	"github.com/florianilch/zotcon/internal/transport"
)

// State is the position of a Flow in the handshake.
type State int

const (
	StateIdle State = iota
	StateRequestingToken
	StateAwaitingUserGrant
	StateExchangingToken
	StateVerifyingKey
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingToken:
		return "requesting_token"
	case StateAwaitingUserGrant:
		return "awaiting_user_grant"
	case StateExchangingToken:
		return "exchanging_token"
	case StateVerifyingKey:
		return "verifying_key"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// singleflightKey is the only key used: there is one handshake per Flow.
const singleflightKey = "authorize"

var windowOptions = surface.WindowOptions{Width: 900, Height: 600, Type: "normal"}

// FlowConfig configures a Flow.
type FlowConfig struct {
	OAuth      OAuthConfig
	APIBaseURL string
	// EnvironmentName completes the client name shown on the grant page,
	// "Zotero Connector for <EnvironmentName>".
	EnvironmentName string
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithClock sets the clock used for OAuth timestamps.
func WithClock(clock clockwork.Clock) FlowOption {
	return func(f *Flow) {
		f.clock = clock
	}
}

// pending is the one in-flight handshake.
type pending struct {
	tokenSecret string
	handle      surface.Handle
	// completing is set once the redirect arrived; cancellation no longer applies.
	completing bool

	// settled is guarded by Flow.mu.
	settled bool
	done    chan struct{}
	info    UserInfo
	err     error
}

// Flow runs the OAuth handshake and key verification.
type Flow struct {
	oauth           OAuthConfig
	apiBaseURL      string
	environmentName string

	transport transport.Transport
	surface   surface.Surface
	store     credstore.Store
	clock     clockwork.Clock
	signer    *signer

	group singleflight.Group

	mu      sync.Mutex
	state   State
	pending *pending
}

// Compile-time checks
var (
	_ Authorizer        = (*Flow)(nil)
	_ surface.Completer = (*Flow)(nil)
)

// NewFlow creates a Flow. No I/O is performed until Authorize.
func NewFlow(cfg FlowConfig, tr transport.Transport, sf surface.Surface, store credstore.Store, opts ...FlowOption) (*Flow, error) {
	if tr == nil {
		return nil, fmt.Errorf("missing transport")
	}
	if sf == nil {
		return nil, fmt.Errorf("missing authorization surface")
	}
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if cfg.OAuth.ClientKey == "" || cfg.OAuth.ClientSecret == "" {
		return nil, fmt.Errorf("OAuth client key and secret are required")
	}
	if cfg.OAuth.RequestURL == "" || cfg.OAuth.AuthorizeURL == "" || cfg.OAuth.AccessURL == "" {
		return nil, fmt.Errorf("OAuth request, authorize and access URLs are required")
	}
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API base URL is required")
	}

	f := &Flow{
		oauth:           cfg.OAuth,
		apiBaseURL:      cfg.APIBaseURL,
		environmentName: cfg.EnvironmentName,
		transport:       tr,
		surface:         sf,
		store:           store,
		clock:           clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.signer = newSigner(cfg.OAuth, f.clock)

	return f, nil
}

// State returns the current handshake state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending reports whether a handshake is in flight.
func (f *Flow) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending != nil
}

// Authorize runs the handshake, or joins the one in flight and raises its
// window. All callers observe the same outcome. Cancelling ctx detaches only
// this caller; the handshake ends through OnAuthorizationComplete or
// OnAuthorizationCancel.
func (f *Flow) Authorize(ctx context.Context) (UserInfo, error) {
	f.mu.Lock()
	joining := f.pending
	f.mu.Unlock()

	ch := f.group.DoChan(singleflightKey, func() (any, error) {
		return f.run(context.WithoutCancel(ctx))
	})

	if joining != nil {
		f.mu.Lock()
		h := joining.handle
		f.mu.Unlock()
		slog.DebugContext(ctx, "authorization already in progress")
		if h != "" {
			f.surface.BringToFront(h)
		}
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return UserInfo{}, res.Err
		}
		return res.Val.(UserInfo), nil
	case <-ctx.Done():
		return UserInfo{}, ctx.Err()
	}
}

func (f *Flow) run(ctx context.Context) (UserInfo, error) {
	p := &pending{done: make(chan struct{})}

	f.mu.Lock()
	f.pending = p
	f.state = StateRequestingToken
	f.mu.Unlock()

	if err := f.requestGrant(ctx, p); err != nil {
		f.finish(ctx, p, UserInfo{}, err)
	}

	<-p.done
	return p.info, p.err
}

// requestGrant obtains a request token and opens the grant window.
func (f *Flow) requestGrant(ctx context.Context, p *pending) error {
	var params map[string]string
	if f.oauth.CallbackURL != "" {
		params = map[string]string{"oauth_callback": f.oauth.CallbackURL}
	}
	header, err := f.signer.header(http.MethodPost, f.oauth.RequestURL, params, "")
	if err != nil {
		slog.ErrorContext(ctx, "signing OAuth request failed", "error", err)
		return common.ErrAuthorizationFailed
	}

	resp, err := f.transport.Request(ctx, http.MethodPost, f.oauth.RequestURL, transport.Options{
		Body:    []byte{},
		Headers: map[string]string{"Authorization": header},
	})
	if err != nil {
		slog.ErrorContext(ctx, "OAuth request failed", transport.FailureAttrs(err)...)
		return common.ErrAuthorizationFailed
	}

	data := formcodec.Decode(resp.ResponseText)
	token, secret := data["oauth_token"], data["oauth_token_secret"]
	if token == "" || secret == "" {
		slog.ErrorContext(ctx, "OAuth request returned no request token", "status", resp.Status)
		return common.ErrAuthorizationFailed
	}

	authURL, err := f.authorizationURL(token, secret)
	if err != nil {
		slog.ErrorContext(ctx, "building authorization URL failed", "error", err)
		return common.ErrAuthorizationFailed
	}

	f.mu.Lock()
	if f.pending != p {
		f.mu.Unlock()
		return common.ErrCancelled
	}
	p.tokenSecret = secret
	f.mu.Unlock()

	h, err := f.surface.OpenWindow(ctx, authURL, windowOptions)
	if err != nil {
		slog.ErrorContext(ctx, "opening authorization window failed", "error", err)
		return common.ErrAuthorizationFailed
	}

	// The redirect may already have been handled while the window opened.
	f.mu.Lock()
	if f.pending == p && !p.completing {
		p.handle = h
		f.state = StateAwaitingUserGrant
	}
	f.mu.Unlock()
	return nil
}

// authorizationURL signs the grant page URL and adds the requested access scope.
func (f *Flow) authorizationURL(token, secret string) (string, error) {
	signed, err := f.signer.signedURL(http.MethodGet, f.oauth.AuthorizeURL, map[string]string{"oauth_token": token}, secret)
	if err != nil {
		return "", err
	}
	return signed +
		"&library_access=1&notes_access=0&write_access=1" +
		"&name=" + formcodec.PercentEncode("Zotero Connector for "+f.environmentName), nil
}

// OnAuthorizationComplete finishes the handshake with the redirect query the
// surface received. It returns common.ErrNoPendingAuthorization when no grant
// was requested; any other returned error is also delivered to every waiter.
func (f *Flow) OnAuthorizationComplete(ctx context.Context, query string, h surface.Handle) error {
	f.surface.CloseTab(h)

	f.mu.Lock()
	p := f.pending
	if p == nil || p.tokenSecret == "" {
		f.mu.Unlock()
		return common.ErrNoPendingAuthorization
	}
	secret := p.tokenSecret
	p.tokenSecret = ""
	p.handle = ""
	p.completing = true
	f.state = StateExchangingToken
	f.mu.Unlock()

	info, err := f.exchange(ctx, query, secret)
	f.finish(ctx, p, info, err)
	return err
}

// exchange trades the granted request token for an access token, verifies it
// and persists the credentials.
func (f *Flow) exchange(ctx context.Context, query, requestSecret string) (UserInfo, error) {
	params := formcodec.Decode(query)
	delete(params, "")

	header, err := f.signer.header(http.MethodPost, f.oauth.AccessURL, params, requestSecret)
	if err != nil {
		slog.ErrorContext(ctx, "signing OAuth access request failed", "error", err)
		return UserInfo{}, common.ErrAuthorizationFailed
	}

	resp, err := f.transport.Request(ctx, http.MethodPost, f.oauth.AccessURL, transport.Options{
		Body:    []byte{},
		Headers: map[string]string{"Authorization": header},
	})
	if err != nil {
		slog.ErrorContext(ctx, "OAuth access failed", transport.FailureAttrs(err)...)
		return UserInfo{}, common.ErrAuthorizationFailed
	}

	data := formcodec.Decode(resp.ResponseText)
	creds := Credentials{
		Token:       data["oauth_token"],
		TokenSecret: data["oauth_token_secret"],
		UserID:      data["userID"],
		Username:    data["username"],
	}
	if creds.TokenSecret == "" || creds.UserID == "" {
		slog.ErrorContext(ctx, "OAuth access returned no key", "status", resp.Status)
		return UserInfo{}, common.ErrAuthorizationFailed
	}

	f.setState(StateVerifyingKey)
	if err := f.verifyKey(ctx, creds); err != nil {
		return UserInfo{}, err
	}

	if err := f.store.Set(ctx, creds.values()); err != nil {
		return UserInfo{}, fmt.Errorf("storing credentials: %w", err)
	}
	return UserInfo{Username: creds.Username, UserID: creds.UserID}, nil
}

// verifyKey requires the new key to grant library read and write access.
func (f *Flow) verifyKey(ctx context.Context, creds Credentials) error {
	keysURL, err := url.JoinPath(f.apiBaseURL, "users", creds.UserID, "keys", "current")
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrKeyVerificationFailed, err)
	}

	resp, err := f.transport.Request(ctx, http.MethodGet, keysURL, transport.Options{
		Headers: APIHeaders(creds.TokenSecret),
	})
	if err != nil {
		slog.ErrorContext(ctx, "key verification failed", transport.FailureAttrs(err, creds.TokenSecret)...)
		return common.ErrKeyVerificationFailed
	}

	responseText := common.Redact(resp.ResponseText, creds.TokenSecret)
	user := gjson.Get(resp.ResponseText, "access.user")
	if !gjson.Valid(resp.ResponseText) || !truthy(user) {
		slog.ErrorContext(ctx, "key verification failed", "status", resp.Status, "response", responseText)
		return common.ErrKeyVerificationFailed
	}

	if user.Get("library").Type != gjson.True || user.Get("write").Type != gjson.True {
		slog.ErrorContext(ctx, "generated key had inadequate permissions", "response", responseText)
		return common.ErrPermissionInadequate
	}
	return nil
}

// truthy reports whether v is present and not false, null, 0 or "".
// A truthy access.user that is not an object grants nothing, so it fails the
// permission check rather than verification.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	default:
		return false
	}
}

// OnAuthorizationCancel rejects the pending handshake with common.ErrCancelled.
// It does nothing when no handshake is pending or its redirect already arrived.
func (f *Flow) OnAuthorizationCancel() {
	f.mu.Lock()
	p := f.pending
	if p == nil || p.completing {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	f.finish(context.Background(), p, UserInfo{}, common.ErrCancelled)
}

// finish settles p and clears the pending slot. Later calls for the same p are ignored.
func (f *Flow) finish(ctx context.Context, p *pending, info UserInfo, err error) {
	f.mu.Lock()
	if p.settled {
		f.mu.Unlock()
		return
	}
	p.settled = true
	if f.pending == p {
		f.pending = nil
		// run is still unwinding; the next Authorize must start a new handshake.
		f.group.Forget(singleflightKey)
		if err != nil {
			f.state = StateFailed
		} else {
			f.state = StateDone
		}
	}
	f.mu.Unlock()

	p.info, p.err = info, err
	close(p.done)

	if err != nil {
		slog.WarnContext(ctx, "authorization failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "authorization complete", "username", info.Username, "userID", info.UserID)
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}
