package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
)

// CallbackPath is where the OAuth provider redirects after the user decides.
const CallbackPath = "/callback"

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithOpener replaces the function that opens URLs in the system browser.
func WithOpener(open func(url string) error) BrowserOption {
	return func(b *Browser) {
		b.open = open
	}
}

// WithNotice sets where the authorization URL is printed for manual opening.
func WithNotice(w io.Writer) BrowserOption {
	return func(b *Browser) {
		b.notice = w
	}
}

// WithListenAddress makes OpenWindow start the redirect listener on address
// when it is not already running.
func WithListenAddress(address string) BrowserOption {
	return func(b *Browser) {
		b.address = address
	}
}

// errListening is returned by Start while the redirect listener runs.
var errListening = errors.New("redirect listener already running")

// Browser opens authorization pages in the system browser and serves the
// OAuth redirect on a local listener.
type Browser struct {
	open    func(url string) error
	notice  io.Writer
	address string
	mux     *http.ServeMux

	mu        sync.Mutex
	server    *http.Server
	completer Completer
	windows   map[Handle]string
	last      Handle
}

// Compile-time checks
var (
	_ Surface      = (*Browser)(nil)
	_ http.Handler = (*Browser)(nil)
)

// NewBrowser creates a Browser. Bind must be called before the redirect arrives.
func NewBrowser(opts ...BrowserOption) *Browser {
	b := &Browser{
		open:    browser.OpenURL,
		notice:  os.Stderr,
		windows: make(map[Handle]string),
	}
	for _, opt := range opts {
		opt(b)
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+CallbackPath, applyMiddlewares(http.HandlerFunc(b.handleCallback),
		stripQuery,
		Logging(slog.Default()),
		Recovery,
	))
	b.mux = mux

	return b
}

// Bind sets the receiver of redirect outcomes.
func (b *Browser) Bind(c Completer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completer = c
}

// OpenWindow opens url in the system browser. If no browser can be launched the
// URL is still printed, so the user can open it by hand. With a listen address
// set, the redirect listener is started first.
func (b *Browser) OpenWindow(ctx context.Context, url string, opts WindowOptions) (Handle, error) {
	if b.address != "" {
		if err := b.listenOnDemand(ctx); err != nil {
			return "", err
		}
	}

	h := Handle(uuid.NewString())

	b.mu.Lock()
	b.windows[h] = url
	b.last = h
	b.mu.Unlock()

	if b.notice != nil {
		_, _ = fmt.Fprintf(b.notice, "Open this URL to authorize access to your Zotero library:\n\n  %s\n\n", url)
	}
	if err := b.open(url); err != nil {
		slog.WarnContext(ctx, "could not open browser", "error", err)
	}
	slog.DebugContext(ctx, "authorization window opened", "handle", h, "width", opts.Width, "height", opts.Height, "type", opts.Type)
	return h, nil
}

// BringToFront re-opens the window's URL, which focuses the existing tab in most browsers.
func (b *Browser) BringToFront(h Handle) {
	b.mu.Lock()
	url, ok := b.windows[h]
	b.mu.Unlock()
	if !ok {
		return
	}
	if err := b.open(url); err != nil {
		slog.Debug("could not raise authorization window", "error", err)
	}
}

// CloseTab forgets the window. The browser tab itself shows a closing notice.
func (b *Browser) CloseTab(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, h)
	if b.last == h {
		b.last = ""
	}
}

func (b *Browser) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := redirectQuery(r)

	b.mu.Lock()
	completer, h := b.completer, b.last
	b.mu.Unlock()

	if completer == nil || h == "" {
		writePage(ctx, w, "No authorization is in progress.", http.StatusConflict)
		return
	}

	values, err := url.ParseQuery(query)
	if err != nil || values.Get("oauth_verifier") == "" {
		b.CloseTab(h)
		completer.OnAuthorizationCancel()
		writePage(ctx, w, "Access was not granted. You can close this tab.", http.StatusOK)
		return
	}

	// The handshake outlives this request; only the browser tab waits for it.
	if err := completer.OnAuthorizationComplete(context.WithoutCancel(ctx), query, h); err != nil {
		writePage(ctx, w, "Authorization failed: "+err.Error()+"\nYou can close this tab.", http.StatusBadGateway)
		return
	}
	writePage(ctx, w, "Authorization complete. You can close this tab and return to the terminal.", http.StatusOK)
}

// ServeHTTP implements http.Handler interface
func (b *Browser) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// Start starts the redirect listener in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the listener.
func (b *Browser) Start(ctx context.Context, address string) (<-chan error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.server != nil {
		return nil, errListening
	}

	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	server := &http.Server{
		Handler:      b,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // covers the token exchange done while the tab waits
		IdleTimeout:  30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	b.server = server

	errCh := make(chan error, 1)

	go func() {
		err := server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// listenOnDemand starts the listener for a handshake that began without Start.
// A runtime failure cancels the authorization waiting for the redirect.
func (b *Browser) listenOnDemand(ctx context.Context) error {
	errCh, err := b.Start(ctx, b.address)
	if errors.Is(err, errListening) {
		return nil
	}
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "redirect listener started", "address", b.address)

	go func() {
		for err := range errCh {
			slog.ErrorContext(ctx, "redirect listener runtime error", "error", err)
			b.closeWindows()
		}
	}()
	return nil
}

// closeWindows forgets every open window and cancels the authorization behind them.
func (b *Browser) closeWindows() {
	b.mu.Lock()
	completer, open := b.completer, len(b.windows) > 0
	clear(b.windows)
	b.last = ""
	b.mu.Unlock()

	if open && completer != nil {
		completer.OnAuthorizationCancel()
	}
}

// Shutdown closes every open window, which cancels an unfinished authorization,
// and gracefully stops the redirect listener. It does nothing to a listener that
// was never started.
func (b *Browser) Shutdown(ctx context.Context) error {
	b.closeWindows()

	b.mu.Lock()
	server := b.server
	b.server = nil
	b.mu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
