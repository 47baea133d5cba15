// Package surface defines the user-facing authorization surface and a
// browser-backed implementation that receives the OAuth redirect on a local
// listener.
package surface

import "context"

// Handle identifies one opened authorization window.
type Handle string

// WindowOptions are presentation hints for the opened window.
type WindowOptions struct {
	Width  int
	Height int
	Type   string
}

// Surface opens, raises and closes the window the user grants access in.
type Surface interface {
	OpenWindow(ctx context.Context, url string, opts WindowOptions) (Handle, error)
	BringToFront(h Handle)
	CloseTab(h Handle)
}

// Completer receives the outcome reported by the surface.
type Completer interface {
	// OnAuthorizationComplete is called with the raw redirect query string.
	OnAuthorizationComplete(ctx context.Context, query string, h Handle) error
	// OnAuthorizationCancel is called when the window goes away without a grant.
	OnAuthorizationCancel()
}
