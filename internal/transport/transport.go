// Package transport defines the HTTP collaborator used by the authorization
// and submission layers, and a resty-backed implementation of it.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/florianilch/zotcon/internal/common"
)

// Options configures a single request.
type Options struct {
	Body    []byte
	Headers map[string]string

	// AcceptAnyStatus disables the non-2xx failure, returning every response.
	AcceptAnyStatus bool
}

// Response is the status and raw body text of a completed request.
type Response struct {
	Status       int
	ResponseText string
}

// StatusError is returned for non-2xx responses unless AcceptAnyStatus is set.
type StatusError struct {
	Status       int
	ResponseText string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Status)
}

// Transport performs HTTP requests. Implementations must be safe for concurrent use.
// Network failures are reported wrapping common.ErrNetwork.
type Transport interface {
	Request(ctx context.Context, method, url string, opts Options) (*Response, error)
}

// HasStatus reports whether err is a StatusError with the given status.
func HasStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// FailureAttrs returns slog attributes describing a failed request, with secrets
// redacted from the response text.
func FailureAttrs(err error, secrets ...string) []any {
	var se *StatusError
	if errors.As(err, &se) {
		return []any{"status", se.Status, "response", common.Redact(se.ResponseText, secrets...)}
	}
	return []any{"error", common.Redact(err.Error(), secrets...)}
}
