package common

import (
	"errors"
	"fmt"
)

var (
	// Authorization state errors.
	ErrNotAuthorized          = errors.New("not authorized")
	ErrNoPendingAuthorization = errors.New("authorization completed with no outstanding OAuth request")
	ErrCancelled              = errors.New("authorization cancelled")

	// Handshake errors. Their messages are shown to the user as-is.
	ErrAuthorizationFailed   = errors.New("an invalid response was received from the Zotero server")
	ErrKeyVerificationFailed = errors.New("API key could not be verified")
	ErrPermissionInadequate  = errors.New("the key you have generated does not have adequate permissions " +
		"to save items to your Zotero library; please try again without modifying your key's permissions")

	// Protocol errors.
	ErrServerResponse = errors.New("error parsing JSON from server")

	// Transport failures that never produced an HTTP response.
	ErrNetwork = errors.New("network error")
)

// ValidationError reports a rejected input field. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
