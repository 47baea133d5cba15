// Package zotero submits items and attachment files to a Zotero user library
// through the web API, authorizing on demand.
package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/florianilch/zotcon/internal/auth"
	"github.com/florianilch/zotcon/internal/common"
	"github.com/florianilch/zotcon/internal/transport"
)

// CredentialSource provides the stored API key and runs the interactive
// authorization when none is usable. *auth.Manager implements it.
type CredentialSource interface {
	GetCredentials(ctx context.Context) *auth.Credentials
	Authorize(ctx context.Context) (auth.UserInfo, error)
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used for upload modification times.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// Client talks to the Zotero web API on behalf of the authorized user.
type Client struct {
	baseURL   string
	transport transport.Transport
	creds     CredentialSource
	clock     clockwork.Clock
	validate  *validator.Validate
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL string, tr transport.Transport, creds CredentialSource, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}
	if tr == nil {
		return nil, fmt.Errorf("missing transport")
	}
	if creds == nil {
		return nil, fmt.Errorf("missing credential source")
	}

	validate := validator.New()
	// Report fields by the names callers use in attachment JSON.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	c := &Client{
		baseURL:   baseURL,
		transport: tr,
		creds:     creds,
		clock:     clockwork.NewRealClock(),
		validate:  validate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateItem posts payload as JSON to the user's items endpoint and returns the
// response body.
//
// Without stored credentials it fails with common.ErrNotAuthorized unless
// askForAuth is set, in which case it authorizes first. When askForAuth is set
// and the server rejects the key with 403, it reauthorizes once and retries;
// a second rejection is returned to the caller.
func (c *Client) CreateItem(ctx context.Context, payload any, askForAuth bool) (string, error) {
	return c.createItem(ctx, payload, askForAuth, false)
}

// createItem ignores stored credentials when forceAuth is set.
func (c *Client) createItem(ctx context.Context, payload any, askForAuth, forceAuth bool) (string, error) {
	var creds *auth.Credentials
	if !forceAuth {
		creds = c.creds.GetCredentials(ctx)
	}

	if creds == nil {
		if !askForAuth {
			return "", common.ErrNotAuthorized
		}
		if _, err := c.creds.Authorize(ctx); err != nil {
			return "", fmt.Errorf("authentication failed: %w", err)
		}
		return c.createItem(ctx, payload, false, false)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &common.ValidationError{Field: "payload", Reason: err.Error()}
	}

	itemsURL, err := url.JoinPath(c.baseURL, "users", creds.UserID, "items")
	if err != nil {
		return "", fmt.Errorf("building items URL: %w", err)
	}

	headers := auth.APIHeaders(creds.TokenSecret)
	headers["Content-Type"] = "application/json"

	resp, err := c.transport.Request(ctx, http.MethodPost, itemsURL, transport.Options{
		Body:    body,
		Headers: headers,
	})
	if err != nil {
		if askForAuth && transport.HasStatus(err, http.StatusForbidden) {
			slog.InfoContext(ctx, "API key rejected, reauthorizing", "userID", creds.UserID)
			return c.createItem(ctx, payload, true, true)
		}
		slog.ErrorContext(ctx, "creating item failed", transport.FailureAttrs(err, creds.TokenSecret)...)
		return "", err
	}

	slog.DebugContext(ctx, "item created", "userID", creds.UserID, "status", resp.Status)
	return resp.ResponseText, nil
}

// fileURL is the negotiate and register endpoint of an attachment item.
func (c *Client) fileURL(userID, key string) (string, error) {
	return url.JoinPath(c.baseURL, "users", userID, "items", key, "file")
}

// formHeaders returns authenticated headers for a form-encoded file request.
func formHeaders(apiKey string) map[string]string {
	headers := auth.APIHeaders(apiKey)
	headers["Content-Type"] = "application/x-www-form-urlencoded"
	headers["If-None-Match"] = "*"
	return headers
}
