package zotero

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/zotcon/internal/auth"
	"github.com/florianilch/zotcon/internal/common"
	"github.com/florianilch/zotcon/internal/transport"
)

const testBaseURL = "https://api.zotero.test/"

type request struct {
	method string
	url    string
	opts   transport.Options
}

// fakeTransport records requests and answers them with respond.
type fakeTransport struct {
	mu       sync.Mutex
	requests []request
	respond  func(r request) (*transport.Response, error)
}

func (t *fakeTransport) Request(_ context.Context, method, url string, opts transport.Options) (*transport.Response, error) {
	r := request{method: method, url: url, opts: opts}
	t.mu.Lock()
	t.requests = append(t.requests, r)
	t.mu.Unlock()
	return t.respond(r)
}

func (t *fakeTransport) recorded() []request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]request(nil), t.requests...)
}

// fakeCredentials hands out creds, and installs them on Authorize when authorized is set.
type fakeCredentials struct {
	mu         sync.Mutex
	creds      *auth.Credentials
	authorized *auth.Credentials
	authErr    error
	authCalls  int
}

func (f *fakeCredentials) GetCredentials(context.Context) *auth.Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds
}

func (f *fakeCredentials) Authorize(context.Context) (auth.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authErr != nil {
		return auth.UserInfo{}, f.authErr
	}
	f.creds = f.authorized
	if f.creds == nil {
		return auth.UserInfo{}, nil
	}
	return auth.UserInfo{UserID: f.creds.UserID, Username: f.creds.Username}, nil
}

func newTestClient(t *testing.T, tr transport.Transport, creds CredentialSource) *Client {
	t.Helper()
	c, err := NewClient(testBaseURL, tr, creds, WithClock(clockwork.NewFakeClockAt(time.UnixMilli(1700000000123))))
	require.NoError(t, err)
	return c
}

func ok(body string) (*transport.Response, error) {
	return &transport.Response{Status: http.StatusOK, ResponseText: body}, nil
}

func forbidden() (*transport.Response, error) {
	return nil, &transport.StatusError{Status: http.StatusForbidden, ResponseText: "Forbidden"}
}

func TestNewClientValidation(t *testing.T) {
	tr := &fakeTransport{}
	creds := &fakeCredentials{}

	_, err := NewClient("", tr, creds)
	assert.Error(t, err)
	_, err = NewClient(testBaseURL, nil, creds)
	assert.Error(t, err)
	_, err = NewClient(testBaseURL, tr, nil)
	assert.Error(t, err)
}

func TestCreateItem(t *testing.T) {
	tr := &fakeTransport{respond: func(request) (*transport.Response, error) {
		return ok(`{"successful":{"0":{"key":"ABCD2345"}}}`)
	}}
	creds := &fakeCredentials{creds: &auth.Credentials{TokenSecret: "KEY", UserID: "123"}}
	c := newTestClient(t, tr, creds)

	body, err := c.CreateItem(context.Background(), []map[string]string{{"itemType": "book", "title": "Go"}}, true)
	require.NoError(t, err)
	assert.Equal(t, `{"successful":{"0":{"key":"ABCD2345"}}}`, body)

	reqs := tr.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, testBaseURL+"users/123/items", reqs[0].url)
	assert.JSONEq(t, `[{"itemType":"book","title":"Go"}]`, string(reqs[0].opts.Body))
	assert.Equal(t, map[string]string{
		"Content-Type":       "application/json",
		"Zotero-API-Key":     "KEY",
		"Zotero-API-Version": "3",
	}, reqs[0].opts.Headers)
	assert.Zero(t, creds.authCalls)
}

func TestCreateItemNotAuthorized(t *testing.T) {
	tr := &fakeTransport{}
	creds := &fakeCredentials{}
	c := newTestClient(t, tr, creds)

	_, err := c.CreateItem(context.Background(), map[string]string{}, false)
	assert.ErrorIs(t, err, common.ErrNotAuthorized)
	assert.Zero(t, creds.authCalls)
	assert.Empty(t, tr.recorded())
}

func TestCreateItemAuthorizesWhenMissingCredentials(t *testing.T) {
	tr := &fakeTransport{respond: func(request) (*transport.Response, error) { return ok("{}") }}
	creds := &fakeCredentials{authorized: &auth.Credentials{TokenSecret: "NEW", UserID: "9"}}
	c := newTestClient(t, tr, creds)

	_, err := c.CreateItem(context.Background(), map[string]string{}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, creds.authCalls)

	reqs := tr.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, testBaseURL+"users/9/items", reqs[0].url)
	assert.Equal(t, "NEW", reqs[0].opts.Headers["Zotero-API-Key"])
}

func TestCreateItemAuthorizationFailure(t *testing.T) {
	tr := &fakeTransport{}
	creds := &fakeCredentials{authErr: common.ErrCancelled}
	c := newTestClient(t, tr, creds)

	_, err := c.CreateItem(context.Background(), map[string]string{}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrCancelled)
	assert.Contains(t, err.Error(), "authentication failed: ")
	assert.Empty(t, tr.recorded())
}

func TestCreateItemRetryIsBounded(t *testing.T) {
	tr := &fakeTransport{respond: func(request) (*transport.Response, error) { return forbidden() }}
	stored := &auth.Credentials{TokenSecret: "KEY", UserID: "123"}
	creds := &fakeCredentials{creds: stored, authorized: stored}
	c := newTestClient(t, tr, creds)

	_, err := c.CreateItem(context.Background(), map[string]string{}, true)
	require.Error(t, err)
	assert.True(t, transport.HasStatus(err, http.StatusForbidden))

	assert.LessOrEqual(t, creds.authCalls, 2)
	assert.Equal(t, 1, creds.authCalls)
	assert.Len(t, tr.recorded(), 2)
}

func TestCreateItemForbiddenWithoutAskForAuth(t *testing.T) {
	tr := &fakeTransport{respond: func(request) (*transport.Response, error) { return forbidden() }}
	creds := &fakeCredentials{creds: &auth.Credentials{TokenSecret: "KEY", UserID: "123"}}
	c := newTestClient(t, tr, creds)

	_, err := c.CreateItem(context.Background(), map[string]string{}, false)
	assert.True(t, transport.HasStatus(err, http.StatusForbidden))
	assert.Zero(t, creds.authCalls)
	assert.Len(t, tr.recorded(), 1)
}

func TestCreateItemRecoversAfterReauthorization(t *testing.T) {
	tr := &fakeTransport{respond: func(r request) (*transport.Response, error) {
		if r.opts.Headers["Zotero-API-Key"] == "OLD" {
			return forbidden()
		}
		return ok("created")
	}}
	creds := &fakeCredentials{
		creds:      &auth.Credentials{TokenSecret: "OLD", UserID: "123"},
		authorized: &auth.Credentials{TokenSecret: "NEW", UserID: "123"},
	}
	c := newTestClient(t, tr, creds)

	body, err := c.CreateItem(context.Background(), map[string]string{}, true)
	require.NoError(t, err)
	assert.Equal(t, "created", body)
	assert.Equal(t, 1, creds.authCalls)
}

func TestCreateItemOtherFailuresPassThrough(t *testing.T) {
	netErr := errors.Join(common.ErrNetwork, errors.New("connection refused"))
	tr := &fakeTransport{respond: func(request) (*transport.Response, error) { return nil, netErr }}
	creds := &fakeCredentials{creds: &auth.Credentials{TokenSecret: "KEY", UserID: "123"}}
	c := newTestClient(t, tr, creds)

	_, err := c.CreateItem(context.Background(), map[string]string{}, true)
	assert.Same(t, netErr, err)
	assert.Zero(t, creds.authCalls)
}

func TestCreateItemFailureLogRedactsKey(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	const secret = "s3cr3tApiKey"
	tr := &fakeTransport{respond: func(request) (*transport.Response, error) {
		return nil, &transport.StatusError{Status: http.StatusBadRequest, ResponseText: "bad request for key " + secret}
	}}
	creds := &fakeCredentials{creds: &auth.Credentials{TokenSecret: secret, UserID: "123"}}
	c := newTestClient(t, tr, creds)

	_, err := c.CreateItem(context.Background(), map[string]string{}, false)
	require.Error(t, err)

	assert.NotContains(t, logs.String(), secret)
	assert.Contains(t, logs.String(), common.RedactedAPIKey)
}
