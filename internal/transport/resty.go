package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/florianilch/zotcon/internal/common"
)

// DefaultTimeout bounds every request made by RestyTransport.
const DefaultTimeout = 30 * time.Second

// Option configures a RestyTransport.
type Option func(*restyConfig)

type restyConfig struct {
	timeout       time.Duration
	baseTransport http.RoundTripper
	userAgent     string
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *restyConfig) {
		c.timeout = timeout
	}
}

// WithTransport sets a custom base transport for outgoing requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *restyConfig) {
		c.baseTransport = transport
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(userAgent string) Option {
	return func(c *restyConfig) {
		c.userAgent = userAgent
	}
}

// RestyTransport implements Transport on top of a resty client.
type RestyTransport struct {
	client *resty.Client
}

// Compile-time check to ensure RestyTransport implements Transport
var _ Transport = (*RestyTransport)(nil)

// NewRestyTransport creates a RestyTransport.
func NewRestyTransport(opts ...Option) *RestyTransport {
	cfg := &restyConfig{
		timeout:       DefaultTimeout,
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := resty.New().
		SetTimeout(cfg.timeout).
		SetTransport(cfg.baseTransport).
		SetLogger(slogLogger{})
	if cfg.userAgent != "" {
		client.SetHeader("User-Agent", cfg.userAgent)
	}

	return &RestyTransport{client: client}
}

// Request performs the request and returns its status and body text.
func (t *RestyTransport) Request(ctx context.Context, method, url string, opts Options) (*Response, error) {
	req := t.client.R().
		SetContext(ctx).
		SetHeaders(opts.Headers)
	if opts.Body != nil {
		req.SetBody(opts.Body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", common.ErrNetwork, method, url, err)
	}

	status := resp.StatusCode()
	slog.DebugContext(ctx, "http request completed", "method", method, "url", url, "status", status, "duration", resp.Time())

	out := &Response{
		Status:       status,
		ResponseText: string(resp.Body()),
	}
	if !opts.AcceptAnyStatus && (status < 200 || status > 299) {
		return nil, &StatusError{Status: out.Status, ResponseText: out.ResponseText}
	}
	return out, nil
}

// slogLogger routes resty's internal messages to the default slog logger.
type slogLogger struct{}

var _ resty.Logger = slogLogger{}

func (slogLogger) Errorf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (slogLogger) Warnf(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (slogLogger) Debugf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
