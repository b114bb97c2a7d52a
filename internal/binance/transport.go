package binance

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Response is what the client needs back from a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Transport performs the HTTP calls. A returned error means no response was
// received at all; any HTTP status, including 4xx/5xx, comes back as a Response.
type Transport interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error)
	Post(ctx context.Context, rawURL string, headers map[string]string) (*Response, error)
}

// RestyTransport is the production Transport.
type RestyTransport struct {
	client *resty.Client
}

// NewRestyTransport creates a transport with a per-call timeout and retries
// disabled: every exchange call is one-shot.
func NewRestyTransport(timeout time.Duration, logger zerolog.Logger) *RestyTransport {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{logger: logger.With().Str("component", "resty").Logger()})

	return &RestyTransport{client: client}
}

func (t *RestyTransport) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return t.do(ctx, http.MethodGet, rawURL, headers)
}

func (t *RestyTransport) Post(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return t.do(ctx, http.MethodPost, rawURL, headers)
}

// do sends rawURL untouched: no query params are added through resty so the
// signed query string reaches the exchange byte for byte.
func (t *RestyTransport) do(ctx context.Context, method, rawURL string, headers map[string]string) (*Response, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Execute(method, rawURL)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		Header:     resp.Header(),
	}, nil
}

type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
