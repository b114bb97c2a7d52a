package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"binance-futures-trader/internal/logging"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client executes signed requests through a Transport and normalizes every
// failure into a TransportError or UpstreamError.
type Client struct {
	builder   *RequestBuilder
	transport Transport
	weights   *WeightTracker
	logger    zerolog.Logger
}

// NewClient creates a new Client instance
func NewClient(builder *RequestBuilder, transport Transport, logger zerolog.Logger) *Client {
	logger = logger.With().Str("component", "binance").Logger()
	return &Client{
		builder:   builder,
		transport: transport,
		weights:   NewWeightTracker(DefaultMaxWeight, logger),
		logger:    logger,
	}
}

// Weights returns the tracker fed by every exchange response.
func (c *Client) Weights() *WeightTracker {
	return c.weights
}

// ==================== ACCOUNT ====================

// GetAccountInfo retrieves futures account information
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	const op = "get account info"

	resp, err := c.execute(ctx, op, c.builder.AccountInfo())
	if err != nil {
		return nil, err
	}

	var info AccountInfo
	if err := c.decode(ctx, op, resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetBalance returns the wallet balance of asset as a decimal string.
// A successful response without the asset yields "0".
func (c *Client) GetBalance(ctx context.Context, asset string) (string, error) {
	info, err := c.GetAccountInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.WalletBalance(asset), nil
}

// ==================== MARKET DATA ====================

// GetCurrentPrice retrieves the last price for a symbol
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	const op = "get current price"

	resp, err := c.execute(ctx, op, c.builder.PriceTicker(symbol))
	if err != nil {
		return decimal.Zero, err
	}

	var ticker priceTicker
	if err := c.decode(ctx, op, resp, &ticker); err != nil {
		return decimal.Zero, err
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, c.malformed(ctx, op, resp, fmt.Errorf("price %q: %w", ticker.Price, err))
	}
	return price, nil
}

// ==================== TRADING ====================

// PlaceOrder submits order. Any status is returned as is; FILLED only adds a
// debug event.
func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	const op = "place order"

	resp, err := c.execute(ctx, op, c.builder.PlaceOrder(order))
	if err != nil {
		return nil, err
	}

	var orderResp OrderResponse
	if err := c.decode(ctx, op, resp, &orderResp); err != nil {
		return nil, err
	}

	if orderResp.Status == OrderStatusFilled {
		logger := logging.Traced(ctx, c.logger)
		logger.Debug().
			Int64("order_id", orderResp.OrderID).
			Str("symbol", orderResp.Symbol).
			RawJSON("order", orderResp.Raw).
			Msg("Order filled successfully")
	}
	return &orderResp, nil
}

// ==================== HISTORY ====================

// GetOrderHistory retrieves all orders for a symbol, oldest first as the
// exchange returns them.
func (c *Client) GetOrderHistory(ctx context.Context, symbol string) ([]OrderHistoryEntry, error) {
	const op = "get order history"

	resp, err := c.execute(ctx, op, c.builder.OrderHistory(symbol))
	if err != nil {
		return nil, err
	}

	var orders []OrderHistoryEntry
	if err := c.decode(ctx, op, resp, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ==================== HTTP HELPERS ====================

// execute sends req and returns the response only for 2xx statuses.
// Failures are logged here, once, and returned typed.
func (c *Client) execute(ctx context.Context, op string, req SignedRequest) (*Response, error) {
	logger := logging.Traced(ctx, c.logger)
	logger.Debug().
		Str("op", op).
		Str("method", req.Method).
		Str("url", logging.RedactURL(req.URL)).
		Interface("headers", logging.RedactHeaders(req.Headers)).
		Msg("Sending exchange request")

	var (
		resp *Response
		err  error
	)
	switch req.Method {
	case http.MethodPost:
		resp, err = c.transport.Post(ctx, req.URL, req.Headers)
	default:
		resp, err = c.transport.Get(ctx, req.URL, req.Headers)
	}

	if err != nil {
		logger.Error().
			Err(err).
			Str("op", op).
			Str("url", logging.RedactURL(req.URL)).
			Msg("Exchange request could not complete")
		return nil, &TransportError{Op: op, Err: err}
	}
	c.weights.Observe(resp.StatusCode, resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstreamErr := newUpstreamError(op, resp.StatusCode, resp.Body, resp.Header)
		logger.Error().
			Str("op", op).
			Int("status", resp.StatusCode).
			Int("code", upstreamErr.Code).
			Str("body", string(resp.Body)).
			Interface("response_headers", resp.Header).
			Msg("Exchange returned an error response")
		return nil, upstreamErr
	}

	return resp, nil
}

func (c *Client) decode(ctx context.Context, op string, resp *Response, v interface{}) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return c.malformed(ctx, op, resp, err)
	}
	return nil
}

// malformed reports a 2xx body that does not have the expected shape.
func (c *Client) malformed(ctx context.Context, op string, resp *Response, cause error) error {
	logger := logging.Traced(ctx, c.logger)
	logger.Error().
		Err(cause).
		Str("op", op).
		Int("status", resp.StatusCode).
		Str("body", string(resp.Body)).
		Msg("Exchange response could not be parsed")
	return &UpstreamError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
		Header:     resp.Header,
		Msg:        "malformed response: " + cause.Error(),
	}
}
