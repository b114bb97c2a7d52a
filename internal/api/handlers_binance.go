package api

import (
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"binance-futures-trader/internal/binance"
	"binance-futures-trader/internal/cache"
	"binance-futures-trader/internal/logging"
	"binance-futures-trader/internal/trading"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ==================== INPUT VALIDATION HELPERS ====================

var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// defaultQuantity is used when a place-order body omits quantity.
var defaultQuantity = decimal.RequireFromString("0.01")

// maxQuantity is a sanity bound on explicit order sizes.
var maxQuantity = decimal.NewFromInt(1000000)

// validateSymbol validates and normalizes a trading symbol
func validateSymbol(symbol string) (string, error) {
	// Normalize to uppercase
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	// Check format
	if !symbolRegex.MatchString(symbol) {
		return "", &ValidationError{Field: "symbol", Message: "invalid symbol format"}
	}

	return symbol, nil
}

// validateSide normalizes BUY or SELL
func validateSide(side string) (binance.Side, error) {
	s := binance.Side(strings.ToUpper(strings.TrimSpace(side)))
	if !s.Valid() {
		return "", &ValidationError{Field: "side", Message: "side must be BUY or SELL"}
	}
	return s, nil
}

// validateQuantity validates order quantity
func validateQuantity(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Message: "quantity must be positive"}
	}
	if quantity.GreaterThan(maxQuantity) {
		return &ValidationError{Field: "quantity", Message: "quantity exceeds maximum"}
	}
	return nil
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ==================== REQUEST TYPES ====================

// PlaceOrderRequest is the body of POST /binance/place-order. Every field
// is optional.
type PlaceOrderRequest struct {
	Symbol   string           `json:"symbol"`
	Side     string           `json:"side"`
	Quantity *decimal.Decimal `json:"quantity"`
}

// PlaceFullBalanceOrderRequest is the body of POST /binance/place-full-balance-order.
type PlaceFullBalanceOrderRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
}

// BalanceResponse reports a quote-asset balance.
type BalanceResponse struct {
	Asset     string `json:"asset"`
	Balance   string `json:"balance"`
	FetchedAt string `json:"fetched_at,omitempty"`
}

// ==================== HANDLERS ====================

// handlePlaceOrder places a MARKET order for an explicit quantity
func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	symbol, side, err := s.orderTarget(req.Symbol, req.Side)
	if err != nil {
		s.writeError(c, err)
		return
	}

	quantity := defaultQuantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if err := validateQuantity(quantity); err != nil {
		s.writeError(c, err)
		return
	}

	resp, err := s.trading.PlaceMarketOrder(c.Request.Context(), symbol, side, quantity)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handlePlaceFullBalanceOrder places a MARKET order sized to the whole balance
func (s *Server) handlePlaceFullBalanceOrder(c *gin.Context) {
	var req PlaceFullBalanceOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	symbol, side, err := s.orderTarget(req.Symbol, req.Side)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp, err := s.trading.PlaceFullBalanceOrder(c.Request.Context(), symbol, side)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleGetBalance returns the live quote-asset balance
func (s *Server) handleGetBalance(c *gin.Context) {
	balance, err := s.trading.GetBalance(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{Asset: s.trading.QuoteAsset(), Balance: balance})
}

// handleFetchBalance refreshes the last known balance and returns it
func (s *Server) handleFetchBalance(c *gin.Context) {
	snap, err := s.trading.RefreshBalance(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshotResponse(snap))
}

// handleLastBalance returns the last refreshed balance without calling the exchange
func (s *Server) handleLastBalance(c *gin.Context) {
	snap, err := s.trading.LastKnownBalance(c.Request.Context())
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "NOT_FOUND",
				"message": "no balance has been fetched yet",
			})
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshotResponse(snap))
}

// handleOrderHistory returns all orders of a symbol
func (s *Server) handleOrderHistory(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		symbol = s.config.DefaultSymbol
	}
	symbol, err := validateSymbol(symbol)
	if err != nil {
		s.writeError(c, err)
		return
	}

	orders, err := s.trading.GetOrderHistory(c.Request.Context(), symbol)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if orders == nil {
		orders = []binance.OrderHistoryEntry{}
	}

	c.JSON(http.StatusOK, orders)
}

// ==================== HELPERS ====================

// orderTarget applies the BTCUSDT/BUY defaults and validates both fields.
func (s *Server) orderTarget(symbol, side string) (string, binance.Side, error) {
	if strings.TrimSpace(symbol) == "" {
		symbol = s.config.DefaultSymbol
	}
	if strings.TrimSpace(side) == "" {
		side = string(binance.SideBuy)
	}

	symbol, err := validateSymbol(symbol)
	if err != nil {
		return "", "", err
	}
	orderSide, err := validateSide(side)
	if err != nil {
		return "", "", err
	}
	return symbol, orderSide, nil
}

// bindOptionalJSON decodes the body into v. An empty body leaves v untouched.
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_REQUEST",
			"message": err.Error(),
		})
		return false
	}
	return true
}

func snapshotResponse(snap *cache.BalanceSnapshot) BalanceResponse {
	resp := BalanceResponse{Asset: snap.Asset, Balance: snap.Balance}
	if !snap.FetchedAt.IsZero() {
		resp.FetchedAt = snap.FetchedAt.Format("2006-01-02T15:04:05.000Z07:00")
	}
	return resp
}

// writeError maps an operation error onto an HTTP status and JSON body.
func (s *Server) writeError(c *gin.Context, err error) {
	logger := logging.FromContextOr(c.Request.Context(), s.logger)

	var validationErr *ValidationError
	if errors.As(err, &validationErr) || trading.IsValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	kind := binance.KindOf(err)
	body := gin.H{
		"error":   kind.String(),
		"message": err.Error(),
	}
	status := http.StatusInternalServerError

	switch kind {
	case binance.KindInvalidPrice, binance.KindInvalidBalance:
		status = http.StatusUnprocessableEntity
	case binance.KindTransport:
		status = http.StatusGatewayTimeout
	case binance.KindUpstream:
		status = http.StatusBadGateway
		var upstreamErr *binance.UpstreamError
		if errors.As(err, &upstreamErr) {
			body["upstream_status"] = upstreamErr.StatusCode
			body["code"] = upstreamErr.Code
			body["msg"] = upstreamErr.Msg
		}
	}

	// Exchange and sizing failures were already logged where they happened.
	event := logger.Error()
	switch kind {
	case binance.KindTransport, binance.KindUpstream, binance.KindInvalidPrice, binance.KindInvalidBalance:
		event = logger.Debug()
	}
	event.Err(err).Int("status", status).Str("kind", kind.String()).Msg("Request failed")
	c.JSON(status, body)
}
