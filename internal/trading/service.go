// Package trading is the operation layer over the exchange client: explicit
// and full-balance MARKET orders, balance and order history queries.
package trading

import (
	"context"
	"errors"
	"strings"
	"time"

	"binance-futures-trader/config"
	"binance-futures-trader/internal/binance"
	"binance-futures-trader/internal/cache"
	"binance-futures-trader/internal/logging"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Validation errors returned before any exchange call.
var (
	ErrInvalidSide     = errors.New("side must be BUY or SELL")
	ErrInvalidSymbol   = errors.New("symbol must not be empty")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero at the order precision")
)

// Exchange is the subset of the exchange client the service drives.
type Exchange interface {
	GetBalance(ctx context.Context, asset string) (string, error)
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, order binance.OrderRequest) (*binance.OrderResponse, error)
	GetOrderHistory(ctx context.Context, symbol string) ([]binance.OrderHistoryEntry, error)
}

// Service places orders and reads account state. Each call runs its exchange
// requests strictly in sequence and stops at the first failure.
type Service struct {
	exchange             Exchange
	balances             cache.BalanceCache
	quoteAsset           string
	quantityPrecision    int32
	fullBalancePrecision int32
	logger               zerolog.Logger
	now                  func() time.Time
}

// NewService creates a Service. balances may be nil, in which case an
// in-memory cache is used. Precisions are taken as given: zero means whole
// contracts. config.DefaultTradingConfig holds the usual values.
func NewService(exchange Exchange, balances cache.BalanceCache, cfg config.TradingConfig, logger zerolog.Logger) *Service {
	if balances == nil {
		balances = cache.NewMemoryCache()
	}
	quoteAsset := cfg.QuoteAsset
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &Service{
		exchange:             exchange,
		balances:             balances,
		quoteAsset:           quoteAsset,
		quantityPrecision:    cfg.QuantityPrecision,
		fullBalancePrecision: cfg.FullBalancePrecision,
		logger:               logger.With().Str("component", "trading").Logger(),
		now:                  time.Now,
	}
}

// QuoteAsset returns the asset whose balance funds full-balance orders.
func (s *Service) QuoteAsset() string {
	return s.quoteAsset
}

// PlaceMarketOrder places a MARKET order for an explicit quantity, truncated
// to the explicit-order precision. A quantity that truncates to zero is
// rejected before any exchange call.
func (s *Service) PlaceMarketOrder(ctx context.Context, symbol string, side binance.Side, quantity decimal.Decimal) (*binance.OrderResponse, error) {
	symbol, err := validateOrder(symbol, side)
	if err != nil {
		return nil, err
	}
	quantity = quantity.Truncate(s.quantityPrecision)
	if !quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}

	logger := logging.OrderContext(s.log(ctx), symbol, string(side))
	order := binance.OrderRequest{
		Symbol:    symbol,
		Side:      side,
		Type:      binance.OrderTypeMarket,
		Quantity:  quantity,
		Precision: s.quantityPrecision,
	}
	logger.Info().Str("quantity", order.FormattedQuantity()).Msg("Placing market order")

	resp, err := s.exchange.PlaceOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	logger.Info().Int64("order_id", resp.OrderID).Str("status", resp.Status).Msg("Market order placed")
	return resp, nil
}

// PlaceFullBalanceOrder sizes a MARKET order to the whole quote-asset balance
// at the current price, floored to the full-balance precision. Balance, price
// and order requests run in that order; the first failure is returned as is
// and nothing after it is sent.
func (s *Service) PlaceFullBalanceOrder(ctx context.Context, symbol string, side binance.Side) (*binance.OrderResponse, error) {
	symbol, err := validateOrder(symbol, side)
	if err != nil {
		return nil, err
	}
	logger := logging.OrderContext(s.log(ctx), symbol, string(side))

	balance, err := s.exchange.GetBalance(ctx, s.quoteAsset)
	if err != nil {
		return nil, err
	}

	price, err := s.exchange.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	quantity, err := binance.ComputeFullBalanceQuantity(balance, price, s.fullBalancePrecision)
	if err != nil {
		logger.Warn().Err(err).Str("balance", balance).Str("price", price.String()).Msg("Full-balance order could not be sized")
		return nil, err
	}

	order := binance.OrderRequest{
		Symbol:    symbol,
		Side:      side,
		Type:      binance.OrderTypeMarket,
		Quantity:  quantity,
		Precision: s.fullBalancePrecision,
	}
	logger.Info().
		Str("balance", balance).
		Str("price", price.String()).
		Str("quantity", order.FormattedQuantity()).
		Msg("Placing full-balance order")

	resp, err := s.exchange.PlaceOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	logger.Info().Int64("order_id", resp.OrderID).Str("status", resp.Status).Msg("Full-balance order placed")
	return resp, nil
}

// GetBalance returns the live quote-asset wallet balance.
func (s *Service) GetBalance(ctx context.Context) (string, error) {
	balance, err := s.exchange.GetBalance(ctx, s.quoteAsset)
	if err != nil {
		return "", err
	}
	logger := s.log(ctx)
	logger.Info().Str("asset", s.quoteAsset).Str("balance", balance).Msg("Balance fetched")
	return balance, nil
}

// GetOrderHistory returns every order of symbol as the exchange reports it.
func (s *Service) GetOrderHistory(ctx context.Context, symbol string) ([]binance.OrderHistoryEntry, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}

	orders, err := s.exchange.GetOrderHistory(ctx, symbol)
	if err != nil {
		return nil, err
	}
	logger := s.log(ctx)
	logger.Info().Str("symbol", symbol).Int("orders", len(orders)).Msg("Order history fetched")
	return orders, nil
}

// RefreshBalance fetches the live balance and records it as the last known
// value. A cache write failure is logged and does not fail the call.
func (s *Service) RefreshBalance(ctx context.Context) (*cache.BalanceSnapshot, error) {
	balance, err := s.GetBalance(ctx)
	if err != nil {
		return nil, err
	}

	snap := cache.BalanceSnapshot{Asset: s.quoteAsset, Balance: balance, FetchedAt: s.now().UTC()}
	if err := s.balances.StoreBalance(ctx, snap); err != nil {
		logger := s.log(ctx)
		logger.Warn().Err(err).Str("asset", s.quoteAsset).Msg("Failed to record last known balance")
	}
	return &snap, nil
}

// LastKnownBalance returns the balance recorded by the latest RefreshBalance.
// It is informational only and never used to size an order.
func (s *Service) LastKnownBalance(ctx context.Context) (*cache.BalanceSnapshot, error) {
	return s.balances.LastBalance(ctx, s.quoteAsset)
}

func (s *Service) log(ctx context.Context) zerolog.Logger {
	return logging.Traced(ctx, s.logger)
}

func validateOrder(symbol string, side binance.Side) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return "", ErrInvalidSymbol
	}
	if !side.Valid() {
		return "", ErrInvalidSide
	}
	return symbol, nil
}

// IsValidationError reports whether err was rejected before reaching the exchange.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSide) || errors.Is(err, ErrInvalidSymbol) || errors.Is(err, ErrInvalidQuantity)
}
