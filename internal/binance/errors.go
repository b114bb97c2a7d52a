package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every failure the client can surface.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindInvalidPrice
	KindInvalidBalance
	KindTransport
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInvalidPrice:
		return "invalid_price"
	case KindInvalidBalance:
		return "invalid_balance"
	case KindTransport:
		return "transport"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Binance error codes callers commonly need to tell apart.
const (
	CodeTooManyRequests     = -1003
	CodeInvalidSignature    = -1022
	CodeBalanceInsufficient = -2018
	CodeMarginInsufficient  = -2019
)

// ConfigurationError reports missing or invalid credentials or base URL.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// InvalidPriceError is returned by sizing when the quote is not strictly positive.
type InvalidPriceError struct {
	Price string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %q: must be greater than zero", e.Price)
}

// InvalidBalanceError is returned by sizing when the balance is not a usable number.
type InvalidBalanceError struct {
	Balance string
	Reason  string
}

func (e *InvalidBalanceError) Error() string {
	return fmt.Sprintf("invalid balance %q: %s", e.Balance, e.Reason)
}

// TransportError wraps a call that never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError carries a non-success exchange response.
// Code and Msg are filled when the body is a Binance error payload.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Header     http.Header
	Code       int
	Msg        string
}

func (e *UpstreamError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: upstream status %d: code %d: %s", e.Op, e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsRateLimited reports whether the exchange throttled or banned the caller.
func (e *UpstreamError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == 418 || e.Code == CodeTooManyRequests
}

// IsInvalidSignature reports a signature rejected by the exchange.
func (e *UpstreamError) IsInvalidSignature() bool {
	return e.Code == CodeInvalidSignature
}

// IsInsufficientBalance reports an order the wallet could not fund.
func (e *UpstreamError) IsInsufficientBalance() bool {
	return e.Code == CodeBalanceInsufficient || e.Code == CodeMarginInsufficient
}

func newUpstreamError(op string, status int, body []byte, header http.Header) *UpstreamError {
	ue := &UpstreamError{
		Op:         op,
		StatusCode: status,
		Body:       string(body),
		Header:     header,
	}
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Code != 0 {
		ue.Code = payload.Code
		ue.Msg = payload.Msg
	}
	return ue
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var (
		cfgErr      *ConfigurationError
		priceErr    *InvalidPriceError
		balanceErr  *InvalidBalanceError
		transErr    *TransportError
		upstreamErr *UpstreamError
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &priceErr):
		return KindInvalidPrice
	case errors.As(err, &balanceErr):
		return KindInvalidBalance
	case errors.As(err, &transErr):
		return KindTransport
	case errors.As(err, &upstreamErr):
		return KindUpstream
	default:
		return KindUnknown
	}
}
