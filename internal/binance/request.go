package binance

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// FuturesBaseURL is the production Binance Futures API URL
	FuturesBaseURL = "https://fapi.binance.com"
	// FuturesTestnetURL is the testnet Binance Futures API URL
	FuturesTestnetURL = "https://testnet.binancefuture.com"
)

const (
	HeaderAPIKey = "X-MBX-APIKEY"

	pathAccount     = "/fapi/v2/account"
	pathTickerPrice = "/fapi/v1/ticker/price"
	pathOrder       = "/fapi/v1/order"
	pathAllOrders   = "/fapi/v1/allOrders"
)

type param struct {
	key   string
	value string
}

// params keeps insertion order; the exchange verifies the signature against
// the exact byte sequence sent.
type params []param

func (p params) encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv.key)
		b.WriteByte('=')
		b.WriteString(kv.value)
	}
	return b.String()
}

// RequestBuilder assembles signed URLs and headers for each endpoint.
// It performs no I/O.
type RequestBuilder struct {
	baseURL string
	creds   Credentials
	now     func() time.Time
}

// NewRequestBuilder validates configuration up front so that a bad key or URL
// never reaches the network. now defaults to time.Now.
func NewRequestBuilder(baseURL string, creds Credentials, now func() time.Time) (*RequestBuilder, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, &ConfigurationError{Field: "base_url", Message: "must not be empty"}
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &ConfigurationError{Field: "base_url", Message: "must be an absolute URL"}
	}

	// Whitespace in keys silently breaks signatures
	creds = Credentials{
		APIKey:    strings.TrimSpace(creds.APIKey),
		SecretKey: strings.TrimSpace(creds.SecretKey),
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	if now == nil {
		now = time.Now
	}
	return &RequestBuilder{baseURL: baseURL, creds: creds, now: now}, nil
}

// BaseURL returns the normalized exchange base URL.
func (b *RequestBuilder) BaseURL() string {
	return b.baseURL
}

// AccountInfo builds GET /fapi/v2/account.
func (b *RequestBuilder) AccountInfo() SignedRequest {
	return b.signed(http.MethodGet, pathAccount, nil)
}

// PriceTicker builds the public GET /fapi/v1/ticker/price. It carries no
// signature and no API key header.
func (b *RequestBuilder) PriceTicker(symbol string) SignedRequest {
	query := params{{"symbol", symbol}}.encode()
	return SignedRequest{
		Method:  http.MethodGet,
		URL:     b.baseURL + pathTickerPrice + "?" + query,
		Headers: map[string]string{},
	}
}

// PlaceOrder builds POST /fapi/v1/order with
// symbol, side, type, quantity, timestamp in that order.
func (b *RequestBuilder) PlaceOrder(order OrderRequest) SignedRequest {
	orderType := order.Type
	if orderType == "" {
		orderType = OrderTypeMarket
	}
	return b.signed(http.MethodPost, pathOrder, params{
		{"symbol", order.Symbol},
		{"side", string(order.Side)},
		{"type", string(orderType)},
		{"quantity", order.FormattedQuantity()},
	})
}

// OrderHistory builds GET /fapi/v1/allOrders for symbol.
func (b *RequestBuilder) OrderHistory(symbol string) SignedRequest {
	return b.signed(http.MethodGet, pathAllOrders, params{{"symbol", symbol}})
}

// signed appends a fresh timestamp, signs the canonical query and appends
// the signature as the final parameter.
func (b *RequestBuilder) signed(method, path string, ps params) SignedRequest {
	ps = append(ps, param{"timestamp", strconv.FormatInt(b.now().UnixMilli(), 10)})
	query := ps.encode()
	signature := Sign(b.creds.SecretKey, query)

	return SignedRequest{
		Method: method,
		URL:    b.baseURL + path + "?" + query + "&signature=" + signature,
		Headers: map[string]string{
			HeaderAPIKey: b.creds.APIKey,
		},
	}
}
