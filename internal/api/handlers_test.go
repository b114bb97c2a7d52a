package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"binance-futures-trader/config"
	"binance-futures-trader/internal/auth"
	"binance-futures-trader/internal/binance"
	"binance-futures-trader/internal/cache"
	"binance-futures-trader/internal/trading"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type marketCall struct {
	symbol   string
	side     binance.Side
	quantity decimal.Decimal
}

// fakeTrading records calls and returns canned results.
type fakeTrading struct {
	marketCalls      []marketCall
	fullBalanceCalls []marketCall
	historySymbol    string
	err              error
	balance          string
	snapshot         *cache.BalanceSnapshot
}

func (f *fakeTrading) QuoteAsset() string { return "USDT" }

func (f *fakeTrading) PlaceMarketOrder(ctx context.Context, symbol string, side binance.Side, quantity decimal.Decimal) (*binance.OrderResponse, error) {
	f.marketCalls = append(f.marketCalls, marketCall{symbol, side, quantity})
	if f.err != nil {
		return nil, f.err
	}
	return orderResponse(`{"orderId":1,"symbol":"` + symbol + `","status":"FILLED","origQty":"` + quantity.String() + `"}`), nil
}

func (f *fakeTrading) PlaceFullBalanceOrder(ctx context.Context, symbol string, side binance.Side) (*binance.OrderResponse, error) {
	f.fullBalanceCalls = append(f.fullBalanceCalls, marketCall{symbol: symbol, side: side})
	if f.err != nil {
		return nil, f.err
	}
	return orderResponse(`{"orderId":2,"symbol":"` + symbol + `","status":"FILLED"}`), nil
}

func (f *fakeTrading) GetBalance(ctx context.Context) (string, error) {
	return f.balance, f.err
}

func (f *fakeTrading) GetOrderHistory(ctx context.Context, symbol string) ([]binance.OrderHistoryEntry, error) {
	f.historySymbol = symbol
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func (f *fakeTrading) RefreshBalance(ctx context.Context) (*cache.BalanceSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.snapshot = &cache.BalanceSnapshot{Asset: "USDT", Balance: f.balance, FetchedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	return f.snapshot, nil
}

func (f *fakeTrading) LastKnownBalance(ctx context.Context) (*cache.BalanceSnapshot, error) {
	if f.snapshot == nil {
		return nil, cache.ErrCacheMiss
	}
	return f.snapshot, nil
}

func orderResponse(raw string) *binance.OrderResponse {
	var resp binance.OrderResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		panic(err)
	}
	return &resp
}

func newTestServer(fake *fakeTrading, jwt *auth.JWTManager) (*Server, *bytes.Buffer) {
	logs := &bytes.Buffer{}
	s := NewServer(ServerConfig{DefaultSymbol: "BTCUSDT", AllowedOrigins: "*"}, fake, jwt, zerolog.New(logs))
	return s, logs
}

func perform(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(&fakeTrading{}, nil)
	s.AddHealthCheck("cache", func(context.Context) error { return nil })
	s.AddHealthCheck("vault", func(context.Context) error { return errors.New("vault is sealed") })

	w := perform(s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "healthy", checks["cache"])
	assert.Equal(t, "vault is sealed", checks["vault"])
}

func TestPlaceOrder_Defaults(t *testing.T) {
	fake := &fakeTrading{}
	s, _ := newTestServer(fake, nil)

	w := perform(s, http.MethodPost, "/binance/place-order", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, fake.marketCalls, 1)
	call := fake.marketCalls[0]
	assert.Equal(t, "BTCUSDT", call.symbol)
	assert.Equal(t, binance.SideBuy, call.side)
	assert.True(t, call.quantity.Equal(decimal.RequireFromString("0.01")))

	// the exchange payload is passed through untouched
	assert.JSONEq(t, `{"orderId":1,"symbol":"BTCUSDT","status":"FILLED","origQty":"0.01"}`, w.Body.String())
}

func TestPlaceOrder_Body(t *testing.T) {
	fake := &fakeTrading{}
	s, _ := newTestServer(fake, nil)

	w := perform(s, http.MethodPost, "/binance/place-order", `{"symbol":"ethusdt","side":"sell","quantity":"0.5"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, fake.marketCalls, 1)
	assert.Equal(t, "ETHUSDT", fake.marketCalls[0].symbol)
	assert.Equal(t, binance.SideSell, fake.marketCalls[0].side)
	assert.True(t, fake.marketCalls[0].quantity.Equal(decimal.RequireFromString("0.5")))
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad side", `{"side":"HOLD"}`, http.StatusBadRequest},
		{"bad symbol", `{"symbol":"BTC-USDT"}`, http.StatusBadRequest},
		{"zero quantity", `{"quantity":0}`, http.StatusBadRequest},
		{"negative quantity", `{"quantity":"-1"}`, http.StatusBadRequest},
		{"huge quantity", `{"quantity":10000000}`, http.StatusBadRequest},
		{"malformed json", `{"symbol":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTrading{}
			s, _ := newTestServer(fake, nil)

			w := perform(s, http.MethodPost, "/binance/place-order", tt.body, nil)
			assert.Equal(t, tt.want, w.Code)
			assert.Empty(t, fake.marketCalls)
		})
	}
}

func TestPlaceFullBalanceOrder(t *testing.T) {
	fake := &fakeTrading{}
	s, _ := newTestServer(fake, nil)

	w := perform(s, http.MethodPost, "/binance/place-full-balance-order", `{"side":"SELL"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, fake.fullBalanceCalls, 1)
	assert.Equal(t, "BTCUSDT", fake.fullBalanceCalls[0].symbol)
	assert.Equal(t, binance.SideSell, fake.fullBalanceCalls[0].side)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"invalid price", &binance.InvalidPriceError{Price: "0"}, http.StatusUnprocessableEntity, "invalid_price"},
		{"invalid balance", &binance.InvalidBalanceError{Balance: "abc", Reason: "not a number"}, http.StatusUnprocessableEntity, "invalid_balance"},
		{"transport", &binance.TransportError{Op: "get account info", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "transport"},
		{"configuration", &binance.ConfigurationError{Field: "api_key", Message: "must not be empty"}, http.StatusInternalServerError, "configuration"},
		{"service validation", trading.ErrInvalidSide, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(&fakeTrading{err: tt.err}, nil)

			w := perform(s, http.MethodPost, "/binance/place-full-balance-order", "", nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantKind, decodeBody(t, w)["error"])
		})
	}
}

func TestErrorMapping_UpstreamDetails(t *testing.T) {
	upstream := &binance.UpstreamError{
		Op:         "place order",
		StatusCode: http.StatusBadRequest,
		Code:       binance.CodeMarginInsufficient,
		Msg:        "Margin is insufficient.",
	}
	s, logs := newTestServer(&fakeTrading{err: upstream}, nil)

	w := perform(s, http.MethodPost, "/binance/place-order", "", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "upstream", body["error"])
	assert.Equal(t, float64(http.StatusBadRequest), body["upstream_status"])
	assert.Equal(t, float64(binance.CodeMarginInsufficient), body["code"])
	assert.Equal(t, "Margin is insufficient.", body["msg"])
	assert.Contains(t, logs.String(), "Request failed")
}

func TestBalances(t *testing.T) {
	fake := &fakeTrading{balance: "500.00000000"}
	s, _ := newTestServer(fake, nil)

	w := perform(s, http.MethodGet, "/binance/last-balance", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(s, http.MethodGet, "/binance/balances", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"asset":"USDT","balance":"500.00000000"}`, w.Body.String())

	w = perform(s, http.MethodGet, "/binance/fetch-balances", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"asset":"USDT","balance":"500.00000000","fetched_at":"2024-01-02T03:04:05.000Z"}`, w.Body.String())

	w = perform(s, http.MethodGet, "/binance/last-balance", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "500.00000000", decodeBody(t, w)["balance"])
}

func TestOrderHistory(t *testing.T) {
	fake := &fakeTrading{}
	s, _ := newTestServer(fake, nil)

	w := perform(s, http.MethodGet, "/binance/order-history?symbol=ethusdt", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ETHUSDT", fake.historySymbol)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = perform(s, http.MethodGet, "/binance/order-history", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BTCUSDT", fake.historySymbol)
}

func TestRequestIDPropagation(t *testing.T) {
	s, logs := newTestServer(&fakeTrading{balance: "1"}, nil)

	w := perform(s, http.MethodGet, "/binance/balances", "", map[string]string{headerRequestID: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(headerRequestID))
	assert.Contains(t, logs.String(), `"trace_id":"req-123"`)

	w = perform(s, http.MethodGet, "/binance/balances", "", nil)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	jwt := auth.NewJWTManager("test-secret", "trader")
	fake := &fakeTrading{balance: "1"}
	s, _ := newTestServer(fake, jwt)

	w := perform(s, http.MethodPost, "/binance/place-order", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fake.marketCalls)

	token, err := jwt.GenerateToken("operator", time.Minute)
	require.NoError(t, err)
	w = perform(s, http.MethodPost, "/binance/place-order", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays public
	w = perform(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	assert.True(t, rl.Allow("/binance/place-order"))
	assert.True(t, rl.Allow("/binance/place-order"))
	assert.False(t, rl.Allow("/binance/place-order"))
	assert.True(t, rl.Allow("/binance/balances"))
}

func TestRateLimitMiddleware(t *testing.T) {
	fake := &fakeTrading{balance: "1"}
	s := NewServer(ServerConfig{RateLimit: 1}, fake, nil, zerolog.Nop())

	assert.Equal(t, http.StatusOK, perform(s, http.MethodGet, "/binance/balances", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, perform(s, http.MethodGet, "/binance/balances", "", nil).Code)
}

func TestCORSHeaders(t *testing.T) {
	s, _ := newTestServer(&fakeTrading{}, nil)

	w := perform(s, http.MethodOptions, "/binance/balances", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestValidateSymbol(t *testing.T) {
	symbol, err := validateSymbol(" btcusdt ")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", symbol)

	_, err = validateSymbol("B")
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "symbol", validationErr.Field)
}

// rejectingTransport answers every call with the same exchange error.
type rejectingTransport struct {
	status int
	body   string
}

func (r rejectingTransport) Get(ctx context.Context, rawURL string, headers map[string]string) (*binance.Response, error) {
	return &binance.Response{StatusCode: r.status, Body: []byte(r.body), Header: http.Header{}}, nil
}

func (r rejectingTransport) Post(ctx context.Context, rawURL string, headers map[string]string) (*binance.Response, error) {
	return r.Get(ctx, rawURL, headers)
}

func TestUpstreamFailureIsLoggedOnce(t *testing.T) {
	logs := &bytes.Buffer{}
	logger := zerolog.New(logs)

	creds := binance.Credentials{APIKey: "key", SecretKey: "secret"}
	builder, err := binance.NewRequestBuilder(binance.FuturesTestnetURL, creds, nil)
	require.NoError(t, err)
	transport := rejectingTransport{status: http.StatusBadRequest, body: `{"code":-1022,"msg":"Signature for this request is not valid."}`}
	client := binance.NewClient(builder, transport, logger)
	svc := trading.NewService(client, nil, config.DefaultTradingConfig(), logger)
	s := NewServer(ServerConfig{DefaultSymbol: "BTCUSDT", AllowedOrigins: "*"}, svc, nil, logger)

	w := perform(s, http.MethodGet, "/binance/balances", "", map[string]string{headerRequestID: "req-7"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, float64(-1022), decodeBody(t, w)["code"])

	var errorLines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["level"] == "error" {
			errorLines = append(errorLines, entry)
		}
	}
	require.Len(t, errorLines, 1)
	assert.Equal(t, "Exchange returned an error response", errorLines[0]["message"])
	assert.Equal(t, "req-7", errorLines[0]["trace_id"])
}

func TestUnclassifiedFailureIsLoggedAsError(t *testing.T) {
	s, logs := newTestServer(&fakeTrading{err: errors.New("boom")}, nil)

	w := perform(s, http.MethodGet, "/binance/balances", "", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, logs.String(), `"level":"error"`)
	assert.Contains(t, logs.String(), "Request failed")
}

func TestShutdownBeforeStart(t *testing.T) {
	s, _ := newTestServer(&fakeTrading{}, nil)

	require.NoError(t, s.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept serving after Shutdown")
	}
}
