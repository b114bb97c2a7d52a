package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestyTransport_SendsSignedQueryVerbatim(t *testing.T) {
	var (
		gotQuery  string
		gotKey    string
		gotMethod string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get(HeaderAPIKey)
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orderId":7,"symbol":"BTCUSDT","status":"NEW"}`))
	}))
	defer server.Close()

	builder, err := NewRequestBuilder(server.URL, Credentials{APIKey: testAPIKey, SecretKey: testSecretKey}, fixedClock(1700000000000))
	require.NoError(t, err)
	client := NewClient(builder, NewRestyTransport(5*time.Second, zerolog.Nop()), zerolog.Nop())

	resp, err := client.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: SideBuy, Quantity: decimal.RequireFromString("0.02"), Precision: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "NEW", resp.Status)

	query := "symbol=BTCUSDT&side=BUY&type=MARKET&quantity=0.020&timestamp=1700000000000"
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, query+"&signature="+Sign(testSecretKey, query), gotQuery)
	assert.Equal(t, testAPIKey, gotKey)
}

func TestRestyTransport_NonSuccessIsAResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MBX-USED-WEIGHT-1M", "1200")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
	}))
	defer server.Close()

	transport := NewRestyTransport(5*time.Second, zerolog.Nop())
	resp, err := transport.Get(context.Background(), server.URL+"/fapi/v2/account?timestamp=1", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1200", resp.Header.Get("X-MBX-USED-WEIGHT-1M"))
	assert.JSONEq(t, `{"code":-1003,"msg":"Too many requests."}`, string(resp.Body))
}

func TestRestyTransport_UnreachableHostIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	builder, err := NewRequestBuilder(baseURL, Credentials{APIKey: testAPIKey, SecretKey: testSecretKey}, nil)
	require.NoError(t, err)
	client := NewClient(builder, NewRestyTransport(2*time.Second, zerolog.Nop()), zerolog.Nop())

	_, err = client.GetAccountInfo(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestRestyTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	transport := NewRestyTransport(50*time.Millisecond, zerolog.Nop())
	_, err := transport.Get(context.Background(), server.URL+"/fapi/v1/ticker/price?symbol=BTCUSDT", nil)
	assert.Error(t, err)
}
