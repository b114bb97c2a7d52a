package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PaperTransport implements Transport against an in-memory futures account
// for dry-run mode. It verifies API key and signature the way the exchange
// does, so a mis-signed request fails here too.
type PaperTransport struct {
	mu          sync.Mutex
	creds       Credentials
	quoteAsset  string
	balances    map[string]decimal.Decimal
	prices      map[string]decimal.Decimal
	orders      map[string][]paperOrder
	calls       map[string]int
	nextOrderID int64
	now         func() time.Time
}

type paperOrder struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Status      string `json:"status"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	AvgPrice    string `json:"avgPrice"`
	CumQuote    string `json:"cumQuote"`
	UpdateTime  int64  `json:"updateTime"`
}

// NewPaperTransport creates a paper account that accepts requests signed with creds.
func NewPaperTransport(creds Credentials, quoteAsset string) *PaperTransport {
	return &PaperTransport{
		creds:       creds,
		quoteAsset:  quoteAsset,
		balances:    make(map[string]decimal.Decimal),
		prices:      make(map[string]decimal.Decimal),
		orders:      make(map[string][]paperOrder),
		calls:       make(map[string]int),
		nextOrderID: 1000,
		now:         time.Now,
	}
}

// SetBalance sets the wallet balance of asset.
func (p *PaperTransport) SetBalance(asset string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[asset] = amount
}

// SetPrice sets the ticker price of symbol.
func (p *PaperTransport) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// Calls returns how many requests hit path.
func (p *PaperTransport) Calls(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

func (p *PaperTransport) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return p.route(ctx, http.MethodGet, rawURL, headers)
}

func (p *PaperTransport) Post(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return p.route(ctx, http.MethodPost, rawURL, headers)
}

func (p *PaperTransport) route(ctx context.Context, method, rawURL string, headers map[string]string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[u.Path]++

	query := u.Query()
	switch {
	case method == http.MethodGet && u.Path == pathTickerPrice:
		return p.tickerPrice(query.Get("symbol"))
	case method == http.MethodGet && u.Path == pathAccount:
		if resp := p.authenticate(u.RawQuery, headers); resp != nil {
			return resp, nil
		}
		return p.account()
	case method == http.MethodPost && u.Path == pathOrder:
		if resp := p.authenticate(u.RawQuery, headers); resp != nil {
			return resp, nil
		}
		return p.placeOrder(query)
	case method == http.MethodGet && u.Path == pathAllOrders:
		if resp := p.authenticate(u.RawQuery, headers); resp != nil {
			return resp, nil
		}
		return p.allOrders(query.Get("symbol"))
	}
	return apiError(http.StatusNotFound, -1000, "Unknown endpoint."), nil
}

// authenticate returns a rejection response, or nil when the request is valid.
func (p *PaperTransport) authenticate(rawQuery string, headers map[string]string) *Response {
	if headers[HeaderAPIKey] != p.creds.APIKey {
		return apiError(http.StatusUnauthorized, -2015, "Invalid API-key, IP, or permissions for action.")
	}
	idx := strings.LastIndex(rawQuery, "&signature=")
	if idx < 0 {
		return apiError(http.StatusBadRequest, -1102, "Mandatory parameter 'signature' was not sent, was empty/null, or malformed.")
	}
	payload, signature := rawQuery[:idx], rawQuery[idx+len("&signature="):]
	if Sign(p.creds.SecretKey, payload) != signature {
		return apiError(http.StatusBadRequest, CodeInvalidSignature, "Signature for this request is not valid.")
	}
	return nil
}

func (p *PaperTransport) tickerPrice(symbol string) (*Response, error) {
	price, ok := p.prices[symbol]
	if !ok {
		return apiError(http.StatusBadRequest, -1121, "Invalid symbol."), nil
	}
	return jsonResponse(priceTicker{Symbol: symbol, Price: price.String()})
}

func (p *PaperTransport) account() (*Response, error) {
	assets := make([]AccountAsset, 0, len(p.balances))
	for asset, amount := range p.balances {
		assets = append(assets, AccountAsset{
			Asset:            asset,
			WalletBalance:    amount.StringFixed(8),
			AvailableBalance: amount.StringFixed(8),
		})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Asset < assets[j].Asset })
	return jsonResponse(AccountInfo{Assets: assets})
}

// placeOrder fills MARKET orders at the ticker price. BUY orders whose
// notional exceeds the quote balance are rejected.
func (p *PaperTransport) placeOrder(query url.Values) (*Response, error) {
	symbol := query.Get("symbol")
	side := query.Get("side")
	orderType := query.Get("type")

	if orderType != string(OrderTypeMarket) {
		return apiError(http.StatusBadRequest, -1116, "Invalid orderType."), nil
	}
	if !Side(side).Valid() {
		return apiError(http.StatusBadRequest, -1117, "Invalid side."), nil
	}
	price, ok := p.prices[symbol]
	if !ok {
		return apiError(http.StatusBadRequest, -1121, "Invalid symbol."), nil
	}
	qty, err := decimal.NewFromString(query.Get("quantity"))
	if err != nil || !qty.IsPositive() {
		return apiError(http.StatusBadRequest, -4003, "Quantity less than or equal to zero."), nil
	}

	notional := qty.Mul(price)
	if Side(side) == SideBuy && notional.GreaterThan(p.balances[p.quoteAsset]) {
		return apiError(http.StatusBadRequest, CodeMarginInsufficient, "Margin is insufficient."), nil
	}

	p.nextOrderID++
	order := paperOrder{
		OrderID:     p.nextOrderID,
		Symbol:      symbol,
		Status:      OrderStatusFilled,
		Side:        side,
		Type:        orderType,
		OrigQty:     qty.String(),
		ExecutedQty: qty.String(),
		AvgPrice:    price.String(),
		CumQuote:    notional.String(),
		UpdateTime:  p.now().UnixMilli(),
	}
	p.orders[symbol] = append(p.orders[symbol], order)
	return jsonResponse(order)
}

func (p *PaperTransport) allOrders(symbol string) (*Response, error) {
	if symbol == "" {
		return apiError(http.StatusBadRequest, -1102, "Mandatory parameter 'symbol' was not sent, was empty/null, or malformed."), nil
	}
	orders := p.orders[symbol]
	if orders == nil {
		orders = []paperOrder{}
	}
	return jsonResponse(orders)
}

func jsonResponse(v interface{}) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error encoding paper response: %w", err)
	}
	return &Response{
		StatusCode: http.StatusOK,
		Body:       body,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func apiError(status, code int, msg string) *Response {
	body, _ := json.Marshal(map[string]interface{}{"code": code, "msg": msg})
	return &Response{
		StatusCode: status,
		Body:       body,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}
