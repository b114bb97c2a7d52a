package binance

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType is the Binance order type. Only MARKET is placed by this client.
type OrderType string

const OrderTypeMarket OrderType = "MARKET"

// OrderStatusFilled is the only status the client reacts to (for logging).
const OrderStatusFilled = "FILLED"

const (
	// ExplicitQuantityPrecision is the decimal precision of caller-sized orders.
	ExplicitQuantityPrecision int32 = 3
	// FullBalanceQuantityPrecision is the floor precision of balance-sized orders.
	FullBalanceQuantityPrecision int32 = 6
)

// Credentials are the account API key pair. They are read-only once built.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// Validate fails fast on missing credentials.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &ConfigurationError{Field: "api_key", Message: "must not be empty"}
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return &ConfigurationError{Field: "api_secret", Message: "must not be empty"}
	}
	return nil
}

// String keeps the secret out of logs and fmt output.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{APIKey:%s}", maskKey(c.APIKey))
}

// SignedRequest is an authenticated URL plus headers, built once per call.
type SignedRequest struct {
	Method  string
	URL     string
	Headers map[string]string
}

// AccountAsset is one entry of the futures account's assets array.
type AccountAsset struct {
	Asset            string `json:"asset"`
	WalletBalance    string `json:"walletBalance"`
	AvailableBalance string `json:"availableBalance"`
}

// AccountInfo is a snapshot of /fapi/v2/account. Only assets are decoded.
type AccountInfo struct {
	Assets []AccountAsset `json:"assets"`
}

// WalletBalance returns the wallet balance for asset, or "0" when the account
// holds no entry for it.
func (a *AccountInfo) WalletBalance(asset string) string {
	for _, entry := range a.Assets {
		if entry.Asset == asset {
			return entry.WalletBalance
		}
	}
	return "0"
}

// OrderRequest describes a MARKET order. Precision controls how Quantity is
// rendered into the signed query string.
type OrderRequest struct {
	Symbol    string
	Side      Side
	Type      OrderType
	Quantity  decimal.Decimal
	Precision int32
}

// FormattedQuantity renders Quantity with exactly Precision decimals.
func (o OrderRequest) FormattedQuantity() string {
	return o.Quantity.StringFixed(o.Precision)
}

// OrderResponse is the exchange's order payload. Raw holds the body verbatim;
// the typed fields are read for logging only.
type OrderResponse struct {
	OrderID int64           `json:"orderId"`
	Symbol  string          `json:"symbol"`
	Side    string          `json:"side"`
	Status  string          `json:"status"`
	Raw     json.RawMessage `json:"-"`
}

// OrderHistoryEntry is one element of /fapi/v1/allOrders; it shares the
// order payload shape.
type OrderHistoryEntry = OrderResponse

func (o *OrderResponse) UnmarshalJSON(data []byte) error {
	type plain OrderResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = OrderResponse(p)
	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (o OrderResponse) MarshalJSON() ([]byte, error) {
	if len(o.Raw) > 0 {
		return o.Raw, nil
	}
	type plain OrderResponse
	return json.Marshal(plain(o))
}

type priceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
