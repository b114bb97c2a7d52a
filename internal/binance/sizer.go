package binance

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ComputeFullBalanceQuantity sizes an order that spends the whole balance at
// price. The quotient is floored at precision decimals so the order never asks
// for more than the wallet can fund.
func ComputeFullBalanceQuantity(balance string, price decimal.Decimal, precision int32) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, &InvalidPriceError{Price: price.String()}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(balance))
	if err != nil {
		return decimal.Zero, &InvalidBalanceError{Balance: balance, Reason: "not a decimal number"}
	}
	if amount.IsNegative() {
		return decimal.Zero, &InvalidBalanceError{Balance: balance, Reason: "must not be negative"}
	}

	// QuoRem truncates exactly; Div would round at DivisionPrecision first.
	quantity, _ := amount.QuoRem(price, precision)
	return quantity, nil
}
