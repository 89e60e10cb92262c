package service

import (
	"coin_swap/internal/domain"

	"github.com/shopspring/decimal"
)

// Convert returns amount * fromPrice / toPrice.
// ok is false when toPrice is zero, since the result would not be finite.
func Convert(fromPrice, toPrice, amount decimal.Decimal) (decimal.Decimal, bool) {
	if toPrice.IsZero() {
		return decimal.Zero, false
	}
	return amount.Mul(fromPrice).Div(toPrice), true
}

// ConvertPair converts the selection's amount; ok is false while either asset is absent.
func ConvertPair(sel domain.PairSelection) (decimal.Decimal, bool) {
	if !sel.Complete() {
		return decimal.Zero, false
	}
	return Convert(sel.From.Price, sel.To.Price, sel.Amount)
}
