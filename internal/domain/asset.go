package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultQuote is the quote currency used to build trade channel names
const DefaultQuote = "usdt"

// Asset represents a tradable instrument from the catalog
type Asset struct {
	ID      string          `json:"id"`     // Stable identity (e.g., "bitcoin")
	Symbol  string          `json:"symbol"` // Ticker (e.g., "btc"), compared case-insensitively
	Name    string          `json:"name"`
	IconURL string          `json:"icon_url"`
	Price   decimal.Decimal `json:"price"` // Reference price, overwritten by live ticks
}

// WithPrice returns a shallow copy of the asset carrying the new price.
func (a Asset) WithPrice(price decimal.Decimal) Asset {
	a.Price = price
	return a
}

// ChannelID returns the stream name for the asset (e.g., "btcusdt@trade").
func (a Asset) ChannelID(quote string) string {
	return strings.ToLower(a.Symbol) + strings.ToLower(quote) + "@trade"
}

// TradeSymbol returns the exchange symbol carried by trade events (e.g., "BTCUSDT").
func (a Asset) TradeSymbol(quote string) string {
	return strings.ToUpper(a.Symbol) + strings.ToUpper(quote)
}

// SameAsset reports whether two optional assets share an identity.
func SameAsset(a, b *Asset) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}

// FindAsset returns a copy of the catalog asset with the given id
func FindAsset(catalog []Asset, id string) (*Asset, bool) {
	for i := range catalog {
		if catalog[i].ID == id {
			a := catalog[i]
			return &a, true
		}
	}
	return nil, false
}

// Trade is a single trade event received from the price stream
type Trade struct {
	Symbol  string          `json:"symbol"` // Exchange symbol (e.g., "BTCUSDT")
	Price   decimal.Decimal `json:"price"`
	TradeID int64           `json:"trade_id"`
	TimeMs  int64           `json:"time_ms"`
}

// Matches reports whether the trade belongs to the asset under the given quote.
func (t Trade) Matches(a *Asset, quote string) bool {
	if a == nil {
		return false
	}
	return strings.EqualFold(t.Symbol, a.TradeSymbol(quote))
}
