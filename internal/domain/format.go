package domain

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const maxFractionDigits = 6

// FormatNumber renders a value en-US style: grouped thousands, at most 6 fraction digits,
// and exactly 2 minimum fraction digits when forceDecimals is set.
func FormatNumber(value decimal.Decimal, forceDecimals bool) string {
	minFrac := 0
	if forceDecimals {
		minFrac = 2
	}

	rounded := value.Round(maxFractionDigits)
	neg := rounded.IsNegative()
	abs := rounded.Abs()
	intPart := abs.Truncate(0)

	// String() trims trailing zeros, which gives the minimal fraction
	fracDigits := ""
	frac := abs.Sub(intPart).String()
	if i := strings.IndexByte(frac, '.'); i >= 0 {
		fracDigits = frac[i+1:]
	}
	for len(fracDigits) < minFrac {
		fracDigits += "0"
	}

	out := humanize.BigComma(intPart.BigInt())
	if fracDigits != "" {
		out += "." + fracDigits
	}
	if neg {
		out = "-" + out
	}
	return out
}
