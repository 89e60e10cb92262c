package service

import (
	"testing"

	"coin_swap/internal/domain"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestConvert(t *testing.T) {
	tests := []struct {
		name                    string
		fromPrice, toPrice, amt string
		want                    string
	}{
		{"btc to eth", "60000", "3000", "1", "20"},
		{"fractional", "3000", "60000", "2.5", "0.125"},
		{"zero amount", "60000", "3000", "0", "0"},
		{"same price", "1", "1", "42", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Convert(d(tt.fromPrice), d(tt.toPrice), d(tt.amt))
			if !ok {
				t.Fatal("expected ok")
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("Convert = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConvert_Linear(t *testing.T) {
	from, to := d("61234.56"), d("3011.07")
	base, _ := Convert(from, to, d("1"))
	tolerance := d("0.000000000001")

	for _, k := range []string{"0", "0.5", "2", "3.75", "1000"} {
		got, ok := Convert(from, to, d(k))
		if !ok {
			t.Fatal("expected ok")
		}
		want := base.Mul(d(k))
		if got.Sub(want).Abs().GreaterThan(tolerance) {
			t.Errorf("Convert(%s) = %s, want about %s", k, got, want)
		}
		direct := d(k).Mul(from).Div(to)
		if !got.Equal(direct) {
			t.Errorf("Convert(%s) = %s, want amount*from/to = %s", k, got, direct)
		}
	}
}

func TestConvert_ZeroToPrice(t *testing.T) {
	if _, ok := Convert(d("100"), decimal.Zero, d("1")); ok {
		t.Error("zero toPrice must not produce a value")
	}
}

func TestConvertPair_AbsentAsset(t *testing.T) {
	btc := asset("bitcoin", "btc", "Bitcoin", 60000)
	tests := []domain.PairSelection{
		{Amount: d("1")},
		{From: &btc, Amount: d("1")},
		{To: &btc, Amount: d("1")},
	}
	for _, sel := range tests {
		if _, ok := ConvertPair(sel); ok {
			t.Errorf("expected no value for %+v", sel)
		}
	}
}
