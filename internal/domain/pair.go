package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Slot identifies which side of the pair is being edited
type Slot int

const (
	SlotFrom Slot = iota + 1
	SlotTo
)

// String returns the string representation of Slot
func (s Slot) String() string {
	switch s {
	case SlotFrom:
		return "from"
	case SlotTo:
		return "to"
	default:
		return "unknown"
	}
}

// Opposite returns the other slot
func (s Slot) Opposite() Slot {
	if s == SlotFrom {
		return SlotTo
	}
	return SlotFrom
}

// ParseSlot parses "from" or "to"
func ParseSlot(s string) (Slot, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "from":
		return SlotFrom, true
	case "to":
		return SlotTo, true
	}
	return 0, false
}

// PairSelection is the currently selected pair plus the amount to convert.
// From and To are nil when absent.
type PairSelection struct {
	From   *Asset          `json:"from,omitempty"`
	To     *Asset          `json:"to,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// Get returns the asset in the given slot
func (p PairSelection) Get(slot Slot) *Asset {
	if slot == SlotFrom {
		return p.From
	}
	return p.To
}

// Complete reports whether both assets are present
func (p PairSelection) Complete() bool {
	return p.From != nil && p.To != nil
}

// Scope returns the subscription scope of the pair, or an empty scope when incomplete.
func (p PairSelection) Scope() Scope {
	if !p.Complete() {
		return Scope{}
	}
	return NewScope(p.From.Symbol, p.To.Symbol)
}

// Scope is the unordered pair of lowercase symbols a stream is subscribed to
type Scope struct {
	A, B string
}

// NewScope normalizes two symbols into an unordered scope
func NewScope(a, b string) Scope {
	s := []string{strings.ToLower(a), strings.ToLower(b)}
	sort.Strings(s)
	return Scope{A: s[0], B: s[1]}
}

// IsZero reports whether the scope is empty
func (s Scope) IsZero() bool {
	return s.A == "" && s.B == ""
}

// String returns "a/b"
func (s Scope) String() string {
	if s.IsZero() {
		return ""
	}
	return s.A + "/" + s.B
}
