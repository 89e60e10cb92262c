package service

import (
	"encoding/json"
	"log/slog"

	"coin_swap/internal/domain"

	"github.com/shopspring/decimal"
)

// Storage keys, one slot per field
const (
	KeyFromAsset = "swap.from_asset"
	KeyToAsset   = "swap.to_asset"
	KeyAmount    = "swap.amount"
)

// Field is a bitmask of pair fields touched by a write
type Field uint8

const (
	FieldFrom Field = 1 << iota
	FieldTo
	FieldAmount
)

// Has reports whether f includes any of other
func (f Field) Has(other Field) bool { return f&other != 0 }

// StoreListener observes every write with the fields it changed and the resulting selection
type StoreListener func(changed Field, sel domain.PairSelection)

// PairStore is the single source of truth for one widget's pair and amount.
// Each field is persisted independently on write. It is owned by the widget loop.
type PairStore struct {
	kv            domain.KeyValueStore
	defaultAmount decimal.Decimal

	from   *domain.Asset
	to     *domain.Asset
	amount decimal.Decimal

	// Persisted ids waiting for the catalog
	pendingFrom string
	pendingTo   string

	persisted map[string]string
	listeners []StoreListener
}

// NewPairStore loads persisted state from kv, falling back to (absent, absent, defaultAmount).
// kv may be nil for an in-memory store.
func NewPairStore(kv domain.KeyValueStore, defaultAmount decimal.Decimal) *PairStore {
	if defaultAmount.IsNegative() {
		defaultAmount = decimal.NewFromInt(1)
	}
	s := &PairStore{
		kv:            kv,
		defaultAmount: defaultAmount,
		amount:        defaultAmount,
		persisted:     make(map[string]string),
	}
	s.load()
	return s
}

func (s *PairStore) load() {
	if s.kv == nil {
		return
	}
	if raw, ok := s.read(KeyFromAsset); ok {
		s.pendingFrom = decodeAssetID(KeyFromAsset, raw)
	}
	if raw, ok := s.read(KeyToAsset); ok {
		s.pendingTo = decodeAssetID(KeyToAsset, raw)
	}
	if raw, ok := s.read(KeyAmount); ok {
		s.amount = decodeAmount(raw, s.defaultAmount)
	}
	if s.pendingFrom != "" && s.pendingFrom == s.pendingTo {
		s.pendingTo = ""
	}
}

func (s *PairStore) read(key string) (string, bool) {
	raw, found, err := s.kv.GetValue(key)
	if err != nil {
		slog.Warn("Failed to read stored pair field", slog.String("key", key), slog.Any("error", err))
		return "", false
	}
	if found {
		s.persisted[key] = raw
	}
	return raw, found
}

// decodeAssetID parses a JSON id string or null; anything else counts as absent
func decodeAssetID(key, raw string) string {
	var id *string
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		slog.Warn("Ignoring malformed stored asset", slog.String("key", key), slog.Any("error", err))
		return ""
	}
	if id == nil {
		return ""
	}
	return *id
}

// decodeAmount parses a JSON number; null, malformed or negative values yield def
func decodeAmount(raw string, def decimal.Decimal) decimal.Decimal {
	var n decimal.NullDecimal
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		slog.Warn("Ignoring malformed stored amount", slog.Any("error", err))
		return def
	}
	if !n.Valid || n.Decimal.IsNegative() {
		return def
	}
	return n.Decimal
}

// OnChange registers a listener; listeners run synchronously after each write
func (s *PairStore) OnChange(fn StoreListener) {
	s.listeners = append(s.listeners, fn)
}

// Selection returns a copy of the current pair
func (s *PairStore) Selection() domain.PairSelection {
	return domain.PairSelection{
		From:   cloneAsset(s.from),
		To:     cloneAsset(s.to),
		Amount: s.amount,
	}
}

func (s *PairStore) From() *domain.Asset       { return cloneAsset(s.from) }
func (s *PairStore) To() *domain.Asset         { return cloneAsset(s.to) }
func (s *PairStore) Amount() decimal.Decimal   { return s.amount }
func (s *PairStore) Pending() (string, string) { return s.pendingFrom, s.pendingTo }

// SetFrom replaces the from asset (nil clears it)
func (s *PairStore) SetFrom(a *domain.Asset) {
	s.UpdateFrom(func(*domain.Asset) *domain.Asset { return a })
}

// UpdateFrom replaces the from asset with fn applied to the current one.
// Taking the to asset swaps the pair instead, so both slots never hold the same id.
func (s *PairStore) UpdateFrom(fn func(prev *domain.Asset) *domain.Asset) {
	next := cloneAsset(fn(cloneAsset(s.from)))
	if takesOpposite(next, s.from, s.to) {
		s.from, s.to = next, s.from
		s.pendingFrom, s.pendingTo = "", s.pendingFrom
		s.persistSlots()
		return
	}
	s.from = next
	s.pendingFrom = ""
	s.persistAsset(KeyFromAsset, s.from)
	s.notify(FieldFrom)
}

// SetTo replaces the to asset (nil clears it)
func (s *PairStore) SetTo(a *domain.Asset) {
	s.UpdateTo(func(*domain.Asset) *domain.Asset { return a })
}

// UpdateTo replaces the to asset with fn applied to the current one.
// Taking the from asset swaps the pair instead.
func (s *PairStore) UpdateTo(fn func(prev *domain.Asset) *domain.Asset) {
	next := cloneAsset(fn(cloneAsset(s.to)))
	if takesOpposite(next, s.to, s.from) {
		s.to, s.from = next, s.to
		s.pendingTo, s.pendingFrom = "", s.pendingTo
		s.persistSlots()
		return
	}
	s.to = next
	s.pendingTo = ""
	s.persistAsset(KeyToAsset, s.to)
	s.notify(FieldTo)
}

// Set replaces the asset in slot
func (s *PairStore) Set(slot domain.Slot, a *domain.Asset) {
	if slot == domain.SlotFrom {
		s.SetFrom(a)
		return
	}
	s.SetTo(a)
}

// SetAmount replaces the amount. Negative amounts are rejected.
func (s *PairStore) SetAmount(amount decimal.Decimal) error {
	return s.UpdateAmount(func(decimal.Decimal) decimal.Decimal { return amount })
}

// UpdateAmount replaces the amount with fn applied to the current one
func (s *PairStore) UpdateAmount(fn func(prev decimal.Decimal) decimal.Decimal) error {
	next := fn(s.amount)
	if next.IsNegative() {
		return domain.ErrInvalidAmount
	}
	s.amount = next
	s.persist(KeyAmount, next.String())
	s.notify(FieldAmount)
	return nil
}

// Swap exchanges from and to in one write
func (s *PairStore) Swap() {
	s.from, s.to = s.to, s.from
	s.pendingFrom, s.pendingTo = s.pendingTo, s.pendingFrom
	s.persistSlots()
}

// persistSlots writes both asset slots, keeping still-pending ids, and notifies once
func (s *PairStore) persistSlots() {
	if s.pendingFrom == "" {
		s.persistAsset(KeyFromAsset, s.from)
	} else {
		s.persist(KeyFromAsset, encodeID(s.pendingFrom))
	}
	if s.pendingTo == "" {
		s.persistAsset(KeyToAsset, s.to)
	} else {
		s.persist(KeyToAsset, encodeID(s.pendingTo))
	}
	s.notify(FieldFrom | FieldTo)
}

// Resolve looks pending persisted ids up in catalog. Unknown ids are dropped.
// It returns the fields that changed.
func (s *PairStore) Resolve(catalog []domain.Asset) Field {
	var changed Field
	if s.pendingFrom != "" {
		id := s.pendingFrom
		s.pendingFrom = ""
		if a, ok := domain.FindAsset(catalog, id); ok {
			s.from = a
		} else {
			slog.Info("Dropping stored asset missing from catalog", slog.String("key", KeyFromAsset), slog.String("id", id))
		}
		s.persistAsset(KeyFromAsset, s.from)
		changed |= FieldFrom
	}
	if s.pendingTo != "" {
		id := s.pendingTo
		s.pendingTo = ""
		if a, ok := domain.FindAsset(catalog, id); ok && !domain.SameAsset(a, s.from) {
			s.to = a
		} else {
			slog.Info("Dropping stored asset missing from catalog", slog.String("key", KeyToAsset), slog.String("id", id))
		}
		s.persistAsset(KeyToAsset, s.to)
		changed |= FieldTo
	}
	if changed != 0 {
		s.notify(changed)
	}
	return changed
}

// takesOpposite reports whether next would duplicate the asset held by the other slot
func takesOpposite(next, own, opposite *domain.Asset) bool {
	if next == nil || opposite == nil || next.ID != opposite.ID {
		return false
	}
	return own == nil || own.ID != next.ID
}

func (s *PairStore) persistAsset(key string, a *domain.Asset) {
	if a == nil {
		s.persist(key, "null")
		return
	}
	s.persist(key, encodeID(a.ID))
}

// persist writes one slot unless it already holds the same encoding
func (s *PairStore) persist(key, value string) {
	if s.kv == nil {
		return
	}
	if prev, ok := s.persisted[key]; ok && prev == value {
		return
	}
	if err := s.kv.SaveValue(key, value); err != nil {
		slog.Warn("Failed to persist pair field", slog.String("key", key), slog.Any("error", err))
		return
	}
	s.persisted[key] = value
}

func (s *PairStore) notify(changed Field) {
	if len(s.listeners) == 0 {
		return
	}
	sel := s.Selection()
	for _, fn := range s.listeners {
		fn(changed, sel)
	}
}

func encodeID(id string) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func cloneAsset(a *domain.Asset) *domain.Asset {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
