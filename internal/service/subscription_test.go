package service

import (
	"fmt"
	"testing"
	"time"

	"coin_swap/internal/domain"
	"coin_swap/internal/event"
	"coin_swap/internal/infra"

	"github.com/shopspring/decimal"
)

func fastBackoff(int) time.Duration { return time.Millisecond }

func newTestManager(dialer *fakeDialer, sink *fakeSink, maxRetries int) (*SubscriptionManager, *infra.Metrics) {
	metrics := &infra.Metrics{}
	m := NewSubscriptionManager(dialer, sink, metrics, SubscriptionOptions{
		Quote:      "usdt",
		MaxRetries: maxRetries,
		Backoff:    fastBackoff,
	})
	return m, metrics
}

func pair(from, to domain.Asset) domain.PairSelection {
	return domain.PairSelection{From: &from, To: &to, Amount: decimal.NewFromInt(1)}
}

func TestSubscription_IdleUntilPairComplete(t *testing.T) {
	dialer := newFakeDialer()
	m, _ := newTestManager(dialer, newFakeSink(), 0)
	btc := testCatalog()[0]

	m.Sync(domain.PairSelection{From: &btc})
	if m.State() != StateIdle || m.Epoch() != 0 {
		t.Errorf("expected idle with no epoch, got %s/%d", m.State(), m.Epoch())
	}
	if len(dialer.events()) != 0 {
		t.Error("no connection may be opened for an incomplete pair")
	}
}

func TestSubscription_SubscribeFrame(t *testing.T) {
	dialer := newFakeDialer()
	sink := newFakeSink()
	m, _ := newTestManager(dialer, sink, 0)
	cat := testCatalog()

	m.Sync(pair(cat[0], cat[1]))
	if m.State() != StateConnecting {
		t.Fatalf("expected connecting, got %s", m.State())
	}

	conn := dialer.next(t)
	channels := conn.waitSubscribed(t)
	if len(channels) != 2 || channels[0] != "btcusdt@trade" || channels[1] != "ethusdt@trade" {
		t.Errorf("unexpected channels %v", channels)
	}
	if conn.subID.Load() != int64(m.Epoch()) {
		t.Errorf("expected request id %d, got %d", m.Epoch(), conn.subID.Load())
	}

	ev := sink.nextStream(t)
	if ev.Status != event.StreamSubscribed || !m.HandleStream(ev) {
		t.Fatalf("expected subscribed event, got %+v", ev)
	}
	if m.State() != StateSubscribed {
		t.Errorf("expected subscribed, got %s", m.State())
	}
	if m.Scope().String() != "btc/eth" {
		t.Errorf("unexpected scope %s", m.Scope())
	}

	m.Close()
}

func TestSubscription_ApplyTick(t *testing.T) {
	dialer := newFakeDialer()
	sink := newFakeSink()
	m, metrics := newTestManager(dialer, sink, 0)
	cat := testCatalog()

	store := NewPairStore(nil, decimal.NewFromInt(1))
	store.SetFrom(ptr(cat[0]))
	store.SetTo(ptr(cat[1]))
	m.Sync(store.Selection())

	conn := dialer.next(t)
	conn.waitSubscribed(t)
	m.HandleStream(sink.nextStream(t))

	conn.trades <- domain.Trade{Symbol: "BTCUSDT", Price: decimal.NewFromInt(65000)}
	tick := sink.nextTick(t)
	if !m.ApplyTick(store, tick) {
		t.Fatal("expected matching tick to apply")
	}
	if !store.From().Price.Equal(decimal.NewFromInt(65000)) {
		t.Errorf("expected from price 65000, got %s", store.From().Price)
	}
	if store.From().ID != "bitcoin" || store.From().Name != "Bitcoin" {
		t.Error("price patch must keep identity fields")
	}
	if !store.To().Price.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("to price must be unchanged, got %s", store.To().Price)
	}
	if metrics.Snapshot().TicksApplied != 1 {
		t.Errorf("expected 1 applied tick, got %d", metrics.Snapshot().TicksApplied)
	}

	m.Close()
}

func TestSubscription_NonMatchingTickIgnored(t *testing.T) {
	m, _ := newTestManager(newFakeDialer(), newFakeSink(), 0)
	cat := testCatalog()

	store := NewPairStore(nil, decimal.NewFromInt(1))
	store.SetFrom(ptr(cat[0]))
	store.SetTo(ptr(cat[1]))
	m.Sync(store.Selection())
	defer m.Close()

	for _, symbol := range []string{"SOLUSDT", "BTCBUSD", "ETHBTC"} {
		tick := &event.TickEvent{
			BaseEvent: event.BaseEvent{Epoch: m.Epoch()},
			Trade:     domain.Trade{Symbol: symbol, Price: decimal.NewFromInt(1)},
		}
		if m.ApplyTick(store, tick) {
			t.Errorf("tick %s must not apply", symbol)
		}
	}
	if !store.From().Price.Equal(decimal.NewFromInt(60000)) || !store.To().Price.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("prices changed: %s / %s", store.From().Price, store.To().Price)
	}
}

func TestSubscription_StaleEpochIgnored(t *testing.T) {
	dialer := newFakeDialer()
	sink := newFakeSink()
	m, _ := newTestManager(dialer, sink, 0)
	cat := testCatalog()

	store := NewPairStore(nil, decimal.NewFromInt(1))
	store.SetFrom(ptr(cat[0]))
	store.SetTo(ptr(cat[1]))
	m.Sync(store.Selection())
	oldEpoch := m.Epoch()

	store.SetTo(ptr(cat[2]))
	m.Sync(store.Selection())
	defer m.Close()

	if m.Epoch() == oldEpoch {
		t.Fatal("pair change must advance the epoch")
	}

	stale := &event.TickEvent{
		BaseEvent: event.BaseEvent{Epoch: oldEpoch},
		Trade:     domain.Trade{Symbol: "BTCUSDT", Price: decimal.NewFromInt(1)},
	}
	if m.ApplyTick(store, stale) {
		t.Error("tick from a superseded connection must be ignored")
	}
	if m.HandleStream(&event.StreamEvent{BaseEvent: event.BaseEvent{Epoch: oldEpoch}, Status: event.StreamSubscribed}) {
		t.Error("status from a superseded connection must be ignored")
	}
	if !store.From().Price.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("price changed by stale tick: %s", store.From().Price)
	}
}

func TestSubscription_PriceChangeDoesNotReconnect(t *testing.T) {
	dialer := newFakeDialer()
	m, _ := newTestManager(dialer, newFakeSink(), 0)
	cat := testCatalog()

	m.Sync(pair(cat[0], cat[1]))
	epoch := m.Epoch()

	m.Sync(pair(cat[0].WithPrice(decimal.NewFromInt(1)), cat[1]))
	if m.Epoch() != epoch {
		t.Error("price-only change must keep the connection")
	}

	// Swap changes both ids
	m.Sync(pair(cat[1], cat[0]))
	if m.Epoch() != epoch+1 {
		t.Errorf("swap must restart the stream, epoch %d", m.Epoch())
	}
	m.Close()
}

func TestSubscription_CloseBeforeOpen(t *testing.T) {
	dialer := newFakeDialer()
	sink := newFakeSink()
	m, metrics := newTestManager(dialer, sink, 0)
	cat := testCatalog()

	m.Sync(pair(cat[0], cat[1]))
	first := dialer.next(t)
	first.waitSubscribed(t)

	// Rapid pair changes while connections are still being set up
	m.Sync(pair(cat[0], cat[2]))
	m.Sync(pair(cat[0], cat[3]))
	m.Sync(pair(cat[2], cat[3]))

	first.waitClosed(t)

	var last *fakeConn
	waitFor(t, "final subscription", func() bool {
		select {
		case c := <-dialer.conns:
			last = c
		default:
		}
		return last != nil && len(last.subscribed) == 1 && last.subID.Load() == int64(m.Epoch())
	})

	if peak := dialer.maxActive.Load(); peak > 1 {
		t.Errorf("at most one connection may be open, peak was %d", peak)
	}
	if peak := metrics.Snapshot().PeakConnections; peak > 1 {
		t.Errorf("metrics peak connections %d", peak)
	}

	// Every open after the first must follow the close of the previous connection
	open := 0
	for _, e := range dialer.events() {
		var kind string
		var id int
		fmt.Sscanf(e, "%s %d", &kind, &id)
		switch kind {
		case "open":
			if open != 0 {
				t.Errorf("open %d while %d still open (log %v)", id, open, dialer.events())
			}
			open = id
		case "close":
			if id == open {
				open = 0
			}
		}
	}

	m.Close()
	last.waitClosed(t)
	if m.State() != StateClosed {
		t.Errorf("expected closed, got %s", m.State())
	}
	if dialer.active.Load() != 0 {
		t.Errorf("expected no open connections after close, got %d", dialer.active.Load())
	}
}

func TestSubscription_TeardownOnAbsentAsset(t *testing.T) {
	dialer := newFakeDialer()
	m, _ := newTestManager(dialer, newFakeSink(), 0)
	cat := testCatalog()

	m.Sync(pair(cat[0], cat[1]))
	conn := dialer.next(t)

	m.Sync(domain.PairSelection{From: ptr(cat[0])})
	conn.waitClosed(t)
	if m.State() != StateIdle || !m.Scope().IsZero() {
		t.Errorf("expected idle with empty scope, got %s %q", m.State(), m.Scope())
	}
	if m.Reconnect() {
		t.Error("reconnect without a pair must be refused")
	}
	m.Close()
}

func TestSubscription_BoundedRetryThenReconnect(t *testing.T) {
	dialer := newFakeDialer()
	dialer.failDials.Store(3)
	sink := newFakeSink()
	m, metrics := newTestManager(dialer, sink, 2)
	cat := testCatalog()

	m.Sync(pair(cat[0], cat[1]))

	want := []event.StreamStatus{event.StreamFailed, event.StreamFailed, event.StreamExhausted}
	for i, status := range want {
		ev := sink.nextStream(t)
		if ev.Status != status {
			t.Fatalf("event %d: expected %s, got %s", i, status, ev.Status)
		}
		m.HandleStream(ev)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle after giving up, got %s", m.State())
	}
	if m.LastError() == nil {
		t.Error("expected last error to be kept")
	}
	if metrics.Snapshot().StreamErrors != 3 {
		t.Errorf("expected 3 stream errors, got %d", metrics.Snapshot().StreamErrors)
	}

	// Same pair does not restart on its own
	m.Sync(pair(cat[0], cat[1]))
	if m.State() != StateIdle {
		t.Error("sync with an unchanged pair must not restart a stream that gave up")
	}

	if !m.Reconnect() {
		t.Fatal("expected manual reconnect to start")
	}
	conn := dialer.next(t)
	conn.waitSubscribed(t)
	ev := sink.nextStream(t)
	m.HandleStream(ev)
	if m.State() != StateSubscribed {
		t.Errorf("expected subscribed after reconnect, got %s", m.State())
	}
	m.Close()
}

func TestSubscription_RetryAfterDrop(t *testing.T) {
	dialer := newFakeDialer()
	sink := newFakeSink()
	m, _ := newTestManager(dialer, sink, 1)
	cat := testCatalog()

	m.Sync(pair(cat[0], cat[1]))
	first := dialer.next(t)
	first.waitSubscribed(t)
	m.HandleStream(sink.nextStream(t))

	// Server drops the stream
	close(first.trades)

	if ev := sink.nextStream(t); ev.Status != event.StreamFailed {
		t.Fatalf("expected failed, got %s", ev.Status)
	}
	second := dialer.next(t)
	second.waitSubscribed(t)
	first.waitClosed(t)

	ev := sink.nextStream(t)
	if ev.Status != event.StreamSubscribed || ev.Epoch != m.Epoch() {
		t.Errorf("expected resubscribe on the same epoch, got %+v", ev)
	}
	m.Close()
}

func TestChannelsFor_DedupesSameSymbol(t *testing.T) {
	a := asset("usd-coin", "usdc", "USD Coin", 1)
	b := asset("bridged-usdc", "USDC", "Bridged USDC", 1)
	got := channelsFor(pair(a, b), "usdt")
	if len(got) != 1 || got[0] != "usdcusdt@trade" {
		t.Errorf("expected one channel, got %v", got)
	}
}
