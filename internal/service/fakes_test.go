package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coin_swap/internal/domain"
	"coin_swap/internal/event"

	"github.com/shopspring/decimal"
)

var errConnClosed = errors.New("connection closed")

// memKV is an in-memory KeyValueStore
type memKV struct {
	mu     sync.Mutex
	data   map[string]string
	writes map[string]int
}

func newMemKV(seed map[string]string) *memKV {
	kv := &memKV{data: make(map[string]string), writes: make(map[string]int)}
	for k, v := range seed {
		kv.data[k] = v
	}
	return kv
}

func (m *memKV) GetValue(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) SaveValue(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.writes[key]++
	return nil
}

func (m *memKV) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

func (m *memKV) writeCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}

// fakeSource is a CatalogSource returning a fixed list
type fakeSource struct {
	assets []domain.Asset
	err    error
	calls  atomic.Int32
}

func (f *fakeSource) FetchAssets(ctx context.Context, page, perPage int) ([]domain.Asset, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Asset(nil), f.assets...), nil
}

// fakeDialer hands out fakeConns and records the open/close order
type fakeDialer struct {
	mu        sync.Mutex
	log       []string
	nextID    int
	failDials atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	conns     chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 64)}
}

func (d *fakeDialer) Dial(ctx context.Context) (domain.StreamConn, error) {
	if d.failDials.Load() > 0 {
		d.failDials.Add(-1)
		return nil, domain.NewNetworkError("dial", errors.New("refused"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := d.active.Add(1)
	for {
		peak := d.maxActive.Load()
		if n <= peak || d.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	d.mu.Lock()
	d.nextID++
	c := &fakeConn{
		id:         d.nextID,
		dialer:     d,
		trades:     make(chan domain.Trade, 16),
		closed:     make(chan struct{}),
		subscribed: make(chan []string, 1),
	}
	d.log = append(d.log, fmt.Sprintf("open %d", c.id))
	d.mu.Unlock()

	d.conns <- c
	return c, nil
}

func (d *fakeDialer) record(entry string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, entry)
}

func (d *fakeDialer) events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

// next waits for the next dialed connection
func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

type fakeConn struct {
	id         int
	dialer     *fakeDialer
	trades     chan domain.Trade
	closed     chan struct{}
	closeOnce  sync.Once
	subscribed chan []string
	subID      atomic.Int64
}

func (c *fakeConn) Subscribe(channels []string, id int) error {
	c.subID.Store(int64(id))
	c.subscribed <- append([]string(nil), channels...)
	return nil
}

func (c *fakeConn) ReadTrade() (domain.Trade, bool, error) {
	select {
	case t, ok := <-c.trades:
		if !ok {
			return domain.Trade{}, false, errors.New("stream reset")
		}
		if t.Symbol == "" {
			return domain.Trade{}, false, nil
		}
		return t, true, nil
	case <-c.closed:
		return domain.Trade{}, false, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.dialer.record(fmt.Sprintf("close %d", c.id))
		c.dialer.active.Add(-1)
		close(c.closed)
	})
	return nil
}

// waitSubscribed returns the channels of the subscribe frame
func (c *fakeConn) waitSubscribed(t *testing.T) []string {
	t.Helper()
	select {
	case ch := <-c.subscribed:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribe")
		return nil
	}
}

func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %d was never closed", c.id)
	}
}

// fakeSink captures worker events instead of running a loop
type fakeSink struct {
	events chan event.Event
}

func newFakeSink() *fakeSink {
	return &fakeSink{events: make(chan event.Event, 256)}
}

func (s *fakeSink) Post(ctx context.Context, ev event.Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSink) TryPost(ev event.Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// nextStream waits for the next StreamEvent, skipping ticks
func (s *fakeSink) nextStream(t *testing.T) *event.StreamEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if se, ok := ev.(*event.StreamEvent); ok {
				return se
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream event")
			return nil
		}
	}
}

// nextTick waits for the next TickEvent
func (s *fakeSink) nextTick(t *testing.T) *event.TickEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if te, ok := ev.(*event.TickEvent); ok {
				return te
			}
		case <-deadline:
			t.Fatal("timed out waiting for tick")
			return nil
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func asset(id, symbol, name string, price int64) domain.Asset {
	return domain.Asset{ID: id, Symbol: symbol, Name: name, Price: decimal.NewFromInt(price)}
}

func testCatalog() []domain.Asset {
	return []domain.Asset{
		asset("bitcoin", "btc", "Bitcoin", 60000),
		asset("ethereum", "eth", "Ethereum", 3000),
		asset("solana", "sol", "Solana", 150),
		asset("tether", "usdt", "Tether", 1),
	}
}

func ptr(a domain.Asset) *domain.Asset { return &a }
