package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"coin_swap/internal/domain"
	"coin_swap/internal/event"
	"coin_swap/internal/infra"
)

const workerStopTimeout = 5 * time.Second

// SubscriptionState is the lifecycle state of the live price subscription
type SubscriptionState int

const (
	StateIdle SubscriptionState = iota
	StateConnecting
	StateSubscribed
	StateClosed
)

// String returns the string representation of SubscriptionState
func (s SubscriptionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventSink accepts events from stream workers
type EventSink interface {
	Post(ctx context.Context, ev event.Event) error
	TryPost(ev event.Event) bool
}

// SubscriptionOptions tunes the manager
type SubscriptionOptions struct {
	Quote      string
	MaxRetries int                     // Retries after a failure before giving up until Reconnect
	Backoff    func(int) time.Duration // Delay before retry n (0-based); infra.CalculateBackoff when nil
}

// SubscriptionManager keeps exactly one trade stream open for the selected pair.
// All methods except the worker run on the widget loop; workers talk back through the sink,
// and every event carries the epoch it was produced under so superseded workers are ignored.
type SubscriptionManager struct {
	dialer  domain.StreamDialer
	sink    EventSink
	metrics *infra.Metrics
	opts    SubscriptionOptions

	state    SubscriptionState
	epoch    uint64
	pairKey  string
	scope    domain.Scope
	channels []string
	lastErr  error

	cancel context.CancelFunc
	done   chan struct{} // Closed when the newest worker has exited
}

// NewSubscriptionManager creates an idle manager. metrics may be nil.
func NewSubscriptionManager(dialer domain.StreamDialer, sink EventSink, metrics *infra.Metrics, opts SubscriptionOptions) *SubscriptionManager {
	if opts.Quote == "" {
		opts.Quote = domain.DefaultQuote
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff == nil {
		opts.Backoff = infra.CalculateBackoff
	}
	if metrics == nil {
		metrics = &infra.Metrics{}
	}
	return &SubscriptionManager{
		dialer:  dialer,
		sink:    sink,
		metrics: metrics,
		opts:    opts,
		state:   StateIdle,
	}
}

// Sync aligns the subscription with sel. A change of either asset id restarts the stream;
// price-only changes are ignored; an incomplete pair tears the stream down.
func (m *SubscriptionManager) Sync(sel domain.PairSelection) {
	if m.state == StateClosed {
		return
	}

	if !sel.Complete() {
		if m.pairKey != "" {
			slog.Info("Pair incomplete, closing price stream", slog.String("scope", m.scope.String()))
		}
		m.stop()
		m.pairKey = ""
		m.scope = domain.Scope{}
		m.channels = nil
		m.state = StateIdle
		return
	}

	key := sel.From.ID + "|" + sel.To.ID
	if key == m.pairKey {
		return
	}

	m.pairKey = key
	m.scope = sel.Scope()
	m.channels = channelsFor(sel, m.opts.Quote)
	m.restart()
}

// Reconnect restarts the stream for the current pair. It reports false when there is no pair.
func (m *SubscriptionManager) Reconnect() bool {
	if m.state == StateClosed || m.pairKey == "" {
		return false
	}
	m.metrics.RecordReconnect()
	m.restart()
	return true
}

// Close stops the stream for good and waits for the worker to release its connection.
func (m *SubscriptionManager) Close() {
	if m.state == StateClosed {
		return
	}
	m.stop()
	m.state = StateClosed
	m.pairKey = ""

	if m.done != nil {
		select {
		case <-m.done:
		case <-time.After(workerStopTimeout):
			slog.Warn("Timed out waiting for price stream worker to stop")
		}
	}
}

// HandleStream applies a worker status event. It reports whether the state changed.
func (m *SubscriptionManager) HandleStream(ev *event.StreamEvent) bool {
	if ev.Epoch != m.epoch || m.state == StateClosed || m.pairKey == "" {
		return false
	}
	switch ev.Status {
	case event.StreamSubscribed:
		m.state = StateSubscribed
		m.lastErr = nil
	case event.StreamFailed:
		m.state = StateConnecting
		m.lastErr = ev.Err
	case event.StreamExhausted:
		m.state = StateIdle
		m.lastErr = ev.Err
		m.stop()
		slog.Warn("Price stream gave up, waiting for reconnect",
			slog.String("scope", m.scope.String()),
			slog.Int("attempts", ev.Attempt),
		)
	default:
		return false
	}
	return true
}

// ApplyTick patches the matching asset prices in store. Ticks from superseded
// connections and ticks matching neither asset change nothing.
func (m *SubscriptionManager) ApplyTick(store *PairStore, ev *event.TickEvent) bool {
	if ev.Epoch != m.epoch || m.state == StateClosed || m.pairKey == "" {
		return false
	}

	trade := ev.Trade
	patch := func(prev *domain.Asset) *domain.Asset {
		if !trade.Matches(prev, m.opts.Quote) {
			return prev
		}
		next := prev.WithPrice(trade.Price)
		return &next
	}

	applied := false
	if trade.Matches(store.From(), m.opts.Quote) {
		store.UpdateFrom(patch)
		applied = true
	}
	if trade.Matches(store.To(), m.opts.Quote) {
		store.UpdateTo(patch)
		applied = true
	}

	if applied && !ev.ReceivedAt.IsZero() {
		m.metrics.RecordTick(time.Since(ev.ReceivedAt).Nanoseconds())
	}
	return applied
}

func (m *SubscriptionManager) State() SubscriptionState { return m.state }
func (m *SubscriptionManager) Epoch() uint64             { return m.epoch }
func (m *SubscriptionManager) Scope() domain.Scope       { return m.scope }
func (m *SubscriptionManager) Channels() []string        { return m.channels }
func (m *SubscriptionManager) LastError() error          { return m.lastErr }

// stop cancels the current worker without waiting; the next worker waits for it instead
func (m *SubscriptionManager) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *SubscriptionManager) restart() {
	m.stop()

	prev := m.done
	m.epoch++
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.state = StateConnecting
	m.lastErr = nil

	slog.Info("Opening price stream",
		slog.String("scope", m.scope.String()),
		slog.Uint64("epoch", m.epoch),
	)

	channels := append([]string(nil), m.channels...)
	go m.run(ctx, m.epoch, channels, prev, done)
}

// run is the connection worker for one epoch
func (m *SubscriptionManager) run(ctx context.Context, epoch uint64, channels []string, prev <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Price stream worker panic recovered", slog.Any("panic", r))
		}
	}()

	// Never overlap connections: the superseded worker has been cancelled and closes first
	if prev != nil {
		<-prev
	}

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		subscribed, err := m.session(ctx, epoch, channels)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			failures = 0
		}

		m.metrics.RecordStreamError()
		slog.Warn("Price stream failed",
			slog.Uint64("epoch", epoch),
			slog.Int("failures", failures+1),
			slog.Any("error", err),
		)

		if failures >= m.opts.MaxRetries {
			m.sink.Post(ctx, &event.StreamEvent{
				BaseEvent: event.BaseEvent{Epoch: epoch, ReceivedAt: time.Now()},
				Status:    event.StreamExhausted,
				Attempt:   failures + 1,
				Err:       err,
			})
			return
		}

		m.sink.Post(ctx, &event.StreamEvent{
			BaseEvent: event.BaseEvent{Epoch: epoch, ReceivedAt: time.Now()},
			Status:    event.StreamFailed,
			Attempt:   failures + 1,
			Err:       err,
		})

		delay := m.opts.Backoff(failures)
		failures++
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		m.metrics.RecordReconnect()
	}
}

// session dials, subscribes and pumps trades until the connection fails or ctx ends
func (m *SubscriptionManager) session(ctx context.Context, epoch uint64, channels []string) (subscribed bool, err error) {
	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		return false, err
	}
	m.metrics.IncrementConnections()
	defer m.metrics.DecrementConnections()

	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stopClose()
		conn.Close()
	}()

	if err := conn.Subscribe(channels, int(epoch)); err != nil {
		return false, err
	}

	m.sink.Post(ctx, &event.StreamEvent{
		BaseEvent: event.BaseEvent{Epoch: epoch, ReceivedAt: time.Now()},
		Status:    event.StreamSubscribed,
	})

	for {
		trade, ok, err := conn.ReadTrade()
		if err != nil {
			return true, err
		}
		if !ok {
			continue
		}

		ev := event.AcquireTickEvent()
		ev.Epoch = epoch
		ev.ReceivedAt = time.Now()
		ev.Trade = trade
		if !m.sink.TryPost(ev) {
			event.ReleaseTickEvent(ev)
			m.metrics.RecordDroppedTick()
		}
	}
}

// channelsFor derives the trade channels for the pair, one per distinct symbol
func channelsFor(sel domain.PairSelection, quote string) []string {
	from := sel.From.ChannelID(quote)
	to := sel.To.ChannelID(quote)
	if strings.EqualFold(from, to) {
		return []string{from}
	}
	return []string{from, to}
}
