package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"coin_swap/internal/domain"
	"coin_swap/internal/engine"
	"coin_swap/internal/event"
	"coin_swap/internal/infra"
	"coin_swap/internal/ui"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the catalog-driven display state of the widget
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	widgetNew int32 = iota
	widgetMounted
	widgetUnmounted
)

// WidgetOptions configures one widget instance
type WidgetOptions struct {
	Quote          string
	MaxRetries     int
	Backoff        func(int) time.Duration
	InboxSize      int
	Picker         ui.PickerConfig
	DefaultAmount  decimal.Decimal
	ForceDecimals  bool
	DumpPath       string
	ViewportWidth  float64
	ViewportHeight float64
}

// DefaultWidgetOptions returns the standard options
func DefaultWidgetOptions() WidgetOptions {
	return WidgetOptions{
		Quote:          domain.DefaultQuote,
		MaxRetries:     5,
		InboxSize:      1024,
		Picker:         ui.DefaultPickerConfig(),
		DefaultAmount:  decimal.NewFromInt(1),
		ForceDecimals:  true,
		DumpPath:       "panic_dump.json",
		ViewportWidth:  800,
		ViewportHeight: 600,
	}
}

// PickerView is the rendered state of the open picker
type PickerView struct {
	Slot     string         `json:"slot"`
	Search   string         `json:"search"`
	Items    []domain.Asset `json:"items"`
	Visible  int            `json:"visible"`
	Total    int            `json:"total"`
	HasMore  bool           `json:"has_more"`
	Position ui.Position    `json:"position"`
}

// Snapshot is an immutable view of the widget, published after every change
type Snapshot struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	From          *domain.Asset   `json:"from,omitempty"`
	To            *domain.Asset   `json:"to,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	AmountText    string          `json:"amount_text"`
	Converted     decimal.Decimal `json:"converted"`
	ConvertedOK   bool            `json:"converted_ok"`
	ConvertedText string          `json:"converted_text"`
	Stream        string          `json:"stream"`
	Scope         string          `json:"scope,omitempty"`
	Epoch         uint64          `json:"epoch"`
	StreamError   string          `json:"stream_error,omitempty"`
	CatalogSize   int             `json:"catalog_size"`
	Picker        *PickerView     `json:"picker,omitempty"`
}

// Widget is one swap widget: pair store, live subscription, conversion and picker,
// all owned by a single event loop goroutine. Public methods are safe for concurrent use.
type Widget struct {
	id      string
	opts    WidgetOptions
	catalog *CatalogService
	metrics *infra.Metrics

	loop     *engine.Loop
	store    *PairStore
	subs     *SubscriptionManager
	viewport *ui.Viewport
	picker   *ui.Picker

	// Loop-owned state
	pickerSlot  domain.Slot
	assets      []domain.Asset
	status      Status
	catalogErr  error
	converted   decimal.Decimal
	convertedOK bool
	onRender    func(Snapshot)

	snapshot  atomic.Pointer[Snapshot]
	lifecycle atomic.Int32
	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
}

// NewWidget creates an unmounted widget. Persisted pair fields are read from kv immediately.
func NewWidget(catalog *CatalogService, dialer domain.StreamDialer, kv domain.KeyValueStore, metrics *infra.Metrics, opts WidgetOptions) *Widget {
	if metrics == nil {
		metrics = &infra.Metrics{}
	}
	if opts.InboxSize < 1 {
		opts.InboxSize = DefaultWidgetOptions().InboxSize
	}

	w := &Widget{
		id:      uuid.NewString(),
		opts:    opts,
		catalog: catalog,
		metrics: metrics,
		status:  StatusLoading,
		ready:   make(chan struct{}),
	}

	w.loop = engine.NewLoop(opts.InboxSize, w, metrics)
	w.loop.SetDumpPath(opts.DumpPath)
	w.store = NewPairStore(kv, opts.DefaultAmount)
	w.subs = NewSubscriptionManager(dialer, w.loop, metrics, SubscriptionOptions{
		Quote:      opts.Quote,
		MaxRetries: opts.MaxRetries,
		Backoff:    opts.Backoff,
	})
	w.viewport = ui.NewViewport(opts.ViewportWidth, opts.ViewportHeight)
	w.picker = ui.NewPicker(opts.Picker, w.viewport)

	w.store.OnChange(w.onStoreChange)
	w.recompute(w.store.Selection())
	w.publish()
	return w
}

// ID returns the widget instance id
func (w *Widget) ID() string { return w.id }

// OnRender sets a callback invoked on the loop goroutine after every change. Set it before Mount.
func (w *Widget) OnRender(fn func(Snapshot)) {
	w.onRender = fn
}

// Mount starts the event loop and the one-shot catalog fetch.
// Mount and Unmount are called by the host and must not race each other.
func (w *Widget) Mount(ctx context.Context) error {
	if !w.lifecycle.CompareAndSwap(widgetNew, widgetMounted) {
		return errors.New("widget can only be mounted once")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop.Run(ctx)
	go w.fetchCatalog(ctx)

	slog.Info("Widget mounted", slog.String("id", w.id))
	return nil
}

// Ready is closed once the catalog request has settled (loaded or failed)
func (w *Widget) Ready() <-chan struct{} {
	return w.ready
}

// Unmount closes the picker and the price stream, then stops the loop.
func (w *Widget) Unmount() {
	if !w.lifecycle.CompareAndSwap(widgetMounted, widgetUnmounted) {
		return
	}

	if err := w.loop.Execute(context.Background(), "unmount", w.teardown); err != nil {
		slog.Debug("Event loop stopped before unmount", slog.String("id", w.id), slog.Any("error", err))
	}

	w.cancel()
	<-w.loop.Done()

	// The loop may have exited with the host context before the command ran.
	// It no longer owns the state, and teardown is idempotent.
	w.teardown()
	slog.Info("Widget unmounted", slog.String("id", w.id))
}

// teardown closes the picker and the price stream
func (w *Widget) teardown() error {
	w.picker.Close()
	w.subs.Close()
	w.render()
	return nil
}

// Snapshot returns the latest published view
func (w *Widget) Snapshot() Snapshot {
	return *w.snapshot.Load()
}

// SetAmount parses text and stores it as the amount
func (w *Widget) SetAmount(text string) error {
	amount, err := ParseAmount(text)
	if err != nil {
		return err
	}
	return w.do("set_amount", func() error {
		return w.store.SetAmount(amount)
	})
}

// Select puts asset into slot; choosing the opposite slot's asset swaps the pair instead.
func (w *Widget) Select(slot domain.Slot, asset domain.Asset) error {
	return w.do("select", func() error {
		return w.selectAsset(slot, asset)
	})
}

// SelectByID selects a catalog asset by id
func (w *Widget) SelectByID(slot domain.Slot, id string) error {
	return w.do("select_by_id", func() error {
		a, ok := domain.FindAsset(w.assets, id)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAssetNotFound, id)
		}
		return w.selectAsset(slot, *a)
	})
}

// SwapPositions exchanges from and to
func (w *Widget) SwapPositions() error {
	return w.do("swap", func() error {
		w.store.Swap()
		return nil
	})
}

// OpenPicker opens the picker for slot under trigger, closing any picker already open.
func (w *Widget) OpenPicker(slot domain.Slot, trigger ui.Element) error {
	return w.do("open_picker", func() error {
		if slot != domain.SlotFrom && slot != domain.SlotTo {
			return fmt.Errorf("invalid slot %d", slot)
		}
		w.picker.Open(trigger, w.assets,
			func(a domain.Asset) {
				if err := w.selectAsset(slot, a); err != nil {
					slog.Warn("Picker selection rejected", slog.Any("error", err))
				}
			},
			func() { w.pickerSlot = 0 },
		)
		w.pickerSlot = slot
		w.render()
		return nil
	})
}

// SearchPicker updates the picker search text
func (w *Widget) SearchPicker(query string) error {
	return w.do("search_picker", func() error {
		if err := w.picker.SetSearch(query); err != nil {
			return err
		}
		w.render()
		return nil
	})
}

// RevealMore shows the next page of picker results and returns the new visible count
func (w *Widget) RevealMore() (int, error) {
	var n int
	err := w.do("reveal_more", func() error {
		var err error
		n, err = w.picker.Reveal()
		if err != nil {
			return err
		}
		w.render()
		return nil
	})
	return n, err
}

// ScrollPicker scrolls the picker list to top, revealing the next page when its end comes into view
func (w *Widget) ScrollPicker(top float64) (int, error) {
	var n int
	err := w.do("scroll_picker", func() error {
		var err error
		n, err = w.picker.ScrollList(top)
		if err != nil {
			return err
		}
		w.render()
		return nil
	})
	return n, err
}

// PickVisible selects the i-th visible picker item, which also closes the picker
func (w *Widget) PickVisible(i int) error {
	return w.do("pick_visible", func() error {
		if err := w.picker.SelectVisible(i); err != nil {
			return err
		}
		w.render()
		return nil
	})
}

// ClosePicker dismisses the picker without selecting
func (w *Widget) ClosePicker() error {
	return w.do("close_picker", func() error {
		w.picker.Close()
		w.render()
		return nil
	})
}

// Scroll scrolls the host surface by dy
func (w *Widget) Scroll(dy float64) error {
	return w.do("scroll", func() error {
		w.viewport.Scroll(dy)
		w.render()
		return nil
	})
}

// Resize resizes the host surface
func (w *Widget) Resize(width, height float64) error {
	return w.do("resize", func() error {
		w.viewport.Resize(width, height)
		w.render()
		return nil
	})
}

// PointerDown delivers a press at pt; outside the picker it dismisses it
func (w *Widget) PointerDown(pt ui.Point) error {
	return w.do("pointer_down", func() error {
		w.viewport.PointerDown(pt)
		w.render()
		return nil
	})
}

// ScrollY returns the current host scroll offset
func (w *Widget) ScrollY() (float64, error) {
	var y float64
	err := w.do("scroll_y", func() error {
		y = w.viewport.ScrollY()
		return nil
	})
	return y, err
}

// Reconnect restarts the price stream for the current pair
func (w *Widget) Reconnect() error {
	return w.do("reconnect", func() error {
		if !w.subs.Reconnect() {
			return domain.ErrNoPair
		}
		w.render()
		return nil
	})
}

// ListenerCount returns the number of viewport listeners held (for leak checks)
func (w *Widget) ListenerCount() (int, error) {
	var n int
	err := w.do("listener_count", func() error {
		n = w.viewport.ListenerCount()
		return nil
	})
	return n, err
}

// HandleEvent implements engine.Handler
func (w *Widget) HandleEvent(ev event.Event) {
	switch e := ev.(type) {
	case *event.CatalogEvent:
		w.applyCatalog(e)
	case *event.TickEvent:
		w.subs.ApplyTick(w.store, e)
	case *event.StreamEvent:
		if w.subs.HandleStream(e) {
			w.render()
		}
	default:
		slog.Warn("Unknown event type", slog.String("type", ev.GetType().String()))
	}
}

// DumpState implements engine.StateDumper
func (w *Widget) DumpState() any {
	return w.buildSnapshot()
}

func (w *Widget) do(name string, fn func() error) error {
	if w.lifecycle.Load() != widgetMounted {
		return domain.ErrNotMounted
	}
	return w.loop.Execute(context.Background(), name, fn)
}

func (w *Widget) fetchCatalog(ctx context.Context) {
	assets, err := w.catalog.Load(ctx)
	ev := &event.CatalogEvent{Assets: assets, Err: err}
	ev.ReceivedAt = time.Now()
	if perr := w.loop.Post(ctx, ev); perr != nil {
		slog.Debug("Catalog result discarded", slog.Any("error", perr))
	}
}

func (w *Widget) applyCatalog(e *event.CatalogEvent) {
	defer w.readyOnce.Do(func() { close(w.ready) })

	if e.Err != nil {
		w.status = StatusFailed
		w.catalogErr = e.Err
		w.render()
		return
	}

	w.assets = e.Assets
	w.status = StatusReady
	w.catalogErr = nil
	w.picker.SetAssets(w.assets)

	// Resolving notifies the store listener, which renders and starts the stream
	if w.store.Resolve(w.assets) == 0 {
		w.render()
	}
}

func (w *Widget) selectAsset(slot domain.Slot, a domain.Asset) error {
	if slot != domain.SlotFrom && slot != domain.SlotTo {
		return fmt.Errorf("invalid slot %d", slot)
	}
	if a.ID == "" {
		return fmt.Errorf("%w: empty id", domain.ErrAssetNotFound)
	}
	sel := w.store.Selection()
	if opposite := sel.Get(slot.Opposite()); opposite != nil && opposite.ID == a.ID {
		w.store.Swap()
		return nil
	}
	if current := sel.Get(slot); current != nil && current.ID == a.ID {
		return nil
	}
	w.store.Set(slot, &a)
	return nil
}

func (w *Widget) onStoreChange(changed Field, sel domain.PairSelection) {
	w.recompute(sel)
	if changed.Has(FieldFrom | FieldTo) {
		w.subs.Sync(sel)
	}
	w.render()
}

func (w *Widget) recompute(sel domain.PairSelection) {
	w.converted, w.convertedOK = ConvertPair(sel)
}

func (w *Widget) render() {
	snap := w.publish()
	if w.onRender != nil {
		w.onRender(snap)
	}
}

func (w *Widget) publish() Snapshot {
	snap := w.buildSnapshot()
	w.snapshot.Store(&snap)
	return snap
}

func (w *Widget) buildSnapshot() Snapshot {
	sel := w.store.Selection()
	snap := Snapshot{
		ID:          w.id,
		Status:      w.status.String(),
		From:        sel.From,
		To:          sel.To,
		Amount:      sel.Amount,
		AmountText:  domain.FormatNumber(sel.Amount, false),
		Converted:   w.converted,
		ConvertedOK: w.convertedOK,
		Stream:      w.subs.State().String(),
		Scope:       w.subs.Scope().String(),
		Epoch:       w.subs.Epoch(),
		CatalogSize: len(w.assets),
	}
	if w.catalogErr != nil {
		snap.Error = w.catalogErr.Error()
	}
	if w.convertedOK {
		snap.ConvertedText = domain.FormatNumber(w.converted, w.opts.ForceDecimals)
	}
	if err := w.subs.LastError(); err != nil {
		snap.StreamError = err.Error()
	}
	if w.picker.IsOpen() {
		items := append([]domain.Asset(nil), w.picker.Visible()...)
		snap.Picker = &PickerView{
			Slot:     w.pickerSlot.String(),
			Search:   w.picker.Search(),
			Items:    items,
			Visible:  len(items),
			Total:    len(w.picker.Filtered()),
			HasMore:  w.picker.HasMore(),
			Position: w.picker.Position(),
		}
	}
	return snap
}

// ParseAmount parses user input. Empty input is zero; grouping commas are accepted.
func ParseAmount(text string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, text)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", domain.ErrInvalidAmount, text)
	}
	return d, nil
}
