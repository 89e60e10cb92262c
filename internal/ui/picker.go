package ui

import (
	"fmt"
	"strings"

	"coin_swap/internal/domain"
)

// PickerConfig controls paging and placement of the asset picker
type PickerConfig struct {
	PageSize   int     // Items revealed per step
	Gap        float64 // Distance below the trigger's bottom edge
	Height     float64 // Rendered height of the overlay
	ItemHeight float64 // Row height inside the overlay list
}

// DefaultPickerConfig returns the standard picker configuration
func DefaultPickerConfig() PickerConfig {
	return PickerConfig{PageSize: 20, Gap: 8, Height: 240, ItemHeight: 40}
}

// FilterAssets returns assets whose name or symbol contains query, case-insensitively.
// An empty query returns every asset.
func FilterAssets(assets []domain.Asset, query string) []domain.Asset {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return assets
	}
	out := make([]domain.Asset, 0, len(assets))
	for _, a := range assets {
		if strings.Contains(strings.ToLower(a.Name), q) || strings.Contains(strings.ToLower(a.Symbol), q) {
			out = append(out, a)
		}
	}
	return out
}

// Picker is a floating, search-filtered, incrementally revealed asset list anchored to a trigger.
// Viewport listeners are held only while the picker is open.
type Picker struct {
	cfg      PickerConfig
	viewport *Viewport

	open     bool
	trigger  Element
	assets   []domain.Asset
	filtered []domain.Asset
	search   string
	visible  int
	position Position
	onSelect func(domain.Asset)
	onClose  func()
	release  []func()
}

// NewPicker creates a closed picker bound to a viewport
func NewPicker(cfg PickerConfig, viewport *Viewport) *Picker {
	def := DefaultPickerConfig()
	if cfg.PageSize < 1 {
		cfg.PageSize = def.PageSize
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.ItemHeight <= 0 {
		cfg.ItemHeight = def.ItemHeight
	}
	return &Picker{cfg: cfg, viewport: viewport}
}

// Open shows the picker under trigger. An already open picker is closed first.
// onClose, if set, runs on every close path.
func (p *Picker) Open(trigger Element, assets []domain.Asset, onSelect func(domain.Asset), onClose func()) {
	if p.open {
		p.Close()
	}

	p.open = true
	p.trigger = trigger
	p.assets = assets
	p.onSelect = onSelect
	p.onClose = onClose
	p.resetQuery("")
	p.reposition()

	p.release = append(p.release,
		p.viewport.On(EventScroll, func(ViewportEvent) { p.reposition() }),
		p.viewport.On(EventResize, func(ViewportEvent) { p.reposition() }),
		p.viewport.On(EventPointerDown, func(ev ViewportEvent) {
			if !p.Region().Contains(ev.Point) {
				p.Close()
			}
		}),
	)
}

// Close hides the picker and releases its viewport listeners. Closing a closed picker is a no-op.
func (p *Picker) Close() {
	if !p.open {
		return
	}
	for _, remove := range p.release {
		remove()
	}
	p.release = nil

	onClose := p.onClose
	p.open = false
	p.trigger = nil
	p.onSelect = nil
	p.onClose = nil
	p.filtered = nil

	if onClose != nil {
		onClose()
	}
}

// SetAssets replaces the list while keeping the current search
func (p *Picker) SetAssets(assets []domain.Asset) {
	p.assets = assets
	if p.open {
		p.filtered = FilterAssets(p.assets, p.search)
	}
}

// SetSearch refilters the list and resets the revealed window
func (p *Picker) SetSearch(query string) error {
	if !p.open {
		return domain.ErrPickerClosed
	}
	p.resetQuery(query)
	return nil
}

func (p *Picker) resetQuery(query string) {
	p.search = query
	p.filtered = FilterAssets(p.assets, query)
	p.visible = p.cfg.PageSize
}

// Reveal grows the visible window by one page, capped at the filtered count.
// The host calls it when the end of the list scrolls into view.
func (p *Picker) Reveal() (int, error) {
	if !p.open {
		return 0, domain.ErrPickerClosed
	}
	next := p.visible + p.cfg.PageSize
	if next > len(p.filtered) {
		next = len(p.filtered)
	}
	if next > p.visible {
		p.visible = next
	}
	return p.visible, nil
}

// SentinelVisible reports whether the end-of-list marker lies inside the overlay
// when its list is scrolled to scrollTop. It is false once nothing remains hidden.
func (p *Picker) SentinelVisible(scrollTop float64) bool {
	if !p.HasMore() {
		return false
	}
	if scrollTop < 0 {
		scrollTop = 0
	}
	sentinel := float64(len(p.Visible())) * p.cfg.ItemHeight
	return sentinel <= scrollTop+p.cfg.Height
}

// ScrollList reports a scroll of the overlay list to scrollTop and reveals the next page
// when the end-of-list marker comes into view. It returns the visible count.
func (p *Picker) ScrollList(scrollTop float64) (int, error) {
	if !p.open {
		return 0, domain.ErrPickerClosed
	}
	if p.SentinelVisible(scrollTop) {
		return p.Reveal()
	}
	return p.visible, nil
}

// HasMore reports whether filtered items remain hidden
func (p *Picker) HasMore() bool {
	return p.open && p.visible < len(p.filtered)
}

// Visible returns the currently rendered items
func (p *Picker) Visible() []domain.Asset {
	if !p.open {
		return nil
	}
	n := p.visible
	if n > len(p.filtered) {
		n = len(p.filtered)
	}
	return p.filtered[:n]
}

// Filtered returns every item matching the search
func (p *Picker) Filtered() []domain.Asset {
	return p.filtered
}

// SelectVisible picks the i-th rendered item
func (p *Picker) SelectVisible(i int) error {
	items := p.Visible()
	if !p.open {
		return domain.ErrPickerClosed
	}
	if i < 0 || i >= len(items) {
		return fmt.Errorf("%w: no visible item at %d", domain.ErrAssetNotFound, i)
	}
	p.Select(items[i])
	return nil
}

// Select reports asset to the caller and then closes the picker
func (p *Picker) Select(asset domain.Asset) {
	if !p.open {
		return
	}
	if p.onSelect != nil {
		p.onSelect(asset)
	}
	p.Close()
}

func (p *Picker) reposition() {
	if p.trigger == nil {
		return
	}
	r := p.trigger.BoundingRect()
	p.position = Position{
		Top:   r.Bottom() + p.cfg.Gap,
		Left:  r.Left,
		Width: r.Width,
	}
}

// Region returns the rendered overlay box
func (p *Picker) Region() Rect {
	return Rect{Left: p.position.Left, Top: p.position.Top, Width: p.position.Width, Height: p.cfg.Height}
}

func (p *Picker) IsOpen() bool         { return p.open }
func (p *Picker) Search() string       { return p.search }
func (p *Picker) VisibleCount() int    { return p.visible }
func (p *Picker) Position() Position   { return p.position }
func (p *Picker) Config() PickerConfig { return p.cfg }
