package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"coin_swap/internal/domain"
	"coin_swap/internal/infra"
	"coin_swap/internal/service"
	"coin_swap/internal/ui"
)

// Layout of the rendered widget in host coordinates before scrolling
var (
	fromTriggerRect = ui.Rect{Left: 16, Top: 96, Width: 320, Height: 48}
	toTriggerRect   = ui.Rect{Left: 16, Top: 208, Width: 320, Height: 48}
)

const helpText = `commands:
  amount <value>        set the amount to convert
  from <id> | to <id>   select an asset by catalog id
  open from|to          open the asset picker
  search <text>         filter the open picker
  more                  reveal the next page of picker results
  list <top>            scroll the picker list (reveals more at its end)
  pick <n>              select the n-th visible picker item
  close                 dismiss the picker
  click <x> <y>         press at a point (outside the picker closes it)
  scroll <dy>           scroll the page
  resize <w> <h>        resize the page
  swap                  exchange from and to
  reconnect             restart the price stream
  info <id>             show the stored catalog record
  show                  print the widget state
  json                  print the widget state as JSON
  stats                 print runtime metrics
  quit                  exit`

// AssetLookup reads stored catalog records
type AssetLookup interface {
	GetAsset(id string) (*domain.AssetRecord, error)
}

// Console is a line-oriented host for one widget. It plays the role of the page:
// it owns the scroll position and the trigger boxes the picker anchors to.
type Console struct {
	widget  *service.Widget
	assets  AssetLookup
	metrics *infra.Metrics
	out     io.Writer

	mu      sync.Mutex
	scrollY float64
}

// NewConsole creates a console host. assets and metrics may be nil.
func NewConsole(widget *service.Widget, assets AssetLookup, metrics *infra.Metrics, out io.Writer) *Console {
	return &Console{widget: widget, assets: assets, metrics: metrics, out: out}
}

// trigger is a picker anchor whose on-screen box follows the console's scroll position.
// BoundingRect runs on the widget loop, so it must not call back into the widget.
type trigger struct {
	c    *Console
	rect ui.Rect
}

func (t trigger) BoundingRect() ui.Rect {
	r := t.rect
	r.Top -= t.c.scroll()
	return r
}

func (c *Console) scroll() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scrollY
}

func (c *Console) addScroll(dy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrollY += dy
	if c.scrollY < 0 {
		c.scrollY = 0
	}
}

// Run reads commands from in until EOF, "quit" or ctx cancellation
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, "type 'help' for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.Exec(line)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Exec runs one command line and reports whether the host should exit
func (c *Console) Exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(c.out, helpText)
		return false, nil
	case "show":
		c.Print(c.widget.Snapshot())
		return false, nil
	case "json":
		b, jerr := json.MarshalIndent(c.widget.Snapshot(), "", "  ")
		if jerr != nil {
			return false, jerr
		}
		fmt.Fprintln(c.out, string(b))
		return false, nil
	case "stats":
		c.printStats()
		return false, nil
	case "info":
		return false, c.printInfo(args)
	case "amount":
		err = c.widget.SetAmount(strings.Join(args, ""))
	case "from", "to":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s <id>", cmd)
		}
		slot, _ := domain.ParseSlot(cmd)
		err = c.widget.SelectByID(slot, args[0])
	case "open":
		err = c.open(args)
	case "search":
		err = c.widget.SearchPicker(strings.Join(args, " "))
	case "more":
		_, err = c.widget.RevealMore()
	case "list":
		top, perr := floatArg(args, 0)
		if perr != nil {
			return false, perr
		}
		_, err = c.widget.ScrollPicker(top)
	case "pick":
		n, perr := intArg(args, 0)
		if perr != nil {
			return false, perr
		}
		err = c.widget.PickVisible(n - 1)
	case "close":
		err = c.widget.ClosePicker()
	case "click":
		x, y, perr := floatPair(args)
		if perr != nil {
			return false, perr
		}
		err = c.widget.PointerDown(ui.Point{X: x, Y: y})
	case "scroll":
		dy, perr := floatArg(args, 0)
		if perr != nil {
			return false, perr
		}
		c.addScroll(dy)
		err = c.widget.Scroll(dy)
	case "resize":
		w, h, perr := floatPair(args)
		if perr != nil {
			return false, perr
		}
		err = c.widget.Resize(w, h)
	case "swap":
		err = c.widget.SwapPositions()
	case "reconnect":
		err = c.widget.Reconnect()
	default:
		return false, fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	if err != nil {
		return false, err
	}

	c.Print(c.widget.Snapshot())
	return false, nil
}

func (c *Console) open(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: open from|to")
	}
	slot, ok := domain.ParseSlot(args[0])
	if !ok {
		return fmt.Errorf("unknown slot %q", args[0])
	}
	rect := fromTriggerRect
	if slot == domain.SlotTo {
		rect = toTriggerRect
	}
	return c.widget.OpenPicker(slot, trigger{c: c, rect: rect})
}

// Print renders a snapshot as text
func (c *Console) Print(s service.Snapshot) {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] catalog=%d stream=%s", s.Status, s.CatalogSize, s.Stream)
	if s.Scope != "" {
		fmt.Fprintf(&b, " scope=%s epoch=%d", s.Scope, s.Epoch)
	}
	b.WriteByte('\n')
	if s.Error != "" {
		fmt.Fprintf(&b, "  catalog error: %s\n", s.Error)
	}
	if s.StreamError != "" {
		fmt.Fprintf(&b, "  stream error: %s\n", s.StreamError)
	}

	fmt.Fprintf(&b, "  from: %s\n", describe(s.From))
	fmt.Fprintf(&b, "  to:   %s\n", describe(s.To))

	converted := "-"
	if s.ConvertedOK {
		converted = s.ConvertedText
	}
	fmt.Fprintf(&b, "  %s %s = %s %s\n", s.AmountText, symbolOf(s.From), converted, symbolOf(s.To))

	if p := s.Picker; p != nil {
		fmt.Fprintf(&b, "  picker(%s) search=%q showing %d of %d at top=%.0f left=%.0f\n",
			p.Slot, p.Search, p.Visible, p.Total, p.Position.Top, p.Position.Left)
		for i, a := range p.Items {
			fmt.Fprintf(&b, "    %2d. %-8s %s\n", i+1, strings.ToUpper(a.Symbol), a.Name)
		}
		if p.HasMore {
			b.WriteString("    ... 'more' for the next page\n")
		}
	}

	fmt.Fprint(c.out, b.String())
}

func (c *Console) printStats() {
	if c.metrics == nil {
		fmt.Fprintln(c.out, "metrics unavailable")
		return
	}
	m := c.metrics.Snapshot()
	fmt.Fprintf(c.out, "ticks=%d dropped=%d stream_errors=%d reconnects=%d panics=%d avg_latency=%dns connections=%d peak=%d\n",
		m.TicksApplied, m.TicksDropped, m.StreamErrors, m.Reconnects, m.LoopPanics,
		m.AvgTickLatencyNs, m.ActiveConnections, m.PeakConnections)
}

func (c *Console) printInfo(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: info <id>")
	}
	if c.assets == nil {
		return errors.New("storage unavailable")
	}
	rec, err := c.assets.GetAsset(args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", domain.ErrAssetNotFound, args[0])
	}
	icon := rec.IconPath
	if icon == "" {
		icon = "(not downloaded)"
	}
	fmt.Fprintf(c.out, "%s %s (%s) rank=%d ref_price=%s icon=%s\n",
		rec.ID, strings.ToUpper(rec.Symbol), rec.Name, rec.CatalogRank+1, rec.ReferencePrice, icon)
	return nil
}

func describe(a *domain.Asset) string {
	if a == nil {
		return "(none)"
	}
	return fmt.Sprintf("%s %s @ %s", strings.ToUpper(a.Symbol), a.Name, domain.FormatNumber(a.Price, true))
}

func symbolOf(a *domain.Asset) string {
	if a == nil {
		return "?"
	}
	return strings.ToUpper(a.Symbol)
}

func intArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, errors.New("missing number")
	}
	return strconv.Atoi(args[i])
}

func floatArg(args []string, i int) (float64, error) {
	if len(args) <= i {
		return 0, errors.New("missing number")
	}
	return strconv.ParseFloat(args[i], 64)
}

func floatPair(args []string) (float64, float64, error) {
	a, err := floatArg(args, 0)
	if err != nil {
		return 0, 0, err
	}
	b, err := floatArg(args, 1)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
