package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"coin_swap/internal/domain"
	"coin_swap/internal/service"
	"coin_swap/internal/ui"

	"github.com/shopspring/decimal"
)

type staticSource struct{ assets []domain.Asset }

func (s staticSource) FetchAssets(ctx context.Context, page, perPage int) ([]domain.Asset, error) {
	return s.assets, nil
}

// refusingDialer never connects; the console tests only need the catalog
type refusingDialer struct{}

func (refusingDialer) Dial(ctx context.Context) (domain.StreamConn, error) {
	return nil, errors.New("offline")
}

type recordLookup map[string]*domain.AssetRecord

func (r recordLookup) GetAsset(id string) (*domain.AssetRecord, error) {
	return r[id], nil
}

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	assets := []domain.Asset{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Price: decimal.NewFromInt(60000)},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", Price: decimal.NewFromInt(3000)},
	}
	opts := service.DefaultWidgetOptions()
	opts.DumpPath = ""
	opts.MaxRetries = 0
	catalog := service.NewCatalogService(staticSource{assets: assets}, nil, 1, 100)
	w := service.NewWidget(catalog, refusingDialer{}, nil, nil, opts)
	if err := w.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Unmount)

	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("catalog never settled")
	}

	var out bytes.Buffer
	lookup := recordLookup{"bitcoin": {ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", ReferencePrice: "60000"}}
	return NewConsole(w, lookup, nil, &out), &out
}

func TestConsole_SelectAndConvert(t *testing.T) {
	c, out := newTestConsole(t)

	for _, line := range []string{"from bitcoin", "to ethereum", "amount 2"} {
		if _, err := c.Exec(line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	if !strings.Contains(out.String(), "2 BTC = 40.00 ETH") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestConsole_PickerFollowsScroll(t *testing.T) {
	c, _ := newTestConsole(t)

	if _, err := c.Exec("open to"); err != nil {
		t.Fatal(err)
	}
	before := c.widget.Snapshot().Picker.Position.Top
	if before != toTriggerRect.Bottom()+ui.DefaultPickerConfig().Gap {
		t.Errorf("unexpected initial top %v", before)
	}

	if _, err := c.Exec("scroll 50"); err != nil {
		t.Fatal(err)
	}
	if got := c.widget.Snapshot().Picker.Position.Top; got != before-50 {
		t.Errorf("expected top %v after scroll, got %v", before-50, got)
	}

	if _, err := c.Exec("pick 1"); err != nil {
		t.Fatal(err)
	}
	snap := c.widget.Snapshot()
	if snap.Picker != nil || snap.To == nil || snap.To.ID != "bitcoin" {
		t.Errorf("expected bitcoin picked into to, got %+v", snap.To)
	}
}

func TestConsole_Errors(t *testing.T) {
	c, _ := newTestConsole(t)

	tests := []struct {
		line string
		want error
	}{
		{"amount -3", domain.ErrInvalidAmount},
		{"from dogecoin", domain.ErrAssetNotFound},
		{"search btc", domain.ErrPickerClosed},
		{"list 0", domain.ErrPickerClosed},
		{"reconnect", domain.ErrNoPair},
		{"info solana", domain.ErrAssetNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if _, err := c.Exec(tt.line); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := c.Exec("bogus"); err == nil {
		t.Error("expected error for unknown command")
	}
	if quit, _ := c.Exec("quit"); !quit {
		t.Error("quit must stop the console")
	}
}

func TestConsole_Info(t *testing.T) {
	c, out := newTestConsole(t)

	if _, err := c.Exec("info bitcoin"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "bitcoin BTC (Bitcoin) rank=1") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestConsole_RunStopsOnQuit(t *testing.T) {
	c, out := newTestConsole(t)

	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background(), strings.NewReader("show\nquit\nshow\n"))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop")
	}
	if n := strings.Count(out.String(), "[ready]"); n != 1 {
		t.Errorf("expected one render before quit, got %d", n)
	}
}

func TestConsole_ListScrollRevealsNextPage(t *testing.T) {
	assets := make([]domain.Asset, 30)
	for i := range assets {
		id := fmt.Sprintf("coin-%02d", i)
		assets[i] = domain.Asset{ID: id, Symbol: id, Name: id, Price: decimal.NewFromInt(int64(i + 1))}
	}
	opts := service.DefaultWidgetOptions()
	opts.DumpPath = ""
	opts.MaxRetries = 0
	catalog := service.NewCatalogService(staticSource{assets: assets}, nil, 1, 100)
	w := service.NewWidget(catalog, refusingDialer{}, nil, nil, opts)
	if err := w.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Unmount)
	<-w.Ready()

	var out bytes.Buffer
	c := NewConsole(w, nil, nil, &out)
	if _, err := c.Exec("open from"); err != nil {
		t.Fatal(err)
	}
	page := ui.DefaultPickerConfig().PageSize

	// End of list still below the overlay
	if _, err := c.Exec("list 0"); err != nil {
		t.Fatal(err)
	}
	if got := w.Snapshot().Picker.Visible; got != page {
		t.Errorf("expected %d visible before the end is reached, got %d", page, got)
	}

	if _, err := c.Exec("list 600"); err != nil {
		t.Fatal(err)
	}
	if got := w.Snapshot().Picker.Visible; got != len(assets) {
		t.Errorf("expected %d visible after scrolling to the end, got %d", len(assets), got)
	}
}
