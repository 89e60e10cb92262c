package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"coin_swap/internal/domain"
	"coin_swap/internal/infra"
	"coin_swap/internal/infra/storage"
	"coin_swap/internal/service"
	"coin_swap/internal/ui"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.Storage
	Downloader *infra.IconDownloader
	Metrics    *infra.Metrics
	Catalog    *service.CatalogService
	Dialer     *infra.BinanceDialer
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB, clients)
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("Bootstrapping", slog.String("app", cfg.App.Name), slog.String("version", cfg.App.Version))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Database initialized")

	// 4. Initialize Icon Downloader
	if cfg.Icons.Enabled {
		downloader, err := infra.NewIconDownloader(cfg.Icons.Dir, cfg.Icons.Size)
		if err != nil {
			return err
		}
		b.Downloader = downloader
		slog.Info("Icon downloader ready")
	}

	// 5. Remote clients
	b.Metrics = &infra.Metrics{}
	source := infra.NewCoinGeckoClient(cfg.API.Catalog.RestURL, cfg.CatalogTimeout())
	b.Catalog = service.NewCatalogService(source, store, cfg.API.Catalog.Page, cfg.API.Catalog.PerPage)
	b.Dialer = infra.NewBinanceDialer(cfg.API.Stream.WSURL, cfg.HandshakeTimeout(), cfg.ReadTimeout())

	return nil
}

// NewWidget builds an unmounted swap widget wired to the shared catalog, stream and storage
func (b *Bootstrap) NewWidget() *service.Widget {
	cfg := b.Config
	opts := service.DefaultWidgetOptions()
	opts.Quote = cfg.API.Stream.Quote
	opts.MaxRetries = cfg.API.Stream.MaxRetries
	opts.InboxSize = cfg.Swap.InboxSize
	opts.DefaultAmount = cfg.Swap.DefaultAmount
	opts.ForceDecimals = cfg.Swap.ForceDecimals
	opts.Picker = ui.PickerConfig{
		PageSize:   cfg.Swap.PageSize,
		Gap:        cfg.Swap.PickerGap,
		Height:     cfg.Swap.PickerHeight,
		ItemHeight: cfg.Swap.PickerItemHeight,
	}
	return service.NewWidget(b.Catalog, b.Dialer, b.Storage, b.Metrics, opts)
}

// SyncIcons downloads icons for the catalog in the background and records their paths.
// This runs after the catalog has loaded and never blocks the widget.
func (b *Bootstrap) SyncIcons(ctx context.Context, assets []domain.Asset) {
	if b.Downloader == nil || len(assets) == 0 {
		return
	}
	slog.Info("Starting icon synchronization", slog.Int("assets", len(assets)))

	limit := b.Config.Icons.Concurrency
	if limit < 1 {
		limit = 1
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, limit) // Limit concurrent downloads

	for _, a := range assets {
		if a.IconURL == "" {
			continue
		}
		wg.Add(1)
		go func(asset domain.Asset) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			path, err := b.Downloader.DownloadIcon(ctx, asset.ID, asset.IconURL)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Warn("Failed to download icon", slog.String("id", asset.ID), slog.Any("error", err))
				}
				return
			}
			if err := b.Storage.SetIconPath(asset.ID, path); err != nil {
				slog.Warn("Failed to record icon path", slog.String("id", asset.ID), slog.Any("error", err))
			}
		}(a)
	}

	wg.Wait()
	slog.Info("Icon synchronization completed")
}

// Close releases bootstrap resources
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close database", slog.Any("error", err))
		}
	}
}
