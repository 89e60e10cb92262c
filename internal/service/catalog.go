package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"coin_swap/internal/domain"
)

// CatalogService fetches the asset catalog once per session and keeps a local snapshot.
type CatalogService struct {
	source  domain.CatalogSource
	repo    domain.AssetRepository // Optional
	page    int
	perPage int

	mu     sync.Mutex
	assets []domain.Asset
	loaded bool
}

// NewCatalogService creates a catalog service. repo may be nil.
func NewCatalogService(source domain.CatalogSource, repo domain.AssetRepository, page, perPage int) *CatalogService {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 100
	}
	return &CatalogService{
		source:  source,
		repo:    repo,
		page:    page,
		perPage: perPage,
	}
}

// Load returns the catalog, fetching it on first use.
// Concurrent callers share one request; once data exists no second request is issued.
func (c *CatalogService) Load(ctx context.Context) ([]domain.Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.copyAssets(), nil
	}

	assets, err := c.source.FetchAssets(ctx, c.page, c.perPage)
	if err != nil {
		slog.Error("Catalog fetch failed", slog.Any("error", err))
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	c.assets = assets
	c.loaded = true
	slog.Info("Catalog loaded", slog.Int("assets", len(assets)))

	c.saveSnapshot(assets)
	return c.copyAssets(), nil
}

// Assets returns the cached catalog (nil before a successful Load)
func (c *CatalogService) Assets() []domain.Asset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyAssets()
}

func (c *CatalogService) copyAssets() []domain.Asset {
	if c.assets == nil {
		return nil
	}
	return append([]domain.Asset(nil), c.assets...)
}

func (c *CatalogService) saveSnapshot(assets []domain.Asset) {
	if c.repo == nil {
		return
	}
	if err := c.repo.UpsertAssets(ToRecords(assets)); err != nil {
		slog.Warn("Failed to store catalog snapshot", slog.Any("error", err))
	}
}

// ToRecords converts catalog assets to storage records, keeping catalog order as rank
func ToRecords(assets []domain.Asset) []domain.AssetRecord {
	records := make([]domain.AssetRecord, len(assets))
	for i, a := range assets {
		records[i] = domain.AssetRecord{
			ID:             a.ID,
			Symbol:         a.Symbol,
			Name:           a.Name,
			IconURL:        a.IconURL,
			ReferencePrice: a.Price.String(),
			CatalogRank:    i,
		}
	}
	return records
}
