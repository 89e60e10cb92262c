package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coin_swap/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	catalogMaxAttempts = 3
	catalogRetryBase   = 1 * time.Second
)

// coinGeckoMarket is one row of the CoinGecko /coins/markets response
type coinGeckoMarket struct {
	ID            string              `json:"id"`
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	Image         string              `json:"image"`
	CurrentPrice  decimal.NullDecimal `json:"current_price"` // null for unpriced coins
	MarketCapRank *int                `json:"market_cap_rank"`
}

// CoinGeckoClient fetches the asset catalog from the CoinGecko markets endpoint
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	retryBase  time.Duration
}

// NewCoinGeckoClient creates a catalog client for baseURL (e.g., "https://api.coingecko.com/api/v3")
func NewCoinGeckoClient(baseURL string, timeout time.Duration) *CoinGeckoClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retryBase:  catalogRetryBase,
	}
}

// FetchAssets returns one page of assets ordered by market cap.
// Failures are retried with backoff; the final error wraps domain.ErrCatalogUnavailable.
func (c *CoinGeckoClient) FetchAssets(ctx context.Context, page, perPage int) ([]domain.Asset, error) {
	var lastErr error
	for i := 0; i < catalogMaxAttempts; i++ {
		if i > 0 {
			// Exponential backoff: 1s, 2s
			delay := CalculateBackoffWith(i-1, c.retryBase, backoffMaxDelay)
			slog.Info("Retrying catalog fetch", slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		assets, err := c.doFetch(ctx, page, perPage)
		if err == nil {
			return assets, nil
		}
		lastErr = err
		slog.Warn("Catalog fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))

		if !domain.IsRetriable(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, lastErr)
}

func (c *CoinGeckoClient) doFetch(ctx context.Context, page, perPage int) ([]domain.Asset, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coins/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, domain.NewFatalNetworkError("fetch", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		// Rate limiting and server errors are worth another attempt
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, domain.NewNetworkError("fetch", statusErr)
		}
		return nil, domain.NewFatalNetworkError("fetch", statusErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError("read", err)
	}

	var rows []coinGeckoMarket
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, domain.NewFatalNetworkError("decode", err)
	}

	assets := make([]domain.Asset, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" || row.Symbol == "" {
			continue
		}
		assets = append(assets, domain.Asset{
			ID:      row.ID,
			Symbol:  row.Symbol,
			Name:    row.Name,
			IconURL: row.Image,
			Price:   row.CurrentPrice.Decimal, // zero when null
		})
	}
	return assets, nil
}
