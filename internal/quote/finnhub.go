package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultFinnhubURL = "https://finnhub.io/api/v1"

// Finnhub fetches prices from the Finnhub /quote endpoint. No retries here:
// the trade pipeline re-fetches on its own conflict retry, and anything else
// surfaces as ErrUnavailable.
type Finnhub struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewFinnhub(baseURL, apiKey string, logger *zap.Logger) *Finnhub {
	if baseURL == "" {
		baseURL = DefaultFinnhubURL
	}
	return &Finnhub{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// finnhubQuote maps the JSON response of Finnhub's /quote endpoint; "c" is
// the current price.
type finnhubQuote struct {
	Current decimal.Decimal `json:"c"`
}

func (f *Finnhub) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/quote?symbol=%s&token=%s", f.baseURL, url.QueryEscape(symbol), url.QueryEscape(f.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("quote provider returned non-200",
			zap.String("symbol", symbol), zap.Int("status", resp.StatusCode))
		return decimal.Zero, fmt.Errorf("%w: provider status %d", ErrUnavailable, resp.StatusCode)
	}

	var q finnhubQuote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	// Finnhub reports 0 for unknown symbols.
	if !q.Current.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no price for %s", ErrUnavailable, symbol)
	}
	return q.Current, nil
}
