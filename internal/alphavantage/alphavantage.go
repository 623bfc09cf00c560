// Package alphavantage is a client for the Alpha Vantage daily time-series
// API. It serves as the fallback price source for securities Yahoo has no
// data for.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ratelimit"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/yahoo"
)

const (
	dateLayout = "2006-01-02"

	// compactWindow is how far back the compact output (the latest 100
	// trading days) safely reaches.
	compactWindow = 140 * 24 * time.Hour
)

// dailyResponse is the TIME_SERIES_DAILY payload. Errors and throttling
// come back with status 200 and one of the message keys set.
type dailyResponse struct {
	ErrorMessage string              `json:"Error Message"`
	Note         string              `json:"Note"`
	Information  string              `json:"Information"`
	Series       map[string]dailyBar `json:"Time Series (Daily)"`
}

type dailyBar struct {
	Close string `json:"4. close"`
}

// Client fetches daily closes.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    ratelimit.Limiter
	log        zerolog.Logger
	now        func() time.Time
}

// NewClient creates an Alpha Vantage client.
func NewClient(baseURL, apiKey string, timeout time.Duration, limiter ratelimit.Limiter, log zerolog.Logger) *Client {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    limiter,
		log:        log.With().Str("client", "alphavantage").Logger(),
		now:        time.Now,
	}
}

// FetchHistory returns the closes of symbol in [start, end], ascending.
// The chart carries no currency; Alpha Vantage quotes in the listing
// currency, which the caller knows from the security.
//
// Returns:
//   - apperrors.ErrRateLimited when the daily or per-minute quota is spent
//   - apperrors.ErrNoData when the symbol is unknown or has no closes in range
func (c *Client) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (yahoo.PriceChart, error) {
	size := "compact"
	if c.now().Sub(start) > compactWindow {
		size = "full"
	}
	resp, err := c.query(ctx, symbol, size)
	if err != nil {
		return yahoo.PriceChart{}, err
	}
	return parseDaily(symbol, resp, start, end)
}

// Probe reports whether symbol has any recent close.
func (c *Client) Probe(ctx context.Context, symbol string) (bool, error) {
	end := c.now().UTC()
	_, err := c.FetchHistory(ctx, symbol, end.AddDate(0, 0, -7), end)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperrors.ErrNoData):
		return false, nil
	default:
		return false, err
	}
}

func (c *Client) query(ctx context.Context, symbol, size string) (dailyResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return dailyResponse{}, err
	}

	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("outputsize", size)
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return dailyResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dailyResponse{}, fmt.Errorf("failed to query alpha vantage for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return dailyResponse{}, err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return dailyResponse{}, fmt.Errorf("alpha vantage %s: %w", symbol, apperrors.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return dailyResponse{}, fmt.Errorf("alpha vantage %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var out dailyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return dailyResponse{}, fmt.Errorf("failed to decode alpha vantage response: %w", err)
	}
	if msg := out.Note + out.Information; msg != "" {
		c.log.Warn().Str("symbol", symbol).Str("message", msg).Msg("rate limited")
		return dailyResponse{}, fmt.Errorf("alpha vantage %s: %w", symbol, apperrors.ErrRateLimited)
	}
	if out.ErrorMessage != "" {
		return dailyResponse{}, fmt.Errorf("alpha vantage %s: %s: %w", symbol, out.ErrorMessage, apperrors.ErrNoData)
	}
	c.log.Debug().Str("symbol", symbol).Int("days", len(out.Series)).Msg("series fetched")
	return out, nil
}

// parseDaily keeps the closes in [start, end]. Unparseable or non-positive
// closes are dropped.
func parseDaily(symbol string, resp dailyResponse, start, end time.Time) (yahoo.PriceChart, error) {
	from, to := start.Format(dateLayout), end.Format(dateLayout)
	chart := yahoo.PriceChart{Symbol: symbol}
	for day, bar := range resp.Series {
		if day < from || day > to {
			continue
		}
		d, err := time.Parse(dateLayout, day)
		if err != nil {
			continue
		}
		v, err := decimal.NewFromString(bar.Close)
		if err != nil || !v.IsPositive() {
			continue
		}
		chart.Indicators = append(chart.Indicators, yahoo.Indicators{Date: d, PriceClose: v.InexactFloat64()})
	}
	if len(chart.Indicators) == 0 {
		return chart, fmt.Errorf("alpha vantage %s %s..%s: %w", symbol, from, to, apperrors.ErrNoData)
	}
	sort.Slice(chart.Indicators, func(i, j int) bool {
		return chart.Indicators[i].Date.Before(chart.Indicators[j].Date)
	})
	return chart, nil
}
