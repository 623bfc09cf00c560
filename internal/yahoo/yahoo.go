package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ratelimit"
)

// FinanceClient provides methods for fetching daily closes from the Yahoo Finance chart API.
// Every request goes through the injected limiter.
type FinanceClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    ratelimit.Limiter
	log        zerolog.Logger
}

// NewFinanceClient creates a new Yahoo Finance client.
//
// Parameters:
//   - baseURL: scheme and host, e.g. https://query1.finance.yahoo.com
//   - timeout: per request HTTP timeout
//   - limiter: pacing shared with the rest of the sync
func NewFinanceClient(baseURL string, timeout time.Duration, limiter ratelimit.Limiter, log zerolog.Logger) *FinanceClient {
	return &FinanceClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    limiter,
		log:        log.With().Str("client", "yahoo").Logger(),
	}
}

// ParseChart converts a raw Yahoo Finance API response into a structured price chart.
//
// The method performs validation to ensure:
//   - A result is present
//   - Timestamp data is present
//   - Close arrays have the same length as the timestamps
//
// Only the traded close is used, never the adjusted one. Days where the close
// is null are skipped.
func ParseChart(yahooResult Response) (PriceChart, error) {
	if len(yahooResult.Chart.Result) == 0 {
		return PriceChart{}, apperrors.ErrNoData
	}
	result := yahooResult.Chart.Result[0]

	if len(result.Timestamp) == 0 {
		return PriceChart{}, apperrors.ErrNoData
	}
	if len(result.Indicators.Quote) == 0 || len(result.Indicators.Quote[0].Close) == 0 {
		return PriceChart{}, fmt.Errorf("no close prices returned: %w", apperrors.ErrNoData)
	}

	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return PriceChart{}, fmt.Errorf("mismatched data lengths")
	}

	indicators := make([]Indicators, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		d := time.Unix(ts, 0).UTC()
		indicators = append(indicators, Indicators{
			Date:       time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
			PriceClose: *closes[i],
		})
	}
	if len(indicators) == 0 {
		return PriceChart{}, apperrors.ErrNoData
	}

	return PriceChart{
		Symbol:       result.Meta.Symbol,
		Currency:     result.Meta.Currency,
		ExchangeName: result.Meta.ExchangeName,
		LongName:     result.Meta.LongName,
		Indicators:   indicators,
	}, nil
}

// FetchHistory fetches daily closes for ticker in [startDate, endDate] inclusive.
//
// Returns:
//   - apperrors.ErrRateLimited when Yahoo throttles the request
//   - apperrors.ErrNoData when the ticker is unknown or has no closes in range
func (c *FinanceClient) FetchHistory(ctx context.Context, ticker string, startDate, endDate time.Time) (PriceChart, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprintf("%d", startDate.Unix()))
	// period2 is exclusive on Yahoo's side.
	q.Set("period2", fmt.Sprintf("%d", endDate.AddDate(0, 0, 1).Unix()))
	q.Set("events", "div,splits")

	resp, err := c.queryYahoo(ctx, ticker, q)
	if err != nil {
		return PriceChart{}, err
	}
	return ParseChart(resp)
}

// Probe reports whether ticker returns any close over the last five days.
// Used to validate ticker candidates.
func (c *FinanceClient) Probe(ctx context.Context, ticker string) (bool, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", "5d")

	resp, err := c.queryYahoo(ctx, ticker, q)
	if err != nil {
		if isNoData(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := ParseChart(resp); err != nil {
		if isNoData(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoData(err error) bool {
	return errors.Is(err, apperrors.ErrNoData)
}

// queryYahoo executes one chart request after waiting on the limiter.
//
// The method sets required headers:
//   - User-Agent: Mimics a browser to avoid API blocking
//   - Accept: Requests JSON response format
func (c *FinanceClient) queryYahoo(ctx context.Context, ticker string, q url.Values) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, err
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to query yahoo for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || strings.Contains(string(data), "Too Many Requests") {
		c.log.Warn().Str("ticker", ticker).Int("status", resp.StatusCode).Msg("rate limited")
		return Response{}, fmt.Errorf("yahoo %s: %w", ticker, apperrors.ErrRateLimited)
	}
	if resp.StatusCode == http.StatusNotFound {
		return Response{}, fmt.Errorf("yahoo %s: %w", ticker, apperrors.ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("yahoo %s: unexpected status %d", ticker, resp.StatusCode)
	}

	var response Response
	if err := json.Unmarshal(data, &response); err != nil {
		return Response{}, fmt.Errorf("failed to decode yahoo response: %w", err)
	}

	if response.Chart.Error != nil {
		return response, fmt.Errorf("yahoo error %s: %s: %w", response.Chart.Error.Code, response.Chart.Error.Description, apperrors.ErrNoData)
	}

	c.log.Debug().Str("ticker", ticker).Msg("chart fetched")
	return response, nil
}
