// Package frankfurter is a client for the Frankfurter ECB reference-rate API.
package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ratelimit"
)

const dateLayout = "2006-01-02"

// supportedCurrencies are the ISO codes Frankfurter publishes.
var supportedCurrencies = map[string]bool{
	"AUD": true, "BGN": true, "BRL": true, "CAD": true, "CHF": true, "CNY": true, "CZK": true, "DKK": true,
	"EUR": true, "GBP": true, "HKD": true, "HUF": true, "IDR": true, "ILS": true, "INR": true, "ISK": true,
	"JPY": true, "KRW": true, "MXN": true, "MYR": true, "NOK": true, "NZD": true, "PHP": true, "PLN": true,
	"RON": true, "SEK": true, "SGD": true, "THB": true, "TRY": true, "USD": true, "ZAR": true,
}

// Supported reports whether Frankfurter quotes the currency.
func Supported(currency string) bool {
	return supportedCurrencies[NormalizeCurrency(currency)]
}

// NormalizeCurrency upper-cases the code and fixes broker aliases (RUS is RUB).
func NormalizeCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "RUS" {
		return "RUB"
	}
	return c
}

// Rate is one published rate.
type Rate struct {
	Date time.Time
	Rate float64
}

type rangeResponse struct {
	Base  string                        `json:"base"`
	Rates map[string]map[string]float64 `json:"rates"`
}

// Client fetches reference rates.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    ratelimit.Limiter
	log        zerolog.Logger
}

// NewClient creates a Frankfurter client.
func NewClient(baseURL string, timeout time.Duration, limiter ratelimit.Limiter, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    limiter,
		log:        log.With().Str("client", "frankfurter").Logger(),
	}
}

// FetchRates returns every published from->to rate in [start, end] in one
// call, ascending by date. Days without publication (weekends, ECB holidays)
// are simply absent.
func (c *Client) FetchRates(ctx context.Context, from, to string, start, end time.Time) ([]Rate, error) {
	from, to = NormalizeCurrency(from), NormalizeCurrency(to)
	if !Supported(from) {
		return nil, fmt.Errorf("%s: %w", from, apperrors.ErrUnsupportedCurrency)
	}
	if !Supported(to) {
		return nil, fmt.Errorf("%s: %w", to, apperrors.ErrUnsupportedCurrency)
	}

	path := start.Format(dateLayout) + ".." + end.Format(dateLayout)
	if start.Equal(end) {
		path = start.Format(dateLayout)
	}

	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query frankfurter: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.log.Warn().Str("from", from).Msg("rate limited")
		return nil, fmt.Errorf("frankfurter %s: %w", from, apperrors.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("frankfurter %s %s: %w", from, path, apperrors.ErrNoData)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("frankfurter %s %s: unexpected status %d", from, path, resp.StatusCode)
	}

	rates, err := decode(body, to)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("from", from).Str("range", path).Int("rates", len(rates)).Msg("rates fetched")
	return rates, nil
}

// decode accepts both the range shape {"rates":{"2024-01-02":{"EUR":0.9}}}
// and the single-date shape {"date":"2024-01-02","rates":{"EUR":0.9}}.
func decode(body []byte, to string) ([]Rate, error) {
	var single struct {
		Date  string             `json:"date"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &single); err == nil && single.Date != "" {
		d, err := time.Parse(dateLayout, single.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rate date: %w", err)
		}
		if r, ok := single.Rates[to]; ok && r > 0 {
			return []Rate{{Date: d, Rate: r}}, nil
		}
		return nil, nil
	}

	var rr rangeResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, fmt.Errorf("failed to decode frankfurter response: %w", err)
	}

	rates := make([]Rate, 0, len(rr.Rates))
	for dateStr, byCurrency := range rr.Rates {
		r, ok := byCurrency[to]
		if !ok || r <= 0 {
			continue
		}
		d, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rate date: %w", err)
		}
		rates = append(rates, Rate{Date: d, Rate: r})
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Date.Before(rates[j].Date) })
	return rates, nil
}
