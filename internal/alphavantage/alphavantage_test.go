package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ratelimit"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const dailyBody = `{
  "Meta Data": {"2. Symbol": "ASML.AMS", "5. Time Zone": "US/Eastern"},
  "Time Series (Daily)": {
    "2024-01-05": {"1. open": "640.0", "4. close": "650.10", "5. volume": "1000"},
    "2024-01-02": {"1. open": "630.0", "4. close": "640.00", "5. volume": "1000"},
    "2024-01-03": {"1. open": "635.0", "4. close": "not-a-number", "5. volume": "1000"},
    "2023-12-29": {"1. open": "620.0", "4. close": "630.00", "5. volume": "1000"}
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, now time.Time) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "demo-key", time.Second, ratelimit.Unlimited{}, zerolog.Nop())
	c.now = func() time.Time { return now }
	return c
}

func TestClient_FetchHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps closes in range, ascending", func(t *testing.T) {
		var query map[string]string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/query", r.URL.Path)
			query = map[string]string{
				"function":   r.URL.Query().Get("function"),
				"symbol":     r.URL.Query().Get("symbol"),
				"outputsize": r.URL.Query().Get("outputsize"),
				"apikey":     r.URL.Query().Get("apikey"),
			}
			_, _ = w.Write([]byte(dailyBody))
		}, day(2024, 1, 10))

		chart, err := c.FetchHistory(ctx, "ASML.AMS", day(2024, 1, 1), day(2024, 1, 5))
		require.NoError(t, err)

		assert.Equal(t, "TIME_SERIES_DAILY", query["function"])
		assert.Equal(t, "ASML.AMS", query["symbol"])
		assert.Equal(t, "compact", query["outputsize"])
		assert.Equal(t, "demo-key", query["apikey"])
		assert.Empty(t, chart.Currency)
		require.Len(t, chart.Indicators, 2)
		assert.Equal(t, day(2024, 1, 2), chart.Indicators[0].Date)
		assert.InDelta(t, 640.0, chart.Indicators[0].PriceClose, 1e-9)
		assert.InDelta(t, 650.1, chart.Indicators[1].PriceClose, 1e-9)
	})

	t.Run("old ranges request the full history", func(t *testing.T) {
		var size string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			size = r.URL.Query().Get("outputsize")
			_, _ = w.Write([]byte(dailyBody))
		}, day(2025, 1, 10))

		_, err := c.FetchHistory(ctx, "ASML.AMS", day(2024, 1, 1), day(2024, 1, 5))
		require.NoError(t, err)
		assert.Equal(t, "full", size)
	})

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "throttle note", status: http.StatusOK, body: `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, wantErr: apperrors.ErrRateLimited},
		{name: "daily quota information", status: http.StatusOK, body: `{"Information":"We have detected your API key and our standard API rate limit is 25 requests per day"}`, wantErr: apperrors.ErrRateLimited},
		{name: "too many requests status", status: http.StatusTooManyRequests, body: `{}`, wantErr: apperrors.ErrRateLimited},
		{name: "unknown symbol", status: http.StatusOK, body: `{"Error Message":"Invalid API call."}`, wantErr: apperrors.ErrNoData},
		{name: "nothing in range", status: http.StatusOK, body: `{"Time Series (Daily)":{"2023-06-01":{"4. close":"1.0"}}}`, wantErr: apperrors.ErrNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, day(2024, 1, 10))

			_, err := c.FetchHistory(ctx, "XYZ", day(2024, 1, 1), day(2024, 1, 5))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_RecentClose(t *testing.T) {
	ctx := context.Background()

	t.Run("recent close", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(dailyBody))
		}, day(2024, 1, 6))
		ok, err := c.Probe(ctx, "ASML.AMS")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"Error Message":"Invalid API call."}`))
		}, day(2024, 1, 6))
		ok, err := c.Probe(ctx, "NOPE")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("throttling is an error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"Note":"call frequency exceeded"}`))
		}, day(2024, 1, 6))
		_, err := c.Probe(ctx, "ASML.AMS")
		assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	})
}
