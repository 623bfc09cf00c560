package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/testutil"
)

// TestPriceService_EnsurePrices tests the price cache fill.
//
// WHY: The market-data provider throttles aggressively. A range that is
// already cached must never be requested again, and stored prices must be
// in a currency the rate cache can convert.
func TestPriceService_EnsurePrices(t *testing.T) {
	ctx := context.Background()
	start, end := testutil.Date("2024-01-02"), testutil.Date("2024-01-05")

	t.Run("fetches once and serves the cache afterwards", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		market := testutil.NewFakeMarketData().WithCloses("AAPL", "USD", testutil.WeekdayCloses(start, end, 185))
		svc := testutil.NewTestServices(t, db, nil, market, nil)
		sec := testutil.NewSecurity().WithSymbol("AAPL").WithExchange("NASDAQ").Build(t, db)

		fetch, err := svc.Prices.EnsurePrices(ctx, sec, start, end)
		if err != nil {
			t.Fatalf("EnsurePrices() returned unexpected error: %v", err)
		}
		if fetch.Inserted != 4 {
			t.Errorf("Expected 4 prices inserted, got %d", fetch.Inserted)
		}
		if fetch.Resolution == nil || fetch.Resolution.Ticker != "AAPL" || !fetch.Resolution.Discovered {
			t.Errorf("Expected discovered AAPL resolution, got %+v", fetch.Resolution)
		}

		fetch, err = svc.Prices.EnsurePrices(ctx, sec, start, end)
		if err != nil {
			t.Fatalf("second EnsurePrices() returned unexpected error: %v", err)
		}
		if fetch.Resolution != nil || fetch.Inserted != 0 {
			t.Errorf("Expected a cache hit, got %+v", fetch)
		}
		if market.FetchCount() != 1 {
			t.Errorf("Expected 1 history fetch, got %d", market.FetchCount())
		}
	})

	t.Run("extends only past the cached span", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		market := testutil.NewFakeMarketData().
			WithCloses("AAPL", "USD", testutil.WeekdayCloses(start, testutil.Date("2024-01-12"), 185))
		svc := testutil.NewTestServices(t, db, nil, market, nil)
		sec := testutil.NewSecurity().WithSymbol("AAPL").WithExchange("NASDAQ").Build(t, db)
		testutil.CreatePrices(t, db, sec.ID, "USD", testutil.WeekdayCloses(start, end, 180))

		fetch, err := svc.Prices.EnsurePrices(ctx, sec, start, testutil.Date("2024-01-12"))
		if err != nil {
			t.Fatalf("EnsurePrices() returned unexpected error: %v", err)
		}
		if fetch.Inserted != 5 {
			t.Errorf("Expected 5 new prices, got %d", fetch.Inserted)
		}
		if len(market.FetchCalls) != 1 || !market.FetchCalls[0].Start.Equal(testutil.Date("2024-01-06")) {
			t.Errorf("Expected one fetch from 2024-01-06, got %+v", market.FetchCalls)
		}
	})

	t.Run("converts minor-unit quotes", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		market := testutil.NewFakeMarketData().WithCloses("VOD.L", "GBp", map[string]float64{"2024-01-02": 7250})
		svc := testutil.NewTestServices(t, db, nil, market, nil)
		sec := testutil.NewSecurity().WithSymbol("VOD").WithExchange("LSE").WithCurrency("GBP").Build(t, db)

		if _, err := svc.Prices.EnsurePrices(ctx, sec, start, start); err != nil {
			t.Fatalf("EnsurePrices() returned unexpected error: %v", err)
		}

		var got []model.MarketPrice
		for p, err := range svc.Prices.Prices(ctx, sec.ID, start, start) {
			if err != nil {
				t.Fatalf("Prices() yielded error: %v", err)
			}
			got = append(got, p)
		}
		if len(got) != 1 {
			t.Fatalf("Expected 1 price, got %d", len(got))
		}
		if got[0].Close != 72.5 || got[0].Currency != "GBP" {
			t.Errorf("Expected 72.5 GBP, got %v %s", got[0].Close, got[0].Currency)
		}
	})

	t.Run("unresolvable ticker stores nothing", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().WithSymbol("NOPE").WithExchange("AEB").Build(t, db)

		_, err := svc.Prices.EnsurePrices(ctx, sec, start, end)
		if !errors.Is(err, apperrors.ErrTickerNotResolved) {
			t.Errorf("Expected ErrTickerNotResolved, got %v", err)
		}
		testutil.AssertRowCount(t, db, "market_price", 0)
	})
}

// TestPriceService_GetPrices tests the cached read path.
func TestPriceService_GetPrices(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects an inverted range", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().Build(t, db)

		_, err := svc.Prices.GetPrices(ctx, sec, testutil.Date("2024-01-05"), testutil.Date("2024-01-02"))
		if !errors.Is(err, apperrors.ErrInvalidDateRange) {
			t.Errorf("Expected ErrInvalidDateRange, got %v", err)
		}
	})

	t.Run("yields cached prices in date order", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().WithSymbol("AAPL").Build(t, db)
		testutil.CreatePrices(t, db, sec.ID, "USD", map[string]float64{
			"2024-01-04": 3,
			"2024-01-02": 1,
			"2024-01-03": 2,
		})

		seq, err := svc.Prices.GetPrices(ctx, sec, testutil.Date("2024-01-02"), testutil.Date("2024-01-04"))
		if err != nil {
			t.Fatalf("GetPrices() returned unexpected error: %v", err)
		}
		var closes []float64
		for p, err := range seq {
			if err != nil {
				t.Fatalf("sequence yielded error: %v", err)
			}
			closes = append(closes, p.Close)
		}
		if len(closes) != 3 || closes[0] != 1 || closes[2] != 3 {
			t.Errorf("Expected [1 2 3], got %v", closes)
		}
		if svc.Market.FetchCount() != 0 {
			t.Errorf("Expected no fetch for a cached range, got %d", svc.Market.FetchCount())
		}
	})

	t.Run("deletes from a date on", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().Build(t, db)
		testutil.CreatePrices(t, db, sec.ID, "USD", testutil.WeekdayCloses(testutil.Date("2024-01-02"), testutil.Date("2024-01-05"), 10))

		from := testutil.Date("2024-01-04")
		n, err := svc.Prices.DeletePrices(ctx, sec.ID, &from)
		if err != nil {
			t.Fatalf("DeletePrices() returned unexpected error: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 deleted, got %d", n)
		}
		testutil.AssertRowCount(t, db, "market_price", 2)
	})
}

// TestPriceService_Fallback tests the second price source.
//
// WHY: Some listings have no Yahoo history at all. Their positions would
// otherwise never be valued, so the fallback must fill the gap in the
// security's own currency and without spending more than one call.
func TestPriceService_Fallback(t *testing.T) {
	ctx := context.Background()
	start, end := testutil.Date("2024-01-02"), testutil.Date("2024-01-05")

	t.Run("fills a range the primary has no data for", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		market := testutil.NewFakeMarketData().
			WithCloses("AAPL", "USD", map[string]float64{"2023-06-01": 180})
		alt := testutil.NewFakeMarketData().WithCloses("AAPL", "", testutil.WeekdayCloses(start, end, 185))
		svc := testutil.NewTestServices(t, db, nil, market, nil)
		svc.Prices.WithFallback(alt)
		sec := testutil.NewSecurity().WithSymbol("AAPL").WithExchange("NASDAQ").WithCurrency("USD").Build(t, db)

		fetch, err := svc.Prices.EnsurePrices(ctx, sec, start, end)
		if err != nil {
			t.Fatalf("EnsurePrices() returned unexpected error: %v", err)
		}
		if fetch.Inserted != 4 {
			t.Errorf("Expected 4 prices from the fallback, got %d", fetch.Inserted)
		}

		var source, currency string
		if err := db.QueryRow(`SELECT DISTINCT source, currency FROM market_price`).Scan(&source, &currency); err != nil {
			t.Fatalf("failed to read prices: %v", err)
		}
		if source != model.SourceAlphaVantage || currency != "USD" {
			t.Errorf("Expected alpha_vantage prices in USD, got %s in %q", source, currency)
		}
	})

	t.Run("prices an unresolvable security by its symbol", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		alt := testutil.NewFakeMarketData().WithCloses("ASML", "", testutil.WeekdayCloses(start, end, 650))
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		svc.Prices.WithFallback(alt)
		sec := testutil.NewSecurity().WithSymbol("asml").WithExchange("AEB").WithCurrency("EUR").Build(t, db)

		fetch, err := svc.Prices.EnsurePrices(ctx, sec, start, end)
		if err != nil {
			t.Fatalf("EnsurePrices() returned unexpected error: %v", err)
		}
		if fetch.Resolution != nil {
			t.Errorf("Expected no ticker resolution to record, got %+v", fetch.Resolution)
		}
		if fetch.Inserted != 4 {
			t.Errorf("Expected 4 prices, got %d", fetch.Inserted)
		}
		testutil.AssertRowCount(t, db, "ticker_mapping", 0)
	})

	t.Run("still fails when neither source knows the security", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		svc.Prices.WithFallback(testutil.NewFakeMarketData())
		sec := testutil.NewSecurity().WithSymbol("NOPE").WithExchange("AEB").Build(t, db)

		_, err := svc.Prices.EnsurePrices(ctx, sec, start, end)
		if !errors.Is(err, apperrors.ErrTickerNotResolved) {
			t.Errorf("Expected ErrTickerNotResolved, got %v", err)
		}
		testutil.AssertRowCount(t, db, "market_price", 0)
	})

	t.Run("one fallback call covers head and tail", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		alt := testutil.NewFakeMarketData().
			WithCloses("SAP", "", testutil.WeekdayCloses(testutil.Date("2024-01-02"), testutil.Date("2024-01-19"), 150))
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		svc.Prices.WithFallback(alt)
		sec := testutil.NewSecurity().WithSymbol("SAP").WithExchange("AEB").WithCurrency("EUR").Build(t, db)
		testutil.CreatePrices(t, db, sec.ID, "EUR", testutil.WeekdayCloses(testutil.Date("2024-01-10"), testutil.Date("2024-01-12"), 140))

		fetch, err := svc.Prices.EnsurePrices(ctx, sec, testutil.Date("2024-01-02"), testutil.Date("2024-01-19"))
		if err != nil {
			t.Fatalf("EnsurePrices() returned unexpected error: %v", err)
		}
		if fetch.Ranges != 2 || fetch.Inserted != 11 {
			t.Errorf("Expected 2 ranges with 11 prices, got %+v", fetch)
		}
		if alt.FetchCount() != 1 {
			t.Errorf("Expected 1 fallback fetch, got %d", alt.FetchCount())
		}
	})
}
