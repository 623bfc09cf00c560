package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/testutil"
)

// TestBenchmarkService_Compare tests the simulated index investment.
//
// WHY: The comparison answers "would an index fund have done better". Each
// lot's money must buy index units on the same day and be converted with
// the same rates the portfolio uses.
func TestBenchmarkService_Compare(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown benchmark", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)

		_, err := svc.Benchmark.Compare(ctx, "dax", testutil.Date("2024-01-01"), testutil.Date("2024-02-01"))
		if !errors.Is(err, apperrors.ErrBenchmarkNotFound) {
			t.Errorf("Expected ErrBenchmarkNotFound, got %v", err)
		}
	})

	t.Run("simulates units at the lot's open date", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		open := testutil.LastBusinessDay(testutil.DaysAgo(30))
		today := testutil.DaysAgo(0)

		market := testutil.NewFakeMarketData().
			WithCloses("^GSPC", "USD", testutil.WeekdayCloses(open, today, 110)).
			WithCloses("^GSPC", "USD", map[string]float64{open.Format(model.DateLayout): 100})
		rates := testutil.NewFakeRateProvider().WithRange("USD", open.AddDate(0, 0, -10), today, 0.5)
		svc := testutil.NewTestServices(t, db, rates, market, nil)

		sec := testutil.NewSecurity().WithCurrency("EUR").Build(t, db)
		testutil.NewTaxLot(sec.ID).WithOpenDate(open).WithCostBasis(1000, 1000).Build(t, db)
		testutil.CreatePrice(t, db, sec.ID, open.Format(model.DateLayout), 100, "EUR")

		cmp, err := svc.Benchmark.Compare(ctx, "sp500", open, today)
		if err != nil {
			t.Fatalf("Compare() returned unexpected error: %v", err)
		}
		if len(cmp.Points) < 2 {
			t.Fatalf("Expected a series, got %d points (warnings %v)", len(cmp.Points), cmp.Warnings)
		}

		first, last := cmp.Points[0], cmp.Points[len(cmp.Points)-1]
		if first.BenchmarkValue != 1000 || first.PortfolioValue != 1000 {
			t.Errorf("Expected both at 1000 on the open date, got %+v", first)
		}
		if last.BenchmarkValue != 1100 || last.BenchmarkReturn != 10 {
			t.Errorf("Expected benchmark at 1100 (+10%%), got %+v", last)
		}
		if cmp.Benchmark.Ticker != "^GSPC" {
			t.Errorf("Expected ^GSPC, got %s", cmp.Benchmark.Ticker)
		}
	})

	t.Run("serves the cache while market data syncs", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		open := testutil.LastBusinessDay(testutil.DaysAgo(30))
		today := testutil.DaysAgo(0)

		market := testutil.NewFakeMarketData().WithCloses("^GSPC", "USD", testutil.WeekdayCloses(open, today, 100))
		svc := testutil.NewTestServices(t, db, nil, market, nil)
		sec := testutil.NewSecurity().WithCurrency("EUR").Build(t, db)
		testutil.NewTaxLot(sec.ID).WithOpenDate(open).WithCostBasis(1000, 1000).Build(t, db)
		testutil.CreatePrice(t, db, sec.ID, open.Format(model.DateLayout), 100, "EUR")

		release := svc.Gate.Hold()
		cmp, err := svc.Benchmark.Compare(ctx, "sp500", open, today)
		release()
		if err != nil {
			t.Fatalf("Compare() returned unexpected error: %v", err)
		}
		for _, call := range market.FetchCalls {
			if call.Key == "^GSPC" {
				t.Errorf("Expected no index fetch while the gate is held, got %+v", call)
			}
		}
		skipped := false
		for _, w := range cmp.Warnings {
			skipped = skipped || strings.Contains(w, "skipped")
		}
		if !skipped {
			t.Errorf("Expected a skipped-refresh warning, got %v", cmp.Warnings)
		}
	})

	t.Run("empty portfolio gives no points", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)

		cmp, err := svc.Benchmark.Compare(ctx, "nasdaq", testutil.Date("2024-01-01"), testutil.Date("2024-02-01"))
		if err != nil {
			t.Fatalf("Compare() returned unexpected error: %v", err)
		}
		if len(cmp.Points) != 0 {
			t.Errorf("Expected no points, got %d", len(cmp.Points))
		}
		if svc.Market.FetchCount() != 0 {
			t.Errorf("Expected no index fetch for an empty portfolio, got %d", svc.Market.FetchCount())
		}
	})
}
