package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/testutil"
)

// TestValuationService_ValueOverTime tests the value-over-time series.
//
// WHY: This series feeds the chart and every metric. It must carry the last
// known price and rate over gaps, start at the first lot, and degrade to
// warnings rather than errors when data is missing.
func TestValuationService_ValueOverTime(t *testing.T) {
	ctx := context.Background()
	from, to := testutil.Date("2024-01-01"), testutil.Date("2024-01-05")

	t.Run("empty portfolio gives an empty series", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)

		series, err := svc.Valuation.ValueOverTime(ctx, from, to)
		if err != nil {
			t.Fatalf("ValueOverTime() returned unexpected error: %v", err)
		}
		if series.Points == nil || len(series.Points) != 0 {
			t.Errorf("Expected empty non-nil points, got %v", series.Points)
		}
		if series.Warnings == nil {
			t.Error("Expected non-nil warnings")
		}
	})

	t.Run("values with carried prices and rates", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().WithCurrency("USD").Build(t, db)
		testutil.NewTaxLot(sec.ID).
			WithOpenDate(testutil.Date("2024-01-02")).
			WithQuantity(10).
			WithCostBasis(1000, 900).
			Build(t, db)
		testutil.CreatePrice(t, db, sec.ID, "2024-01-02", 100, "USD")
		testutil.CreatePrice(t, db, sec.ID, "2024-01-03", 110, "USD")
		testutil.CreateRate(t, db, "2024-01-02", "USD", "EUR", 0.9, model.SourceFrankfurter)

		series, err := svc.Valuation.ValueOverTime(ctx, from, to)
		if err != nil {
			t.Fatalf("ValueOverTime() returned unexpected error: %v", err)
		}
		if len(series.Points) != 4 {
			t.Fatalf("Expected 4 points from the first lot on, got %d", len(series.Points))
		}
		if !series.Points[0].Date.Equal(testutil.Date("2024-01-02")) {
			t.Errorf("Expected series to start 2024-01-02, got %s", series.Points[0].Date.Format(model.DateLayout))
		}

		want := []float64{900, 990, 990, 990}
		for i, p := range series.Points {
			if p.MarketValue != want[i] {
				t.Errorf("point %d: expected market value %v, got %v", i, want[i], p.MarketValue)
			}
			if p.CostBasis != 900 {
				t.Errorf("point %d: expected cost basis 900, got %v", i, p.CostBasis)
			}
		}
		if series.Points[1].GainPct != 10 {
			t.Errorf("Expected 10%% gain on 2024-01-03, got %v", series.Points[1].GainPct)
		}
		if len(series.Warnings) != 0 {
			t.Errorf("Expected no warnings, got %v", series.Warnings)
		}
	})

	t.Run("closed lot stops contributing", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().WithCurrency("EUR").Build(t, db)
		testutil.NewTaxLot(sec.ID).WithCostBasis(1000, 1000).Build(t, db)
		testutil.NewTaxLot(sec.ID).
			WithCostBasis(500, 500).
			WithQuantity(5).
			ClosedOn(testutil.Date("2024-01-04")).
			Build(t, db)
		testutil.CreatePrice(t, db, sec.ID, "2024-01-02", 100, "EUR")

		series, err := svc.Valuation.ValueOverTime(ctx, from, to)
		if err != nil {
			t.Fatalf("ValueOverTime() returned unexpected error: %v", err)
		}
		if len(series.Points) != 4 {
			t.Fatalf("Expected 4 points, got %d", len(series.Points))
		}
		if series.Points[1].CostBasis != 1500 || series.Points[1].MarketValue != 1500 {
			t.Errorf("Expected 1500/1500 on 2024-01-03, got %+v", series.Points[1])
		}
		if series.Points[2].CostBasis != 1000 || series.Points[2].MarketValue != 1000 {
			t.Errorf("Expected 1000/1000 on 2024-01-04, got %+v", series.Points[2])
		}
	})

	t.Run("security without prices is excluded with a warning", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().WithCurrency("EUR").Build(t, db)
		testutil.NewTaxLot(sec.ID).Build(t, db)

		series, err := svc.Valuation.ValueOverTime(ctx, from, to)
		if err != nil {
			t.Fatalf("ValueOverTime() returned unexpected error: %v", err)
		}
		if len(series.Points) != 4 || series.Points[0].MarketValue != 0 {
			t.Errorf("Expected 4 points with zero market value, got %+v", series.Points)
		}
		if len(series.Warnings) != 1 {
			t.Errorf("Expected 1 warning, got %v", series.Warnings)
		}
	})

	t.Run("days without a rate are omitted with a warning", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().WithCurrency("USD").Build(t, db)
		testutil.NewTaxLot(sec.ID).Build(t, db)
		testutil.CreatePrice(t, db, sec.ID, "2024-01-02", 100, "USD")
		testutil.CreateRate(t, db, "2024-01-04", "USD", "EUR", 0.9, model.SourceFrankfurter)

		series, err := svc.Valuation.ValueOverTime(ctx, from, to)
		if err != nil {
			t.Fatalf("ValueOverTime() returned unexpected error: %v", err)
		}
		if len(series.Points) != 2 {
			t.Errorf("Expected 2 points (2024-01-04 and 2024-01-05), got %d", len(series.Points))
		}
		if len(series.Warnings) != 1 {
			t.Errorf("Expected 1 warning, got %v", series.Warnings)
		}
	})

	t.Run("rejects inverted and oversized ranges", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)

		_, err := svc.Valuation.ValueOverTime(ctx, to, from)
		if !errors.Is(err, apperrors.ErrInvalidDateRange) {
			t.Errorf("Expected ErrInvalidDateRange for inverted range, got %v", err)
		}
		_, err = svc.Valuation.ValueOverTime(ctx, testutil.Date("2015-01-01"), testutil.Date("2024-01-01"))
		if !errors.Is(err, apperrors.ErrInvalidDateRange) {
			t.Errorf("Expected ErrInvalidDateRange for a 9 year range, got %v", err)
		}
	})
}
