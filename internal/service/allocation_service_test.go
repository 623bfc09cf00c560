package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/testutil"
)

func sliceWeight(slices []model.AllocationSlice, name string) float64 {
	for _, s := range slices {
		if s.Name == name {
			return s.Weight
		}
	}
	return 0
}

// TestAllocationService_GetAllocation tests the sector and region breakdown.
//
// WHY: A world ETF is not a technology stock. Known ETFs must be spread over
// their constituents' weights, and value nobody classified must stay
// visible instead of silently inflating the other buckets.
func TestAllocationService_GetAllocation(t *testing.T) {
	ctx := context.Background()

	t.Run("spreads ETFs and weighs classified stocks", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		open := testutil.LastBusinessDay(testutil.DaysAgo(10))
		day := open.Format(model.DateLayout)

		etf := testutil.NewSecurity().WithSymbol("IWDA").WithCurrency("EUR").Build(t, db)
		stock := testutil.NewSecurity().WithSymbol("ASML").WithCurrency("EUR").Build(t, db)
		other := testutil.NewSecurity().WithSymbol("XYZ").WithCurrency("EUR").Build(t, db)
		testutil.NewTaxLot(etf.ID).WithOpenDate(open).WithQuantity(10).WithCostBasis(1000, 1000).Build(t, db)
		testutil.NewTaxLot(stock.ID).WithOpenDate(open).WithQuantity(10).WithCostBasis(1000, 1000).Build(t, db)
		testutil.NewTaxLot(other.ID).WithOpenDate(open).WithQuantity(5).WithCostBasis(500, 500).Build(t, db)
		for _, id := range []string{etf.ID, stock.ID, other.ID} {
			testutil.CreatePrice(t, db, id, day, 100, "EUR")
		}
		if _, err := svc.Allocation.SetSecurityAllocation(ctx, stock.ID, model.SecurityAllocation{
			AssetType: "Stock", Sector: "Technology", Country: "Netherlands",
		}); err != nil {
			t.Fatalf("SetSecurityAllocation() returned unexpected error: %v", err)
		}

		alloc, err := svc.Allocation.GetAllocation(ctx)
		if err != nil {
			t.Fatalf("GetAllocation() returned unexpected error: %v", err)
		}
		if alloc.TotalValue != 2500 {
			t.Errorf("Expected total 2500, got %v", alloc.TotalValue)
		}
		// 1000 x 23% from the ETF plus the 1000 stock, out of 2500.
		if got := sliceWeight(alloc.Sector, "Technology"); got != 49.2 {
			t.Errorf("Expected Technology at 49.2%%, got %v", got)
		}
		if got := sliceWeight(alloc.Geographic, "North America"); got != 28.8 {
			t.Errorf("Expected North America at 28.8%%, got %v", got)
		}
		if got := sliceWeight(alloc.Geographic, "Netherlands"); got != 40 {
			t.Errorf("Expected Netherlands at 40%%, got %v", got)
		}
		if got := sliceWeight(alloc.Sector, model.Unclassified); got != 20 {
			t.Errorf("Expected 20%% unclassified, got %v", got)
		}
		if alloc.Sector[0].Name != "Technology" {
			t.Errorf("Expected the largest sector first, got %s", alloc.Sector[0].Name)
		}
		if len(alloc.AssetType) != 3 || alloc.AssetType[0].Name != model.AssetTypeETF || alloc.AssetType[1].Name != "Stock" {
			t.Errorf("Expected ETF, Stock, Unknown, got %+v", alloc.AssetType)
		}
		if len(alloc.Unclassified) != 1 || alloc.Unclassified[0] != "XYZ" {
			t.Errorf("Expected XYZ unclassified, got %v", alloc.Unclassified)
		}

		sum := 0.0
		for _, s := range alloc.Sector {
			sum += s.Weight
		}
		if sum < 99.95 || sum > 100.05 {
			t.Errorf("Expected sector weights to sum to 100, got %v", sum)
		}
	})

	t.Run("empty portfolio", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)

		alloc, err := svc.Allocation.GetAllocation(ctx)
		if err != nil {
			t.Fatalf("GetAllocation() returned unexpected error: %v", err)
		}
		if alloc.TotalValue != 0 || len(alloc.Sector) != 0 || alloc.Unclassified == nil {
			t.Errorf("Expected an empty breakdown with non-nil lists, got %+v", alloc)
		}
	})
}

// TestAllocationService_SetSecurityAllocation tests manual classification.
func TestAllocationService_SetSecurityAllocation(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the earlier classification", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().Build(t, db)

		if _, err := svc.Allocation.SetSecurityAllocation(ctx, sec.ID, model.SecurityAllocation{Sector: "Energy"}); err != nil {
			t.Fatalf("SetSecurityAllocation() returned unexpected error: %v", err)
		}
		stored, err := svc.Allocation.SetSecurityAllocation(ctx, sec.ID, model.SecurityAllocation{Sector: " Utilities ", Country: "Spain"})
		if err != nil {
			t.Fatalf("SetSecurityAllocation() returned unexpected error: %v", err)
		}
		if stored.Sector != "Utilities" || stored.Country != "Spain" || stored.SecurityID != sec.ID {
			t.Errorf("Expected trimmed Utilities/Spain, got %+v", stored)
		}
		testutil.AssertRowCount(t, db, "security_allocation", 1)
	})

	t.Run("unknown security", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestServices(t, db, nil, nil, nil)

		_, err := svc.Allocation.SetSecurityAllocation(ctx, "550e8400-e29b-41d4-a716-446655440000", model.SecurityAllocation{Sector: "Energy"})
		if !errors.Is(err, apperrors.ErrSecurityNotFound) {
			t.Errorf("Expected ErrSecurityNotFound, got %v", err)
		}
	})
}

// TestETFAllocations checks the shipped table.
func TestETFAllocations(t *testing.T) {
	etfs, err := service.ETFAllocations()
	if err != nil {
		t.Fatalf("ETFAllocations() returned unexpected error: %v", err)
	}
	if _, ok := etfs["VWCE"]; !ok {
		t.Errorf("Expected VWCE in the table, got %d entries", len(etfs))
	}
	for symbol, etf := range etfs {
		for name, weights := range map[string]map[string]float64{"sector": etf.Sector, "geographic": etf.Geographic} {
			sum := 0.0
			for _, w := range weights {
				sum += w
			}
			if sum < 99.5 || sum > 100.5 {
				t.Errorf("%s %s weights sum to %v", symbol, name, sum)
			}
		}
	}
}
