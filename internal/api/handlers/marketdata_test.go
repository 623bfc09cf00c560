package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/testutil"
)

func TestMarketDataHandler_DeletePrices(t *testing.T) {
	setup := func(t *testing.T) (*MarketDataHandler, model.Security) {
		t.Helper()
		db := testutil.SetupTestDB(t)
		svcs := testutil.NewTestServices(t, db, nil, nil, nil)
		sec := testutil.NewSecurity().Build(t, db)
		testutil.CreatePrices(t, db, sec.ID, "USD", map[string]float64{
			"2024-01-02": 100,
			"2024-01-03": 101,
			"2024-01-04": 102,
		})
		return NewMarketDataHandler(svcs.Prices, svcs.Resolver), sec
	}

	t.Run("deletes from a date on", func(t *testing.T) {
		handler, sec := setup(t)

		req := testutil.NewRequestWithQueryParams(http.MethodDelete, "/api/market-data/prices/"+sec.ID, map[string]string{"from": "2024-01-03"})
		req = testutil.WithURLParams(req, map[string]string{"uuid": sec.ID})
		w := httptest.NewRecorder()

		handler.DeletePrices(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var response DeletePricesResponse
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)
		if response.Deleted != 2 {
			t.Errorf("Expected 2 deleted prices, got %d", response.Deleted)
		}
	})

	t.Run("rejects malformed from", func(t *testing.T) {
		handler, sec := setup(t)

		req := testutil.NewRequestWithQueryParams(http.MethodDelete, "/api/market-data/prices/"+sec.ID, map[string]string{"from": "soon"})
		req = testutil.WithURLParams(req, map[string]string{"uuid": sec.ID})
		w := httptest.NewRecorder()

		handler.DeletePrices(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("status reflects the cache", func(t *testing.T) {
		handler, _ := setup(t)

		w := httptest.NewRecorder()
		handler.Status(w, httptest.NewRequest(http.MethodGet, "/api/market-data/status", nil))

		var status model.MarketDataStatus
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&status)
		if status.PriceCount != 3 || status.SecuritiesWithData != 1 {
			t.Errorf("Expected 3 prices for 1 security, got %+v", status)
		}
	})
}

// TestMarketDataHandler_TickerMappings tests manual ticker mappings.
//
// WHY: A manual mapping is the operator's fix for a ticker discovery cannot
// find; it must be stored as manual and show up in the listing.
func TestMarketDataHandler_TickerMappings(t *testing.T) {
	setup := func(t *testing.T) *MarketDataHandler {
		t.Helper()
		db := testutil.SetupTestDB(t)
		svcs := testutil.NewTestServices(t, db, nil, nil, nil)
		return NewMarketDataHandler(svcs.Prices, svcs.Resolver)
	}

	t.Run("stores and lists a manual mapping", func(t *testing.T) {
		handler := setup(t)

		req := testutil.NewJSONRequest(t, http.MethodPut, "/api/ticker-mappings", map[string]string{
			"symbol":   "VWRL",
			"exchange": "AEB",
			"ticker":   "VWRL.AS",
		})
		w := httptest.NewRecorder()
		handler.SetTickerMapping(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var mapping model.TickerMapping
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&mapping)
		if mapping.Source != model.MappingSourceManual {
			t.Errorf("Expected source manual, got %q", mapping.Source)
		}

		w = httptest.NewRecorder()
		handler.TickerMappings(w, httptest.NewRequest(http.MethodGet, "/api/ticker-mappings", nil))
		var mappings []model.TickerMapping
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&mappings)

		found := false
		for _, m := range mappings {
			if m.Symbol == "VWRL" && m.Exchange == "AEB" && m.Ticker == "VWRL.AS" {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected VWRL/AEB in %+v", mappings)
		}
	})

	t.Run("rejects incomplete and malformed bodies", func(t *testing.T) {
		handler := setup(t)

		for _, body := range []any{map[string]string{"symbol": "VWRL"}, "{not json"} {
			w := httptest.NewRecorder()
			handler.SetTickerMapping(w, testutil.NewJSONRequest(t, http.MethodPut, "/api/ticker-mappings", body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400 for %v, got %d", body, w.Code)
			}
		}
	})
}
