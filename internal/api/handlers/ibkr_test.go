package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/testutil"
)

const testFlexToken = "1234567890123456789012345"

func TestIbkrHandler_Config(t *testing.T) {
	setupHandler := func(t *testing.T) *IbkrHandler {
		t.Helper()
		db := testutil.SetupTestDB(t)
		svcs := testutil.NewTestServices(t, db, nil, nil, nil)
		return NewIbkrHandler(svcs.IbkrConfig)
	}

	t.Run("reports unconfigured", func(t *testing.T) {
		handler := setupHandler(t)

		w := httptest.NewRecorder()
		handler.GetConfig(w, httptest.NewRequest(http.MethodGet, "/api/ibkr/config", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var cfg model.IbkrConfig
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&cfg)
		if cfg.Configured {
			t.Error("Expected configured=false on an empty database")
		}
	})

	// WHY: The flex token is a credential. It is accepted on write but must
	// never be echoed back.
	t.Run("saves without echoing the token", func(t *testing.T) {
		handler := setupHandler(t)

		req := testutil.NewJSONRequest(t, http.MethodPut, "/api/ibkr/config", map[string]any{
			"flexToken":   testFlexToken,
			"flexQueryId": "123456",
		})
		w := httptest.NewRecorder()
		handler.UpdateConfig(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if strings.Contains(w.Body.String(), testFlexToken) {
			t.Error("Response leaked the flex token")
		}
		var cfg model.IbkrConfig
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&cfg)
		if !cfg.Configured || !cfg.Enabled || cfg.FlexQueryID != "123456" {
			t.Errorf("Unexpected config after save: %+v", cfg)
		}
	})

	t.Run("rejects an invalid token", func(t *testing.T) {
		handler := setupHandler(t)

		req := testutil.NewJSONRequest(t, http.MethodPut, "/api/ibkr/config", map[string]any{
			"flexToken":   "short",
			"flexQueryId": "123456",
		})
		w := httptest.NewRecorder()
		handler.UpdateConfig(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})
}
