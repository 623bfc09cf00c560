package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/middleware"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/testutil"
)

func TestValidateUUIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		wantCode int
		wantNext bool
	}{
		{name: "valid UUID", id: "550e8400-e29b-41d4-a716-446655440000", wantCode: http.StatusOK, wantNext: true},
		{name: "malformed UUID", id: "invalid-id", wantCode: http.StatusBadRequest},
		{name: "empty UUID", id: "", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodDelete, "/api/market-data/prices/"+tt.id, nil)
			req = testutil.WithURLParams(req, map[string]string{"uuid": tt.id})
			w := httptest.NewRecorder()
			middleware.ValidateUUIDMiddleware(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantNext, called)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}
