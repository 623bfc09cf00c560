package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/validation"
)

// respondJSON sends a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("failed to encode JSON")
		}
	}
}

// respondError sends {"error": message, "detail": err} with the status
// errStatus derives from err.
func respondError(w http.ResponseWriter, message string, err error) {
	status := errStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg(message)
	}
	errorResponse := map[string]string{
		"error":  message,
		"detail": err.Error(),
	}
	respondJSON(w, status, errorResponse)
}

// errStatus maps domain errors to HTTP status codes.
func errStatus(err error) int {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr),
		errors.Is(err, apperrors.ErrInvalidDateRange),
		errors.Is(err, apperrors.ErrInvalidUUID),
		errors.Is(err, apperrors.ErrMissingRequiredField),
		errors.Is(err, apperrors.ErrUnsupportedCurrency):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrSecurityNotFound),
		errors.Is(err, apperrors.ErrBenchmarkNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrIbkrNotConfigured),
		errors.Is(err, apperrors.ErrEncryptionKeyMissing):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &validation.Error{Fields: map[string]string{"body": err.Error()}}
	}
	return nil
}
