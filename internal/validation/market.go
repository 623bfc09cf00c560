package validation

import (
	"strings"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/request"
)

// ValidateSetTickerMapping checks a manual ticker mapping request.
func ValidateSetTickerMapping(req request.SetTickerMappingRequest) error {
	errors := make(map[string]string)

	if strings.TrimSpace(req.Symbol) == "" {
		errors["symbol"] = "symbol is required"
	}
	if strings.TrimSpace(req.Exchange) == "" {
		errors["exchange"] = "exchange is required"
	}
	ticker := strings.TrimSpace(req.Ticker)
	if ticker == "" {
		errors["ticker"] = "ticker is required"
	} else if strings.ContainsAny(ticker, " /?#") {
		errors["ticker"] = "ticker contains invalid characters"
	}
	if len(req.Notes) > 500 {
		errors["notes"] = "notes must be 500 characters or less"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}

// ValidateTriggerSync checks the optional sync parameters.
func ValidateTriggerSync(req request.TriggerSyncRequest) error {
	if req.DaysBack != nil && (*req.DaysBack < 1 || *req.DaysBack > MaxDaysBack) {
		return fieldError("daysBack", "daysBack must be between 1 and 3650")
	}
	return nil
}

// ValidateSetAllocation checks a security classification request.
func ValidateSetAllocation(req request.SetAllocationRequest) error {
	errors := make(map[string]string)

	fields := map[string]string{"assetType": req.AssetType, "sector": req.Sector, "country": req.Country}
	empty := true
	for field, v := range fields {
		v = strings.TrimSpace(v)
		if v != "" {
			empty = false
		}
		if len(v) > 100 {
			errors[field] = field + " must be 100 characters or less"
		}
	}
	if empty {
		errors["body"] = "at least one of assetType, sector and country is required"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
