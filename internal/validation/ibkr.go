package validation

import (
	"strconv"
	"strings"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/request"
)

// ValidateUpdateIbkrConfig checks the flex query credentials. Both are
// required: a flex token is exactly 25 digits, a query id at most 10 digits.
func ValidateUpdateIbkrConfig(req request.UpdateIbkrConfigRequest) error {
	errors := make(map[string]string)

	if req.FlexToken == nil || strings.TrimSpace(*req.FlexToken) == "" {
		errors["flexToken"] = "flexToken is required"
	} else {
		token := strings.TrimSpace(*req.FlexToken)
		if len(token) != 25 {
			errors["flexToken"] = "flexToken must be 25 characters"
		} else if !isDigits(token) {
			errors["flexToken"] = "flexToken must be a number"
		}
	}

	if req.FlexQueryID == nil || strings.TrimSpace(*req.FlexQueryID) == "" {
		errors["flexQueryId"] = "flexQueryId is required"
	} else {
		queryID := strings.TrimSpace(*req.FlexQueryID)
		if len(queryID) > 10 {
			errors["flexQueryId"] = "flexQueryId must be 10 characters or less"
		} else if _, err := strconv.Atoi(queryID); err != nil {
			errors["flexQueryId"] = "flexQueryId must be a number"
		}
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}

// isDigits reports whether s is all ASCII digits. A 25 digit token does
// not fit an int.
func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
