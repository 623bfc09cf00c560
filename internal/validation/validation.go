package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
)

// MaxDaysBack caps the backfill window a sync may request.
const MaxDaysBack = 3650

// ValidateUUID checks if a string is a valid UUID
func ValidateUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidUUID, id)
	}
	return nil
}

// ParseDateRange parses optional start and end query values (YYYY-MM-DD or
// RFC3339). A missing end is today; a missing start is defaultDays before
// end. The range is checked for order only; callers enforce their own
// maximum span.
func ParseDateRange(startStr, endStr string, defaultDays int, now time.Time) (time.Time, time.Time, error) {
	errors := make(map[string]string)

	end := model.DateOf(now)
	if s := strings.TrimSpace(endStr); s != "" {
		t, err := repository.ParseTime(s)
		if err != nil {
			errors["end_date"] = "end_date must be YYYY-MM-DD"
		} else {
			end = model.DateOf(t)
		}
	}

	start := end.AddDate(0, 0, -defaultDays)
	if s := strings.TrimSpace(startStr); s != "" {
		t, err := repository.ParseTime(s)
		if err != nil {
			errors["start_date"] = "start_date must be YYYY-MM-DD"
		} else {
			start = model.DateOf(t)
		}
	}

	if len(errors) > 0 {
		return time.Time{}, time.Time{}, &Error{Fields: errors}
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date %s after end_date %s: %w",
			start.Format(model.DateLayout), end.Format(model.DateLayout), apperrors.ErrInvalidDateRange)
	}
	return start, end, nil
}

// ParseOptionalDate parses a YYYY-MM-DD or RFC3339 value; empty yields nil.
func ParseOptionalDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := repository.ParseTime(value)
	if err != nil {
		return nil, fieldError(field, field+" must be YYYY-MM-DD")
	}
	d := model.DateOf(t)
	return &d, nil
}
