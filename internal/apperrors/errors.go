// Package apperrors holds the sentinel errors shared across layers.
// Callers wrap them with fmt.Errorf("...: %w", err) and classify with errors.Is.
package apperrors

import "errors"

// Domain entity errors represent missing entities in the system.
var (
	// ErrSecurityNotFound indicates that a security with the given ID does not exist.
	ErrSecurityNotFound = errors.New("security not found")

	// ErrIbkrNotConfigured indicates that no flex token / query id is available.
	ErrIbkrNotConfigured = errors.New("ibkr flex query not configured")

	// ErrEncryptionKeyMissing indicates IBKR_ENCRYPTION_KEY is not set, so tokens cannot be stored.
	ErrEncryptionKeyMissing = errors.New("encryption key not configured")

	// ErrBenchmarkNotFound indicates an unknown benchmark key.
	ErrBenchmarkNotFound = errors.New("benchmark not found")
)

// Market data errors. A failure classified by one of these never aborts
// unrelated work unless the caller decides so (ErrRateLimited does).
var (
	// ErrNoRateAvailable indicates no exchange rate exists on or before the requested date.
	ErrNoRateAvailable = errors.New("no exchange rate available")

	// ErrTickerNotResolved indicates every ticker candidate for a security failed.
	ErrTickerNotResolved = errors.New("ticker not resolved")

	// ErrRateLimited indicates the upstream provider throttled us. Syncs abort on it.
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrNoData indicates the provider answered but had nothing for the request.
	ErrNoData = errors.New("no data returned by provider")

	// ErrUnsupportedCurrency indicates the rate provider does not quote the currency.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// Business logic errors.
var (
	// ErrNoConvergence indicates the XIRR solver found no sign change in its bracket.
	ErrNoConvergence = errors.New("return calculation did not converge")

	// ErrSyncInProgress indicates a sync of the same kind is already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrMissingRequiredField indicates that a required field is missing or empty.
	ErrMissingRequiredField = errors.New("missing required field")
)

// Data integrity errors represent inconsistencies in imported or stored data.
var (
	// ErrDataInconsistency indicates that the data is in an inconsistent state
	// (e.g., a lot references a security that was not imported).
	ErrDataInconsistency = errors.New("data inconsistency detected")
)
