package model

// Feature flags reported by the version endpoint.
const (
	FeatureIbkrIntegration = "ibkr_integration"
	FeatureScheduler       = "scheduler"
	FeatureFallbackPrices  = "fallback_prices"
)

// VersionInfo is the application version, the goose schema version and the
// optional features enabled in this deployment.
type VersionInfo struct {
	AppVersion       string          `json:"app_version"`
	DbVersion        string          `json:"db_version"`
	Features         map[string]bool `json:"features"`
	MigrationNeeded  bool            `json:"migration_needed"`
	MigrationMessage *string         `json:"migration_message,omitempty"`
}

// HealthStatus is the liveness report of the service and its database.
type HealthStatus struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	SchemaVersion int64  `json:"schema_version,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Healthy reports whether the database answered.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}
