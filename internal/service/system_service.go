package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/database"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/version"
)

// SystemService reports liveness and version information.
type SystemService struct {
	db       *sql.DB
	features map[string]bool
}

// NewSystemService creates a new SystemService. features lists optional
// capabilities reported by the version endpoint.
func NewSystemService(db *sql.DB, features map[string]bool) *SystemService {
	if features == nil {
		features = map[string]bool{}
	}
	return &SystemService{
		db:       db,
		features: features,
	}
}

// CheckHealth pings the database and reads the applied schema version.
func (s *SystemService) CheckHealth(ctx context.Context) model.HealthStatus {
	if err := database.HealthCheck(ctx, s.db); err != nil {
		return model.HealthStatus{Status: "unhealthy", Database: "disconnected", Error: err.Error()}
	}
	version, _, err := database.Version(ctx, s.db)
	if err != nil {
		return model.HealthStatus{Status: "unhealthy", Database: "connected", Error: err.Error()}
	}
	return model.HealthStatus{Status: "healthy", Database: "connected", SchemaVersion: version}
}

// CheckVersion reports the application version and the schema state.
func (s *SystemService) CheckVersion(ctx context.Context) (model.VersionInfo, error) {
	dbVersion, pending, err := database.Version(ctx, s.db)
	if err != nil {
		return model.VersionInfo{}, err
	}

	info := model.VersionInfo{
		AppVersion:      version.Version,
		DbVersion:       strconv.FormatInt(dbVersion, 10),
		Features:        s.features,
		MigrationNeeded: pending,
	}
	if pending {
		msg := fmt.Sprintf("database schema version %d has pending migrations", dbVersion)
		info.MigrationMessage = &msg
	}
	return info, nil
}
