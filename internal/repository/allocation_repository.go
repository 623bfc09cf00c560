package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// AllocationRepository provides data access methods for the security_allocation table.
type AllocationRepository struct {
	base
}

// NewAllocationRepository creates a new AllocationRepository with the provided database connection.
func NewAllocationRepository(db *sql.DB) *AllocationRepository {
	return &AllocationRepository{base{db: db}}
}

const allocationColumns = `security_id, asset_type, sector, country, updated_at`

func scanAllocation(row interface{ Scan(...any) error }) (model.SecurityAllocation, error) {
	var a model.SecurityAllocation
	var updatedStr string
	if err := row.Scan(&a.SecurityID, &a.AssetType, &a.Sector, &a.Country, &updatedStr); err != nil {
		return model.SecurityAllocation{}, err
	}
	var err error
	if a.UpdatedAt, err = ParseTime(updatedStr); err != nil {
		return model.SecurityAllocation{}, err
	}
	return a, nil
}

// GetAllocations returns every stored classification keyed by security id.
func (r *AllocationRepository) GetAllocations(ctx context.Context) (map[string]model.SecurityAllocation, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `SELECT `+allocationColumns+` FROM security_allocation`)
	if err != nil {
		return nil, fmt.Errorf("failed to query security_allocation table: %w", err)
	}
	defer rows.Close()

	out := map[string]model.SecurityAllocation{}
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security_allocation table results: %w", err)
		}
		out[a.SecurityID] = a
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security_allocation table: %w", err)
	}
	return out, nil
}

// GetAllocation returns the classification of one security, or nil.
func (r *AllocationRepository) GetAllocation(ctx context.Context, securityID string) (*model.SecurityAllocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM security_allocation WHERE security_id = ?`

	a, err := scanAllocation(r.getQuerier().QueryRowContext(ctx, query, securityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get security allocation: %w", err)
	}
	return &a, nil
}

// UpsertAllocation replaces the classification of a security.
func (r *AllocationRepository) UpsertAllocation(ctx context.Context, a model.SecurityAllocation) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
        INSERT INTO security_allocation (security_id, asset_type, sector, country, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (security_id) DO UPDATE SET
            asset_type = excluded.asset_type,
            sector = excluded.sector,
            country = excluded.country,
            updated_at = excluded.updated_at
    `
	if _, err := r.getQuerier().ExecContext(ctx, query, a.SecurityID, a.AssetType, a.Sector, a.Country, now); err != nil {
		return fmt.Errorf("failed to upsert security allocation: %w", err)
	}
	return nil
}
