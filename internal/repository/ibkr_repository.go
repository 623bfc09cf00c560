package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// IbkrRepository provides data access methods for the ibkr_config table.
// The flex token column holds ciphertext; encryption happens in the service layer.
type IbkrRepository struct {
	base
}

// NewIbkrRepository creates a new IbkrRepository with the provided database connection.
func NewIbkrRepository(db *sql.DB) *IbkrRepository {
	return &IbkrRepository{base{db: db}}
}

// GetIbkrConfig returns the stored configuration. FlexToken holds the encrypted token.
func (r *IbkrRepository) GetIbkrConfig(ctx context.Context) (*model.IbkrConfig, error) {
	query := `
        SELECT flex_query_id, flex_token_encrypted, enabled, last_import_date, created_at, updated_at
        FROM ibkr_config
        WHERE id = 1
    `

	var ic model.IbkrConfig
	var lastImportStr sql.NullString
	var createdStr, updatedStr string
	err := r.getQuerier().QueryRowContext(ctx, query).Scan(
		&ic.FlexQueryID,
		&ic.FlexToken,
		&ic.Enabled,
		&lastImportStr,
		&createdStr,
		&updatedStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.IbkrConfig{Configured: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ibkr_config table: %w", err)
	}

	ic.Configured = true
	if ic.LastImportDate, err = parseNullDate(lastImportStr); err != nil {
		return nil, fmt.Errorf("failed to parse date: %w", err)
	}
	if ic.CreatedAt, err = ParseTime(createdStr); err != nil {
		return nil, err
	}
	if ic.UpdatedAt, err = ParseTime(updatedStr); err != nil {
		return nil, err
	}
	return &ic, nil
}

// SaveIbkrConfig writes the single configuration row.
func (r *IbkrRepository) SaveIbkrConfig(ctx context.Context, queryID, encryptedToken string, enabled bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
        INSERT INTO ibkr_config (id, flex_query_id, flex_token_encrypted, enabled, created_at, updated_at)
        VALUES (1, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            flex_query_id = excluded.flex_query_id,
            flex_token_encrypted = excluded.flex_token_encrypted,
            enabled = excluded.enabled,
            updated_at = excluded.updated_at
    `

	if _, err := r.getQuerier().ExecContext(ctx, query, queryID, encryptedToken, enabled, now, now); err != nil {
		return fmt.Errorf("failed to save ibkr config: %w", err)
	}
	return nil
}

// UpdateLastImportDate records when the last successful import ran.
func (r *IbkrRepository) UpdateLastImportDate(ctx context.Context, at time.Time) error {
	if _, err := r.getQuerier().ExecContext(ctx,
		`UPDATE ibkr_config SET last_import_date = ? WHERE id = 1`, at.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to update last import date: %w", err)
	}
	return nil
}
