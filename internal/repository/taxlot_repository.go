package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// TaxLotRepository provides data access methods for the tax_lot table.
type TaxLotRepository struct {
	base
}

// NewTaxLotRepository creates a new TaxLotRepository with the provided database connection.
func NewTaxLotRepository(db *sql.DB) *TaxLotRepository {
	return &TaxLotRepository{base{db: db}}
}

// WithTx returns a new TaxLotRepository scoped to the provided transaction.
func (r *TaxLotRepository) WithTx(tx *sql.Tx) *TaxLotRepository {
	return &TaxLotRepository{base{db: r.db, tx: tx}}
}

// GetLots returns every lot, ordered by security then open date.
func (r *TaxLotRepository) GetLots(ctx context.Context) ([]model.TaxLot, error) {
	query := `
        SELECT id, security_id, open_date, close_date, quantity, cost_basis, cost_basis_eur
        FROM tax_lot
        ORDER BY security_id ASC, open_date ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tax_lot table: %w", err)
	}
	defer rows.Close()

	lots := []model.TaxLot{}
	for rows.Next() {
		var lot model.TaxLot
		var openStr string
		var closeStr sql.NullString
		if err := rows.Scan(&lot.ID, &lot.SecurityID, &openStr, &closeStr, &lot.Quantity, &lot.CostBasis, &lot.CostBasisEUR); err != nil {
			return nil, fmt.Errorf("failed to scan tax_lot table results: %w", err)
		}

		lot.OpenDate, err = ParseTime(openStr)
		if err != nil {
			return nil, err
		}
		lot.CloseDate, err = parseNullDate(closeStr)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tax_lot table: %w", err)
	}
	return lots, nil
}

// ReplaceOpenLots drops the open lots of a security and inserts the given ones.
// Closed lots are history and are kept. Run inside a transaction.
func (r *TaxLotRepository) ReplaceOpenLots(ctx context.Context, securityID string, lots []model.TaxLot) error {
	if _, err := r.getQuerier().ExecContext(ctx,
		`DELETE FROM tax_lot WHERE security_id = ? AND close_date IS NULL`, securityID); err != nil {
		return fmt.Errorf("failed to delete open lots: %w", err)
	}

	query := `
        INSERT INTO tax_lot (id, security_id, open_date, close_date, quantity, cost_basis, cost_basis_eur)
        VALUES (?, ?, ?, NULL, ?, ?, ?)
    `
	for _, lot := range lots {
		id := lot.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := r.getQuerier().ExecContext(ctx, query,
			id, securityID, formatDate(lot.OpenDate), lot.Quantity, lot.CostBasis, lot.CostBasisEUR,
		); err != nil {
			return fmt.Errorf("failed to insert tax lot: %w", err)
		}
	}
	return nil
}

// CloseOpenLots marks every open lot of a security as closed on closeDate.
func (r *TaxLotRepository) CloseOpenLots(ctx context.Context, securityID string, closeDate time.Time) (int64, error) {
	result, err := r.getQuerier().ExecContext(ctx,
		`UPDATE tax_lot SET close_date = ? WHERE security_id = ? AND close_date IS NULL`,
		formatDate(closeDate), securityID)
	if err != nil {
		return 0, fmt.Errorf("failed to close lots: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// GetSecurityIDsWithOpenLots lists securities that still have open lots.
func (r *TaxLotRepository) GetSecurityIDsWithOpenLots(ctx context.Context) ([]string, error) {
	rows, err := r.getQuerier().QueryContext(ctx,
		`SELECT DISTINCT security_id FROM tax_lot WHERE close_date IS NULL ORDER BY security_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open lots: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan security id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
