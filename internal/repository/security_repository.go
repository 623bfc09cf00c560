package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// SecurityRepository provides data access methods for the security table.
type SecurityRepository struct {
	base
}

// NewSecurityRepository creates a new SecurityRepository with the provided database connection.
func NewSecurityRepository(db *sql.DB) *SecurityRepository {
	return &SecurityRepository{base{db: db}}
}

// WithTx returns a new SecurityRepository scoped to the provided transaction.
func (r *SecurityRepository) WithTx(tx *sql.Tx) *SecurityRepository {
	return &SecurityRepository{base{db: r.db, tx: tx}}
}

const securityColumns = `id, conid, symbol, description, isin, currency, exchange, asset_category, created_at, updated_at`

func scanSecurity(row interface{ Scan(...any) error }) (model.Security, error) {
	var s model.Security
	var isin sql.NullString
	var createdStr, updatedStr string
	if err := row.Scan(&s.ID, &s.Conid, &s.Symbol, &s.Description, &isin, &s.Currency, &s.Exchange,
		&s.AssetCategory, &createdStr, &updatedStr); err != nil {
		return model.Security{}, err
	}
	s.ISIN = isin.String

	var err error
	if s.CreatedAt, err = ParseTime(createdStr); err != nil {
		return model.Security{}, err
	}
	if s.UpdatedAt, err = ParseTime(updatedStr); err != nil {
		return model.Security{}, err
	}
	return s, nil
}

// GetSecurities returns every security ordered by symbol.
func (r *SecurityRepository) GetSecurities(ctx context.Context) ([]model.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM security ORDER BY symbol ASC, exchange ASC`

	rows, err := r.getQuerier().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query security table: %w", err)
	}
	defer rows.Close()

	securities := []model.Security{}
	for rows.Next() {
		s, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security table results: %w", err)
		}
		securities = append(securities, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security table: %w", err)
	}
	return securities, nil
}

// GetSecurity returns the security with the given id or apperrors.ErrSecurityNotFound.
func (r *SecurityRepository) GetSecurity(ctx context.Context, id string) (model.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM security WHERE id = ?`

	s, err := scanSecurity(r.getQuerier().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Security{}, apperrors.ErrSecurityNotFound
	}
	if err != nil {
		return model.Security{}, fmt.Errorf("failed to get security: %w", err)
	}
	return s, nil
}

// GetSecurityByConid looks a security up by broker contract id.
func (r *SecurityRepository) GetSecurityByConid(ctx context.Context, conid string) (model.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM security WHERE conid = ?`

	s, err := scanSecurity(r.getQuerier().QueryRowContext(ctx, query, conid))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Security{}, apperrors.ErrSecurityNotFound
	}
	if err != nil {
		return model.Security{}, fmt.Errorf("failed to get security by conid: %w", err)
	}
	return s, nil
}

// UpsertSecurity inserts the security or refreshes its descriptive fields when
// the conid already exists. The stored id is returned.
func (r *SecurityRepository) UpsertSecurity(ctx context.Context, s model.Security) (string, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
        INSERT INTO security (id, conid, symbol, description, isin, currency, exchange, asset_category, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (conid) DO UPDATE SET
            symbol = excluded.symbol,
            description = excluded.description,
            isin = excluded.isin,
            currency = excluded.currency,
            exchange = excluded.exchange,
            asset_category = excluded.asset_category,
            updated_at = excluded.updated_at
        RETURNING id
    `

	var isin sql.NullString
	if s.ISIN != "" {
		isin = sql.NullString{String: s.ISIN, Valid: true}
	}

	var id string
	err := r.getQuerier().QueryRowContext(ctx, query,
		s.ID, s.Conid, s.Symbol, s.Description, isin, s.Currency, s.Exchange, s.AssetCategory, now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert security: %w", err)
	}
	return id, nil
}
