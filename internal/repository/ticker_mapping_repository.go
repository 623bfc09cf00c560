package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// TickerMappingRepository provides data access methods for the ticker_mapping table.
type TickerMappingRepository struct {
	base
}

// NewTickerMappingRepository creates a new TickerMappingRepository with the provided database connection.
func NewTickerMappingRepository(db *sql.DB) *TickerMappingRepository {
	return &TickerMappingRepository{base{db: db}}
}

const tickerMappingColumns = `id, symbol, exchange, ticker, source, notes, created_at, updated_at`

func scanMapping(row interface{ Scan(...any) error }) (model.TickerMapping, error) {
	var m model.TickerMapping
	var createdStr, updatedStr string
	if err := row.Scan(&m.ID, &m.Symbol, &m.Exchange, &m.Ticker, &m.Source, &m.Notes, &createdStr, &updatedStr); err != nil {
		return model.TickerMapping{}, err
	}
	var err error
	if m.CreatedAt, err = ParseTime(createdStr); err != nil {
		return model.TickerMapping{}, err
	}
	if m.UpdatedAt, err = ParseTime(updatedStr); err != nil {
		return model.TickerMapping{}, err
	}
	return m, nil
}

// GetMapping returns the mapping for (symbol, exchange), or nil when none exists.
func (r *TickerMappingRepository) GetMapping(ctx context.Context, symbol, exchange string) (*model.TickerMapping, error) {
	query := `SELECT ` + tickerMappingColumns + ` FROM ticker_mapping WHERE symbol = ? AND exchange = ?`

	m, err := scanMapping(r.getQuerier().QueryRowContext(ctx, query, symbol, exchange))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker mapping: %w", err)
	}
	return &m, nil
}

// GetMappings lists every mapping ordered by symbol.
func (r *TickerMappingRepository) GetMappings(ctx context.Context) ([]model.TickerMapping, error) {
	rows, err := r.getQuerier().QueryContext(ctx,
		`SELECT `+tickerMappingColumns+` FROM ticker_mapping ORDER BY symbol ASC, exchange ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticker_mapping table: %w", err)
	}
	defer rows.Close()

	mappings := []model.TickerMapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticker_mapping table results: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticker_mapping table: %w", err)
	}
	return mappings, nil
}

// UpsertMapping writes a mapping. Manual rows are never replaced by a
// non-manual one; a manual write always wins. Reports whether a row changed.
func (r *TickerMappingRepository) UpsertMapping(ctx context.Context, m model.TickerMapping) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
        INSERT INTO ticker_mapping (id, symbol, exchange, ticker, source, notes, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (symbol, exchange) DO UPDATE SET
            ticker = excluded.ticker,
            source = excluded.source,
            notes = excluded.notes,
            updated_at = excluded.updated_at
        WHERE ticker_mapping.source != '` + model.MappingSourceManual + `'
           OR excluded.source = '` + model.MappingSourceManual + `'
    `

	result, err := r.getQuerier().ExecContext(ctx, query,
		uuid.New().String(), m.Symbol, m.Exchange, m.Ticker, m.Source, m.Notes, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to upsert ticker mapping: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertMissing seeds mappings without touching existing rows.
func (r *TickerMappingRepository) InsertMissing(ctx context.Context, mappings []model.TickerMapping) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
        INSERT INTO ticker_mapping (id, symbol, exchange, ticker, source, notes, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (symbol, exchange) DO NOTHING
    `

	inserted := 0
	for _, m := range mappings {
		result, err := r.getQuerier().ExecContext(ctx, query,
			uuid.New().String(), m.Symbol, m.Exchange, m.Ticker, m.Source, m.Notes, now, now)
		if err != nil {
			return inserted, fmt.Errorf("failed to seed ticker mapping: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}
