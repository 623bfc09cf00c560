package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// MarketPriceRepository provides data access methods for the market_price table.
// Rows are immutable once written; DeletePrices is the only removal path.
type MarketPriceRepository struct {
	base
}

// NewMarketPriceRepository creates a new MarketPriceRepository with the provided database connection.
func NewMarketPriceRepository(db *sql.DB) *MarketPriceRepository {
	return &MarketPriceRepository{base{db: db}}
}

// Coverage is the span of cached dates for one key.
type Coverage struct {
	Count    int
	Earliest *time.Time
	Latest   *time.Time
}

// GetCoverage returns the earliest and latest cached date for a security.
func (r *MarketPriceRepository) GetCoverage(ctx context.Context, securityID string) (Coverage, error) {
	return coverage(ctx, r.getQuerier(),
		`SELECT COUNT(*), MIN(date), MAX(date) FROM market_price WHERE security_id = ?`, securityID)
}

func coverage(ctx context.Context, q querier, query string, args ...any) (Coverage, error) {
	var c Coverage
	var minStr, maxStr sql.NullString
	if err := q.QueryRowContext(ctx, query, args...).Scan(&c.Count, &minStr, &maxStr); err != nil {
		return Coverage{}, fmt.Errorf("failed to query coverage: %w", err)
	}

	var err error
	if c.Earliest, err = parseNullDate(minStr); err != nil {
		return Coverage{}, err
	}
	if c.Latest, err = parseNullDate(maxStr); err != nil {
		return Coverage{}, err
	}
	return c, nil
}

// GetPrices returns prices per security in [start, end] ascending. When
// withCarry is set, the latest price before start is included so that
// carry-forward lookups at start have a value.
func (r *MarketPriceRepository) GetPrices(ctx context.Context, securityIDs []string, start, end time.Time, withCarry bool) (map[string][]model.MarketPrice, error) {
	pricesBySecurity := make(map[string][]model.MarketPrice, len(securityIDs))
	if len(securityIDs) == 0 {
		return pricesBySecurity, nil
	}
	if start.After(end) {
		return nil, fmt.Errorf("startDate (%s) must be before or equal to endDate (%s)", formatDate(start), formatDate(end))
	}

	args := make([]any, 0, 2*len(securityIDs)+3)
	for _, id := range securityIDs {
		args = append(args, id)
	}
	args = append(args, formatDate(start), formatDate(end))

	//#nosec G202 -- Safe: placeholders are generated programmatically, not from user input
	query := `
    SELECT id, security_id, date, close, currency, source
    FROM market_price
    WHERE security_id IN (` + placeholders(len(securityIDs)) + `)
    AND date >= ? AND date <= ?`

	if withCarry {
		//#nosec G202 -- Safe: placeholders are generated programmatically, not from user input
		query += `
    UNION ALL
    SELECT mp.id, mp.security_id, mp.date, mp.close, mp.currency, mp.source
    FROM market_price mp
    INNER JOIN (
        SELECT security_id, MAX(date) AS carry_date
        FROM market_price
        WHERE security_id IN (` + placeholders(len(securityIDs)) + `) AND date < ?
        GROUP BY security_id
    ) prior ON mp.security_id = prior.security_id AND mp.date = prior.carry_date`
		for _, id := range securityIDs {
			args = append(args, id)
		}
		args = append(args, formatDate(start))
	}
	query += `
    ORDER BY 2 ASC, 3 ASC`

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query market_price table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mp model.MarketPrice
		var dateStr string
		if err := rows.Scan(&mp.ID, &mp.SecurityID, &dateStr, &mp.Close, &mp.Currency, &mp.Source); err != nil {
			return nil, fmt.Errorf("failed to scan market_price table results: %w", err)
		}
		mp.Date, err = ParseTime(dateStr)
		if err != nil {
			return nil, err
		}
		pricesBySecurity[mp.SecurityID] = append(pricesBySecurity[mp.SecurityID], mp)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating market_price table: %w", err)
	}
	return pricesBySecurity, nil
}

// GetPriceCurrencies returns the distinct quote currencies of the cached
// prices of each security.
func (r *MarketPriceRepository) GetPriceCurrencies(ctx context.Context, securityIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(securityIDs))
	if len(securityIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(securityIDs))
	for _, id := range securityIDs {
		args = append(args, id)
	}

	//#nosec G202 -- Safe: placeholders are generated programmatically, not from user input
	query := `
    SELECT DISTINCT security_id, currency
    FROM market_price
    WHERE security_id IN (` + placeholders(len(securityIDs)) + `) AND currency <> ''
    ORDER BY security_id, currency`

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price currencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, currency string
		if err := rows.Scan(&id, &currency); err != nil {
			return nil, fmt.Errorf("failed to scan price currency: %w", err)
		}
		out[id] = append(out[id], currency)
	}
	return out, rows.Err()
}

// InsertPrices stores prices, skipping (security, date) pairs that already
// exist. Returns the number of new rows.
func (r *MarketPriceRepository) InsertPrices(ctx context.Context, prices []model.MarketPrice) (int, error) {
	query := `
        INSERT INTO market_price (id, security_id, date, close, currency, source)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (security_id, date) DO NOTHING
    `

	inserted := 0
	for _, p := range prices {
		result, err := r.getQuerier().ExecContext(ctx, query,
			uuid.New().String(), p.SecurityID, formatDate(p.Date), p.Close, p.Currency, p.Source)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert market price: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// DeletePrices removes cached prices of a security, optionally only from a date on.
func (r *MarketPriceRepository) DeletePrices(ctx context.Context, securityID string, from *time.Time) (int64, error) {
	query := `DELETE FROM market_price WHERE security_id = ?`
	args := []any{securityID}
	if from != nil {
		query += ` AND date >= ?`
		args = append(args, formatDate(*from))
	}

	result, err := r.getQuerier().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete market prices: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// GetStatus summarises the whole price cache.
func (r *MarketPriceRepository) GetStatus(ctx context.Context) (Coverage, int, error) {
	c, err := coverage(ctx, r.getQuerier(), `SELECT COUNT(*), MIN(date), MAX(date) FROM market_price`)
	if err != nil {
		return Coverage{}, 0, err
	}

	var securities int
	if err := r.getQuerier().QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT security_id) FROM market_price`).Scan(&securities); err != nil {
		return Coverage{}, 0, fmt.Errorf("failed to count securities with prices: %w", err)
	}
	return c, securities, nil
}
