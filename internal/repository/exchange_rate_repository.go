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

// ExchangeRateRepository provides data access methods for the exchange_rate table.
type ExchangeRateRepository struct {
	base
}

// NewExchangeRateRepository creates a new ExchangeRateRepository with the provided database connection.
func NewExchangeRateRepository(db *sql.DB) *ExchangeRateRepository {
	return &ExchangeRateRepository{base{db: db}}
}

func scanRate(row interface{ Scan(...any) error }) (model.ExchangeRate, error) {
	var er model.ExchangeRate
	var dateStr string
	if err := row.Scan(&er.ID, &dateStr, &er.FromCurrency, &er.ToCurrency, &er.Rate, &er.Source); err != nil {
		return model.ExchangeRate{}, err
	}
	var err error
	er.Date, err = ParseTime(dateStr)
	return er, err
}

// GetLatestRate returns the most recent rate on or before date, or nil when none exists.
func (r *ExchangeRateRepository) GetLatestRate(ctx context.Context, from, to string, date time.Time) (*model.ExchangeRate, error) {
	query := `
        SELECT id, date, from_currency, to_currency, rate, source
        FROM exchange_rate
        WHERE from_currency = ? AND to_currency = ? AND date <= ?
        ORDER BY date DESC
        LIMIT 1
    `

	er, err := scanRate(r.getQuerier().QueryRowContext(ctx, query, from, to, formatDate(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange_rate table: %w", err)
	}
	return &er, nil
}

// GetRates returns rates for a pair in [start, end] ascending, plus the
// latest rate before start so carry-forward works from the first day.
func (r *ExchangeRateRepository) GetRates(ctx context.Context, from, to string, start, end time.Time) ([]model.ExchangeRate, error) {
	query := `
        SELECT id, date, from_currency, to_currency, rate, source
        FROM exchange_rate
        WHERE from_currency = ? AND to_currency = ?
        AND date <= ?
        AND date >= COALESCE(
            (SELECT MAX(date) FROM exchange_rate WHERE from_currency = ? AND to_currency = ? AND date <= ?),
            ?)
        ORDER BY date ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query,
		from, to, formatDate(end), from, to, formatDate(start), formatDate(start))
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange_rate table: %w", err)
	}
	defer rows.Close()

	rates := []model.ExchangeRate{}
	for rows.Next() {
		er, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exchange_rate table results: %w", err)
		}
		rates = append(rates, er)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchange_rate table: %w", err)
	}
	return rates, nil
}

// GetCachedDates returns the set of dates with a stored rate for the pair in
// [start, end]. Carried-forward rows dated on or after provisionalSince are
// left out so that a later provider publication can replace them.
func (r *ExchangeRateRepository) GetCachedDates(ctx context.Context, from, to string, start, end, provisionalSince time.Time) (map[string]bool, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `
        SELECT date FROM exchange_rate
        WHERE from_currency = ? AND to_currency = ? AND date >= ? AND date <= ?
        AND NOT (source = ? AND date >= ?)
    `, from, to, formatDate(start), formatDate(end), model.SourceCarryForward, formatDate(provisionalSince))
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange_rate dates: %w", err)
	}
	defer rows.Close()

	dates := map[string]bool{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan exchange_rate date: %w", err)
		}
		dates[d] = true
	}
	return dates, rows.Err()
}

// InsertRates stores rates. Provider rows replace carried-forward rows for the
// same key; any other existing row is left untouched.
func (r *ExchangeRateRepository) InsertRates(ctx context.Context, rates []model.ExchangeRate) (int, error) {
	query := `
        INSERT INTO exchange_rate (id, date, from_currency, to_currency, rate, source)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (date, from_currency, to_currency) DO UPDATE SET
            rate = excluded.rate,
            source = excluded.source
        WHERE exchange_rate.source = '` + model.SourceCarryForward + `'
          AND excluded.source != '` + model.SourceCarryForward + `'
    `

	written := 0
	for _, er := range rates {
		result, err := r.getQuerier().ExecContext(ctx, query,
			uuid.New().String(), formatDate(er.Date), er.FromCurrency, er.ToCurrency, er.Rate, er.Source)
		if err != nil {
			return written, fmt.Errorf("failed to insert exchange rate: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return written, fmt.Errorf("failed to get rows affected: %w", err)
		}
		written += int(n)
	}
	return written, nil
}

// GetStatus returns the number of cached rates and the latest rate date.
func (r *ExchangeRateRepository) GetStatus(ctx context.Context) (Coverage, error) {
	return coverage(ctx, r.getQuerier(), `SELECT COUNT(*), MIN(date), MAX(date) FROM exchange_rate`)
}
