package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// BenchmarkRepository provides data access methods for the benchmark_price table.
type BenchmarkRepository struct {
	base
}

// NewBenchmarkRepository creates a new BenchmarkRepository with the provided database connection.
func NewBenchmarkRepository(db *sql.DB) *BenchmarkRepository {
	return &BenchmarkRepository{base{db: db}}
}

// GetCoverage returns the cached span for a benchmark ticker.
func (r *BenchmarkRepository) GetCoverage(ctx context.Context, ticker string) (Coverage, error) {
	return coverage(ctx, r.getQuerier(),
		`SELECT COUNT(*), MIN(date), MAX(date) FROM benchmark_price WHERE ticker = ?`, ticker)
}

// GetCloses returns closes in [start, end] ascending plus the last close before start.
func (r *BenchmarkRepository) GetCloses(ctx context.Context, ticker string, start, end time.Time) ([]model.PricePoint, error) {
	query := `
        SELECT date, close
        FROM benchmark_price
        WHERE ticker = ?
        AND date <= ?
        AND date >= COALESCE((SELECT MAX(date) FROM benchmark_price WHERE ticker = ? AND date <= ?), ?)
        ORDER BY date ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query,
		ticker, formatDate(end), ticker, formatDate(start), formatDate(start))
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmark_price table: %w", err)
	}
	defer rows.Close()

	points := []model.PricePoint{}
	for rows.Next() {
		var p model.PricePoint
		var dateStr string
		if err := rows.Scan(&dateStr, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark_price table results: %w", err)
		}
		if p.Date, err = ParseTime(dateStr); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating benchmark_price table: %w", err)
	}
	return points, nil
}

// InsertCloses stores closes, skipping dates already cached.
func (r *BenchmarkRepository) InsertCloses(ctx context.Context, ticker string, points []model.PricePoint) (int, error) {
	query := `
        INSERT INTO benchmark_price (id, ticker, date, close)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (ticker, date) DO NOTHING
    `

	inserted := 0
	for _, p := range points {
		result, err := r.getQuerier().ExecContext(ctx, query, uuid.New().String(), ticker, formatDate(p.Date), p.Close)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert benchmark price: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}
