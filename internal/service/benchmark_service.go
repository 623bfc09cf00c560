package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/metrics"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
)

// benchmarks are the indices the portfolio can be compared against.
var benchmarks = []model.Benchmark{
	{Key: "sp500", Name: "S&P 500", Ticker: "^GSPC", Currency: "USD"},
	{Key: "nasdaq", Name: "NASDAQ Composite", Ticker: "^IXIC", Currency: "USD"},
}

// BenchmarkService simulates investing every lot's cost in an index instead.
type BenchmarkService struct {
	benchmarkRepo *repository.BenchmarkRepository
	valuation     *ValuationService
	currency      *CurrencyService
	provider      MarketDataProvider
	gate          *MarketGate
	log           zerolog.Logger
	now           func() time.Time
}

// NewBenchmarkService creates a new BenchmarkService.
func NewBenchmarkService(
	benchmarkRepo *repository.BenchmarkRepository,
	valuation *ValuationService,
	currency *CurrencyService,
	provider MarketDataProvider,
	gate *MarketGate,
	log zerolog.Logger,
) *BenchmarkService {
	if gate == nil {
		gate = NewMarketGate()
	}
	return &BenchmarkService{
		benchmarkRepo: benchmarkRepo,
		valuation:     valuation,
		currency:      currency,
		provider:      provider,
		gate:          gate,
		log:           logging.Component(log, "benchmark"),
		now:           time.Now,
	}
}

// ListBenchmarks returns the available benchmarks.
func (s *BenchmarkService) ListBenchmarks() []model.Benchmark {
	return append([]model.Benchmark(nil), benchmarks...)
}

func findBenchmark(key string) (model.Benchmark, error) {
	for _, b := range benchmarks {
		if b.Key == key {
			return b, nil
		}
	}
	return model.Benchmark{}, fmt.Errorf("%q: %w", key, apperrors.ErrBenchmarkNotFound)
}

// ensureCloses fetches the benchmark closes missing from the cache.
func (s *BenchmarkService) ensureCloses(ctx context.Context, b model.Benchmark, start, end time.Time) error {
	cov, err := s.benchmarkRepo.GetCoverage(ctx, b.Ticker)
	if err != nil {
		return err
	}
	for _, r := range missingRanges(cov, start, end, model.DateOf(s.now())) {
		chart, err := s.provider.FetchHistory(ctx, b.Ticker, r.Start, r.End)
		if errors.Is(err, apperrors.ErrNoData) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", b.Ticker, err)
		}
		points := make([]model.PricePoint, 0, len(chart.Indicators))
		for _, ind := range chart.Indicators {
			points = append(points, model.PricePoint{Date: model.DateOf(ind.Date), Close: ind.PriceClose})
		}
		if _, err := s.benchmarkRepo.InsertCloses(ctx, b.Ticker, points); err != nil {
			return err
		}
	}
	return nil
}

type simulatedLot struct {
	lot   model.TaxLot
	units float64
}

// Compare values the portfolio over [start, end] next to a simulated
// benchmark holding. Each open lot's EUR cost buys index units at the
// lot's open date; units are held while the lot is open.
func (s *BenchmarkService) Compare(ctx context.Context, key string, start, end time.Time) (model.BenchmarkComparison, error) {
	b, err := findBenchmark(key)
	if err != nil {
		return model.BenchmarkComparison{}, err
	}
	start, end = model.DateOf(start), model.DateOf(end)
	if start.After(end) {
		return model.BenchmarkComparison{}, apperrors.ErrInvalidDateRange
	}
	if end.Sub(start) > MaxValuationSpan {
		return model.BenchmarkComparison{}, fmt.Errorf("range exceeds 5 years: %w", apperrors.ErrInvalidDateRange)
	}

	in, points, warnings, err := s.valuation.series(ctx, start, end)
	if err != nil {
		return model.BenchmarkComparison{}, err
	}
	result := model.BenchmarkComparison{Benchmark: b, Points: []model.BenchmarkPoint{}, Warnings: warnings}
	if len(points) == 0 {
		return result, nil
	}

	fetchStart := minDate(in.ledger.FirstOpenDate(), start)
	if release, ok := s.gate.TryHold(); ok {
		err := s.ensureCloses(ctx, b, fetchStart, end)
		release()
		if err != nil {
			if errors.Is(err, apperrors.ErrRateLimited) {
				return result, err
			}
			s.log.Warn().Err(err).Str("benchmark", b.Key).Msg("benchmark fetch failed, using cache")
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: price refresh failed", b.Name))
		}
	} else {
		s.log.Info().Str("benchmark", b.Key).Msg("market data sync running, using cache")
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: price refresh skipped while market data syncs", b.Name))
	}
	if _, err := s.currency.EnsureRates(ctx, b.Currency, BaseCurrency, fetchStart, end); err != nil {
		if errors.Is(err, apperrors.ErrRateLimited) {
			return result, err
		}
		s.log.Warn().Err(err).Str("currency", b.Currency).Msg("rate refresh failed, using cache")
	}

	closePoints, err := s.benchmarkRepo.GetCloses(ctx, b.Ticker, fetchStart, end)
	if err != nil {
		return result, err
	}
	closes := pointsToSeries(closePoints)
	rates, err := s.currency.LoadRateTable(ctx, []string{b.Currency}, fetchStart, end)
	if err != nil {
		return result, err
	}

	var lots []simulatedLot
	skipped := 0
	for _, id := range in.ledger.SecurityIDs() {
		for _, lot := range in.ledger.Lots(id) {
			open := model.DateOf(lot.OpenDate)
			c, okClose := closes.asOf(open)
			rate, okRate := rates.Rate(b.Currency, open)
			if !okClose || !okRate || c.value <= 0 || rate <= 0 {
				skipped++
				continue
			}
			lots = append(lots, simulatedLot{lot: lot, units: lot.CostBasisEUR / rate / c.value})
		}
	}
	if skipped > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: %d lot(s) could not be simulated for lack of index or rate data", b.Name, skipped))
	}

	for _, p := range points {
		c, okClose := closes.asOf(p.Date)
		rate, okRate := rates.Rate(b.Currency, p.Date)
		if !okClose || !okRate {
			continue
		}
		value := 0.0
		for _, sl := range lots {
			if sl.lot.IsOpenAsOf(p.Date) {
				value += sl.units * c.value * rate
			}
		}
		result.Points = append(result.Points, model.BenchmarkPoint{
			Date:            p.Date,
			CostBasis:       round(p.CostBasis),
			PortfolioValue:  round(p.MarketValue),
			BenchmarkValue:  round(value),
			PortfolioReturn: round(metrics.GainPct(p.CostBasis, p.MarketValue)),
			BenchmarkReturn: round(metrics.GainPct(p.CostBasis, value)),
		})
	}
	return result, nil
}
