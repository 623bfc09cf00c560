package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/frankfurter"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/yahoo"
)

// minorUnits maps quote currencies reported in subunits to their ISO code.
var minorUnits = map[string]string{
	"GBp": "GBP",
	"GBX": "GBP",
	"ZAc": "ZAR",
	"ILA": "ILS",
}

// quoteCurrency returns the ISO currency of a chart and the divisor that
// turns its prices into that currency.
func quoteCurrency(chartCurrency, ticker, securityCurrency string) (string, float64) {
	if iso, ok := minorUnits[chartCurrency]; ok {
		return iso, 100
	}
	if chartCurrency != "" {
		return strings.ToUpper(chartCurrency), 1
	}
	return TickerCurrency(ticker, securityCurrency), 1
}

// holidayGap is the widest run of calendar days at the edge of a cached span
// that is taken to be market holidays rather than missing data.
const holidayGap = 4

// missingRanges returns the parts of [start, end] outside the cached span,
// clamped to today. Only ranges that contain a business day are returned.
// Gaps inside the cached span are treated as non-trading days, and so are
// edge gaps of at most holidayGap days. A tail that may still be published
// (ending within holidayGap days of today) is always returned.
func missingRanges(cov repository.Coverage, start, end, today time.Time) []DateRange {
	start, end = model.DateOf(start), clampToToday(model.DateOf(end), today)
	if start.After(end) {
		return nil
	}
	if cov.Earliest == nil || cov.Latest == nil {
		return withBusinessDays([]DateRange{{Start: start, End: end}})
	}

	earliest, latest := model.DateOf(*cov.Earliest), model.DateOf(*cov.Latest)
	var ranges []DateRange
	if start.Before(earliest) && !withinDays(start, earliest, holidayGap) {
		ranges = append(ranges, DateRange{Start: start, End: minDate(earliest.AddDate(0, 0, -1), end)})
	}
	settled := !withinDays(end, today, holidayGap)
	if end.After(latest) && !(settled && withinDays(latest, end, holidayGap)) {
		ranges = append(ranges, DateRange{Start: maxDate(latest.AddDate(0, 0, 1), start), End: end})
	}
	return withBusinessDays(ranges)
}

func withBusinessDays(ranges []DateRange) []DateRange {
	out := ranges[:0]
	for _, r := range ranges {
		if len(model.BusinessDays(r.Start, r.End)) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// withinDays reports whether b is at most n calendar days after a.
func withinDays(a, b time.Time, n int) bool {
	return !b.After(a.AddDate(0, 0, n))
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// fallbackHistory fetches the fallback provider's history for the whole
// missing span at most once per EnsurePrices call.
type fallbackHistory struct {
	provider MarketDataProvider
	symbol   string
	ranges   []DateRange

	done  bool
	chart yahoo.PriceChart
	err   error
}

func (f *fallbackHistory) fetch(ctx context.Context) (yahoo.PriceChart, error) {
	if !f.done {
		f.done = true
		first, last := f.ranges[0].Start, f.ranges[len(f.ranges)-1].End
		f.chart, f.err = f.provider.FetchHistory(ctx, f.symbol, first, last)
	}
	return f.chart, f.err
}

// PriceFetch reports what EnsurePrices did for one security.
type PriceFetch struct {
	Resolution *Resolution
	Ranges     int
	Inserted   int
}

// PriceService is the price cache. Rows are immutable; missing ranges are
// fetched from the market-data provider once and stored.
type PriceService struct {
	priceRepo *repository.MarketPriceRepository
	rateRepo  *repository.ExchangeRateRepository
	resolver  *TickerResolver
	provider  MarketDataProvider
	fallback  MarketDataProvider
	log       zerolog.Logger
	now       func() time.Time
}

// NewPriceService creates a new PriceService.
func NewPriceService(
	priceRepo *repository.MarketPriceRepository,
	rateRepo *repository.ExchangeRateRepository,
	resolver *TickerResolver,
	provider MarketDataProvider,
	log zerolog.Logger,
) *PriceService {
	return &PriceService{
		priceRepo: priceRepo,
		rateRepo:  rateRepo,
		resolver:  resolver,
		provider:  provider,
		log:       logging.Component(log, "prices"),
		now:       time.Now,
	}
}

// WithFallback sets a second provider, queried by the security's own
// symbol, for securities the primary provider cannot price.
func (s *PriceService) WithFallback(provider MarketDataProvider) *PriceService {
	s.fallback = provider
	return s
}

// EnsurePrices fetches whatever part of [start, end] is not cached yet for
// the security. The ticker is resolved only when something is missing.
//
// A resolver failure fails this security only. ErrRateLimited is returned
// as is so that the caller can abort.
func (s *PriceService) EnsurePrices(ctx context.Context, sec model.Security, start, end time.Time) (PriceFetch, error) {
	var fetch PriceFetch

	cov, err := s.priceRepo.GetCoverage(ctx, sec.ID)
	if err != nil {
		return fetch, err
	}
	ranges := missingRanges(cov, start, end, model.DateOf(s.now()))
	if len(ranges) == 0 {
		return fetch, nil
	}

	res, resolveErr := s.resolver.Resolve(ctx, sec.Symbol, sec.Exchange)
	onlyFallback := s.fallback != nil && errors.Is(resolveErr, apperrors.ErrTickerNotResolved)
	switch {
	case onlyFallback:
		s.log.Info().Err(resolveErr).Str("security", sec.Symbol).Msg("ticker not resolved, using fallback provider")
	case resolveErr != nil:
		return fetch, resolveErr
	default:
		fetch.Resolution = &res
	}

	fb := &fallbackHistory{provider: s.fallback, symbol: strings.ToUpper(strings.TrimSpace(sec.Symbol)), ranges: ranges}
	for _, r := range ranges {
		var chart yahoo.PriceChart
		err := apperrors.ErrNoData
		if !onlyFallback {
			chart, err = s.provider.FetchHistory(ctx, res.Ticker, r.Start, r.End)
		}
		source, currency, divisor := model.SourceYahoo, "", 1.0
		if errors.Is(err, apperrors.ErrNoData) && s.fallback != nil {
			chart, err = fb.fetch(ctx)
			if err != nil && !errors.Is(err, apperrors.ErrNoData) {
				s.log.Warn().Err(err).Str("symbol", fb.symbol).Msg("fallback fetch failed")
				err = fmt.Errorf("fallback %s: %w", fb.symbol, apperrors.ErrNoData)
			}
			source, currency = model.SourceAlphaVantage, frankfurter.NormalizeCurrency(sec.Currency)
		}
		if errors.Is(err, apperrors.ErrNoData) {
			s.log.Debug().Str("ticker", res.Ticker).Str("start", r.Start.Format(model.DateLayout)).
				Str("end", r.End.Format(model.DateLayout)).Msg("no prices in range")
			continue
		}
		if err != nil {
			return fetch, fmt.Errorf("failed to fetch %s: %w", res.Ticker, err)
		}
		if source == model.SourceYahoo {
			currency, divisor = quoteCurrency(chart.Currency, res.Ticker, sec.Currency)
		}

		prices := make([]model.MarketPrice, 0, len(chart.Indicators))
		for _, ind := range chart.Indicators {
			d := model.DateOf(ind.Date)
			if d.Before(r.Start) || d.After(r.End) {
				continue
			}
			prices = append(prices, model.MarketPrice{
				SecurityID: sec.ID,
				Date:       d,
				Close:      ind.PriceClose / divisor,
				Currency:   currency,
				Source:     source,
			})
		}
		if len(prices) == 0 {
			continue
		}
		fetch.Ranges++
		n, err := s.priceRepo.InsertPrices(ctx, prices)
		if err != nil {
			return fetch, err
		}
		fetch.Inserted += n
	}
	if onlyFallback && fetch.Ranges == 0 {
		return fetch, resolveErr
	}

	s.log.Debug().Str("security", sec.Symbol).Str("ticker", res.Ticker).
		Int("ranges", fetch.Ranges).Int("inserted", fetch.Inserted).Msg("prices ensured")
	return fetch, nil
}

// Prices yields the cached prices of a security in [start, end] in date
// order. Every iteration runs a fresh query, so the sequence can be ranged
// over again.
func (s *PriceService) Prices(ctx context.Context, securityID string, start, end time.Time) iter.Seq2[model.MarketPrice, error] {
	return func(yield func(model.MarketPrice, error) bool) {
		bySecurity, err := s.priceRepo.GetPrices(ctx, []string{securityID}, start, end, false)
		if err != nil {
			yield(model.MarketPrice{}, err)
			return
		}
		for _, p := range bySecurity[securityID] {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// GetPrices fills the cache for [start, end] and returns the cached sequence.
func (s *PriceService) GetPrices(ctx context.Context, sec model.Security, start, end time.Time) (iter.Seq2[model.MarketPrice, error], error) {
	if start.After(end) {
		return nil, apperrors.ErrInvalidDateRange
	}
	if _, err := s.EnsurePrices(ctx, sec, start, end); err != nil {
		return nil, err
	}
	return s.Prices(ctx, sec.ID, start, end), nil
}

// LoadPrices loads prices for several securities, each including its last
// price before start.
func (s *PriceService) LoadPrices(ctx context.Context, securityIDs []string, start, end time.Time) (map[string][]model.MarketPrice, error) {
	return s.priceRepo.GetPrices(ctx, securityIDs, start, end, true)
}

// DeletePrices removes cached prices of a security, from a date on when
// given. It is the only way cached prices are removed.
func (s *PriceService) DeletePrices(ctx context.Context, securityID string, from *time.Time) (int64, error) {
	n, err := s.priceRepo.DeletePrices(ctx, securityID, from)
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("security_id", securityID).Int64("deleted", n).Msg("cached prices deleted")
	return n, nil
}

// GetStatus summarises the price and rate caches.
func (s *PriceService) GetStatus(ctx context.Context) (model.MarketDataStatus, error) {
	prices, securities, err := s.priceRepo.GetStatus(ctx)
	if err != nil {
		return model.MarketDataStatus{}, err
	}
	rates, err := s.rateRepo.GetStatus(ctx)
	if err != nil {
		return model.MarketDataStatus{}, err
	}
	return model.MarketDataStatus{
		PriceCount:         prices.Count,
		SecuritiesWithData: securities,
		EarliestDate:       prices.Earliest,
		LatestDate:         prices.Latest,
		RateCount:          rates.Count,
		LatestRateDate:     rates.Latest,
	}, nil
}
