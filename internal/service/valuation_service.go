package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/frankfurter"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ledger"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/metrics"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
)

// MaxValuationSpan bounds value-over-time requests.
const MaxValuationSpan = 5 * 366 * 24 * time.Hour

// valuationInputs is everything a valuation needs, loaded up front so the
// per-day computation does no I/O.
type valuationInputs struct {
	securities map[string]model.Security
	ledger     *ledger.Ledger
	prices     map[string]series
	rates      *RateTable
}

// ValuationService values the portfolio over time from the lot ledger, the
// price cache and the rate cache.
type ValuationService struct {
	securityRepo *repository.SecurityRepository
	lotRepo      *repository.TaxLotRepository
	prices       *PriceService
	currency     *CurrencyService
	log          zerolog.Logger
	now          func() time.Time
}

// NewValuationService creates a new ValuationService.
func NewValuationService(
	securityRepo *repository.SecurityRepository,
	lotRepo *repository.TaxLotRepository,
	prices *PriceService,
	currency *CurrencyService,
	log zerolog.Logger,
) *ValuationService {
	return &ValuationService{
		securityRepo: securityRepo,
		lotRepo:      lotRepo,
		prices:       prices,
		currency:     currency,
		log:          logging.Component(log, "valuation"),
		now:          time.Now,
	}
}

// loadInputs batch-loads securities and lots, then prices and rates for
// [start, end] including the last known value before start.
func (s *ValuationService) loadInputs(ctx context.Context, start, end time.Time) (*valuationInputs, error) {
	var securities []model.Security
	var lots []model.TaxLot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		securities, err = s.securityRepo.GetSecurities(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		lots, err = s.lotRepo.GetLots(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	in := &valuationInputs{
		securities: make(map[string]model.Security, len(securities)),
		ledger:     ledger.New(lots),
		prices:     map[string]series{},
		rates:      &RateTable{byCurrency: map[string]series{}},
	}
	for _, sec := range securities {
		in.securities[sec.ID] = sec
	}
	if in.ledger.Empty() {
		return in, nil
	}

	ids := in.ledger.SecurityIDs()
	var pricesByID map[string][]model.MarketPrice
	var mu sync.Mutex

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pricesByID, err = s.prices.LoadPrices(gctx, ids, start, end)
		return err
	})
	for _, c := range in.currencies() {
		g.Go(func() error {
			table, err := s.currency.LoadRateTable(gctx, []string{c}, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			in.rates.byCurrency[c] = table.byCurrency[c]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}

	for id, prices := range pricesByID {
		in.prices[id] = pricesToSeries(prices)
	}

	// A price may be quoted in a currency other than the security's.
	var extra []string
	for _, ps := range in.prices {
		for _, p := range ps {
			c := frankfurter.NormalizeCurrency(p.currency)
			if _, ok := in.rates.byCurrency[c]; !ok && c != BaseCurrency && c != "" {
				extra = append(extra, c)
				in.rates.byCurrency[c] = nil
			}
		}
	}
	if len(extra) > 0 {
		table, err := s.currency.LoadRateTable(ctx, extra, start, end)
		if err != nil {
			return nil, err
		}
		for c, rs := range table.byCurrency {
			in.rates.byCurrency[c] = rs
		}
	}
	return in, nil
}

// currencies returns the distinct non-EUR currencies of held securities.
func (in *valuationInputs) currencies() []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range in.ledger.SecurityIDs() {
		c := frankfurter.NormalizeCurrency(in.securities[id].Currency)
		if c == "" || c == BaseCurrency || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (in *valuationInputs) symbol(id string) string {
	if sec, ok := in.securities[id]; ok && sec.Symbol != "" {
		return sec.Symbol
	}
	return id
}

// priceCurrency is the currency of a cached price, falling back to the
// security's own currency.
func (in *valuationInputs) priceCurrency(id string, p seriesPoint) string {
	if p.currency != "" {
		return frankfurter.NormalizeCurrency(p.currency)
	}
	return frankfurter.NormalizeCurrency(in.securities[id].Currency)
}

// computeSeries values the portfolio on every business day in [start, end].
//
// Cost basis is the sum of the EUR cost of open lots. Market value is
// quantity times the latest price on or before the day, converted with the
// latest rate on or before the day. A security without any price yet is
// left out of market value. A day whose conversion has no rate is omitted.
func computeSeries(in *valuationInputs, start, end time.Time) ([]model.ValuationPoint, []string) {
	points := []model.ValuationPoint{}
	if in.ledger.Empty() {
		return points, []string{}
	}
	if first := in.ledger.FirstOpenDate(); start.Before(first) {
		start = first
	}

	noPrice := map[string]int{}
	noRate := map[string]int{}
	for _, d := range model.BusinessDays(start, end) {
		point := model.ValuationPoint{Date: d}
		held, omitted := false, false

		for _, id := range in.ledger.SecurityIDs() {
			agg := in.ledger.AggregateAsOf(id, d)
			if agg.Lots == 0 {
				continue
			}
			held = true
			point.CostBasis += agg.CostBasisEUR

			p, ok := in.prices[id].asOf(d)
			if !ok {
				noPrice[id]++
				continue
			}
			currency := in.priceCurrency(id, p)
			rate, ok := in.rates.Rate(currency, d)
			if !ok {
				noRate[currency]++
				omitted = true
				break
			}
			point.MarketValue += agg.Quantity * p.value * rate
		}
		if !held || omitted {
			continue
		}
		point.Gain = point.MarketValue - point.CostBasis
		point.GainPct = metrics.GainPct(point.CostBasis, point.MarketValue)
		points = append(points, point)
	}

	warnings := []string{}
	for _, id := range sortedKeys(noPrice) {
		warnings = append(warnings, fmt.Sprintf("%s: no market price on %d day(s), excluded from market value", in.symbol(id), noPrice[id]))
	}
	for _, c := range sortedKeys(noRate) {
		warnings = append(warnings, fmt.Sprintf("no %s->%s rate on %d day(s), points omitted", c, BaseCurrency, noRate[c]))
	}
	return points, warnings
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// series computes raw, unrounded points for [start, end].
func (s *ValuationService) series(ctx context.Context, start, end time.Time) (*valuationInputs, []model.ValuationPoint, []string, error) {
	in, err := s.loadInputs(ctx, start, end)
	if err != nil {
		return nil, nil, nil, err
	}
	points, warnings := computeSeries(in, start, end)
	for _, w := range warnings {
		s.log.Warn().Str("start", start.Format(model.DateLayout)).Str("end", end.Format(model.DateLayout)).Msg(w)
	}
	return in, points, warnings, nil
}

// ValueOverTime returns one point per business day in [start, end].
// It never fails for lack of data: no lots give an empty series and missing
// prices or rates become warnings.
func (s *ValuationService) ValueOverTime(ctx context.Context, start, end time.Time) (model.ValueSeries, error) {
	start, end = model.DateOf(start), model.DateOf(end)
	if start.After(end) {
		return model.ValueSeries{}, fmt.Errorf("start %s after end %s: %w",
			start.Format(model.DateLayout), end.Format(model.DateLayout), apperrors.ErrInvalidDateRange)
	}
	if end.Sub(start) > MaxValuationSpan {
		return model.ValueSeries{}, fmt.Errorf("range exceeds 5 years: %w", apperrors.ErrInvalidDateRange)
	}

	_, points, warnings, err := s.series(ctx, start, end)
	if err != nil {
		return model.ValueSeries{}, err
	}
	for i := range points {
		points[i].CostBasis = round(points[i].CostBasis)
		points[i].MarketValue = round(points[i].MarketValue)
		points[i].Gain = round(points[i].Gain)
		points[i].GainPct = round(points[i].GainPct)
	}
	return model.ValueSeries{
		StartDate: start,
		EndDate:   end,
		Points:    points,
		Warnings:  warnings,
	}, nil
}
