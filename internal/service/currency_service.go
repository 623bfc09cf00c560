package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/frankfurter"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
)

// BaseCurrency is the reporting currency of every valuation.
const BaseCurrency = "EUR"

// provisionalDays is how far back carried-forward rates are still refetched,
// since the provider may publish a day late.
const provisionalDays = 5

// incrementalWindow caps how far GetRate extends from the latest cached rate
// before it falls back to a fixed lookback window.
const incrementalWindow = 31

// rateLookbackDays is the window fetched when a pair has no recent cache.
const rateLookbackDays = 30

// CurrencyService is the rate cache. It serves carry-forward exchange rates
// from the exchange_rate table and fills gaps from the rate provider.
type CurrencyService struct {
	rateRepo *repository.ExchangeRateRepository
	provider RateProvider
	log      zerolog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewCurrencyService creates a new CurrencyService.
func NewCurrencyService(rateRepo *repository.ExchangeRateRepository, provider RateProvider, log zerolog.Logger) *CurrencyService {
	return &CurrencyService{
		rateRepo: rateRepo,
		provider: provider,
		log:      logging.Component(log, "currency"),
		now:      time.Now,
	}
}

func (s *CurrencyService) today() time.Time {
	return model.DateOf(s.now())
}

// GetRate returns the multiplicative from->to rate for date.
//
// An exact cached row is returned as is. On a miss the missing range is
// fetched once, and if the date itself still has no publication the most
// recent earlier rate is stored at date with source carry_forward, so the
// next lookup is a direct hit. Fails with ErrNoRateAvailable when nothing
// exists on or before date, and never resolves a date after today.
func (s *CurrencyService) GetRate(ctx context.Context, date time.Time, from, to string) (float64, error) {
	from, to = frankfurter.NormalizeCurrency(from), frankfurter.NormalizeCurrency(to)
	if from == to {
		return 1, nil
	}
	date = model.DateOf(date)
	if date.After(s.today()) {
		return 0, fmt.Errorf("%s->%s on %s is in the future: %w",
			from, to, date.Format(model.DateLayout), apperrors.ErrNoRateAvailable)
	}

	cached, err := s.rateRepo.GetLatestRate(ctx, from, to, date)
	if err != nil {
		return 0, err
	}
	if cached != nil && cached.Date.Equal(date) {
		return cached.Rate, nil
	}

	key := from + "/" + to + "/" + date.Format(model.DateLayout)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.resolveMiss(ctx, date, from, to, cached)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (s *CurrencyService) resolveMiss(ctx context.Context, date time.Time, from, to string, latest *model.ExchangeRate) (float64, error) {
	start := date.AddDate(0, 0, -rateLookbackDays)
	if latest != nil && date.Sub(latest.Date) <= incrementalWindow*24*time.Hour {
		start = latest.Date.AddDate(0, 0, 1)
	}

	_, fetchErr := s.fetchAndStore(ctx, from, to, start, date)
	if fetchErr != nil {
		if errors.Is(fetchErr, apperrors.ErrRateLimited) {
			return 0, fetchErr
		}
		s.log.Warn().Err(fetchErr).Str("from", from).Str("to", to).
			Str("date", date.Format(model.DateLayout)).Msg("rate fetch failed, using cache")
	}

	cached, err := s.rateRepo.GetLatestRate(ctx, from, to, date)
	if err != nil {
		return 0, err
	}
	if cached == nil {
		if errors.Is(fetchErr, apperrors.ErrUnsupportedCurrency) {
			return 0, fmt.Errorf("%s->%s: %w: %w", from, to, apperrors.ErrNoRateAvailable, fetchErr)
		}
		return 0, fmt.Errorf("%s->%s on %s: %w", from, to, date.Format(model.DateLayout), apperrors.ErrNoRateAvailable)
	}
	if cached.Date.Equal(date) {
		return cached.Rate, nil
	}

	carried := model.ExchangeRate{
		Date:         date,
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         cached.Rate,
		Source:       model.SourceCarryForward,
	}
	if _, err := s.rateRepo.InsertRates(ctx, []model.ExchangeRate{carried}); err != nil {
		return 0, err
	}
	return cached.Rate, nil
}

// fetchAndStore fetches [start, end] in one call and stores every returned day.
func (s *CurrencyService) fetchAndStore(ctx context.Context, from, to string, start, end time.Time) (int, error) {
	if start.After(end) {
		return 0, nil
	}
	fetched, err := s.provider.FetchRates(ctx, from, to, start, end)
	if err != nil {
		return 0, err
	}
	rows := make([]model.ExchangeRate, 0, len(fetched))
	for _, r := range fetched {
		rows = append(rows, model.ExchangeRate{
			Date:         model.DateOf(r.Date),
			FromCurrency: from,
			ToCurrency:   to,
			Rate:         r.Rate,
			Source:       model.SourceFrankfurter,
		})
	}
	return s.rateRepo.InsertRates(ctx, rows)
}

// RateFill reports what EnsureRates did for one pair.
type RateFill struct {
	Ranges   int
	Inserted int
	Carried  int
}

// EnsureRates makes sure every business day in [start, end] (clamped to
// today) has a from->to row. Missing days are grouped into contiguous runs
// and each run is fetched once. Business days the provider did not publish
// are materialised as carry_forward rows.
func (s *CurrencyService) EnsureRates(ctx context.Context, from, to string, start, end time.Time) (RateFill, error) {
	from, to = frankfurter.NormalizeCurrency(from), frankfurter.NormalizeCurrency(to)
	var fill RateFill
	if from == to {
		return fill, nil
	}
	today := s.today()
	start, end = model.DateOf(start), clampToToday(model.DateOf(end), today)
	if start.After(end) {
		return fill, nil
	}

	cachedDates, err := s.rateRepo.GetCachedDates(ctx, from, to, start, end, today.AddDate(0, 0, -provisionalDays))
	if err != nil {
		return fill, err
	}
	var missing []time.Time
	for _, d := range model.BusinessDays(start, end) {
		if !cachedDates[d.Format(model.DateLayout)] {
			missing = append(missing, d)
		}
	}

	for _, r := range contiguousRanges(missing) {
		n, err := s.fetchAndStore(ctx, from, to, r.Start, r.End)
		if err != nil {
			return fill, fmt.Errorf("failed to fetch %s->%s %s..%s: %w", from, to,
				r.Start.Format(model.DateLayout), r.End.Format(model.DateLayout), err)
		}
		fill.Ranges++
		fill.Inserted += n

		carried, err := s.carryForward(ctx, from, to, r.Start, r.End)
		if err != nil {
			return fill, err
		}
		fill.Carried += carried
	}

	if fill.Ranges > 0 {
		s.log.Debug().Str("from", from).Str("to", to).Int("ranges", fill.Ranges).
			Int("inserted", fill.Inserted).Int("carried", fill.Carried).Msg("rates ensured")
	}
	return fill, nil
}

// carryForward writes a carry_forward row for every business day in
// [start, end] that has no row, using the most recent earlier rate.
func (s *CurrencyService) carryForward(ctx context.Context, from, to string, start, end time.Time) (int, error) {
	rates, err := s.rateRepo.GetRates(ctx, from, to, start, end)
	if err != nil {
		return 0, err
	}
	known := ratesToSeries(rates)

	var rows []model.ExchangeRate
	for _, d := range model.BusinessDays(start, end) {
		p, ok := known.asOf(d)
		if !ok || p.date.Equal(d) {
			continue
		}
		rows = append(rows, model.ExchangeRate{
			Date:         d,
			FromCurrency: from,
			ToCurrency:   to,
			Rate:         p.value,
			Source:       model.SourceCarryForward,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return s.rateRepo.InsertRates(ctx, rows)
}

// LoadRateTable preloads currency->EUR rates for [start, end], including
// the last rate before start, for in-memory carry-forward conversion.
func (s *CurrencyService) LoadRateTable(ctx context.Context, currencies []string, start, end time.Time) (*RateTable, error) {
	table := &RateTable{byCurrency: make(map[string]series, len(currencies))}
	for _, c := range currencies {
		c = frankfurter.NormalizeCurrency(c)
		if c == BaseCurrency {
			continue
		}
		if _, ok := table.byCurrency[c]; ok {
			continue
		}
		rates, err := s.rateRepo.GetRates(ctx, c, BaseCurrency, start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s rates: %w", c, err)
		}
		table.byCurrency[c] = ratesToSeries(rates)
	}
	return table, nil
}
