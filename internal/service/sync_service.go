package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/frankfurter"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ibkr"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ratelimit"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
)

// DefaultDaysBack is the market-data lookback when a sync does not set one.
const DefaultDaysBack = 730

// SyncOptions parameterise a sync run.
type SyncOptions struct {
	// DaysBack limits how far back prices and rates are backfilled.
	DaysBack int
}

func (o SyncOptions) daysBack() int {
	if o.DaysBack <= 0 {
		return DefaultDaysBack
	}
	return o.DaysBack
}

var syncKinds = []string{model.SyncKindIBKR, model.SyncKindMarketData, model.SyncKindCurrency}

// ValidSyncKind reports whether kind names a sync.
func ValidSyncKind(kind string) bool {
	return kind == model.SyncKindAll || kind == model.SyncKindIBKR ||
		kind == model.SyncKindCurrency || kind == model.SyncKindMarketData
}

// SyncService orchestrates the IBKR import and the market-data and
// currency refreshes. At most one sync of each kind runs at a time; an
// "all" sync holds every kind.
type SyncService struct {
	db           *sql.DB
	securityRepo *repository.SecurityRepository
	lotRepo      *repository.TaxLotRepository
	priceRepo    *repository.MarketPriceRepository
	ibkrConfig   *IbkrConfigService
	lotSource    LotSource
	currency     *CurrencyService
	prices       *PriceService
	resolver     *TickerResolver
	gate         *MarketGate
	limiter      ratelimit.Limiter
	log          zerolog.Logger
	now          func() time.Time

	locks  map[string]*sync.Mutex
	mu     sync.Mutex
	latest map[string]*model.SyncResult
}

// NewSyncService creates a new SyncService.
func NewSyncService(
	db *sql.DB,
	securityRepo *repository.SecurityRepository,
	lotRepo *repository.TaxLotRepository,
	priceRepo *repository.MarketPriceRepository,
	ibkrConfig *IbkrConfigService,
	lotSource LotSource,
	currency *CurrencyService,
	prices *PriceService,
	resolver *TickerResolver,
	gate *MarketGate,
	limiter ratelimit.Limiter,
	log zerolog.Logger,
) *SyncService {
	locks := make(map[string]*sync.Mutex, len(syncKinds))
	for _, k := range syncKinds {
		locks[k] = &sync.Mutex{}
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if gate == nil {
		gate = NewMarketGate()
	}
	return &SyncService{
		db:           db,
		securityRepo: securityRepo,
		lotRepo:      lotRepo,
		priceRepo:    priceRepo,
		ibkrConfig:   ibkrConfig,
		lotSource:    lotSource,
		currency:     currency,
		prices:       prices,
		resolver:     resolver,
		gate:         gate,
		limiter:      limiter,
		log:          logging.Component(log, "sync"),
		now:          time.Now,
		locks:        locks,
		latest:       map[string]*model.SyncResult{},
	}
}

// acquire takes the guards a kind needs without blocking.
func (s *SyncService) acquire(kind string) (func(), error) {
	kinds := []string{kind}
	if kind == model.SyncKindAll {
		kinds = syncKinds
	}
	var held []*sync.Mutex
	release := func() {
		for _, m := range held {
			m.Unlock()
		}
	}
	for _, k := range kinds {
		m, ok := s.locks[k]
		if !ok {
			release()
			return nil, fmt.Errorf("unknown sync kind %q", k)
		}
		if !m.TryLock() {
			release()
			return nil, fmt.Errorf("%s: %w", k, apperrors.ErrSyncInProgress)
		}
		held = append(held, m)
	}
	return release, nil
}

// Run executes a sync synchronously and returns its result. It fails with
// ErrSyncInProgress when a sync of the same kind is already running.
func (s *SyncService) Run(ctx context.Context, kind string, opts SyncOptions) (*model.SyncResult, error) {
	release, err := s.acquire(kind)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.run(ctx, kind, opts), nil
}

// Trigger starts a sync in the background. The guard is taken before
// Trigger returns, so a second trigger of the same kind fails immediately
// with ErrSyncInProgress.
func (s *SyncService) Trigger(kind string, opts SyncOptions) error {
	release, err := s.acquire(kind)
	if err != nil {
		return err
	}
	s.record(model.NewSyncResult(kind, s.now().UTC()))
	go func() {
		defer release()
		s.run(context.Background(), kind, opts)
	}()
	return nil
}

// Status returns the latest result of every kind that has run.
func (s *SyncService) Status() map[string]model.SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.SyncResult, len(s.latest))
	for k, r := range s.latest {
		c := *r
		c.Warnings = append([]string(nil), r.Warnings...)
		c.Counts = make(map[string]int, len(r.Counts))
		for ck, cv := range r.Counts {
			c.Counts[ck] = cv
		}
		out[k] = c
	}
	return out
}

func (s *SyncService) record(r *model.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[r.Kind] = r
}

func (s *SyncService) run(ctx context.Context, kind string, opts SyncOptions) *model.SyncResult {
	var result *model.SyncResult
	switch kind {
	case model.SyncKindIBKR:
		result, _ = s.runKind(ctx, kind, func(r *model.SyncResult) error { return s.syncIBKR(ctx, r) })
	case model.SyncKindCurrency:
		result, _ = s.runKind(ctx, kind, func(r *model.SyncResult) error { return s.syncCurrency(ctx, r, opts) })
	case model.SyncKindMarketData:
		result, _ = s.runKind(ctx, kind, func(r *model.SyncResult) error { return s.syncMarketData(ctx, r, opts) })
	case model.SyncKindAll:
		result = s.syncAll(ctx, opts)
	default:
		result = model.NewSyncResult(kind, s.now().UTC())
		s.finish(result, fmt.Errorf("unknown sync kind %q", kind))
	}
	return result
}

func (s *SyncService) runKind(ctx context.Context, kind string, fn func(*model.SyncResult) error) (*model.SyncResult, error) {
	result := model.NewSyncResult(kind, s.now().UTC())
	s.record(result)
	s.log.Info().Str("kind", kind).Msg("sync started")
	err := fn(result)
	s.finish(result, err)
	return result, err
}

// finish sets the final status. Warnings alone make a partial success.
func (s *SyncService) finish(r *model.SyncResult, err error) {
	s.mu.Lock()
	finished := s.now().UTC()
	r.FinishedAt = &finished
	switch {
	case errors.Is(err, apperrors.ErrRateLimited):
		r.Status = model.SyncStatusRateLimited
		r.Error = "rate limited by provider, retry later"
	case err != nil:
		r.Status = model.SyncStatusError
		r.Error = err.Error()
	case len(r.Warnings) > 0:
		r.Status = model.SyncStatusPartialSuccess
	default:
		r.Status = model.SyncStatusSuccess
	}
	s.latest[r.Kind] = r
	s.mu.Unlock()

	var ev *zerolog.Event
	if err != nil {
		ev = s.log.Error().Err(err)
	} else {
		ev = s.log.Info()
	}
	ev.Str("kind", r.Kind).Str("status", r.Status).Int("warnings", len(r.Warnings)).
		Dur("duration", finished.Sub(r.StartedAt)).Msg("sync finished")
}

func (s *SyncService) warn(r *model.SyncResult, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.log.Warn().Str("kind", r.Kind).Msg(msg)
	s.mu.Lock()
	r.Warn(msg)
	s.mu.Unlock()
}

func (s *SyncService) count(r *model.SyncResult, key string, n int) {
	s.mu.Lock()
	r.Counts[key] += n
	s.mu.Unlock()
}

// syncAll runs ibkr, then market data, then currency. Currency runs last so
// that quote currencies first seen in fresh prices get their rates. A failed
// import stops the chain; a rate limit anywhere stops it too.
func (s *SyncService) syncAll(ctx context.Context, opts SyncOptions) *model.SyncResult {
	result := model.NewSyncResult(model.SyncKindAll, s.now().UTC())
	s.record(result)

	var err error
	steps := []struct {
		kind string
		fn   func(*model.SyncResult) error
	}{
		{model.SyncKindIBKR, func(r *model.SyncResult) error { return s.syncIBKR(ctx, r) }},
		{model.SyncKindMarketData, func(r *model.SyncResult) error { return s.syncMarketData(ctx, r, opts) }},
		{model.SyncKindCurrency, func(r *model.SyncResult) error { return s.syncCurrency(ctx, r, opts) }},
	}
	for _, step := range steps {
		sub, subErr := s.runKind(ctx, step.kind, step.fn)
		s.mu.Lock()
		result.Merge(sub)
		s.mu.Unlock()
		if subErr == nil {
			continue
		}
		if errors.Is(subErr, apperrors.ErrRateLimited) {
			err = fmt.Errorf("%s: %w", step.kind, subErr)
			break
		}
		if step.kind == model.SyncKindIBKR && !errors.Is(subErr, apperrors.ErrIbkrNotConfigured) {
			err = fmt.Errorf("%s: %w", step.kind, subErr)
			break
		}
		s.warn(result, "%s sync failed: %v", step.kind, subErr)
	}
	s.finish(result, err)
	return result
}

// convertedLot is a broker lot with its EUR cost fixed at the open date.
type convertedLot struct {
	conid string
	lot   model.TaxLot
}

// syncIBKR imports the current open lots.
//
// Cost bases are converted to EUR at each lot's open date before any write.
// The lot sets of all reported securities are then replaced, and the open
// lots of securities the broker no longer reports are closed on the
// statement date, all in one transaction.
func (s *SyncService) syncIBKR(ctx context.Context, r *model.SyncResult) error {
	token, queryID, err := s.ibkrConfig.Credentials(ctx)
	if err != nil {
		return err
	}
	stmt, err := s.lotSource.FetchStatement(ctx, token, queryID)
	if err != nil {
		return fmt.Errorf("failed to fetch flex statement: %w", err)
	}
	for _, w := range stmt.Warnings {
		s.warn(r, "%s", w)
	}

	known := make(map[string]ibkr.Security, len(stmt.Securities))
	for _, sec := range stmt.Securities {
		known[sec.Conid] = sec
	}

	var converted []convertedLot
	incomplete := map[string]bool{}
	for _, lot := range stmt.Lots {
		if _, ok := known[lot.Conid]; !ok {
			s.warn(r, "lot for conid %s: %v", lot.Conid, fmt.Errorf("security not in statement: %w", apperrors.ErrDataInconsistency))
			continue
		}
		cost := lot.CostBasis.InexactFloat64()
		rate, err := s.currency.GetRate(ctx, lot.OpenDate, lot.Currency, BaseCurrency)
		if errors.Is(err, apperrors.ErrRateLimited) {
			return err
		}
		if err != nil {
			incomplete[lot.Conid] = true
			s.warn(r, "%s lot opened %s skipped: %v", known[lot.Conid].Symbol, lot.OpenDate.Format(model.DateLayout), err)
			continue
		}
		converted = append(converted, convertedLot{
			conid: lot.Conid,
			lot: model.TaxLot{
				OpenDate:     model.DateOf(lot.OpenDate),
				Quantity:     lot.Quantity.InexactFloat64(),
				CostBasis:    cost,
				CostBasisEUR: lot.CostBasis.Mul(decimal.NewFromFloat(rate)).Round(4).InexactFloat64(),
			},
		})
	}

	lotsByConid := map[string][]model.TaxLot{}
	for _, c := range converted {
		lotsByConid[c.conid] = append(lotsByConid[c.conid], c.lot)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	secRepo := s.securityRepo.WithTx(tx)
	lotRepo := s.lotRepo.WithTx(tx)

	reported := map[string]bool{}
	conids := make([]string, 0, len(known))
	for conid := range known {
		conids = append(conids, conid)
	}
	sort.Strings(conids)
	for _, conid := range conids {
		sec := known[conid]
		id, err := secRepo.UpsertSecurity(ctx, model.Security{
			Conid:         sec.Conid,
			Symbol:        sec.Symbol,
			Description:   sec.Description,
			ISIN:          sec.ISIN,
			Currency:      frankfurter.NormalizeCurrency(sec.Currency),
			Exchange:      sec.Exchange,
			AssetCategory: "STK",
		})
		if err != nil {
			return err
		}
		reported[id] = true
		if incomplete[conid] {
			continue
		}
		if err := lotRepo.ReplaceOpenLots(ctx, id, lotsByConid[conid]); err != nil {
			return err
		}
		s.count(r, "lots", len(lotsByConid[conid]))
	}
	s.count(r, "securities", len(known))

	openIDs, err := lotRepo.GetSecurityIDsWithOpenLots(ctx)
	if err != nil {
		return err
	}
	statementDate := model.DateOf(stmt.StatementAt)
	if stmt.StatementAt.IsZero() {
		statementDate = model.DateOf(s.now())
	}
	for _, id := range openIDs {
		if reported[id] {
			continue
		}
		n, err := lotRepo.CloseOpenLots(ctx, id, statementDate)
		if err != nil {
			return err
		}
		s.count(r, "lots_closed", int(n))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	if err := s.ibkrConfig.MarkImported(ctx, s.now()); err != nil {
		s.warn(r, "failed to record import date: %v", err)
	}
	return nil
}

// heldSecurities returns securities with open lots today and the earliest
// open date per security.
func (s *SyncService) heldSecurities(ctx context.Context) ([]model.Security, map[string]time.Time, error) {
	lots, err := s.lotRepo.GetLots(ctx)
	if err != nil {
		return nil, nil, err
	}
	today := model.DateOf(s.now())
	firstOpen := map[string]time.Time{}
	for _, lot := range lots {
		if !lot.IsOpenAsOf(today) {
			continue
		}
		d := model.DateOf(lot.OpenDate)
		if f, ok := firstOpen[lot.SecurityID]; !ok || d.Before(f) {
			firstOpen[lot.SecurityID] = d
		}
	}

	securities, err := s.securityRepo.GetSecurities(ctx)
	if err != nil {
		return nil, nil, err
	}
	held := securities[:0]
	for _, sec := range securities {
		if _, ok := firstOpen[sec.ID]; ok {
			held = append(held, sec)
		}
	}
	return held, firstOpen, nil
}

// syncMarketData backfills prices for every held security, one at a time
// with a cool-down in between. Unresolvable tickers become warnings; a rate
// limit aborts the whole sync.
func (s *SyncService) syncMarketData(ctx context.Context, r *model.SyncResult, opts SyncOptions) error {
	defer s.gate.Hold()()

	held, firstOpen, err := s.heldSecurities(ctx)
	if err != nil {
		return err
	}
	today := model.DateOf(s.now())
	floor := today.AddDate(0, 0, -opts.daysBack())

	for i, sec := range held {
		if i > 0 {
			if err := s.limiter.Cooldown(ctx); err != nil {
				return err
			}
		}
		start := maxDate(firstOpen[sec.ID], floor)
		fetch, err := s.prices.EnsurePrices(ctx, sec, start, today)
		switch {
		case errors.Is(err, apperrors.ErrRateLimited):
			return err
		case errors.Is(err, apperrors.ErrTickerNotResolved):
			s.warn(r, "%s (%s): %v", sec.Symbol, sec.Exchange, err)
			s.count(r, "unresolved", 1)
			continue
		case err != nil:
			s.warn(r, "%s: %v", sec.Symbol, err)
			continue
		}

		if fetch.Resolution != nil && fetch.Resolution.Discovered {
			if err := s.resolver.RecordDiscovery(ctx, *fetch.Resolution); err != nil {
				s.warn(r, "%s: failed to save ticker mapping: %v", sec.Symbol, err)
			} else {
				s.count(r, "mappings_discovered", 1)
			}
		}
		s.count(r, "prices", fetch.Inserted)
		s.count(r, "securities", 1)
	}
	return nil
}

// syncCurrency backfills EUR rates for every currency a held security
// trades in, and for every currency its cached prices are quoted in.
func (s *SyncService) syncCurrency(ctx context.Context, r *model.SyncResult, opts SyncOptions) error {
	held, firstOpen, err := s.heldSecurities(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(held))
	for _, sec := range held {
		ids = append(ids, sec.ID)
	}
	quoted, err := s.priceRepo.GetPriceCurrencies(ctx, ids)
	if err != nil {
		return err
	}
	today := model.DateOf(s.now())
	floor := today.AddDate(0, 0, -opts.daysBack())

	starts := map[string]time.Time{}
	for _, sec := range held {
		start := maxDate(firstOpen[sec.ID], floor)
		for _, c := range append([]string{sec.Currency}, quoted[sec.ID]...) {
			c = frankfurter.NormalizeCurrency(c)
			if c == BaseCurrency || c == "" {
				continue
			}
			if cur, ok := starts[c]; !ok || start.Before(cur) {
				starts[c] = start
			}
		}
	}

	currencies := make([]string, 0, len(starts))
	for c := range starts {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		fill, err := s.currency.EnsureRates(ctx, c, BaseCurrency, starts[c], today)
		if errors.Is(err, apperrors.ErrRateLimited) {
			return err
		}
		if err != nil {
			s.warn(r, "%s: %v", c, err)
			continue
		}
		s.count(r, "rates", fill.Inserted)
		s.count(r, "rates_carried", fill.Carried)
		s.count(r, "currencies", 1)
	}
	return nil
}
