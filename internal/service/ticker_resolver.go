package service

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
)

//go:embed data/builtin_mappings.yaml
var builtinMappingsYAML []byte

// exchangeSuffixes maps IBKR listing exchanges to Yahoo ticker suffixes.
var exchangeSuffixes = map[string]string{
	"NASDAQ":   "",
	"NYSE":     "",
	"ARCA":     "",
	"AMEX":     "",
	"BATS":     "",
	"XETRA":    ".DE",
	"IBIS":     ".DE",
	"IBIS2":    ".DE",
	"FWB":      ".F",
	"SWB":      ".STU",
	"LSE":      ".L",
	"LSEETF":   ".L",
	"LSEIOB1":  ".L",
	"EURONEXT": ".PA",
	"SBF":      ".PA",
	"AEB":      ".AS",
	"BM":       ".MC",
	"EBS":      ".SW",
	"SEHK":     ".HK",
	"TSE":      ".T",
	"KRX":      ".KS",
	"TSX":      ".TO",
	"ASX":      ".AX",
}

// germanVenues are tried on both Xetra and Frankfurt suffixes.
var germanVenues = map[string]bool{"XETRA": true, "IBIS": true, "IBIS2": true, "FWB": true}

// suffixCurrencies is the trading currency implied by a ticker suffix.
var suffixCurrencies = map[string]string{
	".DE":  "EUR",
	".F":   "EUR",
	".STU": "EUR",
	".AS":  "EUR",
	".PA":  "EUR",
	".MC":  "EUR",
	".MI":  "EUR",
	".L":   "GBP",
	".SW":  "CHF",
	".HK":  "HKD",
	".T":   "JPY",
	".KS":  "KRW",
	".TO":  "CAD",
	".AX":  "AUD",
}

// ExchangeSuffix returns the ticker suffix for a broker exchange code.
func ExchangeSuffix(exchange string) (string, bool) {
	s, ok := exchangeSuffixes[strings.ToUpper(strings.TrimSpace(exchange))]
	return s, ok
}

// TickerCurrency returns the currency implied by a ticker's suffix, or
// fallback (USD when empty) for unsuffixed and unknown tickers.
func TickerCurrency(ticker, fallback string) string {
	if i := strings.LastIndex(ticker, "."); i > 0 {
		if c, ok := suffixCurrencies[strings.ToUpper(ticker[i:])]; ok {
			return c
		}
	}
	if fallback == "" {
		return "USD"
	}
	return fallback
}

// Resolution is the outcome of resolving a broker instrument to a ticker.
// Discovered is set when the ticker came from probing rather than a stored
// mapping; the caller decides whether to persist it via RecordDiscovery.
type Resolution struct {
	Symbol     string `json:"symbol"`
	Exchange   string `json:"exchange"`
	Ticker     string `json:"ticker"`
	Source     string `json:"source"`
	Discovered bool   `json:"discovered"`
}

type candidate struct {
	ticker string
	source string
}

// normalizePair is the form mappings are stored under.
func normalizePair(symbol, exchange string) (string, string) {
	return strings.ToUpper(strings.TrimSpace(symbol)), strings.ToUpper(strings.TrimSpace(exchange))
}

// candidates lists the tickers to probe for an unmapped pair, in order:
// the suffix-table guess first, then variations.
func candidates(symbol, exchange string) []candidate {
	symbol, exchange = normalizePair(symbol, exchange)

	suffix := exchangeSuffixes[exchange]
	primary := symbol + suffix
	out := []candidate{{ticker: primary, source: model.MappingSourceHeuristic}}
	seen := map[string]bool{primary: true}

	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, candidate{ticker: t, source: model.MappingSourceAuto})
		}
	}
	if germanVenues[exchange] {
		add(symbol + ".DE")
		add(symbol + ".F")
	}
	if suffix != "" {
		add(symbol)
	}
	return out
}

// TickerResolver maps broker (symbol, exchange) pairs to market-data tickers.
type TickerResolver struct {
	mappingRepo *repository.TickerMappingRepository
	provider    MarketDataProvider
	log         zerolog.Logger
}

// NewTickerResolver creates a new TickerResolver.
func NewTickerResolver(mappingRepo *repository.TickerMappingRepository, provider MarketDataProvider, log zerolog.Logger) *TickerResolver {
	return &TickerResolver{
		mappingRepo: mappingRepo,
		provider:    provider,
		log:         logging.Component(log, "ticker_resolver"),
	}
}

// Resolve returns the ticker for a broker instrument without writing anything.
//
// A stored mapping always wins and is never second-guessed. Otherwise the
// suffix-table candidate and then its variations are probed; the first one
// with data is returned with Discovered set. A rate-limit signal aborts
// probing immediately. Fails with ErrTickerNotResolved when every candidate
// fails.
func (r *TickerResolver) Resolve(ctx context.Context, symbol, exchange string) (Resolution, error) {
	symbol, exchange = normalizePair(symbol, exchange)
	mapping, err := r.mappingRepo.GetMapping(ctx, symbol, exchange)
	if err != nil {
		return Resolution{}, err
	}
	if mapping != nil {
		return Resolution{
			Symbol:   mapping.Symbol,
			Exchange: mapping.Exchange,
			Ticker:   mapping.Ticker,
			Source:   mapping.Source,
		}, nil
	}

	var tried []string
	for _, c := range candidates(symbol, exchange) {
		ok, err := r.provider.Probe(ctx, c.ticker)
		if errors.Is(err, apperrors.ErrRateLimited) {
			return Resolution{}, err
		}
		if err != nil {
			r.log.Debug().Err(err).Str("ticker", c.ticker).Msg("probe failed")
		}
		if ok {
			r.log.Info().Str("symbol", symbol).Str("exchange", exchange).
				Str("ticker", c.ticker).Str("source", c.source).Msg("ticker discovered")
			return Resolution{
				Symbol:     symbol,
				Exchange:   exchange,
				Ticker:     c.ticker,
				Source:     c.source,
				Discovered: true,
			}, nil
		}
		tried = append(tried, c.ticker)
	}
	return Resolution{}, fmt.Errorf("%s on %s (tried %s): %w",
		symbol, exchange, strings.Join(tried, ", "), apperrors.ErrTickerNotResolved)
}

// RecordDiscovery persists a discovered resolution. Manual mappings are
// left alone. It is a no-op for resolutions that came from storage.
func (r *TickerResolver) RecordDiscovery(ctx context.Context, res Resolution) error {
	if !res.Discovered {
		return nil
	}
	_, err := r.mappingRepo.UpsertMapping(ctx, model.TickerMapping{
		Symbol:   res.Symbol,
		Exchange: res.Exchange,
		Ticker:   res.Ticker,
		Source:   res.Source,
	})
	return err
}

// SetManualMapping stores an operator override. It replaces any existing
// mapping for the pair.
func (r *TickerResolver) SetManualMapping(ctx context.Context, symbol, exchange, ticker, notes string) (model.TickerMapping, error) {
	symbol, exchange = normalizePair(symbol, exchange)
	ticker = strings.TrimSpace(ticker)
	if symbol == "" || exchange == "" || ticker == "" {
		return model.TickerMapping{}, fmt.Errorf("symbol, exchange and ticker: %w", apperrors.ErrMissingRequiredField)
	}

	m := model.TickerMapping{
		Symbol:   symbol,
		Exchange: exchange,
		Ticker:   ticker,
		Source:   model.MappingSourceManual,
		Notes:    notes,
	}
	if _, err := r.mappingRepo.UpsertMapping(ctx, m); err != nil {
		return model.TickerMapping{}, err
	}
	stored, err := r.mappingRepo.GetMapping(ctx, symbol, exchange)
	if err != nil {
		return model.TickerMapping{}, err
	}
	r.log.Info().Str("symbol", symbol).Str("exchange", exchange).Str("ticker", ticker).Msg("manual ticker mapping set")
	return *stored, nil
}

// Lookup returns the stored mapping for a pair without probing, or nil.
func (r *TickerResolver) Lookup(ctx context.Context, symbol, exchange string) (*model.TickerMapping, error) {
	symbol, exchange = normalizePair(symbol, exchange)
	return r.mappingRepo.GetMapping(ctx, symbol, exchange)
}

// ListMappings returns every stored mapping.
func (r *TickerResolver) ListMappings(ctx context.Context) ([]model.TickerMapping, error) {
	return r.mappingRepo.GetMappings(ctx)
}

type builtinMappingsFile struct {
	Mappings []struct {
		Symbol   string `yaml:"symbol"`
		Exchange string `yaml:"exchange"`
		Ticker   string `yaml:"ticker"`
		Notes    string `yaml:"notes"`
	} `yaml:"mappings"`
}

// BuiltinMappings parses the mappings shipped with the binary.
func BuiltinMappings() ([]model.TickerMapping, error) {
	var file builtinMappingsFile
	if err := yaml.Unmarshal(builtinMappingsYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse builtin ticker mappings: %w", err)
	}
	out := make([]model.TickerMapping, 0, len(file.Mappings))
	for _, m := range file.Mappings {
		out = append(out, model.TickerMapping{
			Symbol:   strings.ToUpper(m.Symbol),
			Exchange: strings.ToUpper(m.Exchange),
			Ticker:   m.Ticker,
			Source:   model.MappingSourceBuiltin,
			Notes:    m.Notes,
		})
	}
	return out, nil
}

// SeedBuiltins inserts the shipped mappings that are not stored yet.
func (r *TickerResolver) SeedBuiltins(ctx context.Context) (int, error) {
	mappings, err := BuiltinMappings()
	if err != nil {
		return 0, err
	}
	n, err := r.mappingRepo.InsertMissing(ctx, mappings)
	if err != nil {
		return n, err
	}
	if n > 0 {
		r.log.Info().Int("count", n).Msg("seeded builtin ticker mappings")
	}
	return n, nil
}
