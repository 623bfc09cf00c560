package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/frankfurter"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ibkr"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/yahoo"
)

// FetchCall records one ranged provider call.
type FetchCall struct {
	Key   string
	Start time.Time
	End   time.Time
}

// FakeRateProvider serves rates from memory and counts calls.
//
// Example usage:
//
//	rates := testutil.NewFakeRateProvider().
//	    WithRate("USD", "2024-01-02", 0.91).
//	    WithRate("USD", "2024-01-03", 0.92)
type FakeRateProvider struct {
	mu    sync.Mutex
	rates map[string]map[string]float64
	Err   error
	Calls []FetchCall
}

// NewFakeRateProvider creates an empty provider.
func NewFakeRateProvider() *FakeRateProvider {
	return &FakeRateProvider{rates: map[string]map[string]float64{}}
}

// WithRate publishes a from->EUR rate on date.
func (f *FakeRateProvider) WithRate(from, date string, rate float64) *FakeRateProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rates[from] == nil {
		f.rates[from] = map[string]float64{}
	}
	f.rates[from][date] = rate
	return f
}

// WithRange publishes rate on every weekday in [start, end].
func (f *FakeRateProvider) WithRange(from string, start, end time.Time, rate float64) *FakeRateProvider {
	for date := range WeekdayCloses(start, end, rate) {
		f.WithRate(from, date, rate)
	}
	return f
}

// WithError makes every call fail with err.
func (f *FakeRateProvider) WithError(err error) *FakeRateProvider {
	f.Err = err
	return f
}

// CallCount returns how many fetches were made.
func (f *FakeRateProvider) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// FetchRates implements service.RateProvider.
func (f *FakeRateProvider) FetchRates(_ context.Context, from, _ string, start, end time.Time) ([]frankfurter.Rate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FetchCall{Key: from, Start: start, End: end})
	if f.Err != nil {
		return nil, f.Err
	}

	out := []frankfurter.Rate{}
	for date, rate := range f.rates[from] {
		d := Date(date)
		if d.Before(model.DateOf(start)) || d.After(model.DateOf(end)) {
			continue
		}
		out = append(out, frankfurter.Rate{Date: d, Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// WeekdayCloses returns value keyed by every weekday in [start, end].
func WeekdayCloses(start, end time.Time, value float64) map[string]float64 {
	out := map[string]float64{}
	for _, d := range model.BusinessDays(start, end) {
		out[d.Format(model.DateLayout)] = value
	}
	return out
}

// FakeMarketData serves closes from memory and counts calls. A ticker
// probes successfully when it has at least one close.
//
// Example usage:
//
//	market := testutil.NewFakeMarketData().
//	    WithCloses("AAPL", "USD", map[string]float64{"2024-01-02": 185.6})
type FakeMarketData struct {
	mu         sync.Mutex
	closes     map[string]map[string]float64
	currencies map[string]string
	Errs       map[string]error
	ProbeCalls []string
	FetchCalls []FetchCall
}

// NewFakeMarketData creates an empty provider.
func NewFakeMarketData() *FakeMarketData {
	return &FakeMarketData{
		closes:     map[string]map[string]float64{},
		currencies: map[string]string{},
		Errs:       map[string]error{},
	}
}

// WithCloses publishes closes for a ticker quoted in currency.
func (f *FakeMarketData) WithCloses(ticker, currency string, closes map[string]float64) *FakeMarketData {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes[ticker] == nil {
		f.closes[ticker] = map[string]float64{}
	}
	for d, c := range closes {
		f.closes[ticker][d] = c
	}
	f.currencies[ticker] = currency
	return f
}

// WithError makes every call for ticker fail with err.
func (f *FakeMarketData) WithError(ticker string, err error) *FakeMarketData {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errs[ticker] = err
	return f
}

// ProbeCount returns how many probes were made.
func (f *FakeMarketData) ProbeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ProbeCalls)
}

// FetchCount returns how many history fetches were made.
func (f *FakeMarketData) FetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.FetchCalls)
}

// FetchHistory implements service.MarketDataProvider.
func (f *FakeMarketData) FetchHistory(_ context.Context, ticker string, start, end time.Time) (yahoo.PriceChart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls = append(f.FetchCalls, FetchCall{Key: ticker, Start: start, End: end})
	if err := f.Errs[ticker]; err != nil {
		return yahoo.PriceChart{}, err
	}

	chart := yahoo.PriceChart{Currency: f.currencies[ticker], Symbol: ticker}
	for date, c := range f.closes[ticker] {
		d := Date(date)
		if d.Before(model.DateOf(start)) || d.After(model.DateOf(end)) {
			continue
		}
		chart.Indicators = append(chart.Indicators, yahoo.Indicators{Date: d, PriceClose: c})
	}
	if len(chart.Indicators) == 0 {
		return yahoo.PriceChart{}, apperrors.ErrNoData
	}
	sort.Slice(chart.Indicators, func(i, j int) bool { return chart.Indicators[i].Date.Before(chart.Indicators[j].Date) })
	return chart, nil
}

// Probe implements service.MarketDataProvider.
func (f *FakeMarketData) Probe(_ context.Context, ticker string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProbeCalls = append(f.ProbeCalls, ticker)
	if err := f.Errs[ticker]; err != nil {
		return false, err
	}
	return len(f.closes[ticker]) > 0, nil
}

// FakeLotSource returns a fixed statement and counts calls. When Block is
// set, FetchStatement waits until it is closed.
type FakeLotSource struct {
	mu        sync.Mutex
	Statement ibkr.Statement
	Err       error
	Block     chan struct{}
	calls     int
	Token     string
	QueryID   string
}

// CallCount returns how many statements were fetched.
func (f *FakeLotSource) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FetchStatement implements service.LotSource.
func (f *FakeLotSource) FetchStatement(ctx context.Context, token, queryID string) (ibkr.Statement, error) {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return ibkr.Statement{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.Token, f.QueryID = token, queryID
	if f.Err != nil {
		return ibkr.Statement{}, f.Err
	}
	return f.Statement, nil
}
