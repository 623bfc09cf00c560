package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ledger"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
)

func day(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestContiguousRanges(t *testing.T) {
	days := []time.Time{
		day("2024-01-04"), day("2024-01-05"), day("2024-01-08"), // Thu, Fri, Mon
		day("2024-01-10"),
		day("2024-01-12"),
	}
	got := contiguousRanges(days)
	require.Len(t, got, 3)
	assert.Equal(t, DateRange{Start: day("2024-01-04"), End: day("2024-01-08")}, got[0])
	assert.Equal(t, DateRange{Start: day("2024-01-10"), End: day("2024-01-10")}, got[1])
	assert.Equal(t, DateRange{Start: day("2024-01-12"), End: day("2024-01-12")}, got[2])

	assert.Empty(t, contiguousRanges(nil))
}

func TestMissingRanges(t *testing.T) {
	today := day("2024-06-14")
	ptr := func(s string) *time.Time {
		d := day(s)
		return &d
	}

	t.Run("empty cache needs the whole range", func(t *testing.T) {
		got := missingRanges(repository.Coverage{}, day("2024-01-02"), day("2024-01-31"), today)
		assert.Equal(t, []DateRange{{Start: day("2024-01-02"), End: day("2024-01-31")}}, got)
	})

	t.Run("covered range needs nothing", func(t *testing.T) {
		cov := repository.Coverage{Earliest: ptr("2024-01-01"), Latest: ptr("2024-02-01")}
		assert.Empty(t, missingRanges(cov, day("2024-01-02"), day("2024-01-31"), today))
	})

	t.Run("head and tail outside the cached span", func(t *testing.T) {
		cov := repository.Coverage{Earliest: ptr("2024-01-10"), Latest: ptr("2024-01-20")}
		got := missingRanges(cov, day("2024-01-02"), day("2024-01-31"), today)
		assert.Equal(t, []DateRange{
			{Start: day("2024-01-02"), End: day("2024-01-09")},
			{Start: day("2024-01-21"), End: day("2024-01-31")},
		}, got)
	})

	t.Run("weekend-only tail is skipped", func(t *testing.T) {
		cov := repository.Coverage{Earliest: ptr("2024-01-02"), Latest: ptr("2024-01-05")}
		assert.Empty(t, missingRanges(cov, day("2024-01-02"), day("2024-01-07"), today))
	})

	t.Run("holiday head and tail are not refetched", func(t *testing.T) {
		// Good Friday and Easter Monday before the first close, Boxing Day after the last.
		cov := repository.Coverage{Earliest: ptr("2024-04-02"), Latest: ptr("2024-12-24")}
		assert.Empty(t, missingRanges(cov, day("2024-03-29"), day("2024-12-26"), day("2025-01-10")))
	})

	t.Run("short tail near today is still fetched", func(t *testing.T) {
		cov := repository.Coverage{Earliest: ptr("2024-06-03"), Latest: ptr("2024-06-12")}
		got := missingRanges(cov, day("2024-06-03"), today, today)
		assert.Equal(t, []DateRange{{Start: day("2024-06-13"), End: today}}, got)
	})

	t.Run("clamped to today", func(t *testing.T) {
		got := missingRanges(repository.Coverage{}, day("2024-06-10"), day("2024-07-01"), today)
		assert.Equal(t, []DateRange{{Start: day("2024-06-10"), End: today}}, got)
	})
}

func TestCandidates(t *testing.T) {
	tickers := func(cs []candidate) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.ticker
		}
		return out
	}

	assert.Equal(t, []string{"AAPL"}, tickers(candidates("aapl", "NASDAQ")))
	assert.Equal(t, []string{"VWRL.AS", "VWRL"}, tickers(candidates("VWRL", "AEB")))
	assert.Equal(t, []string{"SAP.DE", "SAP.F", "SAP"}, tickers(candidates("SAP", "IBIS2")))
	assert.Equal(t, []string{"XYZ"}, tickers(candidates("XYZ", "UNKNOWN")))

	cs := candidates("SAP", "XETRA")
	assert.Equal(t, model.MappingSourceHeuristic, cs[0].source)
	assert.Equal(t, model.MappingSourceAuto, cs[1].source)
}

func TestQuoteCurrency(t *testing.T) {
	tests := []struct {
		chart, ticker, security string
		want                    string
		divisor                 float64
	}{
		{"GBp", "VOD.L", "GBP", "GBP", 100},
		{"GBX", "VOD.L", "GBP", "GBP", 100},
		{"ZAc", "NPN.JO", "ZAR", "ZAR", 100},
		{"usd", "AAPL", "USD", "USD", 1},
		{"", "SAP.DE", "USD", "EUR", 1},
		{"", "AAPL", "", "USD", 1},
	}
	for _, tt := range tests {
		c, d := quoteCurrency(tt.chart, tt.ticker, tt.security)
		assert.Equal(t, tt.want, c, tt.chart+" "+tt.ticker)
		assert.Equal(t, tt.divisor, d, tt.chart+" "+tt.ticker)
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.24, round(1.236))
	assert.Equal(t, -2.5, round(-2.499))
	assert.Nil(t, roundPtr(nil))
	v := 3.14159
	assert.Equal(t, 3.14, *roundPtr(&v))
}

func TestComputeSeries(t *testing.T) {
	closed := day("2024-01-04")
	lots := []model.TaxLot{
		{ID: "l1", SecurityID: "s1", OpenDate: day("2024-01-02"), Quantity: 10, CostBasis: 1000, CostBasisEUR: 900},
		{ID: "l2", SecurityID: "s2", OpenDate: day("2024-01-03"), CloseDate: &closed, Quantity: 1, CostBasis: 50, CostBasisEUR: 50},
	}
	in := &valuationInputs{
		securities: map[string]model.Security{
			"s1": {ID: "s1", Symbol: "AAPL", Currency: "USD"},
			"s2": {ID: "s2", Symbol: "ASML", Currency: "EUR"},
		},
		ledger: ledger.New(lots),
		prices: map[string]series{
			"s1": {{date: day("2024-01-02"), value: 100, currency: "USD"}},
			"s2": {{date: day("2024-01-03"), value: 60, currency: "EUR"}},
		},
		rates: &RateTable{byCurrency: map[string]series{
			"USD": {{date: day("2023-12-29"), value: 0.9}},
		}},
	}

	points, warnings := computeSeries(in, day("2023-12-25"), day("2024-01-05"))
	require.Len(t, points, 4)
	assert.Empty(t, warnings)

	assert.Equal(t, day("2024-01-02"), points[0].Date)
	assert.InDelta(t, 900, points[0].MarketValue, 1e-9)
	assert.InDelta(t, 950, points[1].CostBasis, 1e-9)
	assert.InDelta(t, 960, points[1].MarketValue, 1e-9)
	assert.InDelta(t, 900, points[2].CostBasis, 1e-9)
	assert.InDelta(t, 900, points[3].MarketValue, 1e-9)
}

func TestComputeSeries_MissingRate(t *testing.T) {
	in := &valuationInputs{
		securities: map[string]model.Security{"s1": {ID: "s1", Symbol: "AAPL", Currency: "USD"}},
		ledger: ledger.New([]model.TaxLot{
			{ID: "l1", SecurityID: "s1", OpenDate: day("2024-01-02"), Quantity: 1, CostBasisEUR: 100},
		}),
		prices: map[string]series{"s1": {{date: day("2024-01-02"), value: 100, currency: "USD"}}},
		rates:  &RateTable{byCurrency: map[string]series{}},
	}

	points, warnings := computeSeries(in, day("2024-01-02"), day("2024-01-03"))
	assert.Empty(t, points)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "USD")
}
