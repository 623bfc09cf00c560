package service

import (
	"sort"
	"time"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

type seriesPoint struct {
	date     time.Time
	value    float64
	currency string
}

// series is an ascending list of dated values with carry-forward lookup.
type series []seriesPoint

// asOf returns the most recent point on or before d. It never looks ahead.
func (s series) asOf(d time.Time) (seriesPoint, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].date.After(d) })
	if i == 0 {
		return seriesPoint{}, false
	}
	return s[i-1], true
}

func pricesToSeries(prices []model.MarketPrice) series {
	s := make(series, 0, len(prices))
	for _, p := range prices {
		s = append(s, seriesPoint{date: model.DateOf(p.Date), value: p.Close, currency: p.Currency})
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].date.Before(s[j].date) })
	return s
}

func ratesToSeries(rates []model.ExchangeRate) series {
	s := make(series, 0, len(rates))
	for _, r := range rates {
		s = append(s, seriesPoint{date: model.DateOf(r.Date), value: r.Rate})
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].date.Before(s[j].date) })
	return s
}

func pointsToSeries(points []model.PricePoint) series {
	s := make(series, 0, len(points))
	for _, p := range points {
		s = append(s, seriesPoint{date: model.DateOf(p.Date), value: p.Close})
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].date.Before(s[j].date) })
	return s
}

// RateTable holds preloaded rates to EUR per currency for in-memory conversion.
type RateTable struct {
	byCurrency map[string]series
}

// Rate returns the carry-forward rate currency->EUR for d. EUR is always 1.
func (t *RateTable) Rate(currency string, d time.Time) (float64, bool) {
	if currency == BaseCurrency {
		return 1, true
	}
	p, ok := t.byCurrency[currency].asOf(d)
	if !ok {
		return 0, false
	}
	return p.value, true
}
