package service

import (
	"context"
	"time"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/alphavantage"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/frankfurter"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ibkr"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/yahoo"
)

// RateProvider fetches published exchange rates for a date range in one call.
type RateProvider interface {
	FetchRates(ctx context.Context, from, to string, start, end time.Time) ([]frankfurter.Rate, error)
}

// MarketDataProvider fetches daily closes and validates tickers.
type MarketDataProvider interface {
	FetchHistory(ctx context.Context, ticker string, start, end time.Time) (yahoo.PriceChart, error)
	Probe(ctx context.Context, ticker string) (bool, error)
}

// LotSource produces the broker's current open lots.
type LotSource interface {
	FetchStatement(ctx context.Context, token, queryID string) (ibkr.Statement, error)
}

var (
	_ RateProvider       = (*frankfurter.Client)(nil)
	_ MarketDataProvider = (*yahoo.FinanceClient)(nil)
	_ MarketDataProvider = (*alphavantage.Client)(nil)
	_ LotSource          = (*ibkr.FinanceClient)(nil)
)
