package model

import "time"

// Provenance values for rows in the price, rate and mapping caches.
const (
	SourceYahoo        = "yahoo"
	SourceAlphaVantage = "alpha_vantage"
	SourceFrankfurter  = "frankfurter"
	SourceCarryForward = "carry_forward"

	MappingSourceBuiltin   = "builtin"
	MappingSourceHeuristic = "heuristic"
	MappingSourceAuto      = "auto"
	MappingSourceManual    = "manual"
)

// MarketPrice is a cached daily close for a security in its trading currency.
type MarketPrice struct {
	ID         string    `json:"id"`
	SecurityID string    `json:"securityId"`
	Date       time.Time `json:"date"`
	Close      float64   `json:"close"`
	Currency   string    `json:"currency"`
	Source     string    `json:"source"`
}

// PricePoint is a dated close without cache metadata.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// ExchangeRate converts one unit of FromCurrency into ToCurrency on Date.
type ExchangeRate struct {
	ID           string    `json:"id"`
	Date         time.Time `json:"date"`
	FromCurrency string    `json:"fromCurrency"`
	ToCurrency   string    `json:"toCurrency"`
	Rate         float64   `json:"rate"`
	Source       string    `json:"source"`
}

// TickerMapping maps a broker (symbol, exchange) pair to a market-data ticker.
type TickerMapping struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Ticker    string    `json:"ticker"`
	Source    string    `json:"source"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarketDataStatus summarises the price cache.
type MarketDataStatus struct {
	PriceCount         int        `json:"priceCount"`
	SecuritiesWithData int        `json:"securitiesWithData"`
	EarliestDate       *time.Time `json:"earliestDate,omitempty"`
	LatestDate         *time.Time `json:"latestDate,omitempty"`
	RateCount          int        `json:"rateCount"`
	LatestRateDate     *time.Time `json:"latestRateDate,omitempty"`
}
