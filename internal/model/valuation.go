package model

import "time"

// ValuationPoint is the portfolio state on one date. All amounts are in EUR.
type ValuationPoint struct {
	Date        time.Time `json:"date"`
	CostBasis   float64   `json:"costBasis"`
	MarketValue float64   `json:"marketValue"`
	Gain        float64   `json:"gain"`
	GainPct     float64   `json:"gainPct"`
}

// ValueSeries is the result of a value-over-time request.
type ValueSeries struct {
	StartDate time.Time        `json:"startDate"`
	EndDate   time.Time        `json:"endDate"`
	Points    []ValuationPoint `json:"points"`
	Warnings  []string         `json:"warnings"`
}

// Position is the current holding of one security.
type Position struct {
	SecurityID   string     `json:"securityId"`
	Symbol       string     `json:"symbol"`
	Description  string     `json:"description"`
	ISIN         string     `json:"isin,omitempty"`
	Exchange     string     `json:"exchange"`
	Currency     string     `json:"currency"`
	Ticker       string     `json:"ticker,omitempty"`
	Quantity     float64    `json:"quantity"`
	CostBasis    float64    `json:"costBasis"`
	CostBasisEUR float64    `json:"costBasisEur"`
	Price        *float64   `json:"price,omitempty"`
	PriceDate    *time.Time `json:"priceDate,omitempty"`
	MarketValue  float64    `json:"marketValue"`
	Gain         float64    `json:"gain"`
	GainPct      float64    `json:"gainPct"`
	Weight       float64    `json:"weight"`
	Lots         []TaxLot   `json:"lots"`
}

// Metrics are the risk and return figures derived from the value series.
type Metrics struct {
	XIRR             *float64 `json:"xirr"`
	MaxDrawdown      float64  `json:"maxDrawdown"`
	Sharpe           float64  `json:"sharpe"`
	Calmar           *float64 `json:"calmar"`
	WinRate          float64  `json:"winRate"`
	TopConcentration float64  `json:"topConcentration"`
	ConcentrationN   int      `json:"concentrationN"`
}

// Summary is the current portfolio snapshot plus metrics.
type Summary struct {
	AsOf          time.Time `json:"asOf"`
	CostBasis     float64   `json:"costBasis"`
	MarketValue   float64   `json:"marketValue"`
	Gain          float64   `json:"gain"`
	GainPct       float64   `json:"gainPct"`
	PositionCount int       `json:"positionCount"`
	Metrics       Metrics   `json:"metrics"`
	Warnings      []string  `json:"warnings"`
}

// AnnualizedReturn is the money-weighted return over a window.
type AnnualizedReturn struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	XIRR      *float64  `json:"xirr"`
	Message   string    `json:"message,omitempty"`
}

// Benchmark describes an index the portfolio can be compared against.
type Benchmark struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Ticker   string `json:"ticker"`
	Currency string `json:"currency"`
}

// BenchmarkPoint pairs the portfolio with a simulated benchmark investment.
type BenchmarkPoint struct {
	Date            time.Time `json:"date"`
	CostBasis       float64   `json:"costBasis"`
	PortfolioValue  float64   `json:"portfolioValue"`
	BenchmarkValue  float64   `json:"benchmarkValue"`
	PortfolioReturn float64   `json:"portfolioReturn"`
	BenchmarkReturn float64   `json:"benchmarkReturn"`
}

// BenchmarkComparison is the response of a benchmark request.
type BenchmarkComparison struct {
	Benchmark Benchmark        `json:"benchmark"`
	Points    []BenchmarkPoint `json:"points"`
	Warnings  []string         `json:"warnings"`
}
