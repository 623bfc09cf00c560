package yahoo

import "time"

// Response represents the raw JSON response structure from the Yahoo Finance chart API.
//
// The structure includes:
//   - Chart.Result: Array of result objects (typically contains one element)
//   - Chart.Result[].Meta: Symbol metadata (currency, exchange)
//   - Chart.Result[].Timestamp: Unix timestamps for each data point
//   - Chart.Result[].Indicators: OHLC arrays; entries are null on non-trading days
//   - Chart.Error: Optional error object from Yahoo
type Response struct {
	Chart Chart `json:"chart"`
}

// Chart is the top-level chart envelope.
type Chart struct {
	Result []Result    `json:"result"`
	Error  *ChartError `json:"error"`
}

// ChartError is Yahoo's error payload, e.g. {"code":"Not Found","description":"No data found"}.
type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Result holds one symbol's series.
type Result struct {
	Meta       Meta            `json:"meta"`
	Timestamp  []int64         `json:"timestamp"`
	Indicators IndicatorArrays `json:"indicators"`
}

// Meta is the symbol metadata Yahoo returns alongside prices.
type Meta struct {
	Currency         string `json:"currency"`
	Symbol           string `json:"symbol"`
	ExchangeName     string `json:"exchangeName"`
	FullExchangeName string `json:"fullExchangeName"`
	LongName         string `json:"longName"`
	Shortname        string `json:"shortName"`
}

// IndicatorArrays holds the parallel price arrays. The adjclose array is
// ignored: a cached close must not change after later dividends.
type IndicatorArrays struct {
	Quote []Quote `json:"quote"`
}

// Quote holds OHLC arrays. Elements are pointers because Yahoo emits null.
type Quote struct {
	Open  []*float64 `json:"open"`
	Close []*float64 `json:"close"`
	High  []*float64 `json:"high"`
	Low   []*float64 `json:"low"`
}

// PriceChart represents a parsed price chart. Days without a close are dropped.
type PriceChart struct {
	Currency     string       `json:"currency"`
	Symbol       string       `json:"symbol"`
	ExchangeName string       `json:"exchangeName"`
	LongName     string       `json:"longName"`
	Indicators   []Indicators `json:"indicators"`
}

// Indicators represents a single day's closing price.
//
// Fields:
//   - Date: Trading date (midnight UTC)
//   - PriceClose: Closing price as traded, never dividend adjusted
type Indicators struct {
	Date       time.Time
	PriceClose float64
}
