package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/metrics"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// PortfolioOptions tunes the summary metrics.
type PortfolioOptions struct {
	RiskFreeRate      float64
	ConcentrationTopN int
}

// PortfolioService builds the current-state views of the portfolio: the
// per-security positions, the summary with its risk and return metrics, and
// the money-weighted return over a window.
type PortfolioService struct {
	valuation *ValuationService
	resolver  *TickerResolver
	opts      PortfolioOptions
	log       zerolog.Logger
	now       func() time.Time
}

// NewPortfolioService creates a new PortfolioService.
func NewPortfolioService(valuation *ValuationService, resolver *TickerResolver, opts PortfolioOptions, log zerolog.Logger) *PortfolioService {
	if opts.ConcentrationTopN <= 0 {
		opts.ConcentrationTopN = 5
	}
	return &PortfolioService{
		valuation: valuation,
		resolver:  resolver,
		opts:      opts,
		log:       logging.Component(log, "portfolio"),
		now:       time.Now,
	}
}

func (s *PortfolioService) today() time.Time {
	return model.DateOf(s.now())
}

// positionsAsOf builds unrounded positions for every security with open lots
// on date, sorted by market value descending.
//
// A security without any cached price keeps its cost basis and gets zero
// market value plus a warning. A price whose currency has no rate is
// treated the same way.
func positionsAsOf(in *valuationInputs, date time.Time) ([]model.Position, []string) {
	positions := []model.Position{}
	warnings := []string{}
	totalValue := 0.0

	for _, id := range in.ledger.SecurityIDs() {
		agg := in.ledger.AggregateAsOf(id, date)
		if agg.Lots == 0 {
			continue
		}
		sec := in.securities[id]
		pos := model.Position{
			SecurityID:   id,
			Symbol:       sec.Symbol,
			Description:  sec.Description,
			ISIN:         sec.ISIN,
			Exchange:     sec.Exchange,
			Currency:     sec.Currency,
			Quantity:     agg.Quantity,
			CostBasis:    agg.CostBasis,
			CostBasisEUR: agg.CostBasisEUR,
			Lots:         in.ledger.OpenLotsAsOf(id, date),
		}

		if p, ok := in.prices[id].asOf(date); ok {
			price, priceDate := p.value, p.date
			pos.Price, pos.PriceDate = &price, &priceDate
			currency := in.priceCurrency(id, p)
			if rate, ok := in.rates.Rate(currency, date); ok {
				pos.MarketValue = agg.Quantity * p.value * rate
			} else {
				warnings = append(warnings, fmt.Sprintf("%s: no %s->%s rate, market value unavailable", in.symbol(id), currency, BaseCurrency))
			}
		} else {
			warnings = append(warnings, fmt.Sprintf("%s: no market price, market value unavailable", in.symbol(id)))
		}

		pos.Gain = pos.MarketValue - pos.CostBasisEUR
		pos.GainPct = metrics.GainPct(pos.CostBasisEUR, pos.MarketValue)
		totalValue += pos.MarketValue
		positions = append(positions, pos)
	}

	for i := range positions {
		if totalValue > 0 {
			positions[i].Weight = positions[i].MarketValue / totalValue * 100
		}
	}
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].MarketValue > positions[j].MarketValue
	})
	return positions, warnings
}

func roundPosition(p model.Position) model.Position {
	p.CostBasis = round(p.CostBasis)
	p.CostBasisEUR = round(p.CostBasisEUR)
	p.MarketValue = round(p.MarketValue)
	p.Gain = round(p.Gain)
	p.GainPct = round(p.GainPct)
	p.Weight = round(p.Weight)
	return p
}

// GetPositions returns today's holdings per security with market value in
// EUR, weight in percent of total market value, and the stored ticker
// mapping when one exists.
func (s *PortfolioService) GetPositions(ctx context.Context) ([]model.Position, []string, error) {
	today := s.today()
	in, err := s.valuation.loadInputs(ctx, today, today)
	if err != nil {
		return nil, nil, err
	}

	positions, warnings := positionsAsOf(in, today)
	for i, p := range positions {
		mapping, err := s.resolver.Lookup(ctx, p.Symbol, p.Exchange)
		if err != nil {
			return nil, nil, err
		}
		if mapping != nil {
			p.Ticker = mapping.Ticker
		}
		positions[i] = roundPosition(p)
	}
	return positions, warnings, nil
}

// lotFlows turns every lot open on end and opened after start into an
// investment flow, preceded by the portfolio value at start when the window
// begins after the first lot, and closed by the value at end.
func lotFlows(in *valuationInputs, start, end time.Time, startValue, endValue float64) []metrics.CashFlow {
	var flows []metrics.CashFlow
	if startValue > 0 {
		flows = append(flows, metrics.CashFlow{Date: start, Amount: -startValue})
	}
	for _, id := range in.ledger.SecurityIDs() {
		for _, lot := range in.ledger.OpenLotsAsOf(id, end) {
			open := model.DateOf(lot.OpenDate)
			if startValue > 0 && !open.After(start) {
				continue
			}
			flows = append(flows, metrics.CashFlow{Date: open, Amount: -lot.CostBasisEUR})
		}
	}
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].Date.Before(flows[j].Date) })
	return append(flows, metrics.CashFlow{Date: end, Amount: endValue})
}

// xirrPct runs XIRR and converts the fraction to percent. Nil means the
// solver could not produce a number.
func xirrPct(flows []metrics.CashFlow) (*float64, error) {
	rate, err := metrics.XIRR(flows)
	if errors.Is(err, apperrors.ErrNoConvergence) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pct := rate * 100
	return &pct, nil
}

// GetSummary returns today's totals with the portfolio metrics.
//
// Metrics are computed over the business-day series from the first lot to
// today:
//   - XIRR: each open lot's EUR cost as an outflow at its open date, today's
//     market value as the terminal inflow, in percent; nil when the solver
//     finds no root
//   - MaxDrawdown: worst decline of market value from its running peak
//   - Sharpe: contribution-adjusted daily returns annualised over 252 days
//   - Calmar: XIRR over the magnitude of MaxDrawdown; nil without drawdown
//   - WinRate: share of positions with a positive gain
//   - TopConcentration: weight of the largest N positions
func (s *PortfolioService) GetSummary(ctx context.Context) (model.Summary, error) {
	today := s.today()
	summary := model.Summary{AsOf: today, Warnings: []string{}}

	in, err := s.valuation.loadInputs(ctx, today, today)
	if err != nil {
		return summary, err
	}
	if in.ledger.Empty() {
		return summary, nil
	}

	first := in.ledger.FirstOpenDate()
	if first.After(today) {
		first = today
	}
	in, points, seriesWarnings, err := s.valuation.series(ctx, first, today)
	if err != nil {
		return summary, err
	}

	positions, warnings := positionsAsOf(in, today)
	summary.Warnings = append(summary.Warnings, warnings...)
	summary.Warnings = append(summary.Warnings, seriesWarnings...)

	values := make([]float64, 0, len(positions))
	gains := make([]float64, 0, len(positions))
	for _, p := range positions {
		summary.CostBasis += p.CostBasisEUR
		summary.MarketValue += p.MarketValue
		values = append(values, p.MarketValue)
		gains = append(gains, p.Gain)
	}
	summary.Gain = summary.MarketValue - summary.CostBasis
	summary.GainPct = metrics.GainPct(summary.CostBasis, summary.MarketValue)
	summary.PositionCount = len(positions)

	seriesValues := make([]float64, len(points))
	seriesCosts := make([]float64, len(points))
	for i, p := range points {
		seriesValues[i] = p.MarketValue
		seriesCosts[i] = p.CostBasis
	}

	m := model.Metrics{
		MaxDrawdown:      metrics.MaxDrawdown(seriesValues),
		Sharpe:           metrics.Sharpe(metrics.Returns(seriesValues, seriesCosts), s.opts.RiskFreeRate, metrics.TradingDaysPerYear),
		WinRate:          metrics.WinRate(gains),
		TopConcentration: metrics.TopConcentration(values, s.opts.ConcentrationTopN),
		ConcentrationN:   s.opts.ConcentrationTopN,
	}
	if summary.MarketValue > 0 {
		m.XIRR, err = xirrPct(lotFlows(in, first, today, 0, summary.MarketValue))
		if err != nil {
			return summary, err
		}
	}
	if m.XIRR != nil {
		m.Calmar = metrics.Calmar(*m.XIRR, m.MaxDrawdown)
	}

	summary.CostBasis = round(summary.CostBasis)
	summary.MarketValue = round(summary.MarketValue)
	summary.Gain = round(summary.Gain)
	summary.GainPct = round(summary.GainPct)
	m.XIRR = roundPtr(m.XIRR)
	m.MaxDrawdown = round(m.MaxDrawdown)
	m.Sharpe = round(m.Sharpe)
	m.Calmar = roundPtr(m.Calmar)
	m.WinRate = round(m.WinRate)
	m.TopConcentration = round(m.TopConcentration)
	summary.Metrics = m
	return summary, nil
}

// GetAnnualizedReturn computes the money-weighted return over [start, end].
//
// The portfolio value on the first series day is treated as the opening
// investment, lots opened later as further investments, and the value on
// the last series day as the terminal proceeds. When the solver finds no
// root the XIRR is nil and Message explains why.
func (s *PortfolioService) GetAnnualizedReturn(ctx context.Context, start, end time.Time) (model.AnnualizedReturn, error) {
	start, end = model.DateOf(start), model.DateOf(end)
	if start.After(end) {
		return model.AnnualizedReturn{}, apperrors.ErrInvalidDateRange
	}
	if today := s.today(); end.After(today) {
		end = today
	}
	result := model.AnnualizedReturn{StartDate: start, EndDate: end}

	in, points, _, err := s.valuation.series(ctx, start, end)
	if err != nil {
		return result, err
	}
	if len(points) < 2 {
		result.Message = "insufficient valuation data in range"
		return result, nil
	}

	first, last := points[0], points[len(points)-1]
	openingValue := 0.0
	if !first.Date.Equal(in.ledger.FirstOpenDate()) {
		openingValue = first.MarketValue
	}
	result.XIRR, err = xirrPct(lotFlows(in, first.Date, last.Date, openingValue, last.MarketValue))
	if err != nil {
		return result, err
	}
	if result.XIRR == nil {
		result.Message = "return calculation did not converge"
	}
	result.XIRR = roundPtr(result.XIRR)
	return result, nil
}
