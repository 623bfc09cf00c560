// Package metrics holds the pure return and risk formulas used by the
// portfolio summary. Percentages are expressed as percent (-25 means -25%).
package metrics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
)

// TradingDaysPerYear annualises series sampled on business days.
const TradingDaysPerYear = 252

// SharpeClamp bounds the Sharpe-like ratio; tiny volatility makes it explode.
const SharpeClamp = 10.0

const minVolatility = 1e-9

// GainPct is the relative gain of value over cost, 0 when cost is 0.
func GainPct(cost, value float64) float64 {
	if cost == 0 {
		return 0
	}
	return (value - cost) / cost * 100
}

// Returns converts a value series into period returns with contributions
// removed: r[t] = (V[t] - V[t-1] - (C[t] - C[t-1])) / V[t-1].
// Periods where the previous value is not positive are skipped.
func Returns(values, costs []float64) []float64 {
	if len(values) < 2 || len(values) != len(costs) {
		return []float64{}
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		flow := costs[i] - costs[i-1]
		returns = append(returns, (values[i]-values[i-1]-flow)/values[i-1])
	}
	return returns
}

// MaxDrawdown is the largest decline from a running peak, as a non-positive percent.
func MaxDrawdown(values []float64) float64 {
	peak, worst := 0.0, 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (v - peak) / peak * 100; dd < worst {
			worst = dd
		}
	}
	return worst
}

// Sharpe annualises period returns and subtracts the risk-free rate.
// It returns 0 when volatility is near zero and clamps to ±SharpeClamp.
func Sharpe(returns []float64, riskFreeRate float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stat.StdDev(returns, nil)
	if sd < minVolatility || math.IsNaN(sd) {
		return 0
	}
	annualReturn := stat.Mean(returns, nil) * periodsPerYear
	annualVol := sd * math.Sqrt(periodsPerYear)

	ratio := (annualReturn - riskFreeRate) / annualVol
	return math.Max(-SharpeClamp, math.Min(SharpeClamp, ratio))
}

// Calmar divides the annualised return by the magnitude of the max drawdown,
// both in percent. It is undefined (nil) without a drawdown.
func Calmar(annualReturnPct, maxDrawdownPct float64) *float64 {
	if maxDrawdownPct == 0 {
		return nil
	}
	c := annualReturnPct / math.Abs(maxDrawdownPct)
	return &c
}

// WinRate is the share of gains that are strictly positive, in percent.
func WinRate(gains []float64) float64 {
	if len(gains) == 0 {
		return 0
	}
	wins := 0
	for _, g := range gains {
		if g > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(gains)) * 100
}

// TopConcentration is the weight of the n largest values in their total, in percent.
func TopConcentration(values []float64, n int) float64 {
	if n <= 0 || len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	total := stat.Mean(sorted, nil) * float64(len(sorted))
	if total <= 0 {
		return 0
	}
	top := 0.0
	for i := 0; i < n && i < len(sorted); i++ {
		top += sorted[i]
	}
	return top / total * 100
}

// CashFlow is one dated flow. Investments are negative, proceeds positive.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

const (
	xirrLow       = -0.9999
	xirrHigh      = 10.0
	xirrTolerance = 1e-10
	xirrMaxIter   = 300
)

// xirrGrid brackets the search; the first adjacent pair with a sign change wins.
var xirrGrid = []float64{xirrLow, -0.99, -0.9, -0.75, -0.5, -0.25, 0, 0.1, 0.25, 0.5, 1, 2, 5, xirrHigh}

// XIRR solves for the annual rate that makes the net present value of flows
// zero, using bisection inside [-99.99%, 1000%]. It returns a fraction
// (0.1 is 10%) or apperrors.ErrNoConvergence when no sign change exists.
func XIRR(flows []CashFlow) (float64, error) {
	if len(flows) < 2 {
		return 0, apperrors.ErrNoConvergence
	}
	hasPos, hasNeg := false, false
	t0 := flows[0].Date
	for _, f := range flows {
		hasPos = hasPos || f.Amount > 0
		hasNeg = hasNeg || f.Amount < 0
		if f.Date.Before(t0) {
			t0 = f.Date
		}
	}
	if !hasPos || !hasNeg {
		return 0, apperrors.ErrNoConvergence
	}

	npv := func(rate float64) float64 {
		sum := 0.0
		for _, f := range flows {
			years := f.Date.Sub(t0).Hours() / 24 / 365
			sum += f.Amount / math.Pow(1+rate, years)
		}
		return sum
	}

	lo, hi := math.NaN(), math.NaN()
	prev := npv(xirrGrid[0])
	for i := 1; i < len(xirrGrid); i++ {
		cur := npv(xirrGrid[i])
		if prev == 0 {
			return xirrGrid[i-1], nil
		}
		if math.Signbit(prev) != math.Signbit(cur) {
			lo, hi = xirrGrid[i-1], xirrGrid[i]
			break
		}
		prev = cur
	}
	if math.IsNaN(lo) {
		return 0, apperrors.ErrNoConvergence
	}

	fLo := npv(lo)
	for range xirrMaxIter {
		mid := (lo + hi) / 2
		fMid := npv(mid)
		if fMid == 0 || (hi-lo)/2 < xirrTolerance {
			return mid, nil
		}
		if math.Signbit(fMid) == math.Signbit(fLo) {
			lo, fLo = mid, fMid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}
