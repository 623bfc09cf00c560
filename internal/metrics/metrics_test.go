package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"peak then trough", []float64{100, 120, 90, 110}, -25},
		{"monotonic rise", []float64{100, 110, 120}, 0},
		{"empty", nil, 0},
		{"leading zeros ignored", []float64{0, 0, 100, 50}, -50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.values), 1e-9)
		})
	}
}

func TestXIRR(t *testing.T) {
	t.Run("one year ten percent", func(t *testing.T) {
		// 2023 is not a leap year so the flow is exactly 365 days out.
		rate, err := XIRR([]CashFlow{
			{Date: day(2023, 1, 1), Amount: -1000},
			{Date: day(2024, 1, 1), Amount: 1100},
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.10, rate, 1e-6)
	})

	t.Run("loss", func(t *testing.T) {
		rate, err := XIRR([]CashFlow{
			{Date: day(2023, 1, 1), Amount: -1000},
			{Date: day(2024, 1, 1), Amount: 800},
		})
		require.NoError(t, err)
		assert.InDelta(t, -0.20, rate, 1e-6)
	})

	t.Run("multiple contributions", func(t *testing.T) {
		flows := []CashFlow{
			{Date: day(2023, 1, 1), Amount: -1000},
			{Date: day(2023, 7, 1), Amount: -1000},
			{Date: day(2024, 1, 1), Amount: 2150},
		}
		rate, err := XIRR(flows)
		require.NoError(t, err)

		// NPV at the solved rate is zero.
		sum := 0.0
		for _, f := range flows {
			years := f.Date.Sub(flows[0].Date).Hours() / 24 / 365
			sum += f.Amount / pow(1+rate, years)
		}
		assert.InDelta(t, 0, sum, 1e-4)
		assert.Greater(t, rate, 0.0)
	})

	t.Run("no sign change", func(t *testing.T) {
		_, err := XIRR([]CashFlow{
			{Date: day(2023, 1, 1), Amount: -1000},
			{Date: day(2024, 1, 1), Amount: -100},
		})
		assert.ErrorIs(t, err, apperrors.ErrNoConvergence)
	})

	t.Run("return beyond bracket", func(t *testing.T) {
		_, err := XIRR([]CashFlow{
			{Date: day(2023, 1, 1), Amount: -1},
			{Date: day(2024, 1, 1), Amount: 1000},
		})
		assert.ErrorIs(t, err, apperrors.ErrNoConvergence)
	})
}

func TestSharpe(t *testing.T) {
	t.Run("zero volatility is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Sharpe([]float64{0.001, 0.001, 0.001}, 0.02, TradingDaysPerYear))
	})

	t.Run("clamped", func(t *testing.T) {
		returns := []float64{0.0100, 0.0101, 0.0100, 0.0101}
		assert.Equal(t, SharpeClamp, Sharpe(returns, 0, TradingDaysPerYear))
	})

	t.Run("negative when below risk free", func(t *testing.T) {
		returns := []float64{0.01, -0.02, 0.005, -0.01, 0.002}
		assert.Less(t, Sharpe(returns, 0.02, TradingDaysPerYear), 0.0)
	})

	t.Run("too short", func(t *testing.T) {
		assert.Equal(t, 0.0, Sharpe([]float64{0.01}, 0, TradingDaysPerYear))
	})
}

func TestCalmar(t *testing.T) {
	assert.Nil(t, Calmar(12, 0))

	c := Calmar(12, -25)
	require.NotNil(t, c)
	assert.InDelta(t, 0.48, *c, 1e-12)
}

func TestReturns(t *testing.T) {
	// WHY: a new purchase raises market value without any performance; it
	// must not show up as a return.
	values := []float64{100, 210, 220}
	costs := []float64{100, 200, 200}

	r := Returns(values, costs)
	require.Len(t, r, 2)
	assert.InDelta(t, 0.10, r[0], 1e-12)
	assert.InDelta(t, 10.0/210.0, r[1], 1e-12)
}

func TestWinRateAndConcentration(t *testing.T) {
	assert.InDelta(t, 50, WinRate([]float64{10, -5, 0, 3}), 1e-12)
	assert.Equal(t, 0.0, WinRate(nil))

	assert.InDelta(t, 70, TopConcentration([]float64{10, 40, 30, 20}, 2), 1e-9)
	assert.InDelta(t, 100, TopConcentration([]float64{10, 40}, 5), 1e-9)
	assert.Equal(t, 0.0, TopConcentration([]float64{0, 0}, 1))
}

func TestGainPct(t *testing.T) {
	assert.InDelta(t, 25, GainPct(100, 125), 1e-12)
	assert.Equal(t, 0.0, GainPct(0, 125))
}

func pow(x, y float64) float64 {
	return math.Pow(x, y)
}
