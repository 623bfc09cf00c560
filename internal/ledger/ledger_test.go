package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func lot(sec string, open time.Time, close *time.Time, qty, cost float64) model.TaxLot {
	return model.TaxLot{SecurityID: sec, OpenDate: open, CloseDate: close, Quantity: qty, CostBasis: cost, CostBasisEUR: cost * 0.9}
}

func TestLedger_OpenLotsAsOf(t *testing.T) {
	closed := d(2024, 3, 1)
	l := New([]model.TaxLot{
		lot("A", d(2024, 2, 1), nil, 5, 500),
		lot("A", d(2024, 1, 1), &closed, 10, 1000),
		lot("B", d(2024, 1, 15), nil, 1, 50),
	})

	t.Run("lot is open on its open date", func(t *testing.T) {
		assert.Len(t, l.OpenLotsAsOf("A", d(2024, 1, 1)), 1)
	})

	t.Run("lot is not open before its open date", func(t *testing.T) {
		assert.Empty(t, l.OpenLotsAsOf("A", d(2023, 12, 31)))
	})

	t.Run("lot is no longer open on its close date", func(t *testing.T) {
		open := l.OpenLotsAsOf("A", d(2024, 3, 1))
		assert.Len(t, open, 1)
		assert.Equal(t, 5.0, open[0].Quantity)
	})

	t.Run("both lots open in between", func(t *testing.T) {
		assert.Len(t, l.OpenLotsAsOf("A", d(2024, 2, 15)), 2)
	})

	t.Run("unknown security", func(t *testing.T) {
		assert.Empty(t, l.OpenLotsAsOf("Z", d(2024, 2, 15)))
	})

	t.Run("securities and first open date", func(t *testing.T) {
		assert.Equal(t, []string{"A", "B"}, l.SecurityIDs())
		assert.Equal(t, d(2024, 1, 1), l.FirstOpenDate())
	})
}

func TestLedger_AggregateAsOf(t *testing.T) {
	// WHY: cost basis of open lots must only grow while nothing closes, and
	// many fractional lots must sum without floating point drift.
	var lots []model.TaxLot
	for i := range 10 {
		lots = append(lots, model.TaxLot{
			SecurityID:   "A",
			OpenDate:     d(2024, 1, 1).AddDate(0, 0, i),
			Quantity:     0.1,
			CostBasis:    0.1,
			CostBasisEUR: 0.1,
		})
	}
	l := New(lots)

	agg := l.AggregateAsOf("A", d(2024, 1, 10))
	assert.Equal(t, 1.0, agg.Quantity)
	assert.Equal(t, 1.0, agg.CostBasisEUR)
	assert.Equal(t, 10, agg.Lots)

	prev := 0.0
	for i := range 10 {
		got := l.AggregateAsOf("A", d(2024, 1, 1).AddDate(0, 0, i)).CostBasisEUR
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}
