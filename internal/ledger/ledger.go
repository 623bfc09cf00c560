// Package ledger answers "what was held on date D" from a set of tax lots.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// Aggregate is the sum over the open lots of one security on one date.
type Aggregate struct {
	Quantity     float64
	CostBasis    float64
	CostBasisEUR float64
	Lots         int
}

// Ledger indexes lots by security. It is immutable after New.
type Ledger struct {
	bySecurity map[string][]model.TaxLot
	ids        []string
}

// New builds a ledger from lots in any order.
func New(lots []model.TaxLot) *Ledger {
	l := &Ledger{bySecurity: make(map[string][]model.TaxLot)}
	for _, lot := range lots {
		if _, ok := l.bySecurity[lot.SecurityID]; !ok {
			l.ids = append(l.ids, lot.SecurityID)
		}
		l.bySecurity[lot.SecurityID] = append(l.bySecurity[lot.SecurityID], lot)
	}
	sort.Strings(l.ids)
	for _, id := range l.ids {
		lots := l.bySecurity[id]
		sort.SliceStable(lots, func(i, j int) bool { return lots[i].OpenDate.Before(lots[j].OpenDate) })
	}
	return l
}

// SecurityIDs returns every security with at least one lot, sorted.
func (l *Ledger) SecurityIDs() []string {
	return l.ids
}

// Empty reports whether the ledger has no lots at all.
func (l *Ledger) Empty() bool {
	return len(l.ids) == 0
}

// FirstOpenDate is the earliest open date of any lot, or zero when empty.
func (l *Ledger) FirstOpenDate() time.Time {
	var first time.Time
	for _, id := range l.ids {
		d := model.DateOf(l.bySecurity[id][0].OpenDate)
		if first.IsZero() || d.Before(first) {
			first = d
		}
	}
	return first
}

// Lots returns all lots of a security in open-date order.
func (l *Ledger) Lots(securityID string) []model.TaxLot {
	return l.bySecurity[securityID]
}

// OpenLotsAsOf returns the lots of securityID that are open on date.
func (l *Ledger) OpenLotsAsOf(securityID string, date time.Time) []model.TaxLot {
	var open []model.TaxLot
	for _, lot := range l.bySecurity[securityID] {
		if lot.OpenDate.After(date) {
			break
		}
		if lot.IsOpenAsOf(date) {
			open = append(open, lot)
		}
	}
	return open
}

// AggregateAsOf sums quantity and cost of the lots open on date. Sums are
// exact decimal arithmetic so that many small lots do not drift.
func (l *Ledger) AggregateAsOf(securityID string, date time.Time) Aggregate {
	qty, cost, costEUR := decimal.Zero, decimal.Zero, decimal.Zero
	n := 0
	for _, lot := range l.OpenLotsAsOf(securityID, date) {
		qty = qty.Add(decimal.NewFromFloat(lot.Quantity))
		cost = cost.Add(decimal.NewFromFloat(lot.CostBasis))
		costEUR = costEUR.Add(decimal.NewFromFloat(lot.CostBasisEUR))
		n++
	}
	return Aggregate{
		Quantity:     qty.InexactFloat64(),
		CostBasis:    cost.InexactFloat64(),
		CostBasisEUR: costEUR.InexactFloat64(),
		Lots:         n,
	}
}
