package service

import (
	"math"
	"sort"
	"time"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// RoundingPrecision rounds monetary values in API responses to cents.
const RoundingPrecision = 100.0

// round rounds a float64 value to two decimal places using RoundingPrecision.
//
// Example:
//
//	round(123.456789)  // returns 123.46
//	round(1.994)       // returns 1.99
func round(value float64) float64 {
	return math.Round(value*RoundingPrecision) / RoundingPrecision
}

// roundPtr rounds a value behind a pointer, keeping nil.
func roundPtr(value *float64) *float64 {
	if value == nil {
		return nil
	}
	r := round(*value)
	return &r
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// contiguousRanges groups business days into runs. Two days are in the same
// run when no business day between them is absent from days.
func contiguousRanges(days []time.Time) []DateRange {
	if len(days) == 0 {
		return nil
	}
	sorted := append([]time.Time(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var ranges []DateRange
	cur := DateRange{Start: sorted[0], End: sorted[0]}
	for _, d := range sorted[1:] {
		if nextBusinessDay(cur.End).Equal(d) {
			cur.End = d
			continue
		}
		ranges = append(ranges, cur)
		cur = DateRange{Start: d, End: d}
	}
	return append(ranges, cur)
}

func nextBusinessDay(d time.Time) time.Time {
	d = d.AddDate(0, 0, 1)
	for !model.IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// clampToToday returns the earlier of d and today.
func clampToToday(d, today time.Time) time.Time {
	if d.After(today) {
		return today
	}
	return d
}
