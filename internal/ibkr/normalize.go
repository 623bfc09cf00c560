package ibkr

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const stockCategory = "STK"

// Normalize turns a flex report into securities and open lots. Only stock
// positions are kept. Rows that cannot be parsed are skipped with a warning.
func Normalize(report FlexQueryResponse) (Statement, error) {
	if len(report.FlexStatements.FlexStatement) == 0 {
		return Statement{}, fmt.Errorf("flex report contains no statements")
	}

	var st Statement
	seen := map[string]bool{}

	for _, fs := range report.FlexStatements.FlexStatement {
		if st.AccountID == "" {
			st.AccountID = fs.AccountID
		}
		if t, err := parseFlexDate(fs.ToDate); err == nil && t.After(st.StatementAt) {
			st.StatementAt = t
		}

		for _, si := range fs.SecuritiesInfo.SecurityInfo {
			if si.AssetCategory != stockCategory || si.Conid == "" || seen[si.Conid] {
				continue
			}
			seen[si.Conid] = true
			st.Securities = append(st.Securities, Security{
				Conid:       si.Conid,
				Symbol:      si.Symbol,
				Description: si.Description,
				ISIN:        si.Isin,
				Currency:    normalizeCurrency(si.Currency),
				Exchange:    si.ListingExchange,
			})
		}

		for _, op := range fs.OpenPositions.OpenPosition {
			if op.AssetCategory != stockCategory || op.Conid == "" {
				continue
			}
			if !seen[op.Conid] {
				seen[op.Conid] = true
				st.Securities = append(st.Securities, Security{
					Conid:       op.Conid,
					Symbol:      op.Symbol,
					Description: op.Description,
					ISIN:        op.Isin,
					Currency:    normalizeCurrency(op.Currency),
					Exchange:    op.ListingExchange,
				})
			}
			// SUMMARY rows repeat the lots' totals.
			if strings.EqualFold(op.LevelOfDetail, "SUMMARY") {
				continue
			}

			lot, err := toLot(op)
			if err != nil {
				st.Warnings = append(st.Warnings, fmt.Sprintf("skipped lot for %s (conid %s): %v", op.Symbol, op.Conid, err))
				continue
			}
			if lot.Quantity.IsZero() {
				continue
			}
			st.Lots = append(st.Lots, lot)
		}
	}

	if st.StatementAt.IsZero() {
		st.StatementAt = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return st, nil
}

func toLot(op OpenPosition) (Lot, error) {
	qty, err := parseDecimal(op.Position)
	if err != nil {
		return Lot{}, fmt.Errorf("position: %w", err)
	}
	cost, err := parseDecimal(op.CostBasisMoney)
	if err != nil {
		return Lot{}, fmt.Errorf("costBasisMoney: %w", err)
	}

	openDate, err := parseFlexDate(op.OpenDateTime)
	if err != nil {
		openDate, err = parseFlexDate(op.ReportDate)
		if err != nil {
			return Lot{}, fmt.Errorf("no usable openDateTime or reportDate")
		}
	}

	return Lot{
		Conid:     op.Conid,
		OpenDate:  openDate,
		Quantity:  qty,
		CostBasis: cost.Abs(),
		Currency:  normalizeCurrency(op.Currency),
	}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// parseFlexDate accepts "YYYYMMDD", "YYYYMMDD;HHMMSS" and "YYYY-MM-DD".
func parseFlexDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ";, "); i >= 0 {
		s = s[:i]
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised flex date %q", s)
}

// normalizeCurrency fixes broker-specific codes (IBKR reports RUS for roubles).
func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "RUS" {
		return "RUB"
	}
	if c == "" {
		return "USD"
	}
	return c
}
