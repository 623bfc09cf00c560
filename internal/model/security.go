package model

import "time"

// Security is an instrument reported by the broker. Conid is the broker's
// contract id and is the natural key used during import.
type Security struct {
	ID            string    `json:"id"`
	Conid         string    `json:"conid"`
	Symbol        string    `json:"symbol"`
	Description   string    `json:"description"`
	ISIN          string    `json:"isin,omitempty"`
	Currency      string    `json:"currency"`
	Exchange      string    `json:"exchange"`
	AssetCategory string    `json:"assetCategory"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TaxLot is one acquisition of a security. CostBasis is in the security's
// currency, CostBasisEUR is fixed at import time using the open date's rate.
type TaxLot struct {
	ID           string     `json:"id"`
	SecurityID   string     `json:"securityId"`
	OpenDate     time.Time  `json:"openDate"`
	CloseDate    *time.Time `json:"closeDate,omitempty"`
	Quantity     float64    `json:"quantity"`
	CostBasis    float64    `json:"costBasis"`
	CostBasisEUR float64    `json:"costBasisEur"`
}

// IsOpenAsOf reports whether the lot is held on date d.
// A lot closed on d is no longer open on d.
func (l TaxLot) IsOpenAsOf(d time.Time) bool {
	d = DateOf(d)
	if DateOf(l.OpenDate).After(d) {
		return false
	}
	return l.CloseDate == nil || DateOf(*l.CloseDate).After(d)
}
