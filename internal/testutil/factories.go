package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
)

// SecurityBuilder provides a fluent interface for creating test securities.
//
// Example usage:
//
//	// Simple creation with defaults (USD, NASDAQ)
//	sec := testutil.NewSecurity().Build(t, db)
//
//	// Customized security
//	sec := testutil.NewSecurity().
//	    WithSymbol("VWRL").
//	    WithExchange("AEB").
//	    WithCurrency("EUR").
//	    Build(t, db)
type SecurityBuilder struct {
	ID          string
	Conid       string
	Symbol      string
	Description string
	ISIN        string
	Currency    string
	Exchange    string
}

// NewSecurity creates a SecurityBuilder with sensible defaults.
func NewSecurity() *SecurityBuilder {
	return &SecurityBuilder{
		ID:          MakeID(),
		Conid:       MakeConid(),
		Symbol:      MakeSymbol("TST"),
		Description: MakeSymbolName("Test Security"),
		ISIN:        MakeISIN("US"),
		Currency:    "USD",
		Exchange:    "NASDAQ",
	}
}

// WithID sets a custom ID.
func (b *SecurityBuilder) WithID(id string) *SecurityBuilder {
	b.ID = id
	return b
}

// WithConid sets the broker contract id.
func (b *SecurityBuilder) WithConid(conid string) *SecurityBuilder {
	b.Conid = conid
	return b
}

// WithSymbol sets the broker symbol.
func (b *SecurityBuilder) WithSymbol(symbol string) *SecurityBuilder {
	b.Symbol = symbol
	return b
}

// WithExchange sets the listing exchange.
func (b *SecurityBuilder) WithExchange(exchange string) *SecurityBuilder {
	b.Exchange = exchange
	return b
}

// WithCurrency sets the trading currency.
func (b *SecurityBuilder) WithCurrency(currency string) *SecurityBuilder {
	b.Currency = currency
	return b
}

// WithISIN sets the ISIN.
func (b *SecurityBuilder) WithISIN(isin string) *SecurityBuilder {
	b.ISIN = isin
	return b
}

// Build creates the security in the database and returns it.
func (b *SecurityBuilder) Build(t *testing.T, db *sql.DB) model.Security {
	t.Helper()

	query := `
		INSERT INTO security (id, conid, symbol, description, isin, currency, exchange, asset_category)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'STK')
	`

	_, err := db.Exec(query, b.ID, b.Conid, b.Symbol, b.Description, b.ISIN, b.Currency, b.Exchange)
	if err != nil {
		t.Fatalf("Failed to create test security: %v", err)
	}

	return model.Security{
		ID:            b.ID,
		Conid:         b.Conid,
		Symbol:        b.Symbol,
		Description:   b.Description,
		ISIN:          b.ISIN,
		Currency:      b.Currency,
		Exchange:      b.Exchange,
		AssetCategory: "STK",
	}
}

// TaxLotBuilder provides a fluent interface for creating test lots.
//
// Example usage:
//
//	lot := testutil.NewTaxLot(sec.ID).
//	    WithOpenDate(testutil.Date("2024-01-02")).
//	    WithQuantity(10).
//	    WithCostBasis(1000, 920).
//	    Build(t, db)
type TaxLotBuilder struct {
	ID           string
	SecurityID   string
	OpenDate     time.Time
	CloseDate    *time.Time
	Quantity     float64
	CostBasis    float64
	CostBasisEUR float64
}

// NewTaxLot creates a TaxLotBuilder for securityID: 10 units costing 1000 (EUR 1000)
// opened on 2024-01-02.
func NewTaxLot(securityID string) *TaxLotBuilder {
	return &TaxLotBuilder{
		ID:           MakeID(),
		SecurityID:   securityID,
		OpenDate:     Date("2024-01-02"),
		Quantity:     10,
		CostBasis:    1000,
		CostBasisEUR: 1000,
	}
}

// WithOpenDate sets the open date.
func (b *TaxLotBuilder) WithOpenDate(d time.Time) *TaxLotBuilder {
	b.OpenDate = d
	return b
}

// WithQuantity sets the quantity.
func (b *TaxLotBuilder) WithQuantity(q float64) *TaxLotBuilder {
	b.Quantity = q
	return b
}

// WithCostBasis sets the cost in security currency and in EUR.
func (b *TaxLotBuilder) WithCostBasis(cost, costEUR float64) *TaxLotBuilder {
	b.CostBasis = cost
	b.CostBasisEUR = costEUR
	return b
}

// ClosedOn marks the lot closed on d.
func (b *TaxLotBuilder) ClosedOn(d time.Time) *TaxLotBuilder {
	b.CloseDate = &d
	return b
}

// Build creates the lot in the database and returns it.
func (b *TaxLotBuilder) Build(t *testing.T, db *sql.DB) model.TaxLot {
	t.Helper()

	var closeDate any
	if b.CloseDate != nil {
		closeDate = b.CloseDate.Format(model.DateLayout)
	}

	query := `
		INSERT INTO tax_lot (id, security_id, open_date, close_date, quantity, cost_basis, cost_basis_eur)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, b.ID, b.SecurityID, b.OpenDate.Format(model.DateLayout), closeDate,
		b.Quantity, b.CostBasis, b.CostBasisEUR)
	if err != nil {
		t.Fatalf("Failed to create test tax lot: %v", err)
	}

	return model.TaxLot{
		ID:           b.ID,
		SecurityID:   b.SecurityID,
		OpenDate:     b.OpenDate,
		CloseDate:    b.CloseDate,
		Quantity:     b.Quantity,
		CostBasis:    b.CostBasis,
		CostBasisEUR: b.CostBasisEUR,
	}
}

// CreatePrice stores one cached close for a security.
//
// Example usage:
//
//	testutil.CreatePrice(t, db, sec.ID, "2024-01-02", 101.5, "USD")
func CreatePrice(t *testing.T, db *sql.DB, securityID, date string, closePrice float64, currency string) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO market_price (id, security_id, date, close, currency, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`, MakeID(), securityID, date, closePrice, currency, model.SourceYahoo)
	if err != nil {
		t.Fatalf("Failed to create test price: %v", err)
	}
}

// CreatePrices stores a close for every date in closes.
func CreatePrices(t *testing.T, db *sql.DB, securityID, currency string, closes map[string]float64) {
	t.Helper()
	for date, c := range closes {
		CreatePrice(t, db, securityID, date, c, currency)
	}
}

// CreateRate stores one exchange rate with the given source.
//
// Example usage:
//
//	testutil.CreateRate(t, db, "2024-01-02", "USD", "EUR", 0.91, model.SourceFrankfurter)
func CreateRate(t *testing.T, db *sql.DB, date, from, to string, rate float64, source string) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO exchange_rate (id, date, from_currency, to_currency, rate, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`, MakeID(), date, from, to, rate, source)
	if err != nil {
		t.Fatalf("Failed to create test exchange rate: %v", err)
	}
}

// CreateMapping stores a ticker mapping.
//
// Example usage:
//
//	testutil.CreateMapping(t, db, "VWRL", "AEB", "VWRL.AS", model.MappingSourceManual)
func CreateMapping(t *testing.T, db *sql.DB, symbol, exchange, ticker, source string) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO ticker_mapping (id, symbol, exchange, ticker, source)
		VALUES (?, ?, ?, ?, ?)
	`, MakeID(), symbol, exchange, ticker, source)
	if err != nil {
		t.Fatalf("Failed to create test ticker mapping: %v", err)
	}
}

// GetRateRow reads a stored rate and its source, failing the test when absent.
func GetRateRow(t *testing.T, db *sql.DB, date, from, to string) (float64, string) {
	t.Helper()

	var rate float64
	var source string
	err := db.QueryRow(`
		SELECT rate, source FROM exchange_rate
		WHERE date = ? AND from_currency = ? AND to_currency = ?
	`, date, from, to).Scan(&rate, &source)
	if err != nil {
		t.Fatalf("Failed to read rate %s %s->%s: %v", date, from, to, err)
	}
	return rate, source
}
