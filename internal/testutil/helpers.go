package testutil

import (
	"database/sql"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ratelimit"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/secret"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
)

// TestEncryptionKey is the secret used for the IBKR token box in tests.
const TestEncryptionKey = "test-encryption-key"

// Services bundles every service wired against one test database and the
// fake upstream providers.
type Services struct {
	Currency   *service.CurrencyService
	Resolver   *service.TickerResolver
	Prices     *service.PriceService
	Valuation  *service.ValuationService
	Portfolio  *service.PortfolioService
	Benchmark  *service.BenchmarkService
	IbkrConfig *service.IbkrConfigService
	Sync       *service.SyncService
	System     *service.SystemService
	Allocation *service.AllocationService
	Gate       *service.MarketGate

	Rates  *FakeRateProvider
	Market *FakeMarketData
	Lots   *FakeLotSource
}

// NewTestServices wires the service graph the same way the server does,
// with in-memory providers and no rate limiting. Nil fakes are replaced by
// empty ones.
//
// Example usage:
//
//	db := testutil.SetupTestDB(t)
//	svc := testutil.NewTestServices(t, db, testutil.NewFakeRateProvider(), testutil.NewFakeMarketData(), nil)
//	series, err := svc.Valuation.ValueOverTime(ctx, start, end)
func NewTestServices(t *testing.T, db *sql.DB, rates *FakeRateProvider, market *FakeMarketData, lots *FakeLotSource) *Services {
	t.Helper()

	if rates == nil {
		rates = NewFakeRateProvider()
	}
	if market == nil {
		market = NewFakeMarketData()
	}
	if lots == nil {
		lots = &FakeLotSource{}
	}

	box, err := secret.NewBox(TestEncryptionKey)
	if err != nil {
		t.Fatalf("Failed to create secret box: %v", err)
	}

	log := zerolog.Nop()
	securityRepo := repository.NewSecurityRepository(db)
	lotRepo := repository.NewTaxLotRepository(db)
	priceRepo := repository.NewMarketPriceRepository(db)
	rateRepo := repository.NewExchangeRateRepository(db)
	mappingRepo := repository.NewTickerMappingRepository(db)

	currency := service.NewCurrencyService(rateRepo, rates, log)
	resolver := service.NewTickerResolver(mappingRepo, market, log)
	prices := service.NewPriceService(priceRepo, rateRepo, resolver, market, log)
	valuation := service.NewValuationService(securityRepo, lotRepo, prices, currency, log)
	ibkrConfig := service.NewIbkrConfigService(repository.NewIbkrRepository(db), box, service.IbkrCredentials{}, log)
	gate := service.NewMarketGate()
	portfolio := service.NewPortfolioService(valuation, resolver, service.PortfolioOptions{}, log)

	return &Services{
		Currency:   currency,
		Resolver:   resolver,
		Prices:     prices,
		Valuation:  valuation,
		Portfolio:  portfolio,
		Benchmark:  service.NewBenchmarkService(repository.NewBenchmarkRepository(db), valuation, currency, market, gate, log),
		IbkrConfig: ibkrConfig,
		Sync: service.NewSyncService(db, securityRepo, lotRepo, priceRepo, ibkrConfig, lots,
			currency, prices, resolver, gate, ratelimit.Unlimited{}, log),
		System:     service.NewSystemService(db, map[string]bool{model.FeatureIbkrIntegration: true}),
		Allocation: service.NewAllocationService(portfolio, securityRepo, repository.NewAllocationRepository(db), log),
		Gate:       gate,
		Rates:      rates,
		Market:     market,
		Lots:       lots,
	}
}

// Date parses a YYYY-MM-DD date and panics on malformed input.
//
// Example usage:
//
//	d := testutil.Date("2024-01-02")
func Date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

// DaysAgo returns midnight UTC n days before today.
func DaysAgo(n int) time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -n)
}

// LastBusinessDay returns the latest weekday on or before d.
func LastBusinessDay(d time.Time) time.Time {
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// MakeID generates a UUID string for use in tests.
//
// Example usage:
//
//	id := testutil.MakeID()
//	// Returns: "550e8400-e29b-41d4-a716-446655440000"
func MakeID() string {
	return uuid.New().String()
}

// MakeConid generates a numeric broker contract id.
//
// Example usage:
//
//	conid := testutil.MakeConid()
//	// Returns: "48291034"
func MakeConid() string {
	const digits = "0123456789"
	result := make([]byte, 8)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = digits[rand.Intn(len(digits))]
	}
	if result[0] == '0' {
		result[0] = '1'
	}
	return string(result)
}

// MakeISIN generates a realistic ISIN code for testing.
//
// Example usage:
//
//	isin := testutil.MakeISIN("US")
//	// Returns: "US1A2B3C4D5E"
func MakeISIN(prefix string) string {
	if prefix == "" {
		prefix = "US"
	}
	return prefix + randomAlphanumeric(10)
}

// MakeSymbol generates a stock ticker symbol for testing.
//
// Example usage:
//
//	symbol := testutil.MakeSymbol("AAPL")
//	// Returns: "AAPL1A2B"
func MakeSymbol(base string) string {
	if base == "" {
		base = "TEST"
	}
	return base + randomAlphanumeric(4)
}

// MakeSymbolName generates a unique security description for testing.
//
// Example usage:
//
//	name := testutil.MakeSymbolName("Tech Symbol")
//	// Returns: "Tech Symbol XYZ789"
func MakeSymbolName(base string) string {
	if base == "" {
		base = "Symbol"
	}
	return base + " " + randomAlphanumeric(6)
}

// randomAlphanumeric generates a random alphanumeric string of specified length.
func randomAlphanumeric(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}

// CommonCurrencies contains currency codes the rate provider serves.
var CommonCurrencies = []string{"USD", "GBP", "CHF", "JPY", "CAD", "SEK", "AUD"}

// RandomCurrency returns a random currency from CommonCurrencies.
func RandomCurrency() string {
	//nolint:gosec // G404: Using math/rand for test data generation is acceptable
	return CommonCurrencies[rand.Intn(len(CommonCurrencies))]
}
