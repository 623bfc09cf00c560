// Package di wires the database, the upstream clients and the services
// shared by the HTTP server and the operator CLI.
package di

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/alphavantage"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/config"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/database"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/frankfurter"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ibkr"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/ratelimit"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/scheduler"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/secret"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/yahoo"
)

// syncJobTimeout bounds one scheduled sync.
const syncJobTimeout = 2 * time.Hour

// Container holds every long-lived dependency of the application.
type Container struct {
	DB *sql.DB

	Limiter      ratelimit.Limiter
	Yahoo        *yahoo.FinanceClient
	Frankfurter  *frankfurter.Client
	Ibkr         *ibkr.FinanceClient
	AlphaVantage *alphavantage.Client // nil without an API key

	SystemService     *service.SystemService
	CurrencyService   *service.CurrencyService
	TickerResolver    *service.TickerResolver
	PriceService      *service.PriceService
	ValuationService  *service.ValuationService
	PortfolioService  *service.PortfolioService
	BenchmarkService  *service.BenchmarkService
	IbkrConfig        *service.IbkrConfigService
	SyncService       *service.SyncService
	AllocationService *service.AllocationService
}

// Close releases the database.
func (c *Container) Close() error {
	return c.DB.Close()
}

// APIServices returns the services the router exposes.
func (c *Container) APIServices() api.Services {
	return api.Services{
		System:     c.SystemService,
		Portfolio:  c.PortfolioService,
		Valuation:  c.ValuationService,
		Benchmark:  c.BenchmarkService,
		Prices:     c.PriceService,
		Resolver:   c.TickerResolver,
		IbkrConfig: c.IbkrConfig,
		Sync:       c.SyncService,
		Allocation: c.AllocationService,
	}
}

// Wire opens and migrates the database, seeds the builtin ticker mappings
// and builds the service graph.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := openDatabase(ctx, cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}

	container, err := wireServices(db, cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	seeded, err := container.TickerResolver.SeedBuiltins(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed ticker mappings: %w", err)
	}
	log.Debug().Int("mappings", seeded).Msg("builtin ticker mappings seeded")
	return container, nil
}

func openDatabase(ctx context.Context, path string, log zerolog.Logger) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	version, err := database.Migrate(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("path", path).Int64("schema_version", version).Msg("database ready")
	return db, nil
}

func wireServices(db *sql.DB, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	md := cfg.MarketData
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: md.RequestsPerMinute,
		Burst:             md.Burst,
		MinCallDelay:      md.MinCallDelay,
		MaxCallDelay:      md.MaxCallDelay,
		MinSecurityDelay:  md.MinSecurityDelay,
		MaxSecurityDelay:  md.MaxSecurityDelay,
	})

	var box *secret.Box
	if cfg.IBKR.EncryptionKey != "" {
		var err error
		box, err = secret.NewBox(cfg.IBKR.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load encryption key: %w", err)
		}
	} else {
		log.Warn().Msg("IBKR_ENCRYPTION_KEY not set, flex tokens cannot be stored")
	}

	c := &Container{
		DB:          db,
		Limiter:     limiter,
		Yahoo:       yahoo.NewFinanceClient(md.YahooBaseURL, md.HTTPTimeout, limiter, log),
		Frankfurter: frankfurter.NewClient(md.FrankfurterBaseURL, md.HTTPTimeout, limiter, log),
		Ibkr:        ibkr.NewFinanceClient(cfg.IBKR.BaseURL, log),
	}

	securityRepo := repository.NewSecurityRepository(db)
	lotRepo := repository.NewTaxLotRepository(db)
	priceRepo := repository.NewMarketPriceRepository(db)
	rateRepo := repository.NewExchangeRateRepository(db)

	c.SystemService = service.NewSystemService(db, map[string]bool{
		model.FeatureIbkrIntegration: box != nil || (cfg.IBKR.FlexToken != "" && cfg.IBKR.FlexQueryID != ""),
		model.FeatureScheduler:       cfg.Sync.SchedulerEnabled,
		model.FeatureFallbackPrices:  md.AlphaVantageKey != "",
	})
	c.CurrencyService = service.NewCurrencyService(rateRepo, c.Frankfurter, log)
	c.TickerResolver = service.NewTickerResolver(repository.NewTickerMappingRepository(db), c.Yahoo, log)
	c.PriceService = service.NewPriceService(priceRepo, rateRepo, c.TickerResolver, c.Yahoo, log)
	if md.AlphaVantageKey != "" {
		avLimiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: md.AlphaVantageRate, Burst: 1})
		c.AlphaVantage = alphavantage.NewClient(md.AlphaVantageURL, md.AlphaVantageKey, md.HTTPTimeout, avLimiter, log)
		c.PriceService.WithFallback(c.AlphaVantage)
		log.Info().Int("requests_per_minute", md.AlphaVantageRate).Msg("alpha vantage fallback enabled")
	}
	c.ValuationService = service.NewValuationService(securityRepo, lotRepo, c.PriceService, c.CurrencyService, log)
	c.PortfolioService = service.NewPortfolioService(c.ValuationService, c.TickerResolver, service.PortfolioOptions{
		RiskFreeRate:      cfg.Metrics.RiskFreeRate,
		ConcentrationTopN: cfg.Metrics.ConcentrationTopN,
	}, log)
	c.AllocationService = service.NewAllocationService(c.PortfolioService, securityRepo, repository.NewAllocationRepository(db), log)
	gate := service.NewMarketGate()
	c.BenchmarkService = service.NewBenchmarkService(repository.NewBenchmarkRepository(db),
		c.ValuationService, c.CurrencyService, c.Yahoo, gate, log)
	c.IbkrConfig = service.NewIbkrConfigService(repository.NewIbkrRepository(db), box, service.IbkrCredentials{
		FlexToken:   cfg.IBKR.FlexToken,
		FlexQueryID: cfg.IBKR.FlexQueryID,
	}, log)
	c.SyncService = service.NewSyncService(db, securityRepo, lotRepo, priceRepo, c.IbkrConfig, c.Ibkr,
		c.CurrencyService, c.PriceService, c.TickerResolver, gate, limiter, log)
	return c, nil
}

// RegisterJobs adds the scheduled syncs: a full sync on FullSyncSchedule and
// a market-data refresh on each MarketSyncSchedule entry.
func RegisterJobs(sched *scheduler.Scheduler, c *Container, cfg *config.Config, log zerolog.Logger) error {
	full := scheduler.NewSyncJob(c.SyncService, model.SyncKindAll, cfg.Sync.FullSyncDaysBack, syncJobTimeout, log)
	if err := sched.AddJob(cfg.Sync.FullSyncSchedule, full); err != nil {
		return fmt.Errorf("failed to schedule full sync: %w", err)
	}
	for _, schedule := range cfg.Sync.MarketSyncSchedule {
		job := scheduler.NewSyncJob(c.SyncService, model.SyncKindMarketData, cfg.Sync.MarketSyncDaysBack, syncJobTimeout, log)
		if err := sched.AddJob(schedule, job); err != nil {
			return fmt.Errorf("failed to schedule market sync %q: %w", schedule, err)
		}
	}
	return nil
}
