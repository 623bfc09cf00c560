package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/handlers"
	custommiddleware "github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/middleware"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/config"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
)

// Services are the services the router exposes.
type Services struct {
	System     *service.SystemService
	Portfolio  *service.PortfolioService
	Valuation  *service.ValuationService
	Benchmark  *service.BenchmarkService
	Prices     *service.PriceService
	Resolver   *service.TickerResolver
	IbkrConfig *service.IbkrConfigService
	Sync       *service.SyncService
	Allocation *service.AllocationService
}

// NewRouter creates and configures the HTTP router
func NewRouter(svcs Services, cfg *config.Config, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(logger))
	r.Use(middleware.Recoverer)

	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	r.Route("/api", func(r chi.Router) {
		allocationHandler := handlers.NewAllocationHandler(svcs.Allocation)

		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(svcs.System)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/portfolio", func(r chi.Router) {
			portfolioHandler := handlers.NewPortfolioHandler(svcs.Portfolio, svcs.Valuation, svcs.Benchmark)
			r.Get("/value-over-time", portfolioHandler.ValueOverTime)
			r.Get("/summary", portfolioHandler.Summary)
			r.Get("/positions", portfolioHandler.Positions)
			r.Get("/annualized-return", portfolioHandler.AnnualizedReturn)
			r.Get("/benchmarks", portfolioHandler.Benchmarks)
			r.Get("/benchmark/{key}", portfolioHandler.CompareBenchmark)
			r.Get("/allocation", allocationHandler.Allocation)
		})

		r.With(custommiddleware.APIKeyMiddleware, custommiddleware.ValidateUUIDMiddleware).
			Put("/securities/{uuid}/allocation", allocationHandler.SetSecurityAllocation)

		r.Route("/sync", func(r chi.Router) {
			syncHandler := handlers.NewSyncHandler(svcs.Sync)
			r.Get("/status", syncHandler.Status)
			r.With(custommiddleware.APIKeyMiddleware).Post("/{kind}", syncHandler.Trigger)
		})

		marketDataHandler := handlers.NewMarketDataHandler(svcs.Prices, svcs.Resolver)
		r.Route("/market-data", func(r chi.Router) {
			r.Get("/status", marketDataHandler.Status)
			r.With(custommiddleware.APIKeyMiddleware, custommiddleware.ValidateUUIDMiddleware).
				Delete("/prices/{uuid}", marketDataHandler.DeletePrices)
		})

		r.Route("/ticker-mappings", func(r chi.Router) {
			r.Get("/", marketDataHandler.TickerMappings)
			r.With(custommiddleware.APIKeyMiddleware).Put("/", marketDataHandler.SetTickerMapping)
		})

		r.Route("/ibkr", func(r chi.Router) {
			ibkrHandler := handlers.NewIbkrHandler(svcs.IbkrConfig)
			r.Get("/config", ibkrHandler.GetConfig)
			r.With(custommiddleware.APIKeyMiddleware).Put("/config", ibkrHandler.UpdateConfig)
		})
	})

	return r
}
