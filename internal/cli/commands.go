package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/request"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/validation"
)

// migrateCmd applies pending migrations and seeds the builtin mappings.
type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply database migrations" }
func (*migrateCmd) Usage() string {
	return `portfolioctl migrate

  Applies pending schema migrations and seeds the builtin ticker mappings.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	container, err := open(ctx)
	if err != nil {
		return fail("Error: %v", err)
	}
	defer container.Close()

	info, err := container.SystemService.CheckVersion(ctx)
	if err != nil {
		return fail("Error reading schema version: %v", err)
	}
	fmt.Fprintf(stdout, "schema version %s\n", info.DbVersion)
	return subcommands.ExitSuccess
}

// syncCmd runs a sync in the foreground.
type syncCmd struct {
	kind string
	days int
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "import lots and refresh market data" }
func (*syncCmd) Usage() string {
	return `portfolioctl sync [-kind all|ibkr|market_data|currency] [-days N]

  Runs a sync synchronously and prints its result as JSON.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", model.SyncKindAll, "sync kind: all, ibkr, market_data or currency")
	f.IntVar(&c.days, "days", 0, "days of prices and rates to backfill (0 uses the default)")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	kind := strings.ReplaceAll(c.kind, "-", "_")
	if !service.ValidSyncKind(kind) {
		return usageError("Unknown sync kind %q", c.kind)
	}
	if c.days < 0 || c.days > validation.MaxDaysBack {
		return usageError("-days must be between 0 and %d", validation.MaxDaysBack)
	}

	container, err := open(ctx)
	if err != nil {
		return fail("Error: %v", err)
	}
	defer container.Close()

	result, err := container.SyncService.Run(ctx, kind, service.SyncOptions{DaysBack: c.days})
	if err != nil {
		return fail("Error: %v", err)
	}
	if err := printJSON(result); err != nil {
		return fail("Error writing result: %v", err)
	}
	if result.Status == model.SyncStatusError || result.Status == model.SyncStatusRateLimited {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// mapTickerCmd stores a manual ticker mapping.
type mapTickerCmd struct {
	symbol   string
	exchange string
	ticker   string
	notes    string
}

func (*mapTickerCmd) Name() string     { return "map-ticker" }
func (*mapTickerCmd) Synopsis() string { return "map an IBKR symbol to a Yahoo ticker" }
func (*mapTickerCmd) Usage() string {
	return `portfolioctl map-ticker -symbol <symbol> -exchange <exchange> -ticker <ticker> [-notes <text>]

  Stores a manual mapping. Manual mappings are never overwritten by discovery.
`
}

func (c *mapTickerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "IBKR symbol")
	f.StringVar(&c.exchange, "exchange", "", "IBKR listing exchange")
	f.StringVar(&c.ticker, "ticker", "", "Yahoo Finance ticker")
	f.StringVar(&c.notes, "notes", "", "free-form notes")
}

func (c *mapTickerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	req := request.SetTickerMappingRequest{Symbol: c.symbol, Exchange: c.exchange, Ticker: c.ticker, Notes: c.notes}
	if err := validation.ValidateSetTickerMapping(req); err != nil {
		return usageError("Invalid mapping: %v", err)
	}

	container, err := open(ctx)
	if err != nil {
		return fail("Error: %v", err)
	}
	defer container.Close()

	mapping, err := container.TickerResolver.SetManualMapping(ctx, req.Symbol, req.Exchange, req.Ticker, req.Notes)
	if err != nil {
		return fail("Error saving mapping: %v", err)
	}
	fmt.Fprintf(stdout, "%s/%s -> %s (%s)\n", mapping.Symbol, mapping.Exchange, mapping.Ticker, mapping.Source)
	return subcommands.ExitSuccess
}

// purgePricesCmd removes cached prices of one security.
type purgePricesCmd struct {
	security string
	from     string
}

func (*purgePricesCmd) Name() string     { return "purge-prices" }
func (*purgePricesCmd) Synopsis() string { return "delete cached prices of a security" }
func (*purgePricesCmd) Usage() string {
	return `portfolioctl purge-prices -security <uuid> [-from YYYY-MM-DD]

  Deletes cached prices so the next sync fetches them again.
`
}

func (c *purgePricesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.security, "security", "", "security id")
	f.StringVar(&c.from, "from", "", "only delete prices on or after this date")
}

func (c *purgePricesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if err := validation.ValidateUUID(c.security); err != nil {
		return usageError("Invalid -security: %v", err)
	}
	from, err := validation.ParseOptionalDate("from", c.from)
	if err != nil {
		return usageError("Invalid -from: %v", err)
	}

	container, err := open(ctx)
	if err != nil {
		return fail("Error: %v", err)
	}
	defer container.Close()

	n, err := container.PriceService.DeletePrices(ctx, c.security, from)
	if err != nil {
		return fail("Error deleting prices: %v", err)
	}
	fmt.Fprintf(stdout, "deleted %d price(s)\n", n)
	return subcommands.ExitSuccess
}

// valueCmd prints the valuation series from the cache.
type valueCmd struct {
	start string
	end   string
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "print the portfolio value over time" }
func (*valueCmd) Usage() string {
	return `portfolioctl value [-start YYYY-MM-DD] [-end YYYY-MM-DD]

  Prints the daily valuation series as JSON. Defaults to the last 365 days.
`
}

func (c *valueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "start", "", "first date")
	f.StringVar(&c.end, "end", "", "last date (default today)")
}

func (c *valueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	start, end, err := validation.ParseDateRange(c.start, c.end, 365, time.Now())
	if err != nil {
		return usageError("Invalid range: %v", err)
	}

	container, err := open(ctx)
	if err != nil {
		return fail("Error: %v", err)
	}
	defer container.Close()

	series, err := container.ValuationService.ValueOverTime(ctx, start, end)
	if err != nil {
		return fail("Error valuing portfolio: %v", err)
	}
	if err := printJSON(series); err != nil {
		return fail("Error writing series: %v", err)
	}
	return subcommands.ExitSuccess
}
