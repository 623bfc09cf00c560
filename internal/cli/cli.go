// Package cli implements the portfolioctl subcommands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/config"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/di"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
)

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&migrateCmd{}, "database")
	c.Register(&syncCmd{}, "market data")
	c.Register(&mapTickerCmd{}, "market data")
	c.Register(&purgePricesCmd{}, "market data")
	c.Register(&valueCmd{}, "reports")
}

// open loads the configuration and wires the application. Logs go to
// stderr so that stdout carries only command output.
func open(ctx context.Context) (*di.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Pretty: true, Output: stderr})
	return di.Wire(ctx, cfg, log)
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

func usageError(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(stderr, format+"\n", args...)
	return subcommands.ExitUsageError
}
