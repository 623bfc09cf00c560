package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	CORS       CORSConfig
	Logging    LoggingConfig
	IBKR       IBKRConfig
	MarketData MarketDataConfig
	Sync       SyncConfig
	Metrics    MetricsConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// IBKRConfig holds the flex query credentials. Values stored through the API
// take precedence over the environment.
type IBKRConfig struct {
	FlexToken     string
	FlexQueryID   string
	EncryptionKey string
	BaseURL       string
}

// MarketDataConfig controls upstream providers and how hard we hit them.
type MarketDataConfig struct {
	YahooBaseURL       string
	FrankfurterBaseURL string
	AlphaVantageURL    string
	AlphaVantageKey    string // fallback provider is off when empty
	AlphaVantageRate   int    // requests per minute
	HTTPTimeout        time.Duration
	RequestsPerMinute  int
	Burst              int
	MinCallDelay       time.Duration
	MaxCallDelay       time.Duration
	MinSecurityDelay   time.Duration
	MaxSecurityDelay   time.Duration
}

// SyncConfig controls scheduled syncs.
type SyncConfig struct {
	SchedulerEnabled   bool
	FullSyncSchedule   string
	MarketSyncSchedule []string
	FullSyncDaysBack   int
	MarketSyncDaysBack int
}

// MetricsConfig holds parameters of the risk metrics.
type MetricsConfig struct {
	RiskFreeRate      float64
	ConcentrationTopN int
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var p parser

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/portfolio_tracker.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost")),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: p.bool("LOG_PRETTY", false),
		},
		IBKR: IBKRConfig{
			FlexToken:     getEnv("IBKR_FLEX_TOKEN", ""),
			FlexQueryID:   getEnv("IBKR_FLEX_QUERY_ID", ""),
			EncryptionKey: getEnv("IBKR_ENCRYPTION_KEY", ""),
			BaseURL:       getEnv("IBKR_FLEX_BASE_URL", "https://ndcdyn.interactivebrokers.com/AccountManagement/FlexWebService"),
		},
		MarketData: MarketDataConfig{
			YahooBaseURL:       getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			FrankfurterBaseURL: getEnv("FRANKFURTER_BASE_URL", "https://api.frankfurter.app"),
			AlphaVantageURL:    getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co"),
			AlphaVantageKey:    getEnv("ALPHA_VANTAGE_API_KEY", ""),
			AlphaVantageRate:   p.int("ALPHA_VANTAGE_REQUESTS_PER_MINUTE", 5),
			HTTPTimeout:        p.duration("MARKET_DATA_HTTP_TIMEOUT", 30*time.Second),
			RequestsPerMinute:  p.int("MARKET_DATA_REQUESTS_PER_MINUTE", 30),
			Burst:              p.int("MARKET_DATA_BURST", 1),
			MinCallDelay:       p.duration("MARKET_DATA_MIN_CALL_DELAY", 1*time.Second),
			MaxCallDelay:       p.duration("MARKET_DATA_MAX_CALL_DELAY", 3*time.Second),
			MinSecurityDelay:   p.duration("MARKET_DATA_MIN_SECURITY_DELAY", 5*time.Second),
			MaxSecurityDelay:   p.duration("MARKET_DATA_MAX_SECURITY_DELAY", 10*time.Second),
		},
		Sync: SyncConfig{
			SchedulerEnabled:   p.bool("SCHEDULER_ENABLED", true),
			FullSyncSchedule:   getEnv("SYNC_FULL_SCHEDULE", "0 8 * * *"),
			MarketSyncSchedule: splitList(getEnv("SYNC_MARKET_SCHEDULE", "0 15 * * *,0 22 * * *")),
			FullSyncDaysBack:   p.int("SYNC_FULL_DAYS_BACK", 730),
			MarketSyncDaysBack: p.int("SYNC_MARKET_DAYS_BACK", 7),
		},
		Metrics: MetricsConfig{
			RiskFreeRate:      p.float("RISK_FREE_RATE", 0.02),
			ConcentrationTopN: p.int("CONCENTRATION_TOP_N", 5),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	if config.MarketData.MinCallDelay > config.MarketData.MaxCallDelay ||
		config.MarketData.MinSecurityDelay > config.MarketData.MaxSecurityDelay {
		return nil, fmt.Errorf("invalid market data delays: minimum exceeds maximum")
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
