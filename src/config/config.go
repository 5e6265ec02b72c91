package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"paper-exchange/src/ledger"
)

type Config struct {
	Account AccountConfig `yaml:"account"`
	Server  ServerConfig  `yaml:"server"`
	Journal JournalConfig `yaml:"journal"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

// AccountConfig seeds the ledger. Cash is in minor units, fee rates are
// decimal strings such as "0.0005".
type AccountConfig struct {
	ID          int64            `yaml:"id"`
	Cash        int64            `yaml:"cash"`
	BuyFeeRate  string           `yaml:"buy_fee_rate"`
	SellFeeRate string           `yaml:"sell_fee_rate"`
	Positions   []PositionConfig `yaml:"positions"`
}

type PositionConfig struct {
	Code string `yaml:"code"`
	Qty  int64  `yaml:"qty"`
}

type ServerConfig struct {
	Port                   int           `yaml:"port"`
	ShutdownTimeout        time.Duration `yaml:"shutdown_timeout"`
	RateLimitMax           int           `yaml:"rate_limit_max"`
	RateLimitWindow        time.Duration `yaml:"rate_limit_window"`
	RateLimitDisabled      bool          `yaml:"rate_limit_disabled"`
	MaxConcurrentRequests  int64         `yaml:"max_concurrent_requests"`
	MaintenanceMode        bool          `yaml:"maintenance_mode"`
	RequestLoggingDisabled bool          `yaml:"request_logging_disabled"`
}

// JournalConfig points at the sqlite journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig points at the pebble snapshot directory. An empty path
// disables persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:          1,
			Cash:        1_000_000_000,
			BuyFeeRate:  "0.0005",
			SellFeeRate: "0.0005",
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			RateLimitMax:    100,
			RateLimitWindow: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional yaml file at
// path, the .env file in the working directory and the environment, in that
// order of increasing priority.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	envInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	envDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	envString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envFlag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "1" || v == "true"
		}
	}

	var port, rateMax int64 = int64(c.Server.Port), int64(c.Server.RateLimitMax)
	envInt64("PORT", &port)
	envInt64("RATE_LIMIT_MAX", &rateMax)
	c.Server.Port = int(port)
	c.Server.RateLimitMax = int(rateMax)

	envDuration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	envDuration("RATE_LIMIT_WINDOW", &c.Server.RateLimitWindow)
	envFlag("RATE_LIMIT_DISABLED", &c.Server.RateLimitDisabled)
	envInt64("MAX_CONCURRENT_REQUESTS", &c.Server.MaxConcurrentRequests)
	envFlag("MAINTENANCE_MODE", &c.Server.MaintenanceMode)
	envFlag("REQUEST_LOGGING_DISABLED", &c.Server.RequestLoggingDisabled)

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FILE", &c.Log.File)
	envString("LOG_FORMAT", &c.Log.Format)

	envInt64("ACCOUNT_ID", &c.Account.ID)
	envInt64("ACCOUNT_CASH", &c.Account.Cash)
	envString("BUY_FEE_RATE", &c.Account.BuyFeeRate)
	envString("SELL_FEE_RATE", &c.Account.SellFeeRate)
	envString("JOURNAL_PATH", &c.Journal.Path)
	envString("STORE_PATH", &c.Store.Path)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	if c.Account.ID <= 0 {
		return fmt.Errorf("account.id must be positive")
	}
	if c.Account.Cash < 0 {
		return fmt.Errorf("account.cash must not be negative")
	}
	for _, rate := range []struct{ name, value string }{
		{"account.buy_fee_rate", c.Account.BuyFeeRate},
		{"account.sell_fee_rate", c.Account.SellFeeRate},
	} {
		d, err := decimal.NewFromString(rate.value)
		if err != nil {
			return fmt.Errorf("%s: %w", rate.name, err)
		}
		if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be in [0, 1)", rate.name)
		}
	}
	seen := make(map[string]bool, len(c.Account.Positions))
	for _, p := range c.Account.Positions {
		if p.Code == "" || p.Qty < 0 {
			return fmt.Errorf("invalid position %q qty=%d", p.Code, p.Qty)
		}
		if seen[p.Code] {
			return fmt.Errorf("duplicate position %q", p.Code)
		}
		seen[p.Code] = true
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if !c.Server.RateLimitDisabled && (c.Server.RateLimitMax <= 0 || c.Server.RateLimitWindow < time.Second) {
		return fmt.Errorf("rate limit needs max > 0 and a window of at least 1s")
	}
	if c.Log.Format != "json" && c.Log.Format != "pretty" {
		return fmt.Errorf("log.format must be 'json' or 'pretty'")
	}
	return nil
}

// LedgerConfig converts the account section for ledger.New. Call Validate
// first.
func (c *Config) LedgerConfig() ledger.Config {
	positions := make([]ledger.Position, 0, len(c.Account.Positions))
	for _, p := range c.Account.Positions {
		positions = append(positions, ledger.Position{Code: p.Code, Origin: p.Qty, Available: p.Qty})
	}
	return ledger.Config{
		AccountID:   c.Account.ID,
		Cash:        c.Account.Cash,
		BuyFeeRate:  decimal.RequireFromString(c.Account.BuyFeeRate),
		SellFeeRate: decimal.RequireFromString(c.Account.SellFeeRate),
		Positions:   positions,
	}
}
