// Package config loads service configuration from environment variables,
// with a .env file picked up in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the service configuration. It is read once at startup and
// never mutated afterwards.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	CurveBase     decimal.Decimal
	CurveExponent decimal.Decimal
	FeeRate       decimal.Decimal

	FeeCreatorPct     decimal.Decimal
	FeePlatformPct    decimal.Decimal
	FeeLiquidityPct   decimal.Decimal
	CreatorFeeAccount string

	MaxCommitRetries   int
	MinTradeShares     decimal.Decimal
	StartingBalance    decimal.Decimal
	MarketSeedSupply   decimal.Decimal
	IdempotencyTTL     time.Duration
	TradeThrottleLimit int

	// Exposure caps in shares. Zero disables the corresponding check.
	MaxPositionShares decimal.Decimal
	MaxNetworkShares  decimal.Decimal
}

// Load reads configuration from environment variables, falling back to
// defaults suitable for local development.
func Load() (*Config, error) {
	// Load .env file if it exists.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		CurveBase:     getEnvAsDecimal("CURVE_BASE", "0.01"),
		CurveExponent: getEnvAsDecimal("CURVE_EXPONENT", "1.5"),
		FeeRate:       getEnvAsDecimal("FEE_RATE", "0.02"),

		FeeCreatorPct:     getEnvAsDecimal("FEE_CREATOR_PCT", "0.5"),
		FeePlatformPct:    getEnvAsDecimal("FEE_PLATFORM_PCT", "0.3"),
		FeeLiquidityPct:   getEnvAsDecimal("FEE_LIQUIDITY_PCT", "0.2"),
		CreatorFeeAccount: getEnv("CREATOR_FEE_ACCOUNT", "escrow"),

		MaxCommitRetries:   getEnvAsInt("MAX_COMMIT_RETRIES", 5),
		MinTradeShares:     getEnvAsDecimal("MIN_TRADE_SHARES", "0.01"),
		StartingBalance:    getEnvAsDecimal("STARTING_BALANCE", "1000"),
		MarketSeedSupply:   getEnvAsDecimal("MARKET_SEED_SUPPLY", "100"),
		IdempotencyTTL:     time.Duration(getEnvAsInt("IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
		TradeThrottleLimit: getEnvAsInt("TRADE_THROTTLE_LIMIT", 100),

		MaxPositionShares: getEnvAsDecimal("MAX_POSITION_SHARES", "0"),
		MaxNetworkShares:  getEnvAsDecimal("MAX_NETWORK_SHARES", "0"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for values the service cannot
// run with.
func (c *Config) Validate() error {
	if c.CurveBase.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("CURVE_BASE must be positive, got %s", c.CurveBase)
	}
	if c.CurveExponent.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("CURVE_EXPONENT must be positive, got %s", c.CurveExponent)
	}
	if c.FeeRate.IsNegative() || c.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("FEE_RATE must be in [0, 1), got %s", c.FeeRate)
	}

	one := decimal.NewFromInt(1)
	if c.FeeCreatorPct.IsNegative() || c.FeePlatformPct.IsNegative() || c.FeeLiquidityPct.IsNegative() {
		return fmt.Errorf("fee split proportions must be non-negative")
	}
	if !c.FeeCreatorPct.Add(c.FeePlatformPct).Add(c.FeeLiquidityPct).Equal(one) {
		return fmt.Errorf("fee split proportions must sum to 1, got %s",
			c.FeeCreatorPct.Add(c.FeePlatformPct).Add(c.FeeLiquidityPct))
	}

	if c.MaxCommitRetries < 1 {
		return fmt.Errorf("MAX_COMMIT_RETRIES must be at least 1, got %d", c.MaxCommitRetries)
	}
	if c.MinTradeShares.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("MIN_TRADE_SHARES must be positive, got %s", c.MinTradeShares)
	}
	if c.StartingBalance.IsNegative() {
		return fmt.Errorf("STARTING_BALANCE cannot be negative, got %s", c.StartingBalance)
	}
	if c.MarketSeedSupply.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("MARKET_SEED_SUPPLY must be positive, got %s", c.MarketSeedSupply)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL_HOURS must be positive")
	}
	if c.MaxPositionShares.IsNegative() || c.MaxNetworkShares.IsNegative() {
		return fmt.Errorf("exposure caps cannot be negative")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if dec, err := decimal.NewFromString(value); err == nil {
			return dec
		}
	}
	dec, _ := decimal.NewFromString(defaultValue)
	return dec
}
