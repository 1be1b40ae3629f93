// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool
	Timezone string // IANA zone name for wall dates (default "UTC")

	Engine Engine
}

// Engine holds the rental-engine tunables. The engine reads nothing from
// process-global state; this record is injected at construction.
type Engine struct {
	ReturnPeriodDays      int             // purchase-return eligibility window
	RestockingFeePercent  decimal.Decimal // applied for EXCESS / WRONG_ITEM returns
	MinConditionForCredit string          // condition rating threshold for restock eligibility
	AutoApproveThreshold  decimal.Decimal // absolute return amount auto-approved without review
	GracePeriodDays       int             // late-fee-free days after rental end
	LateFeeMultiplier     decimal.Decimal // daily-rate multiplier for overdue days
	MaxExtensions         int             // per-rental extension cap
	SecurityDepositPct    decimal.Decimal // deposit fallback when the item has none
	DefaultTaxRatePct     decimal.Decimal // flat per-line tax rate
	OperationTimeout      time.Duration   // per-operation deadline
	AvailabilityCacheTTL  time.Duration   // availability snapshot lifetime
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("QM_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("QM_PORT", 8010),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Timezone: getEnv("QM_TIMEZONE", "UTC"),
		Engine:   loadEngineConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultEngine returns the reference engine configuration. Tests and tools
// that do not go through Load() start from this.
func DefaultEngine() Engine {
	return Engine{
		ReturnPeriodDays:      30,
		RestockingFeePercent:  decimal.NewFromInt(15),
		MinConditionForCredit: "C",
		AutoApproveThreshold:  decimal.NewFromInt(1000),
		GracePeriodDays:       1,
		LateFeeMultiplier:     decimal.RequireFromString("1.5"),
		MaxExtensions:         3,
		SecurityDepositPct:    decimal.NewFromInt(20),
		DefaultTaxRatePct:     decimal.NewFromInt(10),
		OperationTimeout:      30 * time.Second,
		AvailabilityCacheTTL:  60 * time.Second,
	}
}

// loadEngineConfig loads engine tunables from the environment, falling back
// to the reference defaults.
func loadEngineConfig() Engine {
	e := DefaultEngine()

	e.ReturnPeriodDays = getEnvAsInt("QM_RETURN_PERIOD_DAYS", e.ReturnPeriodDays)
	e.RestockingFeePercent = getEnvAsDecimal("QM_RESTOCKING_FEE_PERCENT", e.RestockingFeePercent)
	e.MinConditionForCredit = getEnv("QM_MIN_CONDITION_FOR_CREDIT", e.MinConditionForCredit)
	e.AutoApproveThreshold = getEnvAsDecimal("QM_AUTO_APPROVE_THRESHOLD", e.AutoApproveThreshold)
	e.GracePeriodDays = getEnvAsInt("QM_GRACE_PERIOD_DAYS", e.GracePeriodDays)
	e.LateFeeMultiplier = getEnvAsDecimal("QM_LATE_FEE_MULTIPLIER", e.LateFeeMultiplier)
	e.MaxExtensions = getEnvAsInt("QM_MAX_EXTENSIONS", e.MaxExtensions)
	e.SecurityDepositPct = getEnvAsDecimal("QM_SECURITY_DEPOSIT_PERCENT", e.SecurityDepositPct)
	e.DefaultTaxRatePct = getEnvAsDecimal("QM_DEFAULT_TAX_RATE", e.DefaultTaxRatePct)

	if secs := getEnvAsInt("QM_OPERATION_TIMEOUT_SECONDS", 0); secs > 0 {
		e.OperationTimeout = time.Duration(secs) * time.Second
	}
	if secs := getEnvAsInt("QM_AVAILABILITY_CACHE_TTL_SECONDS", 0); secs > 0 {
		e.AvailabilityCacheTTL = time.Duration(secs) * time.Second
	}

	return e
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Engine.GracePeriodDays < 0 {
		return fmt.Errorf("grace period days must not be negative")
	}
	if c.Engine.MaxExtensions < 0 {
		return fmt.Errorf("max extensions must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone. Validate() has already checked
// the zone name, so failures here fall back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
