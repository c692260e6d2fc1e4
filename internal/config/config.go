package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store selects the persistence backend.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds all runtime configuration for the simulator.
type Config struct {
	StrategyID string
	Port       int
	LogLevel   string

	Funding     float64
	FundingDate time.Time

	Slippage          float64
	FeeRate           float64
	MinQuantity       float64
	MinOrderImpact    float64
	PercentAllowShort bool

	TrackCapital  bool
	CashTolerance float64
	// RejectSameTimeTrades (REJECT_SAME_TIME_TRADES) makes the ledger
	// fail the second fill an asset books at one instant. It defaults
	// to off because one book tick can settle several orders on the
	// same asset at the same timestamp.
	RejectSameTimeTrades bool

	Store     string
	SQLiteDSN string

	SignalDelay     time.Duration
	AskTimeout      time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables (a .env file is
// honored when present), applies defaults, and validates values. It
// returns an error for any invalid value.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	funding, err := getFloat("FUNDING", 100_000)
	if err != nil {
		return nil, fmt.Errorf("invalid FUNDING: %w", err)
	}
	if funding <= 0 {
		return nil, fmt.Errorf("invalid FUNDING: %g, must be positive", funding)
	}

	fundingDate, err := getTime("FUNDING_DATE", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, fmt.Errorf("invalid FUNDING_DATE: %w", err)
	}

	slippage, err := getFloat("SLIPPAGE", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid SLIPPAGE: %w", err)
	}
	if slippage < 0 || slippage >= 1 {
		return nil, fmt.Errorf("invalid SLIPPAGE: %g, must be in [0,1)", slippage)
	}

	feeRate, err := getFloat("FEE_RATE", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid FEE_RATE: %w", err)
	}
	if feeRate < 0 {
		return nil, fmt.Errorf("invalid FEE_RATE: %g, must not be negative", feeRate)
	}

	minQuantity, err := getFloat("MIN_QUANTITY", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_QUANTITY: %w", err)
	}
	if minQuantity < 0 {
		return nil, fmt.Errorf("invalid MIN_QUANTITY: %g, must not be negative", minQuantity)
	}

	minOrderImpact, err := getFloat("MIN_ORDER_IMPACT", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_ORDER_IMPACT: %w", err)
	}
	if minOrderImpact < 0 || minOrderImpact >= 1 {
		return nil, fmt.Errorf("invalid MIN_ORDER_IMPACT: %g, must be in [0,1)", minOrderImpact)
	}

	percentAllowShort, err := getBool("PERCENT_ALLOW_SHORT", false)
	if err != nil {
		return nil, fmt.Errorf("invalid PERCENT_ALLOW_SHORT: %w", err)
	}

	trackCapital, err := getBool("TRACK_CAPITAL", false)
	if err != nil {
		return nil, fmt.Errorf("invalid TRACK_CAPITAL: %w", err)
	}

	cashTolerance, err := getFloat("CASH_TOLERANCE", 1e-6)
	if err != nil {
		return nil, fmt.Errorf("invalid CASH_TOLERANCE: %w", err)
	}
	if cashTolerance < 0 {
		return nil, fmt.Errorf("invalid CASH_TOLERANCE: %g, must not be negative", cashTolerance)
	}

	rejectSameTime, err := getBool("REJECT_SAME_TIME_TRADES", false)
	if err != nil {
		return nil, fmt.Errorf("invalid REJECT_SAME_TIME_TRADES: %w", err)
	}

	storeKind := getStr("STORE", StoreMemory)
	if storeKind != StoreMemory && storeKind != StoreSQLite {
		return nil, fmt.Errorf("invalid STORE: %q, must be %q or %q", storeKind, StoreMemory, StoreSQLite)
	}
	sqliteDSN := getStr("SQLITE_DSN", "tradesim.db")

	signalDelay, err := getDuration("SIGNAL_DELAY", 1*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNAL_DELAY: %w", err)
	}

	askTimeout, err := getDuration("ASK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid ASK_TIMEOUT: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		StrategyID:           getStr("STRATEGY_ID", "default"),
		Port:                 port,
		LogLevel:             logLevel,
		Funding:              funding,
		FundingDate:          fundingDate,
		Slippage:             slippage,
		FeeRate:              feeRate,
		MinQuantity:          minQuantity,
		MinOrderImpact:       minOrderImpact,
		PercentAllowShort:    percentAllowShort,
		TrackCapital:         trackCapital,
		CashTolerance:        cashTolerance,
		RejectSameTimeTrades: rejectSameTime,
		Store:                storeKind,
		SQLiteDSN:            sqliteDSN,
		SignalDelay:          signalDelay,
		AskTimeout:           askTimeout,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		ShutdownTimeout:      shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getTime accepts RFC3339 timestamps or plain dates.
func getTime(key string, defaultVal time.Time) (time.Time, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
