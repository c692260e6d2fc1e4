package config

import (
	"os"
	"testing"
	"time"
)

var allEnvKeys = []string{
	"STRATEGY_ID", "PORT", "LOG_LEVEL", "FUNDING", "FUNDING_DATE",
	"SLIPPAGE", "FEE_RATE", "MIN_QUANTITY", "MIN_ORDER_IMPACT",
	"PERCENT_ALLOW_SHORT", "TRACK_CAPITAL", "CASH_TOLERANCE",
	"REJECT_SAME_TIME_TRADES", "STORE", "SQLITE_DSN", "SIGNAL_DELAY",
	"ASK_TIMEOUT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
	"SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.StrategyID != "default" {
		t.Errorf("StrategyID = %q, want %q", cfg.StrategyID, "default")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Funding != 100_000 {
		t.Errorf("Funding = %g, want 100000", cfg.Funding)
	}
	if cfg.Slippage != 0 {
		t.Errorf("Slippage = %g, want 0", cfg.Slippage)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("Store = %q, want %q", cfg.Store, StoreMemory)
	}
	if cfg.PercentAllowShort {
		t.Error("PercentAllowShort must default to false")
	}
	if cfg.SignalDelay != 1*time.Second {
		t.Errorf("SignalDelay = %v, want 1s", cfg.SignalDelay)
	}
	if cfg.AskTimeout != 5*time.Second {
		t.Errorf("AskTimeout = %v, want 5s", cfg.AskTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRATEGY_ID", "momentum-1")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FUNDING", "250000.5")
	t.Setenv("FUNDING_DATE", "2024-01-15")
	t.Setenv("SLIPPAGE", "0.002")
	t.Setenv("FEE_RATE", "0.001")
	t.Setenv("MIN_QUANTITY", "0.5")
	t.Setenv("MIN_ORDER_IMPACT", "0.01")
	t.Setenv("PERCENT_ALLOW_SHORT", "true")
	t.Setenv("TRACK_CAPITAL", "true")
	t.Setenv("REJECT_SAME_TIME_TRADES", "true")
	t.Setenv("STORE", "sqlite")
	t.Setenv("SQLITE_DSN", "/tmp/sim.db")
	t.Setenv("SIGNAL_DELAY", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.StrategyID != "momentum-1" {
		t.Errorf("StrategyID = %q, want %q", cfg.StrategyID, "momentum-1")
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Funding != 250000.5 {
		t.Errorf("Funding = %g, want 250000.5", cfg.Funding)
	}
	if !cfg.FundingDate.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("FundingDate = %v, want 2024-01-15", cfg.FundingDate)
	}
	if cfg.Slippage != 0.002 {
		t.Errorf("Slippage = %g, want 0.002", cfg.Slippage)
	}
	if cfg.FeeRate != 0.001 {
		t.Errorf("FeeRate = %g, want 0.001", cfg.FeeRate)
	}
	if !cfg.PercentAllowShort || !cfg.TrackCapital || !cfg.RejectSameTimeTrades {
		t.Error("boolean flags not parsed")
	}
	if cfg.Store != StoreSQLite || cfg.SQLiteDSN != "/tmp/sim.db" {
		t.Errorf("Store = %q/%q, want sqlite//tmp/sim.db", cfg.Store, cfg.SQLiteDSN)
	}
	if cfg.SignalDelay != 500*time.Millisecond {
		t.Errorf("SignalDelay = %v, want 500ms", cfg.SignalDelay)
	}
}

func TestLoad_RFC3339FundingDate(t *testing.T) {
	clearEnv(t)
	t.Setenv("FUNDING_DATE", "2024-01-15T09:30:00Z")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.FundingDate.Equal(time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("FundingDate = %v", cfg.FundingDate)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"PORT", "not-a-number"},
		{"LOG_LEVEL", "verbose"},
		{"FUNDING", "lots"},
		{"FUNDING", "-100"},
		{"FUNDING", "0"},
		{"FUNDING_DATE", "yesterday"},
		{"SLIPPAGE", "1.5"},
		{"SLIPPAGE", "-0.1"},
		{"FEE_RATE", "-0.01"},
		{"MIN_QUANTITY", "-1"},
		{"MIN_ORDER_IMPACT", "1"},
		{"PERCENT_ALLOW_SHORT", "maybe"},
		{"TRACK_CAPITAL", "2x"},
		{"CASH_TOLERANCE", "-1e-6"},
		{"STORE", "postgres"},
		{"SIGNAL_DELAY", "not-a-duration"},
		{"ASK_TIMEOUT", "5"},
		{"SHUTDOWN_TIMEOUT", "soon"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
