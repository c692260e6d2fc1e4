package config

import (
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func unsetAllConfigEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
}

func genDurationString() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		unit := rapid.SampledFrom([]string{"ms", "s", "m"}).Draw(t, "unit")
		val := rapid.IntRange(1, 600).Draw(t, "val")
		return fmt.Sprintf("%d%s", val, unit)
	})
}

func TestProperty_ValidConfigParsing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		funding := rapid.Float64Range(1, 1e9).Draw(t, "funding")
		slippage := rapid.Float64Range(0, 0.99).Draw(t, "slippage")
		feeRate := rapid.Float64Range(0, 0.1).Draw(t, "feeRate")
		allowShort := rapid.Bool().Draw(t, "allowShort")
		delay := genDurationString().Draw(t, "delay")

		os.Setenv("FUNDING", strconv.FormatFloat(funding, 'g', -1, 64))
		os.Setenv("SLIPPAGE", strconv.FormatFloat(slippage, 'g', -1, 64))
		os.Setenv("FEE_RATE", strconv.FormatFloat(feeRate, 'g', -1, 64))
		os.Setenv("PERCENT_ALLOW_SHORT", strconv.FormatBool(allowShort))
		os.Setenv("SIGNAL_DELAY", delay)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error for valid inputs: %v", err)
		}

		if cfg.Funding != funding {
			t.Fatalf("Funding = %g, want %g", cfg.Funding, funding)
		}
		if cfg.Slippage != slippage {
			t.Fatalf("Slippage = %g, want %g", cfg.Slippage, slippage)
		}
		if cfg.FeeRate != feeRate {
			t.Fatalf("FeeRate = %g, want %g", cfg.FeeRate, feeRate)
		}
		if cfg.PercentAllowShort != allowShort {
			t.Fatalf("PercentAllowShort = %v, want %v", cfg.PercentAllowShort, allowShort)
		}
		wantDelay, _ := time.ParseDuration(delay)
		if cfg.SignalDelay != wantDelay {
			t.Fatalf("SignalDelay = %v, want %v", cfg.SignalDelay, wantDelay)
		}
	})
}

func TestProperty_OutOfRangeSlippageReturnsError(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		bad := rapid.OneOf(
			rapid.Float64Range(1, 100),
			rapid.Float64Range(-100, -0.0001),
		).Draw(t, "slippage")
		os.Setenv("SLIPPAGE", strconv.FormatFloat(bad, 'g', -1, 64))

		if _, err := Load(); err == nil {
			t.Fatalf("Load() should return error for SLIPPAGE=%g", bad)
		}
	})
}
