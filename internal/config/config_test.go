package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.CurveBase.String() != "0.01" {
		t.Errorf("expected default curve base 0.01, got %s", cfg.CurveBase)
	}
	if cfg.CurveExponent.String() != "1.5" {
		t.Errorf("expected default exponent 1.5, got %s", cfg.CurveExponent)
	}
	if cfg.FeeRate.String() != "0.02" {
		t.Errorf("expected default fee rate 0.02, got %s", cfg.FeeRate)
	}
	if cfg.MaxCommitRetries != 5 {
		t.Errorf("expected default max retries 5, got %d", cfg.MaxCommitRetries)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Errorf("expected default idempotency TTL 24h, got %s", cfg.IdempotencyTTL)
	}
	if cfg.CreatorFeeAccount != "escrow" {
		t.Errorf("expected default creator fee account escrow, got %s", cfg.CreatorFeeAccount)
	}
	if !cfg.MaxPositionShares.IsZero() || !cfg.MaxNetworkShares.IsZero() {
		t.Errorf("expected exposure caps disabled by default, got %s/%s",
			cfg.MaxPositionShares, cfg.MaxNetworkShares)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CURVE_EXPONENT", "2")
	t.Setenv("STARTING_BALANCE", "2500")
	t.Setenv("IDEMPOTENCY_TTL_HOURS", "48")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.CurveExponent.String() != "2" {
		t.Errorf("expected exponent 2, got %s", cfg.CurveExponent)
	}
	if cfg.StartingBalance.String() != "2500" {
		t.Errorf("expected starting balance 2500, got %s", cfg.StartingBalance)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Errorf("expected TTL 48h, got %s", cfg.IdempotencyTTL)
	}
}

func TestLoad_MalformedNumberFallsBack(t *testing.T) {
	t.Setenv("FEE_RATE", "not-a-number")
	t.Setenv("MAX_COMMIT_RETRIES", "lots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.FeeRate.String() != "0.02" {
		t.Errorf("malformed FEE_RATE should fall back to 0.02, got %s", cfg.FeeRate)
	}
	if cfg.MaxCommitRetries != 5 {
		t.Errorf("malformed MAX_COMMIT_RETRIES should fall back to 5, got %d", cfg.MaxCommitRetries)
	}
}

func TestLoad_RejectsBadFeeSplit(t *testing.T) {
	t.Setenv("FEE_CREATOR_PCT", "0.6")
	t.Setenv("FEE_PLATFORM_PCT", "0.3")
	t.Setenv("FEE_LIQUIDITY_PCT", "0.3")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for fee split not summing to 1")
	} else if !strings.Contains(err.Error(), "sum to 1") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_RejectsBadCurve(t *testing.T) {
	t.Setenv("CURVE_BASE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero curve base")
	}
}

func TestLoad_RejectsFeeRateAboveOne(t *testing.T) {
	t.Setenv("FEE_RATE", "1.5")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for fee rate above 1")
	}
}

func TestLoad_RejectsNegativeExposureCap(t *testing.T) {
	t.Setenv("MAX_POSITION_SHARES", "-10")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative exposure cap")
	}
}
