package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %s", cfg.Addr)
	}
	if cfg.JWTTTL != 12*time.Hour {
		t.Fatalf("expected 12h token TTL, got %s", cfg.JWTTTL)
	}
	if cfg.DefaultTaxRatePercent != 11.0 {
		t.Fatalf("expected 11%% default tax, got %v", cfg.DefaultTaxRatePercent)
	}
	if !cfg.MetricsEnabled {
		t.Fatalf("expected metrics enabled by default")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("POS_ADDR", ":9999")
	t.Setenv("POS_ENV", "prod")
	t.Setenv("POS_DEFAULT_TAX_RATE_PERCENT", "5")
	t.Setenv("POS_JWT_TTL", "30m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("expected :9999, got %s", cfg.Addr)
	}
	if cfg.Env != "prod" {
		t.Fatalf("expected prod env, got %s", cfg.Env)
	}
	if cfg.DefaultTaxRatePercent != 5 {
		t.Fatalf("expected 5%% tax, got %v", cfg.DefaultTaxRatePercent)
	}
	if cfg.JWTTTL != 30*time.Minute {
		t.Fatalf("expected 30m token TTL, got %s", cfg.JWTTTL)
	}
}
