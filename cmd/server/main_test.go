package main

import (
	"testing"

	"aynpos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsShortSecretOutsideDev(t *testing.T) {
	err := validateSecurityConfig(config.Config{Env: "prod", JWTSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{Env: "prod", JWTSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigAllowsDevWithoutSecret(t *testing.T) {
	if err := validateSecurityConfig(config.Config{Env: "dev"}); err != nil {
		t.Fatalf("dev config should pass, got %v", err)
	}
}
