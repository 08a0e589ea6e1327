package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.RateLimitRPS != 5 || cfg.Server.RateLimitBurst != 10 {
		t.Errorf("unexpected rate limit defaults: rps=%d burst=%d",
			cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}
	if cfg.Dispatch.PollInterval != 5*time.Minute {
		t.Errorf("expected default poll interval 5m, got %v", cfg.Dispatch.PollInterval)
	}
	if cfg.Dispatch.ExpiryLookahead != 30*time.Minute {
		t.Errorf("expected default expiry lookahead 30m, got %v", cfg.Dispatch.ExpiryLookahead)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "20")
	t.Setenv("RATE_LIMIT_BURST", "40")
	t.Setenv("POLL_INTERVAL", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.RateLimitRPS != 20 || cfg.Server.RateLimitBurst != 40 {
		t.Errorf("env overrides not applied: rps=%d burst=%d",
			cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}
	if cfg.Dispatch.PollInterval != 2*time.Minute {
		t.Errorf("expected poll interval 2m, got %v", cfg.Dispatch.PollInterval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "SERVER_PORT", "70000"},
		{"zero rate limit", "RATE_LIMIT_RPS", "0"},
		{"zero burst", "RATE_LIMIT_BURST", "0"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"poll too short", "POLL_INTERVAL", "10s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected Load to reject %s=%s", tt.key, tt.value)
			}
		})
	}
}
