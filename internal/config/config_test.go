package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SAFV_CONFIG", "")
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Tier != domain.TierCommunity {
		t.Errorf("expected community tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "sqlite" || cfg.Cache.Type != "memory" || cfg.EventBus.Type != "channel" {
		t.Errorf("unexpected community stack %+v", cfg)
	}
	if cfg.Financial.PeriodsPerYear != 12 {
		t.Errorf("expected 12 periods per year, got %d", cfg.Financial.PeriodsPerYear)
	}
}

func TestLoadProTier(t *testing.T) {
	t.Setenv("SAFV_CONFIG", "")
	t.Setenv("SAFV_TIER", "PRO")

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tier != domain.TierPro || cfg.Repository.Driver != "postgres" || !cfg.Worker.Enabled {
		t.Errorf("unexpected pro config %+v", cfg)
	}
}

func TestLoadLayers(t *testing.T) {
	yamlPath := writeFile(t, "safv.yaml", `
server:
  port: 9090
cache:
  indexTtl: 2m
rateLimit:
  requests: 50
financial:
  periodsPerYear: 4
logging:
  level: warn
`)
	envPath := writeFile(t, "test.env", "SAFV_RATE_LIMIT_REQUESTS=25\nSAFV_LOG_LEVEL=error\n")

	t.Setenv("SAFV_LOG_LEVEL", "debug")
	t.Setenv("SAFV_TENANTS", "tenant-a, tenant-b,,")
	// Registers cleanup for the variable the .env file sets.
	t.Setenv("SAFV_RATE_LIMIT_REQUESTS", "")
	os.Unsetenv("SAFV_RATE_LIMIT_REQUESTS")

	cfg, err := Load(yamlPath, envPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected yaml port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Cache.IndexTTL != 2*time.Minute {
		t.Errorf("expected yaml index TTL 2m, got %v", cfg.Cache.IndexTTL)
	}
	if cfg.Financial.PeriodsPerYear != 4 {
		t.Errorf("expected yaml periods 4, got %d", cfg.Financial.PeriodsPerYear)
	}
	if cfg.RateLimit.Requests != 25 {
		t.Errorf("expected .env to override yaml, got %d", cfg.RateLimit.Requests)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected process env to win over .env, got %q", cfg.Logging.Level)
	}
	if len(cfg.Worker.TenantIDs) != 2 || cfg.Worker.TenantIDs[1] != "tenant-b" {
		t.Errorf("unexpected tenants %v", cfg.Worker.TenantIDs)
	}
	if cfg.RateLimit.WindowSeconds != 60 {
		t.Errorf("expected untouched default window, got %d", cfg.RateLimit.WindowSeconds)
	}
}

func TestLoadErrors(t *testing.T) {
	missingEnv := filepath.Join(t.TempDir(), "missing.env")

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), missingEnv); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("BadYAML", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "server: [")
		if _, err := Load(path, missingEnv); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("BadEnvValue", func(t *testing.T) {
		t.Setenv("SAFV_PORT", "eighty")
		_, err := Load("", missingEnv)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("DebugFlag", func(t *testing.T) {
		t.Setenv("SAFV_DEBUG", "true")
		cfg, err := Load("", missingEnv)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level, got %q", cfg.Logging.Level)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"Port", func(c *domain.Config) { c.Server.Port = 0 }},
		{"Driver", func(c *domain.Config) { c.Repository.Driver = "mysql" }},
		{"Cache", func(c *domain.Config) { c.Cache.Type = "memcached" }},
		{"Bus", func(c *domain.Config) { c.EventBus.Type = "kafka" }},
		{"LogFormat", func(c *domain.Config) { c.Logging.Format = "xml" }},
		{"Periods", func(c *domain.Config) { c.Financial.PeriodsPerYear = 400 }},
		{"Multiplier", func(c *domain.Config) { c.Financial.DefaultMultiplier = -1 }},
		{"RateLimit", func(c *domain.Config) { c.RateLimit.Requests = 0 }},
		{"Throttle", func(c *domain.Config) { c.Worker.JobsPerSecond = -1 }},
	}

	if err := Validate(domain.DefaultConfig()); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
