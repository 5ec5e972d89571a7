// Package config loads the SAFV configuration.
//
// Values are layered: tier defaults, then an optional YAML file, then .env
// files, then SAFV_* environment variables. Later layers win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/safv/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SAFV_"

// ErrInvalidConfig is returned when the resulting configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load builds the configuration. path may be empty, in which case SAFV_CONFIG
// is consulted. envFiles default to ".env"; missing files are skipped.
func Load(path string, envFiles ...string) (*domain.Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	cfg := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv(EnvPrefix+"TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type envReader struct {
	err error
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || e.err != nil {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.err = fmt.Errorf("%w: %s%s must be an integer", ErrInvalidConfig, EnvPrefix, name)
		return
	}
	*dst = n
}

func (e *envReader) float(name string, dst *float64) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || e.err != nil {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.err = fmt.Errorf("%w: %s%s must be a number", ErrInvalidConfig, EnvPrefix, name)
		return
	}
	*dst = f
}

func (e *envReader) bool(name string, dst *bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || e.err != nil {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.err = fmt.Errorf("%w: %s%s must be a boolean", ErrInvalidConfig, EnvPrefix, name)
		return
	}
	*dst = b
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || e.err != nil {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.err = fmt.Errorf("%w: %s%s must be a duration", ErrInvalidConfig, EnvPrefix, name)
		return
	}
	*dst = d
}

func (e *envReader) list(name string, dst *[]string) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return
	}
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func applyEnv(cfg *domain.Config) error {
	env := &envReader{}

	env.str("HOST", &cfg.Server.Host)
	env.int("PORT", &cfg.Server.Port)
	env.int("READ_TIMEOUT", &cfg.Server.ReadTimeout)
	env.int("WRITE_TIMEOUT", &cfg.Server.WriteTimeout)

	env.str("DB_DRIVER", &cfg.Repository.Driver)
	env.str("SQLITE_PATH", &cfg.Repository.SQLitePath)
	env.str("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	env.int("POSTGRES_PORT", &cfg.Repository.PostgresPort)
	env.str("POSTGRES_USER", &cfg.Repository.PostgresUser)
	env.str("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	env.str("POSTGRES_DB", &cfg.Repository.PostgresDB)
	env.str("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	env.str("CACHE_TYPE", &cfg.Cache.Type)
	env.str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	env.str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	env.int("REDIS_DB", &cfg.Cache.RedisDB)
	env.duration("INDEX_CACHE_TTL", &cfg.Cache.IndexTTL)

	env.str("BUS_TYPE", &cfg.EventBus.Type)
	env.str("NATS_URL", &cfg.EventBus.NATSUrl)
	env.str("NATS_TOKEN", &cfg.EventBus.NATSToken)

	env.bool("ASYNC_WORKER", &cfg.Worker.Enabled)
	env.list("TENANTS", &cfg.Worker.TenantIDs)
	env.float("WORKER_JOBS_PER_SECOND", &cfg.Worker.JobsPerSecond)

	env.bool("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	env.int("RATE_LIMIT_REQUESTS", &cfg.RateLimit.Requests)
	env.int("RATE_LIMIT_WINDOW", &cfg.RateLimit.WindowSeconds)

	env.int("PERIODS_PER_YEAR", &cfg.Financial.PeriodsPerYear)
	env.float("DEFAULT_MULTIPLIER", &cfg.Financial.DefaultMultiplier)
	env.float("CANCELLATION_MULTIPLIER", &cfg.Financial.CancellationMultiplier)

	env.str("LOG_LEVEL", &cfg.Logging.Level)
	env.str("LOG_FORMAT", &cfg.Logging.Format)
	env.str("LOG_OUTPUT", &cfg.Logging.Output)
	var debug bool
	env.bool("DEBUG", &debug)
	if debug {
		cfg.Logging.Level = "debug"
	}

	env.bool("TRACING_ENABLED", &cfg.Tracing.Enabled)

	return env.err
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return invalid("server port %d out of range", cfg.Server.Port)
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return invalid("unknown repository driver %q", cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return invalid("unknown cache type %q", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return invalid("unknown event bus type %q", cfg.EventBus.Type)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return invalid("unknown log format %q", cfg.Logging.Format)
	}

	fin := cfg.Financial
	if fin.PeriodsPerYear < 1 || fin.PeriodsPerYear > 366 {
		return invalid("periodsPerYear must be between 1 and 366")
	}
	for name, m := range map[string]float64{
		"defaultMultiplier":      fin.DefaultMultiplier,
		"cancellationMultiplier": fin.CancellationMultiplier,
	} {
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return invalid("%s must be a non-negative number", name)
		}
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.Requests <= 0 {
		return invalid("rate limit requests must be positive when enabled")
	}
	if cfg.Worker.JobsPerSecond < 0 {
		return invalid("worker jobsPerSecond must be non-negative")
	}
	return nil
}
