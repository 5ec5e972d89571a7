package domain

import "time"

// Config holds the complete SAFV configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`
	Worker     WorkerConfig     `json:"worker" yaml:"worker"`

	// Request throttling
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`

	// Defaults applied when a tenant has no financial settings stored
	Financial FinancialDefaults `json:"financial" yaml:"financial"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
	Output string `json:"output" yaml:"output"` // stdout, stderr or a file path
	MaxAge int    `json:"maxAge" yaml:"maxAge"` // days to keep rotated files
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ServiceName  string `json:"serviceName" yaml:"serviceName"`
	ExporterType string `json:"exporterType" yaml:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
}

// RateLimitConfig configures the fixed-window limiter keyed by client IP and path.
type RateLimitConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	Requests      int      `json:"requests" yaml:"requests"`
	WindowSeconds int      `json:"windowSeconds" yaml:"windowSeconds"`
	ExcludedPaths []string `json:"excludedPaths" yaml:"excludedPaths"`
}

// FinancialDefaults are the calculation settings of tenants without stored overrides.
type FinancialDefaults struct {
	PeriodsPerYear         int     `json:"periodsPerYear" yaml:"periodsPerYear"`
	DefaultMultiplier      float64 `json:"defaultMultiplier" yaml:"defaultMultiplier"`
	CancellationMultiplier float64 `json:"cancellationMultiplier" yaml:"cancellationMultiplier"`
}

// WorkerConfig configures asynchronous benchmark ingestion.
type WorkerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TenantIDs restricts the worker to these tenants; empty subscribes globally.
	TenantIDs []string `json:"tenantIds" yaml:"tenantIds"`

	// JobsPerSecond throttles ingestion; zero disables throttling.
	JobsPerSecond float64 `json:"jobsPerSecond" yaml:"jobsPerSecond"`
	Burst         int     `json:"burst" yaml:"burst"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./safv.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			IndexTTL:     10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Enabled:       false,
			JobsPerSecond: 10,
			Burst:         5,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Requests:      100,
			WindowSeconds: 60,
			ExcludedPaths: []string{"/health", "/ready"},
		},
		Financial: FinancialDefaults{
			PeriodsPerYear:         DefaultPeriodsPerYear,
			DefaultMultiplier:      1.0,
			CancellationMultiplier: 1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "safv",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "safv",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		IndexTTL:       10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
