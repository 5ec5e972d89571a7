// Package domain defines the core interfaces and types for SAFV.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Financial index values
	ListIndexValues(ctx context.Context, tenantID string, indexCode string) ([]IndexValue, error)
	UpsertIndexValues(ctx context.Context, tenantID string, indexCode string, values []IndexValue) ([]IndexValue, error)

	// Per-tenant financial settings
	GetFinancialSettings(ctx context.Context, tenantID string) (*FinancialSettings, error)
	SaveFinancialSettings(ctx context.Context, tenantID string, settings *FinancialSettings) error

	// Payment plan templates
	SavePlanTemplate(ctx context.Context, tenantID string, tpl *PlanTemplate) error
	GetPlanTemplate(ctx context.Context, tenantID string, templateID string) (*PlanTemplate, error)
	ListPlanTemplates(ctx context.Context, tenantID string) ([]*PlanTemplate, error)
	ListPlanTemplatesByIDs(ctx context.Context, tenantID string, ids []string) ([]*PlanTemplate, error)
	ListPlanTemplatesByProductCodes(ctx context.Context, tenantID string, codes []string) ([]*PlanTemplate, error)

	// Benchmark batches
	BenchmarkRepository

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
