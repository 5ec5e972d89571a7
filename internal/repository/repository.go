// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("record already exists")
)

const dateLayout = "2006-01-02"

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// FirstOfMonth truncates t to the first day of its month, in UTC.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ListIndexValues returns the values of an index ordered by reference date.
func (r *SQLRepository) ListIndexValues(ctx context.Context, tenantID string, indexCode string) ([]domain.IndexValue, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT reference_date, value, updated_at
		FROM financial_index_values
		WHERE tenant_id = ? AND index_code = ?
		ORDER BY reference_date
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, indexCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []domain.IndexValue{}
	for rows.Next() {
		var v domain.IndexValue
		var ref string
		if err := rows.Scan(&ref, &v.Value, &v.UpdatedAt); err != nil {
			return nil, err
		}
		v.ReferenceDate, err = time.Parse(dateLayout, ref)
		if err != nil {
			return nil, fmt.Errorf("invalid reference date %q: %w", ref, err)
		}
		values = append(values, v)
	}

	return values, rows.Err()
}

// UpsertIndexValues inserts or replaces values by reference month and
// returns the complete, ordered index afterwards.
func (r *SQLRepository) UpsertIndexValues(ctx context.Context, tenantID string, indexCode string, values []domain.IndexValue) ([]domain.IndexValue, error) {
	if tenantID == "" || indexCode == "" {
		return nil, fmt.Errorf("%w: tenantID and indexCode are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO financial_index_values (
			tenant_id, index_code, reference_date, value, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, index_code, reference_date) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, v := range values {
			ref := FirstOfMonth(v.ReferenceDate).Format(dateLayout)
			if _, err := stmt.ExecContext(ctx, tenantID, indexCode, ref, v.Value, now, now); err != nil {
				return fmt.Errorf("failed to upsert index value %s: %w", ref, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.ListIndexValues(ctx, tenantID, indexCode)
}

// GetFinancialSettings returns the stored settings of a tenant, or ErrNotFound.
func (r *SQLRepository) GetFinancialSettings(ctx context.Context, tenantID string) (*domain.FinancialSettings, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, periods_per_year, default_multiplier, cancellation_multiplier, updated_at
		FROM financial_settings
		WHERE tenant_id = ?
	`

	var s domain.FinancialSettings
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(
		&s.TenantID, &s.PeriodsPerYear, &s.DefaultMultiplier, &s.CancellationMultiplier, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveFinancialSettings creates or replaces the settings of a tenant.
func (r *SQLRepository) SaveFinancialSettings(ctx context.Context, tenantID string, settings *domain.FinancialSettings) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if settings.PeriodsPerYear <= 0 {
		return fmt.Errorf("%w: periodsPerYear must be positive", ErrInvalidInput)
	}

	settings.TenantID = tenantID
	settings.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO financial_settings (
			tenant_id, periods_per_year, default_multiplier, cancellation_multiplier, updated_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			periods_per_year = excluded.periods_per_year,
			default_multiplier = excluded.default_multiplier,
			cancellation_multiplier = excluded.cancellation_multiplier,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, settings.PeriodsPerYear, settings.DefaultMultiplier,
		settings.CancellationMultiplier, settings.UpdatedAt,
	)
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// inTx runs fn inside a transaction, committing when it returns nil.
func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
		n++
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
