package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

var _ domain.Repository = (*SQLRepository)(nil)

const templateColumns = `id, tenant_id, product_code, name, description, principal, discount_rate, active, created_at, updated_at`

// SavePlanTemplate creates or replaces a template and its installments.
// Product codes are unique per tenant, case-insensitively.
func (r *SQLRepository) SavePlanTemplate(ctx context.Context, tenantID string, tpl *domain.PlanTemplate) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if tpl.ID == "" || strings.TrimSpace(tpl.ProductCode) == "" {
		return fmt.Errorf("%w: template id and productCode are required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	tpl.TenantID = tenantID

	active := 0
	if tpl.Active {
		active = 1
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		// Template IDs are global; never let one tenant overwrite another's.
		var owner string
		err := tx.QueryRowContext(ctx, r.rebind(`SELECT tenant_id FROM payment_plan_templates WHERE id = ?`), tpl.ID).Scan(&owner)
		if err == nil && owner != tenantID {
			return fmt.Errorf("%w: template %s", ErrConflict, tpl.ID)
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var existing string
		err = tx.QueryRowContext(ctx, r.rebind(`
			SELECT id FROM payment_plan_templates
			WHERE tenant_id = ? AND LOWER(product_code) = LOWER(?) AND id <> ?
		`), tenantID, tpl.ProductCode, tpl.ID).Scan(&existing)
		if err == nil {
			return fmt.Errorf("%w: productCode %q is used by template %s", ErrConflict, tpl.ProductCode, existing)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		query := `
			INSERT INTO payment_plan_templates (` + templateColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				product_code = excluded.product_code,
				name = excluded.name,
				description = excluded.description,
				principal = excluded.principal,
				discount_rate = excluded.discount_rate,
				active = excluded.active,
				updated_at = excluded.updated_at
		`
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			tpl.ID, tenantID, tpl.ProductCode, tpl.Name, tpl.Description,
			tpl.Principal, tpl.DiscountRate, active, tpl.CreatedAt, tpl.UpdatedAt,
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM payment_plan_installments WHERE template_id = ?`), tpl.ID); err != nil {
			return err
		}
		for _, inst := range tpl.Installments {
			if _, err := tx.ExecContext(ctx,
				r.rebind(`INSERT INTO payment_plan_installments (template_id, period, amount) VALUES (?, ?, ?)`),
				tpl.ID, inst.Period, inst.Amount,
			); err != nil {
				return fmt.Errorf("failed to save installment %d: %w", inst.Period, err)
			}
		}
		return nil
	})
}

// GetPlanTemplate retrieves a template by ID, active or not.
func (r *SQLRepository) GetPlanTemplate(ctx context.Context, tenantID string, templateID string) (*domain.PlanTemplate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tpls, err := r.queryTemplates(ctx,
		`SELECT `+templateColumns+` FROM payment_plan_templates WHERE tenant_id = ? AND id = ?`,
		tenantID, templateID,
	)
	if err != nil {
		return nil, err
	}
	if len(tpls) == 0 {
		return nil, ErrNotFound
	}
	return tpls[0], nil
}

// ListPlanTemplates returns every template of a tenant ordered by product code.
func (r *SQLRepository) ListPlanTemplates(ctx context.Context, tenantID string) ([]*domain.PlanTemplate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return r.queryTemplates(ctx,
		`SELECT `+templateColumns+` FROM payment_plan_templates WHERE tenant_id = ? ORDER BY product_code`,
		tenantID,
	)
}

// ListPlanTemplatesByIDs returns the active templates among ids.
func (r *SQLRepository) ListPlanTemplatesByIDs(ctx context.Context, tenantID string, ids []string) ([]*domain.PlanTemplate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(ids) == 0 {
		return []*domain.PlanTemplate{}, nil
	}

	args := []any{tenantID}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT ` + templateColumns + ` FROM payment_plan_templates
		WHERE tenant_id = ? AND active = 1 AND id IN (` + placeholders(len(ids)) + `)
		ORDER BY product_code`
	return r.queryTemplates(ctx, query, args...)
}

// ListPlanTemplatesByProductCodes returns the active templates whose product
// code matches one of codes, ignoring case and surrounding spaces.
func (r *SQLRepository) ListPlanTemplatesByProductCodes(ctx context.Context, tenantID string, codes []string) ([]*domain.PlanTemplate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	args := []any{tenantID}
	for _, c := range codes {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			args = append(args, c)
		}
	}
	if len(args) == 1 {
		return []*domain.PlanTemplate{}, nil
	}

	query := `SELECT ` + templateColumns + ` FROM payment_plan_templates
		WHERE tenant_id = ? AND active = 1 AND LOWER(product_code) IN (` + placeholders(len(args)-1) + `)
		ORDER BY product_code`
	return r.queryTemplates(ctx, query, args...)
}

func (r *SQLRepository) queryTemplates(ctx context.Context, query string, args ...any) ([]*domain.PlanTemplate, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*domain.PlanTemplate{}
	byID := make(map[string]*domain.PlanTemplate)
	for rows.Next() {
		var t domain.PlanTemplate
		var name, description sql.NullString
		var active int

		if err := rows.Scan(
			&t.ID, &t.TenantID, &t.ProductCode, &name, &description,
			&t.Principal, &t.DiscountRate, &active, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		t.Name = name.String
		t.Description = description.String
		t.Active = active == 1
		t.Installments = []domain.Installment{}

		templates = append(templates, &t)
		byID[t.ID] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadInstallments(ctx, byID); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *SQLRepository) loadInstallments(ctx context.Context, byID map[string]*domain.PlanTemplate) error {
	if len(byID) == 0 {
		return nil
	}

	args := make([]any, 0, len(byID))
	for id := range byID {
		args = append(args, id)
	}

	query := `SELECT template_id, period, amount FROM payment_plan_installments
		WHERE template_id IN (` + placeholders(len(args)) + `)
		ORDER BY template_id, period`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to load installments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var inst domain.Installment
		if err := rows.Scan(&id, &inst.Period, &inst.Amount); err != nil {
			return err
		}
		if t, ok := byID[id]; ok {
			t.Installments = append(t.Installments, inst)
		}
	}
	return rows.Err()
}
