package repository

// Schema definitions for the SAFV database.
// Compatible with both SQLite and PostgreSQL.

// Reference dates are stored as ISO dates (YYYY-MM-DD), always the first of a month.
const schemaIndexValues = `
CREATE TABLE IF NOT EXISTS financial_index_values (
    tenant_id TEXT NOT NULL,
    index_code TEXT NOT NULL,
    reference_date TEXT NOT NULL,
    value REAL NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, index_code, reference_date)
);

CREATE INDEX IF NOT EXISTS idx_index_values_code ON financial_index_values(tenant_id, index_code);
`

const schemaFinancialSettings = `
CREATE TABLE IF NOT EXISTS financial_settings (
    tenant_id TEXT PRIMARY KEY,
    periods_per_year INTEGER NOT NULL,
    default_multiplier REAL NOT NULL,
    cancellation_multiplier REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaPlanTemplates = `
CREATE TABLE IF NOT EXISTS payment_plan_templates (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    product_code TEXT NOT NULL,
    name TEXT,
    description TEXT,
    principal REAL NOT NULL,
    discount_rate REAL NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (tenant_id, product_code)
);

CREATE INDEX IF NOT EXISTS idx_plan_templates_tenant ON payment_plan_templates(tenant_id);

CREATE TABLE IF NOT EXISTS payment_plan_installments (
    template_id TEXT NOT NULL REFERENCES payment_plan_templates(id) ON DELETE CASCADE,
    period INTEGER NOT NULL,
    amount REAL NOT NULL,
    PRIMARY KEY (template_id, period)
);
`

// Aggregations keep their ingestion order through position.
const schemaBenchmarks = `
CREATE TABLE IF NOT EXISTS benchmark_batches (
    tenant_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    total_rows INTEGER NOT NULL,
    discarded_rows INTEGER NOT NULL,
    ingested_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, batch_id)
);

CREATE TABLE IF NOT EXISTS benchmark_aggregations (
    tenant_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    metric_code TEXT NOT NULL,
    segment_bucket TEXT NOT NULL,
    region_bucket TEXT NOT NULL,
    group_count INTEGER NOT NULL,
    average_value REAL NOT NULL,
    min_value REAL NOT NULL,
    max_value REAL NOT NULL,
    PRIMARY KEY (tenant_id, batch_id, position)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaIndexValues,
		schemaFinancialSettings,
		schemaPlanTemplates,
		schemaBenchmarks,
	}
}
