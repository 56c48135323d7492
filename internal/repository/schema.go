package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    from_account TEXT NOT NULL,
    to_account TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp_ms BIGINT NOT NULL,
    type TEXT,
    currency TEXT,
    jurisdiction TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(tenant_id, from_account);
CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(tenant_id, to_account);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(tenant_id, timestamp_ms);
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS escalation_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rules_tenant ON escalation_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rules_enabled ON escalation_rules(tenant_id, enabled);
`

const schemaScreenings = `
CREATE TABLE IF NOT EXISTS screenings (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    status TEXT NOT NULL,
    score REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    analysis TEXT NOT NULL,
    hawala TEXT NOT NULL,
    rule_results TEXT,
    reasons TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_screenings_tenant ON screenings(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screenings_entity ON screenings(tenant_id, entity_id);
CREATE INDEX IF NOT EXISTS idx_screenings_status ON screenings(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_screenings_timestamp ON screenings(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRules,
		schemaScreenings,
	}
}
