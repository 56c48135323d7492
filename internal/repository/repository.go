// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
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

	// Run migrations
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

// SaveTransaction stores a transaction with tenant isolation. Re-ingesting
// an ID the tenant already holds is a no-op, so history replays are safe.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, from_account, to_account, amount,
			timestamp_ms, type, currency, jurisdiction, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.From, tx.To, tx.Amount,
		int64(tx.Timestamp), tx.Type, tx.Currency, tx.Jurisdiction,
		time.Now().UTC(),
	)
	return err
}

// SaveTransactions stores a batch of transactions in a single database
// transaction with tenant isolation.
func (r *SQLRepository) SaveTransactions(ctx context.Context, tenantID string, txs []*domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO transactions (
			id, tenant_id, from_account, to_account, amount,
			timestamp_ms, type, currency, jurisdiction, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO NOTHING
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, tx := range txs {
		if tx.ID == "" {
			return fmt.Errorf("%w: transaction ID is required", ErrInvalidInput)
		}
		if _, err := stmt.ExecContext(ctx,
			tx.ID, tenantID, tx.From, tx.To, tx.Amount,
			int64(tx.Timestamp), tx.Type, tx.Currency, tx.Jurisdiction,
			now,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, from_account, to_account, amount,
			   timestamp_ms, type, currency, jurisdiction
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	var tx domain.Transaction
	var ts int64

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(
		&tx.ID, &tx.TenantID, &tx.From, &tx.To, &tx.Amount,
		&ts, &tx.Type, &tx.Currency, &tx.Jurisdiction,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Timestamp = domain.EpochMillis(ts)
	return &tx, nil
}

// GetTransactionsByEntity retrieves transactions where the entity is
// sender or recipient, newest first. A limit of 0 returns all rows.
func (r *SQLRepository) GetTransactionsByEntity(ctx context.Context, tenantID string, entityID string, since time.Time, limit int) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, from_account, to_account, amount,
			   timestamp_ms, type, currency, jurisdiction
		FROM transactions
		WHERE tenant_id = ?
		  AND (from_account = ? OR to_account = ?)
		  AND timestamp_ms >= ?
		ORDER BY timestamp_ms DESC
	`
	args := []any{tenantID, entityID, entityID, int64(domain.NewEpochMillis(since))}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var ts int64

		if err := rows.Scan(
			&tx.ID, &tx.TenantID, &tx.From, &tx.To, &tx.Amount,
			&ts, &tx.Type, &tx.Currency, &tx.Jurisdiction,
		); err != nil {
			return nil, err
		}

		tx.Timestamp = domain.EpochMillis(ts)
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// SaveRule stores an escalation rule with tenant isolation.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.EscalationRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO escalation_rules (
			id, tenant_id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), rule.Weight, enabled,
		now, now,
	)
	return err
}

// GetRule retrieves the latest enabled version of a rule with tenant isolation.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, ruleID string) (*domain.EscalationRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM escalation_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.EscalationRule
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &bands, &rule.Weight, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &rule.Bands)

	return &rule, nil
}

// ListRules retrieves all enabled escalation rules for a tenant.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string) ([]*domain.EscalationRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM escalation_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		var bands string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &bands, &rule.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &rule.Bands)
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteRule soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE escalation_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveScreening stores a screening result with tenant isolation.
func (r *SQLRepository) SaveScreening(ctx context.Context, tenantID string, s *domain.Screening) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	analysis, _ := json.Marshal(s.Analysis)
	hawala, _ := json.Marshal(s.Hawala)
	ruleResults, _ := json.Marshal(s.RuleResults)
	reasons, _ := json.Marshal(s.Reasons)
	metadata, _ := json.Marshal(s.Metadata)

	query := `
		INSERT INTO screenings (
			id, tenant_id, entity_id, status, score, timestamp,
			analysis, hawala, rule_results, reasons, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		s.ID, tenantID, s.EntityID, s.Status, s.Score, s.Timestamp,
		string(analysis), string(hawala), string(ruleResults), string(reasons), string(metadata),
	)
	return err
}

// GetScreening retrieves a screening by ID with tenant isolation.
func (r *SQLRepository) GetScreening(ctx context.Context, tenantID string, screeningID string) (*domain.Screening, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, entity_id, status, score, timestamp,
			   analysis, hawala, rule_results, reasons, metadata
		FROM screenings
		WHERE tenant_id = ? AND id = ?
	`

	var s domain.Screening
	var analysis, hawala, ruleResults, reasons, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, screeningID).Scan(
		&s.ID, &s.TenantID, &s.EntityID, &s.Status, &s.Score, &s.Timestamp,
		&analysis, &hawala, &ruleResults, &reasons, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(analysis), &s.Analysis)
	json.Unmarshal([]byte(hawala), &s.Hawala)
	json.Unmarshal([]byte(ruleResults), &s.RuleResults)
	json.Unmarshal([]byte(reasons), &s.Reasons)
	json.Unmarshal([]byte(metadata), &s.Metadata)

	return &s, nil
}

// ListScreeningsByEntity retrieves screenings for an entity, newest
// first. A limit of 0 returns all rows.
func (r *SQLRepository) ListScreeningsByEntity(ctx context.Context, tenantID string, entityID string, limit int) ([]*domain.Screening, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, entity_id, status, score, timestamp,
			   analysis, hawala, rule_results, reasons, metadata
		FROM screenings
		WHERE tenant_id = ? AND entity_id = ?
		ORDER BY timestamp DESC
	`
	args := []any{tenantID, entityID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var screenings []*domain.Screening
	for rows.Next() {
		var s domain.Screening
		var analysis, hawala, ruleResults, reasons, metadata string

		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.EntityID, &s.Status, &s.Score, &s.Timestamp,
			&analysis, &hawala, &ruleResults, &reasons, &metadata,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(analysis), &s.Analysis)
		json.Unmarshal([]byte(hawala), &s.Hawala)
		json.Unmarshal([]byte(ruleResults), &s.RuleResults)
		json.Unmarshal([]byte(reasons), &s.Reasons)
		json.Unmarshal([]byte(metadata), &s.Metadata)

		screenings = append(screenings, &s)
	}

	return screenings, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
