// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	SaveTransactions(ctx context.Context, tenantID string, txs []*Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)

	// GetTransactionsByEntity returns transactions where the entity is
	// sender or recipient, newest first, at most limit rows (0 = no cap).
	GetTransactionsByEntity(ctx context.Context, tenantID string, entityID string, since time.Time, limit int) ([]*Transaction, error)

	// Escalation rule operations
	SaveRule(ctx context.Context, tenantID string, rule *EscalationRule) error
	GetRule(ctx context.Context, tenantID string, ruleID string) (*EscalationRule, error)
	ListRules(ctx context.Context, tenantID string) ([]*EscalationRule, error)
	DeleteRule(ctx context.Context, tenantID string, ruleID string) error

	// Screening results
	SaveScreening(ctx context.Context, tenantID string, s *Screening) error
	GetScreening(ctx context.Context, tenantID string, screeningID string) (*Screening, error)
	ListScreeningsByEntity(ctx context.Context, tenantID string, entityID string, limit int) ([]*Screening, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
