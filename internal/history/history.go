// Package history provides entity transaction history retrieval for
// the screening pipeline.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

const (
	defaultWindow = 30 * 24 * time.Hour
	defaultLimit  = 5000
)

// Service loads an entity's transaction history from the repository.
type Service struct {
	repo   domain.Repository
	window time.Duration
	limit  int
}

// NewService creates a new history service. A zero window or limit
// falls back to the defaults (30 days, 5000 transactions).
func NewService(repo domain.Repository, window time.Duration, limit int) *Service {
	if window <= 0 {
		window = defaultWindow
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Service{
		repo:   repo,
		window: window,
		limit:  limit,
	}
}

// GetHistory returns the entity's transactions inside the configured
// window, as values ready for the pattern and hawala engines. The
// repository returns newest first; the engines sort their own copies.
func (s *Service) GetHistory(ctx context.Context, tenantID, entityID string) ([]domain.Transaction, error) {
	if tenantID == "" || entityID == "" {
		return nil, fmt.Errorf("tenantID and entityID are required")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}

	since := time.Now().UTC().Add(-s.window)

	txs, err := s.repo.GetTransactionsByEntity(ctx, tenantID, entityID, since, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = *tx
	}
	return out, nil
}

// GetTransactionCount returns the number of transactions for an entity
// within a trailing window in seconds.
func (s *Service) GetTransactionCount(ctx context.Context, tenantID, entityID string, windowSecs int) (int64, error) {
	if tenantID == "" || entityID == "" {
		return 0, fmt.Errorf("tenantID and entityID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().UTC().Add(-time.Duration(windowSecs) * time.Second)

	txs, err := s.repo.GetTransactionsByEntity(ctx, tenantID, entityID, since, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return int64(len(txs)), nil
}
