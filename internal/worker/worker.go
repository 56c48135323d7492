// Package worker provides async screening from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/screening"
)

// Worker drives entity screenings from EventBus messages. Each ingested
// transaction triggers a screening of both parties, and operators can
// request one directly on the screening.requested topic.
type Worker struct {
	bus      domain.EventBus
	screener *screening.Service

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, screener *screening.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		screener: screener,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startTenantWorker("_global")
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startTenantWorker subscribes one tenant to both screening triggers.
func (w *Worker) startTenantWorker(tenantID string) error {
	ingestSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, w.handleIngested)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, ingestSub)

	requestSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicScreeningRequested, w.handleRequested)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, requestSub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
	)

	return nil
}

// handleIngested screens both parties of a freshly ingested transaction.
func (w *Worker) handleIngested(ctx context.Context, msg *domain.Message) error {
	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		slog.Error("failed to parse ingested transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tenantID := msg.TenantID
	if tx.TenantID != "" {
		tenantID = tx.TenantID
	}

	if tx.From != "" {
		if err := w.screen(ctx, tenantID, tx.From, msg.ID); err != nil {
			return err
		}
	}
	if tx.To != "" && tx.To != tx.From {
		if err := w.screen(ctx, tenantID, tx.To, msg.ID); err != nil {
			return err
		}
	}
	return nil
}

// ScreeningRequest is the payload for screening.requested messages.
type ScreeningRequest struct {
	EntityID string `json:"entityId"`
	TenantID string `json:"tenantId,omitempty"`
	TraceID  string `json:"traceId,omitempty"`
}

// handleRequested screens an entity on demand.
func (w *Worker) handleRequested(ctx context.Context, msg *domain.Message) error {
	var req ScreeningRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse screening request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if req.EntityID == "" {
		slog.Error("screening request without entityId", "message_id", msg.ID)
		return fmt.Errorf("entityId is required")
	}

	tenantID := msg.TenantID
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	return w.screen(ctx, tenantID, req.EntityID, traceID)
}

// screen runs one screening and logs the outcome. Result persistence and
// event publishing happen inside the screening service.
func (w *Worker) screen(ctx context.Context, tenantID, entityID, traceID string) error {
	start := time.Now()

	result, fromCache, err := w.screener.ScreenEntity(ctx, tenantID, entityID, traceID)
	if err != nil {
		slog.Error("screening failed",
			"entity_id", entityID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Info("entity screened",
		"entity_id", entityID,
		"tenant_id", tenantID,
		"status", result.Status,
		"score", result.Score,
		"cached", fromCache,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
