// Package screening runs the end-to-end entity screening pipeline:
// history fetch, pattern analysis, hawala detection, escalation rules,
// and the final decision. The HTTP handler and the async worker both
// call into this package so the two entry points cannot drift apart.
package screening

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/decision"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/hawala"
	"github.com/opensource-finance/harrier/internal/history"
	"github.com/opensource-finance/harrier/internal/patterns"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Service orchestrates one screening run per call. The repo, cache, and
// bus are optional: without a repo results are not persisted, without a
// cache every call recomputes, and without a bus no events are emitted.
type Service struct {
	history   *history.Service
	engine    *rules.Engine
	processor *decision.Processor
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	resultTTL time.Duration
}

// NewService creates a screening service. resultTTL controls how long a
// completed screening is reused from cache; zero disables reuse.
func NewService(
	hist *history.Service,
	engine *rules.Engine,
	processor *decision.Processor,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	resultTTL time.Duration,
) *Service {
	return &Service{
		history:   hist,
		engine:    engine,
		processor: processor,
		repo:      repo,
		cache:     cache,
		bus:       bus,
		resultTTL: resultTTL,
	}
}

// ScreenEntity runs the full pipeline for one entity. The bool return
// reports whether a cached screening was reused instead of running the
// engines again.
func (s *Service) ScreenEntity(ctx context.Context, tenantID, entityID, traceID string) (*domain.Screening, bool, error) {
	if s.cache != nil && s.resultTTL > 0 {
		if cached, err := s.cache.GetScreening(ctx, tenantID, entityID); err == nil && cached != nil {
			return cached, true, nil
		}
	}

	startTime := time.Now().UTC()

	// 1. Load the entity's transaction history
	historyStart := time.Now()
	txs, err := s.history.GetHistory(ctx, tenantID, entityID)
	if err != nil {
		return nil, false, err
	}
	historyMs := time.Since(historyStart).Milliseconds()

	// 2. Run the pattern and hawala engines
	analysisStart := time.Now()
	analysis := patterns.Analyze(txs)
	hawalaResult := hawala.Detect(txs)
	analysisMs := time.Since(analysisStart).Milliseconds()

	// 3. Evaluate escalation rules over the engine output
	rulesStart := time.Now()
	var ruleResults []domain.RuleResult
	if s.engine != nil {
		ruleResults, err = s.engine.EvaluateAll(ctx, &rules.EvaluateInput{
			TenantID:         tenantID,
			EntityID:         entityID,
			TransactionCount: len(txs),
			Analysis:         analysis,
			Hawala:           hawalaResult,
		})
		if err != nil {
			return nil, false, err
		}
	}
	rulesMs := time.Since(rulesStart).Milliseconds()

	// 4. Fold everything into the final decision
	screening := s.processor.Process(ctx, &decision.DecisionInput{
		TenantID:         tenantID,
		EntityID:         entityID,
		TraceID:          traceID,
		TransactionCount: len(txs),
		Analysis:         analysis,
		Hawala:           hawalaResult,
		RuleResults:      ruleResults,
		StartTime:        startTime,
		HistoryMs:        historyMs,
		AnalysisMs:       analysisMs,
		RulesMs:          rulesMs,
	})

	// 5. Persist, cache, and publish. None of these may fail the run:
	// the caller already has a complete decision at this point.
	if s.repo != nil {
		if err := s.repo.SaveScreening(ctx, tenantID, screening); err != nil {
			slog.Error("failed to persist screening",
				"screening_id", screening.ID,
				"entity_id", entityID,
				"error", err,
			)
		}
	}

	if s.cache != nil && s.resultTTL > 0 {
		if err := s.cache.SetScreening(ctx, tenantID, entityID, screening, s.resultTTL); err != nil {
			slog.Error("failed to cache screening",
				"screening_id", screening.ID,
				"error", err,
			)
		}
	}

	// Cache hits return above, so the counter sees only fresh runs.
	if s.cache != nil {
		if count, err := s.cache.IncrementCounter(ctx, tenantID, "screenings", time.Hour); err == nil {
			slog.Debug("tenant screening rate",
				"tenant_id", tenantID,
				"last_hour", count,
			)
		}
	}

	s.publishEvents(ctx, tenantID, screening)

	return screening, false, nil
}

func (s *Service) publishEvents(ctx context.Context, tenantID string, screening *domain.Screening) {
	if s.bus == nil {
		return
	}

	payload, _ := json.Marshal(screening)
	if err := s.bus.Publish(ctx, tenantID, domain.TopicScreeningCompleted, payload); err != nil {
		slog.Error("failed to publish screening result",
			"screening_id", screening.ID,
			"error", err,
		)
	}

	if decision.ShouldAlert(screening) {
		if err := s.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"screening_id", screening.ID,
				"error", err,
			)
		}
	}
}
