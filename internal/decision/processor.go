// Package decision folds engine output and escalation rule results
// into the final screening decision.
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
)

// EngineVersion is stamped into screening metadata.
const EngineVersion = "harrier-1.0"

// filingScore mirrors the hawala aggregator's STR/SAR tier; a score at
// or above it always alerts regardless of rule outcomes.
const filingScore = 80

// Processor aggregates rule results and produces the final decision.
type Processor struct {
	// Threshold above which a screening is flagged as ALERT
	AlertThreshold float64

	// Weight configuration for rule aggregation
	UseWeightedScoring bool
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	return &Processor{
		AlertThreshold:     0.7,
		UseWeightedScoring: true,
	}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	TenantID         string
	EntityID         string
	TraceID          string
	TransactionCount int
	Analysis         domain.PatternAnalysisResult
	Hawala           domain.HawalaDetectionResult
	RuleResults      []domain.RuleResult
	StartTime        time.Time

	// Phase timings measured by the pipeline
	HistoryMs  int64
	AnalysisMs int64
	RulesMs    int64
}

// Process produces the final screening decision. A screening alerts
// when the aggregated rule score crosses the threshold, any rule fails
// outright, the analyzer grades the history CRITICAL, or the hawala
// score reaches the filing tier.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Screening {
	screening := &domain.Screening{
		ID:          uuid.New().String(),
		TenantID:    input.TenantID,
		EntityID:    input.EntityID,
		Timestamp:   time.Now().UTC(),
		Analysis:    input.Analysis,
		Hawala:      input.Hawala,
		RuleResults: input.RuleResults,
	}

	agg := p.aggregate(input.RuleResults)

	alert := agg.HasCriticalFailure ||
		agg.AggregateScore >= p.AlertThreshold ||
		input.Analysis.RiskLevel == domain.RiskCritical ||
		input.Hawala.HawalaScore >= filingScore

	if alert {
		screening.Status = domain.StatusAlert
	} else {
		screening.Status = domain.StatusNoAlert
	}

	screening.Score = agg.AggregateScore
	screening.Reasons = buildReasons(input)

	screening.Metadata = domain.ScreeningMetadata{
		TraceID:          input.TraceID,
		TransactionCount: input.TransactionCount,
		HistoryMs:        input.HistoryMs,
		AnalysisMs:       input.AnalysisMs,
		RulesMs:          input.RulesMs,
		TotalMs:          time.Since(input.StartTime).Milliseconds(),
		EngineVersion:    EngineVersion,
	}

	return screening
}

// AggregateResult holds the aggregated scoring results.
type AggregateResult struct {
	AggregateScore     float64
	TotalWeight        float64
	RulesTriggered     int
	HasCriticalFailure bool
}

// aggregate computes the weighted aggregate score from rule results.
func (p *Processor) aggregate(results []domain.RuleResult) *AggregateResult {
	if len(results) == 0 {
		return &AggregateResult{}
	}

	agg := &AggregateResult{}

	for _, r := range results {
		weight := r.Weight
		if weight <= 0 {
			weight = 1.0
		}

		if r.SubRuleRef == domain.RuleOutcomeFail {
			agg.HasCriticalFailure = true
			agg.RulesTriggered++
		} else if r.SubRuleRef == domain.RuleOutcomeReview {
			agg.RulesTriggered++
		}

		if p.UseWeightedScoring {
			agg.AggregateScore += r.Score * weight
			agg.TotalWeight += weight
		} else {
			agg.AggregateScore += r.Score
			agg.TotalWeight += 1.0
		}
	}

	if agg.TotalWeight > 0 {
		agg.AggregateScore = agg.AggregateScore / agg.TotalWeight
	}

	return agg
}

// buildReasons collects human-readable grounds for the decision:
// engine-driven escalations first, then every failed or review-band
// rule reason.
func buildReasons(input *DecisionInput) []string {
	var reasons []string

	if input.Analysis.RiskLevel == domain.RiskCritical {
		reasons = append(reasons, "analysis risk level CRITICAL")
	}
	if input.Hawala.HawalaScore >= filingScore {
		reasons = append(reasons, fmt.Sprintf("hawala score %d at STR/SAR filing tier", input.Hawala.HawalaScore))
	}

	for _, r := range input.RuleResults {
		if r.SubRuleRef == domain.RuleOutcomeFail || r.SubRuleRef == domain.RuleOutcomeReview {
			if r.Reason != "" {
				reasons = append(reasons, r.Reason)
			}
		}
	}

	return reasons
}

// ShouldAlert returns true if the screening should trigger an alert.
func ShouldAlert(s *domain.Screening) bool {
	return s.Status == domain.StatusAlert
}
