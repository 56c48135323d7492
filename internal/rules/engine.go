// Package rules provides the CEL-Go based escalation rule engine.
// Rules are compiled once and evaluated against the output of a
// screening: velocity counts, anomaly flags, and hawala detection
// results become CEL variables that operator-written expressions can
// combine into escalation decisions.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Engine is the CEL-based escalation rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.EscalationRule
	Program cel.Program
}

// NewEngine creates a rule engine with the screening variable surface.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("tx_count", cel.IntType),
		cel.Variable("tx_per_hour", cel.IntType),
		cel.Variable("tx_per_day", cel.IntType),
		cel.Variable("tx_per_week", cel.IntType),
		cel.Variable("total_volume", cel.DoubleType),
		cel.Variable("average_amount", cel.DoubleType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("risk_adjustment", cel.DoubleType),
		cel.Variable("anomaly_count", cel.IntType),
		cel.Variable("anomaly_types", cel.ListType(cel.StringType)),
		cel.Variable("has_anomalies", cel.BoolType),
		cel.Variable("analysis_confidence", cel.DoubleType),
		cel.Variable("hawala_score", cel.IntType),
		cel.Variable("hawala_flagged", cel.BoolType),
		cel.Variable("pattern_count", cel.IntType),
		cel.Variable("pattern_types", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(rule *domain.EscalationRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.EscalationRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *Engine) LoadRules(rules []*domain.EscalationRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput carries one screening's engine output into rule evaluation.
type EvaluateInput struct {
	TenantID         string
	EntityID         string
	TransactionCount int
	Analysis         domain.PatternAnalysisResult
	Hawala           domain.HawalaDetectionResult
}

// EvaluateAll evaluates all loaded rules in parallel. Results come back
// ordered by rule ID so repeated screenings read identically.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.RuleResult, error) {
	e.mu.RLock()
	ids := make([]string, 0, len(e.compiledRules))
	for id := range e.compiledRules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rules := make([]*CompiledRule, 0, len(ids))
	for _, id := range ids {
		rules = append(rules, e.compiledRules[id])
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation := activationFor(input)

	// Parallel evaluation with a bounded worker pool
	results := make([]domain.RuleResult, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.evaluateRule(ctx, r, activation, input)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// activationFor flattens the engine output into the CEL variable surface.
func activationFor(input *EvaluateInput) map[string]any {
	anomalyTypes := make([]string, 0, len(input.Analysis.Anomalies))
	for _, flag := range input.Analysis.Anomalies {
		anomalyTypes = append(anomalyTypes, string(flag.Type))
	}
	patternTypes := make([]string, 0, len(input.Hawala.Patterns))
	for _, p := range input.Hawala.Patterns {
		patternTypes = append(patternTypes, string(p.Type))
	}

	return map[string]any{
		"tx_count":            int64(input.TransactionCount),
		"tx_per_hour":         int64(input.Analysis.Velocity.TransactionsPerHour),
		"tx_per_day":          int64(input.Analysis.Velocity.TransactionsPerDay),
		"tx_per_week":         int64(input.Analysis.Velocity.TransactionsPerWeek),
		"total_volume":        input.Analysis.Velocity.TotalVolume,
		"average_amount":      input.Analysis.Velocity.AverageAmount,
		"risk_level":          string(input.Analysis.RiskLevel),
		"risk_adjustment":     input.Analysis.VelocityRiskAdjustment,
		"anomaly_count":       int64(len(input.Analysis.Anomalies)),
		"anomaly_types":       anomalyTypes,
		"has_anomalies":       input.Analysis.HasAnomalies,
		"analysis_confidence": input.Analysis.Confidence,
		"hawala_score":        int64(input.Hawala.HawalaScore),
		"hawala_flagged":      input.Hawala.Flagged,
		"pattern_count":       int64(len(input.Hawala.Patterns)),
		"pattern_types":       patternTypes,
	}
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any, input *EvaluateInput) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		RuleID:   rule.Rule.ID,
		TenantID: input.TenantID,
		EntityID: input.EntityID,
		Weight:   rule.Rule.Weight,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.SubRuleRef = domain.RuleOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	score := toScore(out)
	result.Score = score

	result.SubRuleRef, result.Reason = matchBand(score, rule.Rule.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order: lower inclusive, upper exclusive,
// except when upper is nil (meaning infinity).
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		hasUpper := band.UpperLimit != nil
		upper := float64(1e9) // effectively infinity

		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if hasUpper {
			upper = *band.UpperLimit
		}

		if score >= lower {
			if !hasUpper || score < upper {
				return band.SubRuleRef, band.Reason
			}
			if score == upper && band.UpperLimit != nil {
				// boundary belongs to the next band's lower limit
				continue
			}
		}
	}

	// Default to pass if no band matches
	return domain.RuleOutcomePass, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(rules []*domain.EscalationRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rules.
func (e *Engine) GetLoadedRules() []*domain.EscalationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.EscalationRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.EscalationRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
