// Package patterns implements the behavioral analysis half of the
// screening engine: velocity profiling over trailing windows, temporal
// gap classification, fixed-threshold anomaly flags, and a bounded risk
// adjustment.
//
// The engine is pure computation: it performs no I/O, holds no state
// between calls, never mutates the caller's slice, and is safe to invoke
// concurrently. Malformed input degrades to a conservative default
// instead of an error.
package patterns

import (
	"math"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// EngineVersion identifies the analysis semantics for audit records.
const EngineVersion = "1.0.0"

// Risk adjustment bounds and confidence cap.
const (
	minRiskAdjustment = -20.0
	maxRiskAdjustment = 50.0
	maxConfidence     = 0.95
)

// Analyze profiles the history as seen from the current wall clock.
func Analyze(txs []domain.Transaction) domain.PatternAnalysisResult {
	return AnalyzeAt(time.Now().UTC(), txs)
}

// AnalyzeAt profiles the history as seen from a caller-chosen reference
// instant. Pinning the instant makes the trailing velocity windows, and
// therefore the whole result, reproducible.
func AnalyzeAt(now time.Time, txs []domain.Transaction) domain.PatternAnalysisResult {
	if len(txs) == 0 {
		return domain.PatternAnalysisResult{
			NormalBehavior: true,
			RiskLevel:      domain.RiskLow,
		}
	}

	profile := Profile(now, txs)
	anomalies := Anomalies(txs, profile)

	return domain.PatternAnalysisResult{
		Velocity:               profile,
		TemporalPatterns:       TemporalPatterns(txs),
		Anomalies:              anomalies,
		VelocityRiskAdjustment: riskAdjustment(profile, anomalies),
		HasAnomalies:           len(anomalies) > 0,
		NormalBehavior:         len(anomalies) == 0,
		RiskLevel:              riskLevel(profile, anomalies),
		Confidence:             analysisConfidence(len(txs), anomalies),
	}
}

// riskAdjustment folds velocity normalcy and anomaly severities into a
// bounded score delta: normal daily volume earns a discount, elevated
// volume and each anomaly add penalties.
func riskAdjustment(profile domain.VelocityProfile, anomalies []domain.AnomalyFlag) float64 {
	adjustment := 0.0

	if profile.TransactionsPerDay <= NormalTxPerDay {
		adjustment -= 10
	}

	ratio := float64(profile.TransactionsPerDay) / NormalTxPerDay
	if ratio > 1 {
		adjustment += math.Min(40, (ratio-1)*20)
	}

	for _, flag := range anomalies {
		switch flag.Severity {
		case domain.SeverityCritical:
			adjustment += 50
		case domain.SeverityHigh:
			adjustment += 30
		case domain.SeverityMedium:
			adjustment += 15
		case domain.SeverityLow:
			adjustment += 5
		}
	}

	return clamp(adjustment, minRiskAdjustment, maxRiskAdjustment)
}

// riskLevel grades the history. Checks run in priority order; the first
// match wins.
func riskLevel(profile domain.VelocityProfile, anomalies []domain.AnomalyFlag) domain.RiskLevel {
	highs, mediums := 0, 0
	for _, flag := range anomalies {
		switch flag.Severity {
		case domain.SeverityCritical:
			return domain.RiskCritical
		case domain.SeverityHigh:
			highs++
		case domain.SeverityMedium:
			mediums++
		}
	}

	switch {
	case highs >= 2:
		return domain.RiskHigh
	case profile.TransactionsPerDay > CriticalMultiplier*NormalTxPerDay:
		return domain.RiskCritical
	case profile.TransactionsPerDay > SpikeMultiplier*NormalTxPerDay:
		return domain.RiskHigh
	case mediums > 0:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// analysisConfidence blends history depth (100+ transactions count as
// full depth) with the mean anomaly confidence.
func analysisConfidence(txCount int, anomalies []domain.AnomalyFlag) float64 {
	depth := math.Min(1, float64(txCount)/100)

	anomalyConf := 0.5
	if len(anomalies) > 0 {
		var sum float64
		for _, flag := range anomalies {
			sum += flag.Confidence
		}
		anomalyConf = sum / float64(len(anomalies))
	}

	return clamp(0.6*depth+0.4*anomalyConf, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
