// Package hawala detects informal value transfer patterns in a
// transaction history: structuring under reporting thresholds,
// round-trip flows, fan-out and fan-in dispersal, and
// cross-jurisdiction mirror trades. Like the pattern analyzer it is a
// pure computation library: no I/O, no cross-call state, no error
// returns. Every call stands alone and is safe to run concurrently.
package hawala

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ReportingThreshold is the currency-agnostic amount at which a single
// transfer becomes reportable. Structuring splits flows to stay under it.
const ReportingThreshold = 10000.0

const (
	maxConfidence = 0.95

	// Each pattern contributes up to 40 score points; three confident
	// patterns saturate the 0-100 scale.
	pointsPerPattern = 40.0
	maxScore         = 100

	escalateScore = 50
	filingScore   = 80
)

// detectors in reporting order. Each returns at most its first
// qualifying match.
var detectors = []func([]domain.Transaction) *domain.HawalaPattern{
	detectStructuring,
	detectRoundTrip,
	detectFanOut,
	detectFanIn,
	detectMirrorTrading,
}

// Detect runs every pattern detector over the history and folds the
// findings into a scored, tiered result. The input is never modified
// and an empty history yields the zero-score default.
func Detect(txs []domain.Transaction) domain.HawalaDetectionResult {
	if len(txs) == 0 {
		return domain.HawalaDetectionResult{
			Patterns:       []domain.HawalaPattern{},
			Recommendation: "no transactions",
		}
	}

	patterns := []domain.HawalaPattern{}
	for _, detect := range detectors {
		if p := detect(txs); p != nil {
			patterns = append(patterns, *p)
		}
	}

	score := hawalaScore(patterns)
	return domain.HawalaDetectionResult{
		Flagged:        score > 0,
		HawalaScore:    score,
		Patterns:       patterns,
		Recommendation: recommendation(score, patterns),
	}
}

func hawalaScore(patterns []domain.HawalaPattern) int {
	var sum float64
	for _, p := range patterns {
		sum += p.Confidence
	}
	score := int(math.Round(sum * pointsPerPattern))
	if score > maxScore {
		return maxScore
	}
	return score
}

func recommendation(score int, patterns []domain.HawalaPattern) string {
	if score == 0 {
		return "no hawala indicators; routine monitoring"
	}

	names := make([]string, 0, len(patterns))
	for _, p := range patterns {
		names = append(names, string(p.Type))
	}
	detected := strings.Join(names, ", ")

	switch {
	case score >= filingScore:
		return fmt.Sprintf("trigger STR/SAR filing workflow immediately: %s detected (score %d)", detected, score)
	case score >= escalateScore:
		return fmt.Sprintf("escalate to senior compliance officer: %s detected (score %d)", detected, score)
	default:
		return fmt.Sprintf("flag for enhanced monitoring: %s detected (score %d)", detected, score)
	}
}

// grouping partitions transactions by a key while preserving
// first-encounter key order, so detector output does not depend on map
// iteration order.
type grouping struct {
	order  []string
	groups map[string][]domain.Transaction
}

func groupBy(txs []domain.Transaction, key func(domain.Transaction) string) *grouping {
	g := &grouping{groups: make(map[string][]domain.Transaction)}
	for _, tx := range txs {
		k := key(tx)
		if _, seen := g.groups[k]; !seen {
			g.order = append(g.order, k)
		}
		g.groups[k] = append(g.groups[k], tx)
	}
	return g
}

// sortedByTime returns a copy ordered by timestamp ascending, stable
// for equal timestamps. The caller's slice is never reordered.
func sortedByTime(txs []domain.Transaction) []domain.Transaction {
	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return sorted
}
