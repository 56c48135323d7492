package patterns

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Classification thresholds over the inter-transaction gap list.
const (
	clusterGapRatio    = 0.5 // a gap under half the mean counts as clustered
	clusterMinFraction = 0.3
	spikeGapRatio      = 3.0 // a gap over triple the mean counts as a spike
	spikeMinFraction   = 0.2
	rhythmicStdRatio   = 0.3
)

// TemporalPatterns classifies the timing texture of a history from its
// consecutive inter-transaction gaps. Fewer than two transactions carry
// no timing signal and yield no patterns. Clustering and spikes can
// co-occur; IRREGULAR is emitted only when nothing else fires.
func TemporalPatterns(txs []domain.Transaction) []domain.TemporalPattern {
	if len(txs) < 2 {
		return nil
	}

	sorted := sortedByTime(txs)
	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, float64(int64(sorted[i].Timestamp)-int64(sorted[i-1].Timestamp)))
	}

	mean := meanOf(gaps)
	stddev := stddevOf(gaps, mean)

	var patterns []domain.TemporalPattern

	if clustered := fractionBelow(gaps, clusterGapRatio*mean); clustered > clusterMinFraction {
		patterns = append(patterns, domain.TemporalPattern{
			Type:        domain.PatternClustering,
			Confidence:  math.Min(clustered, maxConfidence),
			Description: fmt.Sprintf("transactions arrive in tight bursts: %.0f%% of gaps are under half the mean interval", clustered*100),
		})
	}

	if spiked := fractionAbove(gaps, spikeGapRatio*mean); spiked > spikeMinFraction {
		patterns = append(patterns, domain.TemporalPattern{
			Type:        domain.PatternSpikes,
			Confidence:  math.Min(spiked, maxConfidence),
			Description: fmt.Sprintf("activity spikes after quiet periods: %.0f%% of gaps exceed triple the mean interval", spiked*100),
		})
	}

	if stddev < rhythmicStdRatio*mean {
		confidence := 0.0
		if mean > 0 {
			confidence = 1 - stddev/mean
		}
		patterns = append(patterns, domain.TemporalPattern{
			Type:        domain.PatternRhythmic,
			Confidence:  math.Min(confidence, maxConfidence),
			Description: "transactions follow a regular cadence with low gap variation",
		})
	}

	if len(patterns) == 0 {
		patterns = append(patterns, domain.TemporalPattern{
			Type:        domain.PatternIrregular,
			Confidence:  0.5,
			Description: "no dominant timing structure",
		})
	}

	return patterns
}

// sortedByTime returns a copy ordered by timestamp ascending. The
// caller's slice is never reordered. The sort is stable so equal
// timestamps keep their input order.
func sortedByTime(txs []domain.Transaction) []domain.Transaction {
	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return sorted
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddevOf is the population standard deviation around mean.
func stddevOf(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func fractionBelow(values []float64, limit float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v < limit {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

func fractionAbove(values []float64, limit float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v > limit {
			count++
		}
	}
	return float64(count) / float64(len(values))
}
