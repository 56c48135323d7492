package patterns

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Baseline activity rates for a typical entity. The anomaly rules fire
// on fixed multiples of these baselines; there is no adaptive learning.
const (
	NormalTxPerHour = 5
	NormalTxPerDay  = 50
	NormalTxPerWeek = 350

	SpikeMultiplier    = 3
	CriticalMultiplier = 10
)

const (
	// largeTransferRatio marks a transaction as outsized relative to the
	// batch average.
	largeTransferRatio = 5.0
	largeTransferShare = 0.1

	// rapidGapMs is the consecutive-transfer gap treated as rapid.
	rapidGapMs     = int64(5 * 60 * 1000)
	rapidHighCount = 5

	// A dominant recipient needs most of the flow and almost no
	// alternatives; the minimum sample keeps single transfers and other
	// trivial histories from tripping the rule.
	concentrationShare     = 0.8
	concentrationMaxUnique = 3
	concentrationMinSample = 5
)

// Anomalies applies the fixed-threshold anomaly rules to a history and
// its velocity profile. Flags come back in rule evaluation order:
// velocity, large transfers, rapid consecutive transfers, counterparty
// concentration.
func Anomalies(txs []domain.Transaction, profile domain.VelocityProfile) []domain.AnomalyFlag {
	if len(txs) == 0 {
		return nil
	}

	var flags []domain.AnomalyFlag

	// Hourly velocity: critical beats spike; at most one of the two.
	switch {
	case profile.TransactionsPerHour > CriticalMultiplier*NormalTxPerHour:
		flags = append(flags, domain.AnomalyFlag{
			Type:        domain.AnomalyCriticalVelocity,
			Severity:    domain.SeverityCritical,
			Description: fmt.Sprintf("%d transactions in the last hour, over %dx the normal hourly rate", profile.TransactionsPerHour, CriticalMultiplier),
			Confidence:  0.95,
		})
	case profile.TransactionsPerHour > SpikeMultiplier*NormalTxPerHour:
		flags = append(flags, domain.AnomalyFlag{
			Type:        domain.AnomalyVelocitySpike,
			Severity:    domain.SeverityHigh,
			Description: fmt.Sprintf("%d transactions in the last hour, over %dx the normal hourly rate", profile.TransactionsPerHour, SpikeMultiplier),
			Confidence:  0.9,
		})
	}

	// Outsized transfers against the batch average.
	large := 0
	for _, tx := range txs {
		if tx.Amount > largeTransferRatio*profile.AverageAmount {
			large++
		}
	}
	if float64(large) > largeTransferShare*float64(len(txs)) {
		flags = append(flags, domain.AnomalyFlag{
			Type:        domain.AnomalyLargeTransfers,
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("%d transactions exceed %.0fx the average amount of %.2f", large, largeTransferRatio, profile.AverageAmount),
			Confidence:  0.85,
		})
	}

	// Rapid consecutive transfers on the time-sorted history.
	sorted := sortedByTime(txs)
	rapid := 0
	for i := 1; i < len(sorted); i++ {
		if int64(sorted[i].Timestamp)-int64(sorted[i-1].Timestamp) < rapidGapMs {
			rapid++
		}
	}
	if rapid > 0 {
		severity := domain.SeverityMedium
		if rapid > rapidHighCount {
			severity = domain.SeverityHigh
		}
		flags = append(flags, domain.AnomalyFlag{
			Type:        domain.AnomalyRapidTransfers,
			Severity:    severity,
			Description: fmt.Sprintf("%d consecutive transfers under 5 minutes apart", rapid),
			Confidence:  math.Min(maxConfidence, float64(rapid)/float64(len(txs))),
		})
	}

	// Counterparty concentration: one recipient dominating the flow.
	if len(txs) >= concentrationMinSample {
		recipients := newBucketCounter()
		for _, tx := range txs {
			recipients.add(tx.To)
		}
		if top, ok := recipients.peak(); ok {
			share := float64(recipients.counts[top]) / float64(len(txs))
			if share > concentrationShare && len(recipients.order) < concentrationMaxUnique {
				flags = append(flags, domain.AnomalyFlag{
					Type:        domain.AnomalyConcentration,
					Severity:    domain.SeverityMedium,
					Description: fmt.Sprintf("recipient %q receives %.0f%% of all transfers", top, share*100),
					Confidence:  0.85,
				})
			}
		}
	}

	return flags
}
