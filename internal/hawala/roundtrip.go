package hawala

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

const (
	roundTripWindowMs  = int64(48 * 60 * 60 * 1000)
	roundTripTolerance = 0.10
)

// detectRoundTrip finds funds leaving an account and coming straight
// back: an outbound transfer answered by a reversed transfer of nearly
// the same amount within 48 hours. Histories that label direction are
// matched on the return/incoming type; unlabeled histories fall back to
// a pairwise scan at slightly lower confidence.
func detectRoundTrip(txs []domain.Transaction) *domain.HawalaPattern {
	for i, out := range txs {
		if out.Type == "return" {
			continue
		}
		for j, in := range txs {
			if i == j {
				continue
			}
			if in.Type != "return" && in.Type != "incoming" {
				continue
			}
			if reversedPair(out, in) {
				return roundTripPattern(out, in, 0.85)
			}
		}
	}

	for i, out := range txs {
		for j, in := range txs {
			if i == j {
				continue
			}
			if reversedPair(out, in) {
				return roundTripPattern(out, in, 0.8)
			}
		}
	}
	return nil
}

// reversedPair reports whether in sends the money back: swapped
// counterparties, amount within tolerance of the outbound amount, and
// at most 48 hours between the two in either direction.
func reversedPair(out, in domain.Transaction) bool {
	if in.From != out.To || in.To != out.From {
		return false
	}
	if math.Abs(in.Amount-out.Amount) > roundTripTolerance*out.Amount {
		return false
	}
	gap := int64(in.Timestamp) - int64(out.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	return gap <= roundTripWindowMs
}

func roundTripPattern(out, in domain.Transaction, confidence float64) *domain.HawalaPattern {
	return &domain.HawalaPattern{
		Type:         domain.HawalaRoundTrip,
		Confidence:   confidence,
		Description:  fmt.Sprintf("%.2f sent from %q to %q and returned within 48 hours", out.Amount, out.From, out.To),
		Transactions: []string{out.ID, in.ID},
	}
}
