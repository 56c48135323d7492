package hawala

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

const (
	mirrorWindowMs  = int64(24 * 60 * 60 * 1000)
	mirrorTolerance = 0.05
)

// detectMirrorTrading pairs near-identical amounts booked in different
// jurisdictions within 24 hours, the classic hawala settlement shape.
// Only transactions tagged with a jurisdiction participate.
func detectMirrorTrading(txs []domain.Transaction) *domain.HawalaPattern {
	var tagged []domain.Transaction
	for _, tx := range txs {
		if tx.Jurisdiction != "" {
			tagged = append(tagged, tx)
		}
	}

	for i := 0; i < len(tagged); i++ {
		for j := i + 1; j < len(tagged); j++ {
			a, b := tagged[i], tagged[j]
			if a.Jurisdiction == b.Jurisdiction {
				continue
			}
			if math.Abs(a.Amount-b.Amount) > mirrorTolerance*a.Amount {
				continue
			}
			gap := int64(b.Timestamp) - int64(a.Timestamp)
			if gap < 0 {
				gap = -gap
			}
			if gap > mirrorWindowMs {
				continue
			}
			return &domain.HawalaPattern{
				Type:         domain.HawalaMirrorTrading,
				Confidence:   0.75,
				Description:  fmt.Sprintf("near-identical amounts booked in %s and %s within 24 hours", a.Jurisdiction, b.Jurisdiction),
				Transactions: []string{a.ID, b.ID},
			}
		}
	}
	return nil
}
