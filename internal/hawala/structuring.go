package hawala

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

const structuringWindowMs = int64(24 * 60 * 60 * 1000)

// detectStructuring looks for a sender splitting a reportable sum into
// several sub-threshold transfers inside a 24-hour window. Senders are
// scanned in first-encounter order and the earliest qualifying window
// wins.
func detectStructuring(txs []domain.Transaction) *domain.HawalaPattern {
	bySender := groupBy(txs, func(tx domain.Transaction) string { return tx.From })

	for _, sender := range bySender.order {
		var sub []domain.Transaction
		for _, tx := range bySender.groups[sender] {
			if tx.Amount < ReportingThreshold {
				sub = append(sub, tx)
			}
		}
		if len(sub) < 2 {
			continue
		}

		sorted := sortedByTime(sub)
		for i := range sorted {
			combined := 0.0
			j := i
			for ; j < len(sorted) && int64(sorted[j].Timestamp)-int64(sorted[i].Timestamp) <= structuringWindowMs; j++ {
				combined += sorted[j].Amount
			}

			size := j - i
			if size < 2 || combined < ReportingThreshold {
				continue
			}

			ids := make([]string, 0, size)
			for _, tx := range sorted[i:j] {
				ids = append(ids, tx.ID)
			}
			return &domain.HawalaPattern{
				Type:         domain.HawalaStructuring,
				Confidence:   math.Min(maxConfidence, 0.6+0.05*float64(size)),
				Description:  fmt.Sprintf("sender %q split %.2f across %d sub-threshold transfers within 24 hours", sender, combined, size),
				Transactions: ids,
			}
		}
	}
	return nil
}
