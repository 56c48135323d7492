package hawala

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

const (
	dispersalWindowMs   = int64(60 * 60 * 1000)
	dispersalMinParties = 5
)

// detectFanOut flags a sender dispersing funds to five or more distinct
// recipients inside a single hour.
func detectFanOut(txs []domain.Transaction) *domain.HawalaPattern {
	return detectDispersal(txs,
		func(tx domain.Transaction) string { return tx.From },
		func(tx domain.Transaction) string { return tx.To },
		domain.HawalaFanOut,
		"sender %q paid %d distinct recipients within one hour",
	)
}

// detectFanIn is the mirror image: five or more distinct senders
// converging on one recipient inside a single hour.
func detectFanIn(txs []domain.Transaction) *domain.HawalaPattern {
	return detectDispersal(txs,
		func(tx domain.Transaction) string { return tx.To },
		func(tx domain.Transaction) string { return tx.From },
		domain.HawalaFanIn,
		"recipient %q received from %d distinct senders within one hour",
	)
}

// detectDispersal slides a one-hour window over each hub's transfers
// and flags the first window touching enough distinct counterparties.
// Confidence scales with the Shannon entropy of the in-window
// counterparty distribution: evenly spread flow reads as deliberate
// dispersal, a lopsided one as ordinary traffic.
func detectDispersal(txs []domain.Transaction, hub, spoke func(domain.Transaction) string, typ domain.HawalaPatternType, descFormat string) *domain.HawalaPattern {
	byHub := groupBy(txs, hub)

	for _, h := range byHub.order {
		sorted := sortedByTime(byHub.groups[h])
		for i := range sorted {
			j := i
			for j < len(sorted) && int64(sorted[j].Timestamp)-int64(sorted[i].Timestamp) <= dispersalWindowMs {
				j++
			}
			window := sorted[i:j]

			counterparties := groupBy(window, spoke)
			if len(counterparties.order) < dispersalMinParties {
				continue
			}

			entropy := 0.0
			for _, party := range counterparties.order {
				p := float64(len(counterparties.groups[party])) / float64(len(window))
				entropy -= p * math.Log2(p)
			}

			ids := make([]string, 0, len(window))
			for _, tx := range window {
				ids = append(ids, tx.ID)
			}
			return &domain.HawalaPattern{
				Type:         typ,
				Confidence:   math.Min(maxConfidence, 0.5+0.1*entropy),
				Description:  fmt.Sprintf(descFormat, h, len(counterparties.order)),
				Transactions: ids,
			}
		}
	}
	return nil
}
