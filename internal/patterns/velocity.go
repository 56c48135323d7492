package patterns

import (
	"strconv"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Trailing window lengths in epoch milliseconds.
const (
	hourMs = int64(60 * 60 * 1000)
	dayMs  = 24 * hourMs
	weekMs = 7 * dayMs
)

// Profile computes transaction velocity as seen from the reference
// instant. A transaction counts toward a trailing window iff its
// timestamp falls strictly after now minus the window length. Average
// and total are taken over the whole history; peaks are the busiest
// UTC hour of day and calendar day.
func Profile(now time.Time, txs []domain.Transaction) domain.VelocityProfile {
	profile := domain.VelocityProfile{}
	if len(txs) == 0 {
		return profile
	}

	nowMs := now.UnixMilli()
	hourCutoff := nowMs - hourMs
	dayCutoff := nowMs - dayMs
	weekCutoff := nowMs - weekMs

	hours := newBucketCounter()
	days := newBucketCounter()

	var total float64
	for _, tx := range txs {
		ts := int64(tx.Timestamp)
		if ts > hourCutoff {
			profile.TransactionsPerHour++
		}
		if ts > dayCutoff {
			profile.TransactionsPerDay++
		}
		if ts > weekCutoff {
			profile.TransactionsPerWeek++
		}
		total += tx.Amount

		t := tx.Timestamp.Time()
		hours.add(strconv.Itoa(t.Hour()))
		days.add(t.Format("2006-01-02"))
	}

	profile.TotalVolume = total
	profile.AverageAmount = total / float64(len(txs))

	if label, ok := hours.peak(); ok {
		if hour, err := strconv.Atoi(label); err == nil {
			profile.PeakHour = &hour
		}
	}
	if label, ok := days.peak(); ok {
		day := label
		profile.PeakDay = &day
	}

	return profile
}

// bucketCounter counts labels while remembering first-encounter order,
// so peak ties resolve deterministically instead of by map iteration.
type bucketCounter struct {
	counts map[string]int
	order  []string
}

func newBucketCounter() *bucketCounter {
	return &bucketCounter{counts: make(map[string]int)}
}

func (b *bucketCounter) add(label string) {
	if _, seen := b.counts[label]; !seen {
		b.order = append(b.order, label)
	}
	b.counts[label]++
}

// peak returns the label with the highest count. Ties go to the label
// encountered first.
func (b *bucketCounter) peak() (string, bool) {
	if len(b.order) == 0 {
		return "", false
	}
	best := b.order[0]
	for _, label := range b.order[1:] {
		if b.counts[label] > b.counts[best] {
			best = label
		}
	}
	return best, true
}
