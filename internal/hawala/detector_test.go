package hawala

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var testRef = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func transfer(id, from, to string, amount float64, ts time.Time) domain.Transaction {
	return domain.Transaction{
		ID:        id,
		From:      from,
		To:        to,
		Amount:    amount,
		Timestamp: domain.NewEpochMillis(ts),
	}
}

// structuringRing is three sub-threshold transfers a minute apart that
// combine over the reporting threshold.
func structuringRing() []domain.Transaction {
	return []domain.Transaction{
		transfer("tx-001", "acct-s", "acct-r", 9999, testRef),
		transfer("tx-002", "acct-s", "acct-r", 9999, testRef.Add(time.Minute)),
		transfer("tx-003", "acct-s", "acct-r", 9999, testRef.Add(2*time.Minute)),
	}
}

func patternTypes(res domain.HawalaDetectionResult) []domain.HawalaPatternType {
	types := make([]domain.HawalaPatternType, 0, len(res.Patterns))
	for _, p := range res.Patterns {
		types = append(types, p.Type)
	}
	return types
}

func TestDetect(t *testing.T) {
	t.Run("EmptyHistory", func(t *testing.T) {
		res := Detect(nil)

		if res.Flagged {
			t.Error("empty history should not be flagged")
		}
		if res.HawalaScore != 0 {
			t.Errorf("expected score 0, got %d", res.HawalaScore)
		}
		if res.Patterns == nil || len(res.Patterns) != 0 {
			t.Errorf("expected empty pattern list, got %v", res.Patterns)
		}
		if res.Recommendation != "no transactions" {
			t.Errorf("unexpected recommendation: %s", res.Recommendation)
		}
	})

	t.Run("CleanHistory", func(t *testing.T) {
		txs := []domain.Transaction{
			transfer("tx-001", "acct-a", "acct-b", 25000, testRef.Add(-48*time.Hour)),
			transfer("tx-002", "acct-a", "acct-c", 40000, testRef.Add(-24*time.Hour)),
		}

		res := Detect(txs)

		if res.Flagged || res.HawalaScore != 0 {
			t.Errorf("expected clean result, got flagged=%v score=%d", res.Flagged, res.HawalaScore)
		}
		if len(res.Patterns) != 0 {
			t.Errorf("expected no patterns, got %v", res.Patterns)
		}
		if !strings.Contains(res.Recommendation, "routine monitoring") {
			t.Errorf("expected routine monitoring, got: %s", res.Recommendation)
		}
	})

	t.Run("StructuringScenario", func(t *testing.T) {
		res := Detect(structuringRing())

		if len(res.Patterns) != 1 || res.Patterns[0].Type != domain.HawalaStructuring {
			t.Fatalf("expected one STRUCTURING pattern, got %v", patternTypes(res))
		}
		// 0.6 + 3*0.05 = 0.75 -> 30 points
		if math.Abs(res.Patterns[0].Confidence-0.75) > 1e-9 {
			t.Errorf("expected confidence 0.75, got %.2f", res.Patterns[0].Confidence)
		}
		if res.HawalaScore < 24 {
			t.Errorf("expected score >= 24, got %d", res.HawalaScore)
		}
		if !res.Flagged {
			t.Error("structuring should flag the history")
		}
		if !strings.Contains(res.Recommendation, "STRUCTURING") {
			t.Errorf("recommendation should name the pattern: %s", res.Recommendation)
		}
		if !strings.Contains(res.Recommendation, "enhanced monitoring") {
			t.Errorf("score 30 should sit in the enhanced monitoring tier: %s", res.Recommendation)
		}
	})

	t.Run("RoundTripScenario", func(t *testing.T) {
		txs := []domain.Transaction{
			transfer("tx-001", "acct-x", "acct-y", 500000, testRef),
			transfer("tx-002", "acct-y", "acct-x", 500000, testRef.Add(time.Hour)),
		}

		res := Detect(txs)

		if len(res.Patterns) != 1 || res.Patterns[0].Type != domain.HawalaRoundTrip {
			t.Fatalf("expected one ROUND_TRIP pattern, got %v", patternTypes(res))
		}
		if res.Patterns[0].Confidence < 0.8 {
			t.Errorf("expected confidence >= 0.8, got %.2f", res.Patterns[0].Confidence)
		}
		if !res.Flagged {
			t.Error("round trip should flag the history")
		}
	})

	t.Run("EscalationTier", func(t *testing.T) {
		txs := append(structuringRing(),
			transfer("tx-004", "acct-a", "acct-b", 20000, testRef),
			domain.Transaction{
				ID: "tx-005", From: "acct-b", To: "acct-a", Amount: 20000,
				Timestamp: domain.NewEpochMillis(testRef.Add(3 * time.Hour)), Type: "return",
			},
		)

		res := Detect(txs)

		// structuring 0.75 + typed round trip 0.85 -> 64 points
		if res.HawalaScore != 64 {
			t.Errorf("expected score 64, got %d", res.HawalaScore)
		}
		if !strings.Contains(res.Recommendation, "senior compliance officer") {
			t.Errorf("score 64 should escalate: %s", res.Recommendation)
		}
		if !strings.Contains(res.Recommendation, "STRUCTURING") || !strings.Contains(res.Recommendation, "ROUND_TRIP") {
			t.Errorf("recommendation should name both patterns: %s", res.Recommendation)
		}
	})

	t.Run("ScoreSaturation", func(t *testing.T) {
		txs := structuringRing()
		txs = append(txs,
			transfer("tx-010", "acct-a", "acct-b", 20000, testRef),
			domain.Transaction{
				ID: "tx-011", From: "acct-b", To: "acct-a", Amount: 20000,
				Timestamp: domain.NewEpochMillis(testRef.Add(time.Hour)), Type: "return",
			},
		)
		for i := 0; i < 5; i++ {
			txs = append(txs,
				transfer("fan-out-"+string(rune('a'+i)), "acct-hub", "acct-o"+string(rune('a'+i)), 1000, testRef.Add(time.Duration(i)*10*time.Minute)),
				transfer("fan-in-"+string(rune('a'+i)), "acct-i"+string(rune('a'+i)), "acct-sink", 1000, testRef.Add(time.Duration(i)*10*time.Minute)),
			)
		}
		txs = append(txs,
			domain.Transaction{
				ID: "tx-020", From: "acct-p", To: "acct-q", Amount: 30000,
				Timestamp: domain.NewEpochMillis(testRef), Jurisdiction: "US",
			},
			domain.Transaction{
				ID: "tx-021", From: "acct-m", To: "acct-n", Amount: 30500,
				Timestamp: domain.NewEpochMillis(testRef.Add(2 * time.Hour)), Jurisdiction: "AE",
			},
		)

		res := Detect(txs)

		if len(res.Patterns) != 5 {
			t.Fatalf("expected all five pattern types, got %v", patternTypes(res))
		}
		if res.HawalaScore != 100 {
			t.Errorf("expected saturated score 100, got %d", res.HawalaScore)
		}
		if !strings.Contains(res.Recommendation, "STR/SAR") {
			t.Errorf("score 100 should trigger filing: %s", res.Recommendation)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		txs := structuringRing()

		first := Detect(txs)
		second := Detect(txs)

		if !reflect.DeepEqual(first, second) {
			t.Error("same history should produce identical results")
		}
	})

	t.Run("InputNotMutated", func(t *testing.T) {
		txs := []domain.Transaction{
			transfer("tx-003", "acct-s", "acct-r", 9999, testRef.Add(2*time.Minute)),
			transfer("tx-001", "acct-s", "acct-r", 9999, testRef),
			transfer("tx-002", "acct-s", "acct-r", 9999, testRef.Add(time.Minute)),
		}
		snapshot := make([]domain.Transaction, len(txs))
		copy(snapshot, txs)

		Detect(txs)

		if !reflect.DeepEqual(txs, snapshot) {
			t.Error("input slice was reordered or modified")
		}
	})

	t.Run("ScoreGrowsWithEvidence", func(t *testing.T) {
		base := structuringRing()
		more := append(append([]domain.Transaction{}, base...),
			transfer("tx-004", "acct-s", "acct-r", 9999, testRef.Add(3*time.Minute)))

		if Detect(more).HawalaScore < Detect(base).HawalaScore {
			t.Error("adding a matching transfer lowered the score")
		}
	})
}
