package hawala

import (
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func typedTransfer(id, from, to string, amount float64, ts time.Time, txType string) domain.Transaction {
	tx := transfer(id, from, to, amount, ts)
	tx.Type = txType
	return tx
}

func TestDetectRoundTrip(t *testing.T) {
	t.Run("TypedReturn", func(t *testing.T) {
		txs := []domain.Transaction{
			typedTransfer("tx-001", "acct-x", "acct-y", 10000, testRef, "transfer"),
			typedTransfer("tx-002", "acct-y", "acct-x", 10500, testRef.Add(5*time.Hour), "return"),
		}

		p := detectRoundTrip(txs)

		if p == nil {
			t.Fatal("expected a round-trip match")
		}
		if p.Confidence != 0.85 {
			t.Errorf("expected typed confidence 0.85, got %.2f", p.Confidence)
		}
		if len(p.Transactions) != 2 || p.Transactions[0] != "tx-001" || p.Transactions[1] != "tx-002" {
			t.Errorf("expected outbound then inbound recorded, got %v", p.Transactions)
		}
	})

	t.Run("UntypedFallback", func(t *testing.T) {
		txs := []domain.Transaction{
			transfer("tx-001", "acct-x", "acct-y", 500000, testRef),
			transfer("tx-002", "acct-y", "acct-x", 500000, testRef.Add(time.Hour)),
		}

		p := detectRoundTrip(txs)

		if p == nil {
			t.Fatal("expected a fallback round-trip match")
		}
		if p.Confidence != 0.8 {
			t.Errorf("expected fallback confidence 0.8, got %.2f", p.Confidence)
		}
	})

	t.Run("AmountOutsideTolerance", func(t *testing.T) {
		// 12000 back against 10000 out is a 20% difference
		txs := []domain.Transaction{
			transfer("tx-001", "acct-x", "acct-y", 10000, testRef),
			transfer("tx-002", "acct-y", "acct-x", 12000, testRef.Add(time.Hour)),
		}

		if p := detectRoundTrip(txs); p != nil {
			t.Errorf("expected no match outside tolerance, got %+v", p)
		}
	})

	t.Run("GapTooWide", func(t *testing.T) {
		txs := []domain.Transaction{
			transfer("tx-001", "acct-x", "acct-y", 10000, testRef),
			transfer("tx-002", "acct-y", "acct-x", 10000, testRef.Add(50*time.Hour)),
		}

		if p := detectRoundTrip(txs); p != nil {
			t.Errorf("expected no match 50 hours apart, got %+v", p)
		}
	})

	t.Run("SameDirectionNoMatch", func(t *testing.T) {
		txs := []domain.Transaction{
			transfer("tx-001", "acct-x", "acct-y", 10000, testRef),
			transfer("tx-002", "acct-x", "acct-y", 10000, testRef.Add(time.Hour)),
		}

		if p := detectRoundTrip(txs); p != nil {
			t.Errorf("expected no match without a reversal, got %+v", p)
		}
	})
}
