package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "harrier-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		tx := &domain.Transaction{
			ID:           "tx-001",
			From:         "acct-001",
			To:           "acct-002",
			Amount:       1000.00,
			Timestamp:    domain.NewEpochMillis(base),
			Type:         "transfer",
			Currency:     "USD",
			Jurisdiction: "US",
		}

		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		retrieved, err := repo.GetTransaction(ctx, tenantID, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}

		if retrieved.ID != tx.ID {
			t.Errorf("expected ID %s, got %s", tx.ID, retrieved.ID)
		}
		if retrieved.Amount != tx.Amount {
			t.Errorf("expected Amount %.2f, got %.2f", tx.Amount, retrieved.Amount)
		}
		if retrieved.Timestamp != tx.Timestamp {
			t.Errorf("expected Timestamp %d, got %d", tx.Timestamp, retrieved.Timestamp)
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
	})

	t.Run("ReingestIsNoOp", func(t *testing.T) {
		tx := &domain.Transaction{
			ID:        "tx-001",
			From:      "acct-999",
			To:        "acct-998",
			Amount:    42.00,
			Timestamp: domain.NewEpochMillis(base),
		}

		// Same ID as an existing row; the original must survive
		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		retrieved, err := repo.GetTransaction(ctx, tenantID, "tx-001")
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if retrieved.From != "acct-001" {
			t.Errorf("expected original row kept, got From %s", retrieved.From)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherTenant := "tenant-002"

		// Try to get tx from different tenant
		_, err := repo.GetTransaction(ctx, otherTenant, "tx-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		tx := &domain.Transaction{ID: "tx-test"}

		err := repo.SaveTransaction(ctx, "", tx)
		if err == nil {
			t.Error("expected error for empty tenantID")
		}

		_, err = repo.GetTransaction(ctx, "", "tx-001")
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("SaveTransactionsBatch", func(t *testing.T) {
		batch := []*domain.Transaction{
			{ID: "tx-010", From: "acct-batch", To: "acct-002", Amount: 100, Timestamp: domain.NewEpochMillis(base.Add(1 * time.Minute))},
			{ID: "tx-011", From: "acct-batch", To: "acct-003", Amount: 200, Timestamp: domain.NewEpochMillis(base.Add(2 * time.Minute))},
			{ID: "tx-012", From: "acct-004", To: "acct-batch", Amount: 300, Timestamp: domain.NewEpochMillis(base.Add(3 * time.Minute))},
		}

		if err := repo.SaveTransactions(ctx, tenantID, batch); err != nil {
			t.Fatalf("SaveTransactions failed: %v", err)
		}

		txs, err := repo.GetTransactionsByEntity(ctx, tenantID, "acct-batch", base.Add(-time.Hour), 0)
		if err != nil {
			t.Fatalf("GetTransactionsByEntity failed: %v", err)
		}
		// Sender on two rows, recipient on one
		if len(txs) != 3 {
			t.Errorf("expected 3 transactions, got %d", len(txs))
		}
	})

	t.Run("GetTransactionsByEntity", func(t *testing.T) {
		tx2 := &domain.Transaction{
			ID:        "tx-002",
			From:      "acct-001", // same sender as tx-001
			To:        "acct-003",
			Amount:    500.00,
			Timestamp: domain.NewEpochMillis(base.Add(10 * time.Minute)),
		}

		if err := repo.SaveTransaction(ctx, tenantID, tx2); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		since := base.Add(-1 * time.Hour)
		transactions, err := repo.GetTransactionsByEntity(ctx, tenantID, "acct-001", since, 0)
		if err != nil {
			t.Fatalf("GetTransactionsByEntity failed: %v", err)
		}

		if len(transactions) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(transactions))
		}
		// Newest first
		if transactions[0].ID != "tx-002" {
			t.Errorf("expected tx-002 first, got %s", transactions[0].ID)
		}

		limited, err := repo.GetTransactionsByEntity(ctx, tenantID, "acct-001", since, 1)
		if err != nil {
			t.Fatalf("GetTransactionsByEntity with limit failed: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 transaction with limit, got %d", len(limited))
		}

		cutoff := base.Add(5 * time.Minute)
		recent, err := repo.GetTransactionsByEntity(ctx, tenantID, "acct-001", cutoff, 0)
		if err != nil {
			t.Fatalf("GetTransactionsByEntity with since failed: %v", err)
		}
		if len(recent) != 1 || recent[0].ID != "tx-002" {
			t.Errorf("expected only tx-002 after cutoff, got %d rows", len(recent))
		}
	})

	t.Run("RuleLifecycle", func(t *testing.T) {
		zero := 0.0
		fifty := 50.0

		rule := &domain.EscalationRule{
			ID:         "rule-hawala",
			Name:       "Hawala score escalation",
			Version:    "1.0",
			Expression: "hawala_score",
			Bands: []domain.RuleBand{
				{LowerLimit: &zero, UpperLimit: &fifty, SubRuleRef: domain.RuleOutcomePass, Reason: "score in normal band"},
				{LowerLimit: &fifty, SubRuleRef: domain.RuleOutcomeFail, Reason: "score in escalation band"},
			},
			Weight:  1.5,
			Enabled: true,
		}

		if err := repo.SaveRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		retrieved, err := repo.GetRule(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if retrieved.Expression != rule.Expression {
			t.Errorf("expected expression %q, got %q", rule.Expression, retrieved.Expression)
		}
		if len(retrieved.Bands) != 2 {
			t.Fatalf("expected 2 bands, got %d", len(retrieved.Bands))
		}
		if retrieved.Bands[1].UpperLimit != nil {
			t.Error("expected open upper limit on escalation band")
		}
		if retrieved.Weight != 1.5 {
			t.Errorf("expected weight 1.5, got %f", retrieved.Weight)
		}

		rules, err := repo.ListRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Errorf("expected 1 rule, got %d", len(rules))
		}

		if err := repo.DeleteRule(ctx, tenantID, rule.ID); err != nil {
			t.Fatalf("DeleteRule failed: %v", err)
		}

		if _, err := repo.GetRule(ctx, tenantID, rule.ID); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}

		if err := repo.DeleteRule(ctx, tenantID, "no-such-rule"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound deleting unknown rule, got: %v", err)
		}
	})

	t.Run("SaveAndGetScreening", func(t *testing.T) {
		peak := 9
		s := &domain.Screening{
			ID:        "scr-001",
			EntityID:  "acct-001",
			Status:    domain.StatusAlert,
			Score:     0.82,
			Timestamp: base,
			Analysis: domain.PatternAnalysisResult{
				Velocity: domain.VelocityProfile{
					TransactionsPerHour: 12,
					TransactionsPerDay:  40,
					AverageAmount:       250.0,
					TotalVolume:         10000.0,
					PeakHour:            &peak,
				},
				HasAnomalies: true,
				RiskLevel:    domain.RiskHigh,
				Confidence:   0.7,
			},
			Hawala: domain.HawalaDetectionResult{
				Flagged:     true,
				HawalaScore: 30,
				Patterns: []domain.HawalaPattern{
					{Type: domain.HawalaStructuring, Confidence: 0.75, Transactions: []string{"tx-001"}},
				},
				Recommendation: "flag for enhanced monitoring",
			},
			RuleResults: []domain.RuleResult{
				{RuleID: "rule-hawala", Score: 0.8, SubRuleRef: domain.RuleOutcomeFail, Reason: "score in escalation band"},
			},
			Reasons:  []string{"score in escalation band"},
			Metadata: domain.ScreeningMetadata{TraceID: "trace-001", TransactionCount: 40, EngineVersion: "harrier-1.0"},
		}

		if err := repo.SaveScreening(ctx, tenantID, s); err != nil {
			t.Fatalf("SaveScreening failed: %v", err)
		}

		retrieved, err := repo.GetScreening(ctx, tenantID, s.ID)
		if err != nil {
			t.Fatalf("GetScreening failed: %v", err)
		}

		if retrieved.ID != s.ID {
			t.Errorf("expected ID %s, got %s", s.ID, retrieved.ID)
		}
		if retrieved.Status != s.Status {
			t.Errorf("expected Status %s, got %s", s.Status, retrieved.Status)
		}
		if retrieved.Score != s.Score {
			t.Errorf("expected Score %.2f, got %.2f", s.Score, retrieved.Score)
		}
		if retrieved.Analysis.RiskLevel != domain.RiskHigh {
			t.Errorf("expected analysis risk level preserved, got %s", retrieved.Analysis.RiskLevel)
		}
		if retrieved.Analysis.Velocity.PeakHour == nil || *retrieved.Analysis.Velocity.PeakHour != 9 {
			t.Error("expected peak hour preserved through JSON round trip")
		}
		if retrieved.Hawala.HawalaScore != 30 || len(retrieved.Hawala.Patterns) != 1 {
			t.Errorf("expected hawala result preserved, got %+v", retrieved.Hawala)
		}
		if len(retrieved.RuleResults) != 1 || retrieved.RuleResults[0].RuleID != "rule-hawala" {
			t.Errorf("expected rule results preserved, got %+v", retrieved.RuleResults)
		}
		if retrieved.Metadata.TraceID != "trace-001" {
			t.Errorf("expected metadata preserved, got %+v", retrieved.Metadata)
		}
	})

	t.Run("ListScreeningsByEntity", func(t *testing.T) {
		s2 := &domain.Screening{
			ID:        "scr-002",
			EntityID:  "acct-001",
			Status:    domain.StatusNoAlert,
			Score:     0.1,
			Timestamp: base.Add(1 * time.Hour),
			Metadata:  domain.ScreeningMetadata{TraceID: "trace-002"},
		}
		if err := repo.SaveScreening(ctx, tenantID, s2); err != nil {
			t.Fatalf("SaveScreening failed: %v", err)
		}

		screenings, err := repo.ListScreeningsByEntity(ctx, tenantID, "acct-001", 0)
		if err != nil {
			t.Fatalf("ListScreeningsByEntity failed: %v", err)
		}
		if len(screenings) != 2 {
			t.Fatalf("expected 2 screenings, got %d", len(screenings))
		}
		// Newest first
		if screenings[0].ID != "scr-002" {
			t.Errorf("expected scr-002 first, got %s", screenings[0].ID)
		}

		limited, err := repo.ListScreeningsByEntity(ctx, tenantID, "acct-001", 1)
		if err != nil {
			t.Fatalf("ListScreeningsByEntity with limit failed: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 screening with limit, got %d", len(limited))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetScreening(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
