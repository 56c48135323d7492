package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/decision"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/history"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/screening"
)

func TestWorker(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "harrier-worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	engine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	zero := 0.0
	half := 0.5
	engine.LoadRule(&domain.EscalationRule{
		ID:         "hawala-gate",
		TenantID:   "*",
		Name:       "Hawala gate",
		Version:    "1.0",
		Expression: "hawala_flagged ? 1.0 : 0.0",
		Bands: []domain.RuleBand{
			{LowerLimit: &zero, UpperLimit: &half, SubRuleRef: domain.RuleOutcomePass, Reason: ""},
			{LowerLimit: &half, UpperLimit: nil, SubRuleRef: domain.RuleOutcomeFail, Reason: "hawala patterns detected"},
		},
		Weight:  1.0,
		Enabled: true,
	})

	hist := history.NewService(repo, 30*24*time.Hour, 1000)
	screener := screening.NewService(hist, engine, decision.NewProcessor(), repo, nil, eventBus, 0)

	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, screener)

		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		if err := w.Start(cfg); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions (ingest + request), got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ScreensBothPartiesOnIngest", func(t *testing.T) {
		w := NewWorker(eventBus, screener)
		w.Start(Config{TenantIDs: []string{"tenant-ing"}})
		defer w.Stop()

		var mu sync.Mutex
		var screened []string

		eventBus.Subscribe(ctx, "tenant-ing", domain.TopicScreeningCompleted, func(ctx context.Context, msg *domain.Message) error {
			var s domain.Screening
			if err := json.Unmarshal(msg.Payload, &s); err != nil {
				return err
			}
			mu.Lock()
			screened = append(screened, s.EntityID)
			mu.Unlock()
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		tx := &domain.Transaction{
			ID:        "tx-ing-001",
			From:      "acct-w1",
			To:        "acct-w2",
			Amount:    500.0,
			Timestamp: domain.NewEpochMillis(now.Add(-10 * time.Minute)),
			Type:      "transfer",
		}
		if err := repo.SaveTransaction(ctx, "tenant-ing", tx); err != nil {
			t.Fatalf("failed to save transaction: %v", err)
		}

		payload, _ := json.Marshal(tx)
		if err := eventBus.Publish(ctx, "tenant-ing", domain.TopicTransactionIngested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(200 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if len(screened) != 2 {
			t.Fatalf("expected 2 screenings (sender and recipient), got %d: %v", len(screened), screened)
		}

		seen := map[string]bool{}
		for _, e := range screened {
			seen[e] = true
		}
		if !seen["acct-w1"] || !seen["acct-w2"] {
			t.Errorf("expected both parties screened, got %v", screened)
		}
	})

	t.Run("AlertOnStructuringHistory", func(t *testing.T) {
		w := NewWorker(eventBus, screener)
		w.Start(Config{TenantIDs: []string{"tenant-alert"}})
		defer w.Stop()

		var alertReceived atomic.Bool

		eventBus.Subscribe(ctx, "tenant-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// Four sub-threshold transfers inside 24h, enough for structuring
		recipients := []string{"acct-r1", "acct-r2", "acct-r3", "acct-r4"}
		ring := make([]*domain.Transaction, 0, len(recipients))
		for i, to := range recipients {
			ring = append(ring, &domain.Transaction{
				ID:        "tx-ring-" + to,
				From:      "acct-ring",
				To:        to,
				Amount:    3000.00,
				Timestamp: domain.NewEpochMillis(now.Add(-time.Duration(2*(i+1)) * time.Hour)),
				Type:      "transfer",
			})
		}
		if err := repo.SaveTransactions(ctx, "tenant-alert", ring); err != nil {
			t.Fatalf("failed to seed ring: %v", err)
		}

		payload, _ := json.Marshal(ring[0])
		eventBus.Publish(ctx, "tenant-alert", domain.TopicTransactionIngested, payload)

		time.Sleep(200 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected alert for structuring history")
		}
	})

	t.Run("ScreensOnRequest", func(t *testing.T) {
		w := NewWorker(eventBus, screener)
		w.Start(Config{TenantIDs: []string{"tenant-req"}})
		defer w.Stop()

		var completed atomic.Bool
		var completedPayload []byte

		eventBus.Subscribe(ctx, "tenant-req", domain.TopicScreeningCompleted, func(ctx context.Context, msg *domain.Message) error {
			completedPayload = msg.Payload
			completed.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(ScreeningRequest{
			EntityID: "acct-req",
			TraceID:  "trace-req",
		})
		if err := eventBus.Publish(ctx, "tenant-req", domain.TopicScreeningRequested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(200 * time.Millisecond)

		if !completed.Load() {
			t.Fatal("expected screening to complete")
		}

		var s domain.Screening
		if err := json.Unmarshal(completedPayload, &s); err != nil {
			t.Fatalf("failed to parse screening: %v", err)
		}
		if s.EntityID != "acct-req" {
			t.Errorf("expected entity acct-req, got %s", s.EntityID)
		}
		if s.TenantID != "tenant-req" {
			t.Errorf("expected tenant tenant-req, got %s", s.TenantID)
		}
		if s.Metadata.TraceID != "trace-req" {
			t.Errorf("expected trace trace-req, got %s", s.Metadata.TraceID)
		}
	})

	t.Run("BadPayloadDoesNotStopWorker", func(t *testing.T) {
		w := NewWorker(eventBus, screener)
		w.Start(Config{TenantIDs: []string{"tenant-bad"}})
		defer w.Stop()

		var completed atomic.Bool

		eventBus.Subscribe(ctx, "tenant-bad", domain.TopicScreeningCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		eventBus.Publish(ctx, "tenant-bad", domain.TopicScreeningRequested, []byte("not-json"))
		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(ScreeningRequest{EntityID: "acct-ok"})
		eventBus.Publish(ctx, "tenant-bad", domain.TopicScreeningRequested, payload)

		time.Sleep(200 * time.Millisecond)

		if !completed.Load() {
			t.Error("worker should keep processing after a bad payload")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, screener)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 4 {
			t.Errorf("expected 4 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}
