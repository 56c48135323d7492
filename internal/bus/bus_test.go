package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func waitOrFail(t *testing.T, wg *sync.WaitGroup, what string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func TestChannelBus(t *testing.T) {
	cb := NewChannelBus(100)
	defer cb.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("DeliversToSubscriber", func(t *testing.T) {
		var got *domain.Message
		var wg sync.WaitGroup
		wg.Add(1)

		_, err := cb.Subscribe(ctx, tenantID, domain.TopicScreeningRequested, func(ctx context.Context, msg *domain.Message) error {
			got = msg
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := cb.Publish(ctx, tenantID, domain.TopicScreeningRequested, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		waitOrFail(t, &wg, "delivery")

		if string(got.Payload) != "hello" {
			t.Errorf("expected payload hello, got %q", got.Payload)
		}
		if got.TenantID != tenantID {
			t.Errorf("expected tenant %s stamped on message, got %s", tenantID, got.TenantID)
		}
		if got.Topic != domain.TopicScreeningRequested {
			t.Errorf("expected topic stamped on message, got %s", got.Topic)
		}
		if got.ID == "" {
			t.Error("message should carry a generated id")
		}
	})

	t.Run("TenantsIsolated", func(t *testing.T) {
		var mine atomic.Int32
		var theirs atomic.Int32
		var wg sync.WaitGroup
		wg.Add(1)

		cb.Subscribe(ctx, "tenant-a", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			mine.Add(1)
			wg.Done()
			return nil
		})
		cb.Subscribe(ctx, "tenant-b", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			theirs.Add(1)
			return nil
		})

		cb.Publish(ctx, "tenant-a", "isolation.topic", []byte("msg"))
		waitOrFail(t, &wg, "tenant-a delivery")
		time.Sleep(50 * time.Millisecond)

		if mine.Load() != 1 {
			t.Errorf("tenant-a should see 1 message, got %d", mine.Load())
		}
		if theirs.Load() != 0 {
			t.Errorf("tenant-b should see nothing, got %d", theirs.Load())
		}
	})

	t.Run("TenantRequired", func(t *testing.T) {
		if err := cb.Publish(ctx, "", "topic", []byte("data")); err == nil {
			t.Error("publish without tenant should fail")
		}
		if _, err := cb.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		}); err == nil {
			t.Error("subscribe without tenant should fail")
		}
	})

	t.Run("UnsubscribeStopsDelivery", func(t *testing.T) {
		var count atomic.Int32
		var wg sync.WaitGroup
		wg.Add(1)

		sub, err := cb.Subscribe(ctx, tenantID, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		cb.Publish(ctx, tenantID, "unsub.topic", []byte("before"))
		waitOrFail(t, &wg, "delivery before unsubscribe")

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}

		cb.Publish(ctx, tenantID, "unsub.topic", []byte("after"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 delivery total, got %d", count.Load())
		}
	})

	t.Run("EverySubscriberGetsACopy", func(t *testing.T) {
		var first, second atomic.Int32
		var wg sync.WaitGroup
		wg.Add(2)

		cb.Subscribe(ctx, tenantID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			first.Add(1)
			wg.Done()
			return nil
		})
		cb.Subscribe(ctx, tenantID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			second.Add(1)
			wg.Done()
			return nil
		})

		cb.Publish(ctx, tenantID, "multi.topic", []byte("broadcast"))
		waitOrFail(t, &wg, "broadcast delivery")

		if first.Load() != 1 || second.Load() != 1 {
			t.Errorf("expected one copy each, got %d and %d", first.Load(), second.Load())
		}
	})

	t.Run("RequestReply", func(t *testing.T) {
		// Responders learn the reply topic from the message metadata.
		sub, err := cb.Subscribe(ctx, tenantID, "echo", func(ctx context.Context, msg *domain.Message) error {
			return cb.Publish(ctx, msg.TenantID, msg.Metadata["replyTo"], append([]byte("ack:"), msg.Payload...))
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		reply, err := cb.Request(reqCtx, tenantID, "echo", []byte("ping"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if string(reply) != "ack:ping" {
			t.Errorf("expected ack:ping, got %q", reply)
		}
	})

	t.Run("RequestRequiresTenant", func(t *testing.T) {
		if _, err := cb.Request(ctx, "", "echo", []byte("ping")); err == nil {
			t.Error("request without tenant should fail")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cb.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("TopicAccessor", func(t *testing.T) {
		sub, err := cb.Subscribe(ctx, tenantID, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic my.topic, got %s", sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	cb := NewChannelBus(100)

	ctx := context.Background()
	tenantID := "tenant-001"

	cb.Subscribe(ctx, tenantID, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := cb.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := cb.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	if err := cb.Publish(ctx, tenantID, "close.topic", []byte("data")); err == nil {
		t.Error("publish after close should fail")
	}
	if _, err := cb.Subscribe(ctx, tenantID, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	}); err == nil {
		t.Error("subscribe after close should fail")
	}
	if err := cb.Ping(ctx); err == nil {
		t.Error("ping after close should fail")
	}
}

func TestChannelBusBacklog(t *testing.T) {
	cb := NewChannelBus(1000)
	defer cb.Close()

	ctx := context.Background()
	tenantID := "tenant-load"

	const messages = 100
	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(messages)

	cb.Subscribe(ctx, tenantID, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < messages; i++ {
		cb.Publish(ctx, tenantID, "load.topic", []byte("msg"))
	}
	waitOrFail(t, &wg, "backlog drain")

	if received.Load() != messages {
		t.Errorf("expected %d deliveries, got %d", messages, received.Load())
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		eb, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer eb.Close()

		if _, ok := eb.(*ChannelBus); !ok {
			t.Error("channel type should build a ChannelBus")
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("unknown bus type should fail")
		}
	})
}
