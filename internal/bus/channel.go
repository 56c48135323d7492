package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
)

// ChannelBus is the Community tier bus: plain Go channels, one process.
// Each subscriber gets its own buffered inbox drained by its own
// goroutine, so one slow handler cannot stall the others.
type ChannelBus struct {
	mu      sync.RWMutex
	buffer  int
	nextSeq uint64
	routes  map[string]map[uint64]*delivery
	closed  bool
}

// delivery is one subscriber's end of a route.
type delivery struct {
	bus     *ChannelBus
	key     string
	seq     uint64
	topic   string
	handler domain.MessageHandler
	inbox   chan *domain.Message
	stop    chan struct{}
	once    sync.Once
}

// NewChannelBus creates an in-process bus. bufferSize is the per-subscriber
// inbox depth; events beyond it are dropped rather than blocking publishers.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		buffer: bufferSize,
		routes: make(map[string]map[uint64]*delivery),
	}
}

func routeKey(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Publish fans the payload out to every subscriber on the tenant's topic.
// Full inboxes are skipped; delivery is best effort.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return b.dispatch(tenantID, topic, envelope(tenantID, topic, payload))
}

func (b *ChannelBus) dispatch(tenantID, topic string, msg *domain.Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	set := b.routes[routeKey(tenantID, topic)]
	targets := make([]*delivery, 0, len(set))
	for _, d := range set {
		targets = append(targets, d)
	}
	b.mu.RUnlock()

	for _, d := range targets {
		select {
		case d.inbox <- msg:
		default:
			slog.Debug("dropping event, subscriber inbox full",
				"tenant_id", tenantID,
				"topic", topic,
			)
		}
	}
	return nil
}

// Subscribe attaches a handler to the tenant's topic and starts its
// delivery goroutine.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("bus is closed")
	}

	b.nextSeq++
	key := routeKey(tenantID, topic)
	d := &delivery{
		bus:     b,
		key:     key,
		seq:     b.nextSeq,
		topic:   topic,
		handler: handler,
		inbox:   make(chan *domain.Message, b.buffer),
		stop:    make(chan struct{}),
	}
	if b.routes[key] == nil {
		b.routes[key] = make(map[uint64]*delivery)
	}
	b.routes[key][d.seq] = d
	b.mu.Unlock()

	go d.pump(ctx)
	return d, nil
}

// pump drains the inbox until the subscription or the caller's context ends.
func (d *delivery) pump(ctx context.Context) {
	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case msg := <-d.inbox:
			if msg == nil {
				return
			}
			_ = d.handler(ctx, msg)
		}
	}
}

// Request publishes and waits for one reply on a private reply topic.
// Responders find the reply topic in the message metadata under "replyTo".
// The context deadline bounds the wait, defaulting to 30 seconds.
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	replyTopic := topic + ".reply." + uuid.New().String()
	replyCh := make(chan []byte, 1)

	sub, err := b.Subscribe(ctx, tenantID, replyTopic, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replyCh <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	msg := envelope(tenantID, topic, payload)
	msg.Metadata["replyTo"] = replyTopic
	if err := b.dispatch(tenantID, topic, msg); err != nil {
		return nil, err
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timed out waiting for reply on %s", topic)
	}
}

// Ping reports whether the bus is still accepting events.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close stops every delivery goroutine and rejects further publishes.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	routes := b.routes
	b.routes = make(map[string]map[uint64]*delivery)
	b.mu.Unlock()

	for _, set := range routes {
		for _, d := range set {
			d.once.Do(func() { close(d.stop) })
		}
	}
	return nil
}

// detach removes the delivery from its route, dropping the route entirely
// once the last subscriber leaves.
func (b *ChannelBus) detach(key string, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.routes[key]; ok {
		delete(set, seq)
		if len(set) == 0 {
			delete(b.routes, key)
		}
	}
}

// Unsubscribe detaches from the bus and stops the delivery goroutine.
func (d *delivery) Unsubscribe() error {
	d.once.Do(func() {
		d.bus.detach(d.key, d.seq)
		close(d.stop)
	})
	return nil
}

// Topic returns the subscribed topic.
func (d *delivery) Topic() string {
	return d.topic
}
