package domain

import (
	"context"
)

// EventBus moves screening events between producers and consumers.
// Every call is tenant-scoped, so one bus instance serves many tenants
// without crosstalk. The channel bus covers single-process Community
// installs; NATS covers Pro clusters.
type EventBus interface {
	// Publish delivers a payload to every subscriber of the tenant's topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for the tenant's topic. The returned
	// Subscription detaches the handler when no longer needed.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request publishes a payload and blocks until a responder replies
	// or the context deadline passes.
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	// Ping reports whether the bus can reach its transport.
	Ping(ctx context.Context) error

	// Close shuts the bus down and detaches all subscriptions.
	Close() error
}

// MessageHandler consumes one delivered message. A non-nil error is
// logged by the bus; it does not trigger redelivery.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the wire form of one event.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription is a live handler registration on one topic.
type Subscription interface {
	// Unsubscribe detaches the handler. Safe to call more than once.
	Unsubscribe() error

	// Topic returns the topic this subscription listens on.
	Topic() string
}

// EventBusConfig selects and tunes the bus implementation.
type EventBusConfig struct {
	// Type picks the implementation, "channel" or "nats".
	Type string

	// ChannelBufferSize caps each channel subscriber's inbox.
	ChannelBufferSize int

	// NATS connection settings, used when Type is "nats".
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics the screening pipeline publishes on.
const (
	TopicTransactionIngested = "harrier.transaction.ingested"
	TopicScreeningRequested  = "harrier.screening.requested"
	TopicScreeningCompleted  = "harrier.screening.completed"
	TopicAlert               = "harrier.alert"
)
