// Package bus moves screening events between the API, the async worker,
// and external consumers. Community installs run the in-process channel
// fanout; Pro installs point at a NATS cluster. Subjects are prefixed
// with the tenant so one bus serves many tenants without crosstalk.
package bus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
)

// New builds the event bus named by cfg.Type.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type %q (want channel or nats)", cfg.Type)
	}
}

// envelope wraps a payload in the wire message both implementations ship.
func envelope(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UnixNano(),
	}
}
