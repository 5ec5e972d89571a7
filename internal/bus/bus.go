package bus

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/safv/internal/domain"
)

// ErrPayloadTooLarge is returned when a message exceeds what the transport accepts.
var ErrPayloadTooLarge = errors.New("message payload too large")

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus is closed")

var (
	_ domain.EventBus = (*ChannelBus)(nil)
	_ domain.EventBus = (*NATSBus)(nil)
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
// Subscribing with domain.GlobalTenantID receives the topic for every tenant.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
