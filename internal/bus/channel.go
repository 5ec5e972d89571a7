// Package bus provides event bus implementations for SAFV.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/safv/internal/domain"
)

// ChannelBus implements EventBus using Go channels.
// Used as the Community tier event bus.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool
}

type channelSubscription struct {
	id       string
	tenantID string
	topic    string
	handler  domain.MessageHandler
	msgCh    chan *domain.Message
	ctx      context.Context
	cancel   context.CancelFunc
	bus      *ChannelBus
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

// Publish sends a message to a topic.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}

	// Create message
	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	// Tenant subscribers first, then global ones.
	subs := append([]*channelSubscription(nil), b.subscriptions[b.makeKey(tenantID, topic)]...)
	if tenantID != domain.GlobalTenantID {
		subs = append(subs, b.subscriptions[b.makeKey(domain.GlobalTenantID, topic)]...)
	}
	b.mu.RUnlock()

	dropped := 0
	for _, sub := range subs {
		if sub.ctx.Err() != nil {
			continue
		}
		select {
		case sub.msgCh <- msg:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		slog.Warn("channel bus subscriber buffer full, message dropped",
			"tenant_id", tenantID,
			"topic", topic,
			"subscribers", dropped,
		)
	}

	return nil
}

// Subscribe registers a handler for a topic.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)

	sub := &channelSubscription{
		id:       uuid.New().String(),
		tenantID: tenantID,
		topic:    topic,
		handler:  handler,
		msgCh:    make(chan *domain.Message, b.bufferSize),
		ctx:      subCtx,
		cancel:   cancel,
		bus:      b,
	}

	// Start message handler goroutine
	go b.handleMessages(sub)

	key := b.makeKey(tenantID, topic)
	b.subscriptions[key] = append(b.subscriptions[key], sub)

	return sub, nil
}

// handleMessages processes messages for a subscription.
func (b *ChannelBus) handleMessages(sub *channelSubscription) {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case msg := <-sub.msgCh:
			if msg == nil {
				return
			}
			if err := sub.handler(sub.ctx, msg); err != nil {
				slog.Error("handler error",
					"topic", sub.topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close closes the event bus.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	// Message channels stay open; a racing Publish must not send on a closed channel.
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}

	b.subscriptions = make(map[string][]*channelSubscription)
	return nil
}

func (b *ChannelBus) makeKey(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Unsubscribe stops receiving messages and detaches the subscription from its bus.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	if s.bus == nil {
		return nil
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	key := s.bus.makeKey(s.tenantID, s.topic)
	subs := s.bus.subscriptions[key]
	for i, other := range subs {
		if other == s {
			s.bus.subscriptions[key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(s.bus.subscriptions[key]) == 0 {
		delete(s.bus.subscriptions, key)
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
