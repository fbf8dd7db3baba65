// Package events provides the in-process event bus used to fan trade
// activity out to subscribers (the WebSocket stream, logging).
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies the kind of event
type EventType string

const (
	TradeExecuted    EventType = "trade_executed"
	PortfolioCreated EventType = "portfolio_created"
)

// Event is a single published event
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// TradeExecutedData is the payload of TradeExecuted events
type TradeExecutedData struct {
	TransactionID string  `json:"transaction_id"`
	Ticker        string  `json:"ticker"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	OrderRef      string  `json:"order_ref,omitempty"`
}

// Bus is a non-blocking publish/subscribe bus. A slow subscriber drops
// events rather than stalling the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	log         zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]chan Event),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	id := uuid.New().String()
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}

	return ch, unsubscribe
}

// Publish delivers an event to all subscribers without blocking
func (b *Bus) Publish(eventType EventType, userID string, data interface{}) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.log.Warn().
				Str("subscriber", id).
				Str("event_type", string(eventType)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount returns the current number of subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
