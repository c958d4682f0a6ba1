// Package events is the post-commit notification bus. Trade executions and
// market lifecycle changes are published here after their write set commits,
// never before, so subscribers only ever observe durable state.
package events

import (
	"sync"
	"time"

	"github.com/socialfi/market-ledger/internal/metrics"
	"github.com/socialfi/market-ledger/internal/model"
)

// Type identifies what a published event describes.
type Type string

const (
	TradeExecuted  Type = "trade_executed"
	MarketCreated  Type = "market_created"
	MarketFrozen   Type = "market_frozen"
	MarketUnfrozen Type = "market_unfrozen"
)

// Event is one post-commit notification. Market is the committed snapshot;
// Trade is set only for TradeExecuted.
type Event struct {
	Type   Type
	Market model.Market
	Trade  *model.Trade
	At     time.Time
}

// Bus fans published events out to subscribers. Publish never blocks: each
// subscriber gets a buffered channel, and a subscriber that falls behind
// loses events rather than stalling the publisher. Delivery is at most
// once; consumers needing a complete history read the trade log.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function. Cancel closes the channel; after it returns no further
// events are delivered.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber that has buffer room.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop rather than block trade execution.
			metrics.EventsDropped.Inc()
		}
	}
}
