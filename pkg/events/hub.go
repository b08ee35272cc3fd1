package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bazaar/pkg/market"
)

// Subscriber is one connected websocket client.
type Subscriber struct {
	ID      uuid.UUID
	AssetID *uint64 // nil receives every event
	Conn    *websocket.Conn
	Send    chan market.Event
	Done    chan struct{}
}

func (s *Subscriber) wants(ev market.Event) bool {
	return s.AssetID == nil || *s.AssetID == ev.AssetID
}

// Hub fans committed events out to websocket subscribers. Slow subscribers
// whose queue is full miss events instead of blocking the engine.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[uuid.UUID]*Subscriber),
		logger:      logger,
	}
}

// Add registers conn, optionally filtered to one asset.
func (h *Hub) Add(conn *websocket.Conn, assetID *uint64) *Subscriber {
	sub := &Subscriber{
		ID:      uuid.New(),
		AssetID: assetID,
		Conn:    conn,
		Send:    make(chan market.Event, 32),
		Done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Remove unregisters a subscriber. Removing twice is a no-op.
func (h *Hub) Remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Done)
		delete(h.subscribers, id)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast queues ev for every interested subscriber and returns how many
// accepted it.
func (h *Hub) Broadcast(ev market.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subscribers {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.Send <- ev:
			delivered++
		case <-sub.Done:
		default:
			h.logger.Warn("subscriber queue full, dropping event",
				zap.String("subscriber", sub.ID.String()),
				zap.String("event_id", ev.ID.String()),
			)
		}
	}
	return delivered
}

// Notify implements market.Notifier.
func (h *Hub) Notify(_ context.Context, ev market.Event) {
	h.Broadcast(ev)
}
