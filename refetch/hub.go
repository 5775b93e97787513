// Package refetch provides the refetch coordinator controllers subscribe to,
// plus sources that feed it: a new-block WebSocket watcher and an interval
// ticker.
package refetch

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub fans one refetch signal out to every subscriber. Subscriber channels
// are buffered with capacity one, so bursts collapse into a single pending
// signal for slow listeners and Broadcast never blocks.
type Hub struct {
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "refetch").Logger(),
		subs:   make(map[int]chan struct{}),
	}
}

// Subscribe registers a listener and returns its id and signal channel.
// Subscribing to a closed hub yields a channel that never fires.
func (h *Hub) Subscribe() (int, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ch := make(chan struct{}, 1)
	if !h.closed {
		h.subs[h.nextID] = ch
	}
	return h.nextID, ch
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Broadcast signals every subscriber without blocking.
func (h *Hub) Broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	if len(h.subs) > 0 {
		h.logger.Debug().Int("subscribers", len(h.subs)).Msg("refetch broadcast")
	}
}

// Close drops all subscribers; later broadcasts are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.subs = make(map[int]chan struct{})
}
