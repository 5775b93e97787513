package refetch

import (
	"sync"
	"time"
)

// Ticker broadcasts a refetch signal on a fixed interval, for hosts that
// poll instead of watching blocks.
type Ticker struct {
	interval time.Duration
	hub      *Hub

	done chan struct{}
	wg   sync.WaitGroup
}

// NewTicker creates an interval source feeding hub.
func NewTicker(interval time.Duration, hub *Hub) *Ticker {
	return &Ticker{
		interval: interval,
		hub:      hub,
		done:     make(chan struct{}),
	}
}

// Start begins broadcasting in the background.
func (t *Ticker) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				t.hub.Broadcast()
			}
		}
	}()
}

// Stop halts broadcasting and waits for the loop to exit.
func (t *Ticker) Stop() {
	close(t.done)
	t.wg.Wait()
}
