package refetch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type watchRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type watchError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type watchMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *watchError     `json:"error,omitempty"`
}

// BlockWatcher subscribes to newHeads over a WebSocket endpoint and
// broadcasts a refetch signal for every new block. Broadcasts are
// rate-limited so bursts of heads collapse into one signal. The connection
// is re-established after reconnectInterval on any failure.
type BlockWatcher struct {
	wsURL             string
	reconnectInterval time.Duration
	hub               *Hub
	limiter           *rate.Limiter
	logger            zerolog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	ctx      context.Context
	cancelFn context.CancelFunc
	wg       sync.WaitGroup
}

// NewBlockWatcher creates a watcher feeding hub. minInterval of zero
// disables rate limiting.
func NewBlockWatcher(wsURL string, reconnectInterval, minInterval time.Duration, hub *Hub, logger zerolog.Logger) *BlockWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	limiter := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &BlockWatcher{
		wsURL:             wsURL,
		reconnectInterval: reconnectInterval,
		hub:               hub,
		limiter:           limiter,
		logger:            logger.With().Str("component", "blockwatch").Logger(),
		ctx:               ctx,
		cancelFn:          cancel,
	}
}

// Start begins watching in the background.
func (w *BlockWatcher) Start() {
	w.wg.Add(1)
	go w.runLoop()
}

// Stop closes the connection and waits for the watch loop to exit.
func (w *BlockWatcher) Stop() {
	w.cancelFn()
	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.connMu.Unlock()
	w.wg.Wait()
}

func (w *BlockWatcher) runLoop() {
	defer w.wg.Done()

	for {
		if err := w.watchOnce(); err != nil {
			w.logger.Warn().
				Err(err).
				Dur("retryIn", w.reconnectInterval).
				Msg("block watch connection lost")
		}
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(w.reconnectInterval):
		}
	}
}

func (w *BlockWatcher) watchOnce() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(w.ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect WebSocket: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	defer func() {
		w.connMu.Lock()
		w.conn = nil
		w.connMu.Unlock()
		conn.Close()
	}()

	sub := watchRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params:  []any{"newHeads"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	w.logger.Info().Str("url", w.wsURL).Msg("watching new blocks")

	for {
		var msg watchMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if w.ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msg.Error != nil {
			return fmt.Errorf("subscription error %d: %s", msg.Error.Code, msg.Error.Message)
		}
		if msg.Method != "eth_subscription" {
			continue
		}
		if w.limiter.Allow() {
			w.hub.Broadcast()
		}
	}
}
