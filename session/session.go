// Package session ties one connection context together: it owns the batch
// queue for that connection, reacts to wallet lifecycle events, and hands
// out controllers bound to the queue and the refetch hub.
package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/chainkit/chainquery"
	"github.com/chainkit/chainquery/batch"
	"github.com/chainkit/chainquery/query"
	"github.com/chainkit/chainquery/refetch"
)

// Session is one connection context. Its queue's lifetime matches the
// session's: on Close, calls still queued are failed with ErrDisconnected
// rather than left unresolved.
type Session struct {
	queue  *batch.Queue
	hub    *refetch.Hub
	retry  query.RetryConfig
	logger zerolog.Logger

	mu     sync.Mutex
	client chainquery.ChainClient

	closeOnce sync.Once
}

// Open establishes a connection context. A nil client models calls firing
// before a connection exists: the queue accumulates until SwapClient
// provides one.
func Open(client chainquery.ChainClient, retry query.RetryConfig, logger zerolog.Logger) *Session {
	s := &Session{
		queue:  batch.NewQueue(logger),
		hub:    refetch.NewHub(logger),
		retry:  retry,
		logger: logger.With().Str("component", "session").Logger(),
		client: client,
	}
	if client != nil {
		s.queue.SetExecutor(batch.NewClientExecutor(client, logger))
		s.logger.Info().
			Str("chainId", client.ChainID()).
			Int("accounts", len(client.Accounts())).
			Msg("session opened")
	} else {
		s.logger.Info().Msg("session opened without client, calls will queue")
	}
	return s
}

// Query creates a controller bound to this session's queue and refetch hub.
func (s *Session) Query(spec query.Spec) *query.Controller {
	return query.NewController(s.queue, spec, s.retry, s.hub, s.logger)
}

// Hub exposes the refetch coordinator so hosts can attach sources or
// broadcast manually.
func (s *Session) Hub() *refetch.Hub {
	return s.hub
}

// SwapClient replaces the chain client after a reconnect. Calls queued while
// no client was available flush immediately.
func (s *Session) SwapClient(client chainquery.ChainClient) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.queue.SetExecutor(batch.NewClientExecutor(client, s.logger))
	s.logger.Info().Str("chainId", client.ChainID()).Msg("chain client swapped")
}

// HandleWalletEvent applies a wallet lifecycle event to the session.
func (s *Session) HandleWalletEvent(ev chainquery.WalletEvent) {
	switch ev {
	case chainquery.EventClose:
		s.Close()
	case chainquery.EventAccountsChanged:
		// Same connection, new signer: re-read everything.
		s.hub.Broadcast()
	case chainquery.EventChainChanged, chainquery.EventNetworkChanged:
		s.mu.Lock()
		client := s.client
		s.mu.Unlock()
		if client != nil {
			// Fresh executor for the new chain; owed flushes fire now.
			s.queue.SetExecutor(batch.NewClientExecutor(client, s.logger))
		}
		s.hub.Broadcast()
	default:
		s.logger.Debug().Str("event", string(ev)).Msg("ignoring wallet event")
	}
}

// Close tears the session down, failing any still-queued calls with
// ErrDisconnected.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.queue.Close(chainquery.ErrDisconnected)
		s.hub.Close()
		s.logger.Info().Msg("session closed")
	})
}
