// Package chainquery provides declarative, coalescing on-chain read calls.
//
// Read calls issued during one synchronous pass are collected by a deferred
// batch queue and dispatched as a single round trip against the chain
// client. Per-call-site controllers track loading state and retry failures
// with a fixed delay. The chain client itself (transport, ABI handling,
// wallet UX) is an external capability the library treats as opaque.
package chainquery

import "context"

// ZeroAddress is the sentinel caller address used when a read call does not
// specify one.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// CallOptions carries the per-call options of a read call.
type CallOptions struct {
	From     string // caller address; ZeroAddress when unset
	BlockTag string // block to read at; empty means the client's default
}

// WithDefaults fills unset options with their documented defaults.
func (o CallOptions) WithDefaults() CallOptions {
	if o.From == "" {
		o.From = ZeroAddress
	}
	return o
}

// Result is the outcome of one read call.
type Result struct {
	Value any
	Err   error
}

// ClientBatch is a chain client's one-shot batchable-call primitive. Calls
// added before Execute are performed in a single round trip; each added
// call's own channel delivers its result independently of its siblings.
type ClientBatch interface {
	Add(method, target string, args []any, opts CallOptions) <-chan Result
	Execute(ctx context.Context) error
}

// ChainClient is the external chain/wallet abstraction the library reads
// through. Implementations own transport and encoding.
type ChainClient interface {
	Accounts() []string
	ChainID() string
	NewBatch() ClientBatch
}

// RefetchSource is an event source controllers subscribe to for "refetch
// now" signals. Subscribe returns an id for Unsubscribe and a channel that
// receives one signal per broadcast (bursts may collapse).
type RefetchSource interface {
	Subscribe() (int, <-chan struct{})
	Unsubscribe(id int)
}

// WalletEvent is a wallet-modal lifecycle event name.
type WalletEvent string

const (
	EventClose           WalletEvent = "close"
	EventAccountsChanged WalletEvent = "accountsChanged"
	EventChainChanged    WalletEvent = "chainChanged"
	EventNetworkChanged  WalletEvent = "networkChanged"
)
