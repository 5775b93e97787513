// Package contracts resolves symbolic contract names to chain addresses and
// caches bound contract instances per (name, chain).
package contracts

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/chainkit/chainquery"
	"github.com/chainkit/chainquery/query"
)

// ErrUnknownContract is returned by Bind when a name has no address on the
// requested chain.
var ErrUnknownContract = errors.New("unknown contract")

// Contract is a bound instance: a symbolic name resolved to one lowercase
// address on one chain.
type Contract struct {
	Name    string
	ChainID string
	Address string
}

// Query builds the controller spec for a read call against this contract.
func (c *Contract) Query(method string, args []any, opts chainquery.CallOptions) query.Spec {
	return query.Spec{
		Method: method,
		Target: c.Address,
		Args:   args,
		Opts:   opts,
	}
}

type entry struct {
	addr    string            // single address used on every chain
	byChain map[string]string // chain id -> address
}

// Registry maps symbolic contract names to addresses. Bound instances are
// cached so repeated Bind calls for the same (name, chain) return the same
// *Contract.
type Registry struct {
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]entry
	cache   *lru.Cache[string, *Contract]
}

// NewRegistry creates a registry with an instance cache of the given size.
func NewRegistry(cacheSize int, logger zerolog.Logger) (*Registry, error) {
	cache, err := lru.New[string, *Contract](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Registry{
		logger:  logger.With().Str("component", "contracts").Logger(),
		entries: make(map[string]entry),
		cache:   cache,
	}, nil
}

// Register maps a name to one address used on every chain.
func (r *Registry) Register(name, address string) error {
	norm, err := normalize(address)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{addr: norm}
	return nil
}

// RegisterMap maps a name to per-chain addresses.
func (r *Registry) RegisterMap(name string, byChain map[string]string) error {
	normalized := make(map[string]string, len(byChain))
	for chainID, addr := range byChain {
		norm, err := normalize(addr)
		if err != nil {
			return fmt.Errorf("chain %s: %w", chainID, err)
		}
		normalized[chainID] = norm
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{byChain: normalized}
	return nil
}

// Resolve returns the lowercase address for name on the given chain, or
// false when the name is unknown or has no address there.
func (r *Registry) Resolve(name, chainID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(name, chainID)
}

func (r *Registry) resolveLocked(name, chainID string) (string, bool) {
	e, ok := r.entries[name]
	if !ok {
		return "", false
	}
	if e.addr != "" {
		return e.addr, true
	}
	addr, ok := e.byChain[chainID]
	return addr, ok
}

// Bind returns the cached instance for (name, chainID), creating it on
// first use.
func (r *Registry) Bind(name, chainID string) (*Contract, error) {
	key := name + "@" + chainID

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache.Get(key); ok {
		return c, nil
	}
	addr, ok := r.resolveLocked(name, chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s on chain %s", ErrUnknownContract, name, chainID)
	}
	c := &Contract{Name: name, ChainID: chainID, Address: addr}
	r.cache.Add(key, c)
	r.logger.Debug().Str("contract", name).Str("chainId", chainID).Str("address", addr).Msg("bound contract")
	return c, nil
}

func normalize(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address: %s", addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}
