package config

import "time"

// Config is the library configuration loaded from JSON.
type Config struct {
	LogLevel          string            `json:"logLevel"`
	RetryMaxAttempts  int               `json:"retryMaxAttempts"`
	RetryDelay        int               `json:"retryDelay"` // ms
	ContractCacheSize int               `json:"contractCacheSize"`
	Contracts         []ContractConfig  `json:"contracts,omitempty"`
	BlockWatch        *BlockWatchConfig `json:"blockWatch,omitempty"`
}

// ContractConfig registers one symbolic contract name. Exactly one of
// Address (chain-independent) or Addresses (per chain id) should be set.
type ContractConfig struct {
	Name      string            `json:"name"`
	Address   string            `json:"address,omitempty"`
	Addresses map[string]string `json:"addresses,omitempty"`
}

// BlockWatchConfig configures the new-block refetch source.
type BlockWatchConfig struct {
	Enabled            bool   `json:"enabled"`
	WSURL              string `json:"wsUrl"`
	ReconnectInterval  int    `json:"reconnectInterval"`  // ms
	MinRefetchInterval int    `json:"minRefetchInterval"` // ms
}

// Default values
const (
	DefaultLogLevel           = "info"
	DefaultRetryMaxAttempts   = 5
	DefaultRetryDelay         = 1000 // ms
	DefaultContractCacheSize  = 128
	DefaultReconnectInterval  = 5000 // ms
	DefaultMinRefetchInterval = 0    // ms - no throttling
)

// GetRetryDelayDuration returns the retry delay as time.Duration.
func (c *Config) GetRetryDelayDuration() time.Duration {
	return time.Duration(c.RetryDelay) * time.Millisecond
}

// IsBlockWatchEnabled returns true if the block watcher is configured and
// enabled.
func (c *Config) IsBlockWatchEnabled() bool {
	return c.BlockWatch != nil && c.BlockWatch.Enabled
}

// GetReconnectIntervalDuration returns the block-watch reconnect interval as
// time.Duration.
func (b *BlockWatchConfig) GetReconnectIntervalDuration() time.Duration {
	return time.Duration(b.ReconnectInterval) * time.Millisecond
}

// GetMinRefetchIntervalDuration returns the minimum spacing between refetch
// broadcasts as time.Duration.
func (b *BlockWatchConfig) GetMinRefetchIntervalDuration() time.Duration {
	return time.Duration(b.MinRefetchInterval) * time.Millisecond
}
