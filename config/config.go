package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.ContractCacheSize == 0 {
		cfg.ContractCacheSize = DefaultContractCacheSize
	}
	if cfg.BlockWatch != nil {
		if cfg.BlockWatch.ReconnectInterval == 0 {
			cfg.BlockWatch.ReconnectInterval = DefaultReconnectInterval
		}
		// MinRefetchInterval default is 0, which is valid
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RetryMaxAttempts < 1 {
		return fmt.Errorf("retryMaxAttempts must be at least 1")
	}

	if cfg.RetryDelay < 0 {
		return fmt.Errorf("retryDelay must be non-negative")
	}

	if cfg.ContractCacheSize < 1 {
		return fmt.Errorf("contractCacheSize must be positive")
	}

	names := make(map[string]bool)
	for i, c := range cfg.Contracts {
		if c.Name == "" {
			return fmt.Errorf("contracts[%d]: name is required", i)
		}
		if names[c.Name] {
			return fmt.Errorf("contracts[%d]: duplicate contract name '%s'", i, c.Name)
		}
		names[c.Name] = true

		if c.Address == "" && len(c.Addresses) == 0 {
			return fmt.Errorf("contract '%s': one of address or addresses is required", c.Name)
		}
		if c.Address != "" && len(c.Addresses) > 0 {
			return fmt.Errorf("contract '%s': address and addresses are mutually exclusive", c.Name)
		}
	}

	if cfg.BlockWatch != nil && cfg.BlockWatch.Enabled {
		if cfg.BlockWatch.WSURL == "" {
			return fmt.Errorf("blockWatch.wsUrl is required when blockWatch is enabled")
		}
		if cfg.BlockWatch.ReconnectInterval < 0 {
			return fmt.Errorf("blockWatch.reconnectInterval must be non-negative")
		}
		if cfg.BlockWatch.MinRefetchInterval < 0 {
			return fmt.Errorf("blockWatch.minRefetchInterval must be non-negative")
		}
	}

	return nil
}
