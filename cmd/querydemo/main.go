package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainkit/chainquery"
	"github.com/chainkit/chainquery/config"
	"github.com/chainkit/chainquery/contracts"
	"github.com/chainkit/chainquery/query"
	"github.com/chainkit/chainquery/refetch"
	"github.com/chainkit/chainquery/session"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "path to config file (defaults when empty)")
	flag.Parse()

	// Load config
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log := zerolog.New(os.Stderr).With().Timestamp().Logger()
			log.Fatal().Err(err).Msg("failed to load config")
		}
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Int("retryMaxAttempts", cfg.RetryMaxAttempts).
		Int("retryDelayMs", cfg.RetryDelay).
		Msg("starting querydemo")

	// Contract registry
	registry, err := contracts.NewRegistry(cfg.ContractCacheSize, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create contract registry")
	}
	for _, c := range cfg.Contracts {
		if c.Address != "" {
			err = registry.Register(c.Name, c.Address)
		} else {
			err = registry.RegisterMap(c.Name, c.Addresses)
		}
		if err != nil {
			logger.Fatal().Err(err).Str("contract", c.Name).Msg("failed to register contract")
		}
	}
	if _, ok := registry.Resolve("token", "1"); !ok {
		registry.Register("token", "0x6B175474E89094C44Da98b954EedeAC495271d0F")
	}

	// Connection context around an in-process echo client
	client := &echoClient{chainID: "1"}
	sess := session.Open(client, query.RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		Delay:       cfg.GetRetryDelayDuration(),
	}, logger)
	defer sess.Close()

	if cfg.IsBlockWatchEnabled() {
		watcher := refetch.NewBlockWatcher(
			cfg.BlockWatch.WSURL,
			cfg.BlockWatch.GetReconnectIntervalDuration(),
			cfg.BlockWatch.GetMinRefetchIntervalDuration(),
			sess.Hub(),
			logger,
		)
		watcher.Start()
		defer watcher.Stop()
	}

	token, err := registry.Bind("token", client.ChainID())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to bind contract")
	}

	// Three queries issued in one synchronous pass coalesce into one batch.
	name := sess.Query(token.Query("name", nil, chainquery.CallOptions{}))
	symbol := sess.Query(token.Query("symbol", nil, chainquery.CallOptions{}))
	supply := sess.Query(token.Query("totalSupply", nil, chainquery.CallOptions{}))

	combined := waitSettled(name, symbol, supply)
	if combined.Err != nil {
		logger.Error().Err(combined.Err).Msg("combined query failed")
	} else {
		logger.Info().
			Interface("name", combined.Data[0]).
			Interface("symbol", combined.Data[1]).
			Interface("totalSupply", combined.Data[2]).
			Msg("combined query settled")
	}

	// Refetch all three; again one batch.
	<-query.RefetchAll(name, symbol, supply)
	logger.Info().Msg("refetch settled")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
}

// waitSettled polls until every controller has settled its first load.
func waitSettled(ctls ...*query.Controller) query.Combined {
	for {
		combined := query.Combine(ctls...)
		if !combined.Loading && !combined.FirstLoad {
			return combined
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// echoClient is an in-process chain client whose batches echo each call's
// method and arguments back as its result.
type echoClient struct {
	chainID string
}

func (c *echoClient) Accounts() []string {
	return []string{chainquery.ZeroAddress}
}

func (c *echoClient) ChainID() string {
	return c.chainID
}

func (c *echoClient) NewBatch() chainquery.ClientBatch {
	return &echoBatch{}
}

type echoBatch struct {
	results []chan chainquery.Result
	values  []any
}

func (b *echoBatch) Add(method, target string, args []any, opts chainquery.CallOptions) <-chan chainquery.Result {
	ch := make(chan chainquery.Result, 1)
	b.results = append(b.results, ch)
	b.values = append(b.values, fmt.Sprintf("%s(%v)@%s", method, args, target))
	return ch
}

func (b *echoBatch) Execute(ctx context.Context) error {
	for i, ch := range b.results {
		ch <- chainquery.Result{Value: b.values[i]}
	}
	return nil
}
