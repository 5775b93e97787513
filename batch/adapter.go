package batch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chainkit/chainquery"
)

// ClientExecutor adapts a chain client's one-shot batch primitive to the
// queue's Executor contract. A fresh client batch is created per flush, so
// swapping the executor on reconnect means swapping the ClientExecutor.
type ClientExecutor struct {
	client chainquery.ChainClient
	logger zerolog.Logger
}

// NewClientExecutor creates an executor backed by the given chain client.
func NewClientExecutor(client chainquery.ChainClient, logger zerolog.Logger) *ClientExecutor {
	return &ClientExecutor{
		client: client,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// ExecuteBatch performs all calls in one round trip and resolves each call's
// continuation independently. A whole-batch transport failure rejects every
// call in the batch; a single call's failure leaves its siblings untouched.
func (e *ClientExecutor) ExecuteBatch(ctx context.Context, calls []*Call) {
	b := e.client.NewBatch()

	results := make([]<-chan chainquery.Result, len(calls))
	for i, c := range calls {
		results[i] = b.Add(c.Method, c.Target, c.Args, c.Opts)
	}

	if err := b.Execute(ctx); err != nil {
		terr := chainquery.NewTransportError(err)
		for _, c := range calls {
			c.Reject(terr)
		}
		e.logger.Warn().Err(err).Int("calls", len(calls)).Msg("batch execution failed")
		return
	}

	for i, c := range calls {
		res := <-results[i]
		if res.Err != nil {
			c.Reject(chainquery.NewTransportError(res.Err))
			continue
		}
		c.Resolve(res.Value)
	}
}
