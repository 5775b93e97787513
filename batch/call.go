package batch

import (
	"sync"

	"github.com/chainkit/chainquery"
)

// Call is one pending read call, dispatched as part of a batch. Identity is
// by instance: two calls with identical arguments are independent
// invocations with their own continuations.
type Call struct {
	Method string
	Target string
	Args   []any
	Opts   chainquery.CallOptions

	done chan chainquery.Result
	once sync.Once
}

// NewCall creates a call descriptor with defaulted options.
func NewCall(method, target string, args []any, opts chainquery.CallOptions) *Call {
	return &Call{
		Method: method,
		Target: target,
		Args:   args,
		Opts:   opts.WithDefaults(),
		done:   make(chan chainquery.Result, 1),
	}
}

// Done delivers the call's single result.
func (c *Call) Done() <-chan chainquery.Result {
	return c.done
}

// Resolve completes the call successfully. Only the first resolution of a
// call takes effect.
func (c *Call) Resolve(v any) {
	c.once.Do(func() {
		c.done <- chainquery.Result{Value: v}
	})
}

// Reject completes the call with an error. Only the first resolution of a
// call takes effect.
func (c *Call) Reject(err error) {
	c.once.Do(func() {
		c.done <- chainquery.Result{Err: err}
	})
}
