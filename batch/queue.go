// Package batch provides the deferred batch queue that coalesces read calls.
//
// Calls enqueued during one synchronous pass are dispatched together as a
// single batch on the next scheduling turn. The executor behind the queue
// can be swapped at any time (e.g. on reconnect) without losing queued
// calls; with no executor set, calls simply stay queued until one appears.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Executor submits one flushed batch. Implementations resolve or reject each
// call's own continuation; a failure of one call must not fail its siblings.
type Executor interface {
	ExecuteBatch(ctx context.Context, calls []*Call)
}

// Queue accumulates calls and flushes them as one batch per scheduling turn.
// One queue belongs to one connection context and is shared by all of its
// controllers. With no executor set indefinitely, pending grows unbounded;
// the owner is responsible for tearing the queue down on disconnect.
type Queue struct {
	logger zerolog.Logger

	mu             sync.Mutex
	pending        []*Call
	flushScheduled bool
	executor       Executor

	// schedule defers a flush past the current synchronous pass. The default
	// is a zero-delay timer: it runs after the enqueuing call stack unwinds
	// and before any longer-delay timer.
	schedule func(fn func())

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a queue with the default deferred-task scheduler.
func NewQueue(logger zerolog.Logger) *Queue {
	return newQueue(logger, func(fn func()) {
		time.AfterFunc(0, fn)
	})
}

func newQueue(logger zerolog.Logger, schedule func(func())) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		logger:   logger.With().Str("component", "batchqueue").Logger(),
		schedule: schedule,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue appends a call to pending and schedules a flush for the next turn.
// At most one flush is scheduled at a time; the queue never flushes
// synchronously within the enqueuing turn.
func (q *Queue) Enqueue(c *Call) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	shouldSchedule := !q.flushScheduled
	if shouldSchedule {
		q.flushScheduled = true
	}
	q.mu.Unlock()

	if shouldSchedule {
		q.schedule(q.flush)
	}
}

// SetExecutor replaces the batch executor. Pending calls survive the swap;
// if any are owed a flush and none is scheduled, one is scheduled now.
func (q *Queue) SetExecutor(ex Executor) {
	q.mu.Lock()
	q.executor = ex
	shouldSchedule := ex != nil && len(q.pending) > 0 && !q.flushScheduled
	if shouldSchedule {
		q.flushScheduled = true
	}
	q.mu.Unlock()

	if shouldSchedule {
		q.schedule(q.flush)
	}
}

// flush takes everything accumulated so far and submits it as one batch. If
// no executor is set the calls stay queued: calls fired before a connection
// exists are a deferred state, not an error.
func (q *Queue) flush() {
	q.mu.Lock()
	q.flushScheduled = false
	if q.executor == nil {
		n := len(q.pending)
		q.mu.Unlock()
		if n > 0 {
			q.logger.Debug().Int("pending", n).Msg("flush deferred, no executor")
		}
		return
	}
	calls := q.pending
	q.pending = nil
	ex := q.executor
	q.mu.Unlock()

	if len(calls) == 0 {
		return
	}

	// Dispatch count is informational only.
	q.logger.Debug().Int("calls", len(calls)).Msg("dispatching batch")
	ex.ExecuteBatch(q.ctx, calls)
}

// FailPending rejects every queued call with err. Used on disconnect so that
// no continuation is left unresolved.
func (q *Queue) FailPending(err error) {
	q.mu.Lock()
	calls := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, c := range calls {
		c.Reject(err)
	}
	if len(calls) > 0 {
		q.logger.Debug().Int("calls", len(calls)).Err(err).Msg("failed pending calls")
	}
}

// Close cancels in-flight dispatch and fails anything still queued with err.
func (q *Queue) Close(err error) {
	q.cancel()
	q.FailPending(err)
}

// PendingLen returns the number of calls waiting for a flush.
func (q *Queue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
