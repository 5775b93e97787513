// Package query provides per-call-site read-query controllers and their
// combinator. A controller owns one read call's lifecycle: it submits
// through the batch queue, retries transport failures with a fixed delay,
// re-issues when its spec changes or a refetch signal arrives, and discards
// results of superseded attempts.
package query

import (
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainkit/chainquery"
	"github.com/chainkit/chainquery/batch"
)

// Spec describes the read call a controller keeps satisfied. Changing any
// field supersedes the in-flight attempt and issues fresh; Skip disables
// network activity entirely.
type Spec struct {
	Method string
	Target string
	Args   []any
	Opts   chainquery.CallOptions
	Skip   bool
}

// Snapshot is the externally visible state of a controller. Data and Err are
// never both set after a settled resolution. FirstLoad stays false once the
// first resolution has settled, refetches included.
type Snapshot struct {
	Data      any
	Err       error
	Loading   bool
	FirstLoad bool
}

// RetryConfig bounds the per-issue retry loop.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = time.Second
)

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Delay <= 0 {
		c.Delay = DefaultRetryDelay
	}
	return c
}

// Enqueuer is the submit side of the batch queue.
type Enqueuer interface {
	Enqueue(*batch.Call)
}

type issueEvent struct {
	spec Spec
}

type refetchEvent struct {
	done chan struct{}
}

type settleEvent struct {
	gen  int
	data any
	err  error
}

// Controller is an explicit state machine (idle, loading, settled) driven by
// issue/refetch/settle messages on its event loop rather than by implicit
// re-evaluation.
type Controller struct {
	queue  Enqueuer
	cfg    RetryConfig
	source chainquery.RefetchSource
	logger zerolog.Logger

	events chan any
	done   chan struct{}

	closeOnce sync.Once

	// after is the retry-delay time source; swapped in tests.
	after func(time.Duration) <-chan time.Time

	mu   sync.RWMutex
	snap Snapshot
}

// NewController creates a controller and immediately issues its initial
// spec. A nil source disables external refetch signals; queue may be nil
// only to model a missing connection context, which settles every issue
// with a configuration error.
func NewController(queue Enqueuer, spec Spec, cfg RetryConfig, source chainquery.RefetchSource, logger zerolog.Logger) *Controller {
	return newController(queue, spec, cfg, source, logger, time.After)
}

func newController(queue Enqueuer, spec Spec, cfg RetryConfig, source chainquery.RefetchSource, logger zerolog.Logger, after func(time.Duration) <-chan time.Time) *Controller {
	ctl := &Controller{
		queue:  queue,
		cfg:    cfg.withDefaults(),
		source: source,
		logger: logger.With().Str("component", "query").Str("method", spec.Method).Logger(),
		events: make(chan any, 16),
		done:   make(chan struct{}),
		after:  after,
		snap:   Snapshot{FirstLoad: true},
	}
	go ctl.run(spec)
	return ctl
}

// Snapshot returns the current query state.
func (ctl *Controller) Snapshot() Snapshot {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	return ctl.snap
}

// Update replaces the controller's spec. An identical spec is a no-op;
// any change cancels the in-flight attempt and issues fresh.
func (ctl *Controller) Update(spec Spec) {
	ctl.send(issueEvent{spec: spec})
}

// Refetch re-issues the current spec. The returned channel closes once the
// corresponding issue settles or is superseded by a newer one; it never
// delivers an error.
func (ctl *Controller) Refetch() <-chan struct{} {
	done := make(chan struct{})
	if !ctl.send(refetchEvent{done: done}) {
		close(done)
	}
	return done
}

// Close stops the event loop, cancels in-flight work, and unsubscribes from
// the refetch source.
func (ctl *Controller) Close() {
	ctl.closeOnce.Do(func() {
		close(ctl.done)
	})
}

func (ctl *Controller) send(ev any) bool {
	select {
	case ctl.events <- ev:
		return true
	case <-ctl.done:
		return false
	}
}

func (ctl *Controller) run(initial Spec) {
	var (
		gen     int
		current Spec
		cancel  chan struct{}
		waiters []chan struct{}
	)

	var srcCh <-chan struct{}
	if ctl.source != nil {
		id, ch := ctl.source.Subscribe()
		srcCh = ch
		defer ctl.source.Unsubscribe(id)
	}

	settleWaiters := func() {
		for _, w := range waiters {
			close(w)
		}
		waiters = nil
	}

	issue := func(spec Spec) {
		if cancel != nil {
			close(cancel)
			cancel = nil
		}
		gen++
		current = spec

		if spec.Skip {
			// Skip short-circuits: no descriptor is created, no network
			// activity occurs, and the first load is considered over.
			ctl.update(func(s *Snapshot) {
				s.Loading = false
				s.FirstLoad = false
			})
			settleWaiters()
			return
		}
		if ctl.queue == nil {
			ctl.update(func(s *Snapshot) {
				s.Loading = false
				s.FirstLoad = false
				s.Data = nil
				s.Err = chainquery.ErrNoClient
			})
			settleWaiters()
			return
		}

		ctl.update(func(s *Snapshot) {
			s.Loading = true
		})
		cancel = make(chan struct{})
		go ctl.attempt(gen, spec, cancel)
	}

	issue(initial)

	for {
		select {
		case <-ctl.done:
			if cancel != nil {
				close(cancel)
			}
			settleWaiters()
			return

		case <-srcCh:
			// External refetch: fresh issue without touching FirstLoad.
			settleWaiters()
			issue(current)

		case ev := <-ctl.events:
			switch ev := ev.(type) {
			case issueEvent:
				if reflect.DeepEqual(ev.spec, current) {
					continue
				}
				settleWaiters()
				issue(ev.spec)

			case refetchEvent:
				settleWaiters()
				waiters = append(waiters, ev.done)
				issue(current)

			case settleEvent:
				if ev.gen != gen {
					// A superseded attempt resolved late; discard it.
					continue
				}
				ctl.update(func(s *Snapshot) {
					s.Loading = false
					s.FirstLoad = false
					if ev.err != nil {
						s.Err = ev.err
						s.Data = nil
					} else {
						s.Data = ev.data
						s.Err = nil
					}
				})
				settleWaiters()
			}
		}
	}
}

// attempt runs the retry loop for one issue generation. A fresh descriptor
// is submitted per attempt since descriptors are one-shot; the generation's
// cancel channel covers result waits and retry delays alike.
func (ctl *Controller) attempt(gen int, spec Spec, cancel <-chan struct{}) {
	var lastErr error

	for i := 1; i <= ctl.cfg.MaxAttempts; i++ {
		call := batch.NewCall(spec.Method, spec.Target, spec.Args, spec.Opts)
		ctl.queue.Enqueue(call)

		var res chainquery.Result
		select {
		case res = <-call.Done():
		case <-cancel:
			return
		}

		if res.Err == nil {
			ctl.settle(gen, res.Value, nil)
			return
		}
		if !chainquery.IsRetryable(res.Err) {
			ctl.settle(gen, nil, res.Err)
			return
		}

		lastErr = res.Err
		ctl.logger.Debug().
			Err(res.Err).
			Int("attempt", i).
			Int("maxAttempts", ctl.cfg.MaxAttempts).
			Msg("read call failed, retrying")

		if i == ctl.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctl.after(ctl.cfg.Delay):
		case <-cancel:
			return
		}
	}

	ctl.settle(gen, nil, &chainquery.ExhaustedRetriesError{
		Attempts: ctl.cfg.MaxAttempts,
		Last:     lastErr,
	})
}

func (ctl *Controller) settle(gen int, data any, err error) {
	ctl.send(settleEvent{gen: gen, data: data, err: err})
}

func (ctl *Controller) update(fn func(*Snapshot)) {
	ctl.mu.Lock()
	fn(&ctl.snap)
	ctl.mu.Unlock()
}
