package query

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainkit/chainquery"
	"github.com/chainkit/chainquery/batch"
)

// recordQueue captures enqueued calls and hands them to the test.
type recordQueue struct {
	mu    sync.Mutex
	calls []*batch.Call
	ch    chan *batch.Call
}

func newRecordQueue() *recordQueue {
	return &recordQueue{ch: make(chan *batch.Call, 32)}
}

func (q *recordQueue) Enqueue(c *batch.Call) {
	q.mu.Lock()
	q.calls = append(q.calls, c)
	q.mu.Unlock()
	q.ch <- c
}

func (q *recordQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

type stubSource struct {
	ch           chan struct{}
	unsubscribed atomic.Bool
}

func (s *stubSource) Subscribe() (int, <-chan struct{}) {
	return 1, s.ch
}

func (s *stubSource) Unsubscribe(id int) {
	s.unsubscribed.Store(true)
}

func recvCall(t *testing.T, q *recordQueue) *batch.Call {
	t.Helper()
	select {
	case c := <-q.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no call enqueued")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestController_SkipNeverSubmits(t *testing.T) {
	q := newRecordQueue()
	ctl := NewController(q, Spec{Method: "m", Target: "t", Skip: true}, RetryConfig{}, nil, zerolog.Nop())
	defer ctl.Close()

	waitFor(t, "skip settle", func() bool {
		s := ctl.Snapshot()
		return !s.Loading && !s.FirstLoad
	})
	time.Sleep(20 * time.Millisecond)
	if got := q.count(); got != 0 {
		t.Fatalf("descriptors submitted with skip = %d, want 0", got)
	}
}

func TestController_SuccessSettles(t *testing.T) {
	q := newRecordQueue()
	ctl := NewController(q, Spec{Method: "balanceOf", Target: "0xabc", Args: []any{"0x1"}}, RetryConfig{}, nil, zerolog.Nop())
	defer ctl.Close()

	waitFor(t, "loading", func() bool { return ctl.Snapshot().Loading })

	call := recvCall(t, q)
	if call.Opts.From != chainquery.ZeroAddress {
		t.Errorf("caller address = %s, want zero-address default", call.Opts.From)
	}
	call.Resolve(42)

	waitFor(t, "settle", func() bool {
		s := ctl.Snapshot()
		return s.Data == 42 && s.Err == nil && !s.Loading && !s.FirstLoad
	})
}

func TestController_RetriesThenExhausts(t *testing.T) {
	q := newRecordQueue()
	afterCh := make(chan time.Time)
	var mu sync.Mutex
	var delays []time.Duration
	after := func(d time.Duration) <-chan time.Time {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return afterCh
	}

	ctl := newController(q, Spec{Method: "m", Target: "t"}, RetryConfig{}, nil, zerolog.Nop(), after)
	defer ctl.Close()

	boom := errors.New("boom")
	for i := 1; i <= DefaultMaxAttempts; i++ {
		call := recvCall(t, q)
		call.Reject(chainquery.NewTransportError(boom))
		if i < DefaultMaxAttempts {
			afterCh <- time.Time{}
		}
	}

	waitFor(t, "exhausted settle", func() bool {
		s := ctl.Snapshot()
		var exhausted *chainquery.ExhaustedRetriesError
		return errors.As(s.Err, &exhausted) && exhausted.Attempts == DefaultMaxAttempts && s.Data == nil
	})

	if got := q.count(); got != DefaultMaxAttempts {
		t.Fatalf("attempts = %d, want %d", got, DefaultMaxAttempts)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delays) != DefaultMaxAttempts-1 {
		t.Fatalf("retry waits = %d, want %d", len(delays), DefaultMaxAttempts-1)
	}
	for _, d := range delays {
		if d != DefaultRetryDelay {
			t.Fatalf("retry delay = %v, want %v", d, DefaultRetryDelay)
		}
	}
}

func TestController_NonRetryableSurfacesImmediately(t *testing.T) {
	q := newRecordQueue()
	ctl := NewController(q, Spec{Method: "m", Target: "t"}, RetryConfig{}, nil, zerolog.Nop())
	defer ctl.Close()

	call := recvCall(t, q)
	call.Reject(chainquery.ErrDisconnected)

	waitFor(t, "settle", func() bool {
		return errors.Is(ctl.Snapshot().Err, chainquery.ErrDisconnected)
	})
	time.Sleep(20 * time.Millisecond)
	if got := q.count(); got != 1 {
		t.Fatalf("attempts = %d, want 1 for non-retryable error", got)
	}
}

func TestController_NilQueueConfigurationError(t *testing.T) {
	ctl := NewController(nil, Spec{Method: "m", Target: "t"}, RetryConfig{}, nil, zerolog.Nop())
	defer ctl.Close()

	waitFor(t, "configuration error", func() bool {
		s := ctl.Snapshot()
		return errors.Is(s.Err, chainquery.ErrNoClient) && !s.Loading && !s.FirstLoad
	})
}

func TestController_SupersedeDiscardsStaleResult(t *testing.T) {
	q := newRecordQueue()
	ctl := NewController(q, Spec{Method: "m", Target: "t", Args: []any{"old"}}, RetryConfig{}, nil, zerolog.Nop())
	defer ctl.Close()

	stale := recvCall(t, q)

	ctl.Update(Spec{Method: "m", Target: "t", Args: []any{"new"}})
	fresh := recvCall(t, q)
	fresh.Resolve("new result")

	waitFor(t, "fresh settle", func() bool {
		return ctl.Snapshot().Data == "new result"
	})

	// The superseded call resolves late; its result must be discarded.
	stale.Resolve("stale result")
	time.Sleep(50 * time.Millisecond)
	if got := ctl.Snapshot().Data; got != "new result" {
		t.Fatalf("data = %v, stale write overwrote newer result", got)
	}
}

func TestController_IdenticalUpdateIsNoop(t *testing.T) {
	q := newRecordQueue()
	spec := Spec{Method: "m", Target: "t", Args: []any{"x"}}
	ctl := NewController(q, spec, RetryConfig{}, nil, zerolog.Nop())
	defer ctl.Close()

	call := recvCall(t, q)
	call.Resolve(1)
	waitFor(t, "settle", func() bool { return ctl.Snapshot().Data == 1 })

	ctl.Update(spec)
	time.Sleep(50 * time.Millisecond)
	if got := q.count(); got != 1 {
		t.Fatalf("identical update re-issued: attempts = %d, want 1", got)
	}
}

func TestController_RefetchSignalKeepsFirstLoad(t *testing.T) {
	q := newRecordQueue()
	source := &stubSource{ch: make(chan struct{}, 1)}
	ctl := NewController(q, Spec{Method: "m", Target: "t"}, RetryConfig{}, source, zerolog.Nop())
	defer ctl.Close()

	first := recvCall(t, q)
	first.Resolve(1)
	waitFor(t, "first settle", func() bool { return ctl.Snapshot().Data == 1 })

	source.ch <- struct{}{}
	second := recvCall(t, q)

	waitFor(t, "reloading", func() bool { return ctl.Snapshot().Loading })
	if ctl.Snapshot().FirstLoad {
		t.Fatal("refetch signal reset FirstLoad")
	}

	second.Resolve(2)
	waitFor(t, "second settle", func() bool { return ctl.Snapshot().Data == 2 })
}

func TestController_RefetchCompletesOnSettle(t *testing.T) {
	q := newRecordQueue()
	ctl := NewController(q, Spec{Method: "m", Target: "t"}, RetryConfig{}, nil, zerolog.Nop())
	defer ctl.Close()

	first := recvCall(t, q)
	first.Resolve(1)
	waitFor(t, "first settle", func() bool { return ctl.Snapshot().Data == 1 })

	done := ctl.Refetch()
	second := recvCall(t, q)
	second.Resolve(2)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refetch completion never fired")
	}
	if got := ctl.Snapshot().Data; got != 2 {
		t.Fatalf("data = %v, want 2", got)
	}
}

func TestController_RefetchCompletesOnSupersede(t *testing.T) {
	q := newRecordQueue()
	ctl := NewController(q, Spec{Method: "m", Target: "t", Args: []any{"a"}}, RetryConfig{}, nil, zerolog.Nop())
	defer ctl.Close()

	recvCall(t, q)
	done := ctl.Refetch()
	recvCall(t, q)

	// A newer issue supersedes the refetch; its completion resolves rather
	// than rejecting so callers never see unhandled failures.
	ctl.Update(Spec{Method: "m", Target: "t", Args: []any{"b"}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded refetch completion never fired")
	}
}

func TestController_CloseUnsubscribes(t *testing.T) {
	q := newRecordQueue()
	source := &stubSource{ch: make(chan struct{}, 1)}
	ctl := NewController(q, Spec{Method: "m", Target: "t", Skip: true}, RetryConfig{}, source, zerolog.Nop())

	ctl.Close()
	waitFor(t, "unsubscribe", func() bool { return source.unsubscribed.Load() })

	// Refetch on a closed controller resolves immediately.
	select {
	case <-ctl.Refetch():
	case <-time.After(time.Second):
		t.Fatal("refetch on closed controller hung")
	}
}
