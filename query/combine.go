package query

import "sync"

// Combined is the reduction of several controllers' snapshots.
type Combined struct {
	Data      []any
	Err       error
	Loading   bool
	FirstLoad bool
}

// Combine merges controller outputs positionally: Data keeps one entry per
// controller (nil for unsettled or errored ones), Err is the first non-nil
// error left to right, Loading and FirstLoad are true if any constituent's
// is. Pure reduction: no retry or error suppression of its own.
func Combine(ctls ...*Controller) Combined {
	out := Combined{Data: make([]any, len(ctls))}
	for i, ctl := range ctls {
		s := ctl.Snapshot()
		out.Data[i] = s.Data
		if out.Err == nil && s.Err != nil {
			out.Err = s.Err
		}
		out.Loading = out.Loading || s.Loading
		out.FirstLoad = out.FirstLoad || s.FirstLoad
	}
	return out
}

// RefetchAll refetches every controller concurrently. The returned channel
// closes once all of them have settled.
func RefetchAll(ctls ...*Controller) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, ctl := range ctls {
		wg.Add(1)
		ch := ctl.Refetch()
		go func() {
			defer wg.Done()
			<-ch
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
