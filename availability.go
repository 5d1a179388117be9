package lorafhss

import (
	"context"
	"sync"
)

// availability is the flag telling callers the transceiver is free.
// ready is closed while the flag is set so waiters can select on it.
type availability struct {
	mu    sync.Mutex
	ok    bool
	ready chan struct{}
}

func newAvailability() *availability {
	a := &availability{ready: make(chan struct{})}
	a.set(true)
	return a
}

func (a *availability) set(ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ok == ok {
		return
	}
	a.ok = ok
	if ok {
		close(a.ready)
	} else {
		a.ready = make(chan struct{})
	}
}

func (a *availability) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ok
}

func (a *availability) wait(ctx context.Context) error {
	a.mu.Lock()
	ready := a.ready
	a.mu.Unlock()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
