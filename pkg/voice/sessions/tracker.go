// Package sessions tracks live voice sessions so shutdown can drain
// them: cancel every active session, then wait for their goroutines to
// unwind within a grace period.
package sessions

import (
	"context"
	"sync"
)

type Tracker struct {
	mu     sync.Mutex
	active map[string]*entry
	wg     sync.WaitGroup
}

type entry struct {
	cancel func()
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*entry)}
}

// Register adds a session and returns its unregister func. Registering
// an id that is already present cancels and replaces the old session.
func (t *Tracker) Register(sessionID string, cancel func()) (unregister func()) {
	if t == nil {
		return func() {}
	}

	e := &entry{cancel: cancel}

	t.mu.Lock()
	old := t.active[sessionID]
	t.active[sessionID] = e
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		if old.cancel != nil {
			old.cancel()
		}
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, e) }
}

func (t *Tracker) unregister(sessionID string, e *entry) {
	e.once.Do(func() {
		t.mu.Lock()
		if t.active[sessionID] == e {
			delete(t.active, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// CancelAll aborts every active session. Sessions unregister themselves
// as their Run loops return.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	cancels := make([]func(), 0, len(t.active))
	for _, e := range t.active {
		if e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered or ctx
// expires. It reports whether the drain completed.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
