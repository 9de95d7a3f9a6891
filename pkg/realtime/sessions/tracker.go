// Package sessions tracks the realtime agent sessions attached to live
// meetings so they can be closed when the call ends or the process drains.
package sessions

import (
	"context"
	"sync"
)

type Handle struct {
	Close func()
}

type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
}

type trackedSession struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
	}
}

// Register tracks a session under meetingID. A session already registered for
// the same meeting is closed and replaced. The returned func must be called
// once the session has ended.
func (t *Tracker) Register(meetingID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedSession{handle: h}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	old := t.sessions[meetingID]
	t.sessions[meetingID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		if old.handle.Close != nil {
			old.handle.Close()
		}
		t.unregister(meetingID, old)
	}

	return func() { t.unregister(meetingID, entry) }
}

func (t *Tracker) unregister(meetingID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[meetingID] == entry {
			delete(t.sessions, meetingID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// Close ends the session for meetingID, if any, and reports whether one was
// tracked.
func (t *Tracker) Close(meetingID string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	entry := t.sessions[meetingID]
	t.mu.Unlock()
	if entry == nil {
		return false
	}
	if entry.handle.Close != nil {
		entry.handle.Close()
	}
	t.unregister(meetingID, entry)
	return true
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) CloseAll() (closed int) {
	if t == nil {
		return 0
	}

	var closers []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Close == nil {
			continue
		}
		closers = append(closers, entry.handle.Close)
	}
	t.mu.Unlock()

	for _, c := range closers {
		c()
		closed++
	}
	return closed
}

// Wait blocks until every registered session has unregistered or ctx ends.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
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
