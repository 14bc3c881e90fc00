package sync

import (
	gosync "sync"
)

// Watcher carries new-mail notifications from a mailbox session to its
// supervisor over a bounded channel. Exactly one subscription may be
// installed at a time; the supervisor installs a fresh one at the start
// of each connection episode and releases it when the episode ends, so
// reconnects never accumulate duplicate listeners.
type Watcher struct {
	events chan struct{}

	mu        gosync.Mutex
	installed bool
}

// NewWatcher creates a watcher with a bounded notification buffer.
func NewWatcher() *Watcher {
	return &Watcher{
		// One pending wakeup is enough to cover any notification batch;
		// the buffer only absorbs bursts between supervisor reads.
		events: make(chan struct{}, 16),
	}
}

// Install drains any notifications left over from a previous episode
// and returns the channel the new session should report into. Panics
// if a subscription is already active; the supervisor must Release the
// previous one first.
func (w *Watcher) Install() chan<- struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.installed {
		panic("watcher: subscription already installed")
	}
	w.installed = true

	// Drop stale wakeups so a reconnect does not replay notifications
	// that belonged to the discarded connection.
	for {
		select {
		case <-w.events:
		default:
			return w.events
		}
	}
}

// Release marks the current subscription inactive. Safe to call when
// none is installed.
func (w *Watcher) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.installed = false
}

// Active reports whether a subscription is currently installed.
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.installed
}

// Events is the supervisor's receive side.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Notify records a new-mail notification without blocking. Used by
// sessions that deliver events directly rather than through the
// installed channel.
func (w *Watcher) Notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
