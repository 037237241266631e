package tracking

import (
	"sync"
	"time"
)

type sessionEntry struct {
	session *Session
	source  *PushSource
}

// Registry holds the single session of every account seen by this process.
type Registry struct {
	mu        sync.Mutex
	tick      time.Duration
	saver     Saver
	sessions  map[int64]sessionEntry
	observers []func(accountID int64, snap Snapshot)

	notifyMu sync.Mutex
	lastSeq  map[int64]uint64
}

func NewRegistry(tick time.Duration, saver Saver) *Registry {
	return &Registry{
		tick:     tick,
		saver:    saver,
		sessions: map[int64]sessionEntry{},
		lastSeq:  map[int64]uint64{},
	}
}

// Observe adds fn to every session, current and future.
func (r *Registry) Observe(fn func(accountID int64, snap Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Session returns the account's session, creating an idle one on first use.
func (r *Registry) Session(accountID int64) (*Session, *PushSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[accountID]; ok {
		return e.session, e.source
	}
	src := NewPushSource()
	sess := NewSession(accountID, src, NewClock(r.tick), r.saver)
	sess.Subscribe(func(snap Snapshot) { r.notify(accountID, snap) })
	r.sessions[accountID] = sessionEntry{session: sess, source: src}
	return sess, src
}

func (r *Registry) Lookup(accountID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[accountID]
	return e.session, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close silences every session. Unfinished runs are discarded.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := make([]sessionEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
	}
}

// notify hands snap to the observers in Seq order. A snapshot that lost the
// race to a newer one is dropped.
func (r *Registry) notify(accountID int64, snap Snapshot) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if snap.Seq <= r.lastSeq[accountID] {
		return
	}
	r.lastSeq[accountID] = snap.Seq

	r.mu.Lock()
	fns := append([]func(int64, Snapshot){}, r.observers...)
	r.mu.Unlock()

	for _, fn := range fns {
		fn(accountID, snap)
	}
}
