package tracking

import (
	"sync"

	"backend-escapevim/internal/shared/geo"
)

// Source delivers location samples to a single handler. ok is false when the
// device reported a fix without a usable location.
type Source interface {
	StartTracking(handler func(p geo.Point, ok bool))
	StopTracking()
	Current() (geo.Point, bool)
}

// PushSource is a Source fed by callers, typically the samples endpoint.
// The handler is invoked without any lock held, so it may call back into the
// source.
type PushSource struct {
	mu      sync.RWMutex
	handler func(geo.Point, bool)
	last    geo.Point
	hasLast bool
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

func (s *PushSource) StartTracking(handler func(geo.Point, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *PushSource) StopTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = nil
}

func (s *PushSource) Current() (geo.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// Push records p as the best-known location and forwards it to the handler.
// It reports whether a handler was attached.
func (s *PushSource) Push(p geo.Point) bool {
	s.mu.Lock()
	s.last, s.hasLast = p, true
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(p, true)
	return true
}

func (s *PushSource) PushMissing() bool {
	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()

	if handler == nil {
		return false
	}
	handler(geo.Point{}, false)
	return true
}
