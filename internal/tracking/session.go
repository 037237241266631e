package tracking

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"backend-escapevim/internal/activity"
	"backend-escapevim/internal/shared/geo"

	"github.com/google/uuid"
)

// Saver persists a finished record. done is called once the outcome is known
// and may run on another goroutine.
type Saver interface {
	Save(rec activity.Activity, done func(activity.Activity, error))
}

// Session is the activity state machine of one account. All mutations are
// serialized by mu; observers run after it is released.
type Session struct {
	mu         sync.Mutex
	accountID  int64
	state      State
	runID      string
	actType    string
	distanceKm float64
	route      *Segmenter
	clock      *Clock
	source     Source
	saver      Saver
	seq        uint64

	obsMu     sync.RWMutex
	observers map[int]func(Snapshot)
	nextObs   int

	now func() time.Time
}

func NewSession(accountID int64, source Source, clock *Clock, saver Saver) *Session {
	s := &Session{
		accountID: accountID,
		state:     StateIdle,
		route:     NewSegmenter(),
		clock:     clock,
		source:    source,
		saver:     saver,
		observers: map[int]func(Snapshot){},
		now:       time.Now,
	}
	clock.OnTick(func(int64) { s.publish(s.Snapshot()) })
	return s
}

func (s *Session) Start() bool {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return false
	}
	s.route.Reset()
	s.clock.Reset()
	s.distanceKm = 0
	s.actType = ""
	s.runID = uuid.NewString()
	s.state = StateAwaitingType
	s.source.StartTracking(s.HandleSample)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return true
}

func (s *Session) SelectType(t string) bool {
	t = strings.TrimSpace(t)
	if t == "" {
		return false
	}

	s.mu.Lock()
	if s.state != StateAwaitingType {
		s.mu.Unlock()
		return false
	}
	s.actType = t
	s.state = StateRunning
	s.clock.Start()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return true
}

func (s *Session) Pause() bool {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	s.clock.Pause()
	s.route.MarkPause()
	s.state = StatePaused
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return true
}

// Resume restarts the clock and opens a new segment at the pre-pause point,
// falling back to the source's best-known location. Without either, the
// session still resumes and the next sample starts the segment.
func (s *Session) Resume() bool {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return false
	}
	s.clock.Start()
	s.state = StateRunning

	err := s.route.StartNewSegment(nil)
	if errors.Is(err, ErrNoAnchor) {
		if p, ok := s.source.Current(); ok {
			err = s.route.StartNewSegment(&p)
		}
	}
	if err != nil {
		log.Printf("tracking: account %d resume: %v", s.accountID, err)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return true
}

// Stop finishes the run and returns the record handed to the saver. The
// source and clock are silenced before the record is built, so no sample or
// tick can land after it.
func (s *Session) Stop() (activity.Activity, bool) {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StatePaused {
		s.mu.Unlock()
		return activity.Activity{}, false
	}
	s.source.StopTracking()
	s.clock.Pause()

	rec := activity.Activity{
		AccountID:  s.accountID,
		Type:       s.actType,
		DistanceKm: s.distanceKm,
		Duration:   activity.FormatDuration(s.clock.Elapsed()),
		Date:       s.now(),
		Segments:   s.route.Segments(),
	}
	s.state = StateFinished
	finished := s.snapshotLocked()
	finished.Finished = &rec

	s.route.Reset()
	s.clock.Reset()
	s.distanceKm = 0
	s.actType = ""
	s.state = StateIdle
	idle := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(finished)
	s.publish(idle)
	if s.saver != nil {
		s.saver.Save(rec, s.saved)
	}
	return rec, true
}

// HandleSample is the source callback. Samples are dropped unless running.
func (s *Session) HandleSample(p geo.Point, ok bool) {
	if !ok {
		log.Printf("tracking: account %d: sample without location ignored", s.accountID)
		return
	}

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.distanceKm += geo.StepKm(s.route.Last(), p)
	s.route.Append(p)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every snapshot the session emits.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Close silences the source and clock without saving anything.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source.StopTracking()
	s.clock.Pause()
}

func (s *Session) saved(rec activity.Activity, err error) {
	snap := s.Snapshot()
	if err != nil {
		snap.SaveError = err.Error()
	} else {
		snap.Saved = &rec
	}
	s.publish(snap)
}

// snapshotLocked numbers every snapshot; a higher Seq is always newer state.
func (s *Session) snapshotLocked() Snapshot {
	s.seq++
	elapsed := s.clock.Elapsed()
	return Snapshot{
		Seq:        s.seq,
		AccountID:  s.accountID,
		RunID:      s.runID,
		State:      s.state,
		Type:       s.actType,
		DistanceKm: s.distanceKm,
		ElapsedSec: elapsed,
		Elapsed:    activity.FormatDuration(elapsed),
		Segments:   s.route.Segments(),
	}
}

func (s *Session) publish(snap Snapshot) {
	s.obsMu.RLock()
	fns := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}
