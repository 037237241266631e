package tracking

import (
	"fmt"

	"backend-escapevim/internal/activity"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingType
	StateRunning
	StatePaused
	StateFinished
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateAwaitingType: "awaiting_type",
	StateRunning:      "running",
	StatePaused:       "paused",
	StateFinished:     "finished",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a copy of the session at one instant. Finished is set only on
// the snapshot emitted by Stop; Saved and SaveError only on the one emitted
// when the save completes.
type Snapshot struct {
	Seq        uint64             `json:"seq"`
	AccountID  int64              `json:"account_id"`
	RunID      string             `json:"run_id,omitempty"`
	State      State              `json:"state"`
	Type       string             `json:"type,omitempty"`
	DistanceKm float64            `json:"distance_km"`
	ElapsedSec int64              `json:"elapsed_sec"`
	Elapsed    string             `json:"elapsed"`
	Segments   []activity.Segment `json:"segments"`
	Finished   *activity.Activity `json:"finished,omitempty"`
	Saved      *activity.Activity `json:"saved,omitempty"`
	SaveError  string             `json:"save_error,omitempty"`
}

type SampleRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type TypeRequest struct {
	Type string `json:"type"`
}
