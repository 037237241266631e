package activity

import (
	"time"

	"backend-escapevim/internal/shared/geo"
)

// Segment is a contiguous run of points recorded without a pause.
type Segment []geo.Point

type Activity struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	Type       string    `json:"type"`
	DistanceKm float64   `json:"distance_km"`
	Duration   string    `json:"duration"`
	Date       time.Time `json:"date"`
	Segments   []Segment `json:"segments"`
	Comment    string    `json:"comment"`
}

// FinishedAt is the start date shifted by the recorded duration. Activities
// with an unreadable duration finish when they start.
func (a Activity) FinishedAt() time.Time {
	secs, err := ParseDuration(a.Duration)
	if err != nil {
		return a.Date
	}
	return a.Date.Add(time.Duration(secs) * time.Second)
}

// PointCount is the number of points across all segments.
func (a Activity) PointCount() int {
	n := 0
	for _, seg := range a.Segments {
		n += len(seg)
	}
	return n
}

type Patch struct {
	Comment *string `json:"comment"`
}

type DayTotal struct {
	Day        time.Time `json:"day"`
	DistanceKm float64   `json:"distance_km"`
}
