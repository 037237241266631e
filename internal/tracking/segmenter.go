package tracking

import (
	"backend-escapevim/internal/activity"
	"backend-escapevim/internal/shared/apperr"
	"backend-escapevim/internal/shared/geo"
)

var ErrNoAnchor = apperr.Tracking("no location to start a new segment")

// Segmenter splits a route into segments at pause boundaries. It is not safe
// for concurrent use; Session guards it with its own mutex.
type Segmenter struct {
	segments []activity.Segment
	anchor   *geo.Point
}

func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

func (s *Segmenter) Append(p geo.Point) {
	if len(s.segments) == 0 {
		s.segments = append(s.segments, activity.Segment{})
	}
	last := len(s.segments) - 1
	s.segments[last] = append(s.segments[last], p)
}

// MarkPause remembers the last appended point as the anchor for the next
// segment. With no points recorded the anchor is cleared.
func (s *Segmenter) MarkPause() {
	s.anchor = s.Last()
}

// StartNewSegment opens a segment seeded with start, or with the pause
// anchor when start is nil.
func (s *Segmenter) StartNewSegment(start *geo.Point) error {
	if start == nil {
		start = s.anchor
	}
	if start == nil {
		return ErrNoAnchor
	}
	s.segments = append(s.segments, activity.Segment{*start})
	s.anchor = nil
	return nil
}

func (s *Segmenter) HasAnchor() bool {
	return s.anchor != nil
}

func (s *Segmenter) Reset() {
	s.segments = nil
	s.anchor = nil
}

// Segments returns a deep copy of the non-empty segments.
func (s *Segmenter) Segments() []activity.Segment {
	out := make([]activity.Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		if len(seg) == 0 {
			continue
		}
		cp := make(activity.Segment, len(seg))
		copy(cp, seg)
		out = append(out, cp)
	}
	return out
}

// Last is the final point of the current segment, or nil before the first
// point.
func (s *Segmenter) Last() *geo.Point {
	if len(s.segments) == 0 {
		return nil
	}
	seg := s.segments[len(s.segments)-1]
	if len(seg) == 0 {
		return nil
	}
	p := seg[len(seg)-1]
	return &p
}

func (s *Segmenter) Len() int {
	return len(s.segments)
}
