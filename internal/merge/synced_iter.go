package merge

import (
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/retrack.video/internal/monitoring"
)

// EstimateFrameDuration derives the nominal frame duration from the
// streams themselves: the minimum first-to-second-frame delta across all
// cursors, a heuristic for the fastest native frame rate present. It does
// not consume any frames.
func EstimateFrameDuration(readers []*Cursor) (time.Duration, error) {
	if len(readers) == 0 {
		return 0, fmt.Errorf("no frame streams to estimate frame duration from")
	}
	deltas := make([]float64, 0, len(readers))
	for i, r := range readers {
		t1, ok, err := peek1Time(r)
		if err != nil {
			return 0, err
		}
		t2, ok2, err := peek2Time(r)
		if err != nil {
			return 0, err
		}
		if !ok || !ok2 {
			return 0, fmt.Errorf("stream %d has fewer than two frames; cannot estimate frame duration", i)
		}
		d := t2.Sub(t1)
		if d <= 0 {
			return 0, fmt.Errorf("stream %d has non-increasing timestamps", i)
		}
		deltas = append(deltas, d.Seconds())
	}
	min := floats.Min(deltas)
	monitoring.Logf("nominal frame duration estimate: min=%.6fs mean=%.6fs over %d cameras",
		min, stat.Mean(deltas, nil), len(deltas))
	return time.Duration(min * float64(time.Second)), nil
}

// SyncedIter is the free-running merge strategy: no archive drives the
// timing, so moments are paced by a clock that starts at the earliest
// aligned frame time and advances one nominal frame duration per emitted
// moment. A camera contributes the frame nearest the moment clock when
// that frame falls within the sync threshold; otherwise it contributes
// nothing for the moment.
type SyncedIter struct {
	readers   []*Cursor
	threshold time.Duration
	frameDur  time.Duration

	started bool
	clock   time.Time // timestamp of the next moment
	last    time.Time // timestamp of the previously emitted moment
}

// NewSyncedIter builds the free-running merge over the given cursors.
// Cursors are expected to have been startup-aligned already.
func NewSyncedIter(readers []*Cursor, threshold, frameDur time.Duration) (*SyncedIter, error) {
	if frameDur <= 0 {
		return nil, fmt.Errorf("frame duration must be positive, got %v", frameDur)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("sync threshold must be positive, got %v", threshold)
	}
	return &SyncedIter{readers: readers, threshold: threshold, frameDur: frameDur}, nil
}

// Next produces the next moment, or io.EOF once every cursor is
// exhausted.
func (s *SyncedIter) Next() (*SyncedPictures, error) {
	if s.started {
		for _, r := range s.readers {
			if err := dropStale(r, s.last); err != nil {
				return nil, err
			}
		}
	}

	earliest, any, err := s.earliestUpcoming()
	if err != nil {
		return nil, err
	}
	if !any {
		return nil, io.EOF
	}

	t := s.clock
	switch {
	case !s.started:
		t = earliest
	case earliest.After(t.Add(s.threshold)):
		// Every camera went silent past the window: jump the clock
		// forward instead of emitting empty moments.
		t = earliest
	case earliest.Before(t.Add(-s.threshold)) && earliest.After(s.last):
		// A frame landed between the previous window and this one
		// (threshold configured tighter than half the frame duration).
		// Pull the clock back just enough to keep it.
		t = earliest
	}
	if s.started && !t.After(s.last) {
		t = s.last.Add(s.frameDur)
	}

	pics := make([]PerCameraPicture, len(s.readers))
	for i, r := range s.readers {
		pic := PerCameraPicture{Timestamp: t}
		frame, err := takeNearest(r, t, s.threshold)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			pic.Timestamp = frame.Timestamp
			pic.Image = frame.Image
		}
		pics[i] = pic
	}

	s.started = true
	s.last = t
	s.clock = t.Add(s.frameDur)
	return &SyncedPictures{Timestamp: t, CameraPictures: pics}, nil
}

func (s *SyncedIter) earliestUpcoming() (time.Time, bool, error) {
	var earliest time.Time
	any := false
	for _, r := range s.readers {
		t, ok, err := peek1Time(r)
		if err != nil {
			return time.Time{}, false, err
		}
		if !ok {
			continue
		}
		if !any || t.Before(earliest) {
			earliest = t
			any = true
		}
	}
	return earliest, any, nil
}
