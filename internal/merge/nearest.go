package merge

import (
	"time"

	"github.com/banshee-data/retrack.video/internal/framesource"
)

// takeNearest consumes and returns the frame nearest to t, provided it
// lies within threshold of t. Frames at or before t are consumed while a
// strictly closer frame follows; frames after t are never skipped past,
// so a camera running ahead of the moment clock simply contributes
// nothing until the clock catches up. Returns nil when no frame falls
// inside the window.
func takeNearest(r *Cursor, t time.Time, threshold time.Duration) (*framesource.Frame, error) {
	for {
		t1, ok, err := peek1Time(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if t1.After(t) {
			break
		}
		t2, ok2, err := peek2Time(r)
		if err != nil {
			return nil, err
		}
		if !ok2 || absDur(t2.Sub(t)) >= absDur(t1.Sub(t)) {
			break
		}
		// The following frame is strictly closer; the current one can
		// only belong to an already-emitted moment.
		r.Next()
	}

	t1, ok, err := peek1Time(r)
	if err != nil {
		return nil, err
	}
	if !ok || absDur(t1.Sub(t)) > threshold {
		return nil, nil
	}
	res, _ := r.Next()
	return res.Frame, nil
}

// dropStale discards frames at or before last. Moments are strictly
// increasing, so a frame that was not selected by the moment emitted at
// last is outside every later window too; left in place it would pin the
// cursor forever when a stream carries duplicate capture timestamps.
func dropStale(r *Cursor, last time.Time) error {
	for {
		t1, ok, err := peek1Time(r)
		if err != nil {
			return err
		}
		if !ok || t1.After(last) {
			return nil
		}
		r.Next()
	}
}
