package merge

import (
	"time"

	"github.com/banshee-data/retrack.video/internal/monitoring"
)

// AlignReaders advances each cursor until its first upcoming frame is the
// best available match for the target start time. This is the video-only
// startup path: the target is the latest of all cameras' start times, so
// every stream waits for the slowest-starting camera.
//
// Each cursor is handled independently:
//
//  1. A first frame at or after the target is already the first usable
//     frame and is left in place, which also makes alignment idempotent.
//  2. Otherwise the cursor advances while the second upcoming frame is
//     still before the target. Once the second frame reaches or passes
//     it, whichever of the two is numerically closer wins; an exact tie
//     keeps the earlier frame.
//  3. A cursor whose stream ends before the target drops its final
//     pre-target frame and is left exhausted.
func AlignReaders(target time.Time, readers []*Cursor) error {
	for _, r := range readers {
		if err := alignOne(target, r); err != nil {
			return err
		}
	}
	return nil
}

func alignOne(target time.Time, r *Cursor) error {
	t1, ok, err := peek1Time(r)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if !t1.Before(target) {
		// First frame is already at or after the start time, use it
		// unconditionally.
		return nil
	}
	p1Delta := absDur(t1.Sub(target))

	for {
		t2, ok, err := peek2Time(r)
		if err != nil {
			return err
		}
		if !ok {
			// A single pre-target frame remains; skip it rather than
			// special-casing single-frame files downstream.
			if r.Peek1() != nil {
				monitoring.Logf("dropping final frame before start time %v", target)
				r.Next()
			}
			return nil
		}
		p2Delta := absDur(t2.Sub(target))

		if !t2.Before(target) {
			// Second frame is at or past the start time: keep the
			// closer of the pair, advancing only if the second is
			// strictly closer.
			if p2Delta < p1Delta {
				r.Next()
			}
			return nil
		}

		// Not yet at the start time, advance.
		r.Next()
		p1Delta = p2Delta
	}
}
