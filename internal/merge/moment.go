// Package merge turns independently recorded per-camera frame streams
// and/or a braidz detection archive into a single sequence of
// synchronized moments. Two mutually exclusive strategies exist and are
// chosen once at startup: archive-driven (the archive's trigger
// timestamps are the ground-truth moments) and free-running (moments are
// derived from the union of camera frame timestamps).
package merge

import (
	"time"

	"github.com/banshee-data/retrack.video/internal/braidz"
	"github.com/banshee-data/retrack.video/internal/framesource"
	"github.com/banshee-data/retrack.video/internal/peek"
)

// Cursor is a two-item-lookahead frame cursor. The merge engine takes
// exclusive ownership of each camera's cursor for the run.
type Cursor = peek.Cursor[framesource.Result]

// NewCursor wraps a frame sequence in a lookahead cursor.
func NewCursor(seq framesource.Seq) *Cursor {
	return peek.New[framesource.Result](seq)
}

// PerCameraPicture is one camera's contribution to a moment: the
// camera-local timestamp, the decoded image if one fell inside the sync
// window, and the archive detection rows for this camera at this moment
// (possibly empty). An absent image is an expected condition, never an
// error.
type PerCameraPicture struct {
	Timestamp time.Time
	Image     *framesource.Image
	Rows      []braidz.Data2DRow
}

// BraidzInfo carries extra information available when the archive was the
// synchronization source.
type BraidzInfo struct {
	// TriggerTimestamp is the trigger-box timestamp of the moment, when
	// the archive recorded one.
	TriggerTimestamp time.Time
}

// SyncedPictures is one synchronized instant across all cameras. The
// CameraPictures slice always has exactly one entry per roster camera, in
// roster order.
type SyncedPictures struct {
	Timestamp      time.Time
	CameraPictures []PerCameraPicture
	// Braidz is non-nil when a braidz archive supplied the timing.
	Braidz *BraidzInfo
}

// MomentSource produces moments in strictly increasing timestamp order.
// Next returns io.EOF when the input is exhausted; any other error is
// fatal for the run.
type MomentSource interface {
	Next() (*SyncedPictures, error)
}

// peek1Time reports the timestamp of the first upcoming frame: absent
// when the cursor is exhausted, error when the item is a decode failure.
func peek1Time(c *Cursor) (time.Time, bool, error) {
	return resultTime(c.Peek1())
}

// peek2Time is peek1Time for the second upcoming frame.
func peek2Time(c *Cursor) (time.Time, bool, error) {
	return resultTime(c.Peek2())
}

func resultTime(r *framesource.Result) (time.Time, bool, error) {
	if r == nil {
		return time.Time{}, false, nil
	}
	if r.Err != nil {
		return time.Time{}, false, r.Err
	}
	return r.Frame.Timestamp, true, nil
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
