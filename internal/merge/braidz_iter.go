package merge

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/banshee-data/retrack.video/internal/braidz"
	"github.com/banshee-data/retrack.video/internal/monitoring"
)

// ReaderSlot binds one roster position to its archive join key and,
// optionally, a live video cursor. A video-only camera in an
// archive-driven run has a cursor but no camera number; an archive-only
// camera has a camera number but no cursor.
type ReaderSlot struct {
	CamNum    int
	HasCamNum bool
	Reader    *Cursor
}

// braidzFrame is one trigger instant of the archive: all detection rows
// across cameras sharing one synchronized frame number.
type braidzFrame struct {
	frame     int64
	timestamp time.Time
	trigger   time.Time // zero when the archive recorded no trigger clock
	rows      map[int][]braidz.Data2DRow
}

// BraidzIter is the archive-driven merge strategy: the archive's
// synchronized frame numbers define the moments and their trigger
// timestamps define the timing. When live video cursors are present,
// each moment additionally pulls the video frame nearest the trigger
// timestamp, within the sync threshold.
type BraidzIter struct {
	frames    []braidzFrame
	slots     []ReaderSlot
	threshold time.Duration

	pos  int
	last time.Time
}

// NewBraidzIter groups the archive rows by frame number and prepares the
// merge. Rows must come from a single archive; slots must be in roster
// order.
func NewBraidzIter(rows []braidz.Data2DRow, slots []ReaderSlot, threshold time.Duration) (*BraidzIter, error) {
	byFrame := make(map[int64]*braidzFrame)
	for _, row := range rows {
		fr := byFrame[row.Frame]
		if fr == nil {
			fr = &braidzFrame{frame: row.Frame, rows: make(map[int][]braidz.Data2DRow)}
			byFrame[row.Frame] = fr
		}
		fr.rows[row.CamNum] = append(fr.rows[row.CamNum], row)
		if fr.trigger.IsZero() && !row.TriggerTimestamp.IsZero() {
			fr.trigger = row.TriggerTimestamp
		}
		if fr.timestamp.IsZero() || (!row.CamReceivedTimestamp.IsZero() && row.CamReceivedTimestamp.Before(fr.timestamp)) {
			fr.timestamp = row.CamReceivedTimestamp
		}
	}

	frames := make([]braidzFrame, 0, len(byFrame))
	for _, fr := range byFrame {
		if !fr.trigger.IsZero() {
			fr.timestamp = fr.trigger
		}
		if fr.timestamp.IsZero() {
			return nil, fmt.Errorf("archive frame %d carries no usable timestamp", fr.frame)
		}
		frames = append(frames, *fr)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].frame < frames[j].frame })

	return &BraidzIter{frames: frames, slots: slots, threshold: threshold}, nil
}

// Next produces the next archive moment, or io.EOF when the archive is
// exhausted.
func (b *BraidzIter) Next() (*SyncedPictures, error) {
	for {
		if b.pos >= len(b.frames) {
			return nil, io.EOF
		}
		fr := b.frames[b.pos]
		b.pos++

		// Moments must be strictly increasing; discard archive frames
		// whose clock did not move forward.
		if !b.last.IsZero() && !fr.timestamp.After(b.last) {
			monitoring.Logf("skipping archive frame %d: timestamp %v not after %v",
				fr.frame, fr.timestamp, b.last)
			continue
		}
		prev := b.last
		b.last = fr.timestamp

		pics := make([]PerCameraPicture, len(b.slots))
		for i, slot := range b.slots {
			pic := PerCameraPicture{Timestamp: fr.timestamp}
			if slot.HasCamNum {
				pic.Rows = fr.rows[slot.CamNum]
			}
			if slot.Reader != nil {
				if err := dropStale(slot.Reader, prev); err != nil {
					return nil, err
				}
				frame, err := takeNearest(slot.Reader, fr.timestamp, b.threshold)
				if err != nil {
					return nil, err
				}
				if frame != nil {
					pic.Timestamp = frame.Timestamp
					pic.Image = frame.Image
				}
			}
			pics[i] = pic
		}

		return &SyncedPictures{
			Timestamp:      fr.timestamp,
			CameraPictures: pics,
			Braidz:         &BraidzInfo{TriggerTimestamp: fr.trigger},
		}, nil
	}
}
