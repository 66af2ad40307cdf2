package output

import (
	"bufio"
	"fmt"
	"os"

	"github.com/banshee-data/retrack.video/internal/braidz"
	"github.com/banshee-data/retrack.video/internal/merge"
	"github.com/banshee-data/retrack.video/internal/render"
)

// DebugSink writes a human-readable trace of every moment: one header
// line per moment, then per camera either the collected detection rows
// or a "no points" marker.
type DebugSink struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// NewDebugSink creates (truncating) the debug text file.
func NewDebugSink(path string) (*DebugSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating debug output %s: %w", path, err)
	}
	return &DebugSink{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (d *DebugSink) Path() string { return d.path }

func (d *DebugSink) WriteMoment(idx int, moment *merge.SyncedPictures, frames []render.PerCamRenderFrame) error {
	if _, err := fmt.Fprintf(d.w, "output frame %d ----------\n", idx); err != nil {
		return err
	}
	for i, pic := range moment.CameraPictures {
		name := frames[i].Template.BestName
		if len(pic.Rows) == 0 {
			if _, err := fmt.Fprintf(d.w, "   Collect %s: %s (%f) no points\n",
				name, pic.Timestamp.UTC().Format(timeLayout), braidz.EpochFromTime(pic.Timestamp)); err != nil {
				return err
			}
			continue
		}
		for rowi, row := range pic.Rows {
			if _, err := fmt.Fprintf(d.w, "   Collect %s: %s (%f), rowi %d, %s (%f), %v, %v\n",
				name,
				pic.Timestamp.UTC().Format(timeLayout), braidz.EpochFromTime(pic.Timestamp),
				rowi,
				row.CamReceivedTimestamp.UTC().Format(timeLayout), braidz.EpochFromTime(row.CamReceivedTimestamp),
				row.X, row.Y); err != nil {
				return err
			}
		}
	}
	return nil
}

const timeLayout = "2006-01-02 15:04:05.000000 MST"

func (d *DebugSink) Close() error {
	if err := d.w.Flush(); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
