// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files: synthetic frame streams and on-disk braidz fixtures.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/retrack.video/internal/framesource"
)

// T0 is an arbitrary fixed base time used by fixtures.
var T0 = time.Date(2021, 11, 8, 8, 45, 23, 0, time.UTC)

// Frames builds n mono frames of the given size, dt apart, starting at
// start. Pixel zero carries the frame index so images are told apart.
func Frames(start time.Time, dt time.Duration, n, w, h int) []*framesource.Frame {
	out := make([]*framesource.Frame, n)
	for i := range out {
		im := framesource.BlankMono8(w, h)
		im.Pix[0] = byte(i)
		out[i] = &framesource.Frame{Timestamp: start.Add(time.Duration(i) * dt), Image: im}
	}
	return out
}

// BraidzCam describes one camera of a braidz fixture.
type BraidzCam struct {
	CamNum int
	CamID  string
	Width  int
	Height int
}

// BraidzRow is one detection row of a braidz fixture. A NaN X encodes a
// no-detection placeholder row, as the recorder writes them.
type BraidzRow struct {
	CamNum  int
	Frame   int64
	Trigger time.Time
	X, Y    float64
}

// WriteBraidz writes a minimal braidz archive (cam_info, data2d_distorted,
// per-camera reference images, metadata) into dir and returns its path.
func WriteBraidz(t *testing.T, dir string, fps float64, cams []BraidzCam, rows []BraidzRow) string {
	t.Helper()

	path := filepath.Join(dir, "fixture.braidz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create braidz fixture: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	meta, err := zw.Create("braid_metadata.yml")
	if err != nil {
		t.Fatalf("braidz fixture: %v", err)
	}
	fmt.Fprintf(meta, "schema: 3\nexpected_fps: %g\n", fps)

	ci, err := zw.Create("cam_info.csv")
	if err != nil {
		t.Fatalf("braidz fixture: %v", err)
	}
	fmt.Fprintln(ci, "camn,cam_id")
	for _, c := range cams {
		fmt.Fprintf(ci, "%d,%s\n", c.CamNum, c.CamID)
	}

	d2d, err := zw.Create("data2d_distorted.csv")
	if err != nil {
		t.Fatalf("braidz fixture: %v", err)
	}
	fmt.Fprintln(d2d, "camn,frame,timestamp,cam_received_timestamp,x,y,area,slope,eccentricity,frame_pt_idx")
	for _, r := range rows {
		ts := float64(r.Trigger.UnixNano()) / 1e9
		fmt.Fprintf(d2d, "%d,%d,%.9f,%.9f,%s,%s,1.0,0.0,1.0,0\n",
			r.CamNum, r.Frame, ts, ts, floatField(r.X), floatField(r.Y))
	}

	for _, c := range cams {
		w, err := zw.Create("images/" + c.CamID + ".png")
		if err != nil {
			t.Fatalf("braidz fixture: %v", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, c.Width, c.Height))); err != nil {
			t.Fatalf("braidz fixture: %v", err)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			t.Fatalf("braidz fixture: %v", err)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("braidz fixture: %v", err)
	}
	return path
}

func floatField(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.6f", v)
}
