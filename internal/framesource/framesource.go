// Package framesource provides pull-based access to per-camera frame
// streams: MP4/MKV files decoded through OpenCV, FMF (fly movie format)
// files decoded natively, and an in-memory source for tests.
package framesource

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Frame is one decoded frame together with its host timestamp.
type Frame struct {
	// Timestamp is the absolute host time at which this frame was
	// originally captured.
	Timestamp time.Time
	Image     *Image
}

// Result is one item of a frame sequence. Exactly one of Frame and Err is
// set; a decode failure is fatal for the whole run, so sequences stop
// producing after the first error.
type Result struct {
	Frame *Frame
	Err   error
}

// Seq is a lazy frame sequence. Next returns the next Result and true, or
// a zero Result and false once the stream is exhausted.
type Seq interface {
	Next() (Result, bool)
}

// Source describes one camera's recorded stream. Frames may be called
// exactly once; sources are not rewindable.
type Source interface {
	Width() int
	Height() int

	// CameraName returns the camera name embedded in the container
	// metadata, or "" when the format carries none.
	CameraName() string

	// Frame0Time is the estimated absolute start time of the recording.
	Frame0Time() time.Time

	Frames() Seq

	// Close releases the underlying file handles. Reading a sequence to
	// its end closes the source implicitly; Close is idempotent and
	// covers sequences abandoned mid-stream.
	Close() error
}

// FromPath opens the frame source appropriate for the file extension.
// Supported: .fmf and .fmf.gz (native), .mp4 / .mkv / .avi (OpenCV).
func FromPath(path string) (Source, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".fmf"), strings.HasSuffix(name, ".fmf.gz"):
		return OpenFMF(path)
	case strings.HasSuffix(name, ".mp4"), strings.HasSuffix(name, ".mkv"), strings.HasSuffix(name, ".avi"):
		return OpenVideo(path)
	}
	return nil, fmt.Errorf("unsupported frame source %q", path)
}
