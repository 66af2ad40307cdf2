// Package output delivers fused moments to their destinations. The sink
// variant set is closed: a composite video writer, a debug text writer
// and a detection-archive writer. Sinks are initialized concurrently
// (they share no state) and then driven by one sequential moment loop.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/banshee-data/retrack.video/internal/config"
	"github.com/banshee-data/retrack.video/internal/merge"
	"github.com/banshee-data/retrack.video/internal/render"
)

// Sink receives each fused moment in order. WriteMoment must not be
// called concurrently; Close flushes and releases the destination.
type Sink interface {
	// Path returns the destination path for final reporting.
	Path() string
	WriteMoment(idx int, moment *merge.SyncedPictures, frames []render.PerCamRenderFrame) error
	Close() error
}

// CameraMeta is the per-camera information sinks need beyond the render
// template: the archive join key, when the camera has one.
type CameraMeta struct {
	Name      string
	CamNum    int
	HasCamNum bool
}

// Params carries the startup information shared by all sinks.
type Params struct {
	Templates []*render.PerCamRender
	Cameras   []CameraMeta
	// FPS is the output video frame rate.
	FPS float64
	// TrackingMetadata is the raw archive metadata block, passed through
	// to archive-writing sinks. Nil when no archive was involved.
	TrackingMetadata []byte
}

// New opens one sink for an output configuration entry.
func New(cfg config.Output, p Params) (Sink, error) {
	if dir := filepath.Dir(cfg.Filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory for %s: %w", cfg.Filename, err)
		}
	}
	switch cfg.Type {
	case config.OutputVideo:
		return NewVideoSink(cfg.Filename, p)
	case config.OutputDebugTxt:
		return NewDebugSink(cfg.Filename)
	case config.OutputBraidz:
		return NewArchiveSink(cfg.Filename, p)
	}
	return nil, fmt.Errorf("unknown output type %q", cfg.Type)
}

// OpenAll initializes every configured sink. Initialization runs
// concurrently across sinks; the first error wins and already-opened
// sinks are closed.
func OpenAll(cfgs []config.Output, p Params) ([]Sink, error) {
	sinks := make([]Sink, len(cfgs))
	errs := make([]error, len(cfgs))

	var wg sync.WaitGroup
	for i, cfg := range cfgs {
		wg.Add(1)
		go func(i int, cfg config.Output) {
			defer wg.Done()
			sinks[i], errs[i] = New(cfg, p)
		}(i, cfg)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			for _, s := range sinks {
				if s != nil {
					s.Close()
				}
			}
			return nil, err
		}
	}
	return sinks, nil
}
