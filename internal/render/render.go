// Package render holds the per-camera render template and the per-moment
// fusion step that combines a selected image with the accepted 2D points
// into a renderable record for the output sinks.
package render

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/retrack.video/internal/framesource"
	"github.com/banshee-data/retrack.video/internal/merge"
)

// PerCamRender is a camera's immutable render template: its names, its
// first-frame snapshot (or a synthesized blank for archive-only cameras)
// and its resolution. Built once per camera at startup and reused as the
// base of every moment's output record.
type PerCamRender struct {
	BestName  string
	RawName   string
	Frame0    *framesource.Image
	Frame0PNG []byte
	Width     int
	Height    int
}

// NewFromFrame builds a template from a camera's first decoded frame.
func NewFromFrame(bestName, rawName string, frame *framesource.Image) (*PerCamRender, error) {
	png, err := frame.EncodePNG()
	if err != nil {
		return nil, fmt.Errorf("encoding first frame for %s: %w", bestName, err)
	}
	return &PerCamRender{
		BestName:  bestName,
		RawName:   rawName,
		Frame0:    frame,
		Frame0PNG: png,
		Width:     frame.Width,
		Height:    frame.Height,
	}, nil
}

// NewBlank builds a template for a camera without an image source: an
// all-zero mono image at the camera's recorded resolution.
func NewBlank(name string, width, height int) (*PerCamRender, error) {
	return NewFromFrame(name, name, framesource.BlankMono8(width, height))
}

// NewRenderFrame seeds a fresh per-moment working record from the
// template.
func (p *PerCamRender) NewRenderFrame(ts time.Time) PerCamRenderFrame {
	return PerCamRenderFrame{Template: p, Timestamp: ts}
}

// Point is one accepted 2D detection coordinate. Both components are
// finite.
type Point struct {
	X, Y float64
}

// PerCamRenderFrame is the mutable per-moment record built during fusion
// and handed to the output sinks. Image and PNG are nil when the camera
// contributed no image this moment; sinks fall back to the template.
type PerCamRenderFrame struct {
	Template  *PerCamRender
	Image     *framesource.Image
	PNG       []byte
	Points    []Point
	Timestamp time.Time
}

// SetOriginalImage attaches the camera's image for this moment,
// re-encoding it for output.
func (f *PerCamRenderFrame) SetOriginalImage(im *framesource.Image) error {
	png, err := im.EncodePNG()
	if err != nil {
		return fmt.Errorf("encoding frame for %s: %w", f.Template.BestName, err)
	}
	f.Image = im
	f.PNG = png
	return nil
}

// AppendPoint records an accepted detection coordinate.
func (f *PerCamRenderFrame) AppendPoint(x, y float64) {
	f.Points = append(f.Points, Point{X: x, Y: y})
}

// Gather fuses one moment: for each camera in roster order it copies the
// template, attaches the moment's image if one was selected, and applies
// the copy-existing feature policy to the detection rows, silently
// skipping rows with non-finite coordinates. Gather is stateless across
// moments.
func Gather(moment *merge.SyncedPictures, templates []*PerCamRender) ([]PerCamRenderFrame, error) {
	if len(moment.CameraPictures) != len(templates) {
		return nil, fmt.Errorf("moment has %d camera pictures for %d cameras",
			len(moment.CameraPictures), len(templates))
	}

	out := make([]PerCamRenderFrame, 0, len(templates))
	for i, pic := range moment.CameraPictures {
		frame := templates[i].NewRenderFrame(pic.Timestamp)
		if pic.Image != nil {
			if err := frame.SetOriginalImage(pic.Image); err != nil {
				return nil, err
			}
		}
		for _, row := range pic.Rows {
			if !isFinite(row.X) || !isFinite(row.Y) {
				continue
			}
			frame.AppendPoint(row.X, row.Y)
		}
		out = append(out, frame)
	}
	return out, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
