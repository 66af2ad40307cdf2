package output

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/banshee-data/retrack.video/internal/framesource"
	"github.com/banshee-data/retrack.video/internal/merge"
	"github.com/banshee-data/retrack.video/internal/render"
)

// compositeMargin is the pixel gap between camera panes in the composite
// frame.
const compositeMargin = 5

// VideoSink renders each moment as a single composite frame: all cameras
// side by side with their accepted 2D points drawn on top, encoded
// through OpenCV's video writer. Cameras that contributed no image this
// moment show their first-frame template.
type VideoSink struct {
	path      string
	writer    *gocv.VideoWriter
	templates []*render.PerCamRender

	width  int
	height int
	// xoff is each camera pane's horizontal offset in the composite.
	xoff []int
}

// NewVideoSink opens the destination video file. The composite layout is
// fixed at startup from the template resolutions.
func NewVideoSink(path string, p Params) (*VideoSink, error) {
	if len(p.Templates) == 0 {
		return nil, fmt.Errorf("video output %s: no cameras", path)
	}
	fps := p.FPS
	if fps <= 0 {
		fps = 25
	}

	s := &VideoSink{path: path, templates: p.Templates}
	x := compositeMargin
	for _, tpl := range p.Templates {
		s.xoff = append(s.xoff, x)
		x += tpl.Width + compositeMargin
		if tpl.Height > s.height {
			s.height = tpl.Height
		}
	}
	s.width = x
	s.height += 2 * compositeMargin

	w, err := gocv.VideoWriterFile(path, "avc1", fps, s.width, s.height, true)
	if err != nil {
		return nil, fmt.Errorf("opening video output %s: %w", path, err)
	}
	s.writer = w
	return s, nil
}

func (s *VideoSink) Path() string { return s.path }

func (s *VideoSink) WriteMoment(idx int, moment *merge.SyncedPictures, frames []render.PerCamRenderFrame) error {
	if len(frames) != len(s.templates) {
		return fmt.Errorf("video output %s: %d render frames for %d cameras", s.path, len(frames), len(s.templates))
	}

	// BGR byte order, as the encoder expects.
	buf := make([]byte, s.width*s.height*3)

	for i, frame := range frames {
		im := frame.Image
		if im == nil {
			im = s.templates[i].Frame0
		}
		s.blit(buf, im, s.xoff[i], compositeMargin)
		for _, pt := range frame.Points {
			s.drawCross(buf, s.xoff[i]+int(pt.X), compositeMargin+int(pt.Y))
		}
	}

	mat, err := gocv.NewMatFromBytes(s.height, s.width, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return fmt.Errorf("video output %s: %w", s.path, err)
	}
	defer mat.Close()
	if err := s.writer.Write(mat); err != nil {
		return fmt.Errorf("writing video output %s: %w", s.path, err)
	}
	return nil
}

func (s *VideoSink) blit(buf []byte, im *framesource.Image, x0, y0 int) {
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			var r, g, b byte
			if im.Format == framesource.Mono8 {
				v := im.Pix[y*im.Width+x]
				r, g, b = v, v, v
			} else {
				o := 3 * (y*im.Width + x)
				r, g, b = im.Pix[o], im.Pix[o+1], im.Pix[o+2]
			}
			o := 3 * ((y0+y)*s.width + x0 + x)
			buf[o] = b
			buf[o+1] = g
			buf[o+2] = r
		}
	}
}

// drawCross marks a detection with a small cross in the composite.
func (s *VideoSink) drawCross(buf []byte, cx, cy int) {
	const arm = 4
	for d := -arm; d <= arm; d++ {
		s.setPixel(buf, cx+d, cy)
		s.setPixel(buf, cx, cy+d)
	}
}

func (s *VideoSink) setPixel(buf []byte, x, y int) {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return
	}
	o := 3 * (y*s.width + x)
	buf[o] = 0     // B
	buf[o+1] = 0   // G
	buf[o+2] = 255 // R
}

func (s *VideoSink) Close() error { return s.writer.Close() }
