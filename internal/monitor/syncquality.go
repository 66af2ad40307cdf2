// Package monitor records synchronization quality over a reconstruction
// run: per camera, how far each selected frame sat from its moment's
// timestamp, and how often a camera had no frame at all. The recorder
// can render the series as an HTML scatter report and as a PNG timeline
// after the run.
package monitor

import (
	"fmt"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/retrack.video/internal/merge"
	"github.com/banshee-data/retrack.video/internal/monitoring"
)

// Sample is one camera's offset at one moment.
type Sample struct {
	MomentIdx int
	// OffsetMillis is the camera frame time minus the moment time.
	OffsetMillis float64
	HasFrame     bool
}

// SyncRecorder accumulates per-camera offset series. It is driven by the
// single sequential moment loop and needs no locking.
type SyncRecorder struct {
	runID   string
	cameras []string
	series  [][]Sample
	moments int
}

// NewSyncRecorder creates a recorder for the given roster, tagged with a
// fresh run id for the report headers.
func NewSyncRecorder(cameras []string) *SyncRecorder {
	return &SyncRecorder{
		runID:   uuid.NewString(),
		cameras: cameras,
		series:  make([][]Sample, len(cameras)),
	}
}

// Record captures one moment's per-camera offsets.
func (r *SyncRecorder) Record(idx int, m *merge.SyncedPictures) {
	r.moments++
	for i, pic := range m.CameraPictures {
		if i >= len(r.series) {
			return
		}
		s := Sample{MomentIdx: idx, HasFrame: pic.Image != nil}
		if s.HasFrame {
			s.OffsetMillis = float64(pic.Timestamp.Sub(m.Timestamp)) / float64(time.Millisecond)
		}
		r.series[i] = append(r.series[i], s)
	}
}

// LogSummary writes one line per camera: frame coverage and mean
// absolute offset.
func (r *SyncRecorder) LogSummary() {
	for i, name := range r.cameras {
		var offsets []float64
		withFrame := 0
		for _, s := range r.series[i] {
			if s.HasFrame {
				withFrame++
				offsets = append(offsets, abs(s.OffsetMillis))
			}
		}
		if r.moments == 0 {
			continue
		}
		meanAbs := 0.0
		if len(offsets) > 0 {
			meanAbs = stat.Mean(offsets, nil)
		}
		monitoring.Logf("sync quality %s: %d/%d moments with frame, mean |offset| %.3fms",
			name, withFrame, r.moments, meanAbs)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// WriteHTML renders the offset series as an interactive scatter chart.
func (r *SyncRecorder) WriteHTML(path string) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sync Quality", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Per-camera sync offset",
			Subtitle: fmt.Sprintf("run=%s moments=%d", r.runID, r.moments),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "moment"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "offset (ms)"}),
	)

	for i, name := range r.cameras {
		data := make([]opts.ScatterData, 0, len(r.series[i]))
		for _, s := range r.series[i] {
			if !s.HasFrame {
				continue
			}
			data = append(data, opts.ScatterData{Value: []interface{}{s.MomentIdx, s.OffsetMillis}})
		}
		scatter.AddSeries(name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating sync report %s: %w", path, err)
	}
	defer f.Close()
	if err := scatter.Render(f); err != nil {
		return fmt.Errorf("rendering sync report %s: %w", path, err)
	}
	return nil
}

// WritePNG renders the offset series as a static timeline plot.
func (r *SyncRecorder) WritePNG(path string) error {
	p := plot.New()
	p.Title.Text = "Per-camera sync offset"
	p.X.Label.Text = "moment"
	p.Y.Label.Text = "offset (ms)"

	for i, name := range r.cameras {
		xys := make(plotter.XYs, 0, len(r.series[i]))
		for _, s := range r.series[i] {
			if !s.HasFrame {
				continue
			}
			xys = append(xys, plotter.XY{X: float64(s.MomentIdx), Y: s.OffsetMillis})
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("plotting sync series %s: %w", name, err)
		}
		line.Color = plotColor(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}

	if err := p.Save(12*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("saving sync plot %s: %w", path, err)
	}
	return nil
}
