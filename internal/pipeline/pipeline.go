// Package pipeline wires the whole reconstruction run together: it opens
// the configured inputs, resolves the camera roster, selects the merge
// mode, drives the moment loop and delivers each fused moment to the
// configured sinks.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/retrack.video/internal/braidz"
	"github.com/banshee-data/retrack.video/internal/camident"
	"github.com/banshee-data/retrack.video/internal/config"
	"github.com/banshee-data/retrack.video/internal/framesource"
	"github.com/banshee-data/retrack.video/internal/merge"
	"github.com/banshee-data/retrack.video/internal/monitor"
	"github.com/banshee-data/retrack.video/internal/monitoring"
	"github.com/banshee-data/retrack.video/internal/output"
	"github.com/banshee-data/retrack.video/internal/render"
)

// openFrameSource is indirected so tests can feed synthetic streams
// without touching the filesystem.
var openFrameSource = framesource.FromPath

// CameraSource is one roster camera at startup: its resolved identity,
// its immutable render template, and (for video-backed cameras) the
// frame cursor. The merge engine takes exclusive ownership of the cursor
// when the run starts; identity and template stay behind for the sinks.
type CameraSource struct {
	Identity camident.CameraIdentity
	Template *render.PerCamRender

	stream framesource.Source
	reader *merge.Cursor
}

// TakeReader hands the frame cursor over, leaving nil behind. Archive-only
// cameras have no cursor and return nil.
func (s *CameraSource) TakeReader() *merge.Cursor {
	r := s.reader
	s.reader = nil
	return r
}

// Run executes one reconstruction described by cfg and returns the paths
// written by the configured sinks. A configuration with no inputs is
// nothing to do: Run returns an empty list and no error.
func Run(cfg *config.Config) ([]string, error) {
	var archive *braidz.Archive
	if cfg.InputBraidz != "" {
		a, err := braidz.Open(cfg.InputBraidz)
		if err != nil {
			return nil, err
		}
		defer a.Close()
		archive = a
		monitoring.Logf("opened %s: %d cameras, expected fps %g",
			a.Path(), len(a.Cameras()), a.ExpectedFPS())
	}

	sources, err := openVideoSources(cfg)
	if err != nil {
		return nil, err
	}
	// Merge modes that end before a stream does leave its file open.
	defer func() {
		for _, s := range sources {
			if s.stream != nil {
				s.stream.Close()
			}
		}
	}()

	if archive != nil && len(sources) > 0 {
		resolveRoster(sources, archive)
	}

	braidzOnly := false
	if len(sources) == 0 {
		if archive == nil {
			monitoring.Logf("no braidz archive and no input videos, nothing to do")
			return []string{}, nil
		}
		sources, err = archiveOnlySources(archive)
		if err != nil {
			return nil, err
		}
		braidzOnly = true
	}

	templates := make([]*render.PerCamRender, len(sources))
	names := make([]string, len(sources))
	metas := make([]output.CameraMeta, len(sources))
	for i, s := range sources {
		templates[i] = s.Template
		names[i] = s.Identity.BestName()
		camn, hasCamn := s.Identity.CamNum()
		metas[i] = output.CameraMeta{Name: names[i], CamNum: camn, HasCamNum: hasCamn}
	}

	frameDur, threshold, err := resolveTiming(cfg, sources, archive, braidzOnly)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("frame duration %v, sync threshold %v", frameDur, threshold)

	moments, err := buildMomentSource(sources, archive, threshold, frameDur)
	if err != nil {
		return nil, err
	}

	fps := 1.0 / frameDur.Seconds()
	if archive != nil && !math.IsNaN(archive.ExpectedFPS()) && archive.ExpectedFPS() > 0 {
		fps = archive.ExpectedFPS()
	}
	params := output.Params{Templates: templates, Cameras: metas, FPS: fps}
	if archive != nil {
		params.TrackingMetadata = archive.TrackingMetadata()
	}

	sinks, err := output.OpenAll(cfg.Output, params)
	if err != nil {
		return nil, err
	}

	recorder := monitor.NewSyncRecorder(names)
	if err := runLoop(cfg, moments, templates, sinks, recorder); err != nil {
		closeSinks(sinks)
		return nil, err
	}
	if err := closeSinks(sinks); err != nil {
		return nil, err
	}

	recorder.LogSummary()
	if cfg.SyncReportHTML != "" {
		if err := recorder.WriteHTML(cfg.SyncReportHTML); err != nil {
			return nil, err
		}
	}
	if cfg.SyncReportPNG != "" {
		if err := recorder.WritePNG(cfg.SyncReportPNG); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(sinks))
	for _, s := range sinks {
		paths = append(paths, s.Path())
	}
	return paths, nil
}

// openVideoSources opens every configured movie, builds its identity and
// its render template from the first decoded frame. The first frame is
// only peeked: it remains available to the merge engine.
func openVideoSources(cfg *config.Config) ([]*CameraSource, error) {
	var sources []*CameraSource
	opened := false
	defer func() {
		if !opened {
			for _, s := range sources {
				s.stream.Close()
			}
		}
	}()

	for _, in := range cfg.InputVideo {
		src, err := openFrameSource(in.Filename)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", in.Filename, err)
		}
		cs := &CameraSource{stream: src}
		sources = append(sources, cs)

		filename := filepath.Base(in.Filename)
		cs.Identity = camident.CameraIdentity{
			Kind: camident.KindVideo,
			Video: &camident.VideoCam{
				FullPath:        in.Filename,
				Filename:        filename,
				CfgName:         in.CameraName,
				Title:           src.CameraName(),
				CamFromFilename: camident.CamFromFilename(stem(filename)),
				Frame0Time:      src.Frame0Time(),
			},
		}

		cs.reader = merge.NewCursor(src.Frames())
		first := cs.reader.Peek1()
		if first == nil {
			return nil, fmt.Errorf("%s: no frames", in.Filename)
		}
		if first.Err != nil {
			return nil, fmt.Errorf("%s: %w", in.Filename, first.Err)
		}

		raw, ok := cs.Identity.RawName()
		if !ok {
			raw = cs.Identity.BestName()
		}
		cs.Template, err = render.NewFromFrame(cs.Identity.BestName(), raw, first.Frame.Image)
		if err != nil {
			return nil, err
		}
	}
	opened = true
	return sources, nil
}

// stem strips the recognized stream extensions from a movie file name.
func stem(filename string) string {
	s := filename
	for _, ext := range []string{".gz", ".fmf", ".mp4", ".mkv", ".avi"} {
		s = strings.TrimSuffix(s, ext)
	}
	return s
}

// resolveRoster joins the video roster against the archive's camera table
// in place and logs any archive cameras left without a movie.
func resolveRoster(sources []*CameraSource, archive *braidz.Archive) {
	video := make([]camident.CameraIdentity, len(sources))
	for i, s := range sources {
		video[i] = s.Identity
	}
	archiveCams := make([]camident.ArchiveCam, 0, len(archive.Cameras()))
	for _, c := range archive.Cameras() {
		archiveCams = append(archiveCams, camident.ArchiveCam{CamID: c.CamID, CamNum: c.CamNum})
	}

	roster, unmatched := camident.Resolve(video, archiveCams)
	for i := range sources {
		sources[i].Identity = roster[i]
	}
	for _, ac := range unmatched {
		monitoring.Logf("archive camera %q (camn %d) has no matching input video", ac.CamID, ac.CamNum)
	}
}

// archiveOnlySources builds the roster for a run driven purely by the
// archive: one camera per archive entry, rendered onto a blank template
// at the camera's recorded resolution.
func archiveOnlySources(archive *braidz.Archive) ([]*CameraSource, error) {
	var sources []*CameraSource
	for _, c := range archive.Cameras() {
		w, h, ok := archive.ImageSize(c.CamID)
		if !ok {
			return nil, fmt.Errorf("%s: no reference image for camera %q", archive.Path(), c.CamID)
		}
		tmpl, err := render.NewBlank(c.CamID, w, h)
		if err != nil {
			return nil, err
		}
		c := c
		sources = append(sources, &CameraSource{
			Identity: camident.CameraIdentity{
				Kind:    camident.KindArchive,
				Archive: &camident.ArchiveCam{CamID: c.CamID, CamNum: c.CamNum},
			},
			Template: tmpl,
		})
	}
	return sources, nil
}

// resolveTiming settles the nominal frame duration and the sync window.
// Configured values win; otherwise the frame duration is estimated from
// the video streams (or derived from the archive's expected rate when
// there are none) and the window defaults to half of it.
func resolveTiming(cfg *config.Config, sources []*CameraSource, archive *braidz.Archive, braidzOnly bool) (frameDur, threshold time.Duration, err error) {
	frameDur, ok := cfg.FrameDuration()
	if !ok {
		switch {
		case !braidzOnly:
			readers := make([]*merge.Cursor, 0, len(sources))
			for _, s := range sources {
				if s.reader != nil {
					readers = append(readers, s.reader)
				}
			}
			frameDur, err = merge.EstimateFrameDuration(readers)
			if err != nil {
				return 0, 0, err
			}
		case !math.IsNaN(archive.ExpectedFPS()) && archive.ExpectedFPS() > 0:
			frameDur = time.Duration(float64(time.Second) / archive.ExpectedFPS())
		default:
			return 0, 0, fmt.Errorf("%s: no expected_fps in metadata and no frame_duration_microsecs configured", archive.Path())
		}
	}

	threshold, ok = cfg.SyncThreshold()
	if !ok {
		threshold = frameDur / 2
	}
	return frameDur, threshold, nil
}

// buildMomentSource selects the merge mode: archive-driven when a braidz
// archive is present, free-running clock-paced otherwise. In the
// free-running mode every cursor is first advanced to the latest
// recording start so the cameras begin on a common instant.
func buildMomentSource(sources []*CameraSource, archive *braidz.Archive, threshold, frameDur time.Duration) (merge.MomentSource, error) {
	if archive != nil {
		rows, err := archive.ReadAllData2D()
		if err != nil {
			return nil, err
		}
		byCam := braidz.IndexByCamNum(rows)
		camns := make([]int, 0, len(byCam))
		for camn := range byCam {
			camns = append(camns, camn)
		}
		sort.Ints(camns)
		for _, camn := range camns {
			monitoring.Logf("archive camn %d: %d detection rows", camn, len(byCam[camn]))
		}

		slots := make([]merge.ReaderSlot, len(sources))
		for i, s := range sources {
			camn, hasCamn := s.Identity.CamNum()
			slots[i] = merge.ReaderSlot{CamNum: camn, HasCamNum: hasCamn, Reader: s.TakeReader()}
		}
		return merge.NewBraidzIter(rows, slots, threshold)
	}

	var target time.Time
	readers := make([]*merge.Cursor, len(sources))
	for i, s := range sources {
		if t, ok := s.Identity.Frame0Time(); ok && t.After(target) {
			target = t
		}
		readers[i] = s.TakeReader()
	}
	if err := merge.AlignReaders(target, readers); err != nil {
		return nil, err
	}
	return merge.NewSyncedIter(readers, threshold, frameDur)
}

// runLoop drives the sequential moment loop: pull, fuse, record, deliver.
// Moment numbering counts every moment the merge produced, including the
// skipped leading ones, so downstream frame numbers stay stable whether
// or not a skip is configured.
func runLoop(cfg *config.Config, moments merge.MomentSource, templates []*render.PerCamRender, sinks []output.Sink, recorder *monitor.SyncRecorder) error {
	maxFrames := -1
	if cfg.MaxNumFrames != nil {
		maxFrames = *cfg.MaxNumFrames
	}
	skip := 0
	if cfg.SkipNFirstOutputFrames != nil {
		skip = *cfg.SkipNFirstOutputFrames
	}
	interval := cfg.LogInterval()

	for fno := 0; ; fno++ {
		if maxFrames >= 0 && fno >= maxFrames {
			return nil
		}
		m, err := moments.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if fno < skip {
			continue
		}
		if fno%interval == 0 {
			monitoring.Logf("frame %d", fno)
		}

		frames, err := render.Gather(m, templates)
		if err != nil {
			return err
		}
		recorder.Record(fno, m)
		for _, s := range sinks {
			if err := s.WriteMoment(fno, m, frames); err != nil {
				return err
			}
		}
	}
}

func closeSinks(sinks []output.Sink) error {
	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
