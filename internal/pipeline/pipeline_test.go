package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/retrack.video/internal/config"
	"github.com/banshee-data/retrack.video/internal/framesource"
	"github.com/banshee-data/retrack.video/internal/testutil"
)

func intp(v int) *int { return &v }

// withMemorySources replaces the frame-source opener with a lookup over
// pre-built in-memory streams keyed by file base name.
func withMemorySources(t *testing.T, srcs map[string]*framesource.MemorySource) {
	t.Helper()
	orig := openFrameSource
	openFrameSource = func(path string) (framesource.Source, error) {
		s, ok := srcs[filepath.Base(path)]
		if !ok {
			return nil, os.ErrNotExist
		}
		return s, nil
	}
	t.Cleanup(func() { openFrameSource = orig })
}

func fixtureArchive(t *testing.T, nFrames int) string {
	t.Helper()
	cams := []testutil.BraidzCam{
		{CamNum: 1, CamID: "cam_a", Width: 16, Height: 12},
		{CamNum: 2, CamID: "cam_b", Width: 16, Height: 12},
	}
	var rows []testutil.BraidzRow
	for i := 0; i < nFrames; i++ {
		trig := testutil.T0.Add(time.Duration(i) * 10 * time.Millisecond)
		rows = append(rows, testutil.BraidzRow{CamNum: 1, Frame: int64(i), Trigger: trig, X: 3.5, Y: 4.5})
		rows = append(rows, testutil.BraidzRow{CamNum: 2, Frame: int64(i), Trigger: trig, X: math.NaN(), Y: math.NaN()})
	}
	return testutil.WriteBraidz(t, t.TempDir(), 100, cams, rows)
}

func readDebug(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunNoInputs(t *testing.T) {
	paths, err := Run(&config.Config{})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestRunBraidzOnly(t *testing.T) {
	dir := t.TempDir()
	debugPath := filepath.Join(dir, "out.txt")
	dbPath := filepath.Join(dir, "out.braidz")

	cfg := &config.Config{
		InputBraidz: fixtureArchive(t, 10),
		Output: []config.Output{
			{Type: config.OutputDebugTxt, Filename: debugPath},
			{Type: config.OutputBraidz, Filename: dbPath},
		},
	}

	paths, err := Run(cfg)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths, debugPath)
	assert.Contains(t, paths, dbPath)

	out := readDebug(t, debugPath)
	assert.Equal(t, 10, strings.Count(out, "output frame "))
	assert.Contains(t, out, "output frame 0 ----------")
	assert.Contains(t, out, "Collect cam_a:")
	assert.Contains(t, out, "Collect cam_b:")

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("archive sink not written: %v", err)
	}
}

func TestRunCapsOutputMoments(t *testing.T) {
	debugPath := filepath.Join(t.TempDir(), "out.txt")
	cfg := &config.Config{
		InputBraidz:  fixtureArchive(t, 10),
		MaxNumFrames: intp(5),
		Output:       []config.Output{{Type: config.OutputDebugTxt, Filename: debugPath}},
	}

	_, err := Run(cfg)
	require.NoError(t, err)

	out := readDebug(t, debugPath)
	assert.Equal(t, 5, strings.Count(out, "output frame "))
	assert.NotContains(t, out, "output frame 5")
}

func TestRunSkipKeepsFrameNumbering(t *testing.T) {
	debugPath := filepath.Join(t.TempDir(), "out.txt")
	cfg := &config.Config{
		InputBraidz:            fixtureArchive(t, 10),
		MaxNumFrames:           intp(5),
		SkipNFirstOutputFrames: intp(2),
		Output:                 []config.Output{{Type: config.OutputDebugTxt, Filename: debugPath}},
	}

	_, err := Run(cfg)
	require.NoError(t, err)

	out := readDebug(t, debugPath)
	assert.Equal(t, 3, strings.Count(out, "output frame "))
	assert.NotContains(t, out, "output frame 0")
	assert.NotContains(t, out, "output frame 1")
	assert.Contains(t, out, "output frame 2 ----------")
	assert.Contains(t, out, "output frame 4 ----------")
}

func TestRunVideoOnlyStartsAtLatestCamera(t *testing.T) {
	dt := 100 * time.Millisecond
	lateStart := testutil.T0.Add(12300 * time.Millisecond)
	withMemorySources(t, map[string]*framesource.MemorySource{
		"movie20211108_084523_camA.mp4": framesource.NewMemorySource(
			"camA", 16, 12, testutil.Frames(testutil.T0, dt, 200, 16, 12)),
		"movie20211108_084535_camB.mp4": framesource.NewMemorySource(
			"camB", 16, 12, testutil.Frames(lateStart, dt, 10, 16, 12)),
	})

	debugPath := filepath.Join(t.TempDir(), "out.txt")
	cfg := &config.Config{
		InputVideo: []config.VideoInput{
			{Filename: "movie20211108_084523_camA.mp4"},
			{Filename: "movie20211108_084535_camB.mp4"},
		},
		MaxNumFrames: intp(3),
		Output:       []config.Output{{Type: config.OutputDebugTxt, Filename: debugPath}},
	}

	paths, err := Run(cfg)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	out := readDebug(t, debugPath)
	assert.Equal(t, 3, strings.Count(out, "output frame "))

	// Both cameras contribute from the first moment, which sits at the
	// later camera's recording start rather than the earlier one's.
	want := lateStart.UTC().Format("2006-01-02 15:04:05.000000 MST")
	assert.Contains(t, out, "Collect camA: "+want)
	assert.Contains(t, out, "Collect camB: "+want)
	early := testutil.T0.UTC().Format("2006-01-02 15:04:05.000000 MST")
	assert.NotContains(t, out, early)
}

func TestRunHybridMatchesVideoToArchiveCamera(t *testing.T) {
	dt := 10 * time.Millisecond
	withMemorySources(t, map[string]*framesource.MemorySource{
		"movie20211108_084523_cam_a.mp4": framesource.NewMemorySource(
			"cam_a", 16, 12, testutil.Frames(testutil.T0, dt, 10, 16, 12)),
	})

	debugPath := filepath.Join(t.TempDir(), "out.txt")
	cfg := &config.Config{
		InputBraidz: fixtureArchive(t, 10),
		InputVideo:  []config.VideoInput{{Filename: "movie20211108_084523_cam_a.mp4"}},
		Output:      []config.Output{{Type: config.OutputDebugTxt, Filename: debugPath}},
	}

	paths, err := Run(cfg)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	out := readDebug(t, debugPath)
	assert.Equal(t, 10, strings.Count(out, "output frame "))
	// The matched camera carries its detection rows.
	assert.Contains(t, out, "Collect cam_a:")
	assert.Contains(t, out, "rowi 0")
}

func TestRunMissingVideoFile(t *testing.T) {
	withMemorySources(t, map[string]*framesource.MemorySource{})
	cfg := &config.Config{
		InputVideo: []config.VideoInput{{Filename: "movie20211108_084523_camX.mp4"}},
	}
	_, err := Run(cfg)
	require.Error(t, err)
}
