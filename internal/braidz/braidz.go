// Package braidz reads braidz archives: zip files holding per-camera 2D
// detection CSV tables, a camera roster, optional per-camera reference
// images and a textual metadata block. The reader exposes the roster, a
// lazy row sequence, the expected frame rate and per-camera image sizes;
// it deliberately knows nothing about synchronization.
package braidz

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"fmt"
	"image/png"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CamInfo is one roster entry: the human-readable camera id string and
// the integer camera number the data tables are keyed on.
type CamInfo struct {
	CamNum int
	CamID  string
}

// Data2DRow is one 2D detection (or non-detection placeholder) for one
// camera at one trigger instant. X and Y are NaN for placeholder rows.
type Data2DRow struct {
	CamNum int
	// Frame is the synchronized trigger frame number shared by all
	// cameras of the rig.
	Frame int64
	// TriggerTimestamp is the trigger-box timestamp for the frame. Zero
	// when the archive recorded none.
	TriggerTimestamp time.Time
	// CamReceivedTimestamp is the host time the camera image arrived.
	CamReceivedTimestamp time.Time
	X, Y                 float64
	Area                 float64
	Slope                float64
	Eccentricity         float64
	FramePtIdx           int
}

// Archive is an opened braidz file. The zip member streams are read
// lazily; Close releases the underlying file.
type Archive struct {
	path string
	zr   *zip.ReadCloser

	cams        []CamInfo
	expectedFPS float64
	metadata    []byte
	imageSizes  map[string][2]int
}

// Open opens and indexes a braidz archive. The detection table itself is
// not read; use Data2D.
func Open(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening braidz archive %s: %w", path, err)
	}
	a := &Archive{
		path:        path,
		zr:          zr,
		expectedFPS: math.NaN(),
		imageSizes:  make(map[string][2]int),
	}
	if err := a.index(); err != nil {
		zr.Close()
		return nil, fmt.Errorf("reading braidz archive %s: %w", path, err)
	}
	return a, nil
}

func (a *Archive) index() error {
	for _, f := range a.zr.File {
		name := strings.TrimSuffix(f.Name, ".gz")
		switch {
		case name == "cam_info.csv":
			if err := a.readCamInfo(f); err != nil {
				return err
			}
		case name == "braid_metadata.yml":
			if err := a.readMetadata(f); err != nil {
				return err
			}
		case strings.HasPrefix(name, "images/") && strings.HasSuffix(name, ".png"):
			if err := a.readImageSize(f, name); err != nil {
				return err
			}
		}
	}
	if a.cams == nil {
		return fmt.Errorf("no cam_info table")
	}
	return nil
}

// open decompresses .gz members transparently.
func openMember(f *zip.File) (io.ReadCloser, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(f.Name, ".gz") {
		return rc, nil
	}
	gz, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return &gzMember{gz: gz, raw: rc}, nil
}

type gzMember struct {
	gz  *gzip.Reader
	raw io.ReadCloser
}

func (g *gzMember) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzMember) Close() error {
	g.gz.Close()
	return g.raw.Close()
}

func (a *Archive) readCamInfo(f *zip.File) error {
	rc, err := openMember(f)
	if err != nil {
		return err
	}
	defer rc.Close()

	rows, err := readCSV(rc)
	if err != nil {
		return fmt.Errorf("cam_info: %w", err)
	}
	for _, row := range rows {
		camn, err := row.intField("camn")
		if err != nil {
			return fmt.Errorf("cam_info: %w", err)
		}
		a.cams = append(a.cams, CamInfo{CamNum: camn, CamID: row.field("cam_id")})
	}
	sort.Slice(a.cams, func(i, j int) bool { return a.cams[i].CamNum < a.cams[j].CamNum })
	return nil
}

func (a *Archive) readMetadata(f *zip.File) error {
	rc, err := openMember(f)
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	a.metadata = data

	// The metadata block is YAML written by the recording software. Only
	// the frame rate matters here, so scan for its key instead of
	// pulling in a YAML dependency for one scalar.
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		for _, key := range []string{"expected_fps:", "fps:"} {
			if v, ok := strings.CutPrefix(line, key); ok {
				if fps, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
					a.expectedFPS = fps
				}
			}
		}
	}
	return nil
}

func (a *Archive) readImageSize(f *zip.File, name string) error {
	rc, err := openMember(f)
	if err != nil {
		return err
	}
	defer rc.Close()

	cfg, err := png.DecodeConfig(rc)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	camID := strings.TrimSuffix(strings.TrimPrefix(name, "images/"), ".png")
	a.imageSizes[camID] = [2]int{cfg.Width, cfg.Height}
	return nil
}

// Path returns the archive path as opened.
func (a *Archive) Path() string { return a.path }

// Cameras returns the roster ordered by camera number.
func (a *Archive) Cameras() []CamInfo {
	out := make([]CamInfo, len(a.cams))
	copy(out, a.cams)
	return out
}

// ExpectedFPS returns the recorded frame rate, or NaN when the metadata
// carries none.
func (a *Archive) ExpectedFPS() float64 { return a.expectedFPS }

// TrackingMetadata returns the raw metadata block for passthrough to
// archive-writing sinks. Nil when the archive has none.
func (a *Archive) TrackingMetadata() []byte { return a.metadata }

// ImageSize returns the recorded resolution for a camera id string.
func (a *Archive) ImageSize(camID string) (w, h int, ok bool) {
	s, ok := a.imageSizes[camID]
	return s[0], s[1], ok
}

// Close releases the underlying zip file.
func (a *Archive) Close() error { return a.zr.Close() }

// Data2D returns a lazy reader over the 2D detection table, in file
// order (ascending frame number as written by the recorder).
func (a *Archive) Data2D() (*Data2DReader, error) {
	for _, f := range a.zr.File {
		name := strings.TrimSuffix(f.Name, ".gz")
		if name != "data2d_distorted.csv" {
			continue
		}
		rc, err := openMember(f)
		if err != nil {
			return nil, fmt.Errorf("data2d_distorted: %w", err)
		}
		return newData2DReader(rc)
	}
	return nil, fmt.Errorf("braidz archive %s has no data2d_distorted table", a.path)
}

// ReadAllData2D drains Data2D into a slice.
func (a *Archive) ReadAllData2D() ([]Data2DRow, error) {
	r, err := a.Data2D()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var rows []Data2DRow
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
}

// IndexByCamNum groups rows per camera number, preserving order. This is
// the per-camera index the merge engine consumes; the archive itself is
// not touched again per moment.
func IndexByCamNum(rows []Data2DRow) map[int][]Data2DRow {
	idx := make(map[int][]Data2DRow)
	for _, row := range rows {
		idx[row.CamNum] = append(idx[row.CamNum], row)
	}
	return idx
}
