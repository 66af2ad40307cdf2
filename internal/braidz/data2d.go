package braidz

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// csvRow pairs one record with the header it was read under.
type csvRow struct {
	header map[string]int
	rec    []string
}

func (r csvRow) field(name string) string {
	i, ok := r.header[name]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return r.rec[i]
}

func (r csvRow) intField(name string) (int, error) {
	v := r.field(name)
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("column %s: parsing %q: %w", name, v, err)
	}
	return n, nil
}

// floatField parses a float column; empty and "nan" become NaN.
func (r csvRow) floatField(name string) (float64, error) {
	v := strings.TrimSpace(r.field(name))
	if v == "" || strings.EqualFold(v, "nan") {
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: parsing %q: %w", name, v, err)
	}
	return f, nil
}

func readCSV(r io.Reader) ([]csvRow, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := headerIndex(header)
	var rows []csvRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, csvRow{header: idx, rec: rec})
	}
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

// timeFromEpoch converts a fractional unix-seconds value to time.Time.
// NaN maps to the zero time.
func timeFromEpoch(s float64) time.Time {
	if math.IsNaN(s) {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// EpochFromTime is the inverse of the archive's timestamp encoding,
// used by archive-writing sinks. The zero time maps to NaN.
func EpochFromTime(t time.Time) float64 {
	if t.IsZero() {
		return math.NaN()
	}
	return float64(t.UnixNano()) / 1e9
}

// Data2DReader streams rows from the detection table. Next returns
// io.EOF after the last row; any parse failure is fatal for the run.
type Data2DReader struct {
	rc     io.ReadCloser
	cr     *csv.Reader
	header map[string]int
}

func newData2DReader(rc io.ReadCloser) (*Data2DReader, error) {
	cr := csv.NewReader(rc)
	cr.Comment = '#'
	header, err := cr.Read()
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}
	return &Data2DReader{rc: rc, cr: cr, header: headerIndex(header)}, nil
}

// Next returns the next detection row.
func (d *Data2DReader) Next() (*Data2DRow, error) {
	rec, err := d.cr.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("data2d_distorted: %w", err)
	}
	row := csvRow{header: d.header, rec: rec}

	camn, err := row.intField("camn")
	if err != nil {
		return nil, fmt.Errorf("data2d_distorted: %w", err)
	}
	frame, err := strconv.ParseInt(strings.TrimSpace(row.field("frame")), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("data2d_distorted: column frame: %w", err)
	}

	out := &Data2DRow{CamNum: camn, Frame: frame}
	for _, c := range []struct {
		name string
		dst  *float64
	}{
		{"x", &out.X},
		{"y", &out.Y},
		{"area", &out.Area},
		{"slope", &out.Slope},
		{"eccentricity", &out.Eccentricity},
	} {
		v, err := row.floatField(c.name)
		if err != nil {
			return nil, fmt.Errorf("data2d_distorted: %w", err)
		}
		*c.dst = v
	}

	trig, err := row.floatField("timestamp")
	if err != nil {
		return nil, fmt.Errorf("data2d_distorted: %w", err)
	}
	out.TriggerTimestamp = timeFromEpoch(trig)

	recv, err := row.floatField("cam_received_timestamp")
	if err != nil {
		return nil, fmt.Errorf("data2d_distorted: %w", err)
	}
	out.CamReceivedTimestamp = timeFromEpoch(recv)

	if v := strings.TrimSpace(row.field("frame_pt_idx")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("data2d_distorted: column frame_pt_idx: %w", err)
		}
		out.FramePtIdx = n
	}
	return out, nil
}

// Close releases the member stream.
func (d *Data2DReader) Close() error { return d.rc.Close() }
