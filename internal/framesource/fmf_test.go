package framesource

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFMF builds a version-3 MONO8 file body for the given frames.
func writeFMF(t *testing.T, w, h int, times []time.Time, pix [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	le := binary.LittleEndian

	format := []byte("MONO8")
	binary.Write(&buf, le, uint32(3))
	binary.Write(&buf, le, uint32(len(format)))
	buf.Write(format)
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint32(h))
	binary.Write(&buf, le, uint32(w))
	binary.Write(&buf, le, uint64(w*h+8))
	binary.Write(&buf, le, uint64(len(times)))

	for i, ts := range times {
		epoch := float64(ts.UnixNano()) / 1e9
		binary.Write(&buf, le, epoch)
		require.Len(t, pix[i], w*h)
		buf.Write(pix[i])
	}
	return buf.Bytes()
}

func fmfTimes(n int) []time.Time {
	t0 := time.Date(2021, 11, 8, 8, 45, 23, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		// dt of 125ms stays exact through the f64 epoch encoding
		out[i] = t0.Add(time.Duration(i) * 125 * time.Millisecond)
	}
	return out
}

func TestFMFRoundTrip(t *testing.T) {
	t.Parallel()

	times := fmfTimes(3)
	pix := [][]byte{
		bytes.Repeat([]byte{10}, 12),
		bytes.Repeat([]byte{20}, 12),
		bytes.Repeat([]byte{30}, 12),
	}
	path := filepath.Join(t.TempDir(), "movie20211108_084523_cam.fmf")
	require.NoError(t, os.WriteFile(path, writeFMF(t, 4, 3, times, pix), 0o644))

	src, err := FromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 4, src.Width())
	assert.Equal(t, 3, src.Height())
	assert.Equal(t, "", src.CameraName())
	assert.WithinDuration(t, times[0], src.Frame0Time(), time.Microsecond)

	seq := src.Frames()
	for i := 0; i < 3; i++ {
		res, ok := seq.Next()
		require.True(t, ok, "frame %d", i)
		require.NoError(t, res.Err)
		assert.WithinDuration(t, times[i], res.Frame.Timestamp, time.Microsecond)
		assert.Equal(t, Mono8, res.Frame.Image.Format)
		assert.Equal(t, pix[i], res.Frame.Image.Pix)
	}
	_, ok := seq.Next()
	assert.False(t, ok)
}

func TestFMFGzip(t *testing.T) {
	t.Parallel()

	times := fmfTimes(2)
	pix := [][]byte{bytes.Repeat([]byte{1}, 6), bytes.Repeat([]byte{2}, 6)}

	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	_, err := gz.Write(writeFMF(t, 3, 2, times, pix))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "cam.fmf.gz")
	require.NoError(t, os.WriteFile(path, gzBuf.Bytes(), 0o644))

	src, err := FromPath(path)
	require.NoError(t, err)
	assert.WithinDuration(t, times[0], src.Frame0Time(), time.Microsecond)

	seq := src.Frames()
	n := 0
	for {
		res, ok := seq.Next()
		if !ok {
			break
		}
		require.NoError(t, res.Err)
		n++
	}
	assert.Equal(t, 2, n)
}

func TestFMFVersion1(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, uint32(1))
	binary.Write(&buf, le, uint32(2)) // height
	binary.Write(&buf, le, uint32(2)) // width
	binary.Write(&buf, le, uint64(4+8))
	binary.Write(&buf, le, uint64(1))
	binary.Write(&buf, le, float64(1636361123.0))
	buf.Write([]byte{9, 9, 9, 9})

	path := filepath.Join(t.TempDir(), "old.fmf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	src, err := OpenFMF(path)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Width())
	assert.Equal(t, 2, src.Height())

	res, ok := src.Frames().Next()
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, []byte{9, 9, 9, 9}, res.Frame.Image.Pix)
}

func TestFMFRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.fmf")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := OpenFMF(path)
	require.Error(t, err)
}

func TestFromPathUnsupportedExtension(t *testing.T) {
	t.Parallel()

	_, err := FromPath("detections.xyz")
	require.Error(t, err)
}

func TestMemorySourceIsOneShot(t *testing.T) {
	t.Parallel()

	src := NewMemorySource("cam", 4, 3, []*Frame{
		{Timestamp: time.Unix(1636361123, 0), Image: BlankMono8(4, 3)},
	})
	seq := src.Frames()
	res, ok := seq.Next()
	require.True(t, ok)
	assert.Equal(t, time.Unix(1636361123, 0), res.Frame.Timestamp)

	assert.Panics(t, func() { src.Frames() })
}

func TestFMFCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	times := fmfTimes(2)
	pix := [][]byte{bytes.Repeat([]byte{1}, 6), bytes.Repeat([]byte{2}, 6)}

	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	_, err := gz.Write(writeFMF(t, 3, 2, times, pix))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "cam.fmf.gz")
	require.NoError(t, os.WriteFile(path, gzBuf.Bytes(), 0o644))

	src, err := FromPath(path)
	require.NoError(t, err)

	// Abandon the sequence after one frame; Close must still release
	// the file, and a second Close (as after a drained sequence) is a
	// no-op.
	res, ok := src.Frames().Next()
	require.True(t, ok)
	require.NoError(t, res.Err)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}
