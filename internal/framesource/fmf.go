package framesource

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"
)

// FMF (fly movie format) is a trivial uncompressed container: a fixed
// little-endian header followed by chunks of (f64 epoch timestamp, raw
// pixel data). Version 1 is implicitly MONO8; version 3 adds an explicit
// pixel-format string and bit depth.
type fmfSource struct {
	f      *os.File
	gz     *gzip.Reader // nil for uncompressed files
	r      *bufio.Reader
	closed bool
	width  int
	height int
	format PixelFormat

	frameBytes int
	nFrames    uint64 // 0 means unknown, read to EOF

	// first chunk is decoded at open time so Frame0Time is answerable
	// before the one-shot sequence is consumed.
	first    *Frame
	seqTaken bool
}

// OpenFMF opens an .fmf or .fmf.gz file and decodes its header and first
// frame.
func OpenFMF(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fmf %s: %w", path, err)
	}
	s := &fmfSource{f: f}
	var rd io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open fmf %s: %w", path, err)
		}
		s.gz = gz
		rd = gz
	}
	s.r = bufio.NewReaderSize(rd, 1<<20)
	if err := s.readHeader(); err != nil {
		s.Close()
		return nil, fmt.Errorf("fmf header %s: %w", path, err)
	}
	first, err := s.readFrame()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("fmf first frame %s: %w", path, err)
	}
	if first == nil {
		s.Close()
		return nil, fmt.Errorf("fmf %s contains no frames", path)
	}
	s.first = first
	return s, nil
}

func (s *fmfSource) readHeader() error {
	var version uint32
	if err := binary.Read(s.r, binary.LittleEndian, &version); err != nil {
		return err
	}
	bitsPerPixel := uint32(8)
	switch version {
	case 1:
		s.format = Mono8
	case 3:
		var formatLen uint32
		if err := binary.Read(s.r, binary.LittleEndian, &formatLen); err != nil {
			return err
		}
		if formatLen > 64 {
			return fmt.Errorf("implausible pixel format length %d", formatLen)
		}
		name := make([]byte, formatLen)
		if _, err := io.ReadFull(s.r, name); err != nil {
			return err
		}
		if err := binary.Read(s.r, binary.LittleEndian, &bitsPerPixel); err != nil {
			return err
		}
		switch strings.ToUpper(strings.TrimRight(string(name), "\x00 ")) {
		case "MONO8", "RAW8":
			s.format = Mono8
		case "RGB8":
			s.format = RGB8
		default:
			return fmt.Errorf("unsupported pixel format %q", name)
		}
	default:
		return fmt.Errorf("unsupported fmf version %d", version)
	}

	var height, width uint32
	if err := binary.Read(s.r, binary.LittleEndian, &height); err != nil {
		return err
	}
	if err := binary.Read(s.r, binary.LittleEndian, &width); err != nil {
		return err
	}
	var chunkSize, nFrames uint64
	if err := binary.Read(s.r, binary.LittleEndian, &chunkSize); err != nil {
		return err
	}
	if err := binary.Read(s.r, binary.LittleEndian, &nFrames); err != nil {
		return err
	}

	s.width = int(width)
	s.height = int(height)
	s.nFrames = nFrames
	s.frameBytes = s.width * s.height * int(bitsPerPixel) / 8
	if s.format == RGB8 && bitsPerPixel == 8 {
		// Some writers record 8 for RGB8; the chunk size tells the truth.
		s.frameBytes = s.width * s.height * 3
	}
	if chunkSize != 0 && int(chunkSize) != s.frameBytes+8 {
		return fmt.Errorf("chunk size %d does not match %dx%d %s frames",
			chunkSize, s.width, s.height, s.format)
	}
	return nil
}

// readFrame reads the next chunk, returning (nil, nil) at a clean EOF.
func (s *fmfSource) readFrame() (*Frame, error) {
	var ts float64
	err := binary.Read(s.r, binary.LittleEndian, &ts)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pix := make([]byte, s.frameBytes)
	if _, err := io.ReadFull(s.r, pix); err != nil {
		return nil, fmt.Errorf("truncated frame data: %w", err)
	}
	sec, frac := math.Modf(ts)
	return &Frame{
		Timestamp: time.Unix(int64(sec), int64(frac*1e9)).UTC(),
		Image: &Image{
			Width:  s.width,
			Height: s.height,
			Format: s.format,
			Pix:    pix,
		},
	}, nil
}

// Close releases the file (and the gzip stream wrapping it, if any).
func (s *fmfSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.gz != nil {
		s.gz.Close()
	}
	return s.f.Close()
}

func (s *fmfSource) Width() int            { return s.width }
func (s *fmfSource) Height() int           { return s.height }
func (s *fmfSource) CameraName() string    { return "" }
func (s *fmfSource) Frame0Time() time.Time { return s.first.Timestamp }

func (s *fmfSource) Frames() Seq {
	if s.seqTaken {
		panic("framesource: Frames called twice on fmf source")
	}
	s.seqTaken = true
	return &fmfSeq{src: s}
}

type fmfSeq struct {
	src  *fmfSource
	read uint64
	done bool
}

func (q *fmfSeq) Next() (Result, bool) {
	if q.done {
		return Result{}, false
	}
	if q.src.first != nil {
		f := q.src.first
		q.src.first = nil
		q.read++
		return Result{Frame: f}, true
	}
	if q.src.nFrames != 0 && q.read >= q.src.nFrames {
		q.close()
		return Result{}, false
	}
	f, err := q.src.readFrame()
	if err != nil {
		q.close()
		return Result{Err: err}, true
	}
	if f == nil {
		q.close()
		return Result{}, false
	}
	q.read++
	return Result{Frame: f}, true
}

func (q *fmfSeq) close() {
	if !q.done {
		q.done = true
		q.src.Close()
	}
}
