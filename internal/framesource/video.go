package framesource

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gocv.io/x/gocv"
)

// movieStampRe matches the date/time prefix that the recording software
// puts in movie filenames, e.g. "movie20211108_084523_Basler-22445994.mp4".
var movieStampRe = regexp.MustCompile(`^movie(\d{8})_(\d{6})_`)

// videoSource reads MP4/MKV/AVI files through OpenCV. Container formats
// carry only relative presentation timestamps, so the absolute start time
// is recovered from the filename stamp when present, else estimated from
// the file modification time minus the media duration.
type videoSource struct {
	cap    *gocv.VideoCapture
	path   string
	width  int
	height int
	frame0 time.Time

	seqTaken bool
	closed   bool
}

// OpenVideo opens a container video file for decoding.
func OpenVideo(path string) (Source, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	s := &videoSource{
		cap:    cap,
		path:   path,
		width:  int(cap.Get(gocv.VideoCaptureFrameWidth)),
		height: int(cap.Get(gocv.VideoCaptureFrameHeight)),
	}
	if s.width <= 0 || s.height <= 0 {
		cap.Close()
		return nil, fmt.Errorf("open video %s: no decodable video stream", path)
	}
	frame0, err := estimateFrame0(path, cap)
	if err != nil {
		cap.Close()
		return nil, err
	}
	s.frame0 = frame0
	return s, nil
}

func estimateFrame0(path string, cap *gocv.VideoCapture) (time.Time, error) {
	base := filepath.Base(path)
	if m := movieStampRe.FindStringSubmatch(base); m != nil {
		t, err := time.ParseInLocation("20060102_150405", m[1]+"_"+m[2], time.Local)
		if err == nil {
			return t, nil
		}
	}
	// No filename stamp: the file modification time marks the end of the
	// recording, so subtract the media duration.
	st, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	fps := cap.Get(gocv.VideoCaptureFPS)
	frames := cap.Get(gocv.VideoCaptureFrameCount)
	if fps <= 0 || frames <= 0 {
		return time.Time{}, fmt.Errorf("video %s: cannot estimate start time (fps=%v frames=%v)", path, fps, frames)
	}
	dur := time.Duration(frames / fps * float64(time.Second))
	return st.ModTime().Add(-dur), nil
}

// Close releases the OpenCV capture.
func (s *videoSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cap.Close()
}

func (s *videoSource) Width() int            { return s.width }
func (s *videoSource) Height() int           { return s.height }
func (s *videoSource) CameraName() string    { return "" }
func (s *videoSource) Frame0Time() time.Time { return s.frame0 }

func (s *videoSource) Frames() Seq {
	if s.seqTaken {
		panic("framesource: Frames called twice on video source")
	}
	s.seqTaken = true
	return &videoSeq{src: s, mat: gocv.NewMat(), rgb: gocv.NewMat()}
}

type videoSeq struct {
	src  *videoSource
	mat  gocv.Mat
	rgb  gocv.Mat
	done bool
}

func (q *videoSeq) Next() (Result, bool) {
	if q.done {
		return Result{}, false
	}
	// Position of the next frame, relative to the start of the stream.
	posMsec := q.src.cap.Get(gocv.VideoCapturePosMsec)
	if ok := q.src.cap.Read(&q.mat); !ok || q.mat.Empty() {
		q.close()
		return Result{}, false
	}

	im := &Image{Width: q.mat.Cols(), Height: q.mat.Rows()}
	switch q.mat.Channels() {
	case 1:
		im.Format = Mono8
		im.Pix = append([]byte(nil), q.mat.ToBytes()...)
	case 3:
		im.Format = RGB8
		gocv.CvtColor(q.mat, &q.rgb, gocv.ColorBGRToRGB)
		im.Pix = append([]byte(nil), q.rgb.ToBytes()...)
	default:
		q.close()
		return Result{Err: fmt.Errorf("video %s: unsupported channel count %d", q.src.path, q.mat.Channels())}, true
	}

	ts := q.src.frame0.Add(time.Duration(posMsec * float64(time.Millisecond)))
	return Result{Frame: &Frame{Timestamp: ts, Image: im}}, true
}

func (q *videoSeq) close() {
	if !q.done {
		q.done = true
		q.mat.Close()
		q.rgb.Close()
		q.src.Close()
	}
}
