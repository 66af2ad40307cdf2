package framesource

import "time"

// MemorySource is an in-memory Source used by tests and by tooling that
// synthesizes streams: a deterministic stand-in honoring the same
// one-shot contract as the file-backed sources.
type MemorySource struct {
	Name     string
	W, H     int
	FrameSeq []Result

	seqTaken bool
}

// NewMemorySource builds a MemorySource from plain frames.
func NewMemorySource(name string, w, h int, frames []*Frame) *MemorySource {
	rs := make([]Result, len(frames))
	for i, f := range frames {
		rs[i] = Result{Frame: f}
	}
	return &MemorySource{Name: name, W: w, H: h, FrameSeq: rs}
}

func (m *MemorySource) Close() error       { return nil }
func (m *MemorySource) Width() int         { return m.W }
func (m *MemorySource) Height() int        { return m.H }
func (m *MemorySource) CameraName() string { return m.Name }

func (m *MemorySource) Frame0Time() time.Time {
	for _, r := range m.FrameSeq {
		if r.Frame != nil {
			return r.Frame.Timestamp
		}
	}
	return time.Time{}
}

func (m *MemorySource) Frames() Seq {
	if m.seqTaken {
		panic("framesource: Frames called twice on memory source")
	}
	m.seqTaken = true
	return &memorySeq{items: m.FrameSeq}
}

type memorySeq struct {
	items []Result
	pos   int
}

func (s *memorySeq) Next() (Result, bool) {
	if s.pos >= len(s.items) {
		return Result{}, false
	}
	r := s.items[s.pos]
	s.pos++
	return r, true
}
