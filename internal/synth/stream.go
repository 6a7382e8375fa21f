package synth

import (
	"io"

	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/nal"
	"github.com/zsiec/enhancer/internal/sideband"
)

const (
	slicePayload       = 96
	enhancementPayload = 24
)

// Stream generates Annex B access units for a synthetic track, followed by
// one end-of-stream marker.
type Stream struct {
	opts   Options
	syntax nal.Syntax
	n      int
	done   bool
	buf    []byte
}

func NewStream(opts Options) *Stream {
	opts = opts.withDefaults()
	return &Stream{opts: opts, syntax: nal.SyntaxForMIME(opts.MIME)}
}

// PTS returns the presentation time of frame n in microseconds.
func (s *Stream) PTS(n int) int64 {
	return int64(n) * s.opts.FrameInterval.Microseconds()
}

// Next writes the next access unit into dst. ok is false after the
// end-of-stream marker has been returned.
func (s *Stream) Next(dst []byte) (size int, ptsUs int64, flags int, ok bool) {
	if s.done {
		return 0, 0, 0, false
	}
	if s.n >= s.opts.Frames {
		s.done = true
		return 0, s.PTS(s.n), media.BufferFlagEndOfStream, true
	}

	key := s.n%s.opts.KeyframeInterval == 0
	s.buf = s.accessUnit(s.buf[:0], key)
	size = copy(dst, s.buf)
	ptsUs = s.PTS(s.n)
	if key {
		flags = media.BufferFlagKeyFrame
	}
	s.n++
	return size, ptsUs, flags, true
}

func (s *Stream) accessUnit(buf []byte, key bool) []byte {
	fill := byte(0x80 | s.n&0x7F)
	payload := make([]byte, slicePayload)
	for i := range payload {
		payload[i] = fill
	}
	buf = nal.AppendUnit(buf, s.syntax, sliceType(s.syntax, key), payload)
	if s.opts.Enhanced {
		buf = nal.AppendUnit(buf, s.syntax, enhancementType(s.syntax), payload[:enhancementPayload])
	}
	return buf
}

func sliceType(s nal.Syntax, key bool) byte {
	switch s {
	case nal.SyntaxH265:
		if key {
			return nal.H265CRA
		}
		return nal.H265TrailR
	case nal.SyntaxH266:
		if key {
			return nal.H266IDRWRadl
		}
		return nal.H266TrailNut
	default:
		if key {
			return nal.H264IDR
		}
		return nal.H264Slice
	}
}

func enhancementType(s nal.Syntax) byte {
	switch s {
	case nal.SyntaxH265:
		return nal.H265Enhancement
	case nal.SyntaxH266:
		return nal.H266Enhancement
	default:
		return nal.H264Enhancement
	}
}

// WriteSideband writes one sideband record per frame of the stream.
func WriteSideband(w io.Writer, opts Options) (int, error) {
	s := NewStream(opts)
	sw := sideband.NewWriter(w)
	payload := make([]byte, enhancementPayload)
	for n := 0; n < s.opts.Frames; n++ {
		for i := range payload {
			payload[i] = byte(0x80 | n&0x7F)
		}
		rec := sideband.Record{
			TimestampUs: s.PTS(n),
			KeyFrame:    n%s.opts.KeyframeInterval == 0,
			Data:        payload,
		}
		if err := sw.Write(rec); err != nil {
			return n, err
		}
	}
	return s.opts.Frames, nil
}
