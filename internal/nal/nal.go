// Package nal splits Annex B elementary streams into NAL units and
// classifies them for H.264, H.265, and H.266 base layers, including the
// unit types that carry in-band enhancement data.
package nal

import "strings"

// Syntax identifies the NAL header syntax of a base-layer bitstream.
type Syntax int

const (
	SyntaxH264 Syntax = iota
	SyntaxH265
	SyntaxH266
)

func (s Syntax) String() string {
	switch s {
	case SyntaxH264:
		return "h264"
	case SyntaxH265:
		return "h265"
	case SyntaxH266:
		return "h266"
	default:
		return "unknown"
	}
}

// SyntaxForMIME selects the NAL syntax for a track MIME type. Anything that
// is neither VVC nor HEVC is treated as H.264.
func SyntaxForMIME(mime string) Syntax {
	mime = strings.ToLower(mime)
	switch {
	case strings.Contains(mime, "vvc"):
		return SyntaxH266
	case strings.Contains(mime, "hevc"):
		return SyntaxH265
	default:
		return SyntaxH264
	}
}

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	H264Slice       = 1
	H264IDR         = 5
	H264SEI         = 6
	H264SPS         = 7
	H264PPS         = 8
	H264AUD         = 9
	H264Enhancement = 25
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	H265TrailR      = 1
	H265BlaWLP      = 16
	H265CRA         = 21
	H265VPS         = 32
	H265SPS         = 33
	H265PPS         = 34
	H265Enhancement = 62
)

// H.266 NAL unit types (ITU-T H.266 Table 5).
const (
	H266TrailNut    = 0
	H266IDRWRadl    = 7
	H266CRA         = 9
	H266GDR         = 10
	H266SPS         = 15
	H266PPS         = 16
	H266Enhancement = 31
)

// Unit is one NAL unit: its type and raw bytes including the header,
// without the start code.
type Unit struct {
	Type byte
	Data []byte
}

// HeaderLen returns the NAL header length in bytes.
func (s Syntax) HeaderLen() int {
	if s == SyntaxH264 {
		return 1
	}
	return 2
}

// Type extracts the unit type from raw NAL bytes. The caller guarantees at
// least HeaderLen bytes.
func (s Syntax) Type(d []byte) byte {
	switch s {
	case SyntaxH265:
		return (d[0] >> 1) & 0x3F
	case SyntaxH266:
		return d[1] >> 3
	default:
		return d[0] & 0x1F
	}
}

// IsKeyframe reports whether t is an intra random access picture type.
func (s Syntax) IsKeyframe(t byte) bool {
	switch s {
	case SyntaxH265:
		return t >= H265BlaWLP && t <= H265CRA
	case SyntaxH266:
		return t >= H266IDRWRadl && t <= H266GDR
	default:
		return t == H264IDR
	}
}

// IsEnhancement reports whether t is the unit type used to carry
// enhancement data in-band.
func (s Syntax) IsEnhancement(t byte) bool {
	switch s {
	case SyntaxH265:
		return t == H265Enhancement
	case SyntaxH266:
		return t == H266Enhancement
	default:
		return t == H264Enhancement
	}
}

// Split scans an Annex B byte stream and returns its NAL units. Both 3-byte
// and 4-byte start codes are recognized; data before the first start code
// and units shorter than the header are skipped. Returned units alias data.
func Split(data []byte, s Syntax) []Unit {
	var units []Unit
	start := -1
	i := 0
	for i+2 < len(data) {
		if data[i] != 0 || data[i+1] != 0 {
			i++
			continue
		}
		scLen := 0
		switch {
		case data[i+2] == 1:
			scLen = 3
		case i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1:
			scLen = 4
		default:
			i++
			continue
		}
		if start >= 0 {
			units = appendUnit(units, data[start:i], s)
		}
		i += scLen
		start = i
	}
	if start >= 0 && start < len(data) {
		units = appendUnit(units, data[start:], s)
	}
	return units
}

func appendUnit(units []Unit, d []byte, s Syntax) []Unit {
	if len(d) < s.HeaderLen() {
		return units
	}
	return append(units, Unit{Type: s.Type(d), Data: d})
}

// HasEnhancement reports whether an access unit carries an in-band
// enhancement NAL unit.
func HasEnhancement(data []byte, s Syntax) bool {
	for _, u := range Split(data, s) {
		if s.IsEnhancement(u.Type) {
			return true
		}
	}
	return false
}

// AppendUnit appends a 4-byte start code, a header for unit type t, and
// payload to buf.
func AppendUnit(buf []byte, s Syntax, t byte, payload []byte) []byte {
	buf = append(buf, 0, 0, 0, 1)
	switch s {
	case SyntaxH265:
		buf = append(buf, (t&0x3F)<<1, 0x01)
	case SyntaxH266:
		buf = append(buf, 0x00, (t&0x1F)<<3|0x01)
	default:
		buf = append(buf, 0x60|(t&0x1F))
	}
	return append(buf, payload...)
}
