// Package media defines the buffer, format, and image descriptions that flow
// between the base decoder, the enhancement pipeline, and the consumer.
// Pixel geometry arrives here already computed; nothing in this package
// interprets platform pixel formats.
package media

import (
	"bytes"

	"github.com/zsiec/enhancer/internal/sideband"
)

// Buffer flag bits carried in BufferInfo.Flags.
const (
	BufferFlagKeyFrame     = 1
	BufferFlagCodecConfig  = 2
	BufferFlagEndOfStream  = 4
	BufferFlagPartialFrame = 8
)

// Informational return codes from output dequeue calls. Non-negative
// values are buffer indices.
const (
	InfoTryAgainLater        = -1
	InfoOutputFormatChanged  = -2
	InfoOutputBuffersChanged = -3
)

// BufferInfo describes one base decoder buffer.
type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              int
}

// IsEndOfStream reports whether the buffer carries the end-of-stream flag.
func (b BufferInfo) IsEndOfStream() bool {
	return b.Flags&BufferFlagEndOfStream != 0
}

// IsKeyFrame reports whether the buffer carries the key-frame flag.
func (b BufferInfo) IsKeyFrame() bool {
	return b.Flags&BufferFlagKeyFrame != 0
}

// TrackFormat is the format of the compressed input track.
type TrackFormat struct {
	ContainerMIME    string
	SampleMIME       string
	Width            int
	Height           int
	RotationDegrees  int
	PixelAspectRatio float32
}

// MIME returns the container MIME type, falling back to the sample MIME type.
func (t TrackFormat) MIME() string {
	if t.ContainerMIME != "" {
		return t.ContainerMIME
	}
	return t.SampleMIME
}

// AspectRatio returns the pixel aspect ratio, defaulting to square pixels.
func (t TrackFormat) AspectRatio() float32 {
	if t.PixelAspectRatio <= 0 {
		return 1
	}
	return t.PixelAspectRatio
}

// Crop is an inclusive crop window as reported by the base decoder.
type Crop struct {
	Left, Top, Right, Bottom int
}

// OutputFormat is the base decoder's reported output format. Zero values
// mean "not reported".
type OutputFormat struct {
	MIME          string
	Width         int
	Height        int
	Crop          *Crop
	SliceHeight   int
	ColorRange    int
	ColorStandard int
	ColorTransfer int
	HDRStaticInfo []byte // descriptor id byte followed by the static metadata
}

// Geometry is the frame geometry derived from an OutputFormat.
type Geometry struct {
	Width, Height         int
	CropX, CropY          int
	CropWidth, CropHeight int
}

// Geometry derives frame size and crop window. Without a crop the window
// covers the full frame.
func (f OutputFormat) Geometry() Geometry {
	g := Geometry{Width: f.Width, Height: f.Height}
	if f.Crop != nil {
		g.CropX = f.Crop.Left
		g.CropY = f.Crop.Top
		g.CropWidth = f.Crop.Right - f.Crop.Left + 1
		g.CropHeight = f.Crop.Bottom - f.Crop.Top + 1
		return g
	}
	g.CropWidth = f.Width
	g.CropHeight = f.Height
	return g
}

// HDRStaticInfoSize is the length of the static metadata block.
const HDRStaticInfoSize = 24

// ColorParams carries the colour description passed through to the engine.
type ColorParams struct {
	Range         int
	Standard      int
	HDRStaticInfo []byte
}

// Color extracts colour parameters into dst, reusing its HDR storage.
func (f OutputFormat) Color(dst *ColorParams) {
	dst.Range = f.ColorRange
	dst.Standard = f.ColorStandard
	if len(f.HDRStaticInfo) < 2 {
		dst.HDRStaticInfo = dst.HDRStaticInfo[:0]
		return
	}
	src := f.HDRStaticInfo[1:]
	if len(src) > HDRStaticInfoSize {
		src = src[:HDRStaticInfoSize]
	}
	dst.HDRStaticInfo = append(dst.HDRStaticInfo[:0], src...)
}

// Equal reports whether two colour descriptions match.
func (c ColorParams) Equal(o ColorParams) bool {
	return c.Range == o.Range && c.Standard == o.Standard && bytes.Equal(c.HDRStaticInfo, o.HDRStaticInfo)
}

// DisplayParams carries per-frame presentation parameters for rendering.
type DisplayParams struct {
	RotationDegrees int
	ColorTransfer   int
}

// Rect is a half-open pixel rectangle.
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Dx() int { return r.Right - r.Left }
func (r Rect) Dy() int { return r.Bottom - r.Top }

// Plane describes one plane of a raw image inside Image.Data.
type Plane struct {
	RowStride   int
	PixelStride int
}

// Image is a raw pixel image produced by the base decoder. All planes live
// in Data, laid out back to back at slice-height intervals.
type Image struct {
	Data     []byte
	BitDepth int
	Crop     Rect
	Planes   []Plane
}

// DecodeInfo is the engine's report on a completed enhancement decode.
type DecodeInfo struct {
	Width          int
	Height         int
	HasEnhancement bool
	Enhanced       bool
}

// Valid reports whether the decode produced a usable size.
func (d DecodeInfo) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// SameSize reports whether d and o describe the same output size.
func (d DecodeInfo) SameSize(o DecodeInfo) bool {
	return d.Width == o.Width && d.Height == o.Height
}

// Params are decoder parameters set by the consumer. A non-nil Sideband
// carries an out-of-band enhancement payload; Values go to the base decoder
// untouched.
type Params struct {
	Sideband *sideband.Record
	Values   map[string]any
}
