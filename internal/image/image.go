// Package image holds the engine-facing image handles that wrap base and
// enhanced pictures. A Handle describes storage; it never owns pixel memory
// beyond the plane references set on it.
package image

import (
	"errors"
	"fmt"

	"github.com/zsiec/enhancer/internal/media"
)

var (
	ErrInvalidDesc = errors.New("image: invalid description")
	ErrPlanes      = errors.New("image: plane layout does not fit buffer")
	ErrNotCreated  = errors.New("image: handle not created")
)

// Kind selects how a decoded image is backed.
type Kind int

const (
	KindBuffer Kind = iota
	KindTexture
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindTexture:
		return "texture"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "buffer", "":
		return KindBuffer, nil
	case "texture":
		return KindTexture, nil
	}
	return 0, fmt.Errorf("image: unknown kind %q", s)
}

// Desc is the storage description of an image. A zero Planes count with
// zero dimensions describes an auto-sized image whose layout the engine
// chooses on first use.
type Desc struct {
	Kind        Kind
	Planes      int
	Width       int
	Height      int
	BitDepth    int
	PixelAspect float32
	Color       media.ColorParams
	Modifiable  bool
}

// Auto reports whether the description leaves layout to the engine.
func (d Desc) Auto() bool {
	return d.Planes == 0 && d.Width == 0 && d.Height == 0
}

func (d Desc) validate() error {
	if d.Auto() {
		return nil
	}
	if d.Planes < 1 || d.Planes > MaxPlanes || d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %d planes %dx%d", ErrInvalidDesc, d.Planes, d.Width, d.Height)
	}
	if d.BitDepth < 8 || d.BitDepth > 16 {
		return fmt.Errorf("%w: bit depth %d", ErrInvalidDesc, d.BitDepth)
	}
	return nil
}

// MaxPlanes is the largest plane count an image may describe.
const MaxPlanes = 3

// PlaneRef locates one plane inside an external buffer.
type PlaneRef struct {
	Offset    int
	RowStride int
	Length    int
}

// Handle is a reusable image handle. Handles are pooled; ID is the pool
// slot and stays fixed for the handle's lifetime.
type Handle struct {
	ID int

	desc    Desc
	created bool
	buf     []byte
	planes  [MaxPlanes]PlaneRef
	nplanes int
}

// New returns an empty handle for pool slot id.
func New(id int) *Handle {
	return &Handle{ID: id}
}

// Created reports whether the handle currently has a description.
func (h *Handle) Created() bool { return h.created }

// Desc returns the current description.
func (h *Handle) Desc() Desc { return h.desc }

// ShouldChange reports whether the handle must be recreated to hold an
// image with the given geometry.
func (h *Handle) ShouldChange(planes, bitDepth, width, height int, pixelAspect float32) bool {
	if !h.created {
		return true
	}
	d := h.desc
	return d.Planes != planes || d.BitDepth != bitDepth || d.Width != width ||
		d.Height != height || d.PixelAspect != pixelAspect
}

// Create (re)describes the handle. Existing plane references are dropped.
func (h *Handle) Create(d Desc) error {
	if err := d.validate(); err != nil {
		return err
	}
	h.Reset()
	h.desc = d
	h.created = true
	return nil
}

// Resize updates the dimensions of a created handle in place. Engines use
// it to size auto-described output images.
func (h *Handle) Resize(width, height int) error {
	if !h.created {
		return ErrNotCreated
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDesc, width, height)
	}
	h.desc.Width = width
	h.desc.Height = height
	return nil
}

// SetPlanes points the handle's planes into buf. Every plane must lie
// entirely within buf and there must be exactly as many planes as the
// description declares.
func (h *Handle) SetPlanes(buf []byte, planes []PlaneRef) error {
	if !h.created {
		return ErrNotCreated
	}
	if len(planes) != h.desc.Planes {
		return fmt.Errorf("%w: got %d planes, want %d", ErrPlanes, len(planes), h.desc.Planes)
	}
	for i, p := range planes {
		if p.Offset < 0 || p.RowStride <= 0 || p.Length < 0 || p.Offset+p.Length > len(buf) {
			return fmt.Errorf("%w: plane %d offset %d length %d buffer %d", ErrPlanes, i, p.Offset, p.Length, len(buf))
		}
	}
	h.buf = buf
	h.nplanes = copy(h.planes[:], planes)
	return nil
}

// Planes returns the plane references set by SetPlanes.
func (h *Handle) Planes() []PlaneRef {
	return h.planes[:h.nplanes]
}

// PlaneData returns the bytes of plane i.
func (h *Handle) PlaneData(i int) []byte {
	if i < 0 || i >= h.nplanes {
		return nil
	}
	p := h.planes[i]
	return h.buf[p.Offset : p.Offset+p.Length]
}

// Detach drops plane references but keeps the description, so a pooled
// handle can be reused without recreation when the geometry is unchanged.
func (h *Handle) Detach() {
	h.buf = nil
	h.nplanes = 0
}

// Reset drops the description and plane references so the handle can be
// returned to its pool.
func (h *Handle) Reset() {
	h.desc = Desc{Color: media.ColorParams{HDRStaticInfo: h.desc.Color.HDRStaticInfo[:0]}}
	h.created = false
	h.buf = nil
	h.nplanes = 0
}
