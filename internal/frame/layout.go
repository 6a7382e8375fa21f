package frame

import (
	"errors"
	"fmt"

	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/media"
)

// ErrInvalidImage is returned when a base image cannot be described as a
// planar YUV layout.
var ErrInvalidImage = errors.New("frame: invalid base image")

// PlaneLayout locates one plane's cropped pixels inside the base image
// buffer.
type PlaneLayout struct {
	Offset int
	Stride int
	Height int
	Length int
}

// Layout is the per-plane description of a base image. It is reused across
// frames without reallocating.
type Layout struct {
	planes [image.MaxPlanes]PlaneLayout
	n      int
}

func (l *Layout) NumPlanes() int { return l.n }

func (l *Layout) Planes() []PlaneLayout { return l.planes[:l.n] }

func (l *Layout) reset() { l.n = 0 }

// Fill computes the layout of img. Planes sit back to back in img.Data at
// sliceHeight intervals; chroma planes are subsampled by two in both
// directions. A second plane with unit pixel stride means three separate
// planes, otherwise chroma is interleaved in two.
func (l *Layout) Fill(img *media.Image, sliceHeight int) error {
	l.n = 0
	if img == nil || len(img.Planes) < 2 {
		return fmt.Errorf("%w: need at least 2 planes", ErrInvalidImage)
	}
	n := 2
	if img.Planes[1].PixelStride == 1 {
		n = 3
	}
	if len(img.Planes) < n {
		return fmt.Errorf("%w: %d planes, layout needs %d", ErrInvalidImage, len(img.Planes), n)
	}
	crop := img.Crop
	if crop.Dx() <= 0 || crop.Dy() <= 0 || crop.Left < 0 || crop.Top < 0 {
		return fmt.Errorf("%w: crop %+v", ErrInvalidImage, crop)
	}
	if sliceHeight < crop.Dy() {
		sliceHeight = crop.Dy()
	}

	total := 0
	for i := 0; i < n; i++ {
		p := img.Planes[i]
		if p.RowStride <= 0 || p.PixelStride <= 0 {
			return fmt.Errorf("%w: plane %d stride %d/%d", ErrInvalidImage, i, p.RowStride, p.PixelStride)
		}
		x, y := crop.Left*p.PixelStride, crop.Top
		h, sh := crop.Dy(), sliceHeight
		if i > 0 {
			x, y, h, sh = x/2, y/2, h/2, sh/2
		}
		pl := PlaneLayout{
			Offset: total + p.RowStride*y + x,
			Stride: p.RowStride,
			Height: h,
			Length: p.RowStride * h,
		}
		if pl.Offset+pl.Length > len(img.Data) {
			return fmt.Errorf("%w: plane %d ends at %d, buffer is %d", ErrInvalidImage, i, pl.Offset+pl.Length, len(img.Data))
		}
		l.planes[i] = pl
		total += p.RowStride * sh
	}
	l.n = n
	return nil
}

// PlaneRefs appends the layout as image plane references to dst.
func (l *Layout) PlaneRefs(dst []image.PlaneRef) []image.PlaneRef {
	for _, p := range l.Planes() {
		dst = append(dst, image.PlaneRef{Offset: p.Offset, RowStride: p.Stride, Length: p.Length})
	}
	return dst
}
