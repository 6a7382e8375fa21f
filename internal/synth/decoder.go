// Package synth provides a synthetic base decoder and a matching
// elementary-stream generator. Together they stand in for a platform
// decoder when exercising the enhancement pipeline end to end.
package synth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/enhancer/internal/media"
)

var (
	ErrNoBuffer    = errors.New("synth: no free output buffer")
	ErrNotDequeued = errors.New("synth: buffer not dequeued")
	ErrReleased    = errors.New("synth: decoder released")
)

const (
	defaultInputBuffers  = 4
	defaultOutputBuffers = 12
	defaultKeyInterval   = 30
	inputBufferSize      = 64 << 10
	alignment            = 16
)

// Options describes the synthetic stream and decoder.
type Options struct {
	Width, Height    int
	Frames           int
	FrameInterval    time.Duration
	MIME             string
	Enhanced         bool
	KeyframeInterval int
	InputBuffers     int
	OutputBuffers    int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = time.Second / 30
	}
	if o.MIME == "" {
		o.MIME = "video/avc"
	}
	if o.KeyframeInterval <= 0 {
		o.KeyframeInterval = defaultKeyInterval
	}
	if o.InputBuffers <= 0 {
		o.InputBuffers = defaultInputBuffers
	}
	if o.OutputBuffers <= 0 {
		o.OutputBuffers = defaultOutputBuffers
	}
	return o
}

// Track returns the compressed track format for the stream.
func (o Options) Track() media.TrackFormat {
	o = o.withDefaults()
	return media.TrackFormat{
		SampleMIME:       o.MIME,
		Width:            o.Width,
		Height:           o.Height,
		PixelAspectRatio: 1,
	}
}

func align(v int) int { return (v + alignment - 1) &^ (alignment - 1) }

type output struct {
	dequeued bool
	info     media.BufferInfo
	img      media.Image
}

// DecoderStats counts decoder activity.
type DecoderStats struct {
	Queued   int `json:"queued"`
	Produced int `json:"produced"`
	Released int `json:"released"`
	Rendered int `json:"rendered"`
	Params   int `json:"params"`
	Flushes  int `json:"flushes"`
}

// Decoder is a synthetic base decoder producing NV12 frames with aligned
// strides and an inclusive crop, one output per queued input.
type Decoder struct {
	log    *slog.Logger
	opts   Options
	format media.OutputFormat

	mu            sync.Mutex
	inputs        [][]byte
	inBusy        []bool
	inFree        []int
	outputs       []output
	outFree       []int
	ready         []int
	formatPending bool
	released      bool
	stats         DecoderStats
}

// NewDecoder creates a synthetic decoder.
func NewDecoder(opts Options, log *slog.Logger) *Decoder {
	opts = opts.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	stride, slice := align(opts.Width), align(opts.Height)
	d := &Decoder{
		log:  log.With("component", "synth-decoder"),
		opts: opts,
		format: media.OutputFormat{
			MIME:        "video/raw",
			Width:       stride,
			Height:      slice,
			Crop:        &media.Crop{Right: opts.Width - 1, Bottom: opts.Height - 1},
			SliceHeight: slice,
			ColorRange:  2,
		},
		inputs:  make([][]byte, opts.InputBuffers),
		inBusy:  make([]bool, opts.InputBuffers),
		outputs: make([]output, opts.OutputBuffers),
	}
	for i := range d.inputs {
		d.inputs[i] = make([]byte, inputBufferSize)
		d.inFree = append(d.inFree, i)
	}
	for i := range d.outputs {
		d.outputs[i].img = media.Image{
			Data:     make([]byte, stride*slice*3/2),
			BitDepth: 8,
			Crop:     media.Rect{Right: opts.Width, Bottom: opts.Height},
			Planes: []media.Plane{
				{RowStride: stride, PixelStride: 1},
				{RowStride: stride, PixelStride: 2},
			},
		}
		d.outFree = append(d.outFree, i)
	}
	return d
}

// Stats returns activity counters.
func (d *Decoder) Stats() DecoderStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Decoder) DequeueInputBuffer() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released || len(d.inFree) == 0 {
		return media.InfoTryAgainLater
	}
	i := d.inFree[len(d.inFree)-1]
	d.inFree = d.inFree[:len(d.inFree)-1]
	d.inBusy[i] = true
	return i
}

func (d *Decoder) InputBuffer(index int) []byte {
	if index < 0 || index >= len(d.inputs) {
		return nil
	}
	return d.inputs[index]
}

// QueueInputBuffer "decodes" one access unit into a free output buffer.
func (d *Decoder) QueueInputBuffer(index, offset, size int, presentationTimeUs int64, flags int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	if index < 0 || index >= len(d.inputs) || !d.inBusy[index] {
		return fmt.Errorf("%w: input %d", ErrNotDequeued, index)
	}
	if len(d.outFree) == 0 {
		return ErrNoBuffer
	}
	d.inBusy[index] = false
	d.inFree = append(d.inFree, index)
	d.stats.Queued++

	o := d.outFree[len(d.outFree)-1]
	d.outFree = d.outFree[:len(d.outFree)-1]
	out := &d.outputs[o]
	out.info = media.BufferInfo{
		PresentationTimeUs: presentationTimeUs,
		Flags:              flags & (media.BufferFlagKeyFrame | media.BufferFlagEndOfStream),
	}
	if !out.info.IsEndOfStream() {
		out.info.Size = len(out.img.Data)
		paint(&out.img, d.stats.Queued)
	}
	if d.stats.Produced == 0 {
		d.formatPending = true
	}
	d.stats.Produced++
	d.ready = append(d.ready, o)
	return nil
}

// paint marks the first luma row so frames are distinguishable.
func paint(img *media.Image, n int) {
	row := img.Data[:img.Planes[0].RowStride]
	for i := range row {
		row[i] = byte(n + i)
	}
}

func (d *Decoder) DequeueOutputBuffer(info *media.BufferInfo) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return media.InfoTryAgainLater
	}
	if d.formatPending {
		d.formatPending = false
		return media.InfoOutputFormatChanged
	}
	if len(d.ready) == 0 {
		return media.InfoTryAgainLater
	}
	o := d.ready[0]
	d.ready = d.ready[1:]
	d.outputs[o].dequeued = true
	*info = d.outputs[o].info
	return o
}

func (d *Decoder) OutputFormat() media.OutputFormat { return d.format }

func (d *Decoder) OutputImage(index int) *media.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.outputs) || !d.outputs[index].dequeued {
		return nil
	}
	out := &d.outputs[index]
	if out.info.IsEndOfStream() {
		return nil
	}
	return &out.img
}

func (d *Decoder) ReleaseOutputBuffer(index int, render bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.outputs) || !d.outputs[index].dequeued {
		return fmt.Errorf("%w: output %d", ErrNotDequeued, index)
	}
	d.outputs[index].dequeued = false
	d.outFree = append(d.outFree, index)
	d.stats.Released++
	if render {
		d.stats.Rendered++
	}
	return nil
}

func (d *Decoder) SetParameters(p media.Params) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.stats.Params++
	return nil
}

// Flush returns every buffer to the decoder. Indices handed out before the
// flush become invalid.
func (d *Decoder) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.inFree = d.inFree[:0]
	for i := range d.inputs {
		d.inBusy[i] = false
		d.inFree = append(d.inFree, i)
	}
	d.outFree = d.outFree[:0]
	for i := range d.outputs {
		d.outputs[i].dequeued = false
		d.outFree = append(d.outFree, i)
	}
	d.ready = d.ready[:0]
	d.stats.Flushes++
	d.log.Debug("flushed")
	return nil
}

func (d *Decoder) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}
