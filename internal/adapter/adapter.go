// Package adapter wraps a base video decoder so that its output passes
// through the enhancement pipeline. Consumers drive the Adapter with the
// same dequeue/queue/release calls they would use on the base decoder and
// receive enhanced frames in return.
package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/enhancer/internal/engine"
	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/pipeline"
)

// ErrBadBuffer is returned when an input buffer range does not fit the
// buffer it names.
var ErrBadBuffer = errors.New("adapter: input buffer range out of bounds")

// renderNowDelay is the delay used when the consumer asks for immediate
// presentation.
const renderNowDelay = time.Microsecond

// BaseDecoder is the subset of a platform video decoder the adapter drives.
type BaseDecoder interface {
	DequeueInputBuffer() int
	InputBuffer(index int) []byte
	QueueInputBuffer(index, offset, size int, presentationTimeUs int64, flags int) error
	// DequeueOutputBuffer returns a buffer index, or one of the media.Info
	// codes, and fills info for buffers.
	DequeueOutputBuffer(info *media.BufferInfo) int
	OutputFormat() media.OutputFormat
	OutputImage(index int) *media.Image
	ReleaseOutputBuffer(index int, render bool) error
	SetParameters(p media.Params) error
	Flush() error
	Release()
}

// Adapter presents an enhancing decoder on top of a BaseDecoder.
type Adapter struct {
	log   *slog.Logger
	base  BaseDecoder
	coord *pipeline.Coordinator
	track media.TrackFormat

	// inband is cleared once the consumer supplies sideband data; from
	// then on input access units are not scanned for enhancement data.
	inband atomic.Bool

	mu       sync.Mutex
	enhanced media.DecodeInfo
	// held is a base output buffer the pipeline could not take yet. It is
	// submitted again before any new base output is dequeued.
	held *heldBuffer
}

type heldBuffer struct {
	index int
	info  media.BufferInfo
}

// New builds an Adapter and its pipeline for a track.
func New(base BaseDecoder, track media.TrackFormat, opts pipeline.Options, factory engine.Factory, log *slog.Logger) (*Adapter, error) {
	if base == nil {
		return nil, errors.New("adapter: nil base decoder")
	}
	if log == nil {
		log = slog.Default()
	}
	coord, err := pipeline.New(opts, factory, base, log)
	if err != nil {
		return nil, err
	}
	coord.SetInputFormat(track)

	a := &Adapter{
		log:      log.With("component", "adapter", "session", coord.Session()),
		base:     base,
		coord:    coord,
		track:    track,
		enhanced: media.DecodeInfo{Width: track.Width, Height: track.Height},
	}
	a.inband.Store(true)
	return a, nil
}

// Pipeline exposes the underlying coordinator.
func (a *Adapter) Pipeline() *pipeline.Coordinator { return a.coord }

// Stats returns pipeline statistics.
func (a *Adapter) Stats() pipeline.Stats { return a.coord.Stats() }

func (a *Adapter) DequeueInputBuffer() int { return a.base.DequeueInputBuffer() }

func (a *Adapter) InputBuffer(index int) []byte { return a.base.InputBuffer(index) }

// QueueInputBuffer forwards a compressed access unit to the base decoder.
// While in in-band mode, every non-EOS access unit is also offered to the
// engine as potential enhancement data.
func (a *Adapter) QueueInputBuffer(index, offset, size int, presentationTimeUs int64, flags int) error {
	info := media.BufferInfo{Offset: offset, Size: size, PresentationTimeUs: presentationTimeUs, Flags: flags}
	if a.inband.Load() && !info.IsEndOfStream() && size > 0 {
		buf := a.base.InputBuffer(index)
		if offset < 0 || offset+size > len(buf) {
			return fmt.Errorf("%w: [%d:%d] of %d", ErrBadBuffer, offset, offset+size, len(buf))
		}
		if err := a.coord.AddInbandData(presentationTimeUs, info.IsKeyFrame(), buf[offset:offset+size]); err != nil {
			a.log.Warn("in-band data rejected", "ts", presentationTimeUs, "error", err)
		}
	}
	return a.base.QueueInputBuffer(index, offset, size, presentationTimeUs, flags)
}

// DequeueOutputBuffer returns the external index of the next enhanced
// frame, media.InfoOutputFormatChanged when the enhanced or base format
// changes, or media.InfoTryAgainLater. While there is room it also pulls
// output from the base decoder into the pipeline.
func (a *Adapter) DequeueOutputBuffer(info *media.BufferInfo) int {
	next, ready := a.coord.PeekNextReady()
	if ready && !next.IsEndOfStream() {
		if di, ok := a.coord.DecodeInfo(next.Info.PresentationTimeUs); ok && di.Valid() {
			a.mu.Lock()
			changed := !di.SameSize(a.enhanced)
			if changed {
				a.enhanced = di
			}
			a.mu.Unlock()
			if changed {
				a.log.Info("output format changed", "width", di.Width, "height", di.Height, "enhanced", di.Enhanced)
				return media.InfoOutputFormatChanged
			}
		}
	}

	if h := a.takeHeld(); h != nil && a.coord.CanSubmit() {
		a.submit(h.index, h.info)
	} else if h != nil {
		a.hold(h.index, h.info)
	}

	index := math.MaxInt
	for index >= 0 && !a.holding() && a.coord.CanSubmit() {
		var baseInfo media.BufferInfo
		index = a.base.DequeueOutputBuffer(&baseInfo)
		for index == media.InfoOutputBuffersChanged {
			index = a.base.DequeueOutputBuffer(&baseInfo)
		}
		switch {
		case index >= 0:
			a.submit(index, baseInfo)
		case index == media.InfoOutputFormatChanged:
			a.log.Debug("base output format changed", "format", a.base.OutputFormat())
			return media.InfoOutputFormatChanged
		}
	}

	if !ready {
		return media.InfoTryAgainLater
	}
	a.coord.TakeReady(next)
	*info = next.Info
	return next.ExternalIndex
}

func (a *Adapter) submit(index int, info media.BufferInfo) {
	s := pipeline.Submission{
		Index:  index,
		Info:   info,
		Format: a.base.OutputFormat(),
	}
	if !info.IsEndOfStream() {
		s.Image = a.base.OutputImage(index)
	}
	err := a.coord.Submit(s)
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, pipeline.ErrTryAgain), errors.Is(err, pipeline.ErrExhausted):
		a.log.Debug("holding base frame", "index", index, "ts", info.PresentationTimeUs, "error", err)
		a.hold(index, info)
	case errors.Is(err, pipeline.ErrClosed):
		if rerr := a.base.ReleaseOutputBuffer(index, false); rerr != nil {
			a.log.Debug("release rejected base buffer", "index", index, "error", rerr)
		}
	default:
		a.log.Warn("submit base frame", "index", index, "ts", info.PresentationTimeUs, "error", err)
	}
}

func (a *Adapter) hold(index int, info media.BufferInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.held = &heldBuffer{index: index, info: info}
}

func (a *Adapter) takeHeld() *heldBuffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.held
	a.held = nil
	return h
}

func (a *Adapter) holding() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held != nil
}

// OutputFormat reports the enhanced output format.
func (a *Adapter) OutputFormat() media.OutputFormat {
	f := a.base.OutputFormat()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enhanced.Valid() {
		f.Width = a.enhanced.Width
		f.Height = a.enhanced.Height
		f.Crop = nil
		f.SliceHeight = 0
	}
	return f
}

// SetParameters routes a sideband payload to the engine and switches the
// adapter to sideband mode. Other parameters go to the base decoder.
func (a *Adapter) SetParameters(p media.Params) error {
	if p.Sideband == nil {
		return a.base.SetParameters(p)
	}
	if a.inband.Swap(false) {
		a.log.Info("switching to sideband enhancement data")
	}
	sb := p.Sideband
	if err := a.coord.AddSidebandData(sb.TimestampUs, sb.KeyFrame, sb.Data); err != nil {
		a.log.Warn("sideband data rejected", "ts", sb.TimestampUs, "error", err)
	}
	if len(p.Values) > 0 {
		return a.base.SetParameters(media.Params{Values: p.Values})
	}
	return nil
}

// ReleaseOutputBuffer renders or drops the frame exposed under index.
func (a *Adapter) ReleaseOutputBuffer(index int, render bool) error {
	_, err := a.coord.Render(index, renderNowDelay, render)
	return err
}

// ReleaseOutputBufferAt renders the frame exposed under index at the given
// wall-clock time.
func (a *Adapter) ReleaseOutputBufferAt(index int, at time.Time) error {
	_, err := a.coord.Render(index, time.Until(at), true)
	return err
}

// SetOutputSurface changes the render target.
func (a *Adapter) SetOutputSurface(s engine.Surface) error {
	return a.coord.SetOutputSurface(s)
}

// Flush drops all in-flight frames in the pipeline and the base decoder.
func (a *Adapter) Flush() error {
	a.takeHeld()
	a.coord.Flush()
	return a.base.Flush()
}

// Release shuts down the base decoder and the pipeline.
func (a *Adapter) Release() {
	a.takeHeld()
	a.base.Release()
	a.coord.Destroy()
}
