// Package pipeline coordinates base-decoder output with an enhancement
// engine. The Coordinator admits decoded base frames, tracks each one
// through decode and render in the engine, and guarantees every frame
// record is returned to its pool exactly once, whichever of the consumer
// and the engine callbacks gets there first.
package pipeline

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/enhancer/internal/engine"
	"github.com/zsiec/enhancer/internal/frame"
	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/nal"
	"github.com/zsiec/enhancer/internal/pool"
	"github.com/zsiec/enhancer/internal/timekey"
)

// BufferReleaser returns base decoder output buffers. The pipeline hands a
// base buffer back as soon as the engine has finished reading it.
type BufferReleaser interface {
	ReleaseOutputBuffer(index int, render bool) error
}

// RenderOutcome reports what Render did with a frame.
type RenderOutcome int

const (
	// RenderQueued means the engine accepted the frame for rendering.
	RenderQueued RenderOutcome = iota
	// RenderMissed means the frame was not decoded yet; it is released
	// when its decode completes.
	RenderMissed
	// RenderSkipped means the caller declined rendering and the frame was
	// released.
	RenderSkipped
	// RenderFailed means the frame could not be rendered.
	RenderFailed
)

func (o RenderOutcome) String() string {
	switch o {
	case RenderQueued:
		return "queued"
	case RenderMissed:
		return "missed"
	case RenderSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Submission is one base decoder output buffer offered to the pipeline.
type Submission struct {
	Index  int
	Info   media.BufferInfo
	Format media.OutputFormat
	// Image is the decoded base picture. It is ignored for end-of-stream
	// buffers.
	Image *media.Image
}

// Coordinator runs one enhancement pipeline.
//
// Consumer operations (Submit, Render, Flush, Destroy and the data
// forwarding calls) are serialized among themselves. Engine callbacks run
// concurrently with them; the two sides meet on the per-record lock and the
// registry's compare-and-delete.
type Coordinator struct {
	log     *slog.Logger
	session string
	opts    Options
	engine  engine.Engine
	base    BufferReleaser

	opMu      sync.Mutex
	closed    atomic.Bool
	nextIndex int
	track     media.TrackFormat
	syntax    nal.Syntax
	planeRefs []image.PlaneRef
	drainBuf  []*frame.Record

	records      *pool.Pool[frame.Record]
	baseImages   *pool.Pool[image.Handle]
	decodeImages *pool.Pool[image.Handle]
	registry     *frame.Registry
	submitted    *frame.Queue
	completed    *frame.Queue

	submittedCount atomic.Int32
	completedCount atomic.Int32

	submittedTotal    atomic.Int64
	decoded           atomic.Int64
	decodeFailures    atomic.Int64
	drains            atomic.Int64
	rendered          atomic.Int64
	renderFailures    atomic.Int64
	missedRenders     atomic.Int64
	skipped           atomic.Int64
	flushes           atomic.Int64
	registryMisses    atomic.Int64
	baseReleaseErrors atomic.Int64
	inbandData        atomic.Int64
	sidebandData      atomic.Int64
}

// New creates a Coordinator and its engine. base may be nil when base
// buffers need no explicit release.
func New(opts Options, factory engine.Factory, base BufferReleaser, log *slog.Logger) (*Coordinator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: nil engine factory", ErrInvalidOptions)
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Coordinator{
		session:   uuid.NewString(),
		opts:      opts,
		base:      base,
		registry:  frame.NewRegistry(),
		submitted: frame.NewQueue(MaxSubmitted),
		completed: frame.NewQueue(MaxCompleted),
	}
	c.log = log.With("component", "pipeline", "session", c.session, "channel", opts.Channel)
	c.baseImages = pool.New(opts.PoolLimit, image.New, (*image.Handle).Detach)
	c.decodeImages = pool.New(opts.PoolLimit, image.New, (*image.Handle).Detach)
	c.records = pool.New(opts.PoolLimit, frame.NewRecord, c.resetRecord)

	eng, err := factory(opts.Engine, callbacks{c})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create engine: %w", err)
	}
	c.engine = eng

	c.log.Info("pipeline created",
		"poolLimit", opts.PoolLimit,
		"decodedImage", opts.DecodedImageKind,
		"modifyInput", opts.ModifyInputImage)
	return c, nil
}

// Session returns the id that tags this pipeline's log lines.
func (c *Coordinator) Session() string { return c.session }

// SetInputFormat records the compressed track format. The NAL syntax used
// for in-band data follows its MIME type.
func (c *Coordinator) SetInputFormat(track media.TrackFormat) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.track = track
	c.syntax = nal.SyntaxForMIME(track.MIME())
	c.log.Info("input format", "mime", track.MIME(), "syntax", c.syntax,
		"width", track.Width, "height", track.Height)
}

// CanSubmit reports whether Submit would currently admit a frame.
func (c *Coordinator) CanSubmit() bool {
	return c.submittedCount.Load() < MaxSubmitted && c.completedCount.Load() < MaxCompleted
}

// Submit hands one base decoder output buffer to the engine. After
// ErrTryAgain, ErrExhausted or ErrClosed the caller still owns the base
// buffer and may submit it again later. Any other error means the frame
// was dropped and the base buffer already returned.
//
// The end-of-stream record is keyed at timestamp zero but held apart from
// data frames, so a frame at timestamp zero still in flight does not block
// it.
func (c *Coordinator) Submit(s Submission) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if !c.CanSubmit() {
		return ErrTryAgain
	}

	eos := s.Info.IsEndOfStream()
	ts := s.Info.PresentationTimeUs
	if eos {
		ts = 0
	}
	if !timekey.ValidTimestamp(ts) {
		c.releaseBase(frame.BufferDescriptor{Index: s.Index})
		return fmt.Errorf("%w: %dus", ErrTimestamp, ts)
	}

	_, rec, err := c.records.Acquire()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExhausted, err)
	}

	key := timekey.Encode(c.opts.Channel, ts)
	rec.Lock()
	rec.Begin(key, frame.BufferDescriptor{Index: s.Index, Info: s.Info, ExternalIndex: c.nextIndex})
	c.nextIndex++
	desc := rec.Buffer()
	var inserted bool
	if eos {
		inserted = c.registry.InsertEndOfStream(rec)
	} else {
		inserted = c.registry.Insert(key, rec)
	}
	if !inserted {
		rec.Unlock()
		if err := c.records.Release(rec.ID); err != nil {
			c.log.Error("release unregistered record", "record", rec.ID, "error", err)
		}
		c.releaseBase(desc)
		return fmt.Errorf("%w: %v", ErrDuplicateKey, key)
	}
	c.submitted.Push(desc)
	c.submittedCount.Add(1)
	c.submittedTotal.Add(1)

	var prepErr error
	if !eos {
		prepErr = c.prepareLocked(rec, s)
	}
	baseImg, decodeImg := rec.BaseImage, rec.DecodeImage
	rec.Unlock()

	if prepErr != nil {
		c.decodeFailures.Add(1)
		c.abandon(rec)
		c.log.Warn("base frame rejected", "key", key, "error", prepErr)
		return prepErr
	}

	op := "decode"
	var r engine.Result
	if eos {
		op = "drain"
		c.drains.Add(1)
		r = c.engine.Drain()
	} else {
		r = c.engine.Decode(c.opts.Channel, ts, s.Info.Flags, baseImg, decodeImg)
	}
	if r.Err() != nil {
		c.decodeFailures.Add(1)
		c.abandon(rec)
		c.log.Warn("engine rejected frame", "op", op, "key", key, "result", r)
		return &EngineError{Op: op, Result: r}
	}

	c.log.Debug("submitted", "key", key, "external", desc.ExternalIndex, "eos", eos)
	return nil
}

// prepareLocked derives geometry and layout for rec and readies its image
// handles. rec must be locked.
func (c *Coordinator) prepareLocked(rec *frame.Record, s Submission) error {
	rec.ApplyFormat(c.track, s.Format)
	if err := rec.Layout.Fill(s.Image, rec.SliceHeight); err != nil {
		return fmt.Errorf("%w: %w", ErrLayout, err)
	}

	_, base, err := c.baseImages.Acquire()
	if err != nil {
		return fmt.Errorf("pipeline: acquire base image: %w", err)
	}
	rec.BaseImage = base

	_, dec, err := c.decodeImages.Acquire()
	if err != nil {
		return fmt.Errorf("pipeline: acquire decode image: %w", err)
	}
	rec.DecodeImage = dec
	if !dec.Created() || dec.Desc().Kind != c.opts.DecodedImageKind {
		if err := dec.Create(image.Desc{Kind: c.opts.DecodedImageKind}); err != nil {
			return fmt.Errorf("%w: decode image: %w", ErrLayout, err)
		}
	}

	return c.setupBaseImage(rec, s.Image)
}

func (c *Coordinator) setupBaseImage(rec *frame.Record, img *media.Image) error {
	h := rec.BaseImage
	g := rec.Geometry
	depth := img.BitDepth
	if depth == 0 {
		depth = 8
	}
	planes := rec.Layout.NumPlanes()

	if h.ShouldChange(planes, depth, g.CropWidth, g.CropHeight, rec.PixelAspect) {
		d := image.Desc{
			Kind:        image.KindBuffer,
			Planes:      planes,
			Width:       g.CropWidth,
			Height:      g.CropHeight,
			BitDepth:    depth,
			PixelAspect: rec.PixelAspect,
			Color: media.ColorParams{
				Range:         rec.Color.Range,
				Standard:      rec.Color.Standard,
				HDRStaticInfo: slices.Clone(rec.Color.HDRStaticInfo),
			},
			Modifiable: c.opts.ModifyInputImage,
		}
		if err := h.Create(d); err != nil {
			return fmt.Errorf("%w: %w", ErrLayout, err)
		}
		c.log.Debug("base image recreated", "image", h.ID, "planes", planes,
			"width", g.CropWidth, "height", g.CropHeight, "bitDepth", depth)
	}

	c.planeRefs = rec.Layout.PlaneRefs(c.planeRefs[:0])
	if err := h.SetPlanes(img.Data, c.planeRefs); err != nil {
		return fmt.Errorf("%w: %w", ErrLayout, err)
	}
	return nil
}

// PeekNextReady returns the oldest decoded frame if the pre-roll condition
// holds: the newest decoded frame has external index of at least five, or
// is end of stream.
func (c *Coordinator) PeekNextReady() (frame.BufferDescriptor, bool) {
	return c.completed.PeekReady(prerollIndex)
}

// TakeReady removes d from the decoded queue, handing it to the consumer.
func (c *Coordinator) TakeReady(d frame.BufferDescriptor) bool {
	if c.completed.Remove(d) {
		c.completedCount.Add(-1)
		return true
	}
	return false
}

// Render asks the engine to present the frame exposed under index after
// delay. With shouldRender false the frame is dropped instead, as is the
// end-of-stream marker, which has no image.
func (c *Coordinator) Render(index int, delay time.Duration, shouldRender bool) (RenderOutcome, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.closed.Load() {
		return RenderFailed, ErrClosed
	}

	rec := c.registry.FindByExternalIndex(index)
	if rec == nil {
		return RenderFailed, fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}
	rec.Lock()
	defer rec.Unlock()
	if rec.Key() == timekey.Invalid || rec.Buffer().ExternalIndex != index {
		return RenderFailed, fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}

	if rec.State() != frame.StateDecoded {
		rec.SetState(frame.StateMissedRender)
		c.missedRenders.Add(1)
		c.log.Debug("render before decode", "key", rec.Key(), "external", index)
		return RenderMissed, nil
	}
	if !shouldRender || rec.Buffer().IsEndOfStream() {
		c.releaseLocked(rec)
		c.skipped.Add(1)
		return RenderSkipped, nil
	}

	desc := rec.Buffer()
	if c.completed.Remove(desc) {
		c.completedCount.Add(-1)
	}
	key := rec.Key()
	r := c.engine.Render(c.opts.Channel, key.Timestamp(), rec.DecodeImage, rec.Display, delay)
	if r.Err() != nil {
		c.releaseLocked(rec)
		c.renderFailures.Add(1)
		c.log.Warn("engine rejected render", "key", key, "result", r)
		return RenderFailed, &EngineError{Op: "render", Result: r}
	}
	return RenderQueued, nil
}

// DecodeInfo returns the engine's decode report for the in-flight frame at
// timestampUs.
func (c *Coordinator) DecodeInfo(timestampUs int64) (media.DecodeInfo, bool) {
	key := timekey.Encode(c.opts.Channel, timestampUs)
	rec := c.registry.Get(key)
	if rec == nil {
		return media.DecodeInfo{}, false
	}
	rec.Lock()
	defer rec.Unlock()
	if c.registry.Get(key) != rec {
		return media.DecodeInfo{}, false
	}
	return rec.DecodeInfo(), true
}

// AddInbandData forwards an access unit whose NAL units may carry
// enhancement data.
func (c *Coordinator) AddInbandData(timestampUs int64, keyFrame bool, data []byte) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	if r := c.engine.AddInbandData(c.opts.Channel, timestampUs, keyFrame, data, c.syntax); r.Err() != nil {
		return &EngineError{Op: "inband", Result: r}
	}
	c.inbandData.Add(1)
	return nil
}

// AddSidebandData forwards an out-of-band enhancement payload.
func (c *Coordinator) AddSidebandData(timestampUs int64, keyFrame bool, data []byte) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	if r := c.engine.AddSidebandData(c.opts.Channel, timestampUs, keyFrame, data); r.Err() != nil {
		return &EngineError{Op: "sideband", Result: r}
	}
	c.sidebandData.Add(1)
	return nil
}

// SetOutputSurface changes the engine's render target.
func (c *Coordinator) SetOutputSurface(s engine.Surface) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	if r := c.engine.SetSurface(s); r.Err() != nil {
		return &EngineError{Op: "surface", Result: r}
	}
	return nil
}

// Flush abandons all in-flight frames. Every record is released and both
// queues are emptied. External indices keep counting across flushes.
func (c *Coordinator) Flush() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed.Load() {
		return
	}

	c.engine.Flush()
	n := c.releaseAll()
	c.flushes.Add(1)
	c.log.Debug("flushed", "released", n)
}

// Destroy tears down the engine and releases every record. The
// Coordinator rejects all further operations.
func (c *Coordinator) Destroy() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed.Swap(true) {
		return
	}

	c.engine.Destroy()
	n := c.releaseAll()
	c.log.Info("pipeline destroyed", "released", n, "stats", c.Stats())
}

func (c *Coordinator) releaseAll() int {
	c.completed.Clear()
	c.submitted.Clear()
	c.completedCount.Store(0)
	c.submittedCount.Store(0)

	c.drainBuf = c.registry.Drain(c.drainBuf[:0])
	for _, rec := range c.drainBuf {
		rec.Lock()
		if err := c.records.Release(rec.ID); err != nil {
			c.log.Error("release record", "record", rec.ID, "error", err)
		}
		rec.Unlock()
	}
	n := len(c.drainBuf)
	clear(c.drainBuf)
	return n
}

// Stats returns a snapshot of pipeline counters and pool occupancy.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Session:           c.session,
		Channel:           c.opts.Channel,
		Submitted:         c.submittedTotal.Load(),
		Decoded:           c.decoded.Load(),
		DecodeFailures:    c.decodeFailures.Load(),
		Drains:            c.drains.Load(),
		Rendered:          c.rendered.Load(),
		RenderFailures:    c.renderFailures.Load(),
		MissedRenders:     c.missedRenders.Load(),
		Skipped:           c.skipped.Load(),
		Flushes:           c.flushes.Load(),
		RegistryMisses:    c.registryMisses.Load(),
		BaseReleaseErrors: c.baseReleaseErrors.Load(),
		InbandData:        c.inbandData.Load(),
		SidebandData:      c.sidebandData.Load(),
		InFlight:          c.registry.Len(),
		PendingDecodes:    int(c.submittedCount.Load()),
		ReadyFrames:       int(c.completedCount.Load()),
		Records:           c.records.Stats(),
		BaseImages:        c.baseImages.Stats(),
		DecodeImages:      c.decodeImages.Stats(),
	}
}

// resetRecord is the record pool's reset hook. It returns the record's
// image handles to their pools.
func (c *Coordinator) resetRecord(rec *frame.Record) {
	base, dec := rec.Reset()
	if base != nil {
		if err := c.baseImages.Release(base.ID); err != nil {
			c.log.Error("release base image", "image", base.ID, "error", err)
		}
	}
	if dec != nil {
		if err := c.decodeImages.Release(dec.ID); err != nil {
			c.log.Error("release decode image", "image", dec.ID, "error", err)
		}
	}
}

// releaseLocked unregisters rec, drops any queue entries for it, and
// returns it to the pool. Only the caller that wins the registry removal
// releases; everyone else gets false. rec must be locked.
func (c *Coordinator) releaseLocked(rec *frame.Record) bool {
	key := rec.Key()
	if key == timekey.Invalid || !c.registry.Remove(key, rec) {
		return false
	}
	desc := rec.Buffer()
	if c.submitted.Remove(desc) {
		c.submittedCount.Add(-1)
	}
	if c.completed.Remove(desc) {
		c.completedCount.Add(-1)
	}
	if err := c.records.Release(rec.ID); err != nil {
		c.log.Error("release record", "record", rec.ID, "key", key, "error", err)
	}
	return true
}

// abandon releases a record whose submission failed, handing its base
// buffer back to the base decoder.
func (c *Coordinator) abandon(rec *frame.Record) {
	rec.Lock()
	defer rec.Unlock()
	desc := rec.Buffer()
	if c.releaseLocked(rec) {
		c.releaseBase(desc)
	}
}

func (c *Coordinator) releaseBase(desc frame.BufferDescriptor) {
	if c.base == nil || desc.Index == frame.NoIndex {
		return
	}
	if err := c.base.ReleaseOutputBuffer(desc.Index, false); err != nil {
		c.baseReleaseErrors.Add(1)
		c.log.Debug("base buffer release rejected", "index", desc.Index, "error", err)
	}
}
