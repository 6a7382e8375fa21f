// Package frame holds the per-frame bookkeeping of the enhancement pipeline:
// the pooled frame records, the time-keyed registry of in-flight records,
// and the submission and completion queues that reference them.
package frame

import (
	"fmt"
	"sync"

	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/timekey"
)

// State is the lifecycle position of an in-flight record.
type State int

const (
	StateReady State = iota
	StateDecoded
	StateMissedRender
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDecoded:
		return "decoded"
	case StateMissedRender:
		return "missed-render"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// NoIndex marks an unset buffer or external index.
const NoIndex = -1

// BufferDescriptor identifies the base decoder buffer a record was built
// from, together with the index exposed to the consumer.
type BufferDescriptor struct {
	RecordID      int
	Index         int
	Info          media.BufferInfo
	ExternalIndex int
}

// IsEndOfStream reports whether the descriptor is the end-of-stream marker.
func (d BufferDescriptor) IsEndOfStream() bool {
	return d.Info.IsEndOfStream()
}

func (d BufferDescriptor) same(o BufferDescriptor) bool {
	return d.RecordID == o.RecordID && d.ExternalIndex == o.ExternalIndex
}

// Record is the state of one base frame travelling through the pipeline.
// Records are pooled; ID is the pool slot.
//
// Lock must be held for every state decision once the record has been
// registered, since the consumer and engine callbacks race on it.
type Record struct {
	ID int

	mu         sync.Mutex
	state      State
	key        timekey.Key
	buffer     BufferDescriptor
	decodeInfo media.DecodeInfo

	Geometry    media.Geometry
	SliceHeight int
	PixelAspect float32
	Color       media.ColorParams
	Display     media.DisplayParams
	Layout      Layout

	BaseImage   *image.Handle
	DecodeImage *image.Handle
}

// NewRecord returns an idle record for pool slot id.
func NewRecord(id int) *Record {
	r := &Record{ID: id}
	r.Reset()
	return r
}

func (r *Record) Lock()   { r.mu.Lock() }
func (r *Record) Unlock() { r.mu.Unlock() }

func (r *Record) State() State             { return r.state }
func (r *Record) SetState(s State)         { r.state = s }
func (r *Record) Key() timekey.Key         { return r.key }
func (r *Record) Buffer() BufferDescriptor { return r.buffer }

// DecodeInfo returns the engine's decode report for this frame.
func (r *Record) DecodeInfo() media.DecodeInfo { return r.decodeInfo }

// SetDecodeInfo stores the engine's decode report.
func (r *Record) SetDecodeInfo(info media.DecodeInfo) { r.decodeInfo = info }

// Begin stamps a freshly acquired record with its key and buffer. It must
// run before the record is registered.
func (r *Record) Begin(key timekey.Key, buf BufferDescriptor) {
	r.state = StateReady
	r.key = key
	buf.RecordID = r.ID
	r.buffer = buf
}

// ApplyFormat captures the geometry, colour, and display parameters of the
// base decoder's current output format.
func (r *Record) ApplyFormat(track media.TrackFormat, f media.OutputFormat) {
	r.Geometry = f.Geometry()
	r.SliceHeight = f.SliceHeight
	if r.SliceHeight <= 0 {
		r.SliceHeight = r.Geometry.CropHeight
	}
	f.Color(&r.Color)
	r.Display = media.DisplayParams{
		RotationDegrees: track.RotationDegrees,
		ColorTransfer:   f.ColorTransfer,
	}
	r.PixelAspect = track.AspectRatio()
}

// Reset returns the record to its idle state and hands back any image
// handles it held so the caller can return them to their pools.
func (r *Record) Reset() (base, decoded *image.Handle) {
	base, decoded = r.BaseImage, r.DecodeImage
	r.BaseImage, r.DecodeImage = nil, nil

	r.state = StateReady
	r.key = timekey.Invalid
	r.buffer = BufferDescriptor{RecordID: r.ID, Index: NoIndex, ExternalIndex: NoIndex}
	r.decodeInfo = media.DecodeInfo{}
	r.Geometry = media.Geometry{}
	r.SliceHeight = 0
	r.PixelAspect = 0
	r.Color = media.ColorParams{HDRStaticInfo: r.Color.HDRStaticInfo[:0]}
	r.Display = media.DisplayParams{}
	r.Layout.reset()
	return base, decoded
}
