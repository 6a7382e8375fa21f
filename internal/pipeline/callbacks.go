package pipeline

import (
	"github.com/zsiec/enhancer/internal/engine"
	"github.com/zsiec/enhancer/internal/frame"
	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/timekey"
)

// callbacks adapts engine completions onto the Coordinator without
// exporting the handlers.
type callbacks struct {
	c *Coordinator
}

func (cb callbacks) OnDecodeCompleted(result engine.Result, channel int, timestampUs int64, info *media.DecodeInfo) {
	cb.c.decodeCompleted(result, channel, timestampUs, info)
}

func (cb callbacks) OnRenderCompleted(result engine.Result, channel int, timestampUs int64, _ *image.Handle, completionTimeUs int64) {
	cb.c.renderCompleted(result, channel, timestampUs, completionTimeUs)
}

// OnDrainCompleted finishes the end-of-stream record, which is keyed at
// timestamp zero on the pipeline's channel.
func (cb callbacks) OnDrainCompleted(result engine.Result) {
	cb.c.drainCompleted(result)
}

// lookup finds and locks the record for key. It returns nil when the
// record is no longer in flight.
func (c *Coordinator) lookup(key timekey.Key, result engine.Result, op string) *frame.Record {
	if c.closed.Load() {
		return nil
	}
	rec := c.registry.Get(key)
	if rec == nil {
		c.miss(key, result, op)
		return nil
	}
	rec.Lock()
	if c.registry.Get(key) != rec {
		rec.Unlock()
		c.miss(key, result, op)
		return nil
	}
	return rec
}

func (c *Coordinator) miss(key timekey.Key, result engine.Result, op string) {
	if result == engine.ResultFlushed {
		c.log.Debug("flushed completion for released frame", "op", op, "key", key)
		return
	}
	c.registryMisses.Add(1)
	c.log.Warn("completion for unknown frame", "op", op, "key", key, "result", result)
}

// lookupEndOfStream finds and locks the end-of-stream record.
func (c *Coordinator) lookupEndOfStream(result engine.Result) *frame.Record {
	if c.closed.Load() {
		return nil
	}
	key := timekey.Encode(c.opts.Channel, 0)
	rec := c.registry.EndOfStream()
	if rec == nil {
		c.miss(key, result, "drain")
		return nil
	}
	rec.Lock()
	if c.registry.EndOfStream() != rec {
		rec.Unlock()
		c.miss(key, result, "drain")
		return nil
	}
	return rec
}

func (c *Coordinator) drainCompleted(result engine.Result) {
	rec := c.lookupEndOfStream(result)
	if rec == nil {
		return
	}
	defer rec.Unlock()
	c.finishDecodeLocked(rec, result, nil)
}

func (c *Coordinator) decodeCompleted(result engine.Result, channel int, timestampUs int64, info *media.DecodeInfo) {
	key := timekey.Encode(channel, timestampUs)
	rec := c.lookup(key, result, "decode")
	if rec == nil {
		return
	}
	defer rec.Unlock()
	c.finishDecodeLocked(rec, result, info)
}

// finishDecodeLocked moves rec from the submitted queue to the decoded
// queue, or releases it. rec must be locked.
func (c *Coordinator) finishDecodeLocked(rec *frame.Record, result engine.Result, info *media.DecodeInfo) {
	key := rec.Key()

	desc := rec.Buffer()
	if c.submitted.Remove(desc) {
		c.submittedCount.Add(-1)
	}
	if result.Usable() && info != nil {
		rec.SetDecodeInfo(*info)
	}
	c.releaseBase(desc)

	if !result.Usable() {
		c.decodeFailures.Add(1)
		c.log.Warn("decode failed", "key", key, "result", result)
		c.releaseLocked(rec)
		return
	}
	if rec.State() == frame.StateMissedRender {
		c.log.Debug("releasing frame that missed its render", "key", key)
		c.releaseLocked(rec)
		return
	}

	rec.SetState(frame.StateDecoded)
	c.completed.Push(desc)
	c.completedCount.Add(1)
	c.decoded.Add(1)
}

func (c *Coordinator) renderCompleted(result engine.Result, channel int, timestampUs int64, completionTimeUs int64) {
	key := timekey.Encode(channel, timestampUs)
	rec := c.lookup(key, result, "render")
	if rec == nil {
		return
	}
	defer rec.Unlock()

	if result == engine.ResultSuccess {
		c.rendered.Add(1)
	} else {
		c.renderFailures.Add(1)
		c.log.Warn("render failed", "key", key, "result", result)
	}
	c.log.Debug("rendered", "key", key, "completionUs", completionTimeUs)
	c.releaseLocked(rec)
}
