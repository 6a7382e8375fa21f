package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/zsiec/enhancer/internal/engine"
	"github.com/zsiec/enhancer/internal/frame"
	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/nal"
	"github.com/zsiec/enhancer/internal/timekey"
)

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{}
	bad := []Options{
		{Channel: -1},
		{Channel: timekey.MaxChannel + 1},
		{PoolLimit: -1},
		{PoolLimit: 4},
		{DecodedImageKind: image.Kind(7)},
		{Engine: engine.Config{RenderLateTimeMs: -5}},
	}
	for i, o := range bad {
		if _, err := New(o, fe.factory(), nil, quietLogger()); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("options %d: got %v, want ErrInvalidOptions", i, err)
		}
	}
	if _, err := New(DefaultOptions(), nil, nil, quietLogger()); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("nil factory: got %v", err)
	}

	factoryErr := errors.New("no engine")
	_, err := New(DefaultOptions(), func(engine.Config, engine.Callbacks) (engine.Engine, error) {
		return nil, factoryErr
	}, nil, quietLogger())
	if !errors.Is(err, factoryErr) {
		t.Errorf("factory failure: got %v", err)
	}
}

func TestEngineReceivesConfig(t *testing.T) {
	t.Parallel()

	_, fe, _ := newTestCoordinator(t)
	if fe.cfg != engine.DefaultConfig() {
		t.Errorf("engine config: got %+v", fe.cfg)
	}
}

func TestSubmitAdmission(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	for i := range MaxSubmitted {
		if err := c.Submit(frameSubmission(i, int64(i))); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if c.CanSubmit() {
		t.Error("CanSubmit with three frames at the engine")
	}
	if err := c.Submit(frameSubmission(3, 3)); !errors.Is(err, ErrTryAgain) {
		t.Fatalf("fourth Submit: got %v, want ErrTryAgain", err)
	}

	fe.decoded(0)
	if !c.CanSubmit() {
		t.Error("CanSubmit false after a decode completed")
	}
	if got := len(fe.decodes); got != MaxSubmitted {
		t.Errorf("engine decodes: got %d, want %d", got, MaxSubmitted)
	}
}

func TestCompletedQueueBlocksAdmission(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	decodeFrames(t, c, fe, MaxCompleted, 0)
	if c.CanSubmit() {
		t.Fatal("CanSubmit with six decoded frames waiting")
	}
	d, ok := c.PeekNextReady()
	if !ok || !c.TakeReady(d) {
		t.Fatal("no ready frame to take")
	}
	if !c.CanSubmit() {
		t.Error("CanSubmit false after taking a ready frame")
	}
}

func TestPrerollGate(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	decodeFrames(t, c, fe, 5, 1000)
	if _, ok := c.PeekNextReady(); ok {
		t.Fatal("frame released before pre-roll reached index 5")
	}

	if err := c.Submit(frameSubmission(5, 2000)); err != nil {
		t.Fatal(err)
	}
	fe.decoded(2000)
	d, ok := c.PeekNextReady()
	if !ok {
		t.Fatal("no frame after pre-roll")
	}
	if d.ExternalIndex != 0 || d.Info.PresentationTimeUs != 1000 {
		t.Errorf("first ready: got index %d ts %d, want 0/1000", d.ExternalIndex, d.Info.PresentationTimeUs)
	}
}

func TestDecodeThenRender(t *testing.T) {
	t.Parallel()

	c, fe, rel := newTestCoordinator(t)
	decodeFrames(t, c, fe, 6, 0)
	if got := rel.count(); got != 6 {
		t.Errorf("base buffers released: got %d, want 6", got)
	}

	d, _ := c.PeekNextReady()
	c.TakeReady(d)
	out, err := c.Render(d.ExternalIndex, 5*time.Millisecond, true)
	if err != nil || out != RenderQueued {
		t.Fatalf("Render: got %v, %v", out, err)
	}
	if len(fe.renders) != 1 || fe.renders[0] != 0 || fe.delays[0] != 5*time.Millisecond {
		t.Errorf("engine render: got %v %v", fe.renders, fe.delays)
	}
	if c.registry.Len() != 6 {
		t.Errorf("rendering frame left the registry early")
	}

	fe.cb.OnRenderCompleted(engine.ResultSuccess, 0, 0, nil, 0)
	if c.registry.Len() != 5 {
		t.Errorf("in flight after render: got %d, want 5", c.registry.Len())
	}
	if s := c.Stats(); s.Rendered != 1 || s.Records.InUse != 5 {
		t.Errorf("stats: rendered %d, records in use %d", s.Rendered, s.Records.InUse)
	}
}

func TestRenderBeforeDecodeMisses(t *testing.T) {
	t.Parallel()

	c, fe, rel := newTestCoordinator(t)
	if err := c.Submit(frameSubmission(4, 500)); err != nil {
		t.Fatal(err)
	}

	out, err := c.Render(0, 0, true)
	if err != nil || out != RenderMissed {
		t.Fatalf("Render: got %v, %v, want missed", out, err)
	}
	rec := c.registry.Get(timekey.Encode(0, 500))
	if rec == nil || rec.State() != frame.StateMissedRender {
		t.Fatal("record not marked missed-render")
	}

	fe.decoded(500)
	if c.registry.Len() != 0 {
		t.Errorf("missed frame still in flight")
	}
	if c.completed.Len() != 0 || c.completedCount.Load() != 0 {
		t.Error("missed frame reached the decoded queue")
	}
	if rel.count() != 1 || rel.released[0] != 4 {
		t.Errorf("base buffer release: got %v, want [4]", rel.released)
	}
	if len(fe.renders) != 0 {
		t.Errorf("engine rendered a missed frame")
	}
	if s := c.Stats(); s.MissedRenders != 1 || s.Records.InUse != 0 {
		t.Errorf("stats: missed %d, records in use %d", s.MissedRenders, s.Records.InUse)
	}
}

func TestRenderDeclined(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	decodeFrames(t, c, fe, 1, 77)

	out, err := c.Render(0, 0, false)
	if err != nil || out != RenderSkipped {
		t.Fatalf("Render: got %v, %v, want skipped", out, err)
	}
	if c.registry.Len() != 0 || c.completedCount.Load() != 0 {
		t.Errorf("declined frame not released: in flight %d, ready %d", c.registry.Len(), c.completedCount.Load())
	}
	if len(fe.renders) != 0 {
		t.Error("declined frame reached the engine")
	}

	// A late render completion for the released frame is only logged.
	fe.cb.OnRenderCompleted(engine.ResultSuccess, 0, 77, nil, 0)
	if got := c.Stats().RegistryMisses; got != 1 {
		t.Errorf("registry misses: got %d, want 1", got)
	}
}

func TestRenderUnknownIndex(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	out, err := c.Render(12, 0, true)
	if out != RenderFailed || !errors.Is(err, ErrUnknownIndex) {
		t.Errorf("got %v, %v, want ErrUnknownIndex", out, err)
	}
}

func TestRenderEngineFailureReleases(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	fe.renderResult = engine.ResultError
	decodeFrames(t, c, fe, 1, 0)

	out, err := c.Render(0, 0, true)
	var ee *EngineError
	if out != RenderFailed || !errors.As(err, &ee) || ee.Op != "render" {
		t.Fatalf("got %v, %v, want render EngineError", out, err)
	}
	if !errors.Is(err, engine.ResultError) {
		t.Errorf("EngineError does not unwrap to the result: %v", err)
	}
	if c.registry.Len() != 0 {
		t.Error("failed render left the frame in flight")
	}
}

func TestDecodeFailureReleases(t *testing.T) {
	t.Parallel()

	c, fe, rel := newTestCoordinator(t)
	if err := c.Submit(frameSubmission(2, 10)); err != nil {
		t.Fatal(err)
	}
	fe.cb.OnDecodeCompleted(engine.ResultError, 0, 10, nil)

	if c.registry.Len() != 0 || c.submittedCount.Load() != 0 {
		t.Errorf("failed decode not released")
	}
	if rel.count() != 1 {
		t.Errorf("base buffer not released")
	}
	if got := c.Stats().DecodeFailures; got != 1 {
		t.Errorf("decode failures: got %d, want 1", got)
	}
}

func TestSubmitEngineFailureReleases(t *testing.T) {
	t.Parallel()

	c, fe, rel := newTestCoordinator(t)
	fe.decodeResult = engine.ResultInvalidParam

	err := c.Submit(frameSubmission(9, 10))
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Op != "decode" || ee.Result != engine.ResultInvalidParam {
		t.Fatalf("got %v, want decode EngineError", err)
	}
	if c.registry.Len() != 0 || c.submittedCount.Load() != 0 || c.submitted.Len() != 0 {
		t.Error("rejected frame still tracked")
	}
	if rel.count() != 1 || rel.released[0] != 9 {
		t.Errorf("base buffer release: got %v", rel.released)
	}
	if s := c.Stats(); s.Records.InUse != 0 || s.BaseImages.InUse != 0 || s.DecodeImages.InUse != 0 {
		t.Errorf("pools not returned: %+v %+v %+v", s.Records, s.BaseImages, s.DecodeImages)
	}
}

func TestSubmitLayoutFailureReleases(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	s := frameSubmission(0, 10)
	s.Image.Planes = s.Image.Planes[:1]

	if err := c.Submit(s); !errors.Is(err, ErrLayout) {
		t.Fatalf("got %v, want ErrLayout", err)
	}
	if len(fe.decodes) != 0 {
		t.Error("engine saw a frame with a bad layout")
	}
	if c.registry.Len() != 0 || c.CanSubmit() == false {
		t.Error("bad frame not released")
	}
}

func TestSubmitDuplicateKey(t *testing.T) {
	t.Parallel()

	c, _, rel := newTestCoordinator(t)
	if err := c.Submit(frameSubmission(0, 40)); err != nil {
		t.Fatal(err)
	}
	if err := c.Submit(frameSubmission(1, 40)); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("got %v, want ErrDuplicateKey", err)
	}
	if rel.count() != 1 || rel.released[0] != 1 {
		t.Errorf("duplicate base buffer: released %v, want [1]", rel.released)
	}
	if s := c.Stats(); s.Records.InUse != 1 || s.PendingDecodes != 1 {
		t.Errorf("after duplicate: records %d pending %d", s.Records.InUse, s.PendingDecodes)
	}
}

func TestSubmitTimestampRange(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	if err := c.Submit(frameSubmission(0, timekey.MaxTimestamp+1)); !errors.Is(err, ErrTimestamp) {
		t.Errorf("got %v, want ErrTimestamp", err)
	}
}

func TestNegativeTimestamp(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	decodeFrames(t, c, fe, 1, -40)
	if info, ok := c.DecodeInfo(-40); !ok || !info.Enhanced {
		t.Fatalf("DecodeInfo(-40): got %+v, %v", info, ok)
	}
	c.Render(0, 0, true)
	if fe.renders[0] != -40 {
		t.Errorf("render timestamp: got %d, want -40", fe.renders[0])
	}
	fe.cb.OnRenderCompleted(engine.ResultSuccess, 0, -40, nil, 0)
	if c.registry.Len() != 0 {
		t.Error("negative-timestamp frame not released")
	}
}

func TestEndOfStreamDrain(t *testing.T) {
	t.Parallel()

	c, fe, rel := newTestCoordinator(t)
	decodeFrames(t, c, fe, 2, 100)
	if err := c.Submit(eosSubmission(7, 999_999)); err != nil {
		t.Fatalf("Submit EOS: %v", err)
	}
	if fe.drains != 1 || len(fe.decodes) != 2 {
		t.Fatalf("engine calls: drains %d decodes %d", fe.drains, len(fe.decodes))
	}
	if eos := c.registry.EndOfStream(); eos == nil || eos.Key() != timekey.Encode(0, 0) {
		t.Fatal("end-of-stream record not keyed at timestamp 0")
	}

	fe.cb.OnDrainCompleted(engine.ResultSuccess)
	if rel.count() != 3 {
		t.Errorf("base releases: got %d, want 3", rel.count())
	}

	// End of stream releases the pre-roll even though index 2 < 5.
	var got []int
	for {
		d, ok := c.PeekNextReady()
		if !ok {
			break
		}
		c.TakeReady(d)
		got = append(got, d.ExternalIndex)
		if d.IsEndOfStream() {
			if out, _ := c.Render(d.ExternalIndex, 0, false); out != RenderSkipped {
				t.Errorf("EOS render: got %v, want skipped", out)
			}
		}
	}
	if len(got) != 3 || got[2] != 2 {
		t.Errorf("ready order: got %v, want [0 1 2]", got)
	}
}

func TestEndOfStreamBesideFrameAtZero(t *testing.T) {
	t.Parallel()

	c, fe, rel := newTestCoordinator(t)
	decodeFrames(t, c, fe, 3, 0)
	if _, ok := c.PeekNextReady(); ok {
		t.Fatal("pre-roll opened before end of stream")
	}

	if err := c.Submit(eosSubmission(9, 0)); err != nil {
		t.Fatalf("Submit EOS: %v", err)
	}
	fe.cb.OnDrainCompleted(engine.ResultSuccess)
	if rel.count() != 4 {
		t.Errorf("base releases: got %d, want 4", rel.count())
	}

	var got []int
	for {
		d, ok := c.PeekNextReady()
		if !ok {
			break
		}
		c.TakeReady(d)
		got = append(got, d.ExternalIndex)
		out, err := c.Render(d.ExternalIndex, 0, true)
		if err != nil {
			t.Fatalf("Render(%d): %v", d.ExternalIndex, err)
		}
		want := RenderQueued
		if d.IsEndOfStream() {
			want = RenderSkipped
		}
		if out != want {
			t.Errorf("Render(%d): got %v, want %v", d.ExternalIndex, out, want)
		}
	}
	if len(got) != 4 || got[3] != 3 {
		t.Fatalf("ready order: got %v, want [0 1 2 3]", got)
	}

	for ts := range int64(3) {
		fe.cb.OnRenderCompleted(engine.ResultSuccess, 0, ts, nil, 0)
	}
	s := c.Stats()
	if s.InFlight != 0 || s.Rendered != 3 || s.RegistryMisses != 0 {
		t.Errorf("after renders: in flight %d rendered %d misses %d", s.InFlight, s.Rendered, s.RegistryMisses)
	}
}

func TestDrainRoutedPastPendingFrameAtZero(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	if err := c.Submit(frameSubmission(0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := c.Submit(eosSubmission(1, 0)); err != nil {
		t.Fatalf("Submit EOS: %v", err)
	}
	frameRec := c.registry.Get(timekey.Encode(0, 0))
	eosRec := c.registry.EndOfStream()
	if frameRec == nil || eosRec == nil || frameRec == eosRec {
		t.Fatal("frame and end-of-stream records not held apart")
	}

	fe.cb.OnDrainCompleted(engine.ResultSuccess)
	if frameRec.State() != frame.StateReady {
		t.Errorf("drain completed the frame at timestamp 0")
	}
	fe.decoded(0)
	if di, ok := c.DecodeInfo(0); !ok || di.Width != 128 {
		t.Errorf("DecodeInfo(0) = %+v, %v", di, ok)
	}
	if c.completedCount.Load() != 2 {
		t.Errorf("decoded queue: got %d, want 2", c.completedCount.Load())
	}
	if err := c.Submit(eosSubmission(2, 0)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("second EOS: got %v, want ErrDuplicateKey", err)
	}
}

func TestSubmitRecordsExhausted(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{}
	rel := &fakeReleaser{}
	opts := DefaultOptions()
	opts.PoolLimit = MaxSubmitted + MaxCompleted
	c, err := New(opts, fe.factory(), rel, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Destroy)
	c.SetInputFormat(media.TrackFormat{SampleMIME: "video/avc", Width: 64, Height: 32})

	// Frames handed to the consumer still hold their records.
	for i := range opts.PoolLimit {
		ts := int64(i)
		if err := c.Submit(frameSubmission(i, ts)); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
		fe.decoded(ts)
		d, ok := c.completed.Front()
		if !ok || !c.TakeReady(d) {
			t.Fatalf("frame %d not ready", i)
		}
	}

	err = c.Submit(frameSubmission(99, 99))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Submit: got %v, want ErrExhausted", err)
	}
	if rel.count() != opts.PoolLimit {
		t.Errorf("base releases: got %d, want %d (buffer 99 stays with the caller)", rel.count(), opts.PoolLimit)
	}

	if _, err := c.Render(0, 0, false); err != nil {
		t.Fatal(err)
	}
	if err := c.Submit(frameSubmission(99, 99)); err != nil {
		t.Errorf("retry after release: %v", err)
	}
}

func TestRenderPrefersFrameOverEOS(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	decodeFrames(t, c, fe, 1, 5000)
	rec := c.registry.Get(timekey.Encode(0, 5000))

	// Put an EOS record under the same external index, sorting first.
	if err := c.Submit(eosSubmission(1, 0)); err != nil {
		t.Fatal(err)
	}
	eos := c.registry.EndOfStream()
	eos.Lock()
	eos.Begin(eos.Key(), frame.BufferDescriptor{Index: 1, ExternalIndex: 0, Info: media.BufferInfo{Flags: media.BufferFlagEndOfStream}})
	eos.Unlock()

	if got := c.registry.FindByExternalIndex(0); got != rec {
		t.Fatalf("lookup picked record %d, want %d", got.ID, rec.ID)
	}
	if out, err := c.Render(0, 0, true); out != RenderQueued || err != nil {
		t.Errorf("Render: got %v, %v", out, err)
	}
}

func TestFlushReleasesEverything(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	decodeFrames(t, c, fe, 2, 0)
	c.Submit(frameSubmission(2, 2))
	c.Submit(frameSubmission(3, 3))
	c.Render(0, 0, true)

	c.Flush()
	s := c.Stats()
	if s.InFlight != 0 || s.PendingDecodes != 0 || s.ReadyFrames != 0 {
		t.Errorf("after flush: %+v", s)
	}
	if s.Records.InUse != 0 || s.BaseImages.InUse != 0 || s.DecodeImages.InUse != 0 {
		t.Errorf("pools after flush: %+v %+v %+v", s.Records, s.BaseImages, s.DecodeImages)
	}
	if s.Records.Idle != s.Records.Allocated {
		t.Errorf("records idle %d of %d", s.Records.Idle, s.Records.Allocated)
	}
	if fe.flushes != 1 || s.Flushes != 1 {
		t.Errorf("flush counts: engine %d stats %d", fe.flushes, s.Flushes)
	}

	// Completions for flushed work are quiet.
	fe.cb.OnDecodeCompleted(engine.ResultFlushed, 0, 3, nil)
	if got := c.Stats().RegistryMisses; got != 0 {
		t.Errorf("flushed completion counted as miss: %d", got)
	}
	fe.cb.OnDecodeCompleted(engine.ResultSuccess, 0, 3, &media.DecodeInfo{})
	if got := c.Stats().RegistryMisses; got != 1 {
		t.Errorf("registry misses: got %d, want 1", got)
	}
}

func TestExternalIndexSurvivesFlush(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	decodeFrames(t, c, fe, 3, 0)
	c.Flush()

	if err := c.Submit(frameSubmission(0, 10)); err != nil {
		t.Fatal(err)
	}
	fe.decoded(10)
	if back, _ := c.completed.Back(); back.ExternalIndex != 3 {
		t.Errorf("external index after flush: got %d, want 3", back.ExternalIndex)
	}
	// The gate only looks at the newest index, so with index 3 the frame
	// waits; two more frames push the newest index to 5.
	if _, ok := c.PeekNextReady(); ok {
		t.Fatal("frame released with newest index 3")
	}
	decodeFrames(t, c, fe, 2, 20)
	if _, ok := c.PeekNextReady(); !ok {
		t.Error("frame held after newest index reached 5")
	}
}

func TestInbandSyntaxFollowsMIME(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	if err := c.AddInbandData(0, true, []byte{0, 0, 1, 0x7C, 0x01}); err != nil {
		t.Fatal(err)
	}
	c.SetInputFormat(media.TrackFormat{ContainerMIME: "video/vvc"})
	c.AddInbandData(1, false, []byte{1})
	c.SetInputFormat(media.TrackFormat{SampleMIME: "video/avc"})
	c.AddInbandData(2, false, []byte{1})

	want := []nal.Syntax{nal.SyntaxH265, nal.SyntaxH266, nal.SyntaxH264}
	for i, s := range fe.inband {
		if s != want[i] {
			t.Errorf("inband %d: got %v, want %v", i, s, want[i])
		}
	}
	if err := c.AddSidebandData(3, true, []byte{1}); err != nil || fe.sideband != 1 {
		t.Errorf("sideband: err %v, count %d", err, fe.sideband)
	}
	if err := c.SetOutputSurface("surface-1"); err != nil || fe.surface != "surface-1" {
		t.Errorf("surface: err %v, got %v", err, fe.surface)
	}
	if s := c.Stats(); s.InbandData != 3 || s.SidebandData != 1 {
		t.Errorf("data counts: %d/%d", s.InbandData, s.SidebandData)
	}
}

func TestBaseReleaseRejectionTolerated(t *testing.T) {
	t.Parallel()

	c, fe, rel := newTestCoordinator(t)
	rel.reject = true
	decodeFrames(t, c, fe, 1, 0)
	if c.completedCount.Load() != 1 {
		t.Error("frame dropped after base release failure")
	}
	if got := c.Stats().BaseReleaseErrors; got != 1 {
		t.Errorf("base release errors: got %d, want 1", got)
	}
}

func TestDestroy(t *testing.T) {
	t.Parallel()

	c, fe, _ := newTestCoordinator(t)
	decodeFrames(t, c, fe, 2, 0)
	c.Destroy()

	if !fe.destroyed {
		t.Error("engine not destroyed")
	}
	if s := c.Stats(); s.Records.InUse != 0 || s.InFlight != 0 {
		t.Errorf("after destroy: %+v", s)
	}
	if err := c.Submit(frameSubmission(0, 100)); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit: got %v, want ErrClosed", err)
	}
	if _, err := c.Render(0, 0, true); !errors.Is(err, ErrClosed) {
		t.Errorf("Render: got %v, want ErrClosed", err)
	}
	if err := c.AddInbandData(0, false, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("AddInbandData: got %v, want ErrClosed", err)
	}

	// Late callbacks after destroy are ignored.
	fe.decoded(1)
	if got := c.Stats().RegistryMisses; got != 0 {
		t.Errorf("registry misses after destroy: %d", got)
	}
	c.Flush()
	c.Destroy()
}

func TestRenderOutcomeString(t *testing.T) {
	t.Parallel()

	for o, want := range map[RenderOutcome]string{
		RenderQueued: "queued", RenderMissed: "missed", RenderSkipped: "skipped", RenderFailed: "failed",
	} {
		if got := o.String(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
