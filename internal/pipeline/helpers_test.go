package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/enhancer/internal/engine"
	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/nal"
)

var errNotDequeued = errors.New("buffer not dequeued")

// fakeEngine records calls and lets tests deliver completions by hand.
type fakeEngine struct {
	mu           sync.Mutex
	cb           engine.Callbacks
	cfg          engine.Config
	decodeResult engine.Result
	drainResult  engine.Result
	renderResult engine.Result
	decodes      []int64
	drains       int
	renders      []int64
	delays       []time.Duration
	flushes      int
	destroyed    bool
	inband       []nal.Syntax
	sideband     int
	surface      engine.Surface
}

func (f *fakeEngine) factory() engine.Factory {
	return func(cfg engine.Config, cb engine.Callbacks) (engine.Engine, error) {
		f.cfg = cfg
		f.cb = cb
		return f, nil
	}
}

func (f *fakeEngine) Decode(channel int, ts int64, flags int, base, decoded *image.Handle) engine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decodes = append(f.decodes, ts)
	return f.decodeResult
}

func (f *fakeEngine) Drain() engine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return f.drainResult
}

func (f *fakeEngine) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *fakeEngine) AddInbandData(channel int, ts int64, keyFrame bool, data []byte, syntax nal.Syntax) engine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inband = append(f.inband, syntax)
	return engine.ResultSuccess
}

func (f *fakeEngine) AddSidebandData(channel int, ts int64, keyFrame bool, data []byte) engine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sideband++
	return engine.ResultSuccess
}

func (f *fakeEngine) Render(channel int, ts int64, decoded *image.Handle, display media.DisplayParams, delay time.Duration) engine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, ts)
	f.delays = append(f.delays, delay)
	return f.renderResult
}

func (f *fakeEngine) SetSurface(s engine.Surface) engine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surface = s
	return engine.ResultSuccess
}

func (f *fakeEngine) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
}

func (f *fakeEngine) decoded(ts int64) {
	f.cb.OnDecodeCompleted(engine.ResultSuccess, 0, ts, &media.DecodeInfo{Width: 128, Height: 64, Enhanced: true})
}

// fakeReleaser tracks base buffers handed back by the pipeline.
type fakeReleaser struct {
	mu       sync.Mutex
	released []int
	reject   bool
}

func (r *fakeReleaser) ReleaseOutputBuffer(index int, render bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return errNotDequeued
	}
	r.released = append(r.released, index)
	return nil
}

func (r *fakeReleaser) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.released)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeEngine, *fakeReleaser) {
	t.Helper()
	fe := &fakeEngine{}
	rel := &fakeReleaser{}
	c, err := New(DefaultOptions(), fe.factory(), rel, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.SetInputFormat(media.TrackFormat{SampleMIME: "video/hevc", Width: 64, Height: 32})
	t.Cleanup(c.Destroy)
	return c, fe, rel
}

func frameSubmission(index int, ts int64) Submission {
	const w, h = 64, 32
	return Submission{
		Index:  index,
		Info:   media.BufferInfo{Size: w * h * 3 / 2, PresentationTimeUs: ts},
		Format: media.OutputFormat{Width: w, Height: h},
		Image: &media.Image{
			Data:     make([]byte, w*h*3/2),
			BitDepth: 8,
			Crop:     media.Rect{Right: w, Bottom: h},
			Planes: []media.Plane{
				{RowStride: w, PixelStride: 1},
				{RowStride: w, PixelStride: 2},
			},
		},
	}
}

func eosSubmission(index int, ts int64) Submission {
	return Submission{
		Index: index,
		Info:  media.BufferInfo{PresentationTimeUs: ts, Flags: media.BufferFlagEndOfStream},
	}
}

// decodeFrames submits and completes frames with timestamps ts0, ts0+1, ...
func decodeFrames(t *testing.T, c *Coordinator, fe *fakeEngine, n int, ts0 int64) {
	t.Helper()
	for i := range n {
		ts := ts0 + int64(i)
		if err := c.Submit(frameSubmission(i, ts)); err != nil {
			t.Fatalf("Submit(%d): %v", ts, err)
		}
		fe.decoded(ts)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
