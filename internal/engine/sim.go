package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/nal"
	"github.com/zsiec/enhancer/internal/timekey"
)

// ErrInvalidConfig is returned by NewSim for unusable configurations.
var ErrInvalidConfig = errors.New("engine: invalid config")

const (
	defaultScale       = 2
	defaultRenderQueue = 16
	maxEnhancedKeys    = 256
)

var _ Engine = (*Sim)(nil)

// SimOptions tunes the simulated engine.
type SimOptions struct {
	// Scale multiplies the base size of frames that carry enhancement data.
	Scale int
	// DecodeLatency delays every decode completion.
	DecodeLatency time.Duration
	// RenderQueue bounds outstanding renders; Render returns ResultAgain
	// when it is full.
	RenderQueue int
	Log         *slog.Logger
}

type decodeJob struct {
	gen     uint64
	drain   bool
	channel int
	ts      int64
	base    *image.Handle
	decoded *image.Handle
}

type renderJob struct {
	gen     uint64
	channel int
	ts      int64
	img     *image.Handle
	due     time.Time
}

// SimStats counts work completed by a Sim.
type SimStats struct {
	Decodes  int64 `json:"decodes"`
	Enhanced int64 `json:"enhanced"`
	Drains   int64 `json:"drains"`
	Renders  int64 `json:"renders"`
	Late     int64 `json:"late"`
	Flushed  int64 `json:"flushed"`
}

// Sim is an in-process engine. It "enhances" a frame by scaling the base
// size when enhancement data was supplied for that frame's time key, and
// renders by waiting out the requested delay. Decodes complete in
// submission order on one worker; renders complete on another.
type Sim struct {
	id   string
	log  *slog.Logger
	cfg  Config
	cb   Callbacks
	opts SimOptions

	// deliverMu is held while a completion is delivered so Flush can
	// guarantee no pre-flush result arrives after it returns.
	deliverMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	pending  []decodeJob
	inflight *decodeJob
	enhanced map[timekey.Key]struct{}
	surface  Surface
	closed   bool

	wake    chan struct{}
	renders chan renderJob
	cancel  context.CancelFunc
	g       *errgroup.Group

	decodes  atomic.Int64
	enhCount atomic.Int64
	drains   atomic.Int64
	rendered atomic.Int64
	late     atomic.Int64
	flushed  atomic.Int64
}

// NewSimFactory returns a Factory producing Sims with opts.
func NewSimFactory(opts SimOptions) Factory {
	return func(cfg Config, cb Callbacks) (Engine, error) {
		s, err := NewSim(cfg, cb, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// NewSim creates and starts a simulated engine.
func NewSim(cfg Config, cb Callbacks, opts SimOptions) (*Sim, error) {
	if cb == nil {
		return nil, fmt.Errorf("%w: nil callbacks", ErrInvalidConfig)
	}
	if cfg.RenderLateTimeMs < 0 {
		return nil, fmt.Errorf("%w: render_late_time_ms %d", ErrInvalidConfig, cfg.RenderLateTimeMs)
	}
	doc, err := cfg.JSON()
	if err != nil {
		return nil, err
	}
	if opts.Scale <= 0 {
		opts.Scale = defaultScale
	}
	if opts.RenderQueue <= 0 {
		opts.RenderQueue = defaultRenderQueue
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Sim{
		id:       uuid.NewString(),
		cfg:      cfg,
		cb:       cb,
		opts:     opts,
		enhanced: make(map[timekey.Key]struct{}),
		wake:     make(chan struct{}, 1),
		renders:  make(chan renderJob, opts.RenderQueue),
	}
	s.log = log.With("component", "engine", "engine", s.id)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	s.g = g
	g.Go(func() error { return s.decodeLoop(gctx) })
	g.Go(func() error { return s.renderLoop(gctx) })

	s.log.Info("engine created", "config", doc)
	return s, nil
}

// ID returns the instance id.
func (s *Sim) ID() string { return s.id }

// Stats returns completion counters.
func (s *Sim) Stats() SimStats {
	return SimStats{
		Decodes:  s.decodes.Load(),
		Enhanced: s.enhCount.Load(),
		Drains:   s.drains.Load(),
		Renders:  s.rendered.Load(),
		Late:     s.late.Load(),
		Flushed:  s.flushed.Load(),
	}
}

func (s *Sim) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sim) enqueue(j decodeJob) Result {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ResultUninitialized
	}
	j.gen = s.gen
	s.pending = append(s.pending, j)
	s.mu.Unlock()
	s.signal()
	return ResultSuccess
}

func (s *Sim) Decode(channel int, timestampUs int64, flags int, base, decoded *image.Handle) Result {
	if base == nil || decoded == nil || !base.Created() || !decoded.Created() || len(base.Planes()) == 0 {
		return ResultInvalidParam
	}
	return s.enqueue(decodeJob{channel: channel, ts: timestampUs, base: base, decoded: decoded})
}

func (s *Sim) Drain() Result {
	return s.enqueue(decodeJob{drain: true})
}

func (s *Sim) Flush() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.gen++
	jobs := s.pending
	if s.inflight != nil {
		jobs = append([]decodeJob{*s.inflight}, jobs...)
		s.inflight = nil
	}
	s.pending = nil
	clear(s.enhanced)
	s.mu.Unlock()

	for _, j := range jobs {
		s.flushed.Add(1)
		if j.drain {
			s.cb.OnDrainCompleted(ResultFlushed)
			continue
		}
		s.cb.OnDecodeCompleted(ResultFlushed, j.channel, j.ts, nil)
	}
	s.log.Debug("flushed", "pending", len(jobs))
}

func (s *Sim) markEnhanced(channel int, timestampUs int64) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ResultUninitialized
	}
	if len(s.enhanced) >= maxEnhancedKeys {
		clear(s.enhanced)
	}
	s.enhanced[timekey.Encode(channel, timestampUs)] = struct{}{}
	return ResultSuccess
}

func (s *Sim) AddInbandData(channel int, timestampUs int64, keyFrame bool, data []byte, syntax nal.Syntax) Result {
	if len(data) == 0 {
		return ResultInvalidParam
	}
	if !nal.HasEnhancement(data, syntax) {
		return ResultSuccess
	}
	return s.markEnhanced(channel, timestampUs)
}

func (s *Sim) AddSidebandData(channel int, timestampUs int64, keyFrame bool, data []byte) Result {
	if len(data) == 0 {
		return ResultInvalidParam
	}
	return s.markEnhanced(channel, timestampUs)
}

func (s *Sim) Render(channel int, timestampUs int64, decoded *image.Handle, display media.DisplayParams, delay time.Duration) Result {
	if decoded == nil || !decoded.Created() {
		return ResultInvalidParam
	}
	s.mu.Lock()
	closed, gen := s.closed, s.gen
	s.mu.Unlock()
	if closed {
		return ResultUninitialized
	}

	j := renderJob{gen: gen, channel: channel, ts: timestampUs, img: decoded, due: time.Now().Add(delay)}
	select {
	case s.renders <- j:
		return ResultSuccess
	default:
		return ResultAgain
	}
}

func (s *Sim) SetSurface(sf Surface) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ResultUninitialized
	}
	s.surface = sf
	return ResultSuccess
}

// Destroy stops the workers. Outstanding work is abandoned without
// callbacks.
func (s *Sim) Destroy() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	if err := s.g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("engine worker error", "error", err)
	}
	s.log.Info("engine destroyed", "stats", s.Stats())
}

func (s *Sim) decodeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			j := s.pending[0]
			s.pending = s.pending[1:]
			s.inflight = &j
			s.mu.Unlock()

			if s.opts.DecodeLatency > 0 {
				t := time.NewTimer(s.opts.DecodeLatency)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				}
			}
			s.complete(j)
		}
	}
}

func (s *Sim) complete(j decodeJob) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	key := timekey.Encode(j.channel, j.ts)
	s.mu.Lock()
	// A stale job was already reported by Flush.
	stale := j.gen != s.gen
	if !stale {
		s.inflight = nil
	}
	_, enh := s.enhanced[key]
	delete(s.enhanced, key)
	s.mu.Unlock()
	if stale {
		return
	}

	if j.drain {
		s.drains.Add(1)
		s.cb.OnDrainCompleted(ResultSuccess)
		return
	}

	bd := j.base.Desc()
	info := media.DecodeInfo{Width: bd.Width, Height: bd.Height, HasEnhancement: enh}
	if enh {
		info.Width *= s.opts.Scale
		info.Height *= s.opts.Scale
		info.Enhanced = true
		s.enhCount.Add(1)
	}
	if err := j.decoded.Resize(info.Width, info.Height); err != nil {
		s.log.Warn("resize output", "ts", j.ts, "error", err)
		s.cb.OnDecodeCompleted(ResultError, j.channel, j.ts, nil)
		return
	}
	s.decodes.Add(1)
	s.cb.OnDecodeCompleted(ResultSuccess, j.channel, j.ts, &info)
}

func (s *Sim) renderLoop(ctx context.Context) error {
	late := time.Duration(s.cfg.RenderLateTimeMs) * time.Millisecond
	for {
		var j renderJob
		select {
		case <-ctx.Done():
			return nil
		case j = <-s.renders:
		}

		if wait := time.Until(j.due); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}

		result := ResultSuccess
		if late > 0 && time.Since(j.due) > late {
			result = ResultTimeout
			s.late.Add(1)
		}
		s.deliverRender(j, result)
	}
}

func (s *Sim) deliverRender(j renderJob, result Result) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	stale := j.gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.rendered.Add(1)
	s.cb.OnRenderCompleted(result, j.channel, j.ts, j.img, time.Now().UnixMicro())
}
