package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/enhancer/internal/adapter"
	"github.com/zsiec/enhancer/internal/config"
	"github.com/zsiec/enhancer/internal/engine"
	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/metrics"
	"github.com/zsiec/enhancer/internal/sideband"
	"github.com/zsiec/enhancer/internal/synth"
)

var version = "dev"

func main() {
	level := new(slog.LevelVar)
	if os.Getenv("DEBUG") != "" {
		level.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(envOr("ENHANCER_CONFIG", ""))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if l, err := cfg.SlogLevel(); err == nil {
		level.Set(l)
	}

	if len(os.Args) == 3 && os.Args[1] == "gen-sideband" {
		if err := genSideband(cfg, os.Args[2]); err != nil {
			slog.Error("failed to write sideband file", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	log := slog.Default()
	opts, err := cfg.PipelineOptions()
	if err != nil {
		slog.Error("invalid pipeline options", "error", err)
		os.Exit(1)
	}
	so := cfg.SynthOptions()
	dec := synth.NewDecoder(so, log)
	a, err := adapter.New(dec, so.Track(), opts, engine.NewSimFactory(cfg.SimOptions(log)), log)
	if err != nil {
		slog.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Release()

	slog.Info("enhancer starting",
		"version", version,
		"session", a.Pipeline().Session(),
		"mime", cfg.Playback.MIME,
		"width", cfg.Playback.Width,
		"height", cfg.Playback.Height,
		"frames", cfg.Playback.Frames,
		"metrics", cfg.MetricsAddr,
	)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := metricsServer(cfg.MetricsAddr, a)
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		p, err := newPlayer(a, cfg)
		if err != nil {
			return err
		}
		defer p.close()
		return p.run(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("enhancer error", "error", err)
		os.Exit(1)
	}
	slog.Info("playback finished", "stats", a.Stats(), "decoder", dec.Stats())
}

func metricsServer(addr string, a *adapter.Adapter) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(a),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(a.Stats()); err != nil {
			slog.Debug("stats response", "error", err)
		}
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func genSideband(cfg config.Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	n, err := synth.WriteSideband(w, cfg.SynthOptions())
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	slog.Info("sideband file written", "path", path, "records", n)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// maxAhead bounds how far ahead of the presentation clock frames are
// dequeued, in frame intervals.
const maxAhead = 4

// player drives an Adapter the way a media player drives a decoder: it
// feeds access units, dequeues enhanced frames, and schedules their render
// against a wall clock.
type player struct {
	a        *adapter.Adapter
	stream   *synth.Stream
	interval time.Duration

	sideFile *os.File
	side     *sideband.Reader
	nextSide *sideband.Record

	in        int
	size      int
	pts       int64
	flags     int
	eosQueued bool

	start   time.Time
	lastPTS int64
}

func newPlayer(a *adapter.Adapter, cfg config.Config) (*player, error) {
	so := cfg.SynthOptions()
	p := &player{
		a:        a,
		stream:   synth.NewStream(so),
		interval: so.FrameInterval,
		in:       -1,
	}
	if path := cfg.Playback.SidebandFile; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sideband file: %w", err)
		}
		p.sideFile = f
		p.side = sideband.NewReader(f)
	}
	return p, nil
}

func (p *player) close() {
	if p.sideFile != nil {
		p.sideFile.Close()
	}
}

func (p *player) run(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	p.start = time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := p.feed(); err != nil {
			return err
		}
		for p.canDequeue() {
			done, more, err := p.dequeue()
			if err != nil {
				return err
			}
			if done {
				return p.waitIdle(ctx)
			}
			if !more {
				break
			}
		}
	}
}

// waitIdle waits for scheduled renders to complete.
func (p *player) waitIdle(ctx context.Context) error {
	deadline := p.start.Add(time.Duration(p.lastPTS)*time.Microsecond + time.Second)
	for p.a.Stats().InFlight > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func (p *player) canDequeue() bool {
	ahead := time.Duration(p.lastPTS)*time.Microsecond - time.Since(p.start)
	return ahead < maxAhead*p.interval
}

// feed queues access units until the base decoder has no room.
func (p *player) feed() error {
	for !p.eosQueued {
		if p.in < 0 {
			in := p.a.DequeueInputBuffer()
			if in < 0 {
				return nil
			}
			size, pts, flags, ok := p.stream.Next(p.a.InputBuffer(in))
			if !ok {
				return nil
			}
			p.in, p.size, p.pts, p.flags = in, size, pts, flags
			if err := p.sendSideband(pts); err != nil {
				return err
			}
		}
		err := p.a.QueueInputBuffer(p.in, 0, p.size, p.pts, p.flags)
		if errors.Is(err, synth.ErrNoBuffer) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("queue input: %w", err)
		}
		p.eosQueued = p.flags&media.BufferFlagEndOfStream != 0
		p.in = -1
	}
	return nil
}

// sendSideband forwards every sideband record up to pts.
func (p *player) sendSideband(pts int64) error {
	for p.side != nil {
		if p.nextSide == nil {
			rec, err := p.side.Next()
			if errors.Is(err, io.EOF) {
				p.side = nil
				return nil
			}
			if err != nil {
				return fmt.Errorf("read sideband: %w", err)
			}
			p.nextSide = &rec
		}
		if p.nextSide.TimestampUs > pts {
			return nil
		}
		if err := p.a.SetParameters(media.Params{Sideband: p.nextSide}); err != nil {
			return fmt.Errorf("set sideband: %w", err)
		}
		p.nextSide = nil
	}
	return nil
}

// dequeue handles one output. done is set at end of stream; more reports
// whether another dequeue may succeed immediately.
func (p *player) dequeue() (done, more bool, err error) {
	var info media.BufferInfo
	idx := p.a.DequeueOutputBuffer(&info)
	switch {
	case idx == media.InfoOutputFormatChanged:
		f := p.a.OutputFormat()
		slog.Info("output format changed", "width", f.Width, "height", f.Height)
		return false, true, nil
	case idx < 0:
		return false, false, nil
	case info.IsEndOfStream():
		slog.Info("end of stream", "pts", info.PresentationTimeUs)
		return true, false, p.a.ReleaseOutputBuffer(idx, false)
	}

	p.lastPTS = info.PresentationTimeUs
	at := p.start.Add(time.Duration(info.PresentationTimeUs) * time.Microsecond)
	if err := p.a.ReleaseOutputBufferAt(idx, at); err != nil {
		slog.Warn("render rejected", "index", idx, "pts", info.PresentationTimeUs, "error", err)
	}
	return false, true, nil
}
