// Package config loads enhancer configuration from an optional JSON file
// and ENHANCER_* environment overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/zsiec/enhancer/internal/engine"
	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/pipeline"
	"github.com/zsiec/enhancer/internal/synth"
)

// ErrInvalid is returned for configuration values that cannot be used.
var ErrInvalid = errors.New("config: invalid configuration")

const envPrefix = "ENHANCER_"

// Playback describes the synthetic stream the CLI plays through the
// pipeline.
type Playback struct {
	MIME            string `json:"mime"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Frames          int    `json:"frames"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	Enhanced        bool   `json:"enhanced"`
	SidebandFile    string `json:"sideband_file,omitempty"`
	DecodeLatencyMs int    `json:"decode_latency_ms"`
}

// Config is the complete enhancer configuration.
type Config struct {
	Channel          int           `json:"channel"`
	PoolLimit        int           `json:"pool_limit"`
	DecodedImageType string        `json:"decoded_image_type"`
	ModifyInputImage bool          `json:"modify_input_image"`
	EngineConfig     engine.Config `json:"engine"`
	LogLevel         string        `json:"log_level"`
	MetricsAddr      string        `json:"metrics_addr"`
	Playback         Playback      `json:"playback"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		DecodedImageType: "texture",
		EngineConfig:     engine.DefaultConfig(),
		LogLevel:         "info",
		MetricsAddr:      ":9464",
		Playback: Playback{
			MIME:            "video/avc",
			Width:           1280,
			Height:          720,
			Frames:          300,
			FrameIntervalMs: 33,
			Enhanced:        true,
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	env := func(key string) string { return getenv(envPrefix + key) }

	ints := []struct {
		key string
		dst *int
	}{
		{"CHANNEL", &c.Channel},
		{"POOL_LIMIT", &c.PoolLimit},
		{"WIDTH", &c.Playback.Width},
		{"HEIGHT", &c.Playback.Height},
		{"FRAMES", &c.Playback.Frames},
		{"FRAME_INTERVAL_MS", &c.Playback.FrameIntervalMs},
		{"DECODE_LATENCY_MS", &c.Playback.DecodeLatencyMs},
	}
	for _, f := range ints {
		v := env(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalid, envPrefix, f.key, v)
		}
		*f.dst = n
	}

	if v := env("RENDER_LATE_TIME_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sRENDER_LATE_TIME_MS=%q", ErrInvalid, envPrefix, v)
		}
		c.EngineConfig.RenderLateTimeMs = n
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"MODIFY_INPUT_IMAGE", &c.ModifyInputImage},
		{"SIMPLE_RENDER_MODE", &c.EngineConfig.SimpleRenderMode},
		{"ENHANCED", &c.Playback.Enhanced},
	}
	for _, f := range bools {
		v := env(f.key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalid, envPrefix, f.key, v)
		}
		*f.dst = b
	}

	c.DecodedImageType = envOr(env("DECODED_IMAGE_TYPE"), c.DecodedImageType)
	c.LogLevel = envOr(env("LOG_LEVEL"), c.LogLevel)
	c.MetricsAddr = envOr(env("METRICS_ADDR"), c.MetricsAddr)
	c.Playback.MIME = envOr(env("MIME"), c.Playback.MIME)
	c.Playback.SidebandFile = envOr(env("SIDEBAND_FILE"), c.Playback.SidebandFile)
	if getenv("DEBUG") != "" {
		c.LogLevel = "debug"
	}
	return nil
}

func envOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// Validate reports the first unusable value.
func (c Config) Validate() error {
	opts, err := c.PipelineOptions()
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	p := c.Playback
	switch {
	case p.MIME == "":
		return fmt.Errorf("%w: empty playback mime", ErrInvalid)
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("%w: playback size %dx%d", ErrInvalid, p.Width, p.Height)
	case p.Frames < 0:
		return fmt.Errorf("%w: playback frames %d", ErrInvalid, p.Frames)
	case p.FrameIntervalMs <= 0:
		return fmt.Errorf("%w: frame interval %dms", ErrInvalid, p.FrameIntervalMs)
	case p.DecodeLatencyMs < 0:
		return fmt.Errorf("%w: decode latency %dms", ErrInvalid, p.DecodeLatencyMs)
	}
	return nil
}

// Engine returns the engine configuration.
func (c Config) Engine() engine.Config { return c.EngineConfig }

// PipelineOptions converts the configuration into coordinator options.
func (c Config) PipelineOptions() (pipeline.Options, error) {
	kind, err := image.ParseKind(c.DecodedImageType)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return pipeline.Options{
		Channel:          c.Channel,
		PoolLimit:        c.PoolLimit,
		DecodedImageKind: kind,
		ModifyInputImage: c.ModifyInputImage,
		Engine:           c.EngineConfig,
	}, nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}

// SynthOptions describes the synthetic stream and base decoder.
func (c Config) SynthOptions() synth.Options {
	return synth.Options{
		Width:         c.Playback.Width,
		Height:        c.Playback.Height,
		Frames:        c.Playback.Frames,
		FrameInterval: time.Duration(c.Playback.FrameIntervalMs) * time.Millisecond,
		MIME:          c.Playback.MIME,
		Enhanced:      c.Playback.Enhanced && c.Playback.SidebandFile == "",
	}
}

// SimOptions configures the in-process engine.
func (c Config) SimOptions(log *slog.Logger) engine.SimOptions {
	return engine.SimOptions{
		DecodeLatency: time.Duration(c.Playback.DecodeLatencyMs) * time.Millisecond,
		Log:           log,
	}
}
