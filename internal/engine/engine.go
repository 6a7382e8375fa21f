// Package engine defines the contract between the pipeline and an
// enhancement decoder engine, plus Sim, an in-process engine used by the
// command-line player and tests.
//
// Engines report completions asynchronously through Callbacks. Callbacks
// may run on any goroutine, but never from inside Decode, Drain, or Render.
package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/media"
	"github.com/zsiec/enhancer/internal/nal"
)

// Result is an engine status code.
type Result int

const (
	ResultSuccess       Result = 0
	ResultAgain         Result = 1
	ResultFlushed       Result = 2
	ResultTimeout       Result = 3
	ResultError         Result = -1
	ResultUninitialized Result = -2
	ResultInvalidParam  Result = -3
	ResultNotSupported  Result = -4
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultAgain:
		return "again"
	case ResultFlushed:
		return "flushed"
	case ResultTimeout:
		return "timeout"
	case ResultError:
		return "error"
	case ResultUninitialized:
		return "uninitialized"
	case ResultInvalidParam:
		return "invalid-param"
	case ResultNotSupported:
		return "not-supported"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

func (r Result) Error() string {
	return "engine: " + r.String()
}

// Err returns nil for ResultSuccess and r otherwise.
func (r Result) Err() error {
	if r == ResultSuccess {
		return nil
	}
	return r
}

// Usable reports whether a decode that finished with r produced output
// worth keeping: either success or a flush that completed the frame.
func (r Result) Usable() bool {
	return r == ResultSuccess || r == ResultFlushed
}

// Config is the engine configuration. It is handed to the engine as a JSON
// document.
type Config struct {
	SimpleRenderMode bool   `json:"simple_render_mode"`
	RenderLateTimeMs int64  `json:"render_late_time_ms"`
	Stats            bool   `json:"stats,omitempty"`
	StatsFile        string `json:"stats_file,omitempty"`
}

// DefaultConfig renders in simple mode and never drops late frames.
func DefaultConfig() Config {
	return Config{
		SimpleRenderMode: true,
		RenderLateTimeMs: int64(24 * time.Hour / time.Millisecond),
	}
}

// JSON renders the configuration document.
func (c Config) JSON() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("engine: encode config: %w", err)
	}
	return string(b), nil
}

// Surface is an opaque render target handed through to the engine.
type Surface any

// Callbacks receives engine completion events. timestampUs is the
// sign-extended presentation timestamp the work was submitted with.
type Callbacks interface {
	OnDecodeCompleted(result Result, channel int, timestampUs int64, info *media.DecodeInfo)
	OnRenderCompleted(result Result, channel int, timestampUs int64, img *image.Handle, completionTimeUs int64)
	OnDrainCompleted(result Result)
}

// Engine is an enhancement decoder instance.
type Engine interface {
	// Decode enhances base into decoded asynchronously. Completion is
	// reported with OnDecodeCompleted.
	Decode(channel int, timestampUs int64, flags int, base, decoded *image.Handle) Result
	// Drain finishes pending decodes and reports OnDrainCompleted.
	Drain() Result
	// Flush abandons pending work. Pending decodes complete with
	// ResultFlushed, and every completion for pre-flush work has been
	// delivered, before Flush returns.
	Flush()
	AddInbandData(channel int, timestampUs int64, keyFrame bool, data []byte, syntax nal.Syntax) Result
	AddSidebandData(channel int, timestampUs int64, keyFrame bool, data []byte) Result
	// Render presents decoded after delay. Completion is reported with
	// OnRenderCompleted.
	Render(channel int, timestampUs int64, decoded *image.Handle, display media.DisplayParams, delay time.Duration) Result
	SetSurface(s Surface) Result
	Destroy()
}

// Factory creates an engine bound to callbacks.
type Factory func(cfg Config, cb Callbacks) (Engine, error)
