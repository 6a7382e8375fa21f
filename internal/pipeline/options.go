package pipeline

import (
	"fmt"

	"github.com/zsiec/enhancer/internal/engine"
	"github.com/zsiec/enhancer/internal/image"
	"github.com/zsiec/enhancer/internal/timekey"
)

// Admission limits. At most MaxSubmitted frames are with the engine at
// once, and submission stops while MaxCompleted decoded frames wait for the
// consumer.
const (
	MaxSubmitted = 3
	MaxCompleted = 6

	// prerollIndex is the external index the newest decoded frame must
	// reach before any decoded frame is handed out.
	prerollIndex = MaxCompleted - 1
)

// Options configures a Coordinator.
type Options struct {
	// Channel is stamped into every time key this pipeline creates.
	Channel int
	// PoolLimit caps frame records and image handles. Zero is unbounded.
	PoolLimit        int
	DecodedImageKind image.Kind
	ModifyInputImage bool
	Engine           engine.Config
}

// DefaultOptions returns options for channel 0 with the default engine
// configuration.
func DefaultOptions() Options {
	return Options{Engine: engine.DefaultConfig()}
}

// Validate checks the options for values the pipeline cannot run with.
func (o Options) Validate() error {
	if !timekey.ValidChannel(o.Channel) {
		return fmt.Errorf("%w: channel %d outside [0, %d]", ErrInvalidOptions, o.Channel, timekey.MaxChannel)
	}
	if o.PoolLimit < 0 || (o.PoolLimit > 0 && o.PoolLimit < MaxSubmitted+MaxCompleted) {
		return fmt.Errorf("%w: pool limit %d below %d", ErrInvalidOptions, o.PoolLimit, MaxSubmitted+MaxCompleted)
	}
	if o.DecodedImageKind != image.KindBuffer && o.DecodedImageKind != image.KindTexture {
		return fmt.Errorf("%w: decoded image kind %v", ErrInvalidOptions, o.DecodedImageKind)
	}
	if o.Engine.RenderLateTimeMs < 0 {
		return fmt.Errorf("%w: render late time %dms", ErrInvalidOptions, o.Engine.RenderLateTimeMs)
	}
	return nil
}
