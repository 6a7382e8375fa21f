package pipeline

import (
	"errors"
	"fmt"

	"github.com/zsiec/enhancer/internal/engine"
)

// Sentinel errors for pipeline operations. Callers distinguish failure
// modes with errors.Is.
var (
	ErrTryAgain       = errors.New("pipeline: try again")
	ErrClosed         = errors.New("pipeline: closed")
	ErrExhausted      = errors.New("pipeline: frame records exhausted")
	ErrLayout         = errors.New("pipeline: base image layout")
	ErrDuplicateKey   = errors.New("pipeline: time key already in flight")
	ErrUnknownIndex   = errors.New("pipeline: unknown external index")
	ErrTimestamp      = errors.New("pipeline: timestamp out of range")
	ErrInvalidOptions = errors.New("pipeline: invalid options")
)

// EngineError reports an engine call that returned a failure code.
type EngineError struct {
	Op     string
	Result engine.Result
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("pipeline: engine %s: %v", e.Op, e.Result)
}

func (e *EngineError) Unwrap() error {
	return e.Result
}
