// Package output is the boundary to the platform audio engine. The engine
// pulls interleaved float32 little-endian samples from an io.Reader on its
// own real-time schedule; everything above this package treats that reader
// callback as the render thread.
package output

import (
	"errors"
	"io"
)

var (
	ErrEngineNotStarted   = errors.New("audio engine not started")
	ErrEngineStartFailed  = errors.New("audio engine failed to start")
	ErrInvalidFormat      = errors.New("invalid audio format")
)

// Format is the PCM format the engine is opened with.
type Format struct {
	SampleRate int
	Channels   int
}

// Engine drives hardware audio output.
type Engine interface {
	// Start opens the engine for the given format and begins pulling
	// samples from source. Restarting with a different format tears down
	// the previous player.
	Start(format Format, source io.Reader) error

	// Pause suspends pulling without releasing the device.
	Pause() error

	// Resume continues pulling after a Pause.
	Resume() error

	// Stop tears down the player. The engine may be started again.
	Stop() error

	// Running reports whether the engine is started and not paused.
	Running() bool
}
