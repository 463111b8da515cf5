// Package decoder turns compressed audio byte streams into interleaved
// float32 PCM frames.
package decoder

import (
	"errors"
	"time"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidData       = errors.New("invalid audio data")
	ErrEndOfStream       = errors.New("end of stream")
	ErrBufferClosed      = errors.New("stream buffer closed")
)

// Format describes the PCM output of a decoder.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// BytesPerFrame returns the size of one interleaved frame in the float32
// output representation.
func (f Format) BytesPerFrame() int {
	return f.Channels * 4
}

// StreamDecoder decodes a forward-only compressed byte stream. Format is
// known once the constructor returns; implementations read as much of the
// stream as needed to discover it.
type StreamDecoder interface {
	// Format returns the discovered output format.
	Format() Format

	// Decode fills buf with interleaved samples and returns the number of
	// complete frames written. len(buf) must be a multiple of the channel
	// count. Returns ErrEndOfStream once the underlying stream is drained.
	Decode(buf []float32) (int, error)

	// Duration returns the total stream duration if the container exposes
	// it, else 0.
	Duration() time.Duration

	// TotalFrames returns the total frame count if known, else 0.
	TotalFrames() int64

	Close() error
}
