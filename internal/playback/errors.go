package playback

import (
	"errors"
	"fmt"
)

var (
	ErrPlayerDisposed = errors.New("player has been disposed")
	ErrNothingPlaying = errors.New("no entry is playing")
	ErrSeekNotAllowed = errors.New("stream does not support seeking")
	ErrInvalidRate    = errors.New("playback rate out of range")
)

// ErrorKind classifies a playback failure by the layer it came from.
type ErrorKind int

const (
	ErrorKindNetwork ErrorKind = iota
	ErrorKindCodec
	ErrorKindAudioSystem
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNetwork:
		return "network"
	case ErrorKindCodec:
		return "codec"
	case ErrorKindAudioSystem:
		return "audio_system"
	default:
		return "unknown"
	}
}

// PlaybackError wraps an underlying failure with its layer of origin and the
// entry it concerned.
type PlaybackError struct {
	Kind    ErrorKind
	EntryID string
	Err     error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s error (entry %s): %v", e.Kind, e.EntryID, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

func newPlaybackError(kind ErrorKind, entryID string, err error) *PlaybackError {
	return &PlaybackError{Kind: kind, EntryID: entryID, Err: err}
}
