// Package playback implements the streaming playback pipeline: the entry
// queue, the player state machine, the PCM ring buffer shared with the audio
// engine's pull callback, and the orchestrating Player.
package playback

// InternalState is the authoritative player state. It is a closed enumeration
// rather than composable bit flags; the public state and stop reason are
// derived from it by a single decision table.
type InternalState int

const (
	StateInitial InternalState = iota
	StateRunning
	StatePlaying
	StateRebuffering
	StateWaitingForData
	StateWaitingForDataAfterSeek
	StatePaused
	StateStopped
	StatePendingNext
	StateDisposed
	StateErrored
)

func (s InternalState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRunning:
		return "running"
	case StatePlaying:
		return "playing"
	case StateRebuffering:
		return "rebuffering"
	case StateWaitingForData:
		return "waitingForData"
	case StateWaitingForDataAfterSeek:
		return "waitingForDataAfterSeek"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StatePendingNext:
		return "pendingNext"
	case StateDisposed:
		return "disposed"
	case StateErrored:
		return "error"
	default:
		return "unknown"
	}
}

// PlayerState is the externally observable state.
type PlayerState int

const (
	PlayerReady PlayerState = iota
	PlayerPlaying
	PlayerBuffering
	PlayerPaused
	PlayerStopped
	PlayerDisposed
	PlayerError
)

func (s PlayerState) String() string {
	switch s {
	case PlayerReady:
		return "ready"
	case PlayerPlaying:
		return "playing"
	case PlayerBuffering:
		return "buffering"
	case PlayerPaused:
		return "paused"
	case PlayerStopped:
		return "stopped"
	case PlayerDisposed:
		return "disposed"
	case PlayerError:
		return "error"
	default:
		return "unknown"
	}
}

// StopReason reports why playback came to rest.
type StopReason int

const (
	StopReasonNone StopReason = iota
	StopReasonUserAction
	StopReasonEOF
	StopReasonError
)

func (r StopReason) String() string {
	switch r {
	case StopReasonNone:
		return "none"
	case StopReasonUserAction:
		return "userAction"
	case StopReasonEOF:
		return "eof"
	case StopReasonError:
		return "error"
	default:
		return "unknown"
	}
}

// derivePublicState maps an internal state to its public state and stop
// reason. This table is the single source of truth for the mapping.
func derivePublicState(s InternalState) (PlayerState, StopReason) {
	switch s {
	case StateInitial:
		return PlayerReady, StopReasonNone
	case StateRunning, StatePlaying, StateWaitingForDataAfterSeek:
		return PlayerPlaying, StopReasonNone
	case StatePendingNext, StateRebuffering, StateWaitingForData:
		return PlayerBuffering, StopReasonNone
	case StateStopped:
		return PlayerStopped, StopReasonUserAction
	case StatePaused:
		return PlayerPaused, StopReasonNone
	case StateDisposed:
		return PlayerDisposed, StopReasonUserAction
	case StateErrored:
		return PlayerError, StopReasonError
	default:
		return PlayerReady, StopReasonNone
	}
}
