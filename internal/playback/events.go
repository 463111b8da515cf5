package playback

import (
	"github.com/streamramp/streamramp/internal/logger"
)

// Delegate receives playback notifications. Calls are delivered one at a time
// from a dedicated goroutine, never from the render path, so implementations
// may block briefly without causing audio dropouts.
type Delegate interface {
	// StateChanged fires whenever the public state or stop reason changes.
	StateChanged(state PlayerState, reason StopReason)

	// DidStartPlaying fires when an entry's audio first reaches the output.
	DidStartPlaying(entryID string)

	// DidFinishBuffering fires when an entry has buffered enough to sustain
	// playback.
	DidFinishBuffering(entryID string)

	// DidFinishPlaying fires exactly once per entry, with the stop reason and
	// the final position captured at finish time.
	DidFinishPlaying(entryID string, reason StopReason, progress, duration float64)

	// DidCancelQueued fires for entries removed from the queue without being
	// played.
	DidCancelQueued(entryIDs []string)

	// MetadataReceived delivers in-stream metadata such as StreamTitle.
	MetadataReceived(entryID string, fields map[string]string)

	// UnexpectedError reports a failure that stopped playback. The error is a
	// *PlaybackError carrying the originating layer.
	UnexpectedError(entryID string, err error)
}

// NopDelegate implements Delegate with no-ops, for embedding.
type NopDelegate struct{}

func (NopDelegate) StateChanged(PlayerState, StopReason)                  {}
func (NopDelegate) DidStartPlaying(string)                                {}
func (NopDelegate) DidFinishBuffering(string)                             {}
func (NopDelegate) DidFinishPlaying(string, StopReason, float64, float64) {}
func (NopDelegate) DidCancelQueued([]string)                              {}
func (NopDelegate) MetadataReceived(string, map[string]string)            {}
func (NopDelegate) UnexpectedError(string, error)                         {}

// eventDispatcher serializes delegate calls onto its own goroutine. The
// channel is generously buffered; if a delegate wedges long enough to fill
// it, events are dropped with a log line rather than stalling playback.
type eventDispatcher struct {
	delegate Delegate
	events   chan func(Delegate)
	done     chan struct{}
}

func newEventDispatcher(delegate Delegate) *eventDispatcher {
	d := &eventDispatcher{
		delegate: delegate,
		events:   make(chan func(Delegate), 256),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *eventDispatcher) run() {
	defer close(d.done)
	for fn := range d.events {
		fn(d.delegate)
	}
}

func (d *eventDispatcher) dispatch(fn func(Delegate)) {
	if d.delegate == nil {
		return
	}
	select {
	case d.events <- fn:
	default:
		logger.Warn("event queue full, dropping notification")
	}
}

// close stops the dispatcher after draining queued events.
func (d *eventDispatcher) close() {
	close(d.events)
	<-d.done
}
