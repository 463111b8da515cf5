package playback

import (
	"sync"
)

// playerContext owns the authoritative internal state and the two current
// entry singletons. The state lock is never held across a call into the
// decoder or the network layer, and the entries lock guards only the two
// pointers.
type playerContext struct {
	stateMu       sync.Mutex
	internalState InternalState
	stopReason    StopReason

	entriesMu      sync.Mutex
	currentReading *AudioEntry
	currentPlaying *AudioEntry

	muted bool

	// onStateChange is invoked outside the state lock whenever a transition
	// changes the derived public state. The owner marshals it off to the
	// notification context.
	onStateChange func(old, new PlayerState)
}

func newPlayerContext() *playerContext {
	return &playerContext{
		internalState: StateInitial,
	}
}

// setInternalState transitions to the target state. The optional predicate is
// evaluated against the current state under the lock; when it reports false
// the transition is rejected. Used to avoid clobbering a state that changed
// concurrently (e.g. don't force playing if the user paused meanwhile).
func (c *playerContext) setInternalState(to InternalState, when func(InternalState) bool) bool {
	c.stateMu.Lock()
	if when != nil && !when(c.internalState) {
		c.stateMu.Unlock()
		return false
	}

	oldPublic, _ := derivePublicState(c.internalState)
	c.internalState = to
	newPublic, derivedReason := derivePublicState(to)
	if to != StateStopped {
		// Stopped keeps whatever reason was recorded by the stop path
		// (userAction vs eof); every other state takes the derived reason.
		c.stopReason = derivedReason
	}
	notify := c.onStateChange
	c.stateMu.Unlock()

	if oldPublic != newPublic && notify != nil {
		notify(oldPublic, newPublic)
	}
	return true
}

// setStopped records the stop reason together with the transition.
func (c *playerContext) setStopped(reason StopReason) {
	c.stateMu.Lock()
	oldPublic, _ := derivePublicState(c.internalState)
	c.internalState = StateStopped
	c.stopReason = reason
	notify := c.onStateChange
	c.stateMu.Unlock()

	if oldPublic != PlayerStopped && notify != nil {
		notify(oldPublic, PlayerStopped)
	}
}

func (c *playerContext) state() InternalState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.internalState
}

func (c *playerContext) publicState() (PlayerState, StopReason) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	public, _ := derivePublicState(c.internalState)
	return public, c.stopReason
}

func (c *playerContext) setMuted(muted bool) {
	c.stateMu.Lock()
	c.muted = muted
	c.stateMu.Unlock()
}

func (c *playerContext) isMuted() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.muted
}

func (c *playerContext) readingEntry() *AudioEntry {
	c.entriesMu.Lock()
	defer c.entriesMu.Unlock()
	return c.currentReading
}

func (c *playerContext) playingEntry() *AudioEntry {
	c.entriesMu.Lock()
	defer c.entriesMu.Unlock()
	return c.currentPlaying
}

func (c *playerContext) setReadingEntry(e *AudioEntry) {
	c.entriesMu.Lock()
	c.currentReading = e
	c.entriesMu.Unlock()
}

func (c *playerContext) setPlayingEntry(e *AudioEntry) {
	c.entriesMu.Lock()
	c.currentPlaying = e
	c.entriesMu.Unlock()
}

func (c *playerContext) entries() (reading, playing *AudioEntry) {
	c.entriesMu.Lock()
	defer c.entriesMu.Unlock()
	return c.currentReading, c.currentPlaying
}
