package playback

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamramp/streamramp/internal/decoder"
	"github.com/streamramp/streamramp/internal/network"
)

// AudioEntry is the per-track state: the source handle, frame accounting, and
// the pending seek request. Roles ("currently reading", "currently playing")
// are relationships held by the player context, not entry states; an entry
// may hold both, one, or neither.
type AudioEntry struct {
	id      string
	rawURL  string
	headers map[string]string
	started atomic.Bool

	// seekMu guards the seek request independently of the frame counters so
	// the render path never contends with Seek calls.
	seekMu        sync.Mutex
	seekRequested bool
	seekTime      float64
	seekVersion   int64

	mu              sync.Mutex
	source          network.AudioSource
	format          decoder.Format
	framesQueued    int64
	framesPlayed    int64
	lastFrameQueued int64 // -1 until the total frame count is known
	finished        bool  // the finished signal has been reported
	packetCount     int64
	packetBytes     int64
	durationHint    time.Duration
	totalFramesHint int64
	streamInfo      network.StreamInfo
	seekBase        float64 // seconds already behind us after a seek
}

func newAudioEntry(rawURL string, headers map[string]string) *AudioEntry {
	return &AudioEntry{
		id:              fmt.Sprintf("entry_%d_%d", time.Now().UnixNano(), rand.Int()),
		rawURL:          rawURL,
		headers:         headers,
		lastFrameQueued: -1,
	}
}

func (e *AudioEntry) ID() string {
	return e.id
}

func (e *AudioEntry) URL() string {
	return e.rawURL
}

// markStarted reports true the first time it is called, so the
// started-playing notification fires exactly once per entry.
func (e *AudioEntry) markStarted() bool {
	return e.started.CompareAndSwap(false, true)
}

func (e *AudioEntry) attachSource(s network.AudioSource) {
	e.mu.Lock()
	e.source = s
	e.mu.Unlock()
}

func (e *AudioEntry) Source() network.AudioSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// RequestSeek records a seek target and returns the new request version. A
// newer request simply overwrites the target; the version counter lets a
// completion detect it has gone stale.
func (e *AudioEntry) RequestSeek(seconds float64) int64 {
	e.seekMu.Lock()
	defer e.seekMu.Unlock()
	e.seekRequested = true
	e.seekTime = seconds
	e.seekVersion++
	return e.seekVersion
}

// PendingSeek returns the current request, if any.
func (e *AudioEntry) PendingSeek() (requested bool, seconds float64, version int64) {
	e.seekMu.Lock()
	defer e.seekMu.Unlock()
	return e.seekRequested, e.seekTime, e.seekVersion
}

func (e *AudioEntry) HasPendingSeek() bool {
	e.seekMu.Lock()
	defer e.seekMu.Unlock()
	return e.seekRequested
}

// CompleteSeek clears the requested flag only when version still matches,
// so a stale completion cannot clobber a newer request.
func (e *AudioEntry) CompleteSeek(version int64) bool {
	e.seekMu.Lock()
	defer e.seekMu.Unlock()
	if e.seekVersion != version {
		return false
	}
	e.seekRequested = false
	return true
}

func (e *AudioEntry) setFormat(f decoder.Format, duration time.Duration, totalFrames int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.format = f
	if duration > 0 {
		e.durationHint = duration
	}
	if totalFrames > 0 {
		e.totalFramesHint = totalFrames
	}
}

func (e *AudioEntry) Format() decoder.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

func (e *AudioEntry) setStreamInfo(info network.StreamInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streamInfo = info
}

func (e *AudioEntry) StreamInfo() network.StreamInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streamInfo
}

func (e *AudioEntry) addFramesQueued(n int64) {
	e.mu.Lock()
	e.framesQueued += n
	e.mu.Unlock()
}

func (e *AudioEntry) FramesQueued() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.framesQueued
}

func (e *AudioEntry) FramesPlayed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.framesPlayed
}

// finishQueuing freezes the total frame count now that no more frames will
// arrive from the decoder.
func (e *AudioEntry) finishQueuing() {
	e.mu.Lock()
	if e.lastFrameQueued < 0 {
		e.lastFrameQueued = e.framesQueued
	}
	e.mu.Unlock()
}

func (e *AudioEntry) LastFrameQueued() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFrameQueued
}

// addFramesPlayed advances the played counter by up to n frames, clamped so
// it never exceeds lastFrameQueued once that is known. It returns the frames
// actually credited and whether this call made the entry finish; the finish
// signal fires exactly once per entry.
func (e *AudioEntry) addFramesPlayed(n int64) (credited int64, finished bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastFrameQueued >= 0 && e.framesPlayed >= e.lastFrameQueued {
		return 0, false
	}

	credited = n
	newPlayed := e.framesPlayed + n
	if e.lastFrameQueued >= 0 && newPlayed >= e.lastFrameQueued {
		credited = e.lastFrameQueued - e.framesPlayed
		newPlayed = e.lastFrameQueued
		if !e.finished {
			e.finished = true
			finished = true
		}
	}
	e.framesPlayed = newPlayed
	return credited, finished
}

// finishIfDrained reports true exactly once, when the total frame count is
// known and every queued frame has already been played. This covers the
// stream that hits end of file after the ring has drained: no further
// addFramesPlayed call will ever cross the boundary, so the finish has to be
// detected from the counters as they stand.
func (e *AudioEntry) finishIfDrained() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || e.lastFrameQueued < 0 || e.framesPlayed < e.lastFrameQueued {
		return false
	}
	e.finished = true
	return true
}

func (e *AudioEntry) recordPacket(bytes int) {
	e.mu.Lock()
	e.packetCount++
	e.packetBytes += int64(bytes)
	e.mu.Unlock()
}

// resetForSeek rewinds the frame accounting for a re-read at a new position.
// The base time keeps Progress truthful while the counters start over.
func (e *AudioEntry) resetForSeek(baseSeconds float64) {
	e.mu.Lock()
	e.framesQueued = 0
	e.framesPlayed = 0
	e.lastFrameQueued = -1
	e.finished = false
	e.packetCount = 0
	e.packetBytes = 0
	e.seekBase = baseSeconds
	e.mu.Unlock()
}

// Progress returns the playback position in seconds.
func (e *AudioEntry) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.format.SampleRate <= 0 {
		return e.seekBase
	}
	return e.seekBase + float64(e.framesPlayed)/float64(e.format.SampleRate)
}

// Duration returns the entry duration in seconds: the decoder's figure when
// the container exposes one, else an estimate from the stream byte length and
// the best available bitrate. 0 means unknown (live streams).
func (e *AudioEntry) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationLocked()
}

func (e *AudioEntry) durationLocked() float64 {
	if e.durationHint > 0 {
		return e.durationHint.Seconds()
	}
	if e.totalFramesHint > 0 && e.format.SampleRate > 0 {
		return float64(e.totalFramesHint) / float64(e.format.SampleRate)
	}
	if e.streamInfo.ContentLength <= 0 {
		return 0
	}
	bitrate := e.bitrateLocked()
	if bitrate <= 0 {
		return 0
	}
	return float64(e.streamInfo.ContentLength) * 8 / bitrate
}

// bitrateLocked prefers the advertised icy-br figure and falls back to the
// processed-byte statistics once enough frames have gone through.
func (e *AudioEntry) bitrateLocked() float64 {
	if e.streamInfo.Bitrate > 0 {
		return float64(e.streamInfo.Bitrate)
	}
	if e.format.SampleRate > 0 && e.framesQueued > 0 && e.packetBytes > 0 {
		seconds := float64(e.framesQueued) / float64(e.format.SampleRate)
		if seconds > 0.5 {
			return float64(e.packetBytes) * 8 / seconds
		}
	}
	return 0
}

// seekByteOffset maps a seek time to a byte offset in the resource, clamped
// so at least two read buffers remain before end of file. Returns false when
// the stream does not carry enough information to seek.
func (e *AudioEntry) seekByteOffset(seconds float64, readBufferSize int) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	length := e.streamInfo.ContentLength
	duration := e.durationLocked()
	if length <= 0 || duration <= 0 {
		return 0, false
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds > duration {
		seconds = duration
	}

	offset := int64(seconds / duration * float64(length))
	max := length - int64(2*readBufferSize)
	if max < 0 {
		max = 0
	}
	if offset > max {
		offset = max
	}
	return offset, true
}
