package playback

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamramp/streamramp/internal/decoder"
)

// producerWaitSlice bounds each wait for free space so teardown and seek
// requests are noticed promptly even if a signal is missed.
const producerWaitSlice = 250 * time.Millisecond

// rendererThresholds are the occupancy levels, in frames, that audible
// output waits for before starting or resuming. Separate levels for first
// start, post-underrun, and post-seek avoid thrashing on marginal fills.
type rendererThresholds struct {
	startFrames      int64
	underrunFrames   int64
	seekFrames       int64
	consumedFraction float64
}

// rendererHooks are invoked from the render goroutine and must not block.
type rendererHooks struct {
	// thresholdMet fires when a waiting state accumulated enough frames and
	// playback is about to resume.
	thresholdMet func(e *AudioEntry, from InternalState)
	// entryFinished fires when the playing entry's last frame was rendered.
	// It returns the next playing entry, or nil when none follows; leftover
	// frames from the same render pass are credited to it.
	entryFinished func(e *AudioEntry) *AudioEntry
}

// rendererContext is the fixed-capacity ring of interleaved PCM frames
// between the decode producer and the render consumer. The audio engine
// pulls from it through Read; the decode goroutine pushes through Produce.
type rendererContext struct {
	pctx       *playerContext
	thresholds rendererThresholds
	hooks      rendererHooks

	sampleRate int
	channels   int

	mu         sync.Mutex
	samples    []float32
	frameStart int
	frameUsed  int
	frameTotal int

	// space carries at most one pending wakeup for a producer blocked on a
	// full buffer.
	space chan struct{}

	volumeBits atomic.Uint64
	rateBits   atomic.Uint64

	scratch []float32
}

func newRendererContext(pctx *playerContext, format decoder.Format, bufferSeconds float64, th rendererThresholds) *rendererContext {
	frames := int(float64(format.SampleRate) * bufferSeconds)
	if frames < 1 {
		frames = format.SampleRate
	}
	r := &rendererContext{
		pctx:       pctx,
		thresholds: th,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		samples:    make([]float32, frames*format.Channels),
		frameTotal: frames,
		space:      make(chan struct{}, 1),
	}
	r.SetVolume(1.0)
	r.SetRate(1.0)
	return r
}

func (r *rendererContext) Format() decoder.Format {
	return decoder.Format{SampleRate: r.sampleRate, Channels: r.channels}
}

func (r *rendererContext) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	r.volumeBits.Store(math.Float64bits(v))
}

func (r *rendererContext) Volume() float64 {
	return math.Float64frombits(r.volumeBits.Load())
}

func (r *rendererContext) SetRate(rate float64) {
	r.rateBits.Store(math.Float64bits(rate))
}

func (r *rendererContext) Rate() float64 {
	return math.Float64frombits(r.rateBits.Load())
}

func (r *rendererContext) Used() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameUsed
}

func (r *rendererContext) Capacity() int {
	return r.frameTotal
}

// Reset discards all buffered frames and wakes a blocked producer. Used
// after a seek and when tearing down between tracks.
func (r *rendererContext) Reset() {
	r.mu.Lock()
	r.frameStart = 0
	r.frameUsed = 0
	r.mu.Unlock()
	r.signalSpace()
}

func (r *rendererContext) signalSpace() {
	select {
	case r.space <- struct{}{}:
	default:
	}
}

// producerMayFill reports whether the decode goroutine should keep filling.
// Teardown states and a pending seek on the playing entry abandon the fill
// so stale frames are not written.
func (r *rendererContext) producerMayFill() bool {
	switch r.pctx.state() {
	case StateStopped, StatePendingNext, StateDisposed, StateErrored:
		return false
	}
	if e := r.pctx.playingEntry(); e != nil && e.HasPendingSeek() {
		return false
	}
	return true
}

// Produce copies interleaved frames into the ring, blocking in bounded
// slices while the buffer is full. It returns the frames written and false
// when the fill was abandoned because of teardown, a pending seek, or the
// alive check reporting false (a detached producer). alive may be nil.
func (r *rendererContext) Produce(samples []float32, alive func() bool) (int, bool) {
	frames := len(samples) / r.channels
	written := 0

	r.mu.Lock()
	for written < frames {
		if !r.producerMayFill() || (alive != nil && !alive()) {
			r.mu.Unlock()
			return written, false
		}
		free := r.frameTotal - r.frameUsed
		if free == 0 {
			r.mu.Unlock()
			select {
			case <-r.space:
			case <-time.After(producerWaitSlice):
			}
			r.mu.Lock()
			continue
		}

		n := frames - written
		if n > free {
			n = free
		}
		end := (r.frameStart + r.frameUsed) % r.frameTotal
		src := samples[written*r.channels : (written+n)*r.channels]
		r.copyIn(end, src)
		r.frameUsed += n
		written += n
	}
	r.mu.Unlock()
	return written, true
}

// copyIn writes n frames starting at frame index end, splitting the copy in
// two when it crosses the physical end of the backing array.
func (r *rendererContext) copyIn(end int, src []float32) {
	n := len(src) / r.channels
	tail := r.frameTotal - end
	if n <= tail {
		copy(r.samples[end*r.channels:], src)
		return
	}
	copy(r.samples[end*r.channels:], src[:tail*r.channels])
	copy(r.samples, src[tail*r.channels:])
}

// copyOut reads n frames from frameStart into dst and advances the cursor.
// Caller holds the lock and guarantees n <= frameUsed.
func (r *rendererContext) copyOut(dst []float32, n int) {
	tail := r.frameTotal - r.frameStart
	if n <= tail {
		copy(dst, r.samples[r.frameStart*r.channels:(r.frameStart+n)*r.channels])
	} else {
		copy(dst, r.samples[r.frameStart*r.channels:])
		copy(dst[tail*r.channels:], r.samples[:(n-tail)*r.channels])
	}
	r.frameStart = (r.frameStart + n) % r.frameTotal
	r.frameUsed -= n
}

// requiredFrames returns the occupancy needed before output starts in the
// given state, clamped so a short final track still plays.
func (r *rendererContext) requiredFrames(state InternalState, e *AudioEntry) int64 {
	var required int64
	switch state {
	case StateWaitingForData:
		required = r.thresholds.startFrames
	case StateRebuffering:
		required = r.thresholds.underrunFrames
	case StateWaitingForDataAfterSeek:
		required = r.thresholds.seekFrames
	default:
		return 1
	}
	if e != nil {
		if last := e.LastFrameQueued(); last >= 0 {
			remaining := last - e.FramesPlayed()
			if remaining < required {
				required = remaining
			}
		}
	}
	if required < 1 {
		required = 1
	}
	return required
}

// Read is the render callback: the audio engine pulls little-endian float32
// samples from here on its own goroutine. Shortfalls are filled with
// silence, never with an error, so the engine keeps running across
// underruns and track changes.
func (r *rendererContext) Read(p []byte) (int, error) {
	bytesPerFrame := 4 * r.channels
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return len(p), nil
	}

	state := r.pctx.state()
	entry := r.pctx.playingEntry()

	switch state {
	case StatePlaying, StateWaitingForData, StateRebuffering, StateWaitingForDataAfterSeek:
	default:
		// Paused, stopped, between tracks: keep the clock running on
		// silence without touching the buffer.
		writeSilence(p)
		return len(p), nil
	}

	// A playing entry whose last frame was already rendered can never be
	// finished by crediting (there is nothing left to credit). Catch it here
	// so the end-of-stream race does not strand playback.
	if entry != nil && entry.finishIfDrained() {
		if r.hooks.entryFinished != nil {
			r.hooks.entryFinished(entry)
		}
		writeSilence(p)
		r.signalSpace()
		return len(p), nil
	}

	r.mu.Lock()
	if state != StatePlaying {
		required := r.requiredFrames(state, entry)
		if int64(r.frameUsed) < required {
			r.mu.Unlock()
			writeSilence(p)
			return len(p), nil
		}
		r.mu.Unlock()
		if !r.pctx.setInternalState(StatePlaying, func(cur InternalState) bool { return cur == state }) {
			writeSilence(p)
			return len(p), nil
		}
		if r.hooks.thresholdMet != nil {
			r.hooks.thresholdMet(entry, state)
		}
		r.mu.Lock()
	}

	if r.frameUsed == 0 {
		r.mu.Unlock()
		// Underrun. Unless the entry already drained its final frame, fall
		// back to rebuffering and play silence until refilled.
		if entry != nil && (entry.LastFrameQueued() < 0 || entry.FramesPlayed() < entry.LastFrameQueued()) {
			r.pctx.setInternalState(StateRebuffering, func(cur InternalState) bool { return cur == StatePlaying })
		}
		writeSilence(p)
		r.signalSpace()
		return len(p), nil
	}

	rate := r.Rate()
	out := make([]float32, frames*r.channels)
	var outFrames, consumed int
	if rate == 1.0 {
		consumed = frames
		if consumed > r.frameUsed {
			consumed = r.frameUsed
		}
		r.copyOut(out, consumed)
		outFrames = consumed
	} else {
		outFrames, consumed = r.copyOutResampled(out, frames, rate)
	}
	used := r.frameUsed
	r.mu.Unlock()

	if r.pctx.isMuted() {
		// Cursor already advanced; position keeps moving while muted.
		for i := range out {
			out[i] = 0
		}
	} else if vol := r.Volume(); vol != 1.0 {
		v := float32(vol)
		for i := range out {
			out[i] *= v
		}
	}

	for i := 0; i < outFrames*r.channels; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(out[i]))
	}
	writeSilence(p[outFrames*bytesPerFrame:])

	finished := false
	if entry != nil && consumed > 0 {
		credited, done := entry.addFramesPlayed(int64(consumed))
		if done {
			finished = true
			leftover := int64(consumed) - credited
			if r.hooks.entryFinished != nil {
				if next := r.hooks.entryFinished(entry); next != nil && leftover > 0 {
					next.addFramesPlayed(leftover)
				}
			}
		}
	}

	if finished || float64(used) < float64(r.frameTotal)*r.thresholds.consumedFraction {
		r.signalSpace()
	}
	return len(p), nil
}

// copyOutResampled consumes frames at the playback rate and writes
// nearest-neighbor resampled output. Caller holds the lock.
func (r *rendererContext) copyOutResampled(out []float32, wantFrames int, rate float64) (outFrames, consumed int) {
	consumed = int(float64(wantFrames) * rate)
	if consumed < 1 {
		consumed = 1
	}
	if consumed > r.frameUsed {
		consumed = r.frameUsed
	}
	if cap(r.scratch) < consumed*r.channels {
		r.scratch = make([]float32, consumed*r.channels)
	}
	scratch := r.scratch[:consumed*r.channels]
	r.copyOut(scratch, consumed)

	outFrames = int(float64(consumed) / rate)
	if outFrames > wantFrames {
		outFrames = wantFrames
	}
	if outFrames < 1 && consumed > 0 {
		outFrames = 1
	}
	step := float64(consumed) / float64(outFrames)
	for i := 0; i < outFrames; i++ {
		src := int(float64(i) * step)
		if src >= consumed {
			src = consumed - 1
		}
		copy(out[i*r.channels:(i+1)*r.channels], scratch[src*r.channels:(src+1)*r.channels])
	}
	return outFrames, consumed
}

func writeSilence(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
