package playback

import (
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamramp/streamramp/internal/config"
	"github.com/streamramp/streamramp/internal/decoder"
	"github.com/streamramp/streamramp/internal/logger"
	"github.com/streamramp/streamramp/internal/network"
	"github.com/streamramp/streamramp/internal/output"
)

// errPipelineDetached closes a stream buffer whose decode goroutine should
// exit without reporting anything.
var errPipelineDetached = errors.New("pipeline detached")

const decodeChunkFrames = 4096

// SourceFactory builds the byte source for a URL. Injectable for tests.
type SourceFactory func(rawURL string, headers map[string]string, delegate network.SourceDelegate) (network.AudioSource, error)

// DecoderFactory builds a decoder for a byte stream. Injectable for tests.
type DecoderFactory func(contentType string, r io.Reader) (decoder.StreamDecoder, error)

// Player is the playback orchestrator. All mutations run on a single control
// goroutine fed by a command channel; a periodic tick re-invokes
// processSource to drive queue promotion and seek/EOF bookkeeping. The render
// goroutine and network pumps never touch player fields directly.
type Player struct {
	cfg        *config.Config
	pctx       *playerContext
	queue      *entryQueue
	dispatcher *eventDispatcher
	engine     output.Engine
	newSource  SourceFactory
	newDecoder DecoderFactory

	commands chan func()
	quit     chan struct{}
	runDone  chan struct{}

	// Control-goroutine-owned fields.
	pipeline     *pipeline
	tickerPaused bool
	pausedFrom   InternalState

	// renderer is written on the control goroutine and read from caller
	// goroutines (Seek, SetVolume, SetRate), hence the atomic pointer.
	renderer atomic.Pointer[rendererContext]

	volumeBits atomic.Uint64
	rateBits   atomic.Uint64

	disposeOnce sync.Once
}

// pipeline is one decode chain: source bytes flow through buf into the
// decoder, whose frames the decode goroutine pushes into the renderer.
type pipeline struct {
	entry    *AudioEntry
	source   network.AudioSource
	buf      *decoder.StreamBuffer
	detached atomic.Bool
	done     chan struct{}
}

func (pl *pipeline) detach() {
	pl.detached.Store(true)
	pl.buf.CloseWithError(errPipelineDetached)
}

// Option customizes a Player.
type Option func(*Player)

// WithEngine replaces the audio output engine.
func WithEngine(e output.Engine) Option {
	return func(p *Player) { p.engine = e }
}

// WithSourceFactory replaces how network sources are built.
func WithSourceFactory(f SourceFactory) Option {
	return func(p *Player) { p.newSource = f }
}

// WithDecoderFactory replaces how decoders are built.
func WithDecoderFactory(f DecoderFactory) Option {
	return func(p *Player) { p.newDecoder = f }
}

func NewPlayer(cfg *config.Config, delegate Delegate, opts ...Option) *Player {
	p := &Player{
		cfg:        cfg,
		pctx:       newPlayerContext(),
		queue:      newEntryQueue(),
		dispatcher: newEventDispatcher(delegate),
		engine:     output.NewOtoEngine(),
		commands:   make(chan func(), 64),
		quit:       make(chan struct{}),
		runDone:    make(chan struct{}),
	}
	p.newDecoder = decoder.NewStreamDecoder
	p.newSource = func(rawURL string, headers map[string]string, d network.SourceDelegate) (network.AudioSource, error) {
		return network.NewRemoteSource(rawURL, headers, d, &network.RemoteSourceOptions{
			Timeout:        cfg.Network.Timeout,
			UserAgent:      cfg.Network.UserAgent,
			ReadBufferSize: cfg.Network.ReadBufferSize,
		})
	}
	for _, opt := range opts {
		opt(p)
	}

	p.setVolumeValue(cfg.Playback.Volume)
	p.rateBits.Store(rateToBits(1.0))

	p.pctx.onStateChange = func(old, new PlayerState) {
		_, reason := p.pctx.publicState()
		p.dispatcher.dispatch(func(d Delegate) { d.StateChanged(new, reason) })
	}

	go p.run()
	return p
}

func (p *Player) run() {
	defer close(p.runDone)
	ticker := time.NewTicker(p.cfg.Playback.ProcessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case fn := <-p.commands:
			fn()
		case <-ticker.C:
			if !p.tickerPaused {
				p.processSource()
			}
		}
	}
}

// post queues a command for the control goroutine. Returns false once the
// player is disposed.
func (p *Player) post(fn func()) bool {
	select {
	case p.commands <- fn:
		return true
	case <-p.quit:
		return false
	}
}

// tryPost is the non-blocking variant for the render goroutine; a dropped
// command is recovered by the next tick.
func (p *Player) tryPost(fn func()) {
	select {
	case p.commands <- fn:
	default:
	}
}

// call runs fn on the control goroutine and waits for it.
func (p *Player) call(fn func()) bool {
	done := make(chan struct{})
	if !p.post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-p.quit:
		return false
	}
}

// Play starts playback of the URL, replacing whatever is queued or playing.
// Entries already waiting are dropped and reported as cancelled. Returns the
// new entry's identifier.
func (p *Player) Play(rawURL string, headers map[string]string) (string, error) {
	entry := newAudioEntry(rawURL, headers)
	if !p.post(func() {
		p.cancelQueued()
		p.queue.enqueue(entry)
		p.pctx.setInternalState(StatePendingNext, nil)
		if r := p.renderer.Load(); r != nil {
			r.signalSpace()
		}
		p.tickerPaused = false
		p.processSource()
	}) {
		return "", ErrPlayerDisposed
	}
	return entry.ID(), nil
}

// Enqueue appends the URL behind the current entry without interrupting it.
// When the player is idle the entry starts playing immediately. Returns the
// new entry's identifier.
func (p *Player) Enqueue(rawURL string, headers map[string]string) (string, error) {
	entry := newAudioEntry(rawURL, headers)
	if !p.post(func() {
		p.queue.enqueue(entry)
		switch p.pctx.state() {
		case StateInitial, StateStopped:
			p.pctx.setInternalState(StatePendingNext, nil)
			p.tickerPaused = false
		}
		p.processSource()
	}) {
		return "", ErrPlayerDisposed
	}
	return entry.ID(), nil
}

// Stop halts playback and clears the queue. Idempotent.
func (p *Player) Stop() error {
	if !p.post(func() { p.stopLocked(StopReasonUserAction) }) {
		return ErrPlayerDisposed
	}
	return nil
}

// Pause suspends output and the network pump. Only meaningful while running.
func (p *Player) Pause() error {
	if !p.post(func() {
		cur := p.pctx.state()
		switch cur {
		case StatePlaying, StateRebuffering, StateWaitingForData,
			StateWaitingForDataAfterSeek, StatePendingNext, StateRunning:
		default:
			return
		}
		p.pausedFrom = cur
		if err := p.engine.Pause(); err != nil && !errors.Is(err, output.ErrEngineNotStarted) {
			logger.Warn("engine pause failed", logger.Error(err))
		}
		if p.pipeline != nil {
			p.pipeline.source.Suspend()
		}
		p.tickerPaused = true
		p.pctx.setInternalState(StatePaused, func(c InternalState) bool { return c == cur })
	}) {
		return ErrPlayerDisposed
	}
	return nil
}

// Resume continues after Pause. A seek requested while paused is serviced
// with fresh buffers before audio restarts.
func (p *Player) Resume() error {
	if !p.post(func() {
		if p.pctx.state() != StatePaused {
			return
		}
		if err := p.engine.Resume(); err != nil && !errors.Is(err, output.ErrEngineNotStarted) {
			logger.Warn("engine resume failed", logger.Error(err))
		}
		reading := p.pctx.readingEntry()
		if reading != nil && reading.HasPendingSeek() {
			if r := p.renderer.Load(); r != nil {
				r.Reset()
			}
		}
		restored := p.pausedFrom
		if restored == StatePaused || restored == StateInitial {
			restored = StateWaitingForData
		}
		p.pctx.setInternalState(restored, func(c InternalState) bool { return c == StatePaused })
		if p.pipeline != nil {
			p.pipeline.source.Resume()
		}
		p.tickerPaused = false
		p.processSource()
	}) {
		return ErrPlayerDisposed
	}
	return nil
}

// Seek requests a jump to the given position in seconds on the playing
// entry. On live streams without a known length the request is quietly
// dropped. A newer request supersedes an in-flight one.
func (p *Player) Seek(seconds float64) error {
	entry := p.pctx.playingEntry()
	if entry == nil {
		return ErrNothingPlaying
	}
	entry.RequestSeek(seconds)
	if src := entry.Source(); src != nil {
		src.Suspend()
	}
	if r := p.renderer.Load(); r != nil {
		r.signalSpace()
	}
	p.tryPost(p.processSource)
	return nil
}

// Progress returns the playback position of the playing entry in seconds.
func (p *Player) Progress() float64 {
	if e := p.pctx.playingEntry(); e != nil {
		return e.Progress()
	}
	return 0
}

// Duration returns the playing entry's duration in seconds, 0 when unknown.
func (p *Player) Duration() float64 {
	if e := p.pctx.playingEntry(); e != nil {
		return e.Duration()
	}
	return 0
}

// State returns the public player state and stop reason.
func (p *Player) State() (PlayerState, StopReason) {
	return p.pctx.publicState()
}

// CurrentEntryID returns the playing entry's identifier, "" when idle.
func (p *Player) CurrentEntryID() string {
	if e := p.pctx.playingEntry(); e != nil {
		return e.ID()
	}
	return ""
}

func (p *Player) SetMuted(muted bool) {
	p.pctx.setMuted(muted)
}

func (p *Player) Muted() bool {
	return p.pctx.isMuted()
}

func (p *Player) SetVolume(v float64) {
	p.setVolumeValue(v)
	if r := p.renderer.Load(); r != nil {
		r.SetVolume(v)
	}
}

func (p *Player) Volume() float64 {
	return bitsToRate(p.volumeBits.Load())
}

// SetRate adjusts playback speed. Accepted range is 0.25x to 4x.
func (p *Player) SetRate(rate float64) error {
	if rate < 0.25 || rate > 4.0 {
		return ErrInvalidRate
	}
	p.rateBits.Store(rateToBits(rate))
	if r := p.renderer.Load(); r != nil {
		r.SetRate(rate)
	}
	return nil
}

func (p *Player) Rate() float64 {
	return bitsToRate(p.rateBits.Load())
}

// Dispose stops playback and releases the control goroutine and dispatcher.
// The player is unusable afterwards.
func (p *Player) Dispose() {
	p.disposeOnce.Do(func() {
		p.call(func() {
			p.stopLocked(StopReasonUserAction)
			p.pctx.setInternalState(StateDisposed, nil)
			close(p.quit)
		})
		<-p.runDone
		p.dispatcher.close()
	})
}

// processSource is the heart of the control loop: it services pending seeks,
// promotes queued entries into the reading slot, and stops the player when
// everything has drained. Invoked by commands and by the periodic tick.
func (p *Player) processSource() {
	switch p.pctx.state() {
	case StateInitial, StatePaused, StateStopped, StateDisposed, StateErrored:
		return
	case StatePendingNext:
		p.teardownCurrent()
	}

	reading, playing := p.pctx.entries()

	if playing != nil && playing.HasPendingSeek() {
		p.performSeek(playing)
		return
	}

	if reading != nil {
		return
	}

	// With prefetch disabled, the next entry waits until the current one
	// has finished rendering.
	if playing != nil && !p.cfg.Playback.GaplessPrefetch {
		return
	}

	next, ok := p.queue.dequeue()
	if !ok {
		if playing == nil {
			p.stopLocked(StopReasonEOF)
		}
		return
	}

	p.startReading(next)
	if p.pctx.playingEntry() == nil {
		p.pctx.setPlayingEntry(next)
		p.pctx.setInternalState(StateWaitingForData, func(c InternalState) bool {
			switch c {
			case StatePaused, StateStopped, StateDisposed, StateErrored:
				return false
			}
			return true
		})
	}
}

// teardownCurrent drops the current reading and playing entries in
// preparation for a replacement track.
func (p *Player) teardownCurrent() {
	if p.pipeline != nil {
		p.pipeline.detach()
		p.pipeline.source.Close()
		p.pipeline = nil
	}
	reading, playing := p.pctx.entries()
	if playing != nil {
		p.notifyFinished(playing, StopReasonUserAction)
	}
	if reading != nil && reading != playing {
		if src := reading.Source(); src != nil {
			src.Close()
		}
	}
	p.pctx.setReadingEntry(nil)
	p.pctx.setPlayingEntry(nil)
	if r := p.renderer.Load(); r != nil {
		r.Reset()
	}
}

// notifyFinished reports the end of an entry with its final position
// captured before the entry is released.
func (p *Player) notifyFinished(e *AudioEntry, reason StopReason) {
	id := e.ID()
	progress := e.Progress()
	duration := e.Duration()
	p.dispatcher.dispatch(func(d Delegate) { d.DidFinishPlaying(id, reason, progress, duration) })
}

// startReading opens (or reuses) the entry's source and launches its decode
// goroutine.
func (p *Player) startReading(entry *AudioEntry) {
	buf := decoder.NewStreamBuffer(p.cfg.Network.StreamBufferKB * 1024)
	pl := &pipeline{
		entry: entry,
		buf:   buf,
		done:  make(chan struct{}),
	}

	if entry.Source() == nil {
		src, err := p.newSource(entry.URL(), entry.headers, &sourceBridge{p: p, pl: pl})
		if err != nil {
			if playing := p.pctx.playingEntry(); playing != nil && playing != entry {
				logger.Warn("dropping queued entry after error",
					logger.String("entry", entry.ID()),
					logger.Error(err))
				id := entry.ID()
				p.dispatcher.dispatch(func(d Delegate) { d.DidCancelQueued([]string{id}) })
				return
			}
			p.failEntry(ErrorKindNetwork, entry, err)
			return
		}
		entry.attachSource(src)
	}
	pl.source = entry.Source()

	p.pipeline = pl
	p.pctx.setReadingEntry(entry)

	if err := pl.source.Open(); err != nil {
		p.reportPipelineError(pl, ErrorKindNetwork, err)
		return
	}
	go p.decodeLoop(pl)
}

// reportPipelineError routes a pipeline failure: fatal when the pipeline
// belongs to the playing entry, a quiet drop for one still prefetching.
// Runs on the control goroutine.
func (p *Player) reportPipelineError(pl *pipeline, kind ErrorKind, err error) {
	if p.pipeline != pl {
		return
	}
	if playing := p.pctx.playingEntry(); playing != nil && playing != pl.entry {
		p.dropPrefetched(pl, err)
		return
	}
	p.failEntry(kind, pl.entry, err)
}

// dropPrefetched discards a queued entry whose decode chain failed before it
// ever reached the output. The playing entry is untouched; the dropped entry
// is reported as cancelled.
func (p *Player) dropPrefetched(pl *pipeline, err error) {
	logger.Warn("dropping queued entry after error",
		logger.String("entry", pl.entry.ID()),
		logger.Error(err))
	pl.detach()
	pl.source.Close()
	pl.entry.attachSource(nil)
	p.pipeline = nil
	if p.pctx.readingEntry() == pl.entry {
		p.pctx.setReadingEntry(nil)
	}
	id := pl.entry.ID()
	p.dispatcher.dispatch(func(d Delegate) { d.DidCancelQueued([]string{id}) })
	p.processSource()
}

// performSeek services a pending seek on the playing entry: abandon the
// current decode chain, reset buffers and counters, reissue the network read
// at the mapped byte offset, and start a fresh decode chain on the same
// entry.
func (p *Player) performSeek(entry *AudioEntry) {
	requested, seconds, version := entry.PendingSeek()
	if !requested {
		return
	}

	src := entry.Source()
	offset, ok := entry.seekByteOffset(seconds, p.cfg.Network.ReadBufferSize)
	info := entry.StreamInfo()
	if src == nil || !ok || (!info.SupportsSeek && offset != 0) {
		// Live stream or a server without range support: drop the request
		// and carry on from where we are.
		entry.CompleteSeek(version)
		if src != nil {
			src.Resume()
		}
		return
	}

	if p.pipeline != nil {
		old := p.pipeline
		old.detach()
		if old.entry != entry {
			// A prefetch of the next track was underway; put it back.
			old.source.Close()
			old.entry.attachSource(nil)
			p.queue.pushFront(old.entry)
		}
		p.pipeline = nil
	}

	entry.resetForSeek(seconds)
	if r := p.renderer.Load(); r != nil {
		r.Reset()
	}

	buf := decoder.NewStreamBuffer(p.cfg.Network.StreamBufferKB * 1024)
	pl := &pipeline{
		entry:  entry,
		source: src,
		buf:    buf,
		done:   make(chan struct{}),
	}
	p.rebindSource(src, pl)

	p.pipeline = pl
	p.pctx.setReadingEntry(entry)
	p.pctx.setInternalState(StateWaitingForDataAfterSeek, nil)

	src.Seek(offset)
	src.Resume()
	go p.decodeLoop(pl)

	if !entry.CompleteSeek(version) {
		logger.Debug("seek superseded before completion", logger.String("entry", entry.ID()))
	}
}

// decodeLoop pulls frames from the decoder and pushes them into the
// renderer until the stream ends, the pipeline is detached, or an error
// occurs. Runs on its own goroutine, one per pipeline.
func (p *Player) decodeLoop(pl *pipeline) {
	defer close(pl.done)

	dec, err := p.newDecoder(pl.source.Info().ContentType, pl.buf)
	if err != nil {
		switch {
		case errors.Is(err, errPipelineDetached):
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			// Stream ended before a full header arrived.
			p.post(func() { p.finishReading(pl) })
		default:
			p.post(func() { p.reportPipelineError(pl, ErrorKindCodec, err) })
		}
		return
	}
	defer dec.Close()

	format := dec.Format()
	pl.entry.setFormat(format, dec.Duration(), dec.TotalFrames())
	pl.entry.setStreamInfo(pl.source.Info())

	// A format change must wait until the track rendering from the current
	// renderer has finished, so poll until the swap is allowed.
	var renderer *rendererContext
	for {
		var ready bool
		if !p.call(func() { renderer, ready = p.acquireRenderer(pl, format) }) {
			return
		}
		if ready {
			break
		}
		if pl.detached.Load() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if renderer == nil {
		return
	}

	alive := func() bool { return !pl.detached.Load() }
	chunk := make([]float32, decodeChunkFrames*format.Channels)
	for {
		n, decErr := dec.Decode(chunk)
		if n > 0 {
			written, cont := renderer.Produce(chunk[:n*format.Channels], alive)
			pl.entry.addFramesQueued(int64(written))
			if !cont {
				return
			}
		}
		if decErr != nil {
			switch {
			case errors.Is(decErr, decoder.ErrEndOfStream), errors.Is(decErr, io.EOF):
				p.post(func() { p.finishReading(pl) })
			case errors.Is(decErr, errPipelineDetached):
			default:
				p.post(func() { p.reportPipelineError(pl, ErrorKindCodec, decErr) })
			}
			return
		}
	}
}

// finishReading runs when the decoder drained the stream: freeze the
// entry's frame count, release the source, clear the reading slot, and let
// processSource promote whatever comes next.
func (p *Player) finishReading(pl *pipeline) {
	if p.pipeline != pl {
		return
	}
	pl.entry.finishQueuing()
	pl.source.Close()
	pl.entry.attachSource(nil)
	p.pipeline = nil
	if p.pctx.readingEntry() == pl.entry {
		p.pctx.setReadingEntry(nil)
	}
	// End of stream after the ring already drained: the render path has no
	// frames left to credit, so the finish is detected right here.
	if p.pctx.playingEntry() == pl.entry && pl.entry.finishIfDrained() {
		p.onEntryFinished(pl.entry)
	}
	p.processSource()
}

// acquireRenderer lazily creates the renderer and starts the engine,
// replacing both when the stream format changes between tracks. A swap while
// a different entry is still rendering would throw its buffered frames away,
// so in that case ready is false and the caller retries after that entry
// finishes. Runs on the control goroutine; a nil renderer with ready true
// means the engine could not start.
func (p *Player) acquireRenderer(pl *pipeline, format decoder.Format) (r *rendererContext, ready bool) {
	if cur := p.renderer.Load(); cur != nil {
		if cur.Format() == format {
			return cur, true
		}
		if playing := p.pctx.playingEntry(); playing != nil && playing != pl.entry {
			return nil, false
		}
		if err := p.engine.Stop(); err != nil && !errors.Is(err, output.ErrEngineNotStarted) {
			logger.Warn("engine stop failed", logger.Error(err))
		}
	}

	sr := float64(format.SampleRate)
	r = newRendererContext(p.pctx, format, p.cfg.Playback.BufferSeconds, rendererThresholds{
		startFrames:      int64(p.cfg.Playback.SecondsToStartPlaying * sr),
		underrunFrames:   int64(p.cfg.Playback.SecondsAfterUnderrun * sr),
		seekFrames:       int64(p.cfg.Playback.FramesAfterSeek),
		consumedFraction: p.cfg.Playback.ConsumedSignalFraction,
	})
	r.SetVolume(p.Volume())
	r.SetRate(p.Rate())
	r.hooks = rendererHooks{
		thresholdMet:  p.onThresholdMet,
		entryFinished: p.onEntryFinished,
	}

	if err := p.engine.Start(output.Format{SampleRate: format.SampleRate, Channels: format.Channels}, r); err != nil {
		p.failEntry(ErrorKindAudioSystem, p.pctx.playingEntry(), err)
		return nil, true
	}
	p.renderer.Store(r)
	return r, true
}

// onThresholdMet runs on the render goroutine when buffering satisfied its
// threshold and audible output is about to begin.
func (p *Player) onThresholdMet(e *AudioEntry, from InternalState) {
	if e == nil {
		return
	}
	id := e.ID()
	p.dispatcher.dispatch(func(d Delegate) { d.DidFinishBuffering(id) })
	if e.markStarted() {
		p.dispatcher.dispatch(func(d Delegate) { d.DidStartPlaying(id) })
	}
}

// onEntryFinished runs on the render goroutine when the playing entry's last
// frame was rendered. It promotes the entry already being read, if any, so
// consecutive tracks play gaplessly.
func (p *Player) onEntryFinished(e *AudioEntry) *AudioEntry {
	p.notifyFinished(e, StopReasonEOF)

	reading := p.pctx.readingEntry()
	if reading != nil && reading != e {
		p.pctx.setPlayingEntry(reading)
		if reading.markStarted() {
			nextID := reading.ID()
			p.dispatcher.dispatch(func(d Delegate) { d.DidStartPlaying(nextID) })
		}
		return reading
	}

	p.pctx.setPlayingEntry(nil)
	p.tryPost(p.processSource)
	return nil
}

// stopLocked is the shared stop path. Runs on the control goroutine.
func (p *Player) stopLocked(reason StopReason) {
	if p.pctx.state() == StateStopped {
		return
	}
	p.pctx.setStopped(reason)
	p.tickerPaused = true

	if p.pipeline != nil {
		p.pipeline.detach()
		p.pipeline.source.Close()
		p.pipeline = nil
	}

	reading, playing := p.pctx.entries()
	if playing != nil {
		p.notifyFinished(playing, reason)
	}
	if reading != nil {
		if src := reading.Source(); src != nil {
			src.Close()
			reading.attachSource(nil)
		}
	}
	p.pctx.setReadingEntry(nil)
	p.pctx.setPlayingEntry(nil)

	p.cancelQueued()

	if r := p.renderer.Load(); r != nil {
		r.Reset()
	}
	if err := p.engine.Stop(); err != nil && !errors.Is(err, output.ErrEngineNotStarted) {
		logger.Warn("engine stop failed", logger.Error(err))
	}
}

// cancelQueued empties the queue and reports the dropped entries.
func (p *Player) cancelQueued() {
	removed := p.queue.removeAll()
	if len(removed) == 0 {
		return
	}
	ids := make([]string, 0, len(removed))
	for _, e := range removed {
		ids = append(ids, e.ID())
		if src := e.Source(); src != nil {
			src.Close()
			e.attachSource(nil)
		}
	}
	p.dispatcher.dispatch(func(d Delegate) { d.DidCancelQueued(ids) })
}

// failEntry tears playback down after an unrecoverable error and reports it.
func (p *Player) failEntry(kind ErrorKind, entry *AudioEntry, err error) {
	entryID := ""
	if entry != nil {
		entryID = entry.ID()
	}
	perr := newPlaybackError(kind, entryID, err)
	logger.ErrorLog("playback failed",
		logger.String("kind", kind.String()),
		logger.String("entry", entryID),
		logger.Error(err))

	if p.pipeline != nil {
		p.pipeline.detach()
		p.pipeline.source.Close()
		p.pipeline = nil
	}
	if entry != nil {
		if src := entry.Source(); src != nil {
			src.Close()
			entry.attachSource(nil)
		}
	}
	p.pctx.setReadingEntry(nil)
	p.pctx.setPlayingEntry(nil)
	p.cancelQueued()
	if r := p.renderer.Load(); r != nil {
		r.Reset()
	}
	if stopErr := p.engine.Stop(); stopErr != nil && !errors.Is(stopErr, output.ErrEngineNotStarted) {
		logger.Warn("engine stop failed", logger.Error(stopErr))
	}
	p.tickerPaused = true
	p.pctx.setInternalState(StateErrored, nil)
	p.dispatcher.dispatch(func(d Delegate) { d.UnexpectedError(entryID, perr) })
}

// rebindSource points an existing source's delegate at a new pipeline. Only
// RemoteSource supports rebinding; injected test sources handle Seek by
// recreating themselves.
func (p *Player) rebindSource(src network.AudioSource, pl *pipeline) {
	type delegateSetter interface {
		SetDelegate(network.SourceDelegate)
	}
	if ds, ok := src.(delegateSetter); ok {
		ds.SetDelegate(&sourceBridge{p: p, pl: pl})
	}
}

// sourceBridge adapts source events onto one pipeline. Runs on the source's
// pump goroutine.
type sourceBridge struct {
	p  *Player
	pl *pipeline
}

func (b *sourceBridge) DataAvailable(data []byte) {
	if b.pl.detached.Load() {
		return
	}
	b.pl.entry.recordPacket(len(data))
	if _, err := b.pl.buf.Write(data); err != nil && !errors.Is(err, errPipelineDetached) && !errors.Is(err, decoder.ErrBufferClosed) {
		logger.Warn("stream buffer write failed", logger.Error(err))
	}
}

func (b *sourceBridge) MetadataReceived(metadata map[string]string) {
	id := b.pl.entry.ID()
	fields := make(map[string]string, len(metadata))
	for k, v := range metadata {
		fields[k] = v
	}
	b.p.dispatcher.dispatch(func(d Delegate) { d.MetadataReceived(id, fields) })
}

func (b *sourceBridge) EndOfFile() {
	// Let the decoder drain what is buffered; decodeLoop reports the finish.
	b.pl.buf.Close()
}

func (b *sourceBridge) ErrorOccurred(err error) {
	b.pl.buf.CloseWithError(err)
	pl := b.pl
	b.p.post(func() { b.p.reportPipelineError(pl, ErrorKindNetwork, err) })
}

func rateToBits(v float64) uint64 {
	return math.Float64bits(v)
}

func bitsToRate(bits uint64) float64 {
	return math.Float64frombits(bits)
}

func (p *Player) setVolumeValue(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volumeBits.Store(math.Float64bits(v))
}
