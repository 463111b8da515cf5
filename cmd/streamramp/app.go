package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/streamramp/streamramp/internal/config"
	"github.com/streamramp/streamramp/internal/history"
	"github.com/streamramp/streamramp/internal/logger"
	"github.com/streamramp/streamramp/internal/network"
	"github.com/streamramp/streamramp/internal/playback"
)

// app wires the player to the console and the history store.
type app struct {
	cfg    *config.Config
	store  *history.Store
	player *playback.Player

	mu      sync.Mutex
	urls    map[string]string // entry id -> resolved URL
	pending int // entries not yet finished or cancelled

	done chan struct{}
	once sync.Once
}

func newApp(cfg *config.Config, store *history.Store) *app {
	a := &app{
		cfg:   cfg,
		store: store,
		urls:  make(map[string]string),
		done:  make(chan struct{}),
	}
	a.player = playback.NewPlayer(cfg, a)
	return a
}

// play resolves playlist URLs and starts the first entry, queueing the rest.
func (a *app) play(rawURLs []string, volume, rate float64, muted bool) error {
	if volume >= 0 {
		a.player.SetVolume(volume)
	}
	if rate != 1.0 {
		if err := a.player.SetRate(rate); err != nil {
			return err
		}
	}
	a.player.SetMuted(muted)

	for i, raw := range rawURLs {
		streamURL, err := network.ResolveStreamURL(raw)
		if err != nil {
			return fmt.Errorf("cannot resolve %s: %w", raw, err)
		}
		if streamURL != raw {
			logger.Info("Resolved playlist",
				logger.String("playlist", raw),
				logger.String("stream", streamURL))
		}

		var id string
		if i == 0 {
			id, err = a.player.Play(streamURL, nil)
		} else {
			id, err = a.player.Enqueue(streamURL, nil)
		}
		if err != nil {
			return err
		}

		a.mu.Lock()
		a.urls[id] = streamURL
		a.pending++
		a.mu.Unlock()
	}
	return nil
}

// wait blocks until every entry has finished or the user interrupts.
func (a *app) wait() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigs:
			fmt.Println("\ninterrupted")
			a.player.Stop()
			return
		case <-a.done:
			return
		case <-ticker.C:
			a.snapshotProgress()
		}
	}
}

// snapshotProgress paints a status line for the playing entry.
func (a *app) snapshotProgress() {
	id := a.player.CurrentEntryID()
	if id == "" {
		return
	}
	progress := a.player.Progress()
	state, _ := a.player.State()
	if duration := a.player.Duration(); duration > 0 {
		fmt.Printf("\r%-10s %7.1fs / %.1fs", state, progress, duration)
	} else {
		fmt.Printf("\r%-10s %7.1fs", state, progress)
	}
}

func (a *app) shutdown() {
	a.player.Dispose()
}

func (a *app) finishOne(n int) {
	a.mu.Lock()
	a.pending -= n
	remaining := a.pending
	a.mu.Unlock()
	if remaining <= 0 {
		a.once.Do(func() { close(a.done) })
	}
}

func (a *app) urlFor(entryID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.urls[entryID]
}

// playback.Delegate implementation. Calls arrive on the player's
// notification goroutine.

func (a *app) StateChanged(state playback.PlayerState, reason playback.StopReason) {
	logger.Debug("Player state changed",
		logger.String("state", state.String()),
		logger.String("reason", reason.String()))
	if state == playback.PlayerError {
		a.once.Do(func() { close(a.done) })
	}
}

func (a *app) DidStartPlaying(entryID string) {
	url := a.urlFor(entryID)
	fmt.Printf("\nplaying %s\n", url)
	if a.store != nil {
		if _, err := a.store.RecordStart(entryID, url, ""); err != nil {
			logger.Warn("Failed to record playback start", logger.Error(err))
		}
	}
}

func (a *app) DidFinishBuffering(entryID string) {
	logger.Debug("Buffering complete", logger.String("entry", entryID))
}

func (a *app) DidFinishPlaying(entryID string, reason playback.StopReason, progress, duration float64) {
	fmt.Printf("\nfinished %s\n", a.urlFor(entryID))
	if a.store != nil {
		if err := a.store.RecordFinish(entryID, progress, reason.String()); err != nil && err != history.ErrRecordNotFound {
			logger.Warn("Failed to record playback finish", logger.Error(err))
		}
	}
	a.finishOne(1)
}

func (a *app) DidCancelQueued(entryIDs []string) {
	a.finishOne(len(entryIDs))
}

func (a *app) MetadataReceived(entryID string, fields map[string]string) {
	title := fields["StreamTitle"]
	if title == "" {
		return
	}
	fmt.Printf("\nnow: %s\n", title)
	if a.store != nil {
		if err := a.store.RecordTitle(entryID, title); err != nil && err != history.ErrRecordNotFound {
			logger.Warn("Failed to record stream title", logger.Error(err))
		}
	}
}

func (a *app) UnexpectedError(entryID string, err error) {
	fmt.Fprintf(os.Stderr, "\nplayback error: %v\n", err)
	a.finishOne(1)
}
