package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoEngine implements Engine using the oto library. One oto context is
// created per sample-rate/channel configuration; the context itself cannot be
// torn down, so format changes recreate only the player.
type OtoEngine struct {
	mu      sync.Mutex
	context *oto.Context
	player  *oto.Player
	format  Format
	running bool
}

func NewOtoEngine() *OtoEngine {
	return &OtoEngine{}
}

func (e *OtoEngine) Start(format Format, source io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if format.SampleRate <= 0 || format.Channels <= 0 {
		return ErrInvalidFormat
	}

	if e.player != nil {
		e.player.Close()
		e.player = nil
	}

	if e.context == nil || e.format != format {
		options := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   100 * time.Millisecond,
		}
		context, ready, err := oto.NewContext(options)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEngineStartFailed, err)
		}
		<-ready
		e.context = context
		e.format = format
	}

	e.player = e.context.NewPlayer(source)
	e.player.Play()
	e.running = true
	return nil
}

func (e *OtoEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.player == nil {
		return ErrEngineNotStarted
	}
	e.player.Pause()
	e.running = false
	return nil
}

func (e *OtoEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.player == nil {
		return ErrEngineNotStarted
	}
	e.player.Play()
	e.running = true
	return nil
}

func (e *OtoEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.player != nil {
		e.player.Close()
		e.player = nil
	}
	e.running = false
	return nil
}

func (e *OtoEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}
