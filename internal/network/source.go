// Package network provides the HTTP audio byte source feeding the playback
// pipeline, plus station directory and playlist helpers.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/streamramp/streamramp/internal/icy"
	"github.com/streamramp/streamramp/internal/logger"
)

var (
	ErrInvalidURL    = errors.New("invalid URL")
	ErrSourceClosed  = errors.New("source closed")
	ErrStreamStatus  = errors.New("unexpected stream status")
)

// SourceDelegate receives source events. Data events carry audio-only bytes;
// ICY metadata blocks are stripped by the source and delivered separately.
// After zero or more DataAvailable calls exactly one terminal event follows:
// EndOfFile or ErrorOccurred.
type SourceDelegate interface {
	DataAvailable(data []byte)
	MetadataReceived(metadata map[string]string)
	EndOfFile()
	ErrorOccurred(err error)
}

// StreamInfo is what the first response's headers reveal about the stream.
type StreamInfo struct {
	ContentLength int64 // total resource length in bytes, 0 if unknown
	ContentType   string
	SupportsSeek  bool // server advertised byte-range support
	MetadataStep  int  // icy-metaint, 0 when no interleaved metadata
	Bitrate       int  // bits per second from icy-br, 0 if unknown
	Name          string
}

// AudioSource is a byte stream for one URL.
type AudioSource interface {
	// Open starts the read pump. Events are delivered on the pump's
	// goroutine.
	Open() error

	// Seek cancels the in-flight request and reopens at the byte offset.
	// If the server does not support range requests and the offset is
	// mid-stream, the call is a no-op.
	Seek(offset int64)

	// Suspend pauses the read pump without dropping the connection.
	Suspend()

	// Resume continues a suspended pump.
	Resume()

	Close() error

	// Position returns the resource byte offset of the next unread byte.
	Position() int64

	Info() StreamInfo
	URL() string
}

// RemoteSource streams a URL over HTTP(S).
type RemoteSource struct {
	rawURL   string
	headers  map[string]string
	client   *http.Client
	delegate SourceDelegate
	readSize int

	mu        sync.Mutex
	cond      *sync.Cond
	cancel    context.CancelFunc
	session   int
	position  int64
	info      StreamInfo
	infoKnown bool
	suspended bool
	closed    bool
	opened    bool
}

// RemoteSourceOptions tunes transport behavior.
type RemoteSourceOptions struct {
	Timeout        time.Duration
	UserAgent      string
	ReadBufferSize int
}

func defaultRemoteSourceOptions() RemoteSourceOptions {
	return RemoteSourceOptions{
		Timeout:        30 * time.Second,
		UserAgent:      "StreamRamp/1.0",
		ReadBufferSize: 16384,
	}
}

// NewRemoteSource validates the URL and prepares a source. Nothing touches
// the network until Open.
func NewRemoteSource(rawURL string, headers map[string]string, delegate SourceDelegate, opts *RemoteSourceOptions) (*RemoteSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q not supported", ErrInvalidURL, u.Scheme)
	}

	o := defaultRemoteSourceOptions()
	if opts != nil {
		if opts.Timeout > 0 {
			o.Timeout = opts.Timeout
		}
		if opts.UserAgent != "" {
			o.UserAgent = opts.UserAgent
		}
		if opts.ReadBufferSize > 0 {
			o.ReadBufferSize = opts.ReadBufferSize
		}
	}

	hdrs := make(map[string]string, len(headers)+3)
	for k, v := range headers {
		hdrs[k] = v
	}
	hdrs["Icy-MetaData"] = "1"
	hdrs["Accept"] = "*/*"
	if _, ok := hdrs["User-Agent"]; !ok {
		hdrs["User-Agent"] = o.UserAgent
	}

	s := &RemoteSource{
		rawURL:   rawURL,
		headers:  hdrs,
		delegate: delegate,
		readSize: o.ReadBufferSize,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DisableCompression:    true,
				ResponseHeaderTimeout: o.Timeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

func (s *RemoteSource) URL() string {
	return s.rawURL
}

// SetDelegate swaps the event target. Events already in flight on the pump
// goroutine may still reach the previous delegate.
func (s *RemoteSource) SetDelegate(d SourceDelegate) {
	s.mu.Lock()
	s.delegate = d
	s.mu.Unlock()
}

func (s *RemoteSource) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *RemoteSource) Info() StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *RemoteSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if s.opened {
		return nil
	}
	s.opened = true
	s.startLocked(s.position)
	return nil
}

// Seek cancels the in-flight request and reopens at offset. Per the range
// contract: unsupported mid-stream offsets are ignored, offset 0 always
// reopens plainly.
func (s *RemoteSource) Seek(offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if offset > 0 && s.infoKnown && !s.info.SupportsSeek {
		logger.Warn("Range seek not supported by server, ignoring",
			logger.String("url", s.rawURL),
			logger.Int64("offset", offset),
		)
		return
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.position = offset
	s.suspended = false
	s.startLocked(offset)
}

func (s *RemoteSource) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
}

func (s *RemoteSource) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
	s.cond.Broadcast()
}

func (s *RemoteSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.session++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cond.Broadcast()
	return nil
}

// startLocked launches the request/pump goroutine for a new session. Caller
// holds s.mu.
func (s *RemoteSource) startLocked(offset int64) {
	s.session++
	session := s.session

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.run(ctx, session, offset)
}

func (s *RemoteSource) run(ctx context.Context, session int, offset int64) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.rawURL, nil)
	if err != nil {
		s.emitError(session, fmt.Errorf("%w: %v", ErrInvalidURL, err))
		return
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.emitError(session, fmt.Errorf("failed to connect to stream: %w", err))
		}
		return
	}
	defer resp.Body.Close()

	// 416 means the requested offset is past the end: that is end of file,
	// not an error.
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		s.emitEOF(session)
		return
	}
	if resp.StatusCode >= 300 {
		s.emitError(session, fmt.Errorf("%w: %d", ErrStreamStatus, resp.StatusCode))
		return
	}

	proc := s.applyResponseHeaders(session, resp, offset)
	if proc == nil {
		return // stale session
	}

	s.pump(ctx, session, resp.Body, proc, offset == 0)
}

// streamProcessors holds the per-connection byte post-processing chain.
type streamProcessors struct {
	metadata *icy.Processor
	header   *icy.HeaderScanner
}

type metadataForwarder struct{ s *RemoteSource; session int }

func (f metadataForwarder) MetadataReceived(metadata map[string]string) {
	f.s.mu.Lock()
	stale := f.session != f.s.session || f.s.closed
	d := f.s.delegate
	f.s.mu.Unlock()
	if !stale && d != nil {
		d.MetadataReceived(metadata)
	}
}

func (s *RemoteSource) applyResponseHeaders(session int, resp *http.Response, offset int64) *streamProcessors {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session != s.session || s.closed {
		return nil
	}

	if !s.infoKnown {
		info := StreamInfo{
			ContentType:  resp.Header.Get("Content-Type"),
			SupportsSeek: strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
			Name:         resp.Header.Get("icy-name"),
		}
		if resp.ContentLength > 0 {
			info.ContentLength = offset + resp.ContentLength
		}
		if v := resp.Header.Get("icy-metaint"); v != "" {
			if step, err := strconv.Atoi(v); err == nil && step > 0 {
				info.MetadataStep = step
			}
		}
		if v := resp.Header.Get("icy-br"); v != "" {
			if kbps, err := strconv.Atoi(v); err == nil {
				info.Bitrate = kbps * 1000
			}
		}
		s.info = info
		s.infoKnown = true

		logger.Info("Stream opened",
			logger.String("url", s.rawURL),
			logger.String("content_type", info.ContentType),
			logger.Bool("seekable", info.SupportsSeek),
			logger.Int("metadata_step", info.MetadataStep),
			logger.Int("bitrate", info.Bitrate),
		)
	}

	proc := &streamProcessors{}
	if s.info.MetadataStep > 0 {
		proc.metadata = icy.NewProcessor()
		proc.metadata.SetDelegate(metadataForwarder{s: s, session: session})
		proc.metadata.MetadataAvailable(s.info.MetadataStep)
	}
	return proc
}

func (s *RemoteSource) pump(ctx context.Context, session int, body io.Reader, proc *streamProcessors, streamStart bool) {
	// Legacy Shoutcast servers sometimes deliver their header block inline
	// in the body. Only possible at the very start of the stream.
	if streamStart && proc.metadata == nil {
		proc.header = icy.NewHeaderScanner()
	}

	buf := make([]byte, s.readSize)
	for {
		if !s.waitWhileSuspended(session) {
			return
		}

		n, err := body.Read(buf)
		if n > 0 {
			if !s.deliver(session, proc, buf[:n]) {
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				s.emitEOF(session)
			} else if ctx.Err() == nil {
				s.emitError(session, fmt.Errorf("stream read failed: %w", err))
			}
			return
		}
	}
}

// deliver advances position, strips inline headers and ICY metadata, and
// hands audio bytes to the delegate. Returns false when the session is stale.
func (s *RemoteSource) deliver(session int, proc *streamProcessors, chunk []byte) bool {
	s.mu.Lock()
	if session != s.session || s.closed {
		s.mu.Unlock()
		return false
	}
	s.position += int64(len(chunk))
	d := s.delegate
	s.mu.Unlock()

	audio := chunk
	if proc.header != nil && !proc.header.Done() {
		audio = proc.header.Process(audio)
		if proc.header.Done() {
			if hdrs := proc.header.Headers(); hdrs != nil {
				s.adoptInlineHeaders(session, proc, hdrs)
			}
			proc.header = nil
		}
	}
	if proc.metadata != nil && len(audio) > 0 {
		audio = proc.metadata.ProcessMetadata(audio)
	}

	if len(audio) > 0 && d != nil {
		out := make([]byte, len(audio))
		copy(out, audio)
		d.DataAvailable(out)
	}
	return true
}

func (s *RemoteSource) adoptInlineHeaders(session int, proc *streamProcessors, hdrs map[string]string) {
	s.mu.Lock()
	if session == s.session && !s.closed {
		if v, ok := hdrs["content-type"]; ok && s.info.ContentType == "" {
			s.info.ContentType = v
		}
		if v, ok := hdrs["icy-name"]; ok && s.info.Name == "" {
			s.info.Name = v
		}
		if v, ok := hdrs["icy-br"]; ok && s.info.Bitrate == 0 {
			if kbps, err := strconv.Atoi(v); err == nil {
				s.info.Bitrate = kbps * 1000
			}
		}
		if v, ok := hdrs["icy-metaint"]; ok && s.info.MetadataStep == 0 {
			if step, err := strconv.Atoi(v); err == nil && step > 0 {
				s.info.MetadataStep = step
				proc.metadata = icy.NewProcessor()
				proc.metadata.SetDelegate(metadataForwarder{s: s, session: session})
				proc.metadata.MetadataAvailable(step)
			}
		}
	}
	s.mu.Unlock()
}

// waitWhileSuspended blocks while the source is suspended. Returns false when
// the session went stale or the source closed.
func (s *RemoteSource) waitWhileSuspended(session int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.suspended && session == s.session && !s.closed {
		s.cond.Wait()
	}
	return session == s.session && !s.closed
}

func (s *RemoteSource) emitEOF(session int) {
	s.mu.Lock()
	stale := session != s.session || s.closed
	d := s.delegate
	s.mu.Unlock()
	if !stale && d != nil {
		d.EndOfFile()
	}
}

func (s *RemoteSource) emitError(session int, err error) {
	s.mu.Lock()
	stale := session != s.session || s.closed
	d := s.delegate
	s.mu.Unlock()
	if !stale && d != nil {
		d.ErrorOccurred(err)
	}
}
