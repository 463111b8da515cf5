package network

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDelegate struct {
	mu       sync.Mutex
	data     []byte
	metadata []map[string]string
	eof      bool
	err      error
	terminal chan struct{}
	once     sync.Once
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{terminal: make(chan struct{})}
}

func (d *recordingDelegate) DataAvailable(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = append(d.data, data...)
}

func (d *recordingDelegate) MetadataReceived(metadata map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metadata = append(d.metadata, metadata)
}

func (d *recordingDelegate) EndOfFile() {
	d.mu.Lock()
	d.eof = true
	d.mu.Unlock()
	d.once.Do(func() { close(d.terminal) })
}

func (d *recordingDelegate) ErrorOccurred(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
	d.once.Do(func() { close(d.terminal) })
}

func (d *recordingDelegate) waitTerminal(t *testing.T) {
	t.Helper()
	select {
	case <-d.terminal:
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal event received")
	}
}

func (d *recordingDelegate) snapshot() ([]byte, []map[string]string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.data...), d.metadata, d.eof, d.err
}

func TestRemoteSource_PlainStream(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 10000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.Header.Get("Icy-MetaData"))
		assert.Equal(t, "*/*", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(payload)
	}))
	defer server.Close()

	d := newRecordingDelegate()
	src, err := NewRemoteSource(server.URL, nil, d, nil)
	require.NoError(t, err)
	require.NoError(t, src.Open())
	defer src.Close()

	d.waitTerminal(t)
	data, _, eof, srcErr := d.snapshot()
	require.NoError(t, srcErr)
	assert.True(t, eof)
	assert.Equal(t, payload, data)
	assert.Equal(t, "audio/mpeg", src.Info().ContentType)
	assert.Equal(t, int64(len(payload)), src.Position())
}

func TestRemoteSource_ICYMetadataStripped(t *testing.T) {
	audio := bytes.Repeat([]byte{0x11}, 2000)
	step := 500

	var stream []byte
	titles := []string{"StreamTitle='One';", "", "StreamTitle='Two';", ""}
	for i := 0; i < 4; i++ {
		stream = append(stream, audio[i*step:(i+1)*step]...)
		meta := []byte(titles[i])
		padded := (len(meta) + 15) / 16 * 16
		for len(meta) < padded {
			meta = append(meta, 0)
		}
		stream = append(stream, byte(len(meta)/16))
		stream = append(stream, meta...)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-metaint", strconv.Itoa(step))
		w.Header().Set("icy-name", "Meta Radio")
		w.Header().Set("icy-br", "128")
		w.Write(stream)
	}))
	defer server.Close()

	d := newRecordingDelegate()
	src, err := NewRemoteSource(server.URL, nil, d, nil)
	require.NoError(t, err)
	require.NoError(t, src.Open())
	defer src.Close()

	d.waitTerminal(t)
	data, metadata, eof, srcErr := d.snapshot()
	require.NoError(t, srcErr)
	assert.True(t, eof)
	assert.Equal(t, audio, data, "metadata must be stripped from audio bytes")
	require.Len(t, metadata, 2)
	assert.Equal(t, "One", metadata[0]["StreamTitle"])
	assert.Equal(t, "Two", metadata[1]["StreamTitle"])

	info := src.Info()
	assert.Equal(t, step, info.MetadataStep)
	assert.Equal(t, "Meta Radio", info.Name)
	assert.Equal(t, 128000, info.Bitrate)
}

func TestRemoteSource_RangeSeek(t *testing.T) {
	payload := make([]byte, 8192)
	for i := range payload {
		payload[i] = byte(i)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", "audio/mpeg")
		start := int64(0)
		if rng := r.Header.Get("Range"); rng != "" {
			fmt.Sscanf(rng, "bytes=%d-", &start)
			w.WriteHeader(http.StatusPartialContent)
		}
		w.Write(payload[start:])
	}))
	defer server.Close()

	d := newRecordingDelegate()
	src, err := NewRemoteSource(server.URL, nil, d, nil)
	require.NoError(t, err)
	require.NoError(t, src.Open())
	defer src.Close()

	d.waitTerminal(t)
	require.True(t, src.Info().SupportsSeek)

	d2 := newRecordingDelegate()
	src.delegate = d2
	src.Seek(4096)

	d2.waitTerminal(t)
	data, _, eof, srcErr := d2.snapshot()
	require.NoError(t, srcErr)
	assert.True(t, eof)
	assert.Equal(t, payload[4096:], data)
}

func TestRemoteSource_SeekUnsupportedMidStreamIsNoOp(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(make([]byte, 100))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
	}))
	defer server.Close()
	defer close(block)

	d := newRecordingDelegate()
	src, err := NewRemoteSource(server.URL, nil, d, nil)
	require.NoError(t, err)
	require.NoError(t, src.Open())
	defer src.Close()

	require.Eventually(t, func() bool {
		data, _, _, _ := d.snapshot()
		return len(data) == 100
	}, 5*time.Second, 10*time.Millisecond)

	session := src.session
	src.Seek(50)
	assert.Equal(t, session, src.session, "unsupported mid-stream seek must not reopen")
}

func TestRemoteSource_Status416IsEOF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer server.Close()

	d := newRecordingDelegate()
	src, err := NewRemoteSource(server.URL, nil, d, nil)
	require.NoError(t, err)
	require.NoError(t, src.Open())
	defer src.Close()

	d.waitTerminal(t)
	_, _, eof, srcErr := d.snapshot()
	assert.True(t, eof)
	assert.NoError(t, srcErr)
}

func TestRemoteSource_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := newRecordingDelegate()
	src, err := NewRemoteSource(server.URL, nil, d, nil)
	require.NoError(t, err)
	require.NoError(t, src.Open())
	defer src.Close()

	d.waitTerminal(t)
	_, _, eof, srcErr := d.snapshot()
	assert.False(t, eof)
	assert.ErrorIs(t, srcErr, ErrStreamStatus)
}

func TestRemoteSource_InvalidURLRejected(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"bad scheme", "ftp://example.com/stream"},
		{"not a url", "://nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRemoteSource(tt.url, nil, newRecordingDelegate(), nil)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestRemoteSource_SuspendResume(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(payload)
	}))
	defer server.Close()

	d := newRecordingDelegate()
	src, err := NewRemoteSource(server.URL, nil, d, &RemoteSourceOptions{ReadBufferSize: 256})
	require.NoError(t, err)

	src.Suspend()
	require.NoError(t, src.Open())
	defer src.Close()

	time.Sleep(100 * time.Millisecond)
	data, _, _, _ := d.snapshot()
	assert.Empty(t, data, "suspended source must not deliver data")

	src.Resume()
	d.waitTerminal(t)
	data, _, eof, srcErr := d.snapshot()
	require.NoError(t, srcErr)
	assert.True(t, eof)
	assert.Equal(t, payload, data)
}

func TestRemoteSource_InlineICYHeaders(t *testing.T) {
	audio := bytes.Repeat([]byte{0x7F}, 1024)
	body := append([]byte("ICY 200 OK\r\nicy-name: Legacy FM\r\nicy-br: 96\r\n\r\n"), audio...)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	d := newRecordingDelegate()
	src, err := NewRemoteSource(server.URL, nil, d, nil)
	require.NoError(t, err)
	require.NoError(t, src.Open())
	defer src.Close()

	d.waitTerminal(t)
	data, _, eof, srcErr := d.snapshot()
	require.NoError(t, srcErr)
	assert.True(t, eof)
	assert.Equal(t, audio, data)
	assert.Equal(t, "Legacy FM", src.Info().Name)
	assert.Equal(t, 96000, src.Info().Bitrate)
}
