package decoder

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamBuffer_WriteThenRead(t *testing.T) {
	sb := NewStreamBuffer(16)

	n, err := sb.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, sb.Buffered())

	out := make([]byte, 8)
	n, err = sb.Read(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out[:n])
	assert.Equal(t, 0, sb.Buffered())
}

func TestStreamBuffer_WrapAround(t *testing.T) {
	sb := NewStreamBuffer(8)

	_, err := sb.Write([]byte("abcdef"))
	require.NoError(t, err)

	out := make([]byte, 4)
	_, err = sb.Read(out)
	require.NoError(t, err)

	// This write crosses the physical end of the backing array.
	_, err = sb.Write([]byte("ghijk"))
	require.NoError(t, err)

	var got []byte
	buf := make([]byte, 3)
	for sb.Buffered() > 0 {
		n, err := sb.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, []byte("efghijk"), got)
}

func TestStreamBuffer_BlockingWriteUnblocksOnRead(t *testing.T) {
	sb := NewStreamBuffer(4)
	_, err := sb.Write([]byte("full"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sb.Write([]byte("more"))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("write should block while buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	out := make([]byte, 4)
	_, err = sb.Read(out)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("write did not unblock after space was freed")
	}
}

func TestStreamBuffer_CloseDrainsThenEOF(t *testing.T) {
	sb := NewStreamBuffer(16)
	_, err := sb.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, sb.Close())

	out := make([]byte, 16)
	n, err := sb.Read(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("tail"), out[:n])

	_, err = sb.Read(out)
	assert.Equal(t, io.EOF, err)
}

func TestStreamBuffer_CloseWithErrorSurfacesToReader(t *testing.T) {
	sb := NewStreamBuffer(16)
	wantErr := errors.New("connection reset")
	require.NoError(t, sb.CloseWithError(wantErr))

	_, err := sb.Read(make([]byte, 4))
	assert.ErrorIs(t, err, wantErr)
}

func TestStreamBuffer_CloseUnblocksWriter(t *testing.T) {
	sb := NewStreamBuffer(2)
	_, err := sb.Write([]byte("xx"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sb.Write([]byte("yy"))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sb.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrBufferClosed)
	case <-time.After(time.Second):
		t.Fatal("writer not unblocked by close")
	}
}

func TestStreamBuffer_ConcurrentProducerConsumer(t *testing.T) {
	sb := NewStreamBuffer(64)
	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		chunk := 97
		for off := 0; off < len(payload); off += chunk {
			end := off + chunk
			if end > len(payload) {
				end = len(payload)
			}
			if _, err := sb.Write(payload[off:end]); err != nil {
				return
			}
		}
		sb.Close()
	}()

	got, err := io.ReadAll(readerOnly{sb})
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), sb.TotalWritten())
}

// readerOnly hides Close from io.ReadAll's type assertions.
type readerOnly struct{ r io.Reader }

func (r readerOnly) Read(p []byte) (int, error) { return r.r.Read(p) }
