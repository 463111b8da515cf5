package decoder

import (
	"io"
	"sync"
)

// StreamBuffer is a bounded blocking byte FIFO between the network callback
// (writer) and a stream decoder (reader). Writes block while the buffer is
// full, which is what throttles the network pump; reads block while it is
// empty. Closing from the writer side drains remaining bytes to the reader
// and then yields io.EOF, or the close error if one was given.
type StreamBuffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf      []byte
	readPos  int
	size     int
	closed   bool
	err      error
	totalIn  int64
	totalOut int64
}

func NewStreamBuffer(capacity int) *StreamBuffer {
	if capacity <= 0 {
		capacity = 64 * 1024
	}
	sb := &StreamBuffer{buf: make([]byte, capacity)}
	sb.notEmpty = sync.NewCond(&sb.mu)
	sb.notFull = sync.NewCond(&sb.mu)
	return sb
}

// Write appends p, blocking while the buffer is full. Returns ErrBufferClosed
// if the buffer was closed before all of p was accepted.
func (sb *StreamBuffer) Write(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	written := 0
	for written < len(p) {
		for sb.size == len(sb.buf) && !sb.closed {
			sb.notFull.Wait()
		}
		if sb.closed {
			return written, ErrBufferClosed
		}

		free := len(sb.buf) - sb.size
		n := len(p) - written
		if n > free {
			n = free
		}

		writePos := (sb.readPos + sb.size) % len(sb.buf)
		tail := len(sb.buf) - writePos
		if n <= tail {
			copy(sb.buf[writePos:], p[written:written+n])
		} else {
			copy(sb.buf[writePos:], p[written:written+tail])
			copy(sb.buf, p[written+tail:written+n])
		}

		sb.size += n
		sb.totalIn += int64(n)
		written += n
		sb.notEmpty.Broadcast()
	}
	return written, nil
}

// Read fills p with buffered bytes, blocking while none are available.
func (sb *StreamBuffer) Read(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for sb.size == 0 && !sb.closed {
		sb.notEmpty.Wait()
	}
	if sb.size == 0 {
		if sb.err != nil {
			return 0, sb.err
		}
		return 0, io.EOF
	}

	n := len(p)
	if n > sb.size {
		n = sb.size
	}

	tail := len(sb.buf) - sb.readPos
	if n <= tail {
		copy(p, sb.buf[sb.readPos:sb.readPos+n])
	} else {
		copy(p, sb.buf[sb.readPos:])
		copy(p[tail:], sb.buf[:n-tail])
	}

	sb.readPos = (sb.readPos + n) % len(sb.buf)
	sb.size -= n
	sb.totalOut += int64(n)
	sb.notFull.Broadcast()
	return n, nil
}

// Close marks the writer side done; the reader drains and then sees io.EOF.
func (sb *StreamBuffer) Close() error {
	return sb.CloseWithError(nil)
}

// CloseWithError is like Close but makes the reader observe err after the
// buffered bytes are drained. It also unblocks any waiting writer.
func (sb *StreamBuffer) CloseWithError(err error) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.closed {
		return nil
	}
	sb.closed = true
	sb.err = err
	sb.notEmpty.Broadcast()
	sb.notFull.Broadcast()
	return nil
}

// Buffered returns the number of bytes currently held.
func (sb *StreamBuffer) Buffered() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.size
}

// TotalWritten returns the total bytes ever accepted from the writer.
func (sb *StreamBuffer) TotalWritten() int64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.totalIn
}
