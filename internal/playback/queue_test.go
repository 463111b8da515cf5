package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := newEntryQueue()
	a := newAudioEntry("http://example.com/a.mp3", nil)
	b := newAudioEntry("http://example.com/b.mp3", nil)
	q.enqueue(a)
	q.enqueue(b)

	got, ok := q.dequeue()
	require.True(t, ok)
	assert.Same(t, a, got)

	got, ok = q.dequeue()
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = q.dequeue()
	assert.False(t, ok)
}

func TestQueuePushFront(t *testing.T) {
	q := newEntryQueue()
	a := newAudioEntry("http://example.com/a.mp3", nil)
	b := newAudioEntry("http://example.com/b.mp3", nil)
	q.enqueue(a)
	q.pushFront(b)

	got, ok := q.dequeue()
	require.True(t, ok)
	assert.Same(t, b, got)

	got, ok = q.dequeue()
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestQueueRemoveAll(t *testing.T) {
	q := newEntryQueue()
	a := newAudioEntry("http://example.com/a.mp3", nil)
	b := newAudioEntry("http://example.com/b.mp3", nil)
	q.enqueue(a)
	q.enqueue(b)

	removed := q.removeAll()
	require.Len(t, removed, 2)
	assert.Same(t, a, removed[0])
	assert.Same(t, b, removed[1])
	assert.Zero(t, q.len())

	assert.Empty(t, q.removeAll())
}
