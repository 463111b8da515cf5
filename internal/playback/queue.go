package playback

import "sync"

// entryQueue is the ordered set of entries waiting behind the one currently
// playing.
type entryQueue struct {
	mu      sync.Mutex
	entries []*AudioEntry
}

func newEntryQueue() *entryQueue {
	return &entryQueue{}
}

func (q *entryQueue) enqueue(e *AudioEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// pushFront returns an entry to the head of the queue, ahead of anything
// waiting. Used when an interrupted prefetch has to go next again.
func (q *entryQueue) pushFront(e *AudioEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]*AudioEntry{e}, q.entries...)
}

func (q *entryQueue) dequeue() (*AudioEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// removeAll empties the queue and returns the removed entries so their
// sources can be closed and cancellations reported.
func (q *entryQueue) removeAll() []*AudioEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := make([]*AudioEntry, 0, len(q.entries))
	removed = append(removed, q.entries...)
	q.entries = nil
	return removed
}

func (q *entryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
