package mesh

import "time"

// QueuedFrame is one forward-pending wire frame. Frames are finalized before
// they enter the queue: TTL decremented, senderId restamped, forwarded flag
// set.
type QueuedFrame struct {
	Data     []byte
	QueuedAt time.Time
	occupied bool
}

// TransmitQueue is a bounded circular FIFO of frames awaiting the node's
// next transmit window.
type TransmitQueue struct {
	frames   []QueuedFrame
	front    int
	count    int
	maxFrame int

	now func() time.Time
}

// NewTransmitQueue creates a queue holding up to capacity frames of up to
// maxFrame bytes each.
func NewTransmitQueue(capacity, maxFrame int) *TransmitQueue {
	return &TransmitQueue{
		frames:   make([]QueuedFrame, capacity),
		maxFrame: maxFrame,
		now:      time.Now,
	}
}

// Enqueue appends a copy of the frame. It returns false when the queue is
// full or the length is invalid.
func (q *TransmitQueue) Enqueue(data []byte) bool {
	if q.count >= len(q.frames) {
		return false
	}
	if len(data) == 0 || len(data) > q.maxFrame {
		return false
	}

	back := (q.front + q.count) % len(q.frames)
	buf := make([]byte, len(data))
	copy(buf, data)
	q.frames[back] = QueuedFrame{
		Data:     buf,
		QueuedAt: q.now(),
		occupied: true,
	}
	q.count++
	return true
}

// Peek returns the front frame without removing it, or nil when empty.
func (q *TransmitQueue) Peek() *QueuedFrame {
	if q.count == 0 {
		return nil
	}
	return &q.frames[q.front]
}

// Dequeue removes the front frame.
func (q *TransmitQueue) Dequeue() {
	if q.count == 0 {
		return
	}
	q.frames[q.front] = QueuedFrame{}
	q.front = (q.front + 1) % len(q.frames)
	q.count--
}

// Depth returns the number of queued frames.
func (q *TransmitQueue) Depth() int {
	return q.count
}

// PruneOld drops frames older than maxAge. The front is dequeued directly;
// stale mid-queue frames are vacated and the survivors compacted in one pass
// so FIFO order is preserved without gaps.
func (q *TransmitQueue) PruneOld(maxAge time.Duration) int {
	if q.count == 0 {
		return 0
	}
	now := q.now()
	pruned := 0

	for q.count > 0 && now.Sub(q.frames[q.front].QueuedAt) > maxAge {
		q.Dequeue()
		pruned++
	}

	vacated := 0
	for i := 0; i < q.count; i++ {
		idx := (q.front + i) % len(q.frames)
		f := &q.frames[idx]
		if f.occupied && now.Sub(f.QueuedAt) > maxAge {
			*f = QueuedFrame{}
			vacated++
		}
	}
	if vacated == 0 {
		return pruned
	}

	// Compact survivors toward the front, closing the vacated slots.
	write := q.front
	kept := 0
	for i := 0; i < q.count; i++ {
		idx := (q.front + i) % len(q.frames)
		if !q.frames[idx].occupied {
			continue
		}
		if idx != write {
			q.frames[write] = q.frames[idx]
			q.frames[idx] = QueuedFrame{}
		}
		write = (write + 1) % len(q.frames)
		kept++
	}
	q.count = kept
	return pruned + vacated
}

// Clear empties the queue.
func (q *TransmitQueue) Clear() {
	for i := range q.frames {
		q.frames[i] = QueuedFrame{}
	}
	q.front = 0
	q.count = 0
}
