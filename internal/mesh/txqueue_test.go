package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(clk *fakeClock) *TransmitQueue {
	q := NewTransmitQueue(8, 64)
	q.now = clk.now
	return q
}

func TestTransmitQueueFIFO(t *testing.T) {
	q := newTestQueue(newFakeClock())

	assert.True(t, q.Enqueue([]byte{1}))
	assert.True(t, q.Enqueue([]byte{2}))
	assert.True(t, q.Enqueue([]byte{3}))
	assert.Equal(t, 3, q.Depth())

	f := q.Peek()
	require.NotNil(t, f)
	assert.Equal(t, []byte{1}, f.Data)

	q.Dequeue()
	assert.Equal(t, []byte{2}, q.Peek().Data)
	q.Dequeue()
	q.Dequeue()
	assert.Equal(t, 0, q.Depth())
	assert.Nil(t, q.Peek())
}

func TestTransmitQueueBounds(t *testing.T) {
	q := newTestQueue(newFakeClock())

	assert.False(t, q.Enqueue(nil))
	assert.False(t, q.Enqueue(make([]byte, 65)))

	for i := 0; i < 8; i++ {
		assert.True(t, q.Enqueue([]byte{byte(i)}))
	}
	assert.False(t, q.Enqueue([]byte{9}), "full queue rejects")
	assert.Equal(t, 8, q.Depth())
}

func TestTransmitQueueEnqueueCopies(t *testing.T) {
	q := newTestQueue(newFakeClock())
	buf := []byte{1, 2, 3}
	q.Enqueue(buf)
	buf[0] = 99
	assert.Equal(t, []byte{1, 2, 3}, q.Peek().Data)
}

func TestTransmitQueueWrapAround(t *testing.T) {
	q := newTestQueue(newFakeClock())
	for i := 0; i < 8; i++ {
		q.Enqueue([]byte{byte(i)})
	}
	q.Dequeue()
	q.Dequeue()
	assert.True(t, q.Enqueue([]byte{8}))
	assert.True(t, q.Enqueue([]byte{9}))

	want := []byte{2, 3, 4, 5, 6, 7, 8, 9}
	for _, w := range want {
		assert.Equal(t, []byte{w}, q.Peek().Data)
		q.Dequeue()
	}
}

func TestTransmitQueuePruneOldFront(t *testing.T) {
	clk := newFakeClock()
	q := newTestQueue(clk)

	q.Enqueue([]byte{1})
	clk.advance(61 * time.Second)
	q.Enqueue([]byte{2})

	assert.Equal(t, 1, q.PruneOld(time.Minute))
	assert.Equal(t, 1, q.Depth())
	assert.Equal(t, []byte{2}, q.Peek().Data)
}

func TestTransmitQueuePruneOldCompactsMiddle(t *testing.T) {
	clk := newFakeClock()
	q := newTestQueue(clk)

	q.Enqueue([]byte{1})
	clk.advance(30 * time.Second)
	q.Enqueue([]byte{2}) // will expire while not at the front
	clk.advance(10 * time.Second)
	q.Enqueue([]byte{3})

	// Age the second entry past the limit without expiring the third, then
	// refresh the front so only the middle one goes.
	q.frames[q.front].QueuedAt = clk.now()
	clk.advance(55 * time.Second)

	assert.Equal(t, 1, q.PruneOld(time.Minute))
	assert.Equal(t, 2, q.Depth())

	assert.Equal(t, []byte{1}, q.Peek().Data)
	q.Dequeue()
	assert.Equal(t, []byte{3}, q.Peek().Data, "survivors keep FIFO order after compaction")
}

func TestTransmitQueueClear(t *testing.T) {
	q := newTestQueue(newFakeClock())
	q.Enqueue([]byte{1})
	q.Enqueue([]byte{2})
	q.Clear()
	assert.Equal(t, 0, q.Depth())
	assert.Nil(t, q.Peek())
}
