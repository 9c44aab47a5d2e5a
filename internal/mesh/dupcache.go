package mesh

import "time"

type seenMessage struct {
	sourceID  uint8
	messageID uint8
	seenAt    time.Time
	valid     bool
}

// DuplicateCache tracks recently seen (sourceId, messageId) pairs so the
// pipeline processes each source message at most once even when mesh
// forwarding delivers it along several paths.
//
// The cache is a fixed ring: MarkSeen writes at the ring cursor, overwriting
// the oldest entry when full. Lookups expire stale slots in place, which is
// also what keeps 8-bit sequence wraparound safe: an alias can only collide
// after the window has already evicted the original.
type DuplicateCache struct {
	slots      []seenMessage
	writeIndex int
	window     time.Duration

	now func() time.Time
}

// NewDuplicateCache creates a cache of the given capacity and retention
// window.
func NewDuplicateCache(size int, window time.Duration) *DuplicateCache {
	return &DuplicateCache{
		slots:  make([]seenMessage, size),
		window: window,
		now:    time.Now,
	}
}

// IsDuplicate reports whether the pair was seen within the window. Expired
// slots visited during the scan are invalidated as a side effect.
func (c *DuplicateCache) IsDuplicate(sourceID, messageID uint8) bool {
	now := c.now()
	for i := range c.slots {
		s := &c.slots[i]
		if !s.valid {
			continue
		}
		if now.Sub(s.seenAt) > c.window {
			s.valid = false
			continue
		}
		if s.sourceID == sourceID && s.messageID == messageID {
			return true
		}
	}
	return false
}

// MarkSeen records the pair at the ring cursor.
func (c *DuplicateCache) MarkSeen(sourceID, messageID uint8) {
	c.slots[c.writeIndex] = seenMessage{
		sourceID:  sourceID,
		messageID: messageID,
		seenAt:    c.now(),
		valid:     true,
	}
	c.writeIndex = (c.writeIndex + 1) % len(c.slots)
}

// Prune invalidates entries older than the window and returns how many were
// dropped.
func (c *DuplicateCache) Prune() int {
	now := c.now()
	pruned := 0
	for i := range c.slots {
		s := &c.slots[i]
		if s.valid && now.Sub(s.seenAt) > c.window {
			s.valid = false
			pruned++
		}
	}
	return pruned
}

// Clear resets the cache to empty.
func (c *DuplicateCache) Clear() {
	for i := range c.slots {
		c.slots[i] = seenMessage{}
	}
	c.writeIndex = 0
}

// Count returns the number of valid entries.
func (c *DuplicateCache) Count() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].valid {
			n++
		}
	}
	return n
}
