package mesh

import "time"

// Neighbor is a 1-hop node we have heard directly, with signal statistics
// for routing tiebreaks and status display.
type Neighbor struct {
	NodeID          uint8
	RSSI            int16 // last observed
	RSSIMin         int16
	RSSIMax         int16
	LastHeard       time.Time
	PacketsReceived uint8
	Active          bool
}

// NeighborTable tracks direct neighbors in a fixed-size array. When the
// table is full, new neighbors are dropped rather than evicting an existing
// entry.
type NeighborTable struct {
	neighbors []Neighbor
	count     int

	now func() time.Time
}

// NewNeighborTable creates a table with the given capacity.
func NewNeighborTable(capacity int) *NeighborTable {
	return &NeighborTable{
		neighbors: make([]Neighbor, capacity),
		now:       time.Now,
	}
}

// Update records a packet heard from nodeID at the given RSSI, creating the
// entry if there is room. nodeID 0 is rejected.
func (t *NeighborTable) Update(nodeID uint8, rssi int16) {
	if nodeID == 0 {
		return
	}
	now := t.now()

	for i := range t.neighbors {
		n := &t.neighbors[i]
		if n.Active && n.NodeID == nodeID {
			n.RSSI = rssi
			n.LastHeard = now
			if n.PacketsReceived < 255 {
				n.PacketsReceived++
			}
			if rssi < n.RSSIMin {
				n.RSSIMin = rssi
			}
			if rssi > n.RSSIMax {
				n.RSSIMax = rssi
			}
			return
		}
	}

	for i := range t.neighbors {
		n := &t.neighbors[i]
		if !n.Active {
			*n = Neighbor{
				NodeID:          nodeID,
				RSSI:            rssi,
				RSSIMin:         rssi,
				RSSIMax:         rssi,
				LastHeard:       now,
				PacketsReceived: 1,
				Active:          true,
			}
			t.count++
			return
		}
	}
	// Table full: the new neighbor is dropped.
}

// Get returns the neighbor entry for nodeID, or nil.
func (t *NeighborTable) Get(nodeID uint8) *Neighbor {
	for i := range t.neighbors {
		n := &t.neighbors[i]
		if n.Active && n.NodeID == nodeID {
			return n
		}
	}
	return nil
}

// PruneExpired deactivates neighbors not heard within the timeout and
// returns how many were dropped.
func (t *NeighborTable) PruneExpired(timeout time.Duration) int {
	now := t.now()
	pruned := 0
	for i := range t.neighbors {
		n := &t.neighbors[i]
		if n.Active && now.Sub(n.LastHeard) > timeout {
			n.Active = false
			t.count--
			pruned++
		}
	}
	return pruned
}

// ActiveCount returns the number of live entries.
func (t *NeighborTable) ActiveCount() uint8 {
	return uint8(t.count)
}

// Snapshot copies up to max active neighbors into out and returns how many
// were written.
func (t *NeighborTable) Snapshot(out []Neighbor, max int) int {
	if max > len(out) {
		max = len(out)
	}
	n := 0
	for i := range t.neighbors {
		if n >= max {
			break
		}
		if t.neighbors[i].Active {
			out[n] = t.neighbors[i]
			n++
		}
	}
	return n
}

// Clear resets the table to empty.
func (t *NeighborTable) Clear() {
	for i := range t.neighbors {
		t.neighbors[i] = Neighbor{}
	}
	t.count = 0
}

// AvgRSSI returns the midpoint of the observed RSSI range for nodeID, a
// steadier metric than the last sample alone. Unknown nodes report -120.
func (t *NeighborTable) AvgRSSI(nodeID uint8) int16 {
	if n := t.Get(nodeID); n != nil {
		return (n.RSSIMin + n.RSSIMax) / 2
	}
	return -120
}
