package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNeighbors(clk *fakeClock) *NeighborTable {
	t := NewNeighborTable(10)
	t.now = clk.now
	return t
}

func TestNeighborTableUpdate(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNeighbors(clk)

	nt.Update(2, -70)
	n := nt.Get(2)
	require.NotNil(t, n)
	assert.Equal(t, int16(-70), n.RSSI)
	assert.Equal(t, int16(-70), n.RSSIMin)
	assert.Equal(t, int16(-70), n.RSSIMax)
	assert.Equal(t, uint8(1), n.PacketsReceived)

	clk.advance(5 * time.Second)
	nt.Update(2, -85)
	nt.Update(2, -60)

	n = nt.Get(2)
	assert.Equal(t, int16(-60), n.RSSI)
	assert.Equal(t, int16(-85), n.RSSIMin)
	assert.Equal(t, int16(-60), n.RSSIMax)
	assert.Equal(t, uint8(3), n.PacketsReceived)
	assert.Equal(t, uint8(1), nt.ActiveCount())
}

func TestNeighborTableRejectsNodeZero(t *testing.T) {
	nt := newTestNeighbors(newFakeClock())
	nt.Update(0, -50)
	assert.Equal(t, uint8(0), nt.ActiveCount())
}

func TestNeighborTableFullDropsNew(t *testing.T) {
	nt := newTestNeighbors(newFakeClock())
	for i := 1; i <= 10; i++ {
		nt.Update(uint8(i), -60)
	}
	nt.Update(11, -40)

	assert.Equal(t, uint8(10), nt.ActiveCount())
	assert.Nil(t, nt.Get(11), "no eviction: a full table drops new neighbors")
}

func TestNeighborTableExpiry(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNeighbors(clk)

	nt.Update(2, -60)
	clk.advance(100 * time.Second)
	nt.Update(3, -70)
	clk.advance(100 * time.Second)

	// Node 2 is now 200s stale, node 3 only 100s.
	assert.Equal(t, 1, nt.PruneExpired(180*time.Second))
	assert.Nil(t, nt.Get(2))
	assert.NotNil(t, nt.Get(3))
	assert.Equal(t, uint8(1), nt.ActiveCount())
}

func TestNeighborTableSnapshotAndAvg(t *testing.T) {
	nt := newTestNeighbors(newFakeClock())
	nt.Update(2, -80)
	nt.Update(2, -60)
	nt.Update(4, -90)

	out := make([]Neighbor, 10)
	n := nt.Snapshot(out, 10)
	assert.Equal(t, 2, n)

	assert.Equal(t, int16(-70), nt.AvgRSSI(2))
	assert.Equal(t, int16(-120), nt.AvgRSSI(9), "unknown node reports floor")

	nt.Clear()
	assert.Equal(t, uint8(0), nt.ActiveCount())
}

func TestNeighborTablePacketCountSaturates(t *testing.T) {
	nt := newTestNeighbors(newFakeClock())
	for i := 0; i < 300; i++ {
		nt.Update(2, -60)
	}
	assert.Equal(t, uint8(255), nt.Get(2).PacketsReceived)
}
