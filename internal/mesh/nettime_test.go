package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNetTime(clk *fakeClock) *NetworkTime {
	nt := NewNetworkTime(120 * time.Second)
	nt.now = clk.now
	return nt
}

func TestNetworkTimeFirstSampleAccepted(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	assert.False(t, nt.IsValid())
	assert.Equal(t, uint8(255), nt.HopCount())

	nt.Update(10, 20, 30, 1, 1)
	require.True(t, nt.IsValid())
	assert.Equal(t, uint8(1), nt.HopCount())
	assert.Equal(t, uint8(1), nt.SourceNode())

	r, ok := nt.Get()
	require.True(t, ok)
	assert.Equal(t, ClockReading{10, 20, 30}, r)
}

func TestNetworkTimeExtrapolation(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	nt.Update(10, 59, 58, 1, 1)
	clk.advance(5 * time.Second)

	r, ok := nt.Get()
	require.True(t, ok)
	assert.Equal(t, ClockReading{11, 0, 3}, r)
}

func TestNetworkTimeMidnightWrap(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	nt.Update(23, 59, 59, 1, 1)
	clk.advance(2 * time.Second)

	r, ok := nt.Get()
	require.True(t, ok)
	assert.Equal(t, ClockReading{0, 0, 1}, r)
}

func TestNetworkTimeHopPreference(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	nt.Update(10, 0, 0, 3, 2)
	clk.advance(2 * time.Second)

	// Worse hop within the fresh window is ignored.
	nt.Update(11, 0, 0, 4, 3)
	assert.Equal(t, uint8(2), nt.HopCount())

	// Equal hop refreshes.
	clk.advance(2 * time.Second)
	nt.Update(12, 0, 0, 5, 2)
	assert.Equal(t, uint8(5), nt.SourceNode())

	// Better hop always wins.
	clk.advance(2 * time.Second)
	nt.Update(13, 0, 0, 1, 1)
	assert.Equal(t, uint8(1), nt.HopCount())
}

func TestNetworkTimeStaleSampleAcceptsAnyHop(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	nt.Update(10, 0, 0, 1, 1)
	clk.advance(31 * time.Second)

	nt.Update(10, 0, 40, 4, 5)
	assert.Equal(t, uint8(5), nt.HopCount(), "stale clock accepts a worse-hop refresh")
}

func TestNetworkTimeRateLimit(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	nt.Update(10, 0, 0, 2, 2)
	clk.advance(500 * time.Millisecond)

	// Within 1s, a strictly worse sample is dropped...
	nt.Update(11, 0, 0, 3, 3)
	assert.Equal(t, uint8(2), nt.HopCount())

	// ...but a better one is still taken.
	nt.Update(12, 0, 0, 1, 1)
	assert.Equal(t, uint8(1), nt.HopCount())
}

func TestNetworkTimeExpiry(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	nt.Update(10, 0, 0, 1, 1)
	clk.advance(121 * time.Second)

	assert.False(t, nt.IsValid())
	_, ok := nt.Get()
	assert.False(t, ok)

	// Expired clock accepts a fresh sample again.
	nt.Update(10, 2, 1, 2, 4)
	assert.True(t, nt.IsValid())
}

func TestNetworkTimeSetManual(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	nt.Update(10, 0, 0, 2, 2)
	clk.advance(2 * time.Second)
	nt.SetManual(15, 30, 0)

	assert.Equal(t, uint8(0), nt.HopCount())
	assert.Equal(t, uint8(0), nt.SourceNode())

	// Beacon samples cannot displace a manual clock while it is fresh.
	clk.advance(2 * time.Second)
	nt.Update(16, 0, 0, 1, 1)
	r, _ := nt.Get()
	assert.Equal(t, uint8(15), r.Hour)
}

func TestNetworkTimeAge(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	assert.Equal(t, ^uint32(0), nt.Age(), "never-updated age saturates")

	nt.Update(1, 2, 3, 1, 1)
	clk.advance(42 * time.Second)
	assert.Equal(t, uint32(42), nt.Age())

	nt.Invalidate()
	assert.False(t, nt.IsValid())
	assert.Equal(t, uint8(255), nt.HopCount())
}
