package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerSlotGeometry(t *testing.T) {
	cases := []struct {
		deviceID uint8
		start    uint8
		end      uint8
		tx       uint8
	}{
		{1, 0, 11, 6},
		{2, 12, 23, 18},
		{3, 24, 35, 30},
		{4, 36, 47, 42},
		{5, 48, 59, 54},
	}
	for _, tc := range cases {
		s := NewScheduler(tc.deviceID, nil, nil)
		assert.Equal(t, tc.start, s.SlotStart(), "node %d start", tc.deviceID)
		assert.Equal(t, tc.end, s.SlotEnd(), "node %d end", tc.deviceID)
		assert.Equal(t, tc.tx, s.Status().TxSecond, "node %d tx", tc.deviceID)
	}
}

func TestSchedulerInvalidDeviceIDFallsBack(t *testing.T) {
	s := NewScheduler(9, nil, nil)
	assert.Equal(t, uint8(0), s.SlotStart())
	assert.Equal(t, uint8(11), s.SlotEnd())
}

func TestSchedulerSetTxOffset(t *testing.T) {
	s := NewScheduler(2, nil, nil)
	s.SetTxOffset(3)
	assert.Equal(t, uint8(15), s.Status().TxSecond)

	s.SetTxOffset(10) // outside the active window, rejected
	assert.Equal(t, uint8(15), s.Status().TxSecond)
}

func TestSchedulerFiresOncePerSlot(t *testing.T) {
	s := NewScheduler(3, nil, nil)

	fired := 0
	for sec := uint8(0); sec <= 59; sec++ {
		s.Update(12, 0, sec, true)
		if s.ShouldTransmitNow() {
			fired++
			assert.Equal(t, uint8(30), sec)
			assert.True(t, s.IsMySlot())
			s.MarkTransmissionComplete()
		}
		if sec >= 24 && sec <= 35 {
			assert.True(t, s.IsMySlot(), "second %d", sec)
		} else {
			assert.False(t, s.IsMySlot(), "second %d", sec)
		}
	}
	assert.Equal(t, 1, fired)
}

func TestSchedulerRepeatedSecondDoesNotRefire(t *testing.T) {
	s := NewScheduler(1, nil, nil)

	s.Update(9, 0, 6, true)
	assert.True(t, s.ShouldTransmitNow())
	s.MarkTransmissionComplete()

	// The main loop polls faster than the clock ticks; the same second must
	// not fire twice.
	s.Update(9, 0, 6, true)
	assert.False(t, s.ShouldTransmitNow())
	s.Update(9, 0, 7, true)
	assert.False(t, s.ShouldTransmitNow())
}

func TestSchedulerNewMinuteResets(t *testing.T) {
	s := NewScheduler(1, nil, nil)

	s.Update(9, 0, 6, true)
	s.MarkTransmissionComplete()
	s.Update(9, 0, 11, true)
	s.Update(9, 0, 12, true) // slot exit
	assert.Equal(t, ModeRx, s.Mode())

	s.Update(9, 1, 0, true) // next minute, slot re-entry
	s.Update(9, 1, 6, true)
	assert.True(t, s.ShouldTransmitNow(), "slot counters reset on re-entry")
}

func TestSchedulerInvalidTimeDisablesTransmit(t *testing.T) {
	s := NewScheduler(1, nil, nil)

	s.Update(9, 0, 6, true)
	assert.True(t, s.ShouldTransmitNow())

	// Time source lost mid-slot: transmission disabled immediately.
	s.Update(0, 0, 0, false)
	assert.False(t, s.ShouldTransmitNow())
	assert.False(t, s.IsMySlot())
	assert.Equal(t, ModeWaitTime, s.Mode())
}

func TestSchedulerFallbackPrefersGPS(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)
	nt.Update(8, 0, 30, 1, 1)

	s := NewScheduler(3, nt, nil)

	src := s.UpdateWithFallback(9, 0, 30, true)
	assert.Equal(t, TimeSourceGPS, src)
	assert.True(t, s.ShouldTransmitNow())
}

func TestSchedulerFallbackUsesNetworkTime(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)
	nt.Update(8, 0, 30, 1, 1)

	s := NewScheduler(3, nt, nil)

	src := s.UpdateWithFallback(0, 0, 0, false)
	assert.Equal(t, TimeSourceNetwork, src)
	assert.True(t, s.ShouldTransmitNow(), "network time drives the slot")
	assert.Equal(t, "NET", src.String())
}

func TestSchedulerNoTimeSourceNoTransmit(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)

	s := NewScheduler(3, nt, nil)

	src := s.UpdateWithFallback(9, 0, 30, false)
	assert.Equal(t, TimeSourceNone, src)
	assert.False(t, s.ShouldTransmitNow())
	assert.False(t, s.IsMySlot())
	assert.Equal(t, ModeWaitTime, s.Mode())
}

func TestSchedulerModeProgression(t *testing.T) {
	s := NewScheduler(1, nil, nil)
	assert.Equal(t, ModeWaitTime, s.Mode())

	s.Update(9, 0, 20, true)
	assert.Equal(t, ModeRx, s.Mode())

	s.Update(9, 1, 2, true)
	assert.Equal(t, ModeTx, s.Mode())

	s.Update(9, 1, 6, true)
	s.MarkTransmissionComplete()
	s.Update(9, 1, 7, true)
	assert.Equal(t, ModeTxDone, s.Mode())
}

func TestSchedulerNetworkTimeExpiryStopsTransmit(t *testing.T) {
	clk := newFakeClock()
	nt := newTestNetTime(clk)
	nt.Update(8, 0, 0, 1, 1)

	s := NewScheduler(1, nt, nil)
	assert.Equal(t, TimeSourceNetwork, s.UpdateWithFallback(0, 0, 0, false))

	clk.advance(121 * time.Second)
	assert.Equal(t, TimeSourceNone, s.UpdateWithFallback(0, 0, 0, false))
	assert.False(t, s.IsMySlot())
}
