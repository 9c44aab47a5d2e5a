package mesh

import (
	"go.uber.org/zap"
)

// TDMA slot geometry. Five 12-second slots tile each minute; a node owns the
// slot indexed by its device id and fires its own report at a fixed offset
// into it. The last two seconds of every slot are guard time.
const (
	SlotDurationSec = 12
	TxWindowSec     = 10
	DefaultTxOffset = 6
	MaxNodes        = 5
	txPerSlot       = 1
)

// TimeSource says which clock the scheduler is currently running on.
type TimeSource uint8

const (
	TimeSourceNone TimeSource = iota
	TimeSourceGPS
	TimeSourceNetwork
)

// String returns the short display name of the time source.
func (s TimeSource) String() string {
	switch s {
	case TimeSourceGPS:
		return "GPS"
	case TimeSourceNetwork:
		return "NET"
	default:
		return "NONE"
	}
}

// SchedulerMode is the coarse state of the scheduler for status display.
type SchedulerMode string

// Scheduler modes.
const (
	ModeWaitTime SchedulerMode = "WAIT_TIME"
	ModeRx       SchedulerMode = "RX_MODE"
	ModeTx       SchedulerMode = "TX_MODE"
	ModeTxDone   SchedulerMode = "TX_DONE"
)

// TdmaStatus is a snapshot of the scheduler state.
type TdmaStatus struct {
	InSlot         bool
	ShouldTransmit bool
	SlotStart      uint8
	SlotEnd        uint8
	TxSecond       uint8
	TimeSource     TimeSource
	CurrentSecond  uint8
}

// Scheduler decides slot ownership and transmit instants from the wall
// clock. Slot ownership is derived purely from the device id and the UTC
// second of the minute; nothing is negotiated over the air.
//
// Without a valid time source the scheduler refuses to transmit; losing the
// source mid-slot disables transmission immediately.
type Scheduler struct {
	deviceID uint8
	txOffset uint8

	slotStart uint8
	slotEnd   uint8

	inSlot         bool
	shouldTransmit bool
	timeSynced     bool
	timeSource     TimeSource
	currentSecond  uint8

	// 255 means "no second processed yet" so second 0 still fires.
	lastProcessedSecond uint8
	txCompletedThisSlot uint8
	slotActiveThisMin   bool

	netTime *NetworkTime
	logger  *zap.Logger
}

// NewScheduler creates a scheduler for the given node. netTime supplies the
// fallback clock for UpdateWithFallback; it may be nil when GPS-only
// operation is wanted.
func NewScheduler(deviceID uint8, netTime *NetworkTime, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		txOffset:            DefaultTxOffset,
		lastProcessedSecond: 255,
		netTime:             netTime,
		logger:              logger,
	}
	s.Init(deviceID)
	return s
}

// Init sets the device id and derives the slot boundaries. Ids outside
// [1, MaxNodes] fall back to slot 1.
func (s *Scheduler) Init(deviceID uint8) {
	if deviceID < 1 || deviceID > MaxNodes {
		s.logger.Warn("invalid device id for TDMA, using slot 1",
			zap.Uint8("deviceId", deviceID),
			zap.Int("maxNodes", MaxNodes))
		deviceID = 1
	}
	s.deviceID = deviceID
	s.slotStart = (deviceID - 1) * SlotDurationSec
	s.slotEnd = s.slotStart + SlotDurationSec - 1
	if s.slotEnd > 59 {
		s.slotEnd = 59
	}
	s.logger.Info("TDMA slot assigned",
		zap.Uint8("deviceId", deviceID),
		zap.Uint8("slotStart", s.slotStart),
		zap.Uint8("slotEnd", s.slotEnd),
		zap.Uint8("txSecond", s.txSecond()))
}

// SetTxOffset moves the transmit instant within the slot. Offsets outside
// the active window are rejected.
func (s *Scheduler) SetTxOffset(offset uint8) {
	if offset >= TxWindowSec {
		s.logger.Warn("tx offset outside window", zap.Uint8("offset", offset))
		return
	}
	s.txOffset = offset
}

func (s *Scheduler) txSecond() uint8 {
	return s.slotStart + s.txOffset
}

// SlotStart returns the first second of the node's slot.
func (s *Scheduler) SlotStart() uint8 { return s.slotStart }

// SlotEnd returns the last second of the node's slot.
func (s *Scheduler) SlotEnd() uint8 { return s.slotEnd }

// Update advances the state machine with a wall-clock second. An invalid
// clock forces the scheduler out of its slot and disables transmission.
func (s *Scheduler) Update(h, m, sec uint8, valid bool) {
	_ = h
	_ = m
	if !valid {
		s.inSlot = false
		s.shouldTransmit = false
		s.timeSynced = false
		s.timeSource = TimeSourceNone
		return
	}

	s.timeSynced = true
	s.currentSecond = sec
	wasInSlot := s.inSlot
	s.inSlot = sec >= s.slotStart && sec <= s.slotEnd

	if s.inSlot && !wasInSlot {
		s.txCompletedThisSlot = 0
		s.lastProcessedSecond = 255
		s.slotActiveThisMin = true
		s.logger.Debug("entering TX slot",
			zap.Uint8("second", sec),
			zap.Uint8("slotStart", s.slotStart))
	}
	if !s.inSlot && wasInSlot {
		s.slotActiveThisMin = false
		s.logger.Debug("exiting TX slot",
			zap.Uint8("txCompleted", s.txCompletedThisSlot))
	}

	if s.inSlot {
		fire := sec == s.txSecond() &&
			sec != s.lastProcessedSecond &&
			s.txCompletedThisSlot < txPerSlot
		if fire {
			s.shouldTransmit = true
			s.lastProcessedSecond = sec
		} else {
			s.shouldTransmit = false
		}
	} else {
		s.shouldTransmit = false
	}
}

// UpdateWithFallback feeds the scheduler the best available clock: GPS when
// valid, otherwise the beacon-relayed network time. With neither,
// transmission is disabled and TimeSourceNone is returned.
func (s *Scheduler) UpdateWithFallback(gpsH, gpsM, gpsS uint8, gpsValid bool) TimeSource {
	var h, m, sec uint8
	source := TimeSourceNone

	if gpsValid {
		h, m, sec = gpsH, gpsM, gpsS
		source = TimeSourceGPS
	} else if s.netTime != nil {
		if r, ok := s.netTime.Get(); ok {
			h, m, sec = r.Hour, r.Minute, r.Second
			source = TimeSourceNetwork
		}
	}

	s.timeSource = source
	s.timeSynced = source != TimeSourceNone

	if source == TimeSourceNone {
		s.inSlot = false
		s.shouldTransmit = false
		return source
	}

	s.Update(h, m, sec, true)
	return source
}

// ShouldTransmitNow reports whether this is the node's transmit instant.
func (s *Scheduler) ShouldTransmitNow() bool {
	return s.shouldTransmit && s.timeSynced
}

// IsMySlot reports whether the current second falls inside the node's slot.
func (s *Scheduler) IsMySlot() bool {
	return s.inSlot && s.timeSynced
}

// MarkTransmissionComplete records that the slot's primary transmission
// happened and clears the transmit request.
func (s *Scheduler) MarkTransmissionComplete() {
	s.txCompletedThisSlot++
	s.shouldTransmit = false
}

// TimeSynced reports whether any clock is currently driving the scheduler.
func (s *Scheduler) TimeSynced() bool { return s.timeSynced }

// TimeSource returns the clock currently in use.
func (s *Scheduler) TimeSource() TimeSource { return s.timeSource }

// Mode returns the coarse scheduler state.
func (s *Scheduler) Mode() SchedulerMode {
	switch {
	case !s.timeSynced:
		return ModeWaitTime
	case s.inSlot && s.txCompletedThisSlot >= txPerSlot:
		return ModeTxDone
	case s.inSlot:
		return ModeTx
	default:
		return ModeRx
	}
}

// Status returns a snapshot for display and report flags.
func (s *Scheduler) Status() TdmaStatus {
	return TdmaStatus{
		InSlot:         s.inSlot,
		ShouldTransmit: s.shouldTransmit,
		SlotStart:      s.slotStart,
		SlotEnd:        s.slotEnd,
		TxSecond:       s.txSecond(),
		TimeSource:     s.timeSource,
		CurrentSecond:  s.currentSecond,
	}
}
