package mesh

import "time"

// Network time tuning. The staleness threshold lets any fresh sample replace
// a clock that has been coasting for a while even if it arrives via a longer
// relay path; the rate limit keeps a beacon storm from thrashing the clock.
const (
	netTimeStaleAfter = 30 * time.Second
	netTimeRateLimit  = time.Second
)

// ClockReading is a wall-clock time of day.
type ClockReading struct {
	Hour   uint8
	Minute uint8
	Second uint8
}

// NetworkTime holds the beacon-relayed wall clock used for TDMA scheduling
// on nodes without a GPS fix. Lower hop count means the sample passed
// through fewer relays and is preferred.
type NetworkTime struct {
	reading    ClockReading
	receivedAt time.Time
	lastUpdate time.Time
	sourceNode uint8
	hopCount   uint8
	valid      bool

	maxAge time.Duration
	now    func() time.Time
}

// NewNetworkTime creates a store that invalidates after maxAge of silence.
func NewNetworkTime(maxAge time.Duration) *NetworkTime {
	return &NetworkTime{
		hopCount: 255,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Update offers a new time sample from a beacon. A sample is accepted when
// there is no valid time yet, when its hop count is equal or better, or when
// the current sample has gone stale. Within the rate-limit window, samples
// of strictly worse hop count are ignored.
func (nt *NetworkTime) Update(h, m, s uint8, sourceNode, hopCount uint8) {
	now := nt.now()

	if nt.valid && now.Sub(nt.lastUpdate) < netTimeRateLimit && hopCount > nt.hopCount {
		return
	}

	accept := !nt.valid ||
		hopCount <= nt.hopCount ||
		now.Sub(nt.receivedAt) > netTimeStaleAfter
	if !accept {
		return
	}

	nt.reading = ClockReading{Hour: h, Minute: m, Second: s}
	nt.receivedAt = now
	nt.lastUpdate = now
	nt.sourceNode = sourceNode
	nt.hopCount = hopCount
	nt.valid = true
}

// SetManual forces the clock for testing without GPS. It records hop count 0
// so beacon-relayed samples cannot displace it until it goes stale.
func (nt *NetworkTime) SetManual(h, m, s uint8) {
	now := nt.now()
	nt.reading = ClockReading{Hour: h, Minute: m, Second: s}
	nt.receivedAt = now
	nt.lastUpdate = now
	nt.sourceNode = 0
	nt.hopCount = 0
	nt.valid = true
}

// Get returns the current time of day extrapolated from the last sample,
// wrapping across midnight. ok is false when no valid time is held.
func (nt *NetworkTime) Get() (ClockReading, bool) {
	if !nt.IsValid() {
		return ClockReading{}, false
	}

	elapsed := uint32(nt.now().Sub(nt.receivedAt) / time.Second)
	total := uint32(nt.reading.Hour)*3600 +
		uint32(nt.reading.Minute)*60 +
		uint32(nt.reading.Second) +
		elapsed
	total %= 86400

	return ClockReading{
		Hour:   uint8(total / 3600),
		Minute: uint8(total % 3600 / 60),
		Second: uint8(total % 60),
	}, true
}

// IsValid reports whether a usable time is held, self-invalidating once the
// last sample exceeds the maximum age.
func (nt *NetworkTime) IsValid() bool {
	if !nt.valid {
		return false
	}
	if nt.now().Sub(nt.receivedAt) > nt.maxAge {
		nt.valid = false
	}
	return nt.valid
}

// Invalidate drops the held time.
func (nt *NetworkTime) Invalidate() {
	nt.valid = false
	nt.hopCount = 255
}

// Age returns seconds since the last sample, saturating when none was ever
// received.
func (nt *NetworkTime) Age() uint32 {
	if nt.receivedAt.IsZero() {
		return ^uint32(0)
	}
	return uint32(nt.now().Sub(nt.receivedAt) / time.Second)
}

// HopCount returns the relay distance of the held sample, 255 when none.
func (nt *NetworkTime) HopCount() uint8 {
	if !nt.valid {
		return 255
	}
	return nt.hopCount
}

// SourceNode returns the node that provided the held sample.
func (nt *NetworkTime) SourceNode() uint8 { return nt.sourceNode }
