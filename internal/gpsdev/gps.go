// Package gpsdev supplies the GPS collaborator: a simulated receiver driven
// by the host clock, and a fix-less stub for nodes relying on network time.
package gpsdev

import (
	"time"

	"github.com/ridgelink/sensormesh/internal/mesh"
)

// Simulated is a GPS receiver fed by the host's clock, with a fixed
// position. Desktop simulations get a perfect fix; TDMA behaves exactly as
// with real hardware.
type Simulated struct {
	LatE6      int32
	LonE6      int32
	AltitudeM  int16
	Satellites uint8
	HDOP10     uint8

	now func() time.Time
}

// NewSimulated creates a simulated receiver at the given position.
func NewSimulated(latE6, lonE6 int32, altitudeM int16) *Simulated {
	return &Simulated{
		LatE6:      latE6,
		LonE6:      lonE6,
		AltitudeM:  altitudeM,
		Satellites: 8,
		HDOP10:     9,
		now:        time.Now,
	}
}

// Snapshot returns the current fix. Time of day is the host's UTC clock.
func (g *Simulated) Snapshot() mesh.GPSSnapshot {
	t := g.now().UTC()
	return mesh.GPSSnapshot{
		Hour:          uint8(t.Hour()),
		Minute:        uint8(t.Minute()),
		Second:        uint8(t.Second()),
		LatE6:         g.LatE6,
		LonE6:         g.LonE6,
		AltitudeM:     g.AltitudeM,
		Satellites:    g.Satellites,
		HDOP10:        g.HDOP10,
		DatetimeValid: true,
		LocationValid: true,
	}
}

// NoFix is a receiver that never acquires: nodes using it schedule off
// network time alone.
type NoFix struct{}

// Snapshot returns an invalid fix.
func (NoFix) Snapshot() mesh.GPSSnapshot { return mesh.GPSSnapshot{} }
