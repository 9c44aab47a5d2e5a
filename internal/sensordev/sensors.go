// Package sensordev supplies the environmental-sensor collaborator with a
// simulated implementation for desktop nodes.
package sensordev

import (
	"math"
	"time"

	"github.com/ridgelink/sensormesh/internal/mesh"
)

// Simulated produces a slow sinusoidal drift around baseline readings, so
// simulated reports look alive on a dashboard without being random noise.
type Simulated struct {
	BaseTempF       float32
	BaseHumidity    float32
	BasePressureHPa float32
	AltitudeM       float32
	BatteryPct      uint8

	started time.Time
	now     func() time.Time
}

// NewSimulated creates a simulated sensor suite with the given baselines.
func NewSimulated(tempF, humidity, pressureHPa float32) *Simulated {
	s := &Simulated{
		BaseTempF:       tempF,
		BaseHumidity:    humidity,
		BasePressureHPa: pressureHPa,
		BatteryPct:      100,
		now:             time.Now,
	}
	s.started = s.now()
	return s
}

// Read returns the current simulated sample.
func (s *Simulated) Read() mesh.SensorReading {
	elapsed := s.now().Sub(s.started).Seconds()
	phase := elapsed / 600 * 2 * math.Pi // 10-minute cycle

	return mesh.SensorReading{
		TempF:       s.BaseTempF + 2*float32(math.Sin(phase)),
		Humidity:    s.BaseHumidity + 5*float32(math.Sin(phase/2)),
		PressureHPa: s.BasePressureHPa + float32(math.Sin(phase/3)),
		AltitudeM:   s.AltitudeM,
		BatteryPct:  s.BatteryPct,
		SensorsOK:   true,
	}
}

// CalibrateWithGPS aligns the barometric altitude to a GPS altitude.
func (s *Simulated) CalibrateWithGPS(altitudeM int16) {
	s.AltitudeM = float32(altitudeM)
}
