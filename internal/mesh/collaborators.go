package mesh

import "github.com/ridgelink/sensormesh/pkg/wire"

// The four external collaborators of the mesh core. They are the only
// polymorphic boundaries; everything else is owned state.

// RxFrame is one received mesh frame with its signal metadata. The link
// header has already been stripped by the radio driver.
type RxFrame struct {
	Payload []byte
	RSSI    float32
	SNR     float32
}

// Radio is the half-duplex broadcast channel. SendBinary blocks for the
// duration of the transmission and restores receive mode before returning.
type Radio interface {
	IsReady() bool
	SendBinary(data []byte) bool
	PollRx() (RxFrame, bool)
	PollNetwork()
}

// GPSSnapshot is the current fix, split into independent time and location
// validity.
type GPSSnapshot struct {
	Hour   uint8
	Minute uint8
	Second uint8

	LatE6      int32
	LonE6      int32
	AltitudeM  int16
	Satellites uint8
	HDOP10     uint8

	DatetimeValid bool
	LocationValid bool
}

// GPS supplies position and UTC time of day.
type GPS interface {
	Snapshot() GPSSnapshot
}

// SensorReading is one environmental sample.
type SensorReading struct {
	TempF       float32
	Humidity    float32
	PressureHPa float32
	AltitudeM   float32
	BatteryPct  uint8
	SensorsOK   bool
}

// Sensors supplies environmental readings.
type Sensors interface {
	Read() SensorReading
}

// Sink receives accepted reports on the gateway: every non-self FULL_REPORT
// that passed duplicate suppression, before the forwarding decision.
type Sink interface {
	OnReport(sourceID uint8, report *wire.FullReport, rssi, snr float32)
}
