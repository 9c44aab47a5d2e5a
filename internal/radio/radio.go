// Package radio provides the half-duplex broadcast transports carrying mesh
// frames: a UDP-multicast simulation, a serial bridge to hardware, and an
// MQTT bus. All drivers speak the same link framing, so simulated and
// bridged nodes interoperate.
package radio

import (
	"fmt"
	"math/rand"

	"github.com/ridgelink/sensormesh/internal/config"
	"github.com/ridgelink/sensormesh/internal/mesh"
	"github.com/ridgelink/sensormesh/pkg/wire"
)

// Packet is one received link frame with its signal metadata. The mesh core
// consumes only the payload; the link header is driver framing.
type Packet struct {
	Link    wire.LinkHeader
	Payload []byte
	RSSI    float32
	SNR     float32
}

// Driver is the full radio surface the node service manages. It extends the
// mesh pipeline's view with lifecycle and diagnostics.
type Driver interface {
	mesh.Radio

	Init() bool
	Standby()
	StartReceive()
	PacketAvailable() bool
	LastRSSI() float32
	LastSNR() float32
	DeviceID() uint8
	Close() error
}

// New creates the configured radio driver.
func New(cfg config.RadioConfig, deviceID uint8) (Driver, error) {
	switch cfg.Type {
	case "udp":
		return NewUDP(cfg.UDP, deviceID)
	case "serial":
		return NewSerial(cfg.Serial, deviceID)
	case "mqtt":
		return NewMQTT(cfg.MQTT, deviceID)
	default:
		return nil, fmt.Errorf("unknown radio type: %s", cfg.Type)
	}
}

// synthSignal fakes plausible LoRa signal numbers for transports that have
// none of their own.
func synthSignal() (rssi, snr float32) {
	rssi = -55 - rand.Float32()*40 // -55..-95 dBm
	snr = 5 + rand.Float32()*7     // 5..12 dB
	return rssi, snr
}
