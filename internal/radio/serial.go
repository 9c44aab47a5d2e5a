package radio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/ridgelink/sensormesh/internal/config"
	"github.com/ridgelink/sensormesh/internal/logging"
	"github.com/ridgelink/sensormesh/internal/mesh"
	"github.com/ridgelink/sensormesh/pkg/wire"
)

// Serial bridges to a hardware LoRa radio over a serial port. The bridge
// firmware exchanges stream-framed link frames; signal metadata is not
// carried over the bridge, so RSSI/SNR read as zero.
type Serial struct {
	cfg      config.SerialConfig
	deviceID uint8
	logger   *zap.Logger

	port    serial.Port
	framer  *wire.StreamFramer
	packets chan Packet

	mu       sync.RWMutex
	ready    bool
	txSeq    uint16
	lastRSSI float32
	lastSNR  float32
	stopCh   chan struct{}
}

// NewSerial creates a serial bridge driver.
func NewSerial(cfg config.SerialConfig, deviceID uint8) (*Serial, error) {
	return &Serial{
		cfg:      cfg,
		deviceID: deviceID,
		logger:   logging.Component("radio", zap.String("transport", "serial")),
		packets:  make(chan Packet, 64),
		stopCh:   make(chan struct{}),
	}, nil
}

// Init opens the port and starts the receive pump.
func (s *Serial) Init() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return true
	}

	mode := &serial.Mode{BaudRate: s.cfg.Baud}
	port, err := serial.Open(s.cfg.Port, mode)
	if err != nil {
		s.logger.Error("failed to open serial port",
			zap.String("port", s.cfg.Port), zap.Error(err))
		return false
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		s.logger.Error("failed to set read timeout", zap.Error(err))
		return false
	}

	s.port = port
	s.framer = wire.NewStreamFramer(port, port)
	s.ready = true
	s.stopCh = make(chan struct{})

	go s.readLoop()

	s.logger.Info("serial bridge up",
		zap.String("port", s.cfg.Port),
		zap.Int("baud", s.cfg.Baud))
	return true
}

func (s *Serial) readLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		frame, err := s.framer.ReadFrame()
		if err != nil {
			if errors.Is(err, wire.ErrInvalidMagic) {
				continue // resync and retry
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Debug("serial read error", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		h, payload, err := wire.ParseLinkFrame(frame)
		if err != nil {
			s.logger.Debug("malformed link frame from bridge", zap.Int("len", len(frame)))
			continue
		}
		if h.OriginID == s.deviceID {
			continue
		}

		select {
		case s.packets <- Packet{Link: h, Payload: payload}:
		default:
			s.logger.Warn("receive queue full, dropping packet")
		}
	}
}

// SendBinary hands the mesh frame to the bridge. Blocks until the bridge
// has accepted the frame.
func (s *Serial) SendBinary(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false
	}
	if len(data) == 0 || len(data) > wire.MaxLinkPayload {
		return false
	}

	frame := wire.MarshalLinkFrame(wire.LinkHeader{
		OriginID: s.deviceID,
		Seq:      s.txSeq,
		TTL:      wire.LinkMaxHops,
	}, data)
	s.txSeq++

	if err := s.framer.WriteFrame(frame); err != nil {
		s.logger.Warn("bridge write failed", zap.Error(err))
		return false
	}
	return true
}

// PollRx hands back one received frame, if any.
func (s *Serial) PollRx() (mesh.RxFrame, bool) {
	select {
	case pkt := <-s.packets:
		s.mu.Lock()
		s.lastRSSI = pkt.RSSI
		s.lastSNR = pkt.SNR
		s.mu.Unlock()
		return mesh.RxFrame{Payload: pkt.Payload, RSSI: pkt.RSSI, SNR: pkt.SNR}, true
	default:
		return mesh.RxFrame{}, false
	}
}

// PollNetwork is a no-op on the hardware bridge.
func (s *Serial) PollNetwork() {}

// PacketAvailable reports whether PollRx would return a frame.
func (s *Serial) PacketAvailable() bool { return len(s.packets) > 0 }

// IsReady reports whether the bridge is up.
func (s *Serial) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// StartReceive is a no-op: the bridge radio stays in receive mode.
func (s *Serial) StartReceive() {}

// Standby is a no-op over the bridge.
func (s *Serial) Standby() {}

// LastRSSI returns the RSSI of the last frame (zero over the bridge).
func (s *Serial) LastRSSI() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRSSI
}

// LastSNR returns the SNR of the last frame (zero over the bridge).
func (s *Serial) LastSNR() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSNR
}

// DeviceID returns the node id stamped into outgoing link frames.
func (s *Serial) DeviceID() uint8 { return s.deviceID }

// Name returns the transport identifier.
func (s *Serial) Name() string {
	return fmt.Sprintf("serial:%s", s.cfg.Port)
}

// Close shuts the port down.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	s.ready = false
	close(s.stopCh)
	return s.port.Close()
}
