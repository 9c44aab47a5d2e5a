package radio

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/ridgelink/sensormesh/internal/config"
	"github.com/ridgelink/sensormesh/internal/logging"
	"github.com/ridgelink/sensormesh/internal/mesh"
	"github.com/ridgelink/sensormesh/pkg/wire"
)

// UDP is the simulated radio: every node in a simulation joins the same
// multicast group, so a send is heard by all peers, like the real broadcast
// channel. RSSI and SNR are synthesized.
type UDP struct {
	cfg      config.UDPConfig
	deviceID uint8
	logger   *zap.Logger

	recvConn *net.UDPConn
	sendConn *net.UDPConn
	packets  chan Packet

	mu       sync.RWMutex
	ready    bool
	txSeq    uint16
	lastRSSI float32
	lastSNR  float32
	stopCh   chan struct{}
}

// NewUDP creates a simulated radio on the given multicast group.
func NewUDP(cfg config.UDPConfig, deviceID uint8) (*UDP, error) {
	return &UDP{
		cfg:      cfg,
		deviceID: deviceID,
		logger:   logging.Component("radio", zap.String("transport", "udp")),
		packets:  make(chan Packet, 64),
		stopCh:   make(chan struct{}),
	}, nil
}

// Init joins the multicast group and starts the receive pump.
func (u *UDP) Init() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ready {
		return true
	}

	group := net.ParseIP(u.cfg.Group)
	if group == nil {
		u.logger.Error("invalid multicast group", zap.String("group", u.cfg.Group))
		return false
	}
	gaddr := &net.UDPAddr{IP: group, Port: u.cfg.Port}

	recvConn, err := net.ListenMulticastUDP("udp4", nil, gaddr)
	if err != nil {
		u.logger.Error("failed to join multicast group", zap.Error(err))
		return false
	}
	_ = recvConn.SetReadBuffer(1 << 16)

	sendConn, err := net.DialUDP("udp4", nil, gaddr)
	if err != nil {
		_ = recvConn.Close()
		u.logger.Error("failed to open send socket", zap.Error(err))
		return false
	}

	u.recvConn = recvConn
	u.sendConn = sendConn
	u.ready = true
	u.stopCh = make(chan struct{})

	go u.readLoop()

	u.logger.Info("simulated radio up",
		zap.String("group", gaddr.String()),
		zap.Uint8("deviceId", u.deviceID))
	return true
}

func (u *UDP) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, _, err := u.recvConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.stopCh:
				return
			default:
				u.logger.Warn("receive error", zap.Error(err))
				continue
			}
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		h, payload, err := wire.ParseLinkFrame(frame)
		if err != nil {
			u.logger.Debug("malformed link frame dropped", zap.Int("len", n))
			continue
		}
		// Multicast loopback: ignore our own transmissions.
		if h.OriginID == u.deviceID {
			continue
		}
		if len(payload) > wire.MaxLinkPayload {
			payload = payload[:wire.MaxLinkPayload]
		}

		rssi, snr := synthSignal()
		pkt := Packet{Link: h, Payload: payload, RSSI: rssi, SNR: snr}

		select {
		case u.packets <- pkt:
		default:
			u.logger.Warn("receive queue full, dropping packet")
		}
	}
}

// SendBinary wraps the mesh frame in a link frame and multicasts it.
func (u *UDP) SendBinary(data []byte) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.ready {
		return false
	}
	if len(data) == 0 || len(data) > wire.MaxLinkPayload {
		return false
	}

	frame := wire.MarshalLinkFrame(wire.LinkHeader{
		OriginID: u.deviceID,
		Seq:      u.txSeq,
		TTL:      wire.LinkMaxHops,
	}, data)
	u.txSeq++

	if _, err := u.sendConn.Write(frame); err != nil {
		u.logger.Warn("transmit failed", zap.Error(err))
		return false
	}
	return true
}

// PollRx hands back one received frame, if any.
func (u *UDP) PollRx() (mesh.RxFrame, bool) {
	select {
	case pkt := <-u.packets:
		u.mu.Lock()
		u.lastRSSI = pkt.RSSI
		u.lastSNR = pkt.SNR
		u.mu.Unlock()
		return mesh.RxFrame{Payload: pkt.Payload, RSSI: pkt.RSSI, SNR: pkt.SNR}, true
	default:
		return mesh.RxFrame{}, false
	}
}

// PollNetwork is a no-op: the socket is pumped by the read loop.
func (u *UDP) PollNetwork() {}

// PacketAvailable reports whether PollRx would return a frame.
func (u *UDP) PacketAvailable() bool { return len(u.packets) > 0 }

// IsReady reports whether the transport is up.
func (u *UDP) IsReady() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.ready
}

// StartReceive is a no-op: the simulated radio always listens.
func (u *UDP) StartReceive() {}

// Standby is a no-op on the simulated transport.
func (u *UDP) Standby() {}

// LastRSSI returns the synthesized RSSI of the last received frame.
func (u *UDP) LastRSSI() float32 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastRSSI
}

// LastSNR returns the synthesized SNR of the last received frame.
func (u *UDP) LastSNR() float32 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastSNR
}

// DeviceID returns the node id stamped into outgoing link frames.
func (u *UDP) DeviceID() uint8 { return u.deviceID }

// Name returns the transport identifier.
func (u *UDP) Name() string {
	return fmt.Sprintf("udp:%s:%d", u.cfg.Group, u.cfg.Port)
}

// Close shuts the sockets down.
func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.ready {
		return nil
	}
	u.ready = false
	close(u.stopCh)
	_ = u.sendConn.Close()
	return u.recvConn.Close()
}
