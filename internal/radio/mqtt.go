package radio

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/ridgelink/sensormesh/internal/config"
	"github.com/ridgelink/sensormesh/internal/logging"
	"github.com/ridgelink/sensormesh/internal/mesh"
	"github.com/ridgelink/sensormesh/pkg/wire"
)

// MQTT is a broadcast-bus transport: every node publishes link frames to a
// shared topic and subscribes to the same topic, so the broker behaves like
// the air interface. Useful for distributed simulations across machines.
// RSSI and SNR are synthesized.
type MQTT struct {
	cfg      config.MQTTConfig
	deviceID uint8
	logger   *zap.Logger

	client  mqtt.Client
	packets chan Packet

	mu       sync.RWMutex
	ready    bool
	txSeq    uint16
	lastRSSI float32
	lastSNR  float32
}

// NewMQTT creates a broker-bus radio driver.
func NewMQTT(cfg config.MQTTConfig, deviceID uint8) (*MQTT, error) {
	return &MQTT{
		cfg:      cfg,
		deviceID: deviceID,
		logger:   logging.Component("radio", zap.String("transport", "mqtt")),
		packets:  make(chan Packet, 64),
	}, nil
}

// Init connects to the broker and subscribes to the air topic.
func (m *MQTT) Init() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return true
	}

	clientID := m.cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("sensormesh-%d-%d", m.deviceID, time.Now().UnixNano())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(m.onConnectionLost)

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
	}
	if m.cfg.Password != "" {
		opts.SetPassword(m.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		m.logger.Error("broker connection timeout", zap.String("broker", m.cfg.Broker))
		return false
	}
	if token.Error() != nil {
		m.logger.Error("broker connection failed", zap.Error(token.Error()))
		return false
	}

	m.client = client
	m.ready = true
	m.logger.Info("mqtt bus up",
		zap.String("broker", m.cfg.Broker),
		zap.String("topic", m.cfg.Topic))
	return true
}

func (m *MQTT) onConnect(client mqtt.Client) {
	token := client.Subscribe(m.cfg.Topic, 0, m.messageHandler)
	if token.Wait() && token.Error() != nil {
		m.logger.Error("subscribe failed", zap.Error(token.Error()))
	}
}

func (m *MQTT) onConnectionLost(_ mqtt.Client, err error) {
	m.logger.Warn("broker connection lost", zap.Error(err))
}

func (m *MQTT) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	h, payload, err := wire.ParseLinkFrame(msg.Payload())
	if err != nil {
		m.logger.Debug("malformed link frame on bus", zap.Int("len", len(msg.Payload())))
		return
	}
	// Our own publishes come back from the broker.
	if h.OriginID == m.deviceID {
		return
	}

	rssi, snr := synthSignal()
	select {
	case m.packets <- Packet{Link: h, Payload: payload, RSSI: rssi, SNR: snr}:
	default:
		m.logger.Warn("receive queue full, dropping packet")
	}
}

// SendBinary publishes the mesh frame to the air topic.
func (m *MQTT) SendBinary(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return false
	}
	if len(data) == 0 || len(data) > wire.MaxLinkPayload {
		return false
	}

	frame := wire.MarshalLinkFrame(wire.LinkHeader{
		OriginID: m.deviceID,
		Seq:      m.txSeq,
		TTL:      wire.LinkMaxHops,
	}, data)
	m.txSeq++

	token := m.client.Publish(m.cfg.Topic, 0, false, frame)
	if !token.WaitTimeout(5 * time.Second) {
		m.logger.Warn("publish timeout")
		return false
	}
	if token.Error() != nil {
		m.logger.Warn("publish failed", zap.Error(token.Error()))
		return false
	}
	return true
}

// PollRx hands back one received frame, if any.
func (m *MQTT) PollRx() (mesh.RxFrame, bool) {
	select {
	case pkt := <-m.packets:
		m.mu.Lock()
		m.lastRSSI = pkt.RSSI
		m.lastSNR = pkt.SNR
		m.mu.Unlock()
		return mesh.RxFrame{Payload: pkt.Payload, RSSI: pkt.RSSI, SNR: pkt.SNR}, true
	default:
		return mesh.RxFrame{}, false
	}
}

// PollNetwork is a no-op: the paho client pumps its own network loop.
func (m *MQTT) PollNetwork() {}

// PacketAvailable reports whether PollRx would return a frame.
func (m *MQTT) PacketAvailable() bool { return len(m.packets) > 0 }

// IsReady reports whether the bus is connected.
func (m *MQTT) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready && m.client != nil && m.client.IsConnected()
}

// StartReceive is a no-op: the subscription stays live.
func (m *MQTT) StartReceive() {}

// Standby is a no-op on the bus transport.
func (m *MQTT) Standby() {}

// LastRSSI returns the synthesized RSSI of the last received frame.
func (m *MQTT) LastRSSI() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRSSI
}

// LastSNR returns the synthesized SNR of the last received frame.
func (m *MQTT) LastSNR() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSNR
}

// DeviceID returns the node id stamped into outgoing link frames.
func (m *MQTT) DeviceID() uint8 { return m.deviceID }

// Name returns the transport identifier.
func (m *MQTT) Name() string {
	return fmt.Sprintf("mqtt:%s", m.cfg.Broker)
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil
	}
	m.ready = false
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(1000)
	}
	return nil
}
