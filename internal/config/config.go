// Package config provides configuration types and loading for a mesh node.
package config

import "time"

// Config represents the complete node configuration.
type Config struct {
	Node    NodeConfig    `mapstructure:"node"`
	Mesh    MeshConfig    `mapstructure:"mesh"`
	Radio   RadioConfig   `mapstructure:"radio"`
	Sinks   []SinkConfig  `mapstructure:"sinks"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// NodeConfig identifies this node within the deployment.
type NodeConfig struct {
	DeviceID       uint8 `mapstructure:"device_id"`
	GatewayNodeID  uint8 `mapstructure:"gateway_node_id"`
	UTCOffsetHours int8  `mapstructure:"utc_offset_hours"`
}

// IsGateway reports whether this node is the deployment's gateway.
func (n NodeConfig) IsGateway() bool {
	return n.DeviceID == n.GatewayNodeID
}

// MeshConfig carries the mesh protocol tuning knobs.
type MeshConfig struct {
	MaxNodes   int   `mapstructure:"max_nodes"`
	MaxHops    uint8 `mapstructure:"max_hops"`
	DefaultTTL uint8 `mapstructure:"default_ttl"`

	BeaconInterval    time.Duration `mapstructure:"beacon_interval"`
	RouteTimeout      time.Duration `mapstructure:"route_timeout"`
	RebroadcastMin    time.Duration `mapstructure:"rebroadcast_min"`
	RebroadcastMax    time.Duration `mapstructure:"rebroadcast_max"`
	DuplicateWindow   time.Duration `mapstructure:"duplicate_window"`
	NeighborTimeout   time.Duration `mapstructure:"neighbor_timeout"`
	NetworkTimeMaxAge time.Duration `mapstructure:"network_time_max_age"`

	TxQueueSize    int `mapstructure:"tx_queue_size"`
	MaxMessageSize int `mapstructure:"max_message_size"`
	SeenCacheSize  int `mapstructure:"seen_cache_size"`
	MaxNeighbors   int `mapstructure:"max_neighbors"`

	UseGradientRouting bool `mapstructure:"use_gradient_routing"`
}

// RadioConfig defines the transport carrying mesh frames.
type RadioConfig struct {
	Type   string       `mapstructure:"type"` // udp, serial, mqtt
	UDP    UDPConfig    `mapstructure:"udp"`
	Serial SerialConfig `mapstructure:"serial"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
}

// UDPConfig defines the multicast group for the simulated radio.
type UDPConfig struct {
	Group string `mapstructure:"group"`
	Port  int    `mapstructure:"port"`
}

// SerialConfig defines the serial bridge to a hardware radio.
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// MQTTConfig defines the MQTT broadcast-bus transport.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
}

// SinkConfig defines a single gateway report sink.
type SinkConfig struct {
	Type    string                 `mapstructure:"type"` // stdout, file, webhook
	Enabled bool                   `mapstructure:"enabled"`
	Options map[string]interface{} `mapstructure:",remain"`
}

// MetricsConfig defines the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// DefaultConfig returns a configuration with the deployment defaults.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			DeviceID:       1,
			GatewayNodeID:  1,
			UTCOffsetHours: 0,
		},
		Mesh: MeshConfig{
			MaxNodes:           5,
			MaxHops:            8,
			DefaultTTL:         3,
			BeaconInterval:     30 * time.Second,
			RouteTimeout:       60 * time.Second,
			RebroadcastMin:     100 * time.Millisecond,
			RebroadcastMax:     500 * time.Millisecond,
			DuplicateWindow:    120 * time.Second,
			NeighborTimeout:    180 * time.Second,
			NetworkTimeMaxAge:  120 * time.Second,
			TxQueueSize:        8,
			MaxMessageSize:     64,
			SeenCacheSize:      32,
			MaxNeighbors:       10,
			UseGradientRouting: true,
		},
		Radio: RadioConfig{
			Type: "udp",
			UDP: UDPConfig{
				Group: "239.77.83.1",
				Port:  47077,
			},
			Serial: SerialConfig{
				Port: "/dev/ttyUSB0",
				Baud: 115200,
			},
			MQTT: MQTTConfig{
				Broker: "tcp://localhost:1883",
				Topic:  "sensormesh/air",
			},
		},
		Sinks: []SinkConfig{
			{
				Type:    "stdout",
				Enabled: true,
				Options: map[string]interface{}{
					"format": "json",
				},
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9477",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
