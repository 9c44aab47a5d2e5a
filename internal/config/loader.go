package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load reads the configuration from viper and returns a Config struct.
// Unset keys keep their deployment defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Node identity
	if viper.IsSet("node.device_id") {
		cfg.Node.DeviceID = uint8(viper.GetUint("node.device_id"))
	}
	if viper.IsSet("node.gateway_node_id") {
		cfg.Node.GatewayNodeID = uint8(viper.GetUint("node.gateway_node_id"))
	}
	if viper.IsSet("node.utc_offset_hours") {
		cfg.Node.UTCOffsetHours = int8(viper.GetInt("node.utc_offset_hours"))
	}

	// Mesh tuning
	loadInt(&cfg.Mesh.MaxNodes, "mesh.max_nodes")
	loadUint8(&cfg.Mesh.MaxHops, "mesh.max_hops")
	loadUint8(&cfg.Mesh.DefaultTTL, "mesh.default_ttl")
	loadDuration(&cfg.Mesh.BeaconInterval, "mesh.beacon_interval")
	loadDuration(&cfg.Mesh.RouteTimeout, "mesh.route_timeout")
	loadDuration(&cfg.Mesh.RebroadcastMin, "mesh.rebroadcast_min")
	loadDuration(&cfg.Mesh.RebroadcastMax, "mesh.rebroadcast_max")
	loadDuration(&cfg.Mesh.DuplicateWindow, "mesh.duplicate_window")
	loadDuration(&cfg.Mesh.NeighborTimeout, "mesh.neighbor_timeout")
	loadDuration(&cfg.Mesh.NetworkTimeMaxAge, "mesh.network_time_max_age")
	loadInt(&cfg.Mesh.TxQueueSize, "mesh.tx_queue_size")
	loadInt(&cfg.Mesh.MaxMessageSize, "mesh.max_message_size")
	loadInt(&cfg.Mesh.SeenCacheSize, "mesh.seen_cache_size")
	loadInt(&cfg.Mesh.MaxNeighbors, "mesh.max_neighbors")
	if viper.IsSet("mesh.use_gradient_routing") {
		cfg.Mesh.UseGradientRouting = viper.GetBool("mesh.use_gradient_routing")
	}

	// Radio transport
	if viper.IsSet("radio.type") {
		cfg.Radio.Type = viper.GetString("radio.type")
	}
	if viper.IsSet("radio.udp.group") {
		cfg.Radio.UDP.Group = viper.GetString("radio.udp.group")
	}
	loadInt(&cfg.Radio.UDP.Port, "radio.udp.port")
	if viper.IsSet("radio.serial.port") {
		cfg.Radio.Serial.Port = viper.GetString("radio.serial.port")
	}
	loadInt(&cfg.Radio.Serial.Baud, "radio.serial.baud")
	if viper.IsSet("radio.mqtt.broker") {
		cfg.Radio.MQTT.Broker = viper.GetString("radio.mqtt.broker")
	}
	if viper.IsSet("radio.mqtt.topic") {
		cfg.Radio.MQTT.Topic = viper.GetString("radio.mqtt.topic")
	}
	cfg.Radio.MQTT.Username = viper.GetString("radio.mqtt.username")
	cfg.Radio.MQTT.Password = viper.GetString("radio.mqtt.password")
	cfg.Radio.MQTT.ClientID = viper.GetString("radio.mqtt.client_id")

	// Sinks
	if sinksRaw := viper.Get("sinks"); sinksRaw != nil {
		if sinks, ok := sinksRaw.([]interface{}); ok {
			cfg.Sinks = make([]SinkConfig, 0, len(sinks))
			for _, s := range sinks {
				if sMap, ok := s.(map[string]interface{}); ok {
					cfg.Sinks = append(cfg.Sinks, SinkConfig{
						Type:    getString(sMap, "type"),
						Enabled: getBool(sMap, "enabled"),
						Options: sMap,
					})
				}
			}
		}
	}

	// Metrics
	if viper.IsSet("metrics.enabled") {
		cfg.Metrics.Enabled = viper.GetBool("metrics.enabled")
	}
	if viper.IsSet("metrics.listen") {
		cfg.Metrics.Listen = viper.GetString("metrics.listen")
	}

	// Logging
	if viper.IsSet("logging.level") {
		cfg.Logging.Level = viper.GetString("logging.level")
	}
	if viper.IsSet("logging.format") {
		cfg.Logging.Format = viper.GetString("logging.format")
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Node.DeviceID < 1 || c.Node.DeviceID > 254 {
		return fmt.Errorf("node.device_id must be in [1,254], got %d", c.Node.DeviceID)
	}
	if c.Node.GatewayNodeID < 1 || c.Node.GatewayNodeID > 254 {
		return fmt.Errorf("node.gateway_node_id must be in [1,254], got %d", c.Node.GatewayNodeID)
	}
	if int(c.Node.DeviceID) > c.Mesh.MaxNodes {
		return fmt.Errorf("node.device_id %d exceeds mesh.max_nodes %d (no TDMA slot)",
			c.Node.DeviceID, c.Mesh.MaxNodes)
	}

	if c.Mesh.DefaultTTL == 0 {
		return fmt.Errorf("mesh.default_ttl must be at least 1")
	}
	if c.Mesh.RebroadcastMax < c.Mesh.RebroadcastMin {
		return fmt.Errorf("mesh.rebroadcast_max must be >= mesh.rebroadcast_min")
	}
	if c.Mesh.TxQueueSize < 1 || c.Mesh.SeenCacheSize < 1 || c.Mesh.MaxNeighbors < 1 {
		return fmt.Errorf("mesh table sizes must be at least 1")
	}
	if c.Mesh.MaxMessageSize < 39 {
		return fmt.Errorf("mesh.max_message_size must hold a full report frame (39 bytes)")
	}

	switch c.Radio.Type {
	case "udp", "serial", "mqtt":
	case "":
		return fmt.Errorf("radio.type is required")
	default:
		return fmt.Errorf("invalid radio.type: %s (must be udp, serial, or mqtt)", c.Radio.Type)
	}

	switch c.Radio.Type {
	case "serial":
		if c.Radio.Serial.Port == "" {
			return fmt.Errorf("radio.serial.port is required for serial radio")
		}
	case "mqtt":
		if c.Radio.MQTT.Broker == "" {
			return fmt.Errorf("radio.mqtt.broker is required for mqtt radio")
		}
	case "udp":
		if c.Radio.UDP.Group == "" || c.Radio.UDP.Port == 0 {
			return fmt.Errorf("radio.udp.group and radio.udp.port are required for udp radio")
		}
	}

	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("sinks[%d].type is required", i)
		}
		switch s.Type {
		case "stdout", "file", "webhook":
		default:
			return fmt.Errorf("sinks[%d].type is invalid: %s", i, s.Type)
		}
	}

	return nil
}

// Helper functions

func loadInt(dst *int, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}

func loadUint8(dst *uint8, key string) {
	if viper.IsSet(key) {
		*dst = uint8(viper.GetUint(key))
	}
}

func loadDuration(dst *time.Duration, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetDuration(key)
	}
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
