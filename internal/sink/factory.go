package sink

import (
	"fmt"

	"github.com/ridgelink/sensormesh/internal/config"
)

// New creates a single Output from its configuration.
func New(cfg config.SinkConfig) (Output, error) {
	switch cfg.Type {
	case "stdout":
		return NewStdout(cfg)
	case "file":
		return NewFile(cfg)
	case "webhook":
		return NewWebhook(cfg)
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Type)
	}
}

// Build assembles the enabled outputs into one Multi sink. A gateway with no
// enabled outputs still runs; reports are only counted.
func Build(cfgs []config.SinkConfig) (*Multi, error) {
	outputs := make([]Output, 0, len(cfgs))
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		out, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create sink %s: %w", cfg.Type, err)
		}
		outputs = append(outputs, out)
	}
	return NewMulti(outputs), nil
}
