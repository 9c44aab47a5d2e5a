package sink

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ridgelink/sensormesh/internal/config"
)

// Stdout writes reports to standard output.
type Stdout struct {
	format string
}

// NewStdout creates a stdout output.
func NewStdout(cfg config.SinkConfig) (*Stdout, error) {
	format := "json"
	if f, ok := cfg.Options["format"].(string); ok {
		format = f
	}
	return &Stdout{format: format}, nil
}

// Send writes one record.
func (s *Stdout) Send(rec *Record) error {
	if s.format == "json" {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	_, err := fmt.Fprintf(os.Stdout,
		"[%s] node %d: %.1f°F %.1f%% %dhPa rssi=%.0f snr=%.1f src=%s batt=%d%%\n",
		rec.ReceivedAt.Format("15:04:05"), rec.SourceID,
		rec.TempF, rec.Humidity, rec.PressureHPa,
		rec.RSSI, rec.SNR, rec.TimeSource, rec.BatteryPct)
	return err
}

// Close is a no-op for stdout.
func (s *Stdout) Close() error { return nil }

// Name returns the output identifier.
func (s *Stdout) Name() string { return "stdout" }
