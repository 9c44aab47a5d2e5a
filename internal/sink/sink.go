// Package sink delivers accepted sensor reports to configurable
// destinations on the gateway: stdout, files, or a webhook.
package sink

import (
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/ridgelink/sensormesh/internal/logging"
	"github.com/ridgelink/sensormesh/pkg/wire"
)

// Record is one delivered report, flattened to engineering units.
type Record struct {
	SessionID  string    `json:"session_id"`
	ReceivedAt time.Time `json:"received_at"`
	SourceID   uint8     `json:"source_id"`
	MessageID  uint8     `json:"message_id"`
	Forwarded  bool      `json:"forwarded"`
	RSSI       float32   `json:"rssi"`
	SNR        float32   `json:"snr"`

	TempF       float32 `json:"temp_f"`
	Humidity    float32 `json:"humidity"`
	PressureHPa uint16  `json:"pressure_hpa"`
	AltitudeM   int16   `json:"altitude_m"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	GPSValid  bool    `json:"gps_valid"`

	UptimeSec     uint32 `json:"uptime_sec"`
	BatteryPct    uint8  `json:"battery_pct"`
	NeighborCount uint8  `json:"neighbor_count"`
	TimeSource    string `json:"time_source"`
}

func timeSourceName(statusFlags uint8) string {
	switch statusFlags & wire.StatusTimeSrcMask {
	case wire.StatusTimeSrcGPS:
		return "GPS"
	case wire.StatusTimeSrcNet:
		return "NET"
	default:
		return "NONE"
	}
}

// Output is a single report destination.
type Output interface {
	Send(rec *Record) error
	Close() error
	Name() string
}

// Multi fans accepted reports out to every configured output and retains
// each source's latest report in the node store. It implements the
// pipeline's sink boundary.
type Multi struct {
	outputs   []Output
	store     *Store
	sessionID string
	logger    *zap.Logger
	now       func() time.Time
}

// NewMulti wraps the outputs behind one sink. The session id tags every
// record emitted by this gateway process.
func NewMulti(outputs []Output) *Multi {
	return &Multi{
		outputs:   outputs,
		store:     NewStore(),
		sessionID: xid.New().String(),
		logger:    logging.Component("sink"),
		now:       time.Now,
	}
}

// SessionID returns the process-unique id stamped into records.
func (m *Multi) SessionID() string { return m.sessionID }

// Nodes returns the per-source last-report store.
func (m *Multi) Nodes() *Store { return m.store }

// OnReport converts the decoded report and delivers it to every output.
// Output failures are logged, never propagated into the pipeline.
func (m *Multi) OnReport(sourceID uint8, r *wire.FullReport, rssi, snr float32) {
	rec := &Record{
		SessionID:  m.sessionID,
		ReceivedAt: m.now(),
		SourceID:   sourceID,
		MessageID:  r.Header.MessageID,
		Forwarded:  r.Header.Forwarded(),
		RSSI:       rssi,
		SNR:        snr,

		TempF:       float32(r.TempF10) / 10,
		Humidity:    float32(r.Humidity10) / 10,
		PressureHPa: r.PressureHPa,
		AltitudeM:   r.AltitudeM,

		Latitude:  float64(r.LatE6) / 1e6,
		Longitude: float64(r.LonE6) / 1e6,
		GPSValid:  r.StatusFlags&wire.StatusGPSValid != 0,

		UptimeSec:     r.UptimeSec,
		BatteryPct:    r.BatteryPct,
		NeighborCount: r.NeighborCount,
		TimeSource:    timeSourceName(r.StatusFlags),
	}

	m.store.Update(rec)

	for _, out := range m.outputs {
		if err := out.Send(rec); err != nil {
			m.logger.Error("sink delivery failed",
				zap.String("output", out.Name()),
				zap.Error(err))
		}
	}
}

// Close shuts every output down.
func (m *Multi) Close() {
	for _, out := range m.outputs {
		if err := out.Close(); err != nil {
			m.logger.Error("error closing output",
				zap.String("output", out.Name()),
				zap.Error(err))
		}
	}
}
