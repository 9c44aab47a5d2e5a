// Package node runs a mesh node: it owns the mesh core and its
// collaborators and drives the tick loop from a single goroutine.
package node

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ridgelink/sensormesh/internal/config"
	"github.com/ridgelink/sensormesh/internal/logging"
	"github.com/ridgelink/sensormesh/internal/mesh"
	"github.com/ridgelink/sensormesh/internal/metrics"
	"github.com/ridgelink/sensormesh/internal/radio"
	"github.com/ridgelink/sensormesh/internal/sink"
)

// Loop cadence. The radio and scheduler are polled together well below the
// one-second TDMA granularity; maintenance and status run slower.
const (
	tickInterval        = 50 * time.Millisecond
	maintenanceInterval = time.Second
	statusLogInterval   = 60 * time.Second
	metricsInterval     = 5 * time.Second
	commandTimeout      = 2 * time.Second
)

type request struct {
	line  string
	reply chan string
}

// Service wires the mesh core to its radio, GPS, sensors and sink, and runs
// the cooperative main loop. All mesh state is touched only by that loop;
// console commands and status reads are funneled through it.
type Service struct {
	cfg    *config.Config
	core   *mesh.Core
	driver radio.Driver
	sink   *sink.Multi
	logger *zap.Logger

	exporter   *metrics.Exporter
	metricsSrv *http.Server

	requests chan request

	mu         sync.RWMutex
	running    bool
	lastStatus Status
	stopCh     chan struct{}
	done       chan struct{}
}

// New assembles a node from its configuration and injected GPS/sensor
// collaborators.
func New(cfg *config.Config, gps mesh.GPS, sensors mesh.Sensors) (*Service, error) {
	logger := logging.Component("node", zap.Uint8("deviceId", cfg.Node.DeviceID))

	driver, err := radio.New(cfg.Radio, cfg.Node.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create radio: %w", err)
	}

	var multi *sink.Multi
	if cfg.Node.IsGateway() {
		multi, err = sink.Build(cfg.Sinks)
		if err != nil {
			return nil, fmt.Errorf("failed to build sinks: %w", err)
		}
	}

	var meshSink mesh.Sink
	if multi != nil {
		meshSink = multi
	}
	core := mesh.NewCore(cfg, driver, gps, sensors, meshSink,
		logging.Component("mesh", zap.Uint8("deviceId", cfg.Node.DeviceID)))

	return &Service{
		cfg:      cfg,
		core:     core,
		driver:   driver,
		sink:     multi,
		logger:   logger,
		requests: make(chan request, 8),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start initializes the radio and launches the main loop. A radio that
// fails to initialize is fatal.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.running = true
	s.mu.Unlock()

	if !s.driver.Init() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("radio initialization failed")
	}
	s.driver.StartReceive()

	if s.cfg.Metrics.Enabled {
		s.exporter = metrics.NewExporter(prometheus.Labels{
			"device_id": fmt.Sprintf("%d", s.cfg.Node.DeviceID),
		})
		s.metricsSrv = s.exporter.Serve(s.cfg.Metrics.Listen)
	}

	s.logger.Info("node started",
		zap.Bool("gateway", s.cfg.Node.IsGateway()),
		zap.Uint8("slotStart", s.core.Scheduler().SlotStart()),
		zap.Uint8("slotEnd", s.core.Scheduler().SlotEnd()))

	go s.loop(ctx)
	return nil
}

// Stop shuts the node down.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.done

	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if err := s.driver.Close(); err != nil {
		s.logger.Error("error closing radio", zap.Error(err))
	}
	if s.sink != nil {
		s.sink.Close()
	}

	s.logger.Info("node stopped")
	return nil
}

// IsRunning reports whether the main loop is active.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Config returns the node configuration.
func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	tick := time.NewTicker(tickInterval)
	defer tick.Stop()
	maintenance := time.NewTicker(maintenanceInterval)
	defer maintenance.Stop()
	statusLog := time.NewTicker(statusLogInterval)
	defer statusLog.Stop()
	metricsTick := time.NewTicker(metricsInterval)
	defer metricsTick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("main loop stopped: context cancelled")
			return
		case <-s.stopCh:
			s.logger.Debug("main loop stopped")
			return

		case <-tick.C:
			s.core.OnRxTick()
			s.core.OnSchedulerTick()
			s.core.RelayPendingBeacon()

		case <-maintenance.C:
			s.core.OnMaintenanceTick()

		case <-statusLog.C:
			s.logStatus()

		case <-metricsTick.C:
			if s.exporter != nil {
				s.exporter.Update(s.core)
			}

		case req := <-s.requests:
			req.reply <- s.execute(req.line)
		}
	}
}

func (s *Service) logStatus() {
	stats := s.core.Stats()
	rstats := s.core.RouterStats()
	s.logger.Info("mesh status",
		zap.String("mode", string(s.core.Scheduler().Mode())),
		zap.String("timeSource", s.core.Scheduler().TimeSource().String()),
		zap.Uint8("distance", s.core.Router().DistanceToGateway()),
		zap.Uint8("nextHop", s.core.Router().NextHop()),
		zap.Uint8("neighbors", s.core.Neighbors().ActiveCount()),
		zap.Int("queueDepth", s.core.Queue().Depth()),
		zap.Uint64("rx", stats.RxFrames),
		zap.Uint64("validReports", stats.ValidReports),
		zap.Uint64("duplicates", stats.DuplicatesDropped),
		zap.Uint64("forwarded", stats.PacketsForwarded),
		zap.Uint64("beaconsRx", rstats.BeaconsReceived),
		zap.Uint64("beaconsTx", rstats.BeaconsSent))
}

// Command runs a console command on the main loop and returns its output.
func (s *Service) Command(line string) string {
	req := request{line: line, reply: make(chan string, 1)}
	select {
	case s.requests <- req:
	case <-time.After(commandTimeout):
		return "node busy"
	}
	select {
	case out := <-req.reply:
		return out
	case <-time.After(commandTimeout):
		return "node busy"
	}
}

// Status returns a display snapshot, assembled on the main loop.
func (s *Service) Status() Status {
	req := request{line: statusRequest, reply: make(chan string, 1)}
	select {
	case s.requests <- req:
	case <-time.After(commandTimeout):
		return Status{}
	}
	select {
	case <-req.reply:
	case <-time.After(commandTimeout):
		return Status{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatus
}
