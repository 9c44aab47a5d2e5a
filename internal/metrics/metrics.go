// Package metrics exports mesh counters over prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ridgelink/sensormesh/internal/logging"
	"github.com/ridgelink/sensormesh/internal/mesh"
)

// Source supplies the counter snapshots published by the exporter.
type Source interface {
	Stats() mesh.Stats
	RouterStats() mesh.RouterStats
	Neighbors() *mesh.NeighborTable
	Queue() *mesh.TransmitQueue
	Router() *mesh.Router
}

// Exporter republishes mesh counters as prometheus gauges. Update must be
// called from the node's main loop; the HTTP handler only reads the gauges.
type Exporter struct {
	rxFrames          prometheus.Gauge
	validReports      prometheus.Gauge
	duplicatesDropped prometheus.Gauge
	ttlExpired        prometheus.Gauge
	packetsForwarded  prometheus.Gauge
	queueOverflows    prometheus.Gauge
	txReports         prometheus.Gauge
	txForwards        prometheus.Gauge
	txFailures        prometheus.Gauge

	beaconsReceived   prometheus.Gauge
	beaconsSent       prometheus.Gauge
	routeUpdates      prometheus.Gauge
	unicastForwards   prometheus.Gauge
	floodingFallbacks prometheus.Gauge
	routeExpirations  prometheus.Gauge

	neighborCount     prometheus.Gauge
	queueDepth        prometheus.Gauge
	distanceToGateway prometheus.Gauge

	registry *prometheus.Registry
}

// NewExporter builds and registers the gauge set. Labels identify the node
// and process instance.
func NewExporter(labels prometheus.Labels) *Exporter {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "sensormesh",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	e := &Exporter{
		rxFrames:          gauge("rx_frames_total", "Frames received from the radio"),
		validReports:      gauge("valid_reports_total", "Accepted non-duplicate reports"),
		duplicatesDropped: gauge("duplicates_dropped_total", "Reports dropped by the duplicate cache"),
		ttlExpired:        gauge("ttl_expired_total", "Frames not forwarded because TTL was exhausted"),
		packetsForwarded:  gauge("packets_forwarded_total", "Frames queued for forwarding"),
		queueOverflows:    gauge("queue_overflows_total", "Forwards dropped because the queue was full"),
		txReports:         gauge("tx_reports_total", "Own reports transmitted"),
		txForwards:        gauge("tx_forwards_total", "Queued forwards transmitted"),
		txFailures:        gauge("tx_failures_total", "Radio transmit failures"),

		beaconsReceived:   gauge("beacons_received_total", "Beacons heard"),
		beaconsSent:       gauge("beacons_sent_total", "Beacons originated or relayed"),
		routeUpdates:      gauge("route_updates_total", "Gradient route changes"),
		unicastForwards:   gauge("unicast_forwards_total", "Forwards taken via the gradient filter"),
		floodingFallbacks: gauge("flooding_fallbacks_total", "Forwards taken without a route"),
		routeExpirations:  gauge("route_expirations_total", "Routes dropped by timeout"),

		neighborCount:     gauge("neighbors_active", "Active neighbor table entries"),
		queueDepth:        gauge("tx_queue_depth", "Frames waiting in the transmit queue"),
		distanceToGateway: gauge("distance_to_gateway_hops", "Current hop count to the gateway (255 = none)"),

		registry: prometheus.NewRegistry(),
	}

	e.registry.MustRegister(
		e.rxFrames, e.validReports, e.duplicatesDropped, e.ttlExpired,
		e.packetsForwarded, e.queueOverflows, e.txReports, e.txForwards,
		e.txFailures, e.beaconsReceived, e.beaconsSent, e.routeUpdates,
		e.unicastForwards, e.floodingFallbacks, e.routeExpirations,
		e.neighborCount, e.queueDepth, e.distanceToGateway,
	)
	return e
}

// Update refreshes every gauge from the mesh core.
func (e *Exporter) Update(src Source) {
	s := src.Stats()
	e.rxFrames.Set(float64(s.RxFrames))
	e.validReports.Set(float64(s.ValidReports))
	e.duplicatesDropped.Set(float64(s.DuplicatesDropped))
	e.ttlExpired.Set(float64(s.TTLExpired))
	e.packetsForwarded.Set(float64(s.PacketsForwarded))
	e.queueOverflows.Set(float64(s.QueueOverflows))
	e.txReports.Set(float64(s.TxReports))
	e.txForwards.Set(float64(s.TxForwards))
	e.txFailures.Set(float64(s.TxFailures))

	r := src.RouterStats()
	e.beaconsReceived.Set(float64(r.BeaconsReceived))
	e.beaconsSent.Set(float64(r.BeaconsSent))
	e.routeUpdates.Set(float64(r.RouteUpdates))
	e.unicastForwards.Set(float64(r.UnicastForwards))
	e.floodingFallbacks.Set(float64(r.FloodingFallbacks))
	e.routeExpirations.Set(float64(r.RouteExpirations))

	e.neighborCount.Set(float64(src.Neighbors().ActiveCount()))
	e.queueDepth.Set(float64(src.Queue().Depth()))
	e.distanceToGateway.Set(float64(src.Router().DistanceToGateway()))
}

// Serve starts the metrics endpoint in the background.
func (e *Exporter) Serve(listen string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("metrics endpoint failed", zap.Error(err))
		}
	}()
	logging.Info("metrics endpoint up", zap.String("listen", listen))
	return srv
}
