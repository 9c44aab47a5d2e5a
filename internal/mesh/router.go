package mesh

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/ridgelink/sensormesh/pkg/wire"
)

// RouterConfig carries the gradient routing knobs.
type RouterConfig struct {
	DeviceID     uint8
	GatewayID    uint8
	IsGateway    bool
	UseGradient  bool // false = pure flooding
	RouteTimeout time.Duration
	RelayMin     time.Duration // beacon rebroadcast jitter window
	RelayMax     time.Duration
}

// RouterStats tracks gradient routing activity.
type RouterStats struct {
	BeaconsReceived   uint64
	BeaconsSent       uint64
	RouteUpdates      uint64
	UnicastForwards   uint64
	FloodingFallbacks uint64
	RouteExpirations  uint64
}

// Router maintains this node's distance-to-gateway gradient from received
// beacons and schedules beacon relays.
//
// A gateway pins distance 0 with itself as next hop and never expires or
// rebroadcasts; every other node learns its route from beacons and falls
// back to flooding when the route goes stale.
type Router struct {
	cfg    RouterConfig
	logger *zap.Logger

	distanceToGateway uint8
	nextHop           uint8
	gatewayID         uint8
	bestRSSI          int16
	lastBeaconSeq     uint16
	lastBeaconAt      time.Time
	routeValid        bool

	pendingBeacon *wire.Beacon
	pendingAt     time.Time

	stats RouterStats

	now func() time.Time
}

// NewRouter creates a router in its initial no-route state (or the pinned
// gateway state).
func NewRouter(cfg RouterConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	r.Init()
	return r
}

// Init resets the routing state.
func (r *Router) Init() {
	r.distanceToGateway = wire.DistanceUnknown
	r.nextHop = 0
	r.gatewayID = r.cfg.GatewayID
	r.bestRSSI = -127
	r.lastBeaconSeq = 0
	r.lastBeaconAt = time.Time{}
	r.routeValid = false
	r.pendingBeacon = nil

	if r.cfg.IsGateway {
		r.distanceToGateway = 0
		r.nextHop = r.cfg.DeviceID
		r.routeValid = true
	}
}

// OnBeaconReceived updates the route from a beacon heard on the air. The
// route moves when it is the first one, strictly shorter, equal length with
// better RSSI, or a refresh from the current next hop.
func (r *Router) OnBeaconReceived(b *wire.Beacon, rssi int16) {
	r.stats.BeaconsReceived++

	// Gateway route is pinned.
	if r.cfg.IsGateway {
		return
	}

	newDist := b.DistanceToGateway + 1
	if newDist < b.DistanceToGateway { // overflow
		newDist = wire.DistanceUnknown
	}

	var reason string
	switch {
	case !r.routeValid:
		reason = "first route"
	case newDist < r.distanceToGateway:
		reason = "shorter path"
	case newDist == r.distanceToGateway && rssi > r.bestRSSI:
		reason = "better rssi"
	case b.Header.SenderID == r.nextHop:
		reason = "refresh"
	default:
		return
	}

	prevDist := r.distanceToGateway
	prevHop := r.nextHop

	r.distanceToGateway = newDist
	r.nextHop = b.Header.SenderID
	r.gatewayID = b.GatewayID
	r.bestRSSI = rssi
	r.lastBeaconSeq = b.SequenceNumber
	r.lastBeaconAt = r.now()
	r.routeValid = true
	r.stats.RouteUpdates++

	r.logger.Info("route updated",
		zap.String("reason", reason),
		zap.Uint8("distance", newDist),
		zap.Uint8("prevDistance", prevDist),
		zap.Uint8("nextHop", r.nextHop),
		zap.Uint8("prevNextHop", prevHop),
		zap.Int16("rssi", rssi),
		zap.Uint16("beaconSeq", b.SequenceNumber))
}

// CheckExpiration invalidates the route once no beacon has refreshed it
// within the timeout.
func (r *Router) CheckExpiration() {
	if r.cfg.IsGateway || !r.routeValid {
		return
	}
	elapsed := r.now().Sub(r.lastBeaconAt)
	if elapsed > r.cfg.RouteTimeout {
		r.Invalidate()
		r.stats.RouteExpirations++
		r.logger.Warn("route expired, falling back to flooding",
			zap.Duration("sinceLastBeacon", elapsed))
	}
}

// Invalidate drops the route, forcing flooding until the next beacon.
func (r *Router) Invalidate() {
	if r.cfg.IsGateway {
		return
	}
	r.routeValid = false
	r.distanceToGateway = wire.DistanceUnknown
	r.bestRSSI = -127
}

// HasValidRoute reports whether a fresh gradient route exists. With gradient
// routing disabled it always reports false on non-gateways so the pipeline
// floods; the gateway's pinned state ignores the toggle.
func (r *Router) HasValidRoute() bool {
	if !r.cfg.UseGradient && !r.cfg.IsGateway {
		return false
	}
	r.CheckExpiration()
	return r.routeValid
}

// NextHop returns the neighbor leading toward the gateway, 0 when unknown.
func (r *Router) NextHop() uint8 { return r.nextHop }

// DistanceToGateway returns the hop count toward the gateway, 255 when
// unknown.
func (r *Router) DistanceToGateway() uint8 { return r.distanceToGateway }

// GatewayID returns the gateway this node is routing toward.
func (r *Router) GatewayID() uint8 { return r.gatewayID }

// BestRSSI returns the signal strength of the current route.
func (r *Router) BestRSSI() int16 { return r.bestRSSI }

// RouteValid reports the raw validity flag without triggering expiration.
func (r *Router) RouteValid() bool { return r.routeValid }

// ScheduleRebroadcast queues a relayed copy of the beacon: our distance, our
// sender id, TTL decremented, delayed by a random jitter so neighboring
// relays don't collide. A still-pending beacon is overwritten; the freshest
// view wins.
func (r *Router) ScheduleRebroadcast(b *wire.Beacon, rssi int16) {
	_ = rssi
	if r.cfg.IsGateway {
		return
	}
	if b.Header.TTL <= 1 {
		return
	}
	if b.Header.SourceID == r.cfg.DeviceID {
		return
	}

	relay := *b
	relay.DistanceToGateway = r.distanceToGateway
	relay.Header.SenderID = r.cfg.DeviceID
	relay.Header.TTL--

	jitter := r.cfg.RelayMin
	if span := r.cfg.RelayMax - r.cfg.RelayMin; span > 0 {
		jitter += time.Duration(rand.Int63n(int64(span)))
	}
	r.pendingBeacon = &relay
	r.pendingAt = r.now().Add(jitter)

	r.logger.Debug("beacon rebroadcast scheduled",
		zap.Uint8("sourceId", relay.Header.SourceID),
		zap.Uint8("ttl", relay.Header.TTL),
		zap.Duration("delay", jitter))
}

// PendingBeaconReady reports whether a scheduled relay's jitter has elapsed.
func (r *Router) PendingBeaconReady() bool {
	return r.pendingBeacon != nil && !r.now().Before(r.pendingAt)
}

// TakePendingBeacon returns the relay-ready beacon and clears the pending
// slot, or nil when nothing is due.
func (r *Router) TakePendingBeacon() *wire.Beacon {
	if !r.PendingBeaconReady() {
		return nil
	}
	b := r.pendingBeacon
	r.pendingBeacon = nil
	return b
}

// CountBeaconSent records a beacon transmission (origination or relay).
func (r *Router) CountBeaconSent() { r.stats.BeaconsSent++ }

// CountUnicastForward records a gradient-filtered forward.
func (r *Router) CountUnicastForward() { r.stats.UnicastForwards++ }

// CountFloodingFallback records a forward taken without a route.
func (r *Router) CountFloodingFallback() { r.stats.FloodingFallbacks++ }

// Stats returns a copy of the routing counters.
func (r *Router) Stats() RouterStats { return r.stats }
