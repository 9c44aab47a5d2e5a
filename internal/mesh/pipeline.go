package mesh

import (
	"time"

	"go.uber.org/zap"

	"github.com/ridgelink/sensormesh/internal/config"
	"github.com/ridgelink/sensormesh/pkg/wire"
)

// Drain limits for the node's own slot: stop one second before slot end,
// cap the forwards sent per slot, and breathe between frames so the radio
// can settle back into receive.
const (
	drainGuardSec    = 1
	maxForwardsSlot  = 5
	interFrameGap    = 50 * time.Millisecond
	postPrimaryPause = 100 * time.Millisecond
)

// Header byte offsets mutated in place when forwarding a raw frame.
const (
	offSenderID = 4
	offTTL      = 6
	offFlags    = 7
)

// Core is the mesh pipeline: it owns the scheduler, router, duplicate
// cache, neighbor table, transmit queue and network-time store, and drives
// them from the tick entrypoints. The radio, GPS, sensors and sink are
// injected collaborators.
//
// Core is single-task state: all entrypoints must be called from the same
// goroutine.
type Core struct {
	cfg    *config.Config
	logger *zap.Logger

	codec     *wire.Codec
	sched     *Scheduler
	router    *Router
	dupCache  *DuplicateCache
	neighbors *NeighborTable
	txQueue   *TransmitQueue
	netTime   *NetworkTime

	radio   Radio
	gps     GPS
	sensors Sensors
	sink    Sink

	stats          Stats
	lastBeaconSent time.Time
	startedAt      time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewCore builds the mesh core for the configured node.
func NewCore(cfg *config.Config, radio Radio, gps GPS, sensors Sensors, sink Sink, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}

	netTime := NewNetworkTime(cfg.Mesh.NetworkTimeMaxAge)
	c := &Core{
		cfg:    cfg,
		logger: logger,

		codec: wire.NewCodec(cfg.Node.DeviceID),
		sched: NewScheduler(cfg.Node.DeviceID, netTime,
			logger.With(zap.String("subsystem", "tdma"))),
		router: NewRouter(RouterConfig{
			DeviceID:     cfg.Node.DeviceID,
			GatewayID:    cfg.Node.GatewayNodeID,
			IsGateway:    cfg.Node.IsGateway(),
			UseGradient:  cfg.Mesh.UseGradientRouting,
			RouteTimeout: cfg.Mesh.RouteTimeout,
			RelayMin:     cfg.Mesh.RebroadcastMin,
			RelayMax:     cfg.Mesh.RebroadcastMax,
		}, logger.With(zap.String("subsystem", "router"))),
		dupCache:  NewDuplicateCache(cfg.Mesh.SeenCacheSize, cfg.Mesh.DuplicateWindow),
		neighbors: NewNeighborTable(cfg.Mesh.MaxNeighbors),
		txQueue:   NewTransmitQueue(cfg.Mesh.TxQueueSize, cfg.Mesh.MaxMessageSize),
		netTime:   netTime,

		radio:   radio,
		gps:     gps,
		sensors: sensors,
		sink:    sink,

		now:   time.Now,
		sleep: time.Sleep,
	}
	c.startedAt = c.now()
	return c
}

// OnRxTick drains the radio and processes every available frame in receive
// order.
func (c *Core) OnRxTick() {
	c.radio.PollNetwork()
	for {
		frame, ok := c.radio.PollRx()
		if !ok {
			return
		}
		c.processFrame(frame)
	}
}

func (c *Core) processFrame(f RxFrame) {
	c.stats.RxFrames++
	rssi := int16(f.RSSI)

	switch t := wire.Classify(f.Payload); {
	case t == wire.MsgBeacon:
		c.processBeacon(f, rssi)

	case t == wire.MsgFullReport:
		c.processReport(f, rssi)

	default:
		c.stats.UnknownDropped++
		c.logger.Debug("dropping unhandled message type",
			zap.String("type", t.String()),
			zap.Int("len", len(f.Payload)))
	}
}

func (c *Core) processBeacon(f RxFrame, rssi int16) {
	b, err := wire.DecodeBeacon(f.Payload)
	if err != nil {
		c.stats.DecodeErrors++
		c.logger.Debug("beacon decode failed", zap.Error(err))
		return
	}
	c.warnVersion(b.Header)

	// Radio loopback: our own beacon coming back.
	if b.Header.SourceID == c.cfg.Node.DeviceID {
		return
	}

	c.logger.Debug("beacon received",
		zap.Uint8("from", b.Header.SenderID),
		zap.Uint8("distance", b.DistanceToGateway),
		zap.Uint8("ttl", b.Header.TTL),
		zap.Uint16("seq", b.SequenceNumber),
		zap.Int16("rssi", rssi))

	c.router.OnBeaconReceived(b, rssi)

	// Time relay: receiving from a node at distance d puts us d+1 hops from
	// the GPS source.
	if b.TimeValid == 1 {
		hop := b.DistanceToGateway + 1
		if hop == 0 { // distance 255 wrapped
			hop = 255
		}
		c.netTime.Update(b.Hour, b.Minute, b.Second, b.Header.SenderID, hop)
	}

	c.router.ScheduleRebroadcast(b, rssi)
	c.neighbors.Update(b.Header.SenderID, rssi)
}

func (c *Core) processReport(f RxFrame, rssi int16) {
	r, err := wire.DecodeFullReport(f.Payload)
	if err != nil {
		c.stats.DecodeErrors++
		c.logger.Debug("report decode failed", zap.Error(err))
		return
	}
	c.warnVersion(r.Header)

	if r.Header.SourceID == c.cfg.Node.DeviceID {
		c.stats.OwnPacketsIgnored++
		return
	}

	if c.dupCache.IsDuplicate(r.Header.SourceID, r.Header.MessageID) {
		c.stats.DuplicatesDropped++
		c.logger.Debug("duplicate report dropped",
			zap.Uint8("sourceId", r.Header.SourceID),
			zap.Uint8("messageId", r.Header.MessageID))
		return
	}
	c.dupCache.MarkSeen(r.Header.SourceID, r.Header.MessageID)

	c.stats.ValidReports++
	c.neighbors.Update(r.Header.SenderID, rssi)

	c.logger.Info("report received",
		zap.Uint8("sourceId", r.Header.SourceID),
		zap.Uint8("senderId", r.Header.SenderID),
		zap.Uint8("messageId", r.Header.MessageID),
		zap.Uint8("ttl", r.Header.TTL),
		zap.Bool("forwarded", r.Header.Forwarded()),
		zap.Int16("rssi", rssi))

	if c.cfg.Node.IsGateway() && c.sink != nil {
		c.sink.OnReport(r.Header.SourceID, r, f.RSSI, f.SNR)
	}

	if c.shouldForward(r.Header) {
		c.scheduleForward(f.Payload)
	}
}

// shouldForward applies the forwarding rules: TTL budget, own-packet and
// gateway-broadcast termination, then the gradient filter (or flooding when
// no route exists).
func (c *Core) shouldForward(h wire.Header) bool {
	if h.TTL <= 1 {
		c.stats.TTLExpired++
		return false
	}
	if h.SourceID == c.cfg.Node.DeviceID {
		c.stats.OwnPacketsIgnored++
		return false
	}

	// The gateway is the sink for broadcasts; re-broadcasting there would
	// bounce traffic back into the mesh.
	if c.cfg.Node.IsGateway() && h.DestID == wire.AddrBroadcast {
		c.stats.GatewaySkips++
		return false
	}

	if c.router.HasValidRoute() {
		if c.cfg.Node.IsGateway() {
			return true
		}
		// Arrived from our own next hop: relaying would push it away from
		// the gateway.
		if h.SenderID == c.router.NextHop() {
			return false
		}
		c.router.CountUnicastForward()
		return true
	}

	c.router.CountFloodingFallback()
	return true
}

// scheduleForward finalizes a forward copy in place (TTL down, our sender
// id, forwarded flag) and queues it for the next slot.
func (c *Core) scheduleForward(frame []byte) {
	fwd := make([]byte, len(frame))
	copy(fwd, frame)
	fwd[offTTL]--
	fwd[offSenderID] = c.cfg.Node.DeviceID
	fwd[offFlags] |= wire.FlagIsForwarded

	if !c.txQueue.Enqueue(fwd) {
		c.stats.QueueOverflows++
		c.logger.Warn("forward queue full, dropping",
			zap.Uint8("sourceId", fwd[2]),
			zap.Uint8("messageId", fwd[5]))
		return
	}
	c.stats.PacketsForwarded++
	c.logger.Debug("forward queued",
		zap.Uint8("sourceId", fwd[2]),
		zap.Uint8("ttl", fwd[offTTL]),
		zap.Int("queueDepth", c.txQueue.Depth()))
}

// OnSchedulerTick advances the TDMA state machine from the best available
// clock and, at the node's transmit instant, emits the own report and
// drains queued forwards. The gateway also originates its periodic beacon
// here.
func (c *Core) OnSchedulerTick() {
	snap := c.gps.Snapshot()
	gpsValid := snap.DatetimeValid && snap.Satellites >= 1

	h := localHour(snap.Hour, c.cfg.Node.UTCOffsetHours)
	c.sched.UpdateWithFallback(h, snap.Minute, snap.Second, gpsValid)

	if c.sched.ShouldTransmitNow() {
		if c.transmitOwnReport(snap) {
			c.sleep(postPrimaryPause)
			c.drainQueue()
		}
		c.sched.MarkTransmissionComplete()
	}

	if c.cfg.Node.IsGateway() && c.cfg.Mesh.UseGradientRouting {
		if c.lastBeaconSent.IsZero() || c.now().Sub(c.lastBeaconSent) >= c.cfg.Mesh.BeaconInterval {
			c.sendGatewayBeacon(snap)
			c.lastBeaconSent = c.now()
		}
	}
}

// RelayPendingBeacon transmits a due beacon rebroadcast. Beacons are control
// traffic: they ride outside the TDMA slots, spaced by the relay jitter.
func (c *Core) RelayPendingBeacon() {
	if c.cfg.Node.IsGateway() {
		return
	}
	b := c.router.TakePendingBeacon()
	if b == nil || !c.radio.IsReady() {
		return
	}
	frame := c.codec.EncodeBeacon(b)
	if c.radio.SendBinary(frame) {
		c.router.CountBeaconSent()
		c.logger.Debug("beacon relayed",
			zap.Uint8("sourceId", b.Header.SourceID),
			zap.Uint8("distance", b.DistanceToGateway),
			zap.Uint8("ttl", b.Header.TTL))
	} else {
		c.stats.TxFailures++
		c.logger.Warn("beacon relay transmission failed")
	}
}

// OnMaintenanceTick runs the time-based expiries, roughly once per second.
func (c *Core) OnMaintenanceTick() {
	if n := c.neighbors.PruneExpired(c.cfg.Mesh.NeighborTimeout); n > 0 {
		c.logger.Debug("pruned expired neighbors",
			zap.Int("pruned", n),
			zap.Uint8("active", c.neighbors.ActiveCount()))
	}
	if n := c.dupCache.Prune(); n > 0 {
		c.logger.Debug("pruned duplicate cache entries", zap.Int("pruned", n))
	}
	if n := c.txQueue.PruneOld(time.Minute); n > 0 {
		c.logger.Debug("pruned stale queued forwards",
			zap.Int("pruned", n),
			zap.Int("depth", c.txQueue.Depth()))
	}
	c.router.CheckExpiration()
}

func (c *Core) sendGatewayBeacon(snap GPSSnapshot) {
	if !c.radio.IsReady() {
		return
	}

	b := &wire.Beacon{
		Header: wire.Header{
			SourceID: c.cfg.Node.DeviceID,
			DestID:   wire.AddrBroadcast,
			TTL:      c.cfg.Mesh.MaxHops,
		},
		DistanceToGateway: 0,
		GatewayID:         c.cfg.Node.DeviceID,
		SequenceNumber:    uint16(c.now().Sub(c.startedAt) / time.Second),
	}

	// Beacon time is local time so every node schedules slots on the same
	// clock.
	if snap.DatetimeValid {
		b.Hour = localHour(snap.Hour, c.cfg.Node.UTCOffsetHours)
		b.Minute = snap.Minute
		b.Second = snap.Second
		b.TimeValid = 1
	}

	frame := c.codec.EncodeBeacon(b)
	if c.radio.SendBinary(frame) {
		c.router.CountBeaconSent()
		c.logger.Info("gateway beacon sent",
			zap.Uint16("seq", b.SequenceNumber),
			zap.Uint8("timeValid", b.TimeValid))
	} else {
		c.stats.TxFailures++
		c.logger.Warn("gateway beacon transmission failed")
	}
}

func (c *Core) transmitOwnReport(snap GPSSnapshot) bool {
	if !c.radio.IsReady() {
		return false
	}

	frame := c.codec.EncodeFullReport(c.buildFullReport(snap))
	if !c.radio.SendBinary(frame) {
		c.stats.TxFailures++
		c.logger.Warn("own report transmission failed")
		return false
	}
	c.stats.TxReports++
	c.logger.Info("own report sent",
		zap.Uint8("messageId", frame[5]),
		zap.String("timeSource", c.sched.TimeSource().String()))
	return true
}

func (c *Core) buildFullReport(snap GPSSnapshot) *wire.FullReport {
	reading := c.sensors.Read()

	r := &wire.FullReport{
		Header: wire.Header{
			DestID: wire.AddrBroadcast,
			TTL:    c.cfg.Mesh.DefaultTTL,
		},
		TempF10:     int16(reading.TempF * 10),
		Humidity10:  uint16(reading.Humidity * 10),
		PressureHPa: uint16(reading.PressureHPa),
		AltitudeM:   int16(reading.AltitudeM),

		LatE6:        snap.LatE6,
		LonE6:        snap.LonE6,
		GPSAltitudeM: snap.AltitudeM,
		Satellites:   snap.Satellites,
		HDOP10:       snap.HDOP10,

		UptimeSec:     uint32(c.now().Sub(c.startedAt) / time.Second),
		TxCount:       uint16(c.stats.TxReports + c.stats.TxForwards),
		RxCount:       uint16(c.stats.RxFrames),
		BatteryPct:    reading.BatteryPct,
		NeighborCount: c.neighbors.ActiveCount(),
	}

	if snap.LocationValid {
		r.StatusFlags |= wire.StatusGPSValid
	}
	if reading.SensorsOK {
		r.StatusFlags |= wire.StatusSensorsOK
	}
	if reading.BatteryPct < 20 {
		r.StatusFlags |= wire.StatusLowBattery
	}
	switch c.sched.TimeSource() {
	case TimeSourceGPS:
		r.StatusFlags |= wire.StatusTimeSrcGPS
	case TimeSourceNetwork:
		r.StatusFlags |= wire.StatusTimeSrcNet
	}
	return r
}

// drainQueue sends queued forwards for the remainder of the slot, keeping
// the guard second free and capping the forwards per slot.
func (c *Core) drainQueue() {
	slotEnd := c.sched.SlotEnd()
	startSec := c.sched.Status().CurrentSecond
	started := c.now()
	sent := 0

	for c.txQueue.Depth() > 0 && sent < maxForwardsSlot {
		sec := int(startSec) + int(c.now().Sub(started)/time.Second)
		if sec > int(slotEnd)-drainGuardSec {
			break
		}

		f := c.txQueue.Peek()
		if f == nil {
			break
		}
		if c.radio.SendBinary(f.Data) {
			c.stats.TxForwards++
			sent++
		} else {
			c.stats.TxFailures++
		}
		// Failed sends are dropped, not retried: other nodes' forwards are
		// the only retransmission the mesh offers.
		c.txQueue.Dequeue()

		if c.txQueue.Depth() > 0 {
			c.sleep(interFrameGap)
		}
	}

	if sent > 0 {
		c.logger.Info("drained forward queue",
			zap.Int("sent", sent),
			zap.Int("remaining", c.txQueue.Depth()))
	}
}

func (c *Core) warnVersion(h wire.Header) {
	if err := wire.CheckVersion(h); err != nil {
		c.stats.VersionWarnings++
		c.logger.Warn("protocol version mismatch, parsing anyway",
			zap.Uint8("got", h.Version),
			zap.Uint8("want", wire.ProtocolVersion))
	}
}

// SetManualTime forces the network clock, for testing without GPS.
func (c *Core) SetManualTime(h, m, s uint8) {
	c.netTime.SetManual(h, m, s)
	c.logger.Info("manual time set",
		zap.Uint8("hour", h), zap.Uint8("minute", m), zap.Uint8("second", s))
}

// InjectTestReport queues a synthetic FULL_REPORT with the given addressing,
// transmitted in the node's next slot.
func (c *Core) InjectTestReport(destID, ttl uint8, note string) bool {
	snap := c.gps.Snapshot()
	r := c.buildFullReport(snap)
	r.Header.DestID = destID
	r.Header.TTL = ttl

	frame := c.codec.EncodeFullReport(r)
	if !c.txQueue.Enqueue(frame) {
		c.stats.QueueOverflows++
		return false
	}
	c.logger.Info("test report queued",
		zap.Uint8("destId", destID),
		zap.Uint8("ttl", ttl),
		zap.String("note", note))
	return true
}

// Reset clears caches, neighbors, the queue and the counters.
func (c *Core) Reset() {
	c.dupCache.Clear()
	c.neighbors.Clear()
	c.txQueue.Clear()
	c.stats = Stats{}
	c.logger.Info("mesh state reset")
}

// Accessors for status display and metrics. Callers must not retain the
// returned components across ticks on other goroutines.

// Stats returns a copy of the pipeline counters.
func (c *Core) Stats() Stats { return c.stats }

// RouterStats returns a copy of the routing counters.
func (c *Core) RouterStats() RouterStats { return c.router.Stats() }

// Scheduler returns the TDMA scheduler.
func (c *Core) Scheduler() *Scheduler { return c.sched }

// Router returns the gradient router.
func (c *Core) Router() *Router { return c.router }

// Neighbors returns the neighbor table.
func (c *Core) Neighbors() *NeighborTable { return c.neighbors }

// Queue returns the transmit queue.
func (c *Core) Queue() *TransmitQueue { return c.txQueue }

// DupCache returns the duplicate cache.
func (c *Core) DupCache() *DuplicateCache { return c.dupCache }

// NetTime returns the network-time store.
func (c *Core) NetTime() *NetworkTime { return c.netTime }

// localHour applies the configured UTC offset, wrapping the day.
func localHour(utcHour uint8, offset int8) uint8 {
	h := (int(utcHour) + int(offset)) % 24
	if h < 0 {
		h += 24
	}
	return uint8(h)
}
