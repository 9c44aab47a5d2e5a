package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgelink/sensormesh/internal/config"
	"github.com/ridgelink/sensormesh/pkg/wire"
)

type fakeRadio struct {
	ready    bool
	rx       []RxFrame
	sent     [][]byte
	failSend bool
}

func (f *fakeRadio) IsReady() bool { return f.ready }

func (f *fakeRadio) SendBinary(data []byte) bool {
	if f.failSend {
		return false
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.sent = append(f.sent, buf)
	return true
}

func (f *fakeRadio) PollRx() (RxFrame, bool) {
	if len(f.rx) == 0 {
		return RxFrame{}, false
	}
	frame := f.rx[0]
	f.rx = f.rx[1:]
	return frame, true
}

func (f *fakeRadio) PollNetwork() {}

func (f *fakeRadio) deliver(payload []byte, rssi float32) {
	f.rx = append(f.rx, RxFrame{Payload: payload, RSSI: rssi, SNR: 8.5})
}

type fakeGPS struct {
	snap GPSSnapshot
}

func (f *fakeGPS) Snapshot() GPSSnapshot { return f.snap }

type fakeSensors struct {
	reading SensorReading
}

func (f *fakeSensors) Read() SensorReading { return f.reading }

type sinkRecord struct {
	sourceID uint8
	report   *wire.FullReport
	rssi     float32
	snr      float32
}

type fakeSink struct {
	records []sinkRecord
}

func (f *fakeSink) OnReport(sourceID uint8, report *wire.FullReport, rssi, snr float32) {
	f.records = append(f.records, sinkRecord{sourceID, report, rssi, snr})
}

type testNode struct {
	core    *Core
	clk     *fakeClock
	radio   *fakeRadio
	gps     *fakeGPS
	sensors *fakeSensors
	sink    *fakeSink
}

func newTestNode(t *testing.T, deviceID uint8) *testNode {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Node.DeviceID = deviceID

	clk := newFakeClock()
	radio := &fakeRadio{ready: true}
	gps := &fakeGPS{}
	sensors := &fakeSensors{reading: SensorReading{
		TempF: 72.5, Humidity: 45.3, PressureHPa: 1013, AltitudeM: 30,
		BatteryPct: 90, SensorsOK: true,
	}}
	sink := &fakeSink{}

	core := NewCore(cfg, radio, gps, sensors, sink, nil)
	core.now = clk.now
	core.sleep = func(time.Duration) {}
	core.startedAt = clk.now()
	core.router.now = clk.now
	core.dupCache.now = clk.now
	core.neighbors.now = clk.now
	core.txQueue.now = clk.now
	core.netTime.now = clk.now

	return &testNode{core: core, clk: clk, radio: radio, gps: gps, sensors: sensors, sink: sink}
}

func makeReportFrame(t *testing.T, sourceID, ttl uint8) []byte {
	t.Helper()
	c := wire.NewCodec(sourceID)
	return c.EncodeFullReport(&wire.FullReport{
		Header:  wire.Header{DestID: wire.AddrBroadcast, TTL: ttl},
		TempF10: 725,
	})
}

func makeGatewayBeaconFrame(t *testing.T, h, m, s uint8, timeValid uint8) []byte {
	t.Helper()
	c := wire.NewCodec(1)
	return c.EncodeBeacon(&wire.Beacon{
		Header: wire.Header{
			SourceID: 1,
			DestID:   wire.AddrBroadcast,
			TTL:      8,
		},
		DistanceToGateway: 0,
		GatewayID:         1,
		SequenceNumber:    7,
		Hour:              h,
		Minute:            m,
		Second:            s,
		TimeValid:         timeValid,
	})
}

func TestPipelineBeaconIngress(t *testing.T) {
	n := newTestNode(t, 2)

	n.radio.deliver(makeGatewayBeaconFrame(t, 9, 0, 15, 1), -62)
	n.core.OnRxTick()

	assert.True(t, n.core.Router().HasValidRoute())
	assert.Equal(t, uint8(1), n.core.Router().DistanceToGateway())
	assert.Equal(t, uint8(1), n.core.Router().NextHop())

	assert.Equal(t, uint8(1), n.core.NetTime().HopCount(), "time relayed at hop 1")
	r, ok := n.core.NetTime().Get()
	require.True(t, ok)
	assert.Equal(t, ClockReading{9, 0, 15}, r)

	require.NotNil(t, n.core.Neighbors().Get(1))
	assert.Equal(t, int16(-62), n.core.Neighbors().Get(1).RSSI)
}

func TestPipelineBeaconRelay(t *testing.T) {
	n := newTestNode(t, 2)

	n.radio.deliver(makeGatewayBeaconFrame(t, 9, 0, 15, 1), -62)
	n.core.OnRxTick()

	n.core.RelayPendingBeacon()
	assert.Empty(t, n.radio.sent, "relay waits out the jitter")

	n.clk.advance(500 * time.Millisecond)
	n.core.RelayPendingBeacon()
	require.Len(t, n.radio.sent, 1)

	relay, err := wire.DecodeBeacon(n.radio.sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(2), relay.Header.SenderID)
	assert.Equal(t, uint8(1), relay.Header.SourceID)
	assert.Equal(t, uint8(7), relay.Header.TTL)
	assert.Equal(t, uint8(1), relay.DistanceToGateway, "relay advertises our own distance")
	assert.Equal(t, uint64(1), n.core.RouterStats().BeaconsSent)
}

func TestPipelineOwnBeaconLoopbackDropped(t *testing.T) {
	n := newTestNode(t, 2)

	c := wire.NewCodec(2)
	frame := c.EncodeBeacon(&wire.Beacon{
		Header:            wire.Header{SourceID: 2, DestID: wire.AddrBroadcast, TTL: 8},
		DistanceToGateway: 1,
	})
	n.radio.deliver(frame, -40)
	n.core.OnRxTick()

	assert.False(t, n.core.Router().RouteValid())
	assert.Equal(t, uint8(0), n.core.Neighbors().ActiveCount())
}

func TestPipelineForwardMutation(t *testing.T) {
	n := newTestNode(t, 2)

	orig := makeReportFrame(t, 3, 3)
	n.radio.deliver(orig, -75)
	n.core.OnRxTick()

	require.Equal(t, 1, n.core.Queue().Depth())
	fwd := n.core.Queue().Peek().Data

	got, err := wire.DecodeFullReport(fwd)
	require.NoError(t, err)
	want, _ := wire.DecodeFullReport(orig)

	assert.Equal(t, want.Header.SourceID, got.Header.SourceID)
	assert.Equal(t, want.Header.DestID, got.Header.DestID)
	assert.Equal(t, want.Header.MessageID, got.Header.MessageID)
	assert.Equal(t, want.Header.TTL-1, got.Header.TTL)
	assert.Equal(t, uint8(2), got.Header.SenderID)
	assert.True(t, got.Header.Forwarded())
	assert.Equal(t, want.TempF10, got.TempF10, "payload untouched")

	assert.True(t, n.core.DupCache().IsDuplicate(3, want.Header.MessageID))
	assert.Equal(t, uint64(1), n.core.Stats().PacketsForwarded)
	assert.Equal(t, uint64(1), n.core.RouterStats().FloodingFallbacks, "no route yet: flooding")
}

func TestPipelineDuplicateSuppression(t *testing.T) {
	n := newTestNode(t, 1) // gateway

	frame := makeReportFrame(t, 3, 3)
	second := make([]byte, len(frame))
	copy(second, frame)
	second[4] = 4 // same source message relayed by another node

	n.radio.deliver(frame, -70)
	n.radio.deliver(second, -80)
	n.core.OnRxTick()

	assert.Equal(t, uint64(1), n.core.Stats().ValidReports)
	assert.Equal(t, uint64(1), n.core.Stats().DuplicatesDropped)
	assert.Len(t, n.sink.records, 1, "sink sees the report exactly once")
}

func TestPipelineTTLExpiredNotForwarded(t *testing.T) {
	n := newTestNode(t, 2)

	n.radio.deliver(makeReportFrame(t, 3, 1), -70)
	n.core.OnRxTick()

	assert.Equal(t, 0, n.core.Queue().Depth())
	assert.Equal(t, uint64(1), n.core.Stats().TTLExpired)
	assert.Equal(t, uint64(1), n.core.Stats().ValidReports, "still delivered/count, just not relayed")
}

func TestPipelineGatewayTerminatesBroadcasts(t *testing.T) {
	n := newTestNode(t, 1)

	n.radio.deliver(makeReportFrame(t, 3, 3), -70)
	n.core.OnRxTick()

	require.Len(t, n.sink.records, 1)
	assert.Equal(t, uint8(3), n.sink.records[0].sourceID)
	assert.InDelta(t, -70, n.sink.records[0].rssi, 0.01)

	assert.Equal(t, 0, n.core.Queue().Depth(), "gateway does not re-broadcast")
	assert.Equal(t, uint64(1), n.core.Stats().GatewaySkips)
}

func TestPipelineNextHopReverseDrop(t *testing.T) {
	n := newTestNode(t, 2)

	// Establish route with next hop 1.
	n.radio.deliver(makeGatewayBeaconFrame(t, 9, 0, 0, 0), -60)
	n.core.OnRxTick()
	require.Equal(t, uint8(1), n.core.Router().NextHop())

	// A report whose immediate sender is our next hop: relaying it would
	// push it backward, away from the gateway.
	frame := makeReportFrame(t, 3, 3)
	frame[4] = 1 // senderId
	n.radio.deliver(frame, -65)
	n.core.OnRxTick()

	assert.Equal(t, 0, n.core.Queue().Depth())
	assert.Equal(t, uint64(0), n.core.RouterStats().UnicastForwards)
}

func TestPipelineGradientRelayForward(t *testing.T) {
	n := newTestNode(t, 2)

	n.radio.deliver(makeGatewayBeaconFrame(t, 9, 0, 0, 0), -60)
	n.core.OnRxTick()

	// Report heard from node 3 (not our next hop): gradient relay.
	frame := makeReportFrame(t, 3, 3)
	frame[4] = 3
	n.radio.deliver(frame, -72)
	n.core.OnRxTick()

	assert.Equal(t, 1, n.core.Queue().Depth())
	assert.Equal(t, uint64(1), n.core.RouterStats().UnicastForwards)
	assert.Equal(t, uint64(0), n.core.RouterStats().FloodingFallbacks)
}

func TestPipelineRouteExpiryFallsBackToFlooding(t *testing.T) {
	n := newTestNode(t, 2)

	n.radio.deliver(makeGatewayBeaconFrame(t, 9, 0, 0, 0), -60)
	n.core.OnRxTick()
	require.True(t, n.core.Router().HasValidRoute())

	n.clk.advance(61 * time.Second)
	n.core.OnMaintenanceTick()
	assert.False(t, n.core.Router().RouteValid())

	frame := makeReportFrame(t, 3, 3)
	frame[4] = 1 // even from the former next hop
	n.radio.deliver(frame, -70)
	n.core.OnRxTick()

	assert.Equal(t, 1, n.core.Queue().Depth())
	assert.Equal(t, uint64(1), n.core.RouterStats().FloodingFallbacks)
}

func TestPipelineQueueOverflowCounted(t *testing.T) {
	n := newTestNode(t, 2)

	for i := 0; i < 9; i++ {
		c := wire.NewCodec(3)
		for j := 0; j < i; j++ { // distinct messageIds per frame
			c.EncodeFullReport(&wire.FullReport{Header: wire.Header{DestID: wire.AddrBroadcast, TTL: 3}})
		}
		n.radio.deliver(c.EncodeFullReport(&wire.FullReport{
			Header: wire.Header{DestID: wire.AddrBroadcast, TTL: 3},
		}), -70)
	}
	n.core.OnRxTick()

	assert.Equal(t, 8, n.core.Queue().Depth())
	assert.Equal(t, uint64(1), n.core.Stats().QueueOverflows)
}

func TestPipelineUnknownTypeDropped(t *testing.T) {
	n := newTestNode(t, 2)

	n.radio.deliver([]byte{wire.ProtocolVersion, byte(wire.MsgText), 3, 0xFF, 3, 0, 3, 0, 'h', 'i'}, -70)
	n.core.OnRxTick()

	assert.Equal(t, uint64(1), n.core.Stats().UnknownDropped)
	assert.Equal(t, 0, n.core.Queue().Depth())
}

func TestPipelineOwnSlotTransmission(t *testing.T) {
	n := newTestNode(t, 3)
	n.gps.snap = GPSSnapshot{
		Hour: 9, Minute: 0, Second: 30,
		LatE6: 33768200, LonE6: -118195600, AltitudeM: 31,
		Satellites: 7, HDOP10: 11,
		DatetimeValid: true, LocationValid: true,
	}

	n.core.OnSchedulerTick()
	require.Len(t, n.radio.sent, 1)

	r, err := wire.DecodeFullReport(n.radio.sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(3), r.Header.SourceID)
	assert.Equal(t, uint8(wire.AddrBroadcast), r.Header.DestID)
	assert.Equal(t, uint8(0), r.Header.MessageID)
	assert.Equal(t, uint8(3), r.Header.TTL)
	assert.Equal(t, int16(725), r.TempF10)
	assert.EqualValues(t, wire.StatusGPSValid, r.StatusFlags&wire.StatusGPSValid)
	assert.EqualValues(t, wire.StatusSensorsOK, r.StatusFlags&wire.StatusSensorsOK)
	assert.EqualValues(t, wire.StatusTimeSrcGPS, r.StatusFlags&wire.StatusTimeSrcMask)

	// Same second again: one primary transmission per slot.
	n.core.OnSchedulerTick()
	assert.Len(t, n.radio.sent, 1)
	assert.Equal(t, uint64(1), n.core.Stats().TxReports)
}

func TestPipelineOutsideSlotNoTransmit(t *testing.T) {
	n := newTestNode(t, 3)
	n.gps.snap = GPSSnapshot{Hour: 9, Second: 10, DatetimeValid: true, Satellites: 5}

	n.core.OnSchedulerTick()
	assert.Empty(t, n.radio.sent)
}

func TestPipelineSlotDrainsQueue(t *testing.T) {
	n := newTestNode(t, 3)
	n.gps.snap = GPSSnapshot{Hour: 9, Second: 30, DatetimeValid: true, Satellites: 5}

	for i := 0; i < 3; i++ {
		frame := makeReportFrame(t, 4, 3)
		frame[5] = byte(i)
		require.True(t, n.core.Queue().Enqueue(frame))
	}

	n.core.OnSchedulerTick()
	assert.Len(t, n.radio.sent, 4, "own report plus three forwards")
	assert.Equal(t, 0, n.core.Queue().Depth())
	assert.Equal(t, uint64(3), n.core.Stats().TxForwards)
}

func TestPipelineDrainStopsAtSlotGuard(t *testing.T) {
	n := newTestNode(t, 3)
	n.gps.snap = GPSSnapshot{Hour: 9, Second: 30, DatetimeValid: true, Satellites: 5}

	// Each inter-frame pause eats two wall seconds: the guard before second
	// 35 must cut the drain short.
	n.core.sleep = func(time.Duration) { n.clk.advance(2 * time.Second) }

	for i := 0; i < 6; i++ {
		frame := makeReportFrame(t, 4, 3)
		frame[5] = byte(i)
		require.True(t, n.core.Queue().Enqueue(frame))
	}

	n.core.OnSchedulerTick()
	assert.Len(t, n.radio.sent, 4, "own report plus three forwards before the guard")
	assert.Equal(t, 3, n.core.Queue().Depth())
}

func TestPipelineDrainPerSlotCap(t *testing.T) {
	n := newTestNode(t, 1)
	n.gps.snap = GPSSnapshot{Hour: 9, Second: 6, DatetimeValid: true, Satellites: 5}

	for i := 0; i < 8; i++ {
		frame := makeReportFrame(t, 4, 3)
		frame[3] = 1 // unicast to gateway: gateway may relay these
		frame[5] = byte(i)
		require.True(t, n.core.Queue().Enqueue(frame))
	}

	n.core.OnSchedulerTick()
	// Own report + beacon (gateway, first tick) + capped forwards.
	assert.Equal(t, uint64(5), n.core.Stats().TxForwards)
	assert.Equal(t, 3, n.core.Queue().Depth())
}

func TestPipelineNoTimeSourceNoTransmission(t *testing.T) {
	n := newTestNode(t, 3)
	n.gps.snap = GPSSnapshot{Hour: 9, Second: 30, DatetimeValid: false}

	n.core.OnSchedulerTick()
	assert.Empty(t, n.radio.sent)
}

func TestPipelineNetworkTimeFallback(t *testing.T) {
	n := newTestNode(t, 3)

	// Gateway beacon carries 9:00:30 — exactly node 3's transmit instant.
	n.radio.deliver(makeGatewayBeaconFrame(t, 9, 0, 30, 1), -60)
	n.core.OnRxTick()

	n.gps.snap = GPSSnapshot{DatetimeValid: false}
	n.core.OnSchedulerTick()

	// First frame sent is the own report driven by network time.
	var report *wire.FullReport
	for _, frame := range n.radio.sent {
		if wire.Classify(frame) == wire.MsgFullReport {
			r, err := wire.DecodeFullReport(frame)
			require.NoError(t, err)
			report = r
			break
		}
	}
	require.NotNil(t, report, "node transmits on network time")
	assert.EqualValues(t, wire.StatusTimeSrcNet, report.StatusFlags&wire.StatusTimeSrcMask)
	assert.Equal(t, TimeSourceNetwork, n.core.Scheduler().TimeSource())
}

func TestPipelineGatewayBeaconEmission(t *testing.T) {
	n := newTestNode(t, 1)
	n.gps.snap = GPSSnapshot{Hour: 9, Minute: 30, Second: 20, DatetimeValid: true, Satellites: 6}

	n.core.OnSchedulerTick()
	require.Len(t, n.radio.sent, 1)

	b, err := wire.DecodeBeacon(n.radio.sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(0), b.DistanceToGateway)
	assert.Equal(t, uint8(1), b.GatewayID)
	assert.Equal(t, uint8(1), b.Header.SourceID)
	assert.Equal(t, uint8(8), b.Header.TTL)
	assert.Equal(t, uint8(1), b.TimeValid)
	assert.Equal(t, uint8(9), b.Hour)
	assert.Equal(t, uint8(30), b.Minute)

	// Inside the interval: no second beacon.
	n.clk.advance(10 * time.Second)
	n.core.OnSchedulerTick()
	assert.Len(t, n.radio.sent, 1)

	n.clk.advance(21 * time.Second)
	n.core.OnSchedulerTick()
	assert.Len(t, n.radio.sent, 2)
}

func TestPipelineGatewayBeaconAppliesUTCOffset(t *testing.T) {
	n := newTestNode(t, 1)
	n.core.cfg.Node.UTCOffsetHours = -8
	n.gps.snap = GPSSnapshot{Hour: 3, Minute: 15, Second: 20, DatetimeValid: true, Satellites: 6}

	n.core.OnSchedulerTick()
	require.NotEmpty(t, n.radio.sent)

	b, err := wire.DecodeBeacon(n.radio.sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(19), b.Hour, "3 UTC - 8 wraps to 19 local")
}

func TestPipelineInjectTestReportAndReset(t *testing.T) {
	n := newTestNode(t, 2)

	require.True(t, n.core.InjectTestReport(1, 5, "hello"))
	require.Equal(t, 1, n.core.Queue().Depth())

	r, err := wire.DecodeFullReport(n.core.Queue().Peek().Data)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), r.Header.DestID)
	assert.Equal(t, uint8(5), r.Header.TTL)
	assert.Equal(t, uint8(2), r.Header.SourceID)

	n.radio.deliver(makeReportFrame(t, 3, 3), -70)
	n.core.OnRxTick()

	n.core.Reset()
	assert.Equal(t, 0, n.core.Queue().Depth())
	assert.Equal(t, uint8(0), n.core.Neighbors().ActiveCount())
	assert.Equal(t, Stats{}, n.core.Stats())
	assert.False(t, n.core.DupCache().IsDuplicate(3, 0))
}

func TestPipelineSendFailureCounted(t *testing.T) {
	n := newTestNode(t, 3)
	n.gps.snap = GPSSnapshot{Hour: 9, Second: 30, DatetimeValid: true, Satellites: 5}
	n.radio.failSend = true

	n.core.OnSchedulerTick()
	assert.Equal(t, uint64(1), n.core.Stats().TxFailures)
	assert.Equal(t, uint64(0), n.core.Stats().TxReports)
}
