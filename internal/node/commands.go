package node

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ridgelink/sensormesh/internal/mesh"
	"github.com/ridgelink/sensormesh/internal/sink"
)

// statusRequest is the internal request that refreshes the display
// snapshot; it is not a user-facing command.
const statusRequest = "\x00status"

// Status is a display snapshot of the node, assembled on the main loop.
type Status struct {
	DeviceID  uint8
	IsGateway bool

	Mode       mesh.SchedulerMode
	TimeSource mesh.TimeSource
	SlotStart  uint8
	SlotEnd    uint8
	TxSecond   uint8

	RouteValid bool
	Distance   uint8
	NextHop    uint8
	BestRSSI   int16

	Neighbors  []mesh.Neighbor
	Nodes      []sink.NodeState // gateway only: latest report per source
	QueueDepth int
	DupCached  int

	NetTimeValid bool
	NetTimeHop   uint8
	NetTimeAge   uint32

	Stats       mesh.Stats
	RouterStats mesh.RouterStats
}

// execute runs a console command on the main loop.
func (s *Service) execute(line string) string {
	if line == statusRequest {
		status := s.buildStatus()
		s.mu.Lock()
		s.lastStatus = status
		s.mu.Unlock()
		return ""
	}

	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return ""
	}

	switch strings.ToUpper(fields[0]) {
	case "SETTIME":
		if len(fields) != 2 {
			return "usage: SETTIME HH:MM:SS"
		}
		h, m, sec, err := parseClock(fields[1])
		if err != nil {
			return err.Error()
		}
		s.core.SetManualTime(h, m, sec)
		return fmt.Sprintf("time set to %02d:%02d:%02d (manual)", h, m, sec)

	case "MESH":
		if len(fields) < 2 {
			return "usage: mesh status|stats|reset|test"
		}
		switch strings.ToLower(fields[1]) {
		case "status":
			return s.formatStatus()
		case "stats":
			return s.formatStats()
		case "reset":
			s.core.Reset()
			return "mesh state cleared"
		case "test":
			if len(fields) < 4 {
				return "usage: mesh test <destId> <ttl> <text>"
			}
			dest, err1 := strconv.ParseUint(fields[2], 10, 8)
			ttl, err2 := strconv.ParseUint(fields[3], 10, 8)
			if err1 != nil || err2 != nil {
				return "destId and ttl must be 0-255"
			}
			note := strings.Join(fields[4:], " ")
			if !s.core.InjectTestReport(uint8(dest), uint8(ttl), note) {
				return "queue full, test report dropped"
			}
			return fmt.Sprintf("test report queued (dest=%d ttl=%d)", dest, ttl)
		default:
			return "unknown mesh command: " + fields[1]
		}

	case "HELP":
		return "commands: SETTIME HH:MM:SS | mesh status | mesh stats | mesh reset | mesh test <destId> <ttl> <text>"

	default:
		return "unknown command (try: help)"
	}
}

func (s *Service) buildStatus() Status {
	sched := s.core.Scheduler()
	router := s.core.Router()

	neighbors := make([]mesh.Neighbor, s.cfg.Mesh.MaxNeighbors)
	n := s.core.Neighbors().Snapshot(neighbors, s.cfg.Mesh.MaxNeighbors)

	var nodes []sink.NodeState
	if s.sink != nil {
		nodes = s.sink.Nodes().Snapshot()
	}

	return Status{
		DeviceID:  s.cfg.Node.DeviceID,
		IsGateway: s.cfg.Node.IsGateway(),

		Mode:       sched.Mode(),
		TimeSource: sched.TimeSource(),
		SlotStart:  sched.SlotStart(),
		SlotEnd:    sched.SlotEnd(),
		TxSecond:   sched.Status().TxSecond,

		RouteValid: router.RouteValid(),
		Distance:   router.DistanceToGateway(),
		NextHop:    router.NextHop(),
		BestRSSI:   router.BestRSSI(),

		Neighbors:  neighbors[:n],
		Nodes:      nodes,
		QueueDepth: s.core.Queue().Depth(),
		DupCached:  s.core.DupCache().Count(),

		NetTimeValid: s.core.NetTime().IsValid(),
		NetTimeHop:   s.core.NetTime().HopCount(),
		NetTimeAge:   s.core.NetTime().Age(),

		Stats:       s.core.Stats(),
		RouterStats: s.core.RouterStats(),
	}
}

func (s *Service) formatStatus() string {
	st := s.buildStatus()

	var b strings.Builder
	role := "node"
	if st.IsGateway {
		role = "gateway"
	}
	fmt.Fprintf(&b, "node %d (%s)  mode=%s  time=%s\n",
		st.DeviceID, role, st.Mode, st.TimeSource)
	fmt.Fprintf(&b, "slot: [%d,%d] tx@%d\n", st.SlotStart, st.SlotEnd, st.TxSecond)

	if st.RouteValid {
		fmt.Fprintf(&b, "route: %d hop(s) via node %d (rssi %d dBm)\n",
			st.Distance, st.NextHop, st.BestRSSI)
	} else {
		b.WriteString("route: none (flooding)\n")
	}

	if st.NetTimeValid {
		fmt.Fprintf(&b, "net time: hop %d, age %ds\n", st.NetTimeHop, st.NetTimeAge)
	} else {
		b.WriteString("net time: invalid\n")
	}

	fmt.Fprintf(&b, "queue: %d/%d  dup cache: %d/%d\n",
		st.QueueDepth, s.cfg.Mesh.TxQueueSize, st.DupCached, s.cfg.Mesh.SeenCacheSize)

	fmt.Fprintf(&b, "neighbors (%d):\n", len(st.Neighbors))
	for _, n := range st.Neighbors {
		fmt.Fprintf(&b, "  node %-3d rssi %d dBm (min %d / max %d), %d pkt(s)\n",
			n.NodeID, n.RSSI, n.RSSIMin, n.RSSIMax, n.PacketsReceived)
	}

	if st.IsGateway && len(st.Nodes) > 0 {
		fmt.Fprintf(&b, "last reports (%d):\n", len(st.Nodes))
		for _, ns := range st.Nodes {
			r := ns.Record
			fmt.Fprintf(&b, "  node %-3d %.1f°F %.1f%% %dhPa batt %d%%, heard %s ago\n",
				r.SourceID, r.TempF, r.Humidity, r.PressureHPa, r.BatteryPct,
				time.Since(ns.UpdatedAt).Round(time.Second))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) formatStats() string {
	st := s.core.Stats()
	rt := s.core.RouterStats()

	var b strings.Builder
	fmt.Fprintf(&b, "rx: %d frames, %d valid reports, %d duplicates, %d decode errors\n",
		st.RxFrames, st.ValidReports, st.DuplicatesDropped, st.DecodeErrors)
	fmt.Fprintf(&b, "forwarding: %d queued, %d sent, %d ttl-expired, %d overflows, %d gateway-stops\n",
		st.PacketsForwarded, st.TxForwards, st.TTLExpired, st.QueueOverflows, st.GatewaySkips)
	fmt.Fprintf(&b, "tx: %d reports, %d failures\n", st.TxReports, st.TxFailures)
	fmt.Fprintf(&b, "routing: %d beacons rx, %d tx, %d updates, %d unicast, %d flooding, %d expirations",
		rt.BeaconsReceived, rt.BeaconsSent, rt.RouteUpdates,
		rt.UnicastForwards, rt.FloodingFallbacks, rt.RouteExpirations)
	return b.String()
}

func parseClock(s string) (h, m, sec uint8, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("time must be HH:MM:SS")
	}
	hh, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	ss, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil ||
		hh < 0 || hh > 23 || mm < 0 || mm > 59 || ss < 0 || ss > 59 {
		return 0, 0, 0, fmt.Errorf("time must be HH:MM:SS (24-hour)")
	}
	return uint8(hh), uint8(mm), uint8(ss), nil
}

// RunConsole reads commands from r (normally stdin) until EOF or context
// cancellation, echoing each command's output to w.
func (s *Service) RunConsole(ctx context.Context, r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if out := s.Command(line); out != "" {
				fmt.Fprintln(w, out)
			}
		}
	}
}
