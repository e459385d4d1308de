package monitor

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/costmap/internal/monitoring"
	"github.com/banshee-data/costmap/internal/timeutil"
)

// PacketSnapshot holds per-second rates computed at the last LogStats call.
type PacketSnapshot struct {
	PacketsPerSec float64   `json:"packets_per_sec"`
	MBPerSec      float64   `json:"mb_per_sec"`
	PointsPerSec  float64   `json:"points_per_sec"`
	DroppedCount  int64     `json:"dropped"`
	DecodeErrors  int64     `json:"decode_errors"`
	Timestamp     time.Time `json:"timestamp"`
}

// PacketStats tracks datagram statistics with thread-safe operations. It
// implements network.PacketStats.
type PacketStats struct {
	mu             sync.Mutex
	clock          timeutil.Clock
	packetCount    int64
	byteCount      int64
	droppedCount   int64
	decodeErrors   int64
	pointCount     int64
	totalPackets   int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *PacketSnapshot
}

// NewPacketStats creates a PacketStats on the real clock.
func NewPacketStats() *PacketStats {
	return NewPacketStatsWithClock(timeutil.RealClock{})
}

// NewPacketStatsWithClock creates a PacketStats on clock.
func NewPacketStatsWithClock(clock timeutil.Clock) *PacketStats {
	now := clock.Now()
	return &PacketStats{
		clock:     clock,
		lastReset: now,
		startTime: now,
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.totalPackets++
	ps.byteCount += int64(bytes)
}

// AddDropped counts a datagram the pipeline queue rejected.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddDecodeError counts a datagram that failed to decode.
func (ps *PacketStats) AddDecodeError() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.decodeErrors++
}

// AddPoints increments decoded point count
func (ps *PacketStats) AddPoints(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pointCount += int64(count)
}

// PacketCounts is the set of counters returned by GetAndReset.
type PacketCounts struct {
	Packets, Bytes, Dropped, DecodeErrors, Points int64
	Duration                                      time.Duration
}

// GetAndReset returns current counters and resets them.
func (ps *PacketStats) GetAndReset() PacketCounts {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.clock.Now()
	c := PacketCounts{
		Packets:      ps.packetCount,
		Bytes:        ps.byteCount,
		Dropped:      ps.droppedCount,
		DecodeErrors: ps.decodeErrors,
		Points:       ps.pointCount,
		Duration:     now.Sub(ps.lastReset),
	}

	ps.packetCount = 0
	ps.byteCount = 0
	ps.droppedCount = 0
	ps.decodeErrors = 0
	ps.pointCount = 0
	ps.lastReset = now
	return c
}

// LogStats logs per-second rates and stores a snapshot for the web
// interface. Nothing is logged for an idle interval.
func (ps *PacketStats) LogStats() {
	c := ps.GetAndReset()
	if c.Packets == 0 && c.Dropped == 0 && c.DecodeErrors == 0 {
		return
	}
	secs := c.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	snap := &PacketSnapshot{
		PacketsPerSec: float64(c.Packets) / secs,
		MBPerSec:      float64(c.Bytes) / secs / (1024 * 1024),
		PointsPerSec:  float64(c.Points) / secs,
		DroppedCount:  c.Dropped,
		DecodeErrors:  c.DecodeErrors,
		Timestamp:     ps.clock.Now(),
	}

	ps.mu.Lock()
	ps.latestSnapshot = snap
	ps.mu.Unlock()

	msg := fmt.Sprintf("Packet stats (/sec): %.2f MB, %.1f packets, %s points",
		snap.MBPerSec, snap.PacketsPerSec, FormatWithCommas(int64(snap.PointsPerSec)))
	if c.Dropped > 0 {
		msg += fmt.Sprintf(", %d dropped on enqueue", c.Dropped)
	}
	if c.DecodeErrors > 0 {
		msg += fmt.Sprintf(", %d decode errors", c.DecodeErrors)
	}
	monitoring.Logf("%s", msg)
}

// TotalPackets returns the number of packets seen since creation.
func (ps *PacketStats) TotalPackets() int64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.totalPackets
}

// Uptime returns the time since the stats were created
func (ps *PacketStats) Uptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.clock.Since(ps.startTime)
}

// LatestSnapshot returns a copy of the most recent snapshot, or nil.
func (ps *PacketStats) LatestSnapshot() *PacketSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	snapshot := *ps.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, str = "-", str[1:]
	}
	if len(str) <= 3 {
		return sign + str
	}

	out := make([]byte, 0, len(str)+len(str)/3)
	for i := 0; i < len(str); i++ {
		if i > 0 && (len(str)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, str[i])
	}
	return sign + string(out)
}
