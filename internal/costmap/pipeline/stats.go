package pipeline

import (
	"sync"
	"time"

	"github.com/banshee-data/costmap/internal/monitoring"
)

// StatsSnapshot is a point-in-time copy of the pipeline counters.
type StatsSnapshot struct {
	PointClouds    int64     `json:"point_clouds"`
	Poses          int64     `json:"poses"`
	SaveRequests   int64     `json:"save_requests"`
	DeferredSaves  int64     `json:"deferred_saves"`
	Recomputes     int64     `json:"recomputes"`
	GridsPublished int64     `json:"grids_published"` // deliveries, one per publisher
	Exports        int64     `json:"exports"`
	ExportFailures int64     `json:"export_failures"`
	Dropped        int64     `json:"dropped"`
	Rejected       int64     `json:"rejected"`
	Uptime         string    `json:"uptime"`
	Timestamp      time.Time `json:"timestamp"`
}

// Stats tracks pipeline activity with thread-safe counters.
type Stats struct {
	mu        sync.Mutex
	s         StatsSnapshot
	startTime time.Time
}

// NewStats creates a Stats instance.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (st *Stats) add(f func(s *StatsSnapshot)) {
	st.mu.Lock()
	f(&st.s)
	st.mu.Unlock()
}

func (st *Stats) addPointCloud() {
	st.add(func(s *StatsSnapshot) { s.PointClouds++ })
}

func (st *Stats) addPose() {
	st.add(func(s *StatsSnapshot) { s.Poses++ })
}

func (st *Stats) addSave() {
	st.add(func(s *StatsSnapshot) { s.SaveRequests++ })
}

func (st *Stats) addDeferredSave() {
	st.add(func(s *StatsSnapshot) { s.DeferredSaves++ })
}

func (st *Stats) addRecompute() {
	st.add(func(s *StatsSnapshot) { s.Recomputes++ })
}

func (st *Stats) addPublished() {
	st.add(func(s *StatsSnapshot) { s.GridsPublished++ })
}

func (st *Stats) addExport() {
	st.add(func(s *StatsSnapshot) { s.Exports++ })
}

func (st *Stats) addExportFailure() {
	st.add(func(s *StatsSnapshot) { s.ExportFailures++ })
}

func (st *Stats) addDropped() {
	st.add(func(s *StatsSnapshot) { s.Dropped++ })
}

func (st *Stats) addRejected() {
	st.add(func(s *StatsSnapshot) { s.Rejected++ })
}

// Snapshot returns a copy of the counters.
func (st *Stats) Snapshot() StatsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.s
	s.Uptime = time.Since(st.startTime).Round(time.Second).String()
	s.Timestamp = time.Now()
	return s
}

// LogStats logs the counters when anything has happened.
func (st *Stats) LogStats() {
	s := st.Snapshot()
	if s.PointClouds == 0 && s.Poses == 0 && s.SaveRequests == 0 {
		return
	}
	monitoring.Logf("Costmap stats: %d clouds, %d poses, %d saves, %d recomputes, %d exports (%d failed), %d dropped",
		s.PointClouds, s.Poses, s.SaveRequests, s.Recomputes, s.Exports, s.ExportFailures, s.Dropped)
}
