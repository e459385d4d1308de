package engine

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/costmap/internal/costmap/l2cloud"
	"github.com/banshee-data/costmap/internal/costmap/l3grid"
)

// Stats counts engine activity since construction or the last Reset.
type Stats struct {
	Batches          int64 `json:"batches"`
	WarmupDiscarded  int64 `json:"warmup_discarded"`
	Recomputes       int64 `json:"recomputes"`
	PointsIntegrated int64 `json:"points_integrated"`
	PointsFiltered   int64 `json:"points_filtered"`
}

// Engine is a log-odds occupancy engine. All methods are safe for
// concurrent use; snapshot pulls never observe a half-applied recompute.
type Engine struct {
	params  Params
	originX float64
	originY float64

	mu      sync.RWMutex
	cells   []float64
	pose    l2cloud.Transform
	pending []l2cloud.SpatialPoint
	stats   Stats
}

// New returns an engine with an empty grid centred on the map origin.
func New(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params:  p,
		originX: -float64(p.GlobalWidth) * p.Resolution / 2,
		originY: -float64(p.GlobalHeight) * p.Resolution / 2,
		cells:   make([]float64, p.GlobalWidth*p.GlobalHeight),
		pose:    l2cloud.Identity(),
	}, nil
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.params }

// UpdatePointCloud queues a copy of the cloud for the next recompute,
// replacing any scan not yet integrated. Scans received during warmup are
// counted and discarded.
func (e *Engine) UpdatePointCloud(cloud *l2cloud.PointCloud) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Batches++
	if e.stats.Batches <= int64(e.params.WarmupBatches) {
		e.stats.WarmupDiscarded++
		return
	}
	e.pending = append(e.pending[:0], cloud.Points...)
}

// UpdatePose sets the sensor pose used for the next recompute.
func (e *Engine) UpdatePose(t l2cloud.Transform) {
	e.mu.Lock()
	e.pose = t
	e.mu.Unlock()
}

// Ready reports whether warmup has finished and a scan is waiting.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats.Batches > int64(e.params.WarmupBatches) && len(e.pending) > 0
}

// UpdateCostmap integrates the pending scan into the grid.
func (e *Engine) UpdateCostmap() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Recomputes++
	if len(e.pending) == 0 {
		return
	}

	origin := e.pose.Translation()
	ox, oy, inside := e.cellOf(origin.X, origin.Y)
	if !inside || !finite(origin.X) || !finite(origin.Y) {
		e.stats.PointsFiltered += int64(len(e.pending))
		e.pending = e.pending[:0]
		return
	}

	for _, p := range e.pending {
		wx, wy, wz := l2cloud.ApplyPose(p.X, p.Y, p.Z, e.pose)
		if !finite(wx) || !finite(wy) || !finite(wz) {
			e.stats.PointsFiltered++
			continue
		}
		if wz < e.params.MinZ || wz > e.params.MaxZ {
			e.stats.PointsFiltered++
			continue
		}
		planar := r3.Vec{X: wx - origin.X, Y: wy - origin.Y}
		if e.params.MaxRange > 0 && r3.Norm(planar) > e.params.MaxRange {
			e.stats.PointsFiltered++
			continue
		}
		ex, ey, hit := e.rayEnd(ox, oy, wx, wy)
		e.castRay(ox, oy, ex, ey, hit)
		e.stats.PointsIntegrated++
	}
	e.pending = e.pending[:0]
}

// rayEnd returns the cell a ray from (ox,oy) towards world (x,y) ends in.
// A ray longer than the grid diagonal cannot end on the grid, so it is cut
// to that length and hit is false.
func (e *Engine) rayEnd(ox, oy int, x, y float64) (ex, ey int, hit bool) {
	fx := (x - e.originX) / e.params.Resolution
	fy := (y - e.originY) / e.params.Resolution
	cx, cy := float64(ox)+0.5, float64(oy)+0.5
	limit := float64(e.params.GlobalWidth + e.params.GlobalHeight)
	if n := math.Hypot(fx-cx, fy-cy); n > limit {
		s := limit / n
		return int(math.Floor(cx + (fx-cx)*s)), int(math.Floor(cy + (fy-cy)*s)), false
	}
	return int(math.Floor(fx)), int(math.Floor(fy)), true
}

// castRay applies a miss to every cell from (x0,y0) up to but excluding
// (x1,y1), and a hit to (x1,y1) when hit is set. (x0,y0) is on the grid;
// the walk stops where the ray leaves it.
func (e *Engine) castRay(x0, y0, x1, y1 int, hit bool) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	errAcc := dx + dy
	x, y := x0, y0
	for x != x1 || y != y1 {
		if !e.inside(x, y) {
			return
		}
		e.apply(x, y, e.params.MissLogOdds)
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			x += sx
		}
		if e2 <= dx {
			errAcc += dx
			y += sy
		}
	}
	if hit {
		e.apply(x1, y1, e.params.HitLogOdds)
	}
}

func (e *Engine) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < int(e.params.GlobalWidth) && y < int(e.params.GlobalHeight)
}

func (e *Engine) apply(x, y int, delta float64) {
	if !e.inside(x, y) {
		return
	}
	i := y*int(e.params.GlobalWidth) + x
	e.cells[i] = math.Max(e.params.MinLogOdds, math.Min(e.params.MaxLogOdds, e.cells[i]+delta))
}

func (e *Engine) cellIndex(x, y float64) (int, int) {
	return int(math.Floor((x - e.originX) / e.params.Resolution)),
		int(math.Floor((y - e.originY) / e.params.Resolution))
}

func (e *Engine) cellOf(x, y float64) (cx, cy int, inside bool) {
	cx, cy = e.cellIndex(x, y)
	return cx, cy, e.inside(cx, cy)
}

// GlobalCostmapInfo returns a copy of the full grid.
func (e *Engine) GlobalCostmapInfo() l3grid.CostmapInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cells := make([]float64, len(e.cells))
	copy(cells, e.cells)
	return l3grid.CostmapInfo{
		SizeX:      e.params.GlobalWidth,
		SizeY:      e.params.GlobalHeight,
		Resolution: e.params.Resolution,
		OriginX:    e.originX,
		OriginY:    e.originY,
		Cells:      cells,
	}
}

// LocalCostmapInfo returns the window of the grid centred on the current
// pose. Cells of the window that fall outside the global grid read as zero.
func (e *Engine) LocalCostmapInfo() l3grid.CostmapInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	w, h := int(e.params.LocalWidth), int(e.params.LocalHeight)
	t := e.pose.Translation()
	cx, cy := e.cellIndex(t.X, t.Y)
	x0, y0 := cx-w/2, cy-h/2

	gw, gh := int(e.params.GlobalWidth), int(e.params.GlobalHeight)
	cells := make([]float64, w*h)
	for y := 0; y < h; y++ {
		gy := y0 + y
		if gy < 0 || gy >= gh {
			continue
		}
		for x := 0; x < w; x++ {
			gx := x0 + x
			if gx < 0 || gx >= gw {
				continue
			}
			cells[y*w+x] = e.cells[gy*gw+gx]
		}
	}
	return l3grid.CostmapInfo{
		SizeX:      e.params.LocalWidth,
		SizeY:      e.params.LocalHeight,
		Resolution: e.params.Resolution,
		OriginX:    e.originX + float64(x0)*e.params.Resolution,
		OriginY:    e.originY + float64(y0)*e.params.Resolution,
		Cells:      cells,
	}
}

// Stats returns a copy of the activity counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Reset clears the grid, the pending scan and the counters. The pose is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.cells)
	e.pending = e.pending[:0]
	e.stats = Stats{}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
