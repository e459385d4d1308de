package engine

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/costmap/internal/costmap/l2cloud"
)

func testParams() Params {
	return Params{
		Resolution:   1,
		GlobalWidth:  10,
		GlobalHeight: 10,
		LocalWidth:   4,
		LocalHeight:  4,
		HitLogOdds:   1,
		MissLogOdds:  -0.5,
		MinLogOdds:   -2,
		MaxLogOdds:   3,
		MinZ:         -10,
		MaxZ:         10,
	}
}

func newTestEngine(t *testing.T, mutate func(*Params)) *Engine {
	t.Helper()
	p := testParams()
	if mutate != nil {
		mutate(&p)
	}
	e, err := New(p)
	require.NoError(t, err)
	return e
}

func cloudOf(pts ...l2cloud.SpatialPoint) *l2cloud.PointCloud {
	return &l2cloud.PointCloud{FrameID: "livox", Points: pts}
}

func cell(info []float64, x, y int) float64 { return info[y*10+x] }

func TestEngine_Warmup(t *testing.T) {
	e := newTestEngine(t, func(p *Params) { p.WarmupBatches = 2 })
	c := cloudOf(l2cloud.SpatialPoint{X: 1.5, Y: 0.5})

	e.UpdatePointCloud(c)
	assert.False(t, e.Ready())
	e.UpdatePointCloud(c)
	assert.False(t, e.Ready())
	e.UpdatePointCloud(c)
	assert.True(t, e.Ready())

	e.UpdateCostmap()
	assert.False(t, e.Ready(), "pending scan consumed")

	s := e.Stats()
	assert.Equal(t, int64(3), s.Batches)
	assert.Equal(t, int64(2), s.WarmupDiscarded)
	assert.Equal(t, int64(1), s.Recomputes)
	assert.Equal(t, int64(1), s.PointsIntegrated)
}

func TestEngine_RayCast(t *testing.T) {
	e := newTestEngine(t, nil)

	e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{X: 3.5, Y: 0.5}))
	e.UpdateCostmap()

	info := e.GlobalCostmapInfo()
	assert.Equal(t, uint(10), info.SizeX)
	assert.Equal(t, -5.0, info.OriginX)
	assert.Equal(t, -5.0, info.OriginY)
	assert.Equal(t, -0.5, cell(info.Cells, 5, 5))
	assert.Equal(t, -0.5, cell(info.Cells, 6, 5))
	assert.Equal(t, -0.5, cell(info.Cells, 7, 5))
	assert.Equal(t, 1.0, cell(info.Cells, 8, 5))
	assert.Equal(t, 0.0, cell(info.Cells, 9, 5))
	assert.Equal(t, 0.0, cell(info.Cells, 5, 6))
}

func TestEngine_Clamps(t *testing.T) {
	e := newTestEngine(t, nil)

	for i := 0; i < 6; i++ {
		e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{X: 1.5, Y: 0.5}))
		e.UpdateCostmap()
	}

	info := e.GlobalCostmapInfo()
	assert.Equal(t, -2.0, cell(info.Cells, 5, 5))
	assert.Equal(t, 3.0, cell(info.Cells, 6, 5))
}

func TestEngine_FiltersHeightAndRange(t *testing.T) {
	e := newTestEngine(t, func(p *Params) { p.MaxRange = 2 })

	e.UpdatePointCloud(cloudOf(
		l2cloud.SpatialPoint{X: 1.5, Y: 0.5, Z: 20},
		l2cloud.SpatialPoint{X: 3.5, Y: 0.5},
		l2cloud.SpatialPoint{X: 0.5, Y: 1.5},
	))
	e.UpdateCostmap()

	s := e.Stats()
	assert.Equal(t, int64(2), s.PointsFiltered)
	assert.Equal(t, int64(1), s.PointsIntegrated)
	info := e.GlobalCostmapInfo()
	assert.Equal(t, 1.0, cell(info.Cells, 5, 6))
	assert.Equal(t, 0.0, cell(info.Cells, 8, 5))
}

func updateWithin(t *testing.T, e *Engine, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		e.UpdateCostmap()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("UpdateCostmap did not return within %v", d)
	}
}

func TestEngine_FiltersNonFinitePoints(t *testing.T) {
	e := newTestEngine(t, nil)

	e.UpdatePointCloud(cloudOf(
		l2cloud.SpatialPoint{X: math.NaN(), Y: 1},
		l2cloud.SpatialPoint{X: 1, Y: math.Inf(1)},
		l2cloud.SpatialPoint{X: 1, Y: 1, Z: math.Inf(-1)},
		l2cloud.SpatialPoint{X: 0.5, Y: 1.5},
	))
	updateWithin(t, e, 5*time.Second)

	s := e.Stats()
	assert.Equal(t, int64(3), s.PointsFiltered)
	assert.Equal(t, int64(1), s.PointsIntegrated)
	assert.Equal(t, 1.0, cell(e.GlobalCostmapInfo().Cells, 5, 6))
}

func TestEngine_FarPointWithoutRangeLimit(t *testing.T) {
	e := newTestEngine(t, nil)

	e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{X: 1e30, Y: 0.5}))
	updateWithin(t, e, 5*time.Second)

	assert.Equal(t, int64(1), e.Stats().PointsIntegrated)
	info := e.GlobalCostmapInfo()
	for x := 5; x < 10; x++ {
		assert.Equal(t, -0.5, cell(info.Cells, x, 5), "x=%d", x)
	}
	assert.Equal(t, 0.0, cell(info.Cells, 4, 5))
}

func TestEngine_NonFinitePoseSkipsScan(t *testing.T) {
	e := newTestEngine(t, nil)
	e.UpdatePose(l2cloud.NewTransform(quat.Number{Real: 1}, r3.Vec{X: math.NaN()}))

	e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{X: 1, Y: 1}))
	updateWithin(t, e, 5*time.Second)

	assert.Equal(t, int64(1), e.Stats().PointsFiltered)
	assert.Equal(t, int64(0), e.Stats().PointsIntegrated)
}

func TestEngine_UsesPose(t *testing.T) {
	e := newTestEngine(t, nil)
	e.UpdatePose(l2cloud.NewTransform(quat.Number{Real: 1}, r3.Vec{X: 2}))

	e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{X: 1.5, Y: 0.5}))
	e.UpdateCostmap()

	info := e.GlobalCostmapInfo()
	assert.Equal(t, 0.0, cell(info.Cells, 5, 5))
	assert.Equal(t, -0.5, cell(info.Cells, 7, 5))
	assert.Equal(t, 1.0, cell(info.Cells, 8, 5))
}

func TestEngine_LocalWindow(t *testing.T) {
	e := newTestEngine(t, nil)
	e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{X: 1.5, Y: 0.5}))
	e.UpdateCostmap()

	local := e.LocalCostmapInfo()
	require.Len(t, local.Cells, 16)
	assert.Equal(t, uint(4), local.SizeX)
	assert.Equal(t, uint(4), local.SizeY)
	assert.Equal(t, -2.0, local.OriginX)
	assert.Equal(t, -2.0, local.OriginY)
	assert.Equal(t, -0.5, local.Cells[2*4+2])
	assert.Equal(t, 1.0, local.Cells[2*4+3])
}

func TestEngine_LocalWindowAtEdge(t *testing.T) {
	e := newTestEngine(t, nil)
	e.UpdatePose(l2cloud.NewTransform(quat.Number{Real: 1}, r3.Vec{X: 4.5, Y: 4.5}))
	e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{}))
	e.UpdateCostmap()

	local := e.LocalCostmapInfo()
	require.Len(t, local.Cells, 16)
	assert.Equal(t, 2.0, local.OriginX)
	// Global cell (9,9) sits at local (2,2); columns and rows 3 are off-grid.
	assert.Equal(t, 1.0, local.Cells[2*4+2])
	assert.Equal(t, 0.0, local.Cells[3*4+3])
}

func TestEngine_SnapshotIsCopy(t *testing.T) {
	e := newTestEngine(t, nil)
	e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{X: 1.5, Y: 0.5}))
	e.UpdateCostmap()

	info := e.GlobalCostmapInfo()
	info.Cells[6+5*10] = 99

	assert.Equal(t, 1.0, cell(e.GlobalCostmapInfo().Cells, 6, 5))
}

func TestEngine_CopiesIncomingCloud(t *testing.T) {
	e := newTestEngine(t, nil)
	c := cloudOf(l2cloud.SpatialPoint{X: 1.5, Y: 0.5})

	e.UpdatePointCloud(c)
	c.Points[0] = l2cloud.SpatialPoint{X: -3.5, Y: 0.5}
	e.UpdateCostmap()

	info := e.GlobalCostmapInfo()
	assert.Equal(t, 1.0, cell(info.Cells, 6, 5))
	assert.Equal(t, 0.0, cell(info.Cells, 1, 5))
}

func TestEngine_Reset(t *testing.T) {
	e := newTestEngine(t, nil)
	e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{X: 1.5, Y: 0.5}))
	e.UpdateCostmap()

	e.Reset()

	assert.Equal(t, Stats{}, e.Stats())
	for _, v := range e.GlobalCostmapInfo().Cells {
		require.Zero(t, v)
	}
}

func TestEngine_ConcurrentSnapshots(t *testing.T) {
	e := newTestEngine(t, nil)
	p := e.Params()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.UpdatePointCloud(cloudOf(l2cloud.SpatialPoint{X: 3.5, Y: float64(i%5) - 2}))
			e.UpdateCostmap()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for _, v := range e.GlobalCostmapInfo().Cells {
				if v < p.MinLogOdds || v > p.MaxLogOdds {
					t.Errorf("cell out of bounds: %g", v)
					return
				}
			}
			_ = e.LocalCostmapInfo()
		}
	}()
	wg.Wait()
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Resolution = 0
	p.MissLogOdds = 1
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolution")
	assert.Contains(t, err.Error(), "miss log-odds")

	_, err = New(p)
	assert.Error(t, err)
}
