package l2cloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/costmap/internal/costmap/l1packets"
)

func batch(n int, declared uint32) *l1packets.CustomMsg {
	m := &l1packets.CustomMsg{
		Stamp:    l1packets.Stamp{Sec: 1, Nanosec: 500000000},
		FrameID:  "livox_frame",
		PointNum: declared,
	}
	for i := 0; i < n; i++ {
		v := float32(i)
		m.Points = append(m.Points, l1packets.CustomPoint{X: v, Y: v + 0.5, Z: -v, Reflectivity: uint8(i)})
	}
	return m
}

func TestAdapt_DropsLastPoint(t *testing.T) {
	msg := &l1packets.CustomMsg{
		Stamp:    l1packets.Stamp{Sec: 1, Nanosec: 500000000},
		FrameID:  "livox_frame",
		PointNum: 3,
		Points: []l1packets.CustomPoint{
			{X: 1, Y: 0, Z: 0, Reflectivity: 10},
			{X: 0, Y: 1, Z: 0, Reflectivity: 20},
			{X: 9, Y: 9, Z: 9, Reflectivity: 99},
		},
	}

	cloud := NewAdapter().Adapt(msg)

	require.Equal(t, 2, cloud.Len())
	assert.Equal(t, SpatialPoint{X: 1, Y: 0, Z: 0, Intensity: 10}, cloud.Points[0])
	assert.Equal(t, SpatialPoint{X: 0, Y: 1, Z: 0, Intensity: 20}, cloud.Points[1])
	assert.Equal(t, int64(1500000), cloud.StampMicros)
	assert.Equal(t, "livox_frame", cloud.FrameID)
}

func TestAdapt_SizeProperty(t *testing.T) {
	a := NewAdapter()
	for n := 0; n <= 64; n++ {
		msg := batch(n, uint32(n))
		cloud := a.Adapt(msg)

		want := n - 1
		if want < 0 {
			want = 0
		}
		require.Equal(t, want, cloud.Len(), "n=%d", n)
		for i, p := range cloud.Points {
			src := msg.Points[i]
			assert.Equal(t, float64(src.X), p.X)
			assert.Equal(t, float64(src.Y), p.Y)
			assert.Equal(t, float64(src.Z), p.Z)
			assert.Equal(t, float64(src.Reflectivity), p.Intensity)
		}
	}
}

func TestAdapt_EmptyBatch(t *testing.T) {
	cloud := NewAdapter().Adapt(batch(0, 0))
	assert.Equal(t, 0, cloud.Len())
}

func TestAdapt_ClampsToAvailableRecords(t *testing.T) {
	a := NewAdapter()

	// Declared count larger than the decoded payload.
	cloud := a.Adapt(batch(4, 1000))
	assert.Equal(t, 3, cloud.Len())

	// Declared count smaller than the payload.
	cloud = a.Adapt(batch(10, 2))
	assert.Equal(t, 1, cloud.Len())

	// Declared zero with points present.
	cloud = a.Adapt(batch(5, 0))
	assert.Equal(t, 0, cloud.Len())
}

func TestAdapt_ReusesBufferWithoutStalePoints(t *testing.T) {
	a := NewAdapter()

	big := a.Adapt(batch(100, 100))
	require.Equal(t, 99, big.Len())
	capAfterBig := a.Cap()
	assert.GreaterOrEqual(t, capAfterBig, 100)

	small := a.Adapt(batch(3, 3))
	require.Equal(t, 2, small.Len())
	assert.Equal(t, capAfterBig, a.Cap(), "buffer should be reused, not reallocated")
	assert.Equal(t, 1.0, small.Points[1].X)

	// The backing array beyond len may hold old values but they are not visible.
	assert.Len(t, small.Points, 2)
}
