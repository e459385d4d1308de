package l2cloud

import (
	"slices"

	"github.com/banshee-data/costmap/internal/costmap/l1packets"
)

// SpatialPoint is a generic point with an intensity channel.
type SpatialPoint struct {
	X, Y, Z   float64
	Intensity float64
}

// PointCloud is a batch of points in the sensor frame.
type PointCloud struct {
	FrameID     string
	StampMicros int64
	Points      []SpatialPoint
}

// Len returns the number of points.
func (c *PointCloud) Len() int { return len(c.Points) }

// Adapter converts Livox batches into PointClouds. It owns a single buffer
// that is cleared and refilled on every call, so the cloud returned by Adapt
// is only valid until the next call. An Adapter is not safe for concurrent use.
type Adapter struct {
	cloud PointCloud
}

// NewAdapter returns an Adapter with an empty buffer.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Adapt copies every record of msg except the last into the buffer.
//
// Dropping the final record of each batch is a long-standing behaviour of the
// Livox bridge that downstream consumers rely on. When PointNum disagrees with
// the decoded payload the smaller of the two is used.
func (a *Adapter) Adapt(msg *l1packets.CustomMsg) *PointCloud {
	n := int(msg.PointNum)
	if len(msg.Points) < n {
		n = len(msg.Points)
	}

	c := &a.cloud
	c.Points = c.Points[:0]
	c.Points = slices.Grow(c.Points, n)
	c.FrameID = msg.FrameID
	c.StampMicros = msg.Stamp.Micros()

	if n == 0 {
		return c
	}
	for _, p := range msg.Points[:n-1] {
		c.Points = append(c.Points, SpatialPoint{
			X:         float64(p.X),
			Y:         float64(p.Y),
			Z:         float64(p.Z),
			Intensity: float64(p.Reflectivity),
		})
	}
	return c
}

// Cap reports the capacity of the reusable buffer.
func (a *Adapter) Cap() int { return cap(a.cloud.Points) }
