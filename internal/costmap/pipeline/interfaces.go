package pipeline

import (
	"github.com/banshee-data/costmap/internal/costmap/l2cloud"
	"github.com/banshee-data/costmap/internal/costmap/l3grid"
)

// Topics the orchestrator publishes on.
const (
	TopicGlobal = "occupancy_grid"
	TopicLocal  = "occupancy_grid/local"
)

// DefaultFrameID labels published grids when no frame is configured.
const DefaultFrameID = "map"

// MapEngine is the occupancy engine the orchestrator drives. Implementations
// must not interleave a snapshot pull with UpdateCostmap.
type MapEngine interface {
	UpdatePointCloud(cloud *l2cloud.PointCloud)
	UpdatePose(t l2cloud.Transform)
	// Ready reports whether enough data has accumulated to recompute.
	Ready() bool
	UpdateCostmap()
	GlobalCostmapInfo() l3grid.CostmapInfo
	LocalCostmapInfo() l3grid.CostmapInfo
}

// Publisher receives every encoded grid.
type Publisher interface {
	PublishGrid(topic string, grid *l3grid.OccupancyGrid)
}

// Exporter persists a global grid on save requests.
type Exporter interface {
	Export(grid *l3grid.OccupancyGrid) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(topic string, grid *l3grid.OccupancyGrid)

// PublishGrid calls f(topic, grid).
func (f PublisherFunc) PublishGrid(topic string, grid *l3grid.OccupancyGrid) { f(topic, grid) }

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(grid *l3grid.OccupancyGrid) error

// Export calls f(grid).
func (f ExporterFunc) Export(grid *l3grid.OccupancyGrid) error { return f(grid) }
