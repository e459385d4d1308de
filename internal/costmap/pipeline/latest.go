package pipeline

import (
	"sync"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
)

// LatestGrids is a Publisher that keeps the most recent grid per topic.
type LatestGrids struct {
	mu    sync.RWMutex
	grids map[string]*l3grid.OccupancyGrid
}

// NewLatestGrids returns an empty cache.
func NewLatestGrids() *LatestGrids {
	return &LatestGrids{grids: make(map[string]*l3grid.OccupancyGrid)}
}

// PublishGrid stores grid as the latest for topic.
func (l *LatestGrids) PublishGrid(topic string, grid *l3grid.OccupancyGrid) {
	l.mu.Lock()
	l.grids[topic] = grid
	l.mu.Unlock()
}

// Latest returns the most recent grid for topic, or nil. Callers must not
// modify the returned grid.
func (l *LatestGrids) Latest(topic string) *l3grid.OccupancyGrid {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.grids[topic]
}
