package l3grid

import "time"

// CostmapInfo is a Map Engine snapshot. Cells holds SizeX*SizeY log-odds
// values in row-major order, row 0 being the lowest spatial row. Callers
// treat it as immutable for the duration of one encode pass.
type CostmapInfo struct {
	SizeX, SizeY uint
	Resolution   float64 // metres per cell
	OriginX      float64
	OriginY      float64
	Cells        []float64
}

// Header tags a published grid.
type Header struct {
	Stamp   time.Time
	FrameID string
}

// Point2 is a planar position in the grid frame.
type Point2 struct {
	X, Y float32
}

// MapMetaData describes the grid geometry.
type MapMetaData struct {
	Width      uint32
	Height     uint32
	Resolution float32
	Origin     Point2
}

// OccupancyGrid mirrors nav_msgs/OccupancyGrid. Data is row-major with
// len(Data) == Width*Height; each cell is -1 or a percentage in [0,100].
type OccupancyGrid struct {
	Header Header
	Info   MapMetaData
	Data   []int8
}

// At returns the cell at column x, row y.
func (g *OccupancyGrid) At(x, y int) int8 {
	return g.Data[y*int(g.Info.Width)+x]
}

// CellCount returns Width*Height.
func (g *OccupancyGrid) CellCount() int {
	return int(g.Info.Width) * int(g.Info.Height)
}
