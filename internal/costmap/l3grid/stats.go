package l3grid

// CellCounts summarises a grid by raster class.
type CellCounts struct {
	Free     int `json:"free"`
	Occupied int `json:"occupied"`
	Unknown  int `json:"unknown"` // sentinel cells
	Mixed    int `json:"mixed"`   // known but between the thresholds
	Total    int `json:"total"`
}

// Count classifies every cell of g.
func Count(g *OccupancyGrid) CellCounts {
	c := CellCounts{Total: len(g.Data)}
	for _, v := range g.Data {
		switch {
		case v == UnknownCell:
			c.Unknown++
		case RasterValue(v) == RasterFree:
			c.Free++
		case RasterValue(v) == RasterOccupied:
			c.Occupied++
		default:
			c.Mixed++
		}
	}
	return c
}
