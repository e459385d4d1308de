package l3grid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Raster thresholds applied to encoded percentages.
const (
	FreeThreshold     = 25 // values in [0, FreeThreshold] are free
	OccupiedThreshold = 65 // values >= OccupiedThreshold are occupied

	RasterFree     byte = 254
	RasterUnknown  byte = 205
	RasterOccupied byte = 0
)

// ErrGridSize is returned when a grid's data does not match its geometry.
var ErrGridSize = errors.New("grid data does not match width*height")

// RasterValue maps an encoded occupancy value to a PGM byte. The unknown
// sentinel and the band between the thresholds both map to RasterUnknown.
func RasterValue(v int8) byte {
	switch {
	case v >= 0 && v <= FreeThreshold:
		return RasterFree
	case v >= OccupiedThreshold:
		return RasterOccupied
	default:
		return RasterUnknown
	}
}

// WritePGM writes g as a binary PGM. Grid row 0 is the lowest spatial row
// while raster row 0 is the top, so rows are emitted from the last to the
// first.
func WritePGM(w io.Writer, g *OccupancyGrid) error {
	width, height := int(g.Info.Width), int(g.Info.Height)
	if len(g.Data) != width*height {
		return fmt.Errorf("%w: %d cells for %dx%d", ErrGridSize, len(g.Data), width, height)
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P5\n# CREATOR: costmap %.3f m/pix\n%d %d\n255\n",
		g.Info.Resolution, width, height); err != nil {
		return err
	}

	row := make([]byte, width)
	for y := 0; y < height; y++ {
		src := g.Data[(height-y-1)*width : (height-y)*width]
		for x, v := range src {
			row[x] = RasterValue(v)
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}
