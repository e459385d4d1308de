package l3grid

import "math"

// UnknownCell marks a cell with no accumulated evidence.
const UnknownCell int8 = -1

// Probability converts log-odds to probability with the logistic function.
// The two-branch form saturates to 0 or 1 for extreme values instead of
// overflowing.
func Probability(logOdds float64) float64 {
	if logOdds >= 0 {
		return 1 / (1 + math.Exp(-logOdds))
	}
	e := math.Exp(logOdds)
	return e / (1 + e)
}

// OccupancyValue maps a log-odds value to an occupancy code.
//
// Zero (and NaN) map to UnknownCell. Anything else maps to the rounded
// percentage, kept strictly on its side of 50 so the sign of the evidence
// survives rounding: positive values land in (50,100], negative in [0,50).
func OccupancyValue(logOdds float64) int8 {
	if logOdds == 0 || math.IsNaN(logOdds) {
		return UnknownCell
	}
	v := math.Round(Probability(logOdds) * 100)
	switch {
	case logOdds > 0 && v <= 50:
		v = 51
	case logOdds < 0 && v >= 50:
		v = 49
	}
	return int8(v)
}

// Encode converts a snapshot to an occupancy grid with an empty header.
// Geometry is copied from info, narrowed to float32. If info.Cells is
// shorter than SizeX*SizeY the missing cells are encoded as unknown.
func Encode(info CostmapInfo) *OccupancyGrid {
	n := int(info.SizeX * info.SizeY)
	g := &OccupancyGrid{
		Info: MapMetaData{
			Width:      uint32(info.SizeX),
			Height:     uint32(info.SizeY),
			Resolution: float32(info.Resolution),
			Origin: Point2{
				X: float32(info.OriginX),
				Y: float32(info.OriginY),
			},
		},
		Data: make([]int8, n),
	}
	for i := range g.Data {
		if i < len(info.Cells) {
			g.Data[i] = OccupancyValue(info.Cells[i])
		} else {
			g.Data[i] = UnknownCell
		}
	}
	return g
}
