package engine

import (
	"fmt"

	"go.uber.org/multierr"
)

// Params configures the reference engine.
type Params struct {
	Resolution   float64 // metres per cell
	GlobalWidth  uint    // cells
	GlobalHeight uint    // cells
	LocalWidth   uint    // cells
	LocalHeight  uint    // cells

	HitLogOdds  float64 // e.g. 0.85
	MissLogOdds float64 // e.g. -0.4
	MinLogOdds  float64
	MaxLogOdds  float64

	MaxRange float64 // planar range limit in metres; zero disables
	MinZ     float64 // returns below MinZ (world frame) are ignored
	MaxZ     float64 // returns above MaxZ (world frame) are ignored

	// WarmupBatches is the number of scans discarded before the engine
	// starts integrating and reports ready.
	WarmupBatches int
}

// DefaultParams returns parameters for a 100 m x 100 m map at 10 cm.
func DefaultParams() Params {
	return Params{
		Resolution:    0.1,
		GlobalWidth:   1000,
		GlobalHeight:  1000,
		LocalWidth:    200,
		LocalHeight:   200,
		HitLogOdds:    0.85,
		MissLogOdds:   -0.4,
		MinLogOdds:    -2.0,
		MaxLogOdds:    3.5,
		MaxRange:      40,
		MinZ:          -0.5,
		MaxZ:          2.0,
		WarmupBatches: 5,
	}
}

// Validate reports every invalid parameter.
func (p Params) Validate() error {
	var err error
	if p.Resolution <= 0 {
		err = multierr.Append(err, fmt.Errorf("resolution must be positive, got %g", p.Resolution))
	}
	if p.GlobalWidth == 0 || p.GlobalHeight == 0 {
		err = multierr.Append(err, fmt.Errorf("global grid must be non-empty, got %dx%d", p.GlobalWidth, p.GlobalHeight))
	}
	if p.LocalWidth == 0 || p.LocalHeight == 0 {
		err = multierr.Append(err, fmt.Errorf("local grid must be non-empty, got %dx%d", p.LocalWidth, p.LocalHeight))
	}
	if p.HitLogOdds <= 0 {
		err = multierr.Append(err, fmt.Errorf("hit log-odds must be positive, got %g", p.HitLogOdds))
	}
	if p.MissLogOdds >= 0 {
		err = multierr.Append(err, fmt.Errorf("miss log-odds must be negative, got %g", p.MissLogOdds))
	}
	if p.MinLogOdds >= 0 || p.MaxLogOdds <= 0 {
		err = multierr.Append(err, fmt.Errorf("log-odds bounds must straddle zero, got [%g, %g]", p.MinLogOdds, p.MaxLogOdds))
	}
	if p.MaxRange < 0 {
		err = multierr.Append(err, fmt.Errorf("max range must not be negative, got %g", p.MaxRange))
	}
	if p.MinZ > p.MaxZ {
		err = multierr.Append(err, fmt.Errorf("min z %g exceeds max z %g", p.MinZ, p.MaxZ))
	}
	if p.WarmupBatches < 0 {
		err = multierr.Append(err, fmt.Errorf("warmup batches must not be negative, got %d", p.WarmupBatches))
	}
	return err
}
