package monitor

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
	"github.com/banshee-data/costmap/internal/fsutil"
	"github.com/banshee-data/costmap/internal/monitoring"
)

// GridPlotter renders a saved grid as a PNG heat map. It implements
// pipeline.Exporter so previews are written alongside the PGM on save.
type GridPlotter struct {
	FS     fsutil.FileSystem
	Path   string
	Width  vg.Length
	Height vg.Length
}

// NewGridPlotter returns a plotter writing to path on the OS filesystem.
func NewGridPlotter(path string) *GridPlotter {
	return &GridPlotter{
		FS:     fsutil.OSFileSystem{},
		Path:   path,
		Width:  8 * vg.Inch,
		Height: 8 * vg.Inch,
	}
}

// gridXYZ adapts an OccupancyGrid to plotter.GridXYZ. Unknown cells are NaN.
type gridXYZ struct {
	g *l3grid.OccupancyGrid
}

func (x gridXYZ) Dims() (c, r int) { return int(x.g.Info.Width), int(x.g.Info.Height) }

func (x gridXYZ) Z(c, r int) float64 {
	v := x.g.At(c, r)
	if v == l3grid.UnknownCell {
		return math.NaN()
	}
	return float64(v)
}

func (x gridXYZ) X(c int) float64 {
	return float64(x.g.Info.Origin.X) + (float64(c)+0.5)*float64(x.g.Info.Resolution)
}

func (x gridXYZ) Y(r int) float64 {
	return float64(x.g.Info.Origin.Y) + (float64(r)+0.5)*float64(x.g.Info.Resolution)
}

// Plot builds the heat map for g.
func (gp *GridPlotter) Plot(g *l3grid.OccupancyGrid) (*plot.Plot, error) {
	if len(g.Data) != g.CellCount() {
		return nil, l3grid.ErrGridSize
	}
	if g.Info.Width < 2 || g.Info.Height < 2 {
		return nil, fmt.Errorf("grid %dx%d too small to plot", g.Info.Width, g.Info.Height)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Occupancy (%s, %.3f m/cell)", g.Header.FrameID, g.Info.Resolution)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	hm := plotter.NewHeatMap(gridXYZ{g: g}, palette.Heat(12, 1))
	hm.Min = 0
	hm.Max = 100
	hm.NaN = color.Gray{Y: 205}
	p.Add(hm)
	return p, nil
}

// Export implements pipeline.Exporter.
func (gp *GridPlotter) Export(g *l3grid.OccupancyGrid) (err error) {
	p, err := gp.Plot(g)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(gp.Width, gp.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to render grid plot: %w", err)
	}

	if dir := filepath.Dir(gp.Path); dir != "." {
		if err := gp.FS.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create plot dir: %w", err)
		}
	}
	f, err := gp.FS.Create(gp.Path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", gp.Path, err)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	if _, err := wt.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", gp.Path, err)
	}
	monitoring.Logf("Saved grid preview to %s", gp.Path)
	return nil
}
