package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
)

// maxChartPoints bounds the points sent to the browser; larger grids are
// sampled with a stride.
const maxChartPoints = 40000

// gridScatterData converts known cells of g to scatter points (x, y,
// value) in metres, sampling every stride-th row and column.
func gridScatterData(g *l3grid.OccupancyGrid, stride int) []opts.ScatterData {
	if stride < 1 {
		stride = 1
	}
	w, h := int(g.Info.Width), int(g.Info.Height)
	res := float64(g.Info.Resolution)
	ox, oy := float64(g.Info.Origin.X), float64(g.Info.Origin.Y)

	data := make([]opts.ScatterData, 0, (w/stride+1)*(h/stride+1))
	for y := 0; y < h; y += stride {
		for x := 0; x < w; x += stride {
			v := g.At(x, y)
			if v == l3grid.UnknownCell {
				continue
			}
			cx := ox + (float64(x)+0.5)*res
			cy := oy + (float64(y)+0.5)*res
			data = append(data, opts.ScatterData{Value: []interface{}{cx, cy, int(v)}})
		}
	}
	return data
}

// chartStride picks the smallest stride that keeps the point count under
// maxChartPoints.
func chartStride(g *l3grid.OccupancyGrid) int {
	stride := 1
	for g.CellCount()/(stride*stride) > maxChartPoints {
		stride++
	}
	return stride
}

// handleGridChart renders the latest grid as a scatter heat map using
// go-echarts. ?stride=N overrides the automatic sampling.
func (ws *WebServer) handleGridChart(w http.ResponseWriter, r *http.Request) {
	g, ok := ws.latestGrid(w, r)
	if !ok {
		return
	}
	stride := chartStride(g)
	if v := r.URL.Query().Get("stride"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid stride")
			return
		}
		stride = n
	}
	data := gridScatterData(g, stride)

	res := float64(g.Info.Resolution)
	minX, minY := float64(g.Info.Origin.X), float64(g.Info.Origin.Y)
	maxX := minX + float64(g.Info.Width)*res
	maxY := minY + float64(g.Info.Height)*res

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Costmap", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy Grid", Subtitle: fmt.Sprintf("frame=%s cells=%d stride=%d", g.Header.FrameID, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX, Max: maxX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY, Max: maxY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        100,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#fefefe", "#cdcdcd", "#7f7f7f", "#3f3f3f", "#000000"}},
		}),
	)
	scatter.AddSeries("occupancy", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
