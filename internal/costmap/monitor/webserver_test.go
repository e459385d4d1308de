package monitor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/costmap/internal/costmap/engine"
	"github.com/banshee-data/costmap/internal/costmap/l3grid"
	"github.com/banshee-data/costmap/internal/costmap/pipeline"
)

type fakeEngine struct{ s engine.Stats }

func (f fakeEngine) Stats() engine.Stats { return f.s }

func newTestServer(t *testing.T) (*WebServer, *pipeline.LatestGrids) {
	t.Helper()
	grids := pipeline.NewLatestGrids()
	ws := NewWebServer(WebServerConfig{
		Address:  "127.0.0.1:0",
		Pipeline: pipeline.NewStats(),
		Packets:  NewPacketStats(),
		Engine:   fakeEngine{s: engine.Stats{Batches: 3, Recomputes: 2}},
		Grids:    grids,
	})
	return ws, grids
}

func doGet(ws *WebServer, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestWebServer_Health(t *testing.T) {
	ws, _ := newTestServer(t)
	rec := doGet(ws, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestWebServer_Stats(t *testing.T) {
	ws, _ := newTestServer(t)
	ws.packets.AddPacket(10)

	rec := doGet(ws, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Pipeline)
	require.NotNil(t, resp.Engine)
	assert.Equal(t, int64(3), resp.Engine.Batches)
	assert.Equal(t, int64(2), resp.Engine.Recomputes)
	assert.Equal(t, int64(1), resp.TotalPackets)
	assert.Nil(t, resp.Packets)
}

func TestWebServer_GridNotPublished(t *testing.T) {
	ws, _ := newTestServer(t)
	for _, path := range []string{"/api/grid.pgm", "/api/grid.yaml", "/api/grid/counts", "/charts/grid"} {
		rec := doGet(ws, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestWebServer_BadTopic(t *testing.T) {
	ws, _ := newTestServer(t)
	rec := doGet(ws, "/api/grid.pgm?topic=side")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebServer_GridRoutes(t *testing.T) {
	ws, grids := newTestServer(t)
	global := plotGrid()
	local := plotGrid()
	local.Data = []int8{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	grids.PublishGrid(pipeline.TopicGlobal, global)
	grids.PublishGrid(pipeline.TopicLocal, local)

	t.Run("pgm", func(t *testing.T) {
		rec := doGet(ws, "/api/grid.pgm")
		require.Equal(t, http.StatusOK, rec.Code)
		want, err := l3grid.EncodePGM(global)
		require.NoError(t, err)
		assert.Equal(t, want, rec.Body.Bytes())
	})

	t.Run("pgm local", func(t *testing.T) {
		rec := doGet(ws, "/api/grid.pgm?topic=local")
		require.Equal(t, http.StatusOK, rec.Code)
		want, err := l3grid.EncodePGM(local)
		require.NoError(t, err)
		assert.Equal(t, want, rec.Body.Bytes())
	})

	t.Run("yaml", func(t *testing.T) {
		rec := doGet(ws, "/api/grid.yaml")
		require.Equal(t, http.StatusOK, rec.Code)
		m, err := l3grid.ParseMapYAML(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "grid.pgm", m.Image)
		assert.InDelta(t, 0.5, m.Resolution, 1e-6)
	})

	t.Run("counts", func(t *testing.T) {
		rec := doGet(ws, "/api/grid/counts?topic=local")
		require.Equal(t, http.StatusOK, rec.Code)
		var c l3grid.CellCounts
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
		assert.Equal(t, 12, c.Free)
		assert.Equal(t, 12, c.Total)
	})

	t.Run("chart", func(t *testing.T) {
		rec := doGet(ws, "/charts/grid")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.True(t, strings.Contains(rec.Body.String(), "Occupancy Grid"))
	})

	t.Run("chart bad stride", func(t *testing.T) {
		rec := doGet(ws, "/charts/grid?stride=0")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGridScatterData(t *testing.T) {
	g := plotGrid()

	data := gridScatterData(g, 1)
	assert.Len(t, data, 10, "unknown cells are skipped")
	assert.Equal(t, []interface{}{-0.25, -0.5, 0}, data[0].Value)

	assert.Len(t, gridScatterData(g, 2), 3)
	assert.Equal(t, 1, chartStride(g))

	big := &l3grid.OccupancyGrid{Info: l3grid.MapMetaData{Width: 1000, Height: 1000}}
	assert.Equal(t, 5, chartStride(big))
}

func TestWebServer_ServeShutdown(t *testing.T) {
	ws, _ := newTestServer(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Serve(ctx, lis) }()

	url := "http://" + lis.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
