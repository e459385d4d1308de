// Package monitor serves HTTP status pages for a running costmap pipeline.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/banshee-data/costmap/internal/costmap/engine"
	"github.com/banshee-data/costmap/internal/costmap/l3grid"
	"github.com/banshee-data/costmap/internal/costmap/pipeline"
	"github.com/banshee-data/costmap/internal/monitoring"
)

// EngineStats is implemented by engines that report counters.
type EngineStats interface {
	Stats() engine.Stats
}

// GridSource returns the latest grid for a topic, or nil.
type GridSource interface {
	Latest(topic string) *l3grid.OccupancyGrid
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address  string
	Pipeline *pipeline.Stats
	Packets  *PacketStats
	Engine   EngineStats
	Grids    GridSource
}

// WebServer handles the HTTP interface for monitoring the pipeline.
type WebServer struct {
	address  string
	pipeline *pipeline.Stats
	packets  *PacketStats
	engine   EngineStats
	grids    GridSource
	mux      *http.ServeMux
	server   *http.Server
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		pipeline: config.Pipeline,
		packets:  config.Packets,
		engine:   config.Engine,
		grids:    config.Grids,
	}
	ws.mux = ws.setupRoutes()
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Mux returns the route mux so other components can attach debug routes.
func (ws *WebServer) Mux() *http.ServeMux { return ws.mux }

// Handler returns the HTTP handler.
func (ws *WebServer) Handler() http.Handler { return ws.mux }

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Warnf("failed to encode JSON response: %v", err)
	}
}

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", ws.address)
	if err != nil {
		return err
	}
	return ws.Serve(ctx, lis)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", lis.Addr())
		if err := ws.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Warnf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Warnf("HTTP server force close error: %v", err)
		}
	}
	<-errCh
	monitoring.Logf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", ws.handleHealth)
	mux.HandleFunc("GET /api/stats", ws.handleStats)
	mux.HandleFunc("GET /api/grid.pgm", ws.handleGridPGM)
	mux.HandleFunc("GET /api/grid.yaml", ws.handleGridYAML)
	mux.HandleFunc("GET /api/grid/counts", ws.handleGridCounts)
	mux.HandleFunc("GET /charts/grid", ws.handleGridChart)
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

// StatusResponse is the body of /api/stats.
type StatusResponse struct {
	Pipeline     *pipeline.StatsSnapshot `json:"pipeline,omitempty"`
	Engine       *engine.Stats           `json:"engine,omitempty"`
	Packets      *PacketSnapshot         `json:"packets,omitempty"`
	TotalPackets int64                   `json:"total_packets"`
	Uptime       string                  `json:"uptime,omitempty"`
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp StatusResponse
	if ws.pipeline != nil {
		s := ws.pipeline.Snapshot()
		resp.Pipeline = &s
		resp.Uptime = s.Uptime
	}
	if ws.engine != nil {
		s := ws.engine.Stats()
		resp.Engine = &s
	}
	if ws.packets != nil {
		resp.Packets = ws.packets.LatestSnapshot()
		resp.TotalPackets = ws.packets.TotalPackets()
	}
	ws.writeJSON(w, resp)
}

// latestGrid resolves ?topic=global|local (global by default).
func (ws *WebServer) latestGrid(w http.ResponseWriter, r *http.Request) (*l3grid.OccupancyGrid, bool) {
	topic := pipeline.TopicGlobal
	switch r.URL.Query().Get("topic") {
	case "", "global", pipeline.TopicGlobal:
	case "local", pipeline.TopicLocal:
		topic = pipeline.TopicLocal
	default:
		ws.writeJSONError(w, http.StatusBadRequest, "topic must be global or local")
		return nil, false
	}
	if ws.grids == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no grid source")
		return nil, false
	}
	g := ws.grids.Latest(topic)
	if g == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no grid published on "+topic)
		return nil, false
	}
	return g, true
}

func (ws *WebServer) handleGridPGM(w http.ResponseWriter, r *http.Request) {
	g, ok := ws.latestGrid(w, r)
	if !ok {
		return
	}
	body, err := l3grid.EncodePGM(g)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/x-portable-graymap")
	w.Header().Set("Content-Disposition", "attachment; filename=grid.pgm")
	w.Write(body)
}

func (ws *WebServer) handleGridYAML(w http.ResponseWriter, r *http.Request) {
	g, ok := ws.latestGrid(w, r)
	if !ok {
		return
	}
	body, err := l3grid.MarshalMapYAML(g, "grid.pgm")
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(body)
}

func (ws *WebServer) handleGridCounts(w http.ResponseWriter, r *http.Request) {
	g, ok := ws.latestGrid(w, r)
	if !ok {
		return
	}
	ws.writeJSON(w, l3grid.Count(g))
}
