package main

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/banshee-data/costmap/internal/config"
	"github.com/banshee-data/costmap/internal/costmap/engine"
	"github.com/banshee-data/costmap/internal/costmap/l1packets"
	"github.com/banshee-data/costmap/internal/costmap/l3grid"
	"github.com/banshee-data/costmap/internal/costmap/monitor"
	"github.com/banshee-data/costmap/internal/costmap/pipeline"
	"github.com/banshee-data/costmap/internal/costmap/storage/sqlite"
	"github.com/banshee-data/costmap/internal/monitoring"
)

// core is the engine, orchestrator and exporters shared by serve and
// replay.
type core struct {
	engine       *engine.Engine
	orchestrator *pipeline.Orchestrator
	stats        *pipeline.Stats
	latest       *pipeline.LatestGrids
	store        *sqlite.SnapshotStore // nil when db_path is empty
}

// newCore wires the reference engine to an orchestrator. Extra publishers
// receive every grid after the latest-grid cache.
func newCore(c *config.Config, publishers ...pipeline.Publisher) (*core, error) {
	eng, err := engine.New(c.EngineParams())
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	app := &core{
		engine: eng,
		stats:  pipeline.NewStats(),
		latest: pipeline.NewLatestGrids(),
	}

	exporters := []pipeline.Exporter{l3grid.NewMapExporter(c.GetMapPath(), c.GetWriteMapYAML())}
	if path := c.GetPNGPreviewPath(); path != "" {
		exporters = append(exporters, monitor.NewGridPlotter(path))
	}
	if path := c.GetDBPath(); path != "" {
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
		app.store = store
		exporters = append(exporters, store)
	}

	app.orchestrator, err = pipeline.NewOrchestrator(pipeline.Config{
		Engine:     eng,
		Publishers: append([]pipeline.Publisher{app.latest}, publishers...),
		Exporters:  exporters,
		FrameID:    c.GetFrameID(),
		Stats:      app.stats,
	})
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}
	return app, nil
}

// Close releases the snapshot store.
func (a *core) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// directSink hands messages straight to the orchestrator on the caller's
// goroutine. Replay uses it in place of a Dispatcher so no message is
// dropped.
type directSink struct {
	o *pipeline.Orchestrator
}

func (s directSink) Enqueue(msg l1packets.Message) bool {
	if err := s.o.Handle(msg); err != nil {
		monitoring.Warnf("replay: %v", err)
	}
	return true
}
