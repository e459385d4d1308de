package pipeline

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/costmap/internal/costmap/l1packets"
	"github.com/banshee-data/costmap/internal/costmap/l2cloud"
	"github.com/banshee-data/costmap/internal/costmap/l3grid"
	"github.com/banshee-data/costmap/internal/monitoring"
	"github.com/banshee-data/costmap/internal/timeutil"
)

// Config holds the orchestrator's collaborators.
type Config struct {
	Engine     MapEngine   // required
	Publishers []Publisher // optional
	Exporters  []Exporter  // run in order on save requests
	FrameID    string      // defaults to DefaultFrameID
	Clock      timeutil.Clock
	Stats      *Stats
}

// Orchestrator turns inbound messages into engine updates and grid
// emissions. It is not safe for concurrent use; run it behind a Dispatcher.
type Orchestrator struct {
	engine     MapEngine
	publishers []Publisher
	exporters  []Exporter
	frameID    string
	clock      timeutil.Clock
	stats      *Stats

	adapter *l2cloud.Adapter
	tracker *l2cloud.PoseTracker
}

// NewOrchestrator validates cfg and returns an orchestrator with an
// identity pose.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Engine == nil {
		return nil, errors.New("pipeline: map engine is required")
	}
	o := &Orchestrator{
		engine:     cfg.Engine,
		publishers: cfg.Publishers,
		exporters:  cfg.Exporters,
		frameID:    cfg.FrameID,
		clock:      cfg.Clock,
		stats:      cfg.Stats,
		adapter:    l2cloud.NewAdapter(),
		tracker:    l2cloud.NewPoseTracker(),
	}
	if o.frameID == "" {
		o.frameID = DefaultFrameID
	}
	if o.clock == nil {
		o.clock = timeutil.RealClock{}
	}
	if o.stats == nil {
		o.stats = NewStats()
	}
	return o, nil
}

// Tracker returns the pose tracker fed by HandlePose.
func (o *Orchestrator) Tracker() *l2cloud.PoseTracker { return o.tracker }

// Stats returns the orchestrator's counters.
func (o *Orchestrator) Stats() *Stats { return o.stats }

// Handle routes a decoded message to its handler.
func (o *Orchestrator) Handle(msg l1packets.Message) error {
	switch m := msg.(type) {
	case *l1packets.CustomMsg:
		o.HandlePointCloud(m)
	case *l1packets.NavState:
		o.HandlePose(m)
	case *l1packets.SaveCommand:
		o.HandleSave(m.Data)
	default:
		return fmt.Errorf("pipeline: unhandled message %T", msg)
	}
	return nil
}

// HandlePointCloud adapts a sensor batch, forwards it with the current pose
// and recomputes when the engine reports ready.
func (o *Orchestrator) HandlePointCloud(msg *l1packets.CustomMsg) {
	o.stats.addPointCloud()

	cloud := o.adapter.Adapt(msg)
	o.engine.UpdatePointCloud(cloud)
	o.engine.UpdatePose(o.tracker.CurrentPose())

	if !o.engine.Ready() {
		return
	}
	o.Recompute(false)
}

// HandlePose replaces the tracked pose. The engine sees it with the next
// point cloud.
func (o *Orchestrator) HandlePose(msg *l1packets.NavState) {
	o.stats.addPose()
	o.tracker.SetPose(
		quat.Number{Real: msg.Quaternion.W, Imag: msg.Quaternion.X, Jmag: msg.Quaternion.Y, Kmag: msg.Quaternion.Z},
		r3.Vec{X: msg.Position.X, Y: msg.Position.Y, Z: msg.Position.Z},
	)
}

// HandleSave recomputes and persists when flag is true, regardless of
// engine readiness.
func (o *Orchestrator) HandleSave(flag bool) {
	if !flag {
		return
	}
	o.stats.addSave()
	o.Recompute(true)
}

// Recompute refreshes the engine, then encodes and publishes the global
// grid, exports it when persist is set, and finally publishes the local
// grid. Export failures are logged and counted; they never stop the pass.
func (o *Orchestrator) Recompute(persist bool) {
	o.engine.UpdateCostmap()
	o.stats.addRecompute()

	global := o.encode(o.engine.GlobalCostmapInfo())
	o.publish(TopicGlobal, global)

	if persist {
		for _, e := range o.exporters {
			if err := e.Export(global); err != nil {
				o.stats.addExportFailure()
				monitoring.Warnf("costmap export failed: %v", err)
				continue
			}
			o.stats.addExport()
		}
	}

	local := o.encode(o.engine.LocalCostmapInfo())
	o.publish(TopicLocal, local)
}

func (o *Orchestrator) encode(info l3grid.CostmapInfo) *l3grid.OccupancyGrid {
	g := l3grid.Encode(info)
	g.Header = l3grid.Header{Stamp: o.clock.Now(), FrameID: o.frameID}
	return g
}

func (o *Orchestrator) publish(topic string, g *l3grid.OccupancyGrid) {
	for _, p := range o.publishers {
		p.PublishGrid(topic, g)
		o.stats.addPublished()
	}
}
