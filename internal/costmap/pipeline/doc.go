// Package pipeline orchestrates costmap updates.
//
// It wires the L2 adapter and pose tracker to a Map Engine, encodes the
// engine's snapshots through L3, and fans the resulting grids out to
// publishers and exporters. Events are serialised by a Dispatcher so the
// orchestrator itself never runs concurrently with itself.
package pipeline
