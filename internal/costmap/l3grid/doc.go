// Package l3grid owns Layer 3 (Grid) of the costmap data model.
//
// Responsibilities: mapping Map Engine log-odds snapshots to occupancy
// grid messages, and serialising those grids (PGM raster, map_server YAML
// sidecar, protobuf wire encoding).
// Key types: CostmapInfo, OccupancyGrid, MapExporter.
//
// Dependency rule: L3 may depend on L1-L2, but never on the pipeline.
package l3grid
