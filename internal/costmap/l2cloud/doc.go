// Package l2cloud owns Layer 2 (Clouds) of the costmap data model.
//
// Responsibilities: adapting sensor-native batches into generic spatial
// point clouds and holding the current sensor-to-world pose.
// Key types: SpatialPoint, PointCloud, Adapter, Transform, PoseTracker.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2cloud
