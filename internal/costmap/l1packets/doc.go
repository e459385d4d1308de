// Package l1packets owns Layer 1 (Packets) of the costmap data model.
//
// Responsibilities: the sensor-native wire messages that feed the pipeline
// and their binary encoding. Key types: CustomMsg (a Livox point batch),
// NavState (a pose sample) and SaveCommand.
//
// Every datagram starts with a one-byte MessageType followed by the
// little-endian body of that message.
//
// Dependency rule: L1 depends on nothing else in internal/costmap.
package l1packets
