// Package engine provides a reference log-odds Map Engine.
//
// Each accepted scan is ray cast from the sensor origin to every return:
// cells along the ray receive a miss increment and the end cell a hit
// increment, clamped to [MinLogOdds, MaxLogOdds]. The global grid is a
// fixed window centred on the map origin; the local grid is a smaller
// window centred on the current pose.
package engine
