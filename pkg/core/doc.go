// Package core provides the domain model shared by every placement engine.
//
// This package contains the entities and pure functions the engines operate on:
//
//   - DemandPoint: a candidate location (base station) with aggregated workload
//   - DistanceMatrix: symmetric pairwise great-circle distances aligned to the demand point order
//   - PlacedServer: a chosen server location together with the demand points it serves
//   - Placement: the terminal output of a Place call
//   - Objectives: workload imbalance and average delay of a placement
//
// Example usage:
//
//	placement := core.NewPlacement("MIP", points, sites, core.AssignNearest(distances, sites, n))
//	obj := core.ComputeObjectives(placement, points, distances)
//	log.Info("placement done",
//	    "workloadImbalance", obj.WorkloadImbalance,
//	    "avgDelay", obj.AverageDelay)
//
// Everything here is read-only with respect to its inputs, so demand points and distance
// matrices can be shared between engines that run side by side.
package core
