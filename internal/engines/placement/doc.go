// Package placement exposes every placement algorithm behind the Placer interface.
//
// A Placer owns its search state (population, swarm, random source) exclusively and must
// be driven by one goroutine at a time. Demand points and the distance matrix are shared
// read-only, so several placers over the same inputs may run concurrently.
//
//	p, err := placement.NewPlacer(placement.MIPStrategy, points, distances, cfg)
//	result, err := p.Place(ctx, n, k)
package placement
