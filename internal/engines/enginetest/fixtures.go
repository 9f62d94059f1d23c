// Package enginetest provides demand point fixtures and placement checks shared by the
// engine tests.
package enginetest

import (
	"fmt"
	"math/rand"

	"github.com/llm-d/llm-d-edge-placement/internal/utils/geo"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// Bimodal returns ten unit-workload points on the equator in two clusters of five,
// at longitudes 0.00..0.04 and 1.00..1.04.
func Bimodal() ([]core.DemandPoint, core.DistanceMatrix) {
	var points []core.DemandPoint
	for c, base := range []float64{0, 1} {
		for i := 0; i < 5; i++ {
			id := c*5 + i
			points = append(points, core.DemandPoint{
				ID:        id,
				Address:   fmt.Sprintf("cluster-%d-%d", c, i),
				Longitude: base + 0.01*float64(i),
				Workload:  1,
				UserCount: 1,
			})
		}
	}
	return points, geo.DistanceMatrix(points)
}

// Random returns n points scattered over a 0.5° square with workloads in [1, 100) and
// potential scores in [0, 1).
func Random(n int, seed int64) ([]core.DemandPoint, core.DistanceMatrix) {
	rng := rand.New(rand.NewSource(seed))
	points := make([]core.DemandPoint, n)
	for i := range points {
		points[i] = core.DemandPoint{
			ID:             i,
			Address:        fmt.Sprintf("station-%d", i),
			Latitude:       31 + rng.Float64()*0.5,
			Longitude:      121 + rng.Float64()*0.5,
			Workload:       1 + rng.Float64()*99,
			UserCount:      1 + rng.Intn(50),
			PotentialScore: rng.Float64(),
		}
	}
	return points, geo.DistanceMatrix(points)
}

// Uniform returns n distinct unit-workload points on a line of latitude.
func Uniform(n int) ([]core.DemandPoint, core.DistanceMatrix) {
	points := make([]core.DemandPoint, n)
	for i := range points {
		points[i] = core.DemandPoint{
			ID:        i,
			Latitude:  10,
			Longitude: 0.05 * float64(i),
			Workload:  1,
			UserCount: 1,
		}
	}
	return points, geo.DistanceMatrix(points)
}

// CheckPlacement returns an error when p does not place exactly k distinct servers over the
// first n points, does not assign every point exactly once, or does not conserve workload.
func CheckPlacement(p *core.Placement, points []core.DemandPoint, n, k int) error {
	if len(p.Servers) != k {
		return fmt.Errorf("expected %d servers, got %d", k, len(p.Servers))
	}
	seen := map[int]bool{}
	for _, s := range p.Servers {
		if s.SourceIndex < 0 || s.SourceIndex >= n {
			return fmt.Errorf("server %d hosted outside the first %d points: %d", s.ID, n, s.SourceIndex)
		}
		if seen[s.SourceIndex] {
			return fmt.Errorf("site %d chosen twice", s.SourceIndex)
		}
		seen[s.SourceIndex] = true
	}
	if p.NumPoints() != n {
		return fmt.Errorf("expected %d assigned points, got %d", n, p.NumPoints())
	}
	count := map[int]int{}
	total := 0.0
	for _, s := range p.Servers {
		for _, dp := range s.AssignedPoints {
			count[dp.ID]++
		}
		total += s.TotalWorkload
	}
	for i := 0; i < n; i++ {
		if count[points[i].ID] != 1 {
			return fmt.Errorf("point %d assigned %d times", points[i].ID, count[points[i].ID])
		}
	}
	want := core.TotalWorkload(points, n)
	if diff := total - want; diff > 1e-6*(1+want) || diff < -1e-6*(1+want) {
		return fmt.Errorf("workload not conserved: servers hold %f, points hold %f", total, want)
	}
	return nil
}

// Clusters returns clusters×size points in well separated groups one degree of longitude
// apart, scattered within 0.05° and carrying workloads in [1, 10).
func Clusters(clusters, size int, seed int64) ([]core.DemandPoint, core.DistanceMatrix) {
	rng := rand.New(rand.NewSource(seed))
	points := make([]core.DemandPoint, 0, clusters*size)
	for c := 0; c < clusters; c++ {
		for i := 0; i < size; i++ {
			points = append(points, core.DemandPoint{
				ID:        len(points),
				Address:   fmt.Sprintf("cluster-%d-%d", c, i),
				Latitude:  rng.Float64() * 0.05,
				Longitude: float64(c) + rng.Float64()*0.05,
				Workload:  1 + rng.Float64()*9,
				UserCount: 1 + rng.Intn(10),
			})
		}
	}
	return points, geo.DistanceMatrix(points)
}
