// Package baseline provides reference placers to compare the optimisers against: uniform
// random sites, the K highest workloads, and k-means clustering snapped to demand points.
package baseline

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"k8s.io/apimachinery/pkg/util/sets"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/common"
	"github.com/llm-d/llm-d-edge-placement/internal/logging"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// Names of the baseline placers.
const (
	RandomName = "Random"
	TopKName   = "TopK"
	KMeansName = "KMeans"
)

// Random places servers at uniformly drawn sites.
type Random struct {
	points    []core.DemandPoint
	distances core.DistanceMatrix
	rng       *rand.Rand
}

// NewRandom returns a random placer.
func NewRandom(points []core.DemandPoint, distances core.DistanceMatrix, cfg config.RandomConfig) *Random {
	return &Random{points: points, distances: distances, rng: common.NewRand(cfg.Seed)}
}

func (r *Random) Name() string { return RandomName }

func (r *Random) Place(ctx context.Context, n, k int) (*core.Placement, error) {
	if err := core.ValidateInput(n, k, len(r.points), r.distances.Size()); err != nil {
		return nil, err
	}
	sites := common.SampleSites(n, k, r.rng)
	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Placed servers", "algorithm", RandomName, "n", n, "k", k, "sites", sites)
	return core.NewPlacement(RandomName, r.points, sites, core.AssignNearest(r.distances, sites, n)), nil
}

// TopK places servers at the K demand points with the highest workload.
type TopK struct {
	points    []core.DemandPoint
	distances core.DistanceMatrix
}

// NewTopK returns a top-K workload placer.
func NewTopK(points []core.DemandPoint, distances core.DistanceMatrix) *TopK {
	return &TopK{points: points, distances: distances}
}

func (t *TopK) Name() string { return TopKName }

func (t *TopK) Place(ctx context.Context, n, k int) (*core.Placement, error) {
	if err := core.ValidateInput(n, k, len(t.points), t.distances.Size()); err != nil {
		return nil, err
	}
	candidates := make([]int, n)
	workloads := make([]float64, n)
	for i := range candidates {
		candidates[i] = i
		workloads[i] = t.points[i].Workload
	}
	sites := common.TopKByScore(candidates, workloads, k)
	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Placed servers", "algorithm", TopKName, "n", n, "k", k, "sites", sites)
	return core.NewPlacement(TopKName, t.points, sites, core.AssignNearest(t.distances, sites, n)), nil
}

// KMeans runs Lloyd iterations on latitude/longitude and hosts each server at the demand
// point nearest to its centroid.
type KMeans struct {
	points    []core.DemandPoint
	distances core.DistanceMatrix
	cfg       config.KMeansConfig
	rng       *rand.Rand
}

// NewKMeans validates cfg and returns a k-means placer.
func NewKMeans(points []core.DemandPoint, distances core.DistanceMatrix, cfg config.KMeansConfig) (*KMeans, error) {
	if errs := cfg.Validate(nil); len(errs) > 0 {
		return nil, fmt.Errorf("invalid k-means config: %w", errs.ToAggregate())
	}
	return &KMeans{points: points, distances: distances, cfg: cfg, rng: common.NewRand(cfg.Seed)}, nil
}

func (m *KMeans) Name() string { return KMeansName }

func (m *KMeans) Place(ctx context.Context, n, k int) (*core.Placement, error) {
	if err := core.ValidateInput(n, k, len(m.points), m.distances.Size()); err != nil {
		return nil, err
	}
	logger := ctrl.LoggerFrom(ctx).WithValues("algorithm", KMeansName, "n", n, "k", k)

	lat := make([]float64, n)
	lng := make([]float64, n)
	var weights []float64
	if m.cfg.Weighted {
		weights = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		lat[i], lng[i] = m.points[i].Latitude, m.points[i].Longitude
		if weights != nil {
			weights[i] = m.points[i].Workload
		}
	}

	seeds := common.SampleSites(n, k, m.rng)
	cLat := make([]float64, k)
	cLng := make([]float64, k)
	for c, s := range seeds {
		cLat[c], cLng[c] = lat[s], lng[s]
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	iter := 0
	for ; iter < m.cfg.Iterations; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			best, bestDist := 0, math.Inf(1)
			for c := 0; c < k; c++ {
				if d := math.Hypot(lat[i]-cLat[c], lng[i]-cLng[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		for c := 0; c < k; c++ {
			var xs, ys, ws []float64
			for i, l := range labels {
				if l != c {
					continue
				}
				xs, ys = append(xs, lat[i]), append(ys, lng[i])
				if weights != nil {
					ws = append(ws, weights[i])
				}
			}
			if len(xs) == 0 || (ws != nil && floats.Sum(ws) == 0) {
				continue
			}
			cLat[c], cLng[c] = stat.Mean(xs, ws), stat.Mean(ys, ws)
		}
	}

	sites := make([]int, k)
	taken := sets.New[int]()
	for c := 0; c < k; c++ {
		best, bestDist := -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if taken.Has(i) {
				continue
			}
			if d := math.Hypot(lat[i]-cLat[c], lng[i]-cLng[c]); d < bestDist {
				best, bestDist = i, d
			}
		}
		sites[c] = best
		taken.Insert(best)
	}
	logger.V(logging.DEBUG).Info("Placed servers", "iterations", iter, "sites", sites)
	return core.NewPlacement(KMeansName, m.points, sites, core.AssignNearest(m.distances, sites, n)), nil
}
