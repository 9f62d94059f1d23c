package qpso

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/cache"
	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/common"
	"github.com/llm-d/llm-d-edge-placement/internal/logging"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// Name identifies the continuous variant.
const Name = "QPSO"

const (
	// minUniform keeps ln(1/u) finite.
	minUniform = 1e-10
	// thresholdPenalty multiplies a delay term beyond the distance threshold.
	thresholdPenalty = 10
	// objectiveCacheSize bounds the memoised objective values.
	objectiveCacheSize = 1 << 16
)

// Placer is the continuous-encoding QPSO. It owns its swarm and random source and must
// not be used by more than one goroutine at a time.
type Placer struct {
	points    []core.DemandPoint
	distances core.DistanceMatrix
	cfg       config.QPSOConfig
	rng       *rand.Rand
	memo      cache.ReadWriter[float64]

	history []float64
}

// NewPlacer validates cfg and returns a continuous QPSO placer over the shared inputs.
func NewPlacer(points []core.DemandPoint, distances core.DistanceMatrix, cfg config.QPSOConfig) (*Placer, error) {
	if errs := cfg.Validate(nil); len(errs) > 0 {
		return nil, fmt.Errorf("invalid QPSO config: %w", errs.ToAggregate())
	}
	p := &Placer{
		points:    points,
		distances: distances,
		cfg:       cfg,
		rng:       common.NewRand(cfg.Seed),
	}
	if ptr.Deref(cfg.CacheObjectives, false) {
		p.memo = cache.NewMemoryCache[float64](objectiveCacheSize)
	}
	return p, nil
}

// SetObjectiveCache replaces the objective memo; nil disables memoisation.
func (p *Placer) SetObjectiveCache(memo cache.ReadWriter[float64]) {
	p.memo = memo
}

func (p *Placer) Name() string { return Name }

// History returns the global best objective before the first and after every iteration of
// the last Place call.
func (p *Placer) History() []float64 {
	return append([]float64(nil), p.history...)
}

// particle is one search agent of the swarm.
type particle struct {
	position []float64
	best     []float64
	bestSel  []int
	bestObj  float64
}

// Place runs the swarm over the first n demand points and places k servers at the global
// best selection, assigning every point to its nearest server.
func (p *Placer) Place(ctx context.Context, n, k int) (*core.Placement, error) {
	if err := core.ValidateInput(n, k, len(p.points), p.distances.Size()); err != nil {
		return nil, err
	}
	logger := ctrl.LoggerFrom(ctx).WithValues("algorithm", Name, "n", n, "k", k)
	logger.Info("Start placing servers")

	swarm := make([]*particle, p.cfg.SwarmSize)
	gbest := -1
	for i := range swarm {
		pos := make([]float64, n)
		for d := range pos {
			pos[d] = p.rng.Float64()
		}
		sel := common.Repair(common.ContinuousToBinary(pos, k), k, p.rng)
		swarm[i] = &particle{
			position: pos,
			best:     append([]float64(nil), pos...),
			bestSel:  sel,
			bestObj:  p.objective(sel, n),
		}
		if gbest < 0 || swarm[i].bestObj < swarm[gbest].bestObj {
			gbest = i
		}
	}
	gbestSel := append([]int(nil), swarm[gbest].bestSel...)
	gbestObj := swarm[gbest].bestObj
	p.history = append(p.history[:0], gbestObj)

	var warnings []string
	mbest := make([]float64, n)
	for it := 0; it < p.cfg.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, fmt.Sprintf("stopped after %d of %d iterations: %v", it, p.cfg.Iterations, err))
			logger.Info("Swarm interrupted", "iteration", it, "error", err.Error())
			break
		}
		meanBest(swarm, mbest)
		for _, pt := range swarm {
			for d := range pt.position {
				u := p.rng.Float64()
				if u < minUniform {
					u = minUniform
				}
				sign := 1.0
				if p.rng.Float64() < 0.5 {
					sign = -1
				}
				v := mbest[d] + sign*ptr.Deref(p.cfg.Beta, 0)*math.Abs(pt.best[d]-mbest[d])*math.Log(1/u)
				pt.position[d] = math.Max(0, math.Min(1, v))
			}
			sel := common.Repair(common.ContinuousToBinary(pt.position, k), k, p.rng)
			obj := p.objective(sel, n)
			if obj < pt.bestObj {
				pt.bestObj = obj
				copy(pt.best, pt.position)
				pt.bestSel = sel
			}
			if obj < gbestObj {
				gbestObj = obj
				gbestSel = append(gbestSel[:0], sel...)
			}
		}
		p.history = append(p.history, gbestObj)
		logger.V(logging.DEBUG).Info("Iteration completed",
			"iteration", it+1, "of", p.cfg.Iterations, "bestObjective", gbestObj)
	}

	sites := core.SelectedIndices(gbestSel)
	placement := core.NewPlacement(Name, p.points, sites, core.AssignNearest(p.distances, sites, n))
	placement.Warnings = warnings
	logger.Info("End placing servers", "bestObjective", gbestObj)
	return placement, nil
}

func meanBest(swarm []*particle, out []float64) {
	for d := range out {
		out[d] = 0
	}
	for _, pt := range swarm {
		for d, v := range pt.best {
			out[d] += v
		}
	}
	for d := range out {
		out[d] /= float64(len(swarm))
	}
}

// objective evaluates a 0/1 selection over the first n points, lower is better.
func (p *Placer) objective(selection []int, n int) float64 {
	sites := core.SelectedIndices(selection)
	if len(sites) == 0 {
		return math.Inf(1)
	}
	var key cache.Key
	if p.memo != nil {
		key = cache.NewHasher(Name).Ints(n).Ints(sites...).Sum()
		if v, ok := p.memo.Get(key); ok {
			return v
		}
	}
	v := Objective(p.points, p.distances, sites, n, p.cfg)
	if p.memo != nil {
		_ = p.memo.Set(key, v)
	}
	return v
}

// Objective returns αd·avg_delay + βw·workload_imbalance − γp·potential_coverage for the
// given ascending server sites over the first n points. avg_delay is the unweighted mean
// distance to the nearest site, a distance beyond DistanceThreshold counting ten-fold.
func Objective(points []core.DemandPoint, distances core.DistanceMatrix, sites []int, n int, cfg config.QPSOConfig) float64 {
	threshold := ptr.Deref(cfg.DistanceThreshold, 0)
	loads := make([]float64, len(sites))
	delay := 0.0
	for i := 0; i < n; i++ {
		best := 0
		for s := 1; s < len(sites); s++ {
			if distances[i][sites[s]] < distances[i][sites[best]] {
				best = s
			}
		}
		d := distances[i][sites[best]]
		if d > threshold {
			d *= thresholdPenalty
		}
		delay += d
		loads[best] += points[i].Workload
	}
	potential := 0.0
	for _, s := range sites {
		potential += points[s].PotentialScore
	}
	return ptr.Deref(cfg.AlphaDelay, 0)*delay/float64(n) +
		ptr.Deref(cfg.BetaWorkload, 0)*core.WorkloadImbalance(loads) -
		ptr.Deref(cfg.GammaPotential, 0)*potential
}
