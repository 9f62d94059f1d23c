package qpso

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/common"
	"github.com/llm-d/llm-d-edge-placement/internal/logging"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// DiscreteName identifies the composite-score variant.
const DiscreteName = "QPSO-Discrete"

// DiscretePlacer is the composite-score QPSO. Particles are ascending K-sets of site indices.
// It must not be used by more than one goroutine at a time.
type DiscretePlacer struct {
	points    []core.DemandPoint
	distances core.DistanceMatrix
	cfg       config.DiscreteQPSOConfig
	rng       *rand.Rand

	history []float64
}

// NewDiscretePlacer validates cfg and returns a composite-score QPSO placer.
func NewDiscretePlacer(points []core.DemandPoint, distances core.DistanceMatrix, cfg config.DiscreteQPSOConfig) (*DiscretePlacer, error) {
	if errs := cfg.Validate(nil); len(errs) > 0 {
		return nil, fmt.Errorf("invalid discrete QPSO config: %w", errs.ToAggregate())
	}
	return &DiscretePlacer{
		points:    points,
		distances: distances,
		cfg:       cfg,
		rng:       common.NewRand(cfg.Seed),
	}, nil
}

func (p *DiscretePlacer) Name() string { return DiscreteName }

// History returns the global best fitness before the first and after every iteration of
// the last Place call. Fitness is maximised, so the history never decreases.
func (p *DiscretePlacer) History() []float64 {
	return append([]float64(nil), p.history...)
}

// CompositeScores returns 0.5·norm(workload) + 0.5·norm(user count) for each point.
func CompositeScores(points []core.DemandPoint) []float64 {
	workloads := make([]float64, len(points))
	users := make([]float64, len(points))
	for i, dp := range points {
		workloads[i] = dp.Workload
		users[i] = float64(dp.UserCount)
	}
	nw, nu := core.MinMaxNormalize(workloads), core.MinMaxNormalize(users)
	scores := make([]float64, len(points))
	for i := range scores {
		scores[i] = 0.5*nw[i] + 0.5*nu[i]
	}
	return scores
}

// Place searches K-sets of the first n demand points maximising the summed composite score,
// and assigns every point to its nearest chosen site.
func (p *DiscretePlacer) Place(ctx context.Context, n, k int) (*core.Placement, error) {
	if err := core.ValidateInput(n, k, len(p.points), p.distances.Size()); err != nil {
		return nil, err
	}
	logger := ctrl.LoggerFrom(ctx).WithValues("algorithm", DiscreteName, "n", n, "k", k)
	logger.Info("Start placing servers")

	scores := CompositeScores(p.points[:n])
	fitness := func(sites []int) float64 {
		total := 0.0
		for _, s := range sites {
			total += scores[s]
		}
		return total
	}

	swarm := make([][]int, p.cfg.SwarmSize)
	pbest := make([][]int, p.cfg.SwarmSize)
	pbestFitness := make([]float64, p.cfg.SwarmSize)
	var gbest []int
	gbestFitness := 0.0
	for i := range swarm {
		swarm[i] = common.SampleSites(n, k, p.rng)
		pbest[i] = swarm[i]
		pbestFitness[i] = fitness(swarm[i])
		if gbest == nil || pbestFitness[i] > gbestFitness {
			gbest, gbestFitness = swarm[i], pbestFitness[i]
		}
	}
	p.history = append(p.history[:0], gbestFitness)

	var warnings []string
	for it := 0; it < p.cfg.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, fmt.Sprintf("stopped after %d of %d iterations: %v", it, p.cfg.Iterations, err))
			logger.Info("Swarm interrupted", "iteration", it, "error", err.Error())
			break
		}
		for i := range swarm {
			union := sets.New(swarm[i]...).Insert(pbest[i]...).Insert(gbest...)
			candidate := common.TopKByScore(sets.List(union), scores, k)
			if p.rng.Float64() < ptr.Deref(p.cfg.MutationRate, 0) {
				candidate = p.mutate(candidate, n)
			}
			f := fitness(candidate)
			if f > pbestFitness[i] {
				pbest[i], pbestFitness[i] = candidate, f
			}
			if f > gbestFitness {
				gbest, gbestFitness = candidate, f
			}
			swarm[i] = candidate
		}
		p.history = append(p.history, gbestFitness)
		logger.V(logging.DEBUG).Info("Iteration completed",
			"iteration", it+1, "of", p.cfg.Iterations, "bestFitness", gbestFitness)
	}

	sites := append([]int(nil), gbest...)
	placement := core.NewPlacement(DiscreteName, p.points, sites, core.AssignNearest(p.distances, sites, n))
	placement.Warnings = warnings
	logger.Info("End placing servers", "bestFitness", gbestFitness)
	return placement, nil
}

// mutate swaps one random member of sites for a random non-member and returns a new
// ascending set. With no non-member available only the removal is undone.
func (p *DiscretePlacer) mutate(sites []int, n int) []int {
	members := sets.New(sites...)
	out := sets.New(sites...)
	out.Delete(sites[p.rng.Intn(len(sites))])
	if available := n - members.Len(); available > 0 {
		pick := p.rng.Intn(available)
		for i := 0; i < n; i++ {
			if members.Has(i) {
				continue
			}
			if pick == 0 {
				out.Insert(i)
				break
			}
			pick--
		}
		return sets.List(out)
	}
	result := append([]int(nil), sites...)
	sort.Ints(result)
	return result
}
