// Package ga places edge servers with a generational genetic algorithm.
//
// An individual is a length-N vector in [0,1). Gene i is a soft clustering key: demand
// point i is served by slot min(⌊v_i·K⌋, K−1), and slot s is hosted at demand point s.
// Fitness is α·(max−min slot workload) + β·Σ distance·workload, lower is better.
package ga

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/common"
	"github.com/llm-d/llm-d-edge-placement/internal/logging"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// Name identifies the engine in placements and reports.
const Name = "GA"

// Placer runs the genetic algorithm. It owns its population and random source and must
// not be used by more than one goroutine at a time.
type Placer struct {
	points    []core.DemandPoint
	distances core.DistanceMatrix
	cfg       config.GAConfig
	rng       *rand.Rand

	population [][]float64
	fitness    []float64
	history    []float64
}

// NewPlacer validates cfg and returns a GA placer over the shared, read-only inputs.
func NewPlacer(points []core.DemandPoint, distances core.DistanceMatrix, cfg config.GAConfig) (*Placer, error) {
	if errs := cfg.Validate(nil); len(errs) > 0 {
		return nil, fmt.Errorf("invalid GA config: %w", errs.ToAggregate())
	}
	return &Placer{
		points:    points,
		distances: distances,
		cfg:       cfg,
		rng:       common.NewRand(cfg.Seed),
	}, nil
}

func (p *Placer) Name() string { return Name }

// History returns the best fitness seen so far after each generation of the last Place call.
func (p *Placer) History() []float64 {
	return append([]float64(nil), p.history...)
}

// Place evolves the population for the configured number of generations over the first n
// demand points and returns the best individual seen in any generation. A cancelled ctx
// stops the evolution early; the best individual so far is still returned.
func (p *Placer) Place(ctx context.Context, n, k int) (*core.Placement, error) {
	if err := core.ValidateInput(n, k, len(p.points), p.distances.Size()); err != nil {
		return nil, err
	}
	logger := ctrl.LoggerFrom(ctx).WithValues("algorithm", Name, "n", n, "k", k)
	logger.Info("Start placing servers")

	p.initPopulation(n, k)
	p.history = p.history[:0]

	var best []float64
	bestFitness := math.Inf(1)
	track := func() {
		for i, f := range p.fitness {
			if f < bestFitness {
				bestFitness = f
				best = append(best[:0], p.population[i]...)
			}
		}
		p.history = append(p.history, bestFitness)
	}

	var warnings []string
	interrupted := false
	for gen := 0; gen < p.cfg.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, fmt.Sprintf("stopped after %d of %d generations: %v", gen, p.cfg.MaxGenerations, err))
			logger.Info("Evolution interrupted", "generation", gen, "error", err.Error())
			interrupted = true
			break
		}
		p.evaluate(n, k)
		track()
		logger.V(logging.DEBUG).Info("Generation evaluated",
			"generation", gen+1, "of", p.cfg.MaxGenerations, "bestFitness", bestFitness)

		offspring := p.crossover(p.selection(), n)
		p.mutate(offspring, n)
		p.population = offspring
	}
	if !interrupted || best == nil {
		// the last offspring were never evaluated
		p.evaluate(n, k)
		track()
	}

	sites := make([]int, k)
	for s := range sites {
		sites[s] = s
	}
	placement := core.NewPlacement(Name, p.points, sites, decode(best, k))
	placement.Warnings = warnings
	logger.Info("End placing servers", "bestFitness", bestFitness)
	return placement, nil
}

func (p *Placer) initPopulation(n, k int) {
	size := p.cfg.PopulationSize
	p.population = make([][]float64, size)
	for i := range p.population {
		genes := make([]float64, n)
		for d := range genes {
			genes[d] = p.rng.Float64()
		}
		p.population[i] = genes
	}
	p.fitness = make([]float64, size)

	if ptr.Deref(p.cfg.SeedNearest, false) {
		sites := make([]int, k)
		for s := range sites {
			sites[s] = s
		}
		for i, slot := range core.AssignNearest(p.distances, sites, n) {
			p.population[0][i] = (float64(slot) + 0.5) / float64(k)
		}
	}
}

func (p *Placer) evaluate(n, k int) {
	for i, individual := range p.population {
		p.fitness[i] = p.fitnessOf(individual, n, k)
	}
}

func (p *Placer) fitnessOf(individual []float64, n, k int) float64 {
	loads := make([]float64, k)
	delay := 0.0
	for i := 0; i < n; i++ {
		s := slotOf(individual[i], k)
		w := p.points[i].Workload
		loads[s] += w
		delay += p.distances[i][s] * w
	}
	return ptr.Deref(p.cfg.Alpha, 0)*core.WorkloadImbalance(loads) + ptr.Deref(p.cfg.Beta, 0)*delay
}

// selection runs a binary tournament between two distinct individuals per parent slot.
func (p *Placer) selection() [][]float64 {
	size := len(p.population)
	parents := make([][]float64, size)
	for i := range parents {
		a := p.rng.Intn(size)
		b := p.rng.Intn(size - 1)
		if b >= a {
			b++
		}
		winner := b
		if p.fitness[a] < p.fitness[b] {
			winner = a
		}
		parents[i] = p.population[winner]
	}
	return parents
}

// crossover recombines consecutive parent pairs at a single cut in [1, n−1]. The returned
// offspring never alias the parents.
func (p *Placer) crossover(parents [][]float64, n int) [][]float64 {
	offspring := make([][]float64, len(parents))
	for i := 0; i+1 < len(parents); i += 2 {
		a := append([]float64(nil), parents[i]...)
		b := append([]float64(nil), parents[i+1]...)
		if n > 1 && p.rng.Float64() < ptr.Deref(p.cfg.CrossoverRate, 0) {
			cut := 1 + p.rng.Intn(n-1)
			for d := cut; d < n; d++ {
				a[d], b[d] = b[d], a[d]
			}
		}
		offspring[i], offspring[i+1] = a, b
	}
	return offspring
}

func (p *Placer) mutate(offspring [][]float64, n int) {
	for _, child := range offspring {
		if p.rng.Float64() < ptr.Deref(p.cfg.MutationRate, 0) {
			child[p.rng.Intn(n)] = p.rng.Float64()
		}
	}
}

func slotOf(v float64, k int) int {
	s := int(v * float64(k))
	if s >= k {
		return k - 1
	}
	if s < 0 {
		return 0
	}
	return s
}

func decode(individual []float64, k int) []int {
	assignment := make([]int, len(individual))
	for i, v := range individual {
		assignment[i] = slotOf(v, k)
	}
	return assignment
}
