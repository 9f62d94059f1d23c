// Package miqp places edge servers with an alternating assignment / re-centring heuristic.
//
// The quadratic workload-balance term is linearised into per-assignment coefficients.
// Starting from K random locations the engine alternates between solving the binary
// assignment program for the open locations and moving every location to the 1-median of
// the points assigned to it, until the location set stops changing.
package miqp

import (
	"context"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/common"
	"github.com/llm-d/llm-d-edge-placement/internal/logging"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
	"github.com/llm-d/llm-d-edge-placement/pkg/solver"
)

// Name identifies the engine in placements and reports.
const Name = "MIQP"

// Placer runs the alternating heuristic. It must not be used by more than one goroutine at a time.
type Placer struct {
	points    []core.DemandPoint
	distances core.DistanceMatrix
	cfg       config.MIQPConfig
	solver    solver.Solver
	rng       *rand.Rand

	// initialSites overrides the random starting locations.
	initialSites func(n, k int) []int
	iterations   int
}

// NewPlacer validates cfg and returns a MIQP placer solving with branch-and-bound.
func NewPlacer(points []core.DemandPoint, distances core.DistanceMatrix, cfg config.MIQPConfig) (*Placer, error) {
	if errs := cfg.Validate(nil); len(errs) > 0 {
		return nil, fmt.Errorf("invalid MIQP config: %w", errs.ToAggregate())
	}
	bb := solver.NewBranchAndBound()
	bb.MaxNodes = cfg.MaxNodes
	return &Placer{
		points:    points,
		distances: distances,
		cfg:       cfg,
		solver:    bb,
		rng:       common.NewRand(cfg.Seed),
	}, nil
}

// SetSolver replaces the assignment program solver.
func (p *Placer) SetSolver(s solver.Solver) {
	p.solver = s
}

func (p *Placer) Name() string { return Name }

// Iterations returns the number of assignment solves of the last Place call.
func (p *Placer) Iterations() int { return p.iterations }

// Coefficients returns c[i][j], the linearised cost of assigning point i to location j:
//
//	−2·μ·w_i·avg(w)/K/wbMax + (1−μ)·d_ij/dMax
//
// where wbMax is the population variance of (Σw, 0, …, 0) over K entries and dMax is
// n·max(d). A zero normaliser drops its term.
func Coefficients(points []core.DemandPoint, distances core.DistanceMatrix, n, k int, mu float64) [][]float64 {
	wl := make([]float64, n)
	for i := range wl {
		wl[i] = points[i].Workload
	}
	avg := floats.Sum(wl) / float64(n)
	spread := make([]float64, k)
	spread[0] = floats.Sum(wl)
	wbMax := stat.PopVariance(spread, nil)

	dist := distances.Leading(n)
	distMax := 0.0
	for _, row := range dist {
		distMax = max(distMax, floats.Max(row))
	}
	distMax *= float64(n)

	coefs := make([][]float64, n)
	for i := range coefs {
		balance := 0.0
		if wbMax > 0 {
			balance = -2 * mu * wl[i] * avg / float64(k) / wbMax
		}
		row := make([]float64, n)
		for j := range row {
			row[j] = balance
			if distMax > 0 {
				row[j] += (1 - mu) * dist[i][j] / distMax
			}
		}
		coefs[i] = row
	}
	return coefs
}

// assignmentProgram builds x[i][s] for every point i and open slot s with Σ_s x[i][s] = 1.
// x[i][j] ≤ y[j] removes every closed location, so only open columns are variables.
func assignmentProgram(coefs [][]float64, sites []int) *solver.Program {
	n, k := len(coefs), len(sites)
	lp := solver.NewProgram(Name, n*k)
	lp.BoundsImplied = true
	for i := 0; i < n; i++ {
		terms := make([]solver.Term, k)
		for s, site := range sites {
			v := i*k + s
			lp.SetCost(v, coefs[i][site])
			terms[s] = solver.Term{Var: v, Coef: 1}
		}
		lp.AddConstraint(fmt.Sprintf("assign_%d", i), solver.Equal, 1, terms...)
	}
	return lp
}

// Place alternates assignment and re-centring over the first n points until the location
// set is a fixed point. Exceeding MaxIterations, or any assignment solve that does not end
// optimal, fails with core.ErrSolverFailure.
func (p *Placer) Place(ctx context.Context, n, k int) (*core.Placement, error) {
	if err := core.ValidateInput(n, k, len(p.points), p.distances.Size()); err != nil {
		return nil, err
	}
	logger := ctrl.LoggerFrom(ctx).WithValues("algorithm", Name, "n", n, "k", k)
	logger.Info("Start placing servers")

	limit, err := config.TimeLimitDuration(p.cfg.TimeLimit)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	coefs := Coefficients(p.points, p.distances, n, k, ptr.Deref(p.cfg.Mu, 0))
	var sites []int
	if p.initialSites != nil {
		sites = p.initialSites(n, k)
	} else {
		sites = common.SampleSites(n, k, p.rng)
	}

	var warnings []string
	p.iterations = 0
	for p.iterations < p.cfg.MaxIterations {
		p.iterations++
		assignment, err := p.assign(ctx, coefs, sites)
		if err != nil {
			return nil, err
		}

		centres, degenerate := p.recentre(sites, assignment)
		for _, site := range degenerate {
			msg := fmt.Sprintf("%v: location %d received no demand points in iteration %d", core.ErrDegenerateAssignment, site, p.iterations)
			warnings = append(warnings, msg)
			logger.Info("Empty edge server", "warning", true, "location", site, "iteration", p.iterations)
		}
		logger.V(logging.DEBUG).Info("Iteration completed", "iteration", p.iterations, "locations", sites, "centres", centres)

		if sets.New(centres...).Equal(sets.New(sites...)) {
			placement := core.NewPlacement(Name, p.points, sites, assignment)
			placement.Warnings = warnings
			logger.Info("End placing servers", "iterations", p.iterations, "sites", sites)
			return placement, nil
		}
		sites = sets.List(sets.New(centres...))
	}
	return nil, fmt.Errorf("%w: %s did not converge within %d iterations", core.ErrSolverFailure, Name, p.cfg.MaxIterations)
}

// assign solves the assignment program and returns the slot of every point.
func (p *Placer) assign(ctx context.Context, coefs [][]float64, sites []int) ([]int, error) {
	sol, err := p.solver.Solve(ctx, assignmentProgram(coefs, sites))
	if err != nil {
		return nil, fmt.Errorf("%w: %s assignment solve failed: %w", core.ErrSolverFailure, Name, err)
	}
	if sol.Status != solver.StatusOptimal {
		return nil, fmt.Errorf("%w: %s assignment solver status %s %s", core.ErrSolverFailure, Name, sol.Status, sol.Reason)
	}
	k := len(sites)
	assignment := make([]int, len(coefs))
	for i := range assignment {
		assignment[i] = -1
		for s := 0; s < k; s++ {
			if sol.IsSet(i*k + s) {
				assignment[i] = s
				break
			}
		}
		if assignment[i] < 0 {
			return nil, fmt.Errorf("%w: %s left demand point %d unassigned", core.ErrSolverFailure, Name, i)
		}
	}
	return assignment, nil
}

// recentre moves every slot to the 1-median of its members. A slot without members keeps
// its location, or takes the lowest unclaimed point when another slot already moved there.
// The locations of empty slots are returned as degenerate.
func (p *Placer) recentre(sites, assignment []int) (centres, degenerate []int) {
	members := make([][]int, len(sites))
	for i, s := range assignment {
		members[s] = append(members[s], i)
	}
	centres = make([]int, len(sites))
	claimed := sets.New[int]()
	for s, m := range members {
		if len(m) == 0 {
			continue
		}
		best, bestCost := -1, 0.0
		for _, c := range m {
			cost := 0.0
			for _, i := range m {
				cost += p.distances[c][i]
			}
			if best < 0 || cost < bestCost {
				best, bestCost = c, cost
			}
		}
		centres[s] = best
		claimed.Insert(best)
	}
	for s, m := range members {
		if len(m) > 0 {
			continue
		}
		degenerate = append(degenerate, sites[s])
		c := sites[s]
		if claimed.Has(c) {
			c = 0
			for claimed.Has(c) {
				c++
			}
		}
		centres[s] = c
		claimed.Insert(c)
	}
	return centres, degenerate
}
