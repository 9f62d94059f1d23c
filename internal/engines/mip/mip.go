// Package mip places edge servers by solving a binary coverage program exactly.
//
// Candidate i covers its ⌊N/K⌋ nearest demand points. Each candidate is weighted by the
// normalised radius of its covered set and the normalised squared deviation of the covered
// workload from total/K. The program picks exactly K candidates of minimum total weight such
// that at least ⌊ratio·N⌋ demand points are covered; every point is then assigned to its
// nearest chosen location.
package mip

import (
	"context"
	"fmt"
	"math"
	"sort"

	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/logging"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
	"github.com/llm-d/llm-d-edge-placement/pkg/solver"
)

// Name identifies the engine in placements and reports.
const Name = "MIP"

// Placer solves the coverage program. It must not be used by more than one goroutine at a time.
type Placer struct {
	points    []core.DemandPoint
	distances core.DistanceMatrix
	cfg       config.MIPConfig
	solver    solver.Solver

	placed, served int
}

// NewPlacer validates cfg and returns a MIP placer solving with branch-and-bound.
func NewPlacer(points []core.DemandPoint, distances core.DistanceMatrix, cfg config.MIPConfig) (*Placer, error) {
	if errs := cfg.Validate(nil); len(errs) > 0 {
		return nil, fmt.Errorf("invalid MIP config: %w", errs.ToAggregate())
	}
	bb := solver.NewBranchAndBound()
	bb.MaxNodes = cfg.MaxNodes
	return &Placer{
		points:    points,
		distances: distances,
		cfg:       cfg,
		solver:    bb,
	}, nil
}

// SetSolver replaces the program solver.
func (p *Placer) SetSolver(s solver.Solver) {
	p.solver = s
}

func (p *Placer) Name() string { return Name }

// Coverage returns the number of placed candidates and served demand points in the last
// optimal solution.
func (p *Placer) Coverage() (placed, served int) {
	return p.placed, p.served
}

// Problem is the preprocessed coverage instance over the first N demand points.
type Problem struct {
	// Covers[i] holds the demand points candidate i may serve, nearest first.
	Covers [][]int
	// Belongs[j] holds the candidates covering demand point j.
	Belongs [][]int
	// MaxDistance[i] is the distance from candidate i to the farthest point it covers.
	MaxDistance []float64
	// WorkloadDeviation[i] is (covered workload − total/K)².
	WorkloadDeviation []float64
	Weights           []float64
	// MinServed is the number of demand points that must be covered.
	MinServed int
}

// Preprocess builds the coverage instance for placing k servers over the first n points.
func Preprocess(points []core.DemandPoint, distances core.DistanceMatrix, n, k int, cfg config.MIPConfig) *Problem {
	capacity := n / k
	alpha := ptr.Deref(cfg.Alpha, 0)
	ideal := core.TotalWorkload(points, n) / float64(k)

	prob := &Problem{
		Covers:            make([][]int, n),
		Belongs:           make([][]int, n),
		MaxDistance:       make([]float64, n),
		WorkloadDeviation: make([]float64, n),
		MinServed:         int(math.Floor(ptr.Deref(cfg.CoverageRatio, 0)*float64(n) + 1e-9)),
	}
	order := make([]int, n)
	for i := 0; i < n; i++ {
		for j := range order {
			order[j] = j
		}
		row := distances[i]
		// a candidate always covers itself, even when other points share its location
		sort.SliceStable(order, func(a, b int) bool {
			da, db := row[order[a]], row[order[b]]
			if da == db {
				return order[a] == i && order[b] != i
			}
			return da < db
		})

		covers := append([]int(nil), order[:capacity]...)
		prob.Covers[i] = covers
		workload := 0.0
		for _, j := range covers {
			prob.MaxDistance[i] = math.Max(prob.MaxDistance[i], row[j])
			workload += points[j].Workload
			prob.Belongs[j] = append(prob.Belongs[j], i)
		}
		prob.WorkloadDeviation[i] = (workload - ideal) * (workload - ideal)
	}

	nd := core.MinMaxNormalize(prob.MaxDistance)
	nw := core.MinMaxNormalize(prob.WorkloadDeviation)
	prob.Weights = make([]float64, n)
	for i := range prob.Weights {
		prob.Weights[i] = alpha*nd[i] + (1-alpha)*nw[i]
	}
	return prob
}

// Program returns the binary program over place[0..n) followed by served[0..n).
func (prob *Problem) Program(k int) *solver.Program {
	n := len(prob.Weights)
	lp := solver.NewProgram(Name, 2*n)
	place := func(i int) int { return i }
	served := func(j int) int { return n + j }

	all := make([]solver.Term, n)
	for i, w := range prob.Weights {
		lp.SetCost(place(i), w)
		all[i] = solver.Term{Var: place(i), Coef: 1}
	}
	lp.AddConstraint("servers", solver.Equal, float64(k), all...)

	for j, candidates := range prob.Belongs {
		terms := make([]solver.Term, 0, len(candidates)+1)
		for _, i := range candidates {
			terms = append(terms, solver.Term{Var: place(i), Coef: 1})
		}
		terms = append(terms, solver.Term{Var: served(j), Coef: -1})
		lp.AddConstraint(fmt.Sprintf("covered_%d", j), solver.GreaterEqual, 0, terms...)
	}

	coverage := make([]solver.Term, n)
	for j := range coverage {
		coverage[j] = solver.Term{Var: served(j), Coef: 1}
	}
	lp.AddConstraint("coverage", solver.GreaterEqual, float64(prob.MinServed), coverage...)
	return lp
}

// Place solves the coverage program for k servers over the first n points. A solve that
// does not end optimal fails with core.ErrSolverFailure and no placement.
func (p *Placer) Place(ctx context.Context, n, k int) (*core.Placement, error) {
	if err := core.ValidateInput(n, k, len(p.points), p.distances.Size()); err != nil {
		return nil, err
	}
	logger := ctrl.LoggerFrom(ctx).WithValues("algorithm", Name, "n", n, "k", k)
	logger.Info("Start placing servers")

	prob := Preprocess(p.points, p.distances, n, k, p.cfg)
	lp := prob.Program(k)

	limit, err := config.TimeLimitDuration(p.cfg.TimeLimit)
	if err != nil {
		return nil, err
	}
	solveCtx := ctx
	if limit > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	sol, err := p.solver.Solve(solveCtx, lp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s solve failed: %w", core.ErrSolverFailure, Name, err)
	}
	logger.V(logging.DEBUG).Info("Solver finished", "status", sol.Status.String(), "objective", sol.Objective, "nodes", sol.Nodes)
	if sol.Status != solver.StatusOptimal {
		return nil, fmt.Errorf("%w: %s solver status %s %s", core.ErrSolverFailure, Name, sol.Status, sol.Reason)
	}

	var sites []int
	served := 0
	for i := 0; i < n; i++ {
		if sol.IsSet(i) {
			sites = append(sites, i)
		}
		if sol.IsSet(n + i) {
			served++
		}
	}
	if len(sites) != k {
		return nil, fmt.Errorf("%w: %s solution places %d servers, want %d", core.ErrSolverFailure, Name, len(sites), k)
	}
	p.placed, p.served = len(sites), served

	placement := core.NewPlacement(Name, p.points, sites, core.AssignNearest(p.distances, sites, n))
	logger.Info("End placing servers", "objective", sol.Objective, "sites", sites, "served", served)
	return placement, nil
}
