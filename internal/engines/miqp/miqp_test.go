package miqp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/enginetest"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
	"github.com/llm-d/llm-d-edge-placement/pkg/solver"
)

// countingSolver delegates to branch-and-bound and counts solves.
type countingSolver struct {
	inner solver.Solver
	calls int
}

func (c *countingSolver) Solve(ctx context.Context, p *solver.Program) (*solver.Solution, error) {
	c.calls++
	return c.inner.Solve(ctx, p)
}

// firstSlotSolver assigns every point to slot 0.
type firstSlotSolver struct{}

func (firstSlotSolver) Solve(_ context.Context, p *solver.Program) (*solver.Solution, error) {
	n := len(p.Constraints)
	k := p.NumVars / n
	values := make([]int, p.NumVars)
	for i := 0; i < n; i++ {
		values[i*k] = 1
	}
	return &solver.Solution{Status: solver.StatusOptimal, Values: values, Objective: p.Value(values)}, nil
}

type statusSolver struct{ status solver.Status }

func (s statusSolver) Solve(context.Context, *solver.Program) (*solver.Solution, error) {
	return &solver.Solution{Status: s.status}, nil
}

func testConfig(seed int64) config.MIQPConfig {
	cfg := config.DefaultMIQPConfig()
	cfg.Seed = ptr.To(seed)
	return cfg
}

func TestPlace_BimodalConverges(t *testing.T) {
	points, dist := enginetest.Bimodal()
	for seed := int64(1); seed <= 5; seed++ {
		p, err := NewPlacer(points, dist, testConfig(seed))
		require.NoError(t, err)
		placement, err := p.Place(context.Background(), 10, 2)
		require.NoError(t, err, "seed %d", seed)
		require.NoError(t, enginetest.CheckPlacement(placement, points, 10, 2))
		assert.Equal(t, []int{2, 7}, placement.Sites(), "seed %d", seed)
		obj := core.ComputeObjectives(placement, points, dist)
		assert.Zero(t, obj.WorkloadImbalance)
	}
}

func TestPlace_FixedPointStopsWithoutFurtherSolves(t *testing.T) {
	points, dist := enginetest.Bimodal()
	p, err := NewPlacer(points, dist, testConfig(1))
	require.NoError(t, err)
	counter := &countingSolver{inner: solver.NewBranchAndBound()}
	p.SetSolver(counter)

	p.initialSites = func(int, int) []int { return []int{2, 7} }
	_, err = p.Place(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, counter.calls)
	assert.Equal(t, 1, p.Iterations())

	counter.calls = 0
	p.initialSites = func(int, int) []int { return []int{0, 1} }
	_, err = p.Place(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Greater(t, counter.calls, 1)
	assert.Equal(t, p.Iterations(), counter.calls, "one solve per iteration, none after the fixed point")
}

func TestPlace_IterationCeiling(t *testing.T) {
	points, dist := enginetest.Bimodal()
	cfg := testConfig(1)
	cfg.MaxIterations = 1
	p, err := NewPlacer(points, dist, cfg)
	require.NoError(t, err)
	p.initialSites = func(int, int) []int { return []int{0, 1} }

	placement, err := p.Place(context.Background(), 10, 2)
	assert.ErrorIs(t, err, core.ErrSolverFailure)
	assert.Contains(t, err.Error(), "did not converge")
	assert.Nil(t, placement)
}

func TestPlace_SolverFailure(t *testing.T) {
	points, dist := enginetest.Bimodal()
	for _, status := range []solver.Status{solver.StatusInfeasible, solver.StatusNumericFailure, solver.StatusCanceled} {
		p, err := NewPlacer(points, dist, testConfig(1))
		require.NoError(t, err)
		p.SetSolver(statusSolver{status: status})
		_, err = p.Place(context.Background(), 10, 2)
		assert.ErrorIs(t, err, core.ErrSolverFailure, status.String())
	}
}

func TestPlace_EmptyLocationKeepsIdentity(t *testing.T) {
	points, dist := enginetest.Uniform(3)
	p, err := NewPlacer(points, dist, testConfig(1))
	require.NoError(t, err)
	p.SetSolver(firstSlotSolver{})
	p.initialSites = func(int, int) []int { return []int{0, 2} }

	placement, err := p.Place(context.Background(), 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, placement.Sites())
	require.NoError(t, enginetest.CheckPlacement(placement, points, 3, 2))
	require.NotEmpty(t, placement.Warnings)
	for _, w := range placement.Warnings {
		assert.True(t, strings.HasPrefix(w, core.ErrDegenerateAssignment.Error()), w)
	}
}

func TestRecentre(t *testing.T) {
	points, dist := enginetest.Uniform(5)
	p, err := NewPlacer(points, dist, testConfig(1))
	require.NoError(t, err)

	tests := []struct {
		name           string
		sites          []int
		assignment     []int
		wantCentres    []int
		wantDegenerate []int
	}{
		{
			name:        "Test case 1: medians of two clusters",
			sites:       []int{0, 4},
			assignment:  []int{0, 0, 0, 1, 1},
			wantCentres: []int{1, 3},
		},
		{
			name:           "Test case 2: empty slot keeps its location",
			sites:          []int{0, 4},
			assignment:     []int{0, 0, 0, 0, 0},
			wantCentres:    []int{2, 4},
			wantDegenerate: []int{4},
		},
		{
			name:           "Test case 3: empty slot whose location was claimed",
			sites:          []int{0, 2},
			assignment:     []int{0, 0, 0, 0, 0},
			wantCentres:    []int{2, 0},
			wantDegenerate: []int{2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			centres, degenerate := p.recentre(tt.sites, tt.assignment)
			assert.Equal(t, tt.wantCentres, centres)
			assert.Equal(t, tt.wantDegenerate, degenerate)
		})
	}
}

func TestCoefficients(t *testing.T) {
	points := []core.DemandPoint{{Workload: 1}, {Workload: 3}}
	dist := core.DistanceMatrix{{0, 2}, {2, 0}}

	got := Coefficients(points, dist, 2, 2, 0.5)
	want := [][]float64{{-0.25, 0}, {-0.5, -0.75}}
	for i := range want {
		assert.InDeltaSlice(t, want[i], got[i], 1e-12)
	}

	// a single server has no workload spread, only the distance term is left
	single := Coefficients(points, dist, 2, 1, 0.5)
	assert.InDeltaSlice(t, []float64{0, 0.25}, single[0], 1e-12)

	// coincident points have no distance term
	flat := Coefficients(points, core.DistanceMatrix{{0, 0}, {0, 0}}, 2, 2, 0.5)
	assert.InDeltaSlice(t, []float64{-0.25, -0.25}, flat[0], 1e-12)
}

func TestPlace_EveryPointItsOwnServer(t *testing.T) {
	points, dist := enginetest.Uniform(6)
	p, err := NewPlacer(points, dist, testConfig(3))
	require.NoError(t, err)

	placement, err := p.Place(context.Background(), 6, 6)
	require.NoError(t, err)
	obj := core.ComputeObjectives(placement, points, dist)
	assert.Zero(t, obj.WorkloadImbalance)
	assert.Zero(t, obj.AverageDelay)
	assert.Equal(t, 1, p.Iterations())
}
