package qpso

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-edge-placement/internal/cache"
	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/enginetest"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

func continuousConfig(seed int64) config.QPSOConfig {
	cfg := config.DefaultQPSOConfig()
	cfg.SwarmSize = 10
	cfg.Iterations = 20
	cfg.Seed = ptr.To(seed)
	return cfg
}

func TestPlacer_ProducesCompletePlacement(t *testing.T) {
	points, dist := enginetest.Random(40, 1)
	p, err := NewPlacer(points, dist, continuousConfig(7))
	require.NoError(t, err)

	for _, tc := range []struct{ n, k int }{{40, 5}, {30, 1}, {12, 12}} {
		placement, err := p.Place(context.Background(), tc.n, tc.k)
		require.NoError(t, err)
		assert.Equal(t, Name, placement.Algorithm)
		require.NoError(t, enginetest.CheckPlacement(placement, points, tc.n, tc.k))
	}
}

func TestPlacer_GlobalBestNeverIncreases(t *testing.T) {
	points, dist := enginetest.Random(30, 3)
	p, err := NewPlacer(points, dist, continuousConfig(1))
	require.NoError(t, err)

	placement, err := p.Place(context.Background(), 30, 4)
	require.NoError(t, err)

	history := p.History()
	require.Len(t, history, 21)
	for i := 1; i < len(history); i++ {
		assert.LessOrEqual(t, history[i], history[i-1], "iteration %d", i)
	}
	final := Objective(points, dist, placement.Sites(), 30, continuousConfig(1))
	assert.InDelta(t, history[len(history)-1], final, 1e-9, "reported placement is the global best")
}

func TestPlacer_EveryPointItsOwnServer(t *testing.T) {
	points, dist := enginetest.Uniform(6)
	p, err := NewPlacer(points, dist, continuousConfig(2))
	require.NoError(t, err)

	placement, err := p.Place(context.Background(), 6, 6)
	require.NoError(t, err)
	obj := core.ComputeObjectives(placement, points, dist)
	assert.Zero(t, obj.WorkloadImbalance)
	assert.Zero(t, obj.AverageDelay)
}

func TestPlacer_ObjectiveMemo(t *testing.T) {
	points, dist := enginetest.Uniform(5)
	p, err := NewPlacer(points, dist, continuousConfig(3))
	require.NoError(t, err)
	memo := cache.NewMemoryCache[float64](0)
	p.SetObjectiveCache(memo)

	// only C(5,2)=10 distinct selections exist, most evaluations are memo hits
	_, err = p.Place(context.Background(), 5, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, memo.Len(), 10)
	assert.Greater(t, memo.Stats().Hits, uint64(0))
}

func TestPlacer_SameSeedSameResult(t *testing.T) {
	points, dist := enginetest.Random(25, 5)
	a, err := NewPlacer(points, dist, continuousConfig(99))
	require.NoError(t, err)
	b, err := NewPlacer(points, dist, continuousConfig(99))
	require.NoError(t, err)

	pa, err := a.Place(context.Background(), 25, 3)
	require.NoError(t, err)
	pb, err := b.Place(context.Background(), 25, 3)
	require.NoError(t, err)
	assert.Equal(t, pa.Sites(), pb.Sites())
}

func TestPlacer_InfeasibleInput(t *testing.T) {
	points, dist := enginetest.Uniform(4)
	p, err := NewPlacer(points, dist, continuousConfig(1))
	require.NoError(t, err)
	_, err = p.Place(context.Background(), 4, 5)
	assert.ErrorIs(t, err, core.ErrInfeasibleInput)
}

func TestObjective(t *testing.T) {
	// points 0..3 on a line 1 km apart, threshold 1.5 km
	points := []core.DemandPoint{
		{ID: 0, Workload: 1, PotentialScore: 0.5},
		{ID: 1, Workload: 2},
		{ID: 2, Workload: 3},
		{ID: 3, Workload: 4, PotentialScore: 1},
	}
	dist := core.DistanceMatrix{
		{0, 1, 2, 3},
		{1, 0, 1, 2},
		{2, 1, 0, 1},
		{3, 2, 1, 0},
	}
	cfg := config.DefaultQPSOConfig()
	cfg.DistanceThreshold = ptr.To(1.5)

	tests := []struct {
		name  string
		sites []int
		want  float64
	}{
		{
			// nearest: 0,0,0(tie by lowest site),... delays 0,1,2*10,3*10 → 51/4
			name:  "Test case 1: single site with penalised far points",
			sites: []int{0},
			want:  0.5*51.0/4 + 0.3*0 - 0.2*0.5,
		},
		{
			// loads: site0 gets 0,1 (3), site3 gets 2,3 (7); delays 0,1,1,0
			name:  "Test case 2: two sites",
			sites: []int{0, 3},
			want:  0.5*2.0/4 + 0.3*4 - 0.2*1.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Objective(points, dist, tt.sites, 4, cfg), 1e-12)
		})
	}
}

func discreteConfig(seed int64) config.DiscreteQPSOConfig {
	cfg := config.DefaultDiscreteQPSOConfig()
	cfg.Seed = ptr.To(seed)
	return cfg
}

func TestDiscretePlacer_ProducesCompletePlacement(t *testing.T) {
	points, dist := enginetest.Random(40, 8)
	p, err := NewDiscretePlacer(points, dist, discreteConfig(4))
	require.NoError(t, err)

	for _, tc := range []struct{ n, k int }{{40, 6}, {20, 1}, {9, 9}} {
		placement, err := p.Place(context.Background(), tc.n, tc.k)
		require.NoError(t, err)
		assert.Equal(t, DiscreteName, placement.Algorithm)
		require.NoError(t, enginetest.CheckPlacement(placement, points, tc.n, tc.k))
	}
}

func TestDiscretePlacer_GlobalBestNeverDecreases(t *testing.T) {
	points, dist := enginetest.Random(30, 9)
	p, err := NewDiscretePlacer(points, dist, discreteConfig(4))
	require.NoError(t, err)

	_, err = p.Place(context.Background(), 30, 5)
	require.NoError(t, err)
	history := p.History()
	require.Len(t, history, config.DefaultDiscreteQPSOIterations+1)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i], history[i-1], "iteration %d", i)
	}
}

func TestDiscretePlacer_EveryPointItsOwnServer(t *testing.T) {
	points, dist := enginetest.Uniform(7)
	p, err := NewDiscretePlacer(points, dist, discreteConfig(1))
	require.NoError(t, err)

	placement, err := p.Place(context.Background(), 7, 7)
	require.NoError(t, err)
	obj := core.ComputeObjectives(placement, points, dist)
	assert.Zero(t, obj.WorkloadImbalance)
	assert.Zero(t, obj.AverageDelay)
}

func TestCompositeScores(t *testing.T) {
	tests := []struct {
		name   string
		points []core.DemandPoint
		want   []float64
	}{
		{
			name: "Test case 1: spread inputs",
			points: []core.DemandPoint{
				{Workload: 0, UserCount: 10},
				{Workload: 10, UserCount: 0},
				{Workload: 5, UserCount: 5},
			},
			want: []float64{0.5, 0.5, 0.5},
		},
		{
			name: "Test case 2: constant inputs normalise to ones",
			points: []core.DemandPoint{
				{Workload: 3, UserCount: 2},
				{Workload: 3, UserCount: 2},
			},
			want: []float64{1, 1},
		},
		{
			name: "Test case 3: constant workload only",
			points: []core.DemandPoint{
				{Workload: 3, UserCount: 0},
				{Workload: 3, UserCount: 4},
			},
			want: []float64{0.5, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDeltaSlice(t, tt.want, CompositeScores(tt.points), 1e-12)
		})
	}
}

func TestDiscreteMutateKeepsK(t *testing.T) {
	points, dist := enginetest.Uniform(10)
	p, err := NewDiscretePlacer(points, dist, discreteConfig(12))
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		out := p.mutate([]int{1, 4, 7}, 10)
		assert.Len(t, out, 3)
		assert.IsIncreasing(t, out)
	}
	full := []int{0, 1, 2}
	assert.Equal(t, full, p.mutate(full, 3))
}
