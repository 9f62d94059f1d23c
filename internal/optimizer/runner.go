package optimizer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/engines/placement"
	"github.com/llm-d/llm-d-edge-placement/internal/logging"
	"github.com/llm-d/llm-d-edge-placement/internal/metrics"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// RunnerConfig holds the optional settings of a Runner.
type RunnerConfig struct {
	// Timeout bounds every single Place call; zero means no limit.
	Timeout time.Duration
	// Parallelism bounds the placers running at once in Compare; zero or less runs one at a time.
	Parallelism int
	// Recorder receives run metrics when set.
	Recorder *metrics.Recorder
}

// Result is the flat record of a run (or of repeated runs averaged together).
type Result struct {
	NumPoints  int
	NumServers int
	Placer     string
	Objectives core.Objectives
	// Duration is the wall-clock time of one run; averaged over repeats.
	Duration time.Duration
	Repeats  int
	// Placement is the placement of the last run. Nil when Err is set.
	Placement *core.Placement
	// Err is the failure of this run in Compare.
	Err error
}

// Runner evaluates placers over one dataset. It is safe for concurrent use; each placer
// must be used by one goroutine at a time.
type Runner struct {
	points    []core.DemandPoint
	distances core.DistanceMatrix
	config    RunnerConfig
}

// NewRunner creates a runner over the given demand points and distance matrix.
func NewRunner(points []core.DemandPoint, distances core.DistanceMatrix, config RunnerConfig) *Runner {
	return &Runner{points: points, distances: distances, config: config}
}

// Run places k servers over the first n demand points with p.
func (r *Runner) Run(ctx context.Context, p placement.Placer, n, k int) (*Result, error) {
	logger := ctrl.LoggerFrom(ctx)
	name := p.Name()

	if err := core.ValidateInput(n, k, len(r.points), r.distances.Size()); err != nil {
		r.observeFailure(name, 0, err)
		return nil, fmt.Errorf("%s N=%d K=%d: %w", name, n, k, err)
	}

	runCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	placed, err := p.Place(runCtx, n, k)
	elapsed := time.Since(start)
	if err != nil {
		r.observeFailure(name, elapsed, err)
		return nil, fmt.Errorf("%s N=%d K=%d: %w", name, n, k, err)
	}

	objectives := core.ComputeObjectives(placed, r.points, r.distances)
	if r.config.Recorder != nil {
		r.config.Recorder.ObserveSuccess(name, k, elapsed, objectives)
	}
	logger.V(logging.DEBUG).Info("Run finished",
		"algorithm", name,
		"n", n,
		"k", k,
		"workloadImbalance", objectives.WorkloadImbalance,
		"avgDelay", objectives.AverageDelay,
		"duration", elapsed)

	return &Result{
		NumPoints:  n,
		NumServers: k,
		Placer:     name,
		Objectives: objectives,
		Duration:   elapsed,
		Repeats:    1,
		Placement:  placed,
	}, nil
}

// Repeat runs p repeats times and averages the objectives and durations. The first failure
// is returned.
func (r *Runner) Repeat(ctx context.Context, p placement.Placer, n, k, repeats int) (*Result, error) {
	if repeats < 1 {
		return nil, fmt.Errorf("repeats must be at least 1, got %d", repeats)
	}
	var (
		sum      core.Objectives
		duration time.Duration
		last     *Result
	)
	for i := 0; i < repeats; i++ {
		res, err := r.Run(ctx, p, n, k)
		if err != nil {
			return nil, err
		}
		sum.WorkloadImbalance += res.Objectives.WorkloadImbalance
		sum.AverageDelay += res.Objectives.AverageDelay
		sum.AverageWorkload += res.Objectives.AverageWorkload
		sum.MaxWorkload += res.Objectives.MaxWorkload
		sum.MinWorkload += res.Objectives.MinWorkload
		duration += res.Duration
		last = res
	}
	if repeats == 1 {
		return last, nil
	}
	f := float64(repeats)
	last.Objectives = core.Objectives{
		WorkloadImbalance: sum.WorkloadImbalance / f,
		AverageDelay:      sum.AverageDelay / f,
		AverageWorkload:   sum.AverageWorkload / f,
		MaxWorkload:       sum.MaxWorkload / f,
		MinWorkload:       sum.MinWorkload / f,
	}
	last.Duration = duration / time.Duration(repeats)
	last.Repeats = repeats
	return last, nil
}

// Compare repeats every placer for every K. Results are ordered by K, then by the order of
// placers. Each placer goes through its Ks sequentially in its own goroutine.
func (r *Runner) Compare(ctx context.Context, placers []placement.Placer, n int, ks []int, repeats int) ([]Result, error) {
	logger := ctrl.LoggerFrom(ctx)
	results := make([]Result, len(ks)*len(placers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.config.Parallelism, 1))
	for pi, p := range placers {
		g.Go(func() error {
			for ki, k := range ks {
				if err := gctx.Err(); err != nil {
					return err
				}
				slot := &results[ki*len(placers)+pi]
				res, err := r.Repeat(gctx, p, n, k, repeats)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					logger.Info("Placer failed", "algorithm", p.Name(), "n", n, "k", k, "error", err.Error())
					*slot = Result{NumPoints: n, NumServers: k, Placer: p.Name(), Repeats: repeats, Err: err}
					continue
				}
				*slot = *res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("comparison interrupted: %w", err)
	}
	return results, nil
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

func (r *Runner) observeFailure(algorithm string, elapsed time.Duration, err error) {
	if r.config.Recorder != nil {
		r.config.Recorder.ObserveFailure(algorithm, elapsed, err)
	}
}
