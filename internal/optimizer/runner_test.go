package optimizer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/llm-d/llm-d-edge-placement/internal/engines/baseline"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/enginetest"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/placement"
	"github.com/llm-d/llm-d-edge-placement/internal/metrics"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// scriptedPlacer hosts slot s at point s and attaches every point to slot 0, unless it is told to fail.
type scriptedPlacer struct {
	name   string
	points []core.DemandPoint
	fail   error
	calls  atomic.Int32
	block  bool
}

func (p *scriptedPlacer) Name() string { return p.name }

func (p *scriptedPlacer) Place(ctx context.Context, n, k int) (*core.Placement, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", core.ErrSolverFailure, ctx.Err())
	}
	if p.fail != nil {
		return nil, p.fail
	}
	sites := make([]int, k)
	for s := range sites {
		sites[s] = s
	}
	return core.NewPlacement(p.name, p.points, sites, make([]int, n)), nil
}

var _ = Describe("Runner", func() {
	var (
		ctx    context.Context
		points []core.DemandPoint
		dist   core.DistanceMatrix
	)

	BeforeEach(func() {
		ctx = context.Background()
		points, dist = enginetest.Uniform(6)
	})

	Context("Run", func() {
		It("should compute objectives of the placement", func() {
			runner := NewRunner(points, dist, RunnerConfig{})
			res, err := runner.Run(ctx, baseline.NewTopK(points, dist), 6, 6)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Placer).To(Equal(baseline.TopKName))
			Expect(res.NumPoints).To(Equal(6))
			Expect(res.NumServers).To(Equal(6))
			Expect(res.Repeats).To(Equal(1))
			Expect(res.Objectives.WorkloadImbalance).To(BeNumerically("~", 0, 1e-12))
			Expect(res.Objectives.AverageDelay).To(BeNumerically("~", 0, 1e-12))
			Expect(res.Placement.Servers).To(HaveLen(6))
		})

		It("should reject infeasible input before placing", func() {
			p := &scriptedPlacer{name: "scripted", points: points}
			runner := NewRunner(points, dist, RunnerConfig{})
			_, err := runner.Run(ctx, p, 6, 7)
			Expect(err).To(MatchError(core.ErrInfeasibleInput))
			Expect(p.calls.Load()).To(BeZero())
		})

		It("should apply the per-run timeout", func() {
			p := &scriptedPlacer{name: "blocking", points: points, block: true}
			runner := NewRunner(points, dist, RunnerConfig{Timeout: 20 * time.Millisecond})
			_, err := runner.Run(ctx, p, 6, 2)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(err).To(MatchError(core.ErrSolverFailure))
		})

		It("should record metrics for successes and failures", func() {
			reg := prometheus.NewRegistry()
			recorder, err := metrics.NewRecorder(reg)
			Expect(err).NotTo(HaveOccurred())
			runner := NewRunner(points, dist, RunnerConfig{Recorder: recorder})

			_, err = runner.Run(ctx, &scriptedPlacer{name: "ok", points: points}, 6, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = runner.Run(ctx, &scriptedPlacer{name: "bad", points: points, fail: core.ErrSolverFailure}, 6, 2)
			Expect(err).To(HaveOccurred())

			count, err := testutil.GatherAndCount(reg, "edge_placement_runs_total", "edge_placement_failures_total")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))
		})
	})

	Context("Repeat", func() {
		It("should average over the repeats", func() {
			p := &scriptedPlacer{name: "scripted", points: points}
			runner := NewRunner(points, dist, RunnerConfig{})
			single, err := runner.Run(ctx, p, 6, 2)
			Expect(err).NotTo(HaveOccurred())

			res, err := runner.Repeat(ctx, p, 6, 2, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Repeats).To(Equal(3))
			Expect(p.calls.Load()).To(Equal(int32(4)))
			Expect(res.Objectives.WorkloadImbalance).To(BeNumerically("~", single.Objectives.WorkloadImbalance, 1e-9))
			Expect(res.Objectives.AverageDelay).To(BeNumerically("~", single.Objectives.AverageDelay, 1e-9))
		})

		It("should reject fewer than one repeat", func() {
			runner := NewRunner(points, dist, RunnerConfig{})
			_, err := runner.Repeat(ctx, &scriptedPlacer{name: "scripted", points: points}, 6, 2, 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("Compare", func() {
		It("should order results by K then placer and keep failures", func() {
			good := &scriptedPlacer{name: "good", points: points}
			bad := &scriptedPlacer{name: "bad", points: points, fail: fmt.Errorf("%w: gave up", core.ErrSolverFailure)}
			topk := baseline.NewTopK(points, dist)
			runner := NewRunner(points, dist, RunnerConfig{Parallelism: 3})

			results, err := runner.Compare(ctx, []placement.Placer{good, bad, topk}, 6, []int{1, 2}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(6))

			var order []string
			for _, r := range results {
				order = append(order, fmt.Sprintf("%s/%d", r.Placer, r.NumServers))
			}
			Expect(order).To(Equal([]string{"good/1", "bad/1", baseline.TopKName + "/1", "good/2", "bad/2", baseline.TopKName + "/2"}))

			failed := Failed(results)
			Expect(failed).To(HaveLen(2))
			for _, f := range failed {
				Expect(f.Placer).To(Equal("bad"))
				Expect(f.Err).To(MatchError(core.ErrSolverFailure))
				Expect(f.Placement).To(BeNil())
			}
		})

		It("should stop when the parent context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			runner := NewRunner(points, dist, RunnerConfig{})
			_, err := runner.Compare(cctx, []placement.Placer{&scriptedPlacer{name: "good", points: points}}, 6, []int{1}, 1)
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})
