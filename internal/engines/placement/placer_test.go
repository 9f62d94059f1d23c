package placement

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/enginetest"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

func fastConfig() config.PlacersConfig {
	cfg := config.PlacersConfig{
		Seed: ptr.To(int64(17)),
		GA:   config.GAConfig{MaxGenerations: 20},
		QPSO: config.QPSOConfig{SwarmSize: 10, Iterations: 10},
	}
	return cfg.WithDefaults()
}

var _ = Describe("NewPlacer", func() {
	It("should create every strategy", func() {
		points, dist := enginetest.Uniform(4)
		for _, s := range AllStrategies() {
			p, err := NewPlacer(s, points, dist, fastConfig())
			Expect(err).NotTo(HaveOccurred(), s.String())
			Expect(p.Name()).NotTo(BeEmpty())
		}
	})

	It("should reject an unknown strategy", func() {
		points, dist := enginetest.Uniform(4)
		_, err := NewPlacer(PlacerStrategy(99), points, dist, fastConfig())
		Expect(err).To(HaveOccurred())
	})

	It("should surface invalid engine configuration", func() {
		points, dist := enginetest.Uniform(4)
		cfg := fastConfig()
		cfg.GA.PopulationSize = 3
		_, err := NewPlacer(GAStrategy, points, dist, cfg)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseStrategy", func() {
	It("should round-trip every strategy name", func() {
		for _, s := range AllStrategies() {
			parsed, err := ParseStrategy(s.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(s))
		}
	})

	It("should ignore case and surrounding space", func() {
		s, err := ParseStrategy("  QPSO-Discrete ")
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(DiscreteQPSOStrategy))
	})

	It("should reject unknown and duplicate names", func() {
		_, err := ParseStrategy("annealing")
		Expect(err).To(HaveOccurred())
		_, err = ParseStrategies([]string{"mip", "MIP"})
		Expect(err).To(HaveOccurred())
		list, err := ParseStrategies([]string{"mip", "ga"})
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(Equal([]PlacerStrategy{MIPStrategy, GAStrategy}))
	})
})

var _ = Describe("Placers", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	DescribeTable("place every point on its own server when K equals N",
		func(strategy PlacerStrategy) {
			points, dist := enginetest.Uniform(6)
			p, err := NewPlacer(strategy, points, dist, fastConfig())
			Expect(err).NotTo(HaveOccurred())

			placement, err := p.Place(ctx, 6, 6)
			Expect(err).NotTo(HaveOccurred())
			obj := core.ComputeObjectives(placement, points, dist)
			Expect(obj.WorkloadImbalance).To(BeZero())
			Expect(obj.AverageDelay).To(BeZero())
		},
		Entry("GA", GAStrategy),
		Entry("QPSO", QPSOStrategy),
		Entry("QPSO discrete", DiscreteQPSOStrategy),
		Entry("MIP", MIPStrategy),
		Entry("MIQP", MIQPStrategy),
		Entry("Random", RandomStrategy),
		Entry("TopK", TopKStrategy),
		Entry("KMeans", KMeansStrategy),
	)

	DescribeTable("assign every demand point exactly once and conserve workload",
		func(strategy PlacerStrategy) {
			points, dist := enginetest.Clusters(3, 5, 21)
			p, err := NewPlacer(strategy, points, dist, fastConfig())
			Expect(err).NotTo(HaveOccurred())

			placement, err := p.Place(ctx, len(points), 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(enginetest.CheckPlacement(placement, points, len(points), 3)).To(Succeed())
		},
		Entry("GA", GAStrategy),
		Entry("QPSO", QPSOStrategy),
		Entry("QPSO discrete", DiscreteQPSOStrategy),
		Entry("MIP", MIPStrategy),
		Entry("MIQP", MIQPStrategy),
		Entry("Random", RandomStrategy),
		Entry("TopK", TopKStrategy),
		Entry("KMeans", KMeansStrategy),
	)

	DescribeTable("fail fast on infeasible input",
		func(strategy PlacerStrategy) {
			points, dist := enginetest.Uniform(3)
			p, err := NewPlacer(strategy, points, dist, fastConfig())
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Place(ctx, 3, 4)
			Expect(err).To(MatchError(core.ErrInfeasibleInput))
			_, err = p.Place(ctx, 0, 1)
			Expect(err).To(MatchError(core.ErrInfeasibleInput))
		},
		Entry("GA", GAStrategy),
		Entry("QPSO", QPSOStrategy),
		Entry("QPSO discrete", DiscreteQPSOStrategy),
		Entry("MIP", MIPStrategy),
		Entry("MIQP", MIQPStrategy),
		Entry("Random", RandomStrategy),
		Entry("TopK", TopKStrategy),
		Entry("KMeans", KMeansStrategy),
	)

	It("should report a monotonic history for the iterative minimisers", func() {
		points, dist := enginetest.Random(20, 5)
		for _, s := range []PlacerStrategy{GAStrategy, QPSOStrategy} {
			p, err := NewPlacer(s, points, dist, fastConfig())
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Place(ctx, 20, 3)
			Expect(err).NotTo(HaveOccurred())

			h, ok := p.(Historian)
			Expect(ok).To(BeTrue())
			history := h.History()
			Expect(history).NotTo(BeEmpty())
			for i := 1; i < len(history); i++ {
				Expect(history[i]).To(BeNumerically("<=", history[i-1]))
			}
			Expect(math.IsInf(history[len(history)-1], 0)).To(BeFalse())
		}
	})
})
