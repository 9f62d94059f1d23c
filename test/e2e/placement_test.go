/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package e2e

import (
	"bytes"
	"context"
	"encoding/csv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-edge-placement/internal/collector"
	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/placement"
	"github.com/llm-d/llm-d-edge-placement/internal/metrics"
	"github.com/llm-d/llm-d-edge-placement/internal/optimizer"
	"github.com/llm-d/llm-d-edge-placement/internal/report"
	"github.com/llm-d/llm-d-edge-placement/internal/utils/geo"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

var _ = Describe("Placement comparison", Ordered, func() {
	var (
		ctx       context.Context
		points    []core.DemandPoint
		distances core.DistanceMatrix
		summary   collector.Summary
		results   []optimizer.Result
		registry  *prometheus.Registry
	)
	ks := []int{1, 4}

	BeforeAll(func() {
		ctx = context.Background()

		By("collecting demand points from the CSV sources")
		var err error
		points, summary, err = collector.Collect(ctx,
			collector.NewCSVStationSource(stationsPath),
			collector.NewCSVTransactionSource(transactionsPath))
		Expect(err).NotTo(HaveOccurred())
		Expect(points).To(HaveLen(numStations))
		distances = geo.DistanceMatrix(points)
	})

	It("should aggregate the transactions onto the stations", func() {
		Expect(summary.Unmatched).To(BeZero())
		Expect(summary.Idle).To(Equal(numStations / 10))
		for i, p := range points {
			if i%10 == 9 {
				Expect(p.Workload).To(BeZero())
				Expect(p.UserCount).To(BeZero())
			} else {
				Expect(p.Workload).To(BeNumerically(">", 0))
				Expect(p.UserCount).To(BeNumerically(">=", 1))
			}
			Expect(p.PotentialScore).To(BeNumerically(">=", 0))
			Expect(p.PotentialScore).To(BeNumerically("<=", 1))
		}
	})

	It("should run every placer for every K", func() {
		cfg := config.PlacersConfig{
			Seed: ptr.To(datasetSeed),
			GA:   config.GAConfig{PopulationSize: 20, MaxGenerations: 30},
			QPSO: config.QPSOConfig{SwarmSize: 15, Iterations: 20},
			MIP:  config.MIPConfig{CoverageRatio: ptr.To(0.5)},
		}.WithDefaults()
		Expect(cfg.Validate()).To(Succeed())

		var placers []placement.Placer
		for _, s := range placement.AllStrategies() {
			p, err := placement.NewPlacer(s, points, distances, cfg)
			Expect(err).NotTo(HaveOccurred(), s.String())
			placers = append(placers, p)
		}

		registry = prometheus.NewRegistry()
		recorder, err := metrics.NewRecorder(registry)
		Expect(err).NotTo(HaveOccurred())
		runner := optimizer.NewRunner(points, distances, optimizer.RunnerConfig{
			Timeout:     2 * time.Minute,
			Parallelism: 4,
			Recorder:    recorder,
		})

		results, err = runner.Compare(ctx, placers, numStations, ks, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(len(placers) * len(ks)))
		Expect(optimizer.Failed(results)).To(BeEmpty())
	})

	It("should produce complete placements", func() {
		for _, r := range results {
			p := r.Placement
			Expect(p).NotTo(BeNil(), r.Placer)
			Expect(p.Servers).To(HaveLen(r.NumServers), r.Placer)
			Expect(p.Assignment).To(HaveLen(numStations), r.Placer)
			Expect(sets.New(p.Sites()...).Len()).To(Equal(r.NumServers), "%s sites must be distinct", r.Placer)

			assigned := 0
			total := 0.0
			for _, s := range p.Servers {
				assigned += len(s.AssignedPoints)
				total += s.TotalWorkload
			}
			Expect(assigned).To(Equal(numStations), r.Placer)
			Expect(total).To(BeNumerically("~", core.TotalWorkload(points, numStations), 1e-6), r.Placer)
			Expect(r.Objectives.WorkloadImbalance).To(BeNumerically(">=", 0), r.Placer)
			Expect(r.Objectives.AverageDelay).To(BeNumerically(">=", 0), r.Placer)
		}
	})

	It("should report zero imbalance for a single server", func() {
		for _, r := range results {
			if r.NumServers == 1 {
				Expect(r.Objectives.WorkloadImbalance).To(BeZero(), r.Placer)
			}
		}
	})

	It("should record every run in the metrics", func() {
		count, err := testutil.GatherAndCount(registry, "edge_placement_runs_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(len(placement.AllStrategies())))
	})

	It("should render the results as CSV", func() {
		var buf bytes.Buffer
		Expect(report.WriteCSV(&buf, report.FromResults(results))).To(Succeed())
		rows, err := csv.NewReader(&buf).ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1 + len(results)))
		Expect(rows[0]).To(Equal(report.Header))
	})
})
