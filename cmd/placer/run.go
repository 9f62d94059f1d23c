package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/cache"
	"github.com/llm-d/llm-d-edge-placement/internal/collector"
	internalconfig "github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/placement"
	"github.com/llm-d/llm-d-edge-placement/internal/logging"
	"github.com/llm-d/llm-d-edge-placement/internal/metrics"
	"github.com/llm-d/llm-d-edge-placement/internal/optimizer"
	"github.com/llm-d/llm-d-edge-placement/internal/report"
	"github.com/llm-d/llm-d-edge-placement/internal/utils/geo"
	"github.com/llm-d/llm-d-edge-placement/pkg/config"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

const distanceCacheNamespace = "distances"

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run and compare placers over a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.RunConfig, stdout io.Writer) error {
	logger := ctrl.LoggerFrom(ctx)

	placersCfg, err := loadPlacersConfig(cfg)
	if err != nil {
		return err
	}
	strategies, err := placement.ParseStrategies(cfg.Algorithms)
	if err != nil {
		return err
	}

	points, _, err := collector.Collect(ctx,
		collector.NewCSVStationSource(cfg.Stations),
		collector.NewCSVTransactionSource(cfg.Transactions))
	if err != nil {
		return err
	}
	if cfg.PotentialThreshold > 0 {
		points = collector.FilterByPotential(ctx, points, cfg.PotentialThreshold)
	}

	distances, err := distanceMatrix(ctx, cfg.CacheDir, points)
	if err != nil {
		return err
	}

	placers := make([]placement.Placer, 0, len(strategies))
	for _, s := range strategies {
		p, err := placement.NewPlacer(s, points, distances, placersCfg)
		if err != nil {
			return fmt.Errorf("failed to create %s placer: %w", s, err)
		}
		placers = append(placers, p)
	}

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return err
	}
	runner := optimizer.NewRunner(points, distances, optimizer.RunnerConfig{
		Timeout:     cfg.Timeout,
		Parallelism: cfg.Parallelism,
		Recorder:    recorder,
	})

	logger.Info("Starting comparison",
		"points", len(points),
		"n", cfg.N,
		"k", cfg.K,
		"algorithms", cfg.Algorithms,
		"repeats", cfg.Repeats)
	results, err := runner.Compare(ctx, placers, cfg.N, cfg.K, cfg.Repeats)
	if err != nil {
		return err
	}

	records := report.FromResults(results)
	if err := writeResults(cfg.Output, stdout, records); err != nil {
		return err
	}
	if err := writeMetrics(cfg.MetricsOutput, stdout, registry); err != nil {
		return err
	}

	failed := optimizer.Failed(results)
	for _, f := range failed {
		logger.Info("Run failed", "algorithm", f.Placer, "k", f.NumServers, "error", f.Err.Error())
	}
	if len(records) == 0 && len(failed) > 0 {
		return fmt.Errorf("all %d runs failed, first: %w", len(failed), failed[0].Err)
	}
	return nil
}

func loadPlacersConfig(cfg *config.RunConfig) (internalconfig.PlacersConfig, error) {
	placersCfg := internalconfig.DefaultPlacersConfig()
	if cfg.PlacersFile != "" {
		data, err := os.ReadFile(cfg.PlacersFile)
		if err != nil {
			return internalconfig.PlacersConfig{}, fmt.Errorf("failed to read placers config: %w", err)
		}
		if placersCfg, err = internalconfig.ParsePlacersConfig(data); err != nil {
			return internalconfig.PlacersConfig{}, fmt.Errorf("invalid placers config %s: %w", cfg.PlacersFile, err)
		}
	}
	if cfg.Seed != nil {
		placersCfg = placersCfg.WithSeed(*cfg.Seed)
	}
	return placersCfg, nil
}

// distanceMatrix computes the pairwise distances, reusing a cached matrix for the same coordinates.
func distanceMatrix(ctx context.Context, dir string, points []core.DemandPoint) (core.DistanceMatrix, error) {
	if dir == "" {
		return geo.DistanceMatrix(points), nil
	}
	fc, err := cache.NewFileCache[core.DistanceMatrix](dir)
	if err != nil {
		return nil, err
	}
	h := cache.NewHasher(distanceCacheNamespace).Ints(len(points))
	for _, p := range points {
		h.Floats(p.Latitude, p.Longitude)
	}
	key := h.Sum()
	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Resolving distance matrix", "cacheDir", dir, "key", key.String())
	return cache.GetOrCompute[core.DistanceMatrix](fc, key, func() (core.DistanceMatrix, error) {
		return geo.DistanceMatrix(points), nil
	})
}

func writeResults(path string, stdout io.Writer, records []report.Record) error {
	if path == "" {
		return report.WriteTable(stdout, records)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	if err := report.WriteCSV(f, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeMetrics(path string, stdout io.Writer, gatherer prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	w := stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create metrics file: %w", err)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
