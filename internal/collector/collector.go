/*
Copyright 2025 The llm-d Authors

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

package collector

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"k8s.io/apimachinery/pkg/util/sets"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/logging"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// Collect reads both sources and builds demand points with workload, user count and potential score.
func Collect(ctx context.Context, stations StationSource, transactions TransactionSource) ([]core.DemandPoint, Summary, error) {
	logger := ctrl.LoggerFrom(ctx)

	st, err := stations.Stations(ctx)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("failed to read stations from %s: %w", stations.Name(), err)
	}
	txs, err := transactions.Transactions(ctx)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("failed to read transactions from %s: %w", transactions.Name(), err)
	}

	points, summary := Aggregate(st, txs)
	ComputePotentialScores(points)
	logger.Info("Collected demand points",
		"stations", summary.Stations,
		"transactions", summary.Transactions,
		"unmatched", summary.Unmatched,
		"idle", summary.Idle)
	return points, summary, nil
}

// Aggregate joins transactions to stations on address. The returned points keep the station order.
// When two stations share an address, the first one receives the transactions.
func Aggregate(stations []Station, transactions []Transaction) ([]core.DemandPoint, Summary) {
	byAddress := make(map[string]int, len(stations))
	for i := len(stations) - 1; i >= 0; i-- {
		byAddress[stations[i].Address] = i
	}

	workload := make([]float64, len(stations))
	users := make([]sets.Set[string], len(stations))
	summary := Summary{Stations: len(stations), Transactions: len(transactions)}
	for _, tx := range transactions {
		i, ok := byAddress[tx.Address]
		if !ok {
			summary.Unmatched++
			continue
		}
		workload[i] += tx.ServiceMinutes()
		if users[i] == nil {
			users[i] = sets.New[string]()
		}
		users[i].Insert(tx.UserID)
	}

	points := make([]core.DemandPoint, len(stations))
	for i, s := range stations {
		points[i] = core.DemandPoint{
			ID:        s.ID,
			Address:   s.Address,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Workload:  workload[i],
			UserCount: users[i].Len(),
		}
		if users[i] == nil {
			summary.Idle++
		}
	}
	return points, summary
}

// ComputePotentialScores fills PotentialScore in place.
func ComputePotentialScores(points []core.DemandPoint) {
	users := make([]float64, len(points))
	loads := make([]float64, len(points))
	for i, p := range points {
		users[i] = float64(p.UserCount)
		loads[i] = p.Workload
	}
	users = normalizeOrKeep(users)
	loads = normalizeOrKeep(loads)
	for i := range points {
		points[i].PotentialScore = 0.5*users[i] + 0.5*loads[i]
	}
}

// FilterByPotential returns the points scoring at least threshold, in their original order.
func FilterByPotential(ctx context.Context, points []core.DemandPoint, threshold float64) []core.DemandPoint {
	kept := make([]core.DemandPoint, 0, len(points))
	for _, p := range points {
		if p.PotentialScore >= threshold {
			kept = append(kept, p)
		}
	}
	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Filtered demand points by potential",
		"threshold", threshold,
		"removed", len(points)-len(kept))
	return kept
}

// normalizeOrKeep min-max normalises values, returning them unchanged when they are constant.
func normalizeOrKeep(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	if floats.Max(values) <= floats.Min(values) {
		return values
	}
	return core.MinMaxNormalize(values)
}
