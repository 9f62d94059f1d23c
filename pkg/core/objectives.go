package core

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Objectives summarises a completed placement.
type Objectives struct {
	// WorkloadImbalance is max - min of the per-server workload.
	WorkloadImbalance float64 `json:"workload_imbalance"`
	// AverageDelay is the workload-weighted distance to the assigned server divided by N.
	AverageDelay    float64 `json:"avg_delay"`
	AverageWorkload float64 `json:"avg_workload"`
	MaxWorkload     float64 `json:"max_workload"`
	MinWorkload     float64 `json:"min_workload"`
}

// ComputeObjectives evaluates the placement against the demand points and distances it was built from.
func ComputeObjectives(p *Placement, points []DemandPoint, distances DistanceMatrix) Objectives {
	loads := ServerWorkloads(p)
	if len(loads) == 0 {
		return Objectives{}
	}
	return Objectives{
		WorkloadImbalance: WorkloadImbalance(loads),
		AverageDelay:      AverageDelay(p, points, distances),
		AverageWorkload:   floats.Sum(loads) / float64(len(loads)),
		MaxWorkload:       floats.Max(loads),
		MinWorkload:       floats.Min(loads),
	}
}

// ServerWorkloads returns the total workload of every server in slot order.
func ServerWorkloads(p *Placement) []float64 {
	loads := make([]float64, len(p.Servers))
	for i, s := range p.Servers {
		loads[i] = s.TotalWorkload
	}
	return loads
}

// WorkloadImbalance returns max - min of loads, or 0 for no loads.
func WorkloadImbalance(loads []float64) float64 {
	if len(loads) == 0 {
		return 0
	}
	return floats.Max(loads) - floats.Min(loads)
}

// AverageDelay returns Σ distance(point, server) × workload / N over the assigned demand points.
func AverageDelay(p *Placement, points []DemandPoint, distances DistanceMatrix) float64 {
	n := p.NumPoints()
	if n == 0 {
		return 0
	}
	total := 0.0
	for i, slot := range p.Assignment {
		site := p.Servers[slot].SourceIndex
		total += distances[i][site] * points[i].Workload
	}
	return total / float64(n)
}

// MinMaxNormalize maps values onto [0,1]. A constant (or empty) input yields all ones.
func MinMaxNormalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := floats.Min(values), floats.Max(values)
	delta := hi - lo
	if delta == 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / delta
	}
	return out
}
