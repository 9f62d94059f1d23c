// Package geo computes great-circle distances between demand points.
package geo

import (
	"math"

	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// EarthDiameterKm is twice the mean Earth radius.
const EarthDiameterKm = 12742.0

const degToRad = math.Pi / 180

// Haversine returns the great-circle distance in km between two lat/lng pairs given in degrees.
func Haversine(latA, lngA, latB, lngB float64) float64 {
	a := 0.5 - math.Cos((latB-latA)*degToRad)/2 +
		math.Cos(latA*degToRad)*math.Cos(latB*degToRad)*(1-math.Cos((lngB-lngA)*degToRad))/2
	// rounding can push a slightly outside [0, 1]
	a = math.Min(math.Max(a, 0), 1)
	return EarthDiameterKm * math.Asin(math.Sqrt(a))
}

// DistanceMatrix returns the symmetric pairwise distance matrix of points, in input order.
func DistanceMatrix(points []core.DemandPoint) core.DistanceMatrix {
	n := len(points)
	backing := make([]float64, n*n)
	out := make(core.DistanceMatrix, n)
	for i := range out {
		out[i] = backing[i*n : (i+1)*n : (i+1)*n]
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := Haversine(points[i].Latitude, points[i].Longitude, points[j].Latitude, points[j].Longitude)
			out[i][j] = d
			out[j][i] = d
		}
	}
	return out
}
