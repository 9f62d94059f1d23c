package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInfeasibleInput is returned before any optimisation starts when N or K cannot be satisfied.
	ErrInfeasibleInput = errors.New("infeasible placement input")
	// ErrSolverFailure is returned when an exact or alternating method produced no usable solution.
	ErrSolverFailure = errors.New("no solution available")
	// ErrDegenerateAssignment tags recoverable warnings raised when a chosen location serves nobody.
	ErrDegenerateAssignment = errors.New("degenerate assignment")
)

// DemandPoint is a candidate location with aggregated user demand.
type DemandPoint struct {
	ID        int     `json:"id" yaml:"id"`
	Address   string  `json:"address,omitempty" yaml:"address,omitempty"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	// Workload is the aggregated service time demanded at this point (minutes).
	Workload float64 `json:"workload" yaml:"workload"`
	// UserCount is the number of distinct users seen at this point.
	UserCount int `json:"userCount" yaml:"userCount"`
	// PotentialScore is the composite desirability derived once by preprocessing.
	PotentialScore float64 `json:"potentialScore" yaml:"potentialScore"`
}

func (p DemandPoint) String() string {
	return fmt.Sprintf("No.%d: %s", p.ID, p.Address)
}

// DistanceMatrix holds pairwise distances (km) aligned to the demand point order.
type DistanceMatrix [][]float64

// Size returns the number of rows.
func (d DistanceMatrix) Size() int { return len(d) }

// Leading returns the n×n leading sub-matrix. Rows share storage with d.
func (d DistanceMatrix) Leading(n int) DistanceMatrix {
	out := make(DistanceMatrix, n)
	for i := 0; i < n; i++ {
		out[i] = d[i][:n]
	}
	return out
}

// PlacedServer is a chosen server location and the demand points assigned to it.
type PlacedServer struct {
	ID        int     `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// SourceIndex is the index of the hosting demand point.
	SourceIndex int `json:"sourceIndex"`
	// SourceID is the ID of the hosting demand point.
	SourceID       int           `json:"sourceId"`
	AssignedPoints []DemandPoint `json:"assignedPoints"`
	TotalWorkload  float64       `json:"totalWorkload"`
}

func (s PlacedServer) String() string {
	return fmt.Sprintf("EdgeServer %d at (%f, %f)", s.ID, s.Latitude, s.Longitude)
}

// Placement is the result of a single Place call.
type Placement struct {
	Algorithm string         `json:"algorithm"`
	Servers   []PlacedServer `json:"servers"`
	// Assignment maps every demand point index to the slot of its server.
	Assignment []int `json:"assignment"`
	// Warnings lists recoverable conditions raised while placing.
	Warnings []string `json:"warnings,omitempty"`
}

// NumPoints returns the number of demand points covered by the placement.
func (p *Placement) NumPoints() int { return len(p.Assignment) }

// Sites returns the demand point index hosting each server slot.
func (p *Placement) Sites() []int {
	sites := make([]int, len(p.Servers))
	for i, s := range p.Servers {
		sites[i] = s.SourceIndex
	}
	return sites
}

// NewPlacement realises servers at the given sites and attaches every demand point to the
// slot named by assignment. points must hold at least len(assignment) entries.
func NewPlacement(algorithm string, points []DemandPoint, sites []int, assignment []int) *Placement {
	servers := make([]PlacedServer, len(sites))
	for slot, site := range sites {
		host := points[site]
		servers[slot] = PlacedServer{
			ID:             slot,
			Latitude:       host.Latitude,
			Longitude:      host.Longitude,
			SourceIndex:    site,
			SourceID:       host.ID,
			AssignedPoints: []DemandPoint{},
		}
	}
	for i, slot := range assignment {
		servers[slot].AssignedPoints = append(servers[slot].AssignedPoints, points[i])
		servers[slot].TotalWorkload += points[i].Workload
	}
	assign := make([]int, len(assignment))
	copy(assign, assignment)
	return &Placement{
		Algorithm:  algorithm,
		Servers:    servers,
		Assignment: assign,
	}
}

// ValidateInput fails fast when a placement of k servers over the first n of numPoints
// demand points cannot exist.
func ValidateInput(n, k, numPoints, matrixSize int) error {
	switch {
	case n <= 0:
		return fmt.Errorf("%w: N must be positive, got %d", ErrInfeasibleInput, n)
	case n > numPoints:
		return fmt.Errorf("%w: N=%d exceeds the %d available demand points", ErrInfeasibleInput, n, numPoints)
	case n > matrixSize:
		return fmt.Errorf("%w: N=%d exceeds the distance matrix size %d", ErrInfeasibleInput, n, matrixSize)
	case k < 1:
		return fmt.Errorf("%w: K must be at least 1, got %d", ErrInfeasibleInput, k)
	case k > n:
		return fmt.Errorf("%w: K=%d exceeds N=%d", ErrInfeasibleInput, k, n)
	}
	return nil
}
