package placement

import (
	"context"
	"fmt"
	"strings"

	"github.com/llm-d/llm-d-edge-placement/internal/config"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/baseline"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/ga"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/mip"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/miqp"
	"github.com/llm-d/llm-d-edge-placement/internal/engines/qpso"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// Placer chooses K server locations among the first N demand points and assigns every one
// of those points to exactly one chosen location
type Placer interface {
	// Name identifies the algorithm in placements and reports
	Name() string
	// Place runs the algorithm; a new placement replaces any earlier one
	Place(ctx context.Context, n, k int) (*core.Placement, error)
}

// Historian is implemented by iterative placers exposing their best objective per step
type Historian interface {
	History() []float64
}

// PlacerStrategy is an enumeration of the placement algorithms
type PlacerStrategy int

// enumeration of PlacerStrategy
const (
	GAStrategy PlacerStrategy = iota
	QPSOStrategy
	DiscreteQPSOStrategy
	MIPStrategy
	MIQPStrategy
	RandomStrategy
	TopKStrategy
	KMeansStrategy
)

var strategyNames = map[PlacerStrategy]string{
	GAStrategy:           "ga",
	QPSOStrategy:         "qpso",
	DiscreteQPSOStrategy: "qpso-discrete",
	MIPStrategy:          "mip",
	MIQPStrategy:         "miqp",
	RandomStrategy:       "random",
	TopKStrategy:         "topk",
	KMeansStrategy:       "kmeans",
}

// AllStrategies lists every strategy in declaration order
func AllStrategies() []PlacerStrategy {
	return []PlacerStrategy{
		GAStrategy, QPSOStrategy, DiscreteQPSOStrategy, MIPStrategy,
		MIQPStrategy, RandomStrategy, TopKStrategy, KMeansStrategy,
	}
}

func (s PlacerStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PlacerStrategy(%d)", int(s))
}

// ParseStrategy maps a name such as "qpso-discrete" (case-insensitive) to its strategy
func ParseStrategy(name string) (PlacerStrategy, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == want {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unsupported placer strategy: %q", name)
}

// ParseStrategies parses a list of names, rejecting duplicates
func ParseStrategies(names []string) ([]PlacerStrategy, error) {
	seen := map[PlacerStrategy]bool{}
	out := make([]PlacerStrategy, 0, len(names))
	for _, name := range names {
		s, err := ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			return nil, fmt.Errorf("placer strategy %q listed twice", name)
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// NewPlacer is a factory that creates a new Placer based on the provided strategy.
// points and distances are shared read-only between placers.
func NewPlacer(strategy PlacerStrategy, points []core.DemandPoint, distances core.DistanceMatrix, cfg config.PlacersConfig) (Placer, error) {
	switch strategy {
	case GAStrategy:
		return ga.NewPlacer(points, distances, cfg.GA)
	case QPSOStrategy:
		return qpso.NewPlacer(points, distances, cfg.QPSO)
	case DiscreteQPSOStrategy:
		return qpso.NewDiscretePlacer(points, distances, cfg.DiscreteQPSO)
	case MIPStrategy:
		return mip.NewPlacer(points, distances, cfg.MIP)
	case MIQPStrategy:
		return miqp.NewPlacer(points, distances, cfg.MIQP)
	case RandomStrategy:
		return baseline.NewRandom(points, distances, cfg.Random), nil
	case TopKStrategy:
		return baseline.NewTopK(points, distances), nil
	case KMeansStrategy:
		return baseline.NewKMeans(points, distances, cfg.KMeans)
	default:
		return nil, fmt.Errorf("unsupported placer strategy: %v", strategy)
	}
}
