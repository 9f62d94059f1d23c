package solver

import (
	"context"
	"errors"
	"fmt"
)

var (
	errNoVariables   = errors.New("program has no variables")
	errObjectiveSize = errors.New("objective length does not match the number of variables")
)

// Sense is the relation between the left- and right-hand side of a constraint.
type Sense int

// enumeration of Sense
const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "=="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Term is coef × x[Var].
type Term struct {
	Var  int
	Coef float64
}

// Constraint is Σ terms (sense) RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Program is a minimisation over binary variables x[0..NumVars).
type Program struct {
	Name        string
	NumVars     int
	Objective   []float64
	Constraints []Constraint
	// BoundsImplied skips the explicit x <= 1 rows; set it only when the constraints
	// already keep every variable at or below one.
	BoundsImplied bool
}

// NewProgram creates an empty program over numVars binary variables.
func NewProgram(name string, numVars int) *Program {
	return &Program{
		Name:      name,
		NumVars:   numVars,
		Objective: make([]float64, numVars),
	}
}

// SetCost sets the objective coefficient of variable v.
func (p *Program) SetCost(v int, cost float64) {
	p.Objective[v] = cost
}

// AddConstraint appends Σ terms (sense) rhs.
func (p *Program) AddConstraint(name string, sense Sense, rhs float64, terms ...Term) {
	p.Constraints = append(p.Constraints, Constraint{
		Name:  name,
		Terms: terms,
		Sense: sense,
		RHS:   rhs,
	})
}

// Validate checks that every term refers to an existing variable.
func (p *Program) Validate() error {
	if p.NumVars <= 0 {
		return errNoVariables
	}
	if len(p.Objective) != p.NumVars {
		return errObjectiveSize
	}
	for _, c := range p.Constraints {
		if c.Sense < LessEqual || c.Sense > Equal {
			return fmt.Errorf("constraint %q has unknown sense %v", c.Name, c.Sense)
		}
		for _, t := range c.Terms {
			if t.Var < 0 || t.Var >= p.NumVars {
				return fmt.Errorf("constraint %q references variable %d outside [0,%d)", c.Name, t.Var, p.NumVars)
			}
		}
	}
	return nil
}

// Value evaluates the objective at the given 0/1 assignment.
func (p *Program) Value(values []int) float64 {
	total := 0.0
	for v, c := range p.Objective {
		total += c * float64(values[v])
	}
	return total
}

// Status is the outcome of a solve.
type Status int

// enumeration of Status
const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
	StatusNodeLimit
	StatusCanceled
	StatusNumericFailure
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "Optimal"
	case StatusInfeasible:
		return "Infeasible"
	case StatusNodeLimit:
		return "NodeLimit"
	case StatusCanceled:
		return "Canceled"
	case StatusNumericFailure:
		return "NumericFailure"
	default:
		return "Unknown"
	}
}

// Solution is the result of a solve. Values is only meaningful when Status is
// StatusOptimal, or when an incumbent was found before a limit was hit.
type Solution struct {
	Status    Status
	Objective float64
	Values    []int
	// Nodes is the number of branch-and-bound nodes explored.
	Nodes int
	// Reason carries the underlying failure for StatusNumericFailure.
	Reason string
}

// IsSet reports whether variable v is one in the solution.
func (s *Solution) IsSet(v int) bool {
	return s.Values != nil && s.Values[v] == 1
}

// Solver solves 0/1 programs.
type Solver interface {
	Solve(ctx context.Context, p *Program) (*Solution, error)
}
