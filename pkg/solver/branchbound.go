package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-edge-placement/internal/logging"
)

const (
	// DefaultMaxNodes bounds the number of branch-and-bound nodes explored per solve.
	DefaultMaxNodes = 20000
	// DefaultTolerance is used for integrality, feasibility and pruning checks.
	DefaultTolerance = 1e-7

	simplexTolerance = 1e-10
	unfixed          = int8(-1)

	// penaltyFactor scales the cost of artificial columns relative to the objective.
	penaltyFactor  = 1e3
	penaltyRetries = 2
)

// BranchAndBound solves 0/1 programs by depth-first branch-and-bound over LP relaxations.
type BranchAndBound struct {
	MaxNodes  int
	Tolerance float64
}

// NewBranchAndBound creates a solver with default limits.
func NewBranchAndBound() *BranchAndBound {
	return &BranchAndBound{
		MaxNodes:  DefaultMaxNodes,
		Tolerance: DefaultTolerance,
	}
}

// relaxation is the LP optimum at one node.
type relaxation struct {
	feasible  bool
	objective float64
	x         []float64
}

// Solve runs branch-and-bound until the tree is exhausted, the node limit is reached or
// ctx is done.
func (s *BranchAndBound) Solve(ctx context.Context, p *Program) (*Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program %q: %w", p.Name, err)
	}
	logger := ctrl.LoggerFrom(ctx)
	maxNodes := s.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	root := make([]int8, p.NumVars)
	for i := range root {
		root[i] = unfixed
	}
	stack := [][]int8{root}

	sol := &Solution{Status: StatusUnknown, Objective: math.Inf(1)}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			sol.Status = StatusCanceled
			sol.Reason = err.Error()
			return sol, nil
		}
		if sol.Nodes >= maxNodes {
			sol.Status = StatusNodeLimit
			return sol, nil
		}
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sol.Nodes++

		r, err := relax(p, node, tol)
		if err != nil {
			sol.Status = StatusNumericFailure
			sol.Reason = err.Error()
			return sol, nil
		}
		if !r.feasible {
			continue
		}
		if sol.Values != nil && r.objective >= sol.Objective-tol*math.Max(1, math.Abs(sol.Objective)) {
			continue
		}

		branch := mostFractional(r.x, node, tol)
		if branch < 0 {
			values := make([]int, p.NumVars)
			for v, xv := range r.x {
				if xv > 0.5 {
					values[v] = 1
				}
			}
			sol.Values = values
			sol.Objective = p.Value(values)
			logger.V(logging.TRACE).Info("New incumbent", "program", p.Name, "objective", sol.Objective, "node", sol.Nodes)
			continue
		}

		down := append([]int8(nil), node...)
		down[branch] = 0
		up := append([]int8(nil), node...)
		up[branch] = 1
		// the child nearest to the relaxed value is explored first
		if r.x[branch] >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	if sol.Values == nil {
		sol.Status = StatusInfeasible
		return sol, nil
	}
	sol.Status = StatusOptimal
	logger.V(logging.DEBUG).Info("Program solved", "program", p.Name, "objective", sol.Objective, "nodes", sol.Nodes)
	return sol, nil
}

// mostFractional returns the unfixed variable whose relaxed value is closest to 0.5,
// or -1 when the relaxation is integral.
func mostFractional(x []float64, fix []int8, tol float64) int {
	best, bestDist := -1, math.Inf(1)
	for v, xv := range x {
		if fix[v] != unfixed {
			continue
		}
		frac := xv - math.Floor(xv)
		if frac <= tol || frac >= 1-tol {
			continue
		}
		if d := math.Abs(frac - 0.5); d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

// row is Σ coefs·x + slack·s = rhs over the free variables of one node. slack is +1 for
// a ≤ row, −1 for a ≥ row and 0 for an equality.
type row struct {
	coefs []float64
	slack float64
	rhs   float64
}

// relax solves the LP relaxation of p with the variables in fix pinned to 0 or 1.
func relax(p *Program, fix []int8, tol float64) (r relaxation, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("simplex panicked: %v", rec)
		}
	}()

	x := make([]float64, p.NumVars)
	constant := 0.0
	col := make([]int, p.NumVars)
	var freeVars []int
	for v := 0; v < p.NumVars; v++ {
		col[v] = -1
		switch fix[v] {
		case 0:
		case 1:
			x[v] = 1
			constant += p.Objective[v]
		default:
			col[v] = len(freeVars)
			freeVars = append(freeVars, v)
		}
	}

	rows := make([]row, 0, len(p.Constraints))
	used := make([]bool, len(freeVars))
	for _, c := range p.Constraints {
		coefs := make([]float64, len(freeVars))
		rhs := c.RHS
		for _, t := range c.Terms {
			if j := col[t.Var]; j >= 0 {
				coefs[j] += t.Coef
			} else {
				rhs -= t.Coef * x[t.Var]
			}
		}
		nonzero := false
		for j, a := range coefs {
			if a != 0 {
				nonzero = true
				used[j] = true
			}
		}
		if !nonzero {
			if !satisfied(c.Sense, rhs, tol) {
				return relaxation{feasible: false}, nil
			}
			continue
		}
		var slack float64
		switch c.Sense {
		case LessEqual:
			slack = 1
		case GreaterEqual:
			slack = -1
		}
		rows = append(rows, row{coefs: coefs, slack: slack, rhs: rhs})
	}

	// Variables untouched by every remaining row are set from the sign of their cost.
	compact := make([]int, len(freeVars))
	var lpVars, lpFree []int
	for j, v := range freeVars {
		if !used[j] {
			compact[j] = -1
			if p.Objective[v] < 0 {
				x[v] = 1
				constant += p.Objective[v]
			}
			continue
		}
		compact[j] = len(lpVars)
		lpVars = append(lpVars, v)
		lpFree = append(lpFree, j)
	}
	if len(lpVars) == 0 {
		return relaxation{feasible: true, objective: constant, x: x}, nil
	}

	if !p.BoundsImplied {
		bounding := boundingRows(rows)
		for _, j := range lpFree {
			if impliedUpper(bounding, j, tol) {
				continue
			}
			coefs := make([]float64, len(freeVars))
			coefs[j] = 1
			rows = append(rows, row{coefs: coefs, slack: 1, rhs: 1})
		}
	}

	obj := make([]float64, len(lpVars))
	for j, v := range lpVars {
		obj[j] = p.Objective[v]
	}
	std := newStandardForm(rows, compact, len(lpVars))
	feasTol := tol * (1 + floats.Max(std.b))

	penalty := penaltyFactor * (1 + floats.Norm(obj, 1))
	optX, err := std.solve(obj, penalty)
	if err != nil {
		return lpFailure(err)
	}
	if std.infeasibility(optX) > feasTol {
		// either the node has no feasible point or the penalty was too small to
		// price the artificial columns out
		phase1, err := std.solve(nil, 1)
		if err != nil {
			return lpFailure(err)
		}
		if std.infeasibility(phase1) > feasTol {
			return relaxation{feasible: false}, nil
		}
		for attempt := 0; attempt < penaltyRetries && std.infeasibility(optX) > feasTol; attempt++ {
			penalty *= penaltyFactor
			if optX, err = std.solve(obj, penalty); err != nil {
				return lpFailure(err)
			}
		}
		if v := std.infeasibility(optX); v > feasTol {
			return relaxation{}, fmt.Errorf("artificial columns still carry %g after %d penalty increases", v, penaltyRetries)
		}
	}
	for j, v := range lpVars {
		x[v] = optX[j]
	}
	return relaxation{feasible: true, objective: constant + floats.Dot(obj, optX[:len(lpVars)]), x: x}, nil
}

func lpFailure(err error) (relaxation, error) {
	if errors.Is(err, lp.ErrInfeasible) {
		return relaxation{feasible: false}, nil
	}
	return relaxation{}, err
}

// boundingRows returns the ≤ and = rows whose coefficients are all nonnegative.
func boundingRows(rows []row) []row {
	var out []row
	for _, rw := range rows {
		if rw.slack < 0 {
			continue
		}
		if floats.Min(rw.coefs) >= 0 {
			out = append(out, rw)
		}
	}
	return out
}

// impliedUpper reports whether one of the bounding rows already keeps free variable j at
// or below one.
func impliedUpper(bounding []row, j int, tol float64) bool {
	for _, rw := range bounding {
		if a := rw.coefs[j]; a > 0 && rw.rhs <= a*(1+tol) {
			return true
		}
	}
	return false
}

// standardForm is A·z = b, z ≥ 0 with b ≥ 0. The columns of z are the LP variables, one
// slack per inequality, then one artificial per row that has no +1 slack. basis names an
// identity column for every row, so it is always a feasible starting basis.
type standardForm struct {
	A          *mat.Dense
	b          []float64
	basis      []int
	artificial []int
}

func newStandardForm(rows []row, compact []int, numVars int) *standardForm {
	m := len(rows)
	signs := make([]float64, m)
	numSlacks, numArtificial := 0, 0
	for i, rw := range rows {
		signs[i] = 1
		if rw.rhs < 0 || (rw.rhs == 0 && rw.slack < 0) {
			signs[i] = -1
		}
		if rw.slack != 0 {
			numSlacks++
		}
		if signs[i]*rw.slack <= 0 {
			numArtificial++
		}
	}

	std := &standardForm{
		A:     mat.NewDense(m, numVars+numSlacks+numArtificial, nil),
		b:     make([]float64, m),
		basis: make([]int, m),
	}
	slackCol, artCol := numVars, numVars+numSlacks
	for i, rw := range rows {
		sign := signs[i]
		for j, a := range rw.coefs {
			if k := compact[j]; k >= 0 && a != 0 {
				std.A.Set(i, k, sign*a)
			}
		}
		std.b[i] = math.Abs(rw.rhs)
		std.basis[i] = -1
		if rw.slack != 0 {
			std.A.Set(i, slackCol, sign*rw.slack)
			if sign*rw.slack > 0 {
				std.basis[i] = slackCol
			}
			slackCol++
		}
		if std.basis[i] < 0 {
			std.A.Set(i, artCol, 1)
			std.basis[i] = artCol
			std.artificial = append(std.artificial, artCol)
			artCol++
		}
	}
	return std
}

// solve minimises objective·z plus penalty per unit of artificial columns, starting from
// the identity basis.
func (s *standardForm) solve(objective []float64, penalty float64) ([]float64, error) {
	_, n := s.A.Dims()
	c := make([]float64, n)
	copy(c, objective)
	for _, a := range s.artificial {
		c[a] = penalty
	}
	_, z, err := lp.Simplex(c, s.A, s.b, simplexTolerance, s.basis)
	return z, err
}

// infeasibility is the total value left on the artificial columns.
func (s *standardForm) infeasibility(z []float64) float64 {
	total := 0.0
	for _, a := range s.artificial {
		total += math.Abs(z[a])
	}
	return total
}

func satisfied(sense Sense, rhs, tol float64) bool {
	switch sense {
	case LessEqual:
		return 0 <= rhs+tol
	case GreaterEqual:
		return 0 >= rhs-tol
	default:
		return math.Abs(rhs) <= tol
	}
}
