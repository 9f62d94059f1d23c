// Package solver implements the binary linear programs used by the exact placement engines.
//
// The solver package contains a small 0/1 integer programming layer on top of gonum's
// simplex implementation (gonum.org/v1/gonum/optimize/convex/lp). Decision variables are
// addressed by integer index; a Program is built once per solve call.
//
// Key Components:
//
//   - Program: objective, constraints and variable count of a 0/1 program
//   - BranchAndBound: depth-first branch-and-bound over LP relaxations
//   - Solver: interface implemented by BranchAndBound, so engines can be handed a fake
//
// Solution Strategy:
//
//  1. Substitute fixed variables out of every constraint
//  2. Move each remaining constraint into standard form with its own slack column
//  3. Solve the LP relaxation with the simplex method
//  4. Prune against the incumbent, otherwise branch on the most fractional variable
//
// Example usage:
//
//	prog := solver.NewProgram("placement", 2*n)
//	prog.SetCost(0, 0.5)
//	prog.AddConstraint("count", solver.Equal, float64(k), terms...)
//
//	sol, err := solver.NewBranchAndBound().Solve(ctx, prog)
//	if err != nil {
//	    return err
//	}
//	if sol.Status != solver.StatusOptimal {
//	    return fmt.Errorf("solver status %s", sol.Status)
//	}
//
// Solver outcomes (infeasible, node limit, cancellation) are reported through Status;
// only malformed programs produce an error.
package solver
