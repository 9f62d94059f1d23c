// Package optimizer runs placers against a demand-point dataset and turns each run into a
// flat result record.
//
// Example usage:
//
//	runner := optimizer.NewRunner(points, distances, optimizer.RunnerConfig{
//	    Timeout:     time.Minute,
//	    Parallelism: 4,
//	    Recorder:    recorder,
//	})
//
//	// One run
//	result, err := runner.Run(ctx, placer, 200, 10)
//
//	// Objectives averaged over five runs of the same placer
//	result, err = runner.Repeat(ctx, placer, 200, 10, 5)
//
//	// Every placer for every K, placers running concurrently
//	results, err := runner.Compare(ctx, placers, 200, []int{5, 10, 20}, 1)
//
// Run Flow:
//
//  1. Validate N and K against the dataset (fails with core.ErrInfeasibleInput)
//  2. Apply the per-run timeout to the context
//  3. Invoke the placer and time it
//  4. Compute objectives and record metrics
//
// A placer failure is recorded on its result in Compare and does not stop the other
// placers. Cancelling the parent context stops the comparison.
package optimizer
