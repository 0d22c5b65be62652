package weave

import (
	"errors"

	"weave/execution"
	"weave/object"
	"weave/path"
	"weave/thread"
)

const (
	DefaultMaxThreads  = 4
	DefaultMaxBranches = 1000
)

// Runner drives a program under test through every causally-distinct
// interleaving of its threads, one permutation at a time, until the
// decision space is exhausted or a failure is found.
type Runner struct {
	// Maximum number of concurrent threads in a run.
	MaxThreads int

	// Maximum number of scheduling decisions in a run.
	MaxBranches int

	// Maximum number of preemptions in a run. Negative means unbounded.
	PreemptionBound int

	// Log scheduling switches to stdout.
	Log bool
}

func NewRunner() *Runner {
	return &Runner{
		MaxThreads:      DefaultMaxThreads,
		MaxBranches:     DefaultMaxBranches,
		PreemptionBound: -1,
	}
}

// Explore runs body once per permutation until every permutation has been
// explored. The body is handed a Sim through which it spawns threads and
// touches shared state.
//
// Returns nil if the full decision space was explored without failures.
// Returns the failure otherwise: a deadlock, a leak, a panic raised by the
// body, or an exceeded exploration bound (see BoundExceeded).
func (r *Runner) Explore(body func(*Sim)) error {
	exec := execution.New(r.MaxThreads, r.MaxBranches, r.PreemptionBound)
	exec.Log = r.Log

	for {
		if err := r.runOnce(exec, body); err != nil {
			return err
		}
		if _, ok := exec.Step(); !ok {
			return nil
		}
	}
}

// runOnce executes a single permutation and audits it for leaks.
func (r *Runner) runOnce(exec *execution.Execution, body func(*Sim)) error {
	s := newSim(exec, r.MaxThreads)
	defer close(s.abort)

	s.start(0, func() { body(s) })
	s.gates[0] <- struct{}{}

	if err := <-s.done; err != nil {
		return err
	}
	return checkLeaks(exec)
}

// The deadlock abort is fatal on its own; the leak audit only runs after a
// run completes normally.
func checkLeaks(exec *execution.Execution) (err error) {
	defer func() {
		if p := recover(); p != nil {
			le, ok := p.(object.LeakError)
			if !ok {
				panic(p)
			}
			err = le
		}
	}()
	exec.CheckForLeaks()
	return nil
}

// BoundExceeded reports whether the error means the search space exceeded
// a configured exploration bound, as opposed to a bug found in the program
// under test. Treating the two alike would turn truncated searches into
// false negatives.
func BoundExceeded(err error) bool {
	var ce thread.CapacityError
	var be path.BranchLimitError
	return errors.As(err, &ce) || errors.As(err, &be)
}
