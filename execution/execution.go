package execution

import (
	"fmt"
	"weave/clock"
	"weave/object"
	"weave/path"
	"weave/runid"
	"weave/thread"
)

// Execution owns the state of a single permutation: the thread set, the
// object store and the raw allocation table, together with the decision
// log that spans the whole exploration. The same instance is advanced in
// place from one permutation to the next by Step.
type Execution struct {
	// Uniquely identifies the current permutation.
	Id runid.Id

	// The decision log. The only state carried across permutations.
	Path *path.Path

	Threads *thread.Set

	// All tracked objects of the current permutation.
	Objects *object.Store

	// Maps raw allocations to their leak tracked objects.
	rawAllocations map[uintptr]Allocation

	maxThreads int

	// Log scheduling switches to stdout.
	Log bool
}

// New creates the execution for the start of an exploration. The limits
// are caller validated. A negative preemptionBound means unbounded.
func New(maxThreads, maxBranches, preemptionBound int) *Execution {
	id := runid.Next()

	return &Execution{
		Id:             id,
		Path:           path.New(maxBranches, preemptionBound),
		Threads:        thread.NewSet(id, maxThreads),
		Objects:        object.NewStore(id),
		rawAllocations: make(map[uintptr]Allocation),
		maxThreads:     maxThreads,
	}
}

// NewThread creates the state tracking a new simulated thread. The new
// thread inherits the causal knowledge of the spawning thread by clock
// join. Both the new thread's own causality entry and the parent's own
// causality entry are then bumped, so the spawn is ordered before every
// subsequent action of either thread.
func (e *Execution) NewThread() thread.Id {
	id := e.Threads.NewThread()
	activeId := e.Threads.ActiveId()

	active, created := e.Threads.Active2(id)

	created.Causality.Join(active.Causality)
	created.DporVV.Join(active.DporVV)

	created.Causality.Increment(int(id))
	active.Causality.Increment(int(activeId))

	return id
}

// Step resets the execution state for the next permutation. The thread
// set, object store and allocation table are recycled under a fresh
// identity while the decision log is carried forward. Returns false when
// the log reports the decision space exhausted.
func (e *Execution) Step() (*Execution, bool) {
	id := runid.Next()

	e.Objects.Clear(id)
	for addr := range e.rawAllocations {
		delete(e.rawAllocations, addr)
	}

	if !e.Path.Step() {
		return nil, false
	}

	e.Threads.Clear(id)
	e.Id = id
	return e, true
}

// Schedule runs one scheduling decision and returns whether the active
// thread changed as a result.
//
// This is the dynamic partial order reduction decision point: races
// between pending operations and recorded accesses seed backtrack
// obligations, the decision log selects the thread to run, and the
// selected thread's pending access is recorded with an updated clock.
func (e *Execution) Schedule() bool {
	curr := e.Threads.ActiveId()

	// Seed backtrack points. A pending operation that is not causally
	// ordered after a recorded conflicting access is a race: force a
	// future permutation to schedule this thread at the earlier access.
	for _, th := range e.Threads.All() {
		if th.Op == nil {
			continue
		}
		for _, access := range e.Objects.LastDependentAccesses(*th.Op) {
			if access.HappensBefore(th.DporVV) {
				continue
			}
			e.Path.Backtrack(access.PathPos(), th.Id)
		}
	}

	// A critical section suppresses preemption, not causal bookkeeping.
	// No decision is consumed, the active thread keeps running.
	if active := e.Threads.Active(); active.Critical && active.IsRunnable() {
		e.recordAccess(e.criticalPos())
		return false
	}

	// Prefer keeping the current thread active. Unnecessary preemptions
	// multiply the number of explored permutations without finding new
	// behavior.
	initial := -1
	if e.Threads.Active().IsRunnable() {
		initial = int(curr)
	} else {
		for _, th := range e.Threads.All() {
			if !th.IsRunnable() {
				continue
			}
			if initial < 0 || th.YieldCount < e.Threads.Get(thread.Id(initial)).YieldCount {
				initial = int(th.Id)
			}
		}
	}

	pathPos := e.Path.Pos()

	states := make([]path.Thread, 0, e.Threads.Len())
	for _, th := range e.Threads.All() {
		switch {
		case int(th.Id) == initial:
			states = append(states, path.Active)
		case th.IsYielded():
			states = append(states, path.Yield)
		case !th.IsRunnable():
			states = append(states, path.Disabled)
		default:
			states = append(states, path.Skip)
		}
	}

	next, ok := e.Path.BranchThread(states)
	e.Threads.SetActive(next, ok)

	// No selectable thread is only valid once every thread terminated.
	// Anything else means the program under test deadlocked.
	if !e.Threads.IsActive() {
		for _, th := range e.Threads.All() {
			if !th.IsTerminated() {
				panic(newDeadlockError(e.Threads))
			}
		}
		return true
	}

	e.recordAccess(pathPos)

	// A voluntary yield lasts exactly one scheduling round. Every yielded
	// thread that was not just selected becomes runnable again.
	for _, th := range e.Threads.All() {
		if th.IsYielded() && th.Id != next {
			th.SetRunnable()
		}
	}

	if e.Log && curr != next {
		fmt.Printf("~~~~~~~~ THREAD %v ~~~~~~~~\n", next)
	}

	return curr != e.Threads.ActiveId()
}

// recordAccess incorporates the selected thread's pending operation into
// the object store: the thread's clock absorbs the causal history of every
// conflicting access, marks a new event, and the access is recorded as the
// latest one for the object.
func (e *Execution) recordAccess(pathPos int) {
	active := e.Threads.Active()
	if active.Op == nil {
		return
	}

	for _, access := range e.Objects.LastDependentAccesses(*active.Op) {
		active.DporVV.Join(access.Version())
	}
	active.DporVV.Increment(int(active.Id))

	e.Objects.SetLastAccess(*active.Op, clock.NewAccess(pathPos, active.DporVV))
}

// criticalPos is the position an access inside a critical section is
// recorded at. No decision is consumed there, so the access belongs to the
// decision that scheduled the critical span.
func (e *Execution) criticalPos() int {
	if pos := e.Path.Pos(); pos > 0 {
		return pos - 1
	}
	return 0
}

// CheckForLeaks panics if any tracked object or allocation created during
// the run was not released by the time the run ended.
func (e *Execution) CheckForLeaks() {
	e.Objects.CheckForLeaks()
}

// SetCritical marks the active thread as non preemptible until
// UnsetCritical. Used by simulated primitives whose real execution is
// atomic, so the interleaving never exposes an intermediate state that
// could not occur in reality.
func (e *Execution) SetCritical() {
	e.Threads.Active().Critical = true
}

func (e *Execution) UnsetCritical() {
	e.Threads.Active().Critical = false
}
