package thread

import (
	"fmt"
	"weave/clock"
	"weave/object"
)

// Identifies a thread within its set. Ids are dense indexes starting at 0.
type Id int

// Runnability of a simulated thread. The closed set of states and the
// transitions between them:
//
// Runnable -> Yielded: the thread voluntarily paused for one round.
// Yielded -> Runnable: the thread was skipped for one scheduling round.
// Runnable/Yielded -> Blocked: the thread is waiting on an external condition.
// Blocked -> Runnable: the primitive owning the condition reactivated it.
// any non-terminal -> Terminated: the thread body completed. Absorbing.
type State int

const (
	Runnable State = iota
	Yielded
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "Runnable"
	case Yielded:
		return "Yielded"
	case Blocked:
		return "Blocked"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// One logical unit of concurrency in a simulated program.
type Thread struct {
	Id Id

	State State

	// While set, the scheduler will not preempt the thread.
	Critical bool

	// The operation the thread is about to perform, if any. Set when the
	// thread reaches a scheduling point for a shared object access and
	// cleared once the thread resumes after the access was recorded.
	Op *object.Operation

	// General happens-before knowledge, updated around spawn and join.
	Causality clock.VersionVec

	// Clock used by the scheduling algorithm to detect races between
	// accesses and pick backtrack points.
	DporVV clock.VersionVec

	// Number of voluntary yields performed in the current run.
	YieldCount int
}

func newThread(id Id, maxThreads int) *Thread {
	return &Thread{
		Id:        id,
		State:     Runnable,
		Causality: clock.NewVersionVec(maxThreads),
		DporVV:    clock.NewVersionVec(maxThreads),
	}
}

func (t *Thread) IsRunnable() bool {
	return t.State == Runnable
}

func (t *Thread) IsYielded() bool {
	return t.State == Yielded
}

func (t *Thread) IsBlocked() bool {
	return t.State == Blocked
}

func (t *Thread) IsTerminated() bool {
	return t.State == Terminated
}

func (t *Thread) SetRunnable() {
	t.transition(Runnable)
}

// SetYielded pauses the thread voluntarily and counts the yield.
func (t *Thread) SetYielded() {
	t.transition(Yielded)
	t.YieldCount++
}

func (t *Thread) SetBlocked() {
	t.transition(Blocked)
}

// SetTerminated moves the thread to its terminal state.
func (t *Thread) SetTerminated() {
	t.State = Terminated
}

func (t *Thread) transition(to State) {
	if t.State == Terminated {
		panic(fmt.Sprintf("thread: transition of terminated thread %v to %v", t.Id, to))
	}
	t.State = to
}
