package execution

import (
	"testing"

	"golang.org/x/exp/slices"

	"weave/clock"
	"weave/object"
	"weave/thread"
)

func TestNewSeedsOneRunnableThread(t *testing.T) {
	e := New(2, 100, -1)

	if e.Threads.Len() != 1 {
		t.Fatalf("unexpected number of threads. Got %v. Expected: %v", e.Threads.Len(), 1)
	}
	if !e.Threads.Active().IsRunnable() {
		t.Fatalf("initial thread not runnable. Got %v", e.Threads.Active().State)
	}
}

func TestNewThreadEstablishesSpawnCausalEdges(t *testing.T) {
	e := New(2, 100, -1)

	parent := e.Threads.Active()
	parent.Causality.Increment(0)
	parent.DporVV.Increment(0)

	id := e.NewThread()
	child := e.Threads.Get(id)

	// The child inherited the parent's knowledge and owns a first event
	if !slices.Equal(child.Causality, clock.VersionVec{1, 1}) {
		t.Errorf("unexpected child causality. Got %v. Expected: %v", child.Causality, clock.VersionVec{1, 1})
	}
	if !slices.Equal(child.DporVV, clock.VersionVec{1, 0}) {
		t.Errorf("unexpected child scheduling clock. Got %v. Expected: %v", child.DporVV, clock.VersionVec{1, 0})
	}

	// The parent's next action is ordered after the spawn as well
	if !slices.Equal(parent.Causality, clock.VersionVec{2, 0}) {
		t.Errorf("unexpected parent causality. Got %v. Expected: %v", parent.Causality, clock.VersionVec{2, 0})
	}
}

func TestScheduleKeepsRunnableActiveThread(t *testing.T) {
	e := New(2, 100, -1)
	e.NewThread()

	if switched := e.Schedule(); switched {
		t.Fatalf("runnable active thread was preempted")
	}
	if e.Threads.ActiveId() != 0 {
		t.Fatalf("unexpected active thread. Got %v. Expected: %v", e.Threads.ActiveId(), 0)
	}
}

func TestScheduleSwitchesOffBlockedThread(t *testing.T) {
	e := New(2, 100, -1)
	e.NewThread()
	e.Threads.Active().SetBlocked()

	if switched := e.Schedule(); !switched {
		t.Fatalf("blocked active thread kept the schedule")
	}
	if e.Threads.ActiveId() != 1 {
		t.Fatalf("unexpected active thread. Got %v. Expected: %v", e.Threads.ActiveId(), 1)
	}
}

func TestSchedulePrefersFewestYields(t *testing.T) {
	e := New(3, 100, -1)
	e.NewThread()
	e.NewThread()

	e.Threads.Active().SetBlocked()
	th1 := e.Threads.Get(1)
	th1.SetYielded()
	th1.SetRunnable()

	e.Schedule()

	if e.Threads.ActiveId() != 2 {
		t.Fatalf("unexpected active thread. Got %v. Expected: %v", e.Threads.ActiveId(), 2)
	}
}

func TestScheduleBreaksYieldTiesByLowestId(t *testing.T) {
	e := New(3, 100, -1)
	e.NewThread()
	e.NewThread()
	e.Threads.Active().SetBlocked()

	e.Schedule()

	if e.Threads.ActiveId() != 1 {
		t.Fatalf("unexpected active thread. Got %v. Expected: %v", e.Threads.ActiveId(), 1)
	}
}

func TestYieldedThreadSkippedForOneRound(t *testing.T) {
	e := New(2, 100, -1)
	e.NewThread()
	e.Threads.Active().SetYielded()

	e.Schedule()

	if e.Threads.ActiveId() != 1 {
		t.Fatalf("yielded thread was selected. Got %v", e.Threads.ActiveId())
	}
	// Being skipped for the round made the thread eligible again
	if !e.Threads.Get(0).IsRunnable() {
		t.Fatalf("yielded thread not runnable after one round. Got %v", e.Threads.Get(0).State)
	}
}

func TestScheduleDeadlock(t *testing.T) {
	e := New(2, 100, -1)
	e.NewThread()
	e.Threads.Get(0).SetBlocked()
	e.Threads.Get(1).SetBlocked()

	defer func() {
		p := recover()
		if p == nil {
			t.Fatalf("deadlock was not detected")
		}
		de, ok := p.(DeadlockError)
		if !ok {
			t.Fatalf("unexpected panic value. Got %v. Expected a DeadlockError", p)
		}
		expected := []thread.State{thread.Blocked, thread.Blocked}
		if !slices.Equal(de.States, expected) {
			t.Fatalf("unexpected thread dump. Got %v. Expected: %v", de.States, expected)
		}
	}()
	e.Schedule()
}

func TestScheduleAllTerminatedIsNotADeadlock(t *testing.T) {
	e := New(2, 100, -1)
	e.NewThread()
	e.Threads.Get(0).SetTerminated()
	e.Threads.Get(1).SetTerminated()

	e.Schedule()

	if e.Threads.IsActive() {
		t.Fatalf("a terminated thread was selected")
	}
}

func writeOp(ref object.Ref) *object.Operation {
	return &object.Operation{Ref: ref, Action: object.Write}
}

func TestScheduleRecordsPendingAccess(t *testing.T) {
	e := New(2, 100, -1)
	ref := e.Objects.Insert("value", false)

	th := e.Threads.Active()
	th.Op = writeOp(ref)
	e.Schedule()
	th.Op = nil

	if !slices.Equal(th.DporVV, clock.VersionVec{1, 0}) {
		t.Fatalf("unexpected clock after access. Got %v. Expected: %v", th.DporVV, clock.VersionVec{1, 0})
	}

	accesses := e.Objects.LastDependentAccesses(*writeOp(ref))
	if len(accesses) != 1 {
		t.Fatalf("unexpected number of recorded accesses. Got %v. Expected: %v", len(accesses), 1)
	}
	if accesses[0].PathPos() != 0 {
		t.Fatalf("unexpected access position. Got %v. Expected: %v", accesses[0].PathPos(), 0)
	}
	if !slices.Equal(accesses[0].Version(), clock.VersionVec{1, 0}) {
		t.Fatalf("unexpected access clock. Got %v. Expected: %v", accesses[0].Version(), clock.VersionVec{1, 0})
	}
}

func TestScheduleJoinsConflictingAccessesAndSeedsBacktrack(t *testing.T) {
	e := New(2, 100, -1)
	id := e.NewThread()
	ref := e.Objects.Insert("value", false)

	// Thread 0 writes first
	th0 := e.Threads.Active()
	th0.Op = writeOp(ref)
	e.Schedule()
	th0.Op = nil

	// Thread 1 writes concurrently: its clock does not include the first
	// write, so the scheduler joins it in and seeds a backtrack point
	e.Threads.SetActive(id, true)
	th1 := e.Threads.Get(id)
	th1.Op = writeOp(ref)
	e.Schedule()
	th1.Op = nil

	if !slices.Equal(th1.DporVV, clock.VersionVec{1, 1}) {
		t.Fatalf("conflicting access not joined. Got %v. Expected: %v", th1.DporVV, clock.VersionVec{1, 1})
	}

	// The race forces another permutation
	if _, ok := e.Step(); !ok {
		t.Fatalf("no backtrack obligation recorded for the race")
	}
}

func TestScheduleClocksNeverDecrease(t *testing.T) {
	e := New(2, 100, -1)
	e.NewThread()
	ref := e.Objects.Insert("value", false)

	before := make([]clock.VersionVec, e.Threads.Len())
	for i, th := range e.Threads.All() {
		before[i] = th.DporVV.Clone()
	}

	th := e.Threads.Active()
	th.Op = writeOp(ref)
	e.Schedule()
	th.Op = nil

	for i, th := range e.Threads.All() {
		if !before[i].LessOrEqual(th.DporVV) {
			t.Fatalf("clock of thread %v decreased. Got %v. Was: %v", i, th.DporVV, before[i])
		}
	}
}

func TestCriticalSectionSuppressesBranchingNotBookkeeping(t *testing.T) {
	e := New(2, 100, -1)
	e.NewThread()
	ref := e.Objects.Insert("value", false)

	e.Schedule()
	pos := e.Path.Pos()

	e.SetCritical()
	th := e.Threads.Active()
	th.Op = writeOp(ref)
	if switched := e.Schedule(); switched {
		t.Fatalf("critical thread was preempted")
	}
	th.Op = nil
	e.UnsetCritical()

	// No decision was consumed
	if e.Path.Pos() != pos {
		t.Fatalf("critical round consumed a decision. Got position %v. Expected: %v", e.Path.Pos(), pos)
	}
	// The access was still recorded
	if len(e.Objects.LastDependentAccesses(*writeOp(ref))) != 1 {
		t.Fatalf("access inside critical section was not recorded")
	}
	if !slices.Equal(th.DporVV, clock.VersionVec{1, 0}) {
		t.Fatalf("clock not advanced inside critical section. Got %v", th.DporVV)
	}
}

func TestStepRecyclesStateUnderFreshIdentity(t *testing.T) {
	e := New(2, 100, -1)
	id := e.NewThread()
	ref := e.Objects.Insert("value", false)

	th0 := e.Threads.Active()
	th0.Op = writeOp(ref)
	e.Schedule()
	th0.Op = nil

	e.Threads.SetActive(id, true)
	th1 := e.Threads.Get(id)
	th1.Op = writeOp(ref)
	e.Schedule()
	th1.Op = nil

	prev := e.Id
	next, ok := e.Step()
	if !ok {
		t.Fatalf("no next permutation despite a recorded race")
	}
	if next.Id <= prev {
		t.Fatalf("identity not strictly increasing. Got %v after %v", next.Id, prev)
	}
	if next.Threads.Len() != 1 || !next.Threads.Get(0).IsRunnable() {
		t.Fatalf("thread set not reset for the next permutation")
	}

	// References into the previous permutation's store are stale now
	defer func() {
		if recover() == nil {
			t.Fatalf("stale object reference not detected after step")
		}
	}()
	next.Objects.LastDependentAccesses(*writeOp(ref))
}

func TestStepReportsExhaustion(t *testing.T) {
	e := New(2, 100, -1)
	e.Schedule()

	if _, ok := e.Step(); ok {
		t.Fatalf("path reported another permutation without backtrack obligations")
	}
}

func TestAllocationAudit(t *testing.T) {
	e := New(2, 100, -1)

	e.Allocate(0x1000)
	e.Deallocate(0x1000)
	e.CheckForLeaks()
}

func TestLeakedAllocationFailsAudit(t *testing.T) {
	e := New(2, 100, -1)
	e.Allocate(0x1000)

	defer func() {
		p := recover()
		if p == nil {
			t.Fatalf("leaked allocation was not detected")
		}
		if _, ok := p.(object.LeakError); !ok {
			t.Fatalf("unexpected panic value. Got %v. Expected a LeakError", p)
		}
	}()
	e.CheckForLeaks()
}

func TestDeallocateUntrackedAddressPanics(t *testing.T) {
	e := New(2, 100, -1)

	defer func() {
		if recover() == nil {
			t.Fatalf("deallocation of an untracked address did not panic")
		}
	}()
	e.Deallocate(0x2000)
}
