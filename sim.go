package weave

import (
	"errors"
	"fmt"

	"weave/execution"
	"weave/object"
	"weave/thread"
)

// Raised inside parked goroutines when a run is torn down early.
var errAborted = errors.New("weave: run aborted")

// Sim is the handle a program under test uses to interact with the engine
// during one permutation: spawning threads, yielding, marking critical
// sections and tracking run scoped resources.
//
// Simulated threads are goroutines, but only one of them ever runs at a
// time: control is handed from thread to thread through per-thread gate
// channels, following the decisions of the scheduler. The engine itself
// therefore stays strictly single threaded and deterministic.
type Sim struct {
	exec *execution.Execution

	// One gate per thread. A send schedules the thread, which parks on a
	// receive whenever it is not selected.
	gates []chan struct{}

	// Resolved once per run: nil on normal termination, the failure
	// otherwise.
	done chan error

	// Closed when the run is torn down. Releases parked goroutines.
	abort chan struct{}

	// Threads blocked joining on a thread, woken when it terminates.
	joinWaiters map[thread.Id][]thread.Id
}

func newSim(exec *execution.Execution, maxThreads int) *Sim {
	return &Sim{
		exec:        exec,
		gates:       make([]chan struct{}, maxThreads),
		done:        make(chan error, 1),
		abort:       make(chan struct{}),
		joinWaiters: make(map[thread.Id][]thread.Id),
	}
}

// Execution exposes the underlying orchestrator, for instrumented
// primitives implemented outside this package.
func (s *Sim) Execution() *execution.Execution {
	return s.exec
}

// Spawn creates a new simulated thread running body and returns a handle
// that can be joined on. Spawning is a scheduling point.
func (s *Sim) Spawn(body func()) *JoinHandle {
	id := s.exec.NewThread()
	s.start(id, body)
	s.schedulePoint()
	return &JoinHandle{sim: s, id: id}
}

// Yield pauses the active thread voluntarily. The thread is skipped for
// exactly one scheduling round, then becomes eligible again.
func (s *Sim) Yield() {
	s.exec.Threads.Active().SetYielded()
	s.schedulePoint()

	// A sole yielded thread is reselected immediately and never woken by
	// the skip round.
	if th := s.exec.Threads.Active(); th.IsYielded() {
		th.SetRunnable()
	}
}

// Critical runs f with the active thread marked non preemptible.
func (s *Sim) Critical(f func()) {
	s.exec.SetCritical()
	defer s.exec.UnsetCritical()
	f()
}

// Track starts leak tracking a run scoped resource. The resource must be
// handed back to Release before the run ends or the leak audit fails.
func (s *Sim) Track(kind string) object.Ref {
	return s.exec.Objects.Insert(kind, true)
}

// Release marks a tracked resource as released.
func (s *Sim) Release(ref object.Ref) {
	s.exec.Objects.Release(ref)
}

// start launches the goroutine backing a simulated thread. The goroutine
// parks until the thread is scheduled for the first time.
func (s *Sim) start(id thread.Id, body func()) {
	s.gates[id] = make(chan struct{}, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				if p == errAborted {
					return
				}
				s.fail(p)
			}
		}()

		s.wait(id)
		body()
		s.exit()
	}()
}

// exit terminates the active thread and hands control to the next
// selected thread, or resolves the run when every thread has terminated.
func (s *Sim) exit() {
	me := s.exec.Threads.Active()
	me.SetTerminated()

	for _, id := range s.joinWaiters[me.Id] {
		s.exec.Threads.Get(id).SetRunnable()
	}
	delete(s.joinWaiters, me.Id)

	s.exec.Schedule()

	if !s.exec.Threads.IsActive() {
		s.done <- nil
		return
	}
	s.gates[s.exec.Threads.ActiveId()] <- struct{}{}
}

// schedulePoint runs one scheduling decision and, if another thread was
// selected, hands it control and parks until rescheduled.
func (s *Sim) schedulePoint() {
	me := s.exec.Threads.ActiveId()
	s.exec.Schedule()

	next := s.exec.Threads.ActiveId()
	if next == me {
		return
	}
	s.gates[next] <- struct{}{}
	s.wait(me)
}

// access marks the pending operation of the active thread and schedules.
// The operation stays pending until the thread resumes, so every scheduling
// round in between sees it for race detection.
func (s *Sim) access(op object.Operation) {
	s.exec.Threads.Active().Op = &op
	s.schedulePoint()
	s.exec.Threads.Active().Op = nil
}

func (s *Sim) wait(id thread.Id) {
	select {
	case <-s.gates[id]:
	case <-s.abort:
		panic(errAborted)
	}
}

func (s *Sim) fail(p interface{}) {
	err, ok := p.(error)
	if !ok {
		err = fmt.Errorf("weave: panic while simulating run: %v", p)
	}
	s.done <- err
}

// JoinHandle waits for a spawned thread to terminate.
type JoinHandle struct {
	sim *Sim
	id  thread.Id
}

// Join blocks the calling thread until the joined thread has terminated,
// then absorbs its causal history, ordering everything the joined thread
// did before everything the caller does next.
func (h *JoinHandle) Join() {
	s := h.sim
	s.schedulePoint()

	for !s.exec.Threads.Get(h.id).IsTerminated() {
		me := s.exec.Threads.Active()
		s.joinWaiters[h.id] = append(s.joinWaiters[h.id], me.Id)
		me.SetBlocked()
		s.schedulePoint()
	}

	me := s.exec.Threads.Active()
	joined := s.exec.Threads.Get(h.id)
	me.Causality.Join(joined.Causality)
	me.DporVV.Join(joined.DporVV)
}
