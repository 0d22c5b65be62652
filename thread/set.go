package thread

import (
	"fmt"
	"weave/runid"
)

// Set owns every simulated thread of one permutation and tracks which one
// is active. Threads are stored densely and addressed by their Id.
type Set struct {
	execution runid.Id
	max       int
	threads   []*Thread

	// Index of the active thread, or -1 when no thread is active.
	active int
}

// NewSet creates a thread set for the given execution, seeded with one
// initial runnable thread which starts out active.
func NewSet(execution runid.Id, maxThreads int) *Set {
	s := &Set{
		execution: execution,
		max:       maxThreads,
		threads:   make([]*Thread, 0, maxThreads),
	}
	s.threads = append(s.threads, newThread(0, maxThreads))
	s.active = 0
	return s
}

// NewThread allocates the next thread of the run. Panics with a
// CapacityError if the set is full.
func (s *Set) NewThread() Id {
	if len(s.threads) == s.max {
		panic(CapacityError{Max: s.max})
	}
	id := Id(len(s.threads))
	s.threads = append(s.threads, newThread(id, s.max))
	return id
}

// IsActive reports whether any thread is currently active.
func (s *Set) IsActive() bool {
	return s.active >= 0
}

// ActiveId returns the identifier of the active thread.
func (s *Set) ActiveId() Id {
	return s.Active().Id
}

// Active returns the active thread. Panics if no thread is active.
func (s *Set) Active() *Thread {
	if s.active < 0 {
		panic("thread: no active thread")
	}
	return s.threads[s.active]
}

// SetActive marks the thread with the given id as active, or marks no
// thread active when ok is false.
func (s *Set) SetActive(id Id, ok bool) {
	if !ok {
		s.active = -1
		return
	}
	s.active = int(id)
}

// Active2 returns both the active thread and the thread with the given id.
// Used on spawn, where the parent and the new thread are updated together.
func (s *Set) Active2(id Id) (active, other *Thread) {
	return s.Active(), s.threads[id]
}

// Get returns the thread with the given id.
func (s *Set) Get(id Id) *Thread {
	return s.threads[id]
}

// All returns the threads of the set in id order, for iteration. The
// returned threads may be mutated.
func (s *Set) All() []*Thread {
	return s.threads
}

func (s *Set) Len() int {
	return len(s.threads)
}

// Clear resets the set for the next permutation: all threads are dropped
// and a fresh initial thread is seeded under the new execution identity.
func (s *Set) Clear(execution runid.Id) {
	s.execution = execution
	s.threads = s.threads[:0]
	s.threads = append(s.threads, newThread(0, s.max))
	s.active = 0
}

// CapacityError reports that a run tried to create more concurrent threads
// than the configured bound. The search space exceeded its bound; the
// outcome is distinct from a failed or a passed run.
type CapacityError struct {
	Max int
}

func (ce CapacityError) Error() string {
	return fmt.Sprintf("thread: exceeded maximum number of concurrent threads (%v)", ce.Max)
}
