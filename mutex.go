package weave

import (
	"weave/object"
	"weave/thread"
)

// Mutex is a simulated lock. Acquiring and releasing are scheduling
// points, so the engine explores all acquisition orders, and a cycle of
// contended locks is reported as a deadlock.
type Mutex struct {
	sim  *Sim
	ref  object.Ref
	held bool

	// Threads blocked on the lock, woken to re-contend on unlock.
	waiters []thread.Id
}

func NewMutex(s *Sim) *Mutex {
	return &Mutex{
		sim: s,
		ref: s.exec.Objects.Insert("mutex", false),
	}
}

// Lock blocks the calling thread until it holds the lock.
func (m *Mutex) Lock() {
	s := m.sim
	m.access()

	for m.held {
		me := s.exec.Threads.Active()
		m.waiters = append(m.waiters, me.Id)
		me.SetBlocked()
		s.schedulePoint()
	}
	m.held = true
}

// Unlock releases the lock and wakes every waiting thread to re-contend.
func (m *Mutex) Unlock() {
	if !m.held {
		panic("weave: unlock of unlocked mutex")
	}
	m.access()

	m.held = false
	for _, id := range m.waiters {
		m.sim.exec.Threads.Get(id).SetRunnable()
	}
	m.waiters = m.waiters[:0]
}

// Lock state transitions read and write the lock, so two acquisitions
// always conflict.
func (m *Mutex) access() {
	m.sim.access(object.Operation{Ref: m.ref, Action: object.Rmw})
}
