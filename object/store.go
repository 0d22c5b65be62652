package object

import (
	"fmt"
	"weave/clock"
	"weave/runid"
)

// How an operation touches a shared object. The store uses the action to
// decide which earlier accesses a new access conflicts with.
type Action int

const (
	Read Action = iota
	Write
	Rmw
)

// Ref identifies one tracked object within the store of a single
// permutation. It carries the execution identity it was created under so
// a reference held across permutations is detected instead of silently
// resolving to an unrelated object.
type Ref struct {
	execution runid.Id
	index     int
}

// Operation identifies a pending touch of a tracked object.
type Operation struct {
	Ref    Ref
	Action Action
}

// Store owns, per tracked object, the most recent conflicting accesses of
// the current permutation. It also tracks which objects require an explicit
// release, for the leak audit at the end of a run.
type Store struct {
	execution runid.Id
	objects   []*objectState
}

type objectState struct {
	kind string

	// Only leak tracked objects participate in the audit.
	leakTracked bool
	released    bool

	lastWrite *clock.Access
	// Reads recorded since the last write.
	lastReads []*clock.Access
}

func NewStore(execution runid.Id) *Store {
	return &Store{execution: execution}
}

// Insert starts tracking a new object and returns a reference to it.
// If leakTracked is set the object must be released before the end of the
// run, otherwise the leak audit fails.
func (s *Store) Insert(kind string, leakTracked bool) Ref {
	s.objects = append(s.objects, &objectState{
		kind:        kind,
		leakTracked: leakTracked,
	})
	return Ref{
		execution: s.execution,
		index:     len(s.objects) - 1,
	}
}

// Release marks a leak tracked object as properly released.
func (s *Store) Release(ref Ref) {
	obj := s.get(ref)
	if obj.released {
		panic(fmt.Sprintf("object: %v released twice", obj.kind))
	}
	obj.released = true
}

// LastDependentAccesses returns the most recent accesses that conflict with
// the given operation. Reads conflict with the last write. Writes and
// read-modify-writes conflict with the last write and with every read
// recorded since it.
func (s *Store) LastDependentAccesses(op Operation) []*clock.Access {
	obj := s.get(op.Ref)

	var accesses []*clock.Access
	if obj.lastWrite != nil {
		accesses = append(accesses, obj.lastWrite)
	}
	if op.Action != Read {
		accesses = append(accesses, obj.lastReads...)
	}
	return accesses
}

// SetLastAccess records the latest access for the operation's object.
func (s *Store) SetLastAccess(op Operation, access *clock.Access) {
	obj := s.get(op.Ref)

	if op.Action == Read {
		obj.lastReads = append(obj.lastReads, access)
		return
	}
	obj.lastWrite = access
	obj.lastReads = nil
}

// Clear resets the store for the next permutation.
func (s *Store) Clear(execution runid.Id) {
	s.execution = execution
	s.objects = s.objects[:0]
}

// CheckForLeaks panics with a LeakError if any leak tracked object was
// created during the run and never released.
func (s *Store) CheckForLeaks() {
	var leaked []string
	for _, obj := range s.objects {
		if obj.leakTracked && !obj.released {
			leaked = append(leaked, obj.kind)
		}
	}
	if len(leaked) > 0 {
		panic(LeakError{Kinds: leaked})
	}
}

func (s *Store) get(ref Ref) *objectState {
	if ref.execution != s.execution {
		panic(StaleRefError{Want: s.execution, Got: ref.execution})
	}
	return s.objects[ref.index]
}
