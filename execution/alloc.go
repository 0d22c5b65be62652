package execution

import (
	"fmt"
	"weave/object"
)

// Allocation ties a raw allocation to the leak tracked object auditing it.
type Allocation struct {
	obj object.Ref
}

// Allocate starts leak tracking the raw allocation at the given address.
func (e *Execution) Allocate(addr uintptr) {
	if _, ok := e.rawAllocations[addr]; ok {
		panic(fmt.Sprintf("execution: allocation at %#x tracked twice", addr))
	}
	obj := e.Objects.Insert("allocation", true)
	e.rawAllocations[addr] = Allocation{obj: obj}
}

// Deallocate releases the tracking of a raw allocation. Panics if the
// address is not currently tracked.
func (e *Execution) Deallocate(addr uintptr) {
	alloc, ok := e.rawAllocations[addr]
	if !ok {
		panic(fmt.Sprintf("execution: deallocation of untracked address %#x", addr))
	}
	delete(e.rawAllocations, addr)
	e.Objects.Release(alloc.obj)
}
