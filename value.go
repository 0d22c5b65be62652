package weave

import "weave/object"

// Value is a tracked shared cell. Every load and store is a scheduling
// point, so the engine explores all orderings of concurrent accesses.
type Value[T any] struct {
	sim *Sim
	ref object.Ref
	v   T
}

// NewValue creates a tracked cell holding init. The cell belongs to the
// current permutation and must not be reused across permutations.
func NewValue[T any](s *Sim, init T) *Value[T] {
	return &Value[T]{
		sim: s,
		ref: s.exec.Objects.Insert("value", false),
		v:   init,
	}
}

func (v *Value[T]) Load() T {
	v.sim.access(object.Operation{Ref: v.ref, Action: object.Read})
	return v.v
}

func (v *Value[T]) Store(x T) {
	v.sim.access(object.Operation{Ref: v.ref, Action: object.Write})
	v.v = x
}

// ReadModifyWrite applies f to the current value and stores the result,
// atomically with respect to the simulated interleaving. Returns the
// previous value.
func (v *Value[T]) ReadModifyWrite(f func(T) T) T {
	v.sim.access(object.Operation{Ref: v.ref, Action: object.Rmw})
	old := v.v
	v.v = f(old)
	return old
}
