package runid

import "sync/atomic"

// Identifies a single permutation of an exploration. Ids are issued from a
// process-wide counter and are never reused, so state tagged with an Id from
// an earlier permutation can not be mistaken for current state.
type Id uint64

var nextId atomic.Uint64

// Issue the next execution identity. Ids are strictly increasing for the
// lifetime of the process. Callers should treat them as opaque.
func Next() Id {
	return Id(nextId.Add(1))
}
