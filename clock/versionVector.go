package clock

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// A vector of logical timestamps, one entry per simulated thread.
// Entry i is the latest event of thread i that the owner knows about.
// Entries only ever grow, either by a self increment or by a join.
type VersionVec []uint32

func NewVersionVec(numThreads int) VersionVec {
	return make(VersionVec, numThreads)
}

// Join sets vv to the element-wise maximum of vv and other.
// Used to absorb the causal history of another thread or access.
func (vv VersionVec) Join(other VersionVec) {
	for i, v := range other {
		if v > vv[i] {
			vv[i] = v
		}
	}
}

// Increment advances the entry of thread i by one, marking a new event.
func (vv VersionVec) Increment(i int) {
	vv[i]++
}

// LessOrEqual reports whether vv happened before or at other.
// True if every entry of vv is at most the corresponding entry of other.
func (vv VersionVec) LessOrEqual(other VersionVec) bool {
	for i, v := range vv {
		if v > other[i] {
			return false
		}
	}
	return true
}

func (vv VersionVec) Clone() VersionVec {
	return slices.Clone(vv)
}

func (vv VersionVec) String() string {
	parts := make([]string, 0, len(vv))
	for i, v := range vv {
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%v:%v", i, v))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
