package clock

// One recorded touch of a tracked shared object: the branch position at
// which it was scheduled and a snapshot of the acting thread's clock at
// that moment. Immutable once created.
type Access struct {
	pathPos int
	version VersionVec
}

func NewAccess(pathPos int, version VersionVec) *Access {
	return &Access{
		pathPos: pathPos,
		version: version.Clone(),
	}
}

// The branch position at which the access was scheduled.
func (a *Access) PathPos() int {
	return a.pathPos
}

// The clock snapshot taken when the access was recorded.
func (a *Access) Version() VersionVec {
	return a.version
}

// HappensBefore reports whether the access is causally ordered before a
// thread holding the clock vv. If it is not, the access and the thread's
// next operation are concurrent.
func (a *Access) HappensBefore(vv VersionVec) bool {
	return a.version.LessOrEqual(vv)
}
