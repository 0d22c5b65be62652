package object

import (
	"fmt"
	"strings"

	"weave/runid"
)

// LeakError reports objects that were created during a run and never
// released by the time the run ended.
type LeakError struct {
	Kinds []string
}

func (le LeakError) Error() string {
	return fmt.Sprintf("object: %v object(s) leaked: %v", len(le.Kinds), strings.Join(le.Kinds, ", "))
}

// StaleRefError reports use of an object reference that was created under
// an earlier permutation.
type StaleRefError struct {
	Want runid.Id
	Got  runid.Id
}

func (se StaleRefError) Error() string {
	return fmt.Sprintf("object: stale reference. Got execution %v. Expected: %v", se.Got, se.Want)
}
