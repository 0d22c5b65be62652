package execution

import (
	"fmt"
	"strings"

	"weave/thread"
)

// DeadlockError reports that no thread could be selected while some
// thread had not terminated. It carries the state of every thread for
// diagnosis.
type DeadlockError struct {
	States []thread.State
}

func newDeadlockError(threads *thread.Set) DeadlockError {
	states := make([]thread.State, 0, threads.Len())
	for _, th := range threads.All() {
		states = append(states, th.State)
	}
	return DeadlockError{States: states}
}

func (de DeadlockError) Error() string {
	states := make([]string, 0, len(de.States))
	for id, state := range de.States {
		states = append(states, fmt.Sprintf("%v: %v", id, state))
	}
	return fmt.Sprintf("execution: deadlock; threads = [%v]", strings.Join(states, ", "))
}
