package path

import (
	"fmt"
	"weave/thread"
)

// Classification of one thread at one scheduling decision.
type Thread int

const (
	// The candidate the orchestrator picked for this round.
	Active Thread = iota
	// Voluntarily paused for this round.
	Yield
	// Blocked or terminated, can not be selected.
	Disabled
	// Runnable but not the candidate.
	Skip
)

func (t Thread) String() string {
	switch t {
	case Active:
		return "Active"
	case Yield:
		return "Yield"
	case Disabled:
		return "Disabled"
	case Skip:
		return "Skip"
	default:
		return fmt.Sprintf("Thread(%d)", int(t))
	}
}

// Enabled reports whether the thread could have been selected at the
// decision: it was either the candidate or a runnable thread that was
// passed over.
func (t Thread) Enabled() bool {
	return t == Active || t == Skip
}

// Path is the decision log of the exploration. It is the only state that
// survives from one permutation to the next: each permutation replays the
// recorded prefix and extends it, and Step repoints the deepest decision
// that still has an unexplored alternative.
type Path struct {
	branches []*schedule

	// Cursor into branches for the current permutation.
	pos int

	maxBranches int

	// Negative means unbounded.
	preemptionBound int
}

// One recorded scheduling decision.
type schedule struct {
	// Classification of every thread at the time the decision was first
	// taken, indexed by thread id.
	threads []Thread

	// The thread selected at this decision, -1 when none was selectable.
	active int

	// Threads that a future permutation must schedule here.
	backtrack []bool

	// Threads already selected here by some permutation.
	explored []bool

	// Preemptions along the path up to and including this decision.
	preemptions int
}

func New(maxBranches, preemptionBound int) *Path {
	return &Path{
		maxBranches:     maxBranches,
		preemptionBound: preemptionBound,
	}
}

// Pos returns the position of the next scheduling decision.
func (p *Path) Pos() int {
	return p.pos
}

// BranchThread takes one scheduling decision given the classification of
// every thread, and returns the selected thread. While the cursor is
// inside the recorded prefix the stored decision is replayed, which is how
// backtrack obligations from earlier permutations take effect. Beyond the
// prefix a new decision is recorded, selecting the Active classified
// thread, or a Yield classified thread if nothing is runnable.
//
// Panics with a BranchLimitError when the decision log would outgrow the
// configured bound.
func (p *Path) BranchThread(threads []Thread) (thread.Id, bool) {
	if p.pos == len(p.branches) {
		p.push(threads)
	}

	b := p.branches[p.pos]
	p.pos++

	if b.active < 0 {
		return 0, false
	}
	return thread.Id(b.active), true
}

func (p *Path) push(threads []Thread) {
	if len(p.branches) == p.maxBranches {
		panic(BranchLimitError{Max: p.maxBranches})
	}

	b := &schedule{
		threads:     append([]Thread(nil), threads...),
		active:      -1,
		backtrack:   make([]bool, len(threads)),
		explored:    make([]bool, len(threads)),
		preemptions: p.preemptionsBefore(p.pos),
	}

	for i, t := range threads {
		if t == Active {
			b.active = i
			break
		}
	}
	if b.active < 0 {
		// No runnable candidate. A yielded thread is still eligible, it
		// only pauses for one round.
		for i, t := range threads {
			if t == Yield {
				b.active = i
				break
			}
		}
	}

	if b.active >= 0 {
		b.backtrack[b.active] = true
		b.explored[b.active] = true
	}

	p.branches = append(p.branches, b)
}

// Backtrack registers the obligation to schedule the given thread at the
// given earlier decision in a future permutation. If the thread was not
// enabled at that decision, every enabled thread is flagged instead.
func (p *Path) Backtrack(pos int, id thread.Id) {
	if pos < 0 || pos >= len(p.branches) {
		return
	}
	b := p.branches[pos]

	if b.threads[id].Enabled() {
		b.backtrack[id] = true
		return
	}
	for i, t := range b.threads {
		if t.Enabled() {
			b.backtrack[i] = true
		}
	}
}

// Step advances the path to the next permutation. The deepest decision
// with an unexplored backtrack candidate is repointed at that candidate
// and everything recorded after it is discarded. Returns false when no
// such decision remains, meaning the search space is exhausted.
func (p *Path) Step() bool {
	for i := len(p.branches) - 1; i >= 0; i-- {
		b := p.branches[i]

		for t := range b.threads {
			if !b.backtrack[t] || b.explored[t] || !b.threads[t].Enabled() {
				continue
			}

			preemptions := p.preemptionsBefore(i)
			if p.preempts(i, t) {
				preemptions++
			}
			if p.preemptionBound >= 0 && preemptions > p.preemptionBound {
				continue
			}

			b.active = t
			b.explored[t] = true
			b.preemptions = preemptions
			p.branches = p.branches[:i+1]
			p.pos = 0
			return true
		}
	}
	return false
}

func (p *Path) preemptionsBefore(pos int) int {
	if pos == 0 {
		return 0
	}
	return p.branches[pos-1].preemptions
}

// preempts reports whether selecting thread t at decision pos interrupts a
// thread that could have kept running.
func (p *Path) preempts(pos int, t int) bool {
	prev := p.prevActive(pos)
	if prev < 0 || prev == t {
		return false
	}
	b := p.branches[pos]
	return prev < len(b.threads) && b.threads[prev].Enabled()
}

func (p *Path) prevActive(pos int) int {
	if pos == 0 {
		// The initial thread runs first in every permutation.
		return 0
	}
	return p.branches[pos-1].active
}

// BranchLimitError reports that a run took more scheduling decisions than
// the configured bound. The search space exceeded its bound; the outcome
// is distinct from a failed or a passed run.
type BranchLimitError struct {
	Max int
}

func (be BranchLimitError) Error() string {
	return fmt.Sprintf("path: exceeded maximum number of branches (%v)", be.Max)
}
