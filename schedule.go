package qsn

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// Action is what every party does with one copy of the shared resource.
type Action uint8

const (
	ActionDiscard Action = iota
	ActionMeasure
	ActionKeep
)

func (a Action) String() string {
	switch a {
	case ActionDiscard:
		return "discard"
	case ActionMeasure:
		return "measure"
	case ActionKeep:
		return "keep"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Valid reports whether a is one of the three tags.
func (a Action) Valid() bool {
	return a <= ActionKeep
}

// Slot is the scheduling decision for a single copy index.
type Slot struct {
	Action Action
	Key    string // stabilizer tested, only for ActionMeasure
	Row    int    // row in the measurement record, only for ActionMeasure
}

/*
Assignment partitions the copy indices of a round into tested copies, a single
target and an implicit discard set. Tested copies are grouped by stabilizer
key; the groups are pairwise disjoint and never contain the target.
*/
type Assignment struct {
	total  int
	target int
	groups []TestGroup
	slots  map[int]Slot
	rows   []string
}

// TestGroup is the set of copies spent on one stabilizer.
type TestGroup struct {
	Key    string
	Copies []int
}

// DefaultCopies is the copy budget used by the fixed-group policy:
// two copies per test slot, so roughly half of them are discarded.
func DefaultCopies(groups, testsPerGroup int) int {
	return 2 * groups * testsPerGroup
}

/*
Schedule assigns m disjoint groups of t copies, one group per stabilizer key,
then draws the target from what remains. Everything left in the pool is
discarded. keys must hold exactly m stabilizer keys.
*/
func Schedule(total int, keys []string, t int, rng *rand.Rand) (*Assignment, error) {
	m := len(keys)
	if m < 1 || t < 1 {
		return nil, configErrorf("need at least one group of at least one test, got m=%d t=%d", m, t)
	}
	if total <= m*t {
		return nil, configErrorf("%d copies cannot hold %d groups of %d tests plus a target", total, m, t)
	}

	pool := make([]int, total)
	for i := range pool {
		pool[i] = i
	}

	a := &Assignment{
		total: total,
		slots: make(map[int]Slot, m*t+1),
	}

	for _, key := range keys {
		group := TestGroup{Key: key, Copies: make([]int, 0, t)}
		for j := 0; j < t; j++ {
			c := draw(&pool, rng)
			group.Copies = append(group.Copies, c)
		}
		a.groups = append(a.groups, group)
	}

	a.target = draw(&pool, rng)
	a.index()

	return a, nil
}

/*
ScheduleRandom is the alternative policy: the target is drawn first, then
ntest copies are drawn from the remainder and each is tested against a key
chosen independently and uniformly from the set.
*/
func ScheduleRandom(total, ntest int, set *StabilizerSet, rng *rand.Rand) (*Assignment, error) {
	if ntest < 1 {
		return nil, configErrorf("need at least one test, got %d", ntest)
	}
	if total <= ntest {
		return nil, configErrorf("%d copies cannot hold %d tests plus a target", total, ntest)
	}
	if set == nil || set.Len() == 0 {
		return nil, configErrorf("random schedule needs a non-empty stabilizer set")
	}

	pool := make([]int, total)
	for i := range pool {
		pool[i] = i
	}

	a := &Assignment{
		total: total,
		slots: make(map[int]Slot, ntest+1),
	}
	a.target = draw(&pool, rng)

	byKey := make(map[string]int)
	for j := 0; j < ntest; j++ {
		c := draw(&pool, rng)
		key := set.keys[rng.IntN(set.Len())]
		gi, ok := byKey[key]
		if !ok {
			gi = len(a.groups)
			byKey[key] = gi
			a.groups = append(a.groups, TestGroup{Key: key})
		}
		a.groups[gi].Copies = append(a.groups[gi].Copies, c)
	}

	a.index()
	return a, nil
}

// draw removes and returns a uniformly random element of the pool.
func draw(pool *[]int, rng *rand.Rand) int {
	p := *pool
	i := rng.IntN(len(p))
	c := p[i]
	p[i] = p[len(p)-1]
	*pool = p[:len(p)-1]
	return c
}

// index builds the per-copy lookup. Record rows follow copy order so the
// Verifier fills the record front to back.
func (a *Assignment) index() {
	tested := make([]int, 0)
	keyOf := make(map[int]string)
	for _, g := range a.groups {
		for _, c := range g.Copies {
			tested = append(tested, c)
			keyOf[c] = g.Key
		}
	}
	slices.Sort(tested)

	a.rows = make([]string, len(tested))
	for row, c := range tested {
		a.slots[c] = Slot{Action: ActionMeasure, Key: keyOf[c], Row: row}
		a.rows[row] = keyOf[c]
	}
	a.slots[a.target] = Slot{Action: ActionKeep}
}

// Total is the number of copies created in the round.
func (a *Assignment) Total() int {
	return a.total
}

// At returns the decision for copy c.
func (a *Assignment) At(c int) Slot {
	if s, ok := a.slots[c]; ok {
		return s
	}
	return Slot{Action: ActionDiscard}
}

// Target returns the copy index kept for sensing.
func (a *Assignment) Target() int {
	return a.target
}

// Groups returns the test groups.
func (a *Assignment) Groups() []TestGroup {
	return a.groups
}

// Rows returns the stabilizer key tested by each record row.
func (a *Assignment) Rows() []string {
	return a.rows
}

// Tested returns the number of copies spent on tests.
func (a *Assignment) Tested() int {
	return len(a.rows)
}

// Discarded returns the number of copies released without use.
func (a *Assignment) Discarded() int {
	return a.total - len(a.rows) - 1
}
