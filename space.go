package qsn

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
)

// ResourceState is the multi-party state a Space distributes.
type ResourceState uint8

const (
	StateGHZ ResourceState = iota
	StatePlus
	StateBell
)

func (s ResourceState) String() string {
	switch s {
	case StateGHZ:
		return "ghz"
	case StatePlus:
		return "plus"
	case StateBell:
		return "bell"
	default:
		return fmt.Sprintf("ResourceState(%d)", uint8(s))
	}
}

// ParseResourceState accepts the names produced by String.
func ParseResourceState(s string) (ResourceState, error) {
	switch s {
	case "", "ghz":
		return StateGHZ, nil
	case "plus":
		return StatePlus, nil
	case "bell":
		return StateBell, nil
	}
	return StateGHZ, configErrorf("unknown resource state %q", s)
}

// unit is one copy being assembled while parties arrive.
type unit struct {
	arrived int
	waiting []chan *Register
}

/*
Space is an in-memory Substrate. Every party calls CreateSharedUnit once per
copy, in copy order; the last party to arrive prepares the joint register and
hands it to everybody waiting on that copy. Parties that arrive early block
until the handshake completes.

Distribution is ideal: the register is prepared directly instead of being
assembled from neighbour links, so no correction bits are exchanged.
*/
type Space struct {
	mu      sync.Mutex
	n       int
	state   ResourceState
	rng     *rand.Rand
	next    []int
	units   map[int]*unit
	created int
}

/*
NewSpace creates a simulated substrate for a line of n parties.

Parameters:
  - n: number of parties, between 2 and MaxSimulatedParties
  - state: resource state every copy starts in; Bell pairs need an even n
  - rng: source the measurement generators of every copy are drawn from

Returns:
  - *Space: a substrate with no copies created yet
  - error: a ConfigurationError when n or state cannot be simulated
*/
func NewSpace(n int, state ResourceState, rng *rand.Rand) (*Space, error) {
	if n < 2 {
		return nil, configErrorf("a shared resource needs at least 2 parties, got %d", n)
	}
	if n > MaxSimulatedParties {
		return nil, configErrorf("simulated substrate limited to %d parties, got %d", MaxSimulatedParties, n)
	}
	if state == StateBell && n%2 != 0 {
		return nil, configErrorf("bell pairs need an even number of parties, got %d", n)
	}
	return &Space{
		n:     n,
		state: state,
		rng:   rng,
		next:  make([]int, n),
		units: make(map[int]*unit),
	}, nil
}

// MaxSimulatedParties bounds the statevector size of the simulated substrate.
const MaxSimulatedParties = 20

// PauliShares marks every share handed out by a Space as a PauliShare.
func (qs *Space) PauliShares() {}

// Created returns the number of copies fully distributed so far.
func (qs *Space) Created() int {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.created
}

// CreateSharedUnit joins the handshake for this party's next copy.
func (qs *Space) CreateSharedUnit(ctx context.Context, p Party) (Share, error) {
	if p.Index < 0 || p.Index >= qs.n {
		return nil, fmt.Errorf("party %d outside line of %d", p.Index, qs.n)
	}
	// copies are assembled along the line's neighbour links
	if want := NewParty(p.Index, qs.n); p != want {
		return nil, fmt.Errorf("%s has neighbours %d/%d, line of %d expects %d/%d",
			p.Name(), p.Down, p.Up, qs.n, want.Down, want.Up)
	}

	ch := make(chan *Register, 1)

	qs.mu.Lock()
	copyIdx := qs.next[p.Index]
	qs.next[p.Index]++

	u, ok := qs.units[copyIdx]
	if !ok {
		u = &unit{}
		qs.units[copyIdx] = u
	}
	u.arrived++
	u.waiting = append(u.waiting, ch)

	if u.arrived == qs.n {
		reg := qs.prepare()
		for _, w := range u.waiting {
			w <- reg
		}
		delete(qs.units, copyIdx)
		qs.created++
	}
	qs.mu.Unlock()

	select {
	case reg := <-ch:
		return &simShare{reg: reg, qubit: p.Index}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("copy %d handshake for %s: %w", copyIdx, p.Name(), ctx.Err())
	}
}

// prepare builds a fresh register. Called with qs.mu held.
func (qs *Space) prepare() *Register {
	var v []complex128
	switch qs.state {
	case StatePlus:
		v = plusVector(qs.n)
	case StateBell:
		v = bellVector(qs.n)
	default:
		v = ghzVector(qs.n)
	}
	rng := rand.New(rand.NewPCG(qs.rng.Uint64(), qs.rng.Uint64()))
	return newRegister(qs.n, v, rng)
}

// simShare is one party's qubit inside a shared Register.
type simShare struct {
	reg      *Register
	qubit    int
	released bool
}

func (s *simShare) RotateToX() {
	s.reg.apply(s.qubit, hadamard)
}

func (s *simShare) RotateToY() {
	s.reg.apply(s.qubit, kgate)
}

func (s *simShare) RotateByAngle(theta float64) {
	s.reg.apply(s.qubit, phaseGate(theta))
}

func (s *simShare) Measure() Bit {
	return s.reg.measure(s.qubit)
}

func (s *simShare) Apply(p Pauli) {
	switch p {
	case PauliX:
		s.reg.apply(s.qubit, pauliX)
	case PauliY:
		s.reg.apply(s.qubit, pauliY)
	case PauliZ:
		s.reg.apply(s.qubit, pauliZ)
	}
}

// Release measures the qubit out so the other parties see it traced out.
func (s *simShare) Release() {
	if s.released {
		return
	}
	s.released = true
	s.reg.measure(s.qubit)
}
