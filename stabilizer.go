package qsn

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// MaxFullGroupParties bounds the exponential closure construction.
const MaxFullGroupParties = 16

// ErrNonHermitian is returned when a product of stabilizers picks up an
// imaginary phase, which only happens for anticommuting inputs.
var ErrNonHermitian = errors.New("stabilizer product is not hermitian")

/*
Stabilizer is a signed multi-party Pauli observable. Paulis always has one
entry per party.
*/
type Stabilizer struct {
	Paulis   []Pauli
	Negative bool
}

// Len returns the number of parties the stabilizer acts on.
func (s Stabilizer) Len() int {
	return len(s.Paulis)
}

// Key is the canonical string form, e.g. "-XYYX" or "XXXX".
func (s Stabilizer) Key() string {
	var b strings.Builder
	b.Grow(len(s.Paulis) + 1)
	if s.Negative {
		b.WriteByte('-')
	}
	for _, p := range s.Paulis {
		b.WriteString(p.String())
	}
	return b.String()
}

func (s Stabilizer) String() string {
	return s.Key()
}

// Identity reports whether every position is I.
func (s Stabilizer) Identity() bool {
	for _, p := range s.Paulis {
		if p != PauliI {
			return false
		}
	}
	return true
}

// Basis returns the label measured by the given party.
func (s Stabilizer) Basis(party int) Pauli {
	return s.Paulis[party]
}

// ParseStabilizer decodes a canonical key back into a Stabilizer.
func ParseStabilizer(key string) (Stabilizer, error) {
	s := Stabilizer{}
	if strings.HasPrefix(key, "-") {
		s.Negative = true
		key = key[1:]
	}
	if key == "" {
		return s, fmt.Errorf("empty stabilizer")
	}
	for _, r := range key {
		p, err := ParsePauli(r)
		if err != nil {
			return s, err
		}
		s.Paulis = append(s.Paulis, p)
	}
	return s, nil
}

/*
Generators builds the n stabilizer generators of the n-party GHZ state.

A random pair of cyclically adjacent parties measures Y while every other
party measures X, and the pair walks one position to the right for each of the
n-1 negative generators. The last generator is always the unsigned all-X
string. For n = 5 starting at parties 2 and 3 the output is
-XXYYX, -XXXYY, -YXXXY, -YYXXX, XXXXX.
*/
func Generators(n int, rng *rand.Rand) ([]Stabilizer, error) {
	if n < 2 {
		return nil, configErrorf("generators need at least 2 parties, got %d", n)
	}

	y1 := rng.IntN(n)
	y2 := (y1 + 1) % n

	out := make([]Stabilizer, 0, n)
	for s := 1; s <= n; s++ {
		paulis := make([]Pauli, n)
		for i := range paulis {
			paulis[i] = PauliX
		}

		if s == n {
			out = append(out, Stabilizer{Paulis: paulis})
			break
		}

		switch {
		case y1 == 0:
			// first two parties
			paulis[0], paulis[1] = PauliY, PauliY
		case y2 == 0:
			// wraps around: first and last party
			paulis[0], paulis[n-1] = PauliY, PauliY
		default:
			paulis[y1], paulis[y2] = PauliY, PauliY
		}

		out = append(out, Stabilizer{Paulis: paulis, Negative: true})
		y1, y2 = y2, (y2+1)%n
	}

	return out, nil
}

/*
Product multiplies stabilizers position by position. The sign starts as the
XOR of the input signs and absorbs the phase picked up at every position.
*/
func Product(stabs ...Stabilizer) (Stabilizer, error) {
	if len(stabs) == 0 {
		return Stabilizer{}, fmt.Errorf("product of no stabilizers")
	}

	n := stabs[0].Len()
	negative := false
	for _, s := range stabs {
		if s.Len() != n {
			return Stabilizer{}, fmt.Errorf("stabilizer %s has %d positions, want %d", s, s.Len(), n)
		}
		negative = negative != s.Negative
	}

	out := Stabilizer{Paulis: make([]Pauli, n)}
	column := make([]Pauli, len(stabs))
	var phase Phase

	for i := 0; i < n; i++ {
		for j, s := range stabs {
			column[j] = s.Paulis[i]
		}
		p, ph := PauliProduct(column...)
		out.Paulis[i] = p
		phase = phase.add(ph)
	}

	if !phase.Real() {
		return Stabilizer{}, ErrNonHermitian
	}
	out.Negative = negative != phase.Negative()

	return out, nil
}

/*
StabilizerSet is an ordered collection of stabilizers keyed by their canonical
string. Order is insertion order and is what the scheduler and the record use
to address rows.
*/
type StabilizerSet struct {
	parties int
	keys    []string
	byKey   map[string]Stabilizer
}

// NewStabilizerSet returns an empty set for the given party count.
func NewStabilizerSet(parties int) *StabilizerSet {
	return &StabilizerSet{
		parties: parties,
		byKey:   make(map[string]Stabilizer),
	}
}

// Add inserts s unless a stabilizer with the same key is already present.
// It reports whether s was new.
func (set *StabilizerSet) Add(s Stabilizer) bool {
	key := s.Key()
	if _, ok := set.byKey[key]; ok {
		return false
	}
	set.keys = append(set.keys, key)
	set.byKey[key] = s
	return true
}

// Parties returns the party count every member acts on.
func (set *StabilizerSet) Parties() int {
	return set.parties
}

// Len returns the number of distinct stabilizers.
func (set *StabilizerSet) Len() int {
	return len(set.keys)
}

// Keys returns the keys in insertion order.
func (set *StabilizerSet) Keys() []string {
	return append([]string(nil), set.keys...)
}

// At returns the i-th stabilizer in insertion order.
func (set *StabilizerSet) At(i int) Stabilizer {
	return set.byKey[set.keys[i]]
}

// Get looks a stabilizer up by key.
func (set *StabilizerSet) Get(key string) (Stabilizer, bool) {
	s, ok := set.byKey[key]
	return s, ok
}

/*
Pick draws count distinct stabilizers from the set without replacement.
Asking for more than the set holds (at most 2^N for a full closure) is a
configuration error.
*/
func (set *StabilizerSet) Pick(count int, rng *rand.Rand) ([]string, error) {
	if count > len(set.keys) {
		return nil, configErrorf("requested %d stabilizers but only %d exist for %d parties",
			count, len(set.keys), set.parties)
	}
	perm := rng.Perm(len(set.keys))
	out := make([]string, count)
	for i := range out {
		out[i] = set.keys[perm[i]]
	}
	return out, nil
}

// GeneratorSet wraps Generators in a StabilizerSet.
func GeneratorSet(n int, rng *rand.Rand) (*StabilizerSet, error) {
	gens, err := Generators(n, rng)
	if err != nil {
		return nil, err
	}
	set := NewStabilizerSet(n)
	for _, g := range gens {
		set.Add(g)
	}
	return set, nil
}

/*
FullGroup builds the complete stabilizer group of the n-party GHZ state: the
generators, the identity and the product of every k-subset of generators for
k = 2..n. The result always has 2^n elements.

The construction enumerates all subsets and is exponential in n on purpose;
the group itself has 2^n elements, so n is capped at MaxFullGroupParties.
*/
func FullGroup(n int, rng *rand.Rand) (*StabilizerSet, error) {
	if n > MaxFullGroupParties {
		return nil, configErrorf("full stabilizer group limited to %d parties, got %d",
			MaxFullGroupParties, n)
	}

	gens, err := Generators(n, rng)
	if err != nil {
		return nil, err
	}

	set := NewStabilizerSet(n)
	for _, g := range gens {
		set.Add(g)
	}
	set.Add(Stabilizer{Paulis: make([]Pauli, n)})

	picked := make([]Stabilizer, 0, n)
	for k := 2; k <= n; k++ {
		var walkErr error
		combinations(len(gens), k, func(idx []int) bool {
			picked = picked[:0]
			for _, i := range idx {
				picked = append(picked, gens[i])
			}
			prod, err := Product(picked...)
			if err != nil {
				walkErr = err
				return false
			}
			set.Add(prod)
			return true
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}

	return set, nil
}

// combinations calls fn with every k-subset of [0,n) in lexicographic order
// until fn returns false.
func combinations(n, k int, fn func([]int) bool) {
	if k > n || k <= 0 {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(idx) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
