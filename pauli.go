package qsn

import "fmt"

// Pauli is a single-party Pauli observable, encoded 0..3.
type Pauli uint8

const (
	PauliI Pauli = iota
	PauliX
	PauliY
	PauliZ
)

func (p Pauli) String() string {
	switch p {
	case PauliI:
		return "I"
	case PauliX:
		return "X"
	case PauliY:
		return "Y"
	case PauliZ:
		return "Z"
	default:
		return fmt.Sprintf("Pauli(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the four labels.
func (p Pauli) Valid() bool {
	return p <= PauliZ
}

// ParsePauli decodes a single label character.
func ParsePauli(r rune) (Pauli, error) {
	switch r {
	case 'I':
		return PauliI, nil
	case 'X':
		return PauliX, nil
	case 'Y':
		return PauliY, nil
	case 'Z':
		return PauliZ, nil
	}
	return PauliI, fmt.Errorf("unknown pauli label %q", r)
}

/*
Phase counts factors of i picked up while multiplying Paulis, modulo 4.
Phase 0 is +1, 1 is +i, 2 is -1 and 3 is -i.
*/
type Phase uint8

func (ph Phase) add(o Phase) Phase {
	return (ph + o) % 4
}

// Real reports whether the phase is +1 or -1.
func (ph Phase) Real() bool {
	return ph%2 == 0
}

// Negative reports whether the phase is exactly -1.
func (ph Phase) Negative() bool {
	return ph%4 == 2
}

/*
PauliProduct multiplies the labels left to right and returns the resulting
label together with the accumulated phase.

The rules follow the encoding I=0, X=1, Y=2, Z=3:
  - a label times itself cancels to I
  - I times anything is that thing
  - a left operand two codes above the right one (Z·X) gives Y with one i
  - every other mixed pair gives the remaining label with one i, and an
    extra sign flip when the pair is anti-cyclic (Y·X, Z·Y, X·Z)
*/
func PauliProduct(ps ...Pauli) (Pauli, Phase) {
	result := PauliI
	var phase Phase

	for _, p := range ps {
		switch {
		case p == PauliI:
			continue
		case p == result:
			result = PauliI
		case result == PauliI:
			result = p
		case result-p == 2:
			// ZX = iY
			phase = phase.add(1)
			result = PauliY
		default:
			phase = phase.add(1)
			if anticyclic(result, p) {
				phase = phase.add(2)
			}
			result = 6 - result - p
		}
	}

	return result, phase
}

// anticyclic reports whether left·right runs against X→Y→Z→X.
func anticyclic(left, right Pauli) bool {
	return (left%3)+1 != right
}
