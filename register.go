package qsn

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"sync"
)

type gate [2][2]complex128

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	// H = 1/√2 * [1  1]
	//            [1 -1]
	hadamard = gate{
		{invSqrt2, invSqrt2},
		{invSqrt2, -invSqrt2},
	}

	// K = H·S†, maps |+i⟩ to |0⟩ and |-i⟩ to |1⟩.
	kgate = gate{
		{invSqrt2, -1i * invSqrt2},
		{invSqrt2, 1i * invSqrt2},
	}

	pauliX = gate{{0, 1}, {1, 0}}
	pauliY = gate{{0, -1i}, {1i, 0}}
	pauliZ = gate{{1, 0}, {0, -1}}
)

func phaseGate(theta float64) gate {
	return gate{{1, 0}, {0, cmplx.Exp(complex(0, theta))}}
}

/*
Register is a statevector over n qubits shared by the n parties of one
resource copy. Qubit q belongs to party q and is bit q of the amplitude
index. All methods are safe for concurrent use by the parties.
*/
type Register struct {
	mu     sync.Mutex
	n      int
	vector []complex128
	rng    *rand.Rand
}

func newRegister(n int, vector []complex128, rng *rand.Rand) *Register {
	return &Register{n: n, vector: vector, rng: rng}
}

// Amplitudes returns a copy of the current statevector.
func (r *Register) Amplitudes() []complex128 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]complex128(nil), r.vector...)
}

func (r *Register) apply(q int, g gate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mask := 1 << q
	for i := range r.vector {
		if i&mask != 0 {
			continue
		}
		j := i | mask
		a0, a1 := r.vector[i], r.vector[j]
		r.vector[i] = g[0][0]*a0 + g[0][1]*a1
		r.vector[j] = g[1][0]*a0 + g[1][1]*a1
	}
}

/*
measure projects qubit q onto the computational basis, renormalizes the
remaining amplitudes and returns the outcome.
*/
func (r *Register) measure(q int) Bit {
	r.mu.Lock()
	defer r.mu.Unlock()

	mask := 1 << q
	var p1, total float64
	for i, amplitude := range r.vector {
		prob := cmplx.Abs(amplitude)
		prob *= prob
		total += prob
		if i&mask != 0 {
			p1 += prob
		}
	}
	if total > 0 {
		p1 /= total
	}

	var outcome Bit
	if r.rng.Float64() < p1 {
		outcome = 1
	}

	keep := 1 - p1
	if outcome == 1 {
		keep = p1
	}
	norm := complex(1/math.Sqrt(keep*total), 0)

	for i := range r.vector {
		if (i&mask != 0) != (outcome == 1) {
			r.vector[i] = 0
			continue
		}
		r.vector[i] *= norm
	}

	return outcome
}

func ghzVector(n int) []complex128 {
	v := make([]complex128, 1<<n)
	v[0] = invSqrt2
	v[len(v)-1] = invSqrt2
	return v
}

func plusVector(n int) []complex128 {
	v := make([]complex128, 1<<n)
	amp := complex(1/math.Sqrt(float64(len(v))), 0)
	for i := range v {
		v[i] = amp
	}
	return v
}

// bellVector pairs qubits (0,1), (2,3), ... into Φ+ states. n must be even.
func bellVector(n int) []complex128 {
	v := make([]complex128, 1<<n)
	amp := complex(math.Pow(1/math.Sqrt2, float64(n/2)), 0)
	for i := range v {
		paired := true
		for q := 0; q < n; q += 2 {
			if (i>>q)&1 != (i>>(q+1))&1 {
				paired = false
				break
			}
		}
		if paired {
			v[i] = amp
		}
	}
	return v
}
