package qsn

import (
	"fmt"
	"math"
	"math/big"
)

// StabilizerFailures is the outcome of testing a single stabilizer.
type StabilizerFailures struct {
	Key      string  `yaml:"stabilizer"`
	Tests    int     `yaml:"tests"`
	Failures int     `yaml:"failures"`
	Rate     float64 `yaml:"rate"`
}

/*
FailureStatistics summarises one round's tests. Average is the single scalar
that gates accept or abort.
*/
type FailureStatistics struct {
	PerStabilizer []StabilizerFailures `yaml:"per_stabilizer"`
	Tests         int                  `yaml:"tests"`
	Failures      int                  `yaml:"failures"`
	Average       float64              `yaml:"average"`
}

/*
Aggregate computes failure rates from a completed record.

For each row the eigenvalues of the positions measuring I are skipped, the
rest are multiplied and the product is negated for a negative stabilizer. Any
result other than +1 is a failure. Average is total failures over total tests,
which equals the mean of the per-stabilizer rates whenever every stabilizer was
tested the same number of times.
*/
func Aggregate(rec *MeasurementRecord, set *StabilizerSet) (FailureStatistics, error) {
	stats := FailureStatistics{}
	index := make(map[string]int)

	for row := 0; row < rec.Rows(); row++ {
		key := rec.Key(row)
		stab, ok := set.Get(key)
		if !ok {
			return stats, fmt.Errorf("record row %d tests unknown stabilizer %s", row, key)
		}

		i, seen := index[key]
		if !seen {
			i = len(stats.PerStabilizer)
			index[key] = i
			stats.PerStabilizer = append(stats.PerStabilizer, StabilizerFailures{Key: key})
		}

		entry := &stats.PerStabilizer[i]
		entry.Tests++
		stats.Tests++

		if parity(rec.Row(row), stab) != 1 {
			entry.Failures++
			stats.Failures++
		}
	}

	for i := range stats.PerStabilizer {
		entry := &stats.PerStabilizer[i]
		entry.Rate = float64(entry.Failures) / float64(entry.Tests)
	}
	if stats.Tests > 0 {
		stats.Average = float64(stats.Failures) / float64(stats.Tests)
	}

	return stats, nil
}

func parity(eigenvalues []int, stab Stabilizer) int {
	p := 1
	for party, e := range eigenvalues {
		if stab.Paulis[party] == PauliI {
			continue
		}
		p *= e
	}
	if stab.Negative {
		p = -p
	}
	return p
}

// Verdict accepts the round iff the average failure rate is strictly below
// the threshold.
func Verdict(stats FailureStatistics, threshold float64) Status {
	if stats.Average < threshold {
		return StatusAccepted
	}
	return StatusAborted
}

// GeneratorThreshold is the customary threshold when only generators are tested.
func GeneratorThreshold(n int) float64 {
	return 1 / (2 * float64(n) * float64(n))
}

// FullGroupThreshold is the customary threshold when the full group is tested.
func FullGroupThreshold(n int) float64 {
	return 1 / (2 * math.Pow(4, float64(n)))
}

/*
SoundnessBound evaluates

	S(Δ, N) = max_k  k / (2^(N-1) · N) · Σ_{x=0}^{min(Δ, k-1)} C(k-1, x)

for N = ntest tests and a tolerated number of failures Δ = delta.
*/
func SoundnessBound(ntest, delta int) float64 {
	if ntest < 1 || delta < 0 {
		return 0
	}

	denom := new(big.Int).Lsh(big.NewInt(1), uint(ntest-1))
	denom.Mul(denom, big.NewInt(int64(ntest)))

	best := new(big.Rat)
	for k := 0; k <= ntest; k++ {
		sum := new(big.Int)
		for x := 0; x <= min(delta, k-1); x++ {
			sum.Add(sum, new(big.Int).Binomial(int64(k-1), int64(x)))
		}
		num := new(big.Int).Mul(sum, big.NewInt(int64(k)))
		v := new(big.Rat).SetFrac(num, denom)
		if v.Cmp(best) > 0 {
			best = v
		}
	}

	f, _ := best.Float64()
	return f
}
