package qsn

import (
	"fmt"
	"math"
)

/*
Branch selects which arccos branch the inversion lands on. Index k covers
scale·|value| in [kπ, (k+1)π]; Negative mirrors the branch below zero.
*/
type Branch struct {
	Index    int  `yaml:"index"`
	Negative bool `yaml:"negative"`
}

/*
BranchFor picks the branch containing value.

This needs prior knowledge of the true value, so it is a simulation aid: the
protocol itself cannot tell two branches apart from p̂ alone.
*/
func BranchFor(value, scale float64) Branch {
	k := int(math.Floor(math.Abs(value) * scale / math.Pi))
	return Branch{Index: k, Negative: value < 0}
}

// SignFor returns σ, -1 when an odd number of parties flip the phase.
func SignFor(phaseFlips int) float64 {
	if phaseFlips%2 != 0 {
		return -1
	}
	return 1
}

// Probability is the forward model p = (1 + σ·cos(scale·value)) / 2.
func Probability(value, scale, sigma float64) float64 {
	return (1 + sigma*math.Cos(scale*value)) / 2
}

/*
Invert maps an observed p̂ back onto a value in branch b.

	φ     = arccos(clamp(σ(2p-1), -1, 1))
	value = ((-1)^k·φ + 2π·⌈k/2⌉) / scale

negated for negative branches.
*/
func Invert(p, scale, sigma float64, b Branch) float64 {
	c := math.Max(-1, math.Min(1, sigma*(2*p-1)))
	phi := math.Acos(c)

	k := b.Index
	if k%2 != 0 {
		phi = -phi
	}
	value := (phi + 2*math.Pi*float64((k+1)/2)) / scale

	if b.Negative {
		return -value
	}
	return value
}

// PhaseEstimate is the estimator state after one accepted round.
type PhaseEstimate struct {
	Value       float64 `yaml:"value"`
	Branch      Branch  `yaml:"branch"`
	Probability float64 `yaml:"p"`
	Accepted    int     `yaml:"accepted"`
}

/*
PhaseEstimator folds the sensing parities of accepted rounds into a running
estimate. It is not safe for concurrent use; the runner owns it.
*/
type PhaseEstimator struct {
	scale    float64
	sigma    float64
	branch   Branch
	accepted int
	positive int
	history  []PhaseEstimate
}

// NewPhaseEstimator inverts with the given scale, sign and branch.
func NewPhaseEstimator(scale, sigma float64, b Branch) *PhaseEstimator {
	return &PhaseEstimator{scale: scale, sigma: sigma, branch: b}
}

/*
NewAverageEstimator estimates the average of the parties' phases. The GHZ
parity oscillates with n times the average, so branches are π/n wide.
*/
func NewAverageEstimator(n int, truth float64, phaseFlips int) *PhaseEstimator {
	scale := float64(n)
	return NewPhaseEstimator(scale, SignFor(phaseFlips), BranchFor(truth, scale))
}

// NewDifferenceEstimator estimates the honest phase sum minus the sum of the
// bit-flipping parties' phases. Branches are π wide.
func NewDifferenceEstimator(truth float64) *PhaseEstimator {
	return NewPhaseEstimator(1, 1, BranchFor(truth, 1))
}

// CombinedParity multiplies the per-party sensing parities.
func CombinedParity(parities []int) (int, error) {
	if len(parities) == 0 {
		return 0, fmt.Errorf("no parities to combine")
	}
	product := 1
	for i, p := range parities {
		if p != 1 && p != -1 {
			return 0, fmt.Errorf("party %d reported parity %d", i, p)
		}
		product *= p
	}
	return product, nil
}

/*
Observe folds one round. Aborted rounds are skipped and reported as not
folded; accepted rounds must carry a ±1 parity from every party.
*/
func (e *PhaseEstimator) Observe(status Status, parities []int) (PhaseEstimate, bool, error) {
	if status != StatusAccepted {
		return e.Estimate(), false, nil
	}

	parity, err := CombinedParity(parities)
	if err != nil {
		return e.Estimate(), false, err
	}

	e.accepted++
	if parity == 1 {
		e.positive++
	}

	est := e.Estimate()
	e.history = append(e.history, est)
	return est, true, nil
}

// Estimate returns the current estimate. With nothing accepted yet it is zero.
func (e *PhaseEstimator) Estimate() PhaseEstimate {
	if e.accepted == 0 {
		return PhaseEstimate{Branch: e.branch}
	}
	p := float64(e.positive) / float64(e.accepted)
	return PhaseEstimate{
		Value:       Invert(p, e.scale, e.sigma, e.branch),
		Branch:      e.branch,
		Probability: p,
		Accepted:    e.accepted,
	}
}

// History returns the running estimates, one per accepted round.
func (e *PhaseEstimator) History() []PhaseEstimate {
	return append([]PhaseEstimate(nil), e.history...)
}

// Accepted returns the number of folded rounds.
func (e *PhaseEstimator) Accepted() int {
	return e.accepted
}
