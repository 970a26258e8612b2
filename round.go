package qsn

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/errnie"
	"golang.org/x/sync/errgroup"
)

/*
Round is one run of the protocol over a fresh line of parties. Everything the
Verifier decides up front (stabilizers and assignment) is fixed by NewRound,
so a ConfigurationError surfaces before any shared resource is created.
*/
type Round struct {
	ID          uuid.UUID
	Index       int
	Stabilizers *StabilizerSet
	Assignment  *Assignment

	cfg       *Config
	transport Transport
	substrate Substrate
	log       Logger
}

// RoundResult collects the outcomes of every party of a round.
type RoundResult struct {
	ID       string             `yaml:"id"`
	Index    int                `yaml:"index"`
	Status   Status             `yaml:"status"`
	Average  float64            `yaml:"average_failure_rate"`
	Stats    *FailureStatistics `yaml:"-"`
	Record   *MeasurementRecord `yaml:"-"`
	Outcomes []Outcome          `yaml:"-"`
	Parities []int              `yaml:"parities,omitempty"`
	Parity   int                `yaml:"parity"`
	Duration time.Duration      `yaml:"duration"`
}

// RoundRand is the generator of round index under seed. Rounds never share
// a generator, so the stabilizers, the assignment and the substrate seed of a
// round do not depend on how rounds are scheduled.
func RoundRand(seed uint64, index int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(index)))
}

// NewRound prepares round index with the in-memory Mesh and Space.
func NewRound(cfg *Config, index int, logger Logger) (*Round, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := RoundRand(cfg.Seed, index)

	state, err := ParseResourceState(cfg.State)
	if err != nil {
		return nil, err
	}

	r, err := newRound(cfg, index, rng, logger)
	if err != nil {
		return nil, err
	}

	space, err := NewSpace(cfg.Parties, state, rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64())))
	if err != nil {
		return nil, err
	}

	r.transport = NewMesh(cfg.Parties)
	r.substrate = space
	return r, nil
}

// NewRoundWith prepares a round over caller-supplied collaborators.
func NewRoundWith(cfg *Config, index int, tr Transport, sub Substrate, logger Logger) (*Round, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r, err := newRound(cfg, index, RoundRand(cfg.Seed, index), logger)
	if err != nil {
		return nil, err
	}
	r.transport = tr
	r.substrate = sub
	return r, nil
}

func newRound(cfg *Config, index int, rng *rand.Rand, logger Logger) (*Round, error) {
	var (
		set *StabilizerSet
		err error
	)
	if cfg.Closure == ClosureFull {
		set, err = FullGroup(cfg.Parties, rng)
	} else {
		set, err = GeneratorSet(cfg.Parties, rng)
	}
	if err != nil {
		return nil, err
	}

	var plan *Assignment
	if cfg.Policy == PolicyRandom {
		plan, err = ScheduleRandom(cfg.TotalCopies(), cfg.NTest, set, rng)
	} else {
		var keys []string
		if keys, err = set.Pick(cfg.GroupCount(), rng); err != nil {
			return nil, err
		}
		plan, err = Schedule(cfg.TotalCopies(), keys, cfg.TestsPerGroup, rng)
	}
	if err != nil {
		return nil, err
	}

	return &Round{
		ID:          uuid.New(),
		Index:       index,
		Stabilizers: set,
		Assignment:  plan,
		cfg:         cfg,
		log:         orDiscard(logger),
	}, nil
}

// Machines builds the state machine of every party, Verifier first.
func (r *Round) Machines() ([]Machine, error) {
	n := r.cfg.Parties
	adv, err := r.cfg.Adversary()
	if err != nil {
		return nil, err
	}

	machines := make([]Machine, n)
	for i := 0; i < n; i++ {
		p := NewParty(i, n)
		l := partyLogger(r.log, p, r.ID.String())

		if i == 0 {
			v, err := NewVerifier(p, r.transport, r.substrate, VerifierConfig{
				Assignment:  r.Assignment,
				Stabilizers: r.Stabilizers,
				Threshold:   r.cfg.ResolvedThreshold(),
				Sense:       r.cfg.Sense,
				Phase:       r.cfg.Phase(i),
				Logger:      l,
			})
			if err != nil {
				return nil, err
			}
			machines[i] = v
			continue
		}

		mc := MemberConfig{
			Copies: r.Assignment.Total(),
			Sense:  r.cfg.Sense,
			Phase:  r.cfg.Phase(i),
			Logger: l,
		}
		if r.cfg.IsDishonest(i) {
			mc.Adversary = adv
		}
		m, err := NewMember(p, r.transport, r.substrate, mc)
		if err != nil {
			return nil, err
		}
		machines[i] = m
	}
	return machines, nil
}

/*
Run drives every party on its own goroutine until all reach Done. The first
party error cancels the others; no party is restarted.
*/
func (r *Round) Run(ctx context.Context) (*RoundResult, error) {
	machines, err := r.Machines()
	if err != nil {
		return nil, err
	}

	errnie.Info("round %d (%s) starting - %d parties, %d copies, %d tests", r.Index, r.ID, len(machines), r.Assignment.Total(), r.Assignment.Tested())
	start := time.Now()

	outcomes := make([]Outcome, len(machines))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range machines {
		g.Go(func() error {
			o, err := m.Run(gctx)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("round %d: %w", r.Index, err)
	}

	verifier := outcomes[0]
	res := &RoundResult{
		ID:       r.ID.String(),
		Index:    r.Index,
		Status:   verifier.Status,
		Average:  verifier.AverageFailureRate,
		Stats:    verifier.Stats,
		Record:   verifier.Record,
		Outcomes: outcomes,
		Duration: time.Since(start),
	}

	if res.Status == StatusAccepted && r.cfg.Sense {
		res.Parities = make([]int, len(outcomes))
		for i, o := range outcomes {
			res.Parities[i] = o.Parity
		}
		if res.Parity, err = CombinedParity(res.Parities); err != nil {
			return nil, fmt.Errorf("round %d: %w", r.Index, err)
		}
	}

	errnie.Info("round %d (%s) %s - average failure rate %g", r.Index, r.ID, res.Status, res.Average)
	return res, nil
}
