package qsn

import (
	"context"
	"fmt"
)

// VerifierConfig carries everything only the Verifier is allowed to see.
type VerifierConfig struct {
	Assignment  *Assignment
	Stabilizers *StabilizerSet
	Threshold   float64
	Sense       bool
	Phase       float64
	Logger      Logger
}

/*
Verifier is the machine of party 0. It walks the copies in order, tells every
Member what to do with each one, collects the test outcomes into the
measurement record and finally decides whether the round is accepted.
*/
type Verifier struct {
	party     Party
	transport Transport
	substrate Substrate
	cfg       VerifierConfig
	log       Logger

	state  MachineState
	copy   int
	peer   int
	share  Share
	slot   Slot
	target Share
	record *MeasurementRecord
	stats  FailureStatistics
	status Status
	parity int
}

/*
NewVerifier validates cfg and returns a machine in Distributing(0).

Parameters:
  - p: the Verifier's place on the line, always index 0
  - tr: transport to every Member
  - sub: substrate the copies come from
  - cfg: the assignment, the stabilizer set and the abort threshold

Returns:
  - *Verifier: the machine, not yet started
  - error: a ConfigurationError for a misplaced party, a missing plan, a set
    of the wrong width or a threshold outside (0, 1]
*/
func NewVerifier(p Party, tr Transport, sub Substrate, cfg VerifierConfig) (*Verifier, error) {
	if p.Index != 0 {
		return nil, configErrorf("the verifier must be party 0, got %d", p.Index)
	}
	if cfg.Assignment == nil || cfg.Stabilizers == nil {
		return nil, configErrorf("verifier needs an assignment and a stabilizer set")
	}
	if cfg.Stabilizers.Parties() != p.Count {
		return nil, configErrorf("stabilizers act on %d parties, line has %d", cfg.Stabilizers.Parties(), p.Count)
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, configErrorf("threshold %g outside (0, 1]", cfg.Threshold)
	}

	return &Verifier{
		party:     p,
		transport: tr,
		substrate: sub,
		cfg:       cfg,
		log:       orDiscard(cfg.Logger),
		state:     Distributing,
		record:    NewMeasurementRecord(cfg.Assignment.Rows(), p.Count),
	}, nil
}

// State returns the current machine state.
func (v *Verifier) State() MachineState {
	return v.state
}

// Run steps the machine until it reaches Done.
func (v *Verifier) Run(ctx context.Context) (Outcome, error) {
	for v.state != Done {
		if err := v.Step(ctx); err != nil {
			return Outcome{}, fmt.Errorf("%s in %s at copy %d: %w", v.party.Name(), v.state, v.copy, err)
		}
	}
	return v.outcome(), nil
}

// Step performs one state transition.
func (v *Verifier) Step(ctx context.Context) error {
	switch v.state {
	case Distributing:
		return v.distribute(ctx)
	case Dispatching:
		return v.dispatch(ctx)
	case AwaitingPeerResult:
		return v.awaitPeer(ctx)
	case Aggregating:
		return v.aggregate(ctx)
	case Sensing:
		v.parity = sense(v.target, v.cfg.Phase)
		v.log.Debug("sensed", "phase", v.cfg.Phase, "parity", v.parity)
		v.target = nil
		v.state = Done
		return nil
	case Done:
		return nil
	}
	return fmt.Errorf("verifier cannot be in state %s", v.state)
}

func (v *Verifier) distribute(ctx context.Context) error {
	if v.copy == v.cfg.Assignment.Total() {
		v.state = Aggregating
		return nil
	}

	share, err := v.substrate.CreateSharedUnit(ctx, v.party)
	if err != nil {
		return err
	}

	v.share = share
	v.slot = v.cfg.Assignment.At(v.copy)
	v.state = Dispatching
	return nil
}

func (v *Verifier) dispatch(ctx context.Context) error {
	var stab Stabilizer
	if v.slot.Action == ActionMeasure {
		var ok bool
		if stab, ok = v.cfg.Stabilizers.Get(v.slot.Key); !ok {
			return fmt.Errorf("copy %d scheduled with unknown stabilizer %s", v.copy, v.slot.Key)
		}
	}

	for member := 1; member < v.party.Count; member++ {
		if err := v.transport.Send(ctx, v.party.Index, member, ActionMessage(v.copy, v.slot.Action)); err != nil {
			return err
		}
		if v.slot.Action == ActionMeasure {
			if err := v.transport.Send(ctx, v.party.Index, member, BasisMessage(v.copy, stab.Basis(member))); err != nil {
				return err
			}
		}
	}

	switch v.slot.Action {
	case ActionMeasure:
		bit := measureIn(v.share, stab.Basis(v.party.Index))
		v.share.Release()
		v.share = nil
		if err := v.record.Set(v.slot.Row, v.party.Index, bit.Eigenvalue()); err != nil {
			return err
		}
		v.log.Debug("testing", "copy", v.copy, "stabilizer", stab.Key())
		v.peer = 1
		v.state = AwaitingPeerResult
		return nil
	case ActionKeep:
		v.log.Debug("keeping target", "copy", v.copy)
		v.target = v.share
	default:
		v.share.Release()
	}

	v.share = nil
	v.copy++
	v.state = Distributing
	return nil
}

func (v *Verifier) awaitPeer(ctx context.Context) error {
	msg, err := v.transport.Recv(ctx, v.party.Index, v.peer)
	if err != nil {
		return err
	}
	if err := expect(msg, KindBit); err != nil {
		return err
	}
	if msg.Copy != v.copy {
		return fmt.Errorf("Node_%d reported copy %d while testing copy %d", v.peer+1, msg.Copy, v.copy)
	}
	if err := v.record.Set(v.slot.Row, v.peer, msg.Bit.Eigenvalue()); err != nil {
		return err
	}

	v.peer++
	if v.peer == v.party.Count {
		v.copy++
		v.state = Distributing
	}
	return nil
}

func (v *Verifier) aggregate(ctx context.Context) error {
	v.record.Freeze()

	stats, err := Aggregate(v.record, v.cfg.Stabilizers)
	if err != nil {
		return err
	}
	v.stats = stats
	v.status = Verdict(stats, v.cfg.Threshold)

	v.log.Info("verdict", "status", v.status, "average", stats.Average, "tests", stats.Tests, "failures", stats.Failures)

	for member := 1; member < v.party.Count; member++ {
		if err := v.transport.Send(ctx, v.party.Index, member, VerdictMessage(v.status, stats.Average)); err != nil {
			return err
		}
	}

	switch {
	case v.status == StatusAborted:
		if v.target != nil {
			v.target.Release()
			v.target = nil
		}
		v.state = Done
	case v.cfg.Sense:
		v.state = Sensing
	default:
		v.state = Done
	}
	return nil
}

func (v *Verifier) outcome() Outcome {
	stats := v.stats
	return Outcome{
		Party:              v.party,
		Role:               RoleVerifier,
		AverageFailureRate: v.stats.Average,
		Status:             v.status,
		Retained:           v.target,
		Parity:             v.parity,
		Phase:              v.cfg.Phase,
		Record:             v.record,
		Stats:              &stats,
	}
}
