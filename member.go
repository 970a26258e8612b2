package qsn

import (
	"context"
	"fmt"
)

// MemberConfig is the local knowledge of a Member: how many copies the round
// creates, how it senses and whether it cheats.
type MemberConfig struct {
	Copies    int
	Adversary Adversary
	Sense     bool
	Phase     float64
	Logger    Logger
}

/*
Member is the machine of parties 1..N-1. It never sees the stabilizer set or
the assignment, only the action tag and its own basis label for each copy.
*/
type Member struct {
	party     Party
	transport Transport
	substrate Substrate
	cfg       MemberConfig
	log       Logger

	state  MachineState
	copy   int
	share  Share
	target Share
	status Status
	rate   float64
	parity int
}

// NewMember returns a machine in Distributing(0).
func NewMember(p Party, tr Transport, sub Substrate, cfg MemberConfig) (*Member, error) {
	if p.Index < 1 || p.Index >= p.Count {
		return nil, configErrorf("member index %d outside 1..%d", p.Index, p.Count-1)
	}
	if cfg.Copies < 1 {
		return nil, configErrorf("a round needs at least one copy, got %d", cfg.Copies)
	}
	if cfg.Adversary.Behavior != Honest {
		if _, ok := sub.(PauliSubstrate); !ok {
			return nil, configErrorf("%s behaviour needs a substrate with Pauli access", cfg.Adversary.Behavior)
		}
	}

	return &Member{
		party:     p,
		transport: tr,
		substrate: sub,
		cfg:       cfg,
		log:       orDiscard(cfg.Logger),
		state:     Distributing,
	}, nil
}

// State returns the current machine state.
func (m *Member) State() MachineState {
	return m.state
}

// Run steps the machine until it reaches Done.
func (m *Member) Run(ctx context.Context) (Outcome, error) {
	for m.state != Done {
		if err := m.Step(ctx); err != nil {
			return Outcome{}, fmt.Errorf("%s in %s at copy %d: %w", m.party.Name(), m.state, m.copy, err)
		}
	}
	return m.outcome(), nil
}

// Step performs one state transition.
func (m *Member) Step(ctx context.Context) error {
	switch m.state {
	case Distributing:
		return m.distribute(ctx)
	case AwaitingAction:
		return m.awaitAction(ctx)
	case AwaitingBasis:
		return m.awaitBasis(ctx)
	case AwaitingVerdict:
		return m.awaitVerdict(ctx)
	case Sensing:
		m.cfg.Adversary.tamper(m.target, TamperTarget)
		m.parity = sense(m.target, m.cfg.Phase)
		m.log.Debug("sensed", "phase", m.cfg.Phase, "parity", m.parity)
		m.target = nil
		m.state = Done
		return nil
	case Done:
		return nil
	}
	return fmt.Errorf("member cannot be in state %s", m.state)
}

func (m *Member) distribute(ctx context.Context) error {
	if m.copy == m.cfg.Copies {
		m.state = AwaitingVerdict
		return nil
	}

	share, err := m.substrate.CreateSharedUnit(ctx, m.party)
	if err != nil {
		return err
	}
	m.cfg.Adversary.tamper(share, TamperEveryCopy)

	m.share = share
	m.state = AwaitingAction
	return nil
}

func (m *Member) recv(ctx context.Context, kind MessageKind) (Message, error) {
	msg, err := m.transport.Recv(ctx, m.party.Index, 0)
	if err != nil {
		return msg, err
	}
	if err := expect(msg, kind); err != nil {
		return msg, err
	}
	if kind != KindVerdict && msg.Copy != m.copy {
		return msg, fmt.Errorf("verifier sent copy %d while this party is on copy %d", msg.Copy, m.copy)
	}
	return msg, nil
}

func (m *Member) awaitAction(ctx context.Context) error {
	msg, err := m.recv(ctx, KindAction)
	if err != nil {
		return err
	}

	switch msg.Action {
	case ActionMeasure:
		m.state = AwaitingBasis
		return nil
	case ActionKeep:
		m.target = m.share
	case ActionDiscard:
		m.share.Release()
	default:
		return fmt.Errorf("unknown action tag %d", msg.Action)
	}

	m.log.Debug("copy handled", "copy", m.copy, "action", msg.Action)
	m.share = nil
	m.copy++
	m.state = Distributing
	return nil
}

func (m *Member) awaitBasis(ctx context.Context) error {
	msg, err := m.recv(ctx, KindBasis)
	if err != nil {
		return err
	}
	if !msg.Basis.Valid() {
		return fmt.Errorf("unknown basis label %d", msg.Basis)
	}

	bit := measureIn(m.share, msg.Basis)
	m.share.Release()
	m.share = nil

	if err := m.transport.Send(ctx, m.party.Index, 0, BitMessage(m.copy, bit)); err != nil {
		return err
	}

	m.log.Debug("measured", "copy", m.copy, "basis", msg.Basis, "bit", bit)
	m.copy++
	m.state = Distributing
	return nil
}

func (m *Member) awaitVerdict(ctx context.Context) error {
	msg, err := m.recv(ctx, KindVerdict)
	if err != nil {
		return err
	}

	m.status = msg.Status
	m.rate = msg.Rate
	m.log.Info("verdict", "status", m.status, "average", m.rate)

	switch {
	case m.status == StatusAborted:
		if m.target != nil {
			m.target.Release()
			m.target = nil
		}
		m.state = Done
	case m.cfg.Sense:
		m.state = Sensing
	default:
		m.state = Done
	}
	return nil
}

func (m *Member) outcome() Outcome {
	return Outcome{
		Party:              m.party,
		Role:               RoleMember,
		AverageFailureRate: m.rate,
		Status:             m.status,
		Retained:           m.target,
		Parity:             m.parity,
		Phase:              m.cfg.Phase,
	}
}
