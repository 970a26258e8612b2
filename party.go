package qsn

import (
	"context"
	"fmt"
)

// Role distinguishes the coordinating party from the others.
type Role uint8

const (
	RoleVerifier Role = iota
	RoleMember
)

func (r Role) String() string {
	if r == RoleVerifier {
		return "verifier"
	}
	return "member"
}

// NoNeighbor marks the open ends of the line.
const NoNeighbor = -1

/*
Party is one position on the line topology. Party 0 is always the Verifier.
Down and Up are the neighbours in the distribution chain, NoNeighbor at the
ends of the line.
*/
type Party struct {
	Index int
	Count int
	Down  int
	Up    int
}

// NewParty places index on a line of count parties.
func NewParty(index, count int) Party {
	p := Party{Index: index, Count: count, Down: NoNeighbor, Up: NoNeighbor}
	if index > 0 {
		p.Down = index - 1
	}
	if index < count-1 {
		p.Up = index + 1
	}
	return p
}

// Role derives the role from the line position.
func (p Party) Role() Role {
	if p.Index == 0 {
		return RoleVerifier
	}
	return RoleMember
}

// Name is the node name used in logs, Node_1 for the Verifier.
func (p Party) Name() string {
	return fmt.Sprintf("Node_%d", p.Index+1)
}

// Behavior is how a member treats the shares it receives.
type Behavior uint8

const (
	Honest Behavior = iota
	PhaseFlip
	BitFlip
)

func (b Behavior) String() string {
	switch b {
	case Honest:
		return "honest"
	case PhaseFlip:
		return "phase-flip"
	case BitFlip:
		return "bit-flip"
	default:
		return fmt.Sprintf("Behavior(%d)", uint8(b))
	}
}

// ParseBehavior accepts the names produced by String.
func ParseBehavior(s string) (Behavior, error) {
	switch s {
	case "", "honest":
		return Honest, nil
	case "phase-flip", "phaseflip", "z":
		return PhaseFlip, nil
	case "bit-flip", "bitflip", "x":
		return BitFlip, nil
	}
	return Honest, configErrorf("unknown behaviour %q", s)
}

// TamperScope selects which shares a dishonest member tampers with.
type TamperScope uint8

const (
	// TamperTarget only touches the retained share, after verification.
	TamperTarget TamperScope = iota
	// TamperEveryCopy touches every share as soon as it is distributed.
	TamperEveryCopy
)

func (s TamperScope) String() string {
	if s == TamperEveryCopy {
		return "every-copy"
	}
	return "target"
}

// ParseTamperScope accepts the names produced by String.
func ParseTamperScope(s string) (TamperScope, error) {
	switch s {
	case "", "target":
		return TamperTarget, nil
	case "every-copy", "all":
		return TamperEveryCopy, nil
	}
	return TamperTarget, configErrorf("unknown tamper scope %q", s)
}

// Adversary is the dishonest configuration of a single member.
type Adversary struct {
	Behavior Behavior
	Scope    TamperScope
}

func (a Adversary) pauli() Pauli {
	switch a.Behavior {
	case PhaseFlip:
		return PauliZ
	case BitFlip:
		return PauliX
	default:
		return PauliI
	}
}

// tamper applies the adversarial Pauli to share when the configured scope is scope.
func (a Adversary) tamper(share Share, scope TamperScope) {
	if a.Behavior == Honest || share == nil || a.Scope != scope {
		return
	}
	if ps, ok := share.(PauliShare); ok {
		ps.Apply(a.pauli())
	}
}

// MachineState is a state of a party's protocol machine.
type MachineState uint8

const (
	Distributing MachineState = iota
	Dispatching
	AwaitingAction
	AwaitingBasis
	AwaitingPeerResult
	Aggregating
	AwaitingVerdict
	Sensing
	Done
)

func (s MachineState) String() string {
	switch s {
	case Distributing:
		return "distributing"
	case Dispatching:
		return "dispatching"
	case AwaitingAction:
		return "awaiting-action"
	case AwaitingBasis:
		return "awaiting-basis"
	case AwaitingPeerResult:
		return "awaiting-peer-result"
	case Aggregating:
		return "aggregating"
	case AwaitingVerdict:
		return "awaiting-verdict"
	case Sensing:
		return "sensing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("MachineState(%d)", uint8(s))
	}
}

// Machine is the per-party protocol driver. Run blocks until Done.
type Machine interface {
	Step(ctx context.Context) error
	State() MachineState
	Run(ctx context.Context) (Outcome, error)
}

/*
Outcome is what a party holds once its machine reaches Done.

Retained is the target share when the round was accepted without sensing,
nil otherwise. Parity is the ±1 sensing result, 0 when no sensing happened.
Record and Stats are only set for the Verifier.
*/
type Outcome struct {
	Party              Party
	Role               Role
	AverageFailureRate float64
	Status             Status
	Retained           Share
	Parity             int
	Phase              float64
	Record             *MeasurementRecord
	Stats              *FailureStatistics
}

// measureIn rotates share into the eigenbasis of basis and reads it out.
// I is not measured and reports outcome 0.
func measureIn(share Share, basis Pauli) Bit {
	switch basis {
	case PauliI:
		return 0
	case PauliX:
		share.RotateToX()
	case PauliY:
		share.RotateToY()
	}
	return share.Measure()
}

// sense encodes theta on share, reads it out in the X basis and returns the parity.
func sense(share Share, theta float64) int {
	share.RotateByAngle(theta)
	share.RotateToX()
	return share.Measure().Eigenvalue()
}
