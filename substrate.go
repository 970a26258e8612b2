package qsn

import "context"

/*
Substrate distributes one copy of the shared multi-party resource. The call
suspends until every party of the line has reached the same handshake for
the same copy, then hands back this party's local share.
*/
type Substrate interface {
	CreateSharedUnit(ctx context.Context, p Party) (Share, error)
}

/*
Share is one party's local part of a shared resource copy.

RotateToX and RotateToY map the X or Y eigenbasis onto the computational
basis so that Measure reads out that observable. RotateByAngle is the phase
encoding used by the sensing step. Release gives the share back to the
substrate; a released share must not be used again.
*/
type Share interface {
	RotateToX()
	RotateToY()
	RotateByAngle(theta float64)
	Measure() Bit
	Release()
}

// PauliShare is implemented by shares that accept raw Pauli operations.
// Only adversarial member behaviours need it.
type PauliShare interface {
	Share
	Apply(p Pauli)
}

// PauliSubstrate marks a Substrate whose shares all implement PauliShare.
type PauliSubstrate interface {
	Substrate
	PauliShares()
}
