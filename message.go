package qsn

import "fmt"

// Bit is a single measurement outcome.
type Bit uint8

// Eigenvalue maps outcome 0 to +1 and 1 to -1.
func (b Bit) Eigenvalue() int {
	if b&1 == 0 {
		return 1
	}
	return -1
}

// Status is the outcome of the accept/abort decision.
type Status uint8

const (
	StatusAccepted Status = iota
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusAborted:
		return "aborted"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// MarshalYAML writes the status by name in reports.
func (s Status) MarshalYAML() (any, error) {
	return s.String(), nil
}

// MessageKind tags the payload carried by a Message.
type MessageKind uint8

const (
	KindAction MessageKind = iota
	KindBasis
	KindBit
	KindVerdict
)

func (k MessageKind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindBasis:
		return "basis"
	case KindBit:
		return "bit"
	case KindVerdict:
		return "verdict"
	default:
		return fmt.Sprintf("MessageKind(%d)", uint8(k))
	}
}

/*
Message is one classical value exchanged between the Verifier and a Member.
Only the field selected by Kind is meaningful.
*/
type Message struct {
	Kind   MessageKind
	Copy   int
	Action Action
	Basis  Pauli
	Bit    Bit
	Status Status
	Rate   float64
}

func ActionMessage(copy int, a Action) Message {
	return Message{Kind: KindAction, Copy: copy, Action: a}
}

func BasisMessage(copy int, p Pauli) Message {
	return Message{Kind: KindBasis, Copy: copy, Basis: p}
}

func BitMessage(copy int, b Bit) Message {
	return Message{Kind: KindBit, Copy: copy, Bit: b}
}

func VerdictMessage(s Status, rate float64) Message {
	return Message{Kind: KindVerdict, Status: s, Rate: rate}
}

func (m Message) String() string {
	switch m.Kind {
	case KindAction:
		return fmt.Sprintf("action(copy=%d, %s)", m.Copy, m.Action)
	case KindBasis:
		return fmt.Sprintf("basis(copy=%d, %s)", m.Copy, m.Basis)
	case KindBit:
		return fmt.Sprintf("bit(copy=%d, %d)", m.Copy, m.Bit)
	case KindVerdict:
		return fmt.Sprintf("verdict(%s, rate=%g)", m.Status, m.Rate)
	default:
		return m.Kind.String()
	}
}

// expect checks that a received message carries the given kind.
func expect(m Message, kind MessageKind) error {
	if m.Kind != kind {
		return fmt.Errorf("expected %s message, got %s", kind, m)
	}
	return nil
}
