package qsn

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// syncBuffer lets the party loggers write from their own goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runRound(cfg *Config, index int) (*Round, *RoundResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	round, err := NewRound(cfg, index, nil)
	if err != nil {
		return nil, nil, err
	}
	res, err := round.Run(ctx)
	return round, res, err
}

func TestHonestRound(t *testing.T) {
	Convey("Given 4 honest parties sharing GHZ copies", t, func() {
		cfg := NewConfig()
		So(cfg.TotalCopies(), ShouldEqual, 24)

		logs := &syncBuffer{}
		round, err := NewRound(cfg, 0, NewLogger(logs, "debug"))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()

		res, err := round.Run(ctx)
		So(err, ShouldBeNil)

		Convey("The Verifier spends 12 copies on tests, keeps 1 and discards 11", func() {
			So(round.Assignment.Tested(), ShouldEqual, 12)
			So(round.Assignment.Discarded(), ShouldEqual, 11)
			So(res.Record.Rows(), ShouldEqual, 12)
			So(res.Stats.Tests, ShouldEqual, 12)
		})

		Convey("No test fails and the round is accepted", func() {
			So(res.Average, ShouldEqual, 0.0)
			So(res.Status, ShouldEqual, StatusAccepted)
			for _, o := range res.Outcomes {
				So(o.Status, ShouldEqual, StatusAccepted)
				So(o.AverageFailureRate, ShouldEqual, 0.0)
			}
		})

		Convey("Sensing with zero phases gives an even parity", func() {
			So(res.Parities, ShouldHaveLength, 4)
			So(res.Parity, ShouldEqual, 1)
		})

		Convey("Only the Verifier holds the record", func() {
			So(res.Outcomes[0].Role, ShouldEqual, RoleVerifier)
			So(res.Outcomes[0].Record, ShouldNotBeNil)
			for _, o := range res.Outcomes[1:] {
				So(o.Role, ShouldEqual, RoleMember)
				So(o.Record, ShouldBeNil)
			}
		})

		Convey("Each party logs under its node name", func() {
			So(logs.String(), ShouldContainSubstring, "Node_1")
			So(logs.String(), ShouldContainSubstring, "Node_4")
			So(logs.String(), ShouldContainSubstring, "verdict")
		})
	})

	Convey("Given sensing phases that sum to π", t, func() {
		cfg := NewConfig()
		cfg.Phases = []float64{math.Pi / 4, math.Pi / 4, math.Pi / 4, math.Pi / 4}

		_, res, err := runRound(cfg, 3)
		So(err, ShouldBeNil)
		So(res.Status, ShouldEqual, StatusAccepted)
		So(res.Parity, ShouldEqual, -1)
	})

	Convey("Given sensing disabled", t, func() {
		cfg := NewConfig()
		cfg.Sense = false

		_, res, err := runRound(cfg, 1)
		So(err, ShouldBeNil)
		So(res.Status, ShouldEqual, StatusAccepted)
		So(res.Parities, ShouldBeNil)

		Convey("Every party keeps its target share", func() {
			for _, o := range res.Outcomes {
				So(o.Retained, ShouldNotBeNil)
				So(o.Parity, ShouldEqual, 0)
			}
		})
	})

	Convey("Given the random policy over the full group", t, func() {
		cfg := NewConfig()
		cfg.Parties = 3
		cfg.Policy = PolicyRandom
		cfg.Closure = ClosureFull
		cfg.NTest = 30

		round, res, err := runRound(cfg, 2)
		So(err, ShouldBeNil)
		So(round.Stabilizers.Len(), ShouldEqual, 8)
		So(round.Assignment.Total(), ShouldEqual, 60)
		So(res.Stats.Tests, ShouldEqual, 30)
		So(res.Average, ShouldEqual, 0.0)
		So(res.Status, ShouldEqual, StatusAccepted)
	})
}

func TestDishonestRound(t *testing.T) {
	Convey("Given one member that flips the phase of every copy", t, func() {
		cfg := NewConfig()
		cfg.Dishonest = DishonestConfig{Count: 1, Action: "phase-flip", Scope: "every-copy"}

		_, res, err := runRound(cfg, 0)
		So(err, ShouldBeNil)

		Convey("Every test fails and the round aborts", func() {
			So(res.Average, ShouldEqual, 1.0)
			So(res.Status, ShouldEqual, StatusAborted)
			for _, o := range res.Outcomes {
				So(o.Status, ShouldEqual, StatusAborted)
				So(o.Retained, ShouldBeNil)
				So(o.Parity, ShouldEqual, 0)
			}
		})
	})

	Convey("Given one member that flips the bit of every copy", t, func() {
		cfg := NewConfig()
		cfg.Dishonest = DishonestConfig{Count: 1, Action: "bit-flip", Scope: "every-copy"}

		_, res, err := runRound(cfg, 0)
		So(err, ShouldBeNil)

		Convey("The generators with Y on that member fail and the round aborts", func() {
			So(res.Average, ShouldBeGreaterThanOrEqualTo, 0.25)
			So(res.Status, ShouldEqual, StatusAborted)
			for _, s := range res.Stats.PerStabilizer {
				if s.Key == "XXXX" {
					So(s.Failures, ShouldEqual, 0)
				}
			}
		})
	})

	Convey("Given one member that only flips the phase of the target", t, func() {
		cfg := NewConfig()
		cfg.Dishonest = DishonestConfig{Count: 1, Action: "phase-flip", Scope: "target"}

		_, res, err := runRound(cfg, 0)
		So(err, ShouldBeNil)

		Convey("Verification passes but the sensing parity is flipped", func() {
			So(res.Status, ShouldEqual, StatusAccepted)
			So(res.Parity, ShouldEqual, -1)
		})
	})

	Convey("Given one member that only flips the bit of the target", t, func() {
		cfg := NewConfig()
		cfg.Dishonest = DishonestConfig{Count: 1, Action: "bit-flip", Scope: "target"}
		cfg.Phases = []float64{0.3, 0.3, 0.3, 0.9}

		_, res, err := runRound(cfg, 0)
		So(err, ShouldBeNil)

		Convey("The parity follows the honest sum minus the dishonest phase", func() {
			// 0.9 - 0.9 = 0, so the parity is deterministic.
			So(cfg.TruePhase(), ShouldAlmostEqual, 0, 1e-12)
			So(res.Status, ShouldEqual, StatusAccepted)
			So(res.Parity, ShouldEqual, 1)
		})
	})
}

func TestAlternativeStates(t *testing.T) {
	Convey("Given product |+> states instead of GHZ", t, func() {
		cfg := NewConfig()
		cfg.State = "plus"
		cfg.TestsPerGroup = 10

		_, res, err := runRound(cfg, 0)
		So(err, ShouldBeNil)
		So(res.Average, ShouldBeGreaterThan, 0.0)
		So(res.Status, ShouldEqual, StatusAborted)
	})

	Convey("Given Bell pairs instead of GHZ", t, func() {
		cfg := NewConfig()
		cfg.State = "bell"
		cfg.TestsPerGroup = 40

		_, res, err := runRound(cfg, 0)
		So(err, ShouldBeNil)
		So(res.Status, ShouldEqual, StatusAborted)

		Convey("The all-X generator still passes", func() {
			for _, s := range res.Stats.PerStabilizer {
				if s.Key == "XXXX" {
					So(s.Failures, ShouldEqual, 0)
				}
			}
		})
	})

	Convey("Given Bell pairs over an odd line", t, func() {
		cfg := NewConfig()
		cfg.Parties = 5
		cfg.State = "bell"

		_, _, err := runRound(cfg, 0)
		So(IsConfigurationError(err), ShouldBeTrue)
	})
}

func TestRoundCancellation(t *testing.T) {
	Convey("Given a round whose context is already cancelled", t, func() {
		round, err := NewRound(NewConfig(), 0, nil)
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = round.Run(ctx)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})

	Convey("Given a copy budget that cannot hold the tests", t, func() {
		cfg := NewConfig()
		cfg.Copies = 12

		_, err := NewRound(cfg, 0, nil)
		var cerr *ConfigurationError
		So(errors.As(err, &cerr), ShouldBeTrue)
	})
}
