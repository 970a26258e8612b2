package qsn

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

const testTimeout = 5 * time.Second

// measureParity measures every qubit of reg in the given bases and multiplies the
// eigenvalues.
func measureParity(reg *Register, bases string) int {
	product := 1
	for q, r := range bases {
		switch r {
		case 'X':
			reg.apply(q, hadamard)
		case 'Y':
			reg.apply(q, kgate)
		case 'I':
			continue
		}
		product *= reg.measure(q).Eigenvalue()
	}
	return product
}

func TestRegister(t *testing.T) {
	Convey("Given a 4-qubit GHZ register", t, func() {
		Convey("Every generator measures +1", func() {
			for seed := uint64(0); seed < 50; seed++ {
				So(measureParity(newRegister(4, ghzVector(4), testRand(seed)), "XXXX"), ShouldEqual, 1)
				So(-measureParity(newRegister(4, ghzVector(4), testRand(seed)), "YYXX"), ShouldEqual, 1)
				So(-measureParity(newRegister(4, ghzVector(4), testRand(seed)), "XYYX"), ShouldEqual, 1)
				So(-measureParity(newRegister(4, ghzVector(4), testRand(seed)), "YXXY"), ShouldEqual, 1)
				So(measureParity(newRegister(4, ghzVector(4), testRand(seed)), "ZIZI"), ShouldEqual, 1)
			}
		})

		Convey("Computational basis outcomes agree", func() {
			for seed := uint64(0); seed < 20; seed++ {
				reg := newRegister(4, ghzVector(4), testRand(seed))
				first := reg.measure(0)
				for q := 1; q < 4; q++ {
					So(reg.measure(q), ShouldEqual, first)
				}
			}
		})

		Convey("The state stays normalised after a measurement", func() {
			reg := newRegister(4, ghzVector(4), testRand(1))
			reg.apply(2, hadamard)
			reg.measure(2)

			var norm float64
			for _, a := range reg.Amplitudes() {
				norm += real(a)*real(a) + imag(a)*imag(a)
			}
			So(norm, ShouldAlmostEqual, 1, 1e-12)
		})

		Convey("Phases add up on the parity", func() {
			for seed := uint64(0); seed < 20; seed++ {
				reg := newRegister(4, ghzVector(4), testRand(seed))
				for q := 0; q < 4; q++ {
					reg.apply(q, phaseGate(math.Pi/4))
				}
				So(measureParity(reg, "XXXX"), ShouldEqual, -1)
			}
		})
	})

	Convey("Given the other resource states", t, func() {
		Convey("A product of |+> states always reads +1 in X", func() {
			for seed := uint64(0); seed < 20; seed++ {
				reg := newRegister(3, plusVector(3), testRand(seed))
				for q := 0; q < 3; q++ {
					reg.apply(q, hadamard)
					So(reg.measure(q), ShouldEqual, Bit(0))
				}
			}
		})

		Convey("Bell pairs are correlated within a pair", func() {
			for seed := uint64(0); seed < 20; seed++ {
				reg := newRegister(4, bellVector(4), testRand(seed))
				So(reg.measure(0), ShouldEqual, reg.measure(1))
				So(reg.measure(2), ShouldEqual, reg.measure(3))
			}
		})
	})
}

func TestSpace(t *testing.T) {
	Convey("Given a space for 3 parties", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()

		space, err := NewSpace(3, StateGHZ, testRand(5))
		So(err, ShouldBeNil)

		Convey("Every party receives its share of the same copy", func() {
			shares := make([]Share, 3)
			errs := make([]error, 3)

			var wg sync.WaitGroup
			for i := 0; i < 3; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					shares[i], errs[i] = space.CreateSharedUnit(ctx, NewParty(i, 3))
				}()
			}
			wg.Wait()

			for i := 0; i < 3; i++ {
				So(errs[i], ShouldBeNil)
			}
			So(space.Created(), ShouldEqual, 1)

			first := shares[0].Measure()
			So(shares[1].Measure(), ShouldEqual, first)
			So(shares[2].Measure(), ShouldEqual, first)
		})

		Convey("A party alone blocks until the context ends", func() {
			short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
			defer stop()

			_, err := space.CreateSharedUnit(short, NewParty(0, 3))
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(space.Created(), ShouldEqual, 0)
		})

		Convey("Shares accept Pauli operations", func() {
			var _ PauliSubstrate = space

			shares := make([]Share, 3)
			var wg sync.WaitGroup
			for i := 0; i < 3; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					shares[i], _ = space.CreateSharedUnit(ctx, NewParty(i, 3))
				}()
			}
			wg.Wait()

			shares[1].(PauliShare).Apply(PauliX)
			first := shares[0].Measure()
			So(shares[1].Measure(), ShouldNotEqual, first)
			So(shares[2].Measure(), ShouldEqual, first)
		})
	})

	Convey("Given parties that do not fit the line", t, func() {
		space, err := NewSpace(3, StateGHZ, testRand(5))
		So(err, ShouldBeNil)

		Convey("The ends of the line have a single neighbour", func() {
			So(NewParty(0, 3).Down, ShouldEqual, NoNeighbor)
			So(NewParty(0, 3).Up, ShouldEqual, 1)
			So(NewParty(1, 3).Down, ShouldEqual, 0)
			So(NewParty(1, 3).Up, ShouldEqual, 2)
			So(NewParty(2, 3).Up, ShouldEqual, NoNeighbor)
		})

		Convey("A party placed on another line is refused", func() {
			_, err := space.CreateSharedUnit(context.Background(), NewParty(2, 4))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "Node_3")
		})

		Convey("A party with broken links is refused", func() {
			p := NewParty(1, 3)
			p.Up = NoNeighbor
			_, err := space.CreateSharedUnit(context.Background(), p)
			So(err, ShouldNotBeNil)
			So(space.Created(), ShouldEqual, 0)
		})

		Convey("A party outside the line is refused", func() {
			_, err := space.CreateSharedUnit(context.Background(), NewParty(3, 4))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given invalid spaces", t, func() {
		_, err := NewSpace(1, StateGHZ, testRand(1))
		So(IsConfigurationError(err), ShouldBeTrue)

		_, err = NewSpace(3, StateBell, testRand(1))
		So(IsConfigurationError(err), ShouldBeTrue)

		_, err = NewSpace(MaxSimulatedParties+1, StateGHZ, testRand(1))
		So(IsConfigurationError(err), ShouldBeTrue)
	})
}
