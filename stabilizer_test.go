package qsn

import (
	"errors"
	"math/rand/v2"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestGenerators(t *testing.T) {
	Convey("Given the generator construction", t, func() {
		Convey("It emits n strings of length n, the last unsigned all-X", func() {
			for n := 2; n <= 8; n++ {
				gens, err := Generators(n, testRand(uint64(n)))
				So(err, ShouldBeNil)
				So(gens, ShouldHaveLength, n)

				for _, g := range gens[:n-1] {
					So(g.Len(), ShouldEqual, n)
					So(g.Negative, ShouldBeTrue)
				}

				last := gens[n-1]
				So(last.Negative, ShouldBeFalse)
				for _, p := range last.Paulis {
					So(p, ShouldEqual, PauliX)
				}
			}
		})

		Convey("Every negative generator has Y on one adjacent pair and X elsewhere", func() {
			for n := 3; n <= 8; n++ {
				for seed := uint64(0); seed < 10; seed++ {
					gens, _ := Generators(n, testRand(seed))
					for _, g := range gens[:n-1] {
						var ys []int
						for i, p := range g.Paulis {
							if p == PauliY {
								ys = append(ys, i)
							} else {
								So(p, ShouldEqual, PauliX)
							}
						}
						So(ys, ShouldHaveLength, 2)
						So((ys[0]+1)%n == ys[1] || (ys[1]+1)%n == ys[0], ShouldBeTrue)
					}
				}
			}
		})

		Convey("The Y pair walks the cycle once, skipping a single edge", func() {
			for n := 3; n <= 8; n++ {
				for seed := uint64(0); seed < 10; seed++ {
					gens, _ := Generators(n, testRand(seed))

					count := make([]int, n)
					for _, g := range gens[:n-1] {
						for i, p := range g.Paulis {
							if p == PauliY {
								count[i]++
							}
						}
					}

					total, once := 0, []int{}
					for i, c := range count {
						So(c, ShouldBeBetweenOrEqual, 1, 2)
						total += c
						if c == 1 {
							once = append(once, i)
						}
					}
					So(total, ShouldEqual, 2*(n-1))
					So(once, ShouldHaveLength, 2)
					So((once[0]+1)%n == once[1] || (once[1]+1)%n == once[0], ShouldBeTrue)
				}
			}
		})

		Convey("Fewer than 2 parties is a configuration error", func() {
			_, err := Generators(1, testRand(1))
			So(errors.Is(err, ErrConfiguration), ShouldBeTrue)
		})
	})
}

func TestProduct(t *testing.T) {
	Convey("Given GHZ generators", t, func() {
		gens, err := Generators(5, testRand(3))
		So(err, ShouldBeNil)

		Convey("Products of pairs commute", func() {
			for i := range gens {
				for j := range gens {
					ab, err := Product(gens[i], gens[j])
					So(err, ShouldBeNil)
					ba, err := Product(gens[j], gens[i])
					So(err, ShouldBeNil)
					So(ab.Key(), ShouldEqual, ba.Key())
				}
			}
		})

		Convey("Products of triples associate", func() {
			a, b, c := gens[0], gens[2], gens[4]
			ab, _ := Product(a, b)
			left, err := Product(ab, c)
			So(err, ShouldBeNil)
			bc, _ := Product(b, c)
			right, err := Product(a, bc)
			So(err, ShouldBeNil)
			flat, err := Product(a, b, c)
			So(err, ShouldBeNil)

			So(left.Key(), ShouldEqual, right.Key())
			So(flat.Key(), ShouldEqual, left.Key())
		})

		Convey("A stabilizer times itself is the identity", func() {
			sq, err := Product(gens[1], gens[1])
			So(err, ShouldBeNil)
			So(sq.Identity(), ShouldBeTrue)
			So(sq.Negative, ShouldBeFalse)
		})
	})

	Convey("Given known products", t, func() {
		a, _ := ParseStabilizer("-YYXX")
		b, _ := ParseStabilizer("-XYYX")
		p, err := Product(a, b)
		So(err, ShouldBeNil)
		So(p.Key(), ShouldEqual, "ZIZI")

		Convey("Anticommuting inputs are rejected", func() {
			x, _ := ParseStabilizer("XI")
			z, _ := ParseStabilizer("ZI")
			_, err := Product(x, z)
			So(err, ShouldEqual, ErrNonHermitian)
		})

		Convey("Mismatched lengths are rejected", func() {
			x, _ := ParseStabilizer("XX")
			_, err := Product(a, x)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestFullGroup(t *testing.T) {
	Convey("Given the full closure", t, func() {
		Convey("It has exactly 2^n distinct entries and one identity", func() {
			for n := 2; n <= 6; n++ {
				set, err := FullGroup(n, testRand(uint64(n)))
				So(err, ShouldBeNil)
				So(set.Len(), ShouldEqual, 1<<n)

				identities := 0
				for i := 0; i < set.Len(); i++ {
					if set.At(i).Identity() {
						identities++
						So(set.At(i).Negative, ShouldBeFalse)
					}
				}
				So(identities, ShouldEqual, 1)
			}
		})

		Convey("It starts with the generators", func() {
			set, _ := FullGroup(4, testRand(4))
			gens, _ := Generators(4, testRand(4))
			for i, g := range gens {
				So(set.Keys()[i], ShouldEqual, g.Key())
			}
		})

		Convey("Too many parties is a configuration error", func() {
			_, err := FullGroup(MaxFullGroupParties+1, testRand(1))
			var cerr *ConfigurationError
			So(errors.As(err, &cerr), ShouldBeTrue)
		})

		Convey("Picking more than 2^n stabilizers is a configuration error", func() {
			set, _ := FullGroup(3, testRand(1))
			_, err := set.Pick(9, testRand(2))
			So(errors.Is(err, ErrConfiguration), ShouldBeTrue)

			keys, err := set.Pick(8, testRand(2))
			So(err, ShouldBeNil)
			So(keys, ShouldHaveLength, 8)
		})
	})
}

func TestParseStabilizer(t *testing.T) {
	Convey("Keys round trip", t, func() {
		for _, key := range []string{"-XYYX", "XXXX", "IIII", "ZIZI"} {
			s, err := ParseStabilizer(key)
			So(err, ShouldBeNil)
			So(s.Key(), ShouldEqual, key)
		}

		_, err := ParseStabilizer("-")
		So(err, ShouldNotBeNil)
		_, err = ParseStabilizer("XA")
		So(err, ShouldNotBeNil)
	})
}
