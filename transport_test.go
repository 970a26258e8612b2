package qsn

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMesh(t *testing.T) {
	Convey("Given a mesh for 3 parties", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()

		mesh := NewMesh(3)

		Convey("A send meets the matching receive", func() {
			done := make(chan error, 1)
			go func() {
				done <- mesh.Send(ctx, 0, 2, BasisMessage(4, PauliY))
			}()

			msg, err := mesh.Recv(ctx, 2, 0)
			So(err, ShouldBeNil)
			So(<-done, ShouldBeNil)
			So(msg.Kind, ShouldEqual, KindBasis)
			So(msg.Copy, ShouldEqual, 4)
			So(msg.Basis, ShouldEqual, PauliY)
			So(expect(msg, KindBasis), ShouldBeNil)
			So(expect(msg, KindBit), ShouldNotBeNil)
		})

		Convey("Links are per ordered pair", func() {
			go mesh.Send(ctx, 1, 0, BitMessage(0, 1))

			short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
			defer stop()

			_, err := mesh.Recv(short, 0, 2)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)

			msg, err := mesh.Recv(ctx, 0, 1)
			So(err, ShouldBeNil)
			So(msg.Bit.Eigenvalue(), ShouldEqual, -1)
		})

		Convey("Unknown links are rejected", func() {
			So(mesh.Send(ctx, 0, 0, ActionMessage(0, ActionKeep)), ShouldNotBeNil)
			_, err := mesh.Recv(ctx, 3, 0)
			So(err, ShouldNotBeNil)
		})

		Convey("A cancelled send reports the context error", func() {
			short, stop := context.WithCancel(ctx)
			stop()
			err := mesh.Send(short, 0, 1, VerdictMessage(StatusAborted, 0.5))
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}
