package qsn

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetrics(t *testing.T) {
	Convey("Given metrics registered on a fresh registry", t, func() {
		reg := prometheus.NewRegistry()
		m := NewMetrics()
		So(m.Register(reg), ShouldBeNil)

		Convey("Registering twice fails", func() {
			So(m.Register(reg), ShouldNotBeNil)
		})

		Convey("Recorded rounds update the snapshot", func() {
			m.recordRound(&RoundResult{Status: StatusAccepted, Average: 0, Duration: 2 * time.Millisecond})
			m.recordRound(&RoundResult{Status: StatusAccepted, Average: 0.1, Duration: 4 * time.Millisecond})
			m.recordRound(&RoundResult{Status: StatusAborted, Average: 0.5, Duration: 6 * time.Millisecond})
			m.recordError()

			snap := m.ExportMetrics()
			So(snap["rounds"], ShouldEqual, int64(3))
			So(snap["accepted"], ShouldEqual, int64(2))
			So(snap["aborted"], ShouldEqual, int64(1))
			So(snap["errors"], ShouldEqual, int64(1))
			So(snap["acceptance_rate"], ShouldAlmostEqual, 2.0/3.0, 1e-12)
			So(snap["average_failure_rate"], ShouldAlmostEqual, 0.2, 1e-12)
			So(snap["avg_round_ms"], ShouldEqual, int64(4))
			So(snap["p99_round_ms"], ShouldEqual, int64(6))

			Convey("And the collectors export them", func() {
				families, err := reg.Gather()
				So(err, ShouldBeNil)

				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["qsn_rounds_total"], ShouldBeTrue)
				So(names["qsn_round_failure_rate"], ShouldBeTrue)
				So(names["qsn_round_duration_seconds"], ShouldBeTrue)

				for _, f := range families {
					if f.GetName() != "qsn_rounds_total" {
						continue
					}
					So(f.GetMetric(), ShouldHaveLength, 3)
				}
			})
		})
	})
}
