package qsn

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type timeWindow struct {
	duration time.Duration
	count    int
}

/*
Metrics keeps an in-process snapshot of the rounds a Runner has completed and
mirrors every observation into Prometheus collectors when registered.
*/
type Metrics struct {
	mu       sync.RWMutex
	Rounds   int64
	Accepted int64
	Aborted  int64
	Errors   int64

	AcceptanceRate     float64
	AverageFailureRate float64
	AverageRoundTime   time.Duration
	P95RoundTime       time.Duration
	P99RoundTime       time.Duration

	latencyWindows []timeWindow
	windowSize     int

	rounds      *prometheus.CounterVec
	failureRate prometheus.Histogram
	duration    prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		latencyWindows: make([]timeWindow, 0, 1000), // Store last 1000 measurements
		windowSize:     1000,
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qsn_rounds_total",
			Help: "Completed protocol rounds by verdict.",
		}, []string{"status"}),
		failureRate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qsn_round_failure_rate",
			Help:    "Average stabilizer failure rate per round.",
			Buckets: prometheus.LinearBuckets(0, 0.05, 21),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qsn_round_duration_seconds",
			Help:    "Wall time of one protocol round.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.rounds, m.failureRate, m.duration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) recordRound(res *RoundResult) {
	m.rounds.WithLabelValues(res.Status.String()).Inc()
	m.failureRate.Observe(res.Average)
	m.duration.Observe(res.Duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Rounds++
	if res.Status == StatusAccepted {
		m.Accepted++
	} else {
		m.Aborted++
	}
	m.AcceptanceRate = float64(m.Accepted) / float64(m.Rounds)
	m.AverageFailureRate += (res.Average - m.AverageFailureRate) / float64(m.Rounds)

	m.updateLatencyPercentiles(res.Duration)
}

func (m *Metrics) recordError() {
	m.rounds.WithLabelValues("error").Inc()

	m.mu.Lock()
	m.Errors++
	m.mu.Unlock()
}

func (m *Metrics) updateLatencyPercentiles(duration time.Duration) {
	m.AverageRoundTime = (m.AverageRoundTime*time.Duration(m.Rounds-1) + duration) / time.Duration(m.Rounds)

	m.latencyWindows = append(m.latencyWindows, timeWindow{
		duration: duration,
		count:    1,
	})

	if len(m.latencyWindows) > m.windowSize {
		m.latencyWindows = m.latencyWindows[1:]
	}

	sorted := make([]time.Duration, 0, len(m.latencyWindows))
	for _, w := range m.latencyWindows {
		for i := 0; i < w.count; i++ {
			sorted = append(sorted, w.duration)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	if len(sorted) > 0 {
		p95Index := min(int(float64(len(sorted))*0.95), len(sorted)-1)
		p99Index := min(int(float64(len(sorted))*0.99), len(sorted)-1)

		m.P95RoundTime = sorted[p95Index]
		m.P99RoundTime = sorted[p99Index]
	}
}

// ExportMetrics returns the snapshot as plain values for reports.
func (m *Metrics) ExportMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"rounds":               m.Rounds,
		"accepted":             m.Accepted,
		"aborted":              m.Aborted,
		"errors":               m.Errors,
		"acceptance_rate":      m.AcceptanceRate,
		"average_failure_rate": m.AverageFailureRate,
		"avg_round_ms":         m.AverageRoundTime.Milliseconds(),
		"p95_round_ms":         m.P95RoundTime.Milliseconds(),
		"p99_round_ms":         m.P99RoundTime.Milliseconds(),
	}
}
