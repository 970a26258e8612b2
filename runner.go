package qsn

import (
	"context"
	"sync"

	"github.com/theapemachine/errnie"
)

/*
Runner executes independent rounds on a bounded pool of workers and folds
their outcomes into a PhaseEstimator. Rounds finish in any order but are
folded strictly by index from a single goroutine, so the estimator sees the
same sequence of rounds whatever the number of workers.
*/
type Runner struct {
	cfg       *Config
	log       Logger
	metrics   *Metrics
	estimator *PhaseEstimator
	breaker   *AbortBreaker
	results   []*RoundResult
}

// Summary is the outcome of a Runner.
type Summary struct {
	Rounds   int             `yaml:"rounds"`
	Accepted int             `yaml:"accepted"`
	Aborted  int             `yaml:"aborted"`
	Halted   bool            `yaml:"halted"`
	Truth    float64         `yaml:"true_phase"`
	Estimate PhaseEstimate   `yaml:"estimate"`
	History  []PhaseEstimate `yaml:"history,omitempty"`
	Results  []*RoundResult  `yaml:"-"`
}

/*
NewRunner validates cfg and prepares the estimator it selects.

Parameters:
  - cfg: shared read-only configuration of every round
  - logger: base logger for the party loggers, nil discards
  - metrics: where rounds are recorded, nil creates a private instance

Returns:
  - *Runner: a runner ready to Run
  - error: a ConfigurationError when cfg does not validate
*/
func NewRunner(cfg *Config, logger Logger, metrics *Metrics) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Runner{
		cfg:       cfg,
		log:       orDiscard(logger),
		metrics:   metrics,
		estimator: cfg.Estimator(),
		breaker:   NewAbortBreaker(cfg.AbortLimit),
	}, nil
}

// Metrics returns the metrics the runner records into.
func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

/*
limit is the number of rounds that may be started. With sensing the runner
stops early once Rounds rounds were accepted; MaxRounds bounds the attempts
when too many rounds abort.
*/
func (r *Runner) limit() int {
	if !r.cfg.Sense || r.cfg.MaxRounds == 0 {
		return r.cfg.Rounds
	}
	return max(r.cfg.MaxRounds, r.cfg.Rounds)
}

func (r *Runner) done() bool {
	if r.breaker.Open() {
		return true
	}
	if r.cfg.Sense {
		return r.estimator.Accepted() >= r.cfg.Rounds
	}
	return len(r.results) >= r.cfg.Rounds
}

// Run executes rounds until done, the limit is reached, the abort breaker
// opens or ctx ends.
func (r *Runner) Run(parent context.Context) (*Summary, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan int)
	results := make(chan roundOutput, r.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		w := &Worker{runner: r, jobs: jobs, results: results}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.start(ctx)
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < r.limit(); i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		firstErr error
		pending  = make(map[int]roundOutput)
		next     int
		finished = r.done()
	)

	if finished {
		cancel()
	}

	for out := range results {
		pending[out.index] = out

		for !finished && firstErr == nil {
			o, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if err := r.fold(o); err != nil {
				firstErr = err
				cancel()
				break
			}
			if r.done() {
				finished = true
				cancel()
			}
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if !finished && parent.Err() != nil {
		return nil, parent.Err()
	}

	summary := r.summary()
	errnie.Info("runner finished - %d rounds, %d accepted, estimate %g (true %g)", summary.Rounds, summary.Accepted, summary.Estimate.Value, summary.Truth)
	return summary, nil
}

func (r *Runner) fold(o roundOutput) error {
	if o.err != nil {
		r.metrics.recordError()
		return o.err
	}

	res := o.result
	r.results = append(r.results, res)
	r.metrics.recordRound(res)
	r.breaker.Record(res.Status)
	if r.breaker.Open() {
		r.log.Warn("too many consecutive aborts, halting", "round", res.Index, "aborts", r.breaker.Consecutive())
	}

	if !r.cfg.Sense {
		return nil
	}

	est, folded, err := r.estimator.Observe(res.Status, res.Parities)
	if err != nil {
		return err
	}
	if folded {
		r.log.Debug("estimate", "round", res.Index, "accepted", est.Accepted, "p", est.Probability, "value", est.Value)
	}
	return nil
}

func (r *Runner) summary() *Summary {
	s := &Summary{
		Rounds:   len(r.results),
		Halted:   r.breaker.Open(),
		Truth:    r.cfg.TruePhase(),
		Estimate: r.estimator.Estimate(),
		History:  r.estimator.History(),
		Results:  r.results,
	}
	for _, res := range r.results {
		if res.Status == StatusAccepted {
			s.Accepted++
		} else {
			s.Aborted++
		}
	}
	return s
}
