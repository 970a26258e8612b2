package qsn

import (
	"context"
)

type roundOutput struct {
	index  int
	result *RoundResult
	err    error
}

// Worker runs whole rounds, one at a time, for a Runner.
type Worker struct {
	runner  *Runner
	jobs    <-chan int
	results chan<- roundOutput
}

func (w *Worker) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case index, ok := <-w.jobs:
			if !ok {
				return
			}

			result, err := w.processRound(ctx, index)

			select {
			case w.results <- roundOutput{index: index, result: result, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) processRound(ctx context.Context, index int) (*RoundResult, error) {
	round, err := NewRound(w.runner.cfg, index, w.runner.log)
	if err != nil {
		return nil, err
	}
	return round.Run(ctx)
}
