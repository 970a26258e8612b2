package qsn

import (
	"sync"

	"github.com/theapemachine/errnie"
)

/*
BreakerState tracks whether a run still trusts its network.
*/
type BreakerState int

const (
	BreakerClosed BreakerState = iota // rounds keep being started
	BreakerOpen                       // too many consecutive aborts, stop
)

func (s BreakerState) String() string {
	if s == BreakerOpen {
		return "open"
	}
	return "closed"
}

/*
AbortBreaker opens after maxAborts consecutive aborted rounds. An accepted
round resets the count while closed. Once open the breaker stays open; a new
run needs a new breaker.

A maxAborts of zero or less never opens.
*/
type AbortBreaker struct {
	mu          sync.Mutex
	maxAborts   int
	consecutive int
	state       BreakerState
}

func NewAbortBreaker(maxAborts int) *AbortBreaker {
	return &AbortBreaker{maxAborts: maxAborts, state: BreakerClosed}
}

// Record feeds the verdict of one round.
func (b *AbortBreaker) Record(status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		return
	}

	if status == StatusAccepted {
		b.consecutive = 0
		return
	}

	b.consecutive++
	if b.maxAborts > 0 && b.consecutive >= b.maxAborts {
		b.state = BreakerOpen
		errnie.Info("abort breaker opened after %d consecutive aborted rounds", b.consecutive)
	}
}

// Open reports whether the run should stop.
func (b *AbortBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == BreakerOpen
}

func (b *AbortBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Consecutive returns the current streak of aborted rounds.
func (b *AbortBreaker) Consecutive() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}
