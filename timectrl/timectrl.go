package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClockNotStarted is returned when the clock is advanced before Reset.
var ErrClockNotStarted = errors.New("clock not started")

// Clock is the simulation round counter. Round 0 is the initialization
// round; each Advance moves to the next round.
type Clock struct {
	mu      sync.RWMutex
	round   int
	started bool
}

// NewClock constructs a clock that has not started yet.
func NewClock() *Clock {
	return &Clock{}
}

// Round returns the current round.
func (c *Clock) Round() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.round
}

// Started reports whether Reset has been called.
func (c *Clock) Started() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Reset moves the clock back to round 0 and marks it started.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.round = 0
	c.started = true
}

// Advance increments the round by exactly one and returns the new round.
func (c *Clock) Advance() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0, ErrClockNotStarted
	}
	c.round++
	return c.round, nil
}

// Mode describes how the Pacer spaces rounds in wall-clock time.
type Mode int

const (
	// RealTime waits one Interval between rounds.
	RealTime Mode = iota
	// Accelerated runs rounds back to back.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// RoundFunc executes one round. Returning stop=true ends the run without error.
type RoundFunc func(ctx context.Context, round int) (stop bool, err error)

// Pacer drives a fixed number of rounds and notifies registered listeners
// after each completed round.
type Pacer struct {
	Interval time.Duration
	Mode     Mode

	listeners []func(round int)
}

// NewPacer constructs a pacer. Interval is the simulated duration of one
// round; in RealTime mode it is also the wall-clock gap between rounds.
func NewPacer(interval time.Duration, mode Mode) *Pacer {
	return &Pacer{Interval: interval, Mode: mode}
}

// AddListener registers a callback invoked after every completed round.
func (p *Pacer) AddListener(fn func(round int)) {
	p.listeners = append(p.listeners, fn)
}

// Run executes fn for rounds 0..rounds-1, or until fn stops, fails, or ctx is
// cancelled. rounds <= 0 means no limit. It returns ctx.Err() on cancellation.
func (p *Pacer) Run(ctx context.Context, rounds int, fn RoundFunc) error {
	var tick <-chan time.Time
	if p.Mode == RealTime && p.Interval > 0 {
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for round := 0; rounds <= 0 || round < rounds; round++ {
		if round > 0 && tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stop, err := fn(ctx, round)
		if err != nil {
			return err
		}
		for _, l := range p.listeners {
			l(round)
		}
		if stop {
			return nil
		}
	}
	return nil
}
