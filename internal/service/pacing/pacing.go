// Package pacing computes randomized inter-send delays and waits that react to pause and
// stop requests while they run.
package pacing

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often signals are re-checked during a wait.
const DefaultPollInterval = 100 * time.Millisecond

// MaxPollInterval bounds PollInterval so stop and pause take effect quickly.
const MaxPollInterval = 200 * time.Millisecond

// Signals reports cooperative interruption requests for a running job.
type Signals interface {
	ShouldStop(ctx context.Context) bool
	ShouldPause(ctx context.Context) bool
}

// Flags is an in-process Signals value toggled by control operations.
type Flags struct {
	stop  atomic.Bool
	pause atomic.Bool
}

// Stop requests a stop. A stop overrides a pause.
func (f *Flags) Stop() { f.stop.Store(true) }

// Pause requests a pause.
func (f *Flags) Pause() { f.pause.Store(true) }

// Resume clears a pause request.
func (f *Flags) Resume() { f.pause.Store(false) }

// ShouldStop implements Signals.
func (f *Flags) ShouldStop(context.Context) bool { return f.stop.Load() }

// ShouldPause implements Signals.
func (f *Flags) ShouldPause(context.Context) bool { return f.pause.Load() }

// Options configures a Pacer.
type Options struct {
	// PollInterval is clamped to (0, MaxPollInterval]; zero means DefaultPollInterval.
	PollInterval time.Duration
	// IntN overrides the random source in tests. It must return a value in [0, n).
	IntN func(n int) int
}

// Pacer draws delays and performs interruptible waits.
type Pacer struct {
	poll time.Duration
	intN func(n int) int
}

// New constructs a Pacer.
func New(opts Options) *Pacer {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if poll > MaxPollInterval {
		poll = MaxPollInterval
	}
	intN := opts.IntN
	if intN == nil {
		intN = rand.IntN
	}
	return &Pacer{poll: poll, intN: intN}
}

// PollInterval returns the effective signal poll interval.
func (p *Pacer) PollInterval() time.Duration { return p.poll }

// NextDelay returns a whole number of seconds drawn uniformly from [minSeconds, maxSeconds].
// Bounds are validated at job creation; inverted bounds are swapped and negatives treated as zero.
func (p *Pacer) NextDelay(minSeconds, maxSeconds int) time.Duration {
	minSeconds, maxSeconds = max(minSeconds, 0), max(maxSeconds, 0)
	if minSeconds > maxSeconds {
		minSeconds, maxSeconds = maxSeconds, minSeconds
	}
	secs := minSeconds
	if span := maxSeconds - minSeconds; span > 0 {
		secs += p.intN(span + 1)
	}
	return time.Duration(secs) * time.Second
}

// Wait blocks for up to d, re-checking sig every poll interval. While paused the
// remaining delay does not elapse and Wait blocks until resumed or stopped. It returns
// true the moment a stop is observed or ctx is done, false once d has elapsed unpaused.
// A zero d still blocks while paused, which makes Wait(ctx, 0, sig) a pause gate.
func (p *Pacer) Wait(ctx context.Context, d time.Duration, sig Signals) bool {
	remaining := d
	last := time.Now()
	for {
		if ctx.Err() != nil || (sig != nil && sig.ShouldStop(ctx)) {
			return true
		}
		paused := sig != nil && sig.ShouldPause(ctx)
		if !paused && remaining <= 0 {
			return false
		}
		step := p.poll
		if !paused && remaining < step {
			step = remaining
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return true
		case <-timer.C:
		}
		now := time.Now()
		if !paused {
			remaining -= now.Sub(last)
		}
		last = now
	}
}
