package httputil

import (
	"context"
	"time"

	"github.com/matzehuels/relaymap/pkg/errors"
)

// State is a position in the retry state machine.
type State int

const (
	// Fetching means an attempt is about to be made.
	Fetching State = iota
	// Retrying means the last attempt failed transiently and another follows
	// after the transition's delay.
	Retrying
	// Exhausted means the attempt budget is spent; the last error is final.
	Exhausted
	// Failed means the last error is permanent and must not be retried.
	Failed
	// Done means the last attempt succeeded.
	Done
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Retrying:
		return "retrying"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further attempts follow s.
func (s State) Terminal() bool {
	return s == Exhausted || s == Failed || s == Done
}

// Policy bounds the retry state machine.
type Policy struct {
	// MaxAttempts is the number of attempts allowed for transient failures,
	// including the first one.
	MaxAttempts int
	// BaseDelay is the first backoff delay; it doubles on every transient retry.
	BaseDelay time.Duration
	// MaxDelay caps both backoff and server-requested rate-limit waits.
	MaxDelay time.Duration
	// MaxRateLimitWaits bounds how many rate-limit responses are waited out.
	// They do not consume MaxAttempts.
	MaxRateLimitWaits int
}

// DefaultPolicy is used by clients that are not configured otherwise.
var DefaultPolicy = Policy{
	MaxAttempts:       4,
	BaseDelay:         time.Second,
	MaxDelay:          30 * time.Second,
	MaxRateLimitWaits: 5,
}

// Step is the bookkeeping carried between transitions.
type Step struct {
	State          State
	Attempt        int // transient-failure attempts made so far
	RateLimitWaits int // rate-limit waits taken so far
}

// Transition is the outcome of feeding one attempt's result to [Policy.Next].
type Transition struct {
	Step
	Delay time.Duration // wait before the next attempt when State is Retrying
}

// Next computes the transition after an attempt that returned err.
// It is pure: the same step and error always yield the same transition.
func (p Policy) Next(s Step, err error) Transition {
	p = p.normalized()
	next := Transition{Step: s}

	if err == nil {
		next.State = Done
		return next
	}

	if rl, ok := errors.AsRateLimited(err); ok {
		next.RateLimitWaits++
		if next.RateLimitWaits > p.MaxRateLimitWaits {
			next.State = Exhausted
			return next
		}
		next.State = Retrying
		if rl.RetryAfter > 0 {
			next.Delay = min(time.Duration(rl.RetryAfter)*time.Second, p.MaxDelay)
		} else {
			next.Delay = p.backoff(next.RateLimitWaits)
		}
		return next
	}

	if !errors.IsRetryable(err) {
		next.State = Failed
		return next
	}

	next.Attempt++
	if next.Attempt >= p.MaxAttempts {
		next.State = Exhausted
		return next
	}
	next.State = Retrying
	next.Delay = p.backoff(next.Attempt)
	return next
}

// backoff returns BaseDelay*2^(n-1), capped at MaxDelay.
func (p Policy) backoff(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n && d < p.MaxDelay; i++ {
		d *= 2
	}
	return min(d, p.MaxDelay)
}

func (p Policy) normalized() Policy {
	p.MaxAttempts = max(p.MaxAttempts, 1)
	p.MaxRateLimitWaits = max(p.MaxRateLimitWaits, 0)
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Observer is notified of every non-terminal transition. It may be nil.
type Observer func(t Transition, err error)

// Retry drives the state machine: it calls fn until the machine reaches a
// terminal state, sleeping for the transition's delay in between.
// It returns nil on Done, the last error on Exhausted or Failed, and
// ctx.Err() if the context is cancelled while waiting.
func Retry(ctx context.Context, p Policy, fn func() error) error {
	return RetryObserved(ctx, p, nil, fn)
}

// RetryObserved is [Retry] with a callback for logging retries.
func RetryObserved(ctx context.Context, p Policy, observe Observer, fn func() error) error {
	step := Step{State: Fetching}
	for {
		err := fn()
		t := p.Next(step, err)
		if t.State.Terminal() {
			return err
		}
		if observe != nil {
			observe(t, err)
		}
		if err := sleep(ctx, t.Delay); err != nil {
			return err
		}
		step = t.Step
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
