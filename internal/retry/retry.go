package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxRetries matches the configuration default; DefaultMaxDelay caps
// exponential growth when Options.MaxDelay is unset.
const (
	DefaultMaxRetries = 3
	DefaultMaxDelay   = 30 * time.Second
)

// ErrExhausted matches every *ExhaustedError via errors.Is.
var ErrExhausted = errors.New("retries exhausted")

// Backoff selects the delay schedule between attempts.
type Backoff uint8

const (
	// Exponential doubles the delay after each retry.
	Exponential Backoff = iota
	// Fixed waits InitialDelay before every retry.
	Fixed
)

// String returns a human-readable backoff name.
func (b Backoff) String() string {
	switch b {
	case Exponential:
		return "exponential"
	case Fixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// Options configure a Policy.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries   int
	InitialDelay time.Duration
	// MaxDelay caps exponential growth. Zero means DefaultMaxDelay.
	MaxDelay time.Duration
	Backoff  Backoff

	// OnRetry is called before sleeping for retry number attempt (1-based).
	OnRetry func(attempt int, err error)
	// ShouldRetry decides whether err is worth another attempt. Nil retries everything.
	ShouldRetry func(err error) bool
}

// ExhaustedError is returned once the last allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is reports ErrExhausted as a match.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Operation is one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Policy executes operations with bounded retries. A Policy holds no state
// between calls and is safe for concurrent use.
type Policy struct {
	opts  Options
	clock clockwork.Clock
}

// Option customises a Policy.
type Option func(*Policy)

// WithClock replaces the clock used for sleeping between attempts.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Policy) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// New creates a policy, filling unset options with defaults.
func New(opts Options, options ...Option) *Policy {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MaxDelay < opts.InitialDelay {
		opts.MaxDelay = opts.InitialDelay
	}

	p := &Policy{opts: opts, clock: clockwork.NewRealClock()}
	for _, o := range options {
		o(p)
	}
	return p
}

// MaxAttempts returns the total number of times an operation may run.
func (p *Policy) MaxAttempts() int {
	return p.opts.MaxRetries + 1
}

// Delay returns the wait before retry n (1-based).
func (p *Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	if p.opts.Backoff == Fixed {
		return p.opts.InitialDelay
	}

	delay := p.opts.InitialDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= p.opts.MaxDelay || delay <= 0 {
			return p.opts.MaxDelay
		}
	}
	if delay > p.opts.MaxDelay {
		return p.opts.MaxDelay
	}
	return delay
}

// Execute runs op until it succeeds, a non-retryable error occurs, retries
// run out, or ctx is done.
func (p *Policy) Execute(ctx context.Context, op Operation) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.opts.ShouldRetry != nil && !p.opts.ShouldRetry(err) {
			return err
		}
		if attempt > p.opts.MaxRetries {
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		if p.opts.OnRetry != nil {
			p.opts.OnRetry(attempt, err)
		}
		if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, p *Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var result T
	err := p.Execute(ctx, func(ctx context.Context, attempt int) error {
		v, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(d):
		return nil
	}
}
