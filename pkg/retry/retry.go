// Package retry runs an operation with exponential backoff and jitter.
// The service uses it to reach Postgres and Redis at startup, when the
// stores may still be coming up next to it.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// PermanentError stops the retry loop immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Policy configures a retry loop.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int

	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failure.
	Multiplier float64

	// JitterFactor spreads each delay by +/- that fraction.
	JitterFactor float64

	// RetryIf decides whether a failure is retried. nil retries everything not Permanent.
	RetryIf func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// StartupPolicy waits for a dependency for roughly half a minute.
func StartupPolicy() Policy {
	return Policy{
		MaxAttempts:  8,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.2,
	}
}

// Option mutates a Policy.
type Option func(*Policy)

func WithMaxAttempts(n int) Option { return func(p *Policy) { p.MaxAttempts = n } }

func WithInitialDelay(d time.Duration) Option { return func(p *Policy) { p.InitialDelay = d } }

func WithMaxDelay(d time.Duration) Option { return func(p *Policy) { p.MaxDelay = d } }

func WithJitter(j float64) Option { return func(p *Policy) { p.JitterFactor = j } }

func WithRetryIf(fn func(error) bool) Option { return func(p *Policy) { p.RetryIf = fn } }

func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// Do runs op until it succeeds, fails permanently, runs out of attempts or ctx ends.
// The last operation error is returned, unwrapped from PermanentError.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err

		if policy.RetryIf != nil && !policy.RetryIf(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := policy.Backoff(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, policy, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// New applies opts to StartupPolicy.
func New(opts ...Option) Policy {
	p := StartupPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFactor > 0 {
		delay += delay * p.JitterFactor * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
