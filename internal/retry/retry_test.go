package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return")
		return nil
	}
}

func TestDelaySchedule(t *testing.T) {
	t.Run("Exponential", func(t *testing.T) {
		p := New(Options{MaxRetries: 6, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Backoff: Exponential})
		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			10 * time.Second,
			10 * time.Second,
		}
		for i, want := range expected {
			assert.Equal(t, want, p.Delay(i+1), "retry %d", i+1)
		}
	})

	t.Run("Fixed", func(t *testing.T) {
		p := New(Options{MaxRetries: 3, InitialDelay: 2 * time.Second, Backoff: Fixed})
		for n := 1; n <= 3; n++ {
			assert.Equal(t, 2*time.Second, p.Delay(n))
		}
	})

	t.Run("ZeroRetryHasNoDelay", func(t *testing.T) {
		p := New(Options{MaxRetries: 3, InitialDelay: time.Second})
		assert.Zero(t, p.Delay(0))
	})
}

func TestExecuteExponentialBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var retried []int
	p := New(Options{
		MaxRetries:   3,
		InitialDelay: 1000 * time.Millisecond,
		MaxDelay:     10000 * time.Millisecond,
		Backoff:      Exponential,
		OnRetry: func(attempt int, err error) {
			retried = append(retried, attempt)
		},
	}, WithClock(clock))

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- p.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			calls.Add(1)
			return errBoom
		})
	}()

	for i, want := range []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond, 4000 * time.Millisecond} {
		clock.BlockUntil(1)
		require.EqualValues(t, i+1, calls.Load())

		clock.Advance(want - time.Millisecond)
		assert.EqualValues(t, i+1, calls.Load(), "retry %d ran before its delay elapsed", i+1)
		clock.Advance(time.Millisecond)
	}

	err := waitResult(t, done)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errBoom)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.EqualValues(t, 4, calls.Load())
	assert.Equal(t, []int{1, 2, 3}, retried)
}

func TestExecute(t *testing.T) {
	t.Run("SucceedsFirstTime", func(t *testing.T) {
		p := New(Options{MaxRetries: 3, InitialDelay: time.Hour})
		calls := 0
		err := p.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("RecoversBeforeExhaustion", func(t *testing.T) {
		p := New(Options{MaxRetries: 3, Backoff: Fixed})
		var attempts []int
		err := p.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			attempts = append(attempts, attempt)
			if attempt < 3 {
				return errBoom
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, attempts)
	})

	t.Run("NoRetries", func(t *testing.T) {
		p := New(Options{MaxRetries: 0})
		calls := 0
		err := p.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			calls++
			return errBoom
		})
		assert.ErrorIs(t, err, ErrExhausted)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, p.MaxAttempts())
	})

	t.Run("ShouldRetryStops", func(t *testing.T) {
		fatal := errors.New("fatal")
		onRetry := 0
		p := New(Options{
			MaxRetries:  5,
			ShouldRetry: func(err error) bool { return !errors.Is(err, fatal) },
			OnRetry:     func(int, error) { onRetry++ },
		})
		calls := 0
		err := p.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			calls++
			return fatal
		})
		assert.Equal(t, fatal, err)
		assert.NotErrorIs(t, err, ErrExhausted)
		assert.Equal(t, 1, calls)
		assert.Zero(t, onRetry)
	})

	t.Run("ContextCancelledWhileWaiting", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		p := New(Options{MaxRetries: 3, InitialDelay: time.Minute}, WithClock(clock))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- p.Execute(ctx, func(ctx context.Context, attempt int) error { return errBoom })
		}()

		clock.BlockUntil(1)
		cancel()

		err := waitResult(t, done)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrExhausted)
	})
}

func TestDo(t *testing.T) {
	p := New(Options{MaxRetries: 2, Backoff: Fixed})
	got, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (string, error) {
		if attempt == 1 {
			return "", errBoom
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestBackoffString(t *testing.T) {
	assert.Equal(t, "exponential", Exponential.String())
	assert.Equal(t, "fixed", Fixed.String())
	assert.Equal(t, "unknown", Backoff(9).String())
}
