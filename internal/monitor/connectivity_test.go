package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusnet/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	status  models.ConnectivityStatus
	err     error
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (s *fakeSource) set(status models.ConnectivityStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.err = status, err
}

func (s *fakeSource) Status(context.Context) (models.ConnectivityStatus, error) {
	s.mu.Lock()
	s.calls++
	entered, release := s.entered, s.release
	status, err := s.status, s.err
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return status, err
}

type recorder struct {
	mu       sync.Mutex
	statuses []models.ConnectivityStatus
}

func (r *recorder) callback(s models.ConnectivityStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func (r *recorder) last() models.ConnectivityStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[len(r.statuses)-1]
}

func TestStartDeliversImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{status: models.ConnectivityStatus{Connected: true, Authenticated: true}}
	m := NewConnectivityMonitor(src, WithClock(clock))
	defer m.Stop()

	rec := &recorder{}
	m.Start(context.Background(), rec.callback, StartOptions{Interval: time.Minute})

	require.Equal(t, 1, rec.count())
	assert.True(t, rec.last().Connected)
	assert.Equal(t, clock.Now().UTC(), rec.last().CheckedAt)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.True(t, latest.Connected)
}

func TestTicksDeliverPeriodically(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{status: models.ConnectivityStatus{Connected: true}}
	m := NewConnectivityMonitor(src, WithClock(clock))
	defer m.Stop()

	rec := &recorder{}
	m.Start(context.Background(), rec.callback, StartOptions{Interval: 30 * time.Second, SkipImmediate: true})
	assert.Zero(t, rec.count())

	assert.Eventually(t, func() bool {
		clock.Advance(30 * time.Second)
		return rec.count() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestStopPreventsFurtherDelivery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{status: models.ConnectivityStatus{Connected: true}}
	m := NewConnectivityMonitor(src, WithClock(clock))

	rec := &recorder{}
	m.Start(context.Background(), rec.callback, StartOptions{Interval: 10 * time.Second})
	require.Equal(t, 1, rec.count())

	m.Stop()
	assert.False(t, m.Running())
	clock.Advance(time.Minute)

	assert.Eventually(t, func() bool { return m.loops.Load() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestStopDiscardsInFlightProbe(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{
		status:  models.ConnectivityStatus{Connected: true},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m := NewConnectivityMonitor(src, WithClock(clock))

	var delivered atomic.Int32
	m.Start(context.Background(), func(models.ConnectivityStatus) { delivered.Add(1) },
		StartOptions{Interval: 10 * time.Second, SkipImmediate: true})

	clock.Advance(10 * time.Second)
	select {
	case <-src.entered:
	case <-time.After(time.Second):
		t.Fatal("probe did not start")
	}

	m.Stop()
	close(src.release)

	assert.Eventually(t, func() bool { return m.loops.Load() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, delivered.Load())
	_, ok := m.Latest()
	assert.False(t, ok)
}

func TestStartTwiceKeepsOneLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{status: models.ConnectivityStatus{Connected: true}}
	m := NewConnectivityMonitor(src, WithClock(clock))
	defer m.Stop()

	first := &recorder{}
	second := &recorder{}
	m.Start(context.Background(), first.callback, StartOptions{Interval: time.Minute, SkipImmediate: true})
	m.Start(context.Background(), second.callback, StartOptions{Interval: time.Minute, SkipImmediate: true})

	assert.Eventually(t, func() bool { return m.loops.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		return second.count() >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, first.count())
}

func TestConcurrentStartsLeaveOneRun(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{status: models.ConnectivityStatus{Connected: true}}
	m := NewConnectivityMonitor(src, WithClock(clock))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Start(context.Background(), func(models.ConnectivityStatus) {}, StartOptions{Interval: time.Minute, SkipImmediate: true})
		}()
	}
	wg.Wait()

	assert.True(t, m.Running())
	assert.Eventually(t, func() bool { return m.loops.Load() == 1 }, time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.Running())
	assert.Eventually(t, func() bool { return m.loops.Load() == 0 }, time.Second, 5*time.Millisecond)
}

func TestProbeErrorBecomesDisconnected(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{err: errors.New("network down")}
	m := NewConnectivityMonitor(src, WithClock(clock))
	defer m.Stop()

	rec := &recorder{}
	m.Start(context.Background(), rec.callback, StartOptions{})

	require.Equal(t, 1, rec.count())
	got := rec.last()
	assert.False(t, got.Connected)
	assert.False(t, got.Authenticated)
	assert.Equal(t, "network down", got.Error)
	assert.False(t, got.CheckedAt.IsZero())
}

func TestCheckNow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{status: models.ConnectivityStatus{Connected: false}}
	m := NewConnectivityMonitor(src, WithClock(clock))

	t.Run("WithoutRun", func(t *testing.T) {
		status := m.CheckNow(context.Background())
		assert.False(t, status.Connected)
		assert.Len(t, m.History(), 1)
	})

	t.Run("DeliversToActiveRun", func(t *testing.T) {
		rec := &recorder{}
		m.Start(context.Background(), rec.callback, StartOptions{Interval: time.Hour, SkipImmediate: true})
		defer m.Stop()

		src.set(models.ConnectivityStatus{Connected: true, Authenticated: true}, nil)
		status := m.CheckNow(context.Background())
		assert.True(t, status.Connected)
		require.Equal(t, 1, rec.count())
		assert.True(t, rec.last().Authenticated)
	})
}

func TestHistoryBoundedAndSince(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{}
	m := NewConnectivityMonitor(src, WithClock(clock), WithHistorySize(3))

	start := clock.Now().UTC()
	for i := 0; i < 5; i++ {
		src.set(models.ConnectivityStatus{Connected: i%2 == 0, CheckedAt: start.Add(time.Duration(i) * time.Minute)}, nil)
		m.CheckNow(context.Background())
	}

	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, start.Add(2*time.Minute), history[0].CheckedAt)

	since := m.HistorySince(start.Add(3 * time.Minute))
	require.Len(t, since, 2)
	assert.Equal(t, start.Add(4*time.Minute), since[1].CheckedAt)

	assert.Nil(t, m.HistorySince(start.Add(time.Hour)))
	assert.Len(t, m.HistorySince(time.Time{}), 3)
}
