package monitor

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"campusnet/internal/models"
)

const (
	// DefaultInterval is the polling period used when StartOptions leaves it unset.
	DefaultInterval = 30 * time.Second

	// 24h of samples at the default interval.
	defaultHistorySize = 2880
)

// StatusSource performs a single connectivity probe.
type StatusSource interface {
	Status(ctx context.Context) (models.ConnectivityStatus, error)
}

// Callback receives every delivered connectivity status.
type Callback func(models.ConnectivityStatus)

// StartOptions tunes a monitoring run.
type StartOptions struct {
	Interval      time.Duration
	SkipImmediate bool
}

// ConnectivitySource exposes connectivity probe results.
type ConnectivitySource interface {
	Latest() (models.ConnectivityStatus, bool)
	History() []models.ConnectivityStatus
	HistorySince(time.Time) []models.ConnectivityStatus
}

// ConnectivityMonitor periodically probes connectivity and hands every result
// to the callback registered with Start. At most one polling run is active.
type ConnectivityMonitor struct {
	source     StatusSource
	clock      clockwork.Clock
	log        logr.Logger
	maxHistory int

	runMu   sync.Mutex
	current *monitorRun

	// deliverMu serialises callback delivery against Stop.
	deliverMu sync.Mutex

	mu      sync.RWMutex
	latest  *models.ConnectivityStatus
	history []models.ConnectivityStatus

	loops atomic.Int32
}

type monitorRun struct {
	*poller
	cb Callback
}

// NewConnectivityMonitor configures a monitor probing through source.
func NewConnectivityMonitor(source StatusSource, opts ...Option) *ConnectivityMonitor {
	o := buildOptions(opts)
	return &ConnectivityMonitor{
		source:     source,
		clock:      o.clock,
		log:        o.log.WithName("monitor"),
		maxHistory: o.maxHistory,
	}
}

// Start begins periodic probing. Any previous run is stopped first. Unless
// SkipImmediate is set, one probe runs and is delivered before Start returns.
// Concurrent Starts leave exactly one run active. cb must not call Start or
// Stop.
func (m *ConnectivityMonitor) Start(ctx context.Context, cb Callback, opts StartOptions) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if cb == nil {
		cb = func(models.ConnectivityStatus) {}
	}

	run := &monitorRun{poller: newPoller(ctx, m.clock, interval), cb: cb}
	m.retire(m.swap(run))

	m.log.V(1).Info("Connectivity monitor started", "interval", interval, "immediate", !opts.SkipImmediate)

	if !opts.SkipImmediate {
		m.tick(run)
	}

	m.loops.Add(1)
	go func() {
		defer m.loops.Add(-1)
		run.loop(func() { m.tick(run) })
	}()
}

// Stop halts the active run. Once Stop returns the callback is not invoked
// again for that run; a probe already in flight completes but its result is
// discarded.
func (m *ConnectivityMonitor) Stop() {
	if m.retire(m.swap(nil)) {
		m.log.V(1).Info("Connectivity monitor stopped")
	}
}

// swap installs next as the active run and returns the one it replaced.
// Concurrent callers each get a distinct previous run, so every replaced
// run is retired exactly once.
func (m *ConnectivityMonitor) swap(next *monitorRun) *monitorRun {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	prev := m.current
	m.current = next
	return prev
}

// retire halts run and waits out a delivery that began before the halt.
func (m *ConnectivityMonitor) retire(run *monitorRun) bool {
	if run == nil {
		return false
	}
	run.halt()
	m.deliverMu.Lock()
	m.deliverMu.Unlock()
	return true
}

// Running reports whether a polling run is active.
func (m *ConnectivityMonitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.current != nil
}

// CheckNow probes immediately. The result is recorded and, when a run is
// active, delivered to its callback.
func (m *ConnectivityMonitor) CheckNow(ctx context.Context) models.ConnectivityStatus {
	status := m.check(ctx)

	m.runMu.Lock()
	run := m.current
	m.runMu.Unlock()

	if run != nil {
		m.deliver(run, status)
		return status
	}

	m.deliverMu.Lock()
	m.record(status)
	m.deliverMu.Unlock()
	return status
}

// Latest returns the most recent connectivity sample.
func (m *ConnectivityMonitor) Latest() (models.ConnectivityStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.latest == nil {
		return models.ConnectivityStatus{}, false
	}
	return *m.latest, true
}

// History returns up to maxHistory previous connectivity samples.
func (m *ConnectivityMonitor) History() []models.ConnectivityStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.history) == 0 {
		return nil
	}
	out := make([]models.ConnectivityStatus, len(m.history))
	copy(out, m.history)
	return out
}

// HistorySince returns samples whose timestamp is >= cutoff.
func (m *ConnectivityMonitor) HistorySince(cutoff time.Time) []models.ConnectivityStatus {
	if cutoff.IsZero() {
		return m.History()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := sort.Search(len(m.history), func(i int) bool {
		return !m.history[i].CheckedAt.Before(cutoff)
	})
	if idx >= len(m.history) {
		return nil
	}
	out := make([]models.ConnectivityStatus, len(m.history)-idx)
	copy(out, m.history[idx:])
	return out
}

func (m *ConnectivityMonitor) tick(run *monitorRun) {
	m.deliver(run, m.check(run.ctx))
}

func (m *ConnectivityMonitor) check(ctx context.Context) models.ConnectivityStatus {
	status, err := m.source.Status(ctx)
	if err != nil {
		m.log.V(1).Info("Connectivity probe failed", "error", err.Error())
		return models.Disconnected(err, m.clock.Now().UTC())
	}
	if status.CheckedAt.IsZero() {
		status.CheckedAt = m.clock.Now().UTC()
	}
	return status
}

func (m *ConnectivityMonitor) deliver(run *monitorRun, status models.ConnectivityStatus) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	if run.halted() {
		m.log.V(2).Info("Discarding probe result after stop", "connected", status.Connected)
		return
	}
	m.record(status)
	run.cb(status)
}

func (m *ConnectivityMonitor) record(status models.ConnectivityStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latest = &status
	m.history = append(m.history, status)
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
}
