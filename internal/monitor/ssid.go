package monitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"campusnet/internal/models"
)

// DefaultSSIDInterval is how often the watcher polls the adapter.
const DefaultSSIDInterval = 5 * time.Second

// SSIDSource reports the currently associated wifi network.
type SSIDSource interface {
	CurrentWifi(ctx context.Context) (*models.WifiInfo, error)
}

// SSIDChange is invoked with the previous and current SSID whenever the
// association changes. An empty string means no association.
type SSIDChange func(previous, current string)

// SSIDWatcher polls the wifi adapter and reports association changes.
type SSIDWatcher struct {
	source SSIDSource
	clock  clockwork.Clock
	log    logr.Logger

	mu      sync.Mutex
	current *poller
	last    string

	deliverMu sync.Mutex
}

// NewSSIDWatcher creates a watcher reading from source.
func NewSSIDWatcher(source SSIDSource, opts ...Option) *SSIDWatcher {
	o := buildOptions(opts)
	return &SSIDWatcher{
		source: source,
		clock:  o.clock,
		log:    o.log.WithName("ssid"),
	}
}

// Start records the current SSID as the baseline and begins polling.
// A running watch is stopped first. onChange must not call Start or Stop.
func (w *SSIDWatcher) Start(ctx context.Context, interval time.Duration, onChange SSIDChange) {
	w.Stop()
	if interval <= 0 {
		interval = DefaultSSIDInterval
	}

	baseline := w.read(ctx)
	p := newPoller(ctx, w.clock, interval)

	w.mu.Lock()
	w.current = p
	w.last = baseline
	w.mu.Unlock()

	w.log.V(1).Info("SSID watcher started", "ssid", baseline, "interval", interval)
	go p.loop(func() { w.poll(p, onChange) })
}

// Stop halts polling. No change is reported after Stop returns.
func (w *SSIDWatcher) Stop() {
	w.mu.Lock()
	p := w.current
	w.current = nil
	w.mu.Unlock()

	if p == nil {
		return
	}
	p.halt()
	w.deliverMu.Lock()
	w.deliverMu.Unlock()
}

// Current returns the last observed SSID.
func (w *SSIDWatcher) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *SSIDWatcher) poll(p *poller, onChange SSIDChange) {
	ssid := w.read(p.ctx)

	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	if p.halted() {
		return
	}

	w.mu.Lock()
	prev := w.last
	w.last = ssid
	w.mu.Unlock()

	if prev == ssid {
		return
	}
	w.log.Info("Wifi association changed", "from", prev, "to", ssid)
	if onChange != nil {
		onChange(prev, ssid)
	}
}

// read treats adapter errors as "not associated".
func (w *SSIDWatcher) read(ctx context.Context) string {
	info, err := w.source.CurrentWifi(ctx)
	if err != nil {
		w.log.V(2).Info("Reading current wifi failed", "error", err.Error())
		return ""
	}
	if info == nil {
		return ""
	}
	return strings.TrimSpace(info.SSID)
}
