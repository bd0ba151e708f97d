// Package daemon assembles the monitor, re-login and failover engines from a
// configuration and runs them until cancelled.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"campusnet/internal/catalog"
	"campusnet/internal/config"
	"campusnet/internal/events"
	"campusnet/internal/failover"
	"campusnet/internal/metrics"
	"campusnet/internal/models"
	"campusnet/internal/monitor"
	"campusnet/internal/portal"
	"campusnet/internal/reconnect"
	"campusnet/internal/server"
	"campusnet/internal/storage"
	"campusnet/internal/wifi"
)

const shutdownTimeout = 5 * time.Second

// Daemon owns every long-running component.
type Daemon struct {
	path  string
	cfg   atomic.Pointer[config.Config]
	cat   atomic.Pointer[catalog.Catalog]
	log   logr.Logger
	clock clockwork.Clock

	bus     *events.Bus
	journal *storage.EventJournal
	adapter wifi.Adapter
	portal  *portal.Client

	monitor   *monitor.ConnectivityMonitor
	reconnect *reconnect.Service
	failover  *failover.Controller
	ssid      *monitor.SSIDWatcher
	server    *server.Server

	mu       sync.Mutex
	runCtx   context.Context
	interval time.Duration
	detach   []func()
}

// Option customises a Daemon.
type Option func(*Daemon)

// WithClock replaces the clock shared by all components.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Daemon) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithAdapter replaces the platform WiFi adapter.
func WithAdapter(a wifi.Adapter) Option {
	return func(d *Daemon) { d.adapter = a }
}

// New builds a daemon for cfg. path is re-read by Reload.
func New(path string, cfg config.Config, log logr.Logger, opts ...Option) *Daemon {
	d := &Daemon{
		path:  path,
		log:   log,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.adapter == nil {
		d.adapter = wifi.NewPlatform(log.WithName("wifi"), cfg.Wifi.Interface)
	}
	d.cfg.Store(&cfg)
	d.cat.Store(catalog.New(cfg.Wifi.Profiles))

	d.bus = events.NewBus(log.WithName("events"))
	d.journal = storage.NewEventJournal(storage.DefaultJournalSize)
	metrics.InitMetrics()
	d.detach = append(d.detach, d.journal.Attach(d.bus), metrics.Attach(d.bus))

	d.portal = portal.New(cfg.Portal.ServerURL,
		portal.WithHTTPClient(&http.Client{Timeout: cfg.Portal.Timeout()}),
		portal.WithLogger(log),
	)

	prober := monitor.NewProber(cfg.Monitor.Endpoints,
		monitor.WithProbeTimeout(cfg.Monitor.Timeout()),
		monitor.WithLinkInfo(d.adapter),
		monitor.WithProberClock(d.clock),
		monitor.WithProberLogger(log),
	)
	d.monitor = monitor.NewConnectivityMonitor(prober,
		monitor.WithClock(d.clock),
		monitor.WithLogger(log),
		monitor.WithHistorySize(cfg.Monitor.HistorySize),
	)

	d.reconnect = reconnect.New(d.portal, d.adapter,
		reconnect.CredentialsFunc(d.credentialsFor),
		reconnectSettings(cfg),
		reconnect.WithClock(d.clock),
		reconnect.WithLogger(log),
		reconnect.WithPublisher(d.bus),
	)

	switch {
	case !cfg.Failover.Enabled:
		log.Info("WiFi failover disabled by configuration")
	case !wifi.Supported(d.adapter):
		log.Info("WiFi failover unavailable, adapter cannot switch networks")
	default:
		d.failover = failover.New(d.adapter, d.Catalog(), failoverSettings(cfg),
			failover.WithClock(d.clock),
			failover.WithLogger(log),
			failover.WithPublisher(d.bus),
			failover.WithStatusRefresher(d.monitor),
			failover.WithReauthenticator(d.reconnect),
		)
		d.ssid = monitor.NewSSIDWatcher(d.adapter, monitor.WithClock(d.clock), monitor.WithLogger(log))
	}

	if cfg.Server.Enabled {
		srvOpts := server.Options{
			Addr:           cfg.Server.Listen,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Monitor:        d.monitor,
			Checker:        d.monitor,
			Reconnect:      d.reconnect,
			Profiles:       d,
			Journal:        d.journal,
			Bus:            d.bus,
			Clock:          d.clock,
			Log:            log,
		}
		if d.failover != nil {
			srvOpts.Failover = d.failover
		}
		d.server = server.New(srvOpts)
	}
	return d
}

// Run starts every component and blocks until ctx is cancelled or the HTTP
// server fails.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.Config()

	d.mu.Lock()
	d.runCtx = ctx
	d.interval = cfg.Monitor.Interval()
	d.monitor.Start(ctx, d.onStatus, monitor.StartOptions{Interval: d.interval})
	d.mu.Unlock()

	if d.ssid != nil {
		d.ssid.Start(ctx, cfg.Failover.SSIDPoll(), func(prev, cur string) {
			d.failover.HandleSSIDChange(prev, cur)
		})
	}

	errCh := make(chan error, 1)
	if d.server != nil {
		go func() { errCh <- d.server.Run() }()
	}

	d.log.Info("campusnet running",
		"interval", d.interval,
		"profiles", d.Catalog().Len(),
		"failover", d.failover != nil,
		"reconnect", cfg.Reconnect.Enabled,
	)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			err = fmt.Errorf("http server: %w", err)
		}
	}
	d.shutdown()
	return err
}

func (d *Daemon) shutdown() {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.server.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			d.log.Error(err, "HTTP server shutdown")
		}
		cancel()
	}
	if d.ssid != nil {
		d.ssid.Stop()
	}
	d.monitor.Stop()
	if d.failover != nil {
		d.failover.Close()
	}
	d.reconnect.Close()
	for _, fn := range d.detach {
		fn()
	}
	d.log.Info("campusnet stopped")
}

// Reload re-reads the configuration file and applies what can change at
// runtime: profiles, accounts, portal URL, re-login settings and the poll
// interval.
func (d *Daemon) Reload() error {
	cfg, err := config.Load(d.path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	d.apply(cfg)
	d.log.Info("Configuration reloaded", "path", d.path, "profiles", len(cfg.Wifi.Profiles))
	return nil
}

func (d *Daemon) apply(cfg config.Config) {
	d.cfg.Store(&cfg)
	cat := catalog.New(cfg.Wifi.Profiles)
	d.cat.Store(cat)

	d.portal.SetServerURL(cfg.Portal.ServerURL)
	d.reconnect.UpdateSettings(reconnectSettings(cfg))
	if d.failover != nil {
		d.failover.SetCatalog(cat)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runCtx == nil || d.interval == cfg.Monitor.Interval() {
		return
	}
	d.interval = cfg.Monitor.Interval()
	d.monitor.Start(d.runCtx, d.onStatus, monitor.StartOptions{Interval: d.interval, SkipImmediate: true})
}

func (d *Daemon) onStatus(status models.ConnectivityStatus) {
	d.bus.Publish(events.StatusChanged, status)
	if d.reconnect.Observe(status) {
		d.log.Info("Connectivity lost, portal re-login started", "ssid", status.SSID, "error", status.Error)
	}
}

func (d *Daemon) credentialsFor(ssid string) (models.Account, bool) {
	return d.Config().CredentialsFor(ssid)
}

// Config returns the active configuration.
func (d *Daemon) Config() config.Config { return *d.cfg.Load() }

// Catalog returns the active profile snapshot.
func (d *Daemon) Catalog() *catalog.Catalog { return d.cat.Load() }

// Journal exposes recorded events.
func (d *Daemon) Journal() *storage.EventJournal { return d.journal }

// Bus exposes the event bus.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// FailoverEnabled reports whether the failover controller is wired.
func (d *Daemon) FailoverEnabled() bool { return d.failover != nil }

// Monitor exposes the connectivity monitor.
func (d *Daemon) Monitor() *monitor.ConnectivityMonitor { return d.monitor }

// Reconnector exposes the portal re-login service.
func (d *Daemon) Reconnector() *reconnect.Service { return d.reconnect }

func reconnectSettings(cfg config.Config) reconnect.Settings {
	return reconnect.Settings{
		Enabled:      cfg.Reconnect.Enabled,
		ServerURL:    cfg.Portal.ServerURL,
		MaxRetries:   cfg.Reconnect.MaxRetries,
		InitialDelay: cfg.Reconnect.InitialDelay(),
		MaxDelay:     cfg.Reconnect.MaxDelay(),
	}
}

func failoverSettings(cfg config.Config) failover.Settings {
	return failover.Settings{
		MaxRetries:  cfg.Failover.MaxRetries,
		RetryPause:  cfg.Failover.RetryPause(),
		SwitchPause: cfg.Failover.SwitchPause(),
		SettleDelay: cfg.Failover.SettleDelay(),
	}
}
