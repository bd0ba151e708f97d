// Package failover rejoins WiFi when the associated network disappears:
// first the dropped network, then the other auto-connect profiles by
// priority, reporting an aggregate failure when nothing connects.
package failover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"campusnet/internal/catalog"
	"campusnet/internal/events"
	"campusnet/internal/models"
	"campusnet/internal/retry"
)

var (
	// ErrAlreadyRunning is returned while another failover flow is in flight.
	ErrAlreadyRunning = errors.New("failover already running")
	// ErrNotEligible means the dropped network is unknown or not auto-connect.
	ErrNotEligible = errors.New("network not eligible for failover")
	// ErrAllFailed means no profile could be joined.
	ErrAllFailed = errors.New("all reconnects failed")
)

// Connector joins a WiFi network.
type Connector interface {
	Connect(ctx context.Context, ssid, password string) (bool, error)
}

// StatusRefresher produces a fresh connectivity status after a switch.
type StatusRefresher interface {
	CheckNow(ctx context.Context) models.ConnectivityStatus
}

// Reauthenticator starts a portal re-login.
type Reauthenticator interface {
	TriggerReconnect() bool
}

type noopRefresher struct{}

func (noopRefresher) CheckNow(context.Context) models.ConnectivityStatus {
	return models.ConnectivityStatus{}
}

type noopReauthenticator struct{}

func (noopReauthenticator) TriggerReconnect() bool { return false }

// Settings tune the failover flow.
type Settings struct {
	// MaxRetries is the number of connect attempts per network.
	MaxRetries  int
	RetryPause  time.Duration
	SwitchPause time.Duration
	SettleDelay time.Duration
}

// DefaultSettings returns the stock timings.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:  retry.DefaultMaxRetries,
		RetryPause:  2 * time.Second,
		SwitchPause: time.Second,
		SettleDelay: 3 * time.Second,
	}
}

// Outcome summarises a finished flow.
type Outcome struct {
	Success    bool                   `json:"success"`
	From       string                 `json:"from"`
	SSID       string                 `json:"ssid,omitempty"`
	Phase      int                    `json:"phase,omitempty"`
	FailedList []models.FailureRecord `json:"failed_list,omitempty"`
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock sets the clock for pauses.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Controller) { c.log = log.WithName("failover") }
}

// WithPublisher sets where progress events go.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.events = p
		}
	}
}

// WithStatusRefresher asks r for a fresh status once a network is joined.
func WithStatusRefresher(r StatusRefresher) Option {
	return func(c *Controller) {
		if r != nil {
			c.refresher = r
		}
	}
}

// WithReauthenticator prompts r when a joined network needs portal login.
func WithReauthenticator(r Reauthenticator) Option {
	return func(c *Controller) {
		if r != nil {
			c.reauth = r
		}
	}
}

// Controller runs at most one failover flow at a time.
type Controller struct {
	connector Connector
	settings  Settings
	catalog   atomic.Pointer[catalog.Catalog]

	clock     clockwork.Clock
	log       logr.Logger
	events    events.Publisher
	refresher StatusRefresher
	reauth    Reauthenticator

	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller reading profiles from cat.
func New(connector Connector, cat *catalog.Catalog, settings Settings, opts ...Option) *Controller {
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = retry.DefaultMaxRetries
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		connector: connector,
		settings:  settings,
		clock:     clockwork.NewRealClock(),
		log:       logr.Discard(),
		events:    events.Discard,
		refresher: noopRefresher{},
		reauth:    noopReauthenticator{},
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.SetCatalog(cat)
	return c
}

// SetCatalog swaps in a new profile snapshot. Running flows keep the old one.
func (c *Controller) SetCatalog(cat *catalog.Catalog) {
	if cat == nil {
		cat = catalog.New(nil)
	}
	c.catalog.Store(cat)
}

// Catalog returns the current profile snapshot.
func (c *Controller) Catalog() *catalog.Catalog {
	return c.catalog.Load()
}

// Running reports whether a flow is in flight.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// HandleSSIDChange starts a background flow when the association drops
// from prev to nothing. It reports whether a flow was started.
func (c *Controller) HandleSSIDChange(prev, cur string) bool {
	if prev == "" || cur != "" {
		return false
	}

	cat := c.catalog.Load()
	profile, err := c.begin(cat, prev)
	if err != nil {
		c.log.V(1).Info("Not failing over", "ssid", prev, "reason", err.Error())
		return false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)
		_, _ = c.run(c.ctx, cat, profile)
	}()
	return true
}

// Failover runs the flow for the dropped network ssid and waits for it.
func (c *Controller) Failover(ctx context.Context, ssid string) (Outcome, error) {
	cat := c.catalog.Load()
	profile, err := c.begin(cat, ssid)
	if err != nil {
		return Outcome{From: ssid}, err
	}
	defer c.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	c.wg.Add(1)
	defer c.wg.Done()
	return c.run(ctx, cat, profile)
}

// Close cancels a running flow and waits for it.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// begin checks eligibility and claims the running flag.
func (c *Controller) begin(cat *catalog.Catalog, ssid string) (models.WifiProfile, error) {
	profile, ok := cat.Lookup(ssid)
	if !ok || !profile.AutoConnect {
		return models.WifiProfile{}, fmt.Errorf("%w: %q", ErrNotEligible, ssid)
	}
	if !c.running.CompareAndSwap(false, true) {
		return models.WifiProfile{}, ErrAlreadyRunning
	}
	return profile, nil
}

func (c *Controller) run(ctx context.Context, cat *catalog.Catalog, dropped models.WifiProfile) (Outcome, error) {
	outcome := Outcome{From: dropped.SSID}
	var failed []models.FailureRecord

	c.log.Info("Network dropped, retrying", "ssid", dropped.SSID)
	if c.connect(ctx, dropped, &failed) {
		return c.switched(ctx, outcome, dropped, 1, failed)
	}

	for _, candidate := range cat.FailoverCandidates(dropped.SSID) {
		if err := c.pause(ctx, c.settings.SwitchPause); err != nil {
			outcome.FailedList = failed
			return outcome, err
		}
		c.log.Info("Trying alternate network", "ssid", candidate.SSID, "priority", candidate.Priority)
		if c.connect(ctx, candidate, &failed) {
			return c.switched(ctx, outcome, candidate, 2, failed)
		}
	}

	outcome.FailedList = failed
	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	c.log.Info("All reconnects failed", "tried", len(failed))
	c.events.Publish(events.AllReconnectsFailed, models.AllReconnectsFailed{FailedList: failed})
	return outcome, ErrAllFailed
}

// connect makes up to MaxRetries attempts to join p. On failure it appends
// one FailureRecord carrying the last error.
func (c *Controller) connect(ctx context.Context, p models.WifiProfile, failed *[]models.FailureRecord) bool {
	policy := retry.New(retry.Options{
		MaxRetries:   c.settings.MaxRetries - 1,
		InitialDelay: c.settings.RetryPause,
		Backoff:      retry.Fixed,
	}, retry.WithClock(c.clock))
	maxAttempts := policy.MaxAttempts()

	attempts := 0
	err := policy.Execute(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		c.publishProgress(p.SSID, attempt, maxAttempts, models.AttemptConnecting)

		ok, err := c.connector.Connect(ctx, p.SSID, p.Password)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("connect to %q failed", p.SSID)
		}
		return nil
	})
	if err == nil {
		c.publishProgress(p.SSID, attempts, maxAttempts, models.AttemptSuccess)
		return true
	}

	reason := err
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		reason = exhausted.Err
	}
	c.log.Info("Could not join network", "ssid", p.SSID, "attempts", attempts, "reason", reason.Error())
	c.publishProgress(p.SSID, attempts, maxAttempts, models.AttemptFailed)
	*failed = append(*failed, models.FailureRecord{
		SSID:     p.SSID,
		Priority: p.Priority,
		Reason:   reason.Error(),
	})
	return false
}

func (c *Controller) switched(ctx context.Context, outcome Outcome, p models.WifiProfile, phase int, failed []models.FailureRecord) (Outcome, error) {
	outcome.Success = true
	outcome.SSID = p.SSID
	outcome.Phase = phase
	outcome.FailedList = failed

	c.log.Info("Joined network", "ssid", p.SSID, "phase", phase)
	c.events.Publish(events.NetworkSwitched, models.NetworkSwitched{From: outcome.From, To: p.SSID, Phase: phase})

	if err := c.pause(ctx, c.settings.SettleDelay); err != nil {
		return outcome, nil
	}
	status := c.refresher.CheckNow(ctx)
	if p.RequiresAuth && !status.Authenticated {
		c.log.Info("Joined network needs portal login", "ssid", p.SSID)
		c.reauth.TriggerReconnect()
	}
	return outcome, nil
}

func (c *Controller) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

func (c *Controller) publishProgress(ssid string, attempt, maxAttempts int, status models.AttemptStatus) {
	c.events.Publish(events.ReconnectProgress, models.ReconnectProgress{
		SSID:        ssid,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Status:      status,
		Flow:        "wifi",
	})
}
