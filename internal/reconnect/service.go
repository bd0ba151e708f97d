// Package reconnect re-authenticates against the captive portal when the
// monitored link loses connectivity.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"campusnet/internal/events"
	"campusnet/internal/models"
	"campusnet/internal/retry"
)

var (
	// ErrInProgress is returned when a reconnect flow is already running.
	ErrInProgress = errors.New("reconnect already in progress")
	// ErrNoNetwork means the interface has no IPv4 address to log in with.
	ErrNoNetwork = errors.New("no IPv4 address on the active interface")
	// ErrLoginRejected wraps a portal answer with success=false.
	ErrLoginRejected = errors.New("portal rejected login")
	// ErrNoCredentials means no account is configured for the network.
	ErrNoCredentials = errors.New("no portal account configured")
)

// AuthService logs in against the captive portal.
type AuthService interface {
	Login(ctx context.Context, cfg models.LoginConfig) (models.AuthResult, error)
}

// Link reports the local link the login request is issued for.
type Link interface {
	CurrentWifi(ctx context.Context) (*models.WifiInfo, error)
	NetworkInfo(ctx context.Context) (models.NetworkInfo, error)
}

// Credentials resolves the portal account to use on a network.
type Credentials interface {
	CredentialsFor(ssid string) (models.Account, bool)
}

// CredentialsFunc adapts a function to Credentials.
type CredentialsFunc func(ssid string) (models.Account, bool)

// CredentialsFor calls f.
func (f CredentialsFunc) CredentialsFor(ssid string) (models.Account, bool) { return f(ssid) }

// Settings tune the re-login flow.
type Settings struct {
	Enabled      bool
	ServerURL    string
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      true,
		MaxRetries:   retry.DefaultMaxRetries,
		InitialDelay: 2 * time.Second,
		MaxDelay:     retry.DefaultMaxDelay,
	}
}

// Option customises a Service.
type Option func(*Service)

// WithClock sets the clock used for retry sleeps and timing.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Service) { s.log = log.WithName("reconnect") }
}

// WithPublisher sets where lifecycle events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// Service watches connectivity transitions and re-logs in on the same link.
// At most one flow runs at a time.
type Service struct {
	auth  AuthService
	link  Link
	creds Credentials

	clock  clockwork.Clock
	log    logr.Logger
	events events.Publisher

	settingsMu sync.RWMutex
	settings   Settings

	enabled atomic.Bool
	running atomic.Bool

	lastMu sync.Mutex
	last   *models.ConnectivityStatus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle service.
func New(auth AuthService, link Link, creds Credentials, settings Settings, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		auth:     auth,
		link:     link,
		creds:    creds,
		clock:    clockwork.NewRealClock(),
		log:      logr.Discard(),
		events:   events.Discard,
		settings: settings,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.enabled.Store(settings.Enabled)
	return s
}

// SetEnabled turns automatic reconnects on or off. Manual triggers still work.
func (s *Service) SetEnabled(enabled bool) {
	if s.enabled.Swap(enabled) != enabled {
		s.log.Info("Auto reconnect toggled", "enabled", enabled)
	}
}

// Enabled reports whether automatic reconnects are on.
func (s *Service) Enabled() bool {
	return s.enabled.Load()
}

// UpdateSettings replaces the settings used by the next flow.
func (s *Service) UpdateSettings(settings Settings) {
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()
	s.SetEnabled(settings.Enabled)
}

// State reports whether a flow is running.
func (s *Service) State() State {
	if s.running.Load() {
		return Reconnecting
	}
	return Idle
}

// Observe feeds a connectivity status. A connected to disconnected
// transition starts a flow when the service is enabled and idle. It reports
// whether a flow was started.
func (s *Service) Observe(status models.ConnectivityStatus) bool {
	s.lastMu.Lock()
	prev := s.last
	s.last = &status
	s.lastMu.Unlock()

	if prev == nil || !prev.Connected || status.Connected {
		return false
	}
	if !s.Enabled() {
		s.log.V(1).Info("Connectivity lost, auto reconnect disabled")
		return false
	}
	s.log.Info("Connectivity lost, starting re-login", "ssid", prev.SSID)
	return s.TriggerReconnect()
}

// TriggerReconnect starts a flow in the background. It returns false
// immediately when a flow is already running.
func (s *Service) TriggerReconnect() bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.V(1).Info("Reconnect already in progress")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		_ = s.run(s.ctx)
	}()
	return true
}

// Reconnect runs a flow and waits for it to finish.
func (s *Service) Reconnect(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrInProgress
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.wg.Add(1)
	defer s.wg.Done()
	return s.run(ctx)
}

// Close cancels any running flow and waits for it to return.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context) error {
	s.settingsMu.RLock()
	settings := s.settings
	s.settingsMu.RUnlock()

	started := s.clock.Now()
	ssid := s.currentSSID(ctx)
	account, ok := s.creds.CredentialsFor(ssid)

	policy := retry.New(retry.Options{
		MaxRetries:   settings.MaxRetries,
		InitialDelay: settings.InitialDelay,
		MaxDelay:     settings.MaxDelay,
		Backoff:      retry.Exponential,
		OnRetry: func(attempt int, err error) {
			s.log.Info("Re-login attempt failed", "attempt", attempt, "error", err.Error())
		},
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, ErrNoCredentials)
		},
	}, retry.WithClock(s.clock))
	maxAttempts := policy.MaxAttempts()

	target := account.Account
	if target == "" {
		target = ssid
	}
	s.events.Publish(events.ReconnectStarted, models.ReconnectAttempt{
		Target:      target,
		MaxAttempts: maxAttempts,
		Status:      models.AttemptConnecting,
	})

	attempts := 0
	err := policy.Execute(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		s.events.Publish(events.ReconnectAttempt, models.ReconnectAttempt{
			Target:      target,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Status:      models.AttemptConnecting,
		})
		s.publishProgress(ssid, attempt, maxAttempts, models.AttemptConnecting)
		if !ok {
			return ErrNoCredentials
		}
		return s.login(ctx, settings.ServerURL, account)
	})

	outcome := models.ReconnectOutcome{
		Target:   target,
		Attempts: attempts,
		Took:     s.clock.Since(started),
	}
	if err != nil {
		outcome.Error = err.Error()
		s.log.Error(err, "Re-login failed", "target", target, "attempts", attempts)
		s.publishProgress(ssid, attempts, maxAttempts, models.AttemptFailed)
		s.events.Publish(events.ReconnectFailed, outcome)
		return err
	}

	s.log.Info("Re-login succeeded", "target", target, "attempts", attempts, "took", outcome.Took)
	s.publishProgress(ssid, attempts, maxAttempts, models.AttemptSuccess)
	s.events.Publish(events.ReconnectSucceeded, outcome)
	return nil
}

func (s *Service) login(ctx context.Context, serverURL string, account models.Account) error {
	info, err := s.link.NetworkInfo(ctx)
	if err != nil {
		return fmt.Errorf("read network info: %w", err)
	}
	if strings.TrimSpace(info.IPv4) == "" {
		return ErrNoNetwork
	}

	result, err := s.auth.Login(ctx, models.LoginConfig{
		ServerURL:    serverURL,
		UserAccount:  account.Account,
		UserPassword: account.Password,
		WlanUserIP:   info.IPv4,
		WlanUserIPv6: info.IPv6,
		WlanUserMAC:  info.MAC,
		ISP:          account.ISP,
	})
	if err != nil {
		return fmt.Errorf("portal login: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("%w: %s", ErrLoginRejected, result.Message)
	}
	return nil
}

func (s *Service) currentSSID(ctx context.Context) string {
	info, err := s.link.CurrentWifi(ctx)
	if err != nil || info == nil {
		return ""
	}
	return info.SSID
}

func (s *Service) publishProgress(ssid string, attempt, maxAttempts int, status models.AttemptStatus) {
	s.events.Publish(events.ReconnectProgress, models.ReconnectProgress{
		SSID:        ssid,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Status:      status,
		Flow:        "auth",
	})
}
