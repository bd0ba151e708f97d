package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"campusnet/internal/models"
)

// Config represents configuration data for the campusnet daemon.
type Config struct {
	Server    Server           `yaml:"server"`
	Portal    Portal           `yaml:"portal"`
	Accounts  []models.Account `yaml:"accounts"`
	Monitor   Monitor          `yaml:"monitor"`
	Reconnect Reconnect        `yaml:"reconnect"`
	Failover  Failover         `yaml:"failover"`
	Wifi      Wifi             `yaml:"wifi"`
	Log       Log              `yaml:"log"`
}

// Server configures the local HTTP API.
type Server struct {
	Enabled        bool     `yaml:"enabled"`
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Portal holds the login server and the default account.
type Portal struct {
	ServerURL      string `yaml:"server_url"`
	Account        string `yaml:"account"`
	Password       string `yaml:"password"`
	ISP            string `yaml:"isp"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Monitor configures connectivity probing.
type Monitor struct {
	IntervalSeconds int                    `yaml:"interval_seconds"`
	TimeoutSeconds  int                    `yaml:"timeout_seconds"`
	HistorySize     int                    `yaml:"history_size"`
	Endpoints       []models.ProbeEndpoint `yaml:"endpoints"`
}

// Reconnect configures portal re-login after a disconnect.
type Reconnect struct {
	Enabled             bool `yaml:"enabled"`
	MaxRetries          int  `yaml:"max_retries"`
	InitialDelaySeconds int  `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int  `yaml:"max_delay_seconds"`
}

// Failover configures WiFi failover when the association drops.
type Failover struct {
	Enabled            bool    `yaml:"enabled"`
	MaxRetries         int     `yaml:"max_retries"`
	RetryPauseSeconds  float64 `yaml:"retry_pause_seconds"`
	SwitchPauseSeconds float64 `yaml:"switch_pause_seconds"`
	SettleDelaySeconds float64 `yaml:"settle_delay_seconds"`
	SSIDPollSeconds    int     `yaml:"ssid_poll_seconds"`
}

// Wifi lists the known networks.
type Wifi struct {
	Interface string               `yaml:"interface"`
	Profiles  []models.WifiProfile `yaml:"profiles"`
}

// Log configures logging output.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultAccountID identifies the account built from the portal section.
const DefaultAccountID = "default"

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Server: Server{
			Enabled: true,
			Listen:  "127.0.0.1:8088",
		},
		Portal: Portal{
			TimeoutSeconds: 10,
		},
		Monitor: Monitor{
			IntervalSeconds: 30,
			TimeoutSeconds:  5,
			HistorySize:     2880,
		},
		Reconnect: Reconnect{
			Enabled:             true,
			MaxRetries:          3,
			InitialDelaySeconds: 2,
			MaxDelaySeconds:     30,
		},
		Failover: Failover{
			Enabled:            true,
			MaxRetries:         3,
			RetryPauseSeconds:  2,
			SwitchPauseSeconds: 1,
			SettleDelaySeconds: 3,
			SSIDPollSeconds:    5,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(content)
}

// Parse decodes yaml content over the defaults and validates the result.
func Parse(content []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Server.Listen == "" {
		c.Server.Listen = def.Server.Listen
	}
	if c.Portal.TimeoutSeconds <= 0 {
		c.Portal.TimeoutSeconds = def.Portal.TimeoutSeconds
	}
	if c.Monitor.IntervalSeconds <= 0 {
		c.Monitor.IntervalSeconds = def.Monitor.IntervalSeconds
	}
	if c.Monitor.TimeoutSeconds <= 0 {
		c.Monitor.TimeoutSeconds = def.Monitor.TimeoutSeconds
	}
	if c.Monitor.HistorySize <= 0 {
		c.Monitor.HistorySize = def.Monitor.HistorySize
	}
	if c.Reconnect.MaxRetries < 0 {
		c.Reconnect.MaxRetries = def.Reconnect.MaxRetries
	}
	if c.Reconnect.MaxDelaySeconds <= 0 {
		c.Reconnect.MaxDelaySeconds = def.Reconnect.MaxDelaySeconds
	}
	if c.Failover.MaxRetries <= 0 {
		c.Failover.MaxRetries = def.Failover.MaxRetries
	}
	if c.Failover.SSIDPollSeconds <= 0 {
		c.Failover.SSIDPollSeconds = def.Failover.SSIDPollSeconds
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	c.Portal.ServerURL = strings.TrimRight(strings.TrimSpace(c.Portal.ServerURL), "/")
	for i := range c.Wifi.Profiles {
		p := &c.Wifi.Profiles[i]
		p.SSID = strings.TrimSpace(p.SSID)
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
	}
}

// Validate checks cross-references between sections.
func (c Config) Validate() error {
	accounts := make(map[string]struct{}, len(c.Accounts))
	for i, acct := range c.Accounts {
		if acct.ID == "" {
			return fmt.Errorf("account %d is missing id", i)
		}
		if acct.ID == DefaultAccountID {
			return fmt.Errorf("account id %q is reserved for the portal account", DefaultAccountID)
		}
		if acct.Account == "" {
			return fmt.Errorf("account %s is missing account name", acct.ID)
		}
		if _, dup := accounts[acct.ID]; dup {
			return fmt.Errorf("duplicate account id %s", acct.ID)
		}
		accounts[acct.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(c.Wifi.Profiles))
	for i, p := range c.Wifi.Profiles {
		if p.SSID == "" {
			return fmt.Errorf("wifi profile %d is missing ssid", i)
		}
		if _, dup := seen[p.SSID]; dup {
			return fmt.Errorf("duplicate wifi profile for ssid %q", p.SSID)
		}
		seen[p.SSID] = struct{}{}
		if p.LinkedAccountID == "" || p.LinkedAccountID == DefaultAccountID {
			continue
		}
		if _, ok := accounts[p.LinkedAccountID]; !ok {
			return fmt.Errorf("wifi profile %q links unknown account %s", p.SSID, p.LinkedAccountID)
		}
	}

	for i, ep := range c.Monitor.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("monitor endpoint %d is missing url", i)
		}
	}
	return nil
}

// DefaultAccount returns the account from the portal section.
func (c Config) DefaultAccount() (models.Account, bool) {
	if strings.TrimSpace(c.Portal.Account) == "" {
		return models.Account{}, false
	}
	return models.Account{
		ID:       DefaultAccountID,
		Account:  c.Portal.Account,
		Password: c.Portal.Password,
		ISP:      c.Portal.ISP,
	}, true
}

// Account looks up an account by id, including the default account.
func (c Config) Account(id string) (models.Account, bool) {
	if id == "" || id == DefaultAccountID {
		return c.DefaultAccount()
	}
	for _, acct := range c.Accounts {
		if acct.ID == id {
			return acct, true
		}
	}
	return models.Account{}, false
}

// CredentialsFor picks the account to log in with on ssid: the profile's
// linked account when it has one, otherwise the default account.
func (c Config) CredentialsFor(ssid string) (models.Account, bool) {
	ssid = strings.TrimSpace(ssid)
	for _, p := range c.Wifi.Profiles {
		if p.SSID == ssid && p.LinkedAccountID != "" {
			return c.Account(p.LinkedAccountID)
		}
	}
	return c.DefaultAccount()
}

// Interval is the connectivity polling period.
func (m Monitor) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// Timeout bounds each probe request.
func (m Monitor) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// InitialDelay is the first re-login backoff.
func (r Reconnect) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelaySeconds) * time.Second
}

// MaxDelay caps the re-login backoff.
func (r Reconnect) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelaySeconds) * time.Second
}

// RetryPause separates connect attempts to one network.
func (f Failover) RetryPause() time.Duration { return seconds(f.RetryPauseSeconds) }

// SwitchPause precedes each alternate network.
func (f Failover) SwitchPause() time.Duration { return seconds(f.SwitchPauseSeconds) }

// SettleDelay is waited after joining before refreshing status.
func (f Failover) SettleDelay() time.Duration { return seconds(f.SettleDelaySeconds) }

// SSIDPoll is the association polling period.
func (f Failover) SSIDPoll() time.Duration {
	return time.Duration(f.SSIDPollSeconds) * time.Second
}

// Timeout bounds each portal request.
func (p Portal) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
