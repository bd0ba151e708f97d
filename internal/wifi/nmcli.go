package wifi

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"campusnet/internal/models"
)

const (
	defaultQueryTimeout   = 5 * time.Second
	defaultConnectTimeout = 30 * time.Second
	wifiListFields        = "ACTIVE,SSID,BSSID,SIGNAL,SECURITY"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return stdout.String(), fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return stdout.String(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), nil
}

// NMCLI drives NetworkManager through its command line client.
type NMCLI struct {
	runner         Runner
	log            logr.Logger
	iface          string
	queryTimeout   time.Duration
	connectTimeout time.Duration
	netInfo        func(context.Context) (models.NetworkInfo, error)
}

// NMCLIOption customises an NMCLI adapter.
type NMCLIOption func(*NMCLI)

// WithInterface pins commands to one wireless interface.
func WithInterface(iface string) NMCLIOption {
	return func(n *NMCLI) { n.iface = strings.TrimSpace(iface) }
}

// WithRunner replaces command execution, mostly for tests.
func WithRunner(r Runner) NMCLIOption {
	return func(n *NMCLI) { n.runner = r }
}

// WithTimeouts overrides the query and connect timeouts.
func WithTimeouts(query, connect time.Duration) NMCLIOption {
	return func(n *NMCLI) {
		if query > 0 {
			n.queryTimeout = query
		}
		if connect > 0 {
			n.connectTimeout = connect
		}
	}
}

// WithNetworkInfo replaces interface discovery.
func WithNetworkInfo(fn func(context.Context) (models.NetworkInfo, error)) NMCLIOption {
	return func(n *NMCLI) { n.netInfo = fn }
}

// NewNMCLI creates an adapter using the nmcli binary from PATH.
func NewNMCLI(log logr.Logger, opts ...NMCLIOption) *NMCLI {
	n := &NMCLI{
		runner:         execRunner{},
		log:            log,
		queryTimeout:   defaultQueryTimeout,
		connectTimeout: defaultConnectTimeout,
		netInfo:        DiscoverNetworkInfo,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// CurrentWifi returns the active access point, or nil when not associated.
func (n *NMCLI) CurrentWifi(ctx context.Context) (*models.WifiInfo, error) {
	networks, err := n.list(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, nw := range networks {
		if nw.Active {
			current := nw
			return &current, nil
		}
	}
	return nil, nil
}

// Scan rescans and returns visible networks.
func (n *NMCLI) Scan(ctx context.Context) ([]models.WifiInfo, error) {
	return n.list(ctx, true)
}

// NetworkInfo describes the interface carrying the default route.
func (n *NMCLI) NetworkInfo(ctx context.Context) (models.NetworkInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, n.queryTimeout)
	defer cancel()
	return n.netInfo(ctx)
}

// Connect joins ssid and verifies the association.
func (n *NMCLI) Connect(ctx context.Context, ssid, password string) (bool, error) {
	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	if n.iface != "" {
		args = append(args, "ifname", n.iface)
	}

	connectCtx, cancel := context.WithTimeout(ctx, n.connectTimeout)
	defer cancel()

	n.log.V(1).Info("Connecting", "ssid", ssid, "interface", n.iface)
	if _, err := n.runner.Run(connectCtx, "nmcli", args...); err != nil {
		return false, fmt.Errorf("connect %q: %w", ssid, redact(err, password))
	}

	current, err := n.CurrentWifi(ctx)
	if err != nil {
		return false, fmt.Errorf("verify %q: %w", ssid, err)
	}
	if current == nil || current.SSID != ssid {
		return false, nil
	}
	return true, nil
}

func (n *NMCLI) list(ctx context.Context, rescan bool) ([]models.WifiInfo, error) {
	args := []string{"-t", "-f", wifiListFields, "device", "wifi", "list"}
	if n.iface != "" {
		args = append(args, "ifname", n.iface)
	}
	if rescan {
		args = append(args, "--rescan", "yes")
	} else {
		args = append(args, "--rescan", "no")
	}

	ctx, cancel := context.WithTimeout(ctx, n.queryTimeout)
	defer cancel()

	out, err := n.runner.Run(ctx, "nmcli", args...)
	if err != nil {
		return nil, fmt.Errorf("list wifi: %w", err)
	}
	return parseWifiList(out), nil
}

func parseWifiList(out string) []models.WifiInfo {
	var networks []models.WifiInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitTerse(line)
		if len(fields) < 5 || fields[1] == "" {
			continue
		}
		signal, _ := strconv.Atoi(fields[3])
		networks = append(networks, models.WifiInfo{
			Active:   fields[0] == "yes",
			SSID:     fields[1],
			BSSID:    fields[2],
			Signal:   signal,
			Security: fields[4],
		})
	}
	return networks
}

// splitTerse splits one line of nmcli terse output, where ':' separates
// fields and '\' escapes literal ':' and '\'.
func splitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), secret, "****"))
}
