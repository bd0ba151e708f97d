package daemon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusnet/internal/config"
	"campusnet/internal/events"
	"campusnet/internal/models"
	"campusnet/internal/wifi"
	"campusnet/internal/wifi/wifitest"
)

type harness struct {
	probeStatus atomic.Int32
	logins      atomic.Int32
	probe       *httptest.Server
	portal      *httptest.Server
	adapter     *wifitest.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}
	h.probeStatus.Store(http.StatusNoContent)
	h.probe = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(h.probeStatus.Load()))
	}))
	h.portal = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logins.Add(1)
		h.probeStatus.Store(http.StatusNoContent)
		fmt.Fprint(w, `dr1003({"result":1,"msg":"ok"});`)
	}))
	t.Cleanup(h.probe.Close)
	t.Cleanup(h.portal.Close)
	h.adapter = wifitest.New("Campus", models.NetworkInfo{Interface: "wlan0", IPv4: "10.1.2.3", MAC: "aa:bb:cc:dd:ee:ff"})
	return h
}

func (h *harness) yaml(extraProfiles string) string {
	return fmt.Sprintf(`
server:
  enabled: false
portal:
  server_url: %s
  account: "20231234"
  password: secret
monitor:
  interval_seconds: 3600
  endpoints:
    - url: %s
      expect_status: 204
reconnect:
  initial_delay_seconds: 0
wifi:
  profiles:
    - ssid: Campus
      priority: 1
      auto_connect: true
      requires_auth: true
%s`, h.portal.URL, h.probe.URL, extraProfiles)
}

func startDaemon(t *testing.T, d *Daemon) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
	return cancel, done
}

func TestRunPublishesStatus(t *testing.T) {
	h := newHarness(t)
	cfg, err := config.Parse([]byte(h.yaml("")))
	require.NoError(t, err)

	d := New("", cfg, logr.Discard(), WithAdapter(h.adapter))
	assert.True(t, d.FailoverEnabled())
	startDaemon(t, d)

	require.Eventually(t, func() bool {
		ev, ok := d.Journal().LatestOf(events.StatusChanged)
		if !ok {
			return false
		}
		status := ev.Payload.(models.ConnectivityStatus)
		return status.Connected && status.SSID == "Campus" && status.IPv4 == "10.1.2.3"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDisconnectTriggersPortalLogin(t *testing.T) {
	h := newHarness(t)
	cfg, err := config.Parse([]byte(h.yaml("")))
	require.NoError(t, err)

	d := New("", cfg, logr.Discard(), WithAdapter(h.adapter))
	startDaemon(t, d)

	require.Eventually(t, func() bool {
		_, ok := d.Monitor().Latest()
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	h.probeStatus.Store(http.StatusFound)
	status := d.Monitor().CheckNow(context.Background())
	assert.False(t, status.Connected)

	require.Eventually(t, func() bool {
		_, ok := d.Journal().LatestOf(events.ReconnectSucceeded)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), h.logins.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	cfg, err := config.Parse([]byte(h.yaml("")))
	require.NoError(t, err)

	d := New("", cfg, logr.Discard(), WithAdapter(h.adapter))
	cancel, done := startDaemon(t, d)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, d.Monitor().Running())
}

func TestFailoverNeedsCapableAdapter(t *testing.T) {
	h := newHarness(t)
	cfg, err := config.Parse([]byte(h.yaml("")))
	require.NoError(t, err)

	d := New("", cfg, logr.Discard(), WithAdapter(wifi.Unsupported{}))
	assert.False(t, d.FailoverEnabled())

	cfg.Failover.Enabled = false
	d = New("", cfg, logr.Discard(), WithAdapter(h.adapter))
	assert.False(t, d.FailoverEnabled())
}

func TestReload(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "campusnet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(h.yaml("")), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	d := New(path, cfg, logr.Discard(), WithAdapter(h.adapter))
	assert.Equal(t, 1, d.Catalog().Len())

	extra := `    - ssid: Dorm
      priority: 2
      auto_connect: true
      linked_account_id: dorm
accounts:
  - id: dorm
    account: "dorm-user"
    password: dormpass
`
	require.NoError(t, os.WriteFile(path, []byte(h.yaml(extra)), 0o600))
	require.NoError(t, d.Reload())

	assert.Equal(t, 2, d.Catalog().Len())
	assert.Equal(t, 2, d.failover.Catalog().Len())
	acct, ok := d.credentialsFor("Dorm")
	require.True(t, ok)
	assert.Equal(t, "dorm-user", acct.Account)

	require.NoError(t, os.WriteFile(path, []byte("wifi: ["), 0o600))
	assert.Error(t, d.Reload())
	assert.Equal(t, 2, d.Catalog().Len(), "a bad file keeps the previous config")
}
