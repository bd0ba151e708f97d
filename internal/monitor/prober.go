package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"campusnet/internal/models"
)

// DefaultEndpoints are captive-portal detection URLs that answer 204 when the
// network is open and redirect to the portal otherwise.
var DefaultEndpoints = []models.ProbeEndpoint{
	{URL: "http://connect.rom.miui.com/generate_204", ExpectStatus: http.StatusNoContent},
	{URL: "http://www.gstatic.com/generate_204", ExpectStatus: http.StatusNoContent},
	{URL: "http://www.msftconnecttest.com/connecttest.txt", ExpectStatus: http.StatusOK},
}

const defaultProbeTimeout = 5 * time.Second

// LinkInfo reports the local link state attached to each probe result.
type LinkInfo interface {
	CurrentWifi(ctx context.Context) (*models.WifiInfo, error)
	NetworkInfo(ctx context.Context) (models.NetworkInfo, error)
}

// Prober checks connectivity by fetching detection endpoints in order; the
// first one answering with its expected status wins.
type Prober struct {
	endpoints []models.ProbeEndpoint
	client    *http.Client
	timeout   time.Duration
	link      LinkInfo
	clock     clockwork.Clock
	log       logr.Logger
}

// ProberOption customises a Prober.
type ProberOption func(*Prober)

// WithHTTPClient replaces the HTTP client. Its redirect policy is overridden.
func WithHTTPClient(client *http.Client) ProberOption {
	return func(p *Prober) {
		if client != nil {
			c := *client
			p.client = &c
		}
	}
}

// WithProbeTimeout bounds each endpoint request.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLinkInfo fills SSID and addresses into every result.
func WithLinkInfo(link LinkInfo) ProberOption {
	return func(p *Prober) { p.link = link }
}

// WithProberClock sets the clock used for timestamps and latency.
func WithProberClock(clock clockwork.Clock) ProberOption {
	return func(p *Prober) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithProberLogger sets the logger.
func WithProberLogger(log logr.Logger) ProberOption {
	return func(p *Prober) { p.log = log }
}

// NewProber builds a prober for endpoints, falling back to DefaultEndpoints.
func NewProber(endpoints []models.ProbeEndpoint, opts ...ProberOption) *Prober {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	p := &Prober{
		endpoints: append([]models.ProbeEndpoint(nil), endpoints...),
		client:    &http.Client{},
		timeout:   defaultProbeTimeout,
		clock:     clockwork.NewRealClock(),
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return p
}

// Status probes every endpoint until one succeeds. Unreachable endpoints
// yield a disconnected status, not an error; only a cancelled ctx errors.
func (p *Prober) Status(ctx context.Context) (models.ConnectivityStatus, error) {
	status := models.ConnectivityStatus{}

	var lastErr error
	for _, ep := range p.endpoints {
		latency, err := p.checkEndpoint(ctx, ep)
		if err == nil {
			status.Connected = true
			status.Authenticated = true
			status.Latency = &models.Latency{Value: latency.Milliseconds(), Source: endpointHost(ep.URL)}
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.ConnectivityStatus{}, ctxErr
		}
		p.log.V(2).Info("Probe endpoint failed", "url", ep.URL, "error", err.Error())
		lastErr = err
	}
	if !status.Connected && lastErr != nil {
		status.Error = lastErr.Error()
	}

	p.fillLink(ctx, &status)
	status.CheckedAt = p.clock.Now().UTC()
	return status, nil
}

func (p *Prober) checkEndpoint(ctx context.Context, ep models.ProbeEndpoint) (time.Duration, error) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := p.clock.Now()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return 0, err
	}

	response, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%s: request timed out", ep.URL)
		}
		return 0, err
	}
	defer response.Body.Close()

	ok := response.StatusCode == ep.ExpectStatus
	if ep.ExpectStatus == 0 {
		ok = response.StatusCode >= 200 && response.StatusCode < 300
	}
	if !ok {
		return 0, fmt.Errorf("%s: unexpected status %d %s", ep.URL, response.StatusCode, http.StatusText(response.StatusCode))
	}
	return p.clock.Since(start), nil
}

func (p *Prober) fillLink(ctx context.Context, status *models.ConnectivityStatus) {
	if p.link == nil {
		return
	}
	if info, err := p.link.CurrentWifi(ctx); err == nil && info != nil {
		status.SSID = info.SSID
	}
	if netInfo, err := p.link.NetworkInfo(ctx); err == nil {
		status.IPv4 = netInfo.IPv4
		status.IPv6 = netInfo.IPv6
		status.MAC = netInfo.MAC
	}
}

func endpointHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}
