// Package portal talks to an ePortal-style captive portal login server.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"campusnet/internal/models"
)

const (
	loginPath      = "/eportal/portal/login"
	logoutPath     = "/eportal/portal/logout"
	loginCallback  = "dr1003"
	logoutCallback = "dr1004"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

// ErrNoServer is returned when no portal URL is configured.
var ErrNoServer = errors.New("portal server url not set")

// Client issues login and logout requests. It is safe for concurrent use.
type Client struct {
	mu        sync.RWMutex
	serverURL string

	client *http.Client
	log    logr.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(cl *Client) { cl.log = log.WithName("portal") }
}

// New creates a client for the portal at serverURL.
func New(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: normalizeServerURL(serverURL),
		client:    &http.Client{Timeout: defaultTimeout},
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetServerURL points the client at another portal.
func (c *Client) SetServerURL(serverURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverURL = normalizeServerURL(serverURL)
}

// ServerURL returns the configured portal base URL.
func (c *Client) ServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverURL
}

// Login authenticates cfg.UserAccount for cfg.WlanUserIP. A ServerURL in cfg
// overrides the client's for this request.
func (c *Client) Login(ctx context.Context, cfg models.LoginConfig) (models.AuthResult, error) {
	if strings.TrimSpace(cfg.WlanUserIP) == "" {
		return models.AuthResult{}, errors.New("login: wlan_user_ip is required")
	}

	account := ",0," + cfg.UserAccount
	if isp := strings.TrimSpace(cfg.ISP); isp != "" {
		account += "@" + isp
	}

	q := url.Values{}
	q.Set("callback", loginCallback)
	q.Set("login_method", "1")
	q.Set("user_account", account)
	q.Set("user_password", cfg.UserPassword)
	q.Set("wlan_user_ip", cfg.WlanUserIP)
	q.Set("wlan_user_ipv6", cfg.WlanUserIPv6)
	q.Set("wlan_user_mac", compactMAC(cfg.WlanUserMAC))
	q.Set("wlan_ac_ip", "")
	q.Set("wlan_ac_name", "")
	q.Set("jsVersion", "4.1.3")
	q.Set("lang", "zh")

	result, err := c.call(ctx, cfg.ServerURL, loginPath, q)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("login: %w", err)
	}
	c.log.V(1).Info("Portal login answered", "success", result.Success, "code", result.Code, "message", result.Message)
	return result, nil
}

// Logout ends the session of ip.
func (c *Client) Logout(ctx context.Context, ip string) (models.AuthResult, error) {
	if strings.TrimSpace(ip) == "" {
		return models.AuthResult{}, errors.New("logout: ip is required")
	}

	q := url.Values{}
	q.Set("callback", logoutCallback)
	q.Set("login_method", "1")
	q.Set("user_account", "drcom")
	q.Set("user_password", "123")
	q.Set("ac_logout", "1")
	q.Set("wlan_user_ip", ip)
	q.Set("wlan_user_ipv6", "")
	q.Set("wlan_vlan_id", "0")
	q.Set("wlan_user_mac", "000000000000")
	q.Set("jsVersion", "4.1.3")

	result, err := c.call(ctx, "", logoutPath, q)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("logout: %w", err)
	}
	c.log.V(1).Info("Portal logout answered", "success", result.Success, "message", result.Message)
	return result, nil
}

func (c *Client) call(ctx context.Context, override, path string, q url.Values) (models.AuthResult, error) {
	base := normalizeServerURL(override)
	if base == "" {
		base = c.ServerURL()
	}
	if base == "" {
		return models.AuthResult{}, ErrNoServer
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+q.Encode(), nil)
	if err != nil {
		return models.AuthResult{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.AuthResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.AuthResult{}, fmt.Errorf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return parseResponse(body)
}

// portalReply is the JSON wrapped in the JSONP callback.
type portalReply struct {
	Result  json.RawMessage `json:"result"`
	Msg     string          `json:"msg"`
	RetCode json.RawMessage `json:"ret_code"`
}

// parseResponse decodes `dr1003({...});` style bodies. result 1 means
// success; ret_code 2 means the device is already online.
func parseResponse(body []byte) (models.AuthResult, error) {
	payload := bytes.TrimSpace(body)
	if open := bytes.IndexByte(payload, '('); open >= 0 && !bytes.HasPrefix(payload, []byte("{")) {
		end := bytes.LastIndexByte(payload, ')')
		if end <= open {
			return models.AuthResult{}, fmt.Errorf("malformed jsonp response: %q", truncate(payload))
		}
		payload = payload[open+1 : end]
	}

	var reply portalReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return models.AuthResult{}, fmt.Errorf("decode response: %w", err)
	}

	result := rawNumber(reply.Result)
	code := rawNumber(reply.RetCode)
	return models.AuthResult{
		Success: result == "1" || code == "2",
		Message: reply.Msg,
		Code:    code,
	}, nil
}

// rawNumber accepts 1 and "1" alike.
func rawNumber(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

func compactMAC(mac string) string {
	r := strings.NewReplacer(":", "", "-", "", ".", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(mac)))
}

func normalizeServerURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

func truncate(b []byte) string {
	if len(b) > 80 {
		return string(b[:80]) + "..."
	}
	return string(b)
}
