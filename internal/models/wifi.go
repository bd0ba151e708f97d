package models

// WifiProfile is a configured network the failover controller may join.
// Lower Priority values are tried first.
type WifiProfile struct {
	ID              string `yaml:"id" json:"id"`
	SSID            string `yaml:"ssid" json:"ssid"`
	Password        string `yaml:"password" json:"password,omitempty"`
	Priority        int    `yaml:"priority" json:"priority"`
	AutoConnect     bool   `yaml:"auto_connect" json:"auto_connect"`
	RequiresAuth    bool   `yaml:"requires_auth" json:"requires_auth"`
	LinkedAccountID string `yaml:"linked_account_id,omitempty" json:"linked_account_id,omitempty"`
}

// Redacted returns a copy safe to expose over the API.
func (p WifiProfile) Redacted() WifiProfile {
	p.Password = ""
	return p
}

// WifiInfo describes an associated or scanned access point.
type WifiInfo struct {
	SSID     string `json:"ssid"`
	BSSID    string `json:"bssid,omitempty"`
	Signal   int    `json:"signal"`
	Security string `json:"security,omitempty"`
	Active   bool   `json:"active"`
}

// NetworkInfo is the addressing of the interface carrying the default route.
type NetworkInfo struct {
	Interface string   `json:"interface,omitempty"`
	IPv4      string   `json:"ipv4,omitempty"`
	IPv6      string   `json:"ipv6,omitempty"`
	MAC       string   `json:"mac,omitempty"`
	Gateway   string   `json:"gateway,omitempty"`
	DNS       []string `json:"dns,omitempty"`
}
