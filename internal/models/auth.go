package models

// LoginConfig carries everything the portal needs for one login request.
type LoginConfig struct {
	ServerURL    string `json:"server_url"`
	UserAccount  string `json:"user_account"`
	UserPassword string `json:"-"`
	WlanUserIP   string `json:"wlan_user_ip"`
	WlanUserIPv6 string `json:"wlan_user_ipv6,omitempty"`
	WlanUserMAC  string `json:"wlan_user_mac,omitempty"`
	ISP          string `json:"isp,omitempty"`
}

// AuthResult is the portal's verdict on a login or logout request.
type AuthResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Account holds portal credentials. Profiles reference accounts by ID.
type Account struct {
	ID       string `yaml:"id" json:"id"`
	Account  string `yaml:"account" json:"account"`
	Password string `yaml:"password" json:"-"`
	ISP      string `yaml:"isp" json:"isp,omitempty"`
}
