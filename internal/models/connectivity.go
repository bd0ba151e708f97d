package models

import "time"

// Latency records how long the successful connectivity probe took.
type Latency struct {
	Value  int64  `json:"value"`
	Source string `json:"source"`
}

// ConnectivityStatus captures the outcome of a connectivity probe.
// Optional string fields are empty when unknown.
type ConnectivityStatus struct {
	Connected     bool      `json:"connected"`
	Authenticated bool      `json:"authenticated"`
	SSID          string    `json:"ssid,omitempty"`
	IPv4          string    `json:"ipv4,omitempty"`
	IPv6          string    `json:"ipv6,omitempty"`
	MAC           string    `json:"mac,omitempty"`
	Latency       *Latency  `json:"latency,omitempty"`
	Error         string    `json:"error,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Disconnected returns the conservative status used when a probe fails.
func Disconnected(err error, at time.Time) ConnectivityStatus {
	status := ConnectivityStatus{CheckedAt: at}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// ProbeEndpoint is an unauthenticated connectivity-check URL. A response with
// ExpectStatus (any 2xx when zero) counts as reachable; redirects do not.
type ProbeEndpoint struct {
	URL          string `yaml:"url" json:"url"`
	ExpectStatus int    `yaml:"expect_status" json:"expect_status,omitempty"`
}
