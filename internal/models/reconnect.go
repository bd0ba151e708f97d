package models

import "time"

// AttemptStatus is the state of a single reconnect attempt.
type AttemptStatus string

const (
	AttemptConnecting AttemptStatus = "connecting"
	AttemptSuccess    AttemptStatus = "success"
	AttemptFailed     AttemptStatus = "failed"
)

// ReconnectAttempt describes one try inside a retry loop. Target is an SSID
// for WiFi failover and an account for portal re-login.
type ReconnectAttempt struct {
	Target      string        `json:"target"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Status      AttemptStatus `json:"status"`
}

// ReconnectProgress is the payload of the reconnectProgress event.
type ReconnectProgress struct {
	SSID        string        `json:"ssid"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Status      AttemptStatus `json:"status"`
	Flow        string        `json:"flow"`
}

// FailureRecord is appended once per SSID that exhausted its retries.
type FailureRecord struct {
	SSID     string `json:"ssid"`
	Priority int    `json:"priority"`
	Reason   string `json:"reason"`
}

// AllReconnectsFailed is the payload of the aggregate failover failure event.
type AllReconnectsFailed struct {
	FailedList []FailureRecord `json:"failed_list"`
}

// NetworkSwitched is published when failover joined a network.
type NetworkSwitched struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Phase int    `json:"phase"`
}

// ReconnectOutcome is published when a portal re-login flow ends.
type ReconnectOutcome struct {
	Target   string        `json:"target"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Took     time.Duration `json:"took"`
}
