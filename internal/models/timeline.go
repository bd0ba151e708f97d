package models

import "time"

// TimelinePoint is one bucket of the connectivity timeline. Samples counts
// the probes that landed in the bucket; zero means the class was inherited
// or there is no data.
type TimelinePoint struct {
	ClassName string           `json:"className"`
	Label     string           `json:"label"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Samples   int              `json:"samples"`
	Details   []TimelineDetail `json:"details,omitempty"`
}

// TimelineDetail describes a sample that was not fully online.
type TimelineDetail struct {
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state,omitempty"`
	SSID      string    `json:"ssid,omitempty"`
	Error     string    `json:"error,omitempty"`
}
