// Package metrics exposes Prometheus collectors and uptime summaries.
package metrics

import (
	"math"
	"sort"
	"time"

	"campusnet/internal/models"
)

const unknownSSID = "(none)"

// NetworkUptime summarises connectivity observed while associated with one SSID.
type NetworkUptime struct {
	SSID          string  `json:"ssid"`
	UptimePercent float64 `json:"uptime_percent"`
	TotalChecks   int     `json:"total_checks"`
	Connected     int     `json:"connected"`
	Disconnected  int     `json:"disconnected"`
	AvgLatencyMs  float64 `json:"avg_latency_ms,omitempty"`
	LastChecked   string  `json:"last_checked,omitempty"`
	LastError     string  `json:"last_error,omitempty"`
}

// Uptime is the overall and per-network summary of a probe history.
type Uptime struct {
	UptimePercent float64         `json:"uptime_percent"`
	TotalChecks   int             `json:"total_checks"`
	Networks      []NetworkUptime `json:"networks,omitempty"`
}

// ComputeUptime aggregates uptime statistics per SSID from probe history.
func ComputeUptime(history []models.ConnectivityStatus) Uptime {
	type acc struct {
		connected    int
		disconnected int
		latencySum   int64
		latencyN     int
		lastTime     time.Time
		lastError    string
	}

	state := make(map[string]*acc)
	overallUp := 0
	for _, status := range history {
		ssid := status.SSID
		if ssid == "" {
			ssid = unknownSSID
		}
		target := state[ssid]
		if target == nil {
			target = &acc{}
			state[ssid] = target
		}
		if status.Connected {
			target.connected++
			overallUp++
		} else {
			target.disconnected++
			if status.Error != "" {
				target.lastError = status.Error
			}
		}
		if status.Latency != nil {
			target.latencySum += status.Latency.Value
			target.latencyN++
		}
		if status.CheckedAt.After(target.lastTime) {
			target.lastTime = status.CheckedAt
		}
	}
	if len(history) == 0 {
		return Uptime{}
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := Uptime{
		UptimePercent: percent(overallUp, len(history)),
		TotalChecks:   len(history),
		Networks:      make([]NetworkUptime, 0, len(keys)),
	}
	for _, ssid := range keys {
		data := state[ssid]
		total := data.connected + data.disconnected
		result := NetworkUptime{
			SSID:          ssid,
			UptimePercent: percent(data.connected, total),
			TotalChecks:   total,
			Connected:     data.connected,
			Disconnected:  data.disconnected,
			LastError:     data.lastError,
		}
		if data.latencyN > 0 {
			result.AvgLatencyMs = round2(float64(data.latencySum) / float64(data.latencyN))
		}
		if !data.lastTime.IsZero() {
			result.LastChecked = data.lastTime.UTC().Format(time.RFC3339)
		}
		out.Networks = append(out.Networks, result)
	}
	return out
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
