// Package history turns connectivity samples into compact timelines.
package history

import (
	"sort"
	"time"

	"campusnet/internal/models"
)

const (
	// DefaultTimelinePoints controls how many buckets a timeline has.
	DefaultTimelinePoints = 80
	maxDetailsPerPoint    = 4

	defaultGap = 5 * time.Minute
)

// BuildConnectivityTimeline splits [start, end] into points buckets. A bucket
// takes the class of its latest sample; an empty bucket inherits the previous
// sample when it is recent enough, otherwise it has no data.
func BuildConnectivityTimeline(entries []models.ConnectivityStatus, start, end time.Time, points int) []models.TimelinePoint {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	samples := make([]models.ConnectivityStatus, 0, len(entries))
	for _, entry := range entries {
		if !entry.CheckedAt.IsZero() {
			samples = append(samples, entry)
		}
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].CheckedAt.Before(samples[j].CheckedAt)
	})

	bucketDuration := end.Sub(start) / time.Duration(points)
	if bucketDuration <= 0 {
		bucketDuration = time.Minute
	}
	gapThreshold := deriveGap(samples)

	idx := 0
	var last *models.ConnectivityStatus
	for idx < len(samples) && samples[idx].CheckedAt.Before(start) {
		last = &samples[idx]
		idx++
	}

	result := make([]models.TimelinePoint, 0, points)
	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucketDuration)
		bucketEnd := bucketStart.Add(bucketDuration)
		if i == points-1 {
			bucketEnd = end
		}

		var bucket []models.ConnectivityStatus
		for idx < len(samples) && samples[idx].CheckedAt.Before(bucketEnd) {
			bucket = append(bucket, samples[idx])
			last = &samples[idx]
			idx++
		}
		if i == points-1 {
			for idx < len(samples) && !samples[idx].CheckedAt.After(end) {
				bucket = append(bucket, samples[idx])
				last = &samples[idx]
				idx++
			}
		}

		point := models.TimelinePoint{Start: bucketStart, End: bucketEnd, Samples: len(bucket)}
		switch {
		case len(bucket) > 0:
			point.ClassName, point.Label = classify(bucket[len(bucket)-1])
			point.Details = bucketDetails(bucket)
		case last != nil && bucketStart.Sub(last.CheckedAt) <= gapThreshold:
			point.ClassName, point.Label = classify(*last)
			if point.ClassName != classSuccess {
				d := detail(*last)
				d.Timestamp = bucketStart
				point.Details = []models.TimelineDetail{d}
			}
		default:
			point.ClassName, point.Label = classMissing, "No data"
		}
		result = append(result, point)
	}
	return result
}

const (
	classSuccess = "state-success"
	classWarning = "state-warning"
	classError   = "state-error"
	classMissing = "state-missing"
)

// bucketDetails lists the problematic samples of a bucket.
func bucketDetails(bucket []models.ConnectivityStatus) []models.TimelineDetail {
	var details []models.TimelineDetail
	for _, s := range bucket {
		if s.Connected {
			continue
		}
		if len(details) >= maxDetailsPerPoint {
			break
		}
		details = append(details, detail(s))
	}
	return details
}

// deriveGap is twice the median sampling interval, clamped to [1m, 2h].
func deriveGap(samples []models.ConnectivityStatus) time.Duration {
	if len(samples) < 2 {
		return defaultGap
	}
	diffs := make([]time.Duration, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		if d := samples[i].CheckedAt.Sub(samples[i-1].CheckedAt); d > 0 {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return defaultGap
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })

	gap := diffs[len(diffs)/2] * 2
	switch {
	case gap < time.Minute:
		return time.Minute
	case gap > 2*time.Hour:
		return 2 * time.Hour
	default:
		return gap
	}
}

func detail(status models.ConnectivityStatus) models.TimelineDetail {
	return models.TimelineDetail{
		Timestamp: status.CheckedAt,
		State:     state(status),
		SSID:      status.SSID,
		Error:     status.Error,
	}
}

// state distinguishes a dead link from an associated link that cannot reach
// the internet, which usually means the portal wants a login.
func state(status models.ConnectivityStatus) string {
	switch {
	case status.Connected:
		return "online"
	case status.SSID != "":
		return "captive"
	default:
		return "offline"
	}
}

func classify(status models.ConnectivityStatus) (className, label string) {
	switch state(status) {
	case "online":
		return classSuccess, "Online"
	case "captive":
		return classWarning, "Not authenticated"
	default:
		return classError, "Offline"
	}
}
