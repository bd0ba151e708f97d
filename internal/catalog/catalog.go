// Package catalog provides a read-only, priority-ordered view over the
// configured WiFi profiles.
package catalog

import (
	"sort"
	"strings"

	"campusnet/internal/models"
)

// Catalog is an immutable snapshot of WiFi profiles. Reconfiguration builds a
// new Catalog instead of mutating an existing one.
type Catalog struct {
	profiles []models.WifiProfile
	bySSID   map[string]int
}

// New copies profiles into a catalog. When SSIDs repeat, Lookup returns the
// first occurrence.
func New(profiles []models.WifiProfile) *Catalog {
	c := &Catalog{
		profiles: make([]models.WifiProfile, len(profiles)),
		bySSID:   make(map[string]int, len(profiles)),
	}
	copy(c.profiles, profiles)
	for i, p := range c.profiles {
		key := normalize(p.SSID)
		if _, ok := c.bySSID[key]; !ok {
			c.bySSID[key] = i
		}
	}
	return c
}

// Len returns the number of profiles.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.profiles)
}

// All returns every profile in configuration order.
func (c *Catalog) All() []models.WifiProfile {
	return c.filter(func(models.WifiProfile) bool { return true })
}

// AutoConnect returns the profiles eligible for automatic failover.
func (c *Catalog) AutoConnect() []models.WifiProfile {
	return c.filter(func(p models.WifiProfile) bool { return p.AutoConnect })
}

// ByPriority returns every profile sorted ascending by priority. Ties keep
// configuration order.
func (c *Catalog) ByPriority() []models.WifiProfile {
	return sortByPriority(c.All())
}

// FailoverCandidates returns the auto-connect profiles other than excludeSSID,
// lowest priority value first.
func (c *Catalog) FailoverCandidates(excludeSSID string) []models.WifiProfile {
	exclude := normalize(excludeSSID)
	return sortByPriority(c.filter(func(p models.WifiProfile) bool {
		return p.AutoConnect && normalize(p.SSID) != exclude
	}))
}

// Lookup finds the profile for ssid.
func (c *Catalog) Lookup(ssid string) (models.WifiProfile, bool) {
	if c == nil {
		return models.WifiProfile{}, false
	}
	idx, ok := c.bySSID[normalize(ssid)]
	if !ok {
		return models.WifiProfile{}, false
	}
	return c.profiles[idx], true
}

func (c *Catalog) filter(keep func(models.WifiProfile) bool) []models.WifiProfile {
	if c == nil || len(c.profiles) == 0 {
		return nil
	}
	out := make([]models.WifiProfile, 0, len(c.profiles))
	for _, p := range c.profiles {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func sortByPriority(profiles []models.WifiProfile) []models.WifiProfile {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
	return profiles
}

// SSIDs are compared exactly apart from surrounding whitespace.
func normalize(ssid string) string {
	return strings.TrimSpace(ssid)
}
