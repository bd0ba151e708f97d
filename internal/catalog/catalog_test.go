package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusnet/internal/models"
)

func ssids(profiles []models.WifiProfile) []string {
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.SSID)
	}
	return out
}

func sample() []models.WifiProfile {
	return []models.WifiProfile{
		{ID: "a", SSID: "A", Priority: 5, AutoConnect: true},
		{ID: "b", SSID: "B", Priority: 1, AutoConnect: true},
		{ID: "c", SSID: "C", Priority: 10, AutoConnect: true},
		{ID: "d", SSID: "D", Priority: 0, AutoConnect: false},
		{ID: "e", SSID: "E", Priority: 5, AutoConnect: true},
	}
}

func TestCatalogQueries(t *testing.T) {
	c := New(sample())

	t.Run("All", func(t *testing.T) {
		assert.Equal(t, []string{"A", "B", "C", "D", "E"}, ssids(c.All()))
		assert.Equal(t, 5, c.Len())
	})

	t.Run("AutoConnect", func(t *testing.T) {
		assert.Equal(t, []string{"A", "B", "C", "E"}, ssids(c.AutoConnect()))
	})

	t.Run("ByPriorityIsStable", func(t *testing.T) {
		assert.Equal(t, []string{"D", "B", "A", "E", "C"}, ssids(c.ByPriority()))
	})

	t.Run("FailoverCandidates", func(t *testing.T) {
		assert.Equal(t, []string{"B", "E", "C"}, ssids(c.FailoverCandidates("A")))
		assert.Equal(t, []string{"B", "A", "E", "C"}, ssids(c.FailoverCandidates("")))
	})

	t.Run("Lookup", func(t *testing.T) {
		p, ok := c.Lookup(" C ")
		require.True(t, ok)
		assert.Equal(t, "c", p.ID)

		_, ok = c.Lookup("missing")
		assert.False(t, ok)
	})
}

func TestCatalogIsSnapshot(t *testing.T) {
	input := sample()
	c := New(input)
	input[0].SSID = "mutated"

	p, ok := c.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, "A", p.SSID)

	out := c.All()
	out[1].Priority = 99
	p, _ = c.Lookup("B")
	assert.Equal(t, 1, p.Priority)
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	assert.Zero(t, c.Len())
	assert.Empty(t, c.FailoverCandidates("A"))
	_, ok := c.Lookup("A")
	assert.False(t, ok)
}

func TestDuplicateSSIDLookupReturnsFirst(t *testing.T) {
	c := New([]models.WifiProfile{
		{ID: "first", SSID: "dup", Priority: 3},
		{ID: "second", SSID: "dup", Priority: 1},
	})
	p, ok := c.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, "first", p.ID)
}
