package storage

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusnet/internal/events"
	"campusnet/internal/models"
)

func event(t events.Type, at time.Time) events.Event {
	return events.Event{ID: string(t) + at.Format(time.RFC3339), Type: t, Time: at}
}

func TestEventJournalBounded(t *testing.T) {
	j := NewEventJournal(3)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		j.Append(event(events.StatusChanged, base.Add(time.Duration(i)*time.Minute)))
	}

	history := j.History()
	require.Len(t, history, 3)
	assert.Equal(t, base.Add(2*time.Minute), history[0].Time)

	latest, ok := j.Latest()
	require.True(t, ok)
	assert.Equal(t, base.Add(4*time.Minute), latest.Time)
}

func TestEventJournalEmpty(t *testing.T) {
	j := NewEventJournal(0)
	_, ok := j.Latest()
	assert.False(t, ok)
	assert.Empty(t, j.History())
	assert.Nil(t, j.Query(time.Time{}, 10))
	assert.Equal(t, DefaultJournalSize, j.max)
}

func TestEventJournalQuery(t *testing.T) {
	j := NewEventJournal(10)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	j.Append(event(events.StatusChanged, base))
	j.Append(event(events.ReconnectStarted, base.Add(time.Minute)))
	j.Append(event(events.ReconnectFailed, base.Add(2*time.Minute)))
	j.Append(event(events.StatusChanged, base.Add(3*time.Minute)))

	t.Run("ByType", func(t *testing.T) {
		got := j.Query(time.Time{}, 0, events.ReconnectStarted, events.ReconnectFailed)
		require.Len(t, got, 2)
		assert.Equal(t, events.ReconnectStarted, got[0].Type)
	})

	t.Run("Since", func(t *testing.T) {
		got := j.Query(base.Add(2*time.Minute), 0)
		require.Len(t, got, 2)
		assert.Equal(t, events.ReconnectFailed, got[0].Type)
	})

	t.Run("LimitKeepsNewest", func(t *testing.T) {
		got := j.Query(time.Time{}, 1, events.StatusChanged)
		require.Len(t, got, 1)
		assert.Equal(t, base.Add(3*time.Minute), got[0].Time)
	})

	t.Run("LatestOf", func(t *testing.T) {
		ev, ok := j.LatestOf(events.ReconnectStarted)
		require.True(t, ok)
		assert.Equal(t, base.Add(time.Minute), ev.Time)

		_, ok = j.LatestOf(events.NetworkSwitched)
		assert.False(t, ok)
	})
}

func TestEventJournalQueryOutOfOrder(t *testing.T) {
	j := NewEventJournal(10)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	j.Append(event(events.StatusChanged, base.Add(3*time.Minute)))
	j.Append(event(events.ReconnectStarted, base.Add(time.Minute)))
	j.Append(event(events.ReconnectFailed, base.Add(4*time.Minute)))
	j.Append(event(events.StatusChanged, base.Add(2*time.Minute)))

	got := j.Query(base.Add(2*time.Minute), 0)
	require.Len(t, got, 3)
	assert.Equal(t, base.Add(3*time.Minute), got[0].Time)
	assert.Equal(t, base.Add(4*time.Minute), got[1].Time)
	assert.Equal(t, base.Add(2*time.Minute), got[2].Time)
}

func TestEventJournalAttach(t *testing.T) {
	bus := events.NewBus(logr.Discard())
	j := NewEventJournal(10)
	detach := j.Attach(bus)

	bus.Publish(events.NetworkSwitched, models.NetworkSwitched{From: "A", To: "B", Phase: 2})
	require.Equal(t, 1, j.Len())
	latest, _ := j.Latest()
	assert.Equal(t, models.NetworkSwitched{From: "A", To: "B", Phase: 2}, latest.Payload)

	detach()
	bus.Publish(events.StatusChanged, models.ConnectivityStatus{})
	assert.Equal(t, 1, j.Len())
}
