package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
)

func TestMemory_FindLatestByLocation_PicksNewest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Save(ctx, models.Reading{City: "delhi", AQI: 80, Timestamp: base}))
	require.NoError(t, m.Save(ctx, models.Reading{City: "delhi", AQI: 120, Timestamp: base.Add(time.Hour)}))
	require.NoError(t, m.Save(ctx, models.Reading{City: "delhi", AQI: 100, Timestamp: base.Add(30 * time.Minute)}))

	got, ok, err := m.FindLatestByLocation(ctx, "delhi")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 120, got.AQI)
}

func TestMemory_FindLatestByLocation_Miss(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.FindLatestByLocation(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_FindSubscribersForAlert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.AddSubscriber(models.Subscriber{ID: 1, City: "delhi", Threshold: 100})
	m.AddSubscriber(models.Subscriber{ID: 2, City: "delhi", Threshold: 150})
	m.AddSubscriber(models.Subscriber{ID: 3, City: "oslo", Threshold: 50})

	subs, err := m.FindSubscribersForAlert(ctx, "delhi", 120)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(1), subs[0].ID)

	// Threshold is inclusive.
	subs, err = m.FindSubscribersForAlert(ctx, "delhi", 150)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestMemory_FindSubscriberByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.AddSubscriber(models.Subscriber{ID: 7, City: "lima", Threshold: 90})

	got, ok, err := m.FindSubscriberByID(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lima", got.City)

	_, ok, err = m.FindSubscriberByID(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_DeleteReadingsBefore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.Save(ctx, models.Reading{City: "delhi", Timestamp: cutoff.Add(-time.Hour)}))
	require.NoError(t, m.Save(ctx, models.Reading{City: "delhi", Timestamp: cutoff.Add(time.Hour)}))
	require.NoError(t, m.Save(ctx, models.Reading{City: "oslo", Timestamp: cutoff.Add(-2 * time.Hour)}))

	deleted, err := m.DeleteReadingsBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, 1, m.ReadingCount("delhi"))
	assert.Equal(t, 0, m.ReadingCount("oslo"))
}

func TestMemory_SaveAlertRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := models.AlertRecord{ID: "r1", SubscriberID: 1, City: "delhi", AQI: 130, Threshold: 100, Outcome: models.OutcomeSent}
	require.NoError(t, m.SaveAlertRecord(ctx, rec))

	records := m.AlertRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0].ID)
}
