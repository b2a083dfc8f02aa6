package store

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
)

// Memory implements Store with in-process maps. Used by tests and for local
// runs without a database; data does not survive a restart.
type Memory struct {
	mu          sync.RWMutex
	readings    map[string][]models.Reading // city -> readings, append order
	subscribers map[int64]models.Subscriber
	alerts      []models.AlertRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		readings:    make(map[string][]models.Reading),
		subscribers: make(map[int64]models.Subscriber),
	}
}

// AddSubscriber seeds a subscriber. Subscribers are owned by the external
// user-management system; this is the test/local stand-in for it.
func (m *Memory) AddSubscriber(s models.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[s.ID] = s
}

// FindLatestByLocation implements Store.
func (m *Memory) FindLatestByLocation(ctx context.Context, city string) (models.Reading, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.readings[city]
	if len(rs) == 0 {
		return models.Reading{}, false, nil
	}
	latest := rs[0]
	for _, r := range rs[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	return latest, true, nil
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, r models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[r.City] = append(m.readings[r.City], r)
	return nil
}

// FindSubscribersForAlert implements Store.
func (m *Memory) FindSubscribersForAlert(ctx context.Context, city string, aqi int) ([]models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var subs []models.Subscriber
	for _, s := range m.subscribers {
		if s.City == city && s.Threshold <= aqi {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

// FindSubscriberByID implements Store.
func (m *Memory) FindSubscriberByID(ctx context.Context, id int64) (models.Subscriber, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscribers[id]
	return s, ok, nil
}

// SaveAlertRecord implements Store.
func (m *Memory) SaveAlertRecord(ctx context.Context, rec models.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, rec)
	return nil
}

// ReadingCount returns the stored reading count for city. For tests.
func (m *Memory) ReadingCount(city string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings[city])
}

// AlertRecords returns a copy of all saved alert records. For tests.
func (m *Memory) AlertRecords() []models.AlertRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AlertRecord(nil), m.alerts...)
}

// DeleteReadingsBefore implements Store.
func (m *Memory) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for city, rs := range m.readings {
		kept := rs[:0]
		for _, r := range rs {
			if r.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		m.readings[city] = kept
	}
	return deleted, nil
}

// Ping implements Store.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
