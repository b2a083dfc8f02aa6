package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjstillabower/aqi-alert-service/internal/cache"
	"github.com/kjstillabower/aqi-alert-service/internal/models"
	"github.com/kjstillabower/aqi-alert-service/internal/store"
)

// recordingNotifier captures sends for assertions; failFor marks subscriber
// IDs whose delivery should fail.
type recordingNotifier struct {
	mu      sync.Mutex
	sent    []int64
	failFor map[int64]bool
}

func (n *recordingNotifier) Send(ctx context.Context, sub models.Subscriber, city string, aqiValue int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[sub.ID] {
		return errors.New("transport unavailable")
	}
	n.sent = append(n.sent, sub.ID)
	return nil
}

func (n *recordingNotifier) sentIDs() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.sent...)
}

func TestEvaluateCity_NotifiesMatchingSubscribers(t *testing.T) {
	st := store.NewMemory()
	st.AddSubscriber(models.Subscriber{ID: 1, City: "delhi", Threshold: 100, Phone: "+15550001"})
	st.AddSubscriber(models.Subscriber{ID: 2, City: "delhi", Threshold: 150, Phone: "+15550002"})
	st.AddSubscriber(models.Subscriber{ID: 3, City: "oslo", Threshold: 50, Phone: "+15550003"})

	notifier := &recordingNotifier{}
	d := NewDispatcher(st, notifier, nil, nil, zap.NewNop())

	d.EvaluateCity(context.Background(), "delhi", models.Reading{City: "delhi", AQI: 120})

	// Only subscriber 1 matches: threshold 100 <= 120, threshold 150 does
	// not, and subscriber 3 watches a different city.
	require.Len(t, notifier.sentIDs(), 1)
	assert.Equal(t, int64(1), notifier.sentIDs()[0])

	records := st.AlertRecords()
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].SubscriberID)
	assert.Equal(t, "delhi", records[0].City)
	assert.Equal(t, 120, records[0].AQI)
	assert.Equal(t, 100, records[0].Threshold)
	assert.Equal(t, models.OutcomeSent, records[0].Outcome)
	assert.NotEmpty(t, records[0].ID)
}

func TestEvaluateCity_ThresholdBoundaryInclusive(t *testing.T) {
	st := store.NewMemory()
	st.AddSubscriber(models.Subscriber{ID: 1, City: "lima", Threshold: 100})

	notifier := &recordingNotifier{}
	d := NewDispatcher(st, notifier, nil, nil, zap.NewNop())

	d.EvaluateCity(context.Background(), "lima", models.Reading{City: "lima", AQI: 100})

	assert.Len(t, notifier.sentIDs(), 1, "AQI equal to threshold must alert")
}

func TestEvaluateCity_NoMatchesIsQuiet(t *testing.T) {
	st := store.NewMemory()
	st.AddSubscriber(models.Subscriber{ID: 1, City: "oslo", Threshold: 150})

	notifier := &recordingNotifier{}
	d := NewDispatcher(st, notifier, nil, nil, zap.NewNop())

	d.EvaluateCity(context.Background(), "oslo", models.Reading{City: "oslo", AQI: 40})

	assert.Empty(t, notifier.sentIDs())
	assert.Empty(t, st.AlertRecords())
}

func TestEvaluateCity_TransportFailureStillRecorded(t *testing.T) {
	st := store.NewMemory()
	st.AddSubscriber(models.Subscriber{ID: 1, City: "delhi", Threshold: 50})
	st.AddSubscriber(models.Subscriber{ID: 2, City: "delhi", Threshold: 50})

	notifier := &recordingNotifier{failFor: map[int64]bool{1: true}}
	d := NewDispatcher(st, notifier, nil, nil, zap.NewNop())

	d.EvaluateCity(context.Background(), "delhi", models.Reading{City: "delhi", AQI: 200})

	records := st.AlertRecords()
	require.Len(t, records, 2, "a failed delivery must not abort the sweep")

	outcomes := map[int64]string{}
	for _, r := range records {
		outcomes[r.SubscriberID] = r.Outcome
	}
	assert.Equal(t, models.OutcomeFailed, outcomes[1])
	assert.Equal(t, models.OutcomeSent, outcomes[2])
}

func TestEvaluateSubscriber_OneOffCheck(t *testing.T) {
	st := store.NewMemory()
	st.AddSubscriber(models.Subscriber{ID: 7, City: "delhi", Threshold: 100})

	notifier := &recordingNotifier{}
	d := NewDispatcher(st, notifier, nil, nil, zap.NewNop())

	d.EvaluateSubscriber(context.Background(), 7, 90)
	assert.Empty(t, notifier.sentIDs(), "below threshold must not alert")

	d.EvaluateSubscriber(context.Background(), 7, 130)
	require.Len(t, notifier.sentIDs(), 1)

	records := st.AlertRecords()
	require.Len(t, records, 1)
	assert.Equal(t, int64(7), records[0].SubscriberID)
	assert.Equal(t, 130, records[0].AQI)
}

func TestEvaluateSubscriber_UnknownID(t *testing.T) {
	st := store.NewMemory()
	notifier := &recordingNotifier{}
	d := NewDispatcher(st, notifier, nil, nil, zap.NewNop())

	d.EvaluateSubscriber(context.Background(), 404, 500)

	assert.Empty(t, notifier.sentIDs())
	assert.Empty(t, st.AlertRecords())
}

func TestEvaluateSubscriber_UsesSubscriberCache(t *testing.T) {
	st := store.NewMemory()
	st.AddSubscriber(models.Subscriber{ID: 7, City: "delhi", Threshold: 50})

	subCache := cache.NewLRU[models.Subscriber]("subscriber-test", 10, time.Minute, nil)
	notifier := &recordingNotifier{}
	d := NewDispatcher(st, notifier, subCache, nil, zap.NewNop())

	d.EvaluateSubscriber(context.Background(), 7, 100)

	// The first lookup populated the cache; a stale store row no longer
	// matters for the second evaluation.
	cached, ok, err := subCache.Get(context.Background(), "7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), cached.ID)

	d.EvaluateSubscriber(context.Background(), 7, 100)
	assert.Len(t, notifier.sentIDs(), 2)
}

func TestLogNotifier_Send(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	err := n.Send(context.Background(), models.Subscriber{ID: 1, Phone: "+15550001", Threshold: 100}, "delhi", 180)
	assert.NoError(t, err)
}
