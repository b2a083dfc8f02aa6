package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
	"github.com/kjstillabower/aqi-alert-service/internal/store"
)

// stubFetcher returns canned readings and tracks concurrency.
type stubFetcher struct {
	mu          sync.Mutex
	fetched     []string
	inFlight    int
	maxInFlight int
	block       chan struct{} // when set, Fetch blocks until closed
	panicCity   string
}

func (f *stubFetcher) Fetch(ctx context.Context, city string) models.Reading {
	f.mu.Lock()
	f.fetched = append(f.fetched, city)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	block := f.block
	f.mu.Unlock()

	if city == f.panicCity {
		panic("bad city data")
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return models.Reading{City: city, AQI: 50, Source: models.SourceUpstream}
}

func (f *stubFetcher) fetchedCities() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// stubEvaluator records which readings reached alert evaluation.
type stubEvaluator struct {
	mu        sync.Mutex
	evaluated []string
}

func (e *stubEvaluator) EvaluateCity(ctx context.Context, city string, reading models.Reading) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evaluated = append(e.evaluated, city)
}

func (e *stubEvaluator) evaluatedCities() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.evaluated...)
}

func TestRefreshAll_FansOutToEveryCity(t *testing.T) {
	fetcher := &stubFetcher{}
	evaluator := &stubEvaluator{}
	cities := []string{"delhi", "oslo", "lima", "tokyo"}

	r := New(fetcher, evaluator, store.NewMemory(), Config{
		Cities:   cities,
		Interval: time.Minute,
		Workers:  2,
		Logger:   zap.NewNop(),
	})
	r.RefreshAll(context.Background())

	assert.ElementsMatch(t, cities, fetcher.fetchedCities())
	assert.ElementsMatch(t, cities, evaluator.evaluatedCities())
	assert.LessOrEqual(t, fetcher.maxInFlight, 2, "worker pool bound exceeded")
}

func TestRefreshAll_SkipsWhileCycleInFlight(t *testing.T) {
	block := make(chan struct{})
	fetcher := &stubFetcher{block: block}
	evaluator := &stubEvaluator{}

	r := New(fetcher, evaluator, store.NewMemory(), Config{
		Cities:   []string{"delhi"},
		Interval: time.Minute,
		Workers:  1,
		Logger:   zap.NewNop(),
	})

	done := make(chan struct{})
	go func() {
		r.RefreshAll(context.Background())
		close(done)
	}()

	// Wait until the first cycle is inside a fetch, then tick again.
	require.Eventually(t, func() bool {
		return len(fetcher.fetchedCities()) == 1
	}, time.Second, time.Millisecond)

	r.RefreshAll(context.Background()) // must return immediately, skipped

	close(block)
	<-done

	assert.Len(t, fetcher.fetchedCities(), 1, "overlapping cycle must not fetch")
}

// normalizingFetcher lowercases the requested city, the way the ingestion
// monitor does before caching and persisting a reading.
type normalizingFetcher struct{}

func (normalizingFetcher) Fetch(ctx context.Context, city string) models.Reading {
	return models.Reading{City: strings.ToLower(city), AQI: 180, Source: models.SourceUpstream}
}

func TestRefreshAll_EvaluatesReadingCity(t *testing.T) {
	evaluator := &stubEvaluator{}

	r := New(normalizingFetcher{}, evaluator, store.NewMemory(), Config{
		Cities:   []string{"Delhi"},
		Interval: time.Minute,
		Workers:  1,
		Logger:   zap.NewNop(),
	})
	r.RefreshAll(context.Background())

	assert.Equal(t, []string{"delhi"}, evaluator.evaluatedCities(),
		"evaluation must use the reading's stored city, not the configured spelling")
}

func TestRefreshAll_PanicInOneCityDoesNotStopOthers(t *testing.T) {
	fetcher := &stubFetcher{panicCity: "oslo"}
	evaluator := &stubEvaluator{}

	r := New(fetcher, evaluator, store.NewMemory(), Config{
		Cities:   []string{"delhi", "oslo", "lima"},
		Interval: time.Minute,
		Workers:  1,
		Logger:   zap.NewNop(),
	})
	r.RefreshAll(context.Background())

	assert.ElementsMatch(t, []string{"delhi", "lima"}, evaluator.evaluatedCities())
}

func TestRefreshAll_RunsAfterPreviousCycleCompletes(t *testing.T) {
	fetcher := &stubFetcher{}
	evaluator := &stubEvaluator{}

	r := New(fetcher, evaluator, store.NewMemory(), Config{
		Cities:   []string{"delhi"},
		Interval: time.Minute,
		Workers:  1,
		Logger:   zap.NewNop(),
	})
	r.RefreshAll(context.Background())
	r.RefreshAll(context.Background())

	assert.Len(t, fetcher.fetchedCities(), 2, "guard must clear after a cycle ends")
}

func TestRunCleanup_DeletesExpiredReadings(t *testing.T) {
	clock := clockwork.NewFakeClock()
	st := store.NewMemory()
	ctx := context.Background()

	old := models.Reading{City: "delhi", AQI: 90, Timestamp: clock.Now().Add(-40 * 24 * time.Hour)}
	fresh := models.Reading{City: "delhi", AQI: 60, Timestamp: clock.Now()}
	require.NoError(t, st.Save(ctx, old))
	require.NoError(t, st.Save(ctx, fresh))

	r := New(&stubFetcher{}, &stubEvaluator{}, st, Config{
		Cities:       []string{"delhi"},
		Interval:     time.Minute,
		Retention:    30 * 24 * time.Hour,
		CleanupEvery: 24 * time.Hour,
		Clock:        clock,
		Logger:       zap.NewNop(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = r.RunCleanup(runCtx)
		close(done)
	}()

	clock.BlockUntil(1) // cleanup loop is waiting on its ticker
	clock.Advance(24 * time.Hour)

	require.Eventually(t, func() bool {
		return st.ReadingCount("delhi") == 1
	}, time.Second, time.Millisecond, "cleanup must delete the reading past retention")

	latest, ok, err := st.FindLatestByLocation(ctx, "delhi")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 60, latest.AQI, "fresh reading must survive cleanup")

	cancel()
	<-done
}

func TestRunCleanup_DisabledWithoutRetention(t *testing.T) {
	r := New(&stubFetcher{}, &stubEvaluator{}, store.NewMemory(), Config{
		Cities:   []string{"delhi"},
		Interval: time.Minute,
		Logger:   zap.NewNop(),
	})
	assert.NoError(t, r.RunCleanup(context.Background()))
}
