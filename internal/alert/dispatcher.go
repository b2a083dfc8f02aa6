// Package alert evaluates readings against subscriber thresholds and
// dispatches notifications, recording an append-only outcome trail.
package alert

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/aqi-alert-service/internal/cache"
	"github.com/kjstillabower/aqi-alert-service/internal/models"
	"github.com/kjstillabower/aqi-alert-service/internal/observability"
	"github.com/kjstillabower/aqi-alert-service/internal/store"
)

// Dispatcher fans alert notifications out to matching subscribers. Transport
// failures are recorded on the AlertRecord and never abort the sweep.
type Dispatcher struct {
	store    store.Store
	notifier Notifier
	subCache cache.Cache[models.Subscriber]
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher. subCache absorbs repeated
// subscriber-by-id lookups across a burst of one-off evaluations; pass nil
// to disable caching.
func NewDispatcher(st store.Store, notifier Notifier, subCache cache.Cache[models.Subscriber], clock clockwork.Clock, logger *zap.Logger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		store:    st,
		notifier: notifier,
		subCache: subCache,
		clock:    clock,
		logger:   logger,
	}
}

// EvaluateCity checks every subscriber of city against the reading's AQI and
// dispatches notifications concurrently for those whose threshold is at or
// below it. Blocks until all dispatches for this city have completed.
func (d *Dispatcher) EvaluateCity(ctx context.Context, city string, reading models.Reading) {
	subs, err := d.store.FindSubscribersForAlert(ctx, city, reading.AQI)
	if err != nil {
		d.logger.Error("subscriber lookup failed", zap.String("city", city), zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	d.logger.Info("alerting subscribers",
		zap.String("city", city), zap.Int("aqi", reading.AQI), zap.Int("matches", len(subs)))

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub models.Subscriber) {
			defer wg.Done()
			d.dispatch(ctx, sub, city, reading.AQI)
		}(sub)
	}
	wg.Wait()
}

// EvaluateSubscriber runs a one-off threshold check for a single subscriber,
// e.g. after a manual threshold change, without a full fleet pass. aqiValue
// is the current severity for the subscriber's city.
func (d *Dispatcher) EvaluateSubscriber(ctx context.Context, subscriberID int64, aqiValue int) {
	sub, ok := d.lookupSubscriber(ctx, subscriberID)
	if !ok {
		d.logger.Warn("unknown subscriber", zap.Int64("subscriber_id", subscriberID))
		return
	}
	if aqiValue < sub.Threshold {
		return
	}
	d.dispatch(ctx, sub, sub.City, aqiValue)
}

// dispatch sends one notification and appends the outcome record. The record
// is written regardless of transport success or failure.
func (d *Dispatcher) dispatch(ctx context.Context, sub models.Subscriber, city string, aqiValue int) {
	outcome := models.OutcomeSent
	if err := d.notifier.Send(ctx, sub, city, aqiValue); err != nil {
		outcome = models.OutcomeFailed
		d.logger.Error("notification failed",
			zap.Int64("subscriber_id", sub.ID), zap.String("city", city), zap.Error(err))
	}
	observability.AlertsDispatchedTotal.WithLabelValues(outcome).Inc()

	rec := models.AlertRecord{
		ID:           uuid.New().String(),
		SubscriberID: sub.ID,
		City:         city,
		AQI:          aqiValue,
		Threshold:    sub.Threshold,
		Outcome:      outcome,
		Timestamp:    d.clock.Now(),
	}
	if err := d.store.SaveAlertRecord(ctx, rec); err != nil {
		d.logger.Error("save alert record failed",
			zap.String("record_id", rec.ID), zap.Int64("subscriber_id", sub.ID), zap.Error(err))
	}
}

// lookupSubscriber resolves a subscriber by id through the cache.
func (d *Dispatcher) lookupSubscriber(ctx context.Context, id int64) (models.Subscriber, bool) {
	key := strconv.FormatInt(id, 10)
	if d.subCache != nil {
		if sub, ok, err := d.subCache.Get(ctx, key); err == nil && ok {
			observability.SubscriberCacheHitsTotal.Inc()
			return sub, true
		}
	}

	sub, ok, err := d.store.FindSubscriberByID(ctx, id)
	if err != nil {
		d.logger.Error("subscriber lookup failed", zap.Int64("subscriber_id", id), zap.Error(err))
		return models.Subscriber{}, false
	}
	if !ok {
		return models.Subscriber{}, false
	}
	if d.subCache != nil {
		_ = d.subCache.Set(ctx, key, sub)
	}
	return sub, true
}
